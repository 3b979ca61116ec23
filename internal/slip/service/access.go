package service

import "marketslip/internal/auth"

// CheckSlipAccess reports whether identity may see the slips of reservationID.
func CheckSlipAccess(identity *auth.Identity, reservationID string) bool {
	if identity == nil {
		return false
	}
	switch identity.Role {
	case auth.RoleAdmin:
		return true
	case auth.RoleOrganizer:
		// TODO: restrict organizers to reservations in markets they run once the
		// market service exposes organizer ownership.
		return true
	case auth.RoleVendor:
		// TODO: check that reservationID belongs to identity.UserID against the
		// reservation service.
		return true
	default:
		return false
	}
}
