package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"marketslip/internal/auth"
	"marketslip/internal/slip/models"
	dErrors "marketslip/pkg/domain-errors"
	"marketslip/pkg/platform/sentinel"
	"marketslip/pkg/requestcontext"
)

// SlipView is the outcome of a single slip lookup. Detail is nil when the
// caller may only see the receipt.
type SlipView struct {
	Receipt models.SlipReceipt
	Detail  *models.SlipDetail
}

// ListSlipsForReservation returns viewing links for every slip of
// reservationID. Slips whose link cannot be generated are left out.
func (s *Service) ListSlipsForReservation(ctx context.Context, token, reservationID string) ([]string, error) {
	ctx, span := s.tracer.Start(ctx, "slip.list")
	defer span.End()
	span.SetAttributes(attribute.String("slip.reservation_id", reservationID))

	identity, err := s.auth.ResolveIdentity(ctx, token)
	if err != nil {
		span.SetStatus(codes.Error, "unauthorized")
		return nil, err
	}
	if !CheckSlipAccess(identity, reservationID) {
		s.logger.WarnContext(ctx, "slip access denied",
			"user_id", identity.UserID,
			"role", identity.Role,
			"reservation_id", reservationID,
			"request_id", requestcontext.RequestID(ctx),
		)
		span.SetStatus(codes.Error, "forbidden")
		return nil, dErrors.New(dErrors.CodeForbidden, "You don't have permission to view these slips")
	}

	records, err := s.records.ListByReservation(ctx, reservationID)
	if err != nil {
		span.RecordError(err)
		return nil, dErrors.Wrap(err, dErrors.CodeStorageFailure, "failed to list slips")
	}

	urls := make([]string, 0, len(records))
	for _, record := range records {
		url, err := s.objects.PresignedGet(ctx, record.StorageKey, s.urlTTL)
		if err != nil {
			s.metrics.IncrementPresignFailure()
			s.logger.WarnContext(ctx, "skipping slip without a viewing link",
				"slip_id", record.ID,
				"storage_key", record.StorageKey,
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
			continue
		}
		urls = append(urls, url)
	}
	span.SetAttributes(attribute.Int("slip.count", len(urls)))
	return urls, nil
}

// GetSlip looks up one slip. Callers that resolve to an identity with access
// to the reservation get the full record and a viewing link; everyone else
// gets the receipt.
func (s *Service) GetSlip(ctx context.Context, token, id string) (*SlipView, error) {
	record, err := s.getRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	view := &SlipView{Receipt: models.SlipReceipt{ID: record.ID, ReservationID: record.ReservationID}}

	identity := s.auth.OptionalIdentity(ctx, token)
	if identity == nil || !CheckSlipAccess(identity, record.ReservationID) {
		return view, nil
	}

	detail := &models.SlipDetail{SlipRecord: *record}
	url, err := s.objects.PresignedGet(ctx, record.StorageKey, s.urlTTL)
	if err != nil {
		s.metrics.IncrementPresignFailure()
		s.logger.WarnContext(ctx, "slip viewing link unavailable",
			"slip_id", record.ID,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	} else {
		detail.SlipURL = url
	}
	view.Detail = detail
	return view, nil
}

// DeleteSlip removes a slip's image and record. Admin only. An image that is
// already gone does not stop the record from being removed.
func (s *Service) DeleteSlip(ctx context.Context, token, id string) error {
	identity, err := s.auth.RequireRole(ctx, token, auth.RoleAdmin)
	if err != nil {
		return err
	}
	record, err := s.getRecord(ctx, id)
	if err != nil {
		return err
	}

	if err := s.objects.Delete(ctx, record.StorageKey); err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) && !dErrors.HasCode(err, dErrors.CodeNotFound) {
			return dErrors.Wrap(err, dErrors.CodeStorageFailure, "failed to delete slip file")
		}
		s.logger.WarnContext(ctx, "slip file already missing",
			"slip_id", record.ID,
			"storage_key", record.StorageKey,
			"request_id", requestcontext.RequestID(ctx),
		)
	}

	removed, err := s.records.Delete(ctx, record.ID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeStorageFailure, "failed to delete slip")
	}
	if !removed {
		return dErrors.New(dErrors.CodeNotFound, "Slip not found")
	}
	s.logger.InfoContext(ctx, "slip deleted",
		"slip_id", record.ID,
		"user_id", identity.UserID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return nil
}

func (s *Service) getRecord(ctx context.Context, id string) (*models.SlipRecord, error) {
	record, err := s.records.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "Slip not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeStorageFailure, "failed to load slip")
	}
	return record, nil
}
