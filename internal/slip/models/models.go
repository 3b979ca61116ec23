package models

import "time"

// Column limits for slip records.
const (
	MaxStorageKeyLen    = 200
	MaxMarketIDLen      = 100
	MaxReservationIDLen = 200
)

// SlipRecord is the stored metadata for one uploaded slip image. StorageKey
// always names an object that was written before the record was created.
type SlipRecord struct {
	ID            string    `json:"id"`
	StorageKey    string    `json:"storage_key"`
	MarketID      string    `json:"market_id"`
	ReservationID string    `json:"reservation_id"`
	CreatedAt     time.Time `json:"created_at"`
}

// Upload is a slip image submitted by a vendor.
type Upload struct {
	Data          []byte
	ContentType   string
	Filename      string
	ReservationID string
	MarketID      string
}

// ReservationStatus is the vendor reservation lifecycle state shared with the
// reservation service.
type ReservationStatus string

const (
	StatusApplication  ReservationStatus = "Application"
	StatusWaitForPay   ReservationStatus = "WaitforPay"
	StatusValidateSlip ReservationStatus = "ValidateSlip"
	StatusMerchant     ReservationStatus = "Merchant"
	StatusRetire       ReservationStatus = "Retire"
)

func (s ReservationStatus) IsValid() bool {
	switch s {
	case StatusApplication, StatusWaitForPay, StatusValidateSlip, StatusMerchant, StatusRetire:
		return true
	}
	return false
}

// EventUpdateReservationStatus is the event name consumers match on.
const EventUpdateReservationStatus = "UPDATE_RESERVATION_STATUS"

// ReservationStatusEvent is the message body announcing a status change.
// Field names follow what reservation consumers already read.
type ReservationStatusEvent struct {
	Event         string            `json:"event"`
	ReservationID string            `json:"reservationId"`
	MarketID      string            `json:"marketId"`
	Status        ReservationStatus `json:"vendorReservationStatus"`
	SlipID        string            `json:"slipId,omitempty"`
}
