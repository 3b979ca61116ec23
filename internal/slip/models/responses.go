package models

// CreateSlipResponse is returned by POST /slip/create.
type CreateSlipResponse struct {
	Message       string `json:"message"`
	ID            string `json:"id"`
	StorageKey    string `json:"storage_key"`
	MarketID      string `json:"market_id"`
	ReservationID string `json:"reservation_id"`
}

// SlipURLsResponse is returned by GET /slip/reservation/{reservation_id}.
type SlipURLsResponse struct {
	SlipURLs []string `json:"slip_urls"`
}

// SlipReceipt is what an anonymous caller sees for a slip.
type SlipReceipt struct {
	ID            string `json:"id"`
	ReservationID string `json:"reservation_id"`
}

// SlipDetail is the full view for callers with access to the reservation.
type SlipDetail struct {
	SlipRecord
	SlipURL string `json:"slip_url,omitempty"`
}
