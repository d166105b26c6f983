package dto

import "time"

// WebhookIngestRequest carries a raw provider webhook body
type WebhookIngestRequest struct {
	BusinessID uint   `json:"-"`
	Payload    []byte `json:"-"`
	Signature  string `json:"-"`
}

// WebhookVerifyRequest carries the provider subscription challenge
type WebhookVerifyRequest struct {
	BusinessID  uint   `json:"-"`
	Mode        string `json:"-"`
	VerifyToken string `json:"-"`
	Challenge   string `json:"-"`
}

// IngestResult summarizes one ingest call
type IngestResult struct {
	Replay     bool `json:"replay"`
	Parsed     int  `json:"parsed"`
	Inserted   int  `json:"inserted"`
	Duplicates int  `json:"duplicates"`
	Linked     int  `json:"linked"`
	Unmatched  int  `json:"unmatched"`
}

// BillingSnapshotRequest represents the request to aggregate billing for [From, To)
type BillingSnapshotRequest struct {
	BusinessID uint      `json:"-"`
	From       time.Time `json:"from" validate:"required"`
	To         time.Time `json:"to" validate:"required"`
}

// BillingSnapshotResponse is the aggregated billing view of a date range
type BillingSnapshotResponse struct {
	From              time.Time          `json:"from"`
	To                time.Time          `json:"to"`
	MessageVolume     int64              `json:"message_volume"`
	PricingEvents     int                `json:"pricing_events"`
	ChargeableWindows int                `json:"chargeable_windows"`
	FreeWindows       int                `json:"free_windows"`
	Categories        map[string]int     `json:"categories"`
	SpendByCurrency   map[string]float64 `json:"spend_by_currency"`
	Cached            bool               `json:"cached"`
}
