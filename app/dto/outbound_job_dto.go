package dto

import "time"

// EnqueueOutboundJobRequest represents the request to queue a send attempt for a campaign
type EnqueueOutboundJobRequest struct {
	BusinessID     uint `json:"-"`
	CampaignID     uint `json:"-"`
	ForceDuplicate bool `json:"force_duplicate"`
}

// OutboundJobActionRequest addresses one job by its public id
type OutboundJobActionRequest struct {
	BusinessID uint   `json:"-"`
	JobUUID    string `json:"-" validate:"required,uuid"`
}

// ListOutboundJobsRequest represents the request to list a campaign's jobs
type ListOutboundJobsRequest struct {
	BusinessID uint `json:"-"`
	CampaignID uint `json:"-"`
}

// OutboundJobResponse represents an outbound job in responses
type OutboundJobResponse struct {
	UUID          string     `json:"uuid"`
	CampaignID    uint       `json:"campaign_id"`
	Status        string     `json:"status"`
	Attempt       int        `json:"attempt"`
	MaxAttempts   int        `json:"max_attempts"`
	NextAttemptAt time.Time  `json:"next_attempt_at"`
	LastError     *string    `json:"last_error,omitempty"`
	LockedBy      *string    `json:"locked_by,omitempty"`
	LockedUntil   *time.Time `json:"locked_until,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	CanceledAt    *time.Time `json:"canceled_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// EnqueueOutboundJobResponse reports the queued job; Created is false when an active job was returned
type EnqueueOutboundJobResponse struct {
	Job     OutboundJobResponse `json:"job"`
	Created bool                `json:"created"`
}

// ListOutboundJobsResponse lists jobs newest first
type ListOutboundJobsResponse struct {
	Items []OutboundJobResponse `json:"items"`
}
