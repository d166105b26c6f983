// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/amirphl/Yamata-WABA/models"
	"github.com/google/uuid"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

// Transactor runs fn in one database transaction. Repositories called with
// the context passed to fn join that transaction.
type Transactor interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// CampaignRepository defines operations for campaigns
type CampaignRepository interface {
	ByID(ctx context.Context, id uint) (*models.Campaign, error)
	// LockByID selects the campaign row FOR UPDATE; it must run inside a transaction
	LockByID(ctx context.Context, id uint) (*models.Campaign, error)
}

// MessageTemplateRepository defines operations for synced templates
type MessageTemplateRepository interface {
	ByID(ctx context.Context, id uint) (*models.MessageTemplate, error)
}

// ContactRepository defines read operations on the CRM contact projection
type ContactRepository interface {
	// ListForBusiness returns contacts ordered by id. Empty ids means all contacts.
	ListForBusiness(ctx context.Context, businessID uint, ids []uint, limit int) ([]*models.Contact, error)
}

// CsvBatchRepository defines read operations on normalized csv uploads
type CsvBatchRepository interface {
	ByID(ctx context.Context, id uint) (*models.CsvBatch, error)
	Rows(ctx context.Context, batchID uint, limit int) ([]*models.CsvBatchRow, error)
}

// AudienceRepository defines operations for audiences and their members
type AudienceRepository interface {
	ByID(ctx context.Context, id uint) (*models.Audience, error)
	// FindOrCreate returns the audience of (campaign, name), creating it when missing
	FindOrCreate(ctx context.Context, audience *models.Audience) (*models.Audience, error)
	Members(ctx context.Context, audienceID uint, limit int) ([]*models.AudienceMember, error)
	// UpsertMembers inserts members keyed by (audience, phone) and fills their IDs
	UpsertMembers(ctx context.Context, members []*models.AudienceMember) error
}

// TemplateVariableMappingRepository defines operations for placeholder bindings
type TemplateVariableMappingRepository interface {
	ListByCampaign(ctx context.Context, campaignID uint) ([]*models.TemplateVariableMapping, error)
	Save(ctx context.Context, mapping *models.TemplateVariableMapping) error
	UpdateBinding(ctx context.Context, mapping *models.TemplateVariableMapping) error
	DeleteByIDs(ctx context.Context, ids []uint) error
}

// MaterializedRecipientRepository defines operations for frozen send payloads
type MaterializedRecipientRepository interface {
	ByID(ctx context.Context, id uint) (*models.MaterializedRecipient, error)
	// UpsertByIdempotencyKey inserts recipients or updates the row sharing the key, filling IDs
	UpsertByIdempotencyKey(ctx context.Context, recipients []*models.MaterializedRecipient) error
	// ListPage returns recipients ordered by id ascending
	ListPage(ctx context.Context, filter models.MaterializedRecipientFilter, limit int) ([]*models.MaterializedRecipient, error)
	Count(ctx context.Context, filter models.MaterializedRecipientFilter) (int64, error)
	UpdateStatus(ctx context.Context, id uint, status models.RecipientStatus) error
}

// OutboundJobTransition is a conditional update of one job.
// It applies only when the job is in one of From and, if set, at Attempt.
type OutboundJobTransition struct {
	From          []models.OutboundJobStatus
	Attempt       *int
	To            models.OutboundJobStatus
	NextAttemptAt *time.Time
	LastError     *string
	ClearLease    bool
	FinishedAt    *time.Time
	CanceledAt    *time.Time
}

// OutboundCampaignJobRepository defines operations for the durable send queue
type OutboundCampaignJobRepository interface {
	Save(ctx context.Context, job *models.OutboundCampaignJob) error
	ByID(ctx context.Context, id uint) (*models.OutboundCampaignJob, error)
	ByUUID(ctx context.Context, id uuid.UUID) (*models.OutboundCampaignJob, error)
	// ActiveByCampaign returns the newest queued or running job of the campaign
	ActiveByCampaign(ctx context.Context, campaignID uint) (*models.OutboundCampaignJob, error)
	ListByCampaign(ctx context.Context, campaignID uint) ([]*models.OutboundCampaignJob, error)
	// ClaimNext moves one eligible queued job to running; nil when none is eligible
	ClaimNext(ctx context.Context, workerID string, now, leaseUntil time.Time) (*models.OutboundCampaignJob, error)
	// ClaimByID is ClaimNext restricted to one job
	ClaimByID(ctx context.Context, id uint, workerID string, now, leaseUntil time.Time) (*models.OutboundCampaignJob, error)
	ExtendLease(ctx context.Context, id uint, workerID string, leaseUntil time.Time) (bool, error)
	ListExpiredLeases(ctx context.Context, now time.Time, limit int) ([]*models.OutboundCampaignJob, error)
	Transition(ctx context.Context, id uint, t OutboundJobTransition) (bool, error)
}

// ProviderBillingEventRepository defines operations for the append-only billing ledger
type ProviderBillingEventRepository interface {
	// Exists matches on provider message id when given, else on conversation id
	Exists(ctx context.Context, businessID uint, provider, eventType string, providerMessageID, conversationID *string) (bool, error)
	// Insert adds the event unless a unique key already holds it
	Insert(ctx context.Context, event *models.ProviderBillingEvent) (bool, error)
	ListByFilter(ctx context.Context, filter models.ProviderBillingEventFilter) ([]*models.ProviderBillingEvent, error)
}

// BillingProjection carries ledger fields copied onto a message log
type BillingProjection struct {
	ConversationID        *string
	ConversationCategory  *string
	ConversationStartedAt *time.Time
	Chargeable            *bool
	PriceAmount           *float64
	PriceCurrency         *string
	EventAt               time.Time
}

// MessageLogRepository defines operations for sent messages and their billing projection
type MessageLogRepository interface {
	Save(ctx context.Context, log *models.MessageLog) error
	ByRecipientID(ctx context.Context, recipientID uint) (*models.MessageLog, error)
	ByProviderMessageID(ctx context.Context, businessID uint, providerMessageID string) (*models.MessageLog, error)
	LatestByConversationID(ctx context.Context, businessID uint, conversationID string) (*models.MessageLog, error)
	// CreateSending inserts a sending log; false means the recipient already has one
	CreateSending(ctx context.Context, log *models.MessageLog) (bool, error)
	// ListUnresolved returns logs of the campaign still in sending state that no live attempt owns.
	// A log is owned when its job is running under a lease valid at now, unless that job is ownJobID.
	ListUnresolved(ctx context.Context, campaignID, ownJobID uint, now time.Time) ([]*models.MessageLog, error)
	// MarkSent records the provider acceptance. It also supersedes an unknown outcome failure.
	MarkSent(ctx context.Context, id uint, providerMessageID string, sentAt time.Time) (bool, error)
	// MarkFailed fails a log still in sending state
	MarkFailed(ctx context.Context, id uint, reason string) (bool, error)
	// DeleteSending removes a log still in sending state, releasing its recipient for a later attempt
	DeleteSending(ctx context.Context, id uint) error
	// AdvanceStatus sets status when the row is still at from
	AdvanceStatus(ctx context.Context, id uint, from, to models.MessageLogStatus) (bool, error)
	// ApplyBilling copies p unless a newer ledger event is already projected
	ApplyBilling(ctx context.Context, id uint, p BillingProjection) (bool, error)
	CountByRange(ctx context.Context, businessID uint, from, to time.Time) (int64, error)
}

// AuditLogRepository defines operations for audit logs
type AuditLogRepository interface {
	Save(ctx context.Context, log *models.AuditLog) error
	ListByBusiness(ctx context.Context, businessID uint, action string, limit int) ([]*models.AuditLog, error)
}
