package utils

import (
	"time"
)

// Cache keys and TTLs
const (
	// BillingSnapshotCacheKey is formatted with business id, from and to (unix seconds)
	BillingSnapshotCacheKey = "billing:snapshot:%d:%d:%d"

	// WebhookReplayKey is formatted with business id and the payload digest
	WebhookReplayKey = "webhook:seen:%d:%s"

	// WebhookReplayTTL bounds how long an exact payload replay is short-circuited
	WebhookReplayTTL = 24 * time.Hour
)

// Outbound pipeline constants
const (
	// ProviderWhatsApp is the provider tag stored on ledger rows and message logs
	ProviderWhatsApp = "whatsapp"

	// MaxLastErrorLength bounds OutboundCampaignJob.LastError
	MaxLastErrorLength = 1024

	// MaterializeSampleSize is the number of recipients echoed back by a materialization run
	MaterializeSampleSize = 5

	// MaxDynamicURLButtons is the number of URL buttons a template can parameterize
	MaxDynamicURLButtons = 3
)
