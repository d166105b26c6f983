package businessflow

import (
	"context"

	"github.com/amirphl/Yamata-WABA/config"
	"github.com/amirphl/Yamata-WABA/models"
	"github.com/amirphl/Yamata-WABA/repository"
	"github.com/amirphl/Yamata-WABA/utils"
)

const RequestIDKey = "X-Request-ID"

// ClientMetadata holds client information for audit logging
type ClientMetadata struct {
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`
	RequestID string `json:"request_id,omitempty"`
}

// NewClientMetadata creates a new ClientMetadata instance with basic information
func NewClientMetadata(ipAddress, userAgent string) *ClientMetadata {
	return &ClientMetadata{
		IPAddress: ipAddress,
		UserAgent: userAgent,
	}
}

// SetRequestID sets the request ID
func (cm *ClientMetadata) SetRequestID(requestID string) {
	cm.RequestID = requestID
}

// loadCampaign returns the campaign when it belongs to businessID
func loadCampaign(ctx context.Context, repo repository.CampaignRepository, businessID, campaignID uint) (*models.Campaign, error) {
	campaign, err := repo.ByID(ctx, campaignID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to lookup campaign", err)
	}
	if campaign == nil || campaign.BusinessID != businessID {
		return nil, NewBusinessError("CAMPAIGN_NOT_FOUND", "Campaign not found", ErrCampaignNotFound)
	}
	return campaign, nil
}

// createAuditLog records an operator action; failures are returned but callers ignore them
func createAuditLog(ctx context.Context, repo repository.AuditLogRepository, businessID uint, action, description string, success bool, errorMsg *string, metadata *ClientMetadata) error {
	if repo == nil {
		return nil
	}

	audit := &models.AuditLog{
		BusinessID:   &businessID,
		Action:       action,
		Description:  &description,
		Success:      utils.ToPtr(success),
		ErrorMessage: errorMsg,
	}
	if metadata != nil {
		if metadata.IPAddress != "" {
			audit.IPAddress = utils.ToPtr(metadata.IPAddress)
		}
		audit.UserAgent = utils.ToPtr(metadata.UserAgent)
		if metadata.RequestID != "" {
			audit.RequestID = utils.ToPtr(metadata.RequestID)
		}
	}

	// Extract request ID from context if available
	if audit.RequestID == nil {
		if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
			audit.RequestID = &requestID
		}
	}

	return repo.Save(ctx, audit)
}

func redisKey(cfg config.CacheConfig, key string) string {
	return cfg.RedisPrefix + key
}
