package testing

import (
	"fmt"
	"time"

	"github.com/amirphl/Yamata-WABA/models"
	"github.com/amirphl/Yamata-WABA/utils"
	"github.com/brianvoe/gofakeit/v6"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// CreateTestTemplate creates a one-parameter body template
func (tf *TestFixtures) CreateTestTemplate(businessID uint) (*models.MessageTemplate, error) {
	template := &models.MessageTemplate{
		BusinessID:     businessID,
		Name:           "promo_" + gofakeit.LetterN(6),
		Language:       "en",
		Category:       "MARKETING",
		HeaderType:     models.HeaderTypeNone,
		BodyText:       "Hi {{1}}, our spring sale is on",
		BodyParamCount: 1,
		Buttons:        models.TemplateButtons{},
	}
	if err := tf.DB.DB.Create(template).Error; err != nil {
		return nil, fmt.Errorf("failed to create test template: %w", err)
	}
	return template, nil
}

// CreateTestCampaign creates a ready campaign with its own template
func (tf *TestFixtures) CreateTestCampaign(businessID uint) (*models.Campaign, error) {
	template, err := tf.CreateTestTemplate(businessID)
	if err != nil {
		return nil, err
	}
	campaign := &models.Campaign{
		BusinessID: businessID,
		Name:       gofakeit.Company() + " campaign",
		TemplateID: &template.ID,
		Status:     models.CampaignStatusReady,
	}
	if err := tf.DB.DB.Create(campaign).Error; err != nil {
		return nil, fmt.Errorf("failed to create test campaign: %w", err)
	}
	campaign.Template = template
	return campaign, nil
}

// CreateTestRecipient creates a pending recipient of campaign
func (tf *TestFixtures) CreateTestRecipient(campaign *models.Campaign, phone string) (*models.MaterializedRecipient, error) {
	params := []string{gofakeit.FirstName()}
	recipient := &models.MaterializedRecipient{
		BusinessID:     campaign.BusinessID,
		CampaignID:     campaign.ID,
		TemplateID:     *campaign.TemplateID,
		Phone:          phone,
		ResolvedParams: params,
		IdempotencyKey: fmt.Sprintf("%d:%s", campaign.ID, phone),
		MaterializedAt: utils.UTCNow(),
		Status:         models.RecipientStatusPending,
	}
	if err := tf.DB.DB.Create(recipient).Error; err != nil {
		return nil, fmt.Errorf("failed to create test recipient: %w", err)
	}
	return recipient, nil
}

// CreateTestJob creates a queued job due at next
func (tf *TestFixtures) CreateTestJob(campaign *models.Campaign, next time.Time) (*models.OutboundCampaignJob, error) {
	job := &models.OutboundCampaignJob{
		BusinessID:    campaign.BusinessID,
		CampaignID:    campaign.ID,
		Status:        models.OutboundJobStatusQueued,
		MaxAttempts:   5,
		NextAttemptAt: next,
	}
	if err := tf.DB.DB.Create(job).Error; err != nil {
		return nil, fmt.Errorf("failed to create test job: %w", err)
	}
	return job, nil
}

// CreateTestMessageLog creates a sending log for recipient
func (tf *TestFixtures) CreateTestMessageLog(recipient *models.MaterializedRecipient) (*models.MessageLog, error) {
	entry := &models.MessageLog{
		BusinessID:  recipient.BusinessID,
		CampaignID:  recipient.CampaignID,
		RecipientID: recipient.ID,
		Phone:       recipient.Phone,
		Status:      models.MessageLogStatusSending,
		Provider:    utils.ProviderWhatsApp,
	}
	if err := tf.DB.DB.Create(entry).Error; err != nil {
		return nil, fmt.Errorf("failed to create test message log: %w", err)
	}
	return entry, nil
}
