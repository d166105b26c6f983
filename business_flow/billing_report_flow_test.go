package businessflow

import (
	"context"
	"testing"
	"time"

	"github.com/amirphl/Yamata-WABA/app/dto"
	"github.com/amirphl/Yamata-WABA/config"
	"github.com/amirphl/Yamata-WABA/models"
	"github.com/amirphl/Yamata-WABA/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pricingEvent struct {
	messageID, conversationID, category string
	chargeable                          *bool
	amount                              *float64
	at                                  time.Time
}

func (p pricingEvent) model() *models.ProviderBillingEvent {
	e := &models.ProviderBillingEvent{
		BusinessID:  1,
		Provider:    utils.ProviderWhatsApp,
		EventType:   models.BillingEventPricingUpdate,
		Chargeable:  p.chargeable,
		PriceAmount: p.amount,
		OccurredAt:  p.at,
	}
	if p.messageID != "" {
		e.ProviderMessageID = utils.ToPtr(p.messageID)
	}
	if p.conversationID != "" {
		e.ConversationID = utils.ToPtr(p.conversationID)
	}
	if p.category != "" {
		e.ConversationCategory = utils.ToPtr(p.category)
	}
	if p.amount != nil {
		e.PriceCurrency = utils.ToPtr("USD")
	}
	return e
}

func snapshotEvents(at time.Time) []*models.ProviderBillingEvent {
	yes, no := utils.ToPtr(true), utils.ToPtr(false)
	cent := utils.ToPtr(0.01)
	return []*models.ProviderBillingEvent{
		pricingEvent{messageID: "m1", conversationID: "c1", category: "utility", chargeable: yes, amount: cent, at: at}.model(),
		pricingEvent{messageID: "m1", conversationID: "c1", category: "utility", chargeable: yes, amount: cent, at: at.Add(time.Second)}.model(),
		pricingEvent{messageID: "m2", conversationID: "c1", chargeable: yes, amount: cent, at: at.Add(2 * time.Second)}.model(),
		pricingEvent{messageID: "m3", conversationID: "c2", category: "marketing", chargeable: no, at: at.Add(3 * time.Second)}.model(),
		pricingEvent{messageID: "m4", at: at.Add(4 * time.Second)}.model(),
		pricingEvent{messageID: "m5", conversationID: "c3", at: at.Add(5 * time.Second)}.model(),
	}
}

func TestBuildBillingSnapshot(t *testing.T) {
	snap := BuildBillingSnapshot(snapshotEvents(parseNow))

	assert.Equal(t, 5, snap.PricingEvents)
	assert.Equal(t, 1, snap.ChargeableWindows)
	assert.Equal(t, 1, snap.FreeWindows)
	assert.Equal(t, map[string]int{"utility": 1, "marketing": 1, "unknown": 1}, snap.Categories)
	assert.Equal(t, map[string]float64{"USD": 0.01}, snap.SpendByCurrency)
}

func TestBuildBillingSnapshot_Empty(t *testing.T) {
	snap := BuildBillingSnapshot(nil)
	assert.Zero(t, snap.PricingEvents)
	assert.NotNil(t, snap.Categories)
	assert.NotNil(t, snap.SpendByCurrency)
}

func TestGetSnapshot(t *testing.T) {
	ctx := context.Background()
	s := newMemStore()
	s.events = snapshotEvents(s.clock)
	s.events = append(s.events,
		&models.ProviderBillingEvent{BusinessID: 1, Provider: utils.ProviderWhatsApp, EventType: "delivered", OccurredAt: s.clock},
		pricingEvent{messageID: "late", conversationID: "c9", chargeable: utils.ToPtr(true), at: s.clock.Add(48 * time.Hour)}.model(),
	)
	seedSentLog(t, s)

	rc := newTestRedis(t)
	flow := NewBillingReportFlow(fakeEventRepo{s}, fakeLogRepo{s}, rc,
		config.CacheConfig{RedisPrefix: "waba:"}, config.BillingConfig{SnapshotTTL: time.Minute})

	from, to := DefaultSnapshotRange(s.clock, 1)
	req := &dto.BillingSnapshotRequest{BusinessID: 1, From: from, To: to}

	resp, err := flow.GetSnapshot(ctx, req)
	require.NoError(t, err)
	assert.False(t, resp.Cached)
	assert.Equal(t, int64(1), resp.MessageVolume)
	assert.Equal(t, 5, resp.PricingEvents)
	assert.Equal(t, 1, resp.ChargeableWindows)

	cached, err := flow.GetSnapshot(ctx, req)
	require.NoError(t, err)
	assert.True(t, cached.Cached)
	assert.Equal(t, resp.Categories, cached.Categories)
	assert.Equal(t, resp.MessageVolume, cached.MessageVolume)
}

func TestGetSnapshot_InvalidRange(t *testing.T) {
	s := newMemStore()
	flow := NewBillingReportFlow(fakeEventRepo{s}, fakeLogRepo{s}, nil, config.CacheConfig{}, config.BillingConfig{})

	_, err := flow.GetSnapshot(context.Background(), &dto.BillingSnapshotRequest{BusinessID: 1, From: s.clock, To: s.clock})
	assert.ErrorIs(t, err, ErrInvalidDateRange)
}

func TestDefaultSnapshotRange(t *testing.T) {
	now := time.Date(2025, 3, 10, 15, 4, 5, 0, time.UTC)
	from, to := DefaultSnapshotRange(now, 30)
	assert.Equal(t, time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC), to)
	assert.Equal(t, time.Date(2025, 2, 9, 0, 0, 0, 0, time.UTC), from)
}
