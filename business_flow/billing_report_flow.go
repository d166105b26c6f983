package businessflow

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/amirphl/Yamata-WABA/app/dto"
	"github.com/amirphl/Yamata-WABA/config"
	"github.com/amirphl/Yamata-WABA/models"
	"github.com/amirphl/Yamata-WABA/repository"
	"github.com/amirphl/Yamata-WABA/utils"
	"github.com/redis/go-redis/v9"
)

const unknownCategory = "unknown"

// BillingReportFlow aggregates the billing ledger of a business
type BillingReportFlow interface {
	GetSnapshot(ctx context.Context, req *dto.BillingSnapshotRequest) (*dto.BillingSnapshotResponse, error)
}

// BillingReportFlowImpl implements the billing report business flow
type BillingReportFlowImpl struct {
	eventRepo  repository.ProviderBillingEventRepository
	logRepo    repository.MessageLogRepository
	rc         *redis.Client
	cacheCfg   config.CacheConfig
	billingCfg config.BillingConfig
}

// NewBillingReportFlow creates a new billing report flow instance; rc may be nil
func NewBillingReportFlow(
	eventRepo repository.ProviderBillingEventRepository,
	logRepo repository.MessageLogRepository,
	rc *redis.Client,
	cacheCfg config.CacheConfig,
	billingCfg config.BillingConfig,
) BillingReportFlow {
	return &BillingReportFlowImpl{
		eventRepo:  eventRepo,
		logRepo:    logRepo,
		rc:         rc,
		cacheCfg:   cacheCfg,
		billingCfg: billingCfg,
	}
}

// BillingSnapshot is the ledger aggregate of one range
type BillingSnapshot struct {
	PricingEvents     int
	ChargeableWindows int
	FreeWindows       int
	Categories        map[string]int
	SpendByCurrency   map[string]float64
}

type conversationWindow struct {
	chargeable bool
	seenFree   bool
	category   string
	amount     *float64
	currency   string
}

// BuildBillingSnapshot aggregates pricing events given in occurred_at order.
// Duplicate (provider, message id, type) rows are dropped, keeping the first.
func BuildBillingSnapshot(events []*models.ProviderBillingEvent) BillingSnapshot {
	type dedupKey struct {
		provider, messageID, eventType string
	}
	seen := make(map[dedupKey]bool)
	windows := make(map[string]*conversationWindow)
	var order []string

	snap := BillingSnapshot{
		Categories:      map[string]int{},
		SpendByCurrency: map[string]float64{},
	}

	for _, e := range events {
		if e.ProviderMessageID != nil && *e.ProviderMessageID != "" {
			k := dedupKey{e.Provider, *e.ProviderMessageID, e.EventType}
			if seen[k] {
				continue
			}
			seen[k] = true
		}
		snap.PricingEvents++

		if e.ConversationID == nil || *e.ConversationID == "" {
			continue
		}
		w, ok := windows[*e.ConversationID]
		if !ok {
			w = &conversationWindow{}
			windows[*e.ConversationID] = w
			order = append(order, *e.ConversationID)
		}
		if w.category == "" && e.ConversationCategory != nil && *e.ConversationCategory != "" {
			w.category = *e.ConversationCategory
		}
		if e.Chargeable != nil {
			if *e.Chargeable {
				w.chargeable = true
			} else {
				w.seenFree = true
			}
		}
		if e.PriceAmount != nil && e.PriceCurrency != nil && *e.PriceCurrency != "" {
			w.amount = e.PriceAmount
			w.currency = *e.PriceCurrency
		}
	}

	for _, id := range order {
		w := windows[id]
		category := w.category
		if category == "" {
			category = unknownCategory
		}
		snap.Categories[category]++

		switch {
		case w.chargeable:
			snap.ChargeableWindows++
			if w.amount != nil {
				snap.SpendByCurrency[w.currency] += *w.amount
			}
		case w.seenFree:
			snap.FreeWindows++
		}
	}

	for cur, v := range snap.SpendByCurrency {
		snap.SpendByCurrency[cur] = math.Round(v*1e6) / 1e6
	}
	return snap
}

// GetSnapshot aggregates [From, To). Results are cached for the configured TTL.
func (f *BillingReportFlowImpl) GetSnapshot(ctx context.Context, req *dto.BillingSnapshotRequest) (*dto.BillingSnapshotResponse, error) {
	from, to := req.From.UTC(), req.To.UTC()
	if from.IsZero() || to.IsZero() || !from.Before(to) {
		return nil, NewBusinessError("INVALID_DATE_RANGE", "from must be before to", ErrInvalidDateRange)
	}

	key := redisKey(f.cacheCfg, fmt.Sprintf(utils.BillingSnapshotCacheKey, req.BusinessID, from.Unix(), to.Unix()))
	if cached := f.cached(ctx, key); cached != nil {
		return cached, nil
	}

	eventType := models.BillingEventPricingUpdate
	provider := utils.ProviderWhatsApp
	events, err := f.eventRepo.ListByFilter(ctx, models.ProviderBillingEventFilter{
		BusinessID:     &req.BusinessID,
		Provider:       &provider,
		EventType:      &eventType,
		OccurredAfter:  &from,
		OccurredBefore: &to,
	})
	if err != nil {
		return nil, NewBusinessError("BILLING_EVENTS_LOOKUP_FAILED", "Failed to read billing events", err)
	}

	volume, err := f.logRepo.CountByRange(ctx, req.BusinessID, from, to)
	if err != nil {
		return nil, NewBusinessError("MESSAGE_VOLUME_LOOKUP_FAILED", "Failed to count messages", err)
	}

	snap := BuildBillingSnapshot(events)
	resp := &dto.BillingSnapshotResponse{
		From:              from,
		To:                to,
		MessageVolume:     volume,
		PricingEvents:     snap.PricingEvents,
		ChargeableWindows: snap.ChargeableWindows,
		FreeWindows:       snap.FreeWindows,
		Categories:        snap.Categories,
		SpendByCurrency:   snap.SpendByCurrency,
	}

	f.store(ctx, key, resp)
	return resp, nil
}

func (f *BillingReportFlowImpl) cached(ctx context.Context, key string) *dto.BillingSnapshotResponse {
	if f.rc == nil {
		return nil
	}
	raw, err := f.rc.Get(ctx, key).Bytes()
	if err != nil {
		return nil
	}
	var resp dto.BillingSnapshotResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil
	}
	resp.Cached = true
	return &resp
}

func (f *BillingReportFlowImpl) store(ctx context.Context, key string, resp *dto.BillingSnapshotResponse) {
	if f.rc == nil || f.billingCfg.SnapshotTTL <= 0 {
		return
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return
	}
	_ = f.rc.Set(ctx, key, raw, f.billingCfg.SnapshotTTL).Err()
}

// DefaultSnapshotRange covers the last days whole UTC days, today included
func DefaultSnapshotRange(now time.Time, days int) (time.Time, time.Time) {
	to := utils.StartOfUTCDay(now).Add(24 * time.Hour)
	return to.AddDate(0, 0, -days), to
}
