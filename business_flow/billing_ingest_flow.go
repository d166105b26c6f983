package businessflow

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/amirphl/Yamata-WABA/app/dto"
	"github.com/amirphl/Yamata-WABA/config"
	"github.com/amirphl/Yamata-WABA/models"
	"github.com/amirphl/Yamata-WABA/repository"
	"github.com/amirphl/Yamata-WABA/utils"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"
)

const signaturePrefix = "sha256="

// BillingIngestFlow records provider webhooks in the billing ledger and
// projects them onto message logs and recipients
type BillingIngestFlow interface {
	VerifySubscription(ctx context.Context, req *dto.WebhookVerifyRequest) (string, error)
	IngestWebhook(ctx context.Context, req *dto.WebhookIngestRequest) (*dto.IngestResult, error)
	IngestSendResponse(ctx context.Context, businessID uint, body []byte) (*dto.IngestResult, error)
}

// BillingIngestFlowImpl implements the billing ingest business flow
type BillingIngestFlowImpl struct {
	eventRepo     repository.ProviderBillingEventRepository
	logRepo       repository.MessageLogRepository
	recipientRepo repository.MaterializedRecipientRepository
	tx            repository.Transactor
	rc            *redis.Client
	cacheCfg      config.CacheConfig
	waCfg         config.WhatsAppConfig
	now           func() time.Time
}

// NewBillingIngestFlow creates a new billing ingest flow instance; rc may be nil
func NewBillingIngestFlow(
	eventRepo repository.ProviderBillingEventRepository,
	logRepo repository.MessageLogRepository,
	recipientRepo repository.MaterializedRecipientRepository,
	tx repository.Transactor,
	rc *redis.Client,
	cacheCfg config.CacheConfig,
	waCfg config.WhatsAppConfig,
) BillingIngestFlow {
	return &BillingIngestFlowImpl{
		eventRepo:     eventRepo,
		logRepo:       logRepo,
		recipientRepo: recipientRepo,
		tx:            tx,
		rc:            rc,
		cacheCfg:      cacheCfg,
		waCfg:         waCfg,
		now:           utils.UTCNow,
	}
}

// VerifySubscription answers the provider's GET challenge
func (f *BillingIngestFlowImpl) VerifySubscription(ctx context.Context, req *dto.WebhookVerifyRequest) (string, error) {
	if req.Mode != "subscribe" || f.waCfg.VerifyToken == "" ||
		!hmac.Equal([]byte(req.VerifyToken), []byte(f.waCfg.VerifyToken)) {
		return "", NewBusinessError("WEBHOOK_VERIFICATION_FAILED", "Webhook verification failed", ErrWebhookVerificationFailed)
	}
	return req.Challenge, nil
}

// VerifySignature checks X-Hub-Signature-256 when an app secret is configured
func VerifySignature(secret string, body []byte, header string) error {
	if secret == "" {
		return nil
	}
	sig, ok := strings.CutPrefix(strings.TrimSpace(header), signaturePrefix)
	if !ok {
		return ErrInvalidWebhookSignature
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return ErrInvalidWebhookSignature
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrInvalidWebhookSignature
	}
	return nil
}

// IngestWebhook is idempotent per payload. A payload is marked as seen in Redis only after
// its events are committed, so a redelivery racing a failed attempt is still ingested.
// The ledger's own dedup decides for everything else.
func (f *BillingIngestFlowImpl) IngestWebhook(ctx context.Context, req *dto.WebhookIngestRequest) (*dto.IngestResult, error) {
	if err := VerifySignature(f.waCfg.AppSecret, req.Payload, req.Signature); err != nil {
		return nil, NewBusinessError("INVALID_WEBHOOK_SIGNATURE", "Invalid webhook signature", err)
	}

	marker := f.replayKey(req.BusinessID, req.Payload)
	if f.rc != nil {
		seen, err := f.rc.Exists(ctx, marker).Result()
		if err == nil && seen > 0 {
			return &dto.IngestResult{Replay: true}, nil
		}
	}

	result, err := f.ingest(ctx, req.BusinessID, ParseWebhookPayload(req.Payload, f.now()))
	if err != nil {
		return nil, NewBusinessError("WEBHOOK_INGEST_FAILED", "Failed to ingest webhook", err)
	}

	if f.rc != nil {
		if err := f.rc.Set(context.WithoutCancel(ctx), marker, 1, utils.WebhookReplayTTL).Err(); err != nil {
			log.Printf("failed to mark webhook payload of business %d as seen: %v", req.BusinessID, err)
		}
	}
	return result, nil
}

// IngestSendResponse records the provider's synchronous answer to a send
func (f *BillingIngestFlowImpl) IngestSendResponse(ctx context.Context, businessID uint, body []byte) (*dto.IngestResult, error) {
	result, err := f.ingest(ctx, businessID, ParseSendResponse(body, f.now()))
	if err != nil {
		return nil, NewBusinessError("SEND_RESPONSE_INGEST_FAILED", "Failed to ingest send response", err)
	}
	return result, nil
}

func (f *BillingIngestFlowImpl) replayKey(businessID uint, payload []byte) string {
	sum := blake2b.Sum256(payload)
	return redisKey(f.cacheCfg, fmt.Sprintf(utils.WebhookReplayKey, businessID, hex.EncodeToString(sum[:])))
}

func (f *BillingIngestFlowImpl) ingest(ctx context.Context, businessID uint, events []ParsedBillingEvent) (*dto.IngestResult, error) {
	result := &dto.IngestResult{Parsed: len(events)}
	for i := range events {
		ev := &events[i]
		err := f.tx.Do(ctx, func(txCtx context.Context) error {
			exists, err := f.eventRepo.Exists(txCtx, businessID, utils.ProviderWhatsApp, ev.EventType, ev.ProviderMessageID, ev.ConversationID)
			if err != nil {
				return err
			}
			if exists {
				result.Duplicates++
				billingEventsIngested.WithLabelValues(ev.EventType, "duplicate").Inc()
				return nil
			}

			row := &models.ProviderBillingEvent{
				BusinessID:           businessID,
				Provider:             utils.ProviderWhatsApp,
				EventType:            ev.EventType,
				ProviderMessageID:    ev.ProviderMessageID,
				ConversationID:       ev.ConversationID,
				ConversationCategory: ev.ConversationCategory,
				ConversationExpireAt: ev.ConversationExpireAt,
				Chargeable:           ev.Chargeable,
				PriceAmount:          ev.PriceAmount,
				PriceCurrency:        ev.PriceCurrency,
				RawPayload:           ev.Raw,
				OccurredAt:           ev.OccurredAt,
			}
			inserted, err := f.eventRepo.Insert(txCtx, row)
			if err != nil {
				return err
			}
			if !inserted {
				// lost a race on the partial unique index
				result.Duplicates++
				billingEventsIngested.WithLabelValues(ev.EventType, "duplicate").Inc()
				return nil
			}
			result.Inserted++
			billingEventsIngested.WithLabelValues(ev.EventType, "inserted").Inc()

			linked, err := f.project(txCtx, businessID, ev)
			if err != nil {
				return err
			}
			if linked {
				result.Linked++
			} else {
				result.Unmatched++
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

// project copies billing fields and advances delivery status on the linked message log
func (f *BillingIngestFlowImpl) project(ctx context.Context, businessID uint, ev *ParsedBillingEvent) (bool, error) {
	var (
		entry *models.MessageLog
		err   error
	)
	if ev.ProviderMessageID != nil {
		entry, err = f.logRepo.ByProviderMessageID(ctx, businessID, *ev.ProviderMessageID)
		if err != nil {
			return false, err
		}
	}
	if entry == nil && ev.ConversationID != nil {
		entry, err = f.logRepo.LatestByConversationID(ctx, businessID, *ev.ConversationID)
		if err != nil {
			return false, err
		}
	}
	if entry == nil {
		billingProjections.WithLabelValues("unmatched").Inc()
		return false, nil
	}

	if ev.HasBilling() {
		p := repository.BillingProjection{
			ConversationID:       ev.ConversationID,
			ConversationCategory: ev.ConversationCategory,
			Chargeable:           ev.Chargeable,
			PriceAmount:          ev.PriceAmount,
			PriceCurrency:        ev.PriceCurrency,
			EventAt:              ev.OccurredAt,
		}
		if ev.ConversationID != nil && entry.ConversationStartedAt == nil {
			p.ConversationStartedAt = &ev.OccurredAt
		}
		applied, err := f.logRepo.ApplyBilling(ctx, entry.ID, p)
		if err != nil {
			return false, err
		}
		if applied {
			billingProjections.WithLabelValues("linked").Inc()
		} else {
			billingProjections.WithLabelValues("stale").Inc()
		}
	}

	if next, ok := models.ParseMessageLogStatus(ev.EventType); ok && entry.Status.CanAdvanceTo(next) {
		advanced, err := f.logRepo.AdvanceStatus(ctx, entry.ID, entry.Status, next)
		if err != nil {
			return false, err
		}
		if rs, ok := next.RecipientStatus(); advanced && ok {
			if err := f.recipientRepo.UpdateStatus(ctx, entry.RecipientID, rs); err != nil {
				return false, err
			}
		}
	}
	return true, nil
}
