package businessflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/amirphl/Yamata-WABA/app/services"
	"github.com/amirphl/Yamata-WABA/config"
	"github.com/amirphl/Yamata-WABA/models"
	"github.com/amirphl/Yamata-WABA/repository"
	"github.com/amirphl/Yamata-WABA/utils"
	"golang.org/x/time/rate"
)

const (
	unknownOutcomeError = models.UnknownOutcomeError
	defaultSendPageSize = 200
)

// CampaignSendFlow executes claimed outbound jobs
type CampaignSendFlow interface {
	// RunJob sends the pending recipients of a running job and reports the attempt.
	// ErrJobLeaseLost means the job was canceled or reaped meanwhile; nothing is reported then.
	RunJob(ctx context.Context, job *models.OutboundCampaignJob, workerID string) error
}

// CampaignSendFlowImpl implements the campaign send flow
type CampaignSendFlowImpl struct {
	campaignRepo  repository.CampaignRepository
	templateRepo  repository.MessageTemplateRepository
	recipientRepo repository.MaterializedRecipientRepository
	logRepo       repository.MessageLogRepository
	jobs          OutboundJobFlow
	billing       BillingIngestFlow
	sender        services.WhatsAppSender
	dispatchCfg   config.DispatchConfig
	queueCfg      config.QueueConfig
	now           func() time.Time
	sleep         func(ctx context.Context, d time.Duration) error
}

// NewCampaignSendFlow creates a new campaign send flow instance
func NewCampaignSendFlow(
	campaignRepo repository.CampaignRepository,
	templateRepo repository.MessageTemplateRepository,
	recipientRepo repository.MaterializedRecipientRepository,
	logRepo repository.MessageLogRepository,
	jobs OutboundJobFlow,
	billing BillingIngestFlow,
	sender services.WhatsAppSender,
	dispatchCfg config.DispatchConfig,
	queueCfg config.QueueConfig,
) CampaignSendFlow {
	return &CampaignSendFlowImpl{
		campaignRepo:  campaignRepo,
		templateRepo:  templateRepo,
		recipientRepo: recipientRepo,
		logRepo:       logRepo,
		jobs:          jobs,
		billing:       billing,
		sender:        sender,
		dispatchCfg:   dispatchCfg,
		queueCfg:      queueCfg,
		now:           utils.UTCNow,
		sleep:         sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (f *CampaignSendFlowImpl) RunJob(ctx context.Context, job *models.OutboundCampaignJob, workerID string) error {
	err := f.send(ctx, job, workerID)
	if errors.Is(err, ErrJobLeaseLost) {
		return err
	}

	// the attempt is reported even when ctx is done
	reportCtx := context.WithoutCancel(ctx)
	if err != nil {
		if _, rerr := f.jobs.ReportFailure(reportCtx, job, err); rerr != nil {
			return fmt.Errorf("failed to report job %d failure (%v): %w", job.ID, err, rerr)
		}
		return err
	}

	if _, err := f.jobs.ReportSuccess(reportCtx, job); err != nil {
		return fmt.Errorf("failed to report job %d success: %w", job.ID, err)
	}
	return nil
}

func (f *CampaignSendFlowImpl) send(ctx context.Context, job *models.OutboundCampaignJob, workerID string) error {
	campaign, err := f.campaignRepo.ByID(ctx, job.CampaignID)
	if err != nil {
		return err
	}
	if campaign == nil || campaign.BusinessID != job.BusinessID {
		return ErrCampaignNotFound
	}
	if campaign.TemplateID == nil {
		return ErrTemplateNotResolved
	}
	template, err := f.templateRepo.ByID(ctx, *campaign.TemplateID)
	if err != nil {
		return err
	}
	if template == nil {
		return ErrTemplateNotResolved
	}

	throttle := ThrottleFor(campaign, f.dispatchCfg)
	if err := throttle.Validate(); err != nil {
		return err
	}

	if err := f.resolveUnknownOutcomes(ctx, campaign.ID, job.ID); err != nil {
		return err
	}

	limiter := rate.NewLimiter(rate.Limit(float64(throttle.MaxPerMinute)/60), 1)
	heartbeatEvery := f.queueCfg.LeaseDuration / 3
	lastBeat := f.now()

	pageSize := f.queueCfg.SendBatchSize
	if pageSize <= 0 {
		pageSize = defaultSendPageSize
	}

	pending := models.RecipientStatusPending
	filter := models.MaterializedRecipientFilter{CampaignID: &campaign.ID, Status: &pending}

	var batchStart time.Time
	inBatch := 0
	for {
		page, err := f.recipientRepo.ListPage(ctx, filter, pageSize)
		if err != nil {
			return err
		}

		for _, r := range page {
			lastID := r.ID
			filter.AfterID = &lastID

			if inBatch == throttle.MaxBatchSize {
				gap := time.Duration(throttle.BatchGapSeconds(inBatch)) * time.Second
				if err := f.sleep(ctx, batchStart.Add(gap).Sub(f.now())); err != nil {
					return err
				}
				inBatch = 0
			}

			if heartbeatEvery > 0 && f.now().Sub(lastBeat) >= heartbeatEvery {
				ok, err := f.jobs.Heartbeat(ctx, job, workerID)
				if err != nil {
					return err
				}
				if !ok {
					return ErrJobLeaseLost
				}
				lastBeat = f.now()
			}

			if err := limiter.Wait(ctx); err != nil {
				return err
			}
			if inBatch == 0 {
				batchStart = f.now()
			}

			if err := f.sendOne(ctx, job, template, r); err != nil {
				return err
			}
			inBatch++
		}

		if len(page) < pageSize {
			return nil
		}
	}
}

// resolveUnknownOutcomes fails logs left in sending state by an interrupted attempt.
// They may have reached the provider, so they are never resent.
// Logs of another job still running under a live lease belong to that attempt and are left alone.
func (f *CampaignSendFlowImpl) resolveUnknownOutcomes(ctx context.Context, campaignID, jobID uint) error {
	logs, err := f.logRepo.ListUnresolved(ctx, campaignID, jobID, f.now())
	if err != nil {
		return err
	}
	for _, l := range logs {
		failed, err := f.logRepo.MarkFailed(ctx, l.ID, unknownOutcomeError)
		if err != nil {
			return err
		}
		if !failed {
			continue
		}
		if err := f.recipientRepo.UpdateStatus(ctx, l.RecipientID, models.RecipientStatusFailed); err != nil {
			return err
		}
		messagesSent.WithLabelValues("unknown").Inc()
	}
	return nil
}

func (f *CampaignSendFlowImpl) sendOne(ctx context.Context, job *models.OutboundCampaignJob, template *models.MessageTemplate, r *models.MaterializedRecipient) error {
	jobID := job.ID
	entry := &models.MessageLog{
		BusinessID:  r.BusinessID,
		CampaignID:  r.CampaignID,
		RecipientID: r.ID,
		JobID:       &jobID,
		Phone:       r.Phone,
		Status:      models.MessageLogStatusSending,
		Provider:    utils.ProviderWhatsApp,
	}
	created, err := f.logRepo.CreateSending(ctx, entry)
	if err != nil {
		return err
	}
	if !created {
		// another attempt already owns this recipient
		messagesSent.WithLabelValues("already_handled").Inc()
		return nil
	}

	res, sendErr := f.sender.SendTemplate(ctx, services.TemplateMessage{
		To:           r.Phone,
		TemplateName: template.Name,
		Language:     template.Language,
		HeaderParams: r.ResolvedHeaderParams,
		BodyParams:   r.ResolvedParams,
		ButtonParams: ButtonURLParams(template, r.ResolvedButtonURLs),
	})

	// the provider already decided; bookkeeping must not be cut short
	ctx = context.WithoutCancel(ctx)

	switch {
	case sendErr == nil:
		marked, err := f.logRepo.MarkSent(ctx, entry.ID, res.ProviderMessageID, f.now())
		if err != nil {
			return err
		}
		if !marked {
			log.Printf("message log %d of recipient %d was resolved elsewhere; provider message %s is not linked",
				entry.ID, r.ID, res.ProviderMessageID)
			messagesSent.WithLabelValues("unlinked").Inc()
			return nil
		}
		if err := f.recipientRepo.UpdateStatus(ctx, r.ID, models.RecipientStatusSent); err != nil {
			return err
		}
		messagesSent.WithLabelValues("sent").Inc()
		if _, err := f.billing.IngestSendResponse(ctx, r.BusinessID, res.RawResponse); err != nil {
			log.Printf("send response ingest failed for recipient %d: %v", r.ID, err)
		}
		return nil

	case errors.Is(sendErr, services.ErrSendRejected):
		messagesSent.WithLabelValues("rejected").Inc()
		return f.failRecipient(ctx, entry, sendErr.Error())

	case errors.Is(sendErr, services.ErrSendNotAccepted):
		if err := f.logRepo.DeleteSending(ctx, entry.ID); err != nil {
			return err
		}
		messagesSent.WithLabelValues("not_accepted").Inc()
		return sendErr

	default:
		messagesSent.WithLabelValues("unknown").Inc()
		if err := f.failRecipient(ctx, entry, unknownOutcomeError+": "+sendErr.Error()); err != nil {
			return err
		}
		return sendErr
	}
}

// failRecipient fails the log and, when that transition applied, its recipient
func (f *CampaignSendFlowImpl) failRecipient(ctx context.Context, entry *models.MessageLog, reason string) error {
	failed, err := f.logRepo.MarkFailed(ctx, entry.ID, reason)
	if err != nil || !failed {
		return err
	}
	return f.recipientRepo.UpdateStatus(ctx, entry.RecipientID, models.RecipientStatusFailed)
}

// ButtonURLParams recovers the placeholder value of each dynamic URL button from its resolved URL.
// Keys are 0-based button positions.
func ButtonURLParams(template *models.MessageTemplate, urls []string) map[int]string {
	out := make(map[int]string)
	for i, b := range template.Buttons {
		if i >= utils.MaxDynamicURLButtons {
			break
		}
		if !b.IsDynamicURL() || i >= len(urls) {
			continue
		}
		out[i] = urlParam(b.URL, urls[i])
	}
	return out
}

func urlParam(pattern, resolved string) string {
	at := strings.Index(pattern, models.URLPlaceholder)
	prefix := pattern[:at]
	suffix := pattern[at+len(models.URLPlaceholder):]
	if !strings.HasPrefix(resolved, prefix) {
		return resolved
	}
	rest := resolved[len(prefix):]
	if !strings.HasSuffix(rest, suffix) {
		return resolved
	}
	return rest[:len(rest)-len(suffix)]
}
