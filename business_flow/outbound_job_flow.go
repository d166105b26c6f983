package businessflow

import (
	"context"
	"fmt"
	"time"

	"github.com/amirphl/Yamata-WABA/app/dto"
	"github.com/amirphl/Yamata-WABA/app/services"
	"github.com/amirphl/Yamata-WABA/config"
	"github.com/amirphl/Yamata-WABA/models"
	"github.com/amirphl/Yamata-WABA/repository"
	"github.com/amirphl/Yamata-WABA/utils"
	"github.com/google/uuid"
)

const (
	leaseExpiredError = "lease expired"
	reapBatchSize     = 100
)

// OutboundJobFlow drives the durable send queue.
// Operator actions are tenant scoped; worker actions act on claimed jobs.
type OutboundJobFlow interface {
	Enqueue(ctx context.Context, req *dto.EnqueueOutboundJobRequest, metadata *ClientMetadata) (*dto.EnqueueOutboundJobResponse, error)
	ListJobs(ctx context.Context, req *dto.ListOutboundJobsRequest) (*dto.ListOutboundJobsResponse, error)
	GetJob(ctx context.Context, req *dto.OutboundJobActionRequest) (*dto.OutboundJobResponse, error)
	ForceRetryNow(ctx context.Context, req *dto.OutboundJobActionRequest, metadata *ClientMetadata) (*dto.OutboundJobResponse, error)
	Cancel(ctx context.Context, req *dto.OutboundJobActionRequest, metadata *ClientMetadata) (*dto.OutboundJobResponse, error)

	Claim(ctx context.Context, workerID string) (*models.OutboundCampaignJob, error)
	ClaimByID(ctx context.Context, jobID uint, workerID string) (*models.OutboundCampaignJob, error)
	Heartbeat(ctx context.Context, job *models.OutboundCampaignJob, workerID string) (bool, error)
	ReportSuccess(ctx context.Context, job *models.OutboundCampaignJob) (bool, error)
	ReportFailure(ctx context.Context, job *models.OutboundCampaignJob, cause error) (bool, error)
	ReapExpiredLeases(ctx context.Context) (int, error)
}

// OutboundJobFlowImpl implements the outbound job business flow
type OutboundJobFlowImpl struct {
	campaignRepo repository.CampaignRepository
	jobRepo      repository.OutboundCampaignJobRepository
	auditRepo    repository.AuditLogRepository
	tx           repository.Transactor
	notifier     services.JobNotifier
	cfg          config.QueueConfig
	now          func() time.Time
}

// NewOutboundJobFlow creates a new outbound job flow instance
func NewOutboundJobFlow(
	campaignRepo repository.CampaignRepository,
	jobRepo repository.OutboundCampaignJobRepository,
	auditRepo repository.AuditLogRepository,
	tx repository.Transactor,
	notifier services.JobNotifier,
	cfg config.QueueConfig,
) OutboundJobFlow {
	if notifier == nil {
		notifier = services.NoopJobNotifier{}
	}
	return &OutboundJobFlowImpl{
		campaignRepo: campaignRepo,
		jobRepo:      jobRepo,
		auditRepo:    auditRepo,
		tx:           tx,
		notifier:     notifier,
		cfg:          cfg,
		now:          utils.UTCNow,
	}
}

// Backoff returns min(base*2^(attempt-1), ceiling)
func Backoff(attempt int, base, ceiling time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		if d >= ceiling/2 {
			return ceiling
		}
		d *= 2
	}
	return min(d, ceiling)
}

// Enqueue creates a queued job unless the campaign already has an active one.
// The campaign row lock serializes concurrent enqueues.
func (f *OutboundJobFlowImpl) Enqueue(ctx context.Context, req *dto.EnqueueOutboundJobRequest, metadata *ClientMetadata) (*dto.EnqueueOutboundJobResponse, error) {
	var job *models.OutboundCampaignJob
	created := false

	err := f.tx.Do(ctx, func(txCtx context.Context) error {
		campaign, err := f.campaignRepo.LockByID(txCtx, req.CampaignID)
		if err != nil {
			return err
		}
		if campaign == nil || campaign.BusinessID != req.BusinessID {
			return ErrCampaignNotFound
		}
		if campaign.Status == models.CampaignStatusCanceled {
			return fmt.Errorf("%w: campaign is canceled", ErrInvalidJobTransition)
		}

		if !req.ForceDuplicate {
			active, err := f.jobRepo.ActiveByCampaign(txCtx, campaign.ID)
			if err != nil {
				return err
			}
			if active != nil {
				job = active
				return nil
			}
		}

		job = &models.OutboundCampaignJob{
			BusinessID:    campaign.BusinessID,
			CampaignID:    campaign.ID,
			Status:        models.OutboundJobStatusQueued,
			MaxAttempts:   f.cfg.MaxAttempts,
			NextAttemptAt: f.now(),
		}
		if err := f.jobRepo.Save(txCtx, job); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		switch {
		case IsCampaignNotFound(err):
			return nil, NewBusinessError("CAMPAIGN_NOT_FOUND", "Campaign not found", err)
		case IsInvalidJobTransition(err):
			return nil, NewBusinessError("CAMPAIGN_NOT_SENDABLE", "Campaign cannot be enqueued", err)
		}
		errMsg := fmt.Sprintf("Enqueue failed for campaign %d: %s", req.CampaignID, err.Error())
		_ = createAuditLog(ctx, f.auditRepo, req.BusinessID, models.AuditActionOutboundJobEnqueued, errMsg, false, &errMsg, metadata)
		return nil, NewBusinessError("JOB_ENQUEUE_FAILED", "Failed to enqueue outbound job", err)
	}

	if created {
		outboundJobTransitions.WithLabelValues(string(models.OutboundJobStatusQueued)).Inc()
		f.notify(ctx, job)

		msg := fmt.Sprintf("Outbound job %s enqueued for campaign %d", job.UUID, job.CampaignID)
		_ = createAuditLog(ctx, f.auditRepo, req.BusinessID, models.AuditActionOutboundJobEnqueued, msg, true, nil, metadata)
	}

	return &dto.EnqueueOutboundJobResponse{Job: toJobResponse(job), Created: created}, nil
}

func (f *OutboundJobFlowImpl) ListJobs(ctx context.Context, req *dto.ListOutboundJobsRequest) (*dto.ListOutboundJobsResponse, error) {
	if _, err := loadCampaign(ctx, f.campaignRepo, req.BusinessID, req.CampaignID); err != nil {
		return nil, err
	}

	jobs, err := f.jobRepo.ListByCampaign(ctx, req.CampaignID)
	if err != nil {
		return nil, NewBusinessError("JOB_LIST_FAILED", "Failed to list outbound jobs", err)
	}

	items := make([]dto.OutboundJobResponse, 0, len(jobs))
	for _, j := range jobs {
		items = append(items, toJobResponse(j))
	}
	return &dto.ListOutboundJobsResponse{Items: items}, nil
}

func (f *OutboundJobFlowImpl) GetJob(ctx context.Context, req *dto.OutboundJobActionRequest) (*dto.OutboundJobResponse, error) {
	job, err := f.loadJob(ctx, req)
	if err != nil {
		return nil, err
	}
	resp := toJobResponse(job)
	return &resp, nil
}

// ForceRetryNow makes a queued job claimable immediately.
// A failed job has used all its attempts and stays failed; a fresh Enqueue of its campaign
// picks up the recipients still pending.
func (f *OutboundJobFlowImpl) ForceRetryNow(ctx context.Context, req *dto.OutboundJobActionRequest, metadata *ClientMetadata) (*dto.OutboundJobResponse, error) {
	job, err := f.loadJob(ctx, req)
	if err != nil {
		return nil, err
	}

	now := f.now()
	ok, err := f.jobRepo.Transition(ctx, job.ID, repository.OutboundJobTransition{
		From:          []models.OutboundJobStatus{models.OutboundJobStatusQueued},
		To:            models.OutboundJobStatusQueued,
		NextAttemptAt: &now,
	})
	if err != nil {
		return nil, NewBusinessError("JOB_RETRY_FAILED", "Failed to retry outbound job", err)
	}
	if !ok {
		return nil, NewBusinessErrorf("JOB_NOT_QUEUED", "Job %s is not queued", ErrInvalidJobTransition, job.UUID)
	}

	job, err = f.reload(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	f.notify(ctx, job)

	msg := fmt.Sprintf("Outbound job %s retry forced", job.UUID)
	_ = createAuditLog(ctx, f.auditRepo, req.BusinessID, models.AuditActionOutboundJobRetryForced, msg, true, nil, metadata)

	resp := toJobResponse(job)
	return &resp, nil
}

// Cancel stops a queued or running job. An in-flight attempt is not interrupted,
// but its report no longer matches and is dropped.
func (f *OutboundJobFlowImpl) Cancel(ctx context.Context, req *dto.OutboundJobActionRequest, metadata *ClientMetadata) (*dto.OutboundJobResponse, error) {
	job, err := f.loadJob(ctx, req)
	if err != nil {
		return nil, err
	}

	now := f.now()
	ok, err := f.jobRepo.Transition(ctx, job.ID, repository.OutboundJobTransition{
		From:       []models.OutboundJobStatus{models.OutboundJobStatusQueued, models.OutboundJobStatusRunning},
		To:         models.OutboundJobStatusCanceled,
		ClearLease: true,
		CanceledAt: &now,
		FinishedAt: &now,
	})
	if err != nil {
		return nil, NewBusinessError("JOB_CANCEL_FAILED", "Failed to cancel outbound job", err)
	}
	if !ok {
		return nil, NewBusinessErrorf("JOB_NOT_CANCELABLE", "Job %s is already finished", ErrInvalidJobTransition, job.UUID)
	}
	outboundJobTransitions.WithLabelValues(string(models.OutboundJobStatusCanceled)).Inc()

	job, err = f.reload(ctx, job.ID)
	if err != nil {
		return nil, err
	}

	msg := fmt.Sprintf("Outbound job %s canceled", job.UUID)
	_ = createAuditLog(ctx, f.auditRepo, req.BusinessID, models.AuditActionOutboundJobCanceled, msg, true, nil, metadata)

	resp := toJobResponse(job)
	return &resp, nil
}

// Claim leases the next eligible job to workerID; nil when none is due
func (f *OutboundJobFlowImpl) Claim(ctx context.Context, workerID string) (*models.OutboundCampaignJob, error) {
	now := f.now()
	job, err := f.jobRepo.ClaimNext(ctx, workerID, now, now.Add(f.cfg.LeaseDuration))
	if err != nil {
		return nil, err
	}
	if job != nil {
		outboundJobTransitions.WithLabelValues(string(models.OutboundJobStatusRunning)).Inc()
	}
	return job, nil
}

func (f *OutboundJobFlowImpl) ClaimByID(ctx context.Context, jobID uint, workerID string) (*models.OutboundCampaignJob, error) {
	now := f.now()
	job, err := f.jobRepo.ClaimByID(ctx, jobID, workerID, now, now.Add(f.cfg.LeaseDuration))
	if err != nil {
		return nil, err
	}
	if job != nil {
		outboundJobTransitions.WithLabelValues(string(models.OutboundJobStatusRunning)).Inc()
	}
	return job, nil
}

// Heartbeat extends the lease; false means the job was canceled or reaped
func (f *OutboundJobFlowImpl) Heartbeat(ctx context.Context, job *models.OutboundCampaignJob, workerID string) (bool, error) {
	return f.jobRepo.ExtendLease(ctx, job.ID, workerID, f.now().Add(f.cfg.LeaseDuration))
}

// ReportSuccess finishes the attempt. It is a no-op unless job is still running at the same attempt.
func (f *OutboundJobFlowImpl) ReportSuccess(ctx context.Context, job *models.OutboundCampaignJob) (bool, error) {
	now := f.now()
	ok, err := f.jobRepo.Transition(ctx, job.ID, repository.OutboundJobTransition{
		From:       []models.OutboundJobStatus{models.OutboundJobStatusRunning},
		Attempt:    &job.Attempt,
		To:         models.OutboundJobStatusSucceeded,
		ClearLease: true,
		FinishedAt: &now,
	})
	if err != nil {
		return false, err
	}
	if ok {
		outboundJobTransitions.WithLabelValues(string(models.OutboundJobStatusSucceeded)).Inc()
	}
	return ok, nil
}

// ReportFailure requeues with backoff while attempts remain, else fails the job
func (f *OutboundJobFlowImpl) ReportFailure(ctx context.Context, job *models.OutboundCampaignJob, cause error) (bool, error) {
	reason := "unknown error"
	if cause != nil {
		reason = cause.Error()
	}
	return f.fail(ctx, job, reason)
}

func (f *OutboundJobFlowImpl) fail(ctx context.Context, job *models.OutboundCampaignJob, reason string) (bool, error) {
	now := f.now()
	lastError := utils.Truncate(reason, utils.MaxLastErrorLength)
	t := repository.OutboundJobTransition{
		From:       []models.OutboundJobStatus{models.OutboundJobStatusRunning},
		Attempt:    &job.Attempt,
		LastError:  &lastError,
		ClearLease: true,
	}
	if job.Attempt < job.MaxAttempts {
		next := now.Add(Backoff(job.Attempt, f.cfg.BackoffBase, f.cfg.BackoffMax))
		t.To = models.OutboundJobStatusQueued
		t.NextAttemptAt = &next
	} else {
		t.To = models.OutboundJobStatusFailed
		t.FinishedAt = &now
	}

	ok, err := f.jobRepo.Transition(ctx, job.ID, t)
	if err != nil {
		return false, err
	}
	if ok {
		outboundJobTransitions.WithLabelValues(string(t.To)).Inc()
	}
	return ok, nil
}

// ReapExpiredLeases counts each expired lease as a failed attempt
func (f *OutboundJobFlowImpl) ReapExpiredLeases(ctx context.Context) (int, error) {
	jobs, err := f.jobRepo.ListExpiredLeases(ctx, f.now(), reapBatchSize)
	if err != nil {
		return 0, err
	}

	reaped := 0
	for _, job := range jobs {
		ok, err := f.fail(ctx, job, leaseExpiredError)
		if err != nil {
			return reaped, err
		}
		if ok {
			reaped++
		}
	}
	return reaped, nil
}

func (f *OutboundJobFlowImpl) loadJob(ctx context.Context, req *dto.OutboundJobActionRequest) (*models.OutboundCampaignJob, error) {
	id, err := uuid.Parse(req.JobUUID)
	if err != nil {
		return nil, NewBusinessError("JOB_NOT_FOUND", "Outbound job not found", ErrJobNotFound)
	}
	job, err := f.jobRepo.ByUUID(ctx, id)
	if err != nil {
		return nil, NewBusinessError("JOB_LOOKUP_FAILED", "Failed to lookup outbound job", err)
	}
	if job == nil || job.BusinessID != req.BusinessID {
		return nil, NewBusinessError("JOB_NOT_FOUND", "Outbound job not found", ErrJobNotFound)
	}
	return job, nil
}

func (f *OutboundJobFlowImpl) reload(ctx context.Context, id uint) (*models.OutboundCampaignJob, error) {
	job, err := f.jobRepo.ByID(ctx, id)
	if err != nil {
		return nil, NewBusinessError("JOB_LOOKUP_FAILED", "Failed to lookup outbound job", err)
	}
	if job == nil {
		return nil, NewBusinessError("JOB_NOT_FOUND", "Outbound job not found", ErrJobNotFound)
	}
	return job, nil
}

// notify is best effort; workers poll regardless
func (f *OutboundJobFlowImpl) notify(ctx context.Context, job *models.OutboundCampaignJob) {
	_ = f.notifier.NotifyJobReady(ctx, services.JobReadyMessage{JobID: job.ID, JobUUID: job.UUID.String()})
}

func toJobResponse(j *models.OutboundCampaignJob) dto.OutboundJobResponse {
	return dto.OutboundJobResponse{
		UUID:          j.UUID.String(),
		CampaignID:    j.CampaignID,
		Status:        string(j.Status),
		Attempt:       j.Attempt,
		MaxAttempts:   j.MaxAttempts,
		NextAttemptAt: j.NextAttemptAt,
		LastError:     j.LastError,
		LockedBy:      j.LockedBy,
		LockedUntil:   j.LockedUntil,
		StartedAt:     j.StartedAt,
		FinishedAt:    j.FinishedAt,
		CanceledAt:    j.CanceledAt,
		CreatedAt:     j.CreatedAt,
		UpdatedAt:     j.UpdatedAt,
	}
}
