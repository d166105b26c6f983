package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/amirphl/Yamata-WABA/app/services"
	businessflow "github.com/amirphl/Yamata-WABA/business_flow"
	"github.com/amirphl/Yamata-WABA/config"
	"github.com/amirphl/Yamata-WABA/models"
	"github.com/robfig/cron/v3"
)

const defaultReaperSpec = "@every 30s"

// OutboundWorker claims queued jobs and runs them one at a time.
// It polls on an interval and also wakes on job-ready notifications.
type OutboundWorker struct {
	jobs     businessflow.OutboundJobFlow
	send     businessflow.CampaignSendFlow
	notifier services.JobNotifier
	cfg      config.QueueConfig
	logger   *log.Logger
	workerID string
	cron     *cron.Cron
}

func NewOutboundWorker(
	jobs businessflow.OutboundJobFlow,
	send businessflow.CampaignSendFlow,
	notifier services.JobNotifier,
	cfg config.QueueConfig,
	logger *log.Logger,
) *OutboundWorker {
	if logger == nil {
		logger = log.Default()
	}
	if notifier == nil {
		notifier = services.NoopJobNotifier{}
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.ReaperSpec == "" {
		cfg.ReaperSpec = defaultReaperSpec
	}

	workerID := cfg.WorkerID
	if workerID == "" {
		host, _ := os.Hostname()
		workerID = fmt.Sprintf("%s-%d", host, os.Getpid())
	}

	return &OutboundWorker{
		jobs:     jobs,
		send:     send,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		workerID: workerID,
		cron:     cron.New(),
	}
}

// WorkerID is the lease owner name of this worker
func (w *OutboundWorker) WorkerID() string { return w.workerID }

// Start launches the claim loop and the lease reaper; the returned function stops both and waits
func (w *OutboundWorker) Start(parent context.Context) (func(), error) {
	ctx, cancel := context.WithCancel(parent)

	if _, err := w.cron.AddFunc(w.cfg.ReaperSpec, func() { w.reap(ctx) }); err != nil {
		cancel()
		return nil, fmt.Errorf("invalid reaper schedule %q: %w", w.cfg.ReaperSpec, err)
	}

	wake, err := w.notifier.Subscribe(ctx)
	if err != nil {
		w.logger.Printf("worker: job notifications unavailable, polling only: %v", err)
		wake = nil
	}

	w.cron.Start()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.loop(ctx, wake)
	}()

	w.logger.Printf("worker: started id=%s poll=%s reaper=%q", w.workerID, w.cfg.PollInterval, w.cfg.ReaperSpec)

	return func() {
		cancel()
		<-w.cron.Stop().Done()
		wg.Wait()
		w.logger.Printf("worker: stopped id=%s", w.workerID)
	}, nil
}

func (w *OutboundWorker) loop(ctx context.Context, wake <-chan services.JobReadyMessage) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	w.drain(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-wake:
			if !ok {
				wake = nil
				continue
			}
			job, err := w.jobs.ClaimByID(ctx, msg.JobID, w.workerID)
			if err != nil {
				w.logger.Printf("worker: claim job id=%d failed: %v", msg.JobID, err)
				continue
			}
			if job != nil {
				w.run(ctx, job)
			}
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

// drain runs eligible jobs until none is left
func (w *OutboundWorker) drain(ctx context.Context) {
	for ctx.Err() == nil {
		job, err := w.jobs.Claim(ctx, w.workerID)
		if err != nil {
			w.logger.Printf("worker: claim failed: %v", err)
			return
		}
		if job == nil {
			return
		}
		w.run(ctx, job)
	}
}

func (w *OutboundWorker) run(ctx context.Context, job *models.OutboundCampaignJob) {
	w.logger.Printf("worker: running job uuid=%s campaign=%d attempt=%d/%d", job.UUID, job.CampaignID, job.Attempt, job.MaxAttempts)

	err := w.send.RunJob(ctx, job, w.workerID)
	switch {
	case err == nil:
		w.logger.Printf("worker: job uuid=%s succeeded", job.UUID)
	case errors.Is(err, businessflow.ErrJobLeaseLost):
		w.logger.Printf("worker: job uuid=%s lost its lease", job.UUID)
	default:
		w.logger.Printf("worker: job uuid=%s attempt %d failed: %v", job.UUID, job.Attempt, err)
	}
}

func (w *OutboundWorker) reap(ctx context.Context) {
	n, err := w.jobs.ReapExpiredLeases(ctx)
	if err != nil {
		w.logger.Printf("worker: reap expired leases failed: %v", err)
		return
	}
	if n > 0 {
		w.logger.Printf("worker: reaped %d expired leases", n)
	}
}
