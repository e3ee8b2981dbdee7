package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/member-signups/internal/models"
	"github.com/noah-isme/member-signups/pkg/jobs"
)

type signupRunner interface {
	Compute(ctx context.Context, q SignupQuery) (*models.SignupResult, error)
}

type snapshotSink interface {
	Save(ctx context.Context, result *models.SignupResult) (*models.SignupSnapshot, error)
	Publish(ctx context.Context, result *models.SignupResult) error
}

// RefreshConfig tunes background recomputation.
type RefreshConfig struct {
	Workers    int
	MaxRetries int
	RetryDelay time.Duration
	// Persist also stores each refreshed list as a snapshot.
	Persist bool
}

// RefreshService recomputes signup lists in the background and publishes
// them. Failed runs are retried with backoff.
type RefreshService struct {
	signups signupRunner
	sink    snapshotSink
	metrics *MetricsService
	queue   *jobs.Queue[SignupQuery]
	cfg     RefreshConfig
	logger  *zap.Logger
}

// NewRefreshService constructs the service; call Start before Enqueue.
func NewRefreshService(signups signupRunner, sink snapshotSink, metrics *MetricsService, cfg RefreshConfig, logger *zap.Logger) *RefreshService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &RefreshService{signups: signups, sink: sink, metrics: metrics, cfg: cfg, logger: logger}
	s.queue = jobs.NewQueue[SignupQuery]("signup-refresh", s.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return s
}

// Start launches the workers.
func (s *RefreshService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop waits for in-flight refreshes to finish.
func (s *RefreshService) Stop() {
	s.queue.Stop()
}

// Enqueue schedules one refresh and returns its job id.
func (s *RefreshService) Enqueue(q SignupQuery) (string, error) {
	return s.queue.Enqueue(q)
}

// Schedule enqueues every query now and then once per interval until ctx ends.
func (s *RefreshService) Schedule(ctx context.Context, interval time.Duration, queries ...SignupQuery) {
	if interval <= 0 || len(queries) == 0 {
		return
	}
	enqueueAll := func() {
		for _, q := range queries {
			if _, err := s.Enqueue(q); err != nil {
				s.logger.Warn("scheduled refresh skipped", zap.String("event_code", q.MainEventCode), zap.Error(err))
			}
		}
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		enqueueAll()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				enqueueAll()
			}
		}
	}()
}

func (s *RefreshService) handle(ctx context.Context, job jobs.Job[SignupQuery]) error {
	log := s.logger.With(zap.String("job_id", job.ID), zap.String("event_code", job.Payload.MainEventCode))
	result, err := s.signups.Compute(ctx, job.Payload)
	if err != nil {
		return err
	}
	s.metrics.ObserveSignupRun(len(result.Signups))
	if s.cfg.Persist {
		if _, err := s.sink.Save(ctx, result); err != nil {
			return err
		}
	}
	if err := s.sink.Publish(ctx, result); err != nil {
		return err
	}
	log.Info("signups refreshed", zap.Int("members", len(result.Signups)), zap.Int("attempt", job.Attempt))
	return nil
}
