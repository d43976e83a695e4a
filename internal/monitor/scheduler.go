package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"speedtest-exporter/internal/config"
	"speedtest-exporter/internal/logging"
	pkgerrors "speedtest-exporter/pkg/errors"
)

const jobName = "speedtest-measurement"

// SchedulerConfig holds scheduler configuration
type SchedulerConfig struct {
	Interval time.Duration
	// Mode is config.ScheduleAfterCompletion or config.ScheduleFixedRate.
	Mode string
	// StopTimeout bounds how long Stop waits for a running cycle.
	StopTimeout time.Duration
	// Clock drives the schedule; nil means the wall clock.
	Clock clockwork.Clock
}

// Scheduler runs measurement cycles on a fixed cadence
type Scheduler struct {
	scheduler gocron.Scheduler
	runner    *Runner
	logger    *zap.Logger
	config    SchedulerConfig

	mu      sync.Mutex
	running bool
	jobID   uuid.UUID
}

// NewScheduler creates a new measurement scheduler
func NewScheduler(runner *Runner, logger *zap.Logger, cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("%w: interval must be positive, got %s", pkgerrors.ErrConfigInvalid, cfg.Interval)
	}
	switch cfg.Mode {
	case "":
		cfg.Mode = config.ScheduleAfterCompletion
	case config.ScheduleAfterCompletion, config.ScheduleFixedRate:
	default:
		return nil, fmt.Errorf("%w: unknown schedule mode %q", pkgerrors.ErrConfigInvalid, cfg.Mode)
	}

	opts := []gocron.SchedulerOption{
		gocron.WithLogger(logging.GocronLogger(logger)),
	}
	if cfg.StopTimeout > 0 {
		opts = append(opts, gocron.WithStopTimeout(cfg.StopTimeout))
	}
	if cfg.Clock != nil {
		opts = append(opts, gocron.WithClock(cfg.Clock))
	}

	scheduler, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	return &Scheduler{
		scheduler: scheduler,
		runner:    runner,
		logger:    logger,
		config:    cfg,
	}, nil
}

// Start schedules the measurement job and runs the first cycle immediately.
// Cancelling ctx cancels the cycle in flight and stops further cycles.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return pkgerrors.ErrSchedulerRunning
	}

	jobOpts := []gocron.JobOption{
		gocron.WithName(jobName),
		gocron.WithContext(ctx),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		// Never overlap cycles; a tick that lands on a running cycle is dropped.
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithEventListeners(
			gocron.BeforeJobRuns(func(jobID uuid.UUID, name string) {
				s.logger.Debug("starting measurement cycle",
					zap.String("job", name), zap.Stringer("job_id", jobID))
			}),
			gocron.AfterJobRunsWithPanic(func(jobID uuid.UUID, name string, recoverData any) {
				s.logger.Error("measurement job panicked",
					zap.String("job", name), zap.Stringer("job_id", jobID), zap.Any("panic", recoverData))
			}),
		),
	}
	if s.config.Mode == config.ScheduleAfterCompletion {
		jobOpts = append(jobOpts, gocron.WithIntervalFromCompletion())
	}

	job, err := s.scheduler.NewJob(
		gocron.DurationJob(s.config.Interval),
		gocron.NewTask(func(ctx context.Context) {
			s.runner.RunCycle(ctx)
		}),
		jobOpts...,
	)
	if err != nil {
		return fmt.Errorf("failed to create measurement job: %w", err)
	}

	s.scheduler.Start()
	s.running = true
	s.jobID = job.ID()

	s.logger.Info("measurement scheduler started",
		zap.Duration("interval", s.config.Interval),
		zap.String("schedule", s.config.Mode))
	return nil
}

// Stop stops the scheduler, waiting up to the stop timeout for a running
// cycle. A stopped Scheduler cannot be started again.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return pkgerrors.ErrSchedulerNotRunning
	}

	if err := s.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("failed to stop scheduler: %w", err)
	}

	s.running = false
	return nil
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// JobID returns the identifier of the measurement job, or uuid.Nil before
// Start.
func (s *Scheduler) JobID() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobID
}

