// Package sweeper resumes delayed workflows whose delay ran out. It is the
// active counterpart of the passive expiry check performed when a delayed
// workflow is touched: workflows nobody touches still resume on time.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/procwise/procwise/pkg/workflow"
)

// DefaultSchedule checks for expired delays once a minute.
const DefaultSchedule = "* * * * *"

type Sweeper struct {
	executor *workflow.Executor
	logger   *slog.Logger
	schedule string
	cron     *cron.Cron
}

func NewSweeper(executor *workflow.Executor, schedule string, logger *slog.Logger) (*Sweeper, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}

	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Sweeper{
		executor: executor,
		logger:   logger.With("module", "sweeper"),
		schedule: schedule,
	}, nil
}

// Start runs an immediate sweep to catch delays that expired while the
// process was down, then sweeps on the configured schedule until the context
// is cancelled.
func (s *Sweeper) Start(ctx context.Context) error {
	s.logger.Info("starting delay sweeper", "schedule", s.schedule)

	s.Sweep(ctx)

	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	if _, err := s.cron.AddFunc(s.schedule, func() {
		s.Sweep(ctx)
	}); err != nil {
		return fmt.Errorf("failed to register sweep job: %w", err)
	}

	s.cron.Start()

	return nil
}

// Sweep resumes every delayed workflow whose delay has run out.
func (s *Sweeper) Sweep(ctx context.Context) {
	resumed, err := s.executor.ResumeExpired(ctx)
	if err != nil {
		s.logger.Error("delay sweep failed", "error", err)

		return
	}

	if resumed > 0 {
		s.logger.Info("resumed expired delays", "count", resumed)
	}
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}

	s.logger.Info("delay sweeper stopped")
}
