// Package scheduler runs the comment responder on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/robfig/cron/v3"

	"github.com/merezhko/pagebot/internal/responder"
)

// RunFunc executes one responder pass.
type RunFunc func(ctx context.Context, opts responder.Options) (responder.Summary, error)

type Scheduler struct {
	cron   *cron.Cron
	run    RunFunc
	spec   string
	logger *slog.Logger
	busy   atomic.Bool
}

// New builds a scheduler for the given cron spec. The spec uses the
// standard five-field format.
func New(spec string, run RunFunc) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		run:    run,
		spec:   spec,
		logger: slog.Default(),
	}
}

// Start registers the job and starts the cron loop. Returns an error if
// the spec does not parse.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		s.tick(ctx)
	})
	if err != nil {
		return fmt.Errorf("parsing cron spec %q: %w", s.spec, err)
	}
	s.cron.Start()
	s.logger.Info("responder scheduled", "cron", s.spec)
	return nil
}

// Stop stops the cron loop and waits for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

// tick runs one pass unless the previous one is still going. A run that
// outlives its interval must not stack a second run on top.
func (s *Scheduler) tick(ctx context.Context) {
	if !s.busy.CompareAndSwap(false, true) {
		s.logger.Warn("skipping scheduled run, previous run still in progress")
		return
	}
	defer s.busy.Store(false)

	sum, err := s.run(ctx, responder.Options{})
	if err != nil {
		s.logger.Error("scheduled respond run failed", "error", err)
		return
	}
	s.logger.Info("scheduled respond run finished", "replied", sum.RepliedCount)
}
