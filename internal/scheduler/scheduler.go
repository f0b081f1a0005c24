// Package scheduler drives the periodic reconciliation sweep. State
// transitions happen on this timer, never as a side effect of reads.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/porteria/visitor-access/internal/service"
	"github.com/porteria/visitor-access/pkg/logger"
)

type Scheduler struct {
	cron       *cron.Cron
	reconciler *service.Reconciler
	interval   time.Duration
}

func New(reconciler *service.Reconciler, interval time.Duration) *Scheduler {
	return &Scheduler{
		cron:       cron.New(),
		reconciler: reconciler,
		interval:   interval,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	spec := fmt.Sprintf("@every %s", s.interval)
	_, err := s.cron.AddFunc(spec, func() {
		s.reconciler.RunSweep(ctx, time.Now())
	})
	if err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	s.cron.Start()
	logger.Info("Reconciliation scheduler started", "interval", s.interval.String())

	// Catch anything that came due while the service was down.
	go s.reconciler.RunSweep(ctx, time.Now())

	return nil
}

// Stop halts scheduling and waits for an in-flight sweep to finish.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	logger.Info("Reconciliation scheduler stopped")
}
