// Package scheduler drives periodic delegation passes.
package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"

	"github.com/aretw0/foreman/internal/observability"
	"github.com/aretw0/foreman/pkg/domain"
)

// DefaultInterval is the polling cadence when none is configured.
const DefaultInterval = 30 * time.Second

// Engine is the slice of the delegation engine the scheduler drives.
type Engine interface {
	ProcessDelegation(ctx context.Context) domain.EngineResult
}

// Scheduler ticks the engine on an interval. Passes are single-flight: a
// tick that fires while the previous pass is still running is skipped, not
// queued, so a slow store can never pile up concurrent delegations.
type Scheduler struct {
	engine   Engine
	interval time.Duration
	pool     pond.Pool
	metrics  *observability.Metrics
	logger   *slog.Logger

	inFlight atomic.Bool
}

// New creates a Scheduler. metrics may be nil.
func New(engine Engine, interval time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Scheduler{
		engine:   engine,
		interval: interval,
		pool:     pond.NewPool(1),
		metrics:  metrics,
		logger:   logger,
	}
}

// Run blocks until ctx is cancelled, firing one pass immediately and then
// one per interval. The in-flight pass finishes before Run returns.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler started", "interval", s.interval.String())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.pool.StopAndWait()
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.logger.Debug("previous pass still running, skipping tick")
		return
	}
	s.pool.Go(func() {
		defer s.inFlight.Store(false)

		start := time.Now()
		result := s.engine.ProcessDelegation(ctx)
		if s.metrics != nil {
			s.metrics.ObservePass("delegation", result, time.Since(start).Seconds())
		}

		switch result.Status {
		case domain.StatusSuccess:
			s.logger.Info("delegated work item", "work_item", result.WorkItemID, "action", result.Action)
		case domain.StatusNoCandidates, domain.StatusSkipped:
			s.logger.Debug("pass finished without delegation", "status", string(result.Status), "reason", result.Reason)
		default:
			s.logger.Warn("pass finished abnormally", "status", string(result.Status), "reason", result.Reason)
		}
	})
}
