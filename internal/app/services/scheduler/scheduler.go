// Package scheduler drives the drawing cadence: on every cron tick it
// closes the open sale window and settles the drawing.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/drawpool-labs/jackpot-engine/internal/app/domain/drawing"
	"github.com/drawpool-labs/jackpot-engine/internal/app/metrics"
	"github.com/drawpool-labs/jackpot-engine/internal/app/services/drawings"
	"github.com/drawpool-labs/jackpot-engine/internal/app/system"
	"github.com/drawpool-labs/jackpot-engine/pkg/logger"
)

// DefaultSpec runs drawings Wednesday and Saturday at midnight UTC.
const DefaultSpec = "CRON_TZ=UTC 0 0 * * 3,6"

// Engine is the slice of the drawing service the scheduler drives.
type Engine interface {
	CloseDrawing(ctx context.Context) (drawing.Drawing, error)
	Settle(ctx context.Context) (drawing.Drawing, error)
}

// Scheduler closes and settles the current drawing on a cron schedule.
// A failed cycle is retried on a short interval until it succeeds or
// the next scheduled tick overtakes it.
type Scheduler struct {
	engine   Engine
	spec     string
	schedule cron.Schedule
	retry    time.Duration
	log      *logger.Logger
	now      func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

var _ system.Service = (*Scheduler)(nil)

// New builds a scheduler from a standard five-field cron spec with an
// optional CRON_TZ prefix. A blank spec falls back to DefaultSpec.
func New(engine Engine, spec string, log *logger.Logger) (*Scheduler, error) {
	if log == nil {
		log = logger.NewDefault("scheduler")
	}
	spec = strings.TrimSpace(spec)
	if spec == "" {
		spec = DefaultSpec
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse drawing schedule %q: %w", spec, err)
	}
	return &Scheduler{
		engine:   engine,
		spec:     spec,
		schedule: schedule,
		retry:    5 * time.Minute,
		log:      log,
		now:      time.Now,
	}, nil
}

func (s *Scheduler) Name() string { return "drawing-scheduler" }

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		lastOK := true
		for {
			timer := time.NewTimer(s.nextWait(lastOK))
			select {
			case <-runCtx.Done():
				timer.Stop()
				return
			case <-timer.C:
				lastOK = s.runCycle(runCtx)
			}
		}
	}()

	s.log.WithField("schedule", s.spec).Info("drawing scheduler started")
	return nil
}

func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	return nil
}

// nextWait returns how long to sleep before the next cycle. After a
// failed cycle the retry interval applies unless the schedule fires
// sooner.
func (s *Scheduler) nextWait(lastOK bool) time.Duration {
	now := s.now()
	wait := s.schedule.Next(now).Sub(now)
	if !lastOK && s.retry < wait {
		wait = s.retry
	}
	if wait < 0 {
		wait = 0
	}
	return wait
}

func (s *Scheduler) runCycle(ctx context.Context) bool {
	start := time.Now()
	ok := s.cycle(ctx)
	metrics.RecordDrawingCycle(time.Since(start), ok)
	return ok
}

// cycle closes the sale window and settles the drawing. A drawing
// already past its sale window is settled anyway so a cycle that died
// between the two steps is finished by the next one.
func (s *Scheduler) cycle(ctx context.Context) bool {
	closed, err := s.engine.CloseDrawing(ctx)
	switch {
	case err == nil:
		s.log.WithField("drawing", closed.ID).
			WithField("tickets", closed.TicketsSold).
			Info("sales closed")
	case errors.Is(err, drawings.ErrHalted), errors.Is(err, drawings.ErrNoDrawing):
		s.log.WithError(err).Warn("drawing cycle skipped")
		return true
	case errors.Is(err, drawings.ErrSalesClosed):
		// Already closed; fall through and settle it.
	default:
		s.log.WithError(err).Error("close drawing failed")
		return false
	}

	settled, err := s.engine.Settle(ctx)
	if err != nil {
		s.log.WithError(err).Error("settle drawing failed")
		return false
	}

	s.log.WithField("drawing", settled.ID).
		WithField("prize_pool", settled.PrizePool).
		WithField("user_payout", settled.TotalUserPayout).
		Info("drawing cycle settled")
	return true
}
