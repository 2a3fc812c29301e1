// Package scheduler drives deferred chat actions out of the persistent
// store on a one-second cadence.
package scheduler

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hrygo/hookbot/internal/metrics"
	"github.com/hrygo/hookbot/store"
	"github.com/hrygo/hookbot/worker"
)

// maxActionsPerTick bounds how many due rows one tick may dispatch.
const maxActionsPerTick = 32

// API is the platform surface scheduled actions need.
type API interface {
	SendText(ctx context.Context, chatID int64, text string, formatted bool, replyTo int) (int, error)
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
}

// Scheduler ticks every second and fans due actions out to the worker pool.
// A single admission flag keeps at most one tick handler in flight; ticks
// arriving while one runs are dropped, not queued.
type Scheduler struct {
	store   *store.Store
	pool    *worker.Pool
	api     API
	metrics *metrics.Metrics

	busy atomic.Bool
	stop chan struct{}
	done chan struct{}
}

// New wires the scheduler. Call Start to begin ticking.
func New(s *store.Store, pool *worker.Pool, api API, m *metrics.Metrics) *Scheduler {
	return &Scheduler{
		store:   s,
		pool:    pool,
		api:     api,
		metrics: m,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start launches the tick loop on its own goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx, time.Now().Unix())
			}
		}
	}()
}

// Stop halts the cadence. In-flight tick handlers drain with the worker
// pool, not here.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
}

// tick admits at most one handler at a time and hands the actual work to
// the pool so the timer goroutine never touches the store.
func (s *Scheduler) tick(ctx context.Context, now int64) {
	if !s.busy.CompareAndSwap(false, true) {
		if s.metrics != nil {
			s.metrics.SchedulerSkipped.Inc()
		}
		return
	}
	if s.metrics != nil {
		s.metrics.SchedulerTicks.Inc()
	}

	err := s.pool.Submit(func(jobCtx context.Context) {
		defer s.busy.Store(false)
		s.runTick(jobCtx, now)
	})
	if err != nil {
		s.busy.Store(false)
		slog.Warn("scheduler: tick submission failed", "error", err)
	}
}

// runTick picks due rows, enqueues one execute job per row, and deletes the
// picked ids before those jobs complete. A crash between the delete and a
// job's execution may drop an action; an action never runs twice.
func (s *Scheduler) runTick(ctx context.Context, now int64) {
	actions, err := s.store.PickDueActions(ctx, now, maxActionsPerTick)
	if err != nil {
		slog.Warn("scheduler: failed to pick due actions", "error", err)
		return
	}

	if len(actions) > 0 {
		ids := make([]int64, 0, len(actions))
		for _, a := range actions {
			a := a
			if err := s.pool.Submit(func(jobCtx context.Context) {
				s.execute(jobCtx, a)
			}); err != nil {
				slog.Warn("scheduler: failed to enqueue action", "id", a.ID, "error", err)
			}
			// Picked rows leave the table regardless of enqueue outcome so
			// they can never fire twice.
			ids = append(ids, a.ID)
		}
		if err := s.store.DeleteScheduledActions(ctx, ids); err != nil {
			slog.Error("scheduler: failed to delete dispatched actions", "error", err)
		}
	}

	purged, err := s.store.PurgeExpiredActions(ctx, now)
	if err != nil {
		slog.Warn("scheduler: failed to purge expired actions", "error", err)
	} else if purged > 0 {
		if s.metrics != nil {
			s.metrics.ActionsExpired.Add(float64(purged))
		}
		slog.Debug("scheduler: purged expired actions", "count", purged)
	}
}

// execute performs one action. Failures are logged and swallowed; they
// never abort the cadence or sibling actions.
func (s *Scheduler) execute(ctx context.Context, a *store.ScheduledAction) {
	if s.metrics != nil {
		s.metrics.ActionsDispatched.WithLabelValues(string(a.Type)).Inc()
	}
	var err error
	switch a.Type {
	case store.ActionSend:
		_, err = s.api.SendText(ctx, a.ChatID, a.Value, true, int(a.MessageID))
	case store.ActionDelete:
		err = s.api.DeleteMessage(ctx, a.ChatID, int(a.MessageID))
	default:
		slog.Error("scheduler: unknown action type", "id", a.ID, "type", string(a.Type))
		return
	}
	if err != nil {
		slog.Warn("scheduler: action failed", "id", a.ID, "type", string(a.Type), "chat", a.ChatID, "error", err)
	}
}
