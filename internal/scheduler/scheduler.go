// Package scheduler polls the schedule store for due digest requests and
// drives each one through its fire lifecycle.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"ContentDigest/internal/config"
	"ContentDigest/internal/digest"
	"ContentDigest/internal/domain"
	"ContentDigest/internal/ports"
)

// ErrAlreadyRunning is returned when a fire is requested for a request that
// is currently mid-fire.
var ErrAlreadyRunning = errors.New("digest request is already running")

// ErrNotActive is returned when a fire is requested for a deactivated
// request. One-shot requests deactivate after their single execution, so
// this also guards the execute-at-most-once rule on the manual path.
var ErrNotActive = errors.New("digest request is no longer active")

// Scheduler evaluates due requests on a fixed tick. Each request fires at
// most once concurrently; a tick that finds a request still running from the
// previous tick skips it.
type Scheduler struct {
	store ports.ScheduleStore
	agg   *digest.Aggregator
	tick  time.Duration
	loc   *time.Location
	log   *slog.Logger

	mu      sync.Mutex
	running map[string]struct{}
	stop    chan struct{}
	wg      sync.WaitGroup
}

func New(store ports.ScheduleStore, agg *digest.Aggregator, cfg config.SchedulerConfig, log *slog.Logger) *Scheduler {
	return &Scheduler{
		store:   store,
		agg:     agg,
		tick:    cfg.Tick(),
		loc:     cfg.Location(),
		log:     log,
		running: map[string]struct{}{},
	}
}

// Start launches the polling loop and returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	if s.stop != nil {
		return
	}
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.tick)
		defer ticker.Stop()
		s.sweep(ctx)
		for {
			select {
			case <-ticker.C:
				s.sweep(ctx)
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			}
		}
	}()
}

// Stop halts the loop and waits for in-flight fires to finish.
func (s *Scheduler) Stop() {
	if s.stop == nil {
		return
	}
	close(s.stop)
	s.stop = nil
	s.wg.Wait()
}

// FireNow runs a request immediately, outside its schedule.
func (s *Scheduler) FireNow(ctx context.Context, id string) error {
	req, err := s.store.GetRequest(ctx, id)
	if err != nil {
		return err
	}
	if !req.Active {
		return ErrNotActive
	}
	if !s.claim(req.ID) {
		return ErrAlreadyRunning
	}
	defer s.release(req.ID)
	return s.fire(ctx, req, time.Now().In(s.loc))
}

func (s *Scheduler) sweep(ctx context.Context) {
	now := time.Now().In(s.loc)
	due, err := s.store.DueRequests(ctx, now)
	if err != nil {
		s.log.Error("due request query failed", "error", err)
		return
	}
	for i := range due {
		req := due[i]
		if !s.claim(req.ID) {
			continue
		}
		s.wg.Add(1)
		go func(req domain.DigestRequest) {
			defer s.wg.Done()
			defer s.release(req.ID)
			if err := s.fire(ctx, &req, now); err != nil {
				s.log.Error("digest fire failed", "request_id", req.ID, "error", err)
			}
		}(req)
	}
}

// fire runs one digest request end to end: aggregate the window, deliver the
// record, advance the schedule. The request is updated at each state so a
// crash mid-fire is visible in the store.
func (s *Scheduler) fire(ctx context.Context, req *domain.DigestRequest, now time.Time) error {
	since, until := s.window(req, now)

	s.transition(ctx, req, domain.StateFiring)
	s.transition(ctx, req, domain.StateAggregating)

	rec, err := s.agg.Run(ctx, req, since, until)
	if err != nil {
		s.finish(ctx, req, now, domain.StateFailed)
		return err
	}

	s.transition(ctx, req, domain.StateDelivering)
	if err := s.agg.Deliver(ctx, rec); err != nil {
		s.finish(ctx, req, now, domain.StateFailed)
		return err
	}

	s.finish(ctx, req, now, domain.StateCompleted)
	s.log.Info("digest fired",
		"request_id", req.ID, "record_id", rec.ID, "items", len(rec.ItemIDs))
	return nil
}

func (s *Scheduler) window(req *domain.DigestRequest, now time.Time) (time.Time, time.Time) {
	if req.Kind == domain.KindOneShot {
		return req.WindowStart, req.WindowEnd
	}
	since := req.LastRun
	if since.IsZero() {
		since = now.Add(-schedulePeriod(req.Schedule))
	}
	return since, now
}

func schedulePeriod(st domain.ScheduleType) time.Duration {
	switch st {
	case domain.ScheduleWeekly:
		return 7 * 24 * time.Hour
	case domain.ScheduleMonthly:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// finish advances the request past this fire. A recurring request returns to
// scheduled with NextRun recomputed from now, even after a failed fire, so
// one bad window never stalls the schedule. A one-shot request deactivates
// and keeps its final state.
func (s *Scheduler) finish(ctx context.Context, req *domain.DigestRequest, now time.Time, final domain.RequestState) {
	req.LastRun = now.UTC()
	req.State = final

	switch req.Kind {
	case domain.KindRecurring:
		next, err := NextRun(req, now, s.loc)
		if err != nil {
			s.log.Error("next run computation failed", "request_id", req.ID, "error", err)
			req.Active = false
		} else {
			req.NextRun = next.UTC()
			req.State = domain.StateScheduled
		}
	case domain.KindOneShot:
		req.Active = false
	}

	req.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateRequest(ctx, req); err != nil {
		s.log.Error("request update failed", "request_id", req.ID, "error", err)
	}
}

func (s *Scheduler) transition(ctx context.Context, req *domain.DigestRequest, state domain.RequestState) {
	req.State = state
	req.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateRequest(ctx, req); err != nil {
		s.log.Error("request state update failed",
			"request_id", req.ID, "state", state, "error", err)
	}
}

func (s *Scheduler) claim(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.running[id]; ok {
		return false
	}
	s.running[id] = struct{}{}
	return true
}

func (s *Scheduler) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, id)
}
