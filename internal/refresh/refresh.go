// Package refresh keeps the local mirror warm. A ticker re-runs List for
// every collection on a fixed interval; each successful pass writes through
// the mirror, and the first pass after a connectivity gap drains the
// offline-write journal.
package refresh

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"flightdeck/internal/store"
)

type Scheduler struct {
	Stores     *store.Stores
	Reconciler store.Reconciler
	Interval   time.Duration
	Logger     *slog.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	offline bool
}

func New(ctx context.Context, stores *store.Stores, rec store.Reconciler, interval time.Duration) *Scheduler {
	ctx, cancel := context.WithCancel(ctx)
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		Stores:     stores,
		Reconciler: rec,
		Interval:   interval,
		ctx:        ctx,
		cancel:     cancel,
		// Until the first pass succeeds, assume connectivity is unknown and
		// drain the journal on the first online pass.
		offline: true,
	}
}

func (s *Scheduler) log() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Start begins the background refresh loop.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.run()
	s.log().Info("mirror refresh started", "interval", s.Interval)
}

// Stop gracefully stops the loop.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	s.log().Info("mirror refresh stopped")
}

func (s *Scheduler) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.RunOnce(s.ctx)
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(s.ctx)
		}
	}
}

// RunOnce refreshes every collection once. Degraded reads are expected while
// offline and only logged at debug level.
func (s *Scheduler) RunOnce(ctx context.Context) {
	anyOnline := false
	for _, st := range s.Stores.All() {
		err := st.Refresh(ctx)
		switch {
		case err == nil:
			anyOnline = true
		case errors.Is(err, store.ErrTimeout), errors.Is(err, store.ErrUnreachable):
			s.log().Debug("refresh degraded to mirror", "collection", st.CollectionName(), "error", err)
		default:
			s.log().Warn("refresh failed", "collection", st.CollectionName(), "error", err)
		}
	}
	if anyOnline && s.offline {
		results, err := s.Reconciler.Drain(ctx)
		if err != nil {
			s.log().Warn("journal drain interrupted", "error", err)
			return
		}
		if failed := store.Failed(results); len(failed) > 0 {
			s.log().Warn("journal drained with failures", "replayed", len(results)-len(failed), "failed", len(failed))
		} else if len(results) > 0 {
			s.log().Info("journal drained", "replayed", len(results))
		}
	}
	s.offline = !anyOnline
}
