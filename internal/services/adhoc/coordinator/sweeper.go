package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/louisbranch/gathering.space/internal/services/adhoc/domain"
)

// Sweeper periodically re-extends occupied sessions so long gatherings never
// expire between presence events.
type Sweeper struct {
	coordinator *Coordinator
	interval    time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper builds a sweeper driving the coordinator's extension rule. A
// non-positive interval falls back to the default sweep interval.
func NewSweeper(coordinator *Coordinator, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = domain.SweepInterval
	}
	return &Sweeper{coordinator: coordinator, interval: interval}
}

// Start launches the sweep loop. Starting an already running sweeper is a
// no-op.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx, s.done)
}

func (s *Sweeper) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.coordinator.SweepExtensions(ctx)
		}
	}
}

// Stop halts the sweep loop and waits for it to exit. Safe to call repeatedly
// or before Start.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
