package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/raterudder/meterbill/pkg/log"
)

// Scheduler fires at a fixed interval aligned to an offset within the
// minute. Cycles run inline so only one is ever in flight; ticks that come due
// while a cycle runs are skipped.
type Scheduler struct {
	Interval time.Duration
	// SecondsOffset is where in the minute the first fire lands, e.g. 5s
	// fires at hh:mm:05.
	SecondsOffset time.Duration

	// Now defaults to time.Now.
	Now func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
	mu       sync.Mutex
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Scheduler) stopCh() chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop == nil {
		s.stop = make(chan struct{})
	}
	return s.stop
}

// FirstFire returns the first instant at or after now whose offset within
// the minute is SecondsOffset.
func (s *Scheduler) FirstFire(now time.Time) time.Time {
	offset := s.SecondsOffset % time.Minute
	if offset < 0 {
		offset += time.Minute
	}
	first := now.Truncate(time.Minute).Add(offset)
	if first.Before(now) {
		first = first.Add(time.Minute)
	}
	return first
}

// Run calls fn at every fire until ctx is cancelled or Stop is called.
func (s *Scheduler) Run(ctx context.Context, fn func(ctx context.Context, at time.Time)) {
	stop := s.stopCh()

	now := s.now()
	first := s.FirstFire(now)
	log.Ctx(ctx).DebugContext(ctx, "scheduler waiting for first fire", slog.Time("first", first))

	timer := time.NewTimer(first.Sub(now))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-stop:
		return
	case <-timer.C:
	}

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	at := first
	for {
		start := s.now()
		fn(ctx, at)
		if elapsed := s.now().Sub(start); elapsed > s.Interval {
			// the ticker already dropped all but one of the missed ticks
			select {
			case <-ticker.C:
			default:
			}
			log.Ctx(ctx).WarnContext(ctx, "cycle outran interval, skipping ticks",
				slog.Duration("elapsed", elapsed),
				slog.Int64("skipped", int64(elapsed/s.Interval)),
			)
		}

		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			at = s.now()
		}
	}
}

// Stop cancels future fires. A cycle already running completes.
func (s *Scheduler) Stop() {
	stop := s.stopCh()
	s.stopOnce.Do(func() {
		close(stop)
	})
}
