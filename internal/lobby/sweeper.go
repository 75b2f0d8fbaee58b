package lobby

import (
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Sweeper periodically deletes expired matches.
type Sweeper struct {
	sched gocron.Scheduler
}

// StartSweeper schedules r.SweepExpired(maxAge) every interval.
func StartSweeper(r *Registry, clock clockwork.Clock, interval, maxAge time.Duration, logger *zap.Logger) (*Sweeper, error) {
	sched, err := gocron.NewScheduler(gocron.WithClock(clock))
	if err != nil {
		return nil, fmt.Errorf("new scheduler: %w", err)
	}
	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			before := r.Len()
			r.SweepExpired(maxAge)
			if n := before - r.Len(); n > 0 {
				logger.Info("sweep finished", zap.Int("removed", n))
			}
		}),
		gocron.WithName("sweep-expired-matches"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		sched.Shutdown()
		return nil, fmt.Errorf("schedule sweep: %w", err)
	}
	sched.Start()
	logger.Info("sweeper started", zap.Duration("interval", interval), zap.Duration("max_age", maxAge))
	return &Sweeper{sched: sched}, nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() error {
	return s.sched.Shutdown()
}
