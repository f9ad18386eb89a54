package scheduler

import (
	"context"
	"sync"
	"time"

	"TrustRegistry/internal/ports"
)

// TickerScheduler runs a job after a startup delay and then at a fixed interval.
type TickerScheduler struct {
	interval time.Duration
	delay    time.Duration
	location *time.Location

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

var _ ports.Scheduler = (*TickerScheduler)(nil)

// NewTickerScheduler builds a scheduler; trigger times are reported in location.
func NewTickerScheduler(interval, delay time.Duration, location *time.Location) *TickerScheduler {
	if location == nil {
		location = time.UTC
	}
	return &TickerScheduler{interval: interval, delay: delay, location: location}
}

// Start begins ticking. The job runs on the ticking goroutine, so it should
// hand long work to a worker pool.
func (c *TickerScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil || c.interval <= 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		return nil
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	c.stop, c.done = stop, done

	go func() {
		defer close(done)

		delay := time.NewTimer(c.delay)
		defer delay.Stop()
		select {
		case t := <-delay.C:
			job(t.In(c.location))
		case <-ctx.Done():
			return
		case <-stop:
			return
		}

		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case t := <-ticker.C:
				job(t.In(c.location))
			case <-ctx.Done():
				return
			case <-stop:
				return
			}
		}
	}()

	return nil
}

// Stop halts the ticker goroutine and waits for a running job or ctx.
func (c *TickerScheduler) Stop(ctx context.Context) error {
	c.mu.Lock()
	stop, done := c.stop, c.done
	c.stop, c.done = nil, nil
	c.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
