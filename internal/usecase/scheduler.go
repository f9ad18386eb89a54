package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"TrustRegistry/internal/ports"
)

// SchedulerDeps wires the periodic drivers with the crawl and check use cases.
type SchedulerDeps struct {
	CrawlDriver ports.Scheduler
	CheckDriver ports.Scheduler
	Crawler     *Crawler
	Checker     *Checker
	Runner      ports.TaskRunner
	Logger      *slog.Logger
}

// Scheduler starts and stops the two recurring jobs. A job still running
// when its next trigger fires is not started twice.
type Scheduler struct {
	crawlDriver ports.Scheduler
	checkDriver ports.Scheduler
	crawler     *Crawler
	checker     *Checker
	runner      ports.TaskRunner
	logger      *slog.Logger

	crawling atomic.Bool
	checking atomic.Bool
	checks   sync.WaitGroup
}

// NewScheduler returns a helper to start/stop recurring jobs.
func NewScheduler(deps SchedulerDeps) *Scheduler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scheduler{
		crawlDriver: deps.CrawlDriver,
		checkDriver: deps.CheckDriver,
		crawler:     deps.Crawler,
		checker:     deps.Checker,
		runner:      deps.Runner,
		logger:      logger,
	}
}

// Start registers both jobs with their drivers.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.crawlDriver != nil && s.crawler != nil && s.runner != nil {
		if err := s.crawlDriver.Start(ctx, func(trigger time.Time) { s.triggerCrawl(ctx, trigger) }); err != nil {
			return err
		}
	}
	if s.checkDriver != nil && s.checker != nil {
		if err := s.checkDriver.Start(ctx, func(trigger time.Time) { s.triggerCheck(ctx, trigger) }); err != nil {
			return err
		}
	}
	return nil
}

// triggerCrawl hands the root crawl to the runner.
func (s *Scheduler) triggerCrawl(ctx context.Context, trigger time.Time) {
	if !s.crawling.CompareAndSwap(false, true) {
		s.logger.Warn("crawl still running, trigger skipped", "trigger", trigger)
		return
	}
	err := s.runner.Submit(ctx, func(ctx context.Context) {
		defer s.crawling.Store(false)
		if err := s.crawler.CrawlRoot(ctx); err != nil {
			s.logger.Error("crawl failed", "error", err)
		}
	})
	if err != nil {
		s.crawling.Store(false)
		s.logger.Error("crawl not scheduled", "error", err)
	}
}

// triggerCheck runs the document check off the ticking goroutine.
func (s *Scheduler) triggerCheck(ctx context.Context, trigger time.Time) {
	if !s.checking.CompareAndSwap(false, true) {
		s.logger.Warn("document check still running, trigger skipped", "trigger", trigger)
		return
	}
	s.checks.Add(1)
	go func() {
		defer s.checks.Done()
		defer s.checking.Store(false)
		if err := s.checker.CheckAll(ctx); err != nil {
			s.logger.Error("document check failed", "error", err)
		}
	}()
}

// Stop tears down both drivers and waits for a running check.
func (s *Scheduler) Stop(ctx context.Context) error {
	var errs []error
	if s.crawlDriver != nil {
		errs = append(errs, s.crawlDriver.Stop(ctx))
	}
	if s.checkDriver != nil {
		errs = append(errs, s.checkDriver.Stop(ctx))
	}

	done := make(chan struct{})
	go func() {
		s.checks.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}
	return errors.Join(errs...)
}
