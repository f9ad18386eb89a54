package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TrustRegistry/internal/infrastructure/parser"
	"TrustRegistry/internal/infrastructure/workers"
)

type manualDriver struct {
	job     func(time.Time)
	stopped bool
}

func (d *manualDriver) Start(_ context.Context, job func(time.Time)) error {
	d.job = job
	return nil
}

func (d *manualDriver) Stop(context.Context) error {
	d.stopped = true
	return nil
}

func TestSchedulerRunsBothJobs(t *testing.T) {
	ctx := context.Background()
	reconciler, store, _ := newSeededStore(t)
	fetcher := newFakeFetcher(map[string]string{
		lotlURL:                      lotlFixture,
		"https://at.example/tsl.xml": atListFixture,
	})

	pool := workers.NewPool(2, 16, nil)
	pool.Start()
	defer pool.Stop(ctx)

	crawler := NewCrawler(CrawlerDeps{
		Repository:         store,
		Fetcher:            fetcher,
		StatusLists:        parser.NewStatusListParser(nil),
		ServiceDefinitions: parser.NewServiceDefinitionParser(nil),
		Reconciler:         reconciler,
		Runner:             pool,
	})
	checker := NewChecker(CheckerDeps{Repository: store, Fetcher: fetcher})

	crawlDriver, checkDriver := &manualDriver{}, &manualDriver{}
	s := NewScheduler(SchedulerDeps{
		CrawlDriver: crawlDriver,
		CheckDriver: checkDriver,
		Crawler:     crawler,
		Checker:     checker,
		Runner:      pool,
	})
	require.NoError(t, s.Start(ctx))
	require.NotNil(t, crawlDriver.job)
	require.NotNil(t, checkDriver.job)

	crawlDriver.job(time.Now())
	pool.Wait()
	assert.Equal(t, 1, fetcher.called("https://at.example/tsl.xml"))

	checkDriver.job(time.Now())
	require.NoError(t, s.Stop(ctx))
	assert.True(t, crawlDriver.stopped)
	assert.True(t, checkDriver.stopped)

	stats, err := store.FindDocumentStatistics(ctx)
	require.NoError(t, err)
	assert.Contains(t, stats, "https://at.example/tsl.xml")
	assert.Contains(t, stats, "https://a-trust.at/cps.txt")
}
