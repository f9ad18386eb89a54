package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"TrustRegistry/internal/domain"
	"TrustRegistry/internal/ports"
)

const defaultCheckConcurrency = 20

// CheckerDeps wires the document health check.
type CheckerDeps struct {
	Repository  ports.AgencyRepository
	Fetcher     ports.TimedFetcher
	Validators  ports.DocumentValidators
	Concurrency int
	// Location is the timezone of the checker clock; results are stored in UTC.
	Location *time.Location
	Logger   *slog.Logger
}

// Checker downloads every still provided document and appends one checking
// result per url.
type Checker struct {
	repository  ports.AgencyRepository
	fetcher     ports.TimedFetcher
	validators  ports.DocumentValidators
	concurrency int
	now         func() time.Time
	logger      *slog.Logger
}

// NewChecker constructs the health check component.
func NewChecker(deps CheckerDeps) *Checker {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	location := deps.Location
	if location == nil {
		location = time.UTC
	}
	concurrency := deps.Concurrency
	if concurrency < 1 {
		concurrency = defaultCheckConcurrency
	}
	return &Checker{
		repository:  deps.Repository,
		fetcher:     deps.Fetcher,
		validators:  deps.Validators,
		concurrency: concurrency,
		now:         func() time.Time { return time.Now().In(location) },
		logger:      logger,
	}
}

// CheckAll checks every distinct still provided url with bounded concurrency.
func (c *Checker) CheckAll(ctx context.Context) error {
	logger := c.logger.With("run_id", uuid.NewString())

	refs, err := c.repository.FindStillProvidedDocumentRefs(ctx)
	if err != nil {
		return fmt.Errorf("find provided documents: %w", err)
	}
	logger.Info("document check started", "documents", len(refs))

	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for _, ref := range refs {
		if ctx.Err() != nil {
			break
		}
		ref := ref
		g.Go(func() error {
			c.check(ctx, logger, ref)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	logger.Info("document check finished", "documents", len(refs))
	return nil
}

// Check downloads and validates one document and records the result.
func (c *Checker) Check(ctx context.Context, ref domain.DocumentRef) (domain.CheckingResult, error) {
	result := c.measure(ctx, ref)
	if err := ctx.Err(); err != nil {
		return result, err
	}
	id, err := c.repository.InsertCheckingResult(ctx, result)
	if err != nil {
		return result, fmt.Errorf("record checking result of %s: %w", ref.URL, err)
	}
	result.ID = id
	return result, nil
}

func (c *Checker) check(ctx context.Context, logger *slog.Logger, ref domain.DocumentRef) {
	result, err := c.Check(ctx, ref)
	if err != nil {
		logger.Warn("document check not recorded", "url", ref.URL, "error", err)
		return
	}
	logger.Debug("document checked", "url", ref.URL, "available", result.Available, "valid", result.Valid, "size", result.SizeInBytes)
}

func (c *Checker) measure(ctx context.Context, ref domain.DocumentRef) domain.CheckingResult {
	result := domain.CheckingResult{URL: ref.URL, CheckedAt: c.now().UTC()}

	data, elapsed, err := c.fetcher.FetchTimed(ctx, ref.URL)
	result.DownloadDuration = elapsed
	if err != nil {
		c.logger.Debug("document unavailable", "url", ref.URL, "error", err)
		return result
	}

	result.Available = true
	result.SizeInBytes = int64(len(data))
	if c.validators == nil {
		result.Valid = true
		return result
	}
	if err := c.validators.Validate(ref.Type, data); err != nil {
		c.logger.Debug("document invalid", "url", ref.URL, "error", err)
		return result
	}
	result.Valid = true
	return result
}
