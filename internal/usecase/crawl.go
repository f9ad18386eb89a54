package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"TrustRegistry/internal/domain"
	"TrustRegistry/internal/ports"
)

// CrawlerDeps wires the driven adapters into the crawl workflow.
type CrawlerDeps struct {
	Repository         ports.AgencyRepository
	Fetcher            ports.Fetcher
	StatusLists        ports.StatusListParser
	ServiceDefinitions ports.ServiceDefinitionParser
	Reconciler         *Reconciler
	Runner             ports.TaskRunner
	Logger             *slog.Logger
}

// Crawler walks the agency tree top-down: the root lists first, then every
// national list on the runner, then the service definitions of every provider.
type Crawler struct {
	repository         ports.AgencyRepository
	fetcher            ports.Fetcher
	statusLists        ports.StatusListParser
	serviceDefinitions ports.ServiceDefinitionParser
	reconciler         *Reconciler
	runner             ports.TaskRunner
	logger             *slog.Logger
}

// NewCrawler constructs the crawl component.
func NewCrawler(deps CrawlerDeps) *Crawler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Crawler{
		repository:         deps.Repository,
		fetcher:            deps.Fetcher,
		statusLists:        deps.StatusLists,
		serviceDefinitions: deps.ServiceDefinitions,
		reconciler:         deps.Reconciler,
		runner:             deps.Runner,
		logger:             logger,
	}
}

// CrawlRoot reconciles the lists provided by the root agency and submits one
// task per still referenced list operator below it.
func (c *Crawler) CrawlRoot(ctx context.Context) error {
	logger := c.logger.With("run_id", uuid.NewString())

	root, err := c.repository.FindRootAgency(ctx)
	if err != nil {
		return fmt.Errorf("find root agency: %w", err)
	}

	logger.Info("crawl started", "agency_id", root.ID, "territory", root.TerritoryCode)
	if err := c.crawlStatusLists(ctx, logger, root); err != nil {
		return err
	}

	children, err := c.repository.FindStillReferencedChildren(ctx, root.ID)
	if err != nil {
		return fmt.Errorf("find list operators: %w", err)
	}

	submitted := 0
	for _, child := range children {
		if child.Type != domain.AgencyListOperator {
			continue
		}
		operator := child
		err := c.runner.Submit(ctx, func(ctx context.Context) {
			if err := c.CrawlListOperator(ctx, logger, operator); err != nil {
				logger.Error("list operator crawl failed", "agency_id", operator.ID, "territory", operator.TerritoryCode, "error", err)
			}
		})
		if err != nil {
			logger.Warn("list operator crawl not scheduled", "territory", operator.TerritoryCode, "error", err)
			continue
		}
		submitted++
	}

	logger.Info("crawl fanned out", "list_operators", submitted)
	return nil
}

// CrawlListOperator reconciles the lists provided by one list operator and
// submits one task per still referenced provider below it.
func (c *Crawler) CrawlListOperator(ctx context.Context, logger *slog.Logger, operator domain.Agency) error {
	if logger == nil {
		logger = c.logger
	}
	logger = logger.With("territory", operator.TerritoryCode)

	if err := c.crawlStatusLists(ctx, logger, operator); err != nil {
		return err
	}

	children, err := c.repository.FindStillReferencedChildren(ctx, operator.ID)
	if err != nil {
		return fmt.Errorf("find providers of %d: %w", operator.ID, err)
	}
	for _, child := range children {
		if child.Type != domain.AgencyProvider {
			continue
		}
		provider := child
		err := c.runner.Submit(ctx, func(ctx context.Context) {
			if err := c.CrawlProvider(ctx, logger, provider); err != nil {
				logger.Error("provider crawl failed", "agency_id", provider.ID, "error", err)
			}
		})
		if err != nil {
			logger.Warn("provider crawl not scheduled", "agency_id", provider.ID, "error", err)
		}
	}
	return nil
}

// CrawlProvider extracts revocation lists from the service definitions of a
// provider and of its still referenced services.
func (c *Crawler) CrawlProvider(ctx context.Context, logger *slog.Logger, provider domain.Agency) error {
	if logger == nil {
		logger = c.logger
	}

	services, err := c.repository.FindStillReferencedChildren(ctx, provider.ID)
	if err != nil {
		return fmt.Errorf("find services of %d: %w", provider.ID, err)
	}

	agencies := append([]domain.Agency{provider}, services...)
	for _, agency := range agencies {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.crawlServiceDefinitions(ctx, logger, agency); err != nil {
			return err
		}
	}
	return nil
}

func (c *Crawler) crawlStatusLists(ctx context.Context, logger *slog.Logger, agency domain.Agency) error {
	docs, err := c.repository.FindStillProvidedDocuments(ctx, agency.ID, domain.DocumentStatusList)
	if err != nil {
		return fmt.Errorf("find status lists of %d: %w", agency.ID, err)
	}

	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}

		data, err := c.fetcher.Fetch(ctx, doc.URL)
		if err != nil {
			logger.Warn("status list download failed", "url", doc.URL, "error", err)
			continue
		}
		parsed, err := c.statusLists.ParseStatusList(data, doc.URL)
		if err != nil {
			logger.Warn("status list rejected", "url", doc.URL, "error", err)
			continue
		}
		if err := c.reconciler.ReconcileListOperator(ctx, &parsed); err != nil {
			logger.Error("status list reconciliation failed", "url", doc.URL, "error", err)
			continue
		}
		logger.Debug("status list reconciled", "url", doc.URL)
	}
	return nil
}

func (c *Crawler) crawlServiceDefinitions(ctx context.Context, logger *slog.Logger, agency domain.Agency) error {
	definitions, err := c.repository.FindStillProvidedDocuments(ctx, agency.ID, domain.DocumentServiceDefinition)
	if err != nil {
		return fmt.Errorf("find service definitions of %d: %w", agency.ID, err)
	}
	if len(definitions) == 0 {
		return nil
	}

	var found []domain.Document
	parsed := 0
	for _, definition := range definitions {
		data, err := c.fetcher.Fetch(ctx, definition.URL)
		if err != nil {
			logger.Warn("service definition download failed", "agency_id", agency.ID, "url", definition.URL, "error", err)
			continue
		}
		docs, err := c.serviceDefinitions.ParseServiceDefinition(data, agency)
		if err != nil {
			logger.Warn("service definition rejected", "agency_id", agency.ID, "url", definition.URL, "error", err)
			continue
		}
		parsed++
		found = append(found, docs...)
	}

	// nothing was read, so nothing can be retracted
	if parsed == 0 {
		return nil
	}
	if err := c.reconciler.ReconcileProviderDocuments(ctx, agency.ID, found); err != nil {
		logger.Error("service definition reconciliation failed", "agency_id", agency.ID, "error", err)
	}
	return nil
}
