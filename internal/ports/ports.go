package ports

import (
	"context"
	"time"

	"TrustRegistry/internal/domain"
)

// AgencyRepository persists the agency tree, its documents and their checking history.
type AgencyRepository interface {
	FindRootAgency(ctx context.Context) (domain.Agency, error)
	FindAgency(ctx context.Context, id int64) (domain.Agency, error)
	FindListOperatorByTerritory(ctx context.Context, territoryCode string) (domain.Agency, error)
	// FindChildren returns every child of the parent with its names loaded.
	FindChildren(ctx context.Context, parentID int64) ([]domain.Agency, error)
	FindStillReferencedChildren(ctx context.Context, parentID int64) ([]domain.Agency, error)
	InsertAgency(ctx context.Context, agency domain.Agency) (int64, error)
	// UpdateAgency rewrites the referencing document url and the still-referenced flag.
	UpdateAgency(ctx context.Context, agency domain.Agency) error

	FindNames(ctx context.Context, agencyID int64) ([]domain.AgencyName, error)
	InsertName(ctx context.Context, name domain.AgencyName) (int64, error)
	DeleteName(ctx context.Context, id int64) error

	FindDocumentsByAgency(ctx context.Context, agencyID int64) ([]domain.Document, error)
	FindDocumentByURL(ctx context.Context, url string) (domain.Document, error)
	FindStillProvidedDocuments(ctx context.Context, agencyID int64, docType domain.DocumentType) ([]domain.Document, error)
	InsertDocument(ctx context.Context, doc domain.Document) (int64, error)
	UpdateDocument(ctx context.Context, doc domain.Document) error

	// FindAllAgencies returns every persisted agency with its names loaded.
	FindAllAgencies(ctx context.Context) ([]domain.Agency, error)
	FindAllDocuments(ctx context.Context) ([]domain.Document, error)
	FindStillProvidedDocumentRefs(ctx context.Context) ([]domain.DocumentRef, error)

	InsertCheckingResult(ctx context.Context, result domain.CheckingResult) (int64, error)
	FindDocumentStatistics(ctx context.Context) (map[string]domain.DocumentStatistics, error)
}

// Store is a repository able to run a unit of work in one transaction.
type Store interface {
	AgencyRepository
	// InTx runs fn against a transactional repository; a returned error rolls every change back.
	InTx(ctx context.Context, fn func(ctx context.Context, repo AgencyRepository) error) error
}

// Fetcher downloads a document.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// TimedFetcher downloads a document and reports the transfer duration.
type TimedFetcher interface {
	FetchTimed(ctx context.Context, url string) ([]byte, time.Duration, error)
}

// StatusListParser turns a status list into an unpersisted agency tree.
type StatusListParser interface {
	ParseStatusList(data []byte, sourceURL string) (domain.Agency, error)
}

// ServiceDefinitionParser extracts revocation list documents from a service definition.
type ServiceDefinitionParser interface {
	ParseServiceDefinition(data []byte, agency domain.Agency) ([]domain.Document, error)
}

// DocumentValidator decides whether downloaded bytes are a usable document of its type.
type DocumentValidator interface {
	Validate(data []byte) error
}

// DocumentValidators dispatches validation on the document type.
type DocumentValidators interface {
	Validate(docType domain.DocumentType, data []byte) error
}

// TaskRunner accepts fan-out work.
type TaskRunner interface {
	Submit(ctx context.Context, task func(ctx context.Context)) error
}

// Scheduler controls when jobs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
