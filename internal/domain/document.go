package domain

import "time"

// DocumentType enumerates the downloadable artifacts tracked by the registry.
type DocumentType string

const (
	DocumentStatusList            DocumentType = "STATUS_LIST_XML"
	DocumentServiceDefinition     DocumentType = "SERVICE_DEFINITION"
	DocumentCertificateRevocation DocumentType = "CERTIFICATE_REVOCATION_LIST"
)

// Document is a downloadable artifact provided by an agency. URL is unique across the registry.
type Document struct {
	ID           int64
	URL          string
	Type         DocumentType
	LanguageCode string
	AgencyID     int64

	// StillProvided is false once the providing agency stopped listing the URL.
	StillProvided bool

	// ReferencedByType is the type of document the URL was discovered in.
	ReferencedByType DocumentType
}

// DocumentRef is a distinct (url, type) pair of a still-provided document.
type DocumentRef struct {
	URL  string
	Type DocumentType
}

// CheckingResult is an append-only health check of one document URL.
type CheckingResult struct {
	ID               int64
	URL              string
	CheckedAt        time.Time
	Available        bool
	Valid            bool
	SizeInBytes      int64
	DownloadDuration time.Duration
}

// DocumentStatistics aggregates the checking results of one URL.
type DocumentStatistics struct {
	URL                    string
	AvailabilityPercentage float64
	ValidityPercentage     float64
	CurrentSize            int64
	LastDownloadDuration   time.Duration
}
