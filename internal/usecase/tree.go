package usecase

import (
	"context"
	"fmt"

	"TrustRegistry/internal/domain"
	"TrustRegistry/internal/ports"
)

const (
	displayLanguage   = "en"
	placeholderName   = "NO NAME"
	qualifyingPercent = 99.0
)

// AgencyNode is one agency of the display tree.
type AgencyNode struct {
	ID            int64             `json:"id"`
	Type          domain.AgencyType `json:"type"`
	TerritoryCode string            `json:"territoryCode,omitempty"`
	LanguageCode  string            `json:"languageCode"`
	Name          string            `json:"name"`
	Active        bool              `json:"active"`
	Rating        *float64          `json:"rating,omitempty"`
	Documents     []DocumentNode    `json:"documents"`
	Children      []AgencyNode      `json:"children"`
}

// DocumentNode is one provided document with its health statistics.
type DocumentNode struct {
	ID                     int64               `json:"id"`
	URL                    string              `json:"url"`
	Type                   domain.DocumentType `json:"type"`
	LanguageCode           string              `json:"languageCode"`
	StillProvided          bool                `json:"stillProvided"`
	ReferencedByType       domain.DocumentType `json:"referencedByType,omitempty"`
	AvailabilityPercentage float64             `json:"availabilityPercentage"`
	ValidityPercentage     float64             `json:"validityPercentage"`
	CurrentSize            int64               `json:"currentSize"`
	// AverageDownloadSpeed is in bytes per second.
	AverageDownloadSpeed float64 `json:"averageDownloadSpeed"`
}

func (d DocumentNode) qualifies() bool {
	return d.AvailabilityPercentage > qualifyingPercent && d.ValidityPercentage > qualifyingPercent
}

// TreeBuilder assembles the persisted agency tree into its display form.
type TreeBuilder struct {
	repo ports.AgencyRepository
}

// NewTreeBuilder constructs the read-side view builder.
func NewTreeBuilder(repo ports.AgencyRepository) *TreeBuilder {
	return &TreeBuilder{repo: repo}
}

// BuildAgencyTree loads agencies, documents and statistics in bulk and builds
// the tree from the root. Ratings are left out unless includeRating is set.
func (b *TreeBuilder) BuildAgencyTree(ctx context.Context, includeRating bool) (AgencyNode, error) {
	agencies, err := b.repo.FindAllAgencies(ctx)
	if err != nil {
		return AgencyNode{}, fmt.Errorf("load agencies: %w", err)
	}
	documents, err := b.repo.FindAllDocuments(ctx)
	if err != nil {
		return AgencyNode{}, fmt.Errorf("load documents: %w", err)
	}
	statistics, err := b.repo.FindDocumentStatistics(ctx)
	if err != nil {
		return AgencyNode{}, fmt.Errorf("load document statistics: %w", err)
	}

	childrenByParent := map[int64][]domain.Agency{}
	var root *domain.Agency
	for i := range agencies {
		if agencies[i].IsRoot() {
			if root == nil {
				root = &agencies[i]
			}
			continue
		}
		childrenByParent[agencies[i].ParentID] = append(childrenByParent[agencies[i].ParentID], agencies[i])
	}
	if root == nil {
		return AgencyNode{}, fmt.Errorf("root agency: %w", domain.ErrNotFound)
	}

	documentsByAgency := map[int64][]domain.Document{}
	for _, doc := range documents {
		documentsByAgency[doc.AgencyID] = append(documentsByAgency[doc.AgencyID], doc)
	}

	t := treeAssembly{
		children:   childrenByParent,
		documents:  documentsByAgency,
		statistics: statistics,
	}
	node := t.build(*root)
	if !includeRating {
		stripRatings(&node)
	}
	return node, nil
}

type treeAssembly struct {
	children   map[int64][]domain.Agency
	documents  map[int64][]domain.Document
	statistics map[string]domain.DocumentStatistics
}

func (t treeAssembly) build(agency domain.Agency) AgencyNode {
	displayName := displayNameOf(agency)
	node := AgencyNode{
		ID:            agency.ID,
		Type:          agency.Type,
		TerritoryCode: agency.TerritoryCode,
		LanguageCode:  displayName.LanguageCode,
		Name:          displayName.Name,
		Active:        agency.IsRoot() || agency.Referenced(),
		Documents:     []DocumentNode{},
		Children:      []AgencyNode{},
	}

	for _, doc := range t.documents[agency.ID] {
		node.Documents = append(node.Documents, t.documentNode(doc))
	}
	for _, child := range t.children[agency.ID] {
		node.Children = append(node.Children, t.build(child))
	}

	if agency.Type == domain.AgencyService {
		rating := serviceRating(node.Active, node.Documents)
		node.Rating = &rating
	} else {
		node.Rating = averageRating(node.Children)
	}
	return node
}

func (t treeAssembly) documentNode(doc domain.Document) DocumentNode {
	node := DocumentNode{
		ID:               doc.ID,
		URL:              doc.URL,
		Type:             doc.Type,
		LanguageCode:     doc.LanguageCode,
		StillProvided:    doc.StillProvided,
		ReferencedByType: doc.ReferencedByType,
	}
	stats, ok := t.statistics[doc.URL]
	if !ok {
		return node
	}
	node.AvailabilityPercentage = stats.AvailabilityPercentage
	node.ValidityPercentage = stats.ValidityPercentage
	node.CurrentSize = stats.CurrentSize
	if seconds := stats.LastDownloadDuration.Seconds(); seconds > 0 {
		node.AverageDownloadSpeed = float64(stats.CurrentSize) / seconds
	}
	return node
}

// displayNameOf prefers the last english name, then the first name.
func displayNameOf(agency domain.Agency) domain.AgencyName {
	if name, ok := agency.NameIn(displayLanguage); ok {
		return name
	}
	if len(agency.Names) > 0 {
		return agency.Names[0]
	}
	return domain.AgencyName{AgencyID: agency.ID, LanguageCode: displayLanguage, Name: placeholderName}
}

// serviceRating scores a service from 0 to 5.
func serviceRating(active bool, docs []DocumentNode) float64 {
	var rating float64
	if active {
		rating++
	}

	var qualifying []DocumentNode
	for _, doc := range docs {
		if doc.qualifies() {
			qualifying = append(qualifying, doc)
		}
	}
	if len(qualifying) > 0 {
		rating++
	}
	// an empty document list earns nothing here
	if len(docs) > 0 && len(qualifying) == len(docs) {
		rating++
	}

	var crl, crlFromStatusList bool
	for _, doc := range qualifying {
		if doc.Type != domain.DocumentCertificateRevocation {
			continue
		}
		crl = true
		if doc.ReferencedByType == domain.DocumentStatusList {
			crlFromStatusList = true
		}
	}
	if crl {
		rating++
	}
	if crlFromStatusList {
		rating++
	}
	return rating
}

// averageRating is the mean of the rated children, nil when none is rated.
func averageRating(children []AgencyNode) *float64 {
	var sum float64
	var count int
	for _, child := range children {
		if child.Rating == nil || *child.Rating < 0 {
			continue
		}
		sum += *child.Rating
		count++
	}
	if count == 0 {
		return nil
	}
	mean := sum / float64(count)
	return &mean
}

func stripRatings(node *AgencyNode) {
	node.Rating = nil
	for i := range node.Children {
		stripRatings(&node.Children[i])
	}
}
