package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"TrustRegistry/internal/domain"
	"TrustRegistry/internal/ports"
)

// MemoryStore keeps the registry in process memory. Transactions are
// serialized and rolled back by restoring a snapshot.
type MemoryStore struct {
	mu    sync.RWMutex
	state *memoryState
}

var _ ports.Store = (*MemoryStore)(nil)

// NewMemoryStore builds an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemoryState()}
}

// InTx runs fn with exclusive access; on error or panic every change made by
// fn is discarded.
func (s *MemoryStore) InTx(ctx context.Context, fn func(ctx context.Context, repo ports.AgencyRepository) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	defer func() {
		if p := recover(); p != nil {
			s.state = snapshot
			panic(p)
		}
		if err != nil {
			s.state = snapshot
		}
	}()
	return fn(ctx, s.state)
}

func (s *MemoryStore) FindRootAgency(ctx context.Context) (domain.Agency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.FindRootAgency(ctx)
}

func (s *MemoryStore) FindAgency(ctx context.Context, id int64) (domain.Agency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.FindAgency(ctx, id)
}

func (s *MemoryStore) FindListOperatorByTerritory(ctx context.Context, territoryCode string) (domain.Agency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.FindListOperatorByTerritory(ctx, territoryCode)
}

func (s *MemoryStore) FindChildren(ctx context.Context, parentID int64) ([]domain.Agency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.FindChildren(ctx, parentID)
}

func (s *MemoryStore) FindStillReferencedChildren(ctx context.Context, parentID int64) ([]domain.Agency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.FindStillReferencedChildren(ctx, parentID)
}

func (s *MemoryStore) InsertAgency(ctx context.Context, agency domain.Agency) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.InsertAgency(ctx, agency)
}

func (s *MemoryStore) UpdateAgency(ctx context.Context, agency domain.Agency) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.UpdateAgency(ctx, agency)
}

func (s *MemoryStore) FindNames(ctx context.Context, agencyID int64) ([]domain.AgencyName, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.FindNames(ctx, agencyID)
}

func (s *MemoryStore) InsertName(ctx context.Context, name domain.AgencyName) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.InsertName(ctx, name)
}

func (s *MemoryStore) DeleteName(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.DeleteName(ctx, id)
}

func (s *MemoryStore) FindDocumentsByAgency(ctx context.Context, agencyID int64) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.FindDocumentsByAgency(ctx, agencyID)
}

func (s *MemoryStore) FindDocumentByURL(ctx context.Context, url string) (domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.FindDocumentByURL(ctx, url)
}

func (s *MemoryStore) FindStillProvidedDocuments(ctx context.Context, agencyID int64, docType domain.DocumentType) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.FindStillProvidedDocuments(ctx, agencyID, docType)
}

func (s *MemoryStore) InsertDocument(ctx context.Context, doc domain.Document) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.InsertDocument(ctx, doc)
}

func (s *MemoryStore) UpdateDocument(ctx context.Context, doc domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.UpdateDocument(ctx, doc)
}

func (s *MemoryStore) FindAllAgencies(ctx context.Context) ([]domain.Agency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.FindAllAgencies(ctx)
}

func (s *MemoryStore) FindAllDocuments(ctx context.Context) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.FindAllDocuments(ctx)
}

func (s *MemoryStore) FindStillProvidedDocumentRefs(ctx context.Context) ([]domain.DocumentRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.FindStillProvidedDocumentRefs(ctx)
}

func (s *MemoryStore) InsertCheckingResult(ctx context.Context, result domain.CheckingResult) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.InsertCheckingResult(ctx, result)
}

func (s *MemoryStore) FindDocumentStatistics(ctx context.Context) (map[string]domain.DocumentStatistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.FindDocumentStatistics(ctx)
}

// memoryState is the unlocked repository view used inside transactions.
type memoryState struct {
	nextID    int64
	agencies  map[int64]domain.Agency
	names     map[int64]domain.AgencyName
	documents map[int64]domain.Document
	results   []domain.CheckingResult
}

var _ ports.AgencyRepository = (*memoryState)(nil)

func newMemoryState() *memoryState {
	return &memoryState{
		agencies:  map[int64]domain.Agency{},
		names:     map[int64]domain.AgencyName{},
		documents: map[int64]domain.Document{},
	}
}

func (m *memoryState) clone() *memoryState {
	out := &memoryState{
		nextID:    m.nextID,
		agencies:  make(map[int64]domain.Agency, len(m.agencies)),
		names:     make(map[int64]domain.AgencyName, len(m.names)),
		documents: make(map[int64]domain.Document, len(m.documents)),
		results:   append([]domain.CheckingResult(nil), m.results...),
	}
	for id, agency := range m.agencies {
		out.agencies[id] = copyAgencyRow(agency)
	}
	for id, name := range m.names {
		out.names[id] = name
	}
	for id, doc := range m.documents {
		out.documents[id] = doc
	}
	return out
}

func (m *memoryState) newID() int64 {
	m.nextID++
	return m.nextID
}

// copyAgencyRow keeps only the columns of the agency row.
func copyAgencyRow(agency domain.Agency) domain.Agency {
	row := agency
	row.Names, row.Documents, row.Children = nil, nil, nil
	if agency.StillReferenced != nil {
		row.StillReferenced = domain.Bool(*agency.StillReferenced)
	}
	return row
}

func (m *memoryState) withNames(agency domain.Agency) domain.Agency {
	out := copyAgencyRow(agency)
	for _, name := range m.sortedNames() {
		if name.AgencyID == agency.ID {
			out.Names = append(out.Names, name)
		}
	}
	return out
}

func (m *memoryState) sortedAgencies() []domain.Agency {
	out := make([]domain.Agency, 0, len(m.agencies))
	for _, agency := range m.agencies {
		out = append(out, agency)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memoryState) sortedNames() []domain.AgencyName {
	out := make([]domain.AgencyName, 0, len(m.names))
	for _, name := range m.names {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memoryState) sortedDocuments() []domain.Document {
	out := make([]domain.Document, 0, len(m.documents))
	for _, doc := range m.documents {
		out = append(out, doc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memoryState) FindRootAgency(_ context.Context) (domain.Agency, error) {
	for _, agency := range m.sortedAgencies() {
		if agency.IsRoot() {
			return m.withNames(agency), nil
		}
	}
	return domain.Agency{}, fmt.Errorf("find root agency: %w", domain.ErrNotFound)
}

func (m *memoryState) FindAgency(_ context.Context, id int64) (domain.Agency, error) {
	agency, ok := m.agencies[id]
	if !ok {
		return domain.Agency{}, fmt.Errorf("find agency %d: %w", id, domain.ErrNotFound)
	}
	return m.withNames(agency), nil
}

func (m *memoryState) FindListOperatorByTerritory(_ context.Context, territoryCode string) (domain.Agency, error) {
	for _, agency := range m.sortedAgencies() {
		if agency.Type == domain.AgencyListOperator && agency.TerritoryCode == territoryCode {
			return m.withNames(agency), nil
		}
	}
	return domain.Agency{}, fmt.Errorf("find list operator %s: %w", territoryCode, domain.ErrNotFound)
}

func (m *memoryState) FindChildren(_ context.Context, parentID int64) ([]domain.Agency, error) {
	var out []domain.Agency
	for _, agency := range m.sortedAgencies() {
		if agency.ParentID == parentID && parentID != 0 {
			out = append(out, m.withNames(agency))
		}
	}
	return out, nil
}

func (m *memoryState) FindStillReferencedChildren(ctx context.Context, parentID int64) ([]domain.Agency, error) {
	children, err := m.FindChildren(ctx, parentID)
	if err != nil {
		return nil, err
	}
	out := children[:0]
	for _, child := range children {
		if child.Referenced() {
			out = append(out, child)
		}
	}
	return out, nil
}

func (m *memoryState) InsertAgency(_ context.Context, agency domain.Agency) (int64, error) {
	if agency.ParentID != 0 {
		if _, ok := m.agencies[agency.ParentID]; !ok {
			return 0, fmt.Errorf("insert agency: parent %d: %w", agency.ParentID, domain.ErrNotFound)
		}
	}
	row := copyAgencyRow(agency)
	row.ID = m.newID()
	m.agencies[row.ID] = row
	return row.ID, nil
}

func (m *memoryState) UpdateAgency(_ context.Context, agency domain.Agency) error {
	row, ok := m.agencies[agency.ID]
	if !ok {
		return fmt.Errorf("update agency %d: %w", agency.ID, domain.ErrNotFound)
	}
	row.ReferencedByDocumentURL = agency.ReferencedByDocumentURL
	row.StillReferenced = nil
	if agency.StillReferenced != nil {
		row.StillReferenced = domain.Bool(*agency.StillReferenced)
	}
	m.agencies[agency.ID] = row
	return nil
}

func (m *memoryState) FindNames(_ context.Context, agencyID int64) ([]domain.AgencyName, error) {
	var out []domain.AgencyName
	for _, name := range m.sortedNames() {
		if name.AgencyID == agencyID {
			out = append(out, name)
		}
	}
	return out, nil
}

func (m *memoryState) InsertName(_ context.Context, name domain.AgencyName) (int64, error) {
	if _, ok := m.agencies[name.AgencyID]; !ok {
		return 0, fmt.Errorf("insert name: agency %d: %w", name.AgencyID, domain.ErrNotFound)
	}
	name.ID = m.newID()
	m.names[name.ID] = name
	return name.ID, nil
}

func (m *memoryState) DeleteName(_ context.Context, id int64) error {
	if _, ok := m.names[id]; !ok {
		return fmt.Errorf("delete name %d: %w", id, domain.ErrNotFound)
	}
	delete(m.names, id)
	return nil
}

func (m *memoryState) FindDocumentsByAgency(_ context.Context, agencyID int64) ([]domain.Document, error) {
	var out []domain.Document
	for _, doc := range m.sortedDocuments() {
		if doc.AgencyID == agencyID {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (m *memoryState) FindDocumentByURL(_ context.Context, url string) (domain.Document, error) {
	for _, doc := range m.documents {
		if doc.URL == url {
			return doc, nil
		}
	}
	return domain.Document{}, fmt.Errorf("find document %s: %w", url, domain.ErrNotFound)
}

func (m *memoryState) FindStillProvidedDocuments(_ context.Context, agencyID int64, docType domain.DocumentType) ([]domain.Document, error) {
	var out []domain.Document
	for _, doc := range m.sortedDocuments() {
		if doc.AgencyID == agencyID && doc.Type == docType && doc.StillProvided {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (m *memoryState) InsertDocument(_ context.Context, doc domain.Document) (int64, error) {
	if _, ok := m.agencies[doc.AgencyID]; !ok {
		return 0, fmt.Errorf("insert document: agency %d: %w", doc.AgencyID, domain.ErrNotFound)
	}
	for _, existing := range m.documents {
		if existing.URL == doc.URL {
			return 0, fmt.Errorf("insert document: url %s already stored as %d", doc.URL, existing.ID)
		}
	}
	doc.ID = m.newID()
	m.documents[doc.ID] = doc
	return doc.ID, nil
}

func (m *memoryState) UpdateDocument(_ context.Context, doc domain.Document) error {
	existing, ok := m.documents[doc.ID]
	if !ok {
		return fmt.Errorf("update document %d: %w", doc.ID, domain.ErrNotFound)
	}
	if existing.URL != doc.URL {
		return fmt.Errorf("update document %d: url is immutable", doc.ID)
	}
	m.documents[doc.ID] = doc
	return nil
}

func (m *memoryState) FindAllAgencies(_ context.Context) ([]domain.Agency, error) {
	agencies := m.sortedAgencies()
	out := make([]domain.Agency, 0, len(agencies))
	for _, agency := range agencies {
		out = append(out, m.withNames(agency))
	}
	return out, nil
}

func (m *memoryState) FindAllDocuments(_ context.Context) ([]domain.Document, error) {
	return m.sortedDocuments(), nil
}

func (m *memoryState) FindStillProvidedDocumentRefs(_ context.Context) ([]domain.DocumentRef, error) {
	seen := map[domain.DocumentRef]bool{}
	var out []domain.DocumentRef
	for _, doc := range m.sortedDocuments() {
		ref := domain.DocumentRef{URL: doc.URL, Type: doc.Type}
		if !doc.StillProvided || seen[ref] {
			continue
		}
		seen[ref] = true
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := strings.Compare(out[i].URL, out[j].URL); c != 0 {
			return c < 0
		}
		return out[i].Type < out[j].Type
	})
	return out, nil
}

func (m *memoryState) InsertCheckingResult(_ context.Context, result domain.CheckingResult) (int64, error) {
	result.ID = m.newID()
	result.CheckedAt = result.CheckedAt.UTC()
	m.results = append(m.results, result)
	return result.ID, nil
}

func (m *memoryState) FindDocumentStatistics(_ context.Context) (map[string]domain.DocumentStatistics, error) {
	type tally struct {
		count, available, valid int
		latest                  domain.CheckingResult
	}

	tallies := map[string]*tally{}
	for _, result := range m.results {
		t, ok := tallies[result.URL]
		if !ok {
			t = &tally{latest: result}
			tallies[result.URL] = t
		}
		t.count++
		if result.Available {
			t.available++
		}
		if result.Valid {
			t.valid++
		}
		if !result.CheckedAt.Before(t.latest.CheckedAt) {
			t.latest = result
		}
	}

	out := make(map[string]domain.DocumentStatistics, len(tallies))
	for url, t := range tallies {
		out[url] = domain.DocumentStatistics{
			URL:                    url,
			AvailabilityPercentage: 100 * float64(t.available) / float64(t.count),
			ValidityPercentage:     100 * float64(t.valid) / float64(t.count),
			CurrentSize:            t.latest.SizeInBytes,
			LastDownloadDuration:   t.latest.DownloadDuration,
		}
	}
	return out, nil
}
