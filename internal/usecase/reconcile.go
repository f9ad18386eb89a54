package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"TrustRegistry/internal/domain"
	"TrustRegistry/internal/ports"
)

// Reconciler merges freshly parsed agency trees into the persisted tree.
type Reconciler struct {
	store  ports.Store
	logger *slog.Logger
}

// NewReconciler constructs the reconciliation engine.
func NewReconciler(store ports.Store, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Reconciler{store: store, logger: logger}
}

// changes counts what one reconcile call wrote.
type changes struct {
	agenciesInserted  int
	agenciesUpdated   int
	agenciesRetracted int
	namesInserted     int
	namesDeleted      int
	docsInserted      int
	docsUpdated       int
	docsRetracted     int
}

func (c changes) attrs() []any {
	return []any{
		"agencies_inserted", c.agenciesInserted,
		"agencies_updated", c.agenciesUpdated,
		"agencies_retracted", c.agenciesRetracted,
		"names_inserted", c.namesInserted,
		"names_deleted", c.namesDeleted,
		"documents_inserted", c.docsInserted,
		"documents_updated", c.docsUpdated,
		"documents_retracted", c.docsRetracted,
	}
}

// merger carries one transaction's repository through a reconcile pass.
type merger struct {
	repo    ports.AgencyRepository
	scope   documentScope
	changes changes
}

// EnsureRoot persists root as the top of the tree unless a root already exists,
// and returns the persisted root.
func (r *Reconciler) EnsureRoot(ctx context.Context, root domain.Agency) (domain.Agency, error) {
	var persisted domain.Agency
	err := r.store.InTx(ctx, func(ctx context.Context, repo ports.AgencyRepository) error {
		existing, err := repo.FindRootAgency(ctx)
		if err == nil {
			persisted = existing
			return nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("find root: %w", err)
		}

		root.ParentID = 0
		root.StillReferenced = nil
		root.ReferencedByDocumentURL = ""
		id, err := repo.InsertAgency(ctx, root)
		if err != nil {
			return fmt.Errorf("insert root: %w", err)
		}
		root.ID = id

		m := &merger{repo: repo, scope: statusListScope}
		if err := m.updateNames(ctx, root, root.Names, PruneNames); err != nil {
			return err
		}
		if err := m.updateDocuments(ctx, root, root.Documents, PreserveDocuments); err != nil {
			return err
		}
		persisted, err = repo.FindAgency(ctx, id)
		if err != nil {
			return fmt.Errorf("reload root: %w", err)
		}
		r.logger.Info("root agency created", "agency_id", id, "territory", root.TerritoryCode)
		return nil
	})
	return persisted, err
}

// ReconcileListOperator merges the tree parsed from one status list into the
// persisted list operator of the same territory, in one transaction.
func (r *Reconciler) ReconcileListOperator(ctx context.Context, parsed *domain.Agency) error {
	if parsed == nil {
		return nil
	}
	if parsed.TerritoryCode == "" {
		return &domain.MissingAttributeError{Element: "list operator", Attribute: "territory code"}
	}

	var result changes
	err := r.store.InTx(ctx, func(ctx context.Context, repo ports.AgencyRepository) error {
		existing, err := repo.FindListOperatorByTerritory(ctx, parsed.TerritoryCode)
		if errors.Is(err, domain.ErrNotFound) {
			return &domain.StaleStateError{TerritoryCode: parsed.TerritoryCode}
		}
		if err != nil {
			return fmt.Errorf("find list operator %s: %w", parsed.TerritoryCode, err)
		}
		if existing.ID == 0 {
			return &domain.MissingIdentityError{Context: "list operator " + parsed.TerritoryCode}
		}

		m := &merger{repo: repo, scope: statusListScope}
		if parsed.ReferencedByDocumentURL != "" && parsed.ReferencedByDocumentURL != existing.ReferencedByDocumentURL {
			existing.ReferencedByDocumentURL = parsed.ReferencedByDocumentURL
			if err := repo.UpdateAgency(ctx, existing); err != nil {
				return fmt.Errorf("update list operator %d: %w", existing.ID, err)
			}
			m.changes.agenciesUpdated++
		}

		if err := m.mergeAgency(ctx, *parsed, existing, topListOperatorPolicy, true); err != nil {
			return err
		}
		result = m.changes
		return nil
	})
	if err != nil {
		return err
	}

	r.logger.Info("list operator reconciled", append([]any{"territory", parsed.TerritoryCode}, result.attrs()...)...)
	return nil
}

// ReconcileProviderDocuments replaces the documents an agency advertises in
// its service definitions with docs, in one transaction. Documents asserted
// by status lists are left to the status list passes.
func (r *Reconciler) ReconcileProviderDocuments(ctx context.Context, agencyID int64, docs []domain.Document) error {
	var result changes
	err := r.store.InTx(ctx, func(ctx context.Context, repo ports.AgencyRepository) error {
		agency, err := repo.FindAgency(ctx, agencyID)
		if errors.Is(err, domain.ErrNotFound) {
			return &domain.StaleStateError{AgencyID: agencyID}
		}
		if err != nil {
			return fmt.Errorf("find agency %d: %w", agencyID, err)
		}

		m := &merger{repo: repo, scope: serviceDefinitionScope}
		found := make([]domain.Document, len(docs))
		for i, doc := range docs {
			doc.ReferencedByType = domain.DocumentServiceDefinition
			found[i] = doc
		}
		if err := m.updateDocuments(ctx, agency, found, PruneDocuments); err != nil {
			return err
		}
		result = m.changes
		return nil
	})
	if err != nil {
		return err
	}

	r.logger.Debug("agency documents reconciled", append([]any{"agency_id", agencyID}, result.attrs()...)...)
	return nil
}

// mergeAgency reconciles names, documents and children of one matched pair.
func (m *merger) mergeAgency(ctx context.Context, parsed, persisted domain.Agency, policy MergePolicy, top bool) error {
	if err := m.updateNames(ctx, persisted, parsed.Names, policy.Names); err != nil {
		return err
	}
	if err := m.updateDocuments(ctx, persisted, parsed.Documents, policy.Documents); err != nil {
		return err
	}
	for _, childType := range childTypesOf(persisted, top) {
		children := childrenOfType(parsed.Children, childType)
		if err := m.updateChildren(ctx, persisted, children, childType, policyFor(childType, policy)); err != nil {
			return err
		}
	}
	return nil
}

func (m *merger) updateChildren(ctx context.Context, parent domain.Agency, parsed []domain.Agency, childType domain.AgencyType, policy MergePolicy) error {
	if parent.ID == 0 {
		return &domain.MissingIdentityError{Context: "parent of " + string(childType) + " children"}
	}

	all, err := m.repo.FindChildren(ctx, parent.ID)
	if err != nil {
		return fmt.Errorf("find children of %d: %w", parent.ID, err)
	}
	persisted := childrenOfType(all, childType)
	distinct := foldDuplicates(parsed)

	claimed := make([]bool, len(persisted))
	matches := make([]int, len(distinct))
	for i, child := range distinct {
		idx := matchPersisted(persisted, claimed, child)
		matches[i] = idx
		if idx >= 0 {
			claimed[idx] = true
		}
	}

	dirty := make([]bool, len(persisted))
	for i, child := range distinct {
		idx := matches[i]
		if idx < 0 {
			continue
		}
		if child.ReferencedByDocumentURL != "" && persisted[idx].ReferencedByDocumentURL != child.ReferencedByDocumentURL {
			persisted[idx].ReferencedByDocumentURL = child.ReferencedByDocumentURL
			dirty[idx] = true
		}
	}
	for i := range persisted {
		switch {
		case !claimed[i] && persisted[i].Referenced():
			persisted[i].StillReferenced = domain.Bool(false)
			m.changes.agenciesRetracted++
			dirty[i] = true
		case claimed[i] && !persisted[i].Referenced():
			persisted[i].StillReferenced = domain.Bool(true)
			dirty[i] = true
		}
		if !dirty[i] {
			continue
		}
		if persisted[i].ID == 0 {
			return &domain.MissingIdentityError{Context: fmt.Sprintf("child %d of agency %d", i, parent.ID)}
		}
		if err := m.repo.UpdateAgency(ctx, persisted[i]); err != nil {
			return fmt.Errorf("update agency %d: %w", persisted[i].ID, err)
		}
		if claimed[i] {
			m.changes.agenciesUpdated++
		}
	}

	for i, child := range distinct {
		var target domain.Agency
		if idx := matches[i]; idx >= 0 {
			target = persisted[idx]
		} else {
			inserted, err := m.insertChild(ctx, parent, child)
			if err != nil {
				return err
			}
			target = inserted
		}
		if target.ID == 0 {
			return &domain.MissingIdentityError{Context: "matched " + string(child.Type) + " under agency " + fmt.Sprint(parent.ID)}
		}
		if err := m.mergeAgency(ctx, child, target, policy, false); err != nil {
			return err
		}
	}
	return nil
}

func (m *merger) insertChild(ctx context.Context, parent domain.Agency, child domain.Agency) (domain.Agency, error) {
	row := domain.Agency{
		ParentID:                parent.ID,
		Type:                    child.Type,
		TerritoryCode:           child.TerritoryCode,
		ReferencedByDocumentURL: child.ReferencedByDocumentURL,
		StillReferenced:         domain.Bool(true),
		Certificate:             child.Certificate,
	}
	id, err := m.repo.InsertAgency(ctx, row)
	if err != nil {
		return domain.Agency{}, fmt.Errorf("insert %s under %d: %w", child.Type, parent.ID, err)
	}
	row.ID = id
	m.changes.agenciesInserted++
	return row, nil
}

// updateNames adds missing names and, under PruneNames, deletes names the
// parsed agency no longer declares.
func (m *merger) updateNames(ctx context.Context, owner domain.Agency, parsed []domain.AgencyName, policy NamePolicy) error {
	if owner.ID == 0 {
		return &domain.MissingIdentityError{Context: "names owner"}
	}
	existing, err := m.repo.FindNames(ctx, owner.ID)
	if err != nil {
		return fmt.Errorf("find names of %d: %w", owner.ID, err)
	}

	wanted := mergeNames(parsed)
	for _, name := range wanted {
		if containsName(existing, name) {
			continue
		}
		if _, err := m.repo.InsertName(ctx, domain.AgencyName{AgencyID: owner.ID, LanguageCode: name.LanguageCode, Name: name.Name}); err != nil {
			return fmt.Errorf("insert name of %d: %w", owner.ID, err)
		}
		m.changes.namesInserted++
	}

	if policy != PruneNames {
		return nil
	}
	for _, name := range existing {
		if containsName(wanted, name) {
			continue
		}
		if err := m.repo.DeleteName(ctx, name.ID); err != nil {
			return fmt.Errorf("delete name %d: %w", name.ID, err)
		}
		m.changes.namesDeleted++
	}
	return nil
}

// updateDocuments upserts parsed documents under owner. A url provided by
// another agency moves to owner. Under PruneDocuments, documents in the
// merger's scope that owner no longer lists are marked not provided.
func (m *merger) updateDocuments(ctx context.Context, owner domain.Agency, parsed []domain.Document, policy DocumentPolicy) error {
	if owner.ID == 0 {
		return &domain.MissingIdentityError{Context: "documents owner"}
	}
	existing, err := m.repo.FindDocumentsByAgency(ctx, owner.ID)
	if err != nil {
		return fmt.Errorf("find documents of %d: %w", owner.ID, err)
	}
	byURL := make(map[string]domain.Document, len(existing))
	for _, doc := range existing {
		byURL[doc.URL] = doc
	}

	wanted := mergeDocuments(parsed)
	listed := make(map[string]bool, len(wanted))
	for _, doc := range wanted {
		listed[doc.URL] = true
		if doc.ReferencedByType == "" {
			doc.ReferencedByType = m.scope.provenance()
		}

		current, ok := byURL[doc.URL]
		if !ok {
			current, err = m.repo.FindDocumentByURL(ctx, doc.URL)
			switch {
			case errors.Is(err, domain.ErrNotFound):
				doc.ID = 0
				doc.AgencyID = owner.ID
				doc.StillProvided = true
				if _, err := m.repo.InsertDocument(ctx, doc); err != nil {
					return fmt.Errorf("insert document %s: %w", doc.URL, err)
				}
				m.changes.docsInserted++
				continue
			case err != nil:
				return fmt.Errorf("find document %s: %w", doc.URL, err)
			}
		}

		updated := refreshDocument(current, doc, owner.ID)
		if updated == current {
			continue
		}
		if err := m.repo.UpdateDocument(ctx, updated); err != nil {
			return fmt.Errorf("update document %s: %w", doc.URL, err)
		}
		m.changes.docsUpdated++
	}

	if policy != PruneDocuments {
		return nil
	}
	for _, doc := range existing {
		if listed[doc.URL] || !doc.StillProvided || !m.scope.owns(doc) {
			continue
		}
		doc.StillProvided = false
		if err := m.repo.UpdateDocument(ctx, doc); err != nil {
			return fmt.Errorf("retract document %s: %w", doc.URL, err)
		}
		m.changes.docsRetracted++
	}
	return nil
}

// refreshDocument applies parsed attributes to a persisted document. A
// document still asserted by a status list keeps that provenance when a
// service definition mentions it too.
func refreshDocument(current, parsed domain.Document, ownerID int64) domain.Document {
	updated := current
	updated.AgencyID = ownerID
	if parsed.LanguageCode != "" {
		updated.LanguageCode = parsed.LanguageCode
	}
	if parsed.Type != "" {
		updated.Type = parsed.Type
	}
	keepProvenance := current.StillProvided &&
		current.AgencyID == ownerID &&
		current.ReferencedByType == domain.DocumentStatusList &&
		parsed.ReferencedByType == domain.DocumentServiceDefinition
	if !keepProvenance {
		updated.ReferencedByType = parsed.ReferencedByType
	}
	updated.StillProvided = true
	return updated
}
