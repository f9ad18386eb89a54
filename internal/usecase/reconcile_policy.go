package usecase

import "TrustRegistry/internal/domain"

// NamePolicy decides what happens to persisted names missing from a parsed agency.
type NamePolicy int

const (
	PruneNames NamePolicy = iota
	PreserveNames
)

// DocumentPolicy decides what happens to persisted documents missing from a parsed agency.
type DocumentPolicy int

const (
	PruneDocuments DocumentPolicy = iota
	PreserveDocuments
)

// MergePolicy is applied to one agency while reconciling a parsed tree.
type MergePolicy struct {
	Names     NamePolicy
	Documents DocumentPolicy
}

var (
	topListOperatorPolicy   = MergePolicy{Names: PruneNames, Documents: PreserveDocuments}
	childListOperatorPolicy = MergePolicy{Names: PruneNames, Documents: PruneDocuments}
	providerPolicy          = MergePolicy{Names: PreserveNames, Documents: PruneDocuments}
)

// policyFor returns the policy for a child of the given type. Services inherit
// the policy of their provider.
func policyFor(childType domain.AgencyType, parent MergePolicy) MergePolicy {
	switch childType {
	case domain.AgencyListOperator:
		return childListOperatorPolicy
	case domain.AgencyProvider:
		return providerPolicy
	default:
		return parent
	}
}

// childTypesOf lists the child passes run below an agency. A child list
// operator's own providers are reconciled by the pass over its own list, so
// nothing runs below it here.
func childTypesOf(agency domain.Agency, top bool) []domain.AgencyType {
	switch {
	case top:
		return []domain.AgencyType{domain.AgencyListOperator, domain.AgencyProvider}
	case agency.Type == domain.AgencyProvider:
		return []domain.AgencyType{domain.AgencyService}
	default:
		return nil
	}
}

// documentScope selects which persisted documents a pass may retract.
type documentScope int

const (
	statusListScope documentScope = iota
	serviceDefinitionScope
)

func (s documentScope) owns(doc domain.Document) bool {
	if s == serviceDefinitionScope {
		return doc.ReferencedByType == domain.DocumentServiceDefinition
	}
	return doc.ReferencedByType != domain.DocumentServiceDefinition
}

func (s documentScope) provenance() domain.DocumentType {
	if s == serviceDefinitionScope {
		return domain.DocumentServiceDefinition
	}
	return domain.DocumentStatusList
}
