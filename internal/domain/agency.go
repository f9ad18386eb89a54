package domain

import "strings"

// AgencyType classifies nodes of the agency tree. Declaration order is the
// identity comparator order.
type AgencyType string

const (
	AgencyListOperator AgencyType = "LIST_OPERATOR"
	AgencyProvider     AgencyType = "PROVIDER"
	AgencyService      AgencyType = "SERVICE"
)

// rank returns the position of the type in declaration order; unknown types sort first.
func (t AgencyType) rank() int {
	switch t {
	case AgencyListOperator:
		return 1
	case AgencyProvider:
		return 2
	case AgencyService:
		return 3
	default:
		return 0
	}
}

// Agency is a node of the trust-service agency tree.
//
// Persisted agencies are stored arena-style: rows keyed by ID and linked to
// their parent through ParentID. Children is only populated on freshly parsed
// (unpersisted) trees.
type Agency struct {
	ID       int64
	ParentID int64
	Type     AgencyType

	// TerritoryCode is set on list operators only.
	TerritoryCode string

	// ReferencedByDocumentURL is the document that last asserted the agency; empty for the root.
	ReferencedByDocumentURL string

	// StillReferenced is nil only for the root, which is never retracted.
	StillReferenced *bool

	Certificate string

	Names     []AgencyName
	Documents []Document
	Children  []Agency
}

// IsRoot reports whether the agency sits at the top of the tree.
func (a Agency) IsRoot() bool {
	return a.ParentID == 0
}

// Referenced reports the value of StillReferenced, treating nil as false.
func (a Agency) Referenced() bool {
	return a.StillReferenced != nil && *a.StillReferenced
}

// NameIn returns the last name declared for the language code, compared case-insensitively.
func (a Agency) NameIn(languageCode string) (AgencyName, bool) {
	for i := len(a.Names) - 1; i >= 0; i-- {
		if strings.EqualFold(a.Names[i].LanguageCode, languageCode) {
			return a.Names[i], true
		}
	}
	return AgencyName{}, false
}

// AgencyName is the name of an agency translated into one language.
type AgencyName struct {
	ID           int64
	AgencyID     int64
	LanguageCode string
	Name         string
}

// SameName reports whether two names share the dedup key: case-insensitive language and exact text.
func SameName(a, b AgencyName) bool {
	return strings.EqualFold(a.LanguageCode, b.LanguageCode) && a.Name == b.Name
}

// Bool returns a pointer to v, handy for the tri-state StillReferenced flag.
func Bool(v bool) *bool {
	return &v
}
