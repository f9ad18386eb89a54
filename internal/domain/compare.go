package domain

import "strings"

// CompareAgencies orders agencies that have no natural primary key.
//
// Tiers, each short-circuiting on a non-zero result: nil agency first, type,
// territory code (absent first), then equality when both territory codes are
// present and equal, name in the first language common to both agencies, and
// finally the certificate (absent first).
//
// Two distinct agencies sharing a name in some language and carrying no
// certificate compare equal.
func CompareAgencies(a, b *Agency) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}

	if c := compareInt(a.Type.rank(), b.Type.rank()); c != 0 {
		return c
	}

	if c := compareOptional(a.TerritoryCode, b.TerritoryCode); c != 0 {
		return c
	}
	if a.TerritoryCode != "" && a.TerritoryCode == b.TerritoryCode {
		return 0
	}

	if c := compareCommonName(a, b); c != 0 {
		return c
	}

	return compareOptional(a.Certificate, b.Certificate)
}

// SameAgency reports whether the comparator considers both agencies identical.
func SameAgency(a, b *Agency) bool {
	return CompareAgencies(a, b) == 0
}

func compareCommonName(a, b *Agency) int {
	language, ok := firstCommonLanguage(a.Names, b.Names)
	if !ok {
		return 0
	}

	nameA, okA := a.NameIn(language)
	nameB, okB := b.NameIn(language)
	switch {
	case okA && okB:
		return strings.Compare(nameA.Name, nameB.Name)
	case okB:
		return -1
	case okA:
		return 1
	default:
		return 0
	}
}

func firstCommonLanguage(a, b []AgencyName) (string, bool) {
	for _, name := range a {
		for _, other := range b {
			if strings.EqualFold(name.LanguageCode, other.LanguageCode) {
				return name.LanguageCode, true
			}
		}
	}
	return "", false
}

// compareOptional treats the empty string as an absent value sorting first.
func compareOptional(a, b string) int {
	switch {
	case a == "" && b == "":
		return 0
	case a == "":
		return -1
	case b == "":
		return 1
	default:
		return strings.Compare(a, b)
	}
}

func compareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
