package usecase

import "TrustRegistry/internal/domain"

// foldDuplicates merges parsed siblings the comparator considers the same
// agency. Inputs are left untouched.
func foldDuplicates(agencies []domain.Agency) []domain.Agency {
	out := make([]domain.Agency, 0, len(agencies))
	for _, agency := range agencies {
		merged := false
		for i := range out {
			if domain.SameAgency(&out[i], &agency) {
				out[i] = mergeAgencies(out[i], agency)
				merged = true
				break
			}
		}
		if !merged {
			out = append(out, copyAgency(agency))
		}
	}
	return out
}

func mergeAgencies(a, b domain.Agency) domain.Agency {
	out := a
	out.Names = mergeNames(a.Names, b.Names)
	out.Documents = mergeDocuments(a.Documents, b.Documents)
	out.Children = append(append([]domain.Agency(nil), a.Children...), b.Children...)
	if out.Certificate == "" {
		out.Certificate = b.Certificate
	}
	return out
}

func copyAgency(a domain.Agency) domain.Agency {
	out := a
	out.Names = append([]domain.AgencyName(nil), a.Names...)
	out.Documents = append([]domain.Document(nil), a.Documents...)
	out.Children = append([]domain.Agency(nil), a.Children...)
	return out
}

// mergeNames concatenates both lists keeping the first of each language and text pair.
func mergeNames(lists ...[]domain.AgencyName) []domain.AgencyName {
	var out []domain.AgencyName
	for _, names := range lists {
		for _, name := range names {
			if !containsName(out, name) {
				out = append(out, name)
			}
		}
	}
	return out
}

// mergeDocuments concatenates both lists keeping the first document of each url.
func mergeDocuments(lists ...[]domain.Document) []domain.Document {
	var out []domain.Document
	seen := map[string]bool{}
	for _, docs := range lists {
		for _, doc := range docs {
			if seen[doc.URL] {
				continue
			}
			seen[doc.URL] = true
			out = append(out, doc)
		}
	}
	return out
}

func containsName(names []domain.AgencyName, name domain.AgencyName) bool {
	for _, candidate := range names {
		if domain.SameName(candidate, name) {
			return true
		}
	}
	return false
}

func childrenOfType(agencies []domain.Agency, agencyType domain.AgencyType) []domain.Agency {
	var out []domain.Agency
	for _, agency := range agencies {
		if agency.Type == agencyType {
			out = append(out, agency)
		}
	}
	return out
}

// matchPersisted returns the index of the persisted agency identical to
// parsed, preferring one not claimed by an earlier sibling; -1 when none.
func matchPersisted(persisted []domain.Agency, claimed []bool, parsed domain.Agency) int {
	fallback := -1
	for i := range persisted {
		if !domain.SameAgency(&persisted[i], &parsed) {
			continue
		}
		if !claimed[i] {
			return i
		}
		if fallback < 0 {
			fallback = i
		}
	}
	return fallback
}
