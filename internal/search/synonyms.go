package search

import "strings"

// alternativeNames maps well-known active ingredients to the other names they
// are marketed or indexed under. Registries disagree on the preferred name
// (acetaminophen vs paracetamol being the classic case), so a fallback pass
// re-queries with these when the primary term comes back thin.
var alternativeNames = map[string][]string{
	"acetaminophen": {"paracetamol", "APAP", "N-acetyl-p-aminophenol"},
	"paracetamol":   {"acetaminophen", "APAP"},
	"ibuprofen":     {"iso-butyl-propionic-phenolic acid"},
	"aspirin":       {"acetylsalicylic acid", "ASA"},
	"diclofenac":    {"dichlofenac"},
}

// AlternativeNames returns known alternative names for the given ingredient,
// or nil when none are known.
func AlternativeNames(term string) []string {
	names, ok := alternativeNames[strings.ToLower(strings.TrimSpace(term))]
	if !ok {
		return nil
	}
	return append([]string(nil), names...)
}
