package search

import (
	"sort"
	"strings"

	"medbrand/searchservice/internal/domain"
)

// majorCountries is a population-weighted fallback heuristic for unfiltered
// global searches: brands marketed in these countries surface first when no
// stronger signal separates two records.
var majorCountries = map[string]struct{}{
	"united states":  {},
	"india":          {},
	"china":          {},
	"brazil":         {},
	"japan":          {},
	"germany":        {},
	"united kingdom": {},
	"france":         {},
}

// dedupeKey identifies duplicate candidate records: two records are the same
// product iff their case-insensitive, whitespace-trimmed brand name, country
// and active ingredient all match.
func dedupeKey(record domain.Medicine) string {
	return strings.ToLower(strings.TrimSpace(record.BrandName)) + "|" +
		record.Country + "|" +
		strings.ToLower(record.ActiveIngredient)
}

// Dedupe keeps the first occurrence of each distinct product, preserving the
// input order, so the caller controls precedence by concatenation order.
// When a duplicate arrives from a different source kind than the kept record,
// the kept record is promoted to SourceBoth.
func Dedupe(records []domain.Medicine) []domain.Medicine {
	if len(records) == 0 {
		return records
	}
	keptIndex := make(map[string]int, len(records))
	unique := make([]domain.Medicine, 0, len(records))
	for _, record := range records {
		key := dedupeKey(record)
		if at, seen := keptIndex[key]; seen {
			if unique[at].Source != record.Source && record.Source != "" {
				unique[at].Source = domain.SourceBoth
			}
			continue
		}
		keptIndex[key] = len(unique)
		unique = append(unique, record)
	}
	return unique
}

// FilterByCountry narrows records to the requested country. Records whose
// country contains the filter, plus "Global" and union-wide entries, are
// retained; everything else is dropped. An empty filter keeps everything.
func FilterByCountry(records []domain.Medicine, country string) []domain.Medicine {
	filter := strings.ToLower(strings.TrimSpace(country))
	if filter == "" || filter == domain.CountryAll {
		return records
	}
	kept := make([]domain.Medicine, 0, len(records))
	for _, record := range records {
		recordCountry := strings.ToLower(record.Country)
		if strings.Contains(recordCountry, filter) ||
			record.Country == domain.CountryGlobal ||
			record.Country == domain.CountryEU {
			kept = append(kept, record)
		}
	}
	return kept
}

// brandMatchTier scores how well a brand name matches the search term:
// exact 3, prefix 2, substring 1, none 0. Tiers are mutually exclusive.
func brandMatchTier(brandName, term string) int {
	brand := strings.ToLower(strings.TrimSpace(brandName))
	needle := strings.ToLower(strings.TrimSpace(term))
	switch {
	case needle == "" || brand == "":
		return 0
	case brand == needle:
		return 3
	case strings.HasPrefix(brand, needle):
		return 2
	case strings.Contains(brand, needle):
		return 1
	default:
		return 0
	}
}

func sourceRank(kind domain.SourceKind) int {
	switch kind {
	case domain.SourceRegistry:
		return 2
	case domain.SourceBoth:
		return 1
	default:
		return 0
	}
}

func isMajorCountry(country string) bool {
	_, ok := majorCountries[strings.ToLower(strings.TrimSpace(country))]
	return ok
}

func countryMatchesFilter(country, filter string) bool {
	if filter == "" {
		return false
	}
	return strings.Contains(strings.ToLower(country), strings.ToLower(filter))
}

// Rank orders the deduplicated list by the fixed tier cascade: local-store
// records, brand-match quality, source reliability, country-filter match,
// major-market country, then country name ascending. It also assigns each
// record's relevance score as a byproduct.
func Rank(records []domain.Medicine, term, country string) {
	for i := range records {
		records[i].RelevanceScore = relevanceScore(records[i], term, country)
	}
	sort.SliceStable(records, func(i, j int) bool {
		return compareRecords(records[i], records[j], term, country) < 0
	})
}

// compareRecords returns a negative value when a ranks above b. Each tier
// only breaks ties left by the previous one, which makes the order total and
// transitive.
func compareRecords(a, b domain.Medicine, term, country string) int {
	if a.Local != b.Local {
		if a.Local {
			return -1
		}
		return 1
	}
	if ta, tb := brandMatchTier(a.BrandName, term), brandMatchTier(b.BrandName, term); ta != tb {
		return tb - ta
	}
	if sa, sb := sourceRank(a.Source), sourceRank(b.Source); sa != sb {
		return sb - sa
	}
	if country != "" && country != domain.CountryAll {
		am, bm := countryMatchesFilter(a.Country, country), countryMatchesFilter(b.Country, country)
		if am != bm {
			if am {
				return -1
			}
			return 1
		}
	}
	if am, bm := isMajorCountry(a.Country), isMajorCountry(b.Country); am != bm {
		if am {
			return -1
		}
		return 1
	}
	return strings.Compare(a.Country, b.Country)
}

func relevanceScore(record domain.Medicine, term, country string) float64 {
	score := float64(brandMatchTier(record.BrandName, term))*10 +
		float64(sourceRank(record.Source))*3
	if record.Local {
		score += 100
	}
	if country != "" && country != domain.CountryAll && countryMatchesFilter(record.Country, country) {
		score += 2
	}
	if isMajorCountry(record.Country) {
		score++
	}
	return score
}
