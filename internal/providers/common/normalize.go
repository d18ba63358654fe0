package common

import (
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"medbrand/searchservice/internal/domain"
)

var titleCaser = cases.Title(language.English)

// SlugID builds a record ID from the provider prefix and name parts, e.g.
// "openfda-advil-pfizer". When every part is blank it falls back to a random
// UUID so the record still gets a unique ID.
func SlugID(prefix string, parts ...string) string {
	cleaned := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.ToLower(strings.TrimSpace(part))
		part = strings.Join(strings.Fields(part), "-")
		if part != "" {
			cleaned = append(cleaned, part)
		}
	}
	if len(cleaned) == 0 {
		return prefix + "-" + uuid.NewString()
	}
	return prefix + "-" + strings.Join(cleaned, "-")
}

// NormalizeCountry trims and title-cases a backend-reported country name.
// The Global and union-wide sentinels pass through unchanged; empty input
// maps to Global.
func NormalizeCountry(raw string) string {
	value := strings.TrimSpace(raw)
	if value == "" {
		return domain.CountryGlobal
	}
	if strings.EqualFold(value, domain.CountryGlobal) {
		return domain.CountryGlobal
	}
	if strings.EqualFold(value, domain.CountryEU) {
		return domain.CountryEU
	}
	return titleCaser.String(strings.ToLower(value))
}

// Sanitize trims a record's text fields in place and fills required defaults.
// Records without a brand name or active ingredient are unusable; it reports
// whether the record should be kept. Adapters fill the ingredient with the
// search term when the backend reports none.
func Sanitize(record *domain.Medicine, providerPrefix string) bool {
	record.BrandName = strings.TrimSpace(record.BrandName)
	if record.BrandName == "" {
		return false
	}
	record.ActiveIngredient = strings.TrimSpace(record.ActiveIngredient)
	if record.ActiveIngredient == "" {
		return false
	}
	record.Manufacturer = strings.TrimSpace(record.Manufacturer)
	record.DosageForm = strings.TrimSpace(record.DosageForm)
	record.Strength = strings.TrimSpace(record.Strength)
	record.Country = NormalizeCountry(record.Country)
	if record.ID == "" {
		record.ID = SlugID(providerPrefix, record.BrandName, record.Country)
	}
	if record.Source == "" {
		record.Source = domain.SourceAI
	}
	return true
}
