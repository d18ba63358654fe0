package search

import (
	"strings"

	"medbrand/searchservice/internal/domain"
)

// Static enrichment tables for the most frequently searched ingredients.
// Backends often omit form and strength entirely; these fill the gap with the
// most common presentation rather than leaving the fields blank.
var (
	dosageFormByIngredient = map[string]string{
		"ibuprofen":     "Tablet",
		"acetaminophen": "Tablet",
		"paracetamol":   "Tablet",
		"aspirin":       "Tablet",
		"amoxicillin":   "Capsule",
		"diclofenac":    "Tablet",
	}
	strengthByIngredient = map[string]string{
		"ibuprofen":     "400mg",
		"acetaminophen": "500mg",
		"paracetamol":   "500mg",
		"aspirin":       "325mg",
		"amoxicillin":   "500mg",
		"diclofenac":    "50mg",
	}
)

// Enhance fills missing dosage form and strength fields in place from the
// static tables. Values reported by a backend are never overwritten.
func Enhance(records []domain.Medicine) {
	for i := range records {
		ingredient := strings.ToLower(strings.TrimSpace(records[i].ActiveIngredient))
		if ingredient == "" {
			continue
		}
		if records[i].DosageForm == "" {
			records[i].DosageForm = dosageFormByIngredient[ingredient]
		}
		if records[i].Strength == "" {
			records[i].Strength = strengthByIngredient[ingredient]
		}
	}
}
