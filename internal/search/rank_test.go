package search

import (
	"reflect"
	"testing"

	"medbrand/searchservice/internal/domain"
)

func TestDedupeKeepsFirstOccurrence(t *testing.T) {
	records := []domain.Medicine{
		{ID: "1", BrandName: "Tylenol", ActiveIngredient: "Acetaminophen", Country: "United States", Source: domain.SourceRegistry},
		{ID: "2", BrandName: "  tylenol ", ActiveIngredient: "ACETAMINOPHEN", Country: "United States", Source: domain.SourceRegistry},
		{ID: "3", BrandName: "Tylenol", ActiveIngredient: "Acetaminophen", Country: "Canada", Source: domain.SourceRegistry},
	}

	unique := Dedupe(records)
	if len(unique) != 2 {
		t.Fatalf("expected 2 unique records, got %d", len(unique))
	}
	if unique[0].ID != "1" {
		t.Fatalf("expected first occurrence kept, got %s", unique[0].ID)
	}
	if unique[1].ID != "3" {
		t.Fatalf("expected different country kept separate, got %s", unique[1].ID)
	}
}

func TestDedupePromotesCrossSourceDuplicates(t *testing.T) {
	records := []domain.Medicine{
		{ID: "1", BrandName: "Nurofen", ActiveIngredient: "Ibuprofen", Country: "United Kingdom", Source: domain.SourceRegistry},
		{ID: "2", BrandName: "Nurofen", ActiveIngredient: "Ibuprofen", Country: "United Kingdom", Source: domain.SourceAI},
	}

	unique := Dedupe(records)
	if len(unique) != 1 {
		t.Fatalf("expected 1 record, got %d", len(unique))
	}
	if unique[0].Source != domain.SourceBoth {
		t.Fatalf("expected source both, got %s", unique[0].Source)
	}
}

func TestDedupeSameSourceNotPromoted(t *testing.T) {
	records := []domain.Medicine{
		{ID: "1", BrandName: "Advil", ActiveIngredient: "Ibuprofen", Country: "United States", Source: domain.SourceAI},
		{ID: "2", BrandName: "Advil", ActiveIngredient: "Ibuprofen", Country: "United States", Source: domain.SourceAI},
	}

	unique := Dedupe(records)
	if unique[0].Source != domain.SourceAI {
		t.Fatalf("expected source unchanged, got %s", unique[0].Source)
	}
}

func TestDedupeIdempotent(t *testing.T) {
	records := []domain.Medicine{
		{ID: "1", BrandName: "Nurofen", ActiveIngredient: "Ibuprofen", Country: "United Kingdom", Source: domain.SourceRegistry},
		{ID: "2", BrandName: "Nurofen", ActiveIngredient: "Ibuprofen", Country: "United Kingdom", Source: domain.SourceAI},
		{ID: "3", BrandName: "Advil", ActiveIngredient: "Ibuprofen", Country: "United States", Source: domain.SourceAI},
		{ID: "4", BrandName: "Tylenol", ActiveIngredient: "Acetaminophen", Country: "United States", Source: domain.SourceRegistry},
	}

	once := Dedupe(records)
	twice := Dedupe(once)

	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("second pass changed the list:\nonce:  %#v\ntwice: %#v", once, twice)
	}
	// The promotion from the first pass must not re-fire: the kept record is
	// already SourceBoth and a clean list has no duplicate to promote it with.
	if twice[0].Source != domain.SourceBoth {
		t.Fatalf("expected promoted record to stay SourceBoth, got %s", twice[0].Source)
	}
}

func TestFilterByCountry(t *testing.T) {
	records := []domain.Medicine{
		{ID: "1", Country: "United States"},
		{ID: "2", Country: "United Kingdom"},
		{ID: "3", Country: domain.CountryGlobal},
		{ID: "4", Country: domain.CountryEU},
	}

	kept := FilterByCountry(records, "united kingdom")
	if len(kept) != 3 {
		t.Fatalf("expected 3 records, got %d", len(kept))
	}
	for _, record := range kept {
		if record.ID == "1" {
			t.Fatal("expected US record dropped")
		}
	}

	if got := FilterByCountry(records, ""); len(got) != 4 {
		t.Fatalf("expected empty filter to keep everything, got %d", len(got))
	}
	if got := FilterByCountry(records, "all"); len(got) != 4 {
		t.Fatalf("expected 'all' sentinel to keep everything, got %d", len(got))
	}
}

func TestBrandMatchTier(t *testing.T) {
	cases := []struct {
		brand string
		term  string
		want  int
	}{
		{"Aspirin", "aspirin", 3},
		{"Aspirin Plus", "aspirin", 2},
		{"Super Aspirin", "aspirin", 1},
		{"Tylenol", "aspirin", 0},
		{"", "aspirin", 0},
		{"Aspirin", "", 0},
	}
	for _, tc := range cases {
		if got := brandMatchTier(tc.brand, tc.term); got != tc.want {
			t.Errorf("brandMatchTier(%q, %q) = %d, want %d", tc.brand, tc.term, got, tc.want)
		}
	}
}

func TestRankCascade(t *testing.T) {
	records := []domain.Medicine{
		{ID: "minor", BrandName: "Aspirin", Country: "Iceland", Source: domain.SourceAI},
		{ID: "major", BrandName: "Aspirin", Country: "Germany", Source: domain.SourceAI},
		{ID: "registry", BrandName: "Aspirin", Country: "Iceland", Source: domain.SourceRegistry},
		{ID: "prefix", BrandName: "Aspirin Forte", Country: "Germany", Source: domain.SourceRegistry},
		{ID: "local", BrandName: "Some Generic", Country: "Iceland", Source: domain.SourceAI, Local: true},
	}

	Rank(records, "aspirin", "")

	order := make([]string, len(records))
	for i, record := range records {
		order[i] = record.ID
	}
	want := []string{"local", "registry", "major", "minor", "prefix"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("unexpected rank order: got %v, want %v", order, want)
		}
	}
}

func TestRankCountryFilterBreaksTies(t *testing.T) {
	records := []domain.Medicine{
		{ID: "global", BrandName: "Doliprane", Country: domain.CountryGlobal, Source: domain.SourceAI},
		{ID: "french", BrandName: "Doliprane", Country: "France", Source: domain.SourceAI},
	}

	Rank(records, "doliprane", "France")
	if records[0].ID != "french" {
		t.Fatalf("expected filter-matching record first, got %s", records[0].ID)
	}
}

func TestRankAssignsRelevanceScores(t *testing.T) {
	records := []domain.Medicine{
		{BrandName: "Aspirin", Country: "Germany", Source: domain.SourceRegistry, Local: true},
	}
	Rank(records, "aspirin", "Germany")

	// exact 3*10 + registry 2*3 + local 100 + filter match 2 + major 1
	if records[0].RelevanceScore != 139 {
		t.Fatalf("unexpected relevance score %v", records[0].RelevanceScore)
	}
}

func TestRankStableForEqualRecords(t *testing.T) {
	records := []domain.Medicine{
		{ID: "first", BrandName: "Aspirin", Country: "Germany", Source: domain.SourceAI},
		{ID: "second", BrandName: "Aspirin", Country: "Germany", Source: domain.SourceAI},
	}
	Rank(records, "aspirin", "")
	if records[0].ID != "first" || records[1].ID != "second" {
		t.Fatalf("expected stable order preserved, got %s, %s", records[0].ID, records[1].ID)
	}
}
