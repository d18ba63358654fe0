package localstore

import (
	"context"
	"fmt"
	"testing"

	"medbrand/searchservice/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func seedRecords() []domain.Medicine {
	return []domain.Medicine{
		{ID: "1", BrandName: "Tylenol", ActiveIngredient: "Acetaminophen", Country: "United States", Manufacturer: "Johnson & Johnson", Source: "registry"},
		{ID: "2", BrandName: "Panadol", ActiveIngredient: "Paracetamol", Country: "United Kingdom", Manufacturer: "GSK", Source: "ai"},
		{ID: "3", BrandName: "Advil", ActiveIngredient: "Ibuprofen", Country: "United States", Manufacturer: "Pfizer", Source: "ai"},
		{ID: "4", BrandName: "Doliprane", ActiveIngredient: "Paracetamol", Country: "France", Manufacturer: "Sanofi", Source: "ai"},
		{ID: "5", BrandName: "Generic Paracetamol", ActiveIngredient: "Paracetamol", Country: "Global", Source: "ai"},
	}
}

func TestBulkInsertAndCount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	report, err := store.BulkInsert(ctx, seedRecords())
	if err != nil {
		t.Fatalf("bulk insert: %v", err)
	}
	if report.Inserted != 5 || report.Failed != 0 {
		t.Fatalf("unexpected report: %#v", report)
	}

	total, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if total != 5 {
		t.Fatalf("expected 5 records, got %d", total)
	}
}

func TestBulkInsertCountsInvalidRecordsAsFailed(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	report, err := store.BulkInsert(ctx, []domain.Medicine{
		{ID: "1", BrandName: "Advil", ActiveIngredient: "Ibuprofen", Country: "United States"},
		{ID: "2", BrandName: "   ", ActiveIngredient: "Ibuprofen"},
		{ID: "3", BrandName: "Nurofen", ActiveIngredient: "  "},
	})
	if err != nil {
		t.Fatalf("bulk insert: %v", err)
	}
	if report.Inserted != 1 || report.Failed != 2 {
		t.Fatalf("unexpected report: %#v", report)
	}

	// The empty-ingredient record must not be served back by a later search.
	found, err := store.SearchLocal(ctx, "nurofen", "")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(found) != 0 {
		t.Fatalf("expected empty-ingredient record dropped, got %v", ids(found))
	}
}

func TestBulkInsertReplacesByID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	record := domain.Medicine{ID: "1", BrandName: "Advil", ActiveIngredient: "Ibuprofen", Country: "United States"}
	if _, err := store.BulkInsert(ctx, []domain.Medicine{record}); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	record.Manufacturer = "Pfizer"
	if _, err := store.BulkInsert(ctx, []domain.Medicine{record}); err != nil {
		t.Fatalf("second insert: %v", err)
	}

	total, _ := store.Count(ctx)
	if total != 1 {
		t.Fatalf("expected upsert to keep 1 record, got %d", total)
	}
	records, err := store.SearchLocal(ctx, "advil", "")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if records[0].Manufacturer != "Pfizer" {
		t.Fatalf("expected replaced record, got %#v", records[0])
	}
}

func TestBulkInsertGeneratesMissingIDs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.BulkInsert(ctx, []domain.Medicine{
		{BrandName: "Panadol Extra", Country: "United Kingdom", ActiveIngredient: "Paracetamol"},
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	records, err := store.SearchLocal(ctx, "panadol", "")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(records) != 1 || records[0].ID == "" {
		t.Fatalf("expected generated ID, got %#v", records)
	}
}

func TestSearchLocalMatchOrdering(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	records := []domain.Medicine{
		{ID: "contains", BrandName: "Super Paracetamol Forte", ActiveIngredient: "Something Else", Country: "Global"},
		{ID: "exact", BrandName: "Paracetamol", ActiveIngredient: "Paracetamol", Country: "Global"},
		{ID: "prefix", BrandName: "Paracetamol Extra", ActiveIngredient: "Something Else", Country: "Global"},
		{ID: "ingredient", BrandName: "Doliprane", ActiveIngredient: "Paracetamol", Country: "France"},
	}
	if _, err := store.BulkInsert(ctx, records); err != nil {
		t.Fatalf("insert: %v", err)
	}

	found, err := store.SearchLocal(ctx, "paracetamol", "")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(found) != 4 {
		t.Fatalf("expected 4 matches, got %d", len(found))
	}
	wantOrder := []string{"exact", "ingredient", "prefix", "contains"}
	for i, want := range wantOrder {
		if found[i].ID != want {
			t.Fatalf("unexpected order at %d: got %s, want %s (full: %v)", i, found[i].ID, want, ids(found))
		}
	}
}

func ids(records []domain.Medicine) []string {
	out := make([]string, len(records))
	for i, record := range records {
		out[i] = record.ID
	}
	return out
}

func TestSearchLocalManufacturerMatch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.BulkInsert(ctx, seedRecords()); err != nil {
		t.Fatalf("insert: %v", err)
	}
	found, err := store.SearchLocal(ctx, "pfizer", "")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(found) != 1 || found[0].BrandName != "Advil" {
		t.Fatalf("expected manufacturer match, got %v", ids(found))
	}
}

func TestSearchLocalFuzzyMatch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.BulkInsert(ctx, seedRecords()); err != nil {
		t.Fatalf("insert: %v", err)
	}
	found, err := store.SearchLocal(ctx, "tylenl", "")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(found) != 1 || found[0].BrandName != "Tylenol" {
		t.Fatalf("expected fuzzy brand match, got %v", ids(found))
	}
}

func TestSearchLocalCountryFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.BulkInsert(ctx, seedRecords()); err != nil {
		t.Fatalf("insert: %v", err)
	}
	found, err := store.SearchLocal(ctx, "paracetamol", "france")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	// France match plus the Global record.
	if len(found) != 2 {
		t.Fatalf("expected 2 matches, got %v", ids(found))
	}
	for _, record := range found {
		if record.Country != "France" && record.Country != domain.CountryGlobal {
			t.Fatalf("unexpected country %q", record.Country)
		}
	}
}

func TestSearchLocalCapsResults(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	records := make([]domain.Medicine, 250)
	for i := range records {
		records[i] = domain.Medicine{
			ID:               fmt.Sprintf("id%d", i),
			BrandName:        fmt.Sprintf("Aspirin Variant %d", i),
			ActiveIngredient: "Aspirin",
			Country:          "Global",
		}
	}
	if _, err := store.BulkInsert(ctx, records); err != nil {
		t.Fatalf("insert: %v", err)
	}
	found, err := store.SearchLocal(ctx, "aspirin", "")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(found) != 200 {
		t.Fatalf("expected cap at 200, got %d", len(found))
	}
}

func TestStatistics(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.BulkInsert(ctx, seedRecords()); err != nil {
		t.Fatalf("insert: %v", err)
	}
	stats, err := store.Statistics(ctx)
	if err != nil {
		t.Fatalf("statistics: %v", err)
	}
	if stats.Total != 5 {
		t.Fatalf("expected total 5, got %d", stats.Total)
	}
	if len(stats.Countries) != 4 {
		t.Fatalf("expected 4 distinct countries, got %v", stats.Countries)
	}
	if len(stats.Sources) != 2 {
		t.Fatalf("expected 2 distinct sources, got %v", stats.Sources)
	}
	if len(stats.TopIngredients) == 0 || stats.TopIngredients[0].ActiveIngredient != "Paracetamol" {
		t.Fatalf("expected Paracetamol on top, got %v", stats.TopIngredients)
	}
	if stats.TopIngredients[0].Count != 3 {
		t.Fatalf("expected 3 paracetamol records, got %d", stats.TopIngredients[0].Count)
	}
}

func TestClear(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.BulkInsert(ctx, seedRecords()); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	total, _ := store.Count(ctx)
	if total != 0 {
		t.Fatalf("expected empty store, got %d", total)
	}
}

func TestMatchRank(t *testing.T) {
	record := domain.Medicine{
		BrandName:        "Paracetamol",
		ActiveIngredient: "Paracetamol",
		Manufacturer:     "Acme Pharma",
	}
	if rank, ok := matchRank(record, "paracetamol"); !ok || rank != 0 {
		t.Fatalf("expected exact brand rank 0, got %d ok=%v", rank, ok)
	}
	if _, ok := matchRank(record, ""); ok {
		t.Fatal("expected empty needle to never match")
	}
	if rank, ok := matchRank(record, "acme"); !ok || rank != 6 {
		t.Fatalf("expected manufacturer rank 6, got %d ok=%v", rank, ok)
	}
	if _, ok := matchRank(record, "zzzzzzzz"); ok {
		t.Fatal("expected no match")
	}
}

func TestFuzzyMatch(t *testing.T) {
	if !fuzzyMatch("tylenol", "tylenl") {
		t.Fatal("expected single-typo match")
	}
	if fuzzyMatch("tylenol", "aspirin") {
		t.Fatal("expected unrelated strings to not match")
	}
	if fuzzyMatch("ab", "xy") {
		t.Fatal("expected short strings to require equality")
	}
}

func TestLevenshtein(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"kitten", "sitting", 3},
		{"aspirin", "aspirin", 0},
	}
	for _, tc := range cases {
		if got := levenshtein(tc.a, tc.b); got != tc.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestImportSourcesCatalog(t *testing.T) {
	sources := ImportSources()
	if len(sources) != 10 {
		t.Fatalf("expected 10 sources, got %d", len(sources))
	}

	// Returned slice is a copy; mutating it must not affect the catalog.
	sources[0].Name = "mutated"
	if ImportSources()[0].Name == "mutated" {
		t.Fatal("expected catalog copy")
	}
}
