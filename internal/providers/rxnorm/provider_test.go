package rxnorm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"medbrand/searchservice/internal/domain"
)

func TestSearchSkipsIngredientTermTypes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/drugs.json" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("name"); got != "ibuprofen" {
			t.Errorf("unexpected name param %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"drugGroup": {
				"conceptGroup": [
					{"tty": "IN", "conceptProperties": [
						{"rxcui": "5640", "name": "ibuprofen", "tty": "IN"}
					]},
					{"tty": "SBD", "conceptProperties": [
						{"rxcui": "153010", "name": "Advil 200 MG Oral Tablet", "tty": "SBD", "language": "ENG"},
						{"rxcui": "201126", "name": "Motrin 400 MG Oral Tablet", "tty": "SBD"}
					]},
					{"tty": "MIN", "conceptProperties": [
						{"rxcui": "817579", "name": "ibuprofen / pseudoephedrine", "tty": "MIN"}
					]}
				]
			}
		}`))
	}))
	defer server.Close()

	provider := NewProvider(Config{Endpoint: server.URL})
	records, err := provider.Search(context.Background(), "ibuprofen", "")
	if err != nil {
		t.Fatalf("search error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records (IN/MIN skipped), got %d", len(records))
	}

	first := records[0]
	if first.ID != "rxnorm-153010" {
		t.Fatalf("unexpected ID %q", first.ID)
	}
	if first.Source != domain.SourceRegistry {
		t.Fatalf("expected registry source, got %s", first.Source)
	}
	if first.Country != "United States" {
		t.Fatalf("unexpected country %q", first.Country)
	}
	if first.RxNorm == nil || first.RxNorm.RxCUI != "153010" || first.RxNorm.TTY != "SBD" {
		t.Fatalf("expected registry metadata attached, got %#v", first.RxNorm)
	}
	if first.ActiveIngredient != "ibuprofen" {
		t.Fatalf("expected search term as ingredient, got %q", first.ActiveIngredient)
	}
}

func TestSearchEmptyDrugGroup(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"drugGroup": {"name": "nosuchdrug"}}`))
	}))
	defer server.Close()

	provider := NewProvider(Config{Endpoint: server.URL})
	records, err := provider.Search(context.Background(), "nosuchdrug", "")
	if err != nil {
		t.Fatalf("search error: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records, got %d", len(records))
	}
}

func TestSearchUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	provider := NewProvider(Config{Endpoint: server.URL})
	if _, err := provider.Search(context.Background(), "aspirin", ""); err == nil {
		t.Fatal("expected error on HTTP 503")
	}
}

func TestSearchMalformedPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>not json</html>`))
	}))
	defer server.Close()

	provider := NewProvider(Config{Endpoint: server.URL})
	if _, err := provider.Search(context.Background(), "aspirin", ""); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestProviderInfo(t *testing.T) {
	provider := NewProvider(Config{})
	info := provider.Info()
	if info.Name != "rxnorm" || info.Kind != "registry" || !info.Enabled {
		t.Fatalf("unexpected info: %#v", info)
	}
}
