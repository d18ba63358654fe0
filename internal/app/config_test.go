package app

import (
	"os"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	// An empty value is treated as unset for these keys.
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("SEARCH_TIMEOUT_SECONDS", "")
	t.Setenv("LOCAL_DB_PATH", "placeholder")
	os.Unsetenv("LOCAL_DB_PATH")

	cfg := LoadConfig()
	if cfg.HTTPAddr != ":8085" {
		t.Fatalf("unexpected default addr %q", cfg.HTTPAddr)
	}
	if cfg.RequestTimeout != 8*time.Second {
		t.Fatalf("unexpected default timeout %v", cfg.RequestTimeout)
	}
	if cfg.DatabasePath != "data/medicines.db" {
		t.Fatalf("unexpected default database path %q", cfg.DatabasePath)
	}
}

func TestLoadConfigLocalDBPath(t *testing.T) {
	t.Setenv("LOCAL_DB_PATH", "/var/lib/medsearch/medicines.db")

	cfg := LoadConfig()
	if cfg.DatabasePath != "/var/lib/medsearch/medicines.db" {
		t.Fatalf("unexpected database path %q", cfg.DatabasePath)
	}
}

func TestLoadConfigEmptyLocalDBPathDisablesStore(t *testing.T) {
	t.Setenv("LOCAL_DB_PATH", "")

	cfg := LoadConfig()
	if cfg.DatabasePath != "" {
		t.Fatalf("expected empty path to stay empty, got %q", cfg.DatabasePath)
	}
}

func TestGetEnvIntRejectsGarbage(t *testing.T) {
	t.Setenv("SEARCH_TIMEOUT_SECONDS", "not-a-number")
	if got := getEnvInt("SEARCH_TIMEOUT_SECONDS", 8); got != 8 {
		t.Fatalf("expected fallback on parse failure, got %d", got)
	}
	t.Setenv("SEARCH_TIMEOUT_SECONDS", "-3")
	if got := getEnvInt("SEARCH_TIMEOUT_SECONDS", 8); got != 8 {
		t.Fatalf("expected fallback on non-positive value, got %d", got)
	}
}
