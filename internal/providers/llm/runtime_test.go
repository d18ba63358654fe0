package llm

import (
	"context"
	"errors"
	"testing"

	"medbrand/searchservice/internal/domain"
)

type memoryRuntimeStore struct {
	entries map[string]RuntimeProviderState
	saves   int
	lastCtx context.Context
}

func newMemoryRuntimeStore() *memoryRuntimeStore {
	return &memoryRuntimeStore{entries: make(map[string]RuntimeProviderState)}
}

func (s *memoryRuntimeStore) Load(ctx context.Context) (map[string]RuntimeProviderState, error) {
	out := make(map[string]RuntimeProviderState, len(s.entries))
	for name, state := range s.entries {
		out[name] = state
	}
	return out, nil
}

func (s *memoryRuntimeStore) Save(ctx context.Context, provider string, state RuntimeProviderState) error {
	s.saves++
	s.lastCtx = ctx
	s.entries[provider] = state
	return nil
}

func strPtr(v string) *string { return &v }

func TestUpdateProviderConfigPatchesAndPersists(t *testing.T) {
	provider := NewOpenAI("", nil)
	store := newMemoryRuntimeStore()
	service := NewRuntimeConfigService(store, provider)

	updated, err := service.UpdateProviderConfig(context.Background(), domain.ProviderRuntimePatch{Name: "openai", APIKey: strPtr("sk-verylongsecretkey")})
	if err != nil {
		t.Fatalf("update error: %v", err)
	}
	if !updated.HasAPIKey {
		t.Fatal("expected HasAPIKey after patch")
	}
	if !updated.Configured {
		t.Fatal("expected configured with preset endpoint/model plus key")
	}
	if store.saves != 1 {
		t.Fatalf("expected 1 persisted save, got %d", store.saves)
	}
	if !provider.Info().Enabled {
		t.Fatal("expected provider enabled after key set")
	}
}

type runtimeTestCtxKey struct{}

func TestUpdateProviderConfigPropagatesContextToStore(t *testing.T) {
	provider := NewOpenAI("", nil)
	store := newMemoryRuntimeStore()
	service := NewRuntimeConfigService(store, provider)

	ctx := context.WithValue(context.Background(), runtimeTestCtxKey{}, "request-scoped")
	if _, err := service.UpdateProviderConfig(ctx, domain.ProviderRuntimePatch{Name: "openai", APIKey: strPtr("sk-key")}); err != nil {
		t.Fatalf("update error: %v", err)
	}
	if store.lastCtx == nil {
		t.Fatal("expected a persisted save")
	}
	if got, _ := store.lastCtx.Value(runtimeTestCtxKey{}).(string); got != "request-scoped" {
		t.Fatal("expected the caller's context to reach the store save")
	}
}

func TestUpdateProviderConfigNilFieldsUntouched(t *testing.T) {
	provider := NewDeepSeek("sk-initial-key", nil)
	service := NewRuntimeConfigService(nil, provider)

	updated, err := service.UpdateProviderConfig(context.Background(), domain.ProviderRuntimePatch{Name: "deepseek", Endpoint: strPtr("https://example.com/v1")})
	if err != nil {
		t.Fatalf("update error: %v", err)
	}
	if updated.Endpoint != "https://example.com/v1" {
		t.Fatalf("unexpected endpoint %q", updated.Endpoint)
	}
	if updated.Model != "deepseek-chat" {
		t.Fatalf("expected model untouched, got %q", updated.Model)
	}
	if !updated.HasAPIKey {
		t.Fatal("expected key untouched")
	}
}

func TestUpdateProviderConfigEmptyStringClears(t *testing.T) {
	provider := NewOpenAI("sk-initial-key", nil)
	service := NewRuntimeConfigService(nil, provider)

	updated, err := service.UpdateProviderConfig(context.Background(), domain.ProviderRuntimePatch{Name: "openai", APIKey: strPtr("")})
	if err != nil {
		t.Fatalf("update error: %v", err)
	}
	if updated.HasAPIKey || updated.Configured {
		t.Fatalf("expected key cleared, got %#v", updated)
	}
	if provider.Info().Enabled {
		t.Fatal("expected provider disabled after key cleared")
	}
}

func TestUpdateProviderConfigUnknownProvider(t *testing.T) {
	service := NewRuntimeConfigService(nil, NewOpenAI("", nil))

	_, err := service.UpdateProviderConfig(context.Background(), domain.ProviderRuntimePatch{Name: "unknown"})
	if !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
}

func TestRuntimeConfigServiceRestoresPersistedState(t *testing.T) {
	store := newMemoryRuntimeStore()
	store.entries["perplexity"] = RuntimeProviderState{
		Endpoint: "https://proxy.example.com/chat",
		Model:    "sonar-pro",
		APIKey:   "pplx-restored-key",
	}

	provider := NewPerplexity("", nil)
	NewRuntimeConfigService(store, provider)

	config := provider.RuntimeConfig()
	if config.Endpoint != "https://proxy.example.com/chat" || config.Model != "sonar-pro" {
		t.Fatalf("expected restored settings, got %#v", config)
	}
	if !config.HasAPIKey {
		t.Fatal("expected restored key")
	}
}

func TestListProviderConfigsSortedAndMasked(t *testing.T) {
	service := NewRuntimeConfigService(nil,
		NewPerplexity("pplx-1234567890abcd", nil),
		NewOpenAI("short", nil),
		NewDeepSeek("", nil),
	)

	items := service.ListProviderConfigs()
	if len(items) != 3 {
		t.Fatalf("expected 3 configs, got %d", len(items))
	}
	if items[0].Name != "deepseek" || items[1].Name != "openai" || items[2].Name != "perplexity" {
		t.Fatalf("expected sorted names, got %v, %v, %v", items[0].Name, items[1].Name, items[2].Name)
	}
	if items[2].APIKeyPreview != "pplx...abcd" {
		t.Fatalf("unexpected preview %q", items[2].APIKeyPreview)
	}
	if items[1].APIKeyPreview != "*****" {
		t.Fatalf("expected short key fully masked, got %q", items[1].APIKeyPreview)
	}
	if items[0].HasAPIKey {
		t.Fatal("expected deepseek without key")
	}
}

func TestPreviewAPIKey(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"abc", "***"},
		{"12345678", "********"},
		{"sk-abcdef123456", "sk-a...3456"},
	}
	for _, tc := range cases {
		if got := previewAPIKey(tc.in); got != tc.want {
			t.Errorf("previewAPIKey(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
