package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"medbrand/searchservice/internal/domain"
)

var ErrUnknownProvider = errors.New("unknown provider")

// RuntimeConfigService manages the credentials of the completion providers at
// runtime, so keys can be set through the API without a restart. Updates are
// persisted through the optional store and restored on startup.
type RuntimeConfigService struct {
	providers map[string]*Provider
	store     RuntimeConfigStore
}

func NewRuntimeConfigService(store RuntimeConfigStore, providers ...*Provider) *RuntimeConfigService {
	registry := make(map[string]*Provider, len(providers))
	for _, provider := range providers {
		if provider == nil {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(provider.Name()))
		if name == "" {
			continue
		}
		registry[name] = provider
	}
	service := &RuntimeConfigService{
		providers: registry,
		store:     store,
	}
	service.restorePersistedRuntimeSettings()
	return service
}

func (s *RuntimeConfigService) restorePersistedRuntimeSettings() {
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	entries, err := s.store.Load(ctx)
	if err != nil || len(entries) == 0 {
		return
	}
	for name, state := range entries {
		provider := s.providers[strings.ToLower(strings.TrimSpace(name))]
		if provider == nil {
			continue
		}
		endpoint := state.Endpoint
		model := state.Model
		apiKey := state.APIKey
		provider.UpdateRuntimeSettings(&endpoint, &model, &apiKey)
	}
}

func (s *RuntimeConfigService) persistProviderRuntimeSettings(ctx context.Context, providerName string) {
	if s.store == nil {
		return
	}
	name := strings.ToLower(strings.TrimSpace(providerName))
	provider := s.providers[name]
	if provider == nil {
		return
	}
	state := provider.RuntimeSettingsState()
	saveCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_ = s.store.Save(saveCtx, name, state)
}

func (s *RuntimeConfigService) ListProviderConfigs() []domain.ProviderRuntimeConfig {
	if len(s.providers) == 0 {
		return nil
	}
	items := make([]domain.ProviderRuntimeConfig, 0, len(s.providers))
	for _, provider := range s.providers {
		items = append(items, provider.RuntimeConfig())
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].Name < items[j].Name
	})
	return items
}

func (s *RuntimeConfigService) UpdateProviderConfig(ctx context.Context, patch domain.ProviderRuntimePatch) (domain.ProviderRuntimeConfig, error) {
	name := strings.ToLower(strings.TrimSpace(patch.Name))
	provider := s.providers[name]
	if provider == nil {
		return domain.ProviderRuntimeConfig{}, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	updated := provider.UpdateRuntimeSettings(patch.Endpoint, patch.Model, patch.APIKey)
	s.persistProviderRuntimeSettings(ctx, name)
	return updated, nil
}

func (p *Provider) RuntimeSettingsState() RuntimeProviderState {
	state := p.snapshot()
	return RuntimeProviderState{
		Endpoint: strings.TrimSpace(state.endpoint),
		Model:    strings.TrimSpace(state.model),
		APIKey:   strings.TrimSpace(state.apiKey),
	}
}

func (p *Provider) RuntimeConfig() domain.ProviderRuntimeConfig {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.runtimeConfigLocked()
}

func (p *Provider) runtimeConfigLocked() domain.ProviderRuntimeConfig {
	endpoint := strings.TrimSpace(p.endpoint)
	apiKey := strings.TrimSpace(p.apiKey)
	return domain.ProviderRuntimeConfig{
		Name:          p.name,
		Label:         p.label,
		Endpoint:      endpoint,
		Model:         strings.TrimSpace(p.model),
		HasAPIKey:     apiKey != "",
		APIKeyPreview: previewAPIKey(apiKey),
		Configured:    endpoint != "" && p.model != "" && apiKey != "",
	}
}

// UpdateRuntimeSettings applies a partial update. Nil fields stay as they
// are; an empty string clears the value.
func (p *Provider) UpdateRuntimeSettings(endpoint, model, apiKey *string) domain.ProviderRuntimeConfig {
	p.mu.Lock()
	defer p.mu.Unlock()

	if endpoint != nil {
		p.endpoint = strings.TrimSpace(*endpoint)
	}
	if model != nil {
		p.model = strings.TrimSpace(*model)
	}
	if apiKey != nil {
		p.apiKey = strings.TrimSpace(*apiKey)
	}
	return p.runtimeConfigLocked()
}

// previewAPIKey masks a key down to its first and last four characters, so
// the settings API never echoes full credentials.
func previewAPIKey(apiKey string) string {
	value := strings.TrimSpace(apiKey)
	if value == "" {
		return ""
	}
	if len(value) <= 8 {
		return strings.Repeat("*", len(value))
	}
	return value[:4] + "..." + value[len(value)-4:]
}
