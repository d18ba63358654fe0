package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"medbrand/searchservice/internal/domain"
	"medbrand/searchservice/internal/providers/common"
)

const (
	defaultUserAgent = "medbrand-search/1.0"
	defaultMaxTokens = 1000
	maxBrands        = 10
)

type Config struct {
	Name         string
	Label        string
	Endpoint     string
	Model        string
	APIKey       string
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
	UserAgent    string
	Client       *http.Client
}

// Provider asks an OpenAI-compatible chat-completions endpoint for brand
// names. A provider without an API key is a configured no-op: Search returns
// no records and no error, so it degrades silently instead of erroring on
// every fan-out. Endpoint, model and key are runtime-patchable under mu.
type Provider struct {
	mu           sync.RWMutex
	name         string
	label        string
	endpoint     string
	model        string
	apiKey       string
	systemPrompt string
	temperature  float64
	maxTokens    int
	userAgent    string
	client       *http.Client
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type brandEntry struct {
	BrandName    string `json:"brandName"`
	Name         string `json:"name"`
	Country      string `json:"country"`
	Manufacturer string `json:"manufacturer"`
}

func NewProvider(cfg Config) *Provider {
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Provider{
		name:         strings.ToLower(strings.TrimSpace(cfg.Name)),
		label:        strings.TrimSpace(cfg.Label),
		endpoint:     strings.TrimSpace(cfg.Endpoint),
		model:        strings.TrimSpace(cfg.Model),
		apiKey:       strings.TrimSpace(cfg.APIKey),
		systemPrompt: strings.TrimSpace(cfg.SystemPrompt),
		temperature:  cfg.Temperature,
		maxTokens:    maxTokens,
		userAgent:    userAgent,
		client:       client,
	}
}

// NewOpenAI builds the OpenAI preset.
func NewOpenAI(apiKey string, client *http.Client) *Provider {
	return NewProvider(Config{
		Name:        "openai",
		Label:       "OpenAI",
		Endpoint:    "https://api.openai.com/v1/chat/completions",
		Model:       "gpt-3.5-turbo",
		APIKey:      apiKey,
		Temperature: 0.7,
		Client:      client,
	})
}

// NewPerplexity builds the Perplexity preset.
func NewPerplexity(apiKey string, client *http.Client) *Provider {
	return NewProvider(Config{
		Name:         "perplexity",
		Label:        "Perplexity",
		Endpoint:     "https://api.perplexity.ai/chat/completions",
		Model:        "llama-3.1-sonar-small-128k-online",
		APIKey:       apiKey,
		SystemPrompt: "Return medicine brand information as a JSON array of objects with brandName, country, manufacturer fields.",
		Temperature:  0.2,
		Client:       client,
	})
}

// NewDeepSeek builds the DeepSeek preset.
func NewDeepSeek(apiKey string, client *http.Client) *Provider {
	return NewProvider(Config{
		Name:        "deepseek",
		Label:       "DeepSeek",
		Endpoint:    "https://api.deepseek.com/chat/completions",
		Model:       "deepseek-chat",
		APIKey:      apiKey,
		Temperature: 0.2,
		Client:      client,
	})
}

func (p *Provider) Name() string {
	return p.name
}

func (p *Provider) Info() domain.ProviderInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return domain.ProviderInfo{
		Name:    p.name,
		Label:   p.label,
		Kind:    "llm",
		Enabled: p.apiKey != "",
	}
}

type snapshot struct {
	endpoint     string
	model        string
	apiKey       string
	systemPrompt string
	temperature  float64
	maxTokens    int
	userAgent    string
	client       *http.Client
}

func (p *Provider) snapshot() snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return snapshot{
		endpoint:     p.endpoint,
		model:        p.model,
		apiKey:       p.apiKey,
		systemPrompt: p.systemPrompt,
		temperature:  p.temperature,
		maxTokens:    p.maxTokens,
		userAgent:    p.userAgent,
		client:       p.client,
	}
}

func (p *Provider) Search(ctx context.Context, term, country string) ([]domain.Medicine, error) {
	state := p.snapshot()
	if state.apiKey == "" {
		return nil, nil
	}
	if state.endpoint == "" || state.model == "" {
		return nil, fmt.Errorf("llm provider %s is not configured", p.name)
	}

	scope := "worldwide"
	if trimmed := strings.TrimSpace(country); trimmed != "" && !strings.EqualFold(trimmed, domain.CountryAll) {
		scope = "in " + trimmed
	}
	prompt := fmt.Sprintf(
		"List brand names for the medicine %q available %s. Return a JSON array with objects containing: brandName, country, manufacturer. Limit to %d results.",
		strings.TrimSpace(term), scope, maxBrands,
	)

	messages := make([]chatMessage, 0, 2)
	if state.systemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: state.systemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	body, err := json.Marshal(chatRequest{
		Model:       state.model,
		Messages:    messages,
		MaxTokens:   state.maxTokens,
		Temperature: state.temperature,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, state.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+state.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", state.userAgent)

	resp, err := state.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("%s HTTP %d: %s", p.name, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return nil, err
	}

	var parsed chatResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("%s payload: %w", p.name, err)
	}
	if len(parsed.Choices) == 0 {
		return nil, nil
	}

	entries, err := parseBrandEntries(parsed.Choices[0].Message.Content)
	if err != nil {
		return nil, fmt.Errorf("%s completion: %w", p.name, err)
	}

	var results []domain.Medicine
	for _, entry := range entries {
		brand := strings.TrimSpace(entry.BrandName)
		if brand == "" {
			brand = strings.TrimSpace(entry.Name)
		}
		entryCountry := strings.TrimSpace(entry.Country)
		if entryCountry == "" {
			entryCountry = strings.TrimSpace(country)
		}
		manufacturer := strings.TrimSpace(entry.Manufacturer)
		if manufacturer == "" {
			manufacturer = "Various"
		}
		record := domain.Medicine{
			BrandName:        brand,
			ActiveIngredient: term,
			Country:          entryCountry,
			Manufacturer:     manufacturer,
			Source:           domain.SourceAI,
		}
		if !common.Sanitize(&record, p.name) {
			continue
		}
		results = append(results, record)
		if len(results) >= maxBrands {
			break
		}
	}
	return results, nil
}

// parseBrandEntries decodes the completion content into brand entries.
// Models often wrap the array in markdown code fences or prose; the first
// JSON array found in the content is used.
func parseBrandEntries(content string) ([]brandEntry, error) {
	text := stripCodeFences(content)
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array in completion")
	}
	var entries []brandEntry
	if err := json.Unmarshal([]byte(text[start:end+1]), &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func stripCodeFences(content string) string {
	text := strings.TrimSpace(content)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
