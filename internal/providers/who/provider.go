package who

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"medbrand/searchservice/internal/domain"
	"medbrand/searchservice/internal/providers/common"
)

const (
	defaultEndpoint  = "https://ghoapi.azureedge.net/api"
	defaultUserAgent = "medbrand-search/1.0"
	maxCountries     = 15
)

// developedMarkets are the countries whose essential-medicine availability is
// assumed when the WHO country dimension lists them.
var developedMarkets = []string{
	"Germany",
	"France",
	"United Kingdom",
	"Japan",
	"Australia",
	"Canada",
}

type Config struct {
	Endpoint  string
	UserAgent string
	Client    *http.Client
}

// Provider derives generic availability entries from the WHO Global Health
// Observatory country dimension. It yields one generic entry per developed
// market present in the dimension, never brand names.
type Provider struct {
	client    *http.Client
	endpoint  string
	userAgent string
}

type dimensionResponse struct {
	Value []struct {
		Title string `json:"Title"`
	} `json:"value"`
}

func NewProvider(cfg Config) *Provider {
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Provider{
		client:    client,
		endpoint:  strings.TrimRight(endpoint, "/"),
		userAgent: userAgent,
	}
}

func (p *Provider) Name() string {
	return "who"
}

func (p *Provider) Info() domain.ProviderInfo {
	return domain.ProviderInfo{
		Name:    p.Name(),
		Label:   "WHO Essential Medicines",
		Kind:    "registry-derived",
		Enabled: true,
	}
}

func (p *Provider) Search(ctx context.Context, term, country string) ([]domain.Medicine, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"/DIMENSION/COUNTRY/DimensionValues", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("who HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return nil, err
	}

	var parsed dimensionResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("who payload: %w", err)
	}

	countries := make([]string, 0, maxCountries)
	for _, entry := range parsed.Value {
		title := strings.TrimSpace(entry.Title)
		// Grouped entries like "Africa (total)" are not countries.
		if len(title) <= 2 || strings.Contains(title, "(") {
			continue
		}
		countries = append(countries, title)
		if len(countries) >= maxCountries {
			break
		}
	}

	var results []domain.Medicine
	for _, name := range countries {
		if !isDevelopedMarket(name) {
			continue
		}
		record := domain.Medicine{
			BrandName:        fmt.Sprintf("%s (Generic)", strings.TrimSpace(term)),
			ActiveIngredient: term,
			Country:          name,
			Manufacturer:     "WHO Essential Medicines",
			Source:           domain.SourceAI,
		}
		if !common.Sanitize(&record, "who") {
			continue
		}
		results = append(results, record)
	}
	return results, nil
}

func isDevelopedMarket(country string) bool {
	for _, market := range developedMarkets {
		if strings.Contains(country, market) {
			return true
		}
	}
	return false
}
