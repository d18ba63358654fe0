package ema

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"medbrand/searchservice/internal/domain"
	"medbrand/searchservice/internal/providers/common"
)

const (
	defaultEndpoint  = "https://spor.ema.europa.eu/rmswi/api"
	defaultUserAgent = "medbrand-search/1.0"
)

type Config struct {
	Endpoint  string
	UserAgent string
	Client    *http.Client
}

// Provider queries the European Medicines Agency product registry. Records
// without an explicit member state are authorized union-wide.
type Provider struct {
	client    *http.Client
	endpoint  string
	userAgent string
}

type apiProduct struct {
	ID                           string `json:"id"`
	Name                         string `json:"name"`
	TradeName                    string `json:"tradeName"`
	ActiveSubstance              string `json:"activeSubstance"`
	Country                      string `json:"country"`
	MarketingAuthorisationHolder string `json:"marketingAuthorisationHolder"`
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
	return "ema"
}

func (p *Provider) Info() domain.ProviderInfo {
	return domain.ProviderInfo{
		Name:    p.Name(),
		Label:   "European Medicines Agency",
		Kind:    "regulatory",
		Enabled: true,
	}
}

func (p *Provider) Search(ctx context.Context, term, country string) ([]domain.Medicine, error) {
	uri, err := url.Parse(p.endpoint + "/medicinal-products")
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	query := uri.Query()
	query.Set("name", strings.TrimSpace(term))
	uri.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri.String(), nil)
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
		return nil, fmt.Errorf("ema HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return nil, err
	}

	var products []apiProduct
	if err := json.Unmarshal(payload, &products); err != nil {
		return nil, fmt.Errorf("ema payload: %w", err)
	}

	var results []domain.Medicine
	for _, product := range products {
		brand := strings.TrimSpace(product.Name)
		if brand == "" {
			brand = strings.TrimSpace(product.TradeName)
		}
		ingredient := strings.TrimSpace(product.ActiveSubstance)
		if ingredient == "" {
			ingredient = term
		}
		recordCountry := strings.TrimSpace(product.Country)
		if recordCountry == "" {
			recordCountry = domain.CountryEU
		}
		record := domain.Medicine{
			BrandName:        brand,
			ActiveIngredient: ingredient,
			Country:          recordCountry,
			Manufacturer:     product.MarketingAuthorisationHolder,
			Source:           domain.SourceAI,
		}
		if id := strings.TrimSpace(product.ID); id != "" {
			record.ID = "ema-" + id
		}
		if !common.Sanitize(&record, "ema") {
			continue
		}
		results = append(results, record)
	}
	return results, nil
}
