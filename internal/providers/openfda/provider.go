package openfda

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
	defaultEndpoint  = "https://api.fda.gov/drug"
	defaultUserAgent = "medbrand-search/1.0"
	defaultLimit     = 100
)

type Config struct {
	Endpoint  string
	UserAgent string
	Limit     int
	Client    *http.Client
}

// Provider queries openFDA drug labels by brand name.
type Provider struct {
	client    *http.Client
	endpoint  string
	userAgent string
	limit     int
}

type labelResponse struct {
	Results []struct {
		OpenFDA struct {
			BrandName        []string `json:"brand_name"`
			GenericName      []string `json:"generic_name"`
			ManufacturerName []string `json:"manufacturer_name"`
		} `json:"openfda"`
	} `json:"results"`
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
	limit := cfg.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	return &Provider{
		client:    client,
		endpoint:  strings.TrimRight(endpoint, "/"),
		userAgent: userAgent,
		limit:     limit,
	}
}

func (p *Provider) Name() string {
	return "openfda"
}

func (p *Provider) Info() domain.ProviderInfo {
	return domain.ProviderInfo{
		Name:    p.Name(),
		Label:   "openFDA",
		Kind:    "regulatory",
		Enabled: true,
	}
}

func (p *Provider) Search(ctx context.Context, term, country string) ([]domain.Medicine, error) {
	uri, err := url.Parse(p.endpoint + "/label.json")
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	query := uri.Query()
	query.Set("search", fmt.Sprintf("openfda.brand_name:%q", strings.TrimSpace(term)))
	query.Set("limit", fmt.Sprintf("%d", p.limit))
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

	// openFDA reports an empty result set as 404.
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("openfda HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 8*1024*1024))
	if err != nil {
		return nil, err
	}

	var parsed labelResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("openfda payload: %w", err)
	}

	var results []domain.Medicine
	for _, label := range parsed.Results {
		ingredient := term
		if len(label.OpenFDA.GenericName) > 0 && strings.TrimSpace(label.OpenFDA.GenericName[0]) != "" {
			ingredient = label.OpenFDA.GenericName[0]
		}
		manufacturer := ""
		if len(label.OpenFDA.ManufacturerName) > 0 {
			manufacturer = label.OpenFDA.ManufacturerName[0]
		}
		for _, brand := range label.OpenFDA.BrandName {
			record := domain.Medicine{
				BrandName:        brand,
				ActiveIngredient: ingredient,
				Country:          "United States",
				Manufacturer:     manufacturer,
				Source:           domain.SourceAI,
			}
			if !common.Sanitize(&record, "openfda") {
				continue
			}
			results = append(results, record)
		}
	}
	return results, nil
}
