package wikidata

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
	defaultEndpoint  = "https://www.wikidata.org/w/api.php"
	defaultUserAgent = "medbrand-search/1.0"
	searchLimit      = 10
	maxResults       = 5
)

// medicineMarkers are the description words that identify a Wikidata entity
// as pharmaceutical.
var medicineMarkers = []string{
	"medication",
	"drug",
	"pharmaceutical",
	"medicine",
	"treatment",
}

type Config struct {
	Endpoint  string
	UserAgent string
	Client    *http.Client
}

// Provider searches Wikidata entities and keeps the ones whose description
// marks them as pharmaceutical, or whose label contains the term.
type Provider struct {
	client    *http.Client
	endpoint  string
	userAgent string
}

type searchResponse struct {
	Search []struct {
		ID          string `json:"id"`
		Label       string `json:"label"`
		Description string `json:"description"`
	} `json:"search"`
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
		endpoint:  endpoint,
		userAgent: userAgent,
	}
}

func (p *Provider) Name() string {
	return "wikidata"
}

func (p *Provider) Info() domain.ProviderInfo {
	return domain.ProviderInfo{
		Name:    p.Name(),
		Label:   "Wikidata",
		Kind:    "knowledge",
		Enabled: true,
	}
}

func (p *Provider) Search(ctx context.Context, term, country string) ([]domain.Medicine, error) {
	uri, err := url.Parse(p.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	query := uri.Query()
	query.Set("action", "wbsearchentities")
	query.Set("search", strings.TrimSpace(term))
	query.Set("language", "en")
	query.Set("format", "json")
	query.Set("limit", fmt.Sprintf("%d", searchLimit))
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
		return nil, fmt.Errorf("wikidata HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return nil, err
	}

	var parsed searchResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("wikidata payload: %w", err)
	}

	recordCountry := strings.TrimSpace(country)
	if recordCountry == "" || strings.EqualFold(recordCountry, domain.CountryAll) {
		recordCountry = domain.CountryGlobal
	}
	needle := strings.ToLower(strings.TrimSpace(term))

	var results []domain.Medicine
	for _, entity := range parsed.Search {
		if !isMedicineEntity(entity.Description, entity.Label, needle) {
			continue
		}
		record := domain.Medicine{
			BrandName:        entity.Label,
			ActiveIngredient: term,
			Country:          recordCountry,
			Manufacturer:     "Various",
			Source:           domain.SourceAI,
		}
		if id := strings.TrimSpace(entity.ID); id != "" {
			record.ID = "wikidata-" + id
		}
		if !common.Sanitize(&record, "wikidata") {
			continue
		}
		results = append(results, record)
		if len(results) >= maxResults {
			break
		}
	}
	return results, nil
}

func isMedicineEntity(description, label, needle string) bool {
	lower := strings.ToLower(description)
	for _, marker := range medicineMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return needle != "" && strings.Contains(strings.ToLower(label), needle)
}
