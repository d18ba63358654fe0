package pubchem

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"unicode"

	"medbrand/searchservice/internal/domain"
	"medbrand/searchservice/internal/providers/common"
)

const (
	defaultEndpoint  = "https://pubchem.ncbi.nlm.nih.gov/rest/pug"
	defaultUserAgent = "medbrand-search/1.0"
	maxResults       = 8
)

type Config struct {
	Endpoint  string
	UserAgent string
	Client    *http.Client
}

// Provider extracts brand-like names from PubChem compound synonyms. Most
// synonyms are chemical nomenclature; only ones that look like marketed
// product names survive the filter.
type Provider struct {
	client    *http.Client
	endpoint  string
	userAgent string
}

type synonymsResponse struct {
	InformationList struct {
		Information []struct {
			Synonym []string `json:"Synonym"`
		} `json:"Information"`
	} `json:"InformationList"`
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
	return "pubchem"
}

func (p *Provider) Info() domain.ProviderInfo {
	return domain.ProviderInfo{
		Name:    p.Name(),
		Label:   "PubChem",
		Kind:    "chemistry",
		Enabled: true,
	}
}

func (p *Provider) Search(ctx context.Context, term, country string) ([]domain.Medicine, error) {
	endpoint := fmt.Sprintf("%s/compound/name/%s/synonyms/JSON", p.endpoint, url.PathEscape(strings.TrimSpace(term)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
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

	// PubChem reports an unknown compound as 404.
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("pubchem HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 8*1024*1024))
	if err != nil {
		return nil, err
	}

	var parsed synonymsResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("pubchem payload: %w", err)
	}

	recordCountry := strings.TrimSpace(country)
	if recordCountry == "" || strings.EqualFold(recordCountry, domain.CountryAll) {
		recordCountry = domain.CountryGlobal
	}

	var results []domain.Medicine
	for _, info := range parsed.InformationList.Information {
		for _, synonym := range info.Synonym {
			if !looksLikeBrandName(synonym) {
				continue
			}
			record := domain.Medicine{
				BrandName:        synonym,
				ActiveIngredient: term,
				Country:          recordCountry,
				Manufacturer:     "Various",
				Source:           domain.SourceAI,
			}
			if !common.Sanitize(&record, "pubchem") {
				continue
			}
			results = append(results, record)
			if len(results) >= maxResults {
				return results, nil
			}
		}
	}
	return results, nil
}

// looksLikeBrandName filters chemical nomenclature out of the synonym list:
// brand names start with a capital letter, have sane length, and avoid the
// punctuation and vocabulary of systematic names.
func looksLikeBrandName(synonym string) bool {
	name := strings.TrimSpace(synonym)
	if len(name) < 3 || len(name) > 25 {
		return false
	}
	runes := []rune(name)
	if !unicode.IsUpper(runes[0]) || !unicode.IsLetter(runes[1]) {
		return false
	}
	if strings.ContainsAny(name, "-(,") {
		return false
	}
	lower := strings.ToLower(name)
	if strings.Contains(lower, "acid") || strings.Contains(lower, "salt") {
		return false
	}
	return true
}
