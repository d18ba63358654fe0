package clinicaltrials

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
	defaultEndpoint  = "https://clinicaltrials.gov/api/query"
	defaultUserAgent = "medbrand-search/1.0"
	maxStudies       = 50
	maxResults       = 10
)

type Config struct {
	Endpoint  string
	UserAgent string
	Client    *http.Client
}

// Provider mines intervention names from ClinicalTrials.gov study fields.
// Only interventions whose name overlaps the search term in either direction
// are kept.
type Provider struct {
	client    *http.Client
	endpoint  string
	userAgent string
}

type studyFieldsResponse struct {
	StudyFieldsResponse struct {
		StudyFields []struct {
			InterventionName []string `json:"InterventionName"`
			LocationCountry  []string `json:"LocationCountry"`
		} `json:"StudyFields"`
	} `json:"StudyFieldsResponse"`
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
	return "clinicaltrials"
}

func (p *Provider) Info() domain.ProviderInfo {
	return domain.ProviderInfo{
		Name:    p.Name(),
		Label:   "ClinicalTrials.gov",
		Kind:    "research",
		Enabled: true,
	}
}

func (p *Provider) Search(ctx context.Context, term, country string) ([]domain.Medicine, error) {
	uri, err := url.Parse(p.endpoint + "/study_fields")
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	query := uri.Query()
	query.Set("expr", strings.TrimSpace(term))
	query.Set("fields", "BriefTitle,InterventionName,LocationCountry,Condition")
	query.Set("min_rnk", "1")
	query.Set("max_rnk", fmt.Sprintf("%d", maxStudies))
	query.Set("fmt", "json")
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
		return nil, fmt.Errorf("clinicaltrials HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 8*1024*1024))
	if err != nil {
		return nil, err
	}

	var parsed studyFieldsResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("clinicaltrials payload: %w", err)
	}

	needle := strings.ToLower(strings.TrimSpace(term))
	seen := make(map[string]struct{})
	var results []domain.Medicine
	for _, study := range parsed.StudyFieldsResponse.StudyFields {
		studyCountry := domain.CountryGlobal
		if len(study.LocationCountry) > 0 && strings.TrimSpace(study.LocationCountry[0]) != "" {
			studyCountry = study.LocationCountry[0]
		}
		for _, intervention := range study.InterventionName {
			name := strings.TrimSpace(intervention)
			lower := strings.ToLower(name)
			if lower == "" {
				continue
			}
			if !strings.Contains(lower, needle) && !strings.Contains(needle, lower) {
				continue
			}
			key := lower + "|" + studyCountry
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			record := domain.Medicine{
				BrandName:        name,
				ActiveIngredient: term,
				Country:          studyCountry,
				Manufacturer:     "Clinical Research",
				Source:           domain.SourceAI,
			}
			if !common.Sanitize(&record, "clinicaltrials") {
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
