package rxnorm

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
	defaultEndpoint  = "https://rxnav.nlm.nih.gov/REST"
	defaultUserAgent = "medbrand-search/1.0"
)

// skippedTTYs are RxNorm term types that describe ingredients rather than
// marketable products, so they never yield a brand entry.
var skippedTTYs = map[string]struct{}{
	"IN":  {},
	"PIN": {},
	"MIN": {},
}

type Config struct {
	Endpoint  string
	UserAgent string
	Client    *http.Client
}

// Provider queries the RxNorm drug-naming registry. It is the only backend
// whose records carry the registry source kind.
type Provider struct {
	client    *http.Client
	endpoint  string
	userAgent string
}

type drugsResponse struct {
	DrugGroup struct {
		ConceptGroup []struct {
			TTY               string            `json:"tty"`
			ConceptProperties []conceptProperty `json:"conceptProperties"`
		} `json:"conceptGroup"`
	} `json:"drugGroup"`
}

type conceptProperty struct {
	RxCUI    string `json:"rxcui"`
	Name     string `json:"name"`
	Synonym  string `json:"synonym"`
	TTY      string `json:"tty"`
	Language string `json:"language"`
	Suppress string `json:"suppress"`
	UMLSCUI  string `json:"umlscui"`
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
	return "rxnorm"
}

func (p *Provider) Info() domain.ProviderInfo {
	return domain.ProviderInfo{
		Name:    p.Name(),
		Label:   "RxNorm",
		Kind:    "registry",
		Enabled: true,
	}
}

func (p *Provider) Search(ctx context.Context, term, country string) ([]domain.Medicine, error) {
	uri, err := url.Parse(p.endpoint + "/drugs.json")
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
		return nil, fmt.Errorf("rxnorm HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return nil, err
	}

	var parsed drugsResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("rxnorm payload: %w", err)
	}

	var results []domain.Medicine
	for _, group := range parsed.DrugGroup.ConceptGroup {
		for _, concept := range group.ConceptProperties {
			tty := strings.ToUpper(strings.TrimSpace(concept.TTY))
			if tty == "" {
				continue
			}
			if _, skip := skippedTTYs[tty]; skip {
				continue
			}
			record := domain.Medicine{
				ID:               "rxnorm-" + strings.TrimSpace(concept.RxCUI),
				BrandName:        concept.Name,
				ActiveIngredient: term,
				Country:          "United States",
				Source:           domain.SourceRegistry,
				RxNorm: &domain.RxNormConcept{
					RxCUI:    concept.RxCUI,
					Name:     concept.Name,
					Synonym:  concept.Synonym,
					TTY:      concept.TTY,
					Language: concept.Language,
					Suppress: concept.Suppress,
					UMLSCUI:  concept.UMLSCUI,
				},
			}
			if !common.Sanitize(&record, "rxnorm") {
				continue
			}
			results = append(results, record)
		}
	}
	return results, nil
}
