package domain

// SourceKind tells which class of backend produced a record.
type SourceKind string

const (
	// SourceRegistry marks records from the canonical drug-naming registry (RxNorm).
	SourceRegistry SourceKind = "registry"
	// SourceAI marks records from every other backend: regulatory mirrors,
	// knowledge APIs and completion models alike, since none of them offer
	// authenticated guarantees.
	SourceAI SourceKind = "ai"
	// SourceBoth marks a record confirmed by more than one source kind.
	SourceBoth SourceKind = "both"
)

// RxNormConcept carries registry-specific metadata attached to records
// sourced from the canonical registry.
type RxNormConcept struct {
	RxCUI    string `json:"rxcui"`
	Name     string `json:"name"`
	Synonym  string `json:"synonym,omitempty"`
	TTY      string `json:"tty,omitempty"`
	Language string `json:"language,omitempty"`
	Suppress string `json:"suppress,omitempty"`
	UMLSCUI  string `json:"umlscui,omitempty"`
}

// Medicine is one discovered brand/product entry. IDs are unique within a
// single search response only; they are not persistent identifiers.
type Medicine struct {
	ID               string         `json:"id"`
	BrandName        string         `json:"brandName"`
	ActiveIngredient string         `json:"activeIngredient"`
	Country          string         `json:"country"`
	Manufacturer     string         `json:"manufacturer,omitempty"`
	DosageForm       string         `json:"dosageForm,omitempty"`
	Strength         string         `json:"strength,omitempty"`
	Source           SourceKind     `json:"source"`
	RelevanceScore   float64        `json:"relevanceScore,omitempty"`
	RxNorm           *RxNormConcept `json:"rxNormData,omitempty"`
	Local            bool           `json:"local,omitempty"`
}

// CountryAll is the sentinel meaning "no country filter".
const CountryAll = "all"

// CountryGlobal marks records whose backend did not report a country.
const CountryGlobal = "Global"

// CountryEU marks records authorized union-wide rather than nationally.
const CountryEU = "European Union"

type SearchRequest struct {
	Term    string `json:"term"`
	Country string `json:"country,omitempty"`
	NoCache bool   `json:"noCache,omitempty"`
}

// HasCountryFilter reports whether the request narrows results to a country.
// An absent country and the "all" sentinel are treated identically.
func (r SearchRequest) HasCountryFilter() bool {
	return r.Country != "" && r.Country != CountryAll
}

type ProviderInfo struct {
	Name    string `json:"name"`
	Label   string `json:"label"`
	Kind    string `json:"kind"`
	Enabled bool   `json:"enabled"`
}

type ProviderStatus struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Count int    `json:"count"`
	Error string `json:"error,omitempty"`
}

type SearchResponse struct {
	Term       string           `json:"term"`
	Results    []Medicine       `json:"results"`
	TotalFound int              `json:"totalFound"`
	Providers  []ProviderStatus `json:"providers"`
	ElapsedMS  int64            `json:"elapsedMs"`
	Final      bool             `json:"final"`
	Phase      string           `json:"phase,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// Progress is a snapshot of one in-flight fan-out. Completed only grows and
// Errors only appends until the tracker is reset for the next search.
type Progress struct {
	Total           int      `json:"total"`
	Completed       int      `json:"completed"`
	CurrentProvider string   `json:"currentProvider"`
	Errors          []string `json:"errors"`
}

type ProviderDiagnostics struct {
	Name                string `json:"name"`
	Label               string `json:"label"`
	Kind                string `json:"kind"`
	Enabled             bool   `json:"enabled"`
	ConsecutiveFailures int    `json:"consecutiveFailures"`
	BlockedUntilRFC3339 string `json:"blockedUntil,omitempty"`
	LastError           string `json:"lastError,omitempty"`
	LastLatencyMS       int64  `json:"lastLatencyMs,omitempty"`
	LastTimeout         bool   `json:"lastTimeout,omitempty"`
	LastTerm            string `json:"lastTerm,omitempty"`
	TotalRequests       int64  `json:"totalRequests,omitempty"`
	TotalFailures       int64  `json:"totalFailures,omitempty"`
	TimeoutCount        int64  `json:"timeoutCount,omitempty"`
}

// IngredientCount is one entry of the most-frequent-ingredients statistic.
type IngredientCount struct {
	ActiveIngredient string `json:"activeIngredient"`
	Count            int    `json:"count"`
}

// StoreStatistics summarizes the contents of the local medicine store.
type StoreStatistics struct {
	Total          int               `json:"total"`
	Countries      []string          `json:"countries"`
	Sources        []string          `json:"sources"`
	TopIngredients []IngredientCount `json:"topIngredients"`
}

// ImportReport is the outcome of one bulk insert into the local store.
type ImportReport struct {
	Inserted int `json:"inserted"`
	Failed   int `json:"failed"`
}

// ImportSource describes one officially importable dataset shown on the
// database-manager screen. Descriptors carry no behavior.
type ImportSource struct {
	Name        string `json:"name"`
	Country     string `json:"country"`
	URL         string `json:"url"`
	Format      string `json:"format"`
	Description string `json:"description"`
	Active      bool   `json:"active"`
}

// ProviderRuntimeConfig reports the runtime-patchable settings of a
// credentialed provider with the API key masked down to a preview.
type ProviderRuntimeConfig struct {
	Name          string `json:"name"`
	Label         string `json:"label"`
	Endpoint      string `json:"endpoint,omitempty"`
	Model         string `json:"model,omitempty"`
	HasAPIKey     bool   `json:"hasApiKey"`
	APIKeyPreview string `json:"apiKeyPreview,omitempty"`
	Configured    bool   `json:"configured"`
}

// ProviderRuntimePatch updates a provider's runtime settings. Nil fields are
// left untouched; an empty string clears the value.
type ProviderRuntimePatch struct {
	Name     string
	Endpoint *string
	Model    *string
	APIKey   *string
}
