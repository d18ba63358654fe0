package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr       string
	RequestTimeout time.Duration
	LogLevel       string
	LogFormat      string
	UserAgent      string

	RxNormEndpoint         string
	OpenFDAEndpoint        string
	EMAEndpoint            string
	WHOEndpoint            string
	ClinicalTrialsEndpoint string
	PubChemEndpoint        string
	WikidataEndpoint       string

	OpenAIAPIKey     string
	PerplexityAPIKey string
	DeepSeekAPIKey   string

	RedisURL      string
	DatabasePath  string
	CacheTTL      time.Duration
	CacheDisabled bool
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:       getEnv("HTTP_ADDR", ":8085"),
		RequestTimeout: time.Duration(getEnvInt("SEARCH_TIMEOUT_SECONDS", 8)) * time.Second,
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:      strings.ToLower(getEnv("LOG_FORMAT", "text")),
		UserAgent:      getEnv("SEARCH_USER_AGENT", "medicine-brand-search/1.0"),

		RxNormEndpoint:         getEnv("SEARCH_PROVIDER_RXNORM_ENDPOINT", "https://rxnav.nlm.nih.gov/REST"),
		OpenFDAEndpoint:        getEnv("SEARCH_PROVIDER_OPENFDA_ENDPOINT", "https://api.fda.gov/drug"),
		EMAEndpoint:            getEnv("SEARCH_PROVIDER_EMA_ENDPOINT", "https://spor.ema.europa.eu/rmswi/api"),
		WHOEndpoint:            getEnv("SEARCH_PROVIDER_WHO_ENDPOINT", "https://ghoapi.azureedge.net/api"),
		ClinicalTrialsEndpoint: getEnv("SEARCH_PROVIDER_CLINICALTRIALS_ENDPOINT", "https://clinicaltrials.gov/api/query"),
		PubChemEndpoint:        getEnv("SEARCH_PROVIDER_PUBCHEM_ENDPOINT", "https://pubchem.ncbi.nlm.nih.gov/rest/pug"),
		WikidataEndpoint:       getEnv("SEARCH_PROVIDER_WIKIDATA_ENDPOINT", "https://www.wikidata.org/w/api.php"),

		OpenAIAPIKey:     strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		PerplexityAPIKey: strings.TrimSpace(os.Getenv("PERPLEXITY_API_KEY")),
		DeepSeekAPIKey:   strings.TrimSpace(os.Getenv("DEEPSEEK_API_KEY")),

		RedisURL:      getEnv("REDIS_URL", ""),
		DatabasePath:  getEnvOptional("LOCAL_DB_PATH", "data/medicines.db"),
		CacheTTL:      time.Duration(getEnvInt("SEARCH_CACHE_TTL_MINUTES", 5)) * time.Minute,
		CacheDisabled: getEnvBool("SEARCH_CACHE_DISABLED", false),
	}
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

// getEnvOptional falls back only when the variable is unset. A variable
// explicitly set to the empty string stays empty, which lets LOCAL_DB_PATH=""
// disable the local store.
func getEnvOptional(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(value)
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
