package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const defaultExternalHTTPTimeout = 30 * time.Second
const defaultExternalHTTPTimeoutSeconds = int(defaultExternalHTTPTimeout / time.Second)

// Config is loaded once at start-up and handed to every constructor.
type Config struct {
	LLMProvider           string  `yaml:"llm_provider"`
	LLMModel              string  `yaml:"llm_model"`
	AnthropicAPIKey       string  `yaml:"anthropic_api_key"`
	OpenAIAPIKey          string  `yaml:"openai_api_key"`
	OpenAIBaseURL         string  `yaml:"openai_base_url"`
	AzureOpenAIEndpoint   string  `yaml:"azure_openai_endpoint"`
	AzureOpenAIAPIKey     string  `yaml:"azure_openai_api_key"`
	AzureOpenAIDeployment string  `yaml:"azure_openai_deployment"`
	AzureOpenAIAPIVersion string  `yaml:"azure_openai_api_version"`
	LLMRateLimit          float64 `yaml:"llm_rate_limit_per_second"`
	LLMTimeoutSeconds     int     `yaml:"llm_timeout_seconds"`
	AIEnabled             bool    `yaml:"ai_enabled"`
	AgreementBoost        float64 `yaml:"agreement_boost"`

	EmbeddingBaseURL        string `yaml:"embedding_base_url"`
	EmbeddingAPIKey         string `yaml:"embedding_api_key"`
	EmbeddingModel          string `yaml:"embedding_model"`
	EmbeddingDimension      int    `yaml:"embedding_dimension"`
	EmbeddingTimeoutSeconds int    `yaml:"embedding_timeout_seconds"`

	CacheBackend string `yaml:"cache_backend"`
	CachePath    string `yaml:"cache_path"`
	CacheTTLDays int    `yaml:"cache_ttl_days"`

	DataDir                string `yaml:"data_dir"`
	CorrectionsPath        string `yaml:"corrections_path"`
	RetirementsPath        string `yaml:"retirements_path"`
	GlossaryPath           string `yaml:"glossary_path"`
	EnableLiveData         bool   `yaml:"enable_live_data"`
	LiveDataTimeoutSeconds int    `yaml:"live_data_timeout_seconds"`

	DBPath                     string `yaml:"db_path"`
	HTTPHost                   string `yaml:"http_host"`
	HTTPPort                   int    `yaml:"http_port"`
	ExternalHTTPTimeoutSeconds int    `yaml:"external_http_timeout_seconds"`

	SlackBotToken  string `yaml:"slack_bot_token"`
	SlackChannelID string `yaml:"slack_channel_id"`

	RefreshSchedule         string  `yaml:"refresh_schedule"`
	SimilarIssuesCollection string  `yaml:"similar_issues_collection"`
	SimilarityThreshold     float64 `yaml:"similarity_threshold"`
	SimilarIssuesTopK       int     `yaml:"similar_issues_top_k"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// aiEnabledSet records whether ai_enabled was given explicitly so the
	// default can be true without hiding an explicit false.
	aiEnabledSet bool
}

// Load reads CONFIG_PATH (default config.yaml) if present, applies
// environment overrides and defaults, and validates the result.
func Load() (Config, error) {
	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	return LoadFile(configPath)
}

func LoadFile(configPath string) (Config, error) {
	var cfg Config

	if data, err := os.ReadFile(configPath); err == nil {
		var raw map[string]any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return cfg, fmt.Errorf("parsing %s: %w", configPath, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing %s: %w", configPath, err)
		}
		_, cfg.aiEnabledSet = raw["ai_enabled"]
	}

	var errs []error
	envOverride(&cfg.LLMProvider, "LLM_PROVIDER")
	envOverride(&cfg.LLMModel, "LLM_MODEL")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	envOverride(&cfg.OpenAIBaseURL, "OPENAI_BASE_URL")
	envOverride(&cfg.AzureOpenAIEndpoint, "AZURE_OPENAI_ENDPOINT")
	envOverride(&cfg.AzureOpenAIAPIKey, "AZURE_OPENAI_API_KEY")
	envOverride(&cfg.AzureOpenAIDeployment, "AZURE_OPENAI_DEPLOYMENT")
	envOverride(&cfg.AzureOpenAIAPIVersion, "AZURE_OPENAI_API_VERSION")
	errs = append(errs, envOverrideFloat(&cfg.LLMRateLimit, "LLM_RATE_LIMIT_PER_SECOND"))
	errs = append(errs, envOverrideInt(&cfg.LLMTimeoutSeconds, "LLM_TIMEOUT_SECONDS"))
	if os.Getenv("AI_ENABLED") != "" {
		envOverrideBool(&cfg.AIEnabled, "AI_ENABLED")
		cfg.aiEnabledSet = true
	}
	errs = append(errs, envOverrideFloat(&cfg.AgreementBoost, "AGREEMENT_BOOST"))
	envOverride(&cfg.EmbeddingBaseURL, "EMBEDDING_BASE_URL")
	envOverride(&cfg.EmbeddingAPIKey, "EMBEDDING_API_KEY")
	envOverride(&cfg.EmbeddingModel, "EMBEDDING_MODEL")
	errs = append(errs, envOverrideInt(&cfg.EmbeddingDimension, "EMBEDDING_DIMENSION"))
	errs = append(errs, envOverrideInt(&cfg.EmbeddingTimeoutSeconds, "EMBEDDING_TIMEOUT_SECONDS"))
	envOverride(&cfg.CacheBackend, "CACHE_BACKEND")
	envOverride(&cfg.CachePath, "CACHE_PATH")
	errs = append(errs, envOverrideInt(&cfg.CacheTTLDays, "CACHE_TTL_DAYS"))
	envOverride(&cfg.DataDir, "DATA_DIR")
	envOverride(&cfg.CorrectionsPath, "CORRECTIONS_PATH")
	envOverride(&cfg.RetirementsPath, "RETIREMENTS_PATH")
	envOverrideAllowEmpty(&cfg.GlossaryPath, "GLOSSARY_PATH")
	envOverrideBool(&cfg.EnableLiveData, "ENABLE_LIVE_DATA")
	errs = append(errs, envOverrideInt(&cfg.LiveDataTimeoutSeconds, "LIVE_DATA_TIMEOUT_SECONDS"))
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.HTTPHost, "HTTP_HOST")
	errs = append(errs, envOverrideInt(&cfg.HTTPPort, "HTTP_PORT"))
	errs = append(errs, envOverrideInt(&cfg.ExternalHTTPTimeoutSeconds, "EXTERNAL_HTTP_TIMEOUT_SECONDS"))
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.SlackChannelID, "SLACK_CHANNEL_ID")
	envOverride(&cfg.RefreshSchedule, "REFRESH_SCHEDULE")
	envOverride(&cfg.SimilarIssuesCollection, "SIMILAR_ISSUES_COLLECTION")
	errs = append(errs, envOverrideFloat(&cfg.SimilarityThreshold, "SIMILARITY_THRESHOLD"))
	errs = append(errs, envOverrideInt(&cfg.SimilarIssuesTopK, "SIMILAR_ISSUES_TOP_K"))
	envOverride(&cfg.LogLevel, "LOG_LEVEL")
	envOverride(&cfg.LogFormat, "LOG_FORMAT")
	if err := errors.Join(errs...); err != nil {
		return cfg, err
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.LLMProvider == "" {
		c.LLMProvider = "azure_openai"
	}
	if !c.aiEnabledSet {
		c.AIEnabled = true
	}
	if c.LLMRateLimit == 0 {
		c.LLMRateLimit = 5
	}
	if c.LLMTimeoutSeconds == 0 {
		c.LLMTimeoutSeconds = 60
	}
	if c.AgreementBoost == 0 {
		c.AgreementBoost = 0.15
	}
	if c.AzureOpenAIAPIVersion == "" {
		c.AzureOpenAIAPIVersion = "2024-06-01"
	}
	if c.OpenAIBaseURL == "" {
		c.OpenAIBaseURL = "https://api.openai.com/v1"
	}
	if c.EmbeddingModel == "" {
		c.EmbeddingModel = "text-embedding-3-small"
	}
	if c.EmbeddingDimension == 0 {
		c.EmbeddingDimension = 1536
	}
	if c.EmbeddingTimeoutSeconds == 0 {
		c.EmbeddingTimeoutSeconds = 10
	}
	if c.CacheBackend == "" {
		c.CacheBackend = "json"
	}
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.CachePath == "" {
		c.CachePath = filepath.Join(c.DataDir, "cache.json")
	}
	if c.CacheTTLDays == 0 {
		c.CacheTTLDays = 7
	}
	if c.CorrectionsPath == "" {
		c.CorrectionsPath = filepath.Join(c.DataDir, "corrections.json")
	}
	if c.RetirementsPath == "" {
		c.RetirementsPath = filepath.Join(c.DataDir, "retirements.json")
	}
	if c.LiveDataTimeoutSeconds == 0 {
		c.LiveDataTimeoutSeconds = 20
	}
	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.DataDir, "contextanalyzer.db")
	}
	if c.HTTPHost == "" {
		c.HTTPHost = "0.0.0.0"
	}
	if c.HTTPPort == 0 {
		c.HTTPPort = 8080
	}
	if c.ExternalHTTPTimeoutSeconds == 0 {
		c.ExternalHTTPTimeoutSeconds = defaultExternalHTTPTimeoutSeconds
	}
	if c.RefreshSchedule == "" {
		c.RefreshSchedule = "0 3 * * *"
	}
	if c.SimilarIssuesCollection == "" {
		c.SimilarIssuesCollection = "historical_issues"
	}
	if c.SimilarityThreshold == 0 {
		c.SimilarityThreshold = 0.7
	}
	if c.SimilarIssuesTopK == 0 {
		c.SimilarIssuesTopK = 5
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "json"
	}
}

// Validate checks ranges and provider credentials. A provider without
// credentials is not an error when AI is disabled.
func (c Config) Validate() error {
	var errs []error

	if c.AIEnabled {
		switch c.LLMProvider {
		case "anthropic":
			if c.AnthropicAPIKey == "" {
				errs = append(errs, fmt.Errorf("anthropic_api_key is required when llm_provider=anthropic"))
			}
		case "openai":
			if c.OpenAIAPIKey == "" {
				errs = append(errs, fmt.Errorf("openai_api_key is required when llm_provider=openai"))
			}
		case "azure_openai":
			if c.AzureOpenAIEndpoint == "" || c.AzureOpenAIAPIKey == "" || c.AzureOpenAIDeployment == "" {
				errs = append(errs, fmt.Errorf("azure_openai_endpoint, azure_openai_api_key and azure_openai_deployment are required when llm_provider=azure_openai"))
			}
		default:
			errs = append(errs, fmt.Errorf("llm_provider must be 'anthropic', 'openai' or 'azure_openai', got '%s'", c.LLMProvider))
		}
	}

	switch c.CacheBackend {
	case "json", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("cache_backend must be 'json' or 'sqlite', got '%s'", c.CacheBackend))
	}
	if c.CacheTTLDays < 1 {
		errs = append(errs, fmt.Errorf("invalid cache_ttl_days '%d': must be >= 1", c.CacheTTLDays))
	}
	if c.AgreementBoost < 0 || c.AgreementBoost > 1 {
		errs = append(errs, fmt.Errorf("invalid agreement_boost '%f': must be between 0 and 1", c.AgreementBoost))
	}
	if c.SimilarityThreshold < -1 || c.SimilarityThreshold > 1 {
		errs = append(errs, fmt.Errorf("invalid similarity_threshold '%f': must be between -1 and 1", c.SimilarityThreshold))
	}
	if c.SimilarIssuesTopK < 1 {
		errs = append(errs, fmt.Errorf("invalid similar_issues_top_k '%d': must be >= 1", c.SimilarIssuesTopK))
	}
	if c.EmbeddingDimension < 1 {
		errs = append(errs, fmt.Errorf("invalid embedding_dimension '%d': must be >= 1", c.EmbeddingDimension))
	}
	if c.ExternalHTTPTimeoutSeconds < 5 {
		errs = append(errs, fmt.Errorf("invalid external_http_timeout_seconds '%d': must be >= 5", c.ExternalHTTPTimeoutSeconds))
	}
	if c.LLMRateLimit < 0 {
		errs = append(errs, fmt.Errorf("invalid llm_rate_limit_per_second '%f': must be >= 0", c.LLMRateLimit))
	}
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid http_port '%d'", c.HTTPPort))
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(c.RefreshSchedule); err != nil {
		errs = append(errs, fmt.Errorf("invalid refresh_schedule '%s': %w", c.RefreshSchedule, err))
	}
	if c.GlossaryPath != "" {
		if err := validateGlossaryPath(c.GlossaryPath); err != nil {
			errs = append(errs, fmt.Errorf("invalid glossary_path '%s': %w", c.GlossaryPath, err))
		}
	}
	return errors.Join(errs...)
}

func (c Config) SlackConfigured() bool {
	return c.SlackBotToken != "" && c.SlackChannelID != ""
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTPHost, c.HTTPPort)
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideAllowEmpty(field *string, envKey string) {
	if val, ok := os.LookupEnv(envKey); ok {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", envKey, val, err)
		}
		*field = parsed
	}
	return nil
}

func envOverrideBool(field *bool, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = strings.EqualFold(val, "true") || val == "1"
	}
}

func envOverrideFloat(field *float64, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", envKey, val, err)
		}
		*field = parsed
	}
	return nil
}

func validateGlossaryPath(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read glossary: %w", err)
	}
	var g struct {
		Terms       []struct{} `yaml:"terms"`
		IntentHints []struct{} `yaml:"intent_hints"`
	}
	if err := yaml.Unmarshal(data, &g); err != nil {
		return fmt.Errorf("parse glossary yaml: %w", err)
	}
	return nil
}
