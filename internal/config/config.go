package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/kapu/taro-go/internal/domain"
)

type Config struct {
	Server    ServerConfig
	LLM       LLMConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Astrology AstrologyConfig
	Templates TemplatesConfig
	Logging   LoggingConfig
	Debug     bool
}

type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
	RateLimit      bool
}

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

type LLMConfig struct {
	Provider       string
	ServerURL      string
	ModelID        string
	APIKey         string
	MaxConcurrency int
	CircuitBreaker bool
	Decode         domain.DecodeOptions
}

type DatabaseConfig struct {
	URL      string
	Disabled bool
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type AstrologyConfig struct {
	NominatimURL string
}

type TemplatesConfig struct {
	// Path overrides the embedded agent profile when set.
	Path string
}

type LoggingConfig struct {
	Level string
	File  string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	decode, err := loadDecodeOptions()
	if err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	provider := strings.ToLower(getEnv("LLM_PROVIDER", ProviderOllama))

	cfg := &Config{
		Server: ServerConfig{
			Addr:           getEnv("HTTP_ADDR", ":"+getEnv("PORT", "8005")),
			AllowedOrigins: parseCommaSeparated(getEnv("ALLOWED_ORIGINS", "*")),
			RateLimit:      getEnvBool("RATE_LIMIT_ENABLED", true),
		},
		LLM: LLMConfig{
			Provider:       provider,
			ServerURL:      getEnv("LLM_SERVER_URL", getEnv("OLLAMA_HOST", defaultServerURL(provider))),
			ModelID:        getEnv("LLM_ID", "hf.co/bartowski/Llama-3.2-3B-Instruct-GGUF:Q5_K_S"),
			APIKey:         getEnv("LLM_API_KEY", ""),
			MaxConcurrency: getEnvInt("LLM_MAX_CONCURRENCY", 4),
			CircuitBreaker: getEnvBool("LLM_CIRCUIT_BREAKER", false),
			Decode:         decode,
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Disabled: getEnvBool("STORE_DISABLED", false),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", false),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Astrology: AstrologyConfig{
			NominatimURL: getEnv("NOMINATIM_URL", "https://nominatim.openstreetmap.org"),
		},
		Templates: TemplatesConfig{
			Path: getEnv("TEMPLATES_PATH", ""),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			File:  getEnv("LOG_FILE", ""),
		},
		Debug: getEnvBool("DEBUG_MODE", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case ProviderOllama, ProviderOpenAI:
		if c.LLM.ServerURL == "" {
			return fmt.Errorf("LLM_SERVER_URL is required")
		}
	case ProviderGemini:
		if c.LLM.APIKey == "" {
			return fmt.Errorf("LLM_API_KEY is required for the gemini provider")
		}
	default:
		return fmt.Errorf("unsupported LLM_PROVIDER %q", c.LLM.Provider)
	}
	if c.LLM.ModelID == "" {
		return fmt.Errorf("LLM_ID is required")
	}
	if c.LLM.MaxConcurrency < 1 {
		return fmt.Errorf("LLM_MAX_CONCURRENCY must be positive")
	}
	if !c.Database.Disabled && c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required unless STORE_DISABLED=true")
	}
	if c.Templates.Path != "" {
		if _, err := os.Stat(c.Templates.Path); err != nil {
			return fmt.Errorf("TEMPLATES_PATH %s: %w", c.Templates.Path, err)
		}
	}
	return nil
}

func defaultServerURL(provider string) string {
	switch provider {
	case ProviderOllama:
		return "http://localhost:11434"
	case ProviderOpenAI:
		return "http://localhost:8000/v1"
	default:
		return ""
	}
}

// loadDecodeOptions reads LLM_<KEY> overrides on top of the defaults,
// e.g. LLM_TEMPERATURE=0.6 or LLM_NUM_CTX=4096.
func loadDecodeOptions() (domain.DecodeOptions, error) {
	overrides := make(map[string]any)
	for _, key := range domain.DecodeKeys {
		if value := os.Getenv("LLM_" + strings.ToUpper(key)); value != "" {
			overrides[key] = value
		}
	}
	return domain.DefaultDecodeOptions().Apply(overrides)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func parseCommaSeparated(value string) []string {
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
