package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/couchcryptid/weather-broadcast-service/internal/domain"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// CWA open-data feed.
	CWAAPIKey      string
	CWABaseURL     string
	CWATimeout     time.Duration
	ForecastCities []string

	// Text generation. Exactly one provider is active.
	AIProvider   string
	AIModel      string
	GeminiAPIKey string
	OpenAIAPIKey string
	GroqAPIKey   string
	AITimeout    time.Duration

	// Speech dispatch.
	TTSURL     string
	TTSEngine  string
	TTSTimeout time.Duration

	// Event ledger.
	LedgerDriver   string
	DatabaseURL    string
	DBMaxOpenConns int
	DBMaxIdleConns int

	// Forecast cache.
	ForecastTTL             time.Duration
	ForecastBroadcastOffset time.Duration
	RedisAddr               string
	RedisPassword           string
	RedisDB                 int

	// Audit stream. Disabled when no brokers are set.
	KafkaBrokers    []string
	KafkaAuditTopic string

	StartupTimeout time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	cwaTimeout, err := parseDuration("CWA_TIMEOUT", "15s")
	if err != nil {
		return nil, err
	}
	aiTimeout, err := parseDuration("AI_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	ttsTimeout, err := parseDuration("TTS_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	forecastTTL, err := parseDuration("FORECAST_TTL", "55m")
	if err != nil {
		return nil, err
	}
	startupTimeout, err := parseDuration("STARTUP_TIMEOUT", "60s")
	if err != nil {
		return nil, err
	}
	offset, err := parseOffset()
	if err != nil {
		return nil, err
	}
	redisDB, err := parseInt("REDIS_DB", 0, 0)
	if err != nil {
		return nil, err
	}
	maxOpen, err := parseInt("DB_MAX_OPEN_CONNS", 10, 1)
	if err != nil {
		return nil, err
	}
	maxIdle, err := parseInt("DB_MAX_IDLE_CONNS", 5, 0)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8000"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		CWAAPIKey:      firstEnv("CWA_API_KEY", "VITE_CWA_API_KEY"),
		CWABaseURL:     sharedcfg.EnvOrDefault("CWA_BASE_URL", "https://opendata.cwa.gov.tw/api/v1/rest/datastore"),
		CWATimeout:     cwaTimeout,
		ForecastCities: parseList(os.Getenv("FORECAST_CITIES"), domain.TargetCities),

		AIProvider:   strings.ToLower(sharedcfg.EnvOrDefault("AI_PROVIDER", "gemini")),
		AIModel:      sharedcfg.EnvOrDefault("AI_MODEL", "gemini-1.5-flash"),
		GeminiAPIKey: firstEnv("GEMINI_API_KEY", "VITE_GEMINI_API_KEY"),
		OpenAIAPIKey: os.Getenv("OPENAI_API_KEY"),
		GroqAPIKey:   os.Getenv("GROQ_API_KEY"),
		AITimeout:    aiTimeout,

		TTSURL:     os.Getenv("TTS_URL"),
		TTSEngine:  sharedcfg.EnvOrDefault("TTS_ENGINE", "indextts"),
		TTSTimeout: ttsTimeout,

		LedgerDriver:   strings.ToLower(sharedcfg.EnvOrDefault("LEDGER_DRIVER", "postgres")),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		DBMaxOpenConns: maxOpen,
		DBMaxIdleConns: maxIdle,

		ForecastTTL:             forecastTTL,
		ForecastBroadcastOffset: offset,
		RedisAddr:               os.Getenv("REDIS_ADDR"),
		RedisPassword:           os.Getenv("REDIS_PASSWORD"),
		RedisDB:                 redisDB,

		KafkaAuditTopic: sharedcfg.EnvOrDefault("KAFKA_AUDIT_TOPIC", "weather-broadcast-records"),

		StartupTimeout: startupTimeout,
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); strings.TrimSpace(brokers) != "" {
		cfg.KafkaBrokers = sharedcfg.ParseBrokers(brokers)
	}

	switch cfg.AIProvider {
	case "gemini", "openai", "groq":
	default:
		return nil, fmt.Errorf("invalid AI_PROVIDER %q: want gemini, openai or groq", cfg.AIProvider)
	}
	switch cfg.LedgerDriver {
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL is required when LEDGER_DRIVER is postgres")
		}
	case "memory":
	default:
		return nil, fmt.Errorf("invalid LEDGER_DRIVER %q: want postgres or memory", cfg.LedgerDriver)
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaAuditTopic == "" {
		return nil, errors.New("KAFKA_AUDIT_TOPIC is required when KAFKA_BROKERS is set")
	}

	return cfg, nil
}

// AIKey returns the credential for the configured provider.
func (c *Config) AIKey() string {
	switch c.AIProvider {
	case "openai":
		return c.OpenAIAPIKey
	case "groq":
		return c.GroqAPIKey
	default:
		return c.GeminiAPIKey
	}
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

// parseOffset reads the minute offset of the hourly forecast broadcast.
func parseOffset() (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault("FORECAST_BROADCAST_OFFSET", "0s"))
	if err != nil || d < 0 || d >= time.Hour {
		return 0, errors.New("invalid FORECAST_BROADCAST_OFFSET: want a duration in [0s, 1h)")
	}
	return d, nil
}

func parseInt(key string, def, minValue int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < minValue {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func parseList(s string, def []string) []string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
