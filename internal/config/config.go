package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	CORS     CORSConfig
	Store    StoreConfig
	Database DatabaseConfig
	Redis    RedisConfig
	STT      STTConfig
	LLM      LLMConfig
	Quota    QuotaConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type CORSConfig struct {
	ClientURL string
}

type StoreConfig struct {
	Backend    string // "jsonbin", "redis", "postgres" or "memory"
	JSONBinURL string
	JSONBinKey string
	RedisKey   string
}

type DatabaseConfig struct {
	URL      string
	MaxConns int
	MinConns int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type STTConfig struct {
	Backend       string // "openai" or "local"
	OpenAIKey     string
	OpenAIBaseURL string
	OpenAIModel   string
	LocalBaseURL  string // default: "http://localhost:8178"
	Timeout       time.Duration
}

type LLMConfig struct {
	OpenAIKey        string
	AnthropicKey     string
	DefaultProvider  string
	FallbackProvider string
	Model            string
	MaxRetries       int
}

type QuotaConfig struct {
	MonthlyLimit   int
	ChargePolicy   string // "after" (charge only on full success) or "before"
	PersistMode    string // "sync", "async" or "queue"
	SerializeUsers bool   // serialize read-modify-write per user in-process
}

func Load() (*Config, error) {
	port, err := getEnvInt("SERVER_PORT", 10000)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	maxConns, err := getEnvInt("DB_MAX_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_CONNS: %w", err)
	}

	minConns, err := getEnvInt("DB_MIN_CONNS", 2)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MIN_CONNS: %w", err)
	}

	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxRetries, err := getEnvInt("LLM_MAX_RETRIES", 2)
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_MAX_RETRIES: %w", err)
	}

	monthlyLimit, err := getEnvInt("QUOTA_MONTHLY_LIMIT", 30)
	if err != nil {
		return nil, fmt.Errorf("invalid QUOTA_MONTHLY_LIMIT: %w", err)
	}

	sttTimeout, err := getEnvInt("STT_TIMEOUT_SECONDS", 30)
	if err != nil {
		return nil, fmt.Errorf("invalid STT_TIMEOUT_SECONDS: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: port,
		},
		CORS: CORSConfig{
			ClientURL: getEnv("CLIENT_URL", "https://jeenglish.com"),
		},
		Store: StoreConfig{
			Backend:    getEnv("STORE_BACKEND", "jsonbin"),
			JSONBinURL: getEnv("JSONBIN_URL", ""),
			JSONBinKey: getEnv("JSONBIN_KEY", ""),
			RedisKey:   getEnv("STORE_REDIS_KEY", "usage:ledger"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			MaxConns: maxConns,
			MinConns: minConns,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		STT: STTConfig{
			Backend:       getEnv("STT_BACKEND", "openai"),
			OpenAIKey:     getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL: getEnv("STT_OPENAI_BASE_URL", ""),
			OpenAIModel:   getEnv("STT_OPENAI_MODEL", "whisper-1"),
			LocalBaseURL:  getEnv("STT_LOCAL_BASE_URL", "http://localhost:8178"),
			Timeout:       time.Duration(sttTimeout) * time.Second,
		},
		LLM: LLMConfig{
			OpenAIKey:        getEnv("OPENAI_API_KEY", ""),
			AnthropicKey:     getEnv("ANTHROPIC_API_KEY", ""),
			DefaultProvider:  getEnv("LLM_DEFAULT_PROVIDER", "openai"),
			FallbackProvider: getEnv("LLM_FALLBACK_PROVIDER", ""),
			Model:            getEnv("LLM_MODEL", "gpt-4o-mini"),
			MaxRetries:       maxRetries,
		},
		Quota: QuotaConfig{
			MonthlyLimit:   monthlyLimit,
			ChargePolicy:   getEnv("QUOTA_CHARGE", "after"),
			PersistMode:    getEnv("QUOTA_PERSIST", "sync"),
			SerializeUsers: getEnvBool("QUOTA_SERIALIZE_USERS", false),
		},
	}

	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "jsonbin":
		if c.Store.JSONBinURL == "" {
			return fmt.Errorf("STORE_BACKEND=jsonbin requires JSONBIN_URL")
		}
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("STORE_BACKEND=postgres requires DATABASE_URL")
		}
	case "redis", "memory":
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.Store.Backend)
	}

	switch c.Quota.ChargePolicy {
	case "after", "before":
	default:
		return fmt.Errorf("unknown QUOTA_CHARGE %q", c.Quota.ChargePolicy)
	}

	switch c.Quota.PersistMode {
	case "sync", "async", "queue":
	default:
		return fmt.Errorf("unknown QUOTA_PERSIST %q", c.Quota.PersistMode)
	}

	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvBool(key string, fallback bool) bool {
	v := strings.ToLower(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v == "1" || v == "true" || v == "yes"
}
