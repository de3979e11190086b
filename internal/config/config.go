package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/chatquery/chatquery/internal/domain"
)

type Config struct {
	DatabaseURL         string
	WhatsAppStorePath   string
	GeminiAPIKey        string
	APIKey              string
	HTTPAddr            string
	LinkBaseURL         string
	LinkTTL             time.Duration
	SessionIdleTimeout  time.Duration
	ConfidenceThreshold float64
	AIRetries           int
	AITimeout           time.Duration
}

func NewConfig() domain.ConfigService {
	// Load .env if present
	_ = godotenv.Load()

	storePath := os.Getenv("WHATSAPP_STORE_PATH")
	if storePath == "" {
		storePath = "whatsmeow.db"
	}

	httpAddr := os.Getenv("HTTP_ADDR")
	if httpAddr == "" {
		httpAddr = ":8080"
	}

	linkBase := os.Getenv("LINK_BASE_URL")
	if linkBase == "" {
		linkBase = "http://localhost:8080/auth/verify"
	}

	return &Config{
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		WhatsAppStorePath:   storePath,
		GeminiAPIKey:        os.Getenv("GEMINI_API_KEY"),
		APIKey:              os.Getenv("API_KEY"),
		HTTPAddr:            httpAddr,
		LinkBaseURL:         linkBase,
		LinkTTL:             time.Duration(envInt("LINK_TTL_MINUTES", 15)) * time.Minute,
		SessionIdleTimeout:  time.Duration(envInt("SESSION_IDLE_MINUTES", 30)) * time.Minute,
		ConfidenceThreshold: envFloat("CONFIDENCE_THRESHOLD", 0.6),
		AIRetries:           envInt("AI_RETRIES", 3),
		AITimeout:           time.Duration(envInt("AI_TIMEOUT_SECONDS", 15)) * time.Second,
	}
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 || f > 1 {
		return def
	}
	return f
}

func (c *Config) GetDatabaseURL() string {
	return c.DatabaseURL
}

func (c *Config) GetWhatsAppStorePath() string {
	return c.WhatsAppStorePath
}

func (c *Config) GetGeminiAPIKey() string {
	return c.GeminiAPIKey
}

func (c *Config) GetAPIKey() string {
	return c.APIKey
}

func (c *Config) GetHTTPAddr() string {
	return c.HTTPAddr
}

func (c *Config) GetLinkBaseURL() string {
	return c.LinkBaseURL
}

func (c *Config) GetLinkTTL() time.Duration {
	return c.LinkTTL
}

func (c *Config) GetSessionIdleTimeout() time.Duration {
	return c.SessionIdleTimeout
}

func (c *Config) GetConfidenceThreshold() float64 {
	return c.ConfidenceThreshold
}

func (c *Config) GetAIRetries() int {
	return c.AIRetries
}

func (c *Config) GetAITimeout() time.Duration {
	return c.AITimeout
}

func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("API_KEY is required")
	}
	return nil
}
