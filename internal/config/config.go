package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds runtime configuration, loaded from the environment
// (optionally seeded from a .env file).
type Config struct {
	Port     string
	DataDir  string
	DBPath   string
	LogLevel string

	// Auth
	APISecret string
	TokenTTL  time.Duration

	// Worker
	WorkerInterval time.Duration
	LeaseTimeout   time.Duration
	RetentionDays  int

	// Push channel keepalive
	PingInterval time.Duration
	PongTimeout  time.Duration

	// Transcription: "local" (sherpa-onnx) or "remote" (whisper-compatible HTTP)
	ASREngine    string
	ASRModelDir  string
	ASRRemoteURL string
	ASRRemoteKey string

	// LLM analysis (OpenAI-compatible chat completions)
	LLMBaseURL string
	LLMAPIKey  string
	LLMModel   string

	// Export webhook target (optional)
	ExportWebhookURL string
}

// Load reads configuration from the environment. A missing .env file is not
// an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		DataDir:          getEnv("DATA_DIR", "data"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		APISecret:        os.Getenv("API_SECRET"),
		TokenTTL:         getDuration("TOKEN_TTL", 24*time.Hour),
		WorkerInterval:   getDuration("WORKER_INTERVAL", time.Second),
		LeaseTimeout:     getDuration("TASK_LEASE_TIMEOUT", 10*time.Minute),
		RetentionDays:    getInt("TASK_RETENTION_DAYS", 7),
		PingInterval:     getDuration("WS_PING_INTERVAL", 30*time.Second),
		PongTimeout:      getDuration("WS_PONG_TIMEOUT", 60*time.Second),
		ASREngine:        getEnv("ASR_ENGINE", "local"),
		ASRModelDir:      getEnv("ASR_MODEL_DIR", "models"),
		ASRRemoteURL:     os.Getenv("ASR_REMOTE_URL"),
		ASRRemoteKey:     os.Getenv("ASR_REMOTE_API_KEY"),
		LLMBaseURL:       getEnv("LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMAPIKey:        os.Getenv("LLM_API_KEY"),
		LLMModel:         getEnv("LLM_MODEL", "gpt-4o-mini"),
		ExportWebhookURL: os.Getenv("EXPORT_WEBHOOK_URL"),
	}
	cfg.DBPath = getEnv("DB_PATH", cfg.DataDir+"/clipforge.db")

	if cfg.APISecret == "" {
		return nil, fmt.Errorf("API_SECRET is required")
	}
	switch cfg.ASREngine {
	case "local", "remote":
	default:
		return nil, fmt.Errorf("invalid ASR_ENGINE: %s (must be local or remote)", cfg.ASREngine)
	}
	if cfg.ASREngine == "remote" && cfg.ASRRemoteURL == "" {
		return nil, fmt.Errorf("ASR_REMOTE_URL is required when ASR_ENGINE=remote")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
