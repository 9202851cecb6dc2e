package infra

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv string
	Port   string

	RedisURL       string
	StreamKey      string
	DeadStreamKey  string
	ConsumerGroup  string
	ConsumerID     string
	ClaimBatchSize int
	ClaimBlock     time.Duration

	CallbackURL string

	RunwayAPIKey  string
	RunwayBaseURL string
	LumaAPIKey    string
	LumaBaseURL   string
	GMSAPIKey     string
	GMSBaseURL    string
	GMSImageModel string

	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	PollInterval      time.Duration
	GenerationTimeout time.Duration

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// LoadConfig loads configuration from the environment, reading a local .env
// file first when present, and applies defaults where needed.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv: getEnv("APP_ENV", "development"),
		Port:   getEnv("PORT", "8080"),

		RedisURL:       getEnv("REDIS_URL", "redis://localhost:6379/0"),
		StreamKey:      getEnv("ASSET_STREAM_KEY", "asset.generate"),
		DeadStreamKey:  getEnv("ASSET_DEAD_STREAM_KEY", "asset.generate.dead"),
		ConsumerGroup:  getEnv("REDIS_GROUP", "ai-consumers"),
		ConsumerID:     os.Getenv("REDIS_CONSUMER_ID"),
		ClaimBatchSize: getEnvInt("CONSUMER_BATCH_SIZE", 5),
		ClaimBlock:     time.Second * time.Duration(getEnvInt("CONSUMER_BLOCK_SECONDS", 5)),

		CallbackURL: os.Getenv("CALLBACK_URL"),

		RunwayAPIKey:  os.Getenv("RUNWAY_API_KEY"),
		RunwayBaseURL: getEnv("RUNWAY_API_BASE_URL", "https://api.dev.runwayml.com"),
		LumaAPIKey:    os.Getenv("LUMAAI_API_KEY"),
		LumaBaseURL:   getEnv("LUMA_API_BASE_URL", "https://api.lumalabs.ai/dream-machine/v1"),
		GMSAPIKey:     os.Getenv("GMS_API_KEY"),
		GMSBaseURL:    getEnv("GMS_BASE_URL", "https://gms.ssafy.io/gmsapi/api.openai.com/v1"),
		GMSImageModel: getEnv("GMS_IMAGE_MODEL", "dall-e-3"),

		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),

		PollInterval:      time.Second * time.Duration(getEnvInt("POLL_INTERVAL_SECONDS", 3)),
		GenerationTimeout: time.Second * time.Duration(getEnvInt("GENERATION_TIMEOUT_SECONDS", 240)),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	if cfg.ConsumerID == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "local"
		}
		cfg.ConsumerID = fmt.Sprintf("ai-%s-%d", host, os.Getpid())
	}

	if cfg.CallbackURL == "" {
		return nil, fmt.Errorf("CALLBACK_URL is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
