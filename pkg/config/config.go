package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	BackendFirestore = "firestore"
	BackendMemory    = "memory"

	EnvironmentDevelopment = "development"
)

type Config struct {
	ServerPort  string `env:"SERVER_PORT" envDefault:"8080"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	// StoreBackend selects the document store: "firestore" or "memory".
	StoreBackend string `env:"STORE_BACKEND" envDefault:"firestore"`

	FirebaseProject            string `env:"FIREBASE_PROJECT_ID"`
	FirebaseServiceAccountJSON string `env:"FIREBASE_SERVICE_ACCOUNT_JSON"`
	FirebaseServiceAccountPath string `env:"FIREBASE_SERVICE_ACCOUNT_PATH"`
	StorageBucket              string `env:"STORAGE_BUCKET"`

	// DevTokens opts a development Firestore deployment into accepting
	// "dev:<uid>" bearer tokens. The memory backend always accepts them.
	DevTokens bool `env:"DEV_TOKENS" envDefault:"false"`

	// AllowedOrigins restricts CORS and websocket upgrades. Empty allows any.
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`

	Chat ChatConfig `envPrefix:"CHAT_"`
}

type ChatConfig struct {
	RecentLimit           int           `env:"RECENT_LIMIT" envDefault:"30"`
	OlderLimit            int           `env:"OLDER_LIMIT" envDefault:"20"`
	TypingStaleAfter      time.Duration `env:"TYPING_STALE_AFTER" envDefault:"10s"`
	TypingRefreshInterval time.Duration `env:"TYPING_REFRESH_INTERVAL" envDefault:"1s"`
	ImageMaxWidth         int           `env:"IMAGE_MAX_WIDTH" envDefault:"800"`
	ImageJPEGQuality      int           `env:"IMAGE_JPEG_QUALITY" envDefault:"70"`
}

// AcceptsDevTokens reports whether "dev:<uid>" bearer tokens may be honoured.
// Only development qualifies, and against Firestore only with DEV_TOKENS set.
func (c *Config) AcceptsDevTokens() bool {
	if c.Environment != EnvironmentDevelopment {
		return false
	}
	return c.StoreBackend == BackendMemory || c.DevTokens
}

func Load() (*Config, error) {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
