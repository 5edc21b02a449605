package config

import (
	"fmt"
	"strings"
	"time"

	"pokecare/utils"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the process configuration, read from the environment.
type Config struct {
	DatabaseURL      string   `env:"DATABASE_URL"`
	Port             int      `env:"PORT" envDefault:"5200"`
	GameServiceToken string   `env:"GAME_SERVICE_TOKEN"`
	AllowedOrigins   []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
	LogLevel         string   `env:"LOG_LEVEL" envDefault:"info"`

	PokeAPIBaseURL   string        `env:"POKEAPI_BASE_URL" envDefault:"https://pokeapi.co/api/v2"`
	CatalogCacheTTL  time.Duration `env:"CATALOG_CACHE_TTL" envDefault:"1h"`
	CatalogCacheSize int           `env:"CATALOG_CACHE_SIZE" envDefault:"2048"`

	DecayInterval      time.Duration `env:"DECAY_INTERVAL"`
	RosterSyncInterval time.Duration `env:"ROSTER_SYNC_INTERVAL" envDefault:"2m"`
	SessionIdleTimeout time.Duration `env:"SESSION_IDLE_TIMEOUT" envDefault:"15m"`
	RulesFile          string        `env:"RULES_FILE"`

	SyncServiceURL   string        `env:"SYNC_SERVICE_URL"`
	ProfileSyncPath  string        `env:"PROFILE_SYNC_PATH" envDefault:"/api/v1/public/profiles"`
	ProfileSyncEvery time.Duration `env:"PROFILE_SYNC_INTERVAL" envDefault:"1m"`

	R2AccountID       string `env:"CLOUDFLARE_ACCOUNT_ID"`
	R2AccessKeyID     string `env:"R2_ACCESS_KEY_ID"`
	R2AccessKeySecret string `env:"R2_ACCESS_KEY_SECRET"`
	R2Bucket          string `env:"R2_BUCKET_NAME"`
	CDNBaseURL        string `env:"CDN_BASE_URL"`
}

// Load reads an optional .env file and then parses the environment.
// It reports whether a .env file was found so the caller can log it.
func Load() (Config, bool, error) {
	dotenv := godotenv.Load() == nil
	cfg, err := Parse()
	return cfg, dotenv, err
}

// Parse reads Config from the environment without touching .env files.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	for i, origin := range cfg.AllowedOrigins {
		cfg.AllowedOrigins[i] = strings.TrimSpace(origin)
	}
	return cfg, nil
}

// RequireServe checks the settings the HTTP server cannot run without.
// memory skips the database requirement.
func (c Config) RequireServe(memory bool) error {
	if c.GameServiceToken == "" {
		return fmt.Errorf("GAME_SERVICE_TOKEN is not set, service cannot authenticate Gateway")
	}
	if !memory && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable not set")
	}
	return nil
}

func (c Config) R2() utils.R2Config {
	return utils.R2Config{
		AccountID:       c.R2AccountID,
		AccessKeyID:     c.R2AccessKeyID,
		AccessKeySecret: c.R2AccessKeySecret,
		Bucket:          c.R2Bucket,
		CDNBaseURL:      c.CDNBaseURL,
	}
}

func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
