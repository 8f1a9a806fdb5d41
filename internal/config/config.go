package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"kasirinaja/checkout/internal/domain"
	"kasirinaja/checkout/internal/errs"
	"kasirinaja/checkout/internal/scanner"
)

// Values that differ per deployment have no default; everything else does.
type Config struct {
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`

	DatabaseURL string `envconfig:"DATABASE_URL"`

	RedisAddr            string  `envconfig:"REDIS_ADDR"`
	RedisPassword        string  `envconfig:"REDIS_PASSWORD"`
	RedisDB              int     `envconfig:"REDIS_DB" default:"0"`
	BarcodeCacheTTLSecs  int     `envconfig:"BARCODE_CACHE_TTL_SECONDS" default:"300"`
	StoreID              string  `envconfig:"DEFAULT_STORE_ID" default:"main-store"`
	TerminalID           string  `envconfig:"TERMINAL_ID" default:"terminal-1"`
	DefaultCustomerType  string  `envconfig:"DEFAULT_CUSTOMER_TYPE" default:"individual"`
	MetricsAddr          string  `envconfig:"METRICS_ADDR"`
	FeedbackMaxPerSecond float64 `envconfig:"FEEDBACK_MAX_PER_SECOND" default:"10"`

	ScannerEnabled       bool `envconfig:"SCANNER_ENABLED" default:"true"`
	ScannerMinLength     int  `envconfig:"SCANNER_MIN_LENGTH" default:"6"`
	ScannerIdleTimeoutMS int  `envconfig:"SCANNER_IDLE_TIMEOUT_MS" default:"200"`
	ScannerCooldownMS    int  `envconfig:"SCANNER_COOLDOWN_MS" default:"1500"`
}

// Load reads an optional .env file and then the process environment. Real
// environment variables win over the file.
func Load() (Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, errs.Mark(errs.Wrap(err, "process env config"), errs.ErrInvalidConfig)
	}
	cfg.DefaultCustomerType = strings.ToLower(strings.TrimSpace(cfg.DefaultCustomerType))
	if cfg.BarcodeCacheTTLSecs < 1 {
		cfg.BarcodeCacheTTLSecs = 300
	}
	return cfg, nil
}

func (c Config) ScannerConfig() scanner.Config {
	return scanner.Config{
		MinLength:   c.ScannerMinLength,
		IdleTimeout: time.Duration(c.ScannerIdleTimeoutMS) * time.Millisecond,
		Cooldown:    time.Duration(c.ScannerCooldownMS) * time.Millisecond,
		Enabled:     c.ScannerEnabled,
	}
}

func (c Config) BarcodeCacheTTL() time.Duration {
	return time.Duration(c.BarcodeCacheTTLSecs) * time.Second
}

func (c Config) CustomerType() domain.CustomerType {
	return domain.CustomerType(c.DefaultCustomerType)
}
