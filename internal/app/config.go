package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (DROPSHIP_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"Management API listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (DROPSHIP_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	RedisAddr   string `default:"" usage:"Redis address for the product snapshot cache (empty disables caching)" flag:"redis-addr"`

	Storefront  StorefrontConfig
	MegaSupply  MegaSupplyConfig
	PrimeParts  PrimePartsConfig
	Kafka       KafkaConfig
	Fulfillment FulfillmentConfig
	Graceful    GracefulConfig
}

// StorefrontConfig locates the storefront platform API.
type StorefrontConfig struct {
	URL         string `usage:"Storefront API base URL" flag:"storefront-url"`
	AccessToken string `usage:"Storefront API access token" flag:"storefront-token"`
}

// MegaSupplyConfig holds MegaSupply API credentials.
type MegaSupplyConfig struct {
	BaseURL   string `default:"https://api.megasupply.example" usage:"MegaSupply API base URL"`
	AppKey    string `usage:"MegaSupply application key"`
	AppSecret string `usage:"MegaSupply application secret"`
}

// PrimePartsConfig holds PrimeParts API credentials.
type PrimePartsConfig struct {
	BaseURL      string `default:"https://api.primeparts.example" usage:"PrimeParts API base URL"`
	ClientID     string `usage:"PrimeParts OAuth2 client id"`
	ClientSecret string `usage:"PrimeParts OAuth2 client secret"`
}

// KafkaConfig controls event publishing. With no brokers configured,
// notifications are written to the log instead.
type KafkaConfig struct {
	Brokers []string `usage:"Kafka broker addresses (empty logs events instead)"`
	Topic   string   `default:"fulfillment-events" usage:"Kafka topic for fulfillment events"`
}

// FulfillmentConfig tunes the orchestration loop.
type FulfillmentConfig struct {
	PollInterval      time.Duration `default:"1m" usage:"Pause between fulfillment cycles" flag:"poll-interval"`
	StuckShippedAfter time.Duration `default:"720h" usage:"Re-verify orders shipped but undelivered for this long" flag:"stuck-shipped-after"`
	MaxConcurrent     int           `default:"8" usage:"Max concurrent supplier API calls per phase" flag:"max-concurrent"`
	Strategy          string        `default:"auto" usage:"Supplier scoring strategy: auto, cheapest, fastest or default" flag:"strategy"`
	PreferredSupplier string        `default:"megasupply" usage:"Supplier preferred by the default strategy" flag:"preferred-supplier"`
	SnapshotCacheTTL  time.Duration `default:"5m" usage:"TTL for cached product snapshots" flag:"snapshot-cache-ttl"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "DROPSHIP",
		Files:     []string{"config.yaml", "/etc/dropship/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set DROPSHIP_DATABASE_URL or DATABASE_URL")
	}
	if cfg.Storefront.URL == "" {
		return nil, errors.New("storefront URL is required: set DROPSHIP_STOREFRONT_URL")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables that use
// standard names like DATABASE_URL and PORT to the application's DROPSHIP_-
// prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
