package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Storage drivers.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config holds the complete application configuration, loadable from
// environment variables (SHOP_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	Storage      string `default:"postgres" usage:"Storage driver: postgres or memory"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (SHOP_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	SeedFile     string `usage:"Products JSON loaded by the memory driver; the embedded catalog when empty" flag:"seed-file"`
	AdminAPIKey  string `usage:"Admin API key registered by the memory driver" flag:"admin-api-key"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (SHOP_API_KEY_PEPPER)" flag:"api-key-pepper"`
	Payment      PaymentConfig
	Checkout     CheckoutConfig
	Campaigns    CampaignsConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// PaymentConfig points at the external card payment provider.
type PaymentConfig struct {
	BaseURL          string        `usage:"Payment provider API base URL; prepaid checkout is rejected when empty" flag:"payment-base-url"`
	SecretKey        string        `usage:"Payment provider secret key" flag:"payment-secret-key"`
	Currency         string        `default:"usd" usage:"Currency payment intents are opened in"`
	WebhookSecret    string        `usage:"Webhook signing secret; the webhook route is disabled when empty" flag:"payment-webhook-secret"`
	Timeout          time.Duration `default:"10s" usage:"Payment verification timeout"`
	WebhookTolerance time.Duration `default:"5m" usage:"Accepted webhook timestamp skew"`
}

// CheckoutConfig tunes order placement.
type CheckoutConfig struct {
	EstimatedDelivery time.Duration `default:"168h" usage:"Delivery estimate added to the checkout time" flag:"estimated-delivery"`
}

// CampaignsConfig tunes campaign listing and expiry.
type CampaignsConfig struct {
	ActiveLimit   int           `default:"3" usage:"Active campaigns shown on the storefront" flag:"active-campaigns"`
	SweepInterval time.Duration `default:"1m" usage:"Interval of the expired campaign sweep; 0 disables it" flag:"sweep-interval"`
}

// RateLimitConfig controls the per-client sliding window limiter on checkout.
type RateLimitConfig struct {
	Max    int           `default:"30" usage:"Max checkouts per window"`
	Window time.Duration `default:"1m" usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables and YAML config
// files, then applies platform defaults and validates the result.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "SHOP",
		Files:     []string{"config.yaml", "/etc/shop/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports configuration that cannot start a server.
func (c *Config) Validate() error {
	switch c.Storage {
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return errors.New("database URL is required: set SHOP_DATABASE_URL or DATABASE_URL")
		}
	case StorageMemory:
	default:
		return errors.Errorf("unknown storage driver %q", c.Storage)
	}
	if c.Campaigns.ActiveLimit <= 0 {
		return errors.Errorf("campaigns active limit must be positive, got %d", c.Campaigns.ActiveLimit)
	}
	if c.Campaigns.SweepInterval < 0 {
		return errors.New("campaigns sweep interval must not be negative")
	}
	if c.Payment.SecretKey == "" && c.Payment.BaseURL != "" {
		return errors.New("payment secret key is required with a payment base URL")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's SHOP_-prefixed configuration.
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
