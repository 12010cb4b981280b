package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Host  string `yaml:"host" envconfig:"HOST"`
		Port  int    `yaml:"port" envconfig:"PORT"`
		Env   string `yaml:"env" envconfig:"ENV"`
		Debug bool   `yaml:"debug" envconfig:"DEBUG"` // exposes error causes in responses

		AllowedOrigins []string `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"` // empty allows any origin
	} `yaml:"server"`

	Database struct {
		DSN          string `yaml:"url" envconfig:"URL"`
		MaxOpenConns int    `yaml:"max_open_conns" envconfig:"MAX_OPEN_CONNS"`
		LogQueries   bool   `yaml:"log_queries" envconfig:"LOG_QUERIES"`
	} `yaml:"database"`

	Redis struct {
		URL string `yaml:"url" envconfig:"URL"`
	} `yaml:"redis"`

	JWT struct {
		Secret string `yaml:"secret" envconfig:"SECRET"`
	} `yaml:"jwt"`

	Storage struct {
		Type        string `yaml:"type" envconfig:"TYPE"`           // local, s3, cloudflare_r2, supabase; empty disables uploads
		BasePath    string `yaml:"base_path" envconfig:"BASE_PATH"` // local
		BaseURL     string `yaml:"base_url" envconfig:"BASE_URL"`   // public URL prefix
		Bucket      string `yaml:"bucket" envconfig:"BUCKET"`
		Region      string `yaml:"region" envconfig:"REGION"`
		AccessKey   string `yaml:"access_key" envconfig:"ACCESS_KEY"`
		SecretKey   string `yaml:"secret_key" envconfig:"SECRET_KEY"`
		Endpoint    string `yaml:"endpoint" envconfig:"ENDPOINT"` // R2 or custom S3
		PublicRead  bool   `yaml:"public_read" envconfig:"PUBLIC_READ"`
		SupabaseURL string `yaml:"supabase_url" envconfig:"SUPABASE_URL"`
		SupabaseKey string `yaml:"supabase_key" envconfig:"SUPABASE_KEY"`
	} `yaml:"storage"`

	Upload struct {
		MaxSize      int64    `yaml:"max_size" envconfig:"MAX_SIZE"`
		AllowedTypes []string `yaml:"allowed_types" envconfig:"ALLOWED_TYPES"`
	} `yaml:"upload"`

	Kafka struct {
		Brokers string `yaml:"brokers" envconfig:"BROKERS"` // comma separated; empty disables publishing
		Topic   string `yaml:"topic" envconfig:"TOPIC"`
	} `yaml:"kafka"`

	RateLimit struct {
		Enabled       bool `yaml:"enabled" envconfig:"ENABLED"`
		Requests      int  `yaml:"requests" envconfig:"REQUESTS"`
		WindowSeconds int  `yaml:"window_seconds" envconfig:"WINDOW_SECONDS"`
	} `yaml:"rate_limit"`

	Archive struct {
		Enabled         bool `yaml:"enabled" envconfig:"ENABLED"`
		PurgeDays       int  `yaml:"purge_days" envconfig:"PURGE_DAYS"`
		WarningLeadDays int  `yaml:"warning_lead_days" envconfig:"WARNING_LEAD_DAYS"`
		IntervalMinutes int  `yaml:"interval_minutes" envconfig:"INTERVAL_MINUTES"`
		LockTTLSeconds  int  `yaml:"lock_ttl_seconds" envconfig:"LOCK_TTL_SECONDS"`
		BatchSize       int  `yaml:"batch_size" envconfig:"BATCH_SIZE"`
	} `yaml:"archive"`

	// Commerce holds fallbacks for values admins have not set in commerce_settings.
	Commerce struct {
		PricePerRevision        string `yaml:"price_per_revision" envconfig:"PRICE_PER_REVISION"`
		ExtensionPrice          string `yaml:"extension_price" envconfig:"EXTENSION_PRICE"`
		PinPackPrice            string `yaml:"pin_pack_price" envconfig:"PIN_PACK_PRICE"`
		MaxRevisionsPerPurchase int    `yaml:"max_revisions_per_purchase" envconfig:"MAX_REVISIONS_PER_PURCHASE"`
		IdempotencyTTLHours     int    `yaml:"idempotency_ttl_hours" envconfig:"IDEMPOTENCY_TTL_HOURS"`
	} `yaml:"commerce"`
}

var AppConfig *Config

// Default returns a configuration usable for local development.
func Default() *Config {
	var cfg Config

	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = 8080
	cfg.Server.Env = "development"

	cfg.Database.MaxOpenConns = 20

	cfg.Storage.Type = "local"
	cfg.Storage.BasePath = "./uploads"
	cfg.Storage.BaseURL = "/api/v1/files"

	cfg.Upload.MaxSize = 50 * 1024 * 1024
	cfg.Upload.AllowedTypes = []string{"application/pdf", "image/jpeg", "image/png", "image/webp"}

	cfg.Kafka.Topic = "order-events"

	cfg.RateLimit.Enabled = true
	cfg.RateLimit.Requests = 20
	cfg.RateLimit.WindowSeconds = 60

	cfg.Archive.Enabled = true
	cfg.Archive.PurgeDays = 45
	cfg.Archive.WarningLeadDays = 7
	cfg.Archive.IntervalMinutes = 60
	cfg.Archive.LockTTLSeconds = 600
	cfg.Archive.BatchSize = 200

	cfg.Commerce.PricePerRevision = "0"
	cfg.Commerce.ExtensionPrice = ""
	cfg.Commerce.PinPackPrice = "0"
	cfg.Commerce.MaxRevisionsPerPurchase = 20
	cfg.Commerce.IdempotencyTTLHours = 24

	return &cfg
}

// Load layers defaults, the yaml file at path (optional), a .env file and the process environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		switch {
		case err == nil:
			defer f.Close()
			if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
				return nil, fmt.Errorf("parse config file %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
			log.Printf("config file %s not found, using defaults and environment", path)
		default:
			return nil, fmt.Errorf("open config file %s: %w", path, err)
		}
	}

	// .env is optional; real environment variables take precedence over it.
	_ = godotenv.Load()

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be positive, got %d", c.Server.Port)
	}
	if c.Archive.PurgeDays <= 0 {
		return fmt.Errorf("archive.purge_days must be positive, got %d", c.Archive.PurgeDays)
	}
	if c.Archive.WarningLeadDays < 0 || c.Archive.WarningLeadDays >= c.Archive.PurgeDays {
		return fmt.Errorf("archive.warning_lead_days must be in [0, %d), got %d",
			c.Archive.PurgeDays, c.Archive.WarningLeadDays)
	}
	if c.Commerce.IdempotencyTTLHours <= 0 {
		return fmt.Errorf("commerce.idempotency_ttl_hours must be positive")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// KafkaBrokers splits the comma separated broker list.
func (c *Config) KafkaBrokers() []string {
	var brokers []string
	for _, b := range strings.Split(c.Kafka.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// LoadConfig fills AppConfig from CONFIG_PATH (config/config.yaml by default) and exits on failure.
func LoadConfig() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	AppConfig = cfg
}

func GetConfig() *Config {
	if AppConfig == nil {
		LoadConfig()
	}
	return AppConfig
}
