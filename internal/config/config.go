package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Provisioning  ProvisioningConfig  `yaml:"provisioning"`
	Registrar     RegistrarConfig     `yaml:"registrar"`
	EmailProvider EmailProviderConfig `yaml:"email_provider"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Lock          LockConfig          `yaml:"lock"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// LoggingConfig controls the structured logger
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with ECS detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// ProvisioningConfig describes the per-tenant sending subdomain layout.
type ProvisioningConfig struct {
	BaseDomain              string `yaml:"base_domain"`
	Region                  string `yaml:"region"`
	PropagationDelaySeconds int    `yaml:"propagation_delay_seconds"`
	DKIMSelector            string `yaml:"dkim_selector"`
	SPFInclude              string `yaml:"spf_include"`
	MXHostTemplate          string `yaml:"mx_host_template"` // %s is replaced by the region
	RecordTTL               int    `yaml:"record_ttl"`
}

// PropagationDelay returns the wait before triggering verification
func (c ProvisioningConfig) PropagationDelay() time.Duration {
	return time.Duration(c.PropagationDelaySeconds) * time.Second
}

// RegistrarConfig holds DNS registrar credentials.
// Provider "rest" uses the API-key pair; "route53" uses the AWS fields.
type RegistrarConfig struct {
	Provider       string `yaml:"provider"`
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	APISecret      string `yaml:"api_secret"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
	HostedZoneID   string `yaml:"hosted_zone_id"`
	AWSRegion      string `yaml:"aws_region"`
	AWSAccessKey   string `yaml:"aws_access_key"`
	AWSSecretKey   string `yaml:"aws_secret_key"`
}

// Timeout returns the configured timeout as a duration
func (c RegistrarConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// EmailProviderConfig holds the email-delivery provider API configuration
type EmailProviderConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
}

// Timeout returns the configured timeout as a duration
func (c EmailProviderConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// DatabaseConfig holds the Postgres connection used for the run journal
// and advisory locks. Empty URL disables both.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// RedisConfig holds the Redis connection used for per-tenant locks
type RedisConfig struct {
	URL string `yaml:"url"`
}

// LockConfig controls per-tenant operation locks
type LockConfig struct {
	TTLSeconds int `yaml:"ttl_seconds"`
}

// TTL returns the lock expiry as a duration
func (c LockConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// Validate reports configuration that makes provisioning meaningless.
// Missing provider credentials are not an error here; they surface as
// configuration failures in the provisioning result.
func (c *Config) Validate() error {
	if c.Provisioning.BaseDomain == "" {
		return errors.New("provisioning.base_domain is required")
	}
	switch c.Registrar.Provider {
	case "rest", "route53":
	default:
		return errors.New("registrar.provider must be \"rest\" or \"route53\"")
	}
	return nil
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Provisioning.Region == "" {
		cfg.Provisioning.Region = "us-east-1"
	}
	if cfg.Provisioning.PropagationDelaySeconds == 0 {
		cfg.Provisioning.PropagationDelaySeconds = 2
	}
	if cfg.Provisioning.DKIMSelector == "" {
		cfg.Provisioning.DKIMSelector = "resend"
	}
	if cfg.Provisioning.SPFInclude == "" {
		cfg.Provisioning.SPFInclude = "amazonses.com"
	}
	if cfg.Provisioning.MXHostTemplate == "" {
		cfg.Provisioning.MXHostTemplate = "feedback-smtp.%s.amazonses.com"
	}
	if cfg.Provisioning.RecordTTL == 0 {
		cfg.Provisioning.RecordTTL = 600
	}
	if cfg.Registrar.Provider == "" {
		cfg.Registrar.Provider = "rest"
	}
	if cfg.Registrar.BaseURL == "" {
		cfg.Registrar.BaseURL = "https://api.godaddy.com"
	}
	if cfg.Registrar.TimeoutSeconds == 0 {
		cfg.Registrar.TimeoutSeconds = 30
	}
	if cfg.Registrar.AWSRegion == "" {
		cfg.Registrar.AWSRegion = "us-east-1"
	}
	if cfg.EmailProvider.BaseURL == "" {
		cfg.EmailProvider.BaseURL = "https://api.resend.com"
	}
	if cfg.EmailProvider.TimeoutSeconds == 0 {
		cfg.EmailProvider.TimeoutSeconds = 30
	}
	if cfg.Lock.TTLSeconds == 0 {
		cfg.Lock.TTLSeconds = 120
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("BASE_DOMAIN"); v != "" {
		cfg.Provisioning.BaseDomain = v
	}
	if v := os.Getenv("EMAIL_REGION"); v != "" {
		cfg.Provisioning.Region = v
	}
	if v := os.Getenv("PROPAGATION_DELAY_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Provisioning.PropagationDelaySeconds = n
		}
	}

	// Registrar credentials
	if v := os.Getenv("REGISTRAR_PROVIDER"); v != "" {
		cfg.Registrar.Provider = v
	}
	if v := os.Getenv("REGISTRAR_BASE_URL"); v != "" {
		cfg.Registrar.BaseURL = v
	}
	if v := os.Getenv("REGISTRAR_API_KEY"); v != "" {
		cfg.Registrar.APIKey = v
	}
	if v := os.Getenv("REGISTRAR_API_SECRET"); v != "" {
		cfg.Registrar.APISecret = v
	}
	if v := os.Getenv("ROUTE53_HOSTED_ZONE_ID"); v != "" {
		cfg.Registrar.HostedZoneID = v
	}
	if v := os.Getenv("AWS_ROUTE53_ACCESS_KEY"); v != "" {
		cfg.Registrar.AWSAccessKey = v
	}
	if v := os.Getenv("AWS_ROUTE53_SECRET_KEY"); v != "" {
		cfg.Registrar.AWSSecretKey = v
	}

	// Email provider credentials
	if v := os.Getenv("EMAIL_PROVIDER_API_KEY"); v != "" {
		cfg.EmailProvider.APIKey = v
	}
	if v := os.Getenv("EMAIL_PROVIDER_BASE_URL"); v != "" {
		cfg.EmailProvider.BaseURL = v
	}

	// Database / Redis overrides (critical for ECS deployment where config.yaml has local defaults)
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	return cfg, nil
}
