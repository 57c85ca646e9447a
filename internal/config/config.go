package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/eliesystems/guben-booking-backend-sub000/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Logging    LoggingConfig    `yaml:"logging"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	API        APIConfig        `yaml:"api"`
	Locker     LockerConfig     `yaml:"locker"`
	Holidays   HolidayConfig    `yaml:"holidays"`
	Exports    ExportConfig     `yaml:"exports"`

	Tenants   []models.Tenant   `yaml:"tenants"`
	Bookables []models.Bookable `yaml:"bookables"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Port int `yaml:"port"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// LockerConfig points at the external locker backend.
type LockerConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
}

// HolidayConfig points at the public holiday calendar service.
type HolidayConfig struct {
	BaseURL         string `yaml:"base_url"`
	CacheTTLMinutes int    `yaml:"cache_ttl_minutes"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; ignore a missing file.
	_ = godotenv.Load(".env")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	tenantIDs := make(map[string]bool)
	for _, t := range c.Tenants {
		if t.ID == "" {
			return fmt.Errorf("tenant %q has empty id", t.Name)
		}
		if tenantIDs[t.ID] {
			return fmt.Errorf("duplicate tenant id: %s", t.ID)
		}
		tenantIDs[t.ID] = true
	}

	return ValidateBookables(c.Bookables, tenantIDs)
}

// ValidateBookables checks catalog invariants: unique ids, known tenants,
// resolvable relations.
func ValidateBookables(bookables []models.Bookable, tenantIDs map[string]bool) error {
	byID := make(map[string]bool, len(bookables))
	for i := range bookables {
		b := &bookables[i]
		if err := b.Validate(); err != nil {
			return err
		}
		if byID[b.ID] {
			return fmt.Errorf("duplicate bookable id: %s", b.ID)
		}
		byID[b.ID] = true
		if len(tenantIDs) > 0 && !tenantIDs[b.TenantID] {
			return fmt.Errorf("bookable %s references unknown tenant %s", b.ID, b.TenantID)
		}
	}
	for i := range bookables {
		for _, rel := range bookables[i].RelatedBookableIDs {
			if !byID[rel] {
				return fmt.Errorf("bookable %s references unknown related bookable %s", bookables[i].ID, rel)
			}
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if !c.API.Auth.Enabled && c.API.Enabled {
		c.API.Auth.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.Locker.TimeoutSeconds == 0 {
		c.Locker.TimeoutSeconds = 10
	}
	if c.Locker.MaxRetries == 0 {
		c.Locker.MaxRetries = 5
	}
	if c.Holidays.CacheTTLMinutes == 0 {
		c.Holidays.CacheTTLMinutes = 24 * 60
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
}
