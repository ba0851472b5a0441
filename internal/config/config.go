// Package config provides centralized configuration management for the application.
package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/danielolaszy/bridge/pkg/models"
)

// Config holds all configuration parameters for the application.
type Config struct {
	Cloud    CloudConfig
	OnPrem   OnPremConfig
	Sync     SyncConfig
	HTTP     HTTPConfig
	Database DatabaseConfig
}

// CloudConfig holds Jira Cloud specific configuration.
type CloudConfig struct {
	URL      string
	Email    string
	APIToken string
}

// OnPremConfig holds on-premise Jira specific configuration.
type OnPremConfig struct {
	URL      string
	Username string
	Password string
}

// SyncConfig holds the sync scheduler configuration.
type SyncConfig struct {
	IntervalMinutes int
}

// HTTPConfig holds the API server configuration.
type HTTPConfig struct {
	ListenAddr string
}

// DatabaseConfig holds the MySQL connection parameters.
type DatabaseConfig struct {
	User     string
	Password string
	Host     string
	Port     string
	Name     string
}

// DSN builds the MySQL data source name. parseTime is required so gorm
// scans DATETIME columns into time.Time.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// LoadConfig initializes and loads configuration from environment variables.
// A .env file in the working directory is loaded first when present.
func LoadConfig() (*Config, error) {
	// Missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	// Initialize Viper for environment variables
	v := viper.New()
	v.SetEnvPrefix("")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Map specific environment variables
	v.BindEnv("cloud.url", "CLOUD_JIRA_URL")
	v.BindEnv("cloud.email", "CLOUD_JIRA_EMAIL")
	v.BindEnv("cloud.token", "CLOUD_JIRA_API_TOKEN")
	v.BindEnv("onprem.url", "ONPREM_JIRA_URL")
	v.BindEnv("onprem.username", "ONPREM_JIRA_USERNAME")
	v.BindEnv("onprem.password", "ONPREM_JIRA_PASSWORD")
	v.BindEnv("sync.interval", "SYNC_INTERVAL_MINUTES")
	v.BindEnv("http.addr", "HTTP_ADDR")
	v.BindEnv("db.user", "DB_USER")
	v.BindEnv("db.password", "DB_PASSWORD")
	v.BindEnv("db.host", "DB_HOST")
	v.BindEnv("db.port", "DB_PORT")
	v.BindEnv("db.name", "DB_NAME")

	v.SetDefault("sync.interval", 15)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("db.host", "127.0.0.1")
	v.SetDefault("db.port", "3306")
	v.SetDefault("db.name", "bridge")

	config := &Config{
		Cloud: CloudConfig{
			URL:      strings.TrimRight(v.GetString("cloud.url"), "/"),
			Email:    v.GetString("cloud.email"),
			APIToken: v.GetString("cloud.token"),
		},
		OnPrem: OnPremConfig{
			URL:      strings.TrimRight(v.GetString("onprem.url"), "/"),
			Username: v.GetString("onprem.username"),
			Password: v.GetString("onprem.password"),
		},
		Sync: SyncConfig{
			IntervalMinutes: v.GetInt("sync.interval"),
		},
		HTTP: HTTPConfig{
			ListenAddr: v.GetString("http.addr"),
		},
		Database: DatabaseConfig{
			User:     v.GetString("db.user"),
			Password: v.GetString("db.password"),
			Host:     v.GetString("db.host"),
			Port:     v.GetString("db.port"),
			Name:     v.GetString("db.name"),
		},
	}

	if config.Sync.IntervalMinutes <= 0 {
		config.Sync.IntervalMinutes = 15
	}

	return config, nil
}

// ValidateCloudConfig ensures the Jira Cloud side is fully configured.
func ValidateCloudConfig(config *Config) error {
	var missingVars []string

	if config.Cloud.URL == "" {
		missingVars = append(missingVars, "CLOUD_JIRA_URL")
	}
	if config.Cloud.Email == "" {
		missingVars = append(missingVars, "CLOUD_JIRA_EMAIL")
	}
	if config.Cloud.APIToken == "" {
		missingVars = append(missingVars, "CLOUD_JIRA_API_TOKEN")
	}

	if len(missingVars) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missingVars)
	}

	return nil
}

// ValidateOnPremConfig ensures the on-premise Jira side is fully configured.
func ValidateOnPremConfig(config *Config) error {
	var missingVars []string

	if config.OnPrem.URL == "" {
		missingVars = append(missingVars, "ONPREM_JIRA_URL")
	}
	if config.OnPrem.Username == "" {
		missingVars = append(missingVars, "ONPREM_JIRA_USERNAME")
	}
	if config.OnPrem.Password == "" {
		missingVars = append(missingVars, "ONPREM_JIRA_PASSWORD")
	}

	if len(missingVars) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missingVars)
	}

	return nil
}

// ValidateDatabaseConfig ensures the MySQL connection is fully configured.
func ValidateDatabaseConfig(config *Config) error {
	var missingVars []string

	if config.Database.User == "" {
		missingVars = append(missingVars, "DB_USER")
	}
	if config.Database.Password == "" {
		missingVars = append(missingVars, "DB_PASSWORD")
	}

	if len(missingVars) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missingVars)
	}

	return nil
}

// Settings converts the environment configuration into the settings
// record used by the store and engine, or nil when either tracker side
// is incomplete. Callers fall back to persisted settings in that case.
func (c *Config) Settings() *models.JiraSettings {
	if ValidateCloudConfig(c) != nil || ValidateOnPremConfig(c) != nil {
		return nil
	}

	return &models.JiraSettings{
		CloudURL:            c.Cloud.URL,
		CloudEmail:          c.Cloud.Email,
		CloudAPIToken:       c.Cloud.APIToken,
		OnPremURL:           c.OnPrem.URL,
		OnPremUsername:      c.OnPrem.Username,
		OnPremPassword:      c.OnPrem.Password,
		SyncIntervalMinutes: c.Sync.IntervalMinutes,
	}
}
