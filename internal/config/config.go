package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix            = "ZEROGHOST"
	defaultHTTPAddress   = "0.0.0.0:8000"
	defaultDatabasePath  = "zeroghost.db"
	defaultMediaDir      = "media"
	defaultLogLevel      = "info"
	defaultGraphURL      = "https://graph.facebook.com/v18.0"
	defaultAuditSchedule = "@hourly"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress         string
	DatabasePath        string
	MediaDir            string
	LogLevel            string
	SigningSecret       string
	AdminPassword       string
	FacebookPageID      string
	FacebookAccessToken string
	FacebookGraphURL    string
	AuditSchedule       string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("media.dir", defaultMediaDir)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("facebook.graph_url", defaultGraphURL)
	configViper.SetDefault("audit.schedule", defaultAuditSchedule)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:         configViper.GetString("http.address"),
		DatabasePath:        configViper.GetString("database.path"),
		MediaDir:            configViper.GetString("media.dir"),
		LogLevel:            configViper.GetString("log.level"),
		SigningSecret:       configViper.GetString("auth.signing_secret"),
		AdminPassword:       configViper.GetString("admin.password"),
		FacebookPageID:      configViper.GetString("facebook.page_id"),
		FacebookAccessToken: configViper.GetString("facebook.access_token"),
		FacebookGraphURL:    configViper.GetString("facebook.graph_url"),
		AuditSchedule:       configViper.GetString("audit.schedule"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.MediaDir) == "" {
		return fmt.Errorf("media.dir is required")
	}
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.AdminPassword) == "" {
		return fmt.Errorf("admin.password is required")
	}
	return nil
}
