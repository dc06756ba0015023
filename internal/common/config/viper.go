package config

import (
	"fmt"
	"strings"

	"github.com/maribox/rbg-live-dl/pkg/models"
	"github.com/spf13/viper"
)

// Config is the struct that holds the configuration of the application
type Config struct {
	App        AppConfig        `json:"app"`
	Portal     PortalConfig     `json:"portal"`
	Downloader DownloaderConfig `json:"downloader"`
	RabbitMq   RabbitMQConfig   `json:"rabbitmq"`
}

type AppConfig struct {
	Name     string `json:"name"`
	LogLevel int    `json:"logLevel"`
	Env      string `json:"env"`
}

type PortalConfig struct {
	BaseURL         string `json:"baseUrl"`
	CredentialsFile string `json:"credentialsFile"`
	// ElementTimeout bounds every wait-for-element call, in seconds.
	ElementTimeout int    `json:"elementTimeout"`
	UserAgent      string `json:"userAgent"`
}

type DownloaderConfig struct {
	OutputDir   string `json:"outputDir"`
	TempDir     string `json:"tempDir"`
	Concurrency int    `json:"concurrency"`
}

type RabbitMQConfig struct {
	URL              string `json:"url"`
	Exchange         string `json:"exchange"`
	ReconnectRetries int    `json:"reconnectRetries"`
	ReconnectTimeout int    `json:"reconnectTimeout"`
}

// Load reads config.json from the working directory, applying defaults and
// environment overrides. A missing config file is fine; the defaults
// describe a standard run against the live portal.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(".")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("app.name", "rbg-live-dl")
	v.SetDefault("app.logLevel", 4) // logrus.InfoLevel
	v.SetDefault("app.env", "production")
	v.SetDefault("portal.baseUrl", "https://live.rbg.tum.de")
	v.SetDefault("portal.credentialsFile", "credentials.json")
	v.SetDefault("portal.elementTimeout", 20)
	v.SetDefault("downloader.outputDir", "out")
	v.SetDefault("downloader.tempDir", "temp")
	v.SetDefault("downloader.concurrency", 10)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	return &config, nil
}

// LoadCredentials reads the portal login pair from the given JSON file.
// Absence or malformed content is a startup-fatal error surfaced to the
// caller; credentials are never written back or logged.
func LoadCredentials(path string) (*models.Credentials, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading credentials file %s: %w", path, err)
	}

	var creds models.Credentials
	if err := v.Unmarshal(&creds); err != nil {
		return nil, fmt.Errorf("unable to decode credentials: %w", err)
	}

	if creds.Username == "" || creds.Password == "" {
		return nil, fmt.Errorf("credentials file %s must contain username and password", path)
	}

	return &creds, nil
}

// Get config for app
func (c *Config) GetAppConfig() *AppConfig {
	return &c.App
}

// Get config for the portal crawl
func (c *Config) GetPortalConfig() *PortalConfig {
	return &c.Portal
}

// Get config for downloader
func (c *Config) GetDownloaderConfig() *DownloaderConfig {
	return &c.Downloader
}

// Get config for RabbitMQ
func (c *Config) GetRabbitMQConfig() *RabbitMQConfig {
	return &c.RabbitMq
}
