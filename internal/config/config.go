package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Mirrors  MirrorsConfig  `mapstructure:"mirrors"`
	Enrich   EnrichConfig   `mapstructure:"enrich"`
	Download DownloadConfig `mapstructure:"download"`
	History  HistoryConfig  `mapstructure:"history"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// FetchConfig holds HTTP fetch primitive configuration.
type FetchConfig struct {
	Timeout       time.Duration `mapstructure:"timeout"`
	Retries       int           `mapstructure:"retries"`
	MaxInFlight   int           `mapstructure:"max_in_flight"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
	CacheMaxItems int           `mapstructure:"cache_max_items"`
}

// MirrorsConfig holds mirror access configuration.
type MirrorsConfig struct {
	// Bases overrides the embedded default mirror list when non-empty.
	Bases []string `mapstructure:"bases"`
	// SearchPath is the path template appended to a mirror base for searches.
	SearchPath string `mapstructure:"search_path"`
	// SecondaryHost serves ad-gate pages routed by content hash when the
	// primary mirror lacks the file.
	SecondaryHost string `mapstructure:"secondary_host"`
	// ArchiveHost is the external archive fallback domain (DOI lookups and
	// hash-prefixed archive pages).
	ArchiveHost string `mapstructure:"archive_host"`
}

// EnrichConfig holds bibliographic enrichment configuration.
type EnrichConfig struct {
	BaseURL     string `mapstructure:"base_url"`
	Concurrency int    `mapstructure:"concurrency"`
	// DOIBaseURL is the works API used to decorate DOI search results.
	DOIBaseURL string `mapstructure:"doi_base_url"`
}

// DownloadConfig holds download orchestration configuration.
type DownloadConfig struct {
	Dir string `mapstructure:"dir"`
}

// HistoryConfig holds download history store configuration.
type HistoryConfig struct {
	Path      string        `mapstructure:"path"`
	Retention time.Duration `mapstructure:"retention"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8585,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Fetch: FetchConfig{
			Timeout:       30 * time.Second,
			Retries:       3,
			MaxInFlight:   3,
			CacheTTL:      5 * time.Minute,
			CacheMaxItems: 500,
		},
		Mirrors: MirrorsConfig{
			SearchPath: "/search.php?req=%s&res=100&view=simple",
		},
		Enrich: EnrichConfig{
			BaseURL:     "https://www.googleapis.com/books/v1",
			Concurrency: 5,
			DOIBaseURL:  "https://api.crossref.org",
		},
		Download: DownloadConfig{
			Dir: "./downloads",
		},
		History: HistoryConfig{
			Path:      "./data/openshelf.db",
			Retention: 90 * 24 * time.Hour,
		},
	}
}

// Load reads configuration from file and environment variables.
// Priority: environment variables > config file > defaults
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.openshelf")
	}

	v.SetEnvPrefix("OPENSHELF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// setDefaults sets default values in viper
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8585)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.path", "")

	v.SetDefault("fetch.timeout", 30*time.Second)
	v.SetDefault("fetch.retries", 3)
	v.SetDefault("fetch.max_in_flight", 3)
	v.SetDefault("fetch.cache_ttl", 5*time.Minute)
	v.SetDefault("fetch.cache_max_items", 500)

	v.SetDefault("mirrors.search_path", "/search.php?req=%s&res=100&view=simple")
	v.SetDefault("mirrors.secondary_host", "https://books.ms")
	v.SetDefault("mirrors.archive_host", "https://annas-archive.org")

	v.SetDefault("enrich.base_url", "https://www.googleapis.com/books/v1")
	v.SetDefault("enrich.concurrency", 5)
	v.SetDefault("enrich.doi_base_url", "https://api.crossref.org")

	v.SetDefault("download.dir", "./downloads")

	v.SetDefault("history.path", "./data/openshelf.db")
	v.SetDefault("history.retention", 90*24*time.Hour)
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
