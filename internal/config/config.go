package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Servers    []ServerConfig  `mapstructure:"servers" yaml:"servers"`
	Indexers   []IndexerConfig `mapstructure:"indexers" yaml:"indexers"`
	Download   DownloadConfig  `mapstructure:"download" yaml:"download"`
	Log        LogConfig       `mapstructure:"log" yaml:"log"`
	Store      StoreConfig     `mapstructure:"store" yaml:"store"`
	Events     EventsConfig    `mapstructure:"events" yaml:"events"`
	Extraction ExtractionConfig `mapstructure:"extraction" yaml:"extraction"`

	Port string `mapstructure:"port" yaml:"port"`
}

type ServerConfig struct {
	ID                string   `mapstructure:"id" yaml:"id"`
	Host              string   `mapstructure:"host" yaml:"host"`
	Port              int      `mapstructure:"port" yaml:"port"`
	Username          string   `mapstructure:"username" yaml:"username"`
	Password          string   `mapstructure:"password" yaml:"password"`
	TLS               bool     `mapstructure:"tls" yaml:"tls"`
	MaxConnection     int      `mapstructure:"max_connections" yaml:"max_connections"`
	Priority          int      `mapstructure:"priority" yaml:"priority"`
	ArticleTimeoutMs  int      `mapstructure:"article_timeout_ms" yaml:"article_timeout_ms"`
	RetryAttempts     int      `mapstructure:"retry_attempts" yaml:"retry_attempts"`
	RetryBackoffMs    int      `mapstructure:"retry_backoff_ms" yaml:"retry_backoff_ms"`
	FallbackIDs       []string `mapstructure:"fallback_ids" yaml:"fallback_ids"`
}

// EventsConfig holds the progress-event interval (default 500). job.Manager
// does not read it; it publishes progress on its own fixed 500 ms ticker.
type EventsConfig struct {
	IntervalMs int `mapstructure:"interval_ms" yaml:"interval_ms"`
}

// ExtractionConfig controls archive post-processing.
type ExtractionConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
	RarPassword string `mapstructure:"rar_password" yaml:"rar_password"`
}

type IndexerConfig struct {
	ID       string `mapstructure:"id" yaml:"id"`
	BaseUrl  string `mapstructure:"base_url" yaml:"base_url"`
	ApiKey   string `mapstructure:"api_key" yaml:"api_key"`
	Redirect bool   `mapstructure:"redirect" yaml:"redirect"`
}

type DownloadConfig struct {
	OutDir            string   `mapstructure:"out_dir" yaml:"out_dir"`
	CompletedDir      string   `mapstructure:"completed_dir" yaml:"completed_dir"`
	TempDir           string   `mapstructure:"temp_dir" yaml:"temp_dir"`
	CleanupExtensions []string `mapstructure:"cleanup_extensions" yaml:"cleanup_extensions"`

	// StrictCRC makes a yEnc CRC32 mismatch (or a part carrying no CRC at
	// all) a hard segment failure instead of a logged warning.
	StrictCRC bool `mapstructure:"strict_crc" yaml:"strict_crc"`

	// MaxDesyncEvents is loaded from config but not read by internal/nntp,
	// whose connections apply their own fixed limit of 3 stray status-looking
	// lines inside a BODY response before marking themselves broken.
	MaxDesyncEvents int `mapstructure:"max_desync_events" yaml:"max_desync_events"`
}

type LogConfig struct {
	Path          string `mapstructure:"path" yaml:"path"`
	Level         string `mapstructure:"level" yaml:"level"`
	IncludeStdout bool   `mapstructure:"include_stdout" yaml:"include_stdout"`
}

type StoreConfig struct {
	// Driver selects the history-store backend: "sqlite" (default) or
	// "postgres".
	Driver     string `mapstructure:"driver" yaml:"driver"`
	SQLitePath string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	BlobDir    string `mapstructure:"blob_dir" yaml:"blob_dir"`
	PostgresDSN string `mapstructure:"postgres_dsn" yaml:"postgres_dsn"`
}

func Load(path string) (*Config, error) {

	if path == "" {
		path = "config.yaml"
	}

	// 1. Check if the file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		// FALLBACK: If we are in Docker (or similar) and didn't provide a flag, check /config/config.yaml
		if path == "config.yaml" {
			if _, errEx := os.Stat("/config/config.yaml"); errEx == nil {
				path = "/config/config.yaml"
			} else if _, errEx := os.Stat("config.yaml.example"); errEx == nil {
				// If config.yaml is missing but example exists, give a helpful error
				return nil, fmt.Errorf("configuration file 'config.yaml' not found\n\n" +
					"To fix this, run:\n" +
					"  cp config.yaml.example config.yaml\n" +
					"Then edit it with your Usenet credentials.")
			} else {
				return nil, fmt.Errorf("config file not found: %s", path)
			}
		} else {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
	}

	v := viper.New()

	// Set Defaults
	v.SetDefault("port", "8080")
	v.SetDefault("download.out_dir", "./downloads")
	v.SetDefault("download.completed_dir", "./downloads/completed")
	v.SetDefault("download.cleanup_extensions", []string{"nzb", "par2", "sfv", "nfo"}) // sane default for completed cleanup
	v.SetDefault("log.path", "gonzb.log")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.include_stdout", true)
	v.SetDefault("download.temp_dir", "./downloads/.segments")
	v.SetDefault("download.strict_crc", false)
	v.SetDefault("download.max_desync_events", 3)
	v.SetDefault("events.interval_ms", 500)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "./gonzb.db")
	v.SetDefault("store.blob_dir", "./nzb-blobs")
	v.SetDefault("extraction.enabled", true)

	// Read config File
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	// Support Environment Variables
	v.SetEnvPrefix("GONZB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if len(c.Servers) == 0 {
		return errors.New("at least one server must be configured")
	}

	for i, s := range c.Servers {
		if s.ID == "" {
			return fmt.Errorf("server[%d] requires a unique ID", i)
		}

		if s.Host == "" {
			return fmt.Errorf("server %s: host is required", s.ID)
		}

		if s.Port == 0 {
			return fmt.Errorf("server %s: port is required", s.ID)
		}

		if s.TLS && s.Port == 119 {
			fmt.Println("Warning: TLS is enabled but port is set to 119 (standard non-TLS)")
		}

		if s.MaxConnection <= 0 {
			// Default to a sane value
			c.Servers[i].MaxConnection = 10
		}

		if s.Priority == 0 {
			// Default to same priority
			c.Servers[i].Priority = 1
		}

		if s.ArticleTimeoutMs <= 0 {
			c.Servers[i].ArticleTimeoutMs = 15000
		}
		if s.RetryAttempts <= 0 {
			c.Servers[i].RetryAttempts = 3
		}
		if s.RetryBackoffMs <= 0 {
			c.Servers[i].RetryBackoffMs = 2000
		}
	}

	if c.Download.OutDir == "" {
		c.Download.OutDir = "./downloads"
	}

	return nil
}
