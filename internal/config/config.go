// Package config loads cube-export settings from a config file and the environment.
package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"

	"go-cube-export/internal/model"
	"go-cube-export/internal/store"
)

// EnvPrefix is prepended to every environment override, e.g. CUBE_EXPORT_API_KEY.
const EnvPrefix = "CUBE_EXPORT"

type Config struct {
	API       APIConfig       `mapstructure:"api"`
	Store     StoreConfig     `mapstructure:"store"`
	Export    ExportConfig    `mapstructure:"export"`
	Report    ReportConfig    `mapstructure:"report"`
	Log       LogConfig       `mapstructure:"log"`
	APIServer APIServerConfig `mapstructure:"api_server"`
}

type APIConfig struct {
	Key      string          `mapstructure:"key"`
	MaxCalls int64           `mapstructure:"max_calls"`
	Timeout  time.Duration   `mapstructure:"timeout"`
	URLs     model.Endpoints `mapstructure:"urls"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type ExportConfig struct {
	Files               string `mapstructure:"files"`
	Definitions         string `mapstructure:"definitions"`
	Assets              string `mapstructure:"assets"`
	MaxWorkers          int    `mapstructure:"max_workers"`
	SheetSplitThreshold int    `mapstructure:"sheet_split_threshold"`
	SharePoint          string `mapstructure:"sharepoint"`
	SharePointAssets    string `mapstructure:"sharepoint_assets"`
}

type ReportConfig struct {
	BrowserBin string        `mapstructure:"browser_bin"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type LogConfig struct {
	Debug      bool   `mapstructure:"debug"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type APIServerConfig struct {
	Addr string `mapstructure:"addr"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.max_calls", 20000)
	v.SetDefault("api.timeout", "60s")
	v.SetDefault("store.driver", store.DriverMattn)
	v.SetDefault("store.dsn", "cube.db")
	v.SetDefault("export.files", "files")
	v.SetDefault("export.definitions", ".")
	v.SetDefault("export.assets", "assets")
	v.SetDefault("export.max_workers", 4)
	v.SetDefault("export.sheet_split_threshold", 5000)
	v.SetDefault("report.timeout", "2m")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("api_server.addr", ":8080")

	// Nested keys without a default are invisible to AutomaticEnv during
	// Unmarshal; registering them keeps env-only deployments working.
	for _, key := range []string{
		"api.key", "api.urls.groups", "api.urls.processes", "api.urls.forms",
		"api.urls.data", "api.urls.files", "export.sharepoint",
		"export.sharepoint_assets", "report.browser_bin", "log.file",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("log.debug", false)
}

// Load reads path (JSON, YAML or TOML by extension) and applies environment
// overrides. An empty path searches for config.{json,yaml,toml} in the working
// directory and tolerates its absence.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Validate rejects settings the exporter cannot run with.
func (c *Config) Validate() error {
	var missing []string
	for name, u := range map[string]string{
		"api.urls.groups":    c.API.URLs.Groups,
		"api.urls.processes": c.API.URLs.Processes,
		"api.urls.forms":     c.API.URLs.Forms,
		"api.urls.data":      c.API.URLs.Data,
		"api.urls.files":     c.API.URLs.Files,
	} {
		if strings.TrimSpace(u) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("missing endpoint configuration: %s", strings.Join(missing, ", "))
	}
	if c.Export.MaxWorkers <= 0 {
		return fmt.Errorf("export.max_workers must be positive, got %d", c.Export.MaxWorkers)
	}
	if c.Export.SheetSplitThreshold <= 0 {
		return fmt.Errorf("export.sheet_split_threshold must be positive, got %d", c.Export.SheetSplitThreshold)
	}
	if strings.TrimSpace(c.Export.Files) == "" {
		return errors.New("export.files must not be empty")
	}
	switch c.Store.Driver {
	case store.DriverMattn, store.DriverModernc:
	default:
		return fmt.Errorf("unsupported store.driver %q", c.Store.Driver)
	}
	return nil
}
