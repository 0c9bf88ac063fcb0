package config

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	internal "github.com/filehound/filehound/fhound"

	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Filehound FilehoundConfig `mapstructure:"filehound"`
}

// FilehoundConfig stores the search-core specific configuration.
type FilehoundConfig struct {
	Server  ServerConfig  `mapstructure:"server"`
	Search  SearchConfig  `mapstructure:"search"`
	Content ContentConfig `mapstructure:"content"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Jobs    JobsConfig    `mapstructure:"jobs"`
	History HistoryConfig `mapstructure:"history"`
}

// ServerConfig stores the HTTP listener details.
type ServerConfig struct {
	Listen string `mapstructure:"listen"`
}

// SearchConfig stores filename-scanner settings.
type SearchConfig struct {
	Workers        int      `mapstructure:"workers"`
	IgnorePatterns []string `mapstructure:"ignorePatterns"`
}

// ContentConfig stores content-search settings.
type ContentConfig struct {
	Workers      int    `mapstructure:"workers"`
	MaxTextBytes int64  `mapstructure:"maxTextBytes"`
	SnippetRunes int    `mapstructure:"snippetRunes"`
	TextCacheDir string `mapstructure:"textCacheDir"`
}

// CacheConfig stores the scan-cache settings.
type CacheConfig struct {
	Path       string `mapstructure:"path"`
	TTLMinutes int    `mapstructure:"ttlMinutes"`
	WatchRoots bool   `mapstructure:"watchRoots"`
}

// JobsConfig stores the job-registry retention settings.
type JobsConfig struct {
	RetentionMinutes int `mapstructure:"retentionMinutes"`
	SweepSeconds     int `mapstructure:"sweepSeconds"`
}

// HistoryConfig stores the search-history persistence settings.
type HistoryConfig struct {
	Path    string `mapstructure:"path"`
	Enabled bool   `mapstructure:"enabled"`
}

var AppConfig Config

// DefaultContentWorkers derives the content-search pool size from the
// available CPU parallelism. Extraction is I/O bound, so half the cores is
// enough to keep the disk busy without oversubscribing.
func DefaultContentWorkers() int {
	return max(1, runtime.NumCPU()/2)
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(configPath string) (*Config, error) {
	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("..")
		viper.AddConfigPath(filepath.Join("etc", internal.DefaultAppName))
		viper.AddConfigPath(internal.DefaultConfigPath)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	// Set default values
	viper.SetDefault("filehound.server.listen", internal.DefaultListenAddr)

	viper.SetDefault("filehound.search.workers", 0) // 0 means derive from CPU count
	viper.SetDefault("filehound.search.ignorePatterns", []string{})

	viper.SetDefault("filehound.content.workers", DefaultContentWorkers())
	viper.SetDefault("filehound.content.maxTextBytes", internal.DefaultMaxTextBytes)
	viper.SetDefault("filehound.content.snippetRunes", internal.DefaultSnippetRunes)
	viper.SetDefault("filehound.content.textCacheDir", internal.DefaultTextCacheDir)

	viper.SetDefault("filehound.cache.path", internal.DefaultCacheDBPath)
	viper.SetDefault("filehound.cache.ttlMinutes", int(internal.DefaultCacheTTL.Minutes()))
	viper.SetDefault("filehound.cache.watchRoots", true)

	viper.SetDefault("filehound.jobs.retentionMinutes", int(internal.DefaultJobRetention.Minutes()))
	viper.SetDefault("filehound.jobs.sweepSeconds", 60)

	viper.SetDefault("filehound.history.path", internal.DefaultHistoryDBPath)
	viper.SetDefault("filehound.history.enabled", true)

	viper.AutomaticEnv()                                   // Read in environment variables that match
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // e.g. filehound.cache.path becomes FILEHOUND_CACHE_PATH

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; defaults will be used. This is not an
			// error for the application to halt on.
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	err := viper.Unmarshal(&AppConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	return &AppConfig, nil
}
