package internal

import (
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

var (
	// DefaultConfigPath is the default path to the config file
	DefaultAppName       = "filehound"
	DefaultConfigPath    = filepath.Join(getHomeDir(), ".config", DefaultAppName)
	DefaultCacheDir      = filepath.Join(DefaultConfigPath, ".cache")
	DefaultCacheDBPath   = filepath.Join(DefaultCacheDir, "scan_index.db")
	DefaultHistoryDBPath = filepath.Join(DefaultCacheDir, "history.db")
	DefaultTextCacheDir  = filepath.Join(DefaultCacheDir, "text")

	// Default search/cache settings
	DefaultCacheTTL     = time.Hour
	DefaultJobRetention = 10 * time.Minute
	DefaultListenAddr   = "127.0.0.1:8750"
	DefaultMaxTextBytes = int64(2 * 1024 * 1024)
	DefaultSnippetRunes = 40
)

func getHomeDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current working directory if home directory is unavailable
		cwd, cwdErr := os.Getwd()
		if cwdErr != nil {
			// Last resort - use tmp directory
			log.Printf("Unable to get home or working directory, using /tmp: %v", err)
			return "/tmp"
		}
		log.Printf("Unable to get home directory, using current working directory: %v", err)
		return cwd
	}
	return homeDir
}

// GetLogger returns a properly configured zerolog logger instance
func GetLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}
