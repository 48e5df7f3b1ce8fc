package config

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

const (
	defaultListenAddr    = ":8080"
	defaultDBPath        = "benchrun.db"
	defaultCatalogPath   = "configs/catalog.yaml"
	defaultExportDir     = "exports"
	defaultUploadTimeout = 30 * time.Second

	envListenAddr    = "BENCHRUN_LISTEN_ADDR"
	envDBPath        = "BENCHRUN_DB_PATH"
	envLogLevel      = "BENCHRUN_LOG_LEVEL"
	envCatalogPath   = "BENCHRUN_CATALOG"
	envExportDir     = "BENCHRUN_EXPORT_DIR"
	envUploadURL     = "BENCHRUN_UPLOAD_URL"
	envResultsURL    = "BENCHRUN_RESULTS_URL"
	envUploadTimeout = "BENCHRUN_UPLOAD_TIMEOUT"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	ListenAddr  string
	DBPath      string
	LogLevel    slog.Level
	CatalogPath string
	ExportDir   string

	// UploadURL is the base URL of the results service. Uploads fail when
	// it is empty.
	UploadURL     string
	ResultsURL    string
	UploadTimeout time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	cfg := Config{
		ListenAddr:    defaultListenAddr,
		DBPath:        defaultDBPath,
		LogLevel:      slog.LevelInfo,
		CatalogPath:   defaultCatalogPath,
		ExportDir:     defaultExportDir,
		UploadTimeout: defaultUploadTimeout,
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = ParseLogLevel(v)
	}
	if v := os.Getenv(envCatalogPath); v != "" {
		cfg.CatalogPath = v
	}
	if v := os.Getenv(envExportDir); v != "" {
		cfg.ExportDir = v
	}
	cfg.UploadURL = os.Getenv(envUploadURL)
	cfg.ResultsURL = os.Getenv(envResultsURL)
	if v := os.Getenv(envUploadTimeout); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.UploadTimeout = d
		}
	}

	return cfg
}

// ParseLogLevel maps a level name to a slog level. Unknown names are info.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
