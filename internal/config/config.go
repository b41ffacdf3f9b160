// Package config provides configuration management for the Verso Agent.
// Configuration is loaded from environment variables with sensible defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	// Default values
	DefaultPort      = 8797
	DefaultLogLevel  = "info"
	DefaultDataDir   = ".verso"
	DefaultFrameRate = 30
	DefaultWidth     = 1280
	DefaultHeight    = 720

	// Environment variable names
	EnvPort       = "VERSO_PORT"
	EnvLogLevel   = "VERSO_LOG_LEVEL"
	EnvDataDir    = "VERSO_DATA_DIR"
	EnvLibraryDir = "VERSO_LIBRARY_DIR"
	EnvExportDir  = "VERSO_EXPORT_DIR"
	EnvHeadless   = "VERSO_HEADLESS"

	// Encoder environment variable names
	EnvFFmpegPath  = "VERSO_FFMPEG_PATH"
	EnvFFprobePath = "VERSO_FFPROBE_PATH"
	EnvFrameRate   = "VERSO_EXPORT_FRAMERATE"

	// Aligner environment variable names
	EnvAlignerURL   = "VERSO_ALIGNER_URL"
	EnvAlignerToken = "VERSO_ALIGNER_TOKEN"

	// Database filename
	DBFilename = "verso.db"

	// Aligner defaults
	DefaultAlignerTimeout = 120 // seconds
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	LibraryDir() string
	ExportDir() string
	Headless() bool
	FFmpegPath() string
	FFprobePath() string
	FrameRate() int
	Width() int
	Height() int
	AlignerURL() string
	AlignerToken() string
	AlignerTimeout() time.Duration
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	port       int
	logLevel   string
	dataDir    string
	libraryDir string
	exportDir  string
	headless   bool
	frameRate  int

	ffmpegPath  string
	ffprobePath string

	alignerURL   string
	alignerToken string
}

// New creates a new EnvConfig with defaults and environment variable overrides
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:      DefaultPort,
		logLevel:  DefaultLogLevel,
		dataDir:   defaultDataDir(),
		frameRate: DefaultFrameRate,
	}

	// Override port from environment
	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
		}
		cfg.port = port
	}

	// Override log level from environment
	if ll := os.Getenv(EnvLogLevel); ll != "" {
		cfg.logLevel = ll
	}

	// Override data directory from environment
	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}

	cfg.libraryDir = os.Getenv(EnvLibraryDir)
	cfg.exportDir = os.Getenv(EnvExportDir)

	if h := os.Getenv(EnvHeadless); h != "" {
		headless, err := strconv.ParseBool(h)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvHeadless, err)
		}
		cfg.headless = headless
	}

	if fr := os.Getenv(EnvFrameRate); fr != "" {
		rate, err := strconv.Atoi(fr)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvFrameRate, err)
		}
		if rate < 1 || rate > 120 {
			return nil, fmt.Errorf("invalid %s: frame rate must be between 1 and 120", EnvFrameRate)
		}
		cfg.frameRate = rate
	}

	cfg.ffmpegPath = os.Getenv(EnvFFmpegPath)
	cfg.ffprobePath = os.Getenv(EnvFFprobePath)

	cfg.alignerURL = os.Getenv(EnvAlignerURL)
	cfg.alignerToken = os.Getenv(EnvAlignerToken)

	return cfg, nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// LibraryDir returns the watched audio library directory. Empty means
// the library watcher is disabled.
func (c *EnvConfig) LibraryDir() string {
	return c.libraryDir
}

// ExportDir returns the directory exported artifacts are written to
func (c *EnvConfig) ExportDir() string {
	if c.exportDir != "" {
		return c.exportDir
	}
	return filepath.Join(c.dataDir, "exports")
}

// Headless reports whether the tray UI should be skipped
func (c *EnvConfig) Headless() bool {
	return c.headless
}

// FFmpegPath returns an explicit ffmpeg binary path, or empty to use PATH
func (c *EnvConfig) FFmpegPath() string {
	return c.ffmpegPath
}

// FFprobePath returns an explicit ffprobe binary path, or empty to use PATH
func (c *EnvConfig) FFprobePath() string {
	return c.ffprobePath
}

// FrameRate returns the default export frame rate
func (c *EnvConfig) FrameRate() int {
	return c.frameRate
}

// Width returns the default export frame width
func (c *EnvConfig) Width() int {
	return DefaultWidth
}

// Height returns the default export frame height
func (c *EnvConfig) Height() int {
	return DefaultHeight
}

// AlignerURL returns the forced-alignment service base URL. Empty means
// the stub aligner is used.
func (c *EnvConfig) AlignerURL() string {
	return c.alignerURL
}

// AlignerToken returns the bearer token for the alignment service
func (c *EnvConfig) AlignerToken() string {
	return c.alignerToken
}

func (c *EnvConfig) AlignerTimeout() time.Duration {
	return time.Duration(DefaultAlignerTimeout) * time.Second
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
