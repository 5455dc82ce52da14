package config

import (
	"path/filepath"
	"slices"
	"time"

	"github.com/adrg/xdg"
	"github.com/nao1215/devprint/internal/digest"
)

// Probe sources selectable with --source.
const (
	SourceHost    = "host"
	SourceBrowser = "browser"
	SourceCapture = "capture"
)

// Default configuration values.
const (
	// DefaultProbeTimeout bounds each probe unless overridden per probe.
	// Browser probes start a tab and load a page, which rarely takes more
	// than a second on a local machine.
	DefaultProbeTimeout = 5 * time.Second

	// DefaultConcurrency of 0 starts every probe at once.
	DefaultConcurrency = 0

	// DefaultBatchSize is the number of capture files fingerprinted at once.
	DefaultBatchSize = 4

	// DefaultRedisTTL is how long a record stays under its run key in Redis.
	DefaultRedisTTL = 30 * 24 * time.Hour

	// AppName is the application name used for XDG directory paths.
	AppName = "devprint"
)

// Config holds all configuration options for devprint.
// It is populated from CLI flags, the .devprint file and the environment,
// and passed down explicitly.
type Config struct {
	// Sources selects the probe families to run: host, browser and capture.
	Sources []string

	// CaptureFiles are YAML or JSON captures replayed by the capture source.
	// Several files are fingerprinted as a batch.
	CaptureFiles []string

	// Algorithm names the digest used for every hash in the record.
	Algorithm string

	// ProbeTimeout is the default per-probe timeout.
	ProbeTimeout time.Duration

	// Concurrency caps how many probes run at once. Zero means no cap.
	Concurrency int

	// BatchSize is the number of capture files processed concurrently.
	BatchSize int

	// Verbose enables detailed log output using slog.LevelDebug.
	Verbose bool

	// ConfigFilePath is the path to the configuration file.
	// If empty, .devprint is searched in the current and home directories.
	ConfigFilePath string

	// Probes holds per-probe settings loaded from the config file.
	Probes *File

	// JSONReport selects JSON report output. Mutually exclusive with MarkdownReport.
	JSONReport bool

	// MarkdownReport selects Markdown report output.
	MarkdownReport bool

	// ReportFile is the output file path for the report. Empty means stdout.
	ReportFile string

	// SaveToDB stores records in the record store.
	SaveToDB bool

	// DBDir is the directory of the SQLite database.
	// Defaults to the XDG data directory (~/.local/share/devprint on Linux).
	DBDir string

	// DBDSN selects PostgreSQL instead of SQLite when set.
	DBDSN string

	// RedisAddr enables the Redis sink when set ("host:port").
	RedisAddr string

	// RedisTTL is the expiry of per-run record keys in Redis.
	RedisTTL time.Duration

	// MetricsFile enables writing Prometheus metrics in text format to this path.
	MetricsFile string

	// ChromePath is the browser binary for the browser source. Empty means
	// chromedp's default search.
	ChromePath string
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		Sources:      []string{SourceHost},
		Algorithm:    digest.Default,
		ProbeTimeout: DefaultProbeTimeout,
		Concurrency:  DefaultConcurrency,
		BatchSize:    DefaultBatchSize,
		DBDir:        XDGDataDir(),
		RedisTTL:     DefaultRedisTTL,
	}
}

// XDGDataDir returns the XDG data directory for devprint.
// On Linux: ~/.local/share/devprint
// On macOS: ~/Library/Application Support/devprint
// On Windows: %LOCALAPPDATA%\devprint
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for devprint.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGCacheDir returns the XDG cache directory for devprint.
func XDGCacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// HasSource reports whether source is selected.
func (c *Config) HasSource(source string) bool {
	return slices.Contains(c.Sources, source)
}

// Validate checks if the configuration is valid and returns the first
// problem found.
func (c *Config) Validate() error {
	if len(c.Sources) == 0 {
		return ErrNoSource
	}
	for _, s := range c.Sources {
		switch s {
		case SourceHost, SourceBrowser, SourceCapture:
		default:
			return ErrUnknownSource
		}
	}

	if c.HasSource(SourceCapture) && len(c.CaptureFiles) == 0 {
		return ErrNoCaptureFile
	}
	if !c.HasSource(SourceCapture) && len(c.CaptureFiles) > 0 {
		return ErrCaptureWithoutSource
	}

	if _, err := digest.ByName(c.Algorithm); err != nil {
		return ErrUnknownAlgorithm
	}

	if c.ProbeTimeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.Concurrency < 0 {
		return ErrInvalidConcurrency
	}

	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}

	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}

	if c.RedisTTL < 0 {
		return ErrInvalidRedisTTL
	}

	return nil
}
