// Package config assembles runtime settings from built-in defaults, the
// optional YAML file and EDITION_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pevans/edition/crawl"
	"github.com/pevans/edition/datespec"
	"github.com/pevans/edition/edition"
	"github.com/pevans/edition/layout"
)

// ErrInvalidConfig is wrapped by every validation and parse failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Environment variables read by Load.
const (
	EnvConfig      = "EDITION_CONFIG"
	EnvArchiveURL  = "EDITION_ARCHIVE_URL"
	EnvOutputDir   = "EDITION_OUTPUT_DIR"
	EnvHistoryDSN  = "EDITION_HISTORY_DSN"
	EnvLogLevel    = "EDITION_LOG_LEVEL"
	EnvLogFormat   = "EDITION_LOG_FORMAT"
	EnvConcurrency = "EDITION_CONCURRENCY"
	EnvTimeout     = "EDITION_TIMEOUT"
)

const dateLayout = "2006-01-02"

// Config is the resolved runtime configuration.
type Config struct {
	Scheme      layout.Scheme
	Publication string
	MinimumDate time.Time

	OutputDir  string
	HistoryDSN string

	Concurrency int
	Timeout     time.Duration
	Retry       crawl.RetryPolicy
	UserAgent   string

	LogLevel  string
	LogFormat string

	// Path of the config file that was applied, empty if none.
	Source string
}

// Default returns the built-in configuration. The history database lives
// next to the config file in ~/.edition.
func Default() *Config {
	historyDSN := "edition.db"
	if dir, err := DefaultDir(); err == nil {
		historyDSN = filepath.Join(dir, "history.db")
	}

	return &Config{
		Scheme:      layout.DefaultScheme(),
		Publication: edition.DefaultPublication,
		MinimumDate: datespec.DefaultMinimumDate,
		OutputDir:   ".",
		HistoryDSN:  historyDSN,
		Concurrency: crawl.DefaultConcurrency,
		Timeout:     crawl.DefaultTimeout,
		Retry:       crawl.DefaultRetryPolicy(),
		UserAgent:   crawl.DefaultUserAgent,
		LogLevel:    "info",
		LogFormat:   "text",
	}
}

// Load builds the configuration. The file named by EDITION_CONFIG is used
// when set, ~/.edition/config.yaml otherwise; a missing file is not an error.
func Load() (*Config, error) {
	cfg := Default()

	var (
		file *FileConfig
		err  error
		path = os.Getenv(EnvConfig)
	)
	if path != "" {
		file, err = LoadConfigFileFrom(path)
	} else {
		file, err = LoadConfigFile()
		if dir, dirErr := DefaultDir(); dirErr == nil {
			path = filepath.Join(dir, "config.yaml")
		}
	}
	if err != nil {
		return nil, err
	}
	if file != nil {
		if err := cfg.applyFile(file); err != nil {
			return nil, err
		}
		cfg.Source = path
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyFile(f *FileConfig) error {
	if f.Archive.URL != "" {
		c.Scheme.ArchiveURL = f.Archive.URL
	}
	if f.Archive.Publication != "" {
		c.Publication = f.Archive.Publication
	}
	if f.Archive.Cutover != "" {
		t, err := parseDate("archive.cutover", f.Archive.Cutover)
		if err != nil {
			return err
		}
		c.Scheme.Cutover = t
	}
	if f.Archive.MinimumDate != "" {
		t, err := parseDate("archive.minimum_date", f.Archive.MinimumDate)
		if err != nil {
			return err
		}
		c.MinimumDate = t
	}

	if f.Output.Dir != "" {
		c.OutputDir = f.Output.Dir
	}
	if f.History.DSN != "" {
		c.HistoryDSN = f.History.DSN
	}

	if f.Crawl.Concurrency != 0 {
		c.Concurrency = f.Crawl.Concurrency
	}
	if f.Crawl.Timeout != "" {
		d, err := parseDuration("crawl.timeout", f.Crawl.Timeout)
		if err != nil {
			return err
		}
		c.Timeout = d
	}
	if f.Crawl.RetryAttempts != 0 {
		c.Retry.MaxAttempts = f.Crawl.RetryAttempts
	}
	if f.Crawl.RetryDelay != "" {
		d, err := parseDuration("crawl.retry_delay", f.Crawl.RetryDelay)
		if err != nil {
			return err
		}
		c.Retry.InitialDelay = d
	}
	if f.Crawl.UserAgent != "" {
		c.UserAgent = f.Crawl.UserAgent
	}

	c.Scheme.Legacy.Selectors = c.Scheme.Legacy.Selectors.Merge(f.Selectors.Legacy)
	c.Scheme.Modern.Selectors = c.Scheme.Modern.Selectors.Merge(f.Selectors.Modern)

	if f.Log.Level != "" {
		c.LogLevel = f.Log.Level
	}
	if f.Log.Format != "" {
		c.LogFormat = f.Log.Format
	}

	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvArchiveURL); v != "" {
		c.Scheme.ArchiveURL = v
	}
	if v := os.Getenv(EnvOutputDir); v != "" {
		c.OutputDir = v
	}
	if v := os.Getenv(EnvHistoryDSN); v != "" {
		c.HistoryDSN = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		c.LogFormat = v
	}
	if v := os.Getenv(EnvConcurrency); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a number", ErrInvalidConfig, EnvConcurrency, v)
		}
		c.Concurrency = n
	}
	if v := os.Getenv(EnvTimeout); v != "" {
		d, err := parseDuration(EnvTimeout, v)
		if err != nil {
			return err
		}
		c.Timeout = d
	}
	return nil
}

// Validate rejects settings the crawler cannot work with.
func (c *Config) Validate() error {
	var problems []string

	if !strings.HasPrefix(c.Scheme.ArchiveURL, "http://") && !strings.HasPrefix(c.Scheme.ArchiveURL, "https://") {
		problems = append(problems, fmt.Sprintf("archive url %q must be http or https", c.Scheme.ArchiveURL))
	}
	if c.Publication == "" {
		problems = append(problems, "publication must not be empty")
	}
	if c.Concurrency < 1 {
		problems = append(problems, fmt.Sprintf("concurrency must be at least 1, got %d", c.Concurrency))
	}
	if c.Timeout <= 0 {
		problems = append(problems, fmt.Sprintf("timeout must be positive, got %s", c.Timeout))
	}
	if c.Retry.MaxAttempts < 1 {
		problems = append(problems, fmt.Sprintf("retry attempts must be at least 1, got %d", c.Retry.MaxAttempts))
	}
	if c.Retry.InitialDelay < 0 {
		problems = append(problems, "retry delay must not be negative")
	}
	if !c.Scheme.Cutover.After(c.MinimumDate) {
		problems = append(problems, "layout cutover must be after the minimum date")
	}
	if c.OutputDir == "" {
		problems = append(problems, "output dir must not be empty")
	}
	if c.HistoryDSN == "" {
		problems = append(problems, "history dsn must not be empty")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		problems = append(problems, fmt.Sprintf("log level %q is not recognized", c.LogLevel))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		problems = append(problems, fmt.Sprintf("log format %q must be text or json", c.LogFormat))
	}
	if !complete(c.Scheme.Legacy.Selectors) {
		problems = append(problems, "legacy selectors must all be set")
	}
	if !complete(c.Scheme.Modern.Selectors) {
		problems = append(problems, "modern selectors must all be set")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

func complete(s layout.Selectors) bool {
	return s.Sections != "" && s.Articles != "" && s.Paragraphs != ""
}

func parseDate(field, value string) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, value, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s %q is not a YYYY-MM-DD date", ErrInvalidConfig, field, value)
	}
	return t, nil
}

func parseDuration(field, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q is not a duration", ErrInvalidConfig, field, value)
	}
	return d, nil
}
