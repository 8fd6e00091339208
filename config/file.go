package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/pevans/edition/layout"
)

// ArchiveConfig describes where editions are published.
type ArchiveConfig struct {
	URL         string `yaml:"url"`
	Publication string `yaml:"publication"`
	Cutover     string `yaml:"cutover"`
	MinimumDate string `yaml:"minimum_date"`
}

// CrawlConfig tunes page fetching.
type CrawlConfig struct {
	Concurrency   int    `yaml:"concurrency"`
	Timeout       string `yaml:"timeout"`
	RetryAttempts int    `yaml:"retry_attempts"`
	RetryDelay    string `yaml:"retry_delay"`
	UserAgent     string `yaml:"user_agent"`
}

// SelectorConfig overrides the built-in selectors per layout generation.
// Empty fields keep the defaults.
type SelectorConfig struct {
	Legacy layout.Selectors `yaml:"legacy"`
	Modern layout.Selectors `yaml:"modern"`
}

// FileConfig represents the structure of ~/.edition/config.yaml.
type FileConfig struct {
	Archive ArchiveConfig `yaml:"archive"`
	Output  struct {
		Dir string `yaml:"dir"`
	} `yaml:"output"`
	History struct {
		DSN string `yaml:"dsn"`
	} `yaml:"history"`
	Crawl     CrawlConfig    `yaml:"crawl"`
	Selectors SelectorConfig `yaml:"selectors"`
	Log       struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// DefaultDir returns ~/.edition.
func DefaultDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".edition"), nil
}

// LoadConfigFile loads configuration from ~/.edition/config.yaml. Returns nil
// if the file doesn't exist (not an error). Returns error if the file exists
// but cannot be parsed.
func LoadConfigFile() (*FileConfig, error) {
	dir, err := DefaultDir()
	if err != nil {
		return nil, err
	}
	return LoadConfigFileFrom(filepath.Join(dir, "config.yaml"))
}

// LoadConfigFileFrom loads configuration from path with the same rules as
// LoadConfigFile.
func LoadConfigFileFrom(configPath string) (*FileConfig, error) {
	// Check if file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, nil // File doesn't exist -- not an error
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &cfg, nil
}
