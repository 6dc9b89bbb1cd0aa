package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix namespaces the environment overrides.
const EnvPrefix = "FMH_"

// Config holds scraper and report configuration.
type Config struct {
	BaseURL string `yaml:"base_url"`
	// Walking stops after the first page (or entry) whose index exceeds the bound.
	MaxPageIndex  int           `yaml:"max_page_index"`
	MaxEntryIndex int           `yaml:"max_entry_index"`
	Delay         time.Duration `yaml:"delay"`
	Timeout       time.Duration `yaml:"timeout"`
	UserAgent     string        `yaml:"user_agent"`
	OutputFile    string        `yaml:"output"`
	Format        string        `yaml:"format"` // tsv or xlsx
	DetailsFile   string        `yaml:"dump_details"`
	MetricsAddr   string        `yaml:"metrics_addr"`
	Verbose       bool          `yaml:"verbose"`
}

// DefaultConfig returns the settings used against the production portal.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:       "https://fortunemusic.jp",
		MaxPageIndex:  1024,
		MaxEntryIndex: 1024,
		Delay:         0,
		Timeout:       30 * time.Second,
		UserAgent:     "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		OutputFile:    "-",
		Format:        "tsv",
	}
}

// Load reads a YAML file on top of the defaults. A missing file is an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from FMH_* environment variables.
func (c *Config) ApplyEnv() error {
	if v, ok := EnvString("BASE_URL"); ok {
		c.BaseURL = v
	}
	if v, ok, err := EnvInt("MAX_PAGE_INDEX"); err != nil {
		return err
	} else if ok {
		c.MaxPageIndex = v
	}
	if v, ok, err := EnvInt("MAX_ENTRY_INDEX"); err != nil {
		return err
	} else if ok {
		c.MaxEntryIndex = v
	}
	if v, ok, err := EnvDuration("DELAY"); err != nil {
		return err
	} else if ok {
		c.Delay = v
	}
	if v, ok, err := EnvDuration("TIMEOUT"); err != nil {
		return err
	} else if ok {
		c.Timeout = v
	}
	if v, ok := EnvString("USER_AGENT"); ok {
		c.UserAgent = v
	}
	if v, ok := EnvString("METRICS_ADDR"); ok {
		c.MetricsAddr = v
	}
	return nil
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if c.MaxPageIndex <= 0 {
		return fmt.Errorf("max page index must be positive")
	}
	if c.MaxEntryIndex <= 0 {
		return fmt.Errorf("max entry index must be positive")
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	if c.Format != "tsv" && c.Format != "xlsx" {
		return fmt.Errorf("output format must be tsv or xlsx")
	}
	if c.Format == "xlsx" && c.OutputFile == "-" {
		return fmt.Errorf("xlsx output needs an output file")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}

// EnvString returns the trimmed value of FMH_<name> when it is set and non-empty.
func EnvString(name string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + name)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// EnvInt parses FMH_<name> as an integer.
func EnvInt(name string) (int, bool, error) {
	v, ok := EnvString(name)
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false, fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err)
	}
	return n, true, nil
}

// EnvDuration parses FMH_<name> as a time.Duration ("500ms", "30s").
func EnvDuration(name string) (time.Duration, bool, error) {
	v, ok := EnvString(name)
	if !ok {
		return 0, false, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, false, fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err)
	}
	return d, true, nil
}

