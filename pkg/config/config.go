package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config holds all configuration for pkgscout
type Config struct {
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Metadata  MetadataConfig  `mapstructure:"metadata"`
	Registry  RegistryConfig  `mapstructure:"registry"`
	Cooling   CoolingConfig   `mapstructure:"cooling"`
	Policy    PolicyConfig    `mapstructure:"policy"`
}

// DiscoveryConfig controls the project walk
type DiscoveryConfig struct {
	AllowNoLockfile bool     `mapstructure:"allow_no_lockfile"`
	Ignore          string   `mapstructure:"ignore"` // "git", "builtin", "none"
	Exclude         []string `mapstructure:"exclude"`
}

// MetadataConfig selects where release dates and deprecation flags come from
type MetadataConfig struct {
	Source string `mapstructure:"source"` // "cli", "registry"
}

// RegistryConfig configures the HTTP registry client used when
// metadata.source is "registry"
type RegistryConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// CoolingConfig flags upgrades to releases that have not been public long enough.
type CoolingConfig struct {
	Enabled    bool               `mapstructure:"enabled" json:"enabled"`
	MinAgeDays int                `mapstructure:"min_age_days" json:"min_age_days"`
	Exceptions []CoolingException `mapstructure:"exceptions" json:"exceptions,omitempty"`
}

// CoolingException exempts packages matching Pattern, optionally until a date (YYYY-MM-DD).
type CoolingException struct {
	Pattern string `mapstructure:"pattern" json:"pattern"`
	Reason  string `mapstructure:"reason" json:"reason,omitempty"`
	Until   string `mapstructure:"until" json:"until,omitempty"`
}

// PolicyConfig points at an outdated-dependency policy file
type PolicyConfig struct {
	Path string `mapstructure:"path"`
}

// Metadata sources.
const (
	MetadataSourceCLI      = "cli"
	MetadataSourceRegistry = "registry"
)

// EnvPrefix prefixes every environment override, e.g. PKGSCOUT_COOLING_MIN_AGE_DAYS.
const EnvPrefix = "PKGSCOUT"

// ProjectConfigFiles are searched in order in the project directory.
var ProjectConfigFiles = []string{
	".pkgscout.yaml",
	".pkgscout.yml",
	".pkgscout.json",
}

var defaultConfig = Config{
	Discovery: DiscoveryConfig{
		AllowNoLockfile: false,
		Ignore:          "git",
		Exclude:         []string{},
	},
	Metadata: MetadataConfig{
		Source: MetadataSourceCLI,
	},
	Registry: RegistryConfig{
		URL:     "https://registry.npmjs.org",
		Timeout: parseDurationDefault("30s"),
	},
	Cooling: CoolingConfig{
		Enabled:    false,
		MinAgeDays: 7,
	},
}

// Defaults returns a copy of the built-in configuration.
func Defaults() *Config {
	c := defaultConfig
	c.Discovery.Exclude = append([]string{}, defaultConfig.Discovery.Exclude...)
	return &c
}

// LoadConfig loads defaults, the user config file and environment overrides.
func LoadConfig() (*Config, error) {
	return load(context.Background(), "")
}

// LoadProjectConfig is LoadConfig plus the first project config file found in
// dir. Project files are validated against the embedded schema before merge.
func LoadProjectConfig(dir string) (*Config, error) {
	if dir == "" {
		dir = "."
	}
	return load(context.Background(), dir)
}

func load(ctx context.Context, projectDir string) (*Config, error) {
	h := NewHierarchicalConfig()
	h.AddSource(NewDefaultsSource(PriorityDefault))

	if home, err := GetHome(); err == nil {
		userConfig := filepath.Join(home, "config.yaml")
		if _, err := os.Stat(userConfig); err == nil {
			h.AddSource(NewFileConfigSource(userConfig, PriorityUser))
		}
	}

	if projectDir != "" {
		if path := FindProjectConfig(projectDir); path != "" {
			h.AddSource(NewValidatedFileConfigSource(path, PriorityProject))
		}
	}

	h.AddSource(NewEnvConfigSource(EnvPrefix, PriorityEnv))

	return h.Load(ctx)
}

// FindProjectConfig returns the first project config file in dir, or "".
func FindProjectConfig(dir string) string {
	for _, name := range ProjectConfigFiles {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			return path
		}
	}
	return ""
}

// parseDurationDefault is a helper to create default duration values from string literal
func parseDurationDefault(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}

// GetHome returns the pkgscout home directory
func GetHome() (string, error) {
	if home := os.Getenv("PKGSCOUT_HOME"); home != "" {
		return home, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %v", err)
	}

	return filepath.Join(homeDir, ".pkgscout"), nil
}
