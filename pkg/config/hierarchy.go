package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/viper"

	"github.com/fulmenhq/pkgscout/pkg/logger"
	"github.com/fulmenhq/pkgscout/pkg/safeio"
)

// Priority levels (higher number = higher priority)
const (
	PriorityDefault = 0
	PriorityUser    = 10
	PriorityProject = 20
	PriorityEnv     = 30
)

// Keys lists every scalar configuration key. Environment overrides are only
// looked up for these.
var Keys = []string{
	"discovery.allow_no_lockfile",
	"discovery.ignore",
	"discovery.exclude",
	"metadata.source",
	"registry.url",
	"registry.timeout",
	"cooling.enabled",
	"cooling.min_age_days",
	"policy.path",
}

// ConfigSource represents a source of configuration
type ConfigSource interface {
	// Load configuration from this source
	Load(ctx context.Context) (*viper.Viper, error)
	// Get the priority of this source (higher number = higher priority)
	Priority() int
	// Get a human-readable name for this source
	Name() string
}

// HierarchicalConfig manages configuration from multiple sources with precedence
type HierarchicalConfig struct {
	sources []ConfigSource
	merger  ConfigMerger
}

// ConfigMerger defines how configurations are merged
type ConfigMerger interface {
	Merge(base, overlay *viper.Viper) (*viper.Viper, error)
}

// NewHierarchicalConfig creates a new hierarchical configuration manager
func NewHierarchicalConfig() *HierarchicalConfig {
	return &HierarchicalConfig{
		sources: make([]ConfigSource, 0),
		merger:  &DefaultConfigMerger{},
	}
}

// AddSource adds a configuration source
func (h *HierarchicalConfig) AddSource(source ConfigSource) {
	h.sources = append(h.sources, source)
}

// Load merges all sources in ascending priority. A source that fails to load
// is skipped with a warning, except for schema violations which abort.
func (h *HierarchicalConfig) Load(ctx context.Context) (*Config, error) {
	sorted := make([]ConfigSource, len(h.sources))
	copy(sorted, h.sources)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority() < sorted[j].Priority()
	})

	var merged *viper.Viper
	for _, source := range sorted {
		sourceConfig, err := source.Load(ctx)
		if err != nil {
			if errors.Is(err, ErrInvalidConfig) {
				return nil, fmt.Errorf("%s: %w", source.Name(), err)
			}
			logger.Warn("Skipping config source", logger.String("source", source.Name()), logger.Err(err))
			continue
		}
		logger.Trace("Loaded config source", logger.String("source", source.Name()))

		if merged == nil {
			merged = sourceConfig
			continue
		}
		merged, err = h.merger.Merge(merged, sourceConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to merge config from %s: %w", source.Name(), err)
		}
	}

	if merged == nil {
		return Defaults(), nil
	}

	var config Config
	if err := merged.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal merged config: %w", err)
	}
	return &config, nil
}

// DefaultConfigMerger overlays every key set in overlay onto base.
type DefaultConfigMerger struct{}

func (m *DefaultConfigMerger) Merge(base, overlay *viper.Viper) (*viper.Viper, error) {
	merged := viper.New()
	for _, key := range base.AllKeys() {
		merged.Set(key, base.Get(key))
	}
	for _, key := range overlay.AllKeys() {
		merged.Set(key, overlay.Get(key))
	}
	return merged, nil
}

// DefaultsSource provides the built-in configuration.
type DefaultsSource struct {
	priority int
}

func NewDefaultsSource(priority int) *DefaultsSource {
	return &DefaultsSource{priority: priority}
}

func (s *DefaultsSource) Load(ctx context.Context) (*viper.Viper, error) {
	d := defaultConfig
	v := viper.New()
	v.Set("discovery.allow_no_lockfile", d.Discovery.AllowNoLockfile)
	v.Set("discovery.ignore", d.Discovery.Ignore)
	v.Set("discovery.exclude", d.Discovery.Exclude)
	v.Set("metadata.source", d.Metadata.Source)
	v.Set("registry.url", d.Registry.URL)
	v.Set("registry.timeout", d.Registry.Timeout)
	v.Set("cooling.enabled", d.Cooling.Enabled)
	v.Set("cooling.min_age_days", d.Cooling.MinAgeDays)
	v.Set("policy.path", d.Policy.Path)
	return v, nil
}

func (s *DefaultsSource) Priority() int { return s.priority }

func (s *DefaultsSource) Name() string { return "defaults" }

// FileConfigSource loads configuration from a local file
type FileConfigSource struct {
	path     string
	priority int
	validate bool
}

func NewFileConfigSource(path string, priority int) *FileConfigSource {
	return &FileConfigSource{path: path, priority: priority}
}

// NewValidatedFileConfigSource checks the file against the embedded schema
// before reading it.
func NewValidatedFileConfigSource(path string, priority int) *FileConfigSource {
	return &FileConfigSource{path: path, priority: priority, validate: true}
}

func (s *FileConfigSource) Load(ctx context.Context) (*viper.Viper, error) {
	if s.validate {
		data, err := safeio.ReadFileContained(filepath.Dir(s.path), s.path)
		if err != nil {
			return nil, err
		}
		if err := ValidateConfig(data); err != nil {
			return nil, err
		}
	}

	v := viper.New()
	v.SetConfigFile(s.path)
	v.SetConfigType(detectConfigType(s.path))
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	return v, nil
}

func (s *FileConfigSource) Priority() int {
	return s.priority
}

func (s *FileConfigSource) Name() string {
	return fmt.Sprintf("file:%s", s.path)
}

// EnvConfigSource loads configuration from environment variables
type EnvConfigSource struct {
	prefix   string
	priority int
}

func NewEnvConfigSource(prefix string, priority int) *EnvConfigSource {
	return &EnvConfigSource{
		prefix:   prefix,
		priority: priority,
	}
}

// Load sets only the keys whose variable is present, so unset variables
// never mask lower-priority sources.
func (s *EnvConfigSource) Load(ctx context.Context) (*viper.Viper, error) {
	v := viper.New()
	for _, key := range Keys {
		if value, ok := os.LookupEnv(s.EnvVar(key)); ok {
			v.Set(key, value)
		}
	}
	return v, nil
}

// EnvVar returns the variable consulted for key.
func (s *EnvConfigSource) EnvVar(key string) string {
	return s.prefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func (s *EnvConfigSource) Priority() int {
	return s.priority
}

func (s *EnvConfigSource) Name() string {
	return fmt.Sprintf("env:%s", s.prefix)
}

// detectConfigType detects config type from the file extension
func detectConfigType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json"
	default:
		return "yaml"
	}
}
