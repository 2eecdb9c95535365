/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/fulmenhq/pkgscout/pkg/config"
	"github.com/fulmenhq/pkgscout/pkg/dependencies"
	"github.com/fulmenhq/pkgscout/pkg/dependencies/managers"
	"github.com/fulmenhq/pkgscout/pkg/exitcode"
	"github.com/fulmenhq/pkgscout/pkg/ignore"
	"github.com/fulmenhq/pkgscout/pkg/logger"
	"github.com/fulmenhq/pkgscout/pkg/registry"
)

// addDiscoveryFlags registers the flags shared by projects and outdated.
func addDiscoveryFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("allow-no-lockfile", false, "Treat a package.json without a lockfile as an npm project")
	cmd.Flags().String("ignore", "", "Ignore strategy for discovery (git|builtin|none)")
	cmd.Flags().StringSlice("exclude", nil, "Glob patterns (relative to dir) to skip during discovery")
}

// resolveTarget returns the absolute discovery directory from the optional
// positional argument.
func resolveTarget(args []string) (string, error) {
	target := "."
	if len(args) > 0 && args[0] != "" {
		target = args[0]
	}
	abs, err := filepath.Abs(target)
	if err != nil {
		return "", exitWith(exitcode.FileSystemError, fmt.Errorf("failed to resolve %s: %w", target, err))
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", exitWith(exitcode.FileSystemError, err)
	}
	if !info.IsDir() {
		return "", exitWith(exitcode.FileSystemError, fmt.Errorf("%s is not a directory", abs))
	}
	return abs, nil
}

// loadConfig merges the config hierarchy for dir and applies flag overrides.
func loadConfig(cmd *cobra.Command, dir string) (*config.Config, error) {
	cfg, err := config.LoadProjectConfig(dir)
	if err != nil {
		return nil, exitWith(exitcode.ConfigError, err)
	}

	flags := cmd.Flags()
	if flags.Changed("allow-no-lockfile") {
		cfg.Discovery.AllowNoLockfile, _ = flags.GetBool("allow-no-lockfile")
	}
	if flags.Changed("ignore") {
		cfg.Discovery.Ignore, _ = flags.GetString("ignore")
	}
	if flags.Changed("exclude") {
		exclude, _ := flags.GetStringSlice("exclude")
		cfg.Discovery.Exclude = append(cfg.Discovery.Exclude, exclude...)
	}
	if v, ok := changedString(flags, "metadata-source"); ok {
		cfg.Metadata.Source = v
	}
	if v, ok := changedString(flags, "policy"); ok {
		cfg.Policy.Path = v
	}

	switch cfg.Metadata.Source {
	case config.MetadataSourceCLI, config.MetadataSourceRegistry:
	default:
		return nil, exitWith(exitcode.ConfigError,
			fmt.Errorf("unknown metadata source %q (expected cli or registry)", cfg.Metadata.Source))
	}
	return cfg, nil
}

// changedString returns the value of a string flag the user set explicitly.
// Commands that do not define the flag report false.
func changedString(flags *pflag.FlagSet, name string) (string, bool) {
	f := flags.Lookup(name)
	if f == nil || !f.Changed {
		return "", false
	}
	return f.Value.String(), true
}

// newEcosystem wires the runner, ignore checker and metadata fetcher chosen
// by cfg.
func newEcosystem(cfg *config.Config, dir string) (*dependencies.Ecosystem, error) {
	r := newRunner()

	checker, err := ignore.New(cfg.Discovery.Ignore, r, dir)
	if err != nil {
		return nil, exitWith(exitcode.ConfigError, err)
	}

	opts := dependencies.Options{
		Runner:  r,
		Ignore:  checker,
		Exclude: cfg.Discovery.Exclude,
	}
	if cfg.Metadata.Source == config.MetadataSourceRegistry {
		logger.Debug("Using registry metadata", logger.String("url", cfg.Registry.URL))
		opts.Fetcher = managers.NewRegistryFetcher(newNPMClient(cfg.Registry))
	}

	eco, err := dependencies.New(opts)
	if err != nil {
		return nil, exitWith(exitcode.ConfigError, err)
	}
	return eco, nil
}

// newNPMClient builds the registry client. Tests replace it with one backed
// by a mock transport.
var newNPMClient = func(cfg config.RegistryConfig) *registry.NPMClient {
	return registry.NewNPMClient(cfg.URL, cfg.Timeout)
}
