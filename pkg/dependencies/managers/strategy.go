// Package managers implements one strategy per JavaScript package manager.
// Every strategy shells out to the manager's own CLI, normalizes its output
// into types.Dependency records and resolves publish dates through a
// ReleaseCache it owns.
package managers

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/fulmenhq/pkgscout/pkg/dependencies/types"
	"github.com/fulmenhq/pkgscout/pkg/logger"
	"github.com/fulmenhq/pkgscout/pkg/registry"
	"github.com/fulmenhq/pkgscout/pkg/runner"
)

// Strategy is the contract shared by the npm, pnpm and yarn strategies.
type Strategy interface {
	// FindWorkspaces lists the workspaces declared under dir, excluding the
	// root workspace itself.
	FindWorkspaces(ctx context.Context, dir string) ([]types.Project, error)
	// ListOutdated reports the direct dependencies of project that have a
	// newer release.
	ListOutdated(ctx context.Context, project types.Project) ([]types.Dependency, error)
}

var (
	// ErrNotInstalled means the manager could not tell the installed version
	// of a dependency, usually because install was never run.
	ErrNotInstalled = errors.New("could not find current version, are dependencies installed?")

	// ErrYarnTooOld is returned when the outdated plugin is needed but the
	// installed yarn cannot load it.
	ErrYarnTooOld = errors.New("yarn version must be at least 3 to install the outdated plugin")
)

// Options configures a strategy.
type Options struct {
	Runner runner.Runner
	// Fetcher overrides the strategy's CLI metadata lookup when set
	Fetcher InfoFetcher
}

func (o Options) fetcherOr(fallback InfoFetcher) InfoFetcher {
	if o.Fetcher != nil {
		return o.Fetcher
	}
	return fallback
}

// resolveInfo returns cached release metadata for name, loading it through
// fetcher on first use. Failures are logged and reported as nil.
func resolveInfo(ctx context.Context, cache *ReleaseCache, fetcher InfoFetcher, name, dir string) *registry.PackageInfo {
	info, err := cache.Get(ctx, name, func(ctx context.Context) (*registry.PackageInfo, error) {
		return fetcher.Fetch(ctx, name, dir)
	})
	if err != nil {
		logger.Warn("Could not find release dates",
			logger.String("package", name),
			logger.Err(err))
		return nil
	}
	return info
}

func release(info *registry.PackageInfo, version string, deprecated bool) types.Release {
	return types.Release{
		Version:    version,
		Deprecated: deprecated,
		Date:       info.PublishDate(version),
	}
}

// resolvePath makes a workspace location absolute relative to dir.
func resolvePath(dir, location string) string {
	if filepath.IsAbs(location) {
		return filepath.Clean(location)
	}
	return filepath.Join(dir, filepath.FromSlash(location))
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}
