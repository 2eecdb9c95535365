package managers

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"

	"github.com/fulmenhq/pkgscout/pkg/dependencies/types"
	"github.com/fulmenhq/pkgscout/pkg/logger"
	"github.com/fulmenhq/pkgscout/pkg/runner"
)

// YarnStrategy dispatches to the classic (v1) or berry (v2+) variant based on
// the yarn version installed for each directory.
type YarnStrategy struct {
	runner  runner.Runner
	classic *yarnClassic
	berry   *yarnBerry

	mu       sync.Mutex
	versions map[string]*semver.Version
}

// NewYarnStrategy creates the yarn strategy.
func NewYarnStrategy(opts Options) *YarnStrategy {
	s := &YarnStrategy{
		runner:   opts.Runner,
		versions: make(map[string]*semver.Version),
	}
	s.classic = &yarnClassic{
		runner:  opts.Runner,
		fetcher: opts.fetcherOr(NewYarnClassicInfoFetcher(opts.Runner)),
		cache:   NewReleaseCache(),
	}
	s.berry = &yarnBerry{
		runner:  opts.Runner,
		fetcher: opts.fetcherOr(NewYarnBerryInfoFetcher(opts.Runner)),
		cache:   NewReleaseCache(),
		classic: s.classic,
		version: s.Version,
	}
	return s
}

// ClassicCache exposes the release cache of the yarn v1 variant.
func (s *YarnStrategy) ClassicCache() *ReleaseCache { return s.classic.cache }

// BerryCache exposes the release cache of the yarn v2+ variant.
func (s *YarnStrategy) BerryCache() *ReleaseCache { return s.berry.cache }

// Version returns the yarn version in effect for dir. The probe runs once per
// directory; failures are not cached.
func (s *YarnStrategy) Version(ctx context.Context, dir string) (*semver.Version, error) {
	s.mu.Lock()
	v, ok := s.versions[dir]
	s.mu.Unlock()
	if ok {
		return v, nil
	}

	cmd := runner.Command{Name: "yarn", Args: []string{"--version"}, Dir: dir}
	res, err := s.runner.Run(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if !res.Success() {
		return nil, runner.NewExecError(cmd, res)
	}
	v, err = parseYarnVersion(res.Stdout)
	if err != nil {
		return nil, err
	}
	logger.Debug("Detected yarn version", logger.String("dir", dir), logger.String("version", v.String()))

	s.mu.Lock()
	s.versions[dir] = v
	s.mu.Unlock()
	return v, nil
}

// parseYarnVersion reads the last non-blank line of `yarn --version`, which
// may be preceded by corepack notices.
func parseYarnVersion(out string) (*semver.Version, error) {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	raw := strings.TrimSpace(lines[len(lines)-1])
	v, err := semver.NewVersion(raw)
	if err != nil {
		return nil, fmt.Errorf("unrecognized yarn version %q: %w", raw, err)
	}
	return v, nil
}

func (s *YarnStrategy) variant(ctx context.Context, dir string) (Strategy, error) {
	v, err := s.Version(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to detect yarn version: %w", err)
	}
	if v.Major() == 1 {
		return s.classic, nil
	}
	return s.berry, nil
}

func (s *YarnStrategy) FindWorkspaces(ctx context.Context, dir string) ([]types.Project, error) {
	v, err := s.variant(ctx, dir)
	if err != nil {
		return nil, err
	}
	return v.FindWorkspaces(ctx, dir)
}

func (s *YarnStrategy) ListOutdated(ctx context.Context, project types.Project) ([]types.Dependency, error) {
	v, err := s.variant(ctx, project.Path)
	if err != nil {
		return nil, err
	}
	return v.ListOutdated(ctx, project)
}

var _ Strategy = (*YarnStrategy)(nil)
