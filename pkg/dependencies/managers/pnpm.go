package managers

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/fulmenhq/pkgscout/pkg/dependencies/types"
	"github.com/fulmenhq/pkgscout/pkg/jsonutil"
	"github.com/fulmenhq/pkgscout/pkg/logger"
	"github.com/fulmenhq/pkgscout/pkg/manifest"
	"github.com/fulmenhq/pkgscout/pkg/runner"
)

// PnpmStrategy drives the pnpm CLI.
type PnpmStrategy struct {
	runner  runner.Runner
	fetcher InfoFetcher
	cache   *ReleaseCache
}

// NewPnpmStrategy creates the pnpm strategy.
func NewPnpmStrategy(opts Options) *PnpmStrategy {
	return &PnpmStrategy{
		runner:  opts.Runner,
		fetcher: opts.fetcherOr(NewPnpmInfoFetcher(opts.Runner)),
		cache:   NewReleaseCache(),
	}
}

// Cache exposes the strategy's release cache.
func (s *PnpmStrategy) Cache() *ReleaseCache { return s.cache }

// blankLine separates the JSON blocks pnpm prints for nested monorepo roots.
var blankLine = regexp.MustCompile(`\r?\n[ \t]*\r?\n`)

type pnpmWorkspace struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Path        string `json:"path"`
}

// FindWorkspaces runs `pnpm m ls --json`. When several monorepo roots are
// nested, pnpm prints one block per root; the first is the closest to dir.
func (s *PnpmStrategy) FindWorkspaces(ctx context.Context, dir string) ([]types.Project, error) {
	cmd := runner.Command{Name: "pnpm", Args: []string{"m", "ls", "--json"}, Dir: dir}
	res, err := s.runner.Run(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if !res.Success() {
		return nil, runner.NewExecError(cmd, res)
	}

	block := blankLine.Split(res.Stdout, 2)[0]
	entries, ok := jsonutil.Decode[[]pnpmWorkspace](block)
	if !ok {
		logger.Warn("Unexpected pnpm workspace listing", logger.String("dir", dir))
		return []types.Project{}, nil
	}

	projects := make([]types.Project, 0, len(entries))
	for _, ws := range entries {
		if ws.Path == "" || samePath(ws.Path, dir) {
			continue
		}
		path := resolvePath(dir, ws.Path)
		name := ws.Name
		if name == "" {
			name = filepath.Base(path)
		}
		projects = append(projects, types.Project{
			Name:           name,
			Description:    ws.Description,
			Path:           path,
			Ecosystem:      types.Ecosystem,
			PackageManager: types.PackageManagerPnpm,
		})
	}
	manifest.FillDescriptions(projects)
	return projects, nil
}

type pnpmOutdatedEntry struct {
	Current        string `json:"current"`
	Wanted         string `json:"wanted"`
	Latest         string `json:"latest"`
	DependencyType string `json:"dependencyType"`
	IsDeprecated   bool   `json:"isDeprecated"`
}

// ListOutdated runs `pnpm outdated --json`. pnpm exits non-zero exactly when
// something is outdated.
func (s *PnpmStrategy) ListOutdated(ctx context.Context, project types.Project) ([]types.Dependency, error) {
	cmd := runner.Command{Name: "pnpm", Args: []string{"outdated", "--json"}, Dir: project.Path}
	res, err := s.runner.Run(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if res.Success() {
		return []types.Dependency{}, nil
	}

	outdated, ok := jsonutil.Decode[map[string]pnpmOutdatedEntry](res.Stdout)
	if !ok {
		return nil, runner.NewExecError(cmd, res)
	}

	names := make([]string, 0, len(outdated))
	for name := range outdated {
		names = append(names, name)
	}
	sort.Strings(names)

	deps := make([]types.Dependency, 0, len(names))
	for _, name := range names {
		e := outdated[name]
		if e.Current == "" && e.Wanted == "" {
			return nil, fmt.Errorf("%s: %w (run `pnpm install`)", name, ErrNotInstalled)
		}
		kind, err := manifest.KindFromSection(e.DependencyType)
		if err != nil {
			logger.Debug("Skipping dependency", logger.String("package", name), logger.Err(err))
			continue
		}

		info := resolveInfo(ctx, s.cache, s.fetcher, name, project.Path)
		if info == nil {
			continue
		}
		current := e.Current
		if current == "" {
			current = e.Wanted
		}
		deps = append(deps, types.Dependency{
			Name:      name,
			Ecosystem: types.Ecosystem,
			Kind:      kind,
			Current:   release(info, current, false),
			Latest:    release(info, e.Latest, e.IsDeprecated),
		})
	}
	s.cache.logStats("pnpm", project.Name)
	return deps, nil
}

var _ Strategy = (*PnpmStrategy)(nil)
