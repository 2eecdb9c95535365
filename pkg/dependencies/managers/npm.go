package managers

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fulmenhq/pkgscout/pkg/dependencies/types"
	"github.com/fulmenhq/pkgscout/pkg/jsonutil"
	"github.com/fulmenhq/pkgscout/pkg/logger"
	"github.com/fulmenhq/pkgscout/pkg/manifest"
	"github.com/fulmenhq/pkgscout/pkg/runner"
)

// NpmStrategy drives the npm CLI.
type NpmStrategy struct {
	runner  runner.Runner
	fetcher InfoFetcher
	cache   *ReleaseCache
}

// NewNpmStrategy creates the npm strategy.
func NewNpmStrategy(opts Options) *NpmStrategy {
	return &NpmStrategy{
		runner:  opts.Runner,
		fetcher: opts.fetcherOr(NewNpmInfoFetcher(opts.Runner)),
		cache:   NewReleaseCache(),
	}
}

// Cache exposes the strategy's release cache.
func (s *NpmStrategy) Cache() *ReleaseCache { return s.cache }

type npmWorkspace struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Path        string `json:"path"`
}

// FindWorkspaces runs `npm query .workspace`.
func (s *NpmStrategy) FindWorkspaces(ctx context.Context, dir string) ([]types.Project, error) {
	cmd := runner.Command{Name: "npm", Args: []string{"query", ".workspace"}, Dir: dir}
	res, err := s.runner.Run(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if !res.Success() {
		return nil, runner.NewExecError(cmd, res)
	}

	entries, ok := jsonutil.Decode[[]npmWorkspace](res.Stdout)
	if !ok {
		logger.Warn("Unexpected npm query output", logger.String("dir", dir))
		return []types.Project{}, nil
	}

	projects := make([]types.Project, 0, len(entries))
	for _, ws := range entries {
		if ws.Path == "" {
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
			PackageManager: types.PackageManagerNpm,
		})
	}
	manifest.FillDescriptions(projects)
	return projects, nil
}

type npmOutdatedEntry struct {
	Current   string `json:"current"`
	Wanted    string `json:"wanted"`
	Latest    string `json:"latest"`
	Dependent string `json:"dependent"`
	Location  string `json:"location"`
}

// decodeNpmOutdated accepts both the single-object and the array form npm
// uses per package.
func decodeNpmOutdated(raw json.RawMessage) ([]npmOutdatedEntry, bool) {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		return jsonutil.Decode[[]npmOutdatedEntry](trimmed)
	}
	entry, ok := jsonutil.Decode[npmOutdatedEntry](trimmed)
	if !ok {
		return nil, false
	}
	return []npmOutdatedEntry{entry}, true
}

// ListOutdated runs `npm outdated --json` in the project directory.
func (s *NpmStrategy) ListOutdated(ctx context.Context, project types.Project) ([]types.Dependency, error) {
	m, err := manifest.Load(project.Path)
	if err != nil {
		return nil, err
	}
	kinds := m.Kinds()

	cmd := runner.Command{Name: "npm", Args: []string{"outdated", "--json"}, Dir: project.Path}
	res, err := s.runner.Run(ctx, cmd)
	if err != nil {
		return nil, err
	}

	// npm exits 1 when something is outdated, so only unparseable output
	// combined with a failure is an error
	outdated, ok := jsonutil.Decode[map[string]json.RawMessage](res.Stdout)
	if !ok {
		if !res.Success() {
			return nil, runner.NewExecError(cmd, res)
		}
		return []types.Dependency{}, nil
	}

	names := make([]string, 0, len(outdated))
	for name := range outdated {
		names = append(names, name)
	}
	sort.Strings(names)

	self := filepath.Base(project.Path)
	deps := make([]types.Dependency, 0, len(names))
	for _, name := range names {
		entries, ok := decodeNpmOutdated(outdated[name])
		if !ok {
			logger.Warn("Skipping unparseable npm outdated entry", logger.String("package", name))
			continue
		}
		kind, known := kinds[name]
		if !known {
			logger.Debug("Skipping dependency with unknown type", logger.String("package", name))
			continue
		}

		var relevant []npmOutdatedEntry
		for _, e := range entries {
			// dependent is the directory name of the workspace that declares
			// the package
			if e.Dependent != "" && e.Dependent != self {
				continue
			}
			relevant = append(relevant, e)
		}
		if len(relevant) == 0 {
			continue
		}

		info := resolveInfo(ctx, s.cache, s.fetcher, name, project.Path)
		if info == nil {
			continue
		}
		for _, e := range relevant {
			deps = append(deps, types.Dependency{
				Name:      name,
				Ecosystem: types.Ecosystem,
				Kind:      kind,
				Current:   release(info, e.Current, info.Deprecated),
				Latest:    release(info, e.Latest, false),
			})
		}
	}

	s.cache.logStats("npm", project.Name)
	logger.Debug("npm outdated scan complete",
		logger.String("project", project.Name),
		logger.Int("outdated", len(deps)))
	return deps, nil
}

var _ Strategy = (*NpmStrategy)(nil)
