// Package dependencies discovers JavaScript projects and reports their
// outdated direct dependencies.
package dependencies

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/fulmenhq/pkgscout/pkg/dependencies/managers"
	"github.com/fulmenhq/pkgscout/pkg/dependencies/types"
	"github.com/fulmenhq/pkgscout/pkg/ignore"
	"github.com/fulmenhq/pkgscout/pkg/logger"
	"github.com/fulmenhq/pkgscout/pkg/manifest"
	"github.com/fulmenhq/pkgscout/pkg/runner"
)

// ErrUnsupportedPackageManager means the dispatch table has no strategy for a
// package manager. It indicates the table and types.Lockfiles are out of sync.
var ErrUnsupportedPackageManager = errors.New("unsupported package manager")

// Options configures an Ecosystem.
type Options struct {
	Runner runner.Runner
	// Ignore decides which directories are skipped; defaults to git check-ignore
	Ignore ignore.Checker
	// Exclude holds doublestar patterns matched against paths relative to the
	// discovery start directory
	Exclude []string
	// Fetcher replaces the per-manager CLI metadata lookups when set
	Fetcher managers.InfoFetcher
}

// Ecosystem owns one strategy per package manager.
type Ecosystem struct {
	strategies map[types.PackageManager]managers.Strategy
	ignore     ignore.Checker
	exclude    []string
}

// New creates an Ecosystem with the npm, yarn and pnpm strategies.
func New(opts Options) (*Ecosystem, error) {
	if opts.Runner == nil {
		opts.Runner = runner.NewLocalRunner()
	}
	mopts := managers.Options{Runner: opts.Runner, Fetcher: opts.Fetcher}
	return NewWithStrategies(map[types.PackageManager]managers.Strategy{
		types.PackageManagerNpm:  managers.NewNpmStrategy(mopts),
		types.PackageManagerYarn: managers.NewYarnStrategy(mopts),
		types.PackageManagerPnpm: managers.NewPnpmStrategy(mopts),
	}, opts)
}

// NewWithStrategies creates an Ecosystem with an explicit dispatch table.
func NewWithStrategies(strategies map[types.PackageManager]managers.Strategy, opts Options) (*Ecosystem, error) {
	for _, pattern := range opts.Exclude {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid exclude pattern %q", pattern)
		}
	}
	checker := opts.Ignore
	if checker == nil {
		r := opts.Runner
		if r == nil {
			r = runner.NewLocalRunner()
		}
		checker = ignore.NewGitChecker(r)
	}
	return &Ecosystem{
		strategies: strategies,
		ignore:     checker,
		exclude:    opts.Exclude,
	}, nil
}

// Name returns the ecosystem tag.
func (e *Ecosystem) Name() string { return types.Ecosystem }

// Strategy returns the strategy registered for pm.
func (e *Ecosystem) Strategy(pm types.PackageManager) (managers.Strategy, error) {
	s, ok := e.strategies[pm]
	if !ok || s == nil {
		return nil, fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedPackageManager, pm, supportedManagers())
	}
	return s, nil
}

// supportedManagers lists the recognized managers in detection order.
func supportedManagers() string {
	names := make([]string, 0, len(types.PackageManagers))
	for _, pm := range types.PackageManagers {
		names = append(names, string(pm))
	}
	return strings.Join(names, ", ")
}

// FindProjects walks dir (the working directory when empty) and returns every
// project root found, in directory order. When nothing is found and
// allowNoLockfile is false the walk is repeated once with allowNoLockfile set,
// so a lone package.json in dir still counts.
func (e *Ecosystem) FindProjects(ctx context.Context, dir string, allowNoLockfile bool) ([]types.Project, error) {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to determine working directory: %w", err)
		}
		dir = wd
	}
	start, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
	}

	projects, err := e.walk(ctx, start, start, allowNoLockfile)
	if err != nil {
		return nil, err
	}
	if len(projects) == 0 && !allowNoLockfile {
		logger.Debug("No lockfiles found, accepting a bare package.json", logger.String("dir", start))
		return e.walk(ctx, start, start, true)
	}
	return projects, nil
}

func (e *Ecosystem) walk(ctx context.Context, start, dir string, allowNoLockfile bool) ([]types.Project, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// ReadDir returns entries sorted by name
	entries, err := os.ReadDir(dir)
	if err != nil {
		if dir == start {
			return nil, fmt.Errorf("failed to read %s: %w", dir, err)
		}
		logger.Warn("Skipping unreadable directory", logger.String("dir", dir), logger.Err(err))
		return nil, nil
	}

	hasManifest := false
	hasLockfile := false
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if entry.Name() == types.ManifestFile {
			hasManifest = true
		}
		if _, ok := types.Lockfiles[entry.Name()]; ok {
			hasLockfile = true
		}
	}

	projects := []types.Project{}
	var recorded string
	for _, entry := range entries {
		name := entry.Name()

		if entry.Type().IsRegular() {
			pm, isLockfile := types.Lockfiles[name]
			manifestOnly := allowNoLockfile && !hasLockfile && name == types.ManifestFile && dir == start
			if !isLockfile && !manifestOnly {
				continue
			}
			if !hasManifest {
				logger.Warn("Lockfile found but no package.json",
					logger.String("dir", dir),
					logger.String("lockfile", name))
				continue
			}
			if recorded != "" {
				logger.Warn("Ignoring additional lockfile",
					logger.String("dir", dir),
					logger.String("lockfile", name),
					logger.String("using", recorded))
				continue
			}
			if manifestOnly {
				pm = types.PackageManagerNpm
			}

			project, err := e.newRootProject(ctx, dir, pm)
			if err != nil {
				return nil, err
			}
			if project == nil {
				continue
			}
			projects = append(projects, *project)
			recorded = name
			continue
		}

		if !entry.IsDir() || name == ".git" {
			continue
		}
		child := filepath.Join(dir, name)
		if e.excluded(start, child) {
			logger.Debug("Skipping excluded directory", logger.String("dir", child))
			continue
		}
		if e.ignore.IsIgnored(ctx, dir, name) {
			logger.Trace("Skipping ignored directory", logger.String("dir", child))
			continue
		}
		sub, err := e.walk(ctx, start, child, false)
		if err != nil {
			return nil, err
		}
		projects = append(projects, sub...)
	}
	return projects, nil
}

// newRootProject returns nil when the manifest cannot be used.
func (e *Ecosystem) newRootProject(ctx context.Context, dir string, pm types.PackageManager) (*types.Project, error) {
	m, err := manifest.Load(dir)
	if err != nil {
		logger.Warn("Skipping project with unreadable package.json", logger.String("dir", dir), logger.Err(err))
		return nil, nil
	}
	strategy, err := e.Strategy(pm)
	if err != nil {
		return nil, err
	}

	logger.Debug("Finding workspaces", logger.String("dir", dir), logger.String("package_manager", string(pm)))
	workspaces, err := strategy.FindWorkspaces(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s workspaces in %s: %w", pm, dir, err)
	}
	if workspaces == nil {
		workspaces = []types.Project{}
	}
	for i := range workspaces {
		workspaces[i].PackageManager = pm
		workspaces[i].Workspaces = nil
	}

	return &types.Project{
		Name:           m.ProjectName(dir),
		Description:    m.Description,
		Path:           dir,
		Ecosystem:      types.Ecosystem,
		PackageManager: pm,
		Workspaces:     workspaces,
	}, nil
}

func (e *Ecosystem) excluded(start, path string) bool {
	if len(e.exclude) == 0 {
		return false
	}
	rel, err := filepath.Rel(start, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, pattern := range e.exclude {
		if matched, err := doublestar.Match(pattern, rel); err == nil && matched {
			return true
		}
	}
	return false
}

// ListOutdatedDependencies reports the outdated direct dependencies of project.
// Records that fail validation are logged and dropped.
func (e *Ecosystem) ListOutdatedDependencies(ctx context.Context, project types.Project) ([]types.Dependency, error) {
	strategy, err := e.Strategy(project.PackageManager)
	if err != nil {
		return nil, err
	}
	deps, err := strategy.ListOutdated(ctx, project)
	if err != nil {
		return nil, err
	}

	valid := make([]types.Dependency, 0, len(deps))
	for _, d := range deps {
		if err := d.Validate(); err != nil {
			logger.Warn("Dropping invalid dependency",
				logger.String("project", project.Name),
				logger.String("package", d.Name),
				logger.Err(err))
			continue
		}
		valid = append(valid, d)
	}
	return valid, nil
}

// Flatten lists every root followed by its workspaces.
func Flatten(projects []types.Project) []types.Project {
	var out []types.Project
	for _, p := range projects {
		out = append(out, p)
		out = append(out, p.Workspaces...)
	}
	return out
}

// Scan runs ListOutdatedDependencies for every project and workspace, one at
// a time. A failing project is recorded in its report and the scan moves on;
// only an unsupported package manager or a cancelled context aborts.
func (e *Ecosystem) Scan(ctx context.Context, projects []types.Project) ([]types.ProjectReport, error) {
	all := Flatten(projects)
	reports := make([]types.ProjectReport, 0, len(all))
	for _, p := range all {
		deps, err := e.ListOutdatedDependencies(ctx, p)
		// workspaces get their own report
		if p.Workspaces != nil {
			p.Workspaces = []types.Project{}
		}
		switch {
		case errors.Is(err, ErrUnsupportedPackageManager):
			return nil, err
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case err != nil:
			logger.Error("Outdated scan failed",
				logger.String("project", p.Name),
				logger.String("path", p.Path),
				logger.Err(err))
			reports = append(reports, types.ProjectReport{Project: p, Dependencies: []types.Dependency{}, Error: err.Error()})
		default:
			reports = append(reports, types.ProjectReport{Project: p, Dependencies: deps})
		}
	}
	return reports, nil
}
