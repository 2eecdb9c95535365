package managers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/fulmenhq/pkgscout/pkg/dependencies/types"
	"github.com/fulmenhq/pkgscout/pkg/jsonutil"
	"github.com/fulmenhq/pkgscout/pkg/logger"
	"github.com/fulmenhq/pkgscout/pkg/manifest"
	"github.com/fulmenhq/pkgscout/pkg/runner"
	"github.com/fulmenhq/pkgscout/pkg/safeio"
)

// OutdatedPluginURL is the source of yarn-plugin-outdated; the major yarn
// version is appended.
const OutdatedPluginURL = "https://go.mskelton.dev/yarn-outdated/v"

// yarnBerry handles yarn v2 and later.
type yarnBerry struct {
	runner  runner.Runner
	fetcher InfoFetcher
	cache   *ReleaseCache
	classic *yarnClassic
	version func(ctx context.Context, dir string) (*semver.Version, error)
}

type berryWorkspace struct {
	Name     string `json:"name"`
	Location string `json:"location"`
}

// FindWorkspaces runs `yarn workspaces list --json`, which prints one object
// per line. If it fails the v1 `workspaces info` form is tried.
func (y *yarnBerry) FindWorkspaces(ctx context.Context, dir string) ([]types.Project, error) {
	cmd := runner.Command{Name: "yarn", Args: []string{"workspaces", "list", "--json"}, Dir: dir}
	res, err := y.runner.Run(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if !res.Success() {
		if projects, ok := y.classic.workspacesInfo(ctx, dir); ok {
			return projects, nil
		}
		logger.Warn("Could not find workspaces", logger.String("dir", dir), logger.Int("exit_code", res.ExitCode))
		return []types.Project{}, nil
	}

	projects := []types.Project{}
	for _, line := range jsonutil.SplitLines(res.Stdout) {
		ws, ok := jsonutil.Decode[berryWorkspace](line)
		if !ok || ws.Location == "" || ws.Location == "." {
			continue
		}
		path := resolvePath(dir, ws.Location)
		name := ws.Name
		if name == "" {
			name = filepath.Base(path)
		}
		projects = append(projects, types.Project{
			Name:           name,
			Path:           path,
			Ecosystem:      types.Ecosystem,
			PackageManager: types.PackageManagerYarn,
		})
	}
	manifest.FillDescriptions(projects)
	return projects, nil
}

type berryOutdatedEntry struct {
	Name      string `json:"name"`
	Current   string `json:"current"`
	Latest    string `json:"latest"`
	Type      string `json:"type"`
	Workspace string `json:"workspace"`
}

// ListOutdated runs `yarn outdated --json --workspace .`, a command provided
// by yarn-plugin-outdated. When the output is not the expected JSON array the
// plugin is installed and the command retried once.
func (y *yarnBerry) ListOutdated(ctx context.Context, project types.Project) ([]types.Dependency, error) {
	return y.listOutdated(ctx, project, false)
}

func (y *yarnBerry) listOutdated(ctx context.Context, project types.Project, attemptedInstall bool) ([]types.Dependency, error) {
	cmd := runner.Command{Name: "yarn", Args: []string{"outdated", "--json", "--workspace", "."}, Dir: project.Path}
	res, err := y.runner.Run(ctx, cmd)
	if err != nil {
		return nil, err
	}

	entries, ok := jsonutil.Decode[[]berryOutdatedEntry](res.Stdout)
	if !ok {
		if attemptedInstall {
			logger.Warn("yarn outdated still unusable after installing plugin",
				logger.String("project", project.Name),
				logger.Int("exit_code", res.ExitCode))
			return []types.Dependency{}, nil
		}
		if err := y.installOutdatedPlugin(ctx, project.Path); err != nil {
			return nil, err
		}
		return y.listOutdated(ctx, project, true)
	}

	deps := make([]types.Dependency, 0, len(entries))
	for _, e := range entries {
		if e.Current == "" {
			return nil, fmt.Errorf("%s: %w (run `yarn install`)", e.Name, ErrNotInstalled)
		}
		kind, err := manifest.KindFromSection(e.Type)
		if err != nil {
			logger.Debug("Skipping dependency", logger.String("package", e.Name), logger.Err(err))
			continue
		}
		info := resolveInfo(ctx, y.cache, y.fetcher, e.Name, project.Path)
		if info == nil {
			continue
		}
		deps = append(deps, types.Dependency{
			Name:      e.Name,
			Ecosystem: types.Ecosystem,
			Kind:      kind,
			Current:   release(info, e.Current, false),
			Latest:    release(info, e.Latest, info.Deprecated),
		})
	}
	y.cache.logStats("yarn berry", project.Name)
	return deps, nil
}

// installOutdatedPlugin imports yarn-plugin-outdated into the project's yarn
// configuration. This mutates .yarnrc.yml, so it is skipped when the plugin
// is already listed there.
func (y *yarnBerry) installOutdatedPlugin(ctx context.Context, dir string) error {
	if rc := findYarnrc(dir); rc != "" && yarnrcHasOutdatedPlugin(rc) {
		logger.Debug("yarn-plugin-outdated already configured", logger.String("yarnrc", rc))
		return nil
	}

	v, err := y.version(ctx, dir)
	if err != nil {
		return fmt.Errorf("failed to detect yarn version: %w", err)
	}
	if v.Major() < 3 {
		return fmt.Errorf("%w (found %s)", ErrYarnTooOld, v)
	}

	logger.Info("Installing yarn plugin: yarn-plugin-outdated", logger.String("dir", dir))
	cmd := runner.Command{
		Name: "yarn",
		Args: []string{"plugin", "import", fmt.Sprintf("%s%d", OutdatedPluginURL, v.Major())},
		Dir:  dir,
	}
	res, err := y.runner.Run(ctx, cmd)
	if err != nil {
		return err
	}
	if !res.Success() {
		return runner.NewExecError(cmd, res)
	}
	return nil
}

// findYarnrc returns the nearest .yarnrc.yml at or above dir.
func findYarnrc(dir string) string {
	for {
		candidate := filepath.Join(dir, ".yarnrc.yml")
		if st, err := os.Stat(candidate); err == nil && !st.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// yarnrcHasOutdatedPlugin reports whether the plugins list of a .yarnrc.yml
// references yarn-plugin-outdated. Entries are either a path or a
// {path, spec} mapping.
func yarnrcHasOutdatedPlugin(path string) bool {
	data, err := safeio.ReadFileContained(filepath.Dir(path), path)
	if err != nil {
		return false
	}
	var rc struct {
		Plugins []yaml.Node `yaml:"plugins"`
	}
	if err := yaml.Unmarshal(data, &rc); err != nil {
		logger.Debug("Unreadable .yarnrc.yml", logger.String("path", path), logger.Err(err))
		return false
	}
	for _, node := range rc.Plugins {
		var values []string
		switch node.Kind {
		case yaml.ScalarNode:
			values = append(values, node.Value)
		case yaml.MappingNode:
			var entry struct {
				Path string `yaml:"path"`
				Spec string `yaml:"spec"`
			}
			if err := node.Decode(&entry); err == nil {
				values = append(values, entry.Path, entry.Spec)
			}
		}
		for _, v := range values {
			if isOutdatedPluginRef(v) {
				return true
			}
		}
	}
	return false
}

func isOutdatedPluginRef(ref string) bool {
	return strings.Contains(ref, "yarn-plugin-outdated") || strings.HasPrefix(ref, OutdatedPluginURL)
}
