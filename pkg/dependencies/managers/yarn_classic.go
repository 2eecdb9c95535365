package managers

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"golang.org/x/text/cases"

	"github.com/fulmenhq/pkgscout/pkg/dependencies/types"
	"github.com/fulmenhq/pkgscout/pkg/jsonutil"
	"github.com/fulmenhq/pkgscout/pkg/logger"
	"github.com/fulmenhq/pkgscout/pkg/manifest"
	"github.com/fulmenhq/pkgscout/pkg/runner"
)

// yarnClassic handles yarn v1.
type yarnClassic struct {
	runner  runner.Runner
	fetcher InfoFetcher
	cache   *ReleaseCache
}

type classicWorkspace struct {
	Location string `json:"location"`
}

// FindWorkspaces runs `yarn workspaces info --json`. Failures yield no
// workspaces rather than an error.
func (y *yarnClassic) FindWorkspaces(ctx context.Context, dir string) ([]types.Project, error) {
	projects, ok := y.workspacesInfo(ctx, dir)
	if !ok {
		return []types.Project{}, nil
	}
	return projects, nil
}

// workspacesInfo reports false when the command failed or produced nothing
// usable.
func (y *yarnClassic) workspacesInfo(ctx context.Context, dir string) ([]types.Project, bool) {
	cmd := runner.Command{Name: "yarn", Args: []string{"workspaces", "info", "--json"}, Dir: dir}
	res, err := y.runner.Run(ctx, cmd)
	if err != nil || !res.Success() || strings.TrimSpace(res.Stdout) == "" {
		return nil, false
	}

	entries, ok := jsonutil.Decode[map[string]classicWorkspace](unframeClassicOutput(res.Stdout))
	if !ok {
		return nil, false
	}

	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	projects := make([]types.Project, 0, len(names))
	for _, name := range names {
		loc := entries[name].Location
		if loc == "" {
			continue
		}
		projects = append(projects, types.Project{
			Name:           name,
			Path:           resolvePath(dir, loc),
			Ecosystem:      types.Ecosystem,
			PackageManager: types.PackageManagerYarn,
		})
	}
	manifest.FillDescriptions(projects)
	return projects, true
}

// unframeClassicOutput removes the "yarn workspaces vX" banner and the
// "Done in Ns." footer around the JSON document. Newer v1 releases wrap the
// document in a {"type":"log","data":"..."} envelope instead.
func unframeClassicOutput(out string) string {
	lines := strings.Split(strings.ReplaceAll(out, "\r\n", "\n"), "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, `{"type":`) {
			continue
		}
		var env struct {
			Type string `json:"type"`
			Data string `json:"data"`
		}
		if json.Unmarshal([]byte(line), &env) == nil && env.Type == "log" && strings.HasPrefix(strings.TrimSpace(env.Data), "{") {
			return env.Data
		}
	}

	if len(lines) > 0 && !strings.HasPrefix(strings.TrimSpace(lines[0]), "{") {
		lines = lines[1:]
	}
	for len(lines) > 0 {
		last := strings.TrimSpace(lines[len(lines)-1])
		if strings.HasSuffix(last, "}") {
			break
		}
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}

type classicTable struct {
	Head []string `json:"head"`
	Body [][]any  `json:"body"`
}

type classicRow struct {
	name      string
	current   string
	latest    string
	section   string
	workspace string
	// hasWorkspace is false when the table has no workspace column
	hasWorkspace bool
}

// parseClassicOutdated extracts rows from the newline-delimited envelopes of
// `yarn outdated --json`. Only "table" envelopes carry data. It returns the
// number of lines that could not be parsed.
func parseClassicOutdated(out string) ([]classicRow, int) {
	fold := cases.Fold()
	var rows []classicRow
	skipped := 0

	for _, line := range jsonutil.SplitLines(out) {
		env, ok := jsonutil.Decode[yarnEnvelope](line)
		if !ok {
			skipped++
			continue
		}
		if env.Type != "table" {
			continue
		}
		table, ok := jsonutil.Decode[classicTable](string(env.Data))
		if !ok {
			skipped++
			continue
		}

		columns := make(map[string]int, len(table.Head))
		for i, col := range table.Head {
			columns[fold.String(col)] = i
		}
		cell := func(row []any, column string) string {
			i, ok := columns[fold.String(column)]
			if !ok || i >= len(row) {
				return ""
			}
			s, _ := row[i].(string)
			return s
		}
		_, hasWorkspace := columns[fold.String("workspace")]

		for _, row := range table.Body {
			r := classicRow{
				name:         cell(row, "package"),
				current:      cell(row, "current"),
				latest:       cell(row, "latest"),
				section:      cell(row, "package type"),
				workspace:    cell(row, "workspace"),
				hasWorkspace: hasWorkspace,
			}
			if r.name == "" || r.current == "" || r.latest == "" || r.section == "" {
				logger.Warn("Invalid row in yarn outdated output", logger.Any("row", row))
				continue
			}
			rows = append(rows, r)
		}
	}
	return rows, skipped
}

// ListOutdated runs `yarn outdated --json`. On a workspace root yarn reports
// every workspace, so rows are filtered down to the project being scanned.
func (y *yarnClassic) ListOutdated(ctx context.Context, project types.Project) ([]types.Dependency, error) {
	cmd := runner.Command{Name: "yarn", Args: []string{"outdated", "--json"}, Dir: project.Path}
	res, err := y.runner.Run(ctx, cmd)
	if err != nil {
		return nil, err
	}

	rows, skipped := parseClassicOutdated(res.Stdout)
	if skipped > 0 {
		logger.Warn("Skipped unparseable yarn outdated lines",
			logger.String("project", project.Name),
			logger.Int("skipped", skipped))
	}

	deps := make([]types.Dependency, 0, len(rows))
	for _, r := range rows {
		if r.hasWorkspace && r.workspace != project.Name && !(r.workspace == "" && project.IsRoot()) {
			continue
		}
		kind, err := manifest.KindFromSection(r.section)
		if err != nil {
			logger.Debug("Skipping dependency", logger.String("package", r.name), logger.Err(err))
			continue
		}
		info := resolveInfo(ctx, y.cache, y.fetcher, r.name, project.Path)
		if info == nil {
			continue
		}
		deps = append(deps, types.Dependency{
			Name:      r.name,
			Ecosystem: types.Ecosystem,
			Kind:      kind,
			Current:   release(info, r.current, false),
			Latest:    release(info, r.latest, info.Deprecated),
		})
	}
	y.cache.logStats("yarn classic", project.Name)
	return deps, nil
}
