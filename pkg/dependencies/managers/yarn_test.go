package managers

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fulmenhq/pkgscout/pkg/dependencies/types"
	"github.com/fulmenhq/pkgscout/pkg/runner"
)

const classicWorkspacesInfo = `yarn workspaces v1.22.19
{
  "@scope/a": {
    "location": "packages/a",
    "workspaceDependencies": [],
    "mismatchedWorkspaceDependencies": []
  },
  "orphan": {
    "workspaceDependencies": []
  }
}
Done in 0.05s.
`

func TestYarn_VersionProbedOncePerDirectory(t *testing.T) {
	fake := runner.NewFake().
		AddResponseIn("/legacy", "yarn --version", 0, "1.22.19\n", "").
		AddResponseIn("/modern", "yarn --version", 0, "4.1.0\n", "").
		AddResponse("yarn workspaces info --json", 1, "", "").
		AddResponse("yarn workspaces list --json", 0, `{"location":".","name":"root"}`, "")

	s := NewYarnStrategy(Options{Runner: fake})
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := s.FindWorkspaces(ctx, "/legacy")
		require.NoError(t, err)
		_, err = s.FindWorkspaces(ctx, "/modern")
		require.NoError(t, err)
	}

	assert.Equal(t, 2, fake.CallCount("yarn --version"))
	assert.Equal(t, 2, fake.CallCount("yarn workspaces info --json"))
	assert.Equal(t, 2, fake.CallCount("yarn workspaces list --json"))

	v, err := s.Version(ctx, "/modern")
	require.NoError(t, err)
	assert.Equal(t, uint64(4), v.Major())
}

func TestYarn_VersionProbeFailure(t *testing.T) {
	fake := runner.NewFake().AddResponse("yarn --version", 0, "not-a-version", "")
	_, err := NewYarnStrategy(Options{Runner: fake}).FindWorkspaces(context.Background(), "/repo")
	assert.ErrorContains(t, err, "unrecognized yarn version")

	fake = runner.NewFake().AddError("yarn --version", os.ErrNotExist)
	_, err = NewYarnStrategy(Options{Runner: fake}).ListOutdated(context.Background(), types.Project{Path: "/repo"})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseYarnVersion_CorepackNotice(t *testing.T) {
	v, err := parseYarnVersion("! Corepack is about to download https://repo.yarnpkg.com/4.1.0/packages/yarnpkg-cli/bin/yarn.js\n4.1.0\n")
	require.NoError(t, err)
	assert.Equal(t, "4.1.0", v.String())
}

func TestYarnClassic_FindWorkspaces(t *testing.T) {
	dir := t.TempDir()
	fake := runner.NewFake().
		AddResponse("yarn --version", 0, "1.22.19", "").
		AddResponseIn(dir, "yarn workspaces info --json", 0, classicWorkspacesInfo, "")

	got, err := NewYarnStrategy(Options{Runner: fake}).FindWorkspaces(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, "@scope/a", got[0].Name)
	assert.True(t, filepath.IsAbs(got[0].Path))
	assert.True(t, strings.HasSuffix(filepath.ToSlash(got[0].Path), "packages/a"))
	assert.Equal(t, types.PackageManagerYarn, got[0].PackageManager)
	assert.Nil(t, got[0].Workspaces)
}

func TestYarnClassic_FindWorkspaces_LogEnvelope(t *testing.T) {
	out := `{"type":"log","data":"yarn workspaces v1.22.22"}
{"type":"log","data":"{\n  \"@scope/a\": {\n    \"location\": \"packages/a\",\n    \"workspaceDependencies\": []\n  }\n}"}
`
	fake := runner.NewFake().
		AddResponse("yarn --version", 0, "1.22.22", "").
		AddResponse("yarn workspaces info --json", 0, out, "")

	got, err := NewYarnStrategy(Options{Runner: fake}).FindWorkspaces(context.Background(), "/repo")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, filepath.Join("/repo", "packages", "a"), got[0].Path)
}

func TestYarnClassic_FindWorkspaces_Failure(t *testing.T) {
	fake := runner.NewFake().
		AddResponse("yarn --version", 0, "1.22.19", "").
		AddResponse("yarn workspaces info --json", 1, "", "error Cannot find the root of your workspace")

	got, err := NewYarnStrategy(Options{Runner: fake}).FindWorkspaces(context.Background(), "/repo")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

const classicOutdated = `{"type":"info","data":"Color legend : \n \"<red>\"    : Major Update backward-incompatible updates \n"}
this line is not json
{"type":"table","data":{"head":["Package","Current","Wanted","Latest","Workspace","Package Type","URL"],"body":[["left-pad","1.0.0","1.0.0","1.3.0","","devDependencies","https://github.com/stevemao/left-pad#readme"],["react","17.0.2","17.0.2","18.2.0","@scope/a","dependencies","https://reactjs.org/"],["typescript","","5.0.0","5.4.5","","devDependencies","https://www.typescriptlang.org/"],["vue","3.2.0","3.2.0","3.4.0","","peerDependencies","https://vuejs.org"]]}}
`

func yarnInspect(times string, deprecated bool) string {
	data := `{"name":"pkg","time":` + times
	if deprecated {
		data += `,"deprecated":"no longer maintained"`
	}
	data += `}`
	return `{"type":"inspect","data":` + data + "}\n"
}

func TestYarnClassic_ListOutdated_RootProject(t *testing.T) {
	fake := runner.NewFake().
		AddResponse("yarn --version", 0, "1.22.19", "").
		AddResponseIn("/mono", "yarn outdated --json", 1, classicOutdated, "").
		AddResponse("yarn info left-pad --json", 0,
			yarnInspect(`{"1.0.0":"2015-11-23T23:07:02.387Z","1.3.0":"2018-04-09T01:16:53.466Z"}`, true), "")

	root := types.Project{Name: "mono", Path: "/mono", Workspaces: []types.Project{{Name: "@scope/a"}}}
	s := NewYarnStrategy(Options{Runner: fake})
	deps, err := s.ListOutdated(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, deps, 1)

	d := deps[0]
	assert.Equal(t, "left-pad", d.Name)
	assert.Equal(t, types.KindDev, d.Kind)
	assert.False(t, d.Current.Deprecated)
	assert.True(t, d.Latest.Deprecated)
	assert.NoError(t, d.Validate())

	assert.Zero(t, fake.CallCount("yarn info react --json"), "other workspaces' rows are filtered")
	assert.Zero(t, fake.CallCount("yarn info vue --json"))
	assert.Equal(t, 1, s.ClassicCache().Stats().Size)
}

func TestYarnClassic_ListOutdated_Workspace(t *testing.T) {
	fake := runner.NewFake().
		AddResponse("yarn --version", 0, "1.22.19", "").
		AddResponse("yarn outdated --json", 1, classicOutdated, "").
		AddResponse("yarn info react --json", 0,
			`{"type":"warning","data":"package.json: No license field"}`+"\n"+
				yarnInspect(`{"17.0.2":"2021-03-22T21:56:19.536Z","18.2.0":"2022-06-14T19:46:38.369Z"}`, false), "")

	ws := types.Project{Name: "@scope/a", Path: "/mono/packages/a"}
	deps, err := NewYarnStrategy(Options{Runner: fake}).ListOutdated(context.Background(), ws)
	require.NoError(t, err)
	require.Len(t, deps, 1)
	assert.Equal(t, "react", deps[0].Name)
	assert.Equal(t, types.KindProd, deps[0].Kind)
	assert.Zero(t, fake.CallCount("yarn info left-pad --json"), "root rows do not belong to a workspace")
}

func TestYarnClassic_ListOutdated_InfoFailure(t *testing.T) {
	fake := runner.NewFake().
		AddResponse("yarn --version", 0, "1.22.19", "").
		AddResponse("yarn outdated --json", 1, classicOutdated, "").
		AddResponse("yarn info left-pad --json", 1, "", "error An unexpected error occurred")

	root := types.Project{Name: "mono", Path: "/mono", Workspaces: []types.Project{}}
	deps, err := NewYarnStrategy(Options{Runner: fake}).ListOutdated(context.Background(), root)
	require.NoError(t, err)
	assert.Empty(t, deps)
}

func TestParseClassicOutdated(t *testing.T) {
	rows, skipped := parseClassicOutdated(classicOutdated)
	assert.Equal(t, 1, skipped)
	require.Len(t, rows, 3, "row without a current version is dropped")
	assert.Equal(t, "left-pad", rows[0].name)
	assert.True(t, rows[0].hasWorkspace)
	assert.Equal(t, "@scope/a", rows[1].workspace)

	// headers are matched without regard to case and a missing workspace
	// column disables filtering
	rows, skipped = parseClassicOutdated(`{"type":"table","data":{"head":["PACKAGE","current","Latest","package TYPE"],"body":[["left-pad","1.0.0","1.3.0","dependencies"]]}}`)
	assert.Zero(t, skipped)
	require.Len(t, rows, 1)
	assert.False(t, rows[0].hasWorkspace)
	assert.Equal(t, "dependencies", rows[0].section)
}

func TestYarnBerry_FindWorkspaces(t *testing.T) {
	fake := runner.NewFake().
		AddResponse("yarn --version", 0, "4.1.0", "").
		AddResponse("yarn workspaces list --json", 0, `{"location":".","name":"@xeel-dev/yarn-test"}
{"location":"packages/workspace-1","name":"@xeel-dev/yarn-test-workspace-1"}`, "")

	got, err := NewYarnStrategy(Options{Runner: fake}).FindWorkspaces(context.Background(), "/path/to")
	require.NoError(t, err)
	assert.Equal(t, []types.Project{{
		Name:           "@xeel-dev/yarn-test-workspace-1",
		Ecosystem:      "NPM",
		PackageManager: types.PackageManagerYarn,
		Path:           filepath.Join("/path/to", "packages", "workspace-1"),
	}}, got)
}

func TestYarnBerry_FindWorkspaces_FallsBackToClassicForm(t *testing.T) {
	fake := runner.NewFake().
		AddResponse("yarn --version", 0, "2.4.3", "").
		AddResponse("yarn workspaces list --json", 1, "", "Usage Error: Couldn't find a script named \"workspaces\".").
		AddResponse("yarn workspaces info --json", 0, classicWorkspacesInfo, "")

	got, err := NewYarnStrategy(Options{Runner: fake}).FindWorkspaces(context.Background(), "/repo")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "@scope/a", got[0].Name)
}

func TestYarnBerry_FindWorkspaces_BothFormsFail(t *testing.T) {
	fake := runner.NewFake().
		AddResponse("yarn --version", 0, "4.1.0", "").
		AddResponse("yarn workspaces list --json", 1, "stdout error message", "stderr error message").
		AddResponse("yarn workspaces info --json", 1, "stdout error message", "stderr error message")

	got, err := NewYarnStrategy(Options{Runner: fake}).FindWorkspaces(context.Background(), "/path/to")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 1, fake.CallCount("yarn workspaces info --json"))
}

const berryOutdated = `[{"current":"1.0.0","latest":"1.3.0","name":"left-pad","severity":"minor","type":"devDependencies","url":"https://github.com/stevemao/left-pad#readme","workspace":"app"}]`

const missingPlugin = `Usage Error: Couldn't find a script named "outdated".

$ yarn run [--inspect] [--inspect-brk] [-T,--top-level] [-B,--binaries-only] [--require #0] <scriptName> ...`

func TestYarnBerry_ListOutdated_InstallsPluginAndRetries(t *testing.T) {
	dir := t.TempDir()
	fake := runner.NewFake().
		AddResponse("yarn --version", 0, "4.1.0", "").
		AddResponseIn(dir, "yarn outdated --json --workspace .", 1, missingPlugin, "").
		AddResponseIn(dir, "yarn outdated --json --workspace .", 0, berryOutdated, "").
		AddResponseIn(dir, "yarn plugin import https://go.mskelton.dev/yarn-outdated/v4", 0, "➤ YN0000: Downloading https://go.mskelton.dev/yarn-outdated/v4", "").
		AddResponse("yarn npm info left-pad --json --fields time", 0,
			`{"time":{"1.0.0":"2015-11-23T23:07:02.387Z","1.3.0":"2018-04-09T01:16:53.466Z"}}`, "")

	s := NewYarnStrategy(Options{Runner: fake})
	deps, err := s.ListOutdated(context.Background(), types.Project{Name: "app", Path: dir})
	require.NoError(t, err)
	require.Len(t, deps, 1)

	assert.Equal(t, "left-pad", deps[0].Name)
	assert.Equal(t, types.KindDev, deps[0].Kind)
	assert.NoError(t, deps[0].Validate())
	assert.Equal(t, 1, fake.CallCount("yarn plugin import https://go.mskelton.dev/yarn-outdated/v4"))
	assert.Equal(t, 2, fake.CallCount("yarn outdated --json --workspace ."))
	assert.Equal(t, 1, s.BerryCache().Stats().Size)
}

func TestYarnBerry_ListOutdated_RetriesOnlyOnce(t *testing.T) {
	dir := t.TempDir()
	fake := runner.NewFake().
		AddResponse("yarn --version", 0, "3.6.4", "").
		AddResponse("yarn outdated --json --workspace .", 1, missingPlugin, "").
		AddResponse("yarn plugin import https://go.mskelton.dev/yarn-outdated/v3", 0, "", "")

	deps, err := NewYarnStrategy(Options{Runner: fake}).ListOutdated(context.Background(), types.Project{Name: "app", Path: dir})
	require.NoError(t, err)
	assert.Empty(t, deps)
	assert.Equal(t, 2, fake.CallCount("yarn outdated --json --workspace ."))
	assert.Equal(t, 1, fake.CallCount("yarn plugin import https://go.mskelton.dev/yarn-outdated/v3"))
}

func TestYarnBerry_ListOutdated_YarnTooOld(t *testing.T) {
	dir := t.TempDir()
	fake := runner.NewFake().
		AddResponse("yarn --version", 0, "2.4.3", "").
		AddResponse("yarn outdated --json --workspace .", 1, missingPlugin, "")

	_, err := NewYarnStrategy(Options{Runner: fake}).ListOutdated(context.Background(), types.Project{Name: "app", Path: dir})
	assert.ErrorIs(t, err, ErrYarnTooOld)
	for _, c := range fake.Calls() {
		assert.NotEqual(t, "plugin", c.Args[0], "yarn 2 must not be mutated")
	}
}

func TestYarnBerry_ListOutdated_PluginAlreadyConfigured(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "packages", "app")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".yarnrc.yml"), []byte(`nodeLinker: node-modules
plugins:
  - path: .yarn/plugins/@mskelton/yarn-plugin-outdated.cjs
    spec: "https://go.mskelton.dev/yarn-outdated/v4"
`), 0o644))

	fake := runner.NewFake().
		AddResponse("yarn --version", 0, "4.1.0", "").
		AddResponse("yarn outdated --json --workspace .", 1, "", "Internal Error").
		AddResponse("yarn outdated --json --workspace .", 0, "[]", "")

	deps, err := NewYarnStrategy(Options{Runner: fake}).ListOutdated(context.Background(), types.Project{Name: "app", Path: dir})
	require.NoError(t, err)
	assert.Empty(t, deps)
	assert.Zero(t, fake.CallCount("yarn plugin import https://go.mskelton.dev/yarn-outdated/v4"))
	assert.Equal(t, 2, fake.CallCount("yarn outdated --json --workspace ."))
}

func TestYarnBerry_ListOutdated_NotInstalled(t *testing.T) {
	fake := runner.NewFake().
		AddResponse("yarn --version", 0, "4.1.0", "").
		AddResponse("yarn outdated --json --workspace .", 0, `[{"name":"left-pad","current":"","latest":"1.3.0","type":"dependencies"}]`, "")

	_, err := NewYarnStrategy(Options{Runner: fake}).ListOutdated(context.Background(), types.Project{Name: "app", Path: t.TempDir()})
	assert.True(t, errors.Is(err, ErrNotInstalled))
}

func TestYarnrcHasOutdatedPlugin(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".yarnrc.yml")

	require.NoError(t, os.WriteFile(path, []byte("plugins:\n  - .yarn/plugins/@mskelton/yarn-plugin-outdated.cjs\n"), 0o644))
	assert.True(t, yarnrcHasOutdatedPlugin(path))

	require.NoError(t, os.WriteFile(path, []byte("plugins:\n  - path: .yarn/plugins/@yarnpkg/plugin-workspace-tools.cjs\n    spec: \"@yarnpkg/plugin-workspace-tools\"\n"), 0o644))
	assert.False(t, yarnrcHasOutdatedPlugin(path))

	require.NoError(t, os.WriteFile(path, []byte("plugins: [unterminated"), 0o644))
	assert.False(t, yarnrcHasOutdatedPlugin(path))

	assert.Equal(t, path, findYarnrc(filepath.Join(dir)))
}
