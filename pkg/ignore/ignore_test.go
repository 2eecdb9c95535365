package ignore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fulmenhq/pkgscout/pkg/runner"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestGitChecker(t *testing.T) {
	fake := runner.NewFake().
		AddResponseIn("/repo", "git check-ignore -q dist", 0, "", "").
		AddResponseIn("/repo", "git check-ignore -q packages", 1, "", "").
		AddResponseIn("/outside", "git check-ignore -q app", 128, "", "fatal: not a git repository")

	checker := NewGitChecker(fake)
	ctx := context.Background()

	assert.True(t, checker.IsIgnored(ctx, "/repo", "dist"))
	assert.False(t, checker.IsIgnored(ctx, "/repo", "packages"))
	assert.False(t, checker.IsIgnored(ctx, "/outside", "app"))

	calls := fake.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, "/repo", calls[0].Dir)
}

func TestGitChecker_RunnerFailure(t *testing.T) {
	fake := runner.NewFake().AddError("git check-ignore -q dist", os.ErrNotExist)
	assert.False(t, NewGitChecker(fake).IsIgnored(context.Background(), "/repo", "dist"))
}

func TestNop(t *testing.T) {
	assert.False(t, Nop{}.IsIgnored(context.Background(), "/repo", "node_modules"))
}

func TestMatcher(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".gitignore"), "# build output\ndist/\n*.tmp\n")
	writeFile(t, filepath.Join(root, "packages", ".gitignore"), "generated/\n")
	writeFile(t, filepath.Join(root, IgnoreFileName), "# local\nfixtures/\n")

	m, err := NewMatcher(root)
	require.NoError(t, err)
	ctx := context.Background()

	tests := []struct {
		parent string
		name   string
		want   bool
	}{
		{root, "dist", true},
		{root, "node_modules", true},
		{root, ".git", true},
		{root, "fixtures", true},
		{root, "packages", false},
		{filepath.Join(root, "packages"), "generated", true},
		{filepath.Join(root, "packages"), "a", false},
		{filepath.Join(root, "packages", "a"), "node_modules", true},
		{filepath.Dir(root), "elsewhere", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.IsIgnored(ctx, tt.parent, tt.name))
		})
	}
}

func TestNew(t *testing.T) {
	fake := runner.NewFake()

	c, err := New("", fake, ".")
	require.NoError(t, err)
	assert.IsType(t, &GitChecker{}, c)

	c, err = New("none", fake, ".")
	require.NoError(t, err)
	assert.IsType(t, Nop{}, c)

	c, err = New("BUILTIN", fake, t.TempDir())
	require.NoError(t, err)
	assert.IsType(t, &Matcher{}, c)

	_, err = New("svn", fake, ".")
	assert.Error(t, err)
}

func TestSplitPath(t *testing.T) {
	assert.Empty(t, splitPath("."))
	assert.Equal(t, []string{"a", "b"}, splitPath("/a/./b/"))
}
