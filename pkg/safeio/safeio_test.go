package safeio

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanUserPath(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		wantErr  bool
	}{
		{name: "simple path", input: "report.json", expected: "report.json"},
		{name: "relative path", input: "./out/report.md", expected: "out/report.md"},
		{name: "absolute path", input: "/tmp/report.xml", expected: "/tmp/report.xml"},
		{name: "dots inside a name", input: "report..v2.json", expected: "report..v2.json"},
		{name: "empty path", input: "", expected: "."},
		{name: "traversal", input: "../../../etc/passwd", wantErr: true},
		{name: "traversal in middle", input: "out/../../etc/passwd", wantErr: true},
		{name: "parent directory", input: "..", wantErr: true},
		{name: "collapsed traversal", input: "out/../report.json", expected: "report.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CleanUserPath(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrTraversal)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestReadFileContained(t *testing.T) {
	base := t.TempDir()
	manifest := filepath.Join(base, "package.json")
	require.NoError(t, os.WriteFile(manifest, []byte(`{"name":"demo"}`), 0o600))

	data, err := ReadFileContained(base, manifest)
	require.NoError(t, err)
	assert.Equal(t, `{"name":"demo"}`, string(data))

	_, err = ReadFileContained(base, filepath.Join(base, "..", "package.json"))
	assert.ErrorIs(t, err, ErrOutsideBase)

	_, err = ReadFileContained(base, filepath.Join(base, "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestContained(t *testing.T) {
	base := t.TempDir()

	abs, err := Contained(base, filepath.Join(base, "packages", "a", "package.json"))
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(abs))

	_, err = Contained(filepath.Join(base, "packages"), base)
	assert.ErrorIs(t, err, ErrOutsideBase)
}

func TestWriteFilePreservePerms(t *testing.T) {
	dir := t.TempDir()

	fresh := filepath.Join(dir, "nested", "report.json")
	require.NoError(t, WriteFilePreservePerms(fresh, []byte("{}")))
	data, err := os.ReadFile(fresh)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))

	if runtime.GOOS == "windows" {
		t.Skip("file modes are not preserved on windows")
	}

	existing := filepath.Join(dir, "report.md")
	require.NoError(t, os.WriteFile(existing, []byte("old"), 0o600))
	require.NoError(t, WriteFilePreservePerms(existing, []byte("new")))

	st, err := os.Stat(existing)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), st.Mode().Perm())

	st, err = os.Stat(fresh)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), st.Mode().Perm())
}
