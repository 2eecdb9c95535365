package managers

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fulmenhq/pkgscout/pkg/dependencies/types"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, types.ManifestFile), []byte(content), 0o644))
}

// infoJSON renders an `npm info --json` style document.
func infoJSON(t *testing.T, times map[string]string, deprecated string) string {
	t.Helper()
	doc := map[string]any{"time": times}
	if deprecated != "" {
		doc["deprecated"] = deprecated
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	return string(data)
}

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	v, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return v
}

var leftPadTimes = map[string]string{
	"1.0.0": "2015-11-23T23:07:02.387Z",
	"1.3.0": "2018-04-09T01:16:53.466Z",
}
