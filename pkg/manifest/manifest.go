// Package manifest reads package.json files.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/fulmenhq/pkgscout/pkg/dependencies/types"
	"github.com/fulmenhq/pkgscout/pkg/jsonutil"
	"github.com/fulmenhq/pkgscout/pkg/logger"
	"github.com/fulmenhq/pkgscout/pkg/safeio"
)

// Manifest sections that declare dependencies.
const (
	SectionDependencies    = "dependencies"
	SectionDevDependencies = "devDependencies"
)

// ErrMalformed is returned when package.json is not a JSON object.
var ErrMalformed = errors.New("malformed package.json")

// Manifest is the subset of package.json pkgscout reads.
type Manifest struct {
	Name            string            `json:"name"`
	Description     string            `json:"description"`
	Version         string            `json:"version"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

// rawManifest defers decoding of every field so a mistyped one does not
// reject the whole file.
type rawManifest struct {
	Name            json.RawMessage `json:"name"`
	Description     json.RawMessage `json:"description"`
	Version         json.RawMessage `json:"version"`
	Dependencies    json.RawMessage `json:"dependencies"`
	DevDependencies json.RawMessage `json:"devDependencies"`
}

// Load reads dir/package.json. Only a non-object document is malformed;
// fields of the wrong type are treated as absent.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, types.ManifestFile)
	data, err := safeio.ReadFileContained(dir, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	raw, ok := jsonutil.Decode[*rawManifest](string(data))
	if !ok || raw == nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformed, path)
	}
	return &Manifest{
		Name:            stringField(path, "name", raw.Name),
		Description:     stringField(path, "description", raw.Description),
		Version:         stringField(path, "version", raw.Version),
		Dependencies:    sectionField(path, SectionDependencies, raw.Dependencies),
		DevDependencies: sectionField(path, SectionDevDependencies, raw.DevDependencies),
	}, nil
}

func stringField(path, field string, raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		logger.Debug("Ignoring non-string manifest field", logger.String("path", path), logger.String("field", field))
		return ""
	}
	return s
}

// sectionField keeps every declared name; a non-string range is kept as "".
func sectionField(path, section string, raw json.RawMessage) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	var entries map[string]any
	if err := json.Unmarshal(raw, &entries); err != nil {
		logger.Warn("Ignoring malformed dependency section", logger.String("path", path), logger.String("section", section))
		return nil
	}
	out := make(map[string]string, len(entries))
	for name, v := range entries {
		spec, _ := v.(string)
		out[name] = spec
	}
	return out
}

// ProjectName returns the manifest name, falling back to the base name of dir.
func (m *Manifest) ProjectName(dir string) string {
	if m != nil && m.Name != "" {
		return m.Name
	}
	return filepath.Base(dir)
}

// UnsupportedKindError is returned for manifest sections other than
// dependencies and devDependencies.
type UnsupportedKindError struct {
	Section string
}

func (e *UnsupportedKindError) Error() string {
	return fmt.Sprintf("unsupported dependency type %q", e.Section)
}

// KindFromSection maps a manifest section name to a dependency kind.
func KindFromSection(section string) (types.Kind, error) {
	switch section {
	case SectionDependencies:
		return types.KindProd, nil
	case SectionDevDependencies:
		return types.KindDev, nil
	default:
		return "", &UnsupportedKindError{Section: section}
	}
}

// Kinds maps every declared dependency to its kind. A name listed in both
// sections is PROD.
func (m *Manifest) Kinds() map[string]types.Kind {
	kinds := make(map[string]types.Kind, len(m.Dependencies)+len(m.DevDependencies))
	for name := range m.DevDependencies {
		kinds[name] = types.KindDev
	}
	for name := range m.Dependencies {
		kinds[name] = types.KindProd
	}
	return kinds
}

// FillDescription back-fills p.Description from the project's manifest.
// Errors leave the project unchanged.
func FillDescription(p *types.Project) {
	if p.Description != "" || p.Path == "" {
		return
	}
	m, err := Load(p.Path)
	if err != nil {
		logger.Debug("No description available", logger.String("path", p.Path), logger.Err(err))
		return
	}
	p.Description = m.Description
}

// FillDescriptions applies FillDescription to every project in ps.
func FillDescriptions(ps []types.Project) {
	for i := range ps {
		FillDescription(&ps[i])
	}
}
