// Package policy evaluates outdated-dependency policies with embedded OPA.
// Policies are either Rego modules declaring package pkgscout.outdated or a
// small YAML dialect that is transpiled to such a module.
package policy

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/open-policy-agent/opa/v1/rego"
	"gopkg.in/yaml.v3"

	"github.com/fulmenhq/pkgscout/pkg/config"
	"github.com/fulmenhq/pkgscout/pkg/safeio"
)

// DenyQuery is the rule every policy module contributes to.
const DenyQuery = "data.pkgscout.outdated.deny"

// Engine defines policy engine interface
type Engine interface {
	Evaluate(ctx context.Context, input interface{}) (map[string]interface{}, error)
	LoadPolicy(source string) error
}

// Document is the YAML policy dialect.
type Document struct {
	DenyDeprecated bool     `yaml:"deny_deprecated"`
	Forbidden      []string `yaml:"forbidden"`
	// MaxCurrentAgeDays denies installed releases older than this
	MaxCurrentAgeDays *int `yaml:"max_current_age_days"`
	// MaxMajorLag denies dependencies more than this many majors behind latest
	MaxMajorLag *int `yaml:"max_major_lag"`
}

// OPAEngine implements embedded OPA
type OPAEngine struct {
	regoCode string
	cooling  *config.CoolingConfig
}

// NewOPAEngine creates new engine
func NewOPAEngine() *OPAEngine {
	return &OPAEngine{}
}

// Rego returns the loaded module source.
func (e *OPAEngine) Rego() string { return e.regoCode }

// Cooling returns the cooling section of a YAML policy, or nil when absent.
func (e *OPAEngine) Cooling() *config.CoolingConfig { return e.cooling }

func (e *OPAEngine) Evaluate(ctx context.Context, input interface{}) (map[string]interface{}, error) {
	if e.regoCode == "" {
		return nil, fmt.Errorf("no policy loaded")
	}

	rs, err := rego.New(
		rego.Query(DenyQuery),
		rego.Input(input),
		rego.Module("policy.rego", e.regoCode),
	).Eval(ctx)
	if err != nil {
		return nil, err
	}

	result := map[string]interface{}{}
	for _, re := range rs {
		for _, expr := range re.Expressions {
			result[expr.Text] = expr.Value
		}
	}
	return result, nil
}

// Denials evaluates input and returns the deny messages, sorted.
func (e *OPAEngine) Denials(ctx context.Context, input interface{}) ([]string, error) {
	result, err := e.Evaluate(ctx, input)
	if err != nil {
		return nil, err
	}
	raw, _ := result[DenyQuery].([]interface{})
	denials := make([]string, 0, len(raw))
	for _, d := range raw {
		denials = append(denials, fmt.Sprint(d))
	}
	sort.Strings(denials)
	return denials, nil
}

// LoadPolicy reads a .rego module or a YAML policy from source.
func (e *OPAEngine) LoadPolicy(source string) error {
	cleanPath, err := safeio.CleanUserPath(source)
	if err != nil {
		return fmt.Errorf("invalid policy path: %w", err)
	}
	absPath, err := filepath.Abs(cleanPath)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	data, err := safeio.ReadFileContained(filepath.Dir(absPath), absPath)
	if err != nil {
		return fmt.Errorf("policy file not accessible: %w", err)
	}

	if strings.EqualFold(filepath.Ext(absPath), ".rego") {
		e.regoCode = string(data)
		e.cooling = nil
		return nil
	}
	return e.LoadPolicyBytes(data)
}

// LoadPolicyBytes loads a YAML policy.
func (e *OPAEngine) LoadPolicyBytes(data []byte) error {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse policy: %w", err)
	}
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse policy: %w", err)
	}
	cooling, err := ParseCoolingConfig(raw)
	if err != nil {
		return err
	}

	e.regoCode = transpileToRego(doc)
	e.cooling = cooling
	return nil
}

// transpileToRego converts a YAML policy to a Rego module
func transpileToRego(doc Document) string {
	var buf bytes.Buffer

	buf.WriteString("package pkgscout.outdated\n\n")
	if doc.DenyDeprecated {
		buf.WriteString("deprecated(dep) if {\n  dep.current.deprecated\n}\n\n")
		buf.WriteString("deprecated(dep) if {\n  dep.latest.deprecated\n}\n\n")
		buf.WriteString("deny contains msg if {\n")
		buf.WriteString("  dep := input.dependencies[_]\n")
		buf.WriteString("  deprecated(dep)\n")
		buf.WriteString("  msg := sprintf(\"%s: %s@%s is deprecated\", [dep.project, dep.name, dep.current.version])\n")
		buf.WriteString("}\n\n")
	}

	if len(doc.Forbidden) > 0 {
		buf.WriteString("forbidden := ")
		buf.WriteString(formatRegoArray(doc.Forbidden))
		buf.WriteString("\n\n")
		buf.WriteString("deny contains msg if {\n")
		buf.WriteString("  dep := input.dependencies[_]\n")
		buf.WriteString("  pattern := forbidden[_]\n")
		buf.WriteString("  glob.match(pattern, [\"/\"], dep.name)\n")
		buf.WriteString("  msg := sprintf(\"%s: %s matches forbidden pattern %s\", [dep.project, dep.name, pattern])\n")
		buf.WriteString("}\n\n")
	}

	if doc.MaxCurrentAgeDays != nil {
		limit := *doc.MaxCurrentAgeDays
		buf.WriteString("deny contains msg if {\n")
		buf.WriteString("  dep := input.dependencies[_]\n")
		fmt.Fprintf(&buf, "  dep.current.age_days > %d\n", limit)
		fmt.Fprintf(&buf, "  msg := sprintf(\"%%s: %%s@%%s is %%d days old (maximum: %d)\", [dep.project, dep.name, dep.current.version, dep.current.age_days])\n", limit)
		buf.WriteString("}\n\n")
	}

	if doc.MaxMajorLag != nil {
		limit := *doc.MaxMajorLag
		buf.WriteString("deny contains msg if {\n")
		buf.WriteString("  dep := input.dependencies[_]\n")
		fmt.Fprintf(&buf, "  dep.major_lag > %d\n", limit)
		fmt.Fprintf(&buf, "  msg := sprintf(\"%%s: %%s is %%d major versions behind (%%s -> %%s, maximum: %d)\", [dep.project, dep.name, dep.major_lag, dep.current.version, dep.latest.version])\n", limit)
		buf.WriteString("}\n\n")
	}

	return buf.String()
}

// formatRegoArray converts a []string to a properly quoted Rego array
// e.g. [request, @legacy/*] -> ["request", "@legacy/*"]
func formatRegoArray(arr []string) string {
	parts := make([]string, 0, len(arr))
	for _, item := range arr {
		parts = append(parts, fmt.Sprintf("%q", item))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
