// Package report renders scan results as a table, JSON, YAML, Markdown or
// JUnit XML.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fulmenhq/pkgscout/pkg/cooling"
	"github.com/fulmenhq/pkgscout/pkg/dependencies/types"
)

// OutputFormat represents the format for report output
type OutputFormat string

const (
	FormatTable    OutputFormat = "table"
	FormatJSON     OutputFormat = "json"
	FormatYAML     OutputFormat = "yaml"
	FormatMarkdown OutputFormat = "markdown"
	FormatXML      OutputFormat = "xml"
)

// Formats lists every supported output format.
var Formats = []OutputFormat{FormatTable, FormatJSON, FormatYAML, FormatMarkdown, FormatXML}

// ParseFormat accepts a format name or a common alias (md, junit, yml).
func ParseFormat(s string) (OutputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "table", "text":
		return FormatTable, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "xml", "junit":
		return FormatXML, nil
	default:
		return "", fmt.Errorf("unknown format %q (expected table, json, yaml, markdown or xml)", s)
	}
}

// Report is the result of one outdated scan.
type Report struct {
	GeneratedAt   time.Time             `json:"generated_at" yaml:"generated_at"`
	Root          string                `json:"root" yaml:"root"`
	Projects      []types.ProjectReport `json:"projects" yaml:"projects"`
	Cooling       []cooling.Finding     `json:"cooling,omitempty" yaml:"cooling,omitempty"`
	PolicyDenials []string              `json:"policy_denials,omitempty" yaml:"policy_denials,omitempty"`
}

// OutdatedCount returns the number of outdated dependencies across projects.
func (r *Report) OutdatedCount() int {
	n := 0
	for _, p := range r.Projects {
		n += len(p.Dependencies)
	}
	return n
}

// FailedProjects returns the reports whose scan failed.
func (r *Report) FailedProjects() []types.ProjectReport {
	var failed []types.ProjectReport
	for _, p := range r.Projects {
		if p.Error != "" {
			failed = append(failed, p)
		}
	}
	return failed
}

// Formatter renders reports in one format.
type Formatter struct {
	format OutputFormat
}

// NewFormatter creates a formatter for format.
func NewFormatter(format OutputFormat) *Formatter {
	return &Formatter{format: format}
}

// FormatReport renders r.
func (f *Formatter) FormatReport(r *Report) (string, error) {
	switch f.format {
	case FormatTable:
		return formatTable(r), nil
	case FormatJSON:
		return formatJSON(r)
	case FormatYAML:
		return formatYAML(r)
	case FormatMarkdown:
		return formatMarkdown(r)
	case FormatXML:
		return formatJUnit(r)
	default:
		return "", fmt.Errorf("unsupported format: %s", f.format)
	}
}

// WriteReport renders r to w.
func (f *Formatter) WriteReport(w io.Writer, r *Report) error {
	out, err := f.FormatReport(r)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}

// FormatProjects renders a discovery result. Only table, json and yaml apply.
func (f *Formatter) FormatProjects(projects []types.Project) (string, error) {
	if projects == nil {
		projects = []types.Project{}
	}
	switch f.format {
	case FormatTable:
		return formatProjectsTable(projects), nil
	case FormatJSON:
		return formatJSON(projects)
	case FormatYAML:
		return formatYAML(projects)
	default:
		return "", fmt.Errorf("format %s is not supported for project listings", f.format)
	}
}

func formatJSON(v interface{}) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(data) + "\n", nil
}

func formatYAML(v interface{}) (string, error) {
	var sb strings.Builder
	enc := yaml.NewEncoder(&sb)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("failed to marshal YAML: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02")
}

func formatVersion(r types.Release) string {
	if r.Deprecated {
		return r.Version + " (deprecated)"
	}
	return r.Version
}
