package report

import (
	_ "embed"
	"fmt"

	"github.com/aymerick/raymond"
)

//go:embed templates/report.md.hbs
var markdownTemplate string

func formatMarkdown(r *Report) (string, error) {
	tpl, err := raymond.Parse(markdownTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse markdown template: %w", err)
	}
	tpl.RegisterHelper("deprecated", func(flag interface{}) string {
		if raymond.IsTrue(flag) {
			return " (deprecated)"
		}
		return ""
	})

	out, err := tpl.Exec(markdownContext(r))
	if err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return out, nil
}

// markdownContext flattens the report into template-friendly maps.
func markdownContext(r *Report) map[string]interface{} {
	projects := make([]map[string]interface{}, 0, len(r.Projects))
	for _, p := range r.Projects {
		deps := make([]map[string]interface{}, 0, len(p.Dependencies))
		for _, d := range p.Dependencies {
			deps = append(deps, map[string]interface{}{
				"name":              d.Name,
				"type":              string(d.Kind),
				"current":           d.Current.Version,
				"currentDeprecated": d.Current.Deprecated,
				"currentDate":       formatDate(d.Current.Date),
				"latest":            d.Latest.Version,
				"latestDeprecated":  d.Latest.Deprecated,
				"latestDate":        formatDate(d.Latest.Date),
			})
		}
		projects = append(projects, map[string]interface{}{
			"name":           p.Project.Name,
			"path":           p.Project.Path,
			"packageManager": string(p.Project.PackageManager),
			"error":          p.Error,
			"dependencies":   deps,
		})
	}

	var findings []map[string]interface{}
	for _, f := range r.Cooling {
		for _, v := range f.Violations {
			findings = append(findings, map[string]interface{}{
				"severity": string(v.Severity),
				"project":  f.Project,
				"message":  v.Message,
			})
		}
	}

	return map[string]interface{}{
		"generatedAt":  r.GeneratedAt.UTC().Format("2006-01-02 15:04 MST"),
		"root":         r.Root,
		"outdated":     r.OutdatedCount(),
		"projectCount": len(r.Projects),
		"projects":     projects,
		"cooling":      findings,
		"denials":      r.PolicyDenials,
	}
}
