package report

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/fulmenhq/pkgscout/pkg/dependencies/types"
)

// table lays out rows in columns sized by terminal display width.
type table struct {
	header []string
	rows   [][]string
}

func (t *table) add(cells ...string) {
	t.rows = append(t.rows, cells)
}

func (t *table) String() string {
	widths := make([]int, len(t.header))
	for i, h := range t.header {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if w := runewidth.StringWidth(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	var sb strings.Builder
	writeRow := func(cells []string) {
		for i, cell := range cells {
			if i == len(cells)-1 {
				sb.WriteString(cell)
				break
			}
			sb.WriteString(runewidth.FillRight(cell, widths[i]))
			sb.WriteString("  ")
		}
		sb.WriteString("\n")
	}
	writeRow(t.header)
	for _, row := range t.rows {
		writeRow(row)
	}
	return sb.String()
}

func formatTable(r *Report) string {
	var sb strings.Builder

	t := &table{header: []string{"PROJECT", "PACKAGE", "TYPE", "CURRENT", "RELEASED", "LATEST", "RELEASED"}}
	for _, p := range r.Projects {
		for _, d := range p.Dependencies {
			t.add(p.Project.Name, d.Name, string(d.Kind),
				formatVersion(d.Current), formatDate(d.Current.Date),
				formatVersion(d.Latest), formatDate(d.Latest.Date))
		}
	}
	if len(t.rows) > 0 {
		sb.WriteString(t.String())
	} else {
		sb.WriteString("All dependencies are up to date.\n")
	}

	if failed := r.FailedProjects(); len(failed) > 0 {
		sb.WriteString("\nScan errors:\n")
		for _, p := range failed {
			fmt.Fprintf(&sb, "  %s (%s): %s\n", p.Project.Name, p.Project.Path, p.Error)
		}
	}

	if len(r.Cooling) > 0 {
		sb.WriteString("\nCooling:\n")
		for _, f := range r.Cooling {
			for _, v := range f.Violations {
				fmt.Fprintf(&sb, "  [%s] %s: %s\n", v.Severity, f.Project, v.Message)
			}
		}
	}

	if len(r.PolicyDenials) > 0 {
		sb.WriteString("\nPolicy denials:\n")
		for _, d := range r.PolicyDenials {
			fmt.Fprintf(&sb, "  %s\n", d)
		}
	}

	fmt.Fprintf(&sb, "\n%d outdated %s in %d %s\n",
		r.OutdatedCount(), plural(r.OutdatedCount(), "dependency", "dependencies"),
		len(r.Projects), plural(len(r.Projects), "project", "projects"))
	return sb.String()
}

func formatProjectsTable(projects []types.Project) string {
	if len(projects) == 0 {
		return "No projects found.\n"
	}
	t := &table{header: []string{"NAME", "MANAGER", "WORKSPACES", "PATH"}}
	for _, p := range projects {
		t.add(p.Name, string(p.PackageManager), strconv.Itoa(len(p.Workspaces)), p.Path)
		for _, ws := range p.Workspaces {
			t.add("  "+ws.Name, "", "", ws.Path)
		}
	}
	return t.String()
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
