package report

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/beevik/etree"
)

// formatJUnit renders one testsuite per project in which every outdated
// dependency is a failing testcase, so CI systems can surface upgrades.
func formatJUnit(r *Report) (string, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	suites := doc.CreateElement("testsuites")
	suites.CreateAttr("name", "pkgscout")
	suites.CreateAttr("timestamp", r.GeneratedAt.UTC().Format("2006-01-02T15:04:05Z"))

	totalTests, totalFailures, totalErrors := 0, 0, 0
	for _, p := range r.Projects {
		suite := suites.CreateElement("testsuite")
		suite.CreateAttr("name", p.Project.Name)

		props := suite.CreateElement("properties")
		addProperty(props, "path", p.Project.Path)
		addProperty(props, "packageManager", string(p.Project.PackageManager))

		tests, failures, errs := 0, 0, 0
		switch {
		case p.Error != "":
			tc := newTestcase(suite, p.Project.Name, "scan")
			e := tc.CreateElement("error")
			e.CreateAttr("message", p.Error)
			tests, errs = 1, 1
		case len(p.Dependencies) == 0:
			newTestcase(suite, p.Project.Name, "up-to-date")
			tests = 1
		default:
			for _, d := range p.Dependencies {
				tc := newTestcase(suite, p.Project.Name, d.Name)
				failure := tc.CreateElement("failure")
				failure.CreateAttr("type", "outdated")
				failure.CreateAttr("message", fmt.Sprintf("%s %s -> %s", d.Name, d.Current.Version, d.Latest.Version))
				failure.SetText(fmt.Sprintf("type: %s\ncurrent: %s (released %s)\nlatest: %s (released %s)",
					d.Kind, formatVersion(d.Current), formatDate(d.Current.Date),
					formatVersion(d.Latest), formatDate(d.Latest.Date)))
				tests++
				failures++
			}
		}
		setCounts(suite, tests, failures, errs)
		totalTests += tests
		totalFailures += failures
		totalErrors += errs
	}

	if len(r.Cooling) > 0 {
		suite := suites.CreateElement("testsuite")
		suite.CreateAttr("name", "cooling")
		n := 0
		for _, f := range r.Cooling {
			for _, v := range f.Violations {
				tc := newTestcase(suite, f.Project, f.Package)
				failure := tc.CreateElement("failure")
				failure.CreateAttr("type", string(v.Type))
				failure.CreateAttr("message", v.Message)
				n++
			}
		}
		setCounts(suite, n, n, 0)
		totalTests += n
		totalFailures += n
	}

	if len(r.PolicyDenials) > 0 {
		suite := suites.CreateElement("testsuite")
		suite.CreateAttr("name", "policy")
		for i, d := range r.PolicyDenials {
			tc := newTestcase(suite, "policy", "deny-"+strconv.Itoa(i+1))
			failure := tc.CreateElement("failure")
			failure.CreateAttr("type", "policy")
			failure.CreateAttr("message", d)
		}
		n := len(r.PolicyDenials)
		setCounts(suite, n, n, 0)
		totalTests += n
		totalFailures += n
	}

	setCounts(suites, totalTests, totalFailures, totalErrors)

	doc.Indent(2)
	var buf bytes.Buffer
	if _, err := doc.WriteTo(&buf); err != nil {
		return "", fmt.Errorf("failed to write XML: %w", err)
	}
	return buf.String(), nil
}

func newTestcase(suite *etree.Element, classname, name string) *etree.Element {
	tc := suite.CreateElement("testcase")
	tc.CreateAttr("classname", classname)
	tc.CreateAttr("name", name)
	return tc
}

func addProperty(props *etree.Element, name, value string) {
	p := props.CreateElement("property")
	p.CreateAttr("name", name)
	p.CreateAttr("value", value)
}

func setCounts(e *etree.Element, tests, failures, errs int) {
	e.CreateAttr("tests", strconv.Itoa(tests))
	e.CreateAttr("failures", strconv.Itoa(failures))
	e.CreateAttr("errors", strconv.Itoa(errs))
}
