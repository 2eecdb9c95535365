// Package cooling flags upgrades to releases that are too fresh to trust or
// that their maintainers have deprecated.
package cooling

import (
	"fmt"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/fulmenhq/pkgscout/pkg/config"
	"github.com/fulmenhq/pkgscout/pkg/dependencies/types"
)

// Checker validates outdated dependencies against the cooling policy
type Checker struct {
	config config.CoolingConfig
	now    func() time.Time
}

// NewChecker creates a new cooling checker
func NewChecker(cfg config.CoolingConfig) *Checker {
	return &Checker{config: cfg, now: time.Now}
}

// WithClock replaces the checker's clock.
func (c *Checker) WithClock(now func() time.Time) *Checker {
	c.now = now
	return c
}

// Violation represents a cooling policy violation
type Violation struct {
	Type     ViolationType `json:"type" yaml:"type"`
	Severity Severity      `json:"severity" yaml:"severity"`
	Message  string        `json:"message" yaml:"message"`
	Actual   interface{}   `json:"actual,omitempty" yaml:"actual,omitempty"`
	Expected interface{}   `json:"expected,omitempty" yaml:"expected,omitempty"`
}

type ViolationType string

const (
	AgeViolation        ViolationType = "age_violation"
	DeprecatedViolation ViolationType = "deprecated_violation"
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// CheckResult contains the result of cooling policy check
type CheckResult struct {
	Passed      bool
	Violations  []Violation
	IsException bool
}

// Finding ties violations to the dependency and project they were found in.
type Finding struct {
	Project    string      `json:"project" yaml:"project"`
	Path       string      `json:"path" yaml:"path"`
	Package    string      `json:"package" yaml:"package"`
	Latest     string      `json:"latest" yaml:"latest"`
	Violations []Violation `json:"violations" yaml:"violations"`
}

// Check validates the latest release of dep, the upgrade target.
func (c *Checker) Check(dep *types.Dependency) (*CheckResult, error) {
	if dep == nil {
		return nil, fmt.Errorf("nil dependency")
	}
	if !c.config.Enabled {
		return &CheckResult{Passed: true}, nil
	}

	if c.isException(dep.Name) {
		return &CheckResult{
			Passed:      true,
			IsException: true,
		}, nil
	}

	var violations []Violation

	// No date means no age data; assume it passes
	if !dep.Latest.Date.IsZero() {
		ageDays := int(c.now().Sub(dep.Latest.Date).Hours() / 24)
		if ageDays < c.config.MinAgeDays {
			violations = append(violations, Violation{
				Type:     AgeViolation,
				Severity: SeverityHigh,
				Message: fmt.Sprintf("Package %s (%s) is only %d days old (minimum: %d days)",
					dep.Name, dep.Latest.Version, ageDays, c.config.MinAgeDays),
				Actual:   ageDays,
				Expected: c.config.MinAgeDays,
			})
		}
	}

	// npm flags the installed release, pnpm and yarn flag the latest one
	if dep.Current.Deprecated || dep.Latest.Deprecated {
		violations = append(violations, Violation{
			Type:     DeprecatedViolation,
			Severity: SeverityMedium,
			Message:  fmt.Sprintf("Package %s (%s) is deprecated", dep.Name, dep.Latest.Version),
		})
	}

	return &CheckResult{
		Passed:     len(violations) == 0,
		Violations: violations,
	}, nil
}

// CheckReports runs Check over every dependency in reports and returns the
// failures in report order.
func (c *Checker) CheckReports(reports []types.ProjectReport) ([]Finding, error) {
	var findings []Finding
	for _, r := range reports {
		for i := range r.Dependencies {
			dep := &r.Dependencies[i]
			result, err := c.Check(dep)
			if err != nil {
				return nil, err
			}
			if result.Passed {
				continue
			}
			findings = append(findings, Finding{
				Project:    r.Project.Name,
				Path:       r.Project.Path,
				Package:    dep.Name,
				Latest:     dep.Latest.Version,
				Violations: result.Violations,
			})
		}
	}
	return findings, nil
}

// isException checks if package matches exception patterns
func (c *Checker) isException(pkgName string) bool {
	for _, exc := range c.config.Exceptions {
		if !matchesPattern(pkgName, exc.Pattern) {
			continue
		}
		if exc.Until != "" {
			until, err := time.Parse("2006-01-02", exc.Until)
			if err == nil && c.now().After(until) {
				continue // expired
			}
		}
		return true
	}
	return false
}

// matchesPattern matches npm package names; "@scope/*" covers every package
// in the scope.
func matchesPattern(pkgName, pattern string) bool {
	matched, err := doublestar.Match(pattern, pkgName)
	return err == nil && matched
}
