package policy

import (
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/fulmenhq/pkgscout/pkg/dependencies/types"
)

// Input is the document policies are evaluated against.
type Input struct {
	GeneratedAt  string            `json:"generated_at"`
	Dependencies []InputDependency `json:"dependencies"`
}

// InputDependency flattens one outdated dependency with derived fields.
type InputDependency struct {
	Project  string       `json:"project"`
	Path     string       `json:"path"`
	Name     string       `json:"name"`
	Kind     types.Kind   `json:"type"`
	Current  InputRelease `json:"current"`
	Latest   InputRelease `json:"latest"`
	MajorLag int          `json:"major_lag"`
}

// InputRelease is a release with its age and major version. Major is -1 when
// the version is not semver.
type InputRelease struct {
	Version    string `json:"version"`
	Deprecated bool   `json:"deprecated"`
	AgeDays    int    `json:"age_days"`
	Major      int    `json:"major"`
}

// BuildInput converts scan reports into policy input.
func BuildInput(reports []types.ProjectReport, now time.Time) Input {
	in := Input{
		GeneratedAt:  now.UTC().Format(time.RFC3339),
		Dependencies: []InputDependency{},
	}
	for _, r := range reports {
		for _, d := range r.Dependencies {
			dep := InputDependency{
				Project: r.Project.Name,
				Path:    r.Project.Path,
				Name:    d.Name,
				Kind:    d.Kind,
				Current: inputRelease(d.Current, now),
				Latest:  inputRelease(d.Latest, now),
			}
			dep.MajorLag = MajorLag(d.Current.Version, d.Latest.Version)
			in.Dependencies = append(in.Dependencies, dep)
		}
	}
	return in
}

func inputRelease(r types.Release, now time.Time) InputRelease {
	out := InputRelease{
		Version:    r.Version,
		Deprecated: r.Deprecated,
		Major:      majorOf(r.Version),
	}
	if !r.Date.IsZero() {
		out.AgeDays = int(now.Sub(r.Date).Hours() / 24)
	}
	return out
}

// MajorLag returns how many major versions latest is ahead of current, or 0
// when either is not semver.
func MajorLag(current, latest string) int {
	c, l := majorOf(current), majorOf(latest)
	if c < 0 || l < 0 || l <= c {
		return 0
	}
	return l - c
}

func majorOf(version string) int {
	v, err := semver.NewVersion(version)
	if err != nil {
		return -1
	}
	return int(v.Major())
}
