// Package types holds the data model shared by discovery, the package-manager
// strategies and the report writers.
package types

import (
	"errors"
	"fmt"
	"time"
)

// Ecosystem tags every project and dependency produced by pkgscout.
const Ecosystem = "NPM"

// ManifestFile is the manifest consulted in every project root.
const ManifestFile = "package.json"

// PackageManager identifies the tool governing a project root
type PackageManager string

const (
	PackageManagerNpm  PackageManager = "npm"
	PackageManagerYarn PackageManager = "yarn"
	PackageManagerPnpm PackageManager = "pnpm"
)

// PackageManagers lists the supported managers in detection priority order.
var PackageManagers = []PackageManager{PackageManagerNpm, PackageManagerYarn, PackageManagerPnpm}

// Lockfiles maps recognized lockfile names to the manager that writes them.
// Names are matched exactly and case-sensitively.
var Lockfiles = map[string]PackageManager{
	"package-lock.json": PackageManagerNpm,
	"yarn.lock":         PackageManagerYarn,
	"pnpm-lock.yaml":    PackageManagerPnpm,
}

// Kind is the manifest section a dependency is declared in.
type Kind string

const (
	KindProd Kind = "PROD"
	KindDev  Kind = "DEV"
)

// Valid reports whether k is one of the recognized kinds.
func (k Kind) Valid() bool {
	return k == KindProd || k == KindDev
}

// Project is a package-manager-governed unit found on disk.
type Project struct {
	Name           string         `json:"name" yaml:"name"`
	Description    string         `json:"description,omitempty" yaml:"description,omitempty"`
	Path           string         `json:"path" yaml:"path"`
	Ecosystem      string         `json:"ecosystem" yaml:"ecosystem"`
	PackageManager PackageManager `json:"packageManager,omitempty" yaml:"packageManager,omitempty"`
	// Workspaces is non-nil (possibly empty) for roots and nil for workspaces
	Workspaces []Project `json:"workspaces,omitempty" yaml:"workspaces,omitempty"`
}

// IsRoot reports whether p was discovered from a lockfile rather than
// enumerated as a workspace of another project.
func (p Project) IsRoot() bool {
	return p.Workspaces != nil
}

// Release is one published version of a package.
type Release struct {
	Version    string `json:"version" yaml:"version"`
	Deprecated bool   `json:"deprecated" yaml:"deprecated"`
	// Date is the publish time; the zero value means the registry had none
	Date time.Time `json:"date" yaml:"date"`
}

// Dependency is an outdated direct dependency of a project.
type Dependency struct {
	Name      string  `json:"name" yaml:"name"`
	Ecosystem string  `json:"ecosystem" yaml:"ecosystem"`
	Kind      Kind    `json:"type" yaml:"type"`
	Current   Release `json:"current" yaml:"current"`
	Latest    Release `json:"latest" yaml:"latest"`
}

var (
	ErrMissingName    = errors.New("dependency has no name")
	ErrUnknownKind    = errors.New("dependency has an unrecognized kind")
	ErrMissingVersion = errors.New("release has no version")
	ErrMissingDate    = errors.New("release has no publish date")
)

// Validate checks the shape every dependency must have before it leaves a
// scan.
func (d Dependency) Validate() error {
	if d.Name == "" {
		return ErrMissingName
	}
	if !d.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, d.Kind)
	}
	if err := d.Current.validate(); err != nil {
		return fmt.Errorf("current: %w", err)
	}
	if err := d.Latest.validate(); err != nil {
		return fmt.Errorf("latest: %w", err)
	}
	return nil
}

func (r Release) validate() error {
	if r.Version == "" {
		return ErrMissingVersion
	}
	if r.Date.IsZero() {
		return ErrMissingDate
	}
	return nil
}

// ProjectReport is the outcome of an outdated scan of one project.
type ProjectReport struct {
	Project      Project      `json:"project" yaml:"project"`
	Dependencies []Dependency `json:"dependencies" yaml:"dependencies"`
	// Error is set when the scan failed; Dependencies is then empty
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}
