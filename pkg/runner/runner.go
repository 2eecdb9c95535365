/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/

// Package runner executes package-manager binaries and captures their output.
//
// A non-zero exit status is not an error at this layer: package managers use
// exit codes to signal "outdated packages exist" or "unknown subcommand", so
// callers inspect Result.ExitCode and decide. Run only returns an error when the
// process could not be started or was cancelled.
package runner

import (
	"context"
	"fmt"
	"strings"
)

// Command describes one external process invocation.
type Command struct {
	// Name of the binary (e.g., "npm", "yarn")
	Name string

	// Args passed to the binary
	Args []string

	// Dir is the working directory (defaults to the current directory)
	Dir string
}

// String renders the command line the way a user would type it.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Result contains the output of a finished process.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Success reports whether the process exited with status 0.
func (r *Result) Success() bool {
	return r != nil && r.ExitCode == 0
}

// Runner executes external commands.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// ExecError is returned when a command exited non-zero where success was required.
type ExecError struct {
	Command  string
	ExitCode int
	Stdout   string
	Stderr   string
}

// NewExecError builds an ExecError from a command and its result.
func NewExecError(cmd Command, res *Result) *ExecError {
	e := &ExecError{Command: cmd.String()}
	if res != nil {
		e.ExitCode = res.ExitCode
		e.Stdout = res.Stdout
		e.Stderr = res.Stderr
	}
	return e
}

func (e *ExecError) Error() string {
	msg := fmt.Sprintf("command %q failed with exit code %d", e.Command, e.ExitCode)
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		if idx := strings.Index(stderr, "\n"); idx > 0 {
			stderr = stderr[:idx]
		}
		msg += ": " + stderr
	}
	return msg
}
