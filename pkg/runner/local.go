package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/fulmenhq/pkgscout/pkg/logger"
)

// LocalRunner runs commands found on PATH.
type LocalRunner struct {
	// Env contains additional environment variables (KEY=VALUE)
	Env []string
}

// NewLocalRunner creates a runner for locally installed binaries.
func NewLocalRunner() *LocalRunner {
	return &LocalRunner{}
}

// Run executes the command and waits for it to finish.
func (r *LocalRunner) Run(ctx context.Context, c Command) (*Result, error) {
	path, err := exec.LookPath(c.Name)
	if err != nil {
		return nil, fmt.Errorf("%s not found in PATH: %w", c.Name, err)
	}

	// #nosec G204 - binary resolved via LookPath, args built by pkgscout
	cmd := exec.CommandContext(ctx, path, c.Args...)
	if c.Dir != "" {
		cmd.Dir = c.Dir
	}
	cmd.Env = append(os.Environ(), r.Env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err = cmd.Run()
	logger.Trace("Executed command",
		logger.String("command", c.String()),
		logger.String("dir", c.Dir),
		logger.Duration("took", time.Since(start)))

	result := &Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s: %w", c.String(), ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return nil, fmt.Errorf("failed to execute %s: %w", c.String(), err)
	}

	return result, nil
}
