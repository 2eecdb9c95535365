package runner

import (
	"context"
	"fmt"
	"sync"
)

// Fake is a scripted Runner for tests. Responses are registered per command
// line, optionally scoped to a working directory. When several responses are
// registered for the same key they are returned in order and the last one
// repeats.
type Fake struct {
	mu        sync.Mutex
	responses map[string][]*Result
	errors    map[string]error
	calls     []Command
}

// NewFake creates an empty fake runner.
func NewFake() *Fake {
	return &Fake{
		responses: make(map[string][]*Result),
		errors:    make(map[string]error),
	}
}

func fakeKey(dir, cmdline string) string {
	if dir == "" {
		return cmdline
	}
	return dir + "|" + cmdline
}

// AddResponse registers output for a command line in any directory.
func (f *Fake) AddResponse(cmdline string, exitCode int, stdout, stderr string) *Fake {
	return f.AddResponseIn("", cmdline, exitCode, stdout, stderr)
}

// AddResponseIn registers output for a command line run in dir.
func (f *Fake) AddResponseIn(dir, cmdline string, exitCode int, stdout, stderr string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := fakeKey(dir, cmdline)
	f.responses[key] = append(f.responses[key], &Result{ExitCode: exitCode, Stdout: stdout, Stderr: stderr})
	return f
}

// AddError makes a command line fail to start.
func (f *Fake) AddError(cmdline string, err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors[cmdline] = err
	return f
}

// Run implements Runner.
func (f *Fake) Run(ctx context.Context, c Command) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, c)
	cmdline := c.String()

	if err, ok := f.errors[cmdline]; ok {
		return nil, err
	}

	for _, key := range []string{fakeKey(c.Dir, cmdline), cmdline} {
		queue, ok := f.responses[key]
		if !ok || len(queue) == 0 {
			continue
		}
		res := queue[0]
		if len(queue) > 1 {
			f.responses[key] = queue[1:]
		}
		copied := *res
		return &copied, nil
	}

	return &Result{
		ExitCode: 127,
		Stderr:   fmt.Sprintf("fake: no response registered for %q", cmdline),
	}, nil
}

// Calls returns the commands executed so far.
func (f *Fake) Calls() []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Command, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallCount returns how many times a command line was executed.
func (f *Fake) CallCount(cmdline string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.String() == cmdline {
			n++
		}
	}
	return n
}
