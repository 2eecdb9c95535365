// Package ignore decides whether a directory met during project discovery is
// excluded by version control.
package ignore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"
	git "github.com/go-git/go-git/v5"
	gitignore "github.com/go-git/go-git/v5/plumbing/format/gitignore"

	"github.com/fulmenhq/pkgscout/pkg/logger"
	"github.com/fulmenhq/pkgscout/pkg/runner"
)

// Checker reports whether the entry name inside parentDir is ignored.
type Checker interface {
	IsIgnored(ctx context.Context, parentDir, name string) bool
}

// Modes accepted by New.
const (
	ModeGit     = "git"
	ModeBuiltin = "builtin"
	ModeNone    = "none"
)

// IgnoreFileName holds extra patterns honored by the builtin matcher.
const IgnoreFileName = ".pkgscoutignore"

// New returns the checker for mode. root is the discovery start directory;
// only the builtin matcher needs it.
func New(mode string, r runner.Runner, root string) (Checker, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", ModeGit:
		return NewGitChecker(r), nil
	case ModeBuiltin:
		return NewMatcher(root)
	case ModeNone:
		return Nop{}, nil
	default:
		return nil, fmt.Errorf("unknown ignore mode %q (expected git, builtin or none)", mode)
	}
}

// GitChecker asks the git binary. Exit code 0 from check-ignore means the
// path is ignored; anything else (including "not a repository") means it
// is not.
type GitChecker struct {
	runner runner.Runner
}

// NewGitChecker creates a checker that shells out through r.
func NewGitChecker(r runner.Runner) *GitChecker {
	return &GitChecker{runner: r}
}

func (g *GitChecker) IsIgnored(ctx context.Context, parentDir, name string) bool {
	res, err := g.runner.Run(ctx, runner.Command{
		Name: "git",
		Args: []string{"check-ignore", "-q", name},
		Dir:  parentDir,
	})
	if err != nil {
		logger.Debug("git check-ignore unavailable", logger.String("dir", parentDir), logger.Err(err))
		return false
	}
	return res.ExitCode == 0
}

// Nop never ignores anything.
type Nop struct{}

func (Nop) IsIgnored(context.Context, string, string) bool { return false }

// Matcher evaluates gitignore rules in process with go-git. Patterns are
// layered:
// 1. built-in defaults (.git, node_modules)
// 2. system and global git excludes
// 3. .gitignore files and .git/info/exclude in the worktree
// 4. .pkgscoutignore at the worktree root
// 5. ~/.pkgscout/.pkgscoutignore
type Matcher struct {
	root    string
	matcher gitignore.Matcher
}

// NewMatcher builds a matcher for the worktree containing start. When start is
// not inside a git repository, start itself is used as the root.
func NewMatcher(start string) (*Matcher, error) {
	abs, err := filepath.Abs(start)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", start, err)
	}

	root := abs
	if repo, err := git.PlainOpenWithOptions(abs, &git.PlainOpenOptions{DetectDotGit: true}); err == nil {
		if wt, err := repo.Worktree(); err == nil {
			root = wt.Filesystem.Root()
		}
	}

	var patterns []gitignore.Pattern
	for _, p := range []string{".git", "node_modules/"} {
		patterns = append(patterns, gitignore.ParsePattern(p, nil))
	}

	rootFS := osfs.New("/")
	if ps, err := gitignore.LoadSystemPatterns(rootFS); err == nil {
		patterns = append(patterns, ps...)
	}
	if ps, err := gitignore.LoadGlobalPatterns(rootFS); err == nil {
		patterns = append(patterns, ps...)
	}

	// ReadPatterns walks the worktree for nested .gitignore files
	if ps, err := gitignore.ReadPatterns(osfs.New(root), nil); err == nil {
		patterns = append(patterns, ps...)
	} else {
		logger.Debug("Failed to read gitignore patterns", logger.String("root", root), logger.Err(err))
	}

	extra := []string{filepath.Join(root, IgnoreFileName)}
	if home, err := os.UserHomeDir(); err == nil {
		extra = append(extra, filepath.Join(home, ".pkgscout", IgnoreFileName))
	}
	for _, path := range extra {
		lines, err := readIgnoreFile(path)
		if err != nil {
			continue
		}
		for _, line := range lines {
			patterns = append(patterns, gitignore.ParsePattern(line, nil))
		}
	}

	return &Matcher{root: root, matcher: gitignore.NewMatcher(patterns)}, nil
}

// IsIgnored reports whether the directory parentDir/name is ignored. Paths
// outside the root are never ignored.
func (m *Matcher) IsIgnored(_ context.Context, parentDir, name string) bool {
	full, err := filepath.Abs(filepath.Join(parentDir, name))
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(m.root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	parts := splitPath(filepath.ToSlash(rel))
	if len(parts) == 0 {
		return false
	}
	return m.matcher.Match(parts, true)
}

// readIgnoreFile reads patterns from a .pkgscoutignore file
func readIgnoreFile(path string) ([]string, error) {
	cleaned := filepath.Clean(path)
	if filepath.Base(cleaned) != IgnoreFileName {
		return nil, fmt.Errorf("disallowed ignore file path: %s", cleaned)
	}
	content, err := os.ReadFile(cleaned) // #nosec G304 -- path cleaned and allowlisted
	if err != nil {
		return nil, err
	}

	var patterns []string
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns, nil
}

// splitPath converts a slash-separated path into components for go-git matching
func splitPath(path string) []string {
	if path == "" || path == "." {
		return nil
	}
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if part != "" && part != "." {
			result = append(result, part)
		}
	}
	return result
}
