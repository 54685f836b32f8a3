package recorder

import (
	"bufio"
	"os"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// IgnoreMatcher decides whether a path should never accrue attribution
// ranges, per a .gitattrignore file at the worktree root. This supplements
// spec.md's distillation with the ignore-pattern feature original_source
// carried (authorship/ignore_patterns.rs); syntax matches .gitignore, and
// matching is delegated to go-git's gitignore package rather than
// reimplementing glob semantics by hand.
type IgnoreMatcher struct {
	matcher gitignore.Matcher
}

// LoadIgnoreMatcher reads path (typically <toplevel>/.gitattrignore) and
// compiles its patterns. A missing file yields a matcher that ignores
// nothing.
func LoadIgnoreMatcher(path string) (*IgnoreMatcher, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &IgnoreMatcher{matcher: gitignore.NewMatcher(nil)}, nil
		}
		return nil, err
	}
	defer f.Close()

	var patterns []gitignore.Pattern
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, gitignore.ParsePattern(line, nil))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return &IgnoreMatcher{matcher: gitignore.NewMatcher(patterns)}, nil
}

// Match reports whether relPath (worktree-relative, '/'-separated) should be
// excluded from attribution tracking.
func (m *IgnoreMatcher) Match(relPath string) bool {
	if m == nil {
		return false
	}
	parts := strings.Split(relPath, "/")
	return m.matcher.Match(parts, false)
}
