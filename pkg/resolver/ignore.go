package resolver

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// defaultIgnore covers editor backups, compiled artifacts and version
// control metadata.
var defaultIgnore = []string{"*~", "*.pyc", "*.o", ".svn"}

// IgnoreSet decides which files and directories are excluded from every
// file enumeration (install copies, the TAGS input set, ...).
type IgnoreSet struct {
	Patterns []string
}

// NewIgnoreSet returns the default ignore set extended by the given
// patterns.
func NewIgnoreSet(extra ...string) *IgnoreSet {
	patterns := make([]string, 0, len(defaultIgnore)+len(extra))
	patterns = append(patterns, defaultIgnore...)
	patterns = append(patterns, extra...)

	return &IgnoreSet{Patterns: patterns}
}

// Match reports whether any component of the given path matches one of the
// ignore patterns. A pattern like ".svn" therefore excludes the whole
// subtree below any .svn directory.
func (s *IgnoreSet) Match(path string) bool {
	path = filepath.ToSlash(path)
	for _, part := range strings.Split(path, "/") {
		if part == "" {
			continue
		}

		for _, pattern := range s.Patterns {
			ok, err := doublestar.Match(pattern, part)
			if err == nil && ok {
				return true
			}
		}
	}

	return false
}
