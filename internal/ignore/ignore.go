// Package ignore decides which temporary files are protected from the
// sweeper: doublestar patterns from the config plus an optional
// gitignore-style file.
package ignore

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	gitignore "github.com/sabhiram/go-gitignore"
)

type Matcher struct {
	patterns []string
	file     *gitignore.GitIgnore
}

// New compiles the exclude patterns and, if ignoreFile is set and exists,
// the ignore file. A missing ignore file is not an error.
func New(patterns []string, ignoreFile string) (*Matcher, error) {
	m := &Matcher{}

	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid exclude pattern %q", pattern)
		}
		m.patterns = append(m.patterns, pattern)
	}

	if strings.TrimSpace(ignoreFile) != "" {
		if _, err := os.Stat(ignoreFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("stat %s: %w", ignoreFile, err)
			}
		} else {
			compiled, err := gitignore.CompileIgnoreFile(ignoreFile)
			if err != nil {
				return nil, fmt.Errorf("compile %s: %w", ignoreFile, err)
			}
			m.file = compiled
		}
	}

	return m, nil
}

// Empty reports whether the matcher protects nothing.
func (m *Matcher) Empty() bool {
	return m == nil || (len(m.patterns) == 0 && m.file == nil)
}

// Match reports whether path must be kept.
func (m *Matcher) Match(path string) bool {
	if m == nil {
		return false
	}
	for _, pattern := range m.patterns {
		if ok, _ := doublestar.Match(pattern, path); ok {
			return true
		}
	}
	return m.file != nil && m.file.MatchesPath(path)
}
