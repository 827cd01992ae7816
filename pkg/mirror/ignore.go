package mirror

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"

	"github.com/sidkik/dirmirror/pkg/errors"
)

// IgnoreSet decides which entries are never mirrored. Entries are matched on
// their base name only. It's safe for concurrent use once constructed.
type IgnoreSet struct {
	names    map[string]struct{}
	patterns []glob.Glob
}

// NewIgnoreSet returns an IgnoreSet matching any of the exact `names` and any
// of the glob `patterns` (e.g. `*.swp`).
func NewIgnoreSet(names, patterns []string) (IgnoreSet, error) {
	set := IgnoreSet{names: map[string]struct{}{}}
	for _, name := range names {
		set.names[name] = struct{}{}
	}

	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}

		g, err := glob.Compile(pattern)
		if err != nil {
			return IgnoreSet{}, errors.WithContext(err,
				fmt.Sprintf("compile ignore pattern %q", pattern))
		}
		set.patterns = append(set.patterns, g)
	}
	return set, nil
}

// IsIgnored returns whether the base name of `path` is ignored.
func (set IgnoreSet) IsIgnored(path string) bool {
	name := filepath.Base(path)
	if _, ok := set.names[name]; ok {
		return true
	}

	for _, pattern := range set.patterns {
		if pattern.Match(name) {
			return true
		}
	}
	return false
}
