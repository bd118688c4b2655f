// Package ownership enforces each task's declared owned_paths: a list of
// globs a task is allowed to write within. Patterns are tried in list order
// and the first match wins. Glob evaluation is delegated to
// bmatcuk/doublestar/v4 rather than the hand-rolled prefix/suffix cases
// internal/permission/wildcard.go uses for bash command patterns, since
// owned_paths needs real ** (any depth) semantics over filesystem paths.
package ownership

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Decision is the result of matching one path against a task's owned_paths.
type Decision struct {
	Allowed bool
	Pattern string // the owned_paths glob that matched, if Allowed
	Reason  string // why it was denied, if not Allowed
}

// CheckPathOwnership reports whether path falls under one of owned's globs.
// An empty owned list means no restriction: everything is allowed.
func CheckPathOwnership(taskID string, owned []string, path string) Decision {
	if len(owned) == 0 {
		return Decision{Allowed: true}
	}

	clean := filepath.ToSlash(filepath.Clean(path))
	for _, pattern := range owned {
		if matchGlob(pattern, clean) {
			return Decision{Allowed: true, Pattern: pattern}
		}
	}
	return Decision{
		Allowed: false,
		Reason:  "path " + path + " is outside task " + taskID + "'s declared owned_paths",
	}
}

func matchGlob(pattern, path string) bool {
	if pattern == "**" || pattern == "*" {
		return true
	}
	matched, err := doublestar.Match(pattern, path)
	if err != nil {
		return false
	}
	return matched
}

// CheckOwnershipOverlap detects prefix/wildcard collisions between two
// tasks' owned_paths sets and returns the colliding patterns. The task
// claim paths in this repository do not call it.
func CheckOwnershipOverlap(a, b []string) []string {
	if len(a) == 0 || len(b) == 0 {
		// An empty list means "no restriction", which trivially overlaps
		// with anything the other task owns.
		if len(a) == 0 && len(b) == 0 {
			return []string{"**"}
		}
		if len(a) == 0 {
			return append([]string(nil), b...)
		}
		return append([]string(nil), a...)
	}

	var overlaps []string
	seen := make(map[string]bool)
	for _, pa := range a {
		for _, pb := range b {
			if globsOverlap(pa, pb) && !seen[pa+"|"+pb] {
				seen[pa+"|"+pb] = true
				overlaps = append(overlaps, pa)
			}
		}
	}
	return overlaps
}

// globsOverlap reports whether two glob patterns could both match at least
// one common path. Exact equality and literal-prefix containment are
// checked directly; a pattern containing a wildcard is treated as
// potentially overlapping with anything sharing its literal prefix, which
// is conservative (may flag overlaps that do not materialize) rather than
// permissive, since a false conflict is only a spurious report while a
// missed one lets two tasks write the same file.
func globsOverlap(a, b string) bool {
	if a == b {
		return true
	}
	pa, wildA := staticPrefix(a)
	pb, wildB := staticPrefix(b)

	switch {
	case wildA && wildB:
		return strings.HasPrefix(pa, pb) || strings.HasPrefix(pb, pa)
	case wildA:
		return strings.HasPrefix(b, pa)
	case wildB:
		return strings.HasPrefix(a, pb)
	default:
		return a == b
	}
}

// staticPrefix returns the portion of pattern before its first wildcard
// character, and whether a wildcard was present at all.
func staticPrefix(pattern string) (string, bool) {
	if i := strings.IndexAny(pattern, "*?["); i >= 0 {
		return pattern[:i], true
	}
	return pattern, false
}

// FilesOutsideOwnership returns the subset of files not covered by owned.
func FilesOutsideOwnership(taskID string, owned []string, files []string) []string {
	var out []string
	for _, f := range files {
		if !CheckPathOwnership(taskID, owned, f).Allowed {
			out = append(out, f)
		}
	}
	return out
}

// ExpandOwnedPaths appends newPatterns to owned idempotently, preserving
// owned's original order and skipping patterns already present.
func ExpandOwnedPaths(owned []string, newPatterns ...string) []string {
	seen := make(map[string]bool, len(owned))
	for _, p := range owned {
		seen[p] = true
	}
	out := append([]string(nil), owned...)
	for _, p := range newPatterns {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}
