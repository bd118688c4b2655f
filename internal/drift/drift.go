// Package drift parses a repo's FEATURES.md for checklist-style
// ✅-marked entries and reports ones with no matching identifier anywhere
// in the repo's source tree, persisting the result per repo.
//
// Uses a line-oriented scanning idiom (a regex per recognized marker) to
// treat a checklist Markdown file as a source of truth to check code
// against, rather than just formatting it.
package drift

import (
	"bufio"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/clawd-io/clawd/internal/store"
	"github.com/clawd-io/clawd/pkg/types"
)

var (
	checkedItemRe = regexp.MustCompile(`^\s*(?:[-*]\s*\[x\]|(?:[-*]\s*)?✅)\s*(.+)$`)
	wordRe        = regexp.MustCompile(`[A-Za-z][A-Za-z0-9_]*`)
)

var skipDirs = map[string]bool{
	".git": true, "node_modules": true, "vendor": true, ".claw": true,
}

// ParseFeatures reads featuresPath and returns each ✅-marked (or "[x]"
// checked) line's text alongside a lowercase candidate identifier derived
// from it.
func ParseFeatures(featuresPath string) ([]types.DriftItem, error) {
	f, err := os.Open(featuresPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var items []types.DriftItem
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		m := checkedItemRe.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		name := strings.TrimSpace(m[1])
		items = append(items, types.DriftItem{
			FeatureName: name,
			Candidate:   candidateIdentifier(name),
		})
	}
	return items, scanner.Err()
}

// candidateIdentifier derives a source-token guess from a feature line's
// first two words, lowercased and joined, e.g. "Session pause/resume" ->
// "sessionpause". Source tokens are lowercased before comparison, so a
// camelCase name such as sessionPause matches; a snake_case name such as
// session_pause does not.
func candidateIdentifier(name string) string {
	words := wordRe.FindAllString(name, -1)
	if len(words) == 0 {
		return ""
	}
	n := len(words)
	if n > 2 {
		n = 2
	}
	return strings.ToLower(strings.Join(words[:n], ""))
}

// Scan parses featuresPath, checks each candidate identifier against every
// source file under repoPath, and persists a DriftItem per feature marking
// whether it appears Missing.
func Scan(ctx context.Context, st *store.Store, repoPath, featuresPath string) ([]*types.DriftItem, error) {
	items, err := ParseFeatures(featuresPath)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}

	tokens, err := collectSourceTokens(repoPath)
	if err != nil {
		return nil, err
	}

	var out []*types.DriftItem
	for i := range items {
		item := items[i]
		item.RepoPath = repoPath
		item.Missing = item.Candidate != "" && !tokens[item.Candidate]
		if err := st.PutDriftItem(ctx, &item); err != nil {
			return out, err
		}
		out = append(out, &item)
	}
	return out, nil
}

func collectSourceTokens(repoPath string) (map[string]bool, error) {
	tokens := make(map[string]bool)
	err := filepath.WalkDir(repoPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !isSourceFile(path) {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		for _, w := range wordRe.FindAll(data, -1) {
			tokens[strings.ToLower(string(w))] = true
		}
		return nil
	})
	return tokens, err
}

func isSourceFile(path string) bool {
	switch filepath.Ext(path) {
	case ".go", ".ts", ".tsx", ".js", ".jsx", ".py", ".rs":
		return true
	default:
		return false
	}
}

// List returns the previously recorded drift items for repoPath.
func List(ctx context.Context, st *store.Store, repoPath string) ([]*types.DriftItem, error) {
	return st.ListDriftItems(ctx, repoPath)
}
