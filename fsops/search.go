package fsops

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/text/cases"
)

// SearchLimits bound the cost of a search on large trees.
type SearchLimits struct {
	// MaxDepth is the deepest directory level below the root whose
	// children are enumerated. The root itself is level 0.
	MaxDepth int
	// MaxResults caps the number of returned entries.
	MaxResults int
}

// DefaultSearchLimits are the limits used by Search.
var DefaultSearchLimits = SearchLimits{MaxDepth: 5, MaxResults: 200}

const globMeta = "*?[{"

var errEmptyQuery = errors.New("empty query")

type searchFrame struct {
	dir      string
	depth    int
	children []os.DirEntry
	next     int
}

// Search finds entries under root whose name contains query, ignoring case.
// A query with glob meta characters is matched as a pattern against the
// whole name instead. Unreadable directories are skipped, so partial
// results never turn into an error; only an unusable root does.
func Search(root, query string, showHidden bool) ([]FileEntry, error) {
	return SearchWithLimits(root, query, showHidden, DefaultSearchLimits)
}

// SearchWithLimits is Search with explicit bounds.
func SearchWithLimits(root, query string, showHidden bool, limits SearchLimits) ([]FileEntry, error) {
	l := sub("search")

	match, err := nameMatcher(query)
	if err != nil {
		return nil, opErr("search", root, ErrPattern, err)
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, opErr("search", root, ErrNotFound, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, opErr("search", abs, statKind(err), err)
	}
	if !info.IsDir() {
		return nil, opErr("search", abs, ErrNotADirectory, nil)
	}
	children, err := os.ReadDir(abs)
	if err != nil && len(children) == 0 {
		return nil, opErr("search", abs, statKind(err), err)
	}

	results := make([]FileEntry, 0)
	stack := []*searchFrame{{dir: abs, children: children}}
	seen := map[string]bool{canonical(abs): true}
	skipped := 0

	for len(stack) > 0 && len(results) < limits.MaxResults {
		top := stack[len(stack)-1]
		if top.next >= len(top.children) {
			stack = stack[:len(stack)-1]
			continue
		}
		child := top.children[top.next]
		top.next++

		entry, err := BuildEntry(filepath.Join(top.dir, child.Name()))
		if err != nil {
			continue
		}
		if !showHidden && entry.IsHidden {
			continue
		}
		if match(entry.Name) {
			results = append(results, entry)
		}

		// Symlinked directories are entered too. A directory already
		// visited under another path is not entered twice.
		if !entry.IsDir || top.depth+1 > limits.MaxDepth {
			continue
		}
		c := canonical(entry.Path)
		if seen[c] {
			continue
		}
		seen[c] = true
		grandchildren, err := os.ReadDir(entry.Path)
		if err != nil && len(grandchildren) == 0 {
			skipped++
			continue
		}
		stack = append(stack, &searchFrame{dir: entry.Path, depth: top.depth + 1, children: grandchildren})
	}

	l.Debug("search done", "root", abs, "query", query, "results", len(results), "skippedDirs", skipped)
	return results, nil
}

// nameMatcher builds a case-insensitive predicate for query. The predicate
// holds a stateful caser and must not be shared between goroutines.
func nameMatcher(query string) (func(name string) bool, error) {
	if query == "" {
		return nil, errEmptyQuery
	}
	fold := cases.Fold()
	q := fold.String(query)

	if !strings.ContainsAny(q, globMeta) {
		return func(name string) bool {
			return strings.Contains(fold.String(name), q)
		}, nil
	}

	if !doublestar.ValidatePattern(q) {
		return nil, doublestar.ErrBadPattern
	}
	return func(name string) bool {
		ok, _ := doublestar.Match(q, fold.String(name))
		return ok
	}, nil
}

// canonical resolves symlinks in path, falling back to path itself.
func canonical(path string) string {
	if c, err := filepath.EvalSymlinks(path); err == nil {
		return c
	}
	return path
}
