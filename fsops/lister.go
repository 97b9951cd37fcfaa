package fsops

import (
	"os"
	"path/filepath"
	"slices"

	"github.com/maruel/natural"
	"github.com/samber/lo"
	"golang.org/x/text/cases"
)

// List returns the immediate children of dir, directories first and then
// by case-insensitive name. Children that vanish or cannot be stat-ed
// while listing are left out.
func List(dir string, showHidden bool) (DirContents, error) {
	l := sub("lister")

	abs, err := filepath.Abs(dir)
	if err != nil {
		return DirContents{}, opErr("list", dir, ErrNotFound, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return DirContents{}, opErr("list", abs, statKind(err), err)
	}
	if !info.IsDir() {
		return DirContents{}, opErr("list", abs, ErrNotADirectory, nil)
	}

	children, err := os.ReadDir(abs)
	if err != nil && len(children) == 0 {
		return DirContents{}, opErr("list", abs, statKind(err), err)
	}

	entries := make([]FileEntry, 0, len(children))
	for _, child := range children {
		entry, err := BuildEntry(filepath.Join(abs, child.Name()))
		if err != nil {
			l.Debug("skip child", "path", filepath.Join(abs, child.Name()), "err", err)
			continue
		}
		entries = append(entries, entry)
	}

	if !showHidden {
		entries = lo.Filter(entries, func(e FileEntry, _ int) bool { return !e.IsHidden })
	}
	sortEntries(entries)

	l.Debug("list", "path", abs, "count", len(entries))
	return DirContents{
		Path:    abs,
		Entries: entries,
		Parent:  parentOf(abs),
	}, nil
}

// sortEntries orders directories before files, then by case-folded name.
// Names that fold to the same key fall back to natural order on the raw
// name so the result is deterministic.
func sortEntries(entries []FileEntry) {
	fold := cases.Fold()
	keys := make(map[string]string, len(entries))
	for _, e := range entries {
		keys[e.Path] = fold.String(e.Name)
	}

	slices.SortStableFunc(entries, func(a, b FileEntry) int {
		if a.IsDir != b.IsDir {
			if a.IsDir {
				return -1
			}
			return 1
		}
		ka, kb := keys[a.Path], keys[b.Path]
		switch {
		case ka < kb:
			return -1
		case ka > kb:
			return 1
		case natural.Less(a.Name, b.Name):
			return -1
		case natural.Less(b.Name, a.Name):
			return 1
		}
		return 0
	})
}

func parentOf(abs string) *string {
	parent := filepath.Dir(abs)
	if parent == abs {
		return nil
	}
	return &parent
}
