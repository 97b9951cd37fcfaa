package fsops

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/samber/lo"
)

var (
	errEmptyName    = errors.New("empty name")
	errReservedName = errors.New("reserved name")
	errSeparator    = errors.New("name contains a path separator")
)

// Delete removes each path in order, either to trash or permanently.
// Paths that no longer exist are skipped. The first failure stops the
// batch; earlier paths stay deleted.
func Delete(paths []string, useTrash bool, trash Trash) error {
	l := sub("fileops")

	for _, p := range lo.Uniq(paths) {
		abs, err := filepath.Abs(p)
		if err != nil {
			return opErr("delete", p, ErrNotAccessible, err)
		}
		if _, err := os.Lstat(abs); errors.Is(err, fs.ErrNotExist) {
			l.Debug("delete skipped, already gone", "path", abs)
			continue
		}

		if useTrash {
			if trash == nil {
				return opErr("delete", abs, ErrTrashUnsupported, nil)
			}
			if err := trash.Trash(abs); err != nil {
				kind := statKind(err)
				if errors.Is(err, ErrTrashUnsupported) {
					kind = ErrTrashUnsupported
				}
				return opErr("delete", abs, kind, err)
			}
			l.Info("trashed", "path", abs)
			continue
		}

		if err := os.RemoveAll(abs); err != nil {
			return opErr("delete", abs, statKind(err), err)
		}
		l.Info("deleted", "path", abs)
	}
	return nil
}

// DuplicateName returns the first unused sibling name for a copy of path:
// "{stem} - Copy{ext}", then "{stem} - Copy (2){ext}" and so on.
// Directories keep their full name as the stem.
func DuplicateName(path string) string {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	stem, ext := base, ""
	if info, err := os.Stat(path); err != nil || !info.IsDir() {
		stem, ext = splitName(base)
	}

	candidate := filepath.Join(dir, stem+" - Copy"+ext)
	for i := 2; exists(candidate); i++ {
		candidate = filepath.Join(dir, fmt.Sprintf("%s - Copy (%d)%s", stem, i, ext))
	}
	return candidate
}

// Duplicate copies path next to itself under DuplicateName and returns the
// new path.
func Duplicate(path string, policy RetryPolicy) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", opErr("duplicate", path, ErrSourceMissing, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", opErr("duplicate", abs, ErrSourceMissing, err)
	}

	target := DuplicateName(abs)
	if info.IsDir() {
		err = copyTree(abs, target, policy)
	} else {
		err = copyFileRetry(abs, target, policy)
	}
	if err != nil {
		return "", err
	}
	sub("fileops").Info("duplicated", "src", abs, "dst", target)
	return target, nil
}

// Rename gives path a new base name in the same directory and returns the
// new path. Renaming onto another existing item fails; changing only the
// case of a name on a case-insensitive volume does not.
func Rename(path, newName string) (string, error) {
	if err := validateName(newName); err != nil {
		return "", opErr("rename", path, ErrInvalidName, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", opErr("rename", path, ErrNotFound, err)
	}
	info, err := os.Lstat(abs)
	if err != nil {
		return "", opErr("rename", abs, statKind(err), err)
	}

	newPath := filepath.Join(filepath.Dir(abs), newName)
	if newPath == abs {
		return abs, nil
	}
	if existing, err := os.Lstat(newPath); err == nil && !os.SameFile(info, existing) {
		return "", opErr("rename", newPath, ErrAlreadyExists, nil)
	}

	if err := os.Rename(abs, newPath); err != nil {
		return "", opErr("rename", abs, statKind(err), err)
	}
	sub("fileops").Info("renamed", "from", abs, "to", newPath)
	return newPath, nil
}

// BatchRename rewrites the base name of each path by replacing every match
// of pattern, literally or as a regular expression. Paths whose name does
// not change are skipped. It returns the renames applied before any failure.
func BatchRename(paths []string, pattern, replacement string, useRegex bool) ([]RenamePair, error) {
	if pattern == "" {
		return nil, opErr("batch-rename", "", ErrPattern, errEmptyQuery)
	}

	replace := func(name string) string { return strings.ReplaceAll(name, pattern, replacement) }
	if useRegex {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, opErr("batch-rename", "", ErrPattern, err)
		}
		replace = func(name string) string { return re.ReplaceAllString(name, replacement) }
	}

	applied := make([]RenamePair, 0, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return applied, opErr("batch-rename", p, ErrNotFound, err)
		}
		base := filepath.Base(abs)
		newName := replace(base)
		if newName == base {
			continue
		}
		newPath, err := Rename(abs, newName)
		if err != nil {
			return applied, err
		}
		applied = append(applied, RenamePair{Old: abs, New: newPath})
	}
	return applied, nil
}

// CreateDirectory creates name inside parent, including missing parents of
// its own, and returns its path. An existing directory is not an error.
func CreateDirectory(parent, name string) (string, error) {
	dir, err := requireDir("mkdir", parent)
	if err != nil {
		return "", err
	}
	if err := validateName(name); err != nil {
		return "", opErr("mkdir", filepath.Join(dir, name), ErrInvalidName, err)
	}

	path := filepath.Join(dir, name)
	if info, err := os.Lstat(path); err == nil && !info.IsDir() {
		return "", opErr("mkdir", path, ErrAlreadyExists, nil)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", opErr("mkdir", path, statKind(err), err)
	}
	sub("fileops").Info("created directory", "path", path)
	return path, nil
}

// CreateFile creates a new file holding content. It never overwrites.
func CreateFile(parent, name string, content []byte) (string, error) {
	dir, err := requireDir("create", parent)
	if err != nil {
		return "", err
	}
	if err := validateName(name); err != nil {
		return "", opErr("create", filepath.Join(dir, name), ErrInvalidName, err)
	}

	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return "", opErr("create", path, ErrAlreadyExists, err)
		}
		return "", opErr("create", path, statKind(err), err)
	}
	_, werr := f.Write(content)
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		os.Remove(path)
		return "", opErr("create", path, ErrNotAccessible, werr)
	}
	sub("fileops").Info("created file", "path", path, "size", len(content))
	return path, nil
}

func validateName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return errEmptyName
	case name == "." || name == "..":
		return errReservedName
	case strings.ContainsRune(name, '/') || strings.ContainsRune(name, filepath.Separator) || strings.ContainsRune(name, 0):
		return errSeparator
	}
	return nil
}

// requireDir resolves path and requires it to be an existing directory.
func requireDir(op, path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", opErr(op, path, ErrNotFound, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", opErr(op, abs, statKind(err), err)
	}
	if !info.IsDir() {
		return "", opErr(op, abs, ErrNotADirectory, nil)
	}
	return abs, nil
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
