package fsops

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
)

// Trash moves items somewhere they can be restored from.
type Trash interface {
	Trash(path string) error
}

// DirTrash is a trash can rooted in a plain directory. Trashed items are
// renamed into Files; a name already taken gets a "_N" suffix. When Info is
// set, a freedesktop.org .trashinfo record is written there for each item.
type DirTrash struct {
	Files string
	Info  string
}

const trashInfoLayout = "2006-01-02T15:04:05"

// Trash implements Trash.
func (t *DirTrash) Trash(path string) error {
	_, err := t.Put(path)
	return err
}

// Put moves path into the trash and returns where it ended up.
func (t *DirTrash) Put(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(t.Files, 0o700); err != nil {
		return "", fmt.Errorf("mkdir trash: %w", err)
	}
	if t.Info != "" {
		if err := os.MkdirAll(t.Info, 0o700); err != nil {
			return "", fmt.Errorf("mkdir trash info: %w", err)
		}
	}

	name, infoPath, err := t.reserve(filepath.Base(abs), abs)
	if err != nil {
		return "", err
	}

	trashPath := filepath.Join(t.Files, name)
	if err := os.Rename(abs, trashPath); err != nil {
		if infoPath != "" {
			os.Remove(infoPath)
		}
		return "", fmt.Errorf("move to trash: %w", err)
	}
	sub("trash").Debug("trashed", "path", abs, "as", trashPath)
	return trashPath, nil
}

// reserve picks a free name in the trash. With an info directory the name
// is claimed by creating its .trashinfo file exclusively.
func (t *DirTrash) reserve(base, original string) (string, string, error) {
	stem, ext := splitName(base)
	for i := 0; ; i++ {
		name := base
		if i > 0 {
			name = fmt.Sprintf("%s_%d%s", stem, i, ext)
		}
		if exists(filepath.Join(t.Files, name)) {
			continue
		}
		if t.Info == "" {
			return name, "", nil
		}

		infoPath := filepath.Join(t.Info, name+".trashinfo")
		f, err := os.OpenFile(infoPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", "", fmt.Errorf("create trash info: %w", err)
		}
		_, werr := fmt.Fprintf(f, "[Trash Info]\nPath=%s\nDeletionDate=%s\n",
			(&url.URL{Path: original}).EscapedPath(), nowFunc().Format(trashInfoLayout))
		if cerr := f.Close(); werr == nil {
			werr = cerr
		}
		if werr != nil {
			os.Remove(infoPath)
			return "", "", fmt.Errorf("write trash info: %w", werr)
		}
		return name, infoPath, nil
	}
}

type unsupportedTrash struct{}

func (unsupportedTrash) Trash(path string) error {
	return opErr("trash", path, ErrTrashUnsupported, nil)
}

