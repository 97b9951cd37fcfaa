//go:build darwin

package fsops

import (
	"path/filepath"

	"github.com/mitchellh/go-homedir"
)

// DefaultTrash returns ~/.Trash.
func DefaultTrash() (Trash, error) {
	home, err := homedir.Dir()
	if err != nil {
		return nil, err
	}
	return &DirTrash{Files: filepath.Join(home, ".Trash")}, nil
}
