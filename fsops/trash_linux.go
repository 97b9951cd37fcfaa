//go:build linux

package fsops

import (
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
)

// DefaultTrash returns the user's freedesktop.org home trash.
func DefaultTrash() (Trash, error) {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := homedir.Dir()
		if err != nil {
			return nil, err
		}
		dataHome = filepath.Join(home, ".local", "share")
	}
	root := filepath.Join(dataHome, "Trash")
	return &DirTrash{
		Files: filepath.Join(root, "files"),
		Info:  filepath.Join(root, "info"),
	}, nil
}
