package fsops

import (
	"path/filepath"

	"github.com/mitchellh/go-homedir"
)

var quickAccessDirs = []string{"Desktop", "Documents", "Downloads", "Pictures", "Music", "Videos"}

// HomeDir returns the current user's home directory.
func HomeDir() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", opErr("home", "~", ErrNotFound, err)
	}
	return home, nil
}

// QuickAccess returns the home directory followed by the well-known folders
// under it that exist.
func QuickAccess() ([]Location, error) {
	home, err := HomeDir()
	if err != nil {
		return nil, err
	}
	return quickAccessUnder(home), nil
}

func quickAccessUnder(home string) []Location {
	locs := []Location{{Name: "Home", Path: home}}
	for _, name := range quickAccessDirs {
		p := filepath.Join(home, name)
		if isDir(p) {
			locs = append(locs, Location{Name: name, Path: p})
		}
	}
	return locs
}
