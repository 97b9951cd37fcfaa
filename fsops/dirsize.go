package fsops

import (
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/charlievieth/fastwalk"
)

// DirSize sums the sizes of the regular files below path. Symlinks are not
// followed and unreadable subtrees are skipped. The walk runs on several
// goroutines.
func DirSize(path string) (int64, error) {
	abs, err := requireDir("dirsize", path)
	if err != nil {
		return 0, err
	}

	var total, files, skipped atomic.Int64
	conf := fastwalk.Config{Follow: false}
	err = fastwalk.Walk(&conf, abs, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			skipped.Add(1)
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		total.Add(info.Size())
		files.Add(1)
		return nil
	})
	if err != nil {
		return 0, opErr("dirsize", abs, statKind(err), err)
	}

	sub("dirsize").Debug("dir size", "path", filepath.Clean(abs), "bytes", total.Load(),
		"files", files.Load(), "skipped", skipped.Load())
	return total.Load(), nil
}
