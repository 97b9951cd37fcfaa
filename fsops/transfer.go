package fsops

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	copyChunkSize = 256 * 1024 // 256KB per chunk
	tmpSuffix     = ".copy-tmp"
	maxNameLen    = 255
)

// CopyItems copies each source into destination, in order. Directory sources
// replace an existing target tree; file copies are retried per policy. The
// first failure aborts the remaining sources; sources already copied stay.
func CopyItems(sources []string, destination string, policy RetryPolicy) error {
	l := sub("transfer")

	dest, err := validateDestination("copy", destination)
	if err != nil {
		return err
	}

	for _, source := range sources {
		src, target, info, err := resolveSource("copy", source, dest)
		if err != nil {
			return err
		}
		if samePath(src, target) {
			l.Info("copy skipped, source is target", "path", src)
			continue
		}

		if !info.IsDir() {
			if err := copyFileRetry(src, target, policy); err != nil {
				return err
			}
			l.Info("copied file", "src", src, "dst", target)
			continue
		}

		if isWithin(dest, src) {
			return opErr("copy", src, ErrDestinationInvalid, fmt.Errorf("%s is inside the source tree", dest))
		}
		if _, err := os.Lstat(target); err == nil {
			if err := os.RemoveAll(target); err != nil {
				return opErr("copy", target, ErrCopyFailed, fmt.Errorf("remove existing target: %w", err))
			}
		}
		if err := copyTree(src, target, policy); err != nil {
			return err
		}
		l.Info("copied tree", "src", src, "dst", target)
	}
	return nil
}

// MoveItems renames each source into destination, in order. A rename that
// collides with a stale target file removes that file once and tries again,
// then falls back to the retry policy. Moves across volumes fail instead of
// silently turning into copy-and-delete.
func MoveItems(sources []string, destination string, policy RetryPolicy) error {
	l := sub("transfer")

	dest, err := validateDestination("move", destination)
	if err != nil {
		return err
	}

	for _, source := range sources {
		src, target, info, err := resolveSource("move", source, dest)
		if err != nil {
			return err
		}
		if samePath(src, target) {
			l.Info("move skipped, source is target", "path", src)
			continue
		}
		if info.IsDir() && isWithin(dest, src) {
			return opErr("move", src, ErrDestinationInvalid, fmt.Errorf("%s is inside the source tree", dest))
		}

		if err := moveOne(src, target, policy); err != nil {
			return err
		}
		l.Info("moved", "src", src, "dst", target)
	}
	return nil
}

func moveOne(src, target string, policy RetryPolicy) error {
	l := sub("transfer")

	err := os.Rename(src, target)
	if err == nil {
		return nil
	}

	// Only a stale file is removed; an existing directory is never replaced.
	if ti, statErr := os.Lstat(target); statErr == nil && !ti.IsDir() {
		l.Debug("rename collided, removing stale target", "target", target, "err", err)
		if rmErr := os.Remove(target); rmErr == nil {
			if err = os.Rename(src, target); err == nil {
				return nil
			}
		}
	}

	attempts, err := policy.Do(func() error { return os.Rename(src, target) })
	if err != nil {
		l.Warn("move failed", "src", src, "dst", target, "attempts", attempts, "err", err)
		return &OpError{Op: "move", Path: src, Kind: ErrMoveFailed, Attempts: attempts, Err: err}
	}
	return nil
}

// validateDestination requires destination to be an existing directory.
func validateDestination(op, destination string) (string, error) {
	dest, err := filepath.Abs(destination)
	if err != nil {
		return "", opErr(op, destination, ErrDestinationInvalid, err)
	}
	info, err := os.Stat(dest)
	if err != nil {
		return "", opErr(op, dest, ErrDestinationInvalid, err)
	}
	if !info.IsDir() {
		return "", opErr(op, dest, ErrDestinationInvalid, nil)
	}
	return dest, nil
}

// resolveSource checks that source exists and computes its target inside dest.
// Top-level sources follow symlinks, so a dangling link counts as missing.
func resolveSource(op, source, dest string) (src, target string, info fs.FileInfo, err error) {
	src, err = filepath.Abs(source)
	if err != nil {
		return "", "", nil, opErr(op, source, ErrInvalidName, err)
	}
	name := filepath.Base(src)
	if src == filepath.Dir(src) || name == "." || name == ".." {
		return "", "", nil, opErr(op, source, ErrInvalidName, nil)
	}
	info, err = os.Stat(src)
	if err != nil {
		return "", "", nil, opErr(op, src, ErrSourceMissing, err)
	}
	return src, filepath.Join(dest, name), info, nil
}

// samePath reports whether a and b resolve to the same existing object.
// Two spellings of one file on a case-insensitive volume count as the same.
func samePath(a, b string) bool {
	ca, err := filepath.EvalSymlinks(a)
	if err != nil {
		return false
	}
	cb, err := filepath.EvalSymlinks(b)
	if err != nil {
		return false
	}
	if ca == cb {
		return true
	}
	ia, errA := os.Stat(ca)
	ib, errB := os.Stat(cb)
	return errA == nil && errB == nil && os.SameFile(ia, ib)
}

// isWithin reports whether path is root or lies below it, after resolving
// symlinks on both sides.
func isWithin(path, root string) bool {
	cp, err := filepath.EvalSymlinks(path)
	if err != nil {
		cp = path
	}
	cr, err := filepath.EvalSymlinks(root)
	if err != nil {
		cr = root
	}
	rel, err := filepath.Rel(cr, cp)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

type treeJob struct {
	src, dst string
}

// copyTree copies the directory src to dst with an explicit work-list.
// Nested symlinks are recreated as links; special files are skipped.
func copyTree(src, dst string, policy RetryPolicy) error {
	l := sub("transfer")
	stack := []treeJob{{src: src, dst: dst}}

	for len(stack) > 0 {
		job := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		info, err := os.Stat(job.src)
		if err != nil {
			return opErr("copy", job.src, ErrCopyFailed, err)
		}
		if err := os.MkdirAll(job.dst, info.Mode().Perm()|0o700); err != nil {
			return opErr("copy", job.dst, ErrCopyFailed, err)
		}
		children, err := os.ReadDir(job.src)
		if err != nil {
			return opErr("copy", job.src, ErrCopyFailed, err)
		}

		for _, child := range children {
			s := filepath.Join(job.src, child.Name())
			d := filepath.Join(job.dst, child.Name())
			mode := child.Type()
			switch {
			case mode&fs.ModeSymlink != 0:
				if err := copySymlink(s, d); err != nil {
					return opErr("copy", s, ErrCopyFailed, err)
				}
			case child.IsDir():
				stack = append(stack, treeJob{src: s, dst: d})
			case mode.IsRegular():
				if err := copyFileRetry(s, d, policy); err != nil {
					return err
				}
			default:
				l.Debug("skip special file", "path", s, "mode", mode.String())
			}
		}
	}
	return nil
}

func copySymlink(src, dst string) error {
	target, err := os.Readlink(src)
	if err != nil {
		return err
	}
	os.Remove(dst) //nolint:errcheck
	return os.Symlink(target, dst)
}

func copyFileRetry(src, dst string, policy RetryPolicy) error {
	attempts, err := policy.Do(func() error { return copyFile(src, dst) })
	if err != nil {
		sub("transfer").Warn("copy failed", "src", src, "dst", dst, "attempts", attempts, "err", err)
		return &OpError{Op: "copy", Path: src, Kind: ErrCopyFailed, Attempts: attempts, Err: err}
	}
	return nil
}

// copyFile copies src to dst through a hidden temporary sibling and an
// atomic rename, so dst is never observed half written. Permission bits
// and mtime are carried over.
func copyFile(src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat src: %w", err)
	}

	srcFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open src: %w", err)
	}
	defer srcFile.Close()

	tmpPath := safeTmpPath(dst)
	tmpFile, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create tmp: %w", err)
	}

	_, copyErr := io.CopyBuffer(tmpFile, srcFile, make([]byte, copyChunkSize))
	closeErr := tmpFile.Close()
	if copyErr == nil && closeErr != nil {
		copyErr = fmt.Errorf("close tmp: %w", closeErr)
	}
	if copyErr != nil {
		os.Remove(tmpPath)
		return copyErr
	}

	if err := os.Chmod(tmpPath, srcInfo.Mode().Perm()); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("chmod tmp: %w", err)
	}
	if err := os.Chtimes(tmpPath, time.Now(), srcInfo.ModTime()); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("chtimes tmp: %w", err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename tmp to dst: %w", err)
	}
	return nil
}

// safeTmpPath returns the temporary path used while copying to dst. Names
// that would exceed the filesystem limit are shortened and suffixed with a
// hash of the full name, so the result is stable for a given dst.
func safeTmpPath(dst string) string {
	dir, base := filepath.Split(dst)
	name := "." + base + tmpSuffix
	if len(name) <= maxNameLen {
		return filepath.Join(dir, name)
	}
	sum := sha256.Sum256([]byte(base))
	hash := hex.EncodeToString(sum[:8])
	keep := maxNameLen - len(tmpSuffix) - len(hash) - 2
	return filepath.Join(dir, "."+base[:keep]+tmpSuffix+"-"+hash)
}
