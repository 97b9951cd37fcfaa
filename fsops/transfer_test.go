package fsops

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// snapshot maps each relative path under root to its content, "<dir>" or
// "-> target" for symlinks.
func snapshot(t *testing.T, root string) map[string]string {
	t.Helper()
	out := map[string]string{}
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		require.NoError(t, err)
		rel, _ := filepath.Rel(root, p)
		switch {
		case rel == ".":
		case d.Type()&fs.ModeSymlink != 0:
			target, _ := os.Readlink(p)
			out[rel] = "-> " + target
		case d.IsDir():
			out[rel] = "<dir>"
		default:
			data, err := os.ReadFile(p)
			require.NoError(t, err)
			out[rel] = string(data)
		}
		return nil
	})
	require.NoError(t, err)
	return out
}

func tmpLeftovers(t *testing.T, root string) []string {
	t.Helper()
	var found []string
	filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error { //nolint:errcheck
		if err == nil && strings.Contains(d.Name(), tmpSuffix) {
			found = append(found, p)
		}
		return nil
	})
	return found
}

func TestSafeTmpPath_Short(t *testing.T) {
	assert.Equal(t, "/dir/.short.txt.copy-tmp", safeTmpPath("/dir/short.txt"))
}

func TestSafeTmpPath_LongFilename(t *testing.T) {
	dst := "/dir/" + strings.Repeat("a", 250) + ".pdf"

	result := safeTmpPath(dst)

	assert.Contains(t, filepath.Base(result), tmpSuffix+"-")
	assert.Equal(t, "/dir", filepath.Dir(result))
	assert.LessOrEqual(t, len(filepath.Base(result)), maxNameLen)
	assert.Equal(t, result, safeTmpPath(dst))
}

func TestCopyFile_PreservesContentModeAndMtime(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "run.sh")
	dst := filepath.Join(dir, "copy.sh")
	writeFile(t, src, "#!/bin/sh\necho hi\n")
	require.NoError(t, os.Chmod(src, 0o750))
	past := time.Now().Add(-48 * time.Hour).Truncate(time.Second)
	require.NoError(t, os.Chtimes(src, past, past))

	require.NoError(t, copyFile(src, dst))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "#!/bin/sh\necho hi\n", string(got))

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o750), info.Mode().Perm())
	assert.True(t, past.Equal(info.ModTime()))
	assert.Empty(t, tmpLeftovers(t, dir))
}

func TestCopyFile_LargerThanChunk(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "big.bin")
	data := make([]byte, copyChunkSize*3+17)
	for i := range data {
		data[i] = byte(i % 251)
	}
	require.NoError(t, os.WriteFile(src, data, 0o644))

	dst := filepath.Join(dir, "big.copy")
	require.NoError(t, copyFile(src, dst))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestCopyItems_FilesIntoDirectory(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "dest")
	mkdir(t, dest)
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	writeFile(t, a, "A")
	writeFile(t, b, "B")

	require.NoError(t, CopyItems([]string{a, b}, dest, noSleep(3)))

	assert.Equal(t, map[string]string{"a.txt": "A", "b.txt": "B"}, snapshot(t, dest))
	assert.FileExists(t, a, "copy keeps the source")
}

func TestCopyItems_TreeFidelity(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "project")
	writeFile(t, filepath.Join(src, "README.md"), "readme")
	writeFile(t, filepath.Join(src, "src", "main.go"), "package main")
	writeFile(t, filepath.Join(src, "src", "internal", "x.go"), "package internal")
	writeFile(t, filepath.Join(src, ".hidden", "cfg"), "secret")
	mkdir(t, filepath.Join(src, "empty"))
	require.NoError(t, os.Symlink("README.md", filepath.Join(src, "link")))
	dest := filepath.Join(dir, "backup")
	mkdir(t, dest)

	require.NoError(t, CopyItems([]string{src}, dest, noSleep(3)))

	assert.Equal(t, snapshot(t, src), snapshot(t, filepath.Join(dest, "project")))
	assert.Empty(t, tmpLeftovers(t, dest))
}

func TestCopyItems_DirectoryReplacesExistingTarget(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "docs")
	writeFile(t, filepath.Join(src, "new.txt"), "new")
	dest := filepath.Join(dir, "dest")
	writeFile(t, filepath.Join(dest, "docs", "stale.txt"), "stale")

	require.NoError(t, CopyItems([]string{src}, dest, noSleep(3)))

	assert.Equal(t, map[string]string{"new.txt": "new"}, snapshot(t, filepath.Join(dest, "docs")))
}

func TestCopyItems_FileOverwritesExistingTarget(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.txt")
	writeFile(t, src, "fresh")
	dest := filepath.Join(dir, "dest")
	writeFile(t, filepath.Join(dest, "a.txt"), "old contents")

	require.NoError(t, CopyItems([]string{src}, dest, noSleep(3)))

	got, err := os.ReadFile(filepath.Join(dest, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(got))
}

func TestCopyItems_SameLocationIsSkipped(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.txt")
	writeFile(t, src, "keep me")

	require.NoError(t, CopyItems([]string{src}, dir, noSleep(3)))

	got, err := os.ReadFile(src)
	require.NoError(t, err)
	assert.Equal(t, "keep me", string(got))
	assert.Empty(t, tmpLeftovers(t, dir))
}

func TestCopyItems_IntoOwnSubtreeRejected(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "tree")
	inner := filepath.Join(src, "inner")
	mkdir(t, inner)

	err := CopyItems([]string{src}, inner, noSleep(3))
	assert.True(t, errors.Is(err, ErrDestinationInvalid))
	assert.NoDirExists(t, filepath.Join(inner, "tree"))
}

func TestCopyItems_DestinationMustBeDirectory(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a")
	writeFile(t, src, "x")
	notDir := filepath.Join(dir, "file")
	writeFile(t, notDir, "x")

	err := CopyItems([]string{src}, notDir, noSleep(3))
	assert.True(t, errors.Is(err, ErrDestinationInvalid))

	err = CopyItems([]string{src}, filepath.Join(dir, "missing"), noSleep(3))
	assert.True(t, errors.Is(err, ErrDestinationInvalid))
}

func TestCopyItems_AbortsAtFirstMissingSource(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "dest")
	mkdir(t, dest)
	a := filepath.Join(dir, "a")
	c := filepath.Join(dir, "c")
	writeFile(t, a, "a")
	writeFile(t, c, "c")
	missing := filepath.Join(dir, "b")

	err := CopyItems([]string{a, missing, c}, dest, noSleep(3))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSourceMissing))
	assert.Contains(t, err.Error(), missing)

	assert.FileExists(t, filepath.Join(dest, "a"), "earlier sources stay copied")
	assert.NoFileExists(t, filepath.Join(dest, "c"), "later sources are not attempted")
}

func TestCopyItems_RootSourceIsInvalidName(t *testing.T) {
	err := CopyItems([]string{"/"}, t.TempDir(), noSleep(3))
	assert.True(t, errors.Is(err, ErrInvalidName))
}

func TestCopyItems_RetriesThenFails(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.txt")
	writeFile(t, src, "x")
	dest := filepath.Join(dir, "dest")
	// A non-empty directory where the file should land cannot be replaced.
	writeFile(t, filepath.Join(dest, "a.txt", "occupied"), "y")

	var retries int
	policy := noSleep(3)
	policy.OnRetry = func(int, error) { retries++ }

	err := CopyItems([]string{src}, dest, policy)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCopyFailed))

	var opErr *OpError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, 3, opErr.Attempts)
	assert.Equal(t, 2, retries)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Empty(t, tmpLeftovers(t, dest))
}

func TestMoveItems_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "A")
	b := filepath.Join(dir, "B")
	mkdir(t, a)
	mkdir(t, b)
	writeFile(t, filepath.Join(a, "f.txt"), "payload")
	writeFile(t, filepath.Join(a, "sub", "g.txt"), "nested")
	mkdir(t, filepath.Join(a, "sub", "empty"))
	before := snapshot(t, a)

	require.NoError(t, MoveItems([]string{filepath.Join(a, "f.txt"), filepath.Join(a, "sub")}, b, noSleep(3)))
	assert.Empty(t, snapshot(t, a))

	require.NoError(t, MoveItems([]string{filepath.Join(b, "f.txt"), filepath.Join(b, "sub")}, a, noSleep(3)))
	assert.Equal(t, before, snapshot(t, a))
	assert.Empty(t, snapshot(t, b))
}

func TestMoveItems_ReplacesStaleFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.txt")
	writeFile(t, src, "new")
	dest := filepath.Join(dir, "dest")
	writeFile(t, filepath.Join(dest, "a.txt"), "stale")

	require.NoError(t, MoveItems([]string{src}, dest, noSleep(3)))

	got, err := os.ReadFile(filepath.Join(dest, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))
	assert.NoFileExists(t, src)
}

func TestMoveItems_LeavesEmptyDirectoryTarget(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a")
	writeFile(t, src, "x")
	dest := filepath.Join(dir, "dest")
	mkdir(t, filepath.Join(dest, "a"))

	err := MoveItems([]string{src}, dest, noSleep(3))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMoveFailed))

	assert.DirExists(t, filepath.Join(dest, "a"))
	assert.FileExists(t, src)
}

func TestMoveItems_FailsAfterRetries(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.txt")
	writeFile(t, src, "x")
	dest := filepath.Join(dir, "dest")
	writeFile(t, filepath.Join(dest, "a.txt", "occupied"), "y")

	err := MoveItems([]string{src}, dest, noSleep(3))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMoveFailed))

	var opErr *OpError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, 3, opErr.Attempts)
	assert.FileExists(t, src, "a failed move leaves the source")
}

func TestMoveItems_IntoOwnSubtreeRejected(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "tree")
	inner := filepath.Join(src, "a", "b")
	mkdir(t, inner)

	err := MoveItems([]string{src}, inner, noSleep(3))
	assert.True(t, errors.Is(err, ErrDestinationInvalid))
	assert.DirExists(t, src)
}

func TestMoveItems_AbortsInOrder(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "dest")
	mkdir(t, dest)
	a := filepath.Join(dir, "a")
	c := filepath.Join(dir, "c")
	writeFile(t, a, "a")
	writeFile(t, c, "c")

	err := MoveItems([]string{a, filepath.Join(dir, "gone"), c}, dest, noSleep(3))
	assert.True(t, errors.Is(err, ErrSourceMissing))

	got := snapshot(t, dest)
	keys := make([]string, 0, len(got))
	for k := range got {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	assert.Equal(t, []string{"a"}, keys)
	assert.FileExists(t, c)
}

func TestIsWithin(t *testing.T) {
	assert.True(t, isWithin("/a/b/c", "/a/b"))
	assert.True(t, isWithin("/a/b", "/a/b"))
	assert.False(t, isWithin("/a/bc", "/a/b"))
	assert.False(t, isWithin("/a", "/a/b"))
	assert.False(t, isWithin("/x/..y", "/x/y"))
}
