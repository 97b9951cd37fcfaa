package fsops

import (
	"encoding/base64"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Preview size caps.
const (
	DefaultTextLimit   = 2 << 20  // 2 MiB
	DefaultBase64Limit = 50 << 20 // 50 MiB
)

// ReadText returns up to maxBytes of path as text. Invalid UTF-8 sequences
// are replaced with U+FFFD. maxBytes <= 0 means DefaultTextLimit.
func ReadText(path string, maxBytes int64) (string, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultTextLimit
	}
	data, err := readCapped("text", path, maxBytes)
	if err != nil {
		return "", err
	}
	return strings.ToValidUTF8(string(data), "�"), nil
}

// ReadBase64 returns up to maxBytes of path, base64 encoded.
// maxBytes <= 0 means DefaultBase64Limit.
func ReadBase64(path string, maxBytes int64) (string, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultBase64Limit
	}
	data, err := readCapped("base64", path, maxBytes)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func readCapped(op, path string, maxBytes int64) ([]byte, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, opErr(op, path, ErrNotFound, err)
	}
	f, err := os.Open(abs)
	if err != nil {
		return nil, opErr(op, abs, statKind(err), err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, opErr(op, abs, statKind(err), err)
	}
	if info.IsDir() {
		return nil, opErr(op, abs, ErrNotAccessible, nil)
	}

	data, err := io.ReadAll(io.LimitReader(f, maxBytes))
	if err != nil {
		return nil, opErr(op, abs, ErrNotAccessible, err)
	}
	if info.Size() > maxBytes {
		sub("preview").Debug("preview truncated", "path", abs, "size", info.Size(), "limit", maxBytes)
	}
	return data, nil
}
