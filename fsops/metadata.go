package fsops

import (
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// BuildEntry resolves path into a FileEntry. Link metadata is read first;
// for symlinks the target decides IsDir and Size, falling back to the
// link's own metadata so broken links stay listable.
func BuildEntry(path string) (FileEntry, error) {
	linfo, err := os.Lstat(path)
	if err != nil {
		return FileEntry{}, opErr("stat", path, ErrNotAccessible, err)
	}

	name := filepath.Base(path)
	isSymlink := linfo.Mode()&fs.ModeSymlink != 0
	info := linfo
	if isSymlink {
		if target, err := os.Stat(path); err == nil {
			info = target
		}
	}

	isDir := info.IsDir()
	entry := FileEntry{
		Name:      name,
		Path:      path,
		IsDir:     isDir,
		IsHidden:  isHidden(name),
		Modified:  formatModified(linfo),
		IsSymlink: isSymlink,
	}
	if !isDir {
		entry.Size = info.Size()
		entry.Extension = extension(name)
	}
	return entry, nil
}

// Details returns the entry for a single path, made absolute.
func Details(path string) (FileEntry, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return FileEntry{}, opErr("stat", path, ErrNotAccessible, err)
	}
	return BuildEntry(abs)
}

// Properties returns the extended record shown by a properties view.
func Properties(path string) (FileProperties, error) {
	entry, err := Details(path)
	if err != nil {
		return FileProperties{}, err
	}

	props := FileProperties{
		FileEntry: entry,
		Kind:      classifyKind(entry.Name, entry.IsDir),
	}
	if info, err := os.Stat(entry.Path); err == nil {
		props.IsReadonly = info.Mode().Perm()&0o200 == 0
	}

	if entry.IsDir {
		if children, err := os.ReadDir(entry.Path); err == nil {
			n := len(children)
			props.ItemCount = &n
		}
		return props, nil
	}

	if mt, err := mimetype.DetectFile(entry.Path); err == nil {
		props.MimeType = mt.String()
		if props.Kind == "blob" && isTextMIME(mt) {
			props.Kind = "text"
		}
	}
	return props, nil
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// splitName splits a base name into stem and extension (with the dot).
// A name whose only dot is the leading one has no extension.
func splitName(name string) (stem, ext string) {
	ext = filepath.Ext(name)
	if ext == name || ext == "." {
		return name, ""
	}
	return strings.TrimSuffix(name, ext), ext
}

func extension(name string) string {
	_, ext := splitName(name)
	return strings.TrimPrefix(ext, ".")
}

func formatModified(info fs.FileInfo) string {
	mt := info.ModTime()
	if mt.IsZero() || mt.Unix() < 0 {
		return ""
	}
	return mt.UTC().Format(timeLayout)
}

func isTextMIME(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}

// classifyKind determines a coarse kind from the name's extension.
func classifyKind(name string, isDir bool) string {
	if isDir {
		return "dir"
	}

	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return "blob"
	}

	if major, minor, ok := strings.Cut(mime.TypeByExtension(ext), "/"); ok {
		switch major {
		case "video", "audio", "image", "text":
			return major
		case "application":
			if minor == "pdf" {
				return "pdf"
			}
			if strings.Contains(minor, "json") || strings.Contains(minor, "xml") ||
				strings.Contains(minor, "javascript") || strings.Contains(minor, "typescript") {
				return "text"
			}
		}
	}

	switch ext {
	case ".mp4", ".mkv", ".avi", ".mov", ".wmv", ".flv", ".webm", ".m4v":
		return "video"
	case ".mp3", ".wav", ".flac", ".aac", ".ogg", ".wma", ".m4a", ".opus":
		return "audio"
	case ".jpg", ".jpeg", ".png", ".gif", ".bmp", ".svg", ".webp", ".tiff", ".ico":
		return "image"
	case ".pdf":
		return "pdf"
	case ".txt", ".md", ".json", ".xml", ".csv", ".yaml", ".yml", ".toml",
		".go", ".py", ".js", ".ts", ".html", ".css", ".sh", ".bash",
		".c", ".h", ".cpp", ".java", ".rs", ".rb", ".php", ".vue", ".sql":
		return "text"
	}
	return "blob"
}
