package fsops

import "time"

// nowFunc is the time source, replaceable in tests.
var nowFunc = time.Now

// timeLayout formats FileEntry.Modified at seconds resolution.
const timeLayout = "2006-01-02 15:04:05"

// FileEntry is an immutable snapshot of one filesystem object.
// IsDir reflects the symlink target, not the link itself.
type FileEntry struct {
	Name      string `json:"name" yaml:"name"`
	Path      string `json:"path" yaml:"path"`
	IsDir     bool   `json:"is_dir" yaml:"is_dir"`
	IsHidden  bool   `json:"is_hidden" yaml:"is_hidden"`
	Size      int64  `json:"size" yaml:"size"`         // 0 for directories
	Modified  string `json:"modified" yaml:"modified"` // "" if unavailable
	Extension string `json:"extension" yaml:"extension"`
	IsSymlink bool   `json:"is_symlink" yaml:"is_symlink"`
}

// DirContents is the sorted listing of one directory.
// Parent is nil only for a filesystem root.
type DirContents struct {
	Path    string      `json:"path" yaml:"path"`
	Entries []FileEntry `json:"entries" yaml:"entries"`
	Parent  *string     `json:"parent" yaml:"parent"`
}

// FileProperties extends FileEntry with details for a properties view.
type FileProperties struct {
	FileEntry  `yaml:",inline"`
	MimeType   string `json:"mime_type,omitempty" yaml:"mime_type,omitempty"`
	Kind       string `json:"kind" yaml:"kind"` // "dir"|"video"|"audio"|"image"|"pdf"|"text"|"blob"
	IsReadonly bool   `json:"is_readonly" yaml:"is_readonly"`
	ItemCount  *int   `json:"item_count" yaml:"item_count"` // nil for files
}

// RenamePair records one applied rename of a batch.
type RenamePair struct {
	Old string `json:"old" yaml:"old"`
	New string `json:"new" yaml:"new"`
}

// Location is a named shortcut path such as Home or Downloads.
type Location struct {
	Name string `json:"name" yaml:"name"`
	Path string `json:"path" yaml:"path"`
}
