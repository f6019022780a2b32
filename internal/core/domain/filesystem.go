package domain

import "strings"

// EntryKind distinguishes files from directories.
type EntryKind string

const (
	KindFile      EntryKind = "file"
	KindDirectory EntryKind = "directory"
)

// FilesystemEntry is one path inside a container, computed per request.
type FilesystemEntry struct {
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	ParentPath *string   `json:"parentPath"`
	Kind       EntryKind `json:"kind"`
	Content    *string   `json:"content"`
	IsSaved    bool      `json:"isSaved"`
	IsOpen     bool      `json:"isOpen"`
}

// NewFilesystemEntry derives name and parent from an absolute path. The parent
// is the path with its last segment removed, or nil when that leaves nothing
// (so "/app" has no parent and "/app/src" has parent "/app").
func NewFilesystemEntry(path string, kind EntryKind) FilesystemEntry {
	entry := FilesystemEntry{
		Name:    path,
		Path:    path,
		Kind:    kind,
		IsSaved: true,
	}
	if i := strings.LastIndex(path, "/"); i >= 0 {
		entry.Name = path[i+1:]
		if parent := path[:i]; parent != "" {
			entry.ParentPath = &parent
		}
	}
	return entry
}
