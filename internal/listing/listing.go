// Package listing reads one level of a directory into entries that the API
// serves and the content cache mirrors.
package listing

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"dirwatch/internal/fsutil"
)

var ErrNotADirectoryOrUnreadable = errors.New("not a directory or unreadable")

// Entry is a file or directory. Contents is only set on the directory that
// was read, never on its children.
type Entry struct {
	Name        string  `json:"name"`
	Path        string  `json:"path"`
	IsDirectory bool    `json:"isDirectory"`
	Contents    []Entry `json:"contents,omitempty"`
}

// ReadOneLevel lists the direct children of path.
func ReadOneLevel(path string) (Entry, error) {
	dir, err := fsutil.CanonicalPath(path)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %q: %w", ErrNotADirectoryOrUnreadable, path, err)
	}

	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %w", ErrNotADirectoryOrUnreadable, err)
	}

	contents := make([]Entry, 0, len(dirEntries))
	for _, dirEntry := range dirEntries {
		contents = append(contents, Entry{
			Name:        dirEntry.Name(),
			Path:        filepath.Join(dir, dirEntry.Name()),
			IsDirectory: dirEntry.IsDir(),
		})
	}

	return Entry{
		Name:        fsutil.BaseName(dir),
		Path:        dir,
		IsDirectory: true,
		Contents:    contents,
	}, nil
}
