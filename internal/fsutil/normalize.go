package fsutil

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

var ErrEmptyPath = errors.New("path is empty")

// CanonicalPath resolves a path to the absolute, cleaned form used as a map
// key by the watch registry and the content cache. Symlinks are not
// evaluated, so a link and its target are distinct keys.
func CanonicalPath(pathValue string) (string, error) {
	if strings.TrimSpace(pathValue) == "" {
		return "", ErrEmptyPath
	}
	abs, err := filepath.Abs(filepath.FromSlash(pathValue))
	if err != nil {
		return "", err
	}
	return trimTrailingSeparator(filepath.Clean(abs)), nil
}

// CanonicalPaths canonicalizes values and drops duplicates, keeping the
// first occurrence. Values that cannot be canonicalized are kept verbatim so
// callers still report them as failures.
func CanonicalPaths(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		canonical, err := CanonicalPath(value)
		if err != nil {
			canonical = value
		}
		if _, ok := seen[canonical]; ok {
			continue
		}
		seen[canonical] = struct{}{}
		out = append(out, canonical)
	}
	return out
}

// BaseName returns the final segment of a path, tolerating trailing separators.
func BaseName(pathValue string) string {
	trimmed := trimTrailingSeparator(pathValue)
	if trimmed == "" {
		return ""
	}
	index := strings.LastIndexAny(trimmed, `/`+string(os.PathSeparator))
	if index < 0 {
		return trimmed
	}
	if index == len(trimmed)-1 {
		return trimmed
	}
	return trimmed[index+1:]
}

// IsWithin reports whether child is parent or lies below it.
func IsWithin(parent, child string) bool {
	parentPath := filepath.Clean(parent)
	childPath := filepath.Clean(child)
	rel, err := filepath.Rel(parentPath, childPath)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return false
	}
	return true
}

func trimTrailingSeparator(pathValue string) string {
	volume := filepath.VolumeName(pathValue)
	rest := pathValue[len(volume):]
	for len(rest) > 1 && (rest[len(rest)-1] == '/' || rest[len(rest)-1] == os.PathSeparator) {
		rest = rest[:len(rest)-1]
	}
	return volume + rest
}
