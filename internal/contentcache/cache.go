// Package contentcache mirrors directory notifications into a local index of
// one-level listings keyed by directory path.
package contentcache

import (
	"sort"
	"sync"

	"dirwatch/internal/fsutil"
	"dirwatch/internal/listing"
	"dirwatch/internal/watcher"
)

// Cache maps a directory path to its sorted children. A key exists only for
// directories the owner chose to expand; notifications for other parents are
// ignored. Safe for concurrent use.
type Cache struct {
	mutex   sync.RWMutex
	entries map[string][]listing.Entry
}

func New() *Cache {
	return &Cache{entries: make(map[string][]listing.Entry)}
}

// Set replaces the listing cached for dir with a sorted copy of entries.
func (cache *Cache) Set(dir string, entries []listing.Entry) {
	children := make([]listing.Entry, 0, len(entries))
	for _, entry := range entries {
		entry.Contents = nil
		children = append(children, entry)
	}
	SortEntries(children)

	cache.mutex.Lock()
	cache.entries[dir] = children
	cache.mutex.Unlock()
}

// Get returns a copy of the listing cached for dir.
func (cache *Cache) Get(dir string) ([]listing.Entry, bool) {
	cache.mutex.RLock()
	defer cache.mutex.RUnlock()
	children, ok := cache.entries[dir]
	if !ok {
		return nil, false
	}
	return append([]listing.Entry(nil), children...), true
}

func (cache *Cache) Has(dir string) bool {
	cache.mutex.RLock()
	defer cache.mutex.RUnlock()
	_, ok := cache.entries[dir]
	return ok
}

// Keys returns the cached directory paths in sorted order.
func (cache *Cache) Keys() []string {
	cache.mutex.RLock()
	keys := make([]string, 0, len(cache.entries))
	for key := range cache.entries {
		keys = append(keys, key)
	}
	cache.mutex.RUnlock()
	sort.Strings(keys)
	return keys
}

func (cache *Cache) Len() int {
	cache.mutex.RLock()
	defer cache.mutex.RUnlock()
	return len(cache.entries)
}

// Drop removes the whole listing for dir, as done when it is unwatched.
func (cache *Cache) Drop(dir string) {
	cache.mutex.Lock()
	delete(cache.entries, dir)
	cache.mutex.Unlock()
}

// Reset empties the cache.
func (cache *Cache) Reset() {
	cache.mutex.Lock()
	cache.entries = make(map[string][]listing.Entry)
	cache.mutex.Unlock()
}

// ApplyAdd records entry as a child of parent. It reports whether the cache
// changed: an entry equal to its parent, an uncached parent and a path that
// is already listed are all ignored.
func (cache *Cache) ApplyAdd(parent string, entry listing.Entry) bool {
	if entry.Path == parent {
		return false
	}

	cache.mutex.Lock()
	defer cache.mutex.Unlock()
	children, ok := cache.entries[parent]
	if !ok {
		return false
	}
	for _, child := range children {
		if child.Path == entry.Path {
			return false
		}
	}

	updated := make([]listing.Entry, 0, len(children)+1)
	updated = append(updated, children...)
	updated = append(updated, listing.Entry{
		Name:        fsutil.BaseName(entry.Path),
		Path:        entry.Path,
		IsDirectory: entry.IsDirectory,
	})
	SortEntries(updated)
	cache.entries[parent] = updated
	return true
}

// ApplyRemove drops entry from parent's listing. A removed directory also
// takes its own listing and every cached listing below it.
func (cache *Cache) ApplyRemove(parent string, entry listing.Entry) bool {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	changed := false
	if entry.IsDirectory {
		changed = cache.purgeLocked(entry.Path)
	}

	children, ok := cache.entries[parent]
	if !ok {
		return changed
	}
	kept := make([]listing.Entry, 0, len(children))
	for _, child := range children {
		if child.Path == entry.Path && child.IsDirectory == entry.IsDirectory {
			changed = true
			continue
		}
		kept = append(kept, child)
	}
	cache.entries[parent] = kept
	return changed
}

// purgeLocked deletes root and its cached descendants. Descendants are
// reached through the cached listings; a final sweep catches listings whose
// intermediate directory was never cached.
func (cache *Cache) purgeLocked(root string) bool {
	changed := false
	stack := []string{root}
	for len(stack) > 0 {
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		children, ok := cache.entries[dir]
		if !ok {
			continue
		}
		delete(cache.entries, dir)
		changed = true
		for _, child := range children {
			if child.IsDirectory {
				stack = append(stack, child.Path)
			}
		}
	}

	for key := range cache.entries {
		if fsutil.IsWithin(root, key) {
			delete(cache.entries, key)
			changed = true
		}
	}
	return changed
}

// Apply routes a normalized event to ApplyAdd or ApplyRemove.
func (cache *Cache) Apply(event watcher.Event) bool {
	entry := listing.Entry{
		Path:        event.Path,
		IsDirectory: event.Kind.IsDirectory(),
	}
	switch event.Kind {
	case watcher.KindFileAdd, watcher.KindDirAdd:
		return cache.ApplyAdd(event.Parent, entry)
	case watcher.KindFileUnlink, watcher.KindDirUnlink:
		return cache.ApplyRemove(event.Parent, entry)
	default:
		return false
	}
}

// SortEntries orders entries in place, directories first and then by name,
// and returns the slice.
func SortEntries(entries []listing.Entry) []listing.Entry {
	sort.SliceStable(entries, func(i, j int) bool {
		left, right := entries[i], entries[j]
		if left.IsDirectory != right.IsDirectory {
			return left.IsDirectory
		}
		return left.Name < right.Name
	})
	return entries
}
