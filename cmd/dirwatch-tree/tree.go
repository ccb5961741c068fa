package main

import (
	"fmt"
	"io"

	"dirwatch/internal/contentcache"
	"dirwatch/internal/listing"
)

// renderTree prints roots and, below every expanded directory, its cached
// contents.
func renderTree(out io.Writer, roots []listing.Entry, cache *contentcache.Cache, expanded func(string) bool) {
	if len(roots) == 0 {
		fmt.Fprintln(out, "No directories provided")
		return
	}
	for _, root := range roots {
		renderEntry(out, root, "", cache, expanded)
	}
}

func renderEntry(out io.Writer, entry listing.Entry, indent string, cache *contentcache.Cache, expanded func(string) bool) {
	label := entry.Name
	if label == "" {
		label = entry.Path
	}
	if !entry.IsDirectory {
		fmt.Fprintf(out, "%s  %s\n", indent, label)
		return
	}
	if !expanded(entry.Path) {
		fmt.Fprintf(out, "%s› %s/\n", indent, label)
		return
	}
	fmt.Fprintf(out, "%s⌄ %s/\n", indent, label)
	children, _ := cache.Get(entry.Path)
	for _, child := range children {
		renderEntry(out, child, indent+"  ", cache, expanded)
	}
}
