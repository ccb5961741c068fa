// Package watcher keeps shallow watches on directories and turns their raw
// filesystem notifications into normalized add/remove events.
//
// A Registry holds at most one underlying watcher per canonical directory
// path. Each watched directory runs its own goroutine, so events for one
// directory are delivered in the order the backend reported them; there is
// no ordering across directories.
package watcher
