package logging

import "sync"

// LogBuffer keeps the newest entries in a fixed ring for the logs endpoint.
type LogBuffer struct {
	mu    sync.Mutex
	ring  []LogEntry
	start int
	count int
}

func NewLogBuffer(size int) *LogBuffer {
	return &LogBuffer{ring: make([]LogEntry, max(size, 1))}
}

// Add stores entry, overwriting the oldest one when the ring is full.
func (b *LogBuffer) Add(entry LogEntry) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count < len(b.ring) {
		b.ring[(b.start+b.count)%len(b.ring)] = entry
		b.count++
		return
	}
	b.ring[b.start] = entry
	b.start = (b.start + 1) % len(b.ring)
}

// List returns buffered entries oldest first.
func (b *LogBuffer) List() []LogEntry {
	return b.Tail(0)
}

// Tail returns at most limit of the newest entries, oldest first. A limit
// of zero or less returns everything.
func (b *LogBuffer) Tail(limit int) []LogEntry {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.count
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]LogEntry, n)
	first := b.start + b.count - n
	for i := range out {
		out[i] = b.ring[(first+i)%len(b.ring)]
	}
	return out
}
