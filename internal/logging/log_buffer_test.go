package logging

import (
	"strconv"
	"sync"
	"testing"
)

func messages(entries []LogEntry) []string {
	out := make([]string, len(entries))
	for i, entry := range entries {
		out[i] = entry.Message
	}
	return out
}

func TestLogBufferKeepsNewestEntries(t *testing.T) {
	cases := []struct {
		name  string
		size  int
		added []string
		want  []string
	}{
		{name: "empty", size: 3, want: []string{}},
		{name: "partial", size: 3, added: []string{"a", "b"}, want: []string{"a", "b"}},
		{name: "exactly full", size: 2, added: []string{"a", "b"}, want: []string{"a", "b"}},
		{name: "wrapped", size: 2, added: []string{"a", "b", "c"}, want: []string{"b", "c"}},
		{name: "wrapped twice", size: 2, added: []string{"a", "b", "c", "d", "e"}, want: []string{"d", "e"}},
		{name: "size clamped", size: 0, added: []string{"a", "b"}, want: []string{"b"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			buffer := NewLogBuffer(tc.size)
			for _, message := range tc.added {
				buffer.Add(LogEntry{Message: message})
			}
			got := messages(buffer.List())
			if len(got) != len(tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("expected %v, got %v", tc.want, got)
				}
			}
		})
	}
}

func TestLogBufferTail(t *testing.T) {
	buffer := NewLogBuffer(4)
	for _, message := range []string{"a", "b", "c", "d", "e"} {
		buffer.Add(LogEntry{Message: message})
	}

	if got := messages(buffer.Tail(2)); len(got) != 2 || got[0] != "d" || got[1] != "e" {
		t.Fatalf("unexpected tail %v", got)
	}
	if got := len(buffer.Tail(0)); got != 4 {
		t.Fatalf("expected full list for limit 0, got %d", got)
	}
	if got := len(buffer.Tail(10)); got != 4 {
		t.Fatalf("expected full list for large limit, got %d", got)
	}
}

func TestLogBufferConcurrentAdds(t *testing.T) {
	buffer := NewLogBuffer(50)

	var wg sync.WaitGroup
	for worker := 0; worker < 10; worker++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				buffer.Add(LogEntry{Message: strconv.Itoa(worker)})
			}
		}()
	}
	wg.Wait()

	if got := len(buffer.List()); got != 50 {
		t.Fatalf("expected 50 entries, got %d", got)
	}
}

func TestNilLogBufferIsSafe(t *testing.T) {
	var buffer *LogBuffer
	buffer.Add(LogEntry{Message: "dropped"})
	if entries := buffer.Tail(5); entries != nil {
		t.Fatalf("expected nil entries, got %v", entries)
	}
}
