package listing

import (
	"context"

	"dirwatch/internal/fsutil"

	"golang.org/x/sync/errgroup"
)

const DefaultConcurrency = 8

// Result is the settled outcome of reading one requested path.
type Result struct {
	Path  string
	Entry Entry
	Err   error
}

type BatchOptions struct {
	Concurrency int
	Read        func(string) (Entry, error)
}

// ReadMany reads every distinct path and returns one result per path in
// request order. A failing path never cancels its siblings; a cancelled
// context marks the reads that had not started yet.
func ReadMany(ctx context.Context, paths []string, options BatchOptions) []Result {
	if ctx == nil {
		ctx = context.Background()
	}
	concurrency := options.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	read := options.Read
	if read == nil {
		read = ReadOneLevel
	}

	unique := fsutil.CanonicalPaths(paths)
	results := make([]Result, len(unique))

	var group errgroup.Group
	group.SetLimit(concurrency)
	for index, path := range unique {
		results[index].Path = path
		group.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[index].Err = err
				return nil
			}
			entry, err := read(path)
			results[index].Entry = entry
			results[index].Err = err
			return nil
		})
	}
	_ = group.Wait()
	return results
}

// Successful keeps the entries of fulfilled results, preserving order.
func Successful(results []Result) []Entry {
	entries := make([]Entry, 0, len(results))
	for _, result := range results {
		if result.Err != nil {
			continue
		}
		entries = append(entries, result.Entry)
	}
	return entries
}
