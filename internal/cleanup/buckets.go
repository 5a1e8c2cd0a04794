package cleanup

import (
	"sort"
	"sync"
)

// Bucket is every directory found at one depth below the sweep root.
type Bucket struct {
	Depth int
	Paths []string
}

// bucketer groups directories by depth while the walk is running.
type bucketer struct {
	mu      sync.Mutex
	byDepth map[int][]string
}

func (b *bucketer) add(depth int, path string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.byDepth == nil {
		b.byDepth = make(map[int][]string)
	}
	b.byDepth[depth] = append(b.byDepth[depth], path)
}

// ordered returns the buckets deepest first. Paths inside a bucket are
// sorted so runs over the same tree issue removals in the same order.
func (b *bucketer) ordered() []Bucket {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Bucket, 0, len(b.byDepth))
	for depth, paths := range b.byDepth {
		sorted := append([]string(nil), paths...)
		sort.Strings(sorted)
		out = append(out, Bucket{Depth: depth, Paths: sorted})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Depth > out[j].Depth
	})
	return out
}
