package search

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/armon/go-radix"
)

// pathIndex tracks directories already scheduled for enumeration using a
// compressed radix tree, so overlapping scope roots never contribute the same
// directory (and therefore the same file path) twice to one result set.
type pathIndex struct {
	mu   sync.Mutex
	tree *radix.Tree
}

func newPathIndex() *pathIndex {
	return &pathIndex{tree: radix.New()}
}

// visit marks path as scheduled and reports whether this was the first visit.
func (ix *pathIndex) visit(path string) bool {
	key := normalizeIndexPath(path)

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if _, ok := ix.tree.Get(key); ok {
		return false
	}
	ix.tree.Insert(key, struct{}{})
	return true
}

// covered reports whether path or one of its ancestors has been visited.
// Ancestor coverage matters when a caller schedules a root nested inside a
// root that is already being traversed.
func (ix *pathIndex) covered(path string) bool {
	key := normalizeIndexPath(path)

	ix.mu.Lock()
	defer ix.mu.Unlock()

	_, _, ok := ix.tree.LongestPrefix(key)
	return ok
}

func normalizeIndexPath(path string) string {
	clean := filepath.Clean(path)
	if !strings.HasSuffix(clean, string(filepath.Separator)) {
		clean += string(filepath.Separator)
	}
	return clean
}
