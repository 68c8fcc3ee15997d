package native

import (
	"sync"
	"sync/atomic"
)

// tags keeps pointers from different tables disjoint.
var tags atomic.Uint32

// Table is a mutex-protected arena of native objects. Pointers are never
// reused, so a stale pointer can not alias a newer object.
type Table[T any] struct {
	entries []entry[T]
	tag     uint32
	live    int
	mu      sync.Mutex
}

type entry[T any] struct {
	value T
	valid bool
}

// NewTable creates an empty arena.
func NewTable[T any]() *Table[T] {
	return &Table[T]{
		entries: make([]entry[T], 0, 16),
		tag:     tags.Add(1),
	}
}

// Put stores v and returns its pointer.
func (t *Table[T]) Put(v T) Ptr {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries = append(t.entries, entry[T]{value: v, valid: true})
	t.live++
	return t.ptr(len(t.entries))
}

// Get returns the object at p.
func (t *Table[T]) Get(p Ptr) (T, bool) {
	var zero T
	idx, ok := t.index(p)
	if !ok {
		return zero, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if idx >= len(t.entries) || !t.entries[idx].valid {
		return zero, false
	}
	return t.entries[idx].value, true
}

// Delete removes the object at p and returns it. It reports false when p is
// null, foreign or already deleted.
func (t *Table[T]) Delete(p Ptr) (T, bool) {
	var zero T
	idx, ok := t.index(p)
	if !ok {
		return zero, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if idx >= len(t.entries) || !t.entries[idx].valid {
		return zero, false
	}
	e := &t.entries[idx]
	v := e.value
	e.value = zero
	e.valid = false
	t.live--
	return v, true
}

// Live returns the number of objects not yet deleted.
func (t *Table[T]) Live() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live
}

func (t *Table[T]) ptr(n int) Ptr {
	return Ptr(uint64(t.tag)<<32 | uint64(n))
}

func (t *Table[T]) index(p Ptr) (int, bool) {
	if p == 0 || uint32(uint64(p)>>32) != t.tag {
		return 0, false
	}
	n := int(uint32(p))
	if n == 0 {
		return 0, false
	}
	return n - 1, true
}
