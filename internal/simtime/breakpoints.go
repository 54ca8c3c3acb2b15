package simtime

import "sort"

// BreakpointTable is an ordered set of future times at which a firing is
// mandatory. Entries within the resolution of each other collapse into one.
//
// Not safe for concurrent use; it belongs to a single director.
type BreakpointTable struct {
	resolution Resolution
	points     []Time // ascending, deduplicated under resolution
}

// NewBreakpointTable creates an empty table.
func NewBreakpointTable(resolution Resolution) *BreakpointTable {
	if resolution <= 0 {
		resolution = DefaultResolution
	}
	return &BreakpointTable{resolution: resolution}
}

// Insert adds t. Returns false if an equal entry already exists.
func (b *BreakpointTable) Insert(t Time) bool {
	i := b.search(t)
	if i < len(b.points) && b.resolution.Equal(b.points[i], t) {
		return false
	}
	if i > 0 && b.resolution.Equal(b.points[i-1], t) {
		return false
	}
	b.points = append(b.points, 0)
	copy(b.points[i+1:], b.points[i:])
	b.points[i] = t
	return true
}

// First returns the earliest entry.
func (b *BreakpointTable) First() (Time, bool) {
	if len(b.points) == 0 {
		return 0, false
	}
	return b.points[0], true
}

// RemoveFirst removes and returns the earliest entry.
func (b *BreakpointTable) RemoveFirst() (Time, bool) {
	t, ok := b.First()
	if !ok {
		return 0, false
	}
	b.points[0] = 0
	b.points = b.points[1:]
	if len(b.points) == 0 {
		b.points = nil
	}
	return t, true
}

// Contains reports whether t is in the table.
func (b *BreakpointTable) Contains(t Time) bool {
	i := b.search(t)
	if i < len(b.points) && b.resolution.Equal(b.points[i], t) {
		return true
	}
	return i > 0 && b.resolution.Equal(b.points[i-1], t)
}

// Prune removes every entry strictly before now and returns how many were
// removed. An entry equal to now is kept; it is still pending.
func (b *BreakpointTable) Prune(now Time) int {
	n := 0
	for len(b.points) > 0 && b.resolution.Before(b.points[0], now) {
		b.RemoveFirst()
		n++
	}
	return n
}

// ConsumeAt prunes stale entries and removes the entry equal to now, if
// present. Returns whether now was a pending breakpoint.
func (b *BreakpointTable) ConsumeAt(now Time) bool {
	b.Prune(now)
	if first, ok := b.First(); ok && b.resolution.Equal(first, now) {
		b.RemoveFirst()
		return true
	}
	return false
}

// Next returns the earliest entry strictly after now.
func (b *BreakpointTable) Next(now Time) (Time, bool) {
	for _, p := range b.points {
		if b.resolution.After(p, now) {
			return p, true
		}
	}
	return 0, false
}

// Len returns the number of entries.
func (b *BreakpointTable) Len() int {
	return len(b.points)
}

// Clear removes all entries.
func (b *BreakpointTable) Clear() {
	b.points = nil
}

// Points returns a copy of the entries in ascending order.
func (b *BreakpointTable) Points() []Time {
	out := make([]Time, len(b.points))
	copy(out, b.points)
	return out
}

// search returns the index of the first entry >= t (raw comparison).
func (b *BreakpointTable) search(t Time) int {
	return sort.Search(len(b.points), func(i int) bool {
		return b.points[i] >= t
	})
}
