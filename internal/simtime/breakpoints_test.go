package simtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBreakpointTable_InsertOrdersAndDedups(t *testing.T) {
	b := NewBreakpointTable(1e-9)

	assert.True(t, b.Insert(3))
	assert.True(t, b.Insert(1))
	assert.True(t, b.Insert(2))
	assert.False(t, b.Insert(2+1e-12), "duplicate within resolution collapses")
	assert.False(t, b.Insert(1-1e-12), "duplicate just below an entry collapses")

	assert.Equal(t, []Time{1, 2, 3}, b.Points())
	assert.Equal(t, 3, b.Len())
}

func TestBreakpointTable_FirstAndRemoveFirst(t *testing.T) {
	b := NewBreakpointTable(0)

	_, ok := b.First()
	assert.False(t, ok)
	_, ok = b.RemoveFirst()
	assert.False(t, ok)

	b.Insert(5)
	b.Insert(4)
	first, ok := b.First()
	assert.True(t, ok)
	assert.Equal(t, Time(4), first)

	removed, ok := b.RemoveFirst()
	assert.True(t, ok)
	assert.Equal(t, Time(4), removed)
	assert.Equal(t, []Time{5}, b.Points())
}

func TestBreakpointTable_PruneKeepsCurrentInstant(t *testing.T) {
	b := NewBreakpointTable(1e-9)
	for _, p := range []Time{0.5, 1, 1.5, 2} {
		b.Insert(p)
	}

	assert.Equal(t, 2, b.Prune(1.5))
	assert.Equal(t, []Time{1.5, 2}, b.Points())
	assert.True(t, b.Contains(1.5))
}

func TestBreakpointTable_ConsumeAt(t *testing.T) {
	b := NewBreakpointTable(1e-9)
	b.Insert(1)
	b.Insert(2)

	assert.True(t, b.ConsumeAt(1))
	assert.False(t, b.ConsumeAt(1), "an entry is consumed once")
	assert.False(t, b.ConsumeAt(1.5))
	assert.Equal(t, []Time{2}, b.Points())

	// Consuming a later instant drops everything stale first.
	b.Insert(3)
	assert.True(t, b.ConsumeAt(3))
	assert.Equal(t, 0, b.Len())
}

func TestBreakpointTable_Next(t *testing.T) {
	b := NewBreakpointTable(1e-9)
	b.Insert(1)
	b.Insert(2)

	next, ok := b.Next(1)
	assert.True(t, ok)
	assert.Equal(t, Time(2), next, "an entry equal to now is not in the future")

	_, ok = b.Next(2)
	assert.False(t, ok)
}

func TestBreakpointTable_Clear(t *testing.T) {
	b := NewBreakpointTable(1e-9)
	b.Insert(1)
	b.Clear()
	assert.Equal(t, 0, b.Len())
	assert.False(t, b.Contains(1))
}
