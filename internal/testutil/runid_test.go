package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/hysim/internal/store"
)

var (
	_ store.RunIDGenerator = store.FixedRunID("")
	_ store.RunIDGenerator = (*SequentialRunIDs)(nil)
)

func TestFixedRunIDGenerator(t *testing.T) {
	gen := NewFixedRunIDGenerator("run-7")
	assert.Equal(t, "run-7", gen.Generate())
	assert.Equal(t, "run-7", gen.Generate())

	assert.Equal(t, DefaultRunID, NewFixedRunIDGenerator("").Generate())
}

func TestSequentialRunIDs(t *testing.T) {
	gen := NewSequentialRunIDs("run")
	assert.Equal(t, "run-1", gen.Generate())
	assert.Equal(t, "run-2", gen.Generate())
}

func TestSequentialRunIDs_ConcurrentAreUnique(t *testing.T) {
	gen := NewSequentialRunIDs("r")

	var mu sync.Mutex
	seen := make(map[string]bool)
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				id := gen.Generate()
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 400)
}
