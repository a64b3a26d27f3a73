package tracker

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func entity(id string, lat, lng float64) EntityState {
	return EntityState{ID: id, Position: Position{Lat: lat, Lng: lng}, Color: "blue", Kind: "car"}
}

func TestUpsertReplaces(t *testing.T) {
	table := NewTable()
	table.Upsert(entity("a", 1, 1))
	table.Upsert(entity("b", 2, 2))
	table.Upsert(entity("a", 3, 3))

	assert.Equal(t, 2, table.Len(), "table size is the number of distinct ids")
	a, ok := table.Get("a")
	assert.True(t, ok)
	assert.Equal(t, Position{3, 3}, a.Position)
}

func TestDetachEmptiesTable(t *testing.T) {
	table := NewTable()
	table.Upsert(entity("a", 1, 1))
	s := table.Detach()
	assert.Len(t, s, 1)
	assert.Equal(t, 0, table.Len())
}

func TestMergeKeepsConcurrentUpdates(t *testing.T) {
	table := NewTable()
	table.Upsert(entity("a", 1, 1))
	table.Upsert(entity("b", 2, 2))

	s := table.Detach()
	// reports landing between detach and merge
	table.Upsert(entity("c", 3, 3))
	table.Upsert(entity("a", 9, 9))

	assert.Equal(t, 3, table.Merge(s))
	a, _ := table.Get("a")
	assert.Equal(t, Position{9, 9}, a.Position, "an update written after detach wins over the snapshot")
	_, ok := table.Get("c")
	assert.True(t, ok, "an entity first seen after detach must survive the merge")
	_, ok = table.Get("b")
	assert.True(t, ok)
}

func TestConcurrentUpsertDuringDetachMerge(t *testing.T) {
	table := NewTable()
	const writers, reports = 4, 250

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < reports; i++ {
				table.Upsert(entity(fmt.Sprintf("w%d-%d", w, i), float64(i), 0))
			}
		}(w)
	}
	done, stopped := make(chan struct{}), make(chan struct{})
	go func() {
		defer close(stopped)
		for {
			select {
			case <-done:
				return
			default:
				table.Merge(table.Detach())
			}
		}
	}()
	wg.Wait()
	close(done)
	<-stopped

	assert.Equal(t, writers*reports, table.Len(), "no report may be lost across detach and merge")
}
