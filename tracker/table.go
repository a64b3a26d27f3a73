package tracker

import "sync"

// Snapshot is a detached copy of the table contents, owned by whoever holds it.
type Snapshot map[string]EntityState

// Table maps entity IDs to their latest state. The lock is only held for single upserts, the detach swap and the
// merge; never while distances are computed or messages are sent.
type Table struct {
	mu      sync.Mutex
	entries Snapshot
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{entries: make(Snapshot)}
}

// Upsert stores e, replacing any previous state for the same ID.
func (t *Table) Upsert(e EntityState) {
	t.mu.Lock()
	t.entries[e.ID] = e
	t.mu.Unlock()
}

// Detach swaps the table contents for an empty map and returns them.
func (t *Table) Detach() Snapshot {
	t.mu.Lock()
	s := t.entries
	t.entries = make(Snapshot)
	t.mu.Unlock()
	return s
}

// Merge copies every entry upserted since s was detached into s, then installs s as the table contents. Entries
// written since the detach win over those in s. Returns the number of entries in the merged table.
func (t *Table) Merge(s Snapshot) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, e := range t.entries {
		s[id] = e
	}
	t.entries = s
	return len(s)
}

// Len returns the number of entities in the table.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Get returns the stored state for id.
func (t *Table) Get(id string) (EntityState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	return e, ok
}
