// Package tracker classifies polled items as created, updated, deleted or
// unchanged relative to the previous poll.
package tracker

import (
	"sort"
	"sync"
	"time"
)

// Snapshot is the observed state of one item at poll time.
type Snapshot struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	ModifiedAt time.Time `json:"modified_at"`
}

// Change is the per-cycle classification of an item.
type Change int

const (
	Unchanged Change = iota
	Created
	Updated
	Deleted
)

func (c Change) String() string {
	switch c {
	case Created:
		return "created"
	case Updated:
		return "updated"
	case Deleted:
		return "deleted"
	default:
		return "unchanged"
	}
}

// ItemStatus is recomputed every cycle and never carries over.
type ItemStatus struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	ModifiedAt time.Time `json:"modified_at"`
	Change     Change    `json:"change"`
}

func (s ItemStatus) IsCreated() bool { return s.Change == Created }
func (s ItemStatus) IsUpdated() bool { return s.Change == Updated }
func (s ItemStatus) IsDeleted() bool { return s.Change == Deleted }

// Cache maps item IDs to their last observed snapshot. Treat it as immutable;
// Reconcile always returns a fresh one.
type Cache map[string]Snapshot

// Clone returns a shallow copy of c.
func (c Cache) Clone() Cache {
	out := make(Cache, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Reconcile classifies items against old and returns the cache that should
// follow. ModifiedAt drives the Updated flag; callers still compare bodies
// before acting. Statuses follow items order, then deletions sorted by ID.
// old is not modified.
func Reconcile(old Cache, items []Snapshot) (Cache, []ItemStatus) {
	next := make(Cache, len(items))
	order := make([]string, 0, len(items))
	for _, it := range items {
		if _, seen := next[it.ID]; !seen {
			order = append(order, it.ID)
		}
		next[it.ID] = it
	}

	statuses := make([]ItemStatus, 0, len(order))
	for _, id := range order {
		it := next[id]
		st := ItemStatus{ID: it.ID, Title: it.Title, ModifiedAt: it.ModifiedAt}
		prev, ok := old[id]
		switch {
		case !ok:
			st.Change = Created
		case !prev.ModifiedAt.Equal(it.ModifiedAt):
			st.Change = Updated
		}
		statuses = append(statuses, st)
	}

	var gone []string
	for id := range old {
		if _, ok := next[id]; !ok {
			gone = append(gone, id)
		}
	}
	sort.Strings(gone)
	for _, id := range gone {
		prev := old[id]
		statuses = append(statuses, ItemStatus{
			ID:         id,
			Title:      prev.Title,
			ModifiedAt: prev.ModifiedAt,
			Change:     Deleted,
		})
	}
	return next, statuses
}

// Tracker holds the committed cache for a polling loop. The loop is the only
// writer; readers such as the status server go through the lock.
type Tracker struct {
	mu    sync.RWMutex
	cache Cache
}

func New() *Tracker {
	return &Tracker{cache: Cache{}}
}

// Reconcile runs Reconcile against the committed cache without committing.
func (t *Tracker) Reconcile(items []Snapshot) (Cache, []ItemStatus) {
	t.mu.RLock()
	old := t.cache
	t.mu.RUnlock()
	return Reconcile(old, items)
}

// Committed returns a copy of the committed cache.
func (t *Tracker) Committed() Cache {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cache.Clone()
}

// Commit replaces the committed cache.
func (t *Tracker) Commit(c Cache) {
	if c == nil {
		c = Cache{}
	}
	t.mu.Lock()
	t.cache = c
	t.mu.Unlock()
}

// Snapshot returns the committed snapshot for id.
func (t *Tracker) Snapshot(id string) (Snapshot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.cache[id]
	return s, ok
}

// Items lists committed snapshots sorted by ID.
func (t *Tracker) Items() []Snapshot {
	t.mu.RLock()
	out := make([]Snapshot, 0, len(t.cache))
	for _, s := range t.cache {
		out = append(out, s)
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.cache)
}
