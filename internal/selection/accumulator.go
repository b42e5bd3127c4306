// Package selection maintains the growing set of chosen category ids across
// voice turns and manual card toggles.
package selection

import "sync"

// Accumulator is a duplicate-free, insertion-ordered id set.
//
// Two mutation paths feed it — Toggle for manual clicks and Accumulate for
// voice matches — and they commute: neither path removes ids added by the
// other, so the final set depends only on the multiset of operations, not
// their order. All methods are safe for concurrent use.
type Accumulator struct {
	mu      sync.Mutex
	order   []string
	present map[string]struct{}
}

// New returns an empty Accumulator.
func New() *Accumulator {
	return &Accumulator{present: make(map[string]struct{})}
}

// Toggle removes id when present and adds it otherwise. Toggling the same id
// twice restores the prior set.
func (a *Accumulator) Toggle(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.present[id]; ok {
		a.remove(id)
		return
	}
	a.add(id)
}

// Accumulate adds every id not already present. It is an idempotent union:
// accumulating the same ids again changes nothing, and repeated voice turns
// extend rather than replace earlier selections.
func (a *Accumulator) Accumulate(ids ...string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, id := range ids {
		if _, ok := a.present[id]; !ok {
			a.add(id)
		}
	}
}

// Clear empties the set.
func (a *Accumulator) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.order = a.order[:0]
	clear(a.present)
}

// Retain drops every id for which keep returns false, preserving the order of
// the survivors. Used when the catalog is reloaded and selected ids may no
// longer exist.
func (a *Accumulator) Retain(keep func(id string) bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	kept := a.order[:0]
	for _, id := range a.order {
		if keep(id) {
			kept = append(kept, id)
			continue
		}
		delete(a.present, id)
	}
	a.order = kept
}

// Has reports whether id is selected.
func (a *Accumulator) Has(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.present[id]
	return ok
}

// Len returns the number of selected ids.
func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.order)
}

// IDs returns a snapshot of the selected ids in insertion order.
func (a *Accumulator) IDs() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.order))
	copy(out, a.order)
	return out
}

// add inserts id; caller holds the mutex.
func (a *Accumulator) add(id string) {
	a.present[id] = struct{}{}
	a.order = append(a.order, id)
}

// remove deletes id; caller holds the mutex.
func (a *Accumulator) remove(id string) {
	delete(a.present, id)
	for i, v := range a.order {
		if v == id {
			a.order = append(a.order[:i], a.order[i+1:]...)
			return
		}
	}
}
