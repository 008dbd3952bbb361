package app

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/webconf/multicam/internal/domain"
)

// OrderEntry remembers the assigned ordinal and device label for one
// (owner, device) pair.
type OrderEntry struct {
	Order int
	Label string
}

// Grid is the rows/cols layout derived for one owner's region.
type Grid struct {
	Rows int
	Cols int
}

// OrderTable is the order side-table keyed "<owner>_<deviceId>". It is the
// ordinal of record: lookups resolve stored assignments, never positions.
type OrderTable struct {
	mu      sync.RWMutex
	entries map[string]OrderEntry
	grids   map[string]Grid
}

func NewOrderTable() *OrderTable {
	return &OrderTable{
		entries: make(map[string]OrderEntry),
		grids:   make(map[string]Grid),
	}
}

func orderKey(owner string, device domain.DeviceID) string {
	return fmt.Sprintf("%s_%s", owner, device)
}

func (t *OrderTable) Set(owner string, device domain.DeviceID, entry OrderEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[orderKey(owner, device)] = entry
}

func (t *OrderTable) Lookup(owner string, device domain.DeviceID) (OrderEntry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[orderKey(owner, device)]
	return e, ok
}

// LookupFragment resolves an entry for owner by a device-id prefix, the way
// remote peers see devices (synthetic names carry only a fragment).
func (t *OrderTable) LookupFragment(owner, fragment string) (OrderEntry, bool) {
	if fragment == "" {
		return OrderEntry{}, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	prefix := owner + "_" + fragment
	for k, e := range t.entries {
		if strings.HasPrefix(k, prefix) {
			return e, true
		}
	}
	return OrderEntry{}, false
}

func (t *OrderTable) Delete(owner string, device domain.DeviceID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := orderKey(owner, device)
	if _, ok := t.entries[k]; !ok {
		return false
	}
	delete(t.entries, k)
	return true
}

func (t *OrderTable) CountFor(owner string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	prefix := owner + "_"
	for k := range t.entries {
		if strings.HasPrefix(k, prefix) {
			n++
		}
	}
	return n
}

// RecalcGrid derives the owner's region layout for n video slots:
// rows = ceil(sqrt(n)), cols = ceil(n/rows).
func (t *OrderTable) RecalcGrid(owner string, n int) Grid {
	g := Grid{}
	if n > 0 {
		g.Rows = int(math.Ceil(math.Sqrt(float64(n))))
		g.Cols = int(math.Ceil(float64(n) / float64(g.Rows)))
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.grids[owner] = g
	return g
}

func (t *OrderTable) GridFor(owner string) Grid {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.grids[owner]
}
