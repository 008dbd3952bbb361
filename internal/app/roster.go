package app

import (
	"sort"
	"sync"

	"github.com/webconf/multicam/internal/domain"
)

// Roster counts room presence per human. Synthetic participants fold into
// their owner, so a human with three cameras still counts once per tab.
type Roster struct {
	mu     sync.RWMutex
	counts map[string]int
}

func NewRoster() *Roster {
	return &Roster{counts: make(map[string]int)}
}

// Joined registers a raw display name and returns the owner's new count.
func (r *Roster) Joined(name string) int {
	owner := domain.OwnerOf(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[owner]++
	return r.counts[owner]
}

// Left unregisters a raw display name; at zero the owner drops off.
func (r *Roster) Left(name string) int {
	owner := domain.OwnerOf(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.counts[owner]
	if !ok {
		return 0
	}
	n--
	if n <= 0 {
		delete(r.counts, owner)
		return 0
	}
	r.counts[owner] = n
	return n
}

// Observe makes sure an owner appears with at least one count, used when
// presence is learned from an identity message instead of a join event.
func (r *Roster) Observe(name string) {
	owner := domain.OwnerOf(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.counts[owner]; !ok {
		r.counts[owner] = 1
	}
}

func (r *Roster) Count(owner string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.counts[owner]
}

func (r *Roster) Owners() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.counts))
	for owner := range r.counts {
		out = append(out, owner)
	}
	sort.Strings(out)
	return out
}
