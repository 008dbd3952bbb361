package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/webconf/multicam/internal/core"
	"github.com/webconf/multicam/internal/domain"
)

// TechEntry is one registered technical user.
type TechEntry struct {
	Name    string
	Session *SyntheticSession
	TrackID string
	Device  domain.DeviceID
	Label   string
	Order   int
}

// TechRegistry owns every synthetic participant of the local human, keyed
// by technical name with a device index on the side. An entry is removed
// from the registry even when its transport teardown partially fails;
// teardown steps are independent, so a retry after a partial failure is
// safe but never required for the registry to converge.
type TechRegistry struct {
	transport  core.Transport
	conference domain.ConferenceID

	mu      sync.RWMutex
	entries map[string]*TechEntry
	names   []string // insertion order
	opening map[domain.DeviceID]struct{}

	// BeforeRemove runs before teardown of an entry, while its track is
	// still known to peers (removal notification, local tile cleanup).
	BeforeRemove func(*TechEntry)
	// OnTrackDisposed fires after a clean teardown released the capture.
	OnTrackDisposed func(trackID string)
	// OnError receives teardown failures; fire-and-forget surfaces report
	// here instead of returning.
	OnError func(error)
}

func NewTechRegistry(tr core.Transport, conf domain.ConferenceID) *TechRegistry {
	return &TechRegistry{
		transport:  tr,
		conference: conf,
		entries:    make(map[string]*TechEntry),
		opening:    make(map[domain.DeviceID]struct{}),
	}
}

func (r *TechRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

func (r *TechRegistry) DeviceInUse(device domain.DeviceID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.deviceInUseLocked(device)
}

func (r *TechRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Create opens a synthetic participant for the source and registers it.
// The device is reserved for the whole open so concurrent creates for the
// same device cannot race past the uniqueness check.
func (r *TechRegistry) Create(ctx context.Context, owner string, source domain.MediaSource) (*TechEntry, error) {
	identity := domain.NewSyntheticIdentity(owner, source.Purpose(), source.Order, string(source.DeviceID))
	name := identity.String()

	r.mu.Lock()
	if _, ok := r.entries[name]; ok {
		r.mu.Unlock()
		return nil, ErrDeviceInUse
	}
	if r.deviceInUseLocked(source.DeviceID) {
		r.mu.Unlock()
		return nil, ErrDeviceInUse
	}
	r.opening[source.DeviceID] = struct{}{}
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.opening, source.DeviceID)
		r.mu.Unlock()
	}()

	sess := NewSyntheticSession(identity, source)
	if err := sess.Open(ctx, r.transport, r.conference); err != nil {
		return nil, err
	}

	entry := &TechEntry{
		Name:    name,
		Session: sess,
		TrackID: sess.TrackID(),
		Device:  source.DeviceID,
		Label:   source.Label,
		Order:   source.Order,
	}
	r.mu.Lock()
	r.entries[name] = entry
	r.names = append(r.names, name)
	r.mu.Unlock()
	log.Info().Str("module", "app.registry").Str("name", name).Str("track", entry.TrackID).Msg("technical user created")
	return entry, nil
}

// RemoveByName tears a technical user down. Missing names are a no-op
// reported as false; a teardown failure also reports false but the entry
// is gone either way.
func (r *TechRegistry) RemoveByName(name string) bool {
	r.mu.Lock()
	entry, ok := r.entries[name]
	if !ok {
		r.mu.Unlock()
		log.Warn().Str("module", "app.registry").Str("name", name).Msg("technical user not found")
		return false
	}
	delete(r.entries, name)
	r.dropNameLocked(name)
	r.mu.Unlock()

	if r.BeforeRemove != nil {
		r.BeforeRemove(entry)
	}
	if err := entry.Session.Close(); err != nil {
		log.Error().Str("module", "app.registry").Str("name", name).Err(err).Msg("teardown failed")
		if r.OnError != nil {
			r.OnError(err)
		}
		return false
	}
	if r.OnTrackDisposed != nil {
		r.OnTrackDisposed(entry.TrackID)
	}
	log.Info().Str("module", "app.registry").Str("name", name).Msg("technical user removed")
	return true
}

func (r *TechRegistry) RemoveByDevice(device domain.DeviceID) bool {
	r.mu.RLock()
	name := ""
	for _, e := range r.entries {
		if e.Device == device {
			name = e.Name
			break
		}
	}
	r.mu.RUnlock()
	if name == "" {
		log.Warn().Str("module", "app.registry").Str("device", string(device)).Msg("no technical user for device")
		return false
	}
	return r.RemoveByName(name)
}

// Snapshot lists entries in creation order.
func (r *TechRegistry) Snapshot() []TechEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]TechEntry, 0, len(r.entries))
	for _, name := range r.names {
		if e, ok := r.entries[name]; ok {
			out = append(out, *e)
		}
	}
	return out
}

// DisposeAll removes every technical user, continuing past failures.
func (r *TechRegistry) DisposeAll() {
	for _, e := range r.Snapshot() {
		r.RemoveByName(e.Name)
	}
}

func (r *TechRegistry) deviceInUseLocked(device domain.DeviceID) bool {
	if _, ok := r.opening[device]; ok {
		return true
	}
	for _, e := range r.entries {
		if e.Device == device {
			return true
		}
	}
	return false
}

func (r *TechRegistry) dropNameLocked(name string) {
	for i, n := range r.names {
		if n == name {
			r.names = append(r.names[:i], r.names[i+1:]...)
			return
		}
	}
}
