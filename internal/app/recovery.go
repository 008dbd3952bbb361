package app

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/webconf/multicam/internal/core"
	"github.com/webconf/multicam/internal/domain"
)

const (
	storeKeyUser       = "conferenceUserId"
	storeKeyConference = "conferenceId"
)

// Store persists the (human, room) marker across process restarts.
type Store interface {
	Load(key string) (string, bool)
	Save(key, value string) error
	Delete(key string) error
}

// Recovery detects a rejoin of the same (human, room) pair and walks the
// room back to a consistent state: the previous incarnation's participants
// are purged, every peer is asked to re-signal its tracks, and whatever
// tiles nobody accounts for get swept.
type Recovery struct {
	store Store
}

func NewRecovery(store Store) *Recovery {
	return &Recovery{store: store}
}

// Resuming reports whether this join matches the persisted marker.
func (r *Recovery) Resuming(userName string, conf domain.ConferenceID) bool {
	u, ok := r.store.Load(storeKeyUser)
	if !ok || u != userName {
		return false
	}
	c, ok := r.store.Load(storeKeyConference)
	return ok && c == string(conf)
}

func (r *Recovery) Remember(userName string, conf domain.ConferenceID) {
	if err := r.store.Save(storeKeyUser, userName); err != nil {
		log.Warn().Str("module", "app.recovery").Err(err).Msg("marker save failed")
		return
	}
	if err := r.store.Save(storeKeyConference, string(conf)); err != nil {
		log.Warn().Str("module", "app.recovery").Err(err).Msg("marker save failed")
	}
}

func (r *Recovery) Forget() {
	_ = r.store.Delete(storeKeyUser)
	_ = r.store.Delete(storeKeyConference)
}

// Resync runs the single reconciliation pass after a detected rejoin.
// isLocal marks track ids published by this incarnation so the sweep
// spares them.
func (r *Recovery) Resync(room core.Room, rec *Reconciler, localName string, isLocal func(trackID string) bool) {
	purged := rec.PurgeOwner(localName)

	// Ask every other identity to re-signal its tracks; responses flow in
	// as ordinary add events and reconcile like any other.
	self := room.SelfID()
	asked := 0
	for _, p := range room.Participants() {
		if p.ID() == self {
			continue
		}
		if err := room.Send(p.ID(), domain.NewTrackRequestEnvelope(self)); err != nil {
			log.Warn().Str("module", "app.recovery").Str("peer", p.ID()).Err(err).Msg("track request failed")
			continue
		}
		asked++
	}

	swept := rec.SweepStale(isLocal)
	log.Info().Str("module", "app.recovery").
		Int("purged", purged).Int("asked", asked).Int("swept", swept).
		Msg("resync complete")
}

// FileStore is a Store backed by one JSON file, the agent's stand-in for
// per-tab session storage.
type FileStore struct {
	mu   sync.Mutex
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.read()
	v, ok := m[key]
	return v, ok
}

func (s *FileStore) Save(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.read()
	m[key] = value
	return s.write(m)
}

func (s *FileStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.read()
	if _, ok := m[key]; !ok {
		return nil
	}
	delete(m, key)
	return s.write(m)
}

func (s *FileStore) read() map[string]string {
	m := make(map[string]string)
	data, err := os.ReadFile(s.path)
	if err != nil {
		return m
	}
	_ = json.Unmarshal(data, &m)
	return m
}

func (s *FileStore) write(m map[string]string) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}

// MemStore is an in-memory Store for tests and ephemeral runs.
type MemStore struct {
	mu sync.Mutex
	m  map[string]string
}

func NewMemStore() *MemStore {
	return &MemStore{m: make(map[string]string)}
}

func (s *MemStore) Load(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	return v, ok
}

func (s *MemStore) Save(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
	return nil
}

func (s *MemStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}
