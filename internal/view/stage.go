// Package view holds the in-memory render model of the conference page.
// It mirrors what a UI would show (regions per human, tiles per track,
// placeholders) so reconciliation logic stays testable headless.
package view

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/webconf/multicam/internal/core"
)

type tile struct {
	info        core.TileInfo
	owner       string
	attachments int
}

func (t *tile) TrackID() string       { return t.info.TrackID }
func (t *tile) ParticipantID() string { return t.info.ParticipantID }
func (t *tile) Owner() string         { return t.owner }
func (t *tile) Ordinal() int          { return t.info.Ordinal }
func (t *tile) Label() string         { return t.info.Label }
func (t *tile) Attachments() int      { return t.attachments }

type region struct {
	stage *stage
	owner string
	tiles []*tile
}

func (r *region) Owner() string { return r.owner }

func (r *region) Attach(info core.TileInfo) core.Tile {
	r.stage.mu.Lock()
	defer r.stage.mu.Unlock()
	// One tile per track id, wherever it already lives: a repeat attach
	// re-binds media instead of cloning the element.
	if existing, ok := r.stage.byTrack[info.TrackID]; ok {
		existing.attachments++
		return existing
	}
	t := &tile{info: info, owner: r.owner, attachments: 1}
	r.tiles = append(r.tiles, t)
	r.stage.byTrack[info.TrackID] = t
	log.Debug().Str("module", "view.stage").
		Str("owner", r.owner).Str("track", info.TrackID).Int("ordinal", info.Ordinal).
		Msg("tile attached")
	return t
}

func (r *region) Tiles() []core.Tile {
	r.stage.mu.RLock()
	defer r.stage.mu.RUnlock()
	out := make([]core.Tile, 0, len(r.tiles))
	for _, t := range r.tiles {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ordinal() < out[j].Ordinal() })
	return out
}

func (r *region) Remove(trackID string) bool {
	r.stage.mu.Lock()
	defer r.stage.mu.Unlock()
	return r.stage.removeFromRegion(r, trackID)
}

func (r *region) ShowingPlaceholder() bool {
	r.stage.mu.RLock()
	defer r.stage.mu.RUnlock()
	return len(r.tiles) == 0
}

// stage is a threadsafe in-memory core.Stage.
// It never closes transport-owned resources.
type stage struct {
	mu      sync.RWMutex
	regions map[string]*region
	byTrack map[string]*tile
	audio   map[string]string // trackID -> participantID
}

func NewStage() core.Stage {
	return &stage{
		regions: make(map[string]*region),
		byTrack: make(map[string]*tile),
		audio:   make(map[string]string),
	}
}

func (s *stage) Region(owner string) core.Region {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.regions[owner]; ok {
		return r
	}
	r := &region{stage: s, owner: owner}
	s.regions[owner] = r
	log.Debug().Str("module", "view.stage").Str("owner", owner).Msg("region created")
	return r
}

func (s *stage) FindRegion(owner string) (core.Region, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.regions[owner]
	if !ok {
		return nil, false
	}
	return r, true
}

func (s *stage) RemoveRegion(owner string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.regions[owner]
	if !ok {
		return false
	}
	for _, t := range r.tiles {
		delete(s.byTrack, t.info.TrackID)
	}
	delete(s.regions, owner)
	log.Debug().Str("module", "view.stage").Str("owner", owner).Msg("region removed")
	return true
}

func (s *stage) Regions() []core.Region {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Region, 0, len(s.regions))
	for _, r := range s.regions {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Owner() < out[j].Owner() })
	return out
}

func (s *stage) TileByTrack(trackID string) (core.Tile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.byTrack[trackID]
	if !ok {
		return nil, false
	}
	return t, true
}

func (s *stage) Rebind(trackID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byTrack[trackID]
	if !ok {
		return false
	}
	t.attachments++
	log.Debug().Str("module", "view.stage").Str("track", trackID).Msg("tile rebound")
	return true
}

func (s *stage) RemoveTile(trackID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byTrack[trackID]
	if !ok {
		return false
	}
	r := s.regions[t.owner]
	if r == nil {
		delete(s.byTrack, trackID)
		return true
	}
	return s.removeFromRegion(r, trackID)
}

func (s *stage) Tiles() []core.Tile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Tile, 0, len(s.byTrack))
	for _, t := range s.byTrack {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TrackID() < out[j].TrackID() })
	return out
}

func (s *stage) VideoCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byTrack)
}

func (s *stage) AttachAudio(trackID, participantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio[trackID] = participantID
}

func (s *stage) DetachAudio(trackID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.audio[trackID]; !ok {
		return false
	}
	delete(s.audio, trackID)
	return true
}

func (s *stage) HasAudio(trackID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.audio[trackID]
	return ok
}

// removeFromRegion must run under s.mu.
func (s *stage) removeFromRegion(r *region, trackID string) bool {
	for i, t := range r.tiles {
		if t.info.TrackID == trackID {
			r.tiles = append(r.tiles[:i], r.tiles[i+1:]...)
			delete(s.byTrack, trackID)
			log.Debug().Str("module", "view.stage").
				Str("owner", r.owner).Str("track", trackID).
				Msg("tile removed")
			return true
		}
	}
	return false
}
