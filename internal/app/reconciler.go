package app

import (
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/webconf/multicam/internal/core"
	"github.com/webconf/multicam/internal/domain"
)

const tombstoneLimit = 1024

// participantState is the receiver-side bookkeeping for one room identity,
// human or synthetic.
type participantState struct {
	id          string
	displayName string
	identity    domain.Identity
	tracks      map[string]core.RemoteTrack
}

// Reconciler converges remote track events onto the stage. Adds and
// removals arrive in any order, duplicated, or attributed to the wrong
// sender; the reconciler keeps one tile per live track, placed in the
// owning human's region.
type Reconciler struct {
	mu           sync.Mutex
	stage        core.Stage
	orders       *OrderTable
	participants map[string]*participantState
	// removed tombstones already-processed removals so the delayed
	// duplicate notification cannot cascade into the fallback ladder.
	removed map[string]struct{}

	localName string
	// localVideos reports how many video sources the local human currently
	// publishes; the last-element removal heuristic depends on it.
	localVideos func() int
}

func NewReconciler(stage core.Stage, orders *OrderTable, localName string, localVideos func() int) *Reconciler {
	if localVideos == nil {
		localVideos = func() int { return 0 }
	}
	return &Reconciler{
		stage:        stage,
		orders:       orders,
		participants: make(map[string]*participantState),
		removed:      make(map[string]struct{}),
		localName:    localName,
		localVideos:  localVideos,
	}
}

// UpsertParticipant records or refreshes a room identity. The display name
// is what owner resolution runs on, so identity messages route through here
// as well as join events. Tracks that arrived before the name was known
// were regioned under the raw participant id; learning the name re-homes
// them into the owner's region.
func (r *Reconciler) UpsertParticipant(id, displayName string) {
	r.mu.Lock()
	st := r.ensureLocked(id)
	if displayName == "" {
		r.mu.Unlock()
		return
	}
	st.displayName = displayName
	st.identity = domain.ParseIdentity(displayName)
	owner := st.identity.Owner
	tracks := make([]string, 0, len(st.tracks))
	for trackID := range st.tracks {
		tracks = append(tracks, trackID)
	}
	r.mu.Unlock()

	for _, trackID := range tracks {
		r.rehome(trackID, owner)
	}
}

// rehome moves one tile into the owner's region, dropping the provisional
// region it sat in when that region is left empty.
func (r *Reconciler) rehome(trackID, owner string) {
	tile, ok := r.stage.TileByTrack(trackID)
	if !ok || tile.Owner() == owner {
		return
	}
	info := core.TileInfo{
		TrackID:       trackID,
		ParticipantID: tile.ParticipantID(),
		Label:         tile.Label(),
		Ordinal:       tile.Ordinal(),
	}
	provisional := tile.Owner()
	r.stage.RemoveTile(trackID)
	if reg, ok := r.stage.FindRegion(provisional); ok && reg.ShowingPlaceholder() {
		r.stage.RemoveRegion(provisional)
	}
	r.stage.Region(owner).Attach(info)
	log.Debug().Str("module", "app.reconciler").
		Str("track", trackID).Str("from", provisional).Str("owner", owner).
		Msg("tile re-homed")
}

// DropParticipant forgets a room identity and clears its tiles. The display
// name it had is returned for roster upkeep.
func (r *Reconciler) DropParticipant(id string) (string, bool) {
	r.mu.Lock()
	st, ok := r.participants[id]
	if !ok {
		r.mu.Unlock()
		return "", false
	}
	delete(r.participants, id)
	tracks := make([]string, 0, len(st.tracks))
	for trackID := range st.tracks {
		tracks = append(tracks, trackID)
	}
	name := st.displayName
	r.mu.Unlock()

	for _, trackID := range tracks {
		if !r.stage.DetachAudio(trackID) {
			r.stage.RemoveTile(trackID)
		}
	}
	log.Debug().Str("module", "app.reconciler").Str("participant", id).Str("name", name).Msg("participant dropped")
	return name, true
}

// AddTrack places a remote track. Duplicates re-attach in place, audio goes
// to the hidden audio set, and only validated live video earns a tile.
func (r *Reconciler) AddTrack(t core.RemoteTrack) {
	trackID := t.ID()
	pid := t.ParticipantID()
	lg := log.With().Str("module", "app.reconciler").Str("track", trackID).Str("participant", pid).Logger()

	// An add always clears the tombstone: a track may legitimately come
	// back under an id that was removed out of order earlier.
	r.mu.Lock()
	delete(r.removed, trackID)
	r.mu.Unlock()

	// Repeated adds for a known track mean the stream changed underneath,
	// never that a second tile is wanted.
	if r.stage.Rebind(trackID) {
		r.remember(pid, t)
		lg.Debug().Msg("duplicate add, rebound")
		return
	}

	if t.Kind() == core.TrackAudio {
		if r.stage.HasAudio(trackID) {
			return
		}
		r.stage.AttachAudio(trackID, pid)
		r.remember(pid, t)
		lg.Debug().Msg("audio attached")
		return
	}

	if !validVideo(t) {
		r.forget(pid, trackID)
		lg.Debug().Str("label", t.Label()).Msg("video rejected by validation")
		return
	}

	r.mu.Lock()
	st := r.ensureLocked(pid)
	st.tracks[trackID] = t
	owner := st.identity.Owner
	if owner == "" {
		// No display name yet; the region re-homes once identity arrives.
		owner = pid
	}
	hint := st.identity
	r.mu.Unlock()

	region := r.stage.Region(owner)
	ordinal := r.resolveOrdinal(region, owner, hint)
	region.Attach(core.TileInfo{
		TrackID:       trackID,
		ParticipantID: pid,
		Label:         t.Label(),
		Ordinal:       ordinal,
	})
	lg.Info().Str("owner", owner).Int("ordinal", ordinal).Msg("tile placed")
}

// HandleTrackEvent processes a removal reported by the transport itself.
// Here the sender is the true publisher and the media kind is known, so a
// missed id falls back to removing that publisher's entries of the same
// kind: synthetic publishers re-announce under fresh ids.
func (r *Reconciler) HandleTrackEvent(t core.RemoteTrack) {
	r.handleRemoval(t.ID(), t.ParticipantID(), t.Kind())
}

// HandleRemoval processes a track_removed message. Its senderId is the
// announcing human's main connection, not necessarily the publisher, so
// only exact matches touch bookkeeping of known senders.
func (r *Reconciler) HandleRemoval(trackID, senderID string) {
	r.handleRemoval(trackID, senderID, "")
}

func (r *Reconciler) handleRemoval(trackID, senderID string, kind core.TrackKind) {
	lg := log.With().Str("module", "app.reconciler").Str("track", trackID).Str("sender", senderID).Logger()

	r.mu.Lock()
	if _, done := r.removed[trackID]; done {
		r.mu.Unlock()
		lg.Debug().Msg("removal already processed")
		return
	}
	r.mu.Unlock()

	if r.stage.DetachAudio(trackID) {
		r.forgetEverywhere(trackID)
		r.tombstone(trackID)
		lg.Debug().Msg("audio detached")
		return
	}

	matched, senderKnown := r.removeBookkeeping(trackID, senderID, kind, lg)

	// UI removal runs regardless of what bookkeeping matched: the element
	// may exist without an entry after a reconnect or a missed event.
	if r.stage.RemoveTile(trackID) {
		r.forgetEverywhere(trackID)
		r.tombstone(trackID)
		lg.Debug().Msg("tile removed")
		return
	}
	if matched {
		r.tombstone(trackID)
		return
	}
	if senderKnown {
		// Known sender, nothing matched: the track was never added here.
		// No-op rather than guessing at a neighbour's tile.
		lg.Debug().Msg("removal for unknown track, ignored")
		return
	}
	// Fully desynced: unknown track from an unknown sender. Try the tile
	// whose participant id matches the sender fragment, then the last
	// remaining remote element.
	if senderID != "" {
		for _, tile := range r.stage.Tiles() {
			if containsEither(tile.ParticipantID(), senderID) {
				r.stage.RemoveTile(tile.TrackID())
				r.tombstone(trackID)
				lg.Debug().Str("matched", tile.TrackID()).Msg("tile removed by sender fragment")
				return
			}
		}
	}
	tiles := r.stage.Tiles()
	if len(tiles) == 1 && r.localVideos() == 0 && tiles[0].Owner() != r.localName {
		r.stage.RemoveTile(tiles[0].TrackID())
		r.tombstone(trackID)
		lg.Debug().Str("matched", tiles[0].TrackID()).Msg("last remote tile removed heuristically")
	}
}

// PurgeOwner drops every participant record whose resolved owner matches,
// disposing their tracks. Session recovery uses it to clear the stale
// selves a rejoin leaves behind.
func (r *Reconciler) PurgeOwner(owner string) int {
	r.mu.Lock()
	var victims []*participantState
	for id, st := range r.participants {
		if st.identity.Owner == owner {
			victims = append(victims, st)
			delete(r.participants, id)
		}
	}
	r.mu.Unlock()

	n := 0
	for _, st := range victims {
		for trackID, t := range st.tracks {
			_ = t.Dispose()
			if !r.stage.DetachAudio(trackID) {
				r.stage.RemoveTile(trackID)
			}
			n++
		}
	}
	if n > 0 {
		log.Info().Str("module", "app.reconciler").Str("owner", owner).Int("tracks", n).Msg("purged stale participants")
	}
	return n
}

// SweepStale removes tiles that neither the bookkeeping nor the local
// publish list can account for.
func (r *Reconciler) SweepStale(isLocal func(trackID string) bool) int {
	n := 0
	for _, tile := range r.stage.Tiles() {
		trackID := tile.TrackID()
		if r.knownTrack(trackID) {
			continue
		}
		if isLocal != nil && isLocal(trackID) {
			continue
		}
		r.stage.RemoveTile(trackID)
		n++
	}
	if n > 0 {
		log.Info().Str("module", "app.reconciler").Int("tiles", n).Msg("swept stale tiles")
	}
	return n
}

// removeBookkeeping reports whether any entry matched and whether the
// sender was known at all.
func (r *Reconciler) removeBookkeeping(trackID, senderID string, kind core.TrackKind, lg zerolog.Logger) (matched, senderKnown bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if st, ok := r.participants[senderID]; ok {
		if _, ok := st.tracks[trackID]; ok {
			delete(st.tracks, trackID)
			return true, true
		}
		if kind != "" {
			for id, tr := range st.tracks {
				if tr.Kind() == kind {
					delete(st.tracks, id)
					r.removeElementLocked(id)
					lg.Debug().Str("matched", id).Msg("entry removed by sender and kind")
					matched = true
				}
			}
		}
		return matched, true
	}
	if senderID == "" {
		return false, false
	}
	// Unknown sender id: relayed removals may carry a truncated or
	// prefixed id, match by containment either way.
	for pid, st := range r.participants {
		if !containsEither(pid, senderID) {
			continue
		}
		for id, tr := range st.tracks {
			if tr.Kind() == core.TrackVideo {
				delete(st.tracks, id)
				r.removeElementLocked(id)
				lg.Debug().Str("matched", id).Str("participant", pid).Msg("entry removed by sender scan")
				matched = true
			}
		}
		return matched, false
	}
	return false, false
}

// removeElementLocked clears the stage entry for a bookkeeping match found
// under the reconciler lock. Stage has its own lock; ordering is always
// reconciler then stage.
func (r *Reconciler) removeElementLocked(trackID string) {
	if !r.stage.DetachAudio(trackID) {
		r.stage.RemoveTile(trackID)
	}
	r.tombstoneLocked(trackID)
}

func (r *Reconciler) resolveOrdinal(region core.Region, owner string, hint domain.Identity) int {
	// A stored assignment is the ordinal of record and beats the name hint.
	if e, ok := r.orders.LookupFragment(owner, hint.DeviceFragment); ok {
		return e.Order
	}
	if hint.Synthetic && hint.Ordinal > 0 {
		return hint.Ordinal
	}
	return len(region.Tiles()) + 1
}

func (r *Reconciler) remember(pid string, t core.RemoteTrack) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensureLocked(pid).tracks[t.ID()] = t
}

func (r *Reconciler) forget(pid, trackID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.participants[pid]; ok {
		delete(st.tracks, trackID)
	}
}

// forgetEverywhere drops a track id from every participant record; direct
// tile removals clean bookkeeping this way because the announcing sender
// and the publishing participant often differ.
func (r *Reconciler) forgetEverywhere(trackID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, st := range r.participants {
		delete(st.tracks, trackID)
	}
}

func (r *Reconciler) tombstone(trackID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tombstoneLocked(trackID)
}

func (r *Reconciler) tombstoneLocked(trackID string) {
	if len(r.removed) >= tombstoneLimit {
		r.removed = make(map[string]struct{})
	}
	r.removed[trackID] = struct{}{}
}

func (r *Reconciler) knownTrack(trackID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, st := range r.participants {
		if _, ok := st.tracks[trackID]; ok {
			return true
		}
	}
	return false
}

func (r *Reconciler) ensureLocked(id string) *participantState {
	st, ok := r.participants[id]
	if !ok {
		st = &participantState{id: id, tracks: make(map[string]core.RemoteTrack)}
		r.participants[id] = st
	}
	return st
}

// validVideo keeps only tracks that would actually render: video kind, a
// live stream, and a concrete device label instead of a browser placeholder.
func validVideo(t core.RemoteTrack) bool {
	if t.Kind() != core.TrackVideo {
		return false
	}
	if !t.Live() {
		return false
	}
	if strings.Contains(t.Label(), "Камера") {
		return false
	}
	return true
}

func containsEither(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}
