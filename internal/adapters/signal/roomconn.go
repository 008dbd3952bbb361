package signal

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/webconf/multicam/internal/core"
	"github.com/webconf/multicam/internal/domain"
)

// wsRoom is a joined conference on one wsConn. It mirrors the server's view
// of peers and their track metadata and forwards events to the handler on
// the read loop.
type wsRoom struct {
	conn    *wsConn
	id      domain.ConferenceID
	self    string
	handler core.RoomHandler

	mu    sync.RWMutex
	peers map[string]*peer
}

type peer struct {
	id     string
	name   string
	tracks map[string]*remoteTrack
}

func newWsRoom(c *wsConn, id domain.ConferenceID, self string, h core.RoomHandler) *wsRoom {
	if h == nil {
		h = core.NopRoomHandler{}
	}
	return &wsRoom{
		conn:    c,
		id:      id,
		self:    self,
		handler: h,
		peers:   make(map[string]*peer),
	}
}

func (r *wsRoom) ID() domain.ConferenceID { return r.id }
func (r *wsRoom) SelfID() string          { return r.self }

func (r *wsRoom) Participants() []core.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.Participant, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, p.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func (r *wsRoom) AddTrack(t core.LocalTrack) error {
	return r.conn.sendJSON(clientMessage{Type: typeTrackAdd, Track: &trackMeta{
		ID:    t.ID(),
		Kind:  string(t.Kind()),
		Label: t.Label(),
		Live:  true,
	}})
}

func (r *wsRoom) RemoveTrack(t core.LocalTrack) error {
	return r.conn.sendJSON(clientMessage{Type: typeTrackRemove, Track: &trackMeta{ID: t.ID()}})
}

func (r *wsRoom) Send(target string, env domain.Envelope) error {
	return r.conn.sendJSON(clientMessage{Type: typeEndpoint, To: target, Payload: &env})
}

func (r *wsRoom) Leave() error {
	err := r.conn.sendJSON(clientMessage{Type: typeLeave})
	r.conn.mu.Lock()
	r.conn.room = nil
	r.conn.mu.Unlock()
	return err
}

func (r *wsRoom) dispatch(msg serverMessage) {
	switch msg.Type {
	case typePeerJoined:
		if msg.Participant == nil {
			return
		}
		p := r.upsertPeer(*msg.Participant)
		r.handler.OnParticipantJoined(p.snapshot())
	case typePeerLeft:
		r.mu.Lock()
		delete(r.peers, msg.From)
		r.mu.Unlock()
		r.handler.OnParticipantLeft(msg.From)
	case typeTrackAdded:
		if msg.Track == nil {
			return
		}
		rt := newRemoteTrack(msg.From, *msg.Track)
		r.mu.Lock()
		if p, ok := r.peers[msg.From]; ok {
			p.tracks[rt.id] = rt
		}
		r.mu.Unlock()
		r.handler.OnTrackAdded(rt)
	case typeTrackRemoved:
		if msg.Track == nil {
			return
		}
		r.mu.Lock()
		rt := (*remoteTrack)(nil)
		if p, ok := r.peers[msg.From]; ok {
			if known, ok := p.tracks[msg.Track.ID]; ok {
				rt = known
				delete(p.tracks, msg.Track.ID)
			}
		}
		r.mu.Unlock()
		if rt == nil {
			rt = newRemoteTrack(msg.From, *msg.Track)
		}
		r.handler.OnTrackRemoved(rt)
	case typeEndpoint:
		if msg.Payload == nil {
			return
		}
		r.handler.OnMessage(msg.From, *msg.Payload)
	default:
		log.Warn().Str("module", "signal").Str("type", msg.Type).Msg("unknown server message")
	}
}

func (r *wsRoom) upsertPeer(pm participantMeta) *peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[pm.ID]
	if !ok {
		p = &peer{id: pm.ID, tracks: make(map[string]*remoteTrack)}
		r.peers[pm.ID] = p
	}
	p.name = pm.Name
	for _, tm := range pm.Tracks {
		if _, ok := p.tracks[tm.ID]; !ok {
			p.tracks[tm.ID] = newRemoteTrack(pm.ID, tm)
		}
	}
	return p
}

// snapshot must run under r.mu or before the peer is shared.
func (p *peer) snapshot() core.Participant {
	tracks := make([]core.RemoteTrack, 0, len(p.tracks))
	for _, t := range p.tracks {
		tracks = append(tracks, t)
	}
	sort.Slice(tracks, func(i, j int) bool { return tracks[i].ID() < tracks[j].ID() })
	return participantSnap{id: p.id, name: p.name, tracks: tracks}
}

type participantSnap struct {
	id     string
	name   string
	tracks []core.RemoteTrack
}

func (s participantSnap) ID() string                 { return s.id }
func (s participantSnap) DisplayName() string        { return s.name }
func (s participantSnap) Tracks() []core.RemoteTrack { return s.tracks }

type remoteTrack struct {
	id    string
	pid   string
	kind  core.TrackKind
	label string
	live  bool
}

func newRemoteTrack(pid string, tm trackMeta) *remoteTrack {
	kind := core.TrackVideo
	if tm.Kind == string(core.TrackAudio) {
		kind = core.TrackAudio
	}
	return &remoteTrack{id: tm.ID, pid: pid, kind: kind, label: tm.Label, live: tm.Live}
}

func (t *remoteTrack) ID() string            { return t.id }
func (t *remoteTrack) ParticipantID() string { return t.pid }
func (t *remoteTrack) Kind() core.TrackKind  { return t.kind }
func (t *remoteTrack) Label() string         { return t.label }
func (t *remoteTrack) Live() bool            { return t.live }
func (t *remoteTrack) Dispose() error        { return nil }
