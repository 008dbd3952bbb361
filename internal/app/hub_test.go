package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/webconf/multicam/internal/core"
	"github.com/webconf/multicam/internal/domain"
)

// The fakes here model a whole room server in memory so conference-level
// tests can run two real Conference instances against each other.

type fakeLocalTrack struct {
	id     string
	device domain.DeviceID
	kind   core.TrackKind
	label  string

	mu         sync.Mutex
	disposed   bool
	disposeErr error
}

func (t *fakeLocalTrack) ID() string                { return t.id }
func (t *fakeLocalTrack) DeviceID() domain.DeviceID { return t.device }
func (t *fakeLocalTrack) Kind() core.TrackKind      { return t.kind }
func (t *fakeLocalTrack) Label() string             { return t.label }

func (t *fakeLocalTrack) Dispose() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.disposeErr != nil {
		return t.disposeErr
	}
	t.disposed = true
	return nil
}

func (t *fakeLocalTrack) isDisposed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.disposed
}

type fakeRemote struct {
	id       string
	pid      string
	kind     core.TrackKind
	label    string
	live     bool
	disposed bool
}

func (t *fakeRemote) ID() string            { return t.id }
func (t *fakeRemote) ParticipantID() string { return t.pid }
func (t *fakeRemote) Kind() core.TrackKind  { return t.kind }
func (t *fakeRemote) Label() string         { return t.label }
func (t *fakeRemote) Live() bool            { return t.live }
func (t *fakeRemote) Dispose() error        { t.disposed = true; return nil }

type hub struct {
	mu    sync.Mutex
	rooms map[domain.ConferenceID]*hubRoom
	seq   int
}

func newHub() *hub {
	return &hub{rooms: make(map[domain.ConferenceID]*hubRoom)}
}

func (h *hub) nextID(prefix string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	return fmt.Sprintf("%s%d", prefix, h.seq)
}

func (h *hub) room(id domain.ConferenceID) *hubRoom {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[id]
	if !ok {
		r = &hubRoom{hub: h, id: id, members: make(map[string]*hubMember)}
		h.rooms[id] = r
	}
	return r
}

type fakeTransport struct {
	hub       *hub
	dialErr   error
	createErr error
}

func newFakeTransport(h *hub) *fakeTransport {
	return &fakeTransport{hub: h}
}

func (t *fakeTransport) Dial(ctx context.Context) (core.Connection, error) {
	if t.dialErr != nil {
		return nil, t.dialErr
	}
	return &fakeConn{hub: t.hub}, nil
}

func (t *fakeTransport) CreateTrack(ctx context.Context, req core.CaptureRequest) (core.LocalTrack, error) {
	if t.createErr != nil {
		return nil, t.createErr
	}
	kind := core.TrackVideo
	if req.Kind == domain.SourceAudio {
		kind = core.TrackAudio
	}
	return &fakeLocalTrack{
		id:     t.hub.nextID(fmt.Sprintf("%s-%s-", kind, req.DeviceID)),
		device: req.DeviceID,
		kind:   kind,
		label:  req.Label,
	}, nil
}

type fakeConn struct {
	hub     *hub
	joinErr error

	mu     sync.Mutex
	member *hubMember
	room   *hubRoom
	closed bool
}

func (c *fakeConn) Join(ctx context.Context, conf domain.ConferenceID, displayName string, h core.RoomHandler) (core.Room, error) {
	if c.joinErr != nil {
		return nil, c.joinErr
	}
	room := c.hub.room(conf)
	m := room.join(displayName, h)
	c.mu.Lock()
	c.member, c.room = m, room
	c.mu.Unlock()
	return &fakeRoom{room: room, member: m}, nil
}

func (c *fakeConn) Disconnect() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

type hubMember struct {
	id      string
	name    string
	handler core.RoomHandler
	tracks  map[string]*fakeRemote
}

func (m *hubMember) snapshot() core.Participant {
	tracks := make([]core.RemoteTrack, 0, len(m.tracks))
	for _, t := range m.tracks {
		tracks = append(tracks, t)
	}
	return fakeParticipant{id: m.id, name: m.name, tracks: tracks}
}

type fakeParticipant struct {
	id     string
	name   string
	tracks []core.RemoteTrack
}

func (p fakeParticipant) ID() string                 { return p.id }
func (p fakeParticipant) DisplayName() string        { return p.name }
func (p fakeParticipant) Tracks() []core.RemoteTrack { return p.tracks }

type hubRoom struct {
	hub *hub
	id  domain.ConferenceID

	mu      sync.Mutex
	members map[string]*hubMember
}

func (r *hubRoom) join(name string, h core.RoomHandler) *hubMember {
	if h == nil {
		h = core.NopRoomHandler{}
	}
	m := &hubMember{
		id:      r.hub.nextID("p"),
		name:    name,
		handler: h,
		tracks:  make(map[string]*fakeRemote),
	}
	r.mu.Lock()
	others := r.othersLocked(m.id)
	r.members[m.id] = m
	r.mu.Unlock()
	for _, o := range others {
		o.handler.OnParticipantJoined(m.snapshot())
	}
	return m
}

// othersLocked must run under r.mu.
func (r *hubRoom) othersLocked(except string) []*hubMember {
	out := make([]*hubMember, 0, len(r.members))
	for id, m := range r.members {
		if id != except {
			out = append(out, m)
		}
	}
	return out
}

func (r *hubRoom) others(except string) []*hubMember {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.othersLocked(except)
}

type fakeRoom struct {
	room   *hubRoom
	member *hubMember
}

func (f *fakeRoom) ID() domain.ConferenceID { return f.room.id }
func (f *fakeRoom) SelfID() string          { return f.member.id }

func (f *fakeRoom) Participants() []core.Participant {
	f.room.mu.Lock()
	others := f.room.othersLocked(f.member.id)
	out := make([]core.Participant, 0, len(others))
	for _, m := range others {
		out = append(out, m.snapshot())
	}
	f.room.mu.Unlock()
	return out
}

func (f *fakeRoom) AddTrack(t core.LocalTrack) error {
	rt := &fakeRemote{
		id:    t.ID(),
		pid:   f.member.id,
		kind:  t.Kind(),
		label: t.Label(),
		live:  true,
	}
	f.room.mu.Lock()
	f.member.tracks[rt.id] = rt
	f.room.mu.Unlock()
	for _, o := range f.room.others(f.member.id) {
		o.handler.OnTrackAdded(rt)
	}
	return nil
}

func (f *fakeRoom) RemoveTrack(t core.LocalTrack) error {
	f.room.mu.Lock()
	rt, ok := f.member.tracks[t.ID()]
	delete(f.member.tracks, t.ID())
	f.room.mu.Unlock()
	if !ok {
		return nil
	}
	for _, o := range f.room.others(f.member.id) {
		o.handler.OnTrackRemoved(rt)
	}
	return nil
}

func (f *fakeRoom) Send(target string, env domain.Envelope) error {
	if target == "" {
		for _, o := range f.room.others(f.member.id) {
			o.handler.OnMessage(f.member.id, env)
		}
		return nil
	}
	f.room.mu.Lock()
	m, ok := f.room.members[target]
	f.room.mu.Unlock()
	if !ok {
		return fmt.Errorf("no such participant %s", target)
	}
	m.handler.OnMessage(f.member.id, env)
	return nil
}

func (f *fakeRoom) Leave() error {
	f.room.mu.Lock()
	_, ok := f.room.members[f.member.id]
	delete(f.room.members, f.member.id)
	f.room.mu.Unlock()
	if !ok {
		return nil
	}
	for _, o := range f.room.others(f.member.id) {
		o.handler.OnParticipantLeft(f.member.id)
	}
	return nil
}
