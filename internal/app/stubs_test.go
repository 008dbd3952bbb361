package app

import (
	"context"
	"errors"
	"sync"

	"github.com/webconf/multicam/internal/core"
	"github.com/webconf/multicam/internal/domain"
)

// Error-injecting stubs for lifecycle tests; the hub fakes stay happy-path.

var errBoom = errors.New("boom")

type stubRoom struct {
	self string

	mu        sync.Mutex
	added     []string
	removed   []string
	left      bool
	sent      []domain.Envelope
	targets   []string
	peers     []core.Participant
	addErr    error
	removeErr error
	leaveErr  error
	failSends int
}

func (r *stubRoom) ID() domain.ConferenceID { return "conf" }

func (r *stubRoom) SelfID() string {
	if r.self == "" {
		return "self"
	}
	return r.self
}

func (r *stubRoom) Participants() []core.Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.peers
}

func (r *stubRoom) AddTrack(t core.LocalTrack) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.addErr != nil {
		return r.addErr
	}
	r.added = append(r.added, t.ID())
	return nil
}

func (r *stubRoom) RemoveTrack(t core.LocalTrack) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.removeErr != nil {
		return r.removeErr
	}
	r.removed = append(r.removed, t.ID())
	return nil
}

func (r *stubRoom) Send(target string, env domain.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failSends > 0 {
		r.failSends--
		return errBoom
	}
	r.sent = append(r.sent, env)
	r.targets = append(r.targets, target)
	return nil
}

func (r *stubRoom) Leave() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.leaveErr != nil {
		return r.leaveErr
	}
	r.left = true
	return nil
}

func (r *stubRoom) sentCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func (r *stubRoom) sentAt(i int) domain.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sent[i]
}

type stubConn struct {
	room    *stubRoom
	joinErr error

	mu           sync.Mutex
	disconnected bool
}

func (c *stubConn) Join(ctx context.Context, conf domain.ConferenceID, name string, h core.RoomHandler) (core.Room, error) {
	if c.joinErr != nil {
		return nil, c.joinErr
	}
	return c.room, nil
}

func (c *stubConn) Disconnect() error {
	c.mu.Lock()
	c.disconnected = true
	c.mu.Unlock()
	return nil
}

func (c *stubConn) isDisconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}

type stubTransport struct {
	conn      *stubConn
	dialErr   error
	createErr error

	mu      sync.Mutex
	created []*fakeLocalTrack
}

func newStubTransport() *stubTransport {
	return &stubTransport{conn: &stubConn{room: &stubRoom{}}}
}

func (t *stubTransport) Dial(ctx context.Context) (core.Connection, error) {
	if t.dialErr != nil {
		return nil, t.dialErr
	}
	return t.conn, nil
}

func (t *stubTransport) CreateTrack(ctx context.Context, req core.CaptureRequest) (core.LocalTrack, error) {
	if t.createErr != nil {
		return nil, t.createErr
	}
	kind := core.TrackVideo
	if req.Kind == domain.SourceAudio {
		kind = core.TrackAudio
	}
	tr := &fakeLocalTrack{
		id:     "video-" + string(req.DeviceID),
		device: req.DeviceID,
		kind:   kind,
		label:  req.Label,
	}
	t.mu.Lock()
	t.created = append(t.created, tr)
	t.mu.Unlock()
	return tr, nil
}

// gateTransport parks Dial until released so lifecycle races are testable.
type gateTransport struct {
	*fakeTransport
	entered chan struct{}
	release chan struct{}
}

func newGateTransport(h *hub) *gateTransport {
	return &gateTransport{
		fakeTransport: newFakeTransport(h),
		entered:       make(chan struct{}),
		release:       make(chan struct{}),
	}
}

func (t *gateTransport) Dial(ctx context.Context) (core.Connection, error) {
	close(t.entered)
	<-t.release
	return t.fakeTransport.Dial(ctx)
}
