package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/webconf/multicam/internal/core"
	"github.com/webconf/multicam/internal/domain"
)

const (
	identityAnnounceDelay = time.Second
	presencePeriod        = 60 * time.Second
)

var ErrNotJoined = errors.New("conference not joined")

type publishedSource struct {
	source domain.MediaSource
	track  core.LocalTrack
}

// Conference is the local human's session: the composition root that wires
// the transport connection, the stage, the technical-user registry and the
// reconciler together. It implements core.RoomHandler for its own room.
type Conference struct {
	Transport  core.Transport
	Stage      core.Stage
	Policy     PlacementPolicy
	Registry   *TechRegistry
	Notifier   *RemovalNotifier
	Orders     *OrderTable
	Roster     *Roster
	Recovery   *Recovery
	Reconciler *Reconciler
	Cameras    *CameraManager
	Screen     *ScreenShareManager

	// Delays are fixed in production and shrunk in tests.
	IdentityDelay  time.Duration
	PresencePeriod time.Duration

	userName string
	confID   domain.ConferenceID

	mu      sync.Mutex
	joined  bool
	joining bool
	conn    core.Connection
	room    core.Room
	local   []publishedSource

	ctx    context.Context
	cancel context.CancelFunc
}

func NewConference(tr core.Transport, stage core.Stage, store Store, userName string, confID domain.ConferenceID) *Conference {
	c := &Conference{
		Transport:      tr,
		Stage:          stage,
		Policy:         StandardPolicy{},
		Registry:       NewTechRegistry(tr, confID),
		Notifier:       NewRemovalNotifier(),
		Orders:         NewOrderTable(),
		Roster:         NewRoster(),
		Recovery:       NewRecovery(store),
		IdentityDelay:  identityAnnounceDelay,
		PresencePeriod: presencePeriod,
		userName:       userName,
		confID:         confID,
	}
	c.Reconciler = NewReconciler(stage, c.Orders, userName, c.localVideoCount)
	c.Cameras = &CameraManager{conf: c}
	c.Screen = &ScreenShareManager{conf: c}

	c.Registry.BeforeRemove = func(e *TechEntry) {
		c.Notifier.Notify(c.context(), e.TrackID, c.userName)
		c.Stage.RemoveTile(e.TrackID)
	}
	c.Registry.OnTrackDisposed = func(trackID string) {
		log.Debug().Str("module", "app.conference").Str("track", trackID).Msg("technical track disposed")
	}
	c.Registry.OnError = func(err error) {
		log.Error().Str("module", "app.conference").Err(err).Msg("technical user teardown error")
	}
	return c
}

func (c *Conference) UserName() string        { return c.userName }
func (c *Conference) ID() domain.ConferenceID { return c.confID }

// Join connects and enters the room. When the persisted marker says this is
// a rejoin of the same (human, room) pair, the recovery pass runs right
// after entering.
func (c *Conference) Join(ctx context.Context) error {
	c.mu.Lock()
	if c.joined || c.joining {
		c.mu.Unlock()
		return ErrSessionBusy
	}
	// Reserve the whole connect, the way the registry reserves devices:
	// concurrent Joins must not both reach the dial.
	c.joining = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.joining = false
		c.mu.Unlock()
	}()

	resuming := c.Recovery.Resuming(c.userName, c.confID)

	conn, err := c.Transport.Dial(ctx)
	if err != nil {
		return fmt.Errorf("%w: dial: %v", ErrConnect, err)
	}
	room, err := conn.Join(ctx, c.confID, c.userName, c)
	if err != nil {
		_ = conn.Disconnect()
		return fmt.Errorf("%w: join: %v", ErrConnect, err)
	}

	c.mu.Lock()
	c.conn, c.room = conn, room
	c.joined = true
	// The conference outlives the Join call; its timers hang off an own
	// context so Leave can cut them all at once.
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.mu.Unlock()

	c.Notifier.Bind(room)
	c.Recovery.Remember(c.userName, c.confID)
	c.Roster.Observe(c.userName)

	for _, p := range room.Participants() {
		c.OnParticipantJoined(p)
	}

	// Peers that joined first learn who we are shortly after, then keep
	// hearing it periodically as presence.
	c.after(c.IdentityDelay, func() {
		_ = room.Send("", domain.NewIdentityEnvelope(c.userName))
	})
	go c.presenceLoop(room)

	if resuming {
		log.Info().Str("module", "app.conference").Str("user", c.userName).Msg("rejoin detected, resyncing")
		c.Recovery.Resync(room, c.Reconciler, c.userName, c.isLocalTrack)
	}
	log.Info().Str("module", "app.conference").
		Str("user", c.userName).Str("conference", string(c.confID)).Str("self", room.SelfID()).
		Msg("joined")
	return nil
}

// Leave tears everything down: technical users first, then own tracks,
// then the room and connection. The recovery marker is cleared so the next
// join of this pair starts fresh.
func (c *Conference) Leave() {
	c.mu.Lock()
	if !c.joined {
		c.mu.Unlock()
		return
	}
	c.joined = false
	room, conn, cancel := c.room, c.conn, c.cancel
	local := c.local
	c.local = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.Registry.DisposeAll()
	for _, ps := range local {
		if room != nil {
			_ = room.RemoveTrack(ps.track)
		}
		_ = ps.track.Dispose()
		c.Stage.RemoveTile(ps.track.ID())
	}
	if room != nil {
		_ = room.Leave()
	}
	if conn != nil {
		_ = conn.Disconnect()
	}
	c.Recovery.Forget()
	log.Info().Str("module", "app.conference").Str("user", c.userName).Msg("left")
}

// core.RoomHandler

func (c *Conference) OnParticipantJoined(p core.Participant) {
	c.Reconciler.UpsertParticipant(p.ID(), p.DisplayName())
	// Own synthetic participants fold into self and never bump the count.
	if domain.OwnerOf(p.DisplayName()) == c.userName {
		c.Roster.Observe(p.DisplayName())
	} else {
		c.Roster.Joined(p.DisplayName())
	}
	for _, t := range p.Tracks() {
		c.Reconciler.AddTrack(t)
	}
}

func (c *Conference) OnParticipantLeft(id string) {
	name, ok := c.Reconciler.DropParticipant(id)
	if !ok {
		return
	}
	// Own synthetics folded into self on join; they do not count down either.
	if domain.OwnerOf(name) != c.userName {
		c.Roster.Left(name)
	}
}

func (c *Conference) OnTrackAdded(t core.RemoteTrack) {
	c.Reconciler.AddTrack(t)
}

func (c *Conference) OnTrackRemoved(t core.RemoteTrack) {
	c.Reconciler.HandleTrackEvent(t)
}

func (c *Conference) OnMessage(senderID string, env domain.Envelope) {
	switch {
	case env.Identity != nil:
		c.Reconciler.UpsertParticipant(senderID, env.Identity.UserName)
		c.Roster.Observe(env.Identity.UserName)
	case env.UserStatus != nil:
		switch env.UserStatus.Type {
		case domain.MsgUserJoined:
			if domain.OwnerOf(env.UserStatus.UserName) == c.userName {
				c.Roster.Observe(env.UserStatus.UserName)
			} else {
				c.Roster.Joined(env.UserStatus.UserName)
			}
		case domain.MsgUserLeft:
			c.Roster.Left(env.UserStatus.UserName)
		}
	case env.TrackRemoval != nil:
		c.Reconciler.HandleRemoval(env.TrackRemoval.TrackID, env.TrackRemoval.SenderID)
	case env.TrackRequest != nil:
		switch env.TrackRequest.Type {
		case domain.MsgTrackRemoved:
			// Legacy peers misfile the delayed removal duplicate under the
			// request envelope; it still converges here.
			c.Reconciler.HandleRemoval(env.TrackRequest.TrackID, env.TrackRequest.SenderID)
		case domain.MsgTrackRequest:
			c.reannounce(env.TrackRequest.RequesterID)
		}
	case env.TrackInfo != nil:
		log.Debug().Str("module", "app.conference").Str("sender", env.TrackInfo.SenderID).Msg("tracks available")
	}
}

// publishSource routes one source through the placement policy: primary
// sources publish on the human's connection, the rest become technical
// users. Ordinals and the order table are written exactly once per device.
func (c *Conference) publishSource(ctx context.Context, src domain.MediaSource) error {
	c.mu.Lock()
	room := c.room
	if room == nil {
		c.mu.Unlock()
		return ErrNotJoined
	}
	for _, ps := range c.local {
		if ps.source.DeviceID == src.DeviceID {
			c.mu.Unlock()
			return ErrDeviceInUse
		}
	}
	count := len(c.local) + c.Registry.Len()
	c.mu.Unlock()
	if c.Registry.DeviceInUse(src.DeviceID) {
		return ErrDeviceInUse
	}

	placement := c.Policy.Decide(count)
	src.Order = placement.Order

	var trackID string
	if placement.Primary {
		track, err := c.Transport.CreateTrack(ctx, core.CaptureRequest{
			Kind:     src.Kind,
			DeviceID: src.DeviceID,
			Label:    src.Label,
		})
		if err != nil {
			return fmt.Errorf("create track: %w", err)
		}
		if err := room.AddTrack(track); err != nil {
			_ = track.Dispose()
			return fmt.Errorf("publish track: %w", err)
		}
		c.mu.Lock()
		c.local = append(c.local, publishedSource{source: src, track: track})
		c.mu.Unlock()
		trackID = track.ID()
	} else {
		entry, err := c.Registry.Create(ctx, c.userName, src)
		if err != nil {
			return err
		}
		trackID = entry.TrackID
	}

	// Own preview tile; remote peers build theirs from room events.
	c.Stage.Region(c.userName).Attach(core.TileInfo{
		TrackID:       trackID,
		ParticipantID: room.SelfID(),
		DeviceID:      src.DeviceID,
		Label:         src.Label,
		Ordinal:       src.Order,
	})
	c.Orders.Set(c.userName, src.DeviceID, OrderEntry{Order: src.Order, Label: src.Label})
	c.Orders.RecalcGrid(c.userName, count+1)
	log.Info().Str("module", "app.conference").
		Str("device", string(src.DeviceID)).Int("order", src.Order).Bool("primary", placement.Primary).
		Msg("source published")
	return nil
}

// unpublishSource removes a source by device. Technical users carry their
// own removal notification through the registry hook; a primary source
// notifies here.
func (c *Conference) unpublishSource(device domain.DeviceID) bool {
	removed := false
	if c.Registry.RemoveByDevice(device) {
		removed = true
	} else if ps, ok := c.takeLocal(device); ok {
		c.mu.Lock()
		room := c.room
		c.mu.Unlock()
		if room != nil {
			c.Notifier.Notify(c.context(), ps.track.ID(), c.userName)
			_ = room.RemoveTrack(ps.track)
		}
		_ = ps.track.Dispose()
		c.Stage.RemoveTile(ps.track.ID())
		removed = true
	}
	if !removed {
		log.Warn().Str("module", "app.conference").Str("device", string(device)).Msg("unpublish: device not found")
		return false
	}
	c.Orders.Delete(c.userName, device)
	c.mu.Lock()
	remaining := len(c.local) + c.Registry.Len()
	c.mu.Unlock()
	c.Orders.RecalcGrid(c.userName, remaining)
	return true
}

func (c *Conference) sourcesOfKind(kind domain.SourceKind) []domain.MediaSource {
	c.mu.Lock()
	out := make([]domain.MediaSource, 0, len(c.local))
	for _, ps := range c.local {
		if ps.source.Kind == kind {
			out = append(out, ps.source)
		}
	}
	c.mu.Unlock()
	for _, e := range c.Registry.Snapshot() {
		src := e.Session.Source()
		if src.Kind == kind {
			out = append(out, src)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// Sources lists every published source of the local human.
func (c *Conference) Sources() []domain.MediaSource {
	video := c.sourcesOfKind(domain.SourceVideo)
	screen := c.sourcesOfKind(domain.SourceScreen)
	out := append(video, screen...)
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// reannounce answers a track_request by re-adding every live local track to
// the room. Receivers converge through duplicate-add suppression, so a
// repeat announcement of a track they already render is free. The
// availability note goes to the requester afterwards.
func (c *Conference) reannounce(to string) {
	c.mu.Lock()
	room := c.room
	local := make([]publishedSource, len(c.local))
	copy(local, c.local)
	c.mu.Unlock()
	if room == nil {
		return
	}

	readded := 0
	for _, ps := range local {
		if err := room.AddTrack(ps.track); err != nil {
			log.Warn().Str("module", "app.conference").Str("track", ps.track.ID()).Err(err).Msg("track readd failed")
			continue
		}
		readded++
	}
	for _, e := range c.Registry.Snapshot() {
		if err := e.Session.Reannounce(); err != nil {
			log.Warn().Str("module", "app.conference").Str("name", e.Name).Err(err).Msg("track readd failed")
			continue
		}
		readded++
	}

	if to == "" {
		return
	}
	if err := room.Send(to, domain.NewTrackInfoEnvelope(room.SelfID())); err != nil {
		log.Warn().Str("module", "app.conference").Str("peer", to).Err(err).Msg("reannounce failed")
		return
	}
	log.Debug().Str("module", "app.conference").Str("peer", to).Int("tracks", readded).Msg("reannounced tracks")
}

func (c *Conference) presenceLoop(room core.Room) {
	ctx := c.context()
	ticker := time.NewTicker(c.PresencePeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = room.Send("", domain.NewIdentityEnvelope(c.userName))
		}
	}
}

func (c *Conference) localVideoCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.local) + c.Registry.Len()
}

func (c *Conference) isLocalTrack(trackID string) bool {
	c.mu.Lock()
	for _, ps := range c.local {
		if ps.track.ID() == trackID {
			c.mu.Unlock()
			return true
		}
	}
	c.mu.Unlock()
	for _, e := range c.Registry.Snapshot() {
		if e.TrackID == trackID {
			return true
		}
	}
	return false
}

func (c *Conference) takeLocal(device domain.DeviceID) (publishedSource, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, ps := range c.local {
		if ps.source.DeviceID == device {
			c.local = append(c.local[:i], c.local[i+1:]...)
			return ps, true
		}
	}
	return publishedSource{}, false
}

func (c *Conference) context() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx != nil {
		return c.ctx
	}
	return context.Background()
}

func (c *Conference) after(d time.Duration, fn func()) {
	ctx := c.context()
	t := time.AfterFunc(d, func() {
		if ctx.Err() != nil {
			return
		}
		fn()
	})
	context.AfterFunc(ctx, func() { t.Stop() })
}
