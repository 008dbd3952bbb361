package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/webconf/multicam/internal/core"
	"github.com/webconf/multicam/internal/domain"
)

var (
	// ErrConnect marks a transport connect/join failure. It is fatal for
	// the session: the caller discards it, nothing retries here.
	ErrConnect = errors.New("transport connect failed")
	// ErrSessionBusy is returned when Open/Close interleave with a
	// lifecycle transition already in flight.
	ErrSessionBusy = errors.New("session busy")
	// ErrDeviceInUse rejects publishing a device that is already live.
	ErrDeviceInUse = errors.New("device already published")
)

type SessionState int32

const (
	StateUnopened SessionState = iota
	StateConnecting
	StateJoining
	StatePublishing
	StateActive
	StateClosing
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateUnopened:
		return "unopened"
	case StateConnecting:
		return "connecting"
	case StateJoining:
		return "joining"
	case StatePublishing:
		return "publishing"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// SyntheticSession is one technical participant: its own connection, its
// own room membership and exactly one published track.
type SyntheticSession struct {
	identity domain.Identity
	source   domain.MediaSource

	mu    sync.Mutex
	state SessionState
	conn  core.Connection
	room  core.Room
	track core.LocalTrack
}

func NewSyntheticSession(identity domain.Identity, source domain.MediaSource) *SyntheticSession {
	return &SyntheticSession{identity: identity, source: source}
}

func (s *SyntheticSession) Identity() domain.Identity { return s.identity }
func (s *SyntheticSession) Source() domain.MediaSource { return s.source }

func (s *SyntheticSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// TrackID is empty until the session reaches the publishing step.
func (s *SyntheticSession) TrackID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.track == nil {
		return ""
	}
	return s.track.ID()
}

// Open walks connect, join, publish. Any failure tears down what was built
// and leaves the session closed.
func (s *SyntheticSession) Open(ctx context.Context, tr core.Transport, conf domain.ConferenceID) error {
	s.mu.Lock()
	if s.state != StateUnopened {
		s.mu.Unlock()
		return ErrSessionBusy
	}
	s.state = StateConnecting
	s.mu.Unlock()

	name := s.identity.String()
	lg := log.With().Str("module", "app.session").Str("name", name).Logger()

	conn, err := tr.Dial(ctx)
	if err != nil {
		s.setState(StateClosed)
		lg.Error().Err(err).Msg("dial failed")
		return fmt.Errorf("%w: dial: %v", ErrConnect, err)
	}
	s.setState(StateJoining)

	// A synthetic participant never consumes the room, it only publishes.
	room, err := conn.Join(ctx, conf, name, core.NopRoomHandler{})
	if err != nil {
		_ = conn.Disconnect()
		s.setState(StateClosed)
		lg.Error().Err(err).Msg("join failed")
		return fmt.Errorf("%w: join: %v", ErrConnect, err)
	}
	s.setState(StatePublishing)

	track, err := tr.CreateTrack(ctx, core.CaptureRequest{
		Kind:     s.source.Kind,
		DeviceID: s.source.DeviceID,
		Label:    s.source.Label,
	})
	if err != nil {
		_ = room.Leave()
		_ = conn.Disconnect()
		s.setState(StateClosed)
		lg.Error().Err(err).Msg("capture failed")
		return fmt.Errorf("create track for %s: %w", name, err)
	}
	if err := room.AddTrack(track); err != nil {
		_ = track.Dispose()
		_ = room.Leave()
		_ = conn.Disconnect()
		s.setState(StateClosed)
		lg.Error().Err(err).Msg("publish failed")
		return fmt.Errorf("publish track for %s: %w", name, err)
	}

	s.mu.Lock()
	s.conn, s.room, s.track = conn, room, track
	s.state = StateActive
	s.mu.Unlock()
	lg.Info().Str("track", track.ID()).Str("device", string(s.source.DeviceID)).Int("order", s.source.Order).Msg("session active")
	return nil
}

// Reannounce re-adds the published track on the session's own room so peers
// that missed the original add can converge. No-op unless active.
func (s *SyntheticSession) Reannounce() error {
	s.mu.Lock()
	room, track := s.room, s.track
	active := s.state == StateActive
	s.mu.Unlock()
	if !active || room == nil || track == nil {
		return nil
	}
	return room.AddTrack(track)
}

// Close tears the session down in publish-reverse order. Every step runs
// even when an earlier one fails; the session always ends up closed.
func (s *SyntheticSession) Close() error {
	s.mu.Lock()
	switch s.state {
	case StateClosed:
		s.mu.Unlock()
		return nil
	case StateActive:
	default:
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: state %s", ErrSessionBusy, st)
	}
	s.state = StateClosing
	room, track, conn := s.room, s.track, s.conn
	s.mu.Unlock()

	var errs []error
	if room != nil && track != nil {
		if err := room.RemoveTrack(track); err != nil {
			errs = append(errs, fmt.Errorf("remove track: %w", err))
		}
	}
	if track != nil {
		if err := track.Dispose(); err != nil {
			errs = append(errs, fmt.Errorf("dispose track: %w", err))
		}
	}
	if room != nil {
		if err := room.Leave(); err != nil {
			errs = append(errs, fmt.Errorf("leave: %w", err))
		}
	}
	if conn != nil {
		if err := conn.Disconnect(); err != nil {
			errs = append(errs, fmt.Errorf("disconnect: %w", err))
		}
	}

	s.setState(StateClosed)
	log.Info().Str("module", "app.session").Str("name", s.identity.String()).Errs("teardown", errs).Msg("session closed")
	return errors.Join(errs...)
}

func (s *SyntheticSession) setState(st SessionState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}
