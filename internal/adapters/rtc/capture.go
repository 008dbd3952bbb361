// Package rtc provides local media capture backed by pion static tracks.
package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/webconf/multicam/internal/core"
	"github.com/webconf/multicam/internal/domain"
)

var ErrDisposed = errors.New("track disposed")

// Engine creates core.LocalTrack handles over pion TrackLocalStaticRTP.
// Feeding media into a track is the caller's business via WriteRTP; the
// engine only owns identity and lifecycle.
type Engine struct{}

func NewEngine() *Engine { return &Engine{} }

func (e *Engine) CreateTrack(ctx context.Context, req core.CaptureRequest) (core.LocalTrack, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	codec := webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}
	kind := core.TrackVideo
	if req.Kind == domain.SourceAudio {
		codec = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}
		kind = core.TrackAudio
	}

	id := uuid.NewString()
	streamID := fmt.Sprintf("%s-%s", req.Kind, req.DeviceID)
	t, err := webrtc.NewTrackLocalStaticRTP(codec, id, streamID)
	if err != nil {
		return nil, fmt.Errorf("create %s track: %w", req.Kind, err)
	}
	log.Debug().Str("module", "rtc").Str("track", id).Str("device", string(req.DeviceID)).Msg("capture track created")
	return &localTrack{
		rtp:    t,
		id:     id,
		device: req.DeviceID,
		kind:   kind,
		label:  req.Label,
	}, nil
}

type localTrack struct {
	rtp    *webrtc.TrackLocalStaticRTP
	id     string
	device domain.DeviceID
	kind   core.TrackKind
	label  string

	mu       sync.Mutex
	disposed bool
}

func (t *localTrack) ID() string                { return t.id }
func (t *localTrack) DeviceID() domain.DeviceID { return t.device }
func (t *localTrack) Kind() core.TrackKind      { return t.kind }
func (t *localTrack) Label() string             { return t.label }

// RTP exposes the underlying pion track for attaching to a PeerConnection.
func (t *localTrack) RTP() *webrtc.TrackLocalStaticRTP { return t.rtp }

// WriteRTP forwards one packet into the track; after Dispose it refuses.
func (t *localTrack) WriteRTP(p *rtp.Packet) error {
	t.mu.Lock()
	if t.disposed {
		t.mu.Unlock()
		return ErrDisposed
	}
	t.mu.Unlock()
	return t.rtp.WriteRTP(p)
}

func (t *localTrack) Dispose() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.disposed {
		return nil
	}
	t.disposed = true
	log.Debug().Str("module", "rtc").Str("track", t.id).Msg("capture track disposed")
	return nil
}
