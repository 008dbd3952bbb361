package core

import (
	"context"

	"github.com/webconf/multicam/internal/domain"
)

type TrackKind string

const (
	TrackAudio TrackKind = "audio"
	TrackVideo TrackKind = "video"
)

// LocalTrack is a published capture handle.
// Owned by whoever created it; Dispose releases the capture resource.
type LocalTrack interface {
	ID() string
	DeviceID() domain.DeviceID
	Kind() TrackKind
	Label() string
	Dispose() error
}

// RemoteTrack is a track received from the room.
type RemoteTrack interface {
	ID() string
	ParticipantID() string
	Kind() TrackKind
	// Label is the device label the sender reported, may be empty.
	Label() string
	// Live reports whether the underlying stream currently carries an
	// enabled media track of the advertised kind.
	Live() bool
	Dispose() error
}

// CaptureRequest asks the transport for a local capture track.
type CaptureRequest struct {
	Kind     domain.SourceKind
	DeviceID domain.DeviceID
	Label    string
}

// Transport produces room connections and local capture tracks.
// The human participant and every synthetic participant dial separately.
type Transport interface {
	Dial(ctx context.Context) (Connection, error)
	CreateTrack(ctx context.Context, req CaptureRequest) (LocalTrack, error)
}

// Connection is one signalling connection to the room server.
type Connection interface {
	// Join enters a conference under the given display name. Handler
	// callbacks start firing before Join returns.
	Join(ctx context.Context, conf domain.ConferenceID, displayName string, h RoomHandler) (Room, error)
	Disconnect() error
}

// Participant is a read-only remote roster entry.
type Participant interface {
	ID() string
	DisplayName() string
	Tracks() []RemoteTrack
}

// Room is a joined conference seen from one participant.
type Room interface {
	ID() domain.ConferenceID
	SelfID() string
	Participants() []Participant
	AddTrack(LocalTrack) error
	RemoveTrack(LocalTrack) error
	// Send delivers an endpoint message to one participant,
	// or to everyone when target is empty.
	Send(target string, env domain.Envelope) error
	Leave() error
}

// RoomHandler receives room events. Callbacks run on the transport's read
// loop; implementations must not block.
type RoomHandler interface {
	OnParticipantJoined(Participant)
	OnParticipantLeft(participantID string)
	OnTrackAdded(RemoteTrack)
	OnTrackRemoved(RemoteTrack)
	OnMessage(senderID string, env domain.Envelope)
}

// NopRoomHandler ignores every event. Synthetic participants join with it:
// they publish one track and never consume the room.
type NopRoomHandler struct{}

func (NopRoomHandler) OnParticipantJoined(Participant)   {}
func (NopRoomHandler) OnParticipantLeft(string)          {}
func (NopRoomHandler) OnTrackAdded(RemoteTrack)          {}
func (NopRoomHandler) OnTrackRemoved(RemoteTrack)        {}
func (NopRoomHandler) OnMessage(string, domain.Envelope) {}
