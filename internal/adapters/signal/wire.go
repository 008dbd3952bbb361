// Package signal implements the conference transport over a websocket
// room server: one connection per participant, JSON envelopes, and track
// metadata signalling. Media capture itself is delegated to a TrackFactory.
package signal

import "github.com/webconf/multicam/internal/domain"

// Client to server.
const (
	typeJoin        = "join"
	typeLeave       = "leave"
	typePing        = "ping"
	typeTrackAdd    = "track_add"
	typeTrackRemove = "track_remove"
	typeEndpoint    = "endpoint"
)

// Server to client.
const (
	typeJoined       = "joined"
	typeError        = "error"
	typePong         = "pong"
	typePeerJoined   = "peer_joined"
	typePeerLeft     = "peer_left"
	typeTrackAdded   = "track_added"
	typeTrackRemoved = "track_removed"
)

type trackMeta struct {
	ID    string `json:"id"`
	Kind  string `json:"kind"`
	Label string `json:"label,omitempty"`
	Live  bool   `json:"live"`
}

type participantMeta struct {
	ID     string      `json:"id"`
	Name   string      `json:"name"`
	Tracks []trackMeta `json:"tracks,omitempty"`
}

type clientMessage struct {
	Type    string           `json:"type"`
	Room    string           `json:"room,omitempty"`
	Name    string           `json:"name,omitempty"`
	To      string           `json:"to,omitempty"`
	Track   *trackMeta       `json:"track,omitempty"`
	Payload *domain.Envelope `json:"payload,omitempty"`
}

type serverMessage struct {
	Type         string            `json:"type"`
	Self         string            `json:"self,omitempty"`
	Room         string            `json:"room,omitempty"`
	Error        string            `json:"error,omitempty"`
	From         string            `json:"from,omitempty"`
	Participant  *participantMeta  `json:"participant,omitempty"`
	Participants []participantMeta `json:"participants,omitempty"`
	Track        *trackMeta        `json:"track,omitempty"`
	Payload      *domain.Envelope  `json:"payload,omitempty"`
}
