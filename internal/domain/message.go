package domain

import "time"

// Endpoint message types carried inside Envelope payloads.
const (
	MsgIdentity       = "identity"
	MsgUserJoined     = "user_joined"
	MsgUserLeft       = "user_left"
	MsgTrackRequest   = "track_request"
	MsgTrackRemoved   = "track_removed"
	MsgTrackAvailable = "track_available"
)

// Envelope is the room endpoint-message payload. Exactly one field is set
// per message; the key names are part of the wire protocol.
type Envelope struct {
	Identity     *IdentityMessage `json:"identity,omitempty"`
	UserStatus   *UserStatus      `json:"userStatus,omitempty"`
	TrackRequest *TrackRequest    `json:"trackRequest,omitempty"`
	TrackRemoval *TrackRemoval    `json:"trackRemoval,omitempty"`
	TrackInfo    *TrackInfo       `json:"trackInfo,omitempty"`
}

type IdentityMessage struct {
	Type      string `json:"type"`
	UserName  string `json:"userName"`
	Timestamp int64  `json:"timestamp"`
}

type UserStatus struct {
	Type      string `json:"type"`
	UserName  string `json:"userName"`
	Timestamp int64  `json:"timestamp"`
}

// TrackRequest carries both the recovery request and, from legacy peers, a
// misfiled track_removed payload. The removal fields stay optional so the
// receiver can converge in mixed-version rooms.
type TrackRequest struct {
	Type        string `json:"type"`
	RequesterID string `json:"requesterId,omitempty"`
	TrackID     string `json:"trackId,omitempty"`
	SenderID    string `json:"senderId,omitempty"`
	UserName    string `json:"userName,omitempty"`
	Timestamp   int64  `json:"timestamp"`
}

type TrackRemoval struct {
	Type      string `json:"type"`
	TrackID   string `json:"trackId"`
	SenderID  string `json:"senderId"`
	UserName  string `json:"userName"`
	Timestamp int64  `json:"timestamp"`
}

type TrackInfo struct {
	Type      string `json:"type"`
	SenderID  string `json:"senderId"`
	Timestamp int64  `json:"timestamp"`
}

func NewIdentityEnvelope(userName string) Envelope {
	return Envelope{Identity: &IdentityMessage{
		Type:      MsgIdentity,
		UserName:  userName,
		Timestamp: nowMillis(),
	}}
}

func NewUserStatusEnvelope(msgType, userName string) Envelope {
	return Envelope{UserStatus: &UserStatus{
		Type:      msgType,
		UserName:  userName,
		Timestamp: nowMillis(),
	}}
}

func NewTrackRequestEnvelope(requesterID string) Envelope {
	return Envelope{TrackRequest: &TrackRequest{
		Type:        MsgTrackRequest,
		RequesterID: requesterID,
		Timestamp:   nowMillis(),
	}}
}

func NewTrackRemovalEnvelope(trackID, senderID, userName string) Envelope {
	return Envelope{TrackRemoval: &TrackRemoval{
		Type:      MsgTrackRemoved,
		TrackID:   trackID,
		SenderID:  senderID,
		UserName:  userName,
		Timestamp: nowMillis(),
	}}
}

func NewTrackInfoEnvelope(senderID string) Envelope {
	return Envelope{TrackInfo: &TrackInfo{
		Type:      MsgTrackAvailable,
		SenderID:  senderID,
		Timestamp: nowMillis(),
	}}
}

func nowMillis() int64 { return time.Now().UnixMilli() }
