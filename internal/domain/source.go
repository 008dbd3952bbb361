package domain

type (
	ConferenceID string
	DeviceID     string
)

// ScreenDeviceID is the pseudo device id used for screen capture so the
// screen source flows through the same device bookkeeping as cameras.
const ScreenDeviceID DeviceID = "screen-share-device"

// SourceKind is the capture kind of a media source.
type SourceKind string

const (
	SourceAudio  SourceKind = "audio"
	SourceVideo  SourceKind = "video"
	SourceScreen SourceKind = "desktop"
)

// MediaSource describes one publishable capture device of the local human.
// Order is assigned once at publication time and never recomputed from
// position; it is the only ordinal of record for this device.
type MediaSource struct {
	DeviceID DeviceID   `json:"deviceId"`
	Label    string     `json:"label"`
	Kind     SourceKind `json:"kind"`
	Order    int        `json:"order"`
}

// Purpose maps the capture kind to the synthetic-name purpose tag.
func (s MediaSource) Purpose() Purpose {
	if s.Kind == SourceScreen {
		return PurposeScreen
	}
	return PurposeCamera
}
