// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// SyntheticMarker separates the owning human's name from the technical tag.
	// Everything before the first occurrence belongs to the human.
	SyntheticMarker = "_technical"

	// DeviceFragmentLen is how much of the device id is embedded in a
	// synthetic name. Enough to disambiguate, short enough for display names.
	DeviceFragmentLen = 5

	MaxDisplayNameLen = 64
)

var (
	ErrNameEmpty   = errors.New("display name empty")
	ErrNameTooLong = errors.New("display name too long")
)

// Purpose tags what a synthetic participant publishes.
type Purpose string

const (
	PurposeCamera Purpose = "cam"
	PurposeScreen Purpose = "screen"
)

// Identity is a tagged participant identity: either a human display name or
// a synthetic (technical) one derived from it. All encoding and decoding of
// the name grammar lives here; nothing else in the module splits names.
type Identity struct {
	Owner     string
	Synthetic bool
	Purpose   Purpose
	Ordinal   int
	// DeviceFragment is the leading DeviceFragmentLen runes of the device id.
	DeviceFragment string
}

// HumanIdentity wraps a plain display name.
func HumanIdentity(name string) Identity {
	return Identity{Owner: name}
}

// NewSyntheticIdentity builds the identity of a technical user publishing
// source number ordinal for owner from the given device.
func NewSyntheticIdentity(owner string, purpose Purpose, ordinal int, deviceID string) Identity {
	return Identity{
		Owner:          owner,
		Synthetic:      true,
		Purpose:        purpose,
		Ordinal:        ordinal,
		DeviceFragment: deviceFragment(deviceID),
	}
}

// String renders the canonical wire form:
// human names pass through, synthetic ones become
// "<owner>_technical_<purpose><ordinal>_<deviceFragment>".
func (id Identity) String() string {
	if !id.Synthetic {
		return id.Owner
	}
	return fmt.Sprintf("%s%s_%s%d_%s", id.Owner, SyntheticMarker, id.Purpose, id.Ordinal, id.DeviceFragment)
}

// ParseIdentity decodes a display name. Any name containing the marker is
// synthetic and its owner is everything before the first marker; a tag that
// does not follow the canonical grammar still yields the right owner, only
// the purpose/ordinal hints stay zero.
func ParseIdentity(name string) Identity {
	owner, tag, found := strings.Cut(name, SyntheticMarker)
	if !found {
		return Identity{Owner: name}
	}
	id := Identity{Owner: owner, Synthetic: true}
	purpose, ordinal, fragment, ok := parseTag(tag)
	if ok {
		id.Purpose = purpose
		id.Ordinal = ordinal
		id.DeviceFragment = fragment
	}
	return id
}

// IsSyntheticName reports whether a raw display name carries the marker.
func IsSyntheticName(name string) bool {
	return strings.Contains(name, SyntheticMarker)
}

// OwnerOf strips the synthetic tag off a raw display name.
func OwnerOf(name string) string {
	owner, _, _ := strings.Cut(name, SyntheticMarker)
	return owner
}

func (id Identity) Validate() error {
	if id.Owner == "" {
		return ErrNameEmpty
	}
	if len(id.String()) > MaxDisplayNameLen {
		return ErrNameTooLong
	}
	return nil
}

// parseTag decodes "_<purpose><ordinal>_<fragment>". Legacy peers emit
// variations ("0_screen1", missing fragment); those fail here and the caller
// falls back to owner-only.
func parseTag(tag string) (Purpose, int, string, bool) {
	tag = strings.TrimPrefix(tag, "_")
	body, fragment, _ := strings.Cut(tag, "_")
	var purpose Purpose
	switch {
	case strings.HasPrefix(body, string(PurposeCamera)):
		purpose = PurposeCamera
	case strings.HasPrefix(body, string(PurposeScreen)):
		purpose = PurposeScreen
	default:
		return "", 0, "", false
	}
	ordinal, err := strconv.Atoi(body[len(purpose):])
	if err != nil || ordinal < 1 {
		return "", 0, "", false
	}
	return purpose, ordinal, fragment, true
}

func deviceFragment(deviceID string) string {
	if len(deviceID) <= DeviceFragmentLen {
		return deviceID
	}
	return deviceID[:DeviceFragmentLen]
}
