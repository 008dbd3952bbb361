package core

import "github.com/webconf/multicam/internal/domain"

// TileInfo is everything the stage needs to place one video tile.
type TileInfo struct {
	TrackID       string
	ParticipantID string
	DeviceID      domain.DeviceID
	Label         string
	Ordinal       int
}

// Tile is one rendered video slot inside a region.
type Tile interface {
	TrackID() string
	ParticipantID() string
	Owner() string
	Ordinal() int
	Label() string
	// Attachments counts media re-binds; a duplicate add re-attaches
	// instead of creating a second tile.
	Attachments() int
}

// Region groups every tile that belongs to one human owner.
type Region interface {
	Owner() string
	Attach(TileInfo) Tile
	Tiles() []Tile
	Remove(trackID string) bool
	// ShowingPlaceholder is true exactly when the region holds no tiles.
	ShowingPlaceholder() bool
}

// Stage is the receiver-side render model. It owns region and tile
// bookkeeping but never touches transport resources.
type Stage interface {
	// Region returns the owner's region, creating it on first use.
	Region(owner string) Region
	FindRegion(owner string) (Region, bool)
	RemoveRegion(owner string) bool
	Regions() []Region

	TileByTrack(trackID string) (Tile, bool)
	// Rebind re-attaches media to an existing tile; false when no tile
	// carries the track id.
	Rebind(trackID string) bool
	// RemoveTile drops the tile wherever it lives.
	RemoveTile(trackID string) bool
	Tiles() []Tile
	VideoCount() int

	// Audio plays hidden; it never occupies a tile.
	AttachAudio(trackID, participantID string)
	DetachAudio(trackID string) bool
	HasAudio(trackID string) bool
}
