package view

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webconf/multicam/internal/core"
)

func TestRegionLifecycle(t *testing.T) {
	s := NewStage()

	r := s.Region("alice")
	assert.True(t, r.ShowingPlaceholder())

	r.Attach(core.TileInfo{TrackID: "t1", ParticipantID: "p1", Ordinal: 1})
	r.Attach(core.TileInfo{TrackID: "t2", ParticipantID: "p2", Ordinal: 2})
	assert.False(t, r.ShowingPlaceholder())
	assert.Len(t, r.Tiles(), 2)

	same := s.Region("alice")
	assert.Len(t, same.Tiles(), 2)

	require.True(t, r.Remove("t1"))
	require.True(t, r.Remove("t2"))
	assert.True(t, r.ShowingPlaceholder())
	assert.False(t, r.Remove("t2"), "second remove is a no-op")
}

func TestTilesSortedByOrdinal(t *testing.T) {
	s := NewStage()
	r := s.Region("alice")
	r.Attach(core.TileInfo{TrackID: "b", Ordinal: 2})
	r.Attach(core.TileInfo{TrackID: "a", Ordinal: 1})

	tiles := r.Tiles()
	require.Len(t, tiles, 2)
	assert.Equal(t, "a", tiles[0].TrackID())
	assert.Equal(t, "b", tiles[1].TrackID())
}

func TestRebind(t *testing.T) {
	s := NewStage()
	tile := s.Region("alice").Attach(core.TileInfo{TrackID: "t1", Ordinal: 1})
	assert.Equal(t, 1, tile.Attachments())

	require.True(t, s.Rebind("t1"))
	assert.Equal(t, 2, tile.Attachments())
	assert.False(t, s.Rebind("missing"))
}

func TestAttachSameTrackTwice(t *testing.T) {
	s := NewStage()
	r := s.Region("alice")
	first := r.Attach(core.TileInfo{TrackID: "t1", Ordinal: 1})
	again := r.Attach(core.TileInfo{TrackID: "t1", Ordinal: 1})

	assert.Same(t, first, again, "one tile per track id")
	assert.Equal(t, 2, again.Attachments())
	assert.Equal(t, 1, s.VideoCount())
}

func TestRemoveTileCrossRegion(t *testing.T) {
	s := NewStage()
	s.Region("alice").Attach(core.TileInfo{TrackID: "t1", Ordinal: 1})
	s.Region("bob").Attach(core.TileInfo{TrackID: "t2", Ordinal: 1})

	require.True(t, s.RemoveTile("t2"))
	_, ok := s.TileByTrack("t2")
	assert.False(t, ok)
	assert.Equal(t, 1, s.VideoCount())

	bob, ok := s.FindRegion("bob")
	require.True(t, ok)
	assert.True(t, bob.ShowingPlaceholder())
}

func TestRemoveRegionDropsItsTiles(t *testing.T) {
	s := NewStage()
	s.Region("alice").Attach(core.TileInfo{TrackID: "t1", Ordinal: 1})
	require.True(t, s.RemoveRegion("alice"))
	_, ok := s.TileByTrack("t1")
	assert.False(t, ok)
	assert.False(t, s.RemoveRegion("alice"))
}

func TestAudio(t *testing.T) {
	s := NewStage()
	s.AttachAudio("a1", "p1")
	assert.True(t, s.HasAudio("a1"))
	assert.Zero(t, s.VideoCount(), "audio never occupies a tile")
	assert.True(t, s.DetachAudio("a1"))
	assert.False(t, s.DetachAudio("a1"))
}
