package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webconf/multicam/internal/domain"
)

func TestRegistryCreate(t *testing.T) {
	reg := NewTechRegistry(newFakeTransport(newHub()), "conf")

	entry, err := reg.Create(context.Background(), "alice", camSource("dev2", 2))
	require.NoError(t, err)
	assert.Equal(t, "alice_technical_cam2_dev2", entry.Name)
	assert.NotEmpty(t, entry.TrackID)
	assert.Equal(t, 2, entry.Order)

	assert.True(t, reg.Has(entry.Name))
	assert.True(t, reg.DeviceInUse("dev2"))
	assert.False(t, reg.DeviceInUse("dev9"))
	assert.Equal(t, 1, reg.Len())
}

func TestRegistryDeviceUniqueness(t *testing.T) {
	reg := NewTechRegistry(newFakeTransport(newHub()), "conf")
	_, err := reg.Create(context.Background(), "alice", camSource("dev2", 2))
	require.NoError(t, err)

	_, err = reg.Create(context.Background(), "alice", camSource("dev2", 3))
	assert.ErrorIs(t, err, ErrDeviceInUse)
	assert.Equal(t, 1, reg.Len())
}

func TestRegistryRemoveByName(t *testing.T) {
	reg := NewTechRegistry(newFakeTransport(newHub()), "conf")
	entry, err := reg.Create(context.Background(), "alice", camSource("dev2", 2))
	require.NoError(t, err)

	var notified, disposed string
	reg.BeforeRemove = func(e *TechEntry) { notified = e.TrackID }
	reg.OnTrackDisposed = func(trackID string) { disposed = trackID }

	require.True(t, reg.RemoveByName(entry.Name))
	assert.Equal(t, entry.TrackID, notified)
	assert.Equal(t, entry.TrackID, disposed)
	assert.False(t, reg.Has(entry.Name))
	assert.False(t, reg.DeviceInUse("dev2"))
	assert.Equal(t, StateClosed, entry.Session.State())
}

func TestRegistryRemoveMissing(t *testing.T) {
	reg := NewTechRegistry(newFakeTransport(newHub()), "conf")
	assert.False(t, reg.RemoveByName("alice_technical_cam9_nope"))
	assert.False(t, reg.RemoveByDevice("nope"))
}

func TestRegistryRemoveByDevice(t *testing.T) {
	reg := NewTechRegistry(newFakeTransport(newHub()), "conf")
	_, err := reg.Create(context.Background(), "alice", camSource("dev2", 2))
	require.NoError(t, err)

	assert.True(t, reg.RemoveByDevice("dev2"))
	assert.Zero(t, reg.Len())
}

func TestRegistryEntryGoneAfterFailedTeardown(t *testing.T) {
	tr := newStubTransport()
	tr.conn.room.removeErr = errBoom
	reg := NewTechRegistry(tr, "conf")

	var gotErr error
	reg.OnError = func(err error) { gotErr = err }

	entry, err := reg.Create(context.Background(), "alice", camSource("dev2", 2))
	require.NoError(t, err)

	assert.False(t, reg.RemoveByName(entry.Name))
	require.Error(t, gotErr)
	// The broken session must not linger: the device frees up regardless.
	assert.False(t, reg.Has(entry.Name))
	assert.False(t, reg.DeviceInUse("dev2"))
}

func TestRegistrySnapshotOrder(t *testing.T) {
	reg := NewTechRegistry(newFakeTransport(newHub()), "conf")
	_, err := reg.Create(context.Background(), "alice", camSource("dev2", 2))
	require.NoError(t, err)
	_, err = reg.Create(context.Background(), "alice", camSource("dev3", 3))
	require.NoError(t, err)

	snap := reg.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, domain.DeviceID("dev2"), snap[0].Device)
	assert.Equal(t, domain.DeviceID("dev3"), snap[1].Device)
}

func TestRegistryDisposeAll(t *testing.T) {
	reg := NewTechRegistry(newFakeTransport(newHub()), "conf")
	_, err := reg.Create(context.Background(), "alice", camSource("dev2", 2))
	require.NoError(t, err)
	_, err = reg.Create(context.Background(), "alice", camSource("dev3", 3))
	require.NoError(t, err)

	reg.DisposeAll()
	assert.Zero(t, reg.Len())
}
