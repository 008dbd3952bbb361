package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webconf/multicam/internal/domain"
)

func camSource(device domain.DeviceID, order int) domain.MediaSource {
	return domain.MediaSource{DeviceID: device, Label: "Cam", Kind: domain.SourceVideo, Order: order}
}

func TestSessionOpen(t *testing.T) {
	tr := newStubTransport()
	src := camSource("dev1", 2)
	sess := NewSyntheticSession(domain.NewSyntheticIdentity("alice", domain.PurposeCamera, 2, "dev1"), src)

	require.NoError(t, sess.Open(context.Background(), tr, "conf"))
	assert.Equal(t, StateActive, sess.State())
	assert.NotEmpty(t, sess.TrackID())
	assert.Equal(t, []string{sess.TrackID()}, tr.conn.room.added)
}

func TestSessionOpenDialFailure(t *testing.T) {
	tr := newStubTransport()
	tr.dialErr = errBoom
	sess := NewSyntheticSession(domain.NewSyntheticIdentity("alice", domain.PurposeCamera, 2, "dev1"), camSource("dev1", 2))

	err := sess.Open(context.Background(), tr, "conf")
	require.ErrorIs(t, err, ErrConnect)
	assert.Equal(t, StateClosed, sess.State())
}

func TestSessionOpenJoinFailure(t *testing.T) {
	tr := newStubTransport()
	tr.conn.joinErr = errBoom
	sess := NewSyntheticSession(domain.NewSyntheticIdentity("alice", domain.PurposeCamera, 2, "dev1"), camSource("dev1", 2))

	err := sess.Open(context.Background(), tr, "conf")
	require.ErrorIs(t, err, ErrConnect)
	assert.Equal(t, StateClosed, sess.State())
	assert.True(t, tr.conn.isDisconnected(), "failed join must release the connection")
}

func TestSessionOpenCaptureFailure(t *testing.T) {
	tr := newStubTransport()
	tr.createErr = errBoom
	sess := NewSyntheticSession(domain.NewSyntheticIdentity("alice", domain.PurposeCamera, 2, "dev1"), camSource("dev1", 2))

	err := sess.Open(context.Background(), tr, "conf")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrConnect)
	assert.Equal(t, StateClosed, sess.State())
	assert.True(t, tr.conn.room.left)
	assert.True(t, tr.conn.isDisconnected())
}

func TestSessionOpenTwice(t *testing.T) {
	tr := newStubTransport()
	sess := NewSyntheticSession(domain.NewSyntheticIdentity("alice", domain.PurposeCamera, 2, "dev1"), camSource("dev1", 2))
	require.NoError(t, sess.Open(context.Background(), tr, "conf"))
	assert.ErrorIs(t, sess.Open(context.Background(), tr, "conf"), ErrSessionBusy)
}

func TestSessionCloseBeforeActive(t *testing.T) {
	sess := NewSyntheticSession(domain.NewSyntheticIdentity("alice", domain.PurposeCamera, 2, "dev1"), camSource("dev1", 2))
	assert.ErrorIs(t, sess.Close(), ErrSessionBusy)
}

func TestSessionClose(t *testing.T) {
	tr := newStubTransport()
	sess := NewSyntheticSession(domain.NewSyntheticIdentity("alice", domain.PurposeCamera, 2, "dev1"), camSource("dev1", 2))
	require.NoError(t, sess.Open(context.Background(), tr, "conf"))
	trackID := sess.TrackID()

	require.NoError(t, sess.Close())
	assert.Equal(t, StateClosed, sess.State())
	assert.Equal(t, []string{trackID}, tr.conn.room.removed)
	assert.True(t, tr.created[0].isDisposed())
	assert.True(t, tr.conn.room.left)
	assert.True(t, tr.conn.isDisconnected())

	assert.NoError(t, sess.Close(), "second close is a no-op")
}

func TestSessionCloseContinuesPastFailures(t *testing.T) {
	tr := newStubTransport()
	tr.conn.room.removeErr = errBoom
	sess := NewSyntheticSession(domain.NewSyntheticIdentity("alice", domain.PurposeCamera, 2, "dev1"), camSource("dev1", 2))
	require.NoError(t, sess.Open(context.Background(), tr, "conf"))

	err := sess.Close()
	require.Error(t, err)
	assert.Equal(t, StateClosed, sess.State())
	assert.True(t, tr.created[0].isDisposed(), "later steps run despite the failed one")
	assert.True(t, tr.conn.room.left)
	assert.True(t, tr.conn.isDisconnected())
}
