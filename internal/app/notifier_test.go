package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webconf/multicam/internal/domain"
)

func newTestNotifier(room *stubRoom) *RemovalNotifier {
	n := NewRemovalNotifier()
	n.DuplicateDelay = 5 * time.Millisecond
	n.RetryDelay = 5 * time.Millisecond
	n.Bind(room)
	return n
}

func TestNotifyImmediateAndDuplicate(t *testing.T) {
	room := &stubRoom{self: "p1"}
	n := newTestNotifier(room)

	n.Notify(context.Background(), "trk1", "alice")
	require.Equal(t, 1, room.sentCount(), "immediate send goes out synchronously")

	env := room.sentAt(0)
	require.NotNil(t, env.TrackRemoval)
	assert.Equal(t, domain.MsgTrackRemoved, env.TrackRemoval.Type)
	assert.Equal(t, "trk1", env.TrackRemoval.TrackID)
	assert.Equal(t, "p1", env.TrackRemoval.SenderID)
	assert.Equal(t, "alice", env.TrackRemoval.UserName)

	assert.Eventually(t, func() bool { return room.sentCount() == 2 }, time.Second, time.Millisecond)
	dup := room.sentAt(1)
	require.NotNil(t, dup.TrackRemoval)
	assert.Equal(t, "trk1", dup.TrackRemoval.TrackID)
}

func TestNotifyRetriesFailedSend(t *testing.T) {
	room := &stubRoom{self: "p1", failSends: 1}
	n := newTestNotifier(room)

	n.Notify(context.Background(), "trk1", "alice")
	assert.Equal(t, 0, room.sentCount())

	// Both the retry and the duplicate land eventually.
	assert.Eventually(t, func() bool { return room.sentCount() == 2 }, time.Second, time.Millisecond)
}

func TestNotifyCancelledContextStopsTimers(t *testing.T) {
	room := &stubRoom{self: "p1"}
	n := newTestNotifier(room)

	ctx, cancel := context.WithCancel(context.Background())
	n.Notify(ctx, "trk1", "alice")
	cancel()

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, room.sentCount(), "duplicate must not fire after cancellation")
}

func TestNotifyWithoutRoom(t *testing.T) {
	n := NewRemovalNotifier()
	// Nothing bound yet: must not panic, nothing to send to.
	n.Notify(context.Background(), "trk1", "alice")
}
