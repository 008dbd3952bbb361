package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/webconf/multicam/internal/core"
	"github.com/webconf/multicam/internal/domain"
)

const (
	duplicateNotifyDelay = 500 * time.Millisecond
	retryNotifyDelay     = time.Second
)

// RemovalNotifier broadcasts track_removed on the human's room connection:
// once immediately, a duplicate after a short delay for peers that missed
// the first, and one retry when the immediate send itself failed. The whole
// protocol is fire-and-forget; nobody waits on it and nobody acks it.
type RemovalNotifier struct {
	mu   sync.RWMutex
	room core.Room

	// Delays are fixed in production and shrunk in tests.
	DuplicateDelay time.Duration
	RetryDelay     time.Duration
}

func NewRemovalNotifier() *RemovalNotifier {
	return &RemovalNotifier{
		DuplicateDelay: duplicateNotifyDelay,
		RetryDelay:     retryNotifyDelay,
	}
}

// Bind attaches the room the notifications go out on.
func (n *RemovalNotifier) Bind(room core.Room) {
	n.mu.Lock()
	n.room = room
	n.mu.Unlock()
}

// Notify announces that trackID owned by userName is gone. Timers are
// bound to ctx: once the conference is torn down, nothing fires anymore.
func (n *RemovalNotifier) Notify(ctx context.Context, trackID, userName string) {
	n.mu.RLock()
	room := n.room
	n.mu.RUnlock()
	if room == nil {
		log.Warn().Str("module", "app.notifier").Str("track", trackID).Msg("no room bound, removal not announced")
		return
	}

	env := domain.NewTrackRemovalEnvelope(trackID, room.SelfID(), userName)
	lg := log.With().Str("module", "app.notifier").Str("track", trackID).Logger()

	if err := room.Send("", env); err != nil {
		lg.Warn().Err(err).Msg("removal send failed, scheduling retry")
		n.after(ctx, n.RetryDelay, func() {
			if err := room.Send("", env); err != nil {
				lg.Error().Err(err).Msg("removal retry failed, giving up")
			}
		})
	} else {
		lg.Debug().Msg("removal announced")
	}

	// Late joiners and lossy peers get one more chance to converge.
	n.after(ctx, n.DuplicateDelay, func() {
		if err := room.Send("", env); err != nil {
			lg.Warn().Err(err).Msg("duplicate removal send failed")
		}
	})
}

func (n *RemovalNotifier) after(ctx context.Context, d time.Duration, fn func()) {
	t := time.AfterFunc(d, func() {
		if ctx.Err() != nil {
			return
		}
		fn()
	})
	context.AfterFunc(ctx, func() { t.Stop() })
}
