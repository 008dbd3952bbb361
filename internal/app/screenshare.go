package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/webconf/multicam/internal/domain"
)

// ScreenShareManager publishes the screen through the same device
// bookkeeping as cameras, under the fixed pseudo device id. At most one
// screen share is live at a time; stopping resolves the session by device,
// never by position.
type ScreenShareManager struct {
	conf *Conference

	mu     sync.Mutex
	active bool
	device domain.DeviceID
}

func (m *ScreenShareManager) Kind() domain.SourceKind { return domain.SourceScreen }

func (m *ScreenShareManager) Publish(ctx context.Context, device domain.DeviceID, label string) error {
	if device == "" {
		device = domain.ScreenDeviceID
	}
	if label == "" {
		label = "Screen"
	}
	m.mu.Lock()
	if m.active {
		m.mu.Unlock()
		return ErrDeviceInUse
	}
	m.mu.Unlock()

	err := m.conf.publishSource(ctx, domain.MediaSource{
		DeviceID: device,
		Label:    label,
		Kind:     domain.SourceScreen,
	})
	if err != nil {
		log.Error().Str("module", "app.screenshare").Err(err).Msg("screen share failed")
		return err
	}
	m.mu.Lock()
	m.active = true
	m.device = device
	m.mu.Unlock()
	log.Info().Str("module", "app.screenshare").Msg("screen share started")
	return nil
}

func (m *ScreenShareManager) Unpublish(device domain.DeviceID) bool {
	m.mu.Lock()
	if device == "" {
		device = m.device
	}
	m.mu.Unlock()
	if device == "" {
		device = domain.ScreenDeviceID
	}

	ok := m.conf.unpublishSource(device)

	// Only a successful stop of the live share resets the state; a miss for
	// some other device leaves the share running.
	m.mu.Lock()
	if ok && device == m.device {
		m.active = false
		m.device = ""
	}
	m.mu.Unlock()
	if ok {
		log.Info().Str("module", "app.screenshare").Msg("screen share stopped")
	}
	return ok
}

func (m *ScreenShareManager) Start(ctx context.Context) error {
	return m.Publish(ctx, "", "")
}

func (m *ScreenShareManager) Stop() bool {
	return m.Unpublish("")
}

func (m *ScreenShareManager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Toggle flips the share and reports the resulting state.
func (m *ScreenShareManager) Toggle(ctx context.Context) (bool, error) {
	if m.Active() {
		m.Stop()
		return false, nil
	}
	if err := m.Start(ctx); err != nil {
		return false, err
	}
	return true, nil
}
