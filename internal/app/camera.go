package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/webconf/multicam/internal/domain"
)

// CameraManager publishes extra cameras. The first camera rides the human's
// own connection; every further one becomes a technical user, per policy.
type CameraManager struct {
	conf *Conference
}

func (m *CameraManager) Kind() domain.SourceKind { return domain.SourceVideo }

func (m *CameraManager) Publish(ctx context.Context, device domain.DeviceID, label string) error {
	err := m.conf.publishSource(ctx, domain.MediaSource{
		DeviceID: device,
		Label:    label,
		Kind:     domain.SourceVideo,
	})
	if err != nil {
		log.Error().Str("module", "app.camera").Str("device", string(device)).Err(err).Msg("camera publish failed")
	}
	return err
}

func (m *CameraManager) Unpublish(device domain.DeviceID) bool {
	return m.conf.unpublishSource(device)
}

// List reports the human's published cameras in ordinal order.
func (m *CameraManager) List() []domain.MediaSource {
	return m.conf.sourcesOfKind(domain.SourceVideo)
}
