package app

import (
	"context"

	"github.com/webconf/multicam/internal/domain"
)

// MediaSourcePublisher is the capability shared by the camera and screen
// managers: put one source kind into the conference and take it out again.
// The conference composes publishers instead of growing their methods.
type MediaSourcePublisher interface {
	Kind() domain.SourceKind
	Publish(ctx context.Context, device domain.DeviceID, label string) error
	Unpublish(device domain.DeviceID) bool
}

var (
	_ MediaSourcePublisher = (*CameraManager)(nil)
	_ MediaSourcePublisher = (*ScreenShareManager)(nil)
)
