package capture

import (
	"context"
	"errors"
)

var (
	// ErrDenied is returned when the device refuses access
	ErrDenied = errors.New("camera access denied")
	// ErrUnavailable is returned when the device cannot be reached
	ErrUnavailable = errors.New("camera unavailable")
	// ErrStopped is returned when a frame is requested from a released stream
	ErrStopped = errors.New("camera stream stopped")
)

// Image is an encoded image payload
type Image struct {
	Data        []byte
	ContentType string
}

// Empty reports whether the image holds no data
func (i Image) Empty() bool {
	return len(i.Data) == 0
}

// Device opens live camera streams
type Device interface {
	// Open acquires the camera and returns a live stream
	Open(ctx context.Context) (Stream, error)
}

// Stream is an open camera handle. It must be stopped to release the device.
type Stream interface {
	// Frame snapshots the current frame
	Frame(ctx context.Context) (Image, error)
	// Stop releases the device. Calling Stop more than once is safe.
	Stop() error
}
