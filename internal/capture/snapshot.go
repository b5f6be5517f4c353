package capture

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxFrameSize caps a single snapshot (high-resolution phone cameras)
const maxFrameSize = 50 << 20

// SnapshotCamera implements Device for cameras exposing a still-image HTTP
// endpoint, such as phone IP-camera apps serving /shot.jpg.
type SnapshotCamera struct {
	url    string
	client *http.Client
}

// NewSnapshotCamera creates a camera that fetches frames from url
func NewSnapshotCamera(url string) *SnapshotCamera {
	return &SnapshotCamera{
		url: url,
		client: &http.Client{
			Timeout:   10 * time.Second,
			Transport: http.DefaultTransport.(*http.Transport).Clone(),
		},
	}
}

// Open probes the camera and returns a stream bound to it
func (c *SnapshotCamera) Open(ctx context.Context) (Stream, error) {
	if _, err := c.fetch(ctx); err != nil {
		return nil, err
	}
	done, stop := context.WithCancel(context.Background())
	return &snapshotStream{camera: c, done: done, stop: stop}, nil
}

// fetch retrieves one frame from the camera
func (c *SnapshotCamera) fetch(ctx context.Context) (Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return Image{}, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Image{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Image{}, fmt.Errorf("%w (status %d)", ErrDenied, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return Image{}, fmt.Errorf("%w (status %d)", ErrUnavailable, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFrameSize))
	if err != nil {
		return Image{}, fmt.Errorf("reading frame: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	if !strings.HasPrefix(contentType, "image/") {
		return Image{}, fmt.Errorf("%w: camera returned %s, not an image", ErrUnavailable, contentType)
	}

	return Image{Data: data, ContentType: contentType}, nil
}

// snapshotStream is an open handle on a SnapshotCamera. Stop aborts a
// snapshot that is still in flight.
type snapshotStream struct {
	camera *SnapshotCamera
	done   context.Context
	stop   context.CancelFunc
}

// Frame snapshots the current frame
func (s *snapshotStream) Frame(ctx context.Context) (Image, error) {
	if s.done.Err() != nil {
		return Image{}, ErrStopped
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	unhook := context.AfterFunc(s.done, cancel)
	defer unhook()

	img, err := s.camera.fetch(ctx)
	if s.done.Err() != nil {
		return Image{}, ErrStopped
	}
	return img, err
}

// Stop releases the stream's connections. Repeated calls are no-ops.
func (s *snapshotStream) Stop() error {
	if s.done.Err() != nil {
		return nil
	}
	s.stop()
	s.camera.client.CloseIdleConnections()
	return nil
}
