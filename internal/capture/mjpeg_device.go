package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/mattn/go-mjpeg"
)

// mjpegDevice pulls frames from a multipart MJPEG HTTP stream
type mjpegDevice struct {
	url    string
	dec    *mjpeg.Decoder
	body   io.Closer
	cancel context.CancelFunc
	closed atomic.Bool
	once   sync.Once
}

func newMJPEGDevice() *mjpegDevice {
	return &mjpegDevice{}
}

func (m *mjpegDevice) Name() string {
	return "mjpeg"
}

// Open issues the stream request. The request lives until Close, which
// cancels it and closes the body so a blocked ReadFrame returns.
func (m *mjpegDevice) Open(mode Mode) error {
	if mode.URL == "" {
		return fmt.Errorf("mjpeg backend needs capture.url")
	}

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mode.URL, nil)
	if err != nil {
		cancel()
		return fmt.Errorf("build request for %s: %w", mode.URL, err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		cancel()
		return fmt.Errorf("connect to %s: %w", mode.URL, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return fmt.Errorf("connect to %s: %s", mode.URL, resp.Status)
	}

	dec, err := mjpeg.NewDecoderFromResponse(resp)
	if err != nil {
		resp.Body.Close()
		cancel()
		return fmt.Errorf("%s is not a multipart stream: %w", mode.URL, err)
	}

	m.url = mode.URL
	m.dec = dec
	m.body = resp.Body
	m.cancel = cancel
	return nil
}

func (m *mjpegDevice) ReadFrame() (*image.RGBA, error) {
	if m.closed.Load() || m.dec == nil {
		return nil, ErrDeviceClosed
	}
	raw, err := m.dec.DecodeRaw()
	if err != nil {
		if m.closed.Load() {
			return nil, ErrDeviceClosed
		}
		return nil, fmt.Errorf("read part from %s: %w", m.url, err)
	}
	img, err := jpeg.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode jpeg part: %w", err)
	}
	return toRGBA(img), nil
}

// Close cancels the stream request and closes its body
func (m *mjpegDevice) Close() error {
	var err error
	m.once.Do(func() {
		m.closed.Store(true)
		if m.cancel != nil {
			m.cancel()
		}
		if m.body != nil {
			err = m.body.Close()
		}
	})
	return err
}
