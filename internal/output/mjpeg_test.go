package output

import (
	"bufio"
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strconv"
	"testing"
	"time"

	"github.com/bryanchriswhite/rotatingbox/internal/logger"
)

func init() {
	logger.Silence()
}

func TestMJPEGWriteRequiresStart(t *testing.T) {
	m := NewMJPEGOutput(Config{Width: 8, Height: 8, FPS: 30})
	if err := m.WriteFrame(image.NewRGBA(image.Rect(0, 0, 8, 8))); err == nil {
		t.Fatal("WriteFrame() before Start succeeded")
	}
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	if err := m.Start(); err == nil {
		t.Error("second Start() succeeded")
	}
	defer m.Stop()

	if err := m.WriteFrame(image.NewRGBA(image.Rect(0, 0, 8, 8))); err != nil {
		t.Fatalf("WriteFrame() error = %v", err)
	}
	if _, err := jpeg.Decode(bytes.NewReader(m.LastJPEG())); err != nil {
		t.Errorf("LastJPEG() is not a JPEG: %v", err)
	}
	if st := m.Stats(); st.Frames != 1 || !st.Running {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestMJPEGStreamDeliversParts(t *testing.T) {
	m := NewMJPEGOutput(Config{Width: 16, Height: 16, FPS: 30})
	m.Start()
	defer m.Stop()

	srv := httptest.NewServer(m.StreamHandler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "multipart/x-mixed-replace; boundary=frame" {
		t.Fatalf("Content-Type = %q", ct)
	}

	deadline := time.Now().Add(2 * time.Second)
	for m.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err := m.WriteFrame(image.NewRGBA(image.Rect(0, 0, 16, 16))); err != nil {
		t.Fatal(err)
	}

	r := textproto.NewReader(bufio.NewReader(resp.Body))
	boundary, err := r.ReadLine()
	if err != nil || boundary != "--frame" {
		t.Fatalf("boundary = %q, %v", boundary, err)
	}
	header, err := r.ReadMIMEHeader()
	if err != nil {
		t.Fatal(err)
	}
	n, err := strconv.Atoi(header.Get("Content-Length"))
	if err != nil {
		t.Fatal(err)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r.R, body); err != nil {
		t.Fatal(err)
	}
	img, err := jpeg.Decode(bytes.NewReader(body))
	if err != nil {
		t.Fatalf("part is not a JPEG: %v", err)
	}
	if img.Bounds().Dx() != 16 {
		t.Errorf("frame width = %d", img.Bounds().Dx())
	}
}

func TestMJPEGStreamRefusedWhenStopped(t *testing.T) {
	m := NewMJPEGOutput(Config{})
	rec := httptest.NewRecorder()
	m.StreamHandler()(rec, httptest.NewRequest(http.MethodGet, "/stream", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}
