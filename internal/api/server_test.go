package api

import (
	"bytes"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bryanchriswhite/rotatingbox/internal/capture"
	"github.com/bryanchriswhite/rotatingbox/internal/config"
	"github.com/bryanchriswhite/rotatingbox/internal/frame"
	"github.com/bryanchriswhite/rotatingbox/internal/logger"
	"github.com/bryanchriswhite/rotatingbox/internal/observability"
)

func init() {
	logger.Silence()
}

type fakeFrame struct {
	stats    frame.Stats
	artifact *capture.Artifact
}

func (f *fakeFrame) Stats() frame.Stats          { return f.stats }
func (f *fakeFrame) Artifact() *capture.Artifact { return f.artifact }

type fakeCapture struct{}

func (fakeCapture) Stats() capture.Stats {
	return capture.Stats{State: "unavailable", Backend: "none"}
}

func newTestServer(t *testing.T, opts Options) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(NewServer(opts).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, Options{})

	resp, err := http.Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "healthy" || body["version"] != Version {
		t.Errorf("body = %v", body)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("CORS header = %q", got)
	}
}

func TestStatusInlinesFrameStats(t *testing.T) {
	f := &fakeFrame{stats: frame.Stats{Frames: 7, Rendered: 5, Failed: 2, CaptureState: "unavailable"}}
	ts := newTestServer(t, Options{Frame: f, Capture: fakeCapture{}})

	resp, err := http.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["frames"] != float64(7) || body["failed"] != float64(2) {
		t.Errorf("frame stats not inlined: %v", body)
	}
	if body["capture_state"] != "unavailable" {
		t.Errorf("capture_state = %v", body["capture_state"])
	}
	c, ok := body["capture"].(map[string]interface{})
	if !ok || c["backend"] != "none" {
		t.Errorf("capture = %v", body["capture"])
	}
	if _, ok := body["stream"]; ok {
		t.Error("stream reported without an MJPEG output")
	}
}

func TestArtifactPNG(t *testing.T) {
	f := &fakeFrame{artifact: &capture.Artifact{Image: capture.Placeholder(), Placeholder: true}}
	ts := newTestServer(t, Options{Frame: f})

	resp, err := http.Get(ts.URL + "/api/capture/artifact.png")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.Header.Get("X-Artifact-Placeholder") != "true" {
		t.Errorf("placeholder header = %q", resp.Header.Get("X-Artifact-Placeholder"))
	}
	img, err := png.Decode(resp.Body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.Bounds() != image.Rect(0, 0, capture.PlaceholderWidth, capture.PlaceholderHeight) {
		t.Errorf("bounds = %v", img.Bounds())
	}
}

func TestArtifactMissing(t *testing.T) {
	ts := newTestServer(t, Options{Frame: &fakeFrame{}})

	resp, err := http.Get(ts.URL + "/api/capture/artifact.png")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestConfigGetAndSet(t *testing.T) {
	mgr, err := config.NewManager(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	ts := newTestServer(t, Options{Config: mgr})

	req, _ := http.NewRequest(http.MethodPut, ts.URL+"/api/config/frame.fps", strings.NewReader(`{"value":"30"}`))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got := mgr.Get().Frame.FPS; got != 30 {
		t.Errorf("FPS = %d, want 30", got)
	}

	req, _ = http.NewRequest(http.MethodPut, ts.URL+"/api/config/messaging.endpoint", strings.NewReader(`{"value":"udp://x:1"}`))
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad endpoint status = %d, want 400", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/api/config")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	var cfg config.Config
	if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.Frame.FPS != 30 {
		t.Errorf("served FPS = %d", cfg.Frame.FPS)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetrics(reg)
	m.RecordFrame(observability.FrameRendered)
	ts := newTestServer(t, Options{Gatherer: reg})

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Contains(body, []byte("rotatingbox_")) {
		t.Errorf("metrics body lacks rotatingbox series:\n%s", body)
	}
}

func TestStatusStreamPushes(t *testing.T) {
	f := &fakeFrame{stats: frame.Stats{Frames: 3}}
	ts := newTestServer(t, Options{Frame: f, PushInterval: 20 * time.Millisecond})

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/status/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for i := 0; i < 2; i++ {
		var st map[string]interface{}
		if err := conn.ReadJSON(&st); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
		if st["frames"] != float64(3) {
			t.Errorf("frames = %v", st["frames"])
		}
	}
}

func TestConfigSetRejectsInvalidResult(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	mgr, err := config.NewManager(path)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	ts := newTestServer(t, Options{Config: mgr})

	req, _ := http.NewRequest(http.MethodPut, ts.URL+"/api/config/frame.fps", strings.NewReader(`{"value":"0"}`))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	if got := mgr.Get().Frame.FPS; got != config.Defaults().Frame.FPS {
		t.Errorf("in-memory FPS = %d, want previous value", got)
	}

	reloaded, err := config.NewManager(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if err := reloaded.Get().Validate(); err != nil {
		t.Errorf("persisted config no longer validates: %v", err)
	}
}
