package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bryanchriswhite/rotatingbox/internal/logger"
)

func init() {
	logger.Silence()
}

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if cfg.Capture.Width != 320 || cfg.Capture.Height != 240 {
		t.Errorf("capture resolution = %dx%d, want 320x240", cfg.Capture.Width, cfg.Capture.Height)
	}
	if cfg.Messaging.Endpoint != "tcp://localhost:5555" {
		t.Errorf("endpoint = %q", cfg.Messaging.Endpoint)
	}
	if cfg.Messaging.ExchangeTimeout <= 0 {
		t.Errorf("production default should carry a bounded exchange timeout")
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.LogLevel = "loud"
	cfg.Capture.Backend = "firewire"
	cfg.Messaging.Endpoint = "udp://localhost:1"
	cfg.Frame.FPS = 0
	cfg.Frame.RotationAxis = [3]float64{}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"log level", "capture.backend", "messaging.endpoint", "frame.fps", "rotation_axis"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestValidateEndpoint(t *testing.T) {
	tests := []struct {
		endpoint string
		ok       bool
	}{
		{"tcp://localhost:5555", true},
		{"tcp://127.0.0.1:1", true},
		{"tcp://localhost", false},
		{"tcp://:5555", false},
		{"ipc:///tmp/sock", false},
		{"tcp://localhost:notaport", false},
		{"tcp://localhost:70000", false},
	}
	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			err := ValidateEndpoint(tt.endpoint)
			if (err == nil) != tt.ok {
				t.Errorf("ValidateEndpoint(%q) err = %v, want ok=%v", tt.endpoint, err, tt.ok)
			}
		})
	}
}

func TestNewManagerCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not created: %v", err)
	}
	if got := m.Get().Frame.FPS; got != 60 {
		t.Errorf("fps = %d, want 60", got)
	}
}

func TestLoadYAMLKeepsDefaultsForMissingKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
messaging:
  endpoint: tcp://broker:6000
  exchange_timeout: 500ms
frame:
  fps: 30
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	cfg := m.Get()
	if cfg.Messaging.Endpoint != "tcp://broker:6000" {
		t.Errorf("endpoint = %q", cfg.Messaging.Endpoint)
	}
	if cfg.Messaging.ExchangeTimeout != 500*time.Millisecond {
		t.Errorf("exchange_timeout = %v", cfg.Messaging.ExchangeTimeout)
	}
	if cfg.Frame.FPS != 30 {
		t.Errorf("fps = %d", cfg.Frame.FPS)
	}
	if cfg.Capture.Backend != "v4l" {
		t.Errorf("capture.backend should keep default, got %q", cfg.Capture.Backend)
	}
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
log_level = "debug"

[capture]
backend = "none"

[messaging]
endpoint = "tcp://127.0.0.1:7000"
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	cfg := m.Get()
	if cfg.LogLevel != "debug" || cfg.Capture.Backend != "none" || cfg.Messaging.Endpoint != "tcp://127.0.0.1:7000" {
		t.Errorf("unexpected config: %+v", cfg)
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("frame: [unterminated"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewManager(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSetAndSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	m, err := NewManager(path)
	if err != nil {
		t.Fatal(err)
	}

	if err := m.Set("frame.fps", "24"); err != nil {
		t.Fatalf("Set fps: %v", err)
	}
	if err := m.Set("messaging.exchange_timeout", "0s"); err != nil {
		t.Fatalf("Set timeout: %v", err)
	}
	if err := m.Set("display.window", "true"); err != nil {
		t.Fatalf("Set window: %v", err)
	}
	if err := m.Set("frame.fps", "fast"); err == nil {
		t.Error("expected error for non-numeric fps")
	}
	if err := m.Set("messaging.endpoint", "localhost:5555"); err == nil {
		t.Error("expected error for endpoint without scheme")
	}
	if err := m.Set("no.such.key", "1"); err == nil {
		t.Error("expected error for unknown key")
	}
	if err := m.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded, err := NewManager(path)
	if err != nil {
		t.Fatal(err)
	}
	cfg := reloaded.Get()
	if cfg.Frame.FPS != 24 || cfg.Messaging.ExchangeTimeout != 0 || !cfg.Display.Window {
		t.Errorf("settings not persisted: %+v", cfg)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	m, err := NewManager(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	cfg := m.Get()
	cfg.Frame.FPS = 1
	if m.Get().Frame.FPS == 1 {
		t.Error("Get should return a copy")
	}
}

func TestSetRemainingKeys(t *testing.T) {
	m, err := NewManager(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatal(err)
	}

	for key, value := range map[string]string{
		"messaging.dial_retry": "1s",
		"capture.width":        "640",
		"capture.height":       "480",
		"frame.rotation_axis":  "0, 1, 0",
	} {
		if err := m.Set(key, value); err != nil {
			t.Fatalf("Set(%s) error = %v", key, err)
		}
	}

	cfg := m.Get()
	if cfg.Messaging.DialRetry != time.Second {
		t.Errorf("DialRetry = %v", cfg.Messaging.DialRetry)
	}
	if cfg.Capture.Width != 640 || cfg.Capture.Height != 480 {
		t.Errorf("capture size = %dx%d", cfg.Capture.Width, cfg.Capture.Height)
	}
	if cfg.Frame.RotationAxis != [3]float64{0, 1, 0} {
		t.Errorf("RotationAxis = %v", cfg.Frame.RotationAxis)
	}
	if err := m.Set("frame.rotation_axis", "1,1"); err == nil {
		t.Error("expected error for two-component axis")
	}
}

func TestApplyRestoresOnInvalidResult(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	m, err := NewManager(path)
	if err != nil {
		t.Fatal(err)
	}

	err = m.Apply("frame.fps", "0")
	if err == nil || !strings.Contains(err.Error(), "frame.fps") {
		t.Fatalf("Apply(fps=0) error = %v", err)
	}
	if got := m.Get().Frame.FPS; got != Defaults().Frame.FPS {
		t.Errorf("FPS = %d after rejected Apply, want %d", got, Defaults().Frame.FPS)
	}
	if err := m.Apply("frame.rotation_axis", "0,0,0"); err == nil {
		t.Error("expected zero axis to be rejected")
	}

	if err := m.Apply("frame.fps", "30"); err != nil {
		t.Fatalf("Apply(fps=30) error = %v", err)
	}
	if err := m.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	reloaded, err := NewManager(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := reloaded.Get().Validate(); err != nil {
		t.Errorf("persisted config does not validate: %v", err)
	}
}
