package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/bryanchriswhite/rotatingbox/internal/logger"
	"github.com/bryanchriswhite/rotatingbox/internal/messaging"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	LogLevel  string          `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogPretty bool            `json:"log_pretty" yaml:"log_pretty" toml:"log_pretty"`
	Capture   CaptureConfig   `json:"capture" yaml:"capture" toml:"capture"`
	Messaging MessagingConfig `json:"messaging" yaml:"messaging" toml:"messaging"`
	Frame     FrameConfig     `json:"frame" yaml:"frame" toml:"frame"`
	Display   DisplayConfig   `json:"display" yaml:"display" toml:"display"`
	Server    ServerConfig    `json:"server" yaml:"server" toml:"server"`
}

// CaptureConfig selects and sizes the capture device
type CaptureConfig struct {
	// Backend is one of v4l, x11, mjpeg, gst, gocv or none
	Backend string `json:"backend" yaml:"backend" toml:"backend"`
	Device  string `json:"device" yaml:"device" toml:"device"`
	URL     string `json:"url,omitempty" yaml:"url,omitempty" toml:"url,omitempty"`
	Width   int    `json:"width" yaml:"width" toml:"width"`
	Height  int    `json:"height" yaml:"height" toml:"height"`
}

// MessagingConfig describes the request/reply endpoint
type MessagingConfig struct {
	Endpoint string `json:"endpoint" yaml:"endpoint" toml:"endpoint"`
	// ExchangeTimeout of zero waits forever for each reply
	ExchangeTimeout time.Duration `json:"exchange_timeout" yaml:"exchange_timeout" toml:"exchange_timeout"`
	DialRetry       time.Duration `json:"dial_retry" yaml:"dial_retry" toml:"dial_retry"`
}

// FrameConfig controls the render loop
type FrameConfig struct {
	FPS          int        `json:"fps" yaml:"fps" toml:"fps"`
	RotationStep float64    `json:"rotation_step" yaml:"rotation_step" toml:"rotation_step"`
	RotationAxis [3]float64 `json:"rotation_axis" yaml:"rotation_axis" toml:"rotation_axis"`
}

// DisplayConfig represents the rendered surface and its sinks
type DisplayConfig struct {
	Width  int  `json:"width" yaml:"width" toml:"width"`
	Height int  `json:"height" yaml:"height" toml:"height"`
	Window bool `json:"window" yaml:"window" toml:"window"`
	MJPEG  bool `json:"mjpeg" yaml:"mjpeg" toml:"mjpeg"`
	HUD    bool `json:"hud" yaml:"hud" toml:"hud"`
}

// ServerConfig controls the HTTP status server
type ServerConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled" toml:"enabled"`
	Port    int  `json:"port" yaml:"port" toml:"port"`
}

var validBackends = map[string]bool{
	"v4l": true, "x11": true, "mjpeg": true, "gst": true, "gocv": true, "none": true,
}

// Defaults returns the default configuration
func Defaults() *Config {
	return &Config{
		LogLevel:  string(logger.InfoLevel),
		LogPretty: true,
		Capture: CaptureConfig{
			Backend: "v4l",
			Device:  "/dev/video0",
			Width:   320,
			Height:  240,
		},
		Messaging: MessagingConfig{
			Endpoint:        "tcp://localhost:5555",
			ExchangeTimeout: 2 * time.Second,
			DialRetry:       250 * time.Millisecond,
		},
		Frame: FrameConfig{
			FPS:          60,
			RotationStep: 0.03,
			RotationAxis: [3]float64{1, 1, 1},
		},
		Display: DisplayConfig{
			Width:  640,
			Height: 480,
			Window: false,
			MJPEG:  true,
			HUD:    true,
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    8080,
		},
	}
}

// Validate checks the configuration for values the service cannot run with
func (c *Config) Validate() error {
	var errs []error

	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if !validBackends[c.Capture.Backend] {
		errs = append(errs, fmt.Errorf("capture.backend: unknown backend %q", c.Capture.Backend))
	}
	if c.Capture.Backend == "mjpeg" && c.Capture.URL == "" {
		errs = append(errs, errors.New("capture.url: required for the mjpeg backend"))
	}
	if c.Capture.Width <= 0 || c.Capture.Height <= 0 {
		errs = append(errs, fmt.Errorf("capture: invalid resolution %dx%d", c.Capture.Width, c.Capture.Height))
	}
	if err := ValidateEndpoint(c.Messaging.Endpoint); err != nil {
		errs = append(errs, fmt.Errorf("messaging.endpoint: %w", err))
	}
	if c.Messaging.ExchangeTimeout < 0 {
		errs = append(errs, errors.New("messaging.exchange_timeout: must not be negative"))
	}
	if c.Frame.FPS <= 0 {
		errs = append(errs, fmt.Errorf("frame.fps: must be positive, got %d", c.Frame.FPS))
	}
	a := c.Frame.RotationAxis
	if a[0] == 0 && a[1] == 0 && a[2] == 0 {
		errs = append(errs, errors.New("frame.rotation_axis: must be non-zero"))
	}
	if c.Display.Width <= 0 || c.Display.Height <= 0 {
		errs = append(errs, fmt.Errorf("display: invalid size %dx%d", c.Display.Width, c.Display.Height))
	}
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Errorf("server.port: out of range: %d", c.Server.Port))
	}

	return errors.Join(errs...)
}

// ValidateEndpoint accepts tcp://host:port endpoints
func ValidateEndpoint(endpoint string) error {
	return messaging.ValidateEndpoint(endpoint)
}

// Manager handles configuration
type Manager struct {
	configPath string
	config     *Config
	mu         sync.RWMutex
}

// DefaultPath returns $HOME/.config/rotatingbox/config.yaml
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "rotatingbox", "config.yaml"), nil
}

// NewManager loads configFile, or the default path when empty. A missing
// file is created with defaults.
func NewManager(configFile string) (*Manager, error) {
	actualConfigPath := configFile
	if actualConfigPath == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		actualConfigPath = p
	}

	m := &Manager{
		configPath: actualConfigPath,
	}

	if err := m.load(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		logger.WithComponent("config").Info().
			Str("path", m.configPath).
			Msg("Config file not found, creating new config")
		m.config = Defaults()
		if err := m.Save(); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	}

	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Str("endpoint", m.config.Messaging.Endpoint).
		Str("capture_backend", m.config.Capture.Backend).
		Msg("Config loaded")

	return m, nil
}

func (m *Manager) isTOML() bool {
	return strings.EqualFold(filepath.Ext(m.configPath), ".toml")
}

// load reads the configuration from disk on top of the defaults, so keys
// missing from the file keep their default values
func (m *Manager) load() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return err
	}

	cfg := Defaults()
	if m.isTOML() {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("failed to parse config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return nil
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.config == nil {
		return Defaults()
	}
	cfg := *m.config
	return &cfg
}

// Save saves the current configuration to disk
func (m *Manager) Save() error {
	m.mu.RLock()
	cfg := m.config
	m.mu.RUnlock()

	if cfg == nil {
		cfg = Defaults()
	}

	configDir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var data []byte
	if m.isTOML() {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		data = buf.Bytes()
	} else {
		var err error
		if data, err = yaml.Marshal(cfg); err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Str("path", m.configPath).
			Msg("Failed to write config")
		return err
	}

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Msg("Config saved")
	return nil
}

// Update mutates the in-memory configuration. Callers that want the change
// persisted call Save afterwards.
func (m *Manager) Update(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.config == nil {
		m.config = Defaults()
	}
	fn(m.config)
}

// Set assigns a dotted key from its string form, e.g. "frame.fps" "30"
func (m *Manager) Set(key, value string) error {
	var apply func(*Config)

	parseInt := func() (int, error) {
		n, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("invalid number for %s: %s", key, value)
		}
		return n, nil
	}
	parseBool := func() (bool, error) {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return false, fmt.Errorf("invalid boolean for %s: %s (use: true or false)", key, value)
		}
		return b, nil
	}
	parseDuration := func() (time.Duration, error) {
		d, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %s", key, value)
		}
		return d, nil
	}

	switch key {
	case "log_level":
		if _, err := logger.ParseLevel(value); err != nil {
			return err
		}
		apply = func(c *Config) { c.LogLevel = value }
	case "log_pretty":
		b, err := parseBool()
		if err != nil {
			return err
		}
		apply = func(c *Config) { c.LogPretty = b }
	case "capture.backend":
		if !validBackends[value] {
			return fmt.Errorf("unknown capture backend: %s", value)
		}
		apply = func(c *Config) { c.Capture.Backend = value }
	case "capture.device":
		apply = func(c *Config) { c.Capture.Device = value }
	case "capture.url":
		apply = func(c *Config) { c.Capture.URL = value }
	case "messaging.endpoint":
		if err := ValidateEndpoint(value); err != nil {
			return err
		}
		apply = func(c *Config) { c.Messaging.Endpoint = value }
	case "messaging.exchange_timeout", "messaging.dial_retry":
		d, err := parseDuration()
		if err != nil {
			return err
		}
		apply = func(c *Config) {
			if key == "messaging.dial_retry" {
				c.Messaging.DialRetry = d
			} else {
				c.Messaging.ExchangeTimeout = d
			}
		}
	case "frame.rotation_axis":
		axis, err := parseAxis(value)
		if err != nil {
			return fmt.Errorf("invalid axis for %s: %w", key, err)
		}
		apply = func(c *Config) { c.Frame.RotationAxis = axis }
	case "frame.fps", "server.port", "display.width", "display.height", "capture.width", "capture.height":
		n, err := parseInt()
		if err != nil {
			return err
		}
		apply = func(c *Config) {
			switch key {
			case "frame.fps":
				c.Frame.FPS = n
			case "server.port":
				c.Server.Port = n
			case "display.width":
				c.Display.Width = n
			case "display.height":
				c.Display.Height = n
			case "capture.width":
				c.Capture.Width = n
			case "capture.height":
				c.Capture.Height = n
			}
		}
	case "frame.rotation_step":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid number for %s: %s", key, value)
		}
		apply = func(c *Config) { c.Frame.RotationStep = f }
	case "display.window", "display.mjpeg", "display.hud", "server.enabled":
		b, err := parseBool()
		if err != nil {
			return err
		}
		apply = func(c *Config) {
			switch key {
			case "display.window":
				c.Display.Window = b
			case "display.mjpeg":
				c.Display.MJPEG = b
			case "display.hud":
				c.Display.HUD = b
			case "server.enabled":
				c.Server.Enabled = b
			}
		}
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}

	m.Update(apply)
	return nil
}

// Apply sets a key and keeps it only if the whole configuration still
// validates. The previous configuration is restored on failure.
func (m *Manager) Apply(key, value string) error {
	prev := m.Get()
	if err := m.Set(key, value); err != nil {
		return err
	}
	if err := m.Get().Validate(); err != nil {
		m.Update(func(c *Config) { *c = *prev })
		return err
	}
	return nil
}

// parseAxis reads "x,y,z"
func parseAxis(value string) ([3]float64, error) {
	var axis [3]float64
	parts := strings.Split(value, ",")
	if len(parts) != 3 {
		return axis, fmt.Errorf("want x,y,z, got %q", value)
	}
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return axis, fmt.Errorf("component %d: %w", i, err)
		}
		axis[i] = f
	}
	return axis, nil
}

// GetConfigPath returns the path to the config file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}
