package output

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/rotatingbox/internal/logger"
)

const defaultQuality = 85

// MJPEGOutput streams presented frames as Motion JPEG over HTTP
type MJPEGOutput struct {
	config  Config
	log     *zerolog.Logger
	running bool
	mu      sync.RWMutex

	// Last encoded frame, sent first to new clients
	frameMu    sync.RWMutex
	lastJPEG   []byte
	lastUpdate time.Time

	clientsMu sync.RWMutex
	clients   map[chan []byte]struct{}

	frameCount uint64
	startTime  time.Time
}

// MJPEGStats is a snapshot of stream counters
type MJPEGStats struct {
	Running    bool      `json:"running"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	TargetFPS  int       `json:"target_fps"`
	ActualFPS  float64   `json:"actual_fps"`
	Frames     uint64    `json:"frames"`
	Clients    int       `json:"clients"`
	LastUpdate time.Time `json:"last_update"`
}

// NewMJPEGOutput creates a new MJPEG stream output
func NewMJPEGOutput(config Config) *MJPEGOutput {
	if config.Quality <= 0 || config.Quality > 100 {
		config.Quality = defaultQuality
	}
	return &MJPEGOutput{
		config:  config,
		log:     logger.WithComponent("mjpeg"),
		clients: make(map[chan []byte]struct{}),
	}
}

// Start marks the output running. The HTTP handlers are mounted separately.
func (m *MJPEGOutput) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("MJPEG output already running")
	}

	m.running = true
	m.startTime = time.Now()
	m.frameCount = 0

	m.log.Info().
		Int("width", m.config.Width).
		Int("height", m.config.Height).
		Int("fps", m.config.FPS).
		Msg("MJPEG output started")
	return nil
}

// Stop disconnects every client
func (m *MJPEGOutput) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}
	m.running = false

	m.clientsMu.Lock()
	for ch := range m.clients {
		close(ch)
	}
	m.clients = make(map[chan []byte]struct{})
	m.clientsMu.Unlock()

	m.log.Info().Uint64("frames", m.frameCount).Msg("MJPEG output stopped")
	return nil
}

// WriteFrame encodes frame and offers it to every client. Slow clients
// miss frames rather than stall the caller.
func (m *MJPEGOutput) WriteFrame(frame *image.RGBA) error {
	if !m.IsRunning() {
		return fmt.Errorf("MJPEG output not running")
	}

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, frame, &jpeg.Options{Quality: m.config.Quality}); err != nil {
		return fmt.Errorf("failed to encode JPEG: %w", err)
	}
	data := buf.Bytes()

	m.frameMu.Lock()
	m.lastJPEG = data
	m.lastUpdate = time.Now()
	m.frameMu.Unlock()

	m.mu.Lock()
	m.frameCount++
	m.mu.Unlock()

	m.clientsMu.RLock()
	for ch := range m.clients {
		select {
		case ch <- data:
		default:
		}
	}
	m.clientsMu.RUnlock()

	return nil
}

// Name returns the output type name
func (m *MJPEGOutput) Name() string {
	return "mjpeg"
}

// IsRunning returns true if the output is active
func (m *MJPEGOutput) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// LastJPEG returns the most recently encoded frame, or nil
func (m *MJPEGOutput) LastJPEG() []byte {
	m.frameMu.RLock()
	defer m.frameMu.RUnlock()
	return m.lastJPEG
}

// Stats returns stream counters
func (m *MJPEGOutput) Stats() MJPEGStats {
	m.mu.RLock()
	running, frames, start := m.running, m.frameCount, m.startTime
	m.mu.RUnlock()

	m.frameMu.RLock()
	last := m.lastUpdate
	m.frameMu.RUnlock()

	m.clientsMu.RLock()
	clients := len(m.clients)
	m.clientsMu.RUnlock()

	var fps float64
	if running && !start.IsZero() {
		if elapsed := time.Since(start).Seconds(); elapsed > 0 {
			fps = float64(frames) / elapsed
		}
	}

	return MJPEGStats{
		Running:    running,
		Width:      m.config.Width,
		Height:     m.config.Height,
		TargetFPS:  m.config.FPS,
		ActualFPS:  fps,
		Frames:     frames,
		Clients:    clients,
		LastUpdate: last,
	}
}

// ClientCount returns the number of connected stream clients
func (m *MJPEGOutput) ClientCount() int {
	m.clientsMu.RLock()
	defer m.clientsMu.RUnlock()
	return len(m.clients)
}

// StreamHandler serves the multipart stream. Mount it at /stream.
func (m *MJPEGOutput) StreamHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !m.IsRunning() {
			http.Error(w, "stream not running", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		w.Header().Set("Connection", "close")

		frames := make(chan []byte, 2)
		if last := m.LastJPEG(); last != nil {
			frames <- last
		}

		m.clientsMu.Lock()
		m.clients[frames] = struct{}{}
		count := len(m.clients)
		m.clientsMu.Unlock()

		m.log.Info().Int("clients", count).Str("remote", r.RemoteAddr).Msg("Stream client connected")

		defer func() {
			m.clientsMu.Lock()
			delete(m.clients, frames)
			count := len(m.clients)
			m.clientsMu.Unlock()
			m.log.Info().Int("clients", count).Msg("Stream client disconnected")
		}()

		for {
			var data []byte
			select {
			case <-r.Context().Done():
				return
			case d, ok := <-frames:
				if !ok {
					return
				}
				data = d
			}

			if err := writePart(w, data); err != nil {
				return
			}
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		}
	}
}

func writePart(w http.ResponseWriter, data []byte) error {
	if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(data)); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err := fmt.Fprint(w, "\r\n")
	return err
}

// ViewerHandler serves a page showing the stream and live status
func (m *MJPEGOutput) ViewerHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(viewerHTML))
	}
}

const viewerHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>rotatingbox</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            background: #000;
            overflow: hidden;
            display: flex;
            justify-content: center;
            align-items: center;
            min-height: 100vh;
        }
        img {
            width: 100vw;
            height: 100vh;
            object-fit: contain;
            display: block;
        }
        #status {
            position: fixed;
            bottom: 16px;
            left: 16px;
            padding: 8px 14px;
            background: rgba(40, 40, 40, 0.9);
            color: #ccc;
            border-radius: 20px;
            font-family: monospace;
            font-size: 13px;
        }
    </style>
</head>
<body>
    <img src="/stream" alt="rotatingbox live stream">
    <div id="status">connecting</div>
    <script>
        const status = document.getElementById('status');
        const proto = location.protocol === 'https:' ? 'wss:' : 'ws:';
        const ws = new WebSocket(proto + '//' + location.host + '/api/status/stream');
        ws.onmessage = (ev) => {
            const s = JSON.parse(ev.data);
            status.textContent = 'frame ' + s.frames + ' | rendered ' + s.rendered +
                ' | failed ' + s.failed + ' | rtt ' + s.last_rtt_ms.toFixed(1) + 'ms | capture ' + s.capture_state;
        };
        ws.onclose = () => { status.textContent = 'disconnected'; };
    </script>
</body>
</html>`
