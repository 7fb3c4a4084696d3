package capture

import (
	"bufio"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/bryanchriswhite/rotatingbox/internal/logger"
)

// gstDevice reads raw RGBA frames from a gst-launch-1.0 subprocess, which
// keeps GStreamer out of the process and avoids cgo
type gstDevice struct {
	cmd    *exec.Cmd
	stdout *bufio.Reader
	width  int
	height int
	buf    []byte

	mu      sync.Mutex
	running bool
}

func newGstDevice() *gstDevice {
	return &gstDevice{}
}

func (g *gstDevice) Name() string {
	return "gst"
}

// gstPipeline builds the launch line for a v4l2 source scaled to the mode
func gstPipeline(mode Mode) string {
	device := mode.Device
	if device == "" {
		device = "/dev/video0"
	}
	return fmt.Sprintf(
		"v4l2src device=%s ! "+
			"videoconvert ! "+
			"videoscale ! "+
			"video/x-raw,format=RGBA,width=%d,height=%d ! "+
			"fdsink fd=1 sync=false",
		device, mode.Width, mode.Height,
	)
}

func (g *gstDevice) Open(mode Mode) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.running {
		return fmt.Errorf("pipeline already running")
	}
	if _, err := exec.LookPath("gst-launch-1.0"); err != nil {
		return fmt.Errorf("gst-launch-1.0 not found: %w", err)
	}

	log := logger.WithComponent("gstreamer")
	pipeline := gstPipeline(mode)
	log.Debug().Str("pipeline", pipeline).Msg("Starting GStreamer subprocess")

	// sh -c keeps the ! separators intact
	g.cmd = exec.Command("sh", "-c", "gst-launch-1.0 -q "+pipeline)

	stdout, err := g.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	stderr, err := g.cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to get stderr pipe: %w", err)
	}
	if err := g.cmd.Start(); err != nil {
		return fmt.Errorf("failed to start gst-launch: %w", err)
	}

	g.width, g.height = mode.Width, mode.Height
	frameSize := g.width * g.height * 4
	g.stdout = bufio.NewReaderSize(stdout, frameSize*2)
	g.buf = make([]byte, frameSize)
	g.running = true

	go logGstStderr(stderr)

	log.Info().Int("pid", g.cmd.Process.Pid).Msg("GStreamer subprocess started")
	return nil
}

// ReadFrame reads exactly one frame from the pipeline
func (g *gstDevice) ReadFrame() (*image.RGBA, error) {
	if _, err := io.ReadFull(g.stdout, g.buf); err != nil {
		g.mu.Lock()
		running := g.running
		g.mu.Unlock()
		if !running {
			return nil, ErrDeviceClosed
		}
		return nil, fmt.Errorf("read frame: %w", err)
	}

	img := image.NewRGBA(image.Rect(0, 0, g.width, g.height))
	copy(img.Pix, g.buf)
	return img, nil
}

func logGstStderr(r io.Reader) {
	log := logger.WithComponent("gstreamer")
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, "ERROR") || strings.Contains(line, "WARN") {
			log.Warn().Str("gst", line).Msg("GStreamer message")
		} else {
			log.Debug().Str("gst", line).Msg("GStreamer output")
		}
	}
}

// Close kills the subprocess
func (g *gstDevice) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.running {
		return nil
	}
	g.running = false

	if g.cmd != nil && g.cmd.Process != nil {
		g.cmd.Process.Kill()
		g.cmd.Wait()
	}
	return nil
}
