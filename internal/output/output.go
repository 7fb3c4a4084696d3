package output

import (
	"image"
)

// Output is a sink for presented frames: the MJPEG stream, the X11 window.
// WriteFrame is called from the frame loop and must not retain frame after
// it returns.
type Output interface {
	// Start initializes the output mechanism
	Start() error

	// Stop cleanly shuts down the output
	Stop() error

	// WriteFrame sends a frame to the output
	WriteFrame(frame *image.RGBA) error

	// Name returns a human-readable name for this output type
	Name() string

	// IsRunning returns true if the output is currently active
	IsRunning() bool
}

// Config holds common configuration for all output types
type Config struct {
	Width  int
	Height int
	FPS    int
	// Quality is the JPEG quality for encoded outputs, default 85
	Quality int
}
