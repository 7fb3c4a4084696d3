package capture

import (
	"errors"
	"image"
)

// State reports whether a live device backs the source
type State int

const (
	// Unavailable means no device could be opened; the placeholder is shown
	Unavailable State = iota
	// Active means a device is open and streaming
	Active
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	default:
		return "unavailable"
	}
}

var (
	// ErrUnknownBackend is returned for backend names with no implementation
	ErrUnknownBackend = errors.New("unknown capture backend")
	// ErrNotCompiled is returned by backends excluded by build tags or platform
	ErrNotCompiled = errors.New("capture backend not compiled into this binary")
	// ErrNoFrames is returned when a device opens but never delivers a frame
	ErrNoFrames = errors.New("capture device produced no frames")
	// ErrDeviceClosed is returned by ReadFrame after Close
	ErrDeviceClosed = errors.New("capture device closed")
)

// Mode describes what the source asks a device for
type Mode struct {
	Width  int
	Height int
	// Device is a backend specific path or index, e.g. /dev/video0
	Device string
	// URL is used by network backends
	URL string
}

// Device defines the interface for capture backends
type Device interface {
	// Open acquires the device and starts streaming in the requested mode
	Open(mode Mode) error

	// ReadFrame blocks until the next frame is available
	ReadFrame() (*image.RGBA, error)

	// Close releases the device. ReadFrame calls blocked in the driver
	// return an error afterwards.
	Close() error

	// Name returns a human-readable name for this backend
	Name() string
}

// Artifact is the image currently bound for rendering. Artifacts are never
// mutated after they are produced.
type Artifact struct {
	Image       *image.RGBA
	Seq         uint64
	Placeholder bool
}

// Width of the artifact in pixels
func (a *Artifact) Width() int {
	return a.Image.Bounds().Dx()
}

// Height of the artifact in pixels
func (a *Artifact) Height() int {
	return a.Image.Bounds().Dy()
}
