package capture

import (
	"fmt"
	"sort"
)

// DeviceInfo describes a capture device found on the host
type DeviceInfo struct {
	Path   string `json:"path"`
	Name   string `json:"name"`
	Driver string `json:"driver"`
	Camera bool   `json:"camera"`
}

var backends = map[string]func() Device{
	"v4l":   func() Device { return newV4LDevice() },
	"x11":   func() Device { return newX11Device() },
	"mjpeg": func() Device { return newMJPEGDevice() },
	"gst":   func() Device { return newGstDevice() },
	"gocv":  func() Device { return newGoCVDevice() },
}

// NewDevice routes a backend name to its implementation. "none" is reported
// as an error so the source falls back to the placeholder.
func NewDevice(backend string) (Device, error) {
	if backend == "none" {
		return nil, fmt.Errorf("capture disabled by configuration")
	}
	build, ok := backends[backend]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
	return build(), nil
}

// Backends lists the names NewDevice accepts, plus "none"
func Backends() []string {
	names := make([]string, 0, len(backends)+1)
	for name := range backends {
		names = append(names, name)
	}
	names = append(names, "none")
	sort.Strings(names)
	return names
}
