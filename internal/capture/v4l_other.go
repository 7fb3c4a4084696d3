//go:build !linux

package capture

import "image"

type v4lDevice struct{}

func newV4LDevice() *v4lDevice {
	return &v4lDevice{}
}

func (d *v4lDevice) Name() string { return "v4l" }

func (d *v4lDevice) Open(Mode) error { return ErrNotCompiled }

func (d *v4lDevice) ReadFrame() (*image.RGBA, error) { return nil, ErrDeviceClosed }

func (d *v4lDevice) Close() error { return nil }

// ListDevices returns nothing on platforms without Video4Linux2
func ListDevices() []DeviceInfo {
	return nil
}
