//go:build !gocv

package capture

import "image"

// gocvDevice is a stand-in for builds without OpenCV
type gocvDevice struct{}

func newGoCVDevice() *gocvDevice {
	return &gocvDevice{}
}

func (d *gocvDevice) Name() string { return "gocv" }

func (d *gocvDevice) Open(Mode) error { return ErrNotCompiled }

func (d *gocvDevice) ReadFrame() (*image.RGBA, error) { return nil, ErrNotCompiled }

func (d *gocvDevice) Close() error { return nil }
