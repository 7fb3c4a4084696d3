//go:build linux

package capture

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"sync"

	"github.com/korandiz/v4l"
)

const uvcVideoDriver = "uvcvideo"

var (
	fourCCMJPG = fourCC("MJPG")
	fourCCYUYV = fourCC("YUYV")
)

func fourCC(s string) uint32 {
	return uint32(s[0]) | uint32(s[1])<<8 | uint32(s[2])<<16 | uint32(s[3])<<24
}

// v4lDevice captures from a Video4Linux2 device
type v4lDevice struct {
	mu     sync.Mutex
	path   string
	dev    *v4l.Device
	config v4l.DeviceConfig
	buf    []byte
	closed bool
}

func newV4LDevice() *v4lDevice {
	return &v4lDevice{}
}

func (d *v4lDevice) Name() string {
	return "v4l"
}

func (d *v4lDevice) Open(mode Mode) error {
	d.path = mode.Device
	if d.path == "" {
		for _, info := range v4l.FindDevices() {
			if info.Camera {
				d.path = info.Path
				break
			}
		}
	}
	if d.path == "" {
		return fmt.Errorf("no video4linux camera found")
	}

	dev, err := v4l.Open(d.path)
	if err != nil {
		return fmt.Errorf("open %s: %w", d.path, err)
	}

	configs, err := dev.ListConfigs()
	if err != nil {
		dev.Close()
		return fmt.Errorf("list configs of %s: %w", d.path, err)
	}
	found, ok := pickConfig(configs, mode.Width, mode.Height)
	if !ok {
		dev.Close()
		return fmt.Errorf("%s offers no MJPG or YUYV mode", d.path)
	}

	dev.TurnOff()
	if err := dev.SetConfig(found); err != nil {
		dev.Close()
		return fmt.Errorf("set config on %s: %w", d.path, err)
	}

	info, err := dev.BufferInfo()
	if err != nil {
		dev.Close()
		return fmt.Errorf("buffer info of %s: %w", d.path, err)
	}

	if err := dev.TurnOn(); err != nil {
		dev.Close()
		return fmt.Errorf("start streaming on %s: %w", d.path, err)
	}

	d.dev = dev
	d.config = found
	d.buf = make([]byte, info.BufferSize)
	return nil
}

// pickConfig prefers MJPG, then the mode closest to the requested size
func pickConfig(configs []v4l.DeviceConfig, width, height int) (v4l.DeviceConfig, bool) {
	abs := func(a int) int {
		if a < 0 {
			return -a
		}
		return a
	}

	var (
		best   v4l.DeviceConfig
		lowest = -1
	)
	for _, c := range configs {
		if c.Format != fourCCMJPG && c.Format != fourCCYUYV {
			continue
		}
		score := abs(c.Width-width) + abs(c.Height-height)
		if c.Format != fourCCMJPG {
			score += 100
		}
		if lowest < 0 || score < lowest {
			best = c
			lowest = score
		}
	}
	return best, lowest >= 0
}

func (d *v4lDevice) ReadFrame() (*image.RGBA, error) {
	d.mu.Lock()
	if d.closed || d.dev == nil {
		d.mu.Unlock()
		return nil, ErrDeviceClosed
	}
	dev := d.dev
	d.mu.Unlock()

	vbuf, err := dev.Capture()
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	n, err := vbuf.Read(d.buf)
	if err != nil {
		return nil, fmt.Errorf("read buffer: %w", err)
	}
	data := d.buf[:n]

	switch d.config.Format {
	case fourCCMJPG:
		img, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decode MJPG frame: %w", err)
		}
		return toRGBA(img), nil
	default:
		return yuyvToRGBA(data, d.config.Width, d.config.Height), nil
	}
}

func (d *v4lDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || d.dev == nil {
		d.closed = true
		return nil
	}
	d.closed = true
	d.dev.TurnOff()
	d.dev.Close()
	return nil
}

// ListDevices enumerates Video4Linux2 devices
func ListDevices() []DeviceInfo {
	var out []DeviceInfo
	for _, info := range v4l.FindDevices() {
		out = append(out, DeviceInfo{
			Path:   info.Path,
			Name:   info.DeviceName,
			Driver: info.DriverName,
			Camera: info.Camera && info.DriverName == uvcVideoDriver,
		})
	}
	return out
}
