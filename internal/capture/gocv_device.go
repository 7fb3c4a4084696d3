//go:build gocv

package capture

import (
	"fmt"
	"image"
	"strconv"
	"sync"

	"gocv.io/x/gocv"
)

// gocvDevice captures through OpenCV
type gocvDevice struct {
	mu     sync.Mutex
	cap    *gocv.VideoCapture
	mat    gocv.Mat
	closed bool
}

func newGoCVDevice() *gocvDevice {
	return &gocvDevice{}
}

func (d *gocvDevice) Name() string {
	return "gocv"
}

// Open accepts a numeric camera index or a path/URL in Mode.Device
func (d *gocvDevice) Open(mode Mode) error {
	var (
		vc  *gocv.VideoCapture
		err error
	)
	target := mode.Device
	if mode.URL != "" {
		target = mode.URL
	}
	if id, convErr := strconv.Atoi(target); convErr == nil {
		vc, err = gocv.OpenVideoCapture(id)
	} else {
		vc, err = gocv.OpenVideoCapture(target)
	}
	if err != nil {
		return fmt.Errorf("open %q: %w", target, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return fmt.Errorf("open %q: device not opened", target)
	}
	vc.Set(gocv.VideoCaptureFrameWidth, float64(mode.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(mode.Height))

	d.cap = vc
	d.mat = gocv.NewMat()
	return nil
}

func (d *gocvDevice) ReadFrame() (*image.RGBA, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrDeviceClosed
	}
	if ok := d.cap.Read(&d.mat); !ok || d.mat.Empty() {
		return nil, fmt.Errorf("read frame: device returned no data")
	}
	img, err := d.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	return toRGBA(img), nil
}

func (d *gocvDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	if d.cap == nil {
		return nil
	}
	d.mat.Close()
	return d.cap.Close()
}
