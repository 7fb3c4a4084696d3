package capture

import (
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
)

// x11FrameInterval paces root window grabs
const x11FrameInterval = time.Second / 30

// x11Device treats a region of the X11 root window as a camera
type x11Device struct {
	conn   *xgb.Conn
	root   xproto.Window
	screen *xproto.ScreenInfo
	width  int
	height int
	ticker *time.Ticker
	done   chan struct{}
	mu     sync.Mutex
}

func newX11Device() *x11Device {
	return &x11Device{done: make(chan struct{})}
}

// Name returns the capturer name
func (c *x11Device) Name() string {
	return "x11"
}

// Open connects to the X server named by Mode.Device, or $DISPLAY when empty
func (c *x11Device) Open(mode Mode) error {
	var (
		conn *xgb.Conn
		err  error
	)
	if mode.Device != "" {
		conn, err = xgb.NewConnDisplay(mode.Device)
	} else {
		conn, err = xgb.NewConn()
	}
	if err != nil {
		return fmt.Errorf("failed to connect to X server: %w", err)
	}

	setup := xproto.Setup(conn)
	screen := setup.DefaultScreen(conn)

	c.conn = conn
	c.screen = screen
	c.root = screen.Root
	c.width = min(mode.Width, int(screen.WidthInPixels))
	c.height = min(mode.Height, int(screen.HeightInPixels))
	c.ticker = time.NewTicker(x11FrameInterval)
	return nil
}

// ReadFrame grabs the top-left region of the root window once per tick
func (c *x11Device) ReadFrame() (*image.RGBA, error) {
	select {
	case <-c.done:
		return nil, ErrDeviceClosed
	case <-c.ticker.C:
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	reply, err := xproto.GetImage(
		c.conn,
		xproto.ImageFormatZPixmap,
		xproto.Drawable(c.root),
		0, 0,
		uint16(c.width), uint16(c.height),
		0xffffffff,
	).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get image: %w", err)
	}

	return c.convertImageData(reply.Data, c.width, c.height)
}

// convertImageData converts X11 BGRx image data to RGBA
func (c *x11Device) convertImageData(data []byte, width, height int) (*image.RGBA, error) {
	depth := int(c.screen.RootDepth)
	if depth != 24 && depth != 32 {
		return nil, fmt.Errorf("unsupported root depth %d", depth)
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 0; i+3 < len(data) && i < len(img.Pix); i += 4 {
		img.Pix[i] = data[i+2]
		img.Pix[i+1] = data[i+1]
		img.Pix[i+2] = data[i]
		img.Pix[i+3] = 255
	}
	return img, nil
}

// Close closes the X11 connection
func (c *x11Device) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.done:
		return nil
	default:
		close(c.done)
	}
	if c.ticker != nil {
		c.ticker.Stop()
	}
	if c.conn != nil {
		c.conn.Close()
	}
	return nil
}
