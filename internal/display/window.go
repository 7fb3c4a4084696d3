package display

import (
	"fmt"
	"image"
	"image/draw"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/rotatingbox/internal/logger"
)

// Config describes the preview window
type Config struct {
	Width  int
	Height int
	Title  string
	// Display names the X server, $DISPLAY when empty
	Display string
}

// Window shows presented frames in an X11 window, letterboxed to fit
type Window struct {
	cfg Config
	log *zerolog.Logger

	mu      sync.RWMutex
	conn    *xgb.Conn
	screen  *xproto.ScreenInfo
	win     xproto.Window
	gc      xproto.Gcontext
	format  pixFormat
	maxRows int
	buf     *image.RGBA
	running bool
}

// NewWindow creates a window sink. Nothing touches the X server until Start.
func NewWindow(cfg Config) *Window {
	if cfg.Title == "" {
		cfg.Title = "rotatingbox"
	}
	return &Window{
		cfg: cfg,
		log: logger.WithComponent("display"),
		buf: image.NewRGBA(image.Rect(0, 0, cfg.Width, cfg.Height)),
	}
}

// Start connects to the X server and maps the window
func (m *Window) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("display already running")
	}

	var (
		conn *xgb.Conn
		err  error
	)
	if m.cfg.Display != "" {
		conn, err = xgb.NewConnDisplay(m.cfg.Display)
	} else {
		conn, err = xgb.NewConn()
	}
	if err != nil {
		return fmt.Errorf("failed to connect to X server: %w", err)
	}

	setup := xproto.Setup(conn)
	m.conn = conn
	m.screen = setup.DefaultScreen(conn)

	if err := m.createWindow(setup); err != nil {
		conn.Close()
		return err
	}

	m.running = true
	m.log.Info().
		Int("width", m.cfg.Width).
		Int("height", m.cfg.Height).
		Uint32("window_id", uint32(m.win)).
		Msg("Preview window created")
	return nil
}

func (m *Window) createWindow(setup *xproto.SetupInfo) error {
	for _, f := range setup.PixmapFormats {
		if f.Depth == m.screen.RootDepth {
			m.format = pixFormat{depth: f.Depth, bitsPerPixel: f.BitsPerPixel, scanlinePad: f.ScanlinePad}
			break
		}
	}
	if m.format.bitsPerPixel == 0 {
		return fmt.Errorf("no pixmap format for depth %d", m.screen.RootDepth)
	}

	// MaximumRequestLength is in 4-byte units; leave room for the header
	maxBytes := int(setup.MaximumRequestLength)*4 - 64
	m.maxRows = max(1, maxBytes/m.format.stride(m.cfg.Width))

	win, err := xproto.NewWindowId(m.conn)
	if err != nil {
		return fmt.Errorf("failed to create window ID: %w", err)
	}
	m.win = win

	err = xproto.CreateWindowChecked(
		m.conn,
		m.screen.RootDepth,
		m.win,
		m.screen.Root,
		0, 0,
		uint16(m.cfg.Width), uint16(m.cfg.Height),
		0,
		xproto.WindowClassInputOutput,
		m.screen.RootVisual,
		xproto.CwBackPixel|xproto.CwEventMask,
		[]uint32{0x000000, xproto.EventMaskExposure | xproto.EventMaskStructureNotify},
	).Check()
	if err != nil {
		return fmt.Errorf("failed to create window: %w", err)
	}

	if err := m.setProperty("_NET_WM_NAME", "UTF8_STRING", m.cfg.Title); err != nil {
		m.log.Warn().Err(err).Msg("Failed to set window title")
	}
	if err := m.setProperty("WM_CLASS", "", "rotatingbox\x00rotatingbox\x00"); err != nil {
		m.log.Warn().Err(err).Msg("Failed to set window class")
	}

	if err := xproto.MapWindowChecked(m.conn, m.win).Check(); err != nil {
		return fmt.Errorf("failed to map window: %w", err)
	}

	gc, err := xproto.NewGcontextId(m.conn)
	if err != nil {
		return fmt.Errorf("failed to create graphics context ID: %w", err)
	}
	if err := xproto.CreateGCChecked(m.conn, gc, xproto.Drawable(m.win), 0, nil).Check(); err != nil {
		return fmt.Errorf("failed to create GC: %w", err)
	}
	m.gc = gc
	return nil
}

// setProperty sets an 8-bit property; an empty typ means STRING
func (m *Window) setProperty(name, typ, value string) error {
	prop, err := m.atom(name)
	if err != nil {
		return err
	}
	propType := xproto.Atom(xproto.AtomString)
	if typ != "" {
		if propType, err = m.atom(typ); err != nil {
			return err
		}
	}
	return xproto.ChangePropertyChecked(
		m.conn,
		xproto.PropModeReplace,
		m.win,
		prop,
		propType,
		8,
		uint32(len(value)),
		[]byte(value),
	).Check()
}

func (m *Window) atom(name string) (xproto.Atom, error) {
	reply, err := xproto.InternAtom(m.conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, err
	}
	return reply.Atom, nil
}

// WriteFrame letterboxes frame into the window
func (m *Window) WriteFrame(frame *image.RGBA) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.running {
		return fmt.Errorf("display not running")
	}

	draw.Draw(m.buf, m.buf.Bounds(), image.Black, image.Point{}, draw.Src)
	fit := fitRect(frame.Bounds().Dx(), frame.Bounds().Dy(), m.cfg.Width, m.cfg.Height)
	scaleNearest(m.buf, fit, frame)

	for y0 := 0; y0 < m.cfg.Height; y0 += m.maxRows {
		y1 := min(y0+m.maxRows, m.cfg.Height)
		data, err := packRows(m.buf, m.format, y0, y1)
		if err != nil {
			return err
		}
		err = xproto.PutImageChecked(
			m.conn,
			xproto.ImageFormatZPixmap,
			xproto.Drawable(m.win),
			m.gc,
			uint16(m.cfg.Width), uint16(y1-y0),
			0, int16(y0),
			0,
			m.format.depth,
			data,
		).Check()
		if err != nil {
			return fmt.Errorf("failed to put image: %w", err)
		}
	}
	return nil
}

// Stop destroys the window and closes the connection
func (m *Window) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}
	m.running = false

	if m.gc != 0 {
		xproto.FreeGC(m.conn, m.gc)
	}
	if m.win != 0 {
		xproto.DestroyWindow(m.conn, m.win)
	}
	m.conn.Sync()
	m.conn.Close()

	m.log.Info().Msg("Preview window closed")
	return nil
}

// Name returns the output type name
func (m *Window) Name() string {
	return "x11-window"
}

// IsRunning returns true while the window is mapped
func (m *Window) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}
