package render

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"
	"sync/atomic"

	"github.com/bryanchriswhite/rotatingbox/internal/output"
	"github.com/bryanchriswhite/rotatingbox/internal/overlay"
)

// Default camera
var (
	DefaultEye    = Vec3{3, 2, -3}
	DefaultFOV    = 60.0
	defaultCenter = Vec3{0, 0, 0}
	defaultUp     = Vec3{0, 1, 0}
)

const (
	nearPlane = 1.0
	farPlane  = 1000.0
)

// CanvasOptions configures a Canvas
type CanvasOptions struct {
	Width  int
	Height int
	// Eye defaults to DefaultEye; the camera always looks at the origin
	Eye Vec3
	// FOV is the vertical field of view in degrees, default DefaultFOV
	FOV     float64
	HUD     *overlay.Manager
	Outputs []output.Output
}

// Canvas is a software Renderer. Presented frames go through the HUD and
// then to every attached output.
type Canvas struct {
	opts     CanvasOptions
	frame    *image.RGBA
	viewProj Mat4

	outMu   sync.RWMutex
	outputs []output.Output

	snapMu    sync.RWMutex
	snapshot  *image.RGBA
	presented atomic.Uint64
}

// NewCanvas creates a canvas of the given size
func NewCanvas(opts CanvasOptions) *Canvas {
	if opts.Eye == (Vec3{}) {
		opts.Eye = DefaultEye
	}
	if opts.FOV <= 0 {
		opts.FOV = DefaultFOV
	}

	view := LookAt(opts.Eye, defaultCenter, defaultUp)
	proj := Perspective(opts.FOV, float64(opts.Width)/float64(opts.Height), nearPlane, farPlane)

	return &Canvas{
		opts:     opts,
		frame:    image.NewRGBA(image.Rect(0, 0, opts.Width, opts.Height)),
		viewProj: proj.Mul(view),
		outputs:  append([]output.Output(nil), opts.Outputs...),
	}
}

// AddOutput attaches another frame sink
func (c *Canvas) AddOutput(o output.Output) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	c.outputs = append(c.outputs, o)
}

// Clear fills the frame with col
func (c *Canvas) Clear(col color.Color) {
	draw.Draw(c.frame, c.frame.Bounds(), &image.Uniform{col}, image.Point{}, draw.Src)
}

type face struct {
	normal  Vec3
	corners [4]Vec3
}

// Corners run counter-clockwise seen from outside, starting bottom-left
var cubeFaces = [6]face{
	{Vec3{0, 0, 1}, [4]Vec3{{-1, -1, 1}, {1, -1, 1}, {1, 1, 1}, {-1, 1, 1}}},
	{Vec3{0, 0, -1}, [4]Vec3{{1, -1, -1}, {-1, -1, -1}, {-1, 1, -1}, {1, 1, -1}}},
	{Vec3{1, 0, 0}, [4]Vec3{{1, -1, 1}, {1, -1, -1}, {1, 1, -1}, {1, 1, 1}}},
	{Vec3{-1, 0, 0}, [4]Vec3{{-1, -1, -1}, {-1, -1, 1}, {-1, 1, 1}, {-1, 1, -1}}},
	{Vec3{0, 1, 0}, [4]Vec3{{-1, 1, 1}, {1, 1, 1}, {1, 1, -1}, {-1, 1, -1}}},
	{Vec3{0, -1, 0}, [4]Vec3{{-1, -1, -1}, {1, -1, -1}, {1, -1, 1}, {-1, -1, 1}}},
}

var cornerUV = [4][2]float64{{0, 1}, {1, 1}, {1, 0}, {0, 0}}

// vertex is a projected corner carrying perspective-correct attributes
type vertex struct {
	x, y   float64
	invW   float64
	uw, vw float64
}

// DrawCube rasterizes the front-facing faces of the cube. Faces of a convex
// solid never overlap once back faces are culled, so no depth buffer is kept.
func (c *Canvas) DrawCube(model Mat4, tex image.Image) error {
	if tex == nil {
		return errors.New("draw cube: nil texture")
	}
	tb := tex.Bounds()
	if tb.Empty() {
		return fmt.Errorf("draw cube: empty texture %v", tb)
	}

	mvp := c.viewProj.Mul(model)
	w, h := float64(c.opts.Width), float64(c.opts.Height)

	for _, f := range cubeFaces {
		n := model.TransformDir(f.normal)
		center := model.TransformPoint(f.normal)
		toEye := c.opts.Eye.Sub(Vec3{center[0], center[1], center[2]})
		if n.Dot(toEye) <= 0 {
			continue
		}

		var quad [4]vertex
		visible := true
		for i, p := range f.corners {
			clip := mvp.TransformPoint(p)
			if clip[3] < nearPlane {
				visible = false
				break
			}
			inv := 1 / clip[3]
			quad[i] = vertex{
				x:    (clip[0]*inv + 1) / 2 * w,
				y:    (1 - clip[1]*inv) / 2 * h,
				invW: inv,
				uw:   cornerUV[i][0] * inv,
				vw:   cornerUV[i][1] * inv,
			}
		}
		if !visible {
			continue
		}

		c.rasterize(quad[0], quad[1], quad[2], tex)
		c.rasterize(quad[0], quad[2], quad[3], tex)
	}
	return nil
}

func edge(a, b vertex, px, py float64) float64 {
	return (b.x-a.x)*(py-a.y) - (b.y-a.y)*(px-a.x)
}

func (c *Canvas) rasterize(v0, v1, v2 vertex, tex image.Image) {
	area := edge(v0, v1, v2.x, v2.y)
	if area == 0 {
		return
	}

	bounds := c.frame.Bounds()
	minX := max(int(min(v0.x, v1.x, v2.x)), bounds.Min.X)
	maxX := min(int(max(v0.x, v1.x, v2.x))+1, bounds.Max.X)
	minY := max(int(min(v0.y, v1.y, v2.y)), bounds.Min.Y)
	maxY := min(int(max(v0.y, v1.y, v2.y))+1, bounds.Max.Y)

	tb := tex.Bounds()
	rgba, _ := tex.(*image.RGBA)

	for y := minY; y < maxY; y++ {
		py := float64(y) + 0.5
		for x := minX; x < maxX; x++ {
			px := float64(x) + 0.5
			b0 := edge(v1, v2, px, py) / area
			b1 := edge(v2, v0, px, py) / area
			b2 := edge(v0, v1, px, py) / area
			if b0 < 0 || b1 < 0 || b2 < 0 {
				continue
			}

			invW := b0*v0.invW + b1*v1.invW + b2*v2.invW
			u := (b0*v0.uw + b1*v1.uw + b2*v2.uw) / invW
			v := (b0*v0.vw + b1*v1.vw + b2*v2.vw) / invW

			tx := tb.Min.X + min(max(int(u*float64(tb.Dx())), 0), tb.Dx()-1)
			ty := tb.Min.Y + min(max(int(v*float64(tb.Dy())), 0), tb.Dy()-1)

			o := c.frame.PixOffset(x, y)
			if rgba != nil {
				s := rgba.PixOffset(tx, ty)
				copy(c.frame.Pix[o:o+3], rgba.Pix[s:s+3])
			} else {
				r, g, b, _ := tex.At(tx, ty).RGBA()
				c.frame.Pix[o] = uint8(r >> 8)
				c.frame.Pix[o+1] = uint8(g >> 8)
				c.frame.Pix[o+2] = uint8(b >> 8)
			}
			c.frame.Pix[o+3] = 255
		}
	}
}

// Present draws the HUD, hands the frame to every output and keeps a copy
// for Snapshot
func (c *Canvas) Present() error {
	if c.opts.HUD != nil {
		c.opts.HUD.Render(c.frame)
	}

	c.outMu.RLock()
	outputs := c.outputs
	c.outMu.RUnlock()

	var errs []error
	for _, o := range outputs {
		if !o.IsRunning() {
			continue
		}
		if err := o.WriteFrame(c.frame); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", o.Name(), err))
		}
	}

	c.snapMu.Lock()
	if c.snapshot == nil {
		c.snapshot = image.NewRGBA(c.frame.Bounds())
	}
	copy(c.snapshot.Pix, c.frame.Pix)
	c.snapMu.Unlock()

	c.presented.Add(1)
	return errors.Join(errs...)
}

// Snapshot returns a copy of the last presented frame, or nil before the
// first Present
func (c *Canvas) Snapshot() *image.RGBA {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	if c.snapshot == nil {
		return nil
	}
	out := image.NewRGBA(c.snapshot.Bounds())
	copy(out.Pix, c.snapshot.Pix)
	return out
}

// Presented counts frames presented so far
func (c *Canvas) Presented() uint64 {
	return c.presented.Load()
}
