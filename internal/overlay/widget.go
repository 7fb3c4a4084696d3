package overlay

import (
	"image"
	"image/color"
)

// Widget is something the HUD draws on top of a presented frame
type Widget interface {
	// ID returns the unique identifier for this widget instance
	ID() string

	// Type returns the widget type name
	Type() string

	// Render draws the widget onto img at its configured position
	Render(img *image.RGBA) error

	// GetConfig returns the widget's configuration as a map
	GetConfig() map[string]interface{}

	IsEnabled() bool
	SetEnabled(enabled bool)
}

// BaseWidget provides position, opacity and the enabled flag
type BaseWidget struct {
	id      string
	enabled bool
	x       int
	y       int
	opacity float64 // 0.0 to 1.0
}

// NewBaseWidget creates a new base widget
func NewBaseWidget(id string, x, y int, opacity float64) *BaseWidget {
	w := &BaseWidget{id: id, enabled: true, x: x, y: y}
	w.SetOpacity(opacity)
	return w
}

// ID returns the widget's unique identifier
func (w *BaseWidget) ID() string {
	return w.id
}

// IsEnabled returns whether the widget should be rendered
func (w *BaseWidget) IsEnabled() bool {
	return w.enabled
}

// SetEnabled sets whether the widget should be rendered
func (w *BaseWidget) SetEnabled(enabled bool) {
	w.enabled = enabled
}

// Position returns the top-left corner of the widget
func (w *BaseWidget) Position() (int, int) {
	return w.x, w.y
}

// SetPosition moves the widget
func (w *BaseWidget) SetPosition(x, y int) {
	w.x = x
	w.y = y
}

// Opacity returns the widget's opacity
func (w *BaseWidget) Opacity() float64 {
	return w.opacity
}

// SetOpacity sets the widget's opacity, clamped to 0.0..1.0
func (w *BaseWidget) SetOpacity(opacity float64) {
	w.opacity = min(max(opacity, 0), 1)
}

// BlendImage composites src over dst at (x, y), scaling src alpha by opacity.
// dst is treated as opaque, which holds for every presented frame.
func BlendImage(dst *image.RGBA, src image.Image, x, y int, opacity float64) {
	sb := src.Bounds()
	db := dst.Bounds()

	for sy := sb.Min.Y; sy < sb.Max.Y; sy++ {
		dy := y + sy - sb.Min.Y
		if dy < db.Min.Y || dy >= db.Max.Y {
			continue
		}
		for sx := sb.Min.X; sx < sb.Max.X; sx++ {
			dx := x + sx - sb.Min.X
			if dx < db.Min.X || dx >= db.Max.X {
				continue
			}

			sr, sg, sbl, sa := src.At(sx, sy).RGBA()
			alpha := float64(sa) / 0xffff * opacity
			if alpha <= 0 {
				continue
			}

			// RGBA() is premultiplied, so only the destination is scaled
			d := dst.RGBAAt(dx, dy)
			dst.SetRGBA(dx, dy, color.RGBA{
				R: blend(sr, d.R, alpha, opacity),
				G: blend(sg, d.G, alpha, opacity),
				B: blend(sbl, d.B, alpha, opacity),
				A: 255,
			})
		}
	}
}

func blend(src uint32, dst uint8, alpha, opacity float64) uint8 {
	v := float64(src>>8)*opacity + float64(dst)*(1-alpha)
	return uint8(min(max(v, 0), 255))
}

// DrawRectangle fills a rectangle with c at the given opacity
func DrawRectangle(dst *image.RGBA, r image.Rectangle, c color.Color, opacity float64) {
	BlendImage(dst, &uniformRect{c: c, r: r}, r.Min.X, r.Min.Y, opacity)
}

// uniformRect is a bounded image.Uniform
type uniformRect struct {
	c color.Color
	r image.Rectangle
}

func (u *uniformRect) ColorModel() color.Model { return color.RGBAModel }
func (u *uniformRect) Bounds() image.Rectangle { return u.r }
func (u *uniformRect) At(int, int) color.Color { return u.c }
