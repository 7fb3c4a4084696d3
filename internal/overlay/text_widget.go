package overlay

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// lineHeight of basicfont.Face7x13
const lineHeight = 13

// TextWidget draws one or more fixed lines of text
type TextWidget struct {
	*BaseWidget
	lines     []string
	textColor color.RGBA
	bgColor   *color.RGBA
	padding   int
}

// NewTextWidget creates a white text widget with no background
func NewTextWidget(id string, x, y int, lines ...string) *TextWidget {
	return &TextWidget{
		BaseWidget: NewBaseWidget(id, x, y, 1.0),
		lines:      lines,
		textColor:  color.RGBA{255, 255, 255, 255},
		padding:    5,
	}
}

// Type returns the widget type
func (w *TextWidget) Type() string {
	return "text"
}

// Render draws the text widget
func (w *TextWidget) Render(img *image.RGBA) error {
	return drawPanel(img, w.BaseWidget, w.lines, w.textColor, w.bgColor, w.padding)
}

// drawPanel draws lines with an optional background box behind them
func drawPanel(img *image.RGBA, base *BaseWidget, lines []string, fg color.RGBA, bg *color.RGBA, padding int) error {
	if !base.IsEnabled() || len(lines) == 0 {
		return nil
	}

	face := basicfont.Face7x13
	widest := 0
	for _, line := range lines {
		widest = max(widest, font.MeasureString(face, line).Ceil())
	}

	width := widest + padding*2
	height := lineHeight*len(lines) + padding*2
	x, y := base.Position()

	if bg != nil {
		DrawRectangle(img, image.Rect(x, y, x+width, y+height), *bg, base.Opacity())
	}

	text := image.NewRGBA(image.Rect(0, 0, widest, lineHeight*len(lines)))
	d := &font.Drawer{
		Dst:  text,
		Src:  image.NewUniform(fg),
		Face: face,
	}
	for i, line := range lines {
		d.Dot = fixed.Point26_6{X: 0, Y: fixed.I((i+1)*lineHeight - face.Descent)}
		d.DrawString(line)
	}

	BlendImage(img, text, x+padding, y+padding, base.Opacity())
	return nil
}

// GetConfig returns the widget configuration
func (w *TextWidget) GetConfig() map[string]interface{} {
	config := map[string]interface{}{
		"id":      w.id,
		"type":    w.Type(),
		"enabled": w.enabled,
		"x":       w.x,
		"y":       w.y,
		"opacity": w.opacity,
		"lines":   w.lines,
		"padding": w.padding,
		"color":   rgbaMap(w.textColor),
	}
	if w.bgColor != nil {
		config["background"] = rgbaMap(*w.bgColor)
	}
	return config
}

func rgbaMap(c color.RGBA) map[string]interface{} {
	return map[string]interface{}{"r": c.R, "g": c.G, "b": c.B, "a": c.A}
}

// SetLines replaces the text
func (w *TextWidget) SetLines(lines ...string) {
	w.lines = lines
}

// Lines returns the current text
func (w *TextWidget) Lines() []string {
	return w.lines
}

// SetColor sets the text color
func (w *TextWidget) SetColor(c color.RGBA) {
	w.textColor = c
}

// SetBackground sets the background color (nil for transparent)
func (w *TextWidget) SetBackground(c *color.RGBA) {
	w.bgColor = c
}

// Validate ensures the widget has something to draw
func (w *TextWidget) Validate() error {
	if len(w.lines) == 0 {
		return fmt.Errorf("text widget requires at least one line")
	}
	return nil
}
