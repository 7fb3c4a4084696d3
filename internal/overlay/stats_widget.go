package overlay

import (
	"image"
	"image/color"
)

// StatsFunc supplies the lines a StatsWidget shows on each render
type StatsFunc func() []string

// StatsWidget draws live status lines pulled from a StatsFunc every frame
type StatsWidget struct {
	*BaseWidget
	source  StatsFunc
	bgColor color.RGBA
	padding int
}

// NewStatsWidget creates a stats panel at (x, y)
func NewStatsWidget(id string, x, y int, source StatsFunc) *StatsWidget {
	return &StatsWidget{
		BaseWidget: NewBaseWidget(id, x, y, 0.85),
		source:     source,
		bgColor:    color.RGBA{30, 30, 40, 220},
		padding:    6,
	}
}

// Type returns the widget type
func (w *StatsWidget) Type() string {
	return "stats"
}

// Render draws the current stats
func (w *StatsWidget) Render(img *image.RGBA) error {
	if w.source == nil {
		return nil
	}
	bg := w.bgColor
	return drawPanel(img, w.BaseWidget, w.source(), color.RGBA{255, 255, 255, 255}, &bg, w.padding)
}

// GetConfig returns the widget configuration
func (w *StatsWidget) GetConfig() map[string]interface{} {
	return map[string]interface{}{
		"id":         w.id,
		"type":       w.Type(),
		"enabled":    w.enabled,
		"x":          w.x,
		"y":          w.y,
		"opacity":    w.opacity,
		"padding":    w.padding,
		"background": rgbaMap(w.bgColor),
	}
}
