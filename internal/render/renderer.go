package render

import (
	"image"
	"image/color"
)

// Renderer is the drawing surface the frame loop drives. Calls arrive from
// a single goroutine in Clear, DrawCube, Present order; DrawCube may be
// skipped.
type Renderer interface {
	// Clear fills the surface with c
	Clear(c color.Color)

	// DrawCube draws the 2x2x2 cube centered on the origin, transformed by
	// model, with every face textured with tex
	DrawCube(model Mat4, tex image.Image) error

	// Present publishes the finished frame
	Present() error
}
