package capture

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// Placeholder geometry and colors
const (
	PlaceholderWidth  = 640
	PlaceholderHeight = 360
	placeholderPt     = 72
)

var (
	// PlaceholderLines is the label drawn when no device is available
	PlaceholderLines = []string{"No Webcam", "Detected"}

	PlaceholderBackground = color.RGBA{R: 77, G: 77, B: 77, A: 255}
	PlaceholderForeground = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

// Placeholder renders the static "no device" image. Every call returns a new
// image with identical pixels.
func Placeholder() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, PlaceholderWidth, PlaceholderHeight))
	draw.Draw(img, img.Bounds(), &image.Uniform{PlaceholderBackground}, image.Point{}, draw.Src)

	face := placeholderFace()
	defer face.Close()

	drawCenteredLines(img, face, PlaceholderLines, PlaceholderForeground)
	return img
}

// placeholderFace loads Go Regular, or the built-in bitmap face if the
// embedded font cannot be parsed
func placeholderFace() font.Face {
	f, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return basicfont.Face7x13
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    placeholderPt,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return basicfont.Face7x13
	}
	return face
}

// drawCenteredLines draws each line horizontally centered, with the block
// vertically centered in dst
func drawCenteredLines(dst *image.RGBA, face font.Face, lines []string, c color.Color) {
	metrics := face.Metrics()
	lineHeight := metrics.Height.Ceil()
	ascent := metrics.Ascent.Ceil()
	bounds := dst.Bounds()

	top := bounds.Min.Y + (bounds.Dy()-lineHeight*len(lines))/2

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
	}
	for i, line := range lines {
		width := d.MeasureString(line).Ceil()
		x := bounds.Min.X + (bounds.Dx()-width)/2
		y := top + i*lineHeight + ascent
		d.Dot = fixed.P(x, y)
		d.DrawString(line)
	}
}
