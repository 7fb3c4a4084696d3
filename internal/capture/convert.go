package capture

import (
	"image"
	"image/draw"
)

// toRGBA converts any decoded image to RGBA with a zero origin
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}
	bounds := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	return rgba
}

// yuyvToRGBA converts packed YUV 4:2:2 (Y0 U Y1 V) to RGBA
func yuyvToRGBA(data []byte, width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	pairs := width * height / 2
	for i := 0; i < pairs && i*4+3 < len(data); i++ {
		y0 := int(data[i*4])
		u := int(data[i*4+1]) - 128
		y1 := int(data[i*4+2])
		v := int(data[i*4+3]) - 128

		for j, y := range [2]int{y0, y1} {
			o := (i*2 + j) * 4
			img.Pix[o] = clamp(y + (1402*v)/1000)
			img.Pix[o+1] = clamp(y - (344*u+714*v)/1000)
			img.Pix[o+2] = clamp(y + (1772*u)/1000)
			img.Pix[o+3] = 255
		}
	}
	return img
}

func clamp(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
