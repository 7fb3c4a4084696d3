package display

import (
	"fmt"
	"image"

	xdraw "golang.org/x/image/draw"
)

// fitRect returns the largest rectangle with the source aspect ratio that
// fits and is centered in a dstW x dstH area
func fitRect(srcW, srcH, dstW, dstH int) image.Rectangle {
	if srcW <= 0 || srcH <= 0 {
		return image.Rectangle{}
	}
	scale := min(float64(dstW)/float64(srcW), float64(dstH)/float64(srcH))
	w := int(float64(srcW) * scale)
	h := int(float64(srcH) * scale)
	x := (dstW - w) / 2
	y := (dstH - h) / 2
	return image.Rect(x, y, x+w, y+h)
}

// scaleNearest draws src into dstRect of dst with nearest-neighbour sampling
func scaleNearest(dst *image.RGBA, dstRect image.Rectangle, src *image.RGBA) {
	if dstRect.Empty() {
		return
	}
	xdraw.NearestNeighbor.Scale(dst, dstRect, src, src.Bounds(), xdraw.Src, nil)
}

// pixFormat is the server's ZPixmap layout for the root depth
type pixFormat struct {
	depth        uint8
	bitsPerPixel uint8
	scanlinePad  uint8
}

func (f pixFormat) stride(width int) int {
	unpadded := width * int(f.bitsPerPixel) / 8
	pad := int(f.scanlinePad) / 8
	return (unpadded + pad - 1) / pad * pad
}

// packRows converts rows [y0, y1) of img into ZPixmap bytes (BGR order)
func packRows(img *image.RGBA, f pixFormat, y0, y1 int) ([]byte, error) {
	bpp := int(f.bitsPerPixel) / 8
	if bpp != 3 && bpp != 4 {
		return nil, fmt.Errorf("unsupported bytes per pixel: %d", bpp)
	}

	width := img.Bounds().Dx()
	stride := f.stride(width)
	data := make([]byte, stride*(y1-y0))

	for y := y0; y < y1; y++ {
		row := (y - y0) * stride
		for x := 0; x < width; x++ {
			s := img.PixOffset(x, y)
			d := row + x*bpp
			data[d] = img.Pix[s+2]
			data[d+1] = img.Pix[s+1]
			data[d+2] = img.Pix[s]
			if bpp == 4 && f.depth == 32 {
				data[d+3] = img.Pix[s+3]
			}
		}
	}
	return data, nil
}
