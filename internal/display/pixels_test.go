package display

import (
	"image"
	"image/color"
	"testing"
)

func TestFitRect(t *testing.T) {
	tests := []struct {
		name       string
		srcW, srcH int
		dstW, dstH int
		want       image.Rectangle
	}{
		{"same size", 640, 480, 640, 480, image.Rect(0, 0, 640, 480)},
		{"wide source letterboxes", 640, 360, 640, 480, image.Rect(0, 60, 640, 420)},
		{"tall source pillarboxes", 320, 480, 640, 480, image.Rect(160, 0, 480, 480)},
		{"upscale", 320, 240, 640, 480, image.Rect(0, 0, 640, 480)},
		{"empty source", 0, 0, 640, 480, image.Rectangle{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fitRect(tt.srcW, tt.srcH, tt.dstW, tt.dstH); got != tt.want {
				t.Errorf("fitRect() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScaleNearestDoubles(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 2, 1))
	src.SetRGBA(0, 0, color.RGBA{255, 0, 0, 255})
	src.SetRGBA(1, 0, color.RGBA{0, 0, 255, 255})

	dst := image.NewRGBA(image.Rect(0, 0, 4, 2))
	scaleNearest(dst, dst.Bounds(), src)

	for y := 0; y < 2; y++ {
		if dst.RGBAAt(1, y).R != 255 || dst.RGBAAt(2, y).B != 255 {
			t.Errorf("row %d = %v %v", y, dst.RGBAAt(1, y), dst.RGBAAt(2, y))
		}
	}
}

func TestPackRows(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 3, 2))
	img.SetRGBA(0, 1, color.RGBA{R: 10, G: 20, B: 30, A: 255})

	f := pixFormat{depth: 24, bitsPerPixel: 32, scanlinePad: 32}
	data, err := packRows(img, f, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 12 {
		t.Fatalf("len = %d, want one 12 byte row", len(data))
	}
	if data[0] != 30 || data[1] != 20 || data[2] != 10 || data[3] != 0 {
		t.Errorf("pixel bytes = %v, want BGRx", data[:4])
	}

	f24 := pixFormat{depth: 24, bitsPerPixel: 24, scanlinePad: 32}
	data, err = packRows(img, f24, 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	// 3 pixels * 3 bytes = 9, padded to 12
	if len(data) != 24 {
		t.Errorf("len = %d, want 24", len(data))
	}

	if _, err := packRows(img, pixFormat{depth: 16, bitsPerPixel: 16, scanlinePad: 32}, 0, 1); err == nil {
		t.Error("16 bpp accepted")
	}
}

func TestScaleNearestLetterbox(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for i := range src.Pix {
		src.Pix[i] = 255
	}

	dst := image.NewRGBA(image.Rect(0, 0, 8, 4))
	fit := fitRect(2, 2, 8, 4)
	scaleNearest(dst, fit, src)

	if fit != image.Rect(2, 0, 6, 4) {
		t.Fatalf("fitRect = %v", fit)
	}
	if dst.RGBAAt(0, 0).A != 0 || dst.RGBAAt(7, 3).A != 0 {
		t.Error("bars outside the fitted area were drawn")
	}
	if c := dst.RGBAAt(3, 2); c.R != 255 || c.A != 255 {
		t.Errorf("fitted area pixel = %v", c)
	}
}
