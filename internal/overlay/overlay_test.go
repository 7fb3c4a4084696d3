package overlay

import (
	"errors"
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/bryanchriswhite/rotatingbox/internal/logger"
)

func init() {
	logger.Silence()
}

func blankFrame(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{color.RGBA{0, 0, 0, 255}}, image.Point{}, draw.Src)
	return img
}

func countLit(img *image.RGBA, r image.Rectangle) int {
	n := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if c := img.RGBAAt(x, y); c.R > 0 || c.G > 0 || c.B > 0 {
				n++
			}
		}
	}
	return n
}

type failingWidget struct{ *BaseWidget }

func (f failingWidget) Type() string { return "failing" }

func (f failingWidget) Render(*image.RGBA) error { return errors.New("boom") }

func (f failingWidget) GetConfig() map[string]interface{} { return nil }

func TestTextWidgetDrawsWithinItsBox(t *testing.T) {
	img := blankFrame(200, 100)
	w := NewTextWidget("label", 10, 10, "frame 42")

	if err := w.Render(img); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if countLit(img, image.Rect(10, 10, 100, 40)) == 0 {
		t.Error("no text pixels inside the widget box")
	}
	if countLit(img, image.Rect(120, 50, 200, 100)) != 0 {
		t.Error("text pixels outside the widget box")
	}
}

func TestDisabledWidgetDrawsNothing(t *testing.T) {
	img := blankFrame(100, 50)
	w := NewTextWidget("label", 0, 0, "hidden")
	w.SetEnabled(false)

	m := NewManager()
	m.AddWidget(w)
	m.Render(img)

	if countLit(img, img.Bounds()) != 0 {
		t.Error("disabled widget drew pixels")
	}
}

func TestStatsWidgetPullsLinesEachRender(t *testing.T) {
	calls := 0
	w := NewStatsWidget("stats", 0, 0, func() []string {
		calls++
		return []string{"rtt 1ms"}
	})

	img := blankFrame(120, 60)
	w.Render(img)
	w.Render(img)

	if calls != 2 {
		t.Errorf("source called %d times, want 2", calls)
	}
	if countLit(img, img.Bounds()) == 0 {
		t.Error("stats widget drew nothing")
	}
}

func TestManagerOrderAndDuplicates(t *testing.T) {
	m := NewManager()
	if err := m.AddWidget(NewTextWidget("a", 0, 0, "a")); err != nil {
		t.Fatal(err)
	}
	if err := m.AddWidget(NewTextWidget("b", 0, 0, "b")); err != nil {
		t.Fatal(err)
	}
	if err := m.AddWidget(NewTextWidget("a", 0, 0, "again")); err == nil {
		t.Error("duplicate ID accepted")
	}

	ws := m.Widgets()
	if len(ws) != 2 || ws[0].ID() != "a" || ws[1].ID() != "b" {
		t.Fatalf("Widgets() order = %v", ws)
	}

	if err := m.RemoveWidget("a"); err != nil {
		t.Fatal(err)
	}
	if _, ok := m.GetWidget("a"); ok {
		t.Error("removed widget still present")
	}
	if err := m.RemoveWidget("a"); err == nil {
		t.Error("removing a missing widget succeeded")
	}
}

func TestManagerSkipsFailingWidget(t *testing.T) {
	m := NewManager()
	m.AddWidget(failingWidget{NewBaseWidget("bad", 0, 0, 1)})
	m.AddWidget(NewTextWidget("good", 0, 0, "ok"))

	img := blankFrame(80, 40)
	m.Render(img)

	if countLit(img, img.Bounds()) == 0 {
		t.Error("widget after a failing one was not drawn")
	}
}

func TestBlendImageOpacity(t *testing.T) {
	dst := blankFrame(4, 4)
	src := image.NewRGBA(image.Rect(0, 0, 2, 2))
	draw.Draw(src, src.Bounds(), &image.Uniform{color.RGBA{200, 100, 0, 255}}, image.Point{}, draw.Src)

	BlendImage(dst, src, 1, 1, 0.5)

	got := dst.RGBAAt(1, 1)
	if got.R != 100 || got.G != 50 || got.B != 0 || got.A != 255 {
		t.Errorf("blended pixel = %v, want {100 50 0 255}", got)
	}
	if dst.RGBAAt(0, 0) != (color.RGBA{0, 0, 0, 255}) {
		t.Error("pixel outside src changed")
	}
}
