package render

import (
	"errors"
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/bryanchriswhite/rotatingbox/internal/output"
	"github.com/bryanchriswhite/rotatingbox/internal/overlay"
)

type recordingOutput struct {
	frames int
	last   *image.RGBA
	err    error
}

func (o *recordingOutput) Start() error { return nil }

func (o *recordingOutput) Stop() error { return nil }

func (o *recordingOutput) Name() string { return "recording" }

func (o *recordingOutput) IsRunning() bool { return true }

func (o *recordingOutput) WriteFrame(frame *image.RGBA) error {
	o.frames++
	o.last = frame
	return o.err
}

func texture(c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	draw.Draw(img, img.Bounds(), &image.Uniform{c}, image.Point{}, draw.Src)
	return img
}

var (
	black = color.RGBA{0, 0, 0, 255}
	red   = color.RGBA{255, 0, 0, 255}
)

func TestCanvasDrawsCubeAtCenter(t *testing.T) {
	c := NewCanvas(CanvasOptions{Width: 64, Height: 48})
	c.Clear(black)

	if err := c.DrawCube(Rotate(Vec3{1, 1, 1}, 0.3), texture(red)); err != nil {
		t.Fatalf("DrawCube() error = %v", err)
	}
	if err := c.Present(); err != nil {
		t.Fatalf("Present() error = %v", err)
	}

	snap := c.Snapshot()
	if got := snap.RGBAAt(32, 24); got != red {
		t.Errorf("center pixel = %v, want texture color", got)
	}
	if got := snap.RGBAAt(0, 0); got != black {
		t.Errorf("corner pixel = %v, want clear color", got)
	}
}

func TestCanvasClearOnlyLeavesNoCube(t *testing.T) {
	c := NewCanvas(CanvasOptions{Width: 32, Height: 32})
	c.Clear(black)
	c.Present()

	snap := c.Snapshot()
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			if snap.RGBAAt(x, y) != black {
				t.Fatalf("pixel (%d,%d) = %v after clear only", x, y, snap.RGBAAt(x, y))
			}
		}
	}
}

func TestCanvasRejectsMissingTexture(t *testing.T) {
	c := NewCanvas(CanvasOptions{Width: 8, Height: 8})
	if err := c.DrawCube(Identity(), nil); err == nil {
		t.Error("DrawCube(nil texture) succeeded")
	}
}

func TestCanvasPresentFeedsOutputsAndHUD(t *testing.T) {
	hud := overlay.NewManager()
	hud.AddWidget(overlay.NewTextWidget("label", 0, 0, "HUD"))

	out := &recordingOutput{}
	c := NewCanvas(CanvasOptions{Width: 64, Height: 48, HUD: hud, Outputs: []output.Output{out}})
	c.Clear(black)
	c.Present()

	if out.frames != 1 {
		t.Fatalf("output received %d frames, want 1", out.frames)
	}
	if c.Presented() != 1 {
		t.Errorf("Presented() = %d", c.Presented())
	}

	lit := false
	for y := 0; y < 24 && !lit; y++ {
		for x := 0; x < 40; x++ {
			if out.last.RGBAAt(x, y) != black {
				lit = true
				break
			}
		}
	}
	if !lit {
		t.Error("HUD not drawn before output")
	}
}

func TestCanvasPresentReportsOutputErrors(t *testing.T) {
	out := &recordingOutput{err: errors.New("client gone")}
	c := NewCanvas(CanvasOptions{Width: 8, Height: 8})
	c.AddOutput(out)
	c.Clear(black)

	if err := c.Present(); err == nil {
		t.Error("Present() swallowed output error")
	}
	if c.Snapshot() == nil {
		t.Error("frame not kept when an output failed")
	}
}

func TestSnapshotBeforePresent(t *testing.T) {
	c := NewCanvas(CanvasOptions{Width: 8, Height: 8})
	if c.Snapshot() != nil {
		t.Error("Snapshot() before Present is not nil")
	}
}

func TestRecorderKeepsRecentCalls(t *testing.T) {
	r := NewRecorder(2)
	r.Clear(black)
	r.DrawCube(Identity(), texture(red))
	r.Present()

	ops := r.Ops()
	if len(ops) != 2 || ops[0] != OpDraw || ops[1] != OpPresent {
		t.Errorf("Ops() = %v, want [draw present]", ops)
	}
	if r.Count(OpClear) != 1 {
		t.Errorf("Count(clear) = %d, want 1", r.Count(OpClear))
	}

	r.Reset()
	if len(r.Calls()) != 0 || r.Count(OpPresent) != 0 {
		t.Error("Reset() kept state")
	}
}
