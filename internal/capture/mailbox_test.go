package capture

import (
	"image"
	"testing"
)

func TestMailboxKeepsLatest(t *testing.T) {
	b := newMailbox()
	if _, ok := b.take(); ok {
		t.Fatal("take() on empty mailbox returned a frame")
	}

	first := image.NewRGBA(image.Rect(0, 0, 1, 1))
	second := image.NewRGBA(image.Rect(0, 0, 2, 2))

	if b.put(first) {
		t.Error("put() into empty mailbox reported a drop")
	}
	if !b.put(second) {
		t.Error("put() over unconsumed frame did not report a drop")
	}

	got, ok := b.take()
	if !ok || got != second {
		t.Fatalf("take() = %v, %v; want second frame", got, ok)
	}
	if _, ok := b.take(); ok {
		t.Error("take() returned the same frame twice")
	}
}

func TestYUYVToRGBA(t *testing.T) {
	// Two pixels of mid gray: Y=128, U=V=128
	img := yuyvToRGBA([]byte{128, 128, 128, 128}, 2, 1)
	for x := 0; x < 2; x++ {
		c := img.RGBAAt(x, 0)
		if c.R != 128 || c.G != 128 || c.B != 128 || c.A != 255 {
			t.Errorf("pixel %d = %v, want mid gray", x, c)
		}
	}
}
