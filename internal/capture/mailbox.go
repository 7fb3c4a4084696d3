package capture

import (
	"image"
	"sync"
)

// mailbox hands device frames from the reader goroutine to the frame loop.
// A new frame replaces an unconsumed one.
type mailbox struct {
	mu    sync.Mutex
	frame *image.RGBA
	ready chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{ready: make(chan struct{}, 1)}
}

// put stores frame and reports whether an unconsumed frame was overwritten
func (b *mailbox) put(frame *image.RGBA) (dropped bool) {
	b.mu.Lock()
	dropped = b.frame != nil
	b.frame = frame
	b.mu.Unlock()

	select {
	case b.ready <- struct{}{}:
	default:
	}
	return dropped
}

// take returns the pending frame without blocking
func (b *mailbox) take() (*image.RGBA, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.frame == nil {
		return nil, false
	}
	f := b.frame
	b.frame = nil
	return f, true
}
