package render

import (
	"image"
	"image/color"
	"sync"
)

// Op names a Renderer call
type Op string

const (
	OpClear   Op = "clear"
	OpDraw    Op = "draw"
	OpPresent Op = "present"
)

// Call is one recorded Renderer call
type Call struct {
	Op      Op
	Color   color.Color
	Model   Mat4
	Texture image.Image
}

// Recorder is a Renderer that keeps the calls it receives. Counts are
// exact; the call log keeps only the most recent entries when Keep > 0.
type Recorder struct {
	// DrawErr and PresentErr are returned by the matching calls when set
	DrawErr    error
	PresentErr error

	keep   int
	mu     sync.Mutex
	calls  []Call
	counts map[Op]int
}

// NewRecorder creates a recorder; keep <= 0 records every call
func NewRecorder(keep int) *Recorder {
	return &Recorder{keep: keep, counts: make(map[Op]int)}
}

func (r *Recorder) record(c Call) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[c.Op]++
	r.calls = append(r.calls, c)
	if r.keep > 0 && len(r.calls) > r.keep {
		r.calls = append(r.calls[:0], r.calls[len(r.calls)-r.keep:]...)
	}
}

func (r *Recorder) Clear(c color.Color) {
	r.record(Call{Op: OpClear, Color: c})
}

func (r *Recorder) DrawCube(model Mat4, tex image.Image) error {
	r.record(Call{Op: OpDraw, Model: model, Texture: tex})
	return r.DrawErr
}

func (r *Recorder) Present() error {
	r.record(Call{Op: OpPresent})
	return r.PresentErr
}

// Calls returns the recorded call log
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Count returns how many times op was called
func (r *Recorder) Count(op Op) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[op]
}

// Ops returns the op sequence of the call log
func (r *Recorder) Ops() []Op {
	calls := r.Calls()
	ops := make([]Op, len(calls))
	for i, c := range calls {
		ops[i] = c.Op
	}
	return ops
}

// Reset forgets everything recorded
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
	r.counts = make(map[Op]int)
}
