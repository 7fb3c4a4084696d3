package frame

import (
	"context"
	"fmt"
	"image/color"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/rotatingbox/internal/capture"
	"github.com/bryanchriswhite/rotatingbox/internal/logger"
	"github.com/bryanchriswhite/rotatingbox/internal/messaging"
	"github.com/bryanchriswhite/rotatingbox/internal/observability"
	"github.com/bryanchriswhite/rotatingbox/internal/render"
)

// Defaults
var (
	DefaultAxis  = render.Vec3{1, 1, 1}
	DefaultClear = color.RGBA{0, 0, 0, 255}
)

const (
	DefaultStep = 0.03
	DefaultFPS  = 60
)

// Capture is the part of capture.Source the loop drives
type Capture interface {
	PollFrame() (*capture.Artifact, bool)
	CurrentArtifact() *capture.Artifact
	State() capture.State
}

// Exchanger is the part of messaging.Client the loop drives
type Exchanger interface {
	Exchange(ctx context.Context, request []byte) messaging.Result
	State() messaging.ConnState
}

// Options configures an Orchestrator
type Options struct {
	// Axis and Step define the per-frame rotation; not scaled by time
	Axis render.Vec3
	Step float64
	// ExchangeTimeout bounds each exchange; 0 waits for the reply forever
	ExchangeTimeout time.Duration
	FPS             int
	ClearColor      color.Color
	Metrics         *observability.Metrics
	Logger          *zerolog.Logger
}

// Report describes one tick
type Report struct {
	Frame uint64
	// Rendered is true when the exchange succeeded and the cube was drawn
	Rendered bool
	// Skipped is true when no artifact was bound; nothing was cleared,
	// exchanged or drawn
	Skipped     bool
	NewCapture  bool
	Placeholder bool
	Result      messaging.Result
	Rotation    render.Mat4
	Exchange    time.Duration
}

// Stats is a concurrency-safe snapshot of the loop
type Stats struct {
	Frames       uint64  `json:"frames"`
	Rendered     uint64  `json:"rendered"`
	Failed       uint64  `json:"failed"`
	Skipped      uint64  `json:"skipped"`
	LastRTTMs    float64 `json:"last_rtt_ms"`
	LastError    string  `json:"last_error,omitempty"`
	Angle        float64 `json:"angle"`
	ArtifactSeq  uint64  `json:"artifact_seq"`
	Placeholder  bool    `json:"placeholder"`
	CaptureState string  `json:"capture_state"`
	Connection   string  `json:"connection"`
}

// Orchestrator runs the per-frame sequence: poll capture, rotate, exchange,
// draw on success, present. It is driven from a single goroutine; only
// Stats, Artifact and HUDLines may be called concurrently.
type Orchestrator struct {
	source   Capture
	client   Exchanger
	renderer render.Renderer
	opts     Options
	log      *zerolog.Logger
	metrics  *observability.Metrics

	step     render.Mat4
	rotation render.Mat4
	frame    uint64
	failing  string

	mu       sync.RWMutex
	artifact *capture.Artifact
	stats    Stats
}

// New wires an orchestrator. The artifact bound at construction is the
// source's current one.
func New(source Capture, client Exchanger, renderer render.Renderer, opts Options) *Orchestrator {
	if opts.Axis == (render.Vec3{}) {
		opts.Axis = DefaultAxis
	}
	if opts.Step == 0 {
		opts.Step = DefaultStep
	}
	if opts.FPS <= 0 {
		opts.FPS = DefaultFPS
	}
	if opts.ClearColor == nil {
		opts.ClearColor = DefaultClear
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.NewMetrics(nil)
	}
	if opts.Logger == nil {
		opts.Logger = logger.WithComponent("frame")
	}

	return &Orchestrator{
		source:   source,
		client:   client,
		renderer: renderer,
		opts:     opts,
		log:      opts.Logger,
		metrics:  opts.Metrics,
		step:     render.Rotate(opts.Axis, opts.Step),
		rotation: render.Identity(),
		artifact: source.CurrentArtifact(),
	}
}

// Tick runs one frame. With no exchange timeout it blocks until the peer
// replies, even if ctx is cancelled.
func (o *Orchestrator) Tick(ctx context.Context) Report {
	o.frame++
	r := Report{Frame: o.frame}

	if a, ok := o.source.PollFrame(); ok {
		o.mu.Lock()
		o.artifact = a
		o.mu.Unlock()
		r.NewCapture = true
	}

	o.rotation = o.rotation.Mul(o.step)
	r.Rotation = o.rotation

	o.mu.RLock()
	artifact := o.artifact
	o.mu.RUnlock()

	if artifact == nil {
		r.Skipped = true
		o.metrics.RecordFrame(observability.FrameSkipped)
		o.record(r, nil)
		return r
	}
	r.Placeholder = artifact.Placeholder

	o.renderer.Clear(o.opts.ClearColor)

	start := time.Now()
	r.Result = o.exchange(ctx)
	r.Exchange = time.Since(start)

	if r.Result.OK() {
		if err := o.renderer.DrawCube(o.rotation, artifact.Image); err != nil {
			o.log.Warn().Err(err).Uint64("frame", r.Frame).Msg("Draw failed")
		} else {
			r.Rendered = true
		}
	}

	if r.Rendered {
		o.metrics.RecordFrame(observability.FrameRendered)
	} else {
		o.metrics.RecordFrame(observability.FrameFailed)
	}
	o.logTransition(r)
	// Stats include this frame before the HUD reads them in Present
	o.record(r, artifact)

	if err := o.renderer.Present(); err != nil {
		o.log.Debug().Err(err).Uint64("frame", r.Frame).Msg("Present reported output errors")
	}
	return r
}

func (o *Orchestrator) exchange(ctx context.Context) messaging.Result {
	if o.opts.ExchangeTimeout <= 0 {
		return o.client.Exchange(context.WithoutCancel(ctx), messaging.Greeting)
	}
	ctx, cancel := context.WithTimeout(ctx, o.opts.ExchangeTimeout)
	defer cancel()
	return o.client.Exchange(ctx, messaging.Greeting)
}

// logTransition logs when frames start or stop failing, not every frame
func (o *Orchestrator) logTransition(r Report) {
	reason := ""
	if !r.Result.OK() {
		reason = r.Result.Err.Error()
	}
	if reason == o.failing {
		return
	}

	switch {
	case reason == "":
		o.log.Info().Uint64("frame", r.Frame).Msg("Peer replying, rendering resumed")
	case o.failing == "":
		o.log.Warn().Err(r.Result.Err).Uint64("frame", r.Frame).Msg("Exchange failed, cube not drawn")
	default:
		o.log.Warn().Err(r.Result.Err).Uint64("frame", r.Frame).Msg("Exchange still failing")
	}
	o.failing = reason
}

func (o *Orchestrator) record(r Report, artifact *capture.Artifact) {
	o.mu.Lock()
	defer o.mu.Unlock()

	s := &o.stats
	s.Frames = r.Frame
	s.Angle += o.opts.Step
	switch {
	case r.Skipped:
		s.Skipped++
		return
	case r.Rendered:
		s.Rendered++
		s.LastRTTMs = float64(r.Exchange.Microseconds()) / 1000
		s.LastError = ""
	default:
		s.Failed++
		if r.Result.Err != nil {
			s.LastError = r.Result.Err.Error()
		}
	}
	s.ArtifactSeq = artifact.Seq
	s.Placeholder = artifact.Placeholder
}

// Run ticks at the configured FPS until ctx is done. Ticks that come due
// while a frame is blocked in the exchange are dropped, so the achieved
// rate follows the round trip.
func (o *Orchestrator) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(o.opts.FPS)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	o.log.Info().
		Int("fps", o.opts.FPS).
		Dur("interval", interval).
		Dur("exchange_timeout", o.opts.ExchangeTimeout).
		Msg("Frame loop started")

	for {
		select {
		case <-ctx.Done():
			o.log.Info().Uint64("frames", o.frame).Msg("Frame loop stopped")
			return nil
		case <-ticker.C:
			// Both cases can be ready at once; never start a frame after
			// cancellation, the client may be closing
			if ctx.Err() != nil {
				continue
			}
			o.Tick(ctx)
		}
	}
}

// RunWithGrace runs the loop until ctx is done. A frame still blocked in
// the exchange grace after cancellation is released by calling release,
// which must make the pending exchange return (closing the client does).
func (o *Orchestrator) RunWithGrace(ctx context.Context, grace time.Duration, release func()) error {
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		o.log.Warn().Dur("grace", grace).Msg("Frame still waiting for reply, releasing it")
		release()
		return <-done
	}
}

// Stats returns a snapshot of loop counters
func (o *Orchestrator) Stats() Stats {
	o.mu.RLock()
	s := o.stats
	o.mu.RUnlock()

	s.CaptureState = o.source.State().String()
	s.Connection = o.client.State().String()
	return s
}

// Artifact returns the artifact currently bound for drawing
func (o *Orchestrator) Artifact() *capture.Artifact {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.artifact
}

// HUDLines formats the stats for the on-screen overlay
func (o *Orchestrator) HUDLines() []string {
	s := o.Stats()
	peer := "ok"
	if s.LastError != "" {
		peer = s.LastError
	}
	return []string{
		fmt.Sprintf("frame %d  drawn %d  failed %d", s.Frames, s.Rendered, s.Failed),
		fmt.Sprintf("rtt %.2f ms", s.LastRTTMs),
		fmt.Sprintf("capture %s", s.CaptureState),
		fmt.Sprintf("peer %s", peer),
	}
}
