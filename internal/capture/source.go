package capture

import (
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bryanchriswhite/rotatingbox/internal/logger"
	"github.com/bryanchriswhite/rotatingbox/internal/observability"
	"github.com/rs/zerolog"
)

// DefaultWarmup bounds how long Initialize waits for the first device frame
const DefaultWarmup = 3 * time.Second

// DeviceFactory builds the device for a backend name
type DeviceFactory func(backend string) (Device, error)

// Options configures a Source
type Options struct {
	Backend string
	Mode    Mode
	// Warmup defaults to DefaultWarmup
	Warmup  time.Duration
	Factory DeviceFactory
	Metrics *observability.Metrics
}

// Stats is a snapshot of device counters
type Stats struct {
	State          string `json:"state"`
	Backend        string `json:"backend"`
	FramesReceived uint64 `json:"frames_received"`
	FramesDropped  uint64 `json:"frames_dropped"`
}

// Source owns a capture device, or the placeholder that stands in for one
type Source struct {
	opts    Options
	log     *zerolog.Logger
	metrics *observability.Metrics

	device Device
	inbox  *mailbox

	// mu guards state, current and seq for readers outside the frame loop
	mu      sync.RWMutex
	state   State
	current *Artifact
	seq     uint64

	received atomic.Uint64
	dropped  atomic.Uint64

	stop      chan struct{}
	pumpDone  chan struct{}
	closeOnce sync.Once
}

// NewSource creates a source. Nothing is opened until Initialize.
func NewSource(opts Options) *Source {
	if opts.Factory == nil {
		opts.Factory = NewDevice
	}
	if opts.Warmup <= 0 {
		opts.Warmup = DefaultWarmup
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.NewMetrics(nil)
	}
	return &Source{
		opts:    opts,
		log:     logger.WithComponent("capture"),
		metrics: opts.Metrics,
		inbox:   newMailbox(),
		stop:    make(chan struct{}),
	}
}

// Initialize opens the configured device and waits for its first frame.
// Failures never propagate: the source falls back to the placeholder and
// reports Unavailable.
func (s *Source) Initialize() State {
	device, err := s.openDevice()
	if err == nil {
		s.device = device
		s.pumpDone = make(chan struct{})
		go s.pump(device)
		err = s.awaitFirstFrame()
	}

	if err != nil {
		s.log.Warn().
			Err(err).
			Str("backend", s.opts.Backend).
			Msg("Capture device unavailable, using placeholder")
		s.releaseDevice()
		s.mu.Lock()
		s.state = Unavailable
		s.current = &Artifact{Image: Placeholder(), Placeholder: true}
		s.mu.Unlock()
		s.metrics.CaptureActive.Set(0)
		return Unavailable
	}

	s.mu.Lock()
	s.state = Active
	current := s.current
	s.mu.Unlock()

	s.metrics.CaptureActive.Set(1)
	s.log.Info().
		Str("backend", device.Name()).
		Int("width", current.Width()).
		Int("height", current.Height()).
		Msg("Capture device started")
	return Active
}

// openDevice builds and opens the device, turning a backend panic into an error
func (s *Source) openDevice() (dev Device, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("capture backend %s panicked: %v", s.opts.Backend, r)
			if dev != nil {
				dev.Close()
				dev = nil
			}
		}
	}()

	dev, err = s.opts.Factory(s.opts.Backend)
	if err != nil {
		return nil, err
	}
	if err := dev.Open(s.opts.Mode); err != nil {
		return nil, fmt.Errorf("failed to open %s device: %w", dev.Name(), err)
	}
	return dev, nil
}

func (s *Source) awaitFirstFrame() error {
	timer := time.NewTimer(s.opts.Warmup)
	defer timer.Stop()

	select {
	case <-s.inbox.ready:
	case <-s.pumpDone:
		// The reader may have published a frame before failing
	case <-timer.C:
		return fmt.Errorf("%w within %v", ErrNoFrames, s.opts.Warmup)
	}

	frame, ok := s.inbox.take()
	if !ok {
		return ErrNoFrames
	}
	s.mu.Lock()
	s.current = s.wrap(frame)
	s.mu.Unlock()
	return nil
}

// pump reads device frames until Close or a read error. A driver panic is
// treated as a read error.
func (s *Source) pump(dev Device) {
	defer close(s.pumpDone)
	defer func() {
		if r := recover(); r != nil {
			s.log.Warn().
				Str("backend", dev.Name()).
				Str("panic", fmt.Sprint(r)).
				Msg("Capture backend panicked while reading, no further frames")
		}
	}()
	for {
		frame, err := dev.ReadFrame()
		if err != nil {
			select {
			case <-s.stop:
			default:
				s.log.Warn().Err(err).Str("backend", dev.Name()).Msg("Capture read failed, no further frames")
			}
			return
		}
		s.received.Add(1)
		s.metrics.CaptureFrames.Inc()
		if s.inbox.put(frame) {
			s.dropped.Add(1)
			s.metrics.CaptureDropped.Inc()
		}
	}
}

func (s *Source) wrap(frame *image.RGBA) *Artifact {
	s.seq++
	return &Artifact{Image: frame, Seq: s.seq}
}

// PollFrame returns the newest device frame since the last poll. It never
// returns the placeholder.
func (s *Source) PollFrame() (*Artifact, bool) {
	if s.State() != Active {
		return nil, false
	}
	frame, ok := s.inbox.take()
	if !ok {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = s.wrap(frame)
	return s.current, true
}

// CurrentArtifact returns the most recently produced artifact, or nil
// before Initialize
func (s *Source) CurrentArtifact() *Artifact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// State returns the state reached by Initialize
func (s *Source) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Backend returns the configured backend name
func (s *Source) Backend() string {
	return s.opts.Backend
}

// Stats returns device counters
func (s *Source) Stats() Stats {
	return Stats{
		State:          s.State().String(),
		Backend:        s.opts.Backend,
		FramesReceived: s.received.Load(),
		FramesDropped:  s.dropped.Load(),
	}
}

// Close releases the device exactly once
func (s *Source) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.releaseDevice()
		s.metrics.CaptureActive.Set(0)
	})
	return err
}

func (s *Source) releaseDevice() error {
	if s.device == nil {
		return nil
	}
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	err := s.device.Close()
	if s.pumpDone != nil {
		select {
		case <-s.pumpDone:
		case <-time.After(time.Second):
			s.log.Warn().Str("backend", s.device.Name()).Msg("Capture reader still blocked in driver after close")
		}
	}
	s.device = nil
	return err
}
