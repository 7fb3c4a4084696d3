package messaging

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/rotatingbox/internal/logger"
)

// ResponderOptions configures a Responder
type ResponderOptions struct {
	// Reply defaults to Reply
	Reply []byte
	// Delay is applied before every reply
	Delay time.Duration
	// Mute receives requests but never answers them
	Mute bool
}

// Responder is the REP side of the channel. It answers every request with a
// fixed reply.
type Responder struct {
	opts ResponderOptions
	log  *zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	sock   zmq4.Socket

	served    atomic.Uint64
	closeOnce sync.Once
}

// NewResponder creates a responder; call Listen before Serve
func NewResponder(opts ResponderOptions) *Responder {
	if opts.Reply == nil {
		opts.Reply = Reply
	}
	return &Responder{
		opts: opts,
		log:  logger.WithComponent("responder"),
	}
}

// Listen binds a REP socket. Port 0 picks a free port; see Addr.
func (r *Responder) Listen(ctx context.Context, endpoint string) error {
	if !strings.HasPrefix(endpoint, "tcp://") {
		return fmt.Errorf("%w: invalid endpoint %q: only tcp:// is supported", ErrSetup, endpoint)
	}

	r.ctx, r.cancel = context.WithCancel(ctx)
	r.sock = zmq4.NewRep(r.ctx)
	if err := r.sock.Listen(endpoint); err != nil {
		r.sock.Close()
		r.cancel()
		return fmt.Errorf("%w: listen on %s: %w", ErrSetup, endpoint, err)
	}

	r.log.Info().
		Str("endpoint", r.Endpoint()).
		Dur("delay", r.opts.Delay).
		Bool("mute", r.opts.Mute).
		Msg("Responder listening")
	return nil
}

// Addr is the bound listener address
func (r *Responder) Addr() net.Addr {
	return r.sock.Addr()
}

// Endpoint is the tcp:// form of Addr, suitable for Client.Open
func (r *Responder) Endpoint() string {
	return "tcp://" + r.Addr().String()
}

// Serve answers requests until Close or the listen context ends
func (r *Responder) Serve() error {
	for {
		msg, err := r.sock.Recv()
		if err != nil {
			if r.ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("recv: %w", err)
		}

		r.log.Debug().Int("bytes", len(msg.Bytes())).Msg("Request received")
		if r.opts.Mute {
			continue
		}

		if r.opts.Delay > 0 {
			select {
			case <-time.After(r.opts.Delay):
			case <-r.ctx.Done():
				return nil
			}
		}

		if err := r.sock.Send(zmq4.NewMsg(r.opts.Reply)); err != nil {
			if r.ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("send: %w", err)
		}
		r.served.Add(1)
	}
}

// Served counts replies sent
func (r *Responder) Served() uint64 {
	return r.served.Load()
}

// Close stops Serve and releases the socket
func (r *Responder) Close() error {
	var err error
	r.closeOnce.Do(func() {
		if r.sock == nil {
			return
		}
		r.cancel()
		err = r.sock.Close()
		r.log.Info().Uint64("served", r.Served()).Msg("Responder closed")
	})
	return err
}
