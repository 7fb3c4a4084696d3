package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/rotatingbox/internal/logger"
	"github.com/bryanchriswhite/rotatingbox/internal/observability"
)

// DefaultDialRetry is the pause between attempts to reach an absent peer
const DefaultDialRetry = 250 * time.Millisecond

// Socket is the part of a zmq4 socket the client uses
type Socket interface {
	Dial(endpoint string) error
	Send(msg zmq4.Msg) error
	Recv() (zmq4.Msg, error)
	Close() error
}

// SocketFactory allocates a REQ socket bound to ctx with the given identity
type SocketFactory func(ctx context.Context, id string) (Socket, error)

// NewReqSocket allocates a zmq4 REQ socket. Dial retries are driven by the
// client, so the socket itself gives up after one attempt.
func NewReqSocket(ctx context.Context, id string) (Socket, error) {
	sock := zmq4.NewReq(ctx,
		zmq4.WithID(zmq4.SocketIdentity(id)),
		zmq4.WithDialerMaxRetries(0),
	)
	if sock == nil {
		return nil, errors.New("zmq4 returned no socket")
	}
	return sock, nil
}

// Options configures a Client
type Options struct {
	// Factory defaults to NewReqSocket
	Factory SocketFactory
	// DialRetry defaults to DefaultDialRetry
	DialRetry time.Duration
	Metrics   *observability.Metrics
}

type outcome struct {
	reply []byte
	err   error
	rtt   time.Duration
}

// Client owns one REQ channel to a remote endpoint. Exchanges strictly
// alternate send and receive; at most one request is outstanding.
type Client struct {
	opts    Options
	log     *zerolog.Logger
	metrics *observability.Metrics

	// mu guards the lifecycle fields
	mu       sync.Mutex
	state    ConnState
	endpoint string
	id       string
	ctx      context.Context
	cancel   context.CancelFunc
	sock     Socket

	// exMu serializes Exchange
	exMu    sync.Mutex
	pending chan outcome
	dialed  atomic.Bool
}

// NewClient creates a disconnected client
func NewClient(opts Options) *Client {
	if opts.Factory == nil {
		opts.Factory = NewReqSocket
	}
	if opts.DialRetry <= 0 {
		opts.DialRetry = DefaultDialRetry
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.NewMetrics(nil)
	}
	return &Client{
		opts:    opts,
		log:     logger.WithComponent("messaging"),
		metrics: opts.Metrics,
	}
}

// Open allocates the owning context and the REQ socket for endpoint. It does
// not contact the peer: the connection is established by the first
// exchange, so Open reports Connected whether or not anything listens.
func (c *Client) Open(ctx context.Context, endpoint string) (ConnState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case Connected:
		return c.state, ErrAlreadyOpen
	case Closed:
		return c.state, ErrClosed
	}

	if err := ValidateEndpoint(endpoint); err != nil {
		return c.state, fmt.Errorf("%w: %w", ErrSetup, err)
	}

	owner, cancel := context.WithCancel(ctx)
	c.metrics.ContextsOpen.Inc()

	id := uuid.NewString()
	sock, err := c.opts.Factory(owner, id)
	if err != nil {
		cancel()
		c.metrics.ContextsOpen.Dec()
		return c.state, fmt.Errorf("%w: allocate REQ socket: %w", ErrSetup, err)
	}
	c.metrics.ChannelsOpen.Inc()

	c.ctx = owner
	c.cancel = cancel
	c.sock = sock
	c.id = id
	c.endpoint = endpoint
	c.state = Connected

	c.log.Info().
		Str("endpoint", endpoint).
		Str("id", id).
		Msg("Request channel opened")
	return c.state, nil
}

// Exchange sends one request and blocks until one reply arrives or ctx is
// done. A ctx without deadline blocks until the peer replies. When ctx ends
// first the request stays outstanding; later exchanges fail with
// ErrRequestOutstanding until its reply has arrived and been discarded.
//
// Exchange after Close is a programming error and panics.
func (c *Client) Exchange(ctx context.Context, request []byte) Result {
	c.exMu.Lock()
	defer c.exMu.Unlock()

	c.mu.Lock()
	state, sock := c.state, c.sock
	c.mu.Unlock()

	switch state {
	case Closed:
		panic("messaging: Exchange called after Close")
	case Disconnected:
		c.metrics.RecordExchange(observability.OutcomeError, 0)
		return Failure(ErrNotOpen)
	}

	if c.pending != nil {
		select {
		case late := <-c.pending:
			c.pending = nil
			c.log.Debug().
				Err(late.err).
				Int("bytes", len(late.reply)).
				Msg("Discarded late reply")
		default:
			c.metrics.RecordExchange(observability.OutcomeOutstanding, 0)
			return Failure(ErrRequestOutstanding)
		}
	}

	done := make(chan outcome, 1)
	go c.roundTrip(sock, request, done)

	start := time.Now()
	select {
	case out := <-done:
		if out.err != nil {
			c.metrics.RecordExchange(observability.OutcomeError, time.Since(start))
			return Failure(out.err)
		}
		c.metrics.RecordExchange(observability.OutcomeSuccess, out.rtt)
		return Success(out.reply)
	case <-ctx.Done():
		c.pending = done
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			c.metrics.RecordExchange(observability.OutcomeTimeout, time.Since(start))
			return Failure(fmt.Errorf("%w after %v", ErrTimeout, time.Since(start).Round(time.Millisecond)))
		}
		c.metrics.RecordExchange(observability.OutcomeError, time.Since(start))
		return Failure(fmt.Errorf("exchange abandoned: %w", ctx.Err()))
	}
}

// ExchangeTimeout is Exchange with a relative deadline; d <= 0 waits forever
func (c *Client) ExchangeTimeout(request []byte, d time.Duration) Result {
	if d <= 0 {
		return c.Exchange(context.Background(), request)
	}
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return c.Exchange(ctx, request)
}

// roundTrip performs dial, send and receive on its own goroutine so the
// caller can stop waiting without corrupting the socket's send/recv order
func (c *Client) roundTrip(sock Socket, request []byte, done chan<- outcome) {
	start := time.Now()

	if err := c.dial(sock); err != nil {
		done <- outcome{err: err}
		return
	}
	if err := sock.Send(zmq4.NewMsg(request)); err != nil {
		done <- outcome{err: c.transportErr("send", err)}
		return
	}
	msg, err := sock.Recv()
	if err != nil {
		done <- outcome{err: c.transportErr("recv", err)}
		return
	}
	done <- outcome{reply: msg.Bytes(), rtt: time.Since(start)}
}

// dial connects on first use and keeps retrying until a peer accepts or the
// client is closed
func (c *Client) dial(sock Socket) error {
	if c.dialed.Load() {
		return nil
	}

	attempts := 0
	for {
		err := sock.Dial(c.endpoint)
		if err == nil {
			c.dialed.Store(true)
			c.log.Debug().
				Str("endpoint", c.endpoint).
				Int("attempts", attempts+1).
				Msg("Connected to peer")
			return nil
		}
		if attempts == 0 {
			c.log.Debug().Err(err).Str("endpoint", c.endpoint).Msg("Peer not reachable, retrying")
		}
		attempts++

		select {
		case <-c.ctx.Done():
			return ErrClosed
		case <-time.After(c.opts.DialRetry):
		}
	}
}

func (c *Client) transportErr(op string, err error) error {
	if c.ctx.Err() != nil {
		return fmt.Errorf("%s: %w", op, ErrClosed)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Close releases the socket and then the owning context. Only the first
// call has an effect.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case Closed:
		return nil
	case Disconnected:
		c.state = Closed
		return nil
	}

	err := c.sock.Close()
	c.metrics.ChannelsOpen.Dec()
	c.cancel()
	c.metrics.ContextsOpen.Dec()
	c.state = Closed

	c.log.Info().Str("endpoint", c.endpoint).Msg("Request channel closed")
	if err != nil && !errors.Is(err, zmq4.ErrClosedConn) {
		return fmt.Errorf("close REQ socket: %w", err)
	}
	return nil
}

// State returns the lifecycle state
func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Endpoint returns the endpoint passed to Open
func (c *Client) Endpoint() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endpoint
}

// ID returns the socket identity
func (c *Client) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}
