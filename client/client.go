// Package client implements the calling side.
//
// A Client multiplexes calls over one transport connection. Each request
// carries a unique call id, and a background goroutine (recvLoop) reads
// results and routes each one to the caller waiting on that id:
//
//	goroutine-1 ──Call(id=01J..A)──┐
//	goroutine-2 ──Call(id=01J..B)──┼──→ single connection ──→ Server
//	goroutine-3 ──Call(id=01J..C)──┘
//
//	recvLoop:  ←── result(id=01J..B) → pending[B] ← result → goroutine-2 wakes up
//
// Peers that do not echo call ids answer strictly in request order. A result
// without an id goes to the oldest outstanding call, and once such a result
// has been seen the client sends one call at a time.
package client

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"netcall/codec"
	"netcall/message"
	"netcall/transport"
	"netcall/value"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

var (
	// ErrTransport is wrapped by every local failure: unreachable peer,
	// malformed URI, encode/decode failure, closed or lost connection.
	ErrTransport = errors.New("client: transport failure")
	// ErrClosed is wrapped (together with ErrTransport) by calls on a closed client.
	ErrClosed = errors.New("client: closed")
)

// RemoteError is a failure reported by the peer in the result envelope.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}

// Caller is implemented by Client and Router.
type Caller interface {
	Call(ctx context.Context, obj, method string, args ...any) (value.Value, error)
}

type options struct {
	codec       codec.Codec
	logger      *zap.Logger
	callTimeout time.Duration
	serial      bool
	transport   []transport.Option
}

type Option func(*options)

// WithCodec selects the envelope codec; it must match the server's.
func WithCodec(c codec.Codec) Option {
	return func(o *options) { o.codec = c }
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithCallTimeout bounds calls whose context carries no deadline.
func WithCallTimeout(d time.Duration) Option {
	return func(o *options) { o.callTimeout = d }
}

// WithSerialCalls sends one call at a time from the start, for peers known
// not to echo call ids.
func WithSerialCalls() Option {
	return func(o *options) { o.serial = true }
}

// WithHeartbeat sends heartbeat frames at the given interval (tcp:// only).
func WithHeartbeat(interval time.Duration) Option {
	return func(o *options) { o.transport = append(o.transport, transport.WithHeartbeat(interval)) }
}

func WithTransportOptions(opts ...transport.Option) Option {
	return func(o *options) { o.transport = append(o.transport, opts...) }
}

func buildOptions(opts []Option) options {
	o := options{codec: &codec.JSONCodec{}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}

type callResult struct {
	res *message.Result
	err error
}

// pendingCall is an outstanding request. slot is nil once the caller gave
// up; the entry then only waits to absorb the late result.
type pendingCall struct {
	id   string
	slot chan callResult
}

// Client is safe for concurrent use.
type Client struct {
	conn   transport.Conn
	opts   options
	logger *zap.Logger

	mu      sync.Mutex
	pending map[string]*pendingCall // Call id → outstanding call
	queue   []*pendingCall          // Outstanding calls in send order
	echoes  bool                    // The peer has returned a call id
	closed  bool

	serial atomic.Bool   // One call at a time
	turn   chan struct{} // Held by the call in flight while serial

	closeOnce sync.Once
	done      chan struct{} // Closed when recvLoop exits
}

// Dial connects to uri ("ws://host:port/", "tcp://host:port").
func Dial(ctx context.Context, uri string, opts ...Option) (*Client, error) {
	o := buildOptions(opts)
	conn, err := transport.Dial(ctx, uri, o.transport...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	o.logger.Debug("connected", zap.String("uri", uri))
	return newClient(conn, o), nil
}

// NewClient wraps an established connection and starts reading from it.
func NewClient(conn transport.Conn, opts ...Option) *Client {
	return newClient(conn, buildOptions(opts))
}

func newClient(conn transport.Conn, o options) *Client {
	c := &Client{
		conn:    conn,
		opts:    o,
		logger:  o.logger.With(zap.String("remote", conn.RemoteAddr())),
		pending: make(map[string]*pendingCall),
		turn:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	c.serial.Store(o.serial)
	go c.recvLoop()
	return c
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
)

func newCallID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// Call invokes method on the object registered as obj at the peer and blocks
// until its result arrives, ctx ends, or the connection closes. Arguments
// are converted with value.From and must be in the order the remote
// operation declares.
//
// A failure reported by the peer is a *RemoteError. Local failures wrap
// ErrTransport. When ctx ends first the context error is returned.
func (c *Client) Call(ctx context.Context, obj, method string, args ...any) (value.Value, error) {
	vals, err := value.FromSlice(args)
	if err != nil {
		return value.Null(), fmt.Errorf("%w: encoding arguments of %s.%s: %w", ErrTransport, obj, method, err)
	}

	if _, ok := ctx.Deadline(); !ok && c.opts.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.callTimeout)
		defer cancel()
	}

	req := &message.Request{ID: newCallID(), Obj: obj, Method: method, Args: vals}
	data, err := c.opts.codec.Encode(req)
	if err != nil {
		return value.Null(), fmt.Errorf("%w: encoding request: %w", ErrTransport, err)
	}

	if c.serial.Load() {
		select {
		case c.turn <- struct{}{}:
			defer func() { <-c.turn }()
		case <-ctx.Done():
			return value.Null(), fmt.Errorf("client: call %s.%s: %w", obj, method, ctx.Err())
		}
	}

	// Register the slot BEFORE sending so recvLoop never misses the result
	slot := make(chan callResult, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return value.Null(), fmt.Errorf("%w: %w", ErrTransport, ErrClosed)
	}
	call := &pendingCall{id: req.ID, slot: slot}
	c.pending[req.ID] = call
	c.queue = append(c.queue, call)
	c.mu.Unlock()

	if ce := c.logger.Check(zap.DebugLevel, "sending request"); ce != nil {
		ce.Write(zap.ByteString("data", data))
	}
	if err := c.conn.Send(ctx, data); err != nil {
		c.forget(req.ID)
		return value.Null(), fmt.Errorf("%w: sending request: %w", ErrTransport, err)
	}

	select {
	case r := <-slot:
		if r.err != nil {
			return value.Null(), r.err
		}
		if r.res.Error != "" {
			return value.Null(), &RemoteError{Message: r.res.Error}
		}
		return r.res.Result, nil
	case <-ctx.Done():
		c.abandon(req.ID)
		return value.Null(), fmt.Errorf("client: call %s.%s: %w", obj, method, ctx.Err())
	}
}

// CallAs is Call with the result converted to T.
func CallAs[T any](ctx context.Context, caller Caller, obj, method string, args ...any) (T, error) {
	v, err := caller.Call(ctx, obj, method, args...)
	if err != nil {
		var zero T
		return zero, err
	}
	out, err := value.As[T](v)
	if err != nil {
		return out, fmt.Errorf("%w: decoding result of %s.%s: %w", ErrTransport, obj, method, err)
	}
	return out, nil
}

// forget drops a call whose request never left.
func (c *Client) forget(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remove(id)
}

// abandon gives up on a sent call. Unless the peer is known to echo ids, its
// late result will arrive without one and must not reach a newer call, so
// the entry stays queued with no slot.
func (c *Client) abandon(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.echoes {
		c.remove(id)
		return
	}
	if call, ok := c.pending[id]; ok {
		call.slot = nil
	}
}

// remove unlinks a call; c.mu must be held.
func (c *Client) remove(id string) *pendingCall {
	call, ok := c.pending[id]
	if !ok {
		return nil
	}
	delete(c.pending, id)
	for i, q := range c.queue {
		if q == call {
			c.queue = append(c.queue[:i], c.queue[i+1:]...)
			break
		}
	}
	return call
}

// recvLoop runs in a dedicated goroutine, reading results and routing them
// to the pending caller with the same call id.
func (c *Client) recvLoop() {
	defer close(c.done)
	for {
		msg, err := c.conn.Recv()
		if err != nil {
			c.failAll(err)
			return
		}
		if ce := c.logger.Check(zap.DebugLevel, "received message"); ce != nil {
			ce.Write(zap.ByteString("data", msg))
		}

		res := &message.Result{}
		if err := c.opts.codec.Decode(msg, res); err != nil {
			if slot, ok := c.takeUnmatched(); ok {
				if slot != nil {
					slot <- callResult{err: fmt.Errorf("%w: decoding result: %w", ErrTransport, err)}
				}
				continue
			}
			c.logger.Warn("dropping undecodable message", zap.Error(err))
			continue
		}
		c.deliver(res)
	}
}

// deliver routes res by its call id, or to the oldest outstanding call when
// the peer sent none.
func (c *Client) deliver(res *message.Result) {
	var slot chan callResult
	var matched bool
	if res.ID != "" {
		c.mu.Lock()
		c.echoes = true
		if call := c.remove(res.ID); call != nil {
			slot, matched = call.slot, true
		}
		c.mu.Unlock()
	} else {
		slot, matched = c.takeUnmatched()
		if matched && !c.serial.Swap(true) {
			c.logger.Info("peer does not echo call ids, serializing calls")
		}
	}

	switch {
	case !matched:
		c.logger.Warn("dropping result without a matching call", zap.String("id", res.ID))
	case slot == nil:
		c.logger.Debug("dropping late result of an abandoned call", zap.String("id", res.ID))
	default:
		slot <- callResult{res: res}
	}
}

// takeUnmatched dequeues the call a result without a usable id belongs to:
// the oldest one, or with a peer that echoes ids, the only one. The returned
// slot is nil for an abandoned call.
func (c *Client) takeUnmatched() (chan callResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 || (c.echoes && len(c.queue) != 1) {
		return nil, false
	}
	call := c.remove(c.queue[0].id)
	return call.slot, true
}

// failAll marks the client closed and fails every pending call.
func (c *Client) failAll(cause error) {
	c.mu.Lock()
	c.closed = true
	queue := c.queue
	c.pending = make(map[string]*pendingCall)
	c.queue = nil
	slots := make([]chan callResult, 0, len(queue))
	for _, call := range queue {
		if call.slot != nil {
			slots = append(slots, call.slot)
		}
	}
	c.mu.Unlock()

	if len(slots) > 0 {
		c.logger.Debug("failing pending calls", zap.Int("count", len(slots)), zap.Error(cause))
	}
	for _, slot := range slots {
		slot <- callResult{err: fmt.Errorf("%w: %w", ErrTransport, cause)}
	}
}

// Done is closed once the connection is gone, by Close or by the peer.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close closes the connection. Pending calls fail with ErrTransport and
// ErrClosed.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.failAll(ErrClosed)
		err = c.conn.Close()
		<-c.done
	})
	return err
}
