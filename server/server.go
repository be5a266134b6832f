// Package server implements the serving side: an object registry, a
// middleware chain in front of the dispatcher, one read loop per connection,
// and graceful shutdown.
//
// Request processing pipeline:
//
//	Accept conn → handleConn (single goroutine reads messages)
//	  → for each message: handleMessage (inline, or its own goroutine with WithParallel)
//	    → Codec.Decode → Middleware Chain → Dispatcher → Codec.Encode → Conn.Send
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"netcall/codec"
	"netcall/message"
	"netcall/middleware"
	"netcall/registry"
	"netcall/service"
	"netcall/transport"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrServerClosed is returned by Serve after Shutdown.
var ErrServerClosed = errors.New("server: closed")

// Server dispatches calls to the objects registered with it.
type Server struct {
	objects    *registry.Objects
	dispatcher *Dispatcher
	logger     *zap.Logger
	codec      codec.Codec
	parallel   bool               // Dispatch each message on its own goroutine
	transport  []transport.Option // Applied by ListenAndServe and Listen

	directory     registry.Directory // nil if not advertising
	advertiseAddr string             // URI published for every id; defaults to the listener's
	ttl           int64              // Directory lease in seconds

	mu          sync.Mutex
	middlewares []middleware.Middleware // Registered middlewares (applied in order)
	handler     middleware.HandlerFunc  // middleware(middleware(...(dispatcher))), built at first Serve
	listeners   map[transport.Listener]struct{}
	conns       map[transport.Conn]struct{}

	wg       sync.WaitGroup // Tracks in-flight requests for graceful shutdown
	shutdown atomic.Bool    // Set during shutdown to suppress Accept errors
	ctx      context.Context
	cancel   context.CancelFunc
}

type Option func(*Server)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithCodec selects the envelope codec. Peers must agree on it; the default
// JSON codec is the one every NetCall peer understands.
func WithCodec(c codec.Codec) Option {
	return func(s *Server) { s.codec = c }
}

// WithParallel dispatches the messages of one connection concurrently.
// Results may then leave in a different order than their requests arrived,
// which only call-id aware clients can handle.
func WithParallel(parallel bool) Option {
	return func(s *Server) { s.parallel = parallel }
}

// WithDirectory publishes every registered id to dir. advertiseAddr is the
// URI peers should dial; empty means the address of the listener being
// served. ttl is the lease in seconds.
func WithDirectory(dir registry.Directory, advertiseAddr string, ttl int64) Option {
	return func(s *Server) {
		s.directory = dir
		s.advertiseAddr = advertiseAddr
		s.ttl = ttl
	}
}

func WithTransportOptions(opts ...transport.Option) Option {
	return func(s *Server) { s.transport = append(s.transport, opts...) }
}

// NewServer creates a server with an empty registry.
func NewServer(opts ...Option) *Server {
	s := &Server{
		logger:    zap.NewNop(),
		codec:     &codec.JSONCodec{},
		ttl:       10,
		listeners: make(map[transport.Listener]struct{}),
		conns:     make(map[transport.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.objects = registry.NewObjects(s.logger.Named("registry"))
	s.dispatcher = NewDispatcher(s.objects, s.logger.Named("dispatcher"))
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// Objects exposes the server's registry.
func (s *Server) Objects() *registry.Objects {
	return s.objects
}

// Register binds target under id. When the server advertises to a
// directory and is already serving, the id is published right away; the
// returned error reports a failed publication only, the local binding
// always takes effect.
func (s *Server) Register(target *service.Object, id string) error {
	s.objects.Register(id, target)
	if id == "" || target == nil {
		return nil
	}
	if addr := s.advertised(); addr != "" {
		return s.publish(addr, []string{id})
	}
	return nil
}

// Unregister removes every id bound to target and withdraws them from the
// directory.
func (s *Server) Unregister(target *service.Object) error {
	removed := s.objects.Unregister(target)
	if addr := s.advertised(); addr != "" {
		return s.withdraw(addr, removed)
	}
	return nil
}

// Use registers a middleware. Middlewares are applied in the order they are
// added and must be registered before the first Serve.
func (s *Server) Use(mw middleware.Middleware) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handler != nil {
		s.logger.Warn("middleware registered after Serve is ignored")
		return
	}
	s.middlewares = append(s.middlewares, mw)
}

// Listen serves WebSocket connections on host:port until Shutdown.
func (s *Server) Listen(host string, port int) error {
	return s.ListenAndServe("ws://" + net.JoinHostPort(host, strconv.Itoa(port)) + "/")
}

// ListenAndServe opens a transport listener on uri and serves it.
func (s *Server) ListenAndServe(uri string) error {
	lis, err := transport.Listen(uri, s.transport...)
	if err != nil {
		return err
	}
	return s.Serve(lis)
}

// Serve accepts connections on lis until Shutdown, then returns nil. Any
// other Accept failure is returned as is.
func (s *Server) Serve(lis transport.Listener) error {
	s.mu.Lock()
	if s.shutdown.Load() {
		s.mu.Unlock()
		lis.Close()
		return ErrServerClosed
	}
	// Build the middleware chain once (not per-request)
	//   Chain(A, B, C)(handler) → A(B(C(handler)))
	if s.handler == nil {
		s.handler = middleware.Chain(s.middlewares...)(s.dispatcher.Handle)
	}
	s.listeners[lis] = struct{}{}
	if s.directory != nil && s.advertiseAddr == "" {
		s.advertiseAddr = lis.Addr()
	}
	s.mu.Unlock()

	s.logger.Info("serving", zap.String("addr", lis.Addr()))

	if addr := s.advertised(); addr != "" {
		if err := s.publish(addr, s.objects.IDs()); err != nil {
			s.logger.Warn("directory publication failed", zap.Error(err))
		}
	}

	// Accept loop: one goroutine per connection
	for {
		conn, err := lis.Accept()
		if err != nil {
			s.mu.Lock()
			delete(s.listeners, lis)
			s.mu.Unlock()
			// Shutdown closes the listener, which makes Accept fail.
			if s.shutdown.Load() {
				return nil
			}
			return err
		}
		if !s.track(conn) {
			conn.Close()
			continue
		}
		go s.handleConn(conn)
	}
}

func (s *Server) track(conn transport.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown.Load() {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn transport.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

// handleConn runs the read loop of one connection. By default every message
// is dispatched to completion before the next one is read, so results leave
// in request order.
func (s *Server) handleConn(conn transport.Conn) {
	var inflight sync.WaitGroup
	defer s.untrack(conn)
	defer conn.Close()
	defer inflight.Wait()

	log := s.logger.With(zap.String("remote", conn.RemoteAddr()))
	log.Debug("connection opened")

	for {
		msg, err := conn.Recv()
		if err != nil {
			if errors.Is(err, transport.ErrClosed) || errors.Is(err, io.EOF) {
				log.Debug("connection closed")
			} else {
				log.Debug("connection lost", zap.Error(err))
			}
			return
		}

		if !s.begin() {
			log.Debug("dropping request received during shutdown")
			return
		}
		if s.parallel {
			inflight.Add(1)
			go func() {
				defer inflight.Done()
				defer s.wg.Done()
				s.handleMessage(conn, log, msg)
			}()
			continue
		}
		s.handleMessage(conn, log, msg)
		s.wg.Done()
	}
}

// begin counts a request as in flight unless shutdown has started. Shutdown
// sets the flag under s.mu before it waits, so no Add races the Wait.
func (s *Server) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown.Load() {
		return false
	}
	s.wg.Add(1)
	return true
}

// handleMessage decodes, dispatches and answers one message. Conn.Send
// serializes writes, so parallel handlers never interleave results.
func (s *Server) handleMessage(conn transport.Conn, log *zap.Logger, msg []byte) {
	if ce := log.Check(zap.DebugLevel, "received message"); ce != nil {
		ce.Write(zap.ByteString("data", msg))
	}

	var res *message.Result
	var req message.Request
	if err := s.codec.Decode(msg, &req); err != nil {
		log.Warn("malformed request", zap.Error(err))
		res = message.Failed(message.ErrMalformed)
		res.ID = s.peekID(msg)
	} else {
		res = s.handler(s.ctx, &req)
		if res == nil {
			res = message.Failed(message.ErrInvocation)
		}
		res.ID = req.ID
	}

	data, err := s.codec.Encode(res)
	if err != nil {
		// The result value itself cannot be encoded (NaN, for example).
		log.Error("encoding result failed", zap.String("obj", req.Obj), zap.String("method", req.Method), zap.Error(err))
		fallback := message.Failed(message.ErrInvocation)
		fallback.ID = res.ID
		if data, err = s.codec.Encode(fallback); err != nil {
			return
		}
	}

	if ce := log.Check(zap.DebugLevel, "sending result"); ce != nil {
		ce.Write(zap.ByteString("data", data))
	}
	if err := conn.Send(s.ctx, data); err != nil {
		log.Debug("sending result failed", zap.Error(err))
	}
}

// peekID recovers the call id of a JSON request that failed to decode as a
// whole, so a call-id aware client can still fail the right call.
func (s *Server) peekID(msg []byte) string {
	if s.codec.Type() != codec.CodecTypeJSON {
		return ""
	}
	var probe struct {
		ID string `json:"id"`
	}
	if json.Unmarshal(msg, &probe) != nil {
		return ""
	}
	return probe.ID
}

func (s *Server) advertised() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.directory == nil || len(s.listeners) == 0 {
		return ""
	}
	return s.advertiseAddr
}

func (s *Server) publish(addr string, ids []string) error {
	var errs []error
	for _, id := range ids {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := s.directory.Publish(ctx, id, registry.Endpoint{Addr: addr, Weight: 10}, s.ttl)
		cancel()
		if err != nil {
			errs = append(errs, fmt.Errorf("publish %q: %w", id, err))
			continue
		}
		s.logger.Debug("published", zap.String("id", id), zap.String("addr", addr))
	}
	return errors.Join(errs...)
}

func (s *Server) withdraw(addr string, ids []string) error {
	var errs []error
	for _, id := range ids {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := s.directory.Withdraw(ctx, id, addr)
		cancel()
		if err != nil {
			errs = append(errs, fmt.Errorf("withdraw %q: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// Shutdown performs graceful shutdown:
//  1. Withdraw all ids from the directory (clients stop routing to this server)
//  2. Set shutdown flag and close the listeners (stop accepting new connections
//     and new requests on open ones)
//  3. Wait for in-flight requests to finish (with timeout)
//  4. Close the remaining connections
func (s *Server) Shutdown(timeout time.Duration) error {
	// Withdraw FIRST, so clients stop sending new requests
	if addr := s.advertised(); addr != "" {
		if err := s.withdraw(addr, s.objects.IDs()); err != nil {
			s.logger.Warn("directory withdrawal failed", zap.Error(err))
		}
	}

	// Set the flag BEFORE closing listeners so Serve returns nil
	s.mu.Lock()
	s.shutdown.Store(true)
	for lis := range s.listeners {
		lis.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-time.After(timeout):
		err = fmt.Errorf("server: timeout waiting for ongoing requests to finish")
	}

	s.cancel()
	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()
	return err
}
