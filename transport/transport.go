// Package transport adapts message channels to the RPC layer.
//
// A Conn carries whole messages (one encoded envelope each) in both
// directions. Two schemes are supported:
//
//	ws://host:port/path   WebSocket text messages (wss:// for dialing TLS peers)
//	tcp://host:port       length-prefixed frames, see package protocol
//
// Recv must be called from a single goroutine; Send and Close are safe for
// concurrent use.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"
)

var (
	// ErrClosed is returned by Accept and Recv after Close.
	ErrClosed = errors.New("transport: closed")
	// ErrMalformedURI is wrapped when an address cannot be parsed or uses an unknown scheme.
	ErrMalformedURI = errors.New("transport: malformed URI")
)

// DefaultMaxMessageSize bounds a single inbound message.
const DefaultMaxMessageSize = 1 << 20

// Conn is a bidirectional message channel.
type Conn interface {
	Send(ctx context.Context, msg []byte) error
	Recv() ([]byte, error)
	Close() error
	RemoteAddr() string
}

// Listener accepts inbound Conns.
type Listener interface {
	Accept() (Conn, error)
	Close() error
	// Addr returns a URI that peers can pass to Dial.
	Addr() string
}

type Options struct {
	MaxMessageSize    int64         // 0 → DefaultMaxMessageSize
	HeartbeatInterval time.Duration // tcp only; 0 disables heartbeats
	HandshakeTimeout  time.Duration // ws only; 0 → 10s
}

type Option func(*Options)

func WithMaxMessageSize(n int64) Option {
	return func(o *Options) { o.MaxMessageSize = n }
}

func WithHeartbeat(interval time.Duration) Option {
	return func(o *Options) { o.HeartbeatInterval = interval }
}

func WithHandshakeTimeout(d time.Duration) Option {
	return func(o *Options) { o.HandshakeTimeout = d }
}

func buildOptions(opts []Option) Options {
	o := Options{
		MaxMessageSize:   DefaultMaxMessageSize,
		HandshakeTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = DefaultMaxMessageSize
	}
	return o
}

func parseURI(uri string) (*url.URL, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrMalformedURI, uri, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: %q has no host", ErrMalformedURI, uri)
	}
	return u, nil
}

// Dial connects to uri.
func Dial(ctx context.Context, uri string, opts ...Option) (Conn, error) {
	u, err := parseURI(uri)
	if err != nil {
		return nil, err
	}
	o := buildOptions(opts)

	switch u.Scheme {
	case "ws", "wss":
		return dialWebSocket(ctx, u, o)
	case "tcp":
		return dialTCP(ctx, u.Host, o)
	}
	return nil, fmt.Errorf("%w: unsupported scheme %q", ErrMalformedURI, u.Scheme)
}

// Listen opens a listener on uri. Listening on wss:// is not supported.
func Listen(uri string, opts ...Option) (Listener, error) {
	u, err := parseURI(uri)
	if err != nil {
		return nil, err
	}
	o := buildOptions(opts)

	switch u.Scheme {
	case "ws":
		return listenWebSocket(u, o)
	case "tcp":
		return listenTCP(u.Host, o)
	}
	return nil, fmt.Errorf("%w: cannot listen on scheme %q", ErrMalformedURI, u.Scheme)
}
