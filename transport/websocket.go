package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsConn carries one envelope per WebSocket text message.
type wsConn struct {
	conn      *websocket.Conn
	sending   sync.Mutex // gorilla/websocket allows a single concurrent writer
	done      chan struct{}
	closeOnce sync.Once
}

func dialWebSocket(ctx context.Context, u *url.URL, o Options) (Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: o.HandshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return newWSConn(conn, o), nil
}

func newWSConn(conn *websocket.Conn, o Options) *wsConn {
	conn.SetReadLimit(o.MaxMessageSize)
	return &wsConn{conn: conn, done: make(chan struct{})}
}

func (c *wsConn) Send(ctx context.Context, msg []byte) error {
	c.sending.Lock()
	defer c.sending.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetWriteDeadline(deadline)
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	return c.mapErr(c.conn.WriteMessage(websocket.TextMessage, msg))
}

func (c *wsConn) Recv() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, c.mapErr(err)
	}
	return data, nil
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		// WriteControl may run concurrently with WriteMessage.
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = c.conn.Close()
	})
	return err
}

func (c *wsConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *wsConn) mapErr(err error) error {
	if err == nil {
		return nil
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, websocket.ErrCloseSent) {
		return ErrClosed
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return io.EOF
	}
	return err
}

// wsListener upgrades HTTP requests on its path and hands the resulting
// connections to Accept.
type wsListener struct {
	ln        net.Listener
	srv       *http.Server
	upgrader  websocket.Upgrader
	opts      Options
	addr      string
	conns     chan Conn
	done      chan struct{}
	closeOnce sync.Once
}

func listenWebSocket(u *url.URL, o Options) (Listener, error) {
	ln, err := net.Listen("tcp", u.Host)
	if err != nil {
		return nil, err
	}
	path := u.Path
	if path == "" {
		path = "/"
	}

	l := &wsListener{
		ln: ln,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: o.HandshakeTimeout,
			// Peers are programs, not browsers.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		opts:  o,
		addr:  "ws://" + ln.Addr().String() + path,
		conns: make(chan Conn),
		done:  make(chan struct{}),
	}
	mux := http.NewServeMux()
	mux.Handle(path, l)
	l.srv = &http.Server{Handler: mux, ReadHeaderTimeout: o.HandshakeTimeout}

	go l.srv.Serve(ln)
	return l, nil
}

func (l *wsListener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return // Upgrade already replied with an HTTP error
	}
	c := newWSConn(conn, l.opts)
	select {
	case l.conns <- c:
	case <-l.done:
		c.Close()
	}
}

func (l *wsListener) Accept() (Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.done:
		return nil, ErrClosed
	}
}

func (l *wsListener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)
		err = l.srv.Close()
	})
	return err
}

func (l *wsListener) Addr() string {
	return l.addr
}
