package transport

import (
	"context"
	"errors"
	"math"
	"net"
	"netcall/protocol"
	"sync"
	"time"
)

// tcpConn frames messages with package protocol over a single TCP connection.
type tcpConn struct {
	conn      net.Conn
	maxBody   uint32
	sending   sync.Mutex // A frame must be written atomically; concurrent writers would interleave
	done      chan struct{}
	closeOnce sync.Once
}

func dialTCP(ctx context.Context, addr string, o Options) (Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return newTCPConn(conn, o), nil
}

func newTCPConn(conn net.Conn, o Options) *tcpConn {
	maxBody := uint32(math.MaxUint32)
	if o.MaxMessageSize < math.MaxUint32 {
		maxBody = uint32(o.MaxMessageSize)
	}
	t := &tcpConn{
		conn:    conn,
		maxBody: maxBody,
		done:    make(chan struct{}),
	}
	if o.HeartbeatInterval > 0 {
		go t.heartbeatLoop(o.HeartbeatInterval)
	}
	return t
}

func (t *tcpConn) Send(ctx context.Context, msg []byte) error {
	t.sending.Lock()
	defer t.sending.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		t.conn.SetWriteDeadline(deadline)
		defer t.conn.SetWriteDeadline(time.Time{})
	}
	header := protocol.Header{MsgType: protocol.MsgTypeData, BodyLen: uint32(len(msg))}
	return t.mapErr(protocol.Encode(t.conn, &header, msg))
}

// Recv returns the next data frame, skipping heartbeats.
func (t *tcpConn) Recv() ([]byte, error) {
	for {
		header, body, err := protocol.Decode(t.conn, t.maxBody)
		if err != nil {
			return nil, t.mapErr(err)
		}
		if header.MsgType == protocol.MsgTypeHeartbeat {
			continue
		}
		return body, nil
	}
}

func (t *tcpConn) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		err = t.conn.Close()
	})
	return err
}

func (t *tcpConn) RemoteAddr() string {
	return "tcp://" + t.conn.RemoteAddr().String()
}

func (t *tcpConn) mapErr(err error) error {
	if err == nil {
		return nil
	}
	select {
	case <-t.done:
		return ErrClosed
	default:
	}
	if errors.Is(err, net.ErrClosed) {
		return ErrClosed
	}
	return err
}

// heartbeatLoop keeps idle connections alive through NATs and lets the peer
// notice a dead connection via a failed read.
func (t *tcpConn) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	header := &protocol.Header{MsgType: protocol.MsgTypeHeartbeat}
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
		}
		t.sending.Lock()
		err := protocol.Encode(t.conn, header, nil)
		t.sending.Unlock()
		if err != nil {
			return
		}
	}
}

type tcpListener struct {
	ln   net.Listener
	opts Options
}

func listenTCP(addr string, o Options) (Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &tcpListener{ln: ln, opts: o}, nil
}

func (l *tcpListener) Accept() (Conn, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		if errors.Is(err, net.ErrClosed) {
			return nil, ErrClosed
		}
		return nil, err
	}
	// Heartbeats are a dialer concern; the accepting side only skips them.
	o := l.opts
	o.HeartbeatInterval = 0
	return newTCPConn(conn, o), nil
}

func (l *tcpListener) Close() error {
	return l.ln.Close()
}

func (l *tcpListener) Addr() string {
	return "tcp://" + l.ln.Addr().String()
}
