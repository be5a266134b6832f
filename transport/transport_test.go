package transport

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// echo accepts one connection and sends every message back until the peer leaves.
func echo(t *testing.T, lis Listener) {
	t.Helper()
	go func() {
		conn, err := lis.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			msg, err := conn.Recv()
			if err != nil {
				return
			}
			if err := conn.Send(context.Background(), msg); err != nil {
				return
			}
		}
	}()
}

func TestRoundTrip(t *testing.T) {
	for _, uri := range []string{"tcp://127.0.0.1:0", "ws://127.0.0.1:0/netcall"} {
		t.Run(strings.SplitN(uri, ":", 2)[0], func(t *testing.T) {
			lis, err := Listen(uri)
			if err != nil {
				t.Fatal(err)
			}
			defer lis.Close()
			echo(t, lis)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			conn, err := Dial(ctx, lis.Addr())
			if err != nil {
				t.Fatalf("Dial(%s) failed: %v", lis.Addr(), err)
			}
			defer conn.Close()

			messages := []string{`{"obj":"foo","method":"Print","args":["Hello!"]}`, "", strings.Repeat("x", 64*1024)}
			for _, m := range messages {
				if err := conn.Send(ctx, []byte(m)); err != nil {
					t.Fatalf("Send failed: %v", err)
				}
				got, err := conn.Recv()
				if err != nil {
					t.Fatalf("Recv failed: %v", err)
				}
				if string(got) != m {
					t.Fatalf("expect %d bytes back, got %d", len(m), len(got))
				}
			}
		})
	}
}

func TestHeartbeatsAreSkipped(t *testing.T) {
	lis, err := Listen("tcp://127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer lis.Close()

	accepted := make(chan Conn, 1)
	go func() {
		conn, err := lis.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	conn, err := Dial(context.Background(), lis.Addr(), WithHeartbeat(5*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	server := <-accepted
	defer server.Close()

	time.Sleep(50 * time.Millisecond) // Several heartbeats are queued before the data frame
	if err := conn.Send(context.Background(), []byte("data")); err != nil {
		t.Fatal(err)
	}
	got, err := server.Recv()
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "data" {
		t.Fatalf("expect data frame, got %q", got)
	}
}

func TestRecvAfterClose(t *testing.T) {
	for _, uri := range []string{"tcp://127.0.0.1:0", "ws://127.0.0.1:0"} {
		lis, err := Listen(uri)
		if err != nil {
			t.Fatal(err)
		}
		echo(t, lis)

		conn, err := Dial(context.Background(), lis.Addr())
		if err != nil {
			t.Fatal(err)
		}

		errCh := make(chan error, 1)
		go func() {
			_, err := conn.Recv()
			errCh <- err
		}()
		time.Sleep(20 * time.Millisecond)
		conn.Close()

		select {
		case err := <-errCh:
			if !errors.Is(err, ErrClosed) {
				t.Errorf("%s: expect ErrClosed, got %v", uri, err)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("%s: Recv did not unblock after Close", uri)
		}
		lis.Close()
	}
}

func TestAcceptAfterClose(t *testing.T) {
	for _, uri := range []string{"tcp://127.0.0.1:0", "ws://127.0.0.1:0"} {
		lis, err := Listen(uri)
		if err != nil {
			t.Fatal(err)
		}
		lis.Close()
		if _, err := lis.Accept(); !errors.Is(err, ErrClosed) {
			t.Errorf("%s: expect ErrClosed, got %v", uri, err)
		}
	}
}

func TestMaxMessageSize(t *testing.T) {
	lis, err := Listen("ws://127.0.0.1:0", WithMaxMessageSize(16))
	if err != nil {
		t.Fatal(err)
	}
	defer lis.Close()

	accepted := make(chan Conn, 1)
	go func() {
		conn, err := lis.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	conn, err := Dial(context.Background(), lis.Addr())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	server := <-accepted
	defer server.Close()

	if err := conn.Send(context.Background(), []byte(strings.Repeat("y", 100))); err != nil {
		t.Fatal(err)
	}
	if _, err := server.Recv(); err == nil {
		t.Fatal("expect oversized message to be rejected")
	}
}

func TestMalformedURI(t *testing.T) {
	for _, uri := range []string{"localhost:5555", "ws://", "ftp://127.0.0.1:21", "%zz"} {
		if _, err := Dial(context.Background(), uri); !errors.Is(err, ErrMalformedURI) {
			t.Errorf("Dial(%q): expect ErrMalformedURI, got %v", uri, err)
		}
	}
	if _, err := Listen("wss://127.0.0.1:0"); !errors.Is(err, ErrMalformedURI) {
		t.Errorf("expect wss listen to be rejected, got %v", err)
	}
}

func TestDialUnreachable(t *testing.T) {
	lis, err := Listen("tcp://127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := lis.Addr()
	lis.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := Dial(ctx, addr); err == nil || errors.Is(err, ErrMalformedURI) {
		t.Fatalf("expect connection error, got %v", err)
	}
}
