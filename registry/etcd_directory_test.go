package registry

import (
	"context"
	"testing"
	"time"
)

// newTestEtcd connects to a local etcd or skips the test.
func newTestEtcd(t *testing.T) *EtcdDirectory {
	t.Helper()
	d, err := NewEtcdDirectory([]string{"localhost:2379"}, time.Second, nil)
	if err != nil {
		t.Skipf("etcd unavailable: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := d.client.Status(ctx, "localhost:2379"); err != nil {
		d.Close()
		t.Skipf("etcd unavailable: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestEtcdPublishAndLookup(t *testing.T) {
	d := newTestEtcd(t)
	ctx := context.Background()

	// Publish two endpoints
	ep1 := Endpoint{Addr: "ws://127.0.0.1:8001/", Weight: 10, Version: "1.0"}
	ep2 := Endpoint{Addr: "ws://127.0.0.1:8002/", Weight: 5, Version: "1.0"}

	if err := d.Publish(ctx, "foo", ep1, 10); err != nil {
		t.Fatal(err)
	}
	if err := d.Publish(ctx, "foo", ep2, 10); err != nil {
		t.Fatal(err)
	}

	eps, err := d.Lookup(ctx, "foo")
	if err != nil {
		t.Fatal(err)
	}
	if len(eps) != 2 {
		t.Fatalf("expect 2 endpoints, got %d", len(eps))
	}

	// Withdraw one
	if err := d.Withdraw(ctx, "foo", ep1.Addr); err != nil {
		t.Fatal(err)
	}

	time.Sleep(100 * time.Millisecond)

	eps, err = d.Lookup(ctx, "foo")
	if err != nil {
		t.Fatal(err)
	}
	if len(eps) != 1 {
		t.Fatalf("expect 1 endpoint after withdraw, got %d", len(eps))
	}
	if eps[0].Addr != ep2.Addr {
		t.Fatalf("expect %s, got %s", ep2.Addr, eps[0].Addr)
	}

	// Cleanup
	d.Withdraw(ctx, "foo", ep2.Addr)
}

func TestEtcdWatch(t *testing.T) {
	d := newTestEtcd(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	updates := d.Watch(ctx, "bar")
	time.Sleep(100 * time.Millisecond) // Let the watch attach before publishing

	ep := Endpoint{Addr: "tcp://127.0.0.1:9001", Weight: 1}
	if err := d.Publish(ctx, "bar", ep, 10); err != nil {
		t.Fatal(err)
	}
	defer d.Withdraw(context.Background(), "bar", ep.Addr)

	select {
	case eps := <-updates:
		if len(eps) != 1 || eps[0].Addr != ep.Addr {
			t.Fatalf("unexpected watch update %v", eps)
		}
	case <-ctx.Done():
		t.Fatal("no watch update")
	}
}
