package client

import (
	"context"
	"netcall/loadbalance"
	"netcall/middleware"
	"netcall/registry"
	"netcall/server"
	"testing"
	"time"
)

func newEtcdDirectory(t *testing.T) *registry.EtcdDirectory {
	t.Helper()
	dir, err := registry.NewEtcdDirectory([]string{"127.0.0.1:2379"}, time.Second, nil)
	if err != nil {
		t.Skipf("etcd unavailable: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := dir.Lookup(ctx, "netcall-probe"); err != nil {
		dir.Close()
		t.Skipf("etcd unavailable: %v", err)
	}
	t.Cleanup(func() { dir.Close() })
	return dir
}

// 完整端到端测试
// 链路: Router → Directory(etcd) → LB → Client → Transport → Codec → Middleware → Server → Dispatcher
func TestFullIntegrationWithEtcd(t *testing.T) {
	dir := newEtcdDirectory(t)

	// 两个 Server 实例, each advertising "fizz" and "fazz"
	for i := 0; i < 2; i++ {
		svr := server.NewServer(server.WithDirectory(dir, "", 10))
		svr.Use(middleware.Logging(nil))
		svr.Register(newSharedObject(), "fizz")
		svr.Register(newSharedObject(), "fazz")
		startServer(t, svr, "tcp://127.0.0.1:0")
	}
	waitForEndpoints(t, dir, "fizz", 2)

	r := NewRouter(dir, &loadbalance.RoundRobinBalancer{})
	defer r.Close()
	ctx := context.Background()

	// 发 10 个请求，验证全部正确
	for i := 1; i <= 10; i++ {
		n, err := CallAs[int](ctx, r, "fazz", "AddTwo", i, i*10)
		if err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
		if n != i+i*10 {
			t.Fatalf("request %d: expect %d, got %d", i, i+i*10, n)
		}
	}

	// Round robin spreads the stateful calls over both processes.
	totals := map[int]bool{}
	for i := 0; i < 4; i++ {
		n, err := CallAs[int](ctx, r, "fizz", "AddAndPrint", 1)
		if err != nil {
			t.Fatal(err)
		}
		totals[n] = true
	}
	if !totals[2] || totals[4] {
		t.Fatalf("expect calls split over two processes, got totals %v", totals)
	}
}
