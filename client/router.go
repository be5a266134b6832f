package client

import (
	"context"
	"errors"
	"fmt"
	"netcall/loadbalance"
	"netcall/registry"
	"netcall/value"
	"sync"

	"go.uber.org/zap"
)

// Router calls objects by id without knowing where they live: it looks up
// the endpoints serving the id in a Directory, picks one with a Balancer and
// reuses one Client per endpoint address.
type Router struct {
	directory registry.Directory
	balancer  loadbalance.Balancer
	opts      []Option
	logger    *zap.Logger

	mu      sync.Mutex
	clients map[string]*Client // Endpoint address → connected client
}

// NewRouter creates a router. A nil balancer selects consistent hashing on
// the object id, so repeated calls to a stateful object reach the same
// process. opts are applied to every Client the router dials.
func NewRouter(dir registry.Directory, bal loadbalance.Balancer, opts ...Option) *Router {
	if bal == nil {
		bal = loadbalance.NewConsistentHashBalancer()
	}
	return &Router{
		directory: dir,
		balancer:  bal,
		opts:      opts,
		logger:    buildOptions(opts).logger,
		clients:   make(map[string]*Client),
	}
}

// Call routes one call to an endpoint serving obj. A client that fails with
// a transport error is dropped and redialed on the next call.
func (r *Router) Call(ctx context.Context, obj, method string, args ...any) (value.Value, error) {
	endpoints, err := r.directory.Lookup(ctx, obj)
	if err != nil {
		return value.Null(), fmt.Errorf("client: lookup %q: %w", obj, err)
	}

	ep, err := r.balancer.Pick(obj, endpoints)
	if err != nil {
		return value.Null(), fmt.Errorf("client: route %q: %w", obj, err)
	}

	c, err := r.client(ctx, ep.Addr)
	if err != nil {
		return value.Null(), err
	}

	v, err := c.Call(ctx, obj, method, args...)
	if errors.Is(err, ErrTransport) {
		r.evict(ep.Addr, c)
	}
	return v, err
}

func (r *Router) client(ctx context.Context, addr string) (*Client, error) {
	r.mu.Lock()
	c, ok := r.clients[addr]
	r.mu.Unlock()

	if ok {
		select {
		case <-c.Done():
			r.evict(addr, c)
		default:
			return c, nil
		}
	}

	// Dial outside the lock; a concurrent dial to the same address may win.
	fresh, err := Dial(ctx, addr, r.opts...)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if existing, ok := r.clients[addr]; ok {
		r.mu.Unlock()
		fresh.Close()
		return existing, nil
	}
	r.clients[addr] = fresh
	r.mu.Unlock()

	r.logger.Debug("routing to new endpoint", zap.String("addr", addr), zap.String("balancer", r.balancer.Name()))
	return fresh, nil
}

func (r *Router) evict(addr string, c *Client) {
	r.mu.Lock()
	if r.clients[addr] == c {
		delete(r.clients, addr)
	}
	r.mu.Unlock()
	c.Close()
}

// Close closes every client the router holds.
func (r *Router) Close() error {
	r.mu.Lock()
	clients := r.clients
	r.clients = make(map[string]*Client)
	r.mu.Unlock()

	var errs []error
	for _, c := range clients {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
