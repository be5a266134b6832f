package registry

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

// EtcdDirectory implements Directory on etcd v3, a "distributed phonebook"
// for objects:
//
//	Key:   /netcall/objects/{objectID}/{addr}   (both path-escaped)
//	Value: JSON-encoded Endpoint
//
// Publishing uses TTL-based leases: if the server crashes, the lease expires
// and the entry is removed, so clients never route to a ghost endpoint.
type EtcdDirectory struct {
	client *clientv3.Client // Thread-safe, shared across goroutines
	logger *zap.Logger

	mu         sync.Mutex
	keepAlives map[string]context.CancelFunc // key → stops lease renewal
}

// NewEtcdDirectory connects to the given etcd endpoints.
func NewEtcdDirectory(endpoints []string, dialTimeout time.Duration, logger *zap.Logger) (*EtcdDirectory, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
		Logger:      logger.Named("etcd"),
	})
	if err != nil {
		return nil, err
	}
	return &EtcdDirectory{
		client:     c,
		logger:     logger,
		keepAlives: make(map[string]context.CancelFunc),
	}, nil
}

func objectPrefix(objectID string) string {
	return "/netcall/objects/" + url.PathEscape(objectID) + "/"
}

func endpointKey(objectID, addr string) string {
	return objectPrefix(objectID) + url.PathEscape(addr)
}

// Publish puts the endpoint under a fresh lease and keeps the lease alive in
// the background until Withdraw or Close.
func (d *EtcdDirectory) Publish(ctx context.Context, objectID string, ep Endpoint, ttl int64) error {
	val, err := json.Marshal(ep)
	if err != nil {
		return err
	}
	key := endpointKey(objectID, ep.Addr)

	if ttl <= 0 {
		_, err = d.client.Put(ctx, key, string(val))
		return err
	}

	lease, err := d.client.Grant(ctx, ttl)
	if err != nil {
		return err
	}
	if _, err := d.client.Put(ctx, key, string(val), clientv3.WithLease(lease.ID)); err != nil {
		return err
	}

	// The renewal context outlives ctx: it ends with Withdraw or Close.
	kaCtx, cancel := context.WithCancel(context.Background())
	ch, err := d.client.KeepAlive(kaCtx, lease.ID)
	if err != nil {
		cancel()
		return err
	}

	d.mu.Lock()
	if prev, ok := d.keepAlives[key]; ok {
		prev()
	}
	d.keepAlives[key] = cancel
	d.mu.Unlock()

	// Drain KeepAlive responses so the channel never fills up.
	go func() {
		for range ch {
		}
		d.logger.Debug("lease renewal stopped", zap.String("key", key))
	}()
	return nil
}

// Withdraw removes an endpoint and stops renewing its lease.
func (d *EtcdDirectory) Withdraw(ctx context.Context, objectID string, addr string) error {
	key := endpointKey(objectID, addr)

	d.mu.Lock()
	if cancel, ok := d.keepAlives[key]; ok {
		cancel()
		delete(d.keepAlives, key)
	}
	d.mu.Unlock()

	_, err := d.client.Delete(ctx, key)
	return err
}

// Lookup returns every endpoint currently published for objectID.
func (d *EtcdDirectory) Lookup(ctx context.Context, objectID string) ([]Endpoint, error) {
	resp, err := d.client.Get(ctx, objectPrefix(objectID), clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	endpoints := make([]Endpoint, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var ep Endpoint
		if err := json.Unmarshal(kv.Value, &ep); err != nil {
			d.logger.Warn("skipping malformed directory entry", zap.ByteString("key", kv.Key), zap.Error(err))
			continue
		}
		endpoints = append(endpoints, ep)
	}
	return endpoints, nil
}

// Watch re-reads the full list on every change under the object prefix
// (simpler than applying individual watch events).
func (d *EtcdDirectory) Watch(ctx context.Context, objectID string) <-chan []Endpoint {
	ch := make(chan []Endpoint, 1)

	go func() {
		defer close(ch)
		watchChan := d.client.Watch(ctx, objectPrefix(objectID), clientv3.WithPrefix())
		for range watchChan {
			endpoints, err := d.Lookup(ctx, objectID)
			if err != nil {
				d.logger.Warn("directory lookup after watch event failed", zap.String("object", objectID), zap.Error(err))
				continue
			}
			select {
			case ch <- endpoints:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch
}

// Close stops all lease renewals and closes the etcd client. Published
// entries expire once their leases lapse.
func (d *EtcdDirectory) Close() error {
	d.mu.Lock()
	for key, cancel := range d.keepAlives {
		cancel()
		delete(d.keepAlives, key)
	}
	d.mu.Unlock()
	return d.client.Close()
}
