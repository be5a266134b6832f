package registry

import (
	"context"
	"sort"
	"sync"
)

// MemoryDirectory is a process-local Directory. Entries never expire; ttl is
// ignored.
type MemoryDirectory struct {
	mu       sync.Mutex
	entries  map[string]map[string]Endpoint // objectID → addr → endpoint
	watchers map[string][]chan []Endpoint
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		entries:  make(map[string]map[string]Endpoint),
		watchers: make(map[string][]chan []Endpoint),
	}
}

func (d *MemoryDirectory) Publish(ctx context.Context, objectID string, ep Endpoint, ttl int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	eps, ok := d.entries[objectID]
	if !ok {
		eps = make(map[string]Endpoint)
		d.entries[objectID] = eps
	}
	eps[ep.Addr] = ep
	d.notifyLocked(objectID)
	return nil
}

func (d *MemoryDirectory) Withdraw(ctx context.Context, objectID string, addr string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if eps, ok := d.entries[objectID]; ok {
		delete(eps, addr)
		if len(eps) == 0 {
			delete(d.entries, objectID)
		}
	}
	d.notifyLocked(objectID)
	return nil
}

func (d *MemoryDirectory) Lookup(ctx context.Context, objectID string) ([]Endpoint, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.listLocked(objectID), nil
}

func (d *MemoryDirectory) Watch(ctx context.Context, objectID string) <-chan []Endpoint {
	ch := make(chan []Endpoint, 1)

	d.mu.Lock()
	d.watchers[objectID] = append(d.watchers[objectID], ch)
	d.mu.Unlock()

	go func() {
		<-ctx.Done()
		d.mu.Lock()
		defer d.mu.Unlock()
		ws := d.watchers[objectID]
		for i, w := range ws {
			if w == ch {
				d.watchers[objectID] = append(ws[:i], ws[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch
}

// listLocked returns endpoints sorted by address so that callers see a stable order.
func (d *MemoryDirectory) listLocked(objectID string) []Endpoint {
	eps := d.entries[objectID]
	out := make([]Endpoint, 0, len(eps))
	for _, ep := range eps {
		out = append(out, ep)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Addr < out[j].Addr })
	return out
}

// notifyLocked delivers the latest list to each watcher, replacing an
// undelivered older list rather than blocking.
func (d *MemoryDirectory) notifyLocked(objectID string) {
	list := d.listLocked(objectID)
	for _, ch := range d.watchers[objectID] {
		select {
		case <-ch:
		default:
		}
		ch <- list
	}
}
