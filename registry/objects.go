// Package registry holds the tables that map object ids to targets.
//
// Objects is the process-local table a server dispatches against. Directory
// is the discovery table that maps object ids to the endpoints serving them,
// backed by etcd (EtcdDirectory) or kept in memory (MemoryDirectory).
package registry

import (
	"errors"
	"fmt"
	"netcall/service"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// ErrNotRegistered is returned by Resolve for unknown ids.
var ErrNotRegistered = errors.New("registry: object not registered")

// Objects maps ids to targets. A target may be bound under several ids; an id
// binds at most one target. Safe for concurrent use.
type Objects struct {
	mu      sync.RWMutex
	objects map[string]*service.Object
	logger  *zap.Logger
}

func NewObjects(logger *zap.Logger) *Objects {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Objects{
		objects: make(map[string]*service.Object),
		logger:  logger,
	}
}

// Register binds target under id, replacing any previous binding.
// An empty id or nil target is ignored.
func (r *Objects) Register(id string, target *service.Object) {
	if id == "" || target == nil {
		r.logger.Warn("ignoring invalid registration", zap.String("id", id), zap.Bool("nilTarget", target == nil))
		return
	}

	r.mu.Lock()
	prev, replaced := r.objects[id]
	r.objects[id] = target
	r.mu.Unlock()

	if replaced && prev != target {
		r.logger.Debug("replaced registration", zap.String("id", id), zap.String("object", target.Name()))
		return
	}
	r.logger.Debug("registered object", zap.String("id", id), zap.String("object", target.Name()))
}

// Unregister removes every id bound to target and returns them sorted.
func (r *Objects) Unregister(target *service.Object) []string {
	r.mu.Lock()
	var removed []string
	for id, obj := range r.objects {
		if obj == target {
			delete(r.objects, id)
			removed = append(removed, id)
		}
	}
	r.mu.Unlock()

	sort.Strings(removed)
	for _, id := range removed {
		r.logger.Debug("unregistered object", zap.String("id", id))
	}
	return removed
}

// Resolve returns the target bound to id.
func (r *Objects) Resolve(id string) (*service.Object, error) {
	r.mu.RLock()
	obj, ok := r.objects[id]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotRegistered, id)
	}
	return obj, nil
}

// IDs returns the currently bound ids, sorted.
func (r *Objects) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.objects))
	for id := range r.objects {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// IDsOf returns the ids currently bound to target, sorted.
func (r *Objects) IDsOf(target *service.Object) []string {
	r.mu.RLock()
	var ids []string
	for id, obj := range r.objects {
		if obj == target {
			ids = append(ids, id)
		}
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}
