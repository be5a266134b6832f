package registry

import "context"

// Endpoint describes a serving process for an object id.
type Endpoint struct {
	Addr    string // Dialable URI, e.g. "ws://10.0.0.7:5556/"
	Weight  int    // Weight for load balancing
	Version string
}

// Directory publishes which endpoints serve which object ids.
type Directory interface {
	// Publish advertises ep for objectID. ttl is in seconds; entries expire
	// unless the publisher stays alive. ttl <= 0 publishes without expiry.
	Publish(ctx context.Context, objectID string, ep Endpoint, ttl int64) error
	Withdraw(ctx context.Context, objectID string, addr string) error
	Lookup(ctx context.Context, objectID string) ([]Endpoint, error)
	// Watch emits the full endpoint list for objectID after every change
	// until ctx is done.
	Watch(ctx context.Context, objectID string) <-chan []Endpoint
}
