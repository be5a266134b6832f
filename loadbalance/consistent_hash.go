package loadbalance

import (
	"fmt"
	"hash/crc32"
	"netcall/registry"
	"sort"
	"strings"
	"sync"
)

// ConsistentHashBalancer maps keys to endpoints using a hash ring.
// The same key always maps to the same endpoint (until the ring changes),
// so a stateful object keeps talking to the process that holds its state.
//
// Virtual nodes: each real endpoint is mapped to N virtual nodes on the ring.
// Without virtual nodes, 3 endpoints might cluster together on the ring,
// causing uneven load distribution.
//
//	Hash Ring:
//	                  0
//	                ╱   ╲
//	              ╱       ╲
//	         B ●               ● A
//	           │    key ◆──►   │   (clockwise to nearest node → A)
//	         C ●               ● A' (virtual node of A)
//	              ╲       ╱
//	                ╲   ╱
type ConsistentHashBalancer struct {
	replicas int // Virtual nodes per real endpoint

	mu    sync.Mutex
	sig   string            // Sorted addresses the ring was built from
	ring  []uint32          // Sorted hash values on the ring
	nodes map[uint32]string // Hash value → endpoint address
}

// NewConsistentHashBalancer creates a hash ring with 100 virtual nodes per endpoint.
func NewConsistentHashBalancer() *ConsistentHashBalancer {
	return &ConsistentHashBalancer{
		replicas: 100,
		nodes:    make(map[uint32]string),
	}
}

// rebuildLocked places every endpoint onto the ring with N virtual nodes.
// Each virtual node is hashed from "{addr}#{i}" to spread evenly across the ring.
func (b *ConsistentHashBalancer) rebuildLocked(addrs []string) {
	b.ring = b.ring[:0]
	b.nodes = make(map[uint32]string, len(addrs)*b.replicas)
	for _, addr := range addrs {
		for i := 0; i < b.replicas; i++ {
			hash := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s#%d", addr, i)))
			b.ring = append(b.ring, hash)
			b.nodes[hash] = addr
		}
	}
	// Keep the ring sorted for binary search in Pick()
	sort.Slice(b.ring, func(i, j int) bool {
		return b.ring[i] < b.ring[j]
	})
}

// Pick hashes the key, then binary-searches for the first node >= hash on the
// ring. If the hash is larger than all nodes, it wraps around to the first
// node. The ring is rebuilt only when the endpoint set changes.
func (b *ConsistentHashBalancer) Pick(key string, endpoints []registry.Endpoint) (*registry.Endpoint, error) {
	if len(endpoints) == 0 {
		return nil, ErrNoEndpoints
	}

	byAddr := make(map[string]int, len(endpoints))
	addrs := make([]string, 0, len(endpoints))
	for i, ep := range endpoints {
		if _, dup := byAddr[ep.Addr]; dup {
			continue
		}
		byAddr[ep.Addr] = i
		addrs = append(addrs, ep.Addr)
	}
	sort.Strings(addrs)
	sig := strings.Join(addrs, "\n")

	hash := crc32.ChecksumIEEE([]byte(key))

	b.mu.Lock()
	if sig != b.sig {
		b.rebuildLocked(addrs)
		b.sig = sig
	}
	idx := sort.Search(len(b.ring), func(i int) bool {
		return b.ring[i] >= hash
	})
	if idx == len(b.ring) {
		idx = 0
	}
	addr := b.nodes[b.ring[idx]]
	b.mu.Unlock()

	return &endpoints[byAddr[addr]], nil
}

func (b *ConsistentHashBalancer) Name() string {
	return "ConsistentHash"
}
