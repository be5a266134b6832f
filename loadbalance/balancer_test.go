package loadbalance

import (
	"errors"
	"fmt"
	"netcall/registry"
	"testing"
)

var testEndpoints = []registry.Endpoint{
	{Addr: "ws://127.0.0.1:8001/", Weight: 10, Version: "1.0"},
	{Addr: "ws://127.0.0.1:8002/", Weight: 5, Version: "1.0"},
	{Addr: "ws://127.0.0.1:8003/", Weight: 10, Version: "1.0"},
}

func TestRoundRobin(t *testing.T) {
	b := &RoundRobinBalancer{}

	// Pick 3 times, should cycle through all endpoints
	results := make([]string, 3)
	for i := 0; i < 3; i++ {
		ep, err := b.Pick("foo", testEndpoints)
		if err != nil {
			t.Fatal(err)
		}
		results[i] = ep.Addr
	}
	if results[0] == results[1] || results[1] == results[2] || results[0] == results[2] {
		t.Fatalf("expect every endpoint once, got %v", results)
	}

	// Pick again, should wrap around to first
	ep, _ := b.Pick("foo", testEndpoints)
	if ep.Addr != results[0] {
		t.Fatalf("expect wrap around to %s, got %s", results[0], ep.Addr)
	}
}

func TestEmptyEndpoints(t *testing.T) {
	for _, b := range []Balancer{&RoundRobinBalancer{}, &WeightedRandomBalancer{}, NewConsistentHashBalancer()} {
		if _, err := b.Pick("foo", nil); !errors.Is(err, ErrNoEndpoints) {
			t.Errorf("%s: expect ErrNoEndpoints, got %v", b.Name(), err)
		}
	}
}

func TestWeightedRandom(t *testing.T) {
	b := &WeightedRandomBalancer{}

	counts := map[string]int{}
	n := 10000
	for i := 0; i < n; i++ {
		ep, err := b.Pick("", testEndpoints)
		if err != nil {
			t.Fatal(err)
		}
		counts[ep.Addr]++
	}

	// Weight ratio is 10:5:10, so :8001 and :8003 should be ~2x of :8002
	ratio := float64(counts["ws://127.0.0.1:8001/"]) / float64(counts["ws://127.0.0.1:8002/"])
	if ratio < 1.5 || ratio > 2.5 {
		t.Fatalf("weight ratio :8001/:8002 = %.2f, expect ~2.0", ratio)
	}
}

func TestWeightedRandomZeroWeights(t *testing.T) {
	b := &WeightedRandomBalancer{}
	eps := []registry.Endpoint{{Addr: "a"}, {Addr: "b"}}
	for i := 0; i < 100; i++ {
		if _, err := b.Pick("", eps); err != nil {
			t.Fatal(err)
		}
	}
}

func TestConsistentHash(t *testing.T) {
	b := NewConsistentHashBalancer()

	// Same key should always map to the same endpoint
	ep1, _ := b.Pick("foo", testEndpoints)
	ep2, _ := b.Pick("foo", testEndpoints)
	if ep1.Addr != ep2.Addr {
		t.Fatalf("same key mapped to different endpoints: %s vs %s", ep1.Addr, ep2.Addr)
	}

	// Order of the endpoint list does not matter
	reversed := []registry.Endpoint{testEndpoints[2], testEndpoints[1], testEndpoints[0]}
	ep3, _ := b.Pick("foo", reversed)
	if ep3.Addr != ep1.Addr {
		t.Fatalf("list order changed mapping: %s vs %s", ep1.Addr, ep3.Addr)
	}

	// Different keys should (likely) map to different endpoints
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		ep, _ := b.Pick(fmt.Sprintf("key-%d", i), testEndpoints)
		seen[ep.Addr] = true
	}

	// With 100 different keys and 3 nodes, we should hit at least 2
	if len(seen) < 2 {
		t.Fatalf("expect at least 2 different endpoints, got %d", len(seen))
	}
}

func TestConsistentHashRingChange(t *testing.T) {
	b := NewConsistentHashBalancer()

	before := map[string]string{}
	for i := 0; i < 200; i++ {
		key := fmt.Sprintf("obj-%d", i)
		ep, _ := b.Pick(key, testEndpoints)
		before[key] = ep.Addr
	}

	// Removing one endpoint only moves the keys that lived on it.
	remaining := testEndpoints[:2]
	removed := testEndpoints[2].Addr
	for key, addr := range before {
		ep, err := b.Pick(key, remaining)
		if err != nil {
			t.Fatal(err)
		}
		if ep.Addr == removed {
			t.Fatalf("%s mapped to removed endpoint", key)
		}
		if addr != removed && ep.Addr != addr {
			t.Fatalf("%s moved from %s to %s although its endpoint stayed", key, addr, ep.Addr)
		}
	}
}

func TestByName(t *testing.T) {
	for name, want := range map[string]string{
		"":               "ConsistentHash",
		"consistentHash": "ConsistentHash",
		"roundRobin":     "RoundRobin",
		"weightedRandom": "WeightedRandom",
	} {
		b, err := ByName(name)
		if err != nil {
			t.Fatal(err)
		}
		if b.Name() != want {
			t.Errorf("ByName(%q) = %s, want %s", name, b.Name(), want)
		}
	}
	if _, err := ByName("random"); err == nil {
		t.Fatal("expect error for unknown strategy")
	}
}
