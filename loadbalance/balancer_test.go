package loadbalance

import (
	"testing"

	"queryrpc/registry"
)

func instances(addrs ...string) []registry.ServiceInstance {
	out := make([]registry.ServiceInstance, len(addrs))
	for i, addr := range addrs {
		out[i] = registry.ServiceInstance{Addr: addr, Weight: 1}
	}
	return out
}

func TestRoundRobinCycles(t *testing.T) {
	b := &RoundRobin{}
	insts := instances("a:1", "b:1", "c:1")

	var picked []string
	for i := 0; i < 6; i++ {
		inst, err := b.Pick(insts)
		if err != nil {
			t.Fatalf("pick %d: %v", i, err)
		}
		picked = append(picked, inst.Addr)
	}

	for i := 0; i < 3; i++ {
		if picked[i] != picked[i+3] {
			t.Errorf("pick %d = %q, pick %d = %q; not cycling", i, picked[i], i+3, picked[i+3])
		}
	}
	seen := map[string]bool{}
	for _, addr := range picked[:3] {
		seen[addr] = true
	}
	if len(seen) != 3 {
		t.Errorf("first cycle hit %d distinct instances, want 3", len(seen))
	}
}

func TestRoundRobinEmpty(t *testing.T) {
	if _, err := (&RoundRobin{}).Pick(nil); err == nil {
		t.Fatal("expected error for empty instance list")
	}
}

func TestWeightedRandomRespectsWeights(t *testing.T) {
	b := &WeightedRandom{}
	insts := []registry.ServiceInstance{
		{Addr: "heavy:1", Weight: 100},
		{Addr: "light:1", Weight: 0},
	}

	for i := 0; i < 50; i++ {
		inst, err := b.Pick(insts)
		if err != nil {
			t.Fatalf("pick: %v", err)
		}
		if inst.Addr != "heavy:1" {
			t.Fatalf("picked zero-weight instance on iteration %d", i)
		}
	}
}

func TestWeightedRandomUnweightedFallback(t *testing.T) {
	b := &WeightedRandom{}
	insts := []registry.ServiceInstance{{Addr: "a:1"}, {Addr: "b:1"}}

	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		inst, err := b.Pick(insts)
		if err != nil {
			t.Fatalf("pick: %v", err)
		}
		seen[inst.Addr] = true
	}
	if len(seen) != 2 {
		t.Errorf("uniform fallback only ever picked %v", seen)
	}
}

func TestWeightedRandomEmpty(t *testing.T) {
	if _, err := (&WeightedRandom{}).Pick(nil); err == nil {
		t.Fatal("expected error for empty instance list")
	}
}

func TestConsistentHashStablePick(t *testing.T) {
	b := NewConsistentHash()
	b.Rebuild(instances("a:1", "b:1", "c:1"))

	first, err := b.Pick("session-42")
	if err != nil {
		t.Fatalf("pick: %v", err)
	}
	for i := 0; i < 10; i++ {
		inst, err := b.Pick("session-42")
		if err != nil {
			t.Fatalf("pick: %v", err)
		}
		if inst.Addr != first.Addr {
			t.Fatalf("same key moved from %q to %q", first.Addr, inst.Addr)
		}
	}
}

func TestConsistentHashSurvivesUnrelatedRemoval(t *testing.T) {
	b := NewConsistentHash()
	b.Rebuild(instances("a:1", "b:1", "c:1"))

	keys := []string{"k1", "k2", "k3", "k4", "k5", "k6", "k7", "k8"}
	before := map[string]string{}
	for _, k := range keys {
		inst, err := b.Pick(k)
		if err != nil {
			t.Fatalf("pick: %v", err)
		}
		before[k] = inst.Addr
	}

	// Drop one instance; keys that were not mapped to it must stay put.
	b.Rebuild(instances("a:1", "b:1"))
	for _, k := range keys {
		if before[k] == "c:1" {
			continue
		}
		inst, err := b.Pick(k)
		if err != nil {
			t.Fatalf("pick: %v", err)
		}
		if inst.Addr != before[k] {
			t.Errorf("key %q moved from %q to %q", k, before[k], inst.Addr)
		}
	}
}

func TestConsistentHashEmptyRing(t *testing.T) {
	if _, err := NewConsistentHash().Pick("k"); err == nil {
		t.Fatal("expected error for empty ring")
	}
}
