package dockersandbox

import (
	"testing"
	"time"
)

func TestPoolAcquireEmptyReturnsNil(t *testing.T) {
	p := &Pool{}
	if c := p.Acquire("hash-a", 0); c != nil {
		t.Fatalf("expected nil from empty pool, got %v", c)
	}
}

func TestPoolReleaseThenAcquire(t *testing.T) {
	p := &Pool{}
	c := &Container{ContainerID: "c1", ConfigHash: "hash-a", CreatedAt: time.Now()}
	p.Release(c, "hash-a")

	got := p.Acquire("hash-a", 0)
	if got == nil || got.ContainerID != "c1" {
		t.Fatalf("expected to reacquire c1, got %v", got)
	}

	// Once acquired it should no longer be available.
	if got2 := p.Acquire("hash-a", 0); got2 != nil {
		t.Fatalf("expected container to be removed after acquire, got %v", got2)
	}
}

func TestPoolAcquireRespectsCoolDown(t *testing.T) {
	p := &Pool{}
	c := &Container{ContainerID: "c1", ConfigHash: "hash-a", CreatedAt: time.Now()}
	p.Release(c, "hash-a")

	if got := p.Acquire("hash-a", time.Hour); got != nil {
		t.Fatalf("expected nil: container was released moments ago, cool-down not elapsed, got %v", got)
	}
}

func TestPoolAcquireWrongHashReturnsNil(t *testing.T) {
	p := &Pool{}
	c := &Container{ContainerID: "c1", ConfigHash: "hash-a", CreatedAt: time.Now()}
	p.Release(c, "hash-a")

	if got := p.Acquire("hash-b", 0); got != nil {
		t.Fatalf("expected nil for different config hash, got %v", got)
	}
}

func TestConfigHashStableOverFields(t *testing.T) {
	c1 := Config{Image: "alpine", NetworkMode: "none", MemoryBytes: 1024, Workdir: "/workspace"}
	c2 := Config{Image: "alpine", NetworkMode: "none", MemoryBytes: 1024, Workdir: "/workspace", CPUShares: 999}
	if c1.Hash() != c2.Hash() {
		t.Fatal("hash must only depend on image/network/memory/workdir, not cpu shares")
	}

	c3 := Config{Image: "alpine", NetworkMode: "none", MemoryBytes: 2048, Workdir: "/workspace"}
	if c1.Hash() == c3.Hash() {
		t.Fatal("different memory limit must change the hash")
	}
}
