package call

import (
	"sync"
	"testing"
)

func TestPoolReserveRelease(t *testing.T) {
	pool := NewChannelPool([]string{"c1", "c2"})

	a, ok := pool.TryReserve()
	if !ok || a != "c1" {
		t.Fatalf("got %q, %v; want c1, true", a, ok)
	}
	b, ok := pool.TryReserve()
	if !ok || b != "c2" {
		t.Fatalf("got %q, %v; want c2, true", b, ok)
	}
	if _, ok := pool.TryReserve(); ok {
		t.Error("reserve succeeded on an exhausted pool")
	}

	pool.Release(a)
	c, ok := pool.TryReserve()
	if !ok || c != "c1" {
		t.Errorf("got %q, %v after release; want c1, true", c, ok)
	}
}

func TestPoolCounts(t *testing.T) {
	pool := NewChannelPool([]string{"c1", "c2", "c3"})

	id, _ := pool.TryReserve()
	pool.MarkInUse(id)
	if _, ok := pool.TryReserve(); !ok {
		t.Fatal("second reserve failed")
	}

	total, reserved, inUse := pool.Counts()
	if total != 3 || reserved != 2 || inUse != 1 {
		t.Errorf("Counts() = %d, %d, %d; want 3, 2, 1", total, reserved, inUse)
	}

	pool.MarkIdle(id)
	_, _, inUse = pool.Counts()
	if inUse != 0 {
		t.Errorf("inUse = %d after MarkIdle, want 0", inUse)
	}

	pool.Release(id)
	_, reserved, _ = pool.Counts()
	if reserved != 1 {
		t.Errorf("reserved = %d after Release, want 1", reserved)
	}
}

func TestPoolConcurrentReserveIsExclusive(t *testing.T) {
	pool := NewChannelPool([]string{"c1", "c2"})

	const contenders = 16
	granted := make(chan string, contenders)
	var wg sync.WaitGroup
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if id, ok := pool.TryReserve(); ok {
				granted <- id
			}
		}()
	}
	wg.Wait()
	close(granted)

	seen := map[string]bool{}
	for id := range granted {
		if seen[id] {
			t.Fatalf("channel %q granted twice", id)
		}
		seen[id] = true
	}
	if len(seen) != 2 {
		t.Errorf("got %d grants, want 2", len(seen))
	}
}

func TestPoolReleaseUnknownChannelIsNoop(t *testing.T) {
	pool := NewChannelPool([]string{"c1"})
	pool.Release("nope")
	if _, ok := pool.TryReserve(); !ok {
		t.Error("pool corrupted by releasing an unknown channel")
	}
}
