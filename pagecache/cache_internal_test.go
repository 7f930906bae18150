package pagecache

import (
	"errors"
	"math/rand"
	"testing"
)

func (c *Cache[Value]) listOf(id ID) string {
	if element, ok := c.index[id]; ok {
		if c.recent.Contains(element) {
			return "recency"
		}
		return "frequency"
	}
	if element, ok := c.ghosts[id]; ok {
		if c.recentGhost.Contains(element) {
			return "recency ghost"
		}
		return "frequency ghost"
	}
	return "absent"
}

func checkList(t *testing.T, c *Cache[int], id ID, want string) {
	t.Helper()
	if got := c.listOf(id); got != want {
		t.Fatalf("page %v: expected %s, got %s", id, want, got)
	}
}

func TestPrefetchPromotion(t *testing.T) {
	cache, err := New[int](4)
	if err != nil {
		t.Fatal(err)
	}
	var (
		prefetched = ID{Page: 1}
		demanded   = ID{Page: 2}
	)
	if _, _, err := cache.Prefetch(prefetched, 1); err != nil {
		t.Fatal(err)
	}
	if _, _, err := cache.Insert(demanded, 2, false); err != nil {
		t.Fatal(err)
	}
	cache.Lookup(prefetched, false)
	checkList(t, cache, prefetched, "recency")
	if front := cache.recent.Front(); front.Value.id != prefetched {
		t.Fatalf("first touch must move the entry to the head of recency, head: %v", front.Value.id)
	}
	cache.Lookup(prefetched, false)
	checkList(t, cache, prefetched, "frequency")

	cache.Lookup(demanded, true)
	checkList(t, cache, demanded, "frequency")
	if pins := cache.Pins(demanded); pins != 1 {
		t.Fatalf("expected 1 pin, got %d", pins)
	}
}

func TestGhostReadmission(t *testing.T) {
	cache, err := New[int](2)
	if err != nil {
		t.Fatal(err)
	}
	a, b, c := ID{Page: 1}, ID{Page: 2}, ID{Page: 3}
	for _, id := range []ID{a, b} {
		if _, _, err := cache.Insert(id, id.Page, false); err != nil {
			t.Fatal(err)
		}
	}
	cache.Lookup(a, false)
	if _, _, err := cache.Insert(c, 3, false); err != nil {
		t.Fatal(err)
	}
	checkList(t, cache, b, "recency ghost")
	if _, _, err := cache.Insert(b, 2, false); err != nil {
		t.Fatal(err)
	}
	checkList(t, cache, b, "frequency")
	// |Recency| was above p before the hit, so c is the victim.
	checkList(t, cache, a, "frequency")
	checkList(t, cache, c, "recency ghost")
	if target := cache.Target(); target != 1 {
		t.Fatalf("expected target 1, got %v", target)
	}
}

func TestInvariantsUnderRandomWorkload(t *testing.T) {
	const (
		capacity   = 16
		universe   = capacity * 6
		operations = 20_000
		resources  = 3
	)
	var (
		rng        = rand.New(rand.NewSource(1))
		cache, err = New[int](capacity)
		pins       = make(map[ID]int)
	)
	if err != nil {
		t.Fatal(err)
	}
	randomID := func() ID {
		return ID{
			Resource: ResourceID(rng.Intn(resources)),
			Page:     rng.Intn(universe),
		}
	}
	for op := range operations {
		id := randomID()
		switch roll := rng.Intn(100); {
		case roll < 40:
			if _, ok := cache.Lookup(id, false); ok {
				continue
			}
			pin := rng.Intn(4) == 0
			eviction, evicted, err := cache.Insert(id, id.Page, pin)
			switch {
			case errors.Is(err, ErrAllPinned):
				continue
			case err != nil:
				t.Fatalf("op %d: %v", op, err)
			}
			if evicted && pins[eviction.ID] > 0 && !eviction.Invalidated {
				t.Fatalf("op %d: evicted pinned page %v", op, eviction.ID)
			}
			if pin {
				pins[id]++
			}
		case roll < 55:
			if _, ok := cache.Lookup(id, false); !ok {
				if _, _, err := cache.Prefetch(id, id.Page); err != nil &&
					!errors.Is(err, ErrAllPinned) {
					t.Fatalf("op %d: %v", op, err)
				}
			}
		case roll < 70:
			if _, ok := cache.Lookup(id, true); ok {
				pins[id]++
			}
		case roll < 95:
			for pinned := range pins {
				cache.Unpin(pinned)
				if pins[pinned]--; pins[pinned] == 0 {
					delete(pins, pinned)
				}
				break
			}
		case roll < 99:
			if len(pins) == 0 {
				cache.Invalidate(id.Resource)
			}
		default:
			cache.UnpinAll()
			clear(pins)
		}
		verifyInvariants(t, cache, op)
	}
}

func verifyInvariants(t *testing.T, c *Cache[int], op int) {
	t.Helper()
	var (
		t1 = c.recent.Len()
		t2 = c.frequent.Len()
		b1 = c.recentGhost.Len()
		b2 = c.frequentGhost.Len()
	)
	switch {
	case t1+t2 > c.capacity:
		t.Fatalf("op %d: residents %d exceed capacity %d", op, t1+t2, c.capacity)
	case t1+b1 > c.capacity:
		t.Fatalf("op %d: |T1|+|B1| = %d exceeds capacity", op, t1+b1)
	case t1+t2+b1+b2 > 2*c.capacity:
		t.Fatalf("op %d: directory %d exceeds twice the capacity", op, t1+t2+b1+b2)
	case c.target < 0 || c.target > float64(c.capacity):
		t.Fatalf("op %d: target %v out of range", op, c.target)
	case len(c.index)+c.removed != t1+t2:
		t.Fatalf("op %d: index out of sync", op)
	}
	for id := range c.index {
		if _, ghosted := c.ghosts[id]; ghosted {
			t.Fatalf("op %d: %v is resident and ghosted", op, id)
		}
	}
}
