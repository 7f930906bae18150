package pagecache

import (
	"fmt"
	"iter"

	"github.com/djdv/go-bufferpool/internal/list"
)

type (
	// ResourceID identifies the table or index a page belongs to.
	ResourceID int
	// ID is the identity of a page across all resources sharing a cache.
	ID struct {
		Resource ResourceID
		Page     int
	}
	entry[Value any] struct {
		id         ID
		value      Value
		pins       int
		prefetched bool
		removed    bool
	}
	resident[Value any] = list.Element[entry[Value]]
	ghost               = list.Element[ID]

	// Eviction describes a resident that was removed to make room
	// for an admission. Ownership of Value passes to the caller.
	Eviction[Value any] struct {
		ID    ID
		Value Value
		// Invalidated is true if the victim had been
		// marked by [Cache.Invalidate] before it was reclaimed.
		Invalidated bool
	}

	// Cache utilizes the adaptive replacement policy with pinning.
	// Concurrent access must be guarded by the caller.
	// Constructed by [New].
	Cache[Value any] struct {
		index  map[ID]*resident[Value] // Unmarked residents only.
		ghosts map[ID]*ghost
		recent, frequent           list.List[entry[Value]]
		recentGhost, frequentGhost list.List[ID]
		target                     float64
		capacity, removed          int
	}
)

// MinimumCapacity defines the lowest value supported by [New].
const MinimumCapacity = 1

func (id ID) String() string { return fmt.Sprintf("%d/%d", id.Resource, id.Page) }

// New creates a [Cache] with the given capacity.
func New[Value any](capacity int) (*Cache[Value], error) {
	if capacity < MinimumCapacity {
		return nil, minCapacityError(capacity)
	}
	return &Cache[Value]{
		capacity: capacity,
		index:    make(map[ID]*resident[Value], capacity),
		ghosts:   make(map[ID]*ghost, capacity),
	}, nil
}

// Lookup returns the value for id if it is resident and not marked for removal.
// A hit in Recency promotes the entry to Frequency, unless the entry was
// prefetched and this is its first demand touch.
// If pin is true the entry's pin count is incremented.
// A miss has no side effects.
func (c *Cache[Value]) Lookup(id ID, pin bool) (Value, bool) {
	element, ok := c.index[id]
	if !ok {
		var zero Value
		return zero, false
	}
	entry := &element.Value
	if pin {
		entry.pins++
	}
	switch {
	case !c.recent.Contains(element):
		c.frequent.MoveToFront(element)
	case entry.prefetched:
		entry.prefetched = false
		c.recent.MoveToFront(element)
	default:
		c.relink(element, &c.recent, &c.frequent)
	}
	return entry.value, true
}

// Insert admits value under id as a demand fetch.
// If pin is true, the new entry starts with one pin.
// When the cache is full a victim is evicted and returned;
// the caller takes ownership of the victim's value.
func (c *Cache[Value]) Insert(id ID, value Value, pin bool) (Eviction[Value], bool, error) {
	var pins int
	if pin {
		pins = 1
	}
	const prefetched = false
	return c.admit(id, value, pins, prefetched)
}

// Prefetch admits value under id without pinning it.
// The entry is not promoted by its first subsequent [Cache.Lookup].
func (c *Cache[Value]) Prefetch(id ID, value Value) (Eviction[Value], bool, error) {
	const (
		pins       = 0
		prefetched = true
	)
	return c.admit(id, value, pins, prefetched)
}

func (c *Cache[Value]) admit(id ID, value Value, pins int, prefetched bool) (Eviction[Value], bool, error) {
	var eviction Eviction[Value]
	if _, dup := c.index[id]; dup {
		return eviction, false, duplicateError(id)
	}
	var (
		ghostHit, wasGhost = c.ghosts[id]
		recentHit          = wasGhost && c.recentGhost.Contains(ghostHit)
		frequentHit        = wasGhost && !recentHit
		target             = c.adaptedTarget(recentHit, frequentHit)
		evicted            bool
	)
	if c.atCapacity() {
		// The victim side is chosen against p as it was before this hit.
		victim, err := c.selectVictim(c.target, frequentHit)
		if err != nil {
			return eviction, false, err
		}
		eviction, evicted = c.evict(victim, id), true
	}
	c.target = target
	destination := &c.recent
	if wasGhost {
		c.dropGhost(ghostHit)
		destination = &c.frequent
	}
	c.index[id] = destination.PushFront(entry[Value]{
		id:         id,
		value:      value,
		pins:       pins,
		prefetched: prefetched,
	})
	c.trimGhosts()
	if debugging {
		c.checkInvariants()
	}
	return eviction, evicted, nil
}

// adaptedTarget returns p as it would be after a ghost hit.
// It is committed after the victim has been evicted.
func (c *Cache[_]) adaptedTarget(recentHit, frequentHit bool) float64 {
	var (
		target   = c.target
		recent   = float64(c.recentGhost.Len())
		frequent = float64(c.frequentGhost.Len())
	)
	switch {
	case recentHit:
		target = min(target+max(1, frequent/recent), float64(c.capacity))
	case frequentHit:
		target = max(target-max(1, recent/frequent), 0)
	}
	return target
}

func (c *Cache[_]) atCapacity() bool {
	return c.Len() >= c.capacity
}

// selectVictim chooses the resident to evict without modifying the cache.
func (c *Cache[Value]) selectVictim(target float64, frequentHit bool) (*resident[Value], error) {
	if c.removed > 0 {
		for _, side := range []*list.List[entry[Value]]{&c.recent, &c.frequent} {
			if victim := oldestUnpinned(side, true); victim != nil {
				return victim, nil
			}
		}
	}
	var (
		recentLen     = float64(c.recent.Len())
		preferRecent  = c.recent.Len() > 0 &&
			(recentLen > target || (recentLen == target && frequentHit))
		first, second = &c.recent, &c.frequent
	)
	if !preferRecent {
		first, second = second, first
	}
	for _, side := range []*list.List[entry[Value]]{first, second} {
		if victim := oldestUnpinned(side, false); victim != nil {
			return victim, nil
		}
	}
	return nil, allPinnedError(c.capacity)
}

func oldestUnpinned[Value any](side *list.List[entry[Value]], removedOnly bool) *resident[Value] {
	for element := range side.Backward() {
		entry := &element.Value
		if entry.pins != 0 ||
			(removedOnly && !entry.removed) {
			continue
		}
		return element
	}
	return nil
}

// evict unlinks the victim and remembers its identity in the matching ghost list.
func (c *Cache[Value]) evict(victim *resident[Value], admitting ID) Eviction[Value] {
	var (
		fromRecent = c.recent.Contains(victim)
		side       = &c.frequent
		ghosts     = &c.frequentGhost
	)
	if fromRecent {
		side, ghosts = &c.recent, &c.recentGhost
	}
	entry := side.Remove(victim)
	if entry.removed {
		c.removed--
	} else {
		delete(c.index, entry.id)
	}
	// A reclaimed invalidated entry may share its identity
	// with a newer resident; only unknown identities are ghosted.
	if _, readmitted := c.index[entry.id]; !readmitted && entry.id != admitting {
		if stale, ok := c.ghosts[entry.id]; ok {
			c.dropGhost(stale)
		}
		c.ghosts[entry.id] = ghosts.PushFront(entry.id)
	}
	return Eviction[Value]{
		ID:          entry.id,
		Value:       entry.value,
		Invalidated: entry.removed,
	}
}

func (c *Cache[_]) dropGhost(element *ghost) {
	var id ID
	if c.recentGhost.Contains(element) {
		id = c.recentGhost.Remove(element)
	} else {
		id = c.frequentGhost.Remove(element)
	}
	delete(c.ghosts, id)
}

// trimGhosts drops the oldest ghosts until the directory bounds hold.
func (c *Cache[_]) trimGhosts() {
	for c.recent.Len()+c.recentGhost.Len() > c.capacity &&
		c.recentGhost.Len() > 0 {
		c.dropGhost(c.recentGhost.Back())
	}
	directoryLimit := 2 * c.capacity
	for c.Len()+c.GhostLen() > directoryLimit {
		switch {
		case c.frequentGhost.Len() > 0:
			c.dropGhost(c.frequentGhost.Back())
		case c.recentGhost.Len() > 0:
			c.dropGhost(c.recentGhost.Back())
		default:
			return
		}
	}
}

// relink moves element to the front of another list,
// keeping the index pointed at its new handle.
func (c *Cache[Value]) relink(element *resident[Value], from, to *list.List[entry[Value]]) {
	entry := from.Remove(element)
	c.index[entry.id] = to.PushFront(entry)
}

// Pin adds a pin to a resident entry without changing its position.
// It returns false if id is not resident.
func (c *Cache[_]) Pin(id ID) bool {
	element, ok := c.index[id]
	if ok {
		element.Value.pins++
	}
	return ok
}

// Unpin releases one pin from the entry for id, if any.
// Entries marked for removal can still be unpinned.
func (c *Cache[Value]) Unpin(id ID) {
	if element, ok := c.index[id]; ok {
		element.Value.pins = max(element.Value.pins-1, 0)
		return
	}
	if c.removed == 0 {
		return
	}
	for _, side := range []*list.List[entry[Value]]{&c.recent, &c.frequent} {
		for element := range side.All() {
			if entry := &element.Value; entry.removed && entry.id == id {
				entry.pins = max(entry.pins-1, 0)
				return
			}
		}
	}
}

// UnpinAll clears the pin count of every resident entry.
func (c *Cache[Value]) UnpinAll() {
	for _, side := range []*list.List[entry[Value]]{&c.recent, &c.frequent} {
		for element := range side.All() {
			element.Value.pins = 0
		}
	}
}

// Pins returns the pin count of the resident entry for id.
func (c *Cache[_]) Pins(id ID) int {
	if element, ok := c.index[id]; ok {
		return element.Value.pins
	}
	return 0
}

// Invalidate marks every resident page of resource for removal.
// Marked entries are treated as absent by lookups and are reclaimed,
// ahead of regular victims, by later admissions.
// Ghost lists are not modified.
func (c *Cache[_]) Invalidate(resource ResourceID) {
	for id, element := range c.index {
		if id.Resource != resource {
			continue
		}
		element.Value.removed = true
		delete(c.index, id)
		c.removed++
	}
}

// EntriesFor returns an iterator over the (unordered) values of
// unmarked resident pages that belong to resource.
// The cache must not be modified during iteration.
func (c *Cache[Value]) EntriesFor(resource ResourceID) iter.Seq[Value] {
	return func(yield func(Value) bool) {
		for id, element := range c.index {
			if id.Resource != resource {
				continue
			}
			if !yield(element.Value.value) {
				return
			}
		}
	}
}

// Len returns the number of resident pages, including those marked for removal.
func (c *Cache[_]) Len() int {
	return c.recent.Len() + c.frequent.Len()
}

// GhostLen returns the number of remembered (nonresident) identities.
func (c *Cache[_]) GhostLen() int {
	return c.recentGhost.Len() + c.frequentGhost.Len()
}

// Capacity returns the maximum number of resident pages.
func (c *Cache[_]) Capacity() int { return c.capacity }

// Target returns the adaptation parameter p;
// the size Recency is steered towards.
func (c *Cache[_]) Target() float64 { return c.target }

// Keys returns an iterator over the (unordered) identities of
// unmarked resident pages.
func (c *Cache[_]) Keys() iter.Seq[ID] {
	return func(yield func(ID) bool) {
		for id := range c.index {
			if !yield(id) {
				return
			}
		}
	}
}

func (c *Cache[Value]) checkInvariants() {
	var (
		recent   = c.recent.Len()
		frequent = c.frequent.Len()
		b1       = c.recentGhost.Len()
		b2       = c.frequentGhost.Len()
	)
	assert(recent+frequent <= c.capacity,
		"residents exceed capacity")
	assert(recent+b1 <= c.capacity,
		"recency directory exceeds capacity")
	assert(recent+frequent+b1+b2 <= 2*c.capacity,
		"directory exceeds twice the capacity")
	assert(c.target >= 0 && c.target <= float64(c.capacity),
		"target out of range")
	assert(len(c.index)+c.removed == recent+frequent,
		"index out of sync with resident lists")
	assert(len(c.ghosts) == b1+b2,
		"ghost index out of sync with ghost lists")
	for id := range c.index {
		_, ghosted := c.ghosts[id]
		assert(!ghosted, "identity is both resident and ghosted")
	}
}
