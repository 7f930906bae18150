package pagecache

import "fmt"

type constError string

const (
	// ErrInvalidCapacity may be returned from [New].
	ErrInvalidCapacity = constError("invalid capacity")
	// ErrDuplicateEntry is returned when admitting an identity that is already resident.
	ErrDuplicateEntry = constError("duplicate cache entry")
	// ErrAllPinned is returned when the cache is full and every resident is pinned.
	ErrAllPinned = constError("all cache entries are pinned")
)

func (errStr constError) Error() string { return string(errStr) }

func minCapacityError(capacity int) error {
	return fmt.Errorf(
		"%w: must be >=%d but %d was requested",
		ErrInvalidCapacity, MinimumCapacity, capacity)
}

func duplicateError(id ID) error {
	return fmt.Errorf("%w: %s", ErrDuplicateEntry, id)
}

func allPinnedError(capacity int) error {
	return fmt.Errorf("%w: %d of %d resident", ErrAllPinned, capacity, capacity)
}
