package bufferpool

import "slices"

type (
	// Stats is a snapshot of the pool's state.
	Stats struct {
		Classes []ClassStats
		// Write-backs queued or in flight.
		PendingWrites int
		// Load requests not yet taken by the reader.
		QueuedLoads int
	}

	// ClassStats describes the cache and free set of one page size.
	ClassStats struct {
		PageSize
		Capacity, Resident, Ghosts int
		// Target is the size the cache steers its
		// single-touch list towards.
		Target       float64
		FreeBuffers  int
		PendingLoads int
	}
)

// Stats returns a snapshot of every page size in use, ordered by size.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	classes := make([]*sizeClass, 0, len(p.classes))
	for _, class := range p.classes {
		classes = append(classes, class)
	}
	p.mu.Unlock()
	slices.SortFunc(classes, func(a, b *sizeClass) int { return int(a.size - b.size) })

	stats := Stats{
		Classes:       make([]ClassStats, 0, len(classes)),
		PendingWrites: p.writes.len(),
		QueuedLoads:   p.loads.len(),
	}
	for _, class := range classes {
		class.mu.Lock()
		stats.Classes = append(stats.Classes, ClassStats{
			PageSize:     class.size,
			Capacity:     class.cache.Capacity(),
			Resident:     class.cache.Len(),
			Ghosts:       class.cache.GhostLen(),
			Target:       class.cache.Target(),
			FreeBuffers:  class.free.len(),
			PendingLoads: len(class.pending),
		})
		class.mu.Unlock()
	}
	return stats
}
