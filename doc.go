// Package bufferpool keeps a bounded set of fixed-size pages in memory
// on behalf of page-addressable resources such as tables and indexes.
//
// Pages are grouped by [PageSize]. Each size has its own replacement
// cache (see package pagecache) and its own set of free buffers.
// Callers pin the pages they use; a pinned page is never evicted.
//
// Misses are served by a single reader goroutine. Concurrent misses for
// the same page share one read. Evicted pages that were modified are
// handed to a single writer goroutine, and a page that is requested
// again before its write-back completes is taken back from the writer
// instead of being read from disk.
//
// Invariants:
//   - A page's buffer is owned by exactly one of: the cache,
//     a pending write-back, or the free set of its page size.
//   - Each size class holds capacity + [Config.NumIOBuffers] buffers.
//   - Lock order is size class, then write-back queue.
//     No lock is held across a read or write of a resource.
//
// A page taken back from the writer may be modified while the writer
// is still persisting it. Resources should only clear a page's modified
// state if the page did not change during WritePage, so that the later
// eviction writes it again.
package bufferpool
