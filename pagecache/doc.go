// Package pagecache implements a pin-aware [Cache] using an
// Adaptive Replacement Cache (ARC) policy.
//
// ARC is an adaptive, scan-resistant policy that balances recency
// and frequency by splitting residents into a single-touch and a
// multi-touch list, and by remembering the identities of recently
// evicted pages in bounded "ghost" lists that steer the split.
//
// The following is a summary (intended for maintainers)
// of the policy as adapted for a database buffer pool.
// The base algorithm is described in the [ARC paper].
//
// Glossary and invariants:
//
//   - Resident entry
//
//     A page value held by the cache together with its pin count,
//     prefetch flag and removal mark.
//
//   - Recency (T1)
//
//     Residents touched once (since admission). Ordered MRU to LRU.
//
//   - Frequency (T2)
//
//     Residents touched at least twice. Ordered MRU to LRU.
//
//   - Ghost (B1, B2)
//
//     Identity of a page recently evicted from Recency (B1) or
//     Frequency (B2). Ghosts hold no value.
//
//   - Pinned
//
//     An entry with a positive pin count. Never chosen as a victim.
//
//   - Prefetched
//
//     Set when an entry is admitted by [Cache.Prefetch].
//     The first demand touch clears it without promoting the entry,
//     so read-ahead does not look like reuse.
//
//   - Removal mark
//
//     Set by [Cache.Invalidate]. Marked entries are invisible to lookups
//     but still occupy capacity until the next admission reclaims them.
//
// Counts and targets:
//
//   - |T1| + |T2| ≤ capacity.
//
//   - |T1| + |B1| ≤ capacity.
//
//   - |T1| + |T2| + |B1| + |B2| ≤ 2 * capacity.
//
//   - p ∈ [0, capacity] is the target size of T1.
//
//     A hit in B1 means Recency was too small: p grows by max(1, |B2|/|B1|).
//     A hit in B2 means Frequency was too small: p shrinks by max(1, |B1|/|B2|).
//
// Replacement:
//
//   - Marked entries are reclaimed first, oldest first, Recency before Frequency.
//
//   - Otherwise the victim comes from Recency if |T1| > p
//     (or |T1| == p and the admitted identity was in B2),
//     else from Frequency. The least recent unpinned entry of
//     the chosen side is evicted, falling back to the other side.
//
// The cache performs no I/O and no locking.
// Concurrent access must be guarded by the caller.
//
// [ARC paper]: https://www.usenix.org/legacy/events/fast03/tech/full_papers/megiddo/megiddo.pdf
package pagecache
