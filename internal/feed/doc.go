// Package feed serves the personalized ranked feed in stable pages.
//
// A page request flows through four pieces:
//
//   - Selector picks the bounded candidate pool (the newest N active items)
//     and freezes it into a Snapshot together with its normalization context.
//   - RankCache memoizes snapshots per (N, time bucket) and keeps them
//     resolvable by ID for a retention window, so a scroll session keeps
//     paging through the pool it started on.
//   - Rank scores every snapshot item for the requesting user and sorts by
//     (score DESC, created_at DESC, id ASC), a strict total order.
//   - Pager locates the resume position from a signed cursor, slices the
//     page and mints the next cursor.
//
// Pagination guarantees:
//
// Within one snapshot a scroll visits every item exactly once. The
// requester's interest profile is read when the scroll starts and carried in
// the cursor, so likes made mid-scroll take effect on the next scroll.
// When a cursor's snapshot has aged out of the cache the pool is rebuilt
// and the scroll resumes from the cursor's sort key, so drift is limited to
// the single page boundary where the rollover happened.
//
// Cursors are bound to the user, the candidate bound N and the ranking
// weights fingerprint. A mismatch in N or weights, or an expired cursor,
// restarts the scroll from the top with Page.Reset set.
package feed
