package feed

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Default cache timings.
const (
	DefaultSnapshotBucket    = time.Minute
	DefaultSnapshotRetention = 10 * time.Minute
)

// SnapshotStore is a shared snapshot tier, letting several API instances
// page through the same frozen pools. RedisSnapshotStore implements it.
type SnapshotStore interface {
	// Get returns the snapshot with id, or ErrSnapshotNotFound.
	Get(ctx context.Context, id string) (*Snapshot, error)

	// GetByKey returns the snapshot currently published for key, or ErrSnapshotNotFound.
	GetByKey(ctx context.Context, key string) (*Snapshot, error)

	// Put stores snap under its ID and publishes it for its key.
	Put(ctx context.Context, snap *Snapshot, ttl time.Duration) error
}

type cacheEntry struct {
	snap      *Snapshot
	expiresAt time.Time
}

// RankCache memoizes candidate snapshots per (N, time bucket). Concurrent
// misses for the same key share a single build. Snapshots stay resolvable by
// ID until the retention window passes, which should exceed the bucket so
// that open scroll sessions keep their pool across bucket rollovers.
type RankCache struct {
	selector  *Selector
	remote    SnapshotStore
	retention time.Duration
	metrics   *Metrics
	now       func() time.Time

	mu    sync.RWMutex
	byID  map[string]*cacheEntry
	byKey map[string]string // key -> snapshot ID
	group singleflight.Group
}

// NewRankCache creates a cache building snapshots with selector. remote may be nil.
func NewRankCache(selector *Selector, remote SnapshotStore, retention time.Duration, metrics *Metrics) *RankCache {
	if retention <= 0 {
		retention = DefaultSnapshotRetention
	}
	return &RankCache{
		selector:  selector,
		remote:    remote,
		retention: retention,
		metrics:   metrics,
		now:       time.Now,
		byID:      make(map[string]*cacheEntry),
		byKey:     make(map[string]string),
	}
}

// Limit returns the candidate bound N of the snapshots this cache builds.
func (c *RankCache) Limit() int {
	return c.selector.Limit()
}

// Current returns the snapshot for the current time bucket, building it on a miss.
func (c *RankCache) Current(ctx context.Context) (*Snapshot, error) {
	now := c.now()
	key := snapshotKey(c.selector.Limit(), c.selector.BucketFor(now))

	if snap := c.localByKey(key, now); snap != nil {
		c.metrics.IncSnapshotLookup(LookupHit)
		return snap, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		// Another caller may have finished the build while we waited for the lock.
		if snap := c.localByKey(key, c.now()); snap != nil {
			return snap, nil
		}

		// The build outlives any single caller: waiters share its result.
		buildCtx := context.WithoutCancel(ctx)

		if c.remote != nil {
			snap, err := c.remote.GetByKey(buildCtx, key)
			if err == nil {
				c.metrics.IncSnapshotLookup(LookupRemoteHit)
				c.store(snap)
				return snap, nil
			}
			if !errors.Is(err, ErrSnapshotNotFound) {
				slog.WarnContext(ctx, "shared snapshot lookup failed", "key", key, "error", err)
			}
		}

		c.metrics.IncSnapshotLookup(LookupMiss)
		start := time.Now()
		snap, err := c.selector.Select(buildCtx, now)
		c.metrics.ObserveSnapshotBuild(time.Since(start).Seconds(), snapshotLen(snap), err)
		if err != nil {
			return nil, err
		}

		c.store(snap)
		if c.remote != nil {
			if err := c.remote.Put(buildCtx, snap, c.retention); err != nil {
				slog.WarnContext(ctx, "failed to publish shared snapshot",
					"snapshot_id", snap.ID,
					"error", err)
			}
		}
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

// Lookup returns the snapshot with id if it is still retained.
func (c *RankCache) Lookup(ctx context.Context, id string) (*Snapshot, bool) {
	now := c.now()

	c.mu.RLock()
	entry, ok := c.byID[id]
	c.mu.RUnlock()
	if ok && now.Before(entry.expiresAt) {
		c.metrics.IncSnapshotLookup(LookupHit)
		return entry.snap, true
	}

	if c.remote != nil {
		snap, err := c.remote.Get(ctx, id)
		if err == nil {
			c.metrics.IncSnapshotLookup(LookupRemoteHit)
			c.store(snap)
			return snap, true
		}
		if !errors.Is(err, ErrSnapshotNotFound) {
			slog.WarnContext(ctx, "shared snapshot lookup failed", "snapshot_id", id, "error", err)
		}
	}

	c.metrics.IncSnapshotLookup(LookupEvicted)
	return nil, false
}

// Evict drops every snapshot whose retention has passed and returns how many
// were removed.
func (c *RankCache) Evict() int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for id, entry := range c.byID {
		if now.Before(entry.expiresAt) {
			continue
		}
		delete(c.byID, id)
		if c.byKey[entry.snap.Key()] == id {
			delete(c.byKey, entry.snap.Key())
		}
		removed++
	}
	return removed
}

// Len returns the number of snapshots held locally.
func (c *RankCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byID)
}

func (c *RankCache) localByKey(key string, now time.Time) *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	id, ok := c.byKey[key]
	if !ok {
		return nil
	}
	entry, ok := c.byID[id]
	if !ok || !now.Before(entry.expiresAt) {
		return nil
	}
	return entry.snap
}

func (c *RankCache) store(snap *Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.byID[snap.ID]; ok {
		// Keep the original deadline; retention counts from the first sighting.
		c.byKey[snap.Key()] = existing.snap.ID
		return
	}
	c.byID[snap.ID] = &cacheEntry{
		snap:      snap,
		expiresAt: c.now().Add(c.retention),
	}
	c.byKey[snap.Key()] = snap.ID
}

func snapshotLen(snap *Snapshot) int {
	if snap == nil {
		return 0
	}
	return len(snap.Items)
}
