package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/redis/go-redis/v9"

	"github.com/onnwee/feedrank/internal/item"
	"github.com/onnwee/feedrank/internal/tracing"
)

// Redis key prefixes for shared snapshots.
const (
	snapshotIDPrefix  = "feedrank:snapshot:"
	snapshotKeyPrefix = "feedrank:snapshot-key:"
)

// snapshotRecord is the CBOR wire form of a Snapshot.
type snapshotRecord struct {
	ID       string       `cbor:"1,keyasint"`
	Limit    int          `cbor:"2,keyasint"`
	Bucket   time.Time    `cbor:"3,keyasint"`
	TakenAt  time.Time    `cbor:"4,keyasint"`
	MaxLikes int64        `cbor:"5,keyasint"`
	Items    []itemRecord `cbor:"6,keyasint"`
}

type itemRecord struct {
	ID        string    `cbor:"1,keyasint"`
	OwnerID   string    `cbor:"2,keyasint"`
	Title     string    `cbor:"3,keyasint,omitempty"`
	Tags      []string  `cbor:"4,keyasint"`
	Likes     int64     `cbor:"5,keyasint"`
	Views     int64     `cbor:"6,keyasint"`
	CreatedAt time.Time `cbor:"7,keyasint"`
	UpdatedAt time.Time `cbor:"8,keyasint"`
}

// snapshotEncMode keeps nanosecond timestamps; sort keys compare created_at
// exactly, so a lossy encoding would break cursor resumption.
var snapshotEncMode = func() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("feed: invalid CBOR encoding options: %v", err))
	}
	return em
}()

// EncodeSnapshot serializes a snapshot to CBOR.
func EncodeSnapshot(snap *Snapshot) ([]byte, error) {
	rec := snapshotRecord{
		ID:       snap.ID,
		Limit:    snap.Limit,
		Bucket:   snap.Bucket,
		TakenAt:  snap.TakenAt,
		MaxLikes: snap.MaxLikes,
		Items:    make([]itemRecord, len(snap.Items)),
	}
	for i, it := range snap.Items {
		rec.Items[i] = itemRecord{
			ID:        it.ID,
			OwnerID:   it.OwnerID,
			Title:     it.Title,
			Tags:      it.Tags,
			Likes:     it.Likes,
			Views:     it.Views,
			CreatedAt: it.CreatedAt,
			UpdatedAt: it.UpdatedAt,
		}
	}
	return snapshotEncMode.Marshal(rec)
}

// DecodeSnapshot deserializes a snapshot written by EncodeSnapshot.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var rec snapshotRecord
	if err := cbor.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if rec.ID == "" {
		return nil, errors.New("failed to decode snapshot: missing id")
	}

	snap := &Snapshot{
		ID:       rec.ID,
		Limit:    rec.Limit,
		Bucket:   rec.Bucket.UTC(),
		TakenAt:  rec.TakenAt.UTC(),
		MaxLikes: rec.MaxLikes,
		Items:    make([]*item.Item, len(rec.Items)),
	}
	for i, r := range rec.Items {
		tags := r.Tags
		if tags == nil {
			tags = []string{}
		}
		snap.Items[i] = &item.Item{
			ID:        r.ID,
			OwnerID:   r.OwnerID,
			Title:     r.Title,
			Tags:      tags,
			Likes:     r.Likes,
			Views:     r.Views,
			Active:    true,
			CreatedAt: r.CreatedAt.UTC(),
			UpdatedAt: r.UpdatedAt.UTC(),
		}
	}
	return snap, nil
}

// RedisSnapshotStore implements SnapshotStore using Redis.
type RedisSnapshotStore struct {
	client *redis.Client
}

// NewRedisSnapshotStore creates a new Redis-backed snapshot store.
func NewRedisSnapshotStore(client *redis.Client) *RedisSnapshotStore {
	return &RedisSnapshotStore{client: client}
}

// Get returns the snapshot with id.
func (s *RedisSnapshotStore) Get(ctx context.Context, id string) (snap *Snapshot, err error) {
	ctx, endSpan := tracing.StartCacheSpan(ctx, "feedrank:snapshot", tracing.DBOperationQuery)
	defer func() { endSpan(ignoreMiss(err)) }()

	data, err := s.client.Get(ctx, snapshotIDPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return DecodeSnapshot(data)
}

// GetByKey returns the snapshot published for key.
func (s *RedisSnapshotStore) GetByKey(ctx context.Context, key string) (snap *Snapshot, err error) {
	ctx, endSpan := tracing.StartCacheSpan(ctx, "feedrank:snapshot-key", tracing.DBOperationQuery)
	defer func() { endSpan(ignoreMiss(err)) }()

	id, err := s.client.Get(ctx, snapshotKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot key: %w", err)
	}
	return s.Get(ctx, id)
}

// Put stores snap and publishes it for its key. The key is only claimed if
// no other instance published a snapshot for the same bucket first, so all
// instances converge on one pool per bucket.
func (s *RedisSnapshotStore) Put(ctx context.Context, snap *Snapshot, ttl time.Duration) (err error) {
	ctx, endSpan := tracing.StartCacheSpan(ctx, "feedrank:snapshot", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	data, err := EncodeSnapshot(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, snapshotIDPrefix+snap.ID, data, ttl)
	pipe.SetNX(ctx, snapshotKeyPrefix+snap.Key(), snap.ID, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store snapshot: %w", err)
	}
	return nil
}

// ignoreMiss keeps cache misses from marking spans as errors.
func ignoreMiss(err error) error {
	if errors.Is(err, ErrSnapshotNotFound) {
		return nil
	}
	return err
}
