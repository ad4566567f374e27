package item

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/onnwee/feedrank/internal/tracing"
)

// PostgresItemRepository implements Repository using PostgreSQL.
type PostgresItemRepository struct {
	db *sql.DB
}

// NewPostgresItemRepository creates a new PostgresItemRepository.
func NewPostgresItemRepository(db *sql.DB) *PostgresItemRepository {
	return &PostgresItemRepository{db: db}
}

// Create inserts a new item.
func (r *PostgresItemRepository) Create(ctx context.Context, item *Item) error {
	if item.OwnerID == "" {
		return ErrMissingOwner
	}
	tags, err := NormalizeTags(item.Tags, MaxItemTags)
	if err != nil {
		return err
	}

	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.Tags = tags
	item.Likes = 0
	item.Views = 0
	item.Active = true
	item.UpdatedAt = now

	query := `
		INSERT INTO items (id, owner_id, title, tags, likes, views, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, 0, TRUE, $5, $6)
	`
	_, err = r.db.ExecContext(ctx, query,
		item.ID,
		item.OwnerID,
		item.Title,
		pq.Array(item.Tags),
		item.CreatedAt,
		item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create item: %w", err)
	}
	return nil
}

// GetByID retrieves an item by ID.
func (r *PostgresItemRepository) GetByID(ctx context.Context, id string) (*Item, error) {
	if !validID(id) {
		return nil, ErrItemNotFound
	}
	query := `
		SELECT id, owner_id, title, tags, likes, views, active, created_at, updated_at
		FROM items
		WHERE id = $1
	`

	item, err := scanItem(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return item, nil
}

// Deactivate marks an item inactive.
func (r *PostgresItemRepository) Deactivate(ctx context.Context, id string) error {
	if !validID(id) {
		return ErrItemNotFound
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE items SET active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to deactivate item: %w", err)
	}
	if n == 0 {
		return ErrItemNotFound
	}
	return nil
}

// Like records a like from userID on itemID. The like row and the counter
// update commit together.
func (r *PostgresItemRepository) Like(ctx context.Context, userID, itemID string) (liked bool, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "item_likes", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	if !validID(itemID) {
		return false, ErrItemNotFound
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin like transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := lockActiveItem(ctx, tx, itemID); err != nil {
		return false, err
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO item_likes (user_id, item_id, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id, item_id) DO NOTHING
	`, userID, itemID)
	if err != nil {
		return false, fmt.Errorf("failed to insert like: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to insert like: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE items SET likes = likes + 1, updated_at = NOW() WHERE id = $1`, itemID); err != nil {
		return false, fmt.Errorf("failed to increment likes: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit like: %w", err)
	}
	return true, nil
}

// Unlike removes a like from userID on itemID.
func (r *PostgresItemRepository) Unlike(ctx context.Context, userID, itemID string) (removed bool, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "item_likes", tracing.DBOperationDelete)
	defer func() { endSpan(err) }()

	if !validID(itemID) {
		return false, ErrItemNotFound
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin unlike transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	err = tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM items WHERE id = $1)`, itemID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check item: %w", err)
	}
	if !exists {
		return false, ErrItemNotFound
	}

	res, err := tx.ExecContext(ctx,
		`DELETE FROM item_likes WHERE user_id = $1 AND item_id = $2`, userID, itemID)
	if err != nil {
		return false, fmt.Errorf("failed to delete like: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete like: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE items SET likes = GREATEST(likes - 1, 0), updated_at = NOW() WHERE id = $1`, itemID); err != nil {
		return false, fmt.Errorf("failed to decrement likes: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit unlike: %w", err)
	}
	return true, nil
}

// RecordView increments the view counter of an active item. Inactive items
// are left untouched.
func (r *PostgresItemRepository) RecordView(ctx context.Context, itemID string) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "items", tracing.DBOperationUpdate)
	defer func() { endSpan(err) }()

	if !validID(itemID) {
		return ErrItemNotFound
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE items SET views = views + 1 WHERE id = $1 AND active = TRUE`, itemID)
	if err != nil {
		return fmt.Errorf("failed to record view: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to record view: %w", err)
	}
	if n > 0 {
		return nil
	}

	var exists bool
	err = r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM items WHERE id = $1)`, itemID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check item: %w", err)
	}
	if !exists {
		return ErrItemNotFound
	}
	return ErrItemInactive
}

// GetUserLikedTags returns the user's interest profile.
func (r *PostgresItemRepository) GetUserLikedTags(ctx context.Context, userID string) (tags []string, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "item_likes", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	query := `
		SELECT t.tag
		FROM item_likes l
		JOIN items i ON i.id = l.item_id
		CROSS JOIN LATERAL unnest(i.tags) AS t(tag)
		WHERE l.user_id = $1
		GROUP BY t.tag
		ORDER BY MAX(l.created_at) DESC, t.tag ASC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, userID, MaxProfileTags)
	if err != nil {
		return nil, fmt.Errorf("failed to get user liked tags: %w", err)
	}
	defer rows.Close()

	tags = make([]string, 0)
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tags: %w", err)
	}
	return tags, nil
}

// GetActiveItems returns the newest active items created at or before before.
func (r *PostgresItemRepository) GetActiveItems(ctx context.Context, limit int, before time.Time) (items []*Item, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "items", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	if limit <= 0 {
		return []*Item{}, nil
	}

	query := `
		SELECT id, owner_id, title, tags, likes, views, active, created_at, updated_at
		FROM items
		WHERE active = TRUE AND created_at <= $1
		ORDER BY created_at DESC, id ASC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, before, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get active items: %w", err)
	}
	defer rows.Close()

	items = make([]*Item, 0, limit)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating items: %w", err)
	}
	return items, nil
}

// GetMaxEngagementCounter returns the largest like counter among itemIDs.
func (r *PostgresItemRepository) GetMaxEngagementCounter(ctx context.Context, itemIDs []string) (maxLikes int64, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "items", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	if len(itemIDs) == 0 {
		return 0, nil
	}

	err = r.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(likes), 0) FROM items WHERE id = ANY($1::uuid[])`,
		pq.Array(itemIDs)).Scan(&maxLikes)
	if err != nil {
		return 0, fmt.Errorf("failed to get max engagement counter: %w", err)
	}
	return maxLikes, nil
}

// GetUserLikeSet returns which of itemIDs the user has liked.
func (r *PostgresItemRepository) GetUserLikeSet(ctx context.Context, userID string, itemIDs []string) (result map[string]bool, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "item_likes", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	result = make(map[string]bool)
	if len(itemIDs) == 0 {
		return result, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT item_id FROM item_likes WHERE user_id = $1 AND item_id = ANY($2::uuid[])`,
		userID, pq.Array(itemIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to get user like set: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan liked item id: %w", err)
		}
		result[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating liked items: %w", err)
	}
	return result, nil
}

// lockActiveItem takes a row lock on the item for the duration of tx.
func lockActiveItem(ctx context.Context, tx *sql.Tx, itemID string) error {
	var active bool
	err := tx.QueryRowContext(ctx,
		`SELECT active FROM items WHERE id = $1 FOR UPDATE`, itemID).Scan(&active)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrItemNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock item: %w", err)
	}
	if !active {
		return ErrItemInactive
	}
	return nil
}

// validID reports whether id can be an items primary key. Anything else
// cannot exist, and sending it to Postgres would fail the uuid cast.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*Item, error) {
	item := &Item{}
	var title sql.NullString
	err := row.Scan(
		&item.ID,
		&item.OwnerID,
		&title,
		pq.Array(&item.Tags),
		&item.Likes,
		&item.Views,
		&item.Active,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	item.Title = title.String
	if item.Tags == nil {
		item.Tags = []string{}
	}
	return item, nil
}
