package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rewear/rewear/internal/model"
)

// ItemInput holds the owner-supplied fields of a listing.
type ItemInput struct {
	Title       string
	Description string
	Images      []string
	Size        string
	Condition   string
	Category    string
	Tags        []string
	PointsValue int
	Brand       string
	Color       string
	Material    string
	Location    string
}

// ItemUpdate holds a partial update; nil fields are left unchanged.
// Availability and approval are not editable through it.
type ItemUpdate struct {
	Title       *string
	Description *string
	Size        *string
	Condition   *string
	Category    *string
	Tags        *[]string
	PointsValue *int
	Brand       *string
	Color       *string
	Material    *string
	Location    *string
}

// ItemFilter narrows the public browse listing.
type ItemFilter struct {
	Category  string
	Size      string
	Condition string
	Search    string
	MinPoints int
	MaxPoints int
}

const itemColumns = `i.id, i.owner_id, i.title, i.description, i.size, i.condition, i.category,
	i.points_value, i.is_available, i.is_approved, i.approved_by, i.approved_at,
	i.brand, i.color, i.material, i.location, i.created_at, i.updated_at, u.name`

func scanItem(row interface{ Scan(...any) error }, item *model.Item) error {
	return row.Scan(&item.ID, &item.OwnerID, &item.Title, &item.Description, &item.Size,
		&item.Condition, &item.Category, &item.PointsValue, &item.IsAvailable, &item.IsApproved,
		&item.ApprovedBy, &item.ApprovedAt, &item.Brand, &item.Color, &item.Material,
		&item.Location, &item.CreatedAt, &item.UpdatedAt, &item.OwnerName)
}

// CreateItem creates a new, unapproved and available listing with its images and tags.
func CreateItem(ctx context.Context, db *sql.DB, ownerID int64, in ItemInput) (*model.Item, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO items (owner_id, title, description, size, condition, category, points_value,
		                    brand, color, material, location)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ownerID, in.Title, in.Description, in.Size, in.Condition, in.Category, in.PointsValue,
		in.Brand, in.Color, in.Material, in.Location,
	)
	if err != nil {
		return nil, fmt.Errorf("creating item: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting item id: %w", err)
	}

	for pos, url := range in.Images {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO item_images (item_id, position, url) VALUES (?, ?, ?)`, id, pos, url,
		); err != nil {
			return nil, fmt.Errorf("adding item image: %w", err)
		}
	}

	if err := replaceTags(ctx, tx, id, in.Tags); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing item: %w", err)
	}

	return GetItem(ctx, db, id)
}

// GetItem returns an item by ID with its images, tags and owner name.
func GetItem(ctx context.Context, q Querier, id int64) (*model.Item, error) {
	item := &model.Item{}
	err := scanItem(q.QueryRowContext(ctx,
		`SELECT `+itemColumns+`
		 FROM items i JOIN users u ON u.id = i.owner_id
		 WHERE i.id = ?`, id,
	), item)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}

	items := []model.Item{*item}
	if err := loadItemDetails(ctx, q, items); err != nil {
		return nil, err
	}
	return &items[0], nil
}

// ListItems returns a page of approved, available items matching the filter,
// newest first, and the total number of matches.
func ListItems(ctx context.Context, q Querier, f ItemFilter, page Page) ([]model.Item, int, error) {
	where := `WHERE i.is_approved = 1 AND i.is_available = 1`
	var args []any

	if f.Category != "" {
		where += ` AND i.category = ?`
		args = append(args, f.Category)
	}
	if f.Size != "" {
		where += ` AND i.size = ?`
		args = append(args, f.Size)
	}
	if f.Condition != "" {
		where += ` AND i.condition = ?`
		args = append(args, f.Condition)
	}
	if f.MinPoints > 0 {
		where += ` AND i.points_value >= ?`
		args = append(args, f.MinPoints)
	}
	if f.MaxPoints > 0 {
		where += ` AND i.points_value <= ?`
		args = append(args, f.MaxPoints)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		pattern := likePattern(s)
		where += ` AND (lower(i.title) LIKE ? ESCAPE '\' OR lower(i.description) LIKE ? ESCAPE '\'
		            OR EXISTS (SELECT 1 FROM item_tags t WHERE t.item_id = i.id AND lower(t.tag) LIKE ? ESCAPE '\'))`
		args = append(args, pattern, pattern, pattern)
	}

	var total int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM items i `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting items: %w", err)
	}

	items, err := queryItems(ctx, q,
		`SELECT `+itemColumns+` FROM items i JOIN users u ON u.id = i.owner_id `+where+`
		 ORDER BY i.created_at DESC, i.id DESC LIMIT ? OFFSET ?`,
		append(args, page.Limit, page.Offset())...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("listing items: %w", err)
	}
	return items, total, nil
}

// ListItemsByOwner returns every item of an owner regardless of status, newest first.
func ListItemsByOwner(ctx context.Context, q Querier, ownerID int64) ([]model.Item, error) {
	items, err := queryItems(ctx, q,
		`SELECT `+itemColumns+` FROM items i JOIN users u ON u.id = i.owner_id
		 WHERE i.owner_id = ? ORDER BY i.created_at DESC, i.id DESC`, ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing owner items: %w", err)
	}
	return items, nil
}

// ListPendingItems returns a page of items awaiting approval and their total.
func ListPendingItems(ctx context.Context, q Querier, page Page) ([]model.Item, int, error) {
	var total int
	if err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM items WHERE is_approved = 0`,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting pending items: %w", err)
	}

	items, err := queryItems(ctx, q,
		`SELECT `+itemColumns+` FROM items i JOIN users u ON u.id = i.owner_id
		 WHERE i.is_approved = 0 ORDER BY i.created_at DESC, i.id DESC LIMIT ? OFFSET ?`,
		page.Limit, page.Offset(),
	)
	if err != nil {
		return nil, 0, fmt.Errorf("listing pending items: %w", err)
	}
	return items, total, nil
}

// UpdateItem applies a partial update to an item's descriptive fields.
func UpdateItem(ctx context.Context, db *sql.DB, id int64, upd ItemUpdate) error {
	var sets []string
	var args []any
	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}

	if upd.Title != nil {
		add("title", *upd.Title)
	}
	if upd.Description != nil {
		add("description", *upd.Description)
	}
	if upd.Size != nil {
		add("size", *upd.Size)
	}
	if upd.Condition != nil {
		add("condition", *upd.Condition)
	}
	if upd.Category != nil {
		add("category", *upd.Category)
	}
	if upd.PointsValue != nil {
		add("points_value", *upd.PointsValue)
	}
	if upd.Brand != nil {
		add("brand", *upd.Brand)
	}
	if upd.Color != nil {
		add("color", *upd.Color)
	}
	if upd.Material != nil {
		add("material", *upd.Material)
	}
	if upd.Location != nil {
		add("location", *upd.Location)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	res, err := tx.ExecContext(ctx,
		`UPDATE items SET `+strings.Join(sets, ", ")+` WHERE id = ?`,
		append(args, id)...,
	)
	if err != nil {
		return fmt.Errorf("updating item: %w", err)
	}
	if err := requireRow(res, "item"); err != nil {
		return err
	}

	if upd.Tags != nil {
		if err := replaceTags(ctx, tx, id, *upd.Tags); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing item update: %w", err)
	}
	return nil
}

// DeleteItem removes an item. Items that appear in any swap keep their row so
// swap history stays intact; deleting them returns ErrConflict.
func DeleteItem(ctx context.Context, db *sql.DB, id int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var refs int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM swaps WHERE requested_item_id = ? OR offered_item_id = ?`, id, id,
	).Scan(&refs)
	if err != nil {
		return fmt.Errorf("checking item swaps: %w", err)
	}
	if refs > 0 {
		return fmt.Errorf("%w: item is referenced by %d swap requests", ErrConflict, refs)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting item: %w", err)
	}
	if err := requireRow(res, "item"); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing item deletion: %w", err)
	}
	return nil
}

// SetItemApproval records an admin's approval decision.
func SetItemApproval(ctx context.Context, q Querier, id int64, approved bool, adminID int64, at time.Time) error {
	res, err := q.ExecContext(ctx,
		`UPDATE items SET is_approved = ?, approved_by = ?, approved_at = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		approved, adminID, at, id,
	)
	if err != nil {
		return fmt.Errorf("updating item approval: %w", err)
	}
	return requireRow(res, "item")
}

// MarkItemUnavailable flips is_available from true to false. It reports
// false without error when the item was already unavailable (or missing), so
// callers can treat the flip as a compare-and-swap.
func MarkItemUnavailable(ctx context.Context, q Querier, id int64) (bool, error) {
	res, err := q.ExecContext(ctx,
		`UPDATE items SET is_available = 0, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND is_available = 1`, id,
	)
	if err != nil {
		return false, fmt.Errorf("marking item unavailable: %w", err)
	}
	return affectedOne(res)
}

func queryItems(ctx context.Context, q Querier, query string, args ...any) ([]model.Item, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	var items []model.Item
	for rows.Next() {
		var item model.Item
		if err := scanItem(rows, &item); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		items = append(items, item)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, err
	}

	// Rows must be closed before the follow-up queries: an in-memory database
	// has a single connection.
	if err := loadItemDetails(ctx, q, items); err != nil {
		return nil, err
	}
	return items, nil
}

// loadItemDetails fills Images and Tags for each item in place.
func loadItemDetails(ctx context.Context, q Querier, items []model.Item) error {
	if len(items) == 0 {
		return nil
	}

	index := make(map[int64]int, len(items))
	placeholders := make([]string, len(items))
	args := make([]any, len(items))
	for i := range items {
		index[items[i].ID] = i
		placeholders[i] = "?"
		args[i] = items[i].ID
		items[i].Images = []string{}
		items[i].Tags = []string{}
	}
	in := strings.Join(placeholders, ", ")

	rows, err := q.QueryContext(ctx,
		`SELECT item_id, url FROM item_images WHERE item_id IN (`+in+`) ORDER BY item_id, position`, args...,
	)
	if err != nil {
		return fmt.Errorf("loading item images: %w", err)
	}
	for rows.Next() {
		var id int64
		var url string
		if err := rows.Scan(&id, &url); err != nil {
			rows.Close()
			return fmt.Errorf("scanning item image: %w", err)
		}
		items[index[id]].Images = append(items[index[id]].Images, url)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return fmt.Errorf("loading item images: %w", err)
	}

	rows, err = q.QueryContext(ctx,
		`SELECT item_id, tag FROM item_tags WHERE item_id IN (`+in+`) ORDER BY item_id, tag`, args...,
	)
	if err != nil {
		return fmt.Errorf("loading item tags: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var tag string
		if err := rows.Scan(&id, &tag); err != nil {
			return fmt.Errorf("scanning item tag: %w", err)
		}
		items[index[id]].Tags = append(items[index[id]].Tags, tag)
	}
	return rows.Err()
}

// replaceTags stores tags lower-cased and deduplicated.
func replaceTags(ctx context.Context, q Querier, itemID int64, tags []string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM item_tags WHERE item_id = ?`, itemID); err != nil {
		return fmt.Errorf("clearing item tags: %w", err)
	}
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, err := q.ExecContext(ctx,
			`INSERT OR IGNORE INTO item_tags (item_id, tag) VALUES (?, ?)`, itemID, tag,
		); err != nil {
			return fmt.Errorf("adding item tag: %w", err)
		}
	}
	return nil
}
