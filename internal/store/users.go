package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rewear/rewear/internal/model"
)

const userColumns = `id, name, email, password_hash, avatar, points, role, is_banned,
	location, bio, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }, u *model.User) error {
	return row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Avatar, &u.Points, &u.Role,
		&u.IsBanned, &u.Location, &u.Bio, &u.CreatedAt, &u.UpdatedAt)
}

// CreateUser creates a new user with the starting points balance.
// Returns ErrConflict if the email is already registered.
func CreateUser(ctx context.Context, q Querier, name, email, passwordHash, role string) (*model.User, error) {
	result, err := q.ExecContext(ctx,
		`INSERT INTO users (name, email, password_hash, role, points) VALUES (?, ?, ?, ?, ?)`,
		name, email, passwordHash, role, model.StartingPoints,
	)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("%w: email already registered", ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting user id: %w", err)
	}

	return GetUser(ctx, q, id)
}

// GetUser returns a user by ID.
func GetUser(ctx context.Context, q Querier, id int64) (*model.User, error) {
	u := &model.User{}
	err := scanUser(q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id,
	), u)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}

// GetUserByEmail returns a user by (normalized) email address.
func GetUserByEmail(ctx context.Context, q Querier, email string) (*model.User, error) {
	u := &model.User{}
	err := scanUser(q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email,
	), u)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user by email: %w", err)
	}
	return u, nil
}

// ListUsers returns a page of users, newest first, optionally filtered by a
// case-insensitive substring of name or email. Also returns the total count.
func ListUsers(ctx context.Context, q Querier, search string, page Page) ([]model.User, int, error) {
	where := `WHERE 1=1`
	var args []any
	if search != "" {
		where += ` AND (lower(name) LIKE ? ESCAPE '\' OR lower(email) LIKE ? ESCAPE '\')`
		pattern := likePattern(search)
		args = append(args, pattern, pattern)
	}

	var total int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM users `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting users: %w", err)
	}

	rows, err := q.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users `+where+` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		append(args, page.Limit, page.Offset())...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		if err := scanUser(rows, &u); err != nil {
			return nil, 0, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}

// UpdateProfile updates a user's editable profile fields.
func UpdateProfile(ctx context.Context, q Querier, id int64, name, bio, location string) error {
	res, err := q.ExecContext(ctx,
		`UPDATE users SET name = ?, bio = ?, location = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		name, bio, location, id,
	)
	if err != nil {
		return fmt.Errorf("updating profile: %w", err)
	}
	return requireRow(res, "user")
}

// SetUserBanned sets or clears a user's ban flag.
func SetUserBanned(ctx context.Context, q Querier, id int64, banned bool) error {
	res, err := q.ExecContext(ctx,
		`UPDATE users SET is_banned = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		banned, id,
	)
	if err != nil {
		return fmt.Errorf("updating ban flag: %w", err)
	}
	return requireRow(res, "user")
}

// SetUserRole changes a user's role.
func SetUserRole(ctx context.Context, q Querier, id int64, role string) error {
	res, err := q.ExecContext(ctx,
		`UPDATE users SET role = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		role, id,
	)
	if err != nil {
		return fmt.Errorf("updating role: %w", err)
	}
	return requireRow(res, "user")
}

// DebitPoints subtracts amount from a user's balance only if the balance
// covers it. Reports whether the debit was applied.
func DebitPoints(ctx context.Context, q Querier, id int64, amount int) (bool, error) {
	res, err := q.ExecContext(ctx,
		`UPDATE users SET points = points - ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND points >= ?`,
		amount, id, amount,
	)
	if err != nil {
		return false, fmt.Errorf("debiting points: %w", err)
	}
	return affectedOne(res)
}

// CreditPoints adds amount to a user's balance.
func CreditPoints(ctx context.Context, q Querier, id int64, amount int) error {
	res, err := q.ExecContext(ctx,
		`UPDATE users SET points = points + ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		amount, id,
	)
	if err != nil {
		return fmt.Errorf("crediting points: %w", err)
	}
	return requireRow(res, "user")
}

// UserStats holds per-user counters for the admin user detail view.
type UserStats struct {
	TotalItems int `json:"total_items"`
	TotalSwaps int `json:"total_swaps"`
}

// GetUserStats counts a user's items and requested swaps.
func GetUserStats(ctx context.Context, q Querier, id int64) (*UserStats, error) {
	s := &UserStats{}
	err := q.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM items WHERE owner_id = ?),
		        (SELECT COUNT(*) FROM swaps WHERE requester_id = ?)`, id, id,
	).Scan(&s.TotalItems, &s.TotalSwaps)
	if err != nil {
		return nil, fmt.Errorf("getting user stats: %w", err)
	}
	return s, nil
}

// Dashboard summarizes a user's own activity.
type Dashboard struct {
	TotalItems          int `json:"total_items"`
	PendingRequests     int `json:"pending_requests"`
	PendingItemRequests int `json:"pending_item_requests"`
	Points              int `json:"points"`
}

// GetDashboard returns a user's item count, outgoing and incoming pending
// swap counts, and current balance.
func GetDashboard(ctx context.Context, q Querier, id int64) (*Dashboard, error) {
	d := &Dashboard{}
	err := q.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM items WHERE owner_id = ?),
		        (SELECT COUNT(*) FROM swaps WHERE requester_id = ? AND status = 'pending'),
		        (SELECT COUNT(*) FROM swaps s JOIN items i ON i.id = s.requested_item_id
		          WHERE i.owner_id = ? AND s.status = 'pending'),
		        points
		 FROM users WHERE id = ?`, id, id, id, id,
	).Scan(&d.TotalItems, &d.PendingRequests, &d.PendingItemRequests, &d.Points)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting dashboard: %w", err)
	}
	return d, nil
}

// requireRow turns a zero-row update into ErrNotFound.
func requireRow(res sql.Result, what string) error {
	ok, err := affectedOne(res)
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	return nil
}
