package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rewear/rewear/internal/model"
)

const swapSelect = `SELECT s.id, s.requester_id, s.requested_item_id, s.offered_item_id, s.type,
	s.points_offered, s.status, s.message, s.response_message, s.responded_at, s.completed_at,
	s.cancelled_by, s.cancellation_reason, s.created_at, s.updated_at,
	ru.name, ri.title, COALESCE(oi.title, ''), ri.owner_id, ou.name
FROM swaps s
JOIN users ru ON ru.id = s.requester_id
JOIN items ri ON ri.id = s.requested_item_id
JOIN users ou ON ou.id = ri.owner_id
LEFT JOIN items oi ON oi.id = s.offered_item_id`

func scanSwap(row interface{ Scan(...any) error }, s *model.Swap) error {
	return row.Scan(&s.ID, &s.RequesterID, &s.RequestedItemID, &s.OfferedItemID, &s.Type,
		&s.PointsOffered, &s.Status, &s.Message, &s.ResponseMessage, &s.RespondedAt, &s.CompletedAt,
		&s.CancelledBy, &s.CancellationReason, &s.CreatedAt, &s.UpdatedAt,
		&s.RequesterName, &s.RequestedItemTitle, &s.OfferedItemTitle, &s.OwnerID, &s.OwnerName)
}

// InsertSwap stores a new pending swap request stamped with now and returns
// its ID. Returns ErrConflict if the requester already has a pending request
// for the same item.
func InsertSwap(ctx context.Context, q Querier, s *model.Swap, now time.Time) (int64, error) {
	result, err := q.ExecContext(ctx,
		`INSERT INTO swaps (requester_id, requested_item_id, offered_item_id, type, points_offered,
		                    status, message, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 'pending', ?, ?, ?)`,
		s.RequesterID, s.RequestedItemID, s.OfferedItemID, s.Type, s.PointsOffered,
		s.Message, now, now,
	)
	if isUniqueViolation(err) {
		return 0, fmt.Errorf("%w: a pending request for this item already exists", ErrConflict)
	}
	if err != nil {
		return 0, fmt.Errorf("creating swap: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting swap id: %w", err)
	}
	return id, nil
}

// GetSwap returns a swap by ID with its display fields.
func GetSwap(ctx context.Context, q Querier, id int64) (*model.Swap, error) {
	s := &model.Swap{}
	err := scanSwap(q.QueryRowContext(ctx, swapSelect+` WHERE s.id = ?`, id), s)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting swap: %w", err)
	}
	return s, nil
}

// RespondSwap moves a pending swap to status (accepted or rejected) and
// stamps the response. Reports false if the swap was no longer pending.
func RespondSwap(ctx context.Context, q Querier, id int64, status, message string, at time.Time) (bool, error) {
	res, err := q.ExecContext(ctx,
		`UPDATE swaps SET status = ?, response_message = ?, responded_at = ?, updated_at = ?
		 WHERE id = ? AND status = 'pending'`,
		status, message, at, at, id,
	)
	if err != nil {
		return false, fmt.Errorf("updating swap status: %w", err)
	}
	return affectedOne(res)
}

// CancelSwap cancels a pending swap on behalf of by. Reports false if the
// swap was no longer pending.
func CancelSwap(ctx context.Context, q Querier, id, by int64, reason string, at time.Time) (bool, error) {
	res, err := q.ExecContext(ctx,
		`UPDATE swaps SET status = 'cancelled', cancelled_by = ?, cancellation_reason = ?, updated_at = ?
		 WHERE id = ? AND status = 'pending'`,
		by, reason, at, id,
	)
	if err != nil {
		return false, fmt.Errorf("cancelling swap: %w", err)
	}
	return affectedOne(res)
}

// ListSwapsByRequester returns every swap requested by a user, newest first.
func ListSwapsByRequester(ctx context.Context, q Querier, requesterID int64) ([]model.Swap, error) {
	swaps, err := querySwaps(ctx, q,
		swapSelect+` WHERE s.requester_id = ? ORDER BY s.created_at DESC, s.id DESC`, requesterID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing requested swaps: %w", err)
	}
	return swaps, nil
}

// ListIncomingSwaps returns pending swaps on items owned by ownerID, newest first.
func ListIncomingSwaps(ctx context.Context, q Querier, ownerID int64) ([]model.Swap, error) {
	swaps, err := querySwaps(ctx, q,
		swapSelect+` WHERE ri.owner_id = ? AND s.status = 'pending'
		 ORDER BY s.created_at DESC, s.id DESC`, ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing incoming swaps: %w", err)
	}
	return swaps, nil
}

// ListSwapHistory returns settled swaps where the user is either the
// requester or the owner of the requested item, most recently updated first.
func ListSwapHistory(ctx context.Context, q Querier, userID int64) ([]model.Swap, error) {
	placeholders := make([]string, len(model.HistoryStatuses))
	args := []any{userID, userID}
	for i, st := range model.HistoryStatuses {
		placeholders[i] = "?"
		args = append(args, st)
	}

	swaps, err := querySwaps(ctx, q,
		swapSelect+` WHERE (s.requester_id = ? OR ri.owner_id = ?)
		   AND s.status IN (`+strings.Join(placeholders, ", ")+`)
		 ORDER BY s.updated_at DESC, s.id DESC`, args...,
	)
	if err != nil {
		return nil, fmt.Errorf("listing swap history: %w", err)
	}
	return swaps, nil
}

func querySwaps(ctx context.Context, q Querier, query string, args ...any) ([]model.Swap, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	swaps := []model.Swap{}
	for rows.Next() {
		var s model.Swap
		if err := scanSwap(rows, &s); err != nil {
			return nil, fmt.Errorf("scanning swap: %w", err)
		}
		swaps = append(swaps, s)
	}
	return swaps, rows.Err()
}
