// Package swap implements the swap request workflow: creating requests,
// owner responses with atomic settlement, cancellation and history.
package swap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rewear/rewear/internal/clock"
	"github.com/rewear/rewear/internal/metrics"
	"github.com/rewear/rewear/internal/model"
	"github.com/rewear/rewear/internal/policy"
	"github.com/rewear/rewear/internal/store"
)

// Engine runs swap operations against the database.
type Engine struct {
	DB      *sql.DB
	Clock   clock.Clock
	Metrics *metrics.Swaps
}

// New returns an Engine using the real clock.
func New(db *sql.DB, m *metrics.Swaps) *Engine {
	return &Engine{DB: db, Clock: clock.Real(), Metrics: m}
}

// Request describes a new swap request.
type Request struct {
	RequestedItemID int64
	OfferedItemID   *int64
	Type            string
	PointsOffered   int
	Message         string
}

// Response decisions.
const (
	DecisionAccept = model.SwapStatusAccepted
	DecisionReject = model.SwapStatusRejected
)

// CreateRequest validates and stores a pending swap request from requester.
// Checks run in a fixed order so the first failing rule decides the error.
func (e *Engine) CreateRequest(ctx context.Context, requester *model.User, req Request) (*model.Swap, error) {
	s, err := e.createRequest(ctx, requester, req)
	if err != nil {
		e.Metrics.Failed("create", reason(err))
		return nil, err
	}
	e.Metrics.Created()
	slog.Info("swap requested", "swap", s.ID, "requester", s.RequesterID,
		"item", s.RequestedItemID, "type", s.Type)
	return s, nil
}

func (e *Engine) createRequest(ctx context.Context, requester *model.User, req Request) (*model.Swap, error) {
	if requester == nil {
		return nil, fmt.Errorf("%w: no requester", store.ErrPolicy)
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	item, err := store.GetItem(ctx, e.DB, req.RequestedItemID)
	if err != nil {
		return nil, err
	}
	if item == nil || !item.IsAvailable || !item.IsApproved {
		return nil, fmt.Errorf("%w: item not available", store.ErrNotFound)
	}

	if policy.IsOwner(item, requester) {
		return nil, fmt.Errorf("%w: cannot request your own item", store.ErrPolicy)
	}

	switch req.Type {
	case model.SwapTypePoints:
		if requester.Points < req.PointsOffered {
			return nil, fmt.Errorf("%w: have %d, offered %d", store.ErrInsufficientBalance,
				requester.Points, req.PointsOffered)
		}
		// An offered item is meaningless for a points swap.
		req.OfferedItemID = nil
	case model.SwapTypeSwap:
		offered, err := store.GetItem(ctx, e.DB, *req.OfferedItemID)
		if err != nil {
			return nil, err
		}
		if offered == nil || !policy.IsOwner(offered, requester) {
			return nil, fmt.Errorf("%w: offered item must be your own", store.ErrPolicy)
		}
		req.PointsOffered = 0
	}

	id, err := store.InsertSwap(ctx, e.DB, &model.Swap{
		RequesterID:     requester.ID,
		RequestedItemID: req.RequestedItemID,
		OfferedItemID:   req.OfferedItemID,
		Type:            req.Type,
		PointsOffered:   req.PointsOffered,
		Message:         req.Message,
	}, e.Clock.Now())
	if err != nil {
		return nil, err
	}

	return store.GetSwap(ctx, e.DB, id)
}

func validateRequest(req Request) error {
	if req.RequestedItemID <= 0 {
		return fmt.Errorf("%w: requested item is required", store.ErrValidation)
	}
	switch req.Type {
	case model.SwapTypeSwap:
		if req.OfferedItemID == nil || *req.OfferedItemID <= 0 {
			return fmt.Errorf("%w: offered item is required for a swap", store.ErrValidation)
		}
	case model.SwapTypePoints:
		if req.PointsOffered <= 0 {
			return fmt.Errorf("%w: points offered must be positive", store.ErrValidation)
		}
	default:
		return fmt.Errorf("%w: type must be %q or %q", store.ErrValidation,
			model.SwapTypeSwap, model.SwapTypePoints)
	}
	return nil
}

// Respond records the requested item owner's decision. Accepting settles the
// swap in a single transaction: the requested item (and for item swaps the
// offered item) is marked unavailable, points move for points swaps, and the
// status is written. Any failing step rolls back all of them.
func (e *Engine) Respond(ctx context.Context, swapID int64, responder *model.User, decision, message string) (*model.Swap, error) {
	s, err := e.respond(ctx, swapID, responder, decision, message)
	if err != nil {
		e.Metrics.Failed("respond", reason(err))
		return nil, err
	}

	points := 0
	if s.Status == model.SwapStatusAccepted && s.Type == model.SwapTypePoints {
		points = s.PointsOffered
	}
	e.Metrics.Responded(s.Status, points)
	slog.Info("swap answered", "swap", s.ID, "status", s.Status, "owner", s.OwnerID,
		"requester", s.RequesterID, "points", points)
	return s, nil
}

func (e *Engine) respond(ctx context.Context, swapID int64, responder *model.User, decision, message string) (*model.Swap, error) {
	if decision != DecisionAccept && decision != DecisionReject {
		return nil, fmt.Errorf("%w: status must be %q or %q", store.ErrValidation,
			DecisionAccept, DecisionReject)
	}

	s, err := store.GetSwap(ctx, e.DB, swapID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("%w: swap %d", store.ErrNotFound, swapID)
	}
	if !policy.CanRespond(s, responder) {
		return nil, fmt.Errorf("%w: only the item owner can respond", store.ErrPolicy)
	}
	if !s.IsPending() {
		return nil, fmt.Errorf("%w: swap is %s", store.ErrState, s.Status)
	}

	now := e.Clock.Now()
	if decision == DecisionReject {
		ok, err := store.RespondSwap(ctx, e.DB, s.ID, DecisionReject, message, now)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: swap is no longer pending", store.ErrState)
		}
		return store.GetSwap(ctx, e.DB, s.ID)
	}

	if err := e.settle(ctx, s, message); err != nil {
		return nil, err
	}
	return store.GetSwap(ctx, e.DB, s.ID)
}

// settle applies an acceptance atomically. Only tx may be used until commit:
// an in-memory database has a single connection.
func (e *Engine) settle(ctx context.Context, s *model.Swap, message string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning settlement: %w", err)
	}
	defer tx.Rollback()

	ok, err := store.MarkItemUnavailable(ctx, tx, s.RequestedItemID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: requested item is no longer available", store.ErrConflict)
	}

	switch s.Type {
	case model.SwapTypeSwap:
		if s.OfferedItemID == nil {
			return fmt.Errorf("%w: swap has no offered item", store.ErrState)
		}
		ok, err := store.MarkItemUnavailable(ctx, tx, *s.OfferedItemID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: offered item is no longer available", store.ErrConflict)
		}
	case model.SwapTypePoints:
		ok, err := store.DebitPoints(ctx, tx, s.RequesterID, s.PointsOffered)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: requester can no longer cover %d points",
				store.ErrInsufficientBalance, s.PointsOffered)
		}
		if err := store.CreditPoints(ctx, tx, s.OwnerID, s.PointsOffered); err != nil {
			return err
		}
	}

	ok, err = store.RespondSwap(ctx, tx, s.ID, DecisionAccept, message, e.Clock.Now())
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: swap is no longer pending", store.ErrState)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing settlement: %w", err)
	}
	return nil
}

// Cancel withdraws a pending request. Only its requester may cancel it.
func (e *Engine) Cancel(ctx context.Context, swapID int64, requester *model.User, cancelReason string) (*model.Swap, error) {
	s, err := e.cancel(ctx, swapID, requester, cancelReason)
	if err != nil {
		e.Metrics.Failed("cancel", reason(err))
		return nil, err
	}
	e.Metrics.Cancelled()
	slog.Info("swap cancelled", "swap", s.ID, "requester", s.RequesterID)
	return s, nil
}

func (e *Engine) cancel(ctx context.Context, swapID int64, requester *model.User, cancelReason string) (*model.Swap, error) {
	s, err := store.GetSwap(ctx, e.DB, swapID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("%w: swap %d", store.ErrNotFound, swapID)
	}
	if !policy.IsRequester(s, requester) {
		return nil, fmt.Errorf("%w: only the requester can cancel", store.ErrPolicy)
	}
	if !s.IsPending() {
		return nil, fmt.Errorf("%w: swap is %s", store.ErrState, s.Status)
	}

	ok, err := store.CancelSwap(ctx, e.DB, s.ID, requester.ID, cancelReason, e.Clock.Now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: swap is no longer pending", store.ErrState)
	}
	return store.GetSwap(ctx, e.DB, s.ID)
}

// Get returns a swap visible to user.
func (e *Engine) Get(ctx context.Context, swapID int64, user *model.User) (*model.Swap, error) {
	s, err := store.GetSwap(ctx, e.DB, swapID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("%w: swap %d", store.ErrNotFound, swapID)
	}
	if !policy.CanViewSwap(s, user) {
		return nil, fmt.Errorf("%w: not a party to this swap", store.ErrPolicy)
	}
	return s, nil
}

// ListHistory returns the settled swaps user took part in, either as
// requester or as owner of the requested item.
func (e *Engine) ListHistory(ctx context.Context, user *model.User) ([]model.Swap, error) {
	return store.ListSwapHistory(ctx, e.DB, user.ID)
}

// ListMyRequests returns every swap user has requested.
func (e *Engine) ListMyRequests(ctx context.Context, user *model.User) ([]model.Swap, error) {
	return store.ListSwapsByRequester(ctx, e.DB, user.ID)
}

// ListIncoming returns pending requests for user's items.
func (e *Engine) ListIncoming(ctx context.Context, user *model.User) ([]model.Swap, error) {
	return store.ListIncomingSwaps(ctx, e.DB, user.ID)
}

// reason labels an error for metrics.
func reason(err error) string {
	switch {
	case errors.Is(err, store.ErrValidation):
		return "validation"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	case errors.Is(err, store.ErrPolicy):
		return "policy"
	case errors.Is(err, store.ErrState):
		return "state"
	case errors.Is(err, store.ErrConflict):
		return "conflict"
	case errors.Is(err, store.ErrInsufficientBalance):
		return "insufficient_balance"
	default:
		return "internal"
	}
}
