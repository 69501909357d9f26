package api

import (
	"context"
	"net/http"

	"github.com/rewear/rewear/internal/model"
	"github.com/rewear/rewear/internal/swap"
)

// SwapsHandler exposes the swap workflow.
type SwapsHandler struct {
	Engine *swap.Engine
}

type createSwapRequest struct {
	RequestedItemID int64  `json:"requested_item_id"`
	OfferedItemID   *int64 `json:"offered_item_id"`
	Type            string `json:"type"`
	PointsOffered   int    `json:"points_offered"`
	Message         string `json:"message"`
}

type respondRequest struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// Create handles POST /api/swaps.
func (h *SwapsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSwapRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s, err := h.Engine.CreateRequest(r.Context(), CurrentUser(r.Context()), swap.Request{
		RequestedItemID: req.RequestedItemID,
		OfferedItemID:   req.OfferedItemID,
		Type:            req.Type,
		PointsOffered:   req.PointsOffered,
		Message:         req.Message,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, s)
}

// MyRequests handles GET /api/swaps/my-requests.
func (h *SwapsHandler) MyRequests(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.Engine.ListMyRequests)
}

// Incoming handles GET /api/swaps/my-items-requests.
func (h *SwapsHandler) Incoming(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.Engine.ListIncoming)
}

// History handles GET /api/swaps/history.
func (h *SwapsHandler) History(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.Engine.ListHistory)
}

func (h *SwapsHandler) list(w http.ResponseWriter, r *http.Request,
	fn func(context.Context, *model.User) ([]model.Swap, error)) {
	swaps, err := fn(r.Context(), CurrentUser(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, swaps)
}

// Get handles GET /api/swaps/{id}.
func (h *SwapsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	s, err := h.Engine.Get(r.Context(), id, CurrentUser(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, s)
}

// Respond handles PATCH /api/swaps/{id}/respond.
func (h *SwapsHandler) Respond(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req respondRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s, err := h.Engine.Respond(r.Context(), id, CurrentUser(r.Context()), req.Status, req.Message)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, s)
}

// Cancel handles PATCH /api/swaps/{id}/cancel. The body is optional.
func (h *SwapsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req cancelRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s, err := h.Engine.Cancel(r.Context(), id, CurrentUser(r.Context()), req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, s)
}
