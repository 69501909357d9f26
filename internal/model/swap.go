package model

import "time"

// Swap is a request by one user for another user's item, paid either with
// an item of their own or with points.
type Swap struct {
	ID                 int64      `json:"id"`
	RequesterID        int64      `json:"requester_id"`
	RequestedItemID    int64      `json:"requested_item_id"`
	OfferedItemID      *int64     `json:"offered_item_id,omitempty"`
	Type               string     `json:"type"`
	PointsOffered      int        `json:"points_offered"`
	Status             string     `json:"status"`
	Message            string     `json:"message,omitempty"`
	ResponseMessage    string     `json:"response_message,omitempty"`
	RespondedAt        *time.Time `json:"responded_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	CancelledBy        *int64     `json:"cancelled_by,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`

	// Joined fields (not always populated).
	RequesterName      string `json:"requester_name,omitempty"`
	RequestedItemTitle string `json:"requested_item_title,omitempty"`
	OfferedItemTitle   string `json:"offered_item_title,omitempty"`
	OwnerID            int64  `json:"owner_id,omitempty"`
	OwnerName          string `json:"owner_name,omitempty"`
}

// Swap types.
const (
	SwapTypeSwap   = "swap"
	SwapTypePoints = "points"
)

// Swap statuses.
const (
	SwapStatusPending   = "pending"
	SwapStatusAccepted  = "accepted"
	SwapStatusRejected  = "rejected"
	SwapStatusCompleted = "completed"
	SwapStatusCancelled = "cancelled"
)

// HistoryStatuses are the statuses that appear in a user's swap history.
var HistoryStatuses = []string{SwapStatusAccepted, SwapStatusCompleted, SwapStatusCancelled}

// IsPending reports whether the swap can still change status.
func (s *Swap) IsPending() bool { return s.Status == SwapStatusPending }
