package model

import (
	"fmt"
	"slices"
	"time"
)

// Item is a clothing listing owned by a single user.
type Item struct {
	ID          int64      `json:"id"`
	OwnerID     int64      `json:"owner_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Images      []string   `json:"images"`
	Size        string     `json:"size"`
	Condition   string     `json:"condition"`
	Category    string     `json:"category"`
	Tags        []string   `json:"tags"`
	PointsValue int        `json:"points_value"`
	IsAvailable bool       `json:"is_available"`
	IsApproved  bool       `json:"is_approved"`
	ApprovedBy  *int64     `json:"approved_by,omitempty"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
	Brand       string     `json:"brand,omitempty"`
	Color       string     `json:"color,omitempty"`
	Material    string     `json:"material,omitempty"`
	Location    string     `json:"location,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// Joined fields (not always populated).
	OwnerName string `json:"owner_name,omitempty"`
}

// Item attribute enumerations.
var (
	Sizes      = []string{"XS", "S", "M", "L", "XL", "XXL", "One Size"}
	Conditions = []string{"New", "Like New", "Good", "Fair", "Poor"}
	Categories = []string{"Tops", "Bottoms", "Dresses", "Outerwear", "Shoes", "Accessories", "Other"}
)

// Points value bounds for a listing.
const (
	MinPointsValue = 10
	MaxPointsValue = 500
)

// MaxItemImages is the most photos a listing can carry.
const MaxItemImages = 5

// OwnedBy reports the owning user ID.
func (i *Item) OwnedBy() int64 { return i.OwnerID }

// ValidateItemAttributes checks the closed enumerations and the points range.
func ValidateItemAttributes(size, condition, category string, pointsValue int) error {
	if !slices.Contains(Sizes, size) {
		return fmt.Errorf("invalid size %q", size)
	}
	if !slices.Contains(Conditions, condition) {
		return fmt.Errorf("invalid condition %q", condition)
	}
	if !slices.Contains(Categories, category) {
		return fmt.Errorf("invalid category %q", category)
	}
	if pointsValue < MinPointsValue || pointsValue > MaxPointsValue {
		return fmt.Errorf("points value must be between %d and %d", MinPointsValue, MaxPointsValue)
	}
	return nil
}
