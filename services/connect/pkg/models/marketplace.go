package models

import "time"

// Category is the kind of marketplace posting.
type Category string

const (
	CategoryLost   Category = "Lost"
	CategoryFound  Category = "Found"
	CategoryLend   Category = "Lend"
	CategoryDonate Category = "Donate"
)

// Categories lists every category in display order.
var Categories = []Category{CategoryLost, CategoryFound, CategoryLend, CategoryDonate}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Item is a marketplace posting. Items are immutable once created.
type Item struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    Category  `json:"category"`
	ImageURL    string    `json:"image_url"`
	OwnerID     string    `json:"owner_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// ItemDraft is the user-supplied part of a new item.
type ItemDraft struct {
	Title       string   `json:"title" validate:"required,min=5,max=120"`
	Description string   `json:"description" validate:"required,min=10,max=2000"`
	Category    Category `json:"category" validate:"required,category"`
	ImageURL    string   `json:"image_url" validate:"omitempty,url"`
}

// ClaimStatus represents the lifecycle state of a claim request.
type ClaimStatus string

const (
	ClaimStatusPending  ClaimStatus = "Pending"
	ClaimStatusApproved ClaimStatus = "Approved"
	ClaimStatusRejected ClaimStatus = "Rejected"
)

// Terminal reports whether no further transition is allowed.
func (s ClaimStatus) Terminal() bool {
	return s == ClaimStatusApproved || s == ClaimStatusRejected
}

// ClaimRequest is one user's request to claim another user's item.
// ItemTitle is a snapshot taken at creation and is never refreshed.
type ClaimRequest struct {
	ID          string      `json:"id"`
	ItemID      string      `json:"item_id"`
	ItemTitle   string      `json:"item_title"`
	RequesterID string      `json:"requester_id"`
	OwnerID     string      `json:"owner_id"`
	Status      ClaimStatus `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
}
