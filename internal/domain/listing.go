package domain

import (
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// UnsavedListingID marks a listing that has not been persisted yet.
const UnsavedListingID int64 = -1

// ListingState is the sale state of a listing.
type ListingState string

const (
	ListingStateOnSale ListingState = "ON_SALE"
	ListingStateOnHold ListingState = "ON_HOLD"
)

// Valid reports whether s is a known state.
func (s ListingState) Valid() bool {
	return s == ListingStateOnSale || s == ListingStateOnHold
}

// Listing is an item offered for sale.
type Listing struct {
	ID          int64           `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	City        string          `json:"city"`
	Price       decimal.Decimal `json:"price"`
	OwnerID     string          `json:"owner_id"`
	State       ListingState    `json:"state"`
	CreatedAt   time.Time       `json:"created_at"`

	// Images is nil when the caller does not want to touch the image set.
	Images      []Image      `json:"images"`
	LikedBy     []string     `json:"liked_by"`
	Transaction *Transaction `json:"transaction,omitempty"`
}

// NewListing returns an unsaved listing.
func NewListing(ownerID, title, description, city string, price decimal.Decimal) *Listing {
	return &Listing{
		ID:          UnsavedListingID,
		Title:       title,
		Description: description,
		City:        city,
		Price:       price,
		OwnerID:     ownerID,
		State:       ListingStateOnSale,
	}
}

// IsSaved reports whether the listing carries a persisted ID.
func (l *Listing) IsSaved() bool {
	return l.ID > 0
}

// OnHold reports whether the listing is currently on hold.
func (l *Listing) OnHold() bool {
	return l.State == ListingStateOnHold
}

// ImageKeys returns the storage keys of the listing's images.
func (l *Listing) ImageKeys() []string {
	keys := make([]string, 0, len(l.Images))
	for _, img := range l.Images {
		keys = append(keys, img.Key)
	}
	return keys
}

// DefaultImageKeyPrefix is the storage namespace of listing images.
const DefaultImageKeyPrefix = "listings/"

// ImageKeyScope returns the key prefix under which listingID's images are
// stored, e.g. "listings/42/".
func ImageKeyScope(prefix string, listingID int64) string {
	if prefix == "" {
		prefix = DefaultImageKeyPrefix
	}
	return prefix + strconv.FormatInt(listingID, 10) + "/"
}

// KeyInScope reports whether key names an object inside scope. Keys that
// only reach the scope through "." or ".." segments are rejected.
func KeyInScope(key, scope string) bool {
	if !strings.HasPrefix(key, scope) || len(key) == len(scope) {
		return false
	}
	return path.Clean(key) == key && !strings.Contains(key, "\\")
}

// Image references a stored object owned by a listing.
type Image struct {
	ID        uint      `json:"id"`
	ListingID int64     `json:"listing_id"`
	Key       string    `json:"key"`
	CreatedAt time.Time `json:"created_at"`
}

// ListingRequest is the body of create and update listing requests.
type ListingRequest struct {
	Title       string          `json:"title" binding:"required,max=200"`
	Description string          `json:"description" binding:"max=5000"`
	City        string          `json:"city" binding:"max=100"`
	Price       decimal.Decimal `json:"price"`
	ImageKeys   *[]string       `json:"image_keys"`
}
