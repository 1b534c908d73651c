package repository

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/weiawesome/wes-market/internal/domain"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrEmailExists         = errors.New("email already exists")
	ErrUsernameExists      = errors.New("username already exists")
	ErrListingNotFound     = errors.New("listing not found")
	ErrListingExists       = errors.New("listing already exists")
	ErrImageExists         = errors.New("image key already in use")
	ErrStateConflict       = errors.New("listing is not in the expected state")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrTransactionExists   = errors.New("transaction already exists")
	ErrRatingNotFound      = errors.New("rating not found")
	ErrRatingExists        = errors.New("rating already exists")
	ErrFollowNotFound      = errors.New("follow relationship not found")
	ErrAlreadyFollowing    = errors.New("already following")
)

// PurgeFunc deletes stored objects by key. Repositories call it inside the
// database transaction; a non-nil error rolls the transaction back.
type PurgeFunc func(ctx context.Context, keys []string) error

// UserRepository defines persistence operations for users.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Exists(ctx context.Context, id string) (bool, error)
	UpdateRole(ctx context.Context, id string, role domain.Role) error
}

// ListingRepository defines persistence operations for listings and the
// images they own. Listings are returned with images, likes and
// transaction loaded.
type ListingRepository interface {
	Create(ctx context.Context, listing *domain.Listing) error
	Get(ctx context.Context, id int64) (*domain.Listing, error)
	Exists(ctx context.Context, id int64) (bool, error)
	// Update overwrites the scalar fields and, when listing.Images is
	// non-nil, replaces the image set. Keys dropped from the set are passed
	// to purge.
	Update(ctx context.Context, listing *domain.Listing, purge PurgeFunc) error
	// Remove deletes the listing with its images and like edges and passes
	// the image keys to purge. It returns the listing as it was.
	Remove(ctx context.Context, id int64, purge PurgeFunc) (*domain.Listing, error)
	// TransitionState moves the listing from one state to another. It
	// returns ErrStateConflict when the listing is not in state from.
	TransitionState(ctx context.Context, id int64, from, to domain.ListingState) error
	State(ctx context.Context, id int64) (domain.ListingState, error)
	AddImage(ctx context.Context, listingID int64, key string) (*domain.Image, error)
	IDsByOwner(ctx context.Context, ownerID string) ([]int64, error)
	// MaxPrice returns the highest listing price, or zero with no listings.
	MaxPrice(ctx context.Context) (decimal.Decimal, error)
	Search(ctx context.Context, filter domain.SearchFilter) ([]domain.Listing, error)
}

// TransactionRepository defines persistence operations for purchases.
type TransactionRepository interface {
	Create(ctx context.Context, tx *domain.Transaction) error
	Exists(ctx context.Context, buyerID string, listingID int64) (bool, error)
	GetByListing(ctx context.Context, listingID int64) (*domain.Transaction, error)
	ListByBuyer(ctx context.Context, buyerID string) ([]domain.Transaction, error)
}

// RatingRepository defines persistence operations for ratings.
type RatingRepository interface {
	Create(ctx context.Context, rating *domain.Rating) error
	Get(ctx context.Context, raterID, ratedID string) (*domain.Rating, error)
	Exists(ctx context.Context, raterID, ratedID string) (bool, error)
	ExistsFor(ctx context.Context, ratedID string) (bool, error)
	Summary(ctx context.Context, ratedID string) (domain.RatingSummary, error)
}

// FollowRepository defines persistence operations for follow relationships.
type FollowRepository interface {
	Follow(ctx context.Context, followerID, followingID string) error
	Unfollow(ctx context.Context, followerID, followingID string) error
	IsFollowing(ctx context.Context, followerID, followingID string) (bool, error)
	Following(ctx context.Context, userID string) ([]string, error)
	Followers(ctx context.Context, userID string) ([]string, error)
	GetFollowersCount(ctx context.Context, userID string) (int64, error)
}

// LikeRepository defines persistence operations for listing likes.
type LikeRepository interface {
	// Like reports whether a new edge was created.
	Like(ctx context.Context, userID string, listingID int64) (bool, error)
	// Unlike reports whether an edge was removed.
	Unlike(ctx context.Context, userID string, listingID int64) (bool, error)
	IsLiked(ctx context.Context, userID string, listingID int64) (bool, error)
	LikedListings(ctx context.Context, userID string) ([]int64, error)
	LikedBy(ctx context.Context, listingID int64) ([]string, error)
}
