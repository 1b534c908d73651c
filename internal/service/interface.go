package service

import (
	"context"
	"errors"
	"io"

	"github.com/weiawesome/wes-market/internal/domain"
	"github.com/weiawesome/wes-market/pkg/pubsub"
)

var (
	ErrNilArgument = errors.New("argument must not be nil")

	ErrUserNotFound        = errors.New("user not found")
	ErrListingNotFound     = errors.New("listing not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrRatingNotFound      = errors.New("rating not found")
	ErrNoRating            = errors.New("user has no ratings")

	ErrListingAlreadyExists     = errors.New("listing already exists")
	ErrInvalidListing           = errors.New("invalid listing")
	ErrImageInUse               = errors.New("image key already in use")
	ErrAlreadyOnHold            = errors.New("listing is already on hold")
	ErrAlreadyOnSale            = errors.New("listing is already on sale")
	ErrTransactionAlreadyExists = errors.New("listing already has a transaction")

	ErrRatingTooLow  = errors.New("rating is below the minimum")
	ErrRatingTooHigh = errors.New("rating is above the maximum")
	ErrAlreadyRated  = errors.New("user already rated")
	ErrSelfRating    = errors.New("cannot rate yourself")

	ErrAlreadyFollowing = errors.New("already following")
	ErrNotFollowing     = errors.New("not following")
	ErrSelfFollow       = errors.New("cannot follow yourself")

	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailExists        = errors.New("email already exists")
	ErrUsernameExists     = errors.New("username already exists")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

// ListingService owns the listing lifecycle.
type ListingService interface {
	Create(ctx context.Context, listing *domain.Listing) (*domain.Listing, error)
	Update(ctx context.Context, listing *domain.Listing) (*domain.Listing, error)
	Remove(ctx context.Context, listingID int64) error
	SetOnHold(ctx context.Context, listingID int64) error
	SetOnSale(ctx context.Context, listingID int64) error
	AreOnHold(ctx context.Context, listingID int64) (bool, error)
	Get(ctx context.Context, listingID int64) (*domain.Listing, error)
	AddImage(ctx context.Context, listingID int64, key string) (*domain.Image, error)
	// UploadImage processes and stores the image, then attaches it.
	UploadImage(ctx context.Context, listingID int64, r io.Reader) (*domain.Image, error)
}

// TransactionService records purchases, one per listing.
type TransactionService interface {
	Create(ctx context.Context, buyerID string, listingID int64) (*domain.Transaction, error)
	UserHasBoughtListing(ctx context.Context, buyerID string, listingID int64) (bool, error)
	PurchasesOf(ctx context.Context, buyerID string) ([]domain.Transaction, error)
}

// ReputationService covers ratings, follows, likes and roles.
type ReputationService interface {
	Rate(ctx context.Context, raterID, ratedID string, value int) error
	AverageRating(ctx context.Context, userID string) (float64, error)
	ExistsRatingFor(ctx context.Context, userID string) (bool, error)
	ExistsRatingFromTo(ctx context.Context, raterID, ratedID string) (bool, error)
	GivenRating(ctx context.Context, raterID, ratedID string) (int, error)

	Follow(ctx context.Context, userID, targetID string) error
	Unfollow(ctx context.Context, userID, targetID string) error
	IsFollowing(ctx context.Context, userID, targetID string) (bool, error)
	Following(ctx context.Context, userID string) ([]string, error)
	Followers(ctx context.Context, userID string) ([]string, error)
	FollowersCount(ctx context.Context, userID string) (int64, error)

	Like(ctx context.Context, userID string, listingID int64) error
	Unlike(ctx context.Context, userID string, listingID int64) error
	LikedListings(ctx context.Context, userID string) ([]int64, error)

	TogglePremiumRole(ctx context.Context, userID string) (domain.Role, error)
	UserGraph(ctx context.Context, userID string) (*domain.UserGraph, error)

	// HandleEvent keeps derived caches in step with the event bus.
	HandleEvent(ctx context.Context, event *pubsub.Event) error
}

// SearchService combines optional criteria into one listing query.
type SearchService interface {
	Search(ctx context.Context, criteria domain.SearchCriteria) ([]domain.Listing, error)
}

// AccountService handles registration and authentication.
type AccountService interface {
	Register(ctx context.Context, req *domain.RegisterRequest) (*domain.AuthResponse, error)
	Login(ctx context.Context, req *domain.LoginRequest) (*domain.AuthResponse, error)
	RefreshToken(ctx context.Context, req *domain.RefreshTokenRequest) (*domain.AuthResponse, error)
	Logout(ctx context.Context, userID string) error
	GetUser(ctx context.Context, userID string) (*domain.UserResponse, error)
}

// IDGenerator issues listing IDs.
type IDGenerator interface {
	Next() (int64, error)
}

// ImageProcessor normalizes an uploaded image and stores it under a key
// scoped to the listing.
type ImageProcessor interface {
	Process(ctx context.Context, listingID int64, r io.Reader) (string, error)
	// KeyScope is the key prefix of listingID's images. Keys outside it
	// are never attached to the listing.
	KeyScope(listingID int64) string
}
