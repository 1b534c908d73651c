package pubsub

import (
	"fmt"
	"strconv"
)

// Channels follow "market:{entity}:{key}". The Kafka driver maps the entity
// to topic "market-{entity}" and uses the key as the message key.
const (
	channelPrefix = "market"

	EntityListing     = "listing"
	EntityTransaction = "transaction"
	EntityRating      = "rating"
	EntityUser        = "user"
)

// Entities lists every entity that has a channel family.
var Entities = []string{EntityListing, EntityTransaction, EntityRating, EntityUser}

// Event types.
const (
	EventListingCreated      = "listing.created"
	EventListingUpdated      = "listing.updated"
	EventListingRemoved      = "listing.removed"
	EventListingStateChanged = "listing.state_changed"
	EventListingLiked        = "listing.liked"
	EventListingUnliked      = "listing.unliked"
	EventTransactionCreated  = "transaction.created"
	EventRatingCreated       = "rating.created"
	EventUserFollowed        = "user.followed"
	EventUserUnfollowed      = "user.unfollowed"
	EventUserRoleChanged     = "user.role_changed"
)

// Channel returns the channel name for one entity instance.
func Channel(entity, key string) string {
	return fmt.Sprintf("%s:%s:%s", channelPrefix, entity, key)
}

// ListingChannel returns the channel for a listing id.
func ListingChannel(listingID int64) string {
	return Channel(EntityListing, strconv.FormatInt(listingID, 10))
}

// Pattern returns the wildcard pattern matching every channel of an entity.
func Pattern(entity string) string {
	return Channel(entity, "*")
}

// ListingPayload is carried by listing.* events.
type ListingPayload struct {
	ListingID int64    `json:"listing_id"`
	OwnerID   string   `json:"owner_id,omitempty"`
	UserID    string   `json:"user_id,omitempty"`
	State     string   `json:"state,omitempty"`
	ImageKeys []string `json:"image_keys,omitempty"`
}

// TransactionPayload is carried by transaction.created.
type TransactionPayload struct {
	BuyerID   string `json:"buyer_id"`
	ListingID int64  `json:"listing_id"`
}

// RatingPayload is carried by rating.created.
type RatingPayload struct {
	RaterID string `json:"rater_id"`
	RatedID string `json:"rated_id"`
	Value   int    `json:"value"`
}

// UserPayload is carried by user.* events.
type UserPayload struct {
	UserID   string `json:"user_id"`
	TargetID string `json:"target_id,omitempty"`
	Role     string `json:"role,omitempty"`
}
