package domain

import "time"

// Follow is a directed edge from FollowerID to FollowingID.
type Follow struct {
	FollowerID  string
	FollowingID string
	CreatedAt   time.Time
}

// Like is an edge from a user to a listing.
type Like struct {
	UserID    string
	ListingID int64
	CreatedAt time.Time
}
