package domain

import "time"

// Rating bounds, inclusive.
const (
	MinRating = 1
	MaxRating = 5
)

// Rating is the score a rater gave a rated user. A pair is rated at most once.
type Rating struct {
	RaterID   string    `json:"rater_id"`
	RatedID   string    `json:"rated_id"`
	Value     int       `json:"value"`
	CreatedAt time.Time `json:"created_at"`
}

// RatingSummary aggregates the ratings received by a user.
type RatingSummary struct {
	Average float64 `json:"average"`
	Count   int64   `json:"count"`
}

// ClampRating forces v into [MinRating, MaxRating].
func ClampRating(v int) int {
	if v < MinRating {
		return MinRating
	}
	if v > MaxRating {
		return MaxRating
	}
	return v
}

// RateRequest is the body of a rating request.
type RateRequest struct {
	Value int `json:"value"`
}
