package cache

import (
	"context"
	"errors"
	"time"

	"github.com/weiawesome/wes-market/internal/domain"
)

var ErrCacheMiss = errors.New("cache miss")

// RatingCache caches the rating summary of rated users.
//
// Every Delete bumps the user's version. A reader takes Version before it
// loads the summary and passes it to Set, which drops the write when an
// invalidation happened in between.
type RatingCache interface {
	Get(ctx context.Context, userID string) (*domain.RatingSummary, error)
	Version(ctx context.Context, userID string) (int64, error)
	// Set stores summary only while the version still equals version and
	// reports whether it did.
	Set(ctx context.Context, userID string, version int64, summary domain.RatingSummary, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, userIDs ...string) error
}
