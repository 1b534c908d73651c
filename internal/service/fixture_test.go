package service

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"gorm.io/gorm"

	"github.com/weiawesome/wes-market/internal/domain"
	"github.com/weiawesome/wes-market/internal/repository"
	"github.com/weiawesome/wes-market/internal/testutil"
	"github.com/weiawesome/wes-market/pkg/pubsub"
)

// repos bundles gorm repositories over one in-memory database.
type repos struct {
	db           *gorm.DB
	users        *repository.GormUserRepository
	listings     *repository.GormListingRepository
	transactions *repository.GormTransactionRepository
	ratings      *repository.GormRatingRepository
	follows      *repository.GormFollowRepository
	likes        *repository.GormLikeRepository
}

func newRepos(t *testing.T) *repos {
	t.Helper()
	db := testutil.NewDB(t)
	return &repos{
		db:           db,
		users:        repository.NewGormUserRepository(db),
		listings:     repository.NewGormListingRepository(db),
		transactions: repository.NewGormTransactionRepository(db),
		ratings:      repository.NewGormRatingRepository(db),
		follows:      repository.NewGormFollowRepository(db),
		likes:        repository.NewGormLikeRepository(db),
	}
}

// seqIDs hands out 1, 2, 3, ...
type seqIDs struct{ n atomic.Int64 }

func (s *seqIDs) Next() (int64, error) { return s.n.Add(1), nil }

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, channel string, event *pubsub.Event) error {
	args := m.Called(ctx, channel, event)
	return args.Error(0)
}

// eventOfType matches an *pubsub.Event argument by type.
func eventOfType(eventType string) interface{} {
	return mock.MatchedBy(func(e *pubsub.Event) bool { return e != nil && e.Type == eventType })
}

type mockStorage struct {
	mock.Mock
}

func (m *mockStorage) Write(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	args := m.Called(ctx, key, r, size, contentType)
	return args.Error(0)
}

func (m *mockStorage) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *mockStorage) Exists(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *mockStorage) GetURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	args := m.Called(ctx, key, expires)
	return args.String(0), args.Error(1)
}

type mockRatingCache struct {
	mock.Mock
}

func (m *mockRatingCache) Get(ctx context.Context, userID string) (*domain.RatingSummary, error) {
	args := m.Called(ctx, userID)
	summary, _ := args.Get(0).(*domain.RatingSummary)
	return summary, args.Error(1)
}

func (m *mockRatingCache) Version(ctx context.Context, userID string) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockRatingCache) Set(ctx context.Context, userID string, version int64, summary domain.RatingSummary, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, userID, version, summary, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *mockRatingCache) Delete(ctx context.Context, userIDs ...string) error {
	args := m.Called(ctx, userIDs)
	return args.Error(0)
}

type mockFollowStore struct {
	mock.Mock
}

func (m *mockFollowStore) GetFollowersCount(ctx context.Context, userID string) (int64, bool, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Bool(1), args.Error(2)
}

func (m *mockFollowStore) SetFollowersCount(ctx context.Context, userID string, count int64) error {
	args := m.Called(ctx, userID, count)
	return args.Error(0)
}

func (m *mockFollowStore) CondIncrFollowersCount(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *mockFollowStore) CondDecrFollowersCount(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *mockFollowStore) RecordAccess(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *mockFollowStore) GetTopHotKeys(ctx context.Context, n int64) ([]string, error) {
	args := m.Called(ctx, n)
	keys, _ := args.Get(0).([]string)
	return keys, args.Error(1)
}

func (m *mockFollowStore) ResetHotKeyScores(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
