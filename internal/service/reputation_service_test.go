package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-market/internal/cache"
	"github.com/weiawesome/wes-market/internal/domain"
	"github.com/weiawesome/wes-market/internal/repository"
	"github.com/weiawesome/wes-market/internal/testutil"
	"github.com/weiawesome/wes-market/pkg/pubsub"
)

func newReputation(r *repos, deps ReputationDeps) ReputationService {
	deps.Users = r.users
	deps.Ratings = r.ratings
	deps.Follows = r.follows
	deps.Likes = r.likes
	deps.Listings = r.listings
	deps.Transactions = r.transactions
	return NewReputationService(deps)
}

func TestReputationService_RateOrdering(t *testing.T) {
	ctx := context.Background()
	r := newRepos(t)
	svc := newReputation(r, ReputationDeps{})

	alice := testutil.SeedUser(t, r.db, "alice")
	bob := testutil.SeedUser(t, r.db, "bob")

	assert.ErrorIs(t, svc.Rate(ctx, "ghost", bob, 3), ErrUserNotFound)
	assert.ErrorIs(t, svc.Rate(ctx, alice, "ghost", 3), ErrUserNotFound)
	assert.ErrorIs(t, svc.Rate(ctx, alice, alice, 3), ErrSelfRating)
	assert.ErrorIs(t, svc.Rate(ctx, alice, bob, 0), ErrRatingTooLow)
	assert.ErrorIs(t, svc.Rate(ctx, alice, bob, 6), ErrRatingTooHigh)

	require.NoError(t, svc.Rate(ctx, alice, bob, 4))
	assert.ErrorIs(t, svc.Rate(ctx, alice, bob, 4), ErrAlreadyRated)
	// Already rated wins over an out-of-range value.
	assert.ErrorIs(t, svc.Rate(ctx, alice, bob, 9), ErrAlreadyRated)

	given, err := svc.GivenRating(ctx, alice, bob)
	require.NoError(t, err)
	assert.Equal(t, 4, given)

	_, err = svc.GivenRating(ctx, bob, alice)
	assert.ErrorIs(t, err, ErrRatingNotFound)

	exists, err := svc.ExistsRatingFromTo(ctx, alice, bob)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = svc.ExistsRatingFor(ctx, alice)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = svc.ExistsRatingFor(ctx, "ghost")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestReputationService_AverageRating(t *testing.T) {
	ctx := context.Background()
	r := newRepos(t)
	svc := newReputation(r, ReputationDeps{})

	alice := testutil.SeedUser(t, r.db, "alice")
	bob := testutil.SeedUser(t, r.db, "bob")
	carol := testutil.SeedUser(t, r.db, "carol")

	_, err := svc.AverageRating(ctx, carol)
	assert.ErrorIs(t, err, ErrNoRating)

	_, err = svc.AverageRating(ctx, "ghost")
	assert.ErrorIs(t, err, ErrUserNotFound)

	require.NoError(t, svc.Rate(ctx, alice, carol, 3))
	require.NoError(t, svc.Rate(ctx, bob, carol, 5))

	avg, err := svc.AverageRating(ctx, carol)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, avg, 1e-9)
}

func TestReputationService_AverageRatingReadsThroughCache(t *testing.T) {
	ctx := context.Background()
	r := newRepos(t)
	rc := new(mockRatingCache)
	svc := newReputation(r, ReputationDeps{RatingCache: rc, RatingCacheTTL: time.Minute})

	alice := testutil.SeedUser(t, r.db, "alice")
	bob := testutil.SeedUser(t, r.db, "bob")

	rc.On("Delete", mock.Anything, []string{bob}).Return(nil).Once()
	require.NoError(t, svc.Rate(ctx, alice, bob, 2))

	// Miss: summary comes from the database and is stored.
	rc.On("Get", mock.Anything, bob).Return(nil, cache.ErrCacheMiss).Once()
	rc.On("Version", mock.Anything, bob).Return(int64(1), nil).Once()
	rc.On("Set", mock.Anything, bob, int64(1), domain.RatingSummary{Average: 2, Count: 1}, time.Minute).Return(true, nil).Once()
	avg, err := svc.AverageRating(ctx, bob)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, avg, 1e-9)

	// Hit: the cached summary is returned as is.
	rc.On("Get", mock.Anything, bob).Return(&domain.RatingSummary{Average: 4.5, Count: 2}, nil).Once()
	avg, err = svc.AverageRating(ctx, bob)
	require.NoError(t, err)
	assert.InDelta(t, 4.5, avg, 1e-9)

	// A broken cache falls back to the database.
	rc.On("Get", mock.Anything, bob).Return(nil, errors.New("redis down")).Once()
	rc.On("Version", mock.Anything, bob).Return(int64(0), errors.New("redis down")).Once()
	avg, err = svc.AverageRating(ctx, bob)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, avg, 1e-9)

	rc.AssertExpectations(t)
}

// ratingsDuringLoad runs hook inside Summary, after the cache version was
// read and before the summary is stored.
type ratingsDuringLoad struct {
	repository.RatingRepository
	hook func()
}

func (r *ratingsDuringLoad) Summary(ctx context.Context, ratedID string) (domain.RatingSummary, error) {
	summary, err := r.RatingRepository.Summary(ctx, ratedID)
	if r.hook != nil {
		r.hook()
		r.hook = nil
	}
	return summary, err
}

func TestReputationService_StaleSummaryIsNotCached(t *testing.T) {
	ctx := context.Background()
	r := newRepos(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	rc := cache.NewRedisRatingCache(client, "market")

	alice := testutil.SeedUser(t, r.db, "alice")
	bob := testutil.SeedUser(t, r.db, "bob")
	carol := testutil.SeedUser(t, r.db, "carol")

	ratings := &ratingsDuringLoad{RatingRepository: r.ratings}
	svc := NewReputationService(ReputationDeps{
		Users:          r.users,
		Ratings:        ratings,
		Follows:        r.follows,
		Likes:          r.likes,
		Listings:       r.listings,
		Transactions:   r.transactions,
		RatingCache:    rc,
		RatingCacheTTL: time.Hour,
	})

	require.NoError(t, svc.Rate(ctx, alice, bob, 2))

	// carol's rating commits while the first reader still holds the old
	// summary.
	ratings.hook = func() {
		require.NoError(t, svc.Rate(ctx, carol, bob, 4))
	}
	avg, err := svc.AverageRating(ctx, bob)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, avg, 1e-9)

	_, err = rc.Get(ctx, bob)
	assert.ErrorIs(t, err, cache.ErrCacheMiss)

	avg, err = svc.AverageRating(ctx, bob)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, avg, 1e-9)

	cached, err := rc.Get(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, int64(2), cached.Count)
}

func TestReputationService_FollowSymmetry(t *testing.T) {
	ctx := context.Background()
	r := newRepos(t)
	pub := new(mockPublisher)
	svc := newReputation(r, ReputationDeps{Publisher: pub})

	alice := testutil.SeedUser(t, r.db, "alice")
	bob := testutil.SeedUser(t, r.db, "bob")

	pub.On("Publish", mock.Anything, "market:user:"+bob, eventOfType(pubsub.EventUserFollowed)).Return(nil).Once()
	pub.On("Publish", mock.Anything, "market:user:"+bob, eventOfType(pubsub.EventUserUnfollowed)).Return(nil).Once()

	assert.ErrorIs(t, svc.Follow(ctx, alice, "ghost"), ErrUserNotFound)
	assert.ErrorIs(t, svc.Follow(ctx, alice, alice), ErrSelfFollow)
	assert.ErrorIs(t, svc.Unfollow(ctx, alice, bob), ErrNotFollowing)

	require.NoError(t, svc.Follow(ctx, alice, bob))
	assert.ErrorIs(t, svc.Follow(ctx, alice, bob), ErrAlreadyFollowing)

	following, err := svc.Following(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, []string{bob}, following)

	followers, err := svc.Followers(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, []string{alice}, followers)

	is, err := svc.IsFollowing(ctx, alice, bob)
	require.NoError(t, err)
	assert.True(t, is)

	count, err := svc.FollowersCount(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	require.NoError(t, svc.Unfollow(ctx, alice, bob))

	following, err = svc.Following(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, following)

	followers, err = svc.Followers(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, followers)

	assert.ErrorIs(t, svc.Unfollow(ctx, alice, bob), ErrNotFollowing)
	pub.AssertExpectations(t)
}

func TestReputationService_FollowersCountUsesStore(t *testing.T) {
	ctx := context.Background()
	r := newRepos(t)
	fs := new(mockFollowStore)
	svc := newReputation(r, ReputationDeps{FollowStore: fs})

	alice := testutil.SeedUser(t, r.db, "alice")
	bob := testutil.SeedUser(t, r.db, "bob")
	require.NoError(t, r.follows.Follow(ctx, alice, bob))

	fs.On("RecordAccess", mock.Anything, bob).Return(nil)

	// Miss populates the counter from the database.
	fs.On("GetFollowersCount", mock.Anything, bob).Return(int64(0), false, nil).Once()
	fs.On("SetFollowersCount", mock.Anything, bob, int64(1)).Return(nil).Once()
	count, err := svc.FollowersCount(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	fs.On("GetFollowersCount", mock.Anything, bob).Return(int64(12), true, nil).Once()
	count, err = svc.FollowersCount(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, int64(12), count)

	fs.AssertExpectations(t)
}

func TestReputationService_LikeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	r := newRepos(t)
	pub := new(mockPublisher)
	svc := newReputation(r, ReputationDeps{Publisher: pub})

	alice := testutil.SeedUser(t, r.db, "alice")
	bob := testutil.SeedUser(t, r.db, "bob")
	testutil.SeedListing(t, r.db, 3, alice, "Oslo", "sofa", 80)

	pub.On("Publish", mock.Anything, "market:listing:3", eventOfType(pubsub.EventListingLiked)).Return(nil).Once()
	pub.On("Publish", mock.Anything, "market:listing:3", eventOfType(pubsub.EventListingUnliked)).Return(nil).Once()

	require.NoError(t, svc.Like(ctx, bob, 3))
	require.NoError(t, svc.Like(ctx, bob, 3))

	liked, err := svc.LikedListings(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, liked)

	require.NoError(t, svc.Unlike(ctx, bob, 3))
	require.NoError(t, svc.Unlike(ctx, bob, 3))

	liked, err = svc.LikedListings(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, liked)

	assert.ErrorIs(t, svc.Like(ctx, "ghost", 3), ErrUserNotFound)
	assert.ErrorIs(t, svc.Like(ctx, bob, 999), ErrListingNotFound)
	assert.ErrorIs(t, svc.Unlike(ctx, bob, 999), ErrListingNotFound)

	pub.AssertExpectations(t)
}

func TestReputationService_TogglePremiumRole(t *testing.T) {
	ctx := context.Background()
	r := newRepos(t)
	svc := newReputation(r, ReputationDeps{})

	alice := testutil.SeedUser(t, r.db, "alice")

	role, err := svc.TogglePremiumRole(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, domain.RolePremium, role)

	user, err := r.users.GetByID(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, domain.RolePremium, user.Role)

	role, err = svc.TogglePremiumRole(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleStandard, role)

	_, err = svc.TogglePremiumRole(ctx, "ghost")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestReputationService_UserGraph(t *testing.T) {
	ctx := context.Background()
	r := newRepos(t)
	svc := newReputation(r, ReputationDeps{})

	alice := testutil.SeedUser(t, r.db, "alice")
	bob := testutil.SeedUser(t, r.db, "bob")
	testutil.SeedListing(t, r.db, 1, alice, "Oslo", "desk", 50)
	testutil.SeedListing(t, r.db, 2, bob, "Oslo", "bike", 90)

	_, err := r.likes.Like(ctx, alice, 2)
	require.NoError(t, err)
	require.NoError(t, r.follows.Follow(ctx, bob, alice))
	require.NoError(t, r.transactions.Create(ctx, &domain.Transaction{BuyerID: alice, ListingID: 2}))

	graph, err := svc.UserGraph(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, alice, graph.UserID)
	assert.Equal(t, domain.RoleStandard, graph.Role)
	assert.Equal(t, []int64{1}, graph.OwnedListings)
	assert.Equal(t, []int64{2}, graph.LikedListings)
	assert.Empty(t, graph.Following)
	assert.Equal(t, []string{bob}, graph.Followers)
	assert.Equal(t, int64(1), graph.FollowersCount)
	require.Len(t, graph.Purchases, 1)
	assert.Equal(t, int64(2), graph.Purchases[0].ListingID)

	_, err = svc.UserGraph(ctx, "ghost")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestReputationService_HandleEvent(t *testing.T) {
	ctx := context.Background()
	r := newRepos(t)
	fs := new(mockFollowStore)
	rc := new(mockRatingCache)
	svc := newReputation(r, ReputationDeps{FollowStore: fs, RatingCache: rc})

	followed, err := pubsub.NewEvent(pubsub.EventUserFollowed, "u-2", pubsub.UserPayload{UserID: "u-1", TargetID: "u-2"})
	require.NoError(t, err)
	unfollowed, err := pubsub.NewEvent(pubsub.EventUserUnfollowed, "u-2", pubsub.UserPayload{UserID: "u-1", TargetID: "u-2"})
	require.NoError(t, err)
	rated, err := pubsub.NewEvent(pubsub.EventRatingCreated, "u-3", pubsub.RatingPayload{RaterID: "u-1", RatedID: "u-3", Value: 5})
	require.NoError(t, err)
	other, err := pubsub.NewEvent(pubsub.EventListingCreated, "1", pubsub.ListingPayload{ListingID: 1})
	require.NoError(t, err)

	fs.On("CondIncrFollowersCount", mock.Anything, "u-2").Return(nil).Once()
	fs.On("CondDecrFollowersCount", mock.Anything, "u-2").Return(nil).Once()
	rc.On("Delete", mock.Anything, []string{"u-3"}).Return(nil).Once()

	require.NoError(t, svc.HandleEvent(ctx, followed))
	require.NoError(t, svc.HandleEvent(ctx, unfollowed))
	require.NoError(t, svc.HandleEvent(ctx, rated))
	require.NoError(t, svc.HandleEvent(ctx, other))
	assert.ErrorIs(t, svc.HandleEvent(ctx, nil), ErrNilArgument)

	broken := &pubsub.Event{Type: pubsub.EventUserFollowed, Payload: []byte("{")}
	assert.Error(t, svc.HandleEvent(ctx, broken))

	fs.AssertExpectations(t)
	rc.AssertExpectations(t)
}
