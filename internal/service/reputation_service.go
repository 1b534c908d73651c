package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/weiawesome/wes-market/internal/audit"
	"github.com/weiawesome/wes-market/internal/cache"
	"github.com/weiawesome/wes-market/internal/domain"
	"github.com/weiawesome/wes-market/internal/repository"
	"github.com/weiawesome/wes-market/internal/store"
	pkglog "github.com/weiawesome/wes-market/pkg/log"
	"github.com/weiawesome/wes-market/pkg/pubsub"
)

const defaultRatingCacheTTL = 10 * time.Minute

// ReputationDeps wires a ReputationService. RatingCache, FollowStore and
// Publisher are optional.
type ReputationDeps struct {
	Users        repository.UserRepository
	Ratings      repository.RatingRepository
	Follows      repository.FollowRepository
	Likes        repository.LikeRepository
	Listings     repository.ListingRepository
	Transactions repository.TransactionRepository

	RatingCache    cache.RatingCache
	RatingCacheTTL time.Duration
	FollowStore    store.FollowStore
	Publisher      pubsub.Publisher
}

// reputationService implements ReputationService.
type reputationService struct {
	deps   ReputationDeps
	events eventEmitter
	group  singleflight.Group
}

// NewReputationService creates a new ReputationService.
func NewReputationService(deps ReputationDeps) ReputationService {
	if deps.RatingCacheTTL <= 0 {
		deps.RatingCacheTTL = defaultRatingCacheTTL
	}
	return &reputationService{
		deps:   deps,
		events: eventEmitter{pub: deps.Publisher},
	}
}

// Rate records raterID's rating of ratedID. A pair can be rated once.
func (s *reputationService) Rate(ctx context.Context, raterID, ratedID string, value int) error {
	if err := requireUser(ctx, s.deps.Users, raterID, ratedID); err != nil {
		return err
	}
	if raterID == ratedID {
		return ErrSelfRating
	}

	rated, err := s.deps.Ratings.Exists(ctx, raterID, ratedID)
	if err != nil {
		return fmt.Errorf("check rating: %w", err)
	}
	if rated {
		return ErrAlreadyRated
	}

	switch {
	case value < domain.MinRating:
		return ErrRatingTooLow
	case value > domain.MaxRating:
		return ErrRatingTooHigh
	}

	l := pkglog.Ctx(ctx)

	rating := &domain.Rating{RaterID: raterID, RatedID: ratedID, Value: value}
	if err := s.deps.Ratings.Create(ctx, rating); err != nil {
		if errors.Is(err, repository.ErrRatingExists) {
			return ErrAlreadyRated
		}
		l.Error().Err(err).Str(pkglog.FieldTargetID, ratedID).Msg("failed to create rating")
		return fmt.Errorf("create rating: %w", err)
	}

	s.invalidateRating(ctx, ratedID)
	audit.LogWithTarget(ctx, audit.ActionRate, raterID, ratedID, "user rated")

	s.events.emit(ctx, pubsub.Channel(pubsub.EntityRating, ratedID), pubsub.EventRatingCreated, ratedID, pubsub.RatingPayload{
		RaterID: raterID,
		RatedID: ratedID,
		Value:   value,
	})
	return nil
}

// AverageRating returns the mean of the ratings userID received. The
// summary is read through the rating cache.
func (s *reputationService) AverageRating(ctx context.Context, userID string) (float64, error) {
	if err := requireUser(ctx, s.deps.Users, userID); err != nil {
		return 0, err
	}

	summary, err := s.ratingSummary(ctx, userID)
	if err != nil {
		return 0, err
	}
	if summary.Count == 0 {
		return 0, ErrNoRating
	}
	return summary.Average, nil
}

func (s *reputationService) ratingSummary(ctx context.Context, userID string) (domain.RatingSummary, error) {
	l := pkglog.Ctx(ctx)

	if s.deps.RatingCache != nil {
		cached, err := s.deps.RatingCache.Get(ctx, userID)
		if err == nil {
			return *cached, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			l.Warn().Err(err).Str(pkglog.FieldUserID, userID).Msg("rating cache get failed, falling back to db")
		}
	}

	v, err, _ := s.group.Do(userID, func() (interface{}, error) {
		// The version is read before the load so a rating committed in
		// between keeps the old summary out of the cache.
		cacheable := s.deps.RatingCache != nil
		var version int64
		if cacheable {
			var err error
			if version, err = s.deps.RatingCache.Version(ctx, userID); err != nil {
				l.Warn().Err(err).Str(pkglog.FieldUserID, userID).Msg("failed to get rating cache version")
				cacheable = false
			}
		}

		summary, err := s.deps.Ratings.Summary(ctx, userID)
		if err != nil {
			return nil, err
		}

		if cacheable {
			stored, err := s.deps.RatingCache.Set(ctx, userID, version, summary, s.deps.RatingCacheTTL)
			switch {
			case err != nil:
				l.Warn().Err(err).Str(pkglog.FieldUserID, userID).Msg("failed to set rating cache")
			case !stored:
				l.Debug().Str(pkglog.FieldUserID, userID).Msg("rating changed during load, summary not cached")
			}
		}
		return summary, nil
	})
	if err != nil {
		return domain.RatingSummary{}, fmt.Errorf("rating summary: %w", err)
	}
	return v.(domain.RatingSummary), nil
}

func (s *reputationService) invalidateRating(ctx context.Context, userID string) {
	if s.deps.RatingCache == nil {
		return
	}
	if err := s.deps.RatingCache.Delete(ctx, userID); err != nil {
		l := pkglog.Ctx(ctx)
		l.Warn().Err(err).Str(pkglog.FieldUserID, userID).Msg("failed to invalidate rating cache")
	}
}

func (s *reputationService) ExistsRatingFor(ctx context.Context, userID string) (bool, error) {
	if err := requireUser(ctx, s.deps.Users, userID); err != nil {
		return false, err
	}
	exists, err := s.deps.Ratings.ExistsFor(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("check ratings: %w", err)
	}
	return exists, nil
}

func (s *reputationService) ExistsRatingFromTo(ctx context.Context, raterID, ratedID string) (bool, error) {
	if err := requireUser(ctx, s.deps.Users, raterID, ratedID); err != nil {
		return false, err
	}
	exists, err := s.deps.Ratings.Exists(ctx, raterID, ratedID)
	if err != nil {
		return false, fmt.Errorf("check rating: %w", err)
	}
	return exists, nil
}

// GivenRating returns the value raterID gave ratedID.
func (s *reputationService) GivenRating(ctx context.Context, raterID, ratedID string) (int, error) {
	if err := requireUser(ctx, s.deps.Users, raterID, ratedID); err != nil {
		return 0, err
	}
	rating, err := s.deps.Ratings.Get(ctx, raterID, ratedID)
	if err != nil {
		if errors.Is(err, repository.ErrRatingNotFound) {
			return 0, ErrRatingNotFound
		}
		return 0, fmt.Errorf("get rating: %w", err)
	}
	return rating.Value, nil
}

// Follow makes userID follow targetID.
func (s *reputationService) Follow(ctx context.Context, userID, targetID string) error {
	if err := requireUser(ctx, s.deps.Users, userID, targetID); err != nil {
		return err
	}
	if userID == targetID {
		return ErrSelfFollow
	}

	if err := s.deps.Follows.Follow(ctx, userID, targetID); err != nil {
		if errors.Is(err, repository.ErrAlreadyFollowing) {
			return ErrAlreadyFollowing
		}
		l := pkglog.Ctx(ctx)
		l.Error().Err(err).
			Str(pkglog.FieldTargetID, targetID).
			Msg("failed to follow user")
		return fmt.Errorf("follow: %w", err)
	}

	audit.LogWithTarget(ctx, audit.ActionFollow, userID, targetID, "user followed")
	s.events.emit(ctx, pubsub.Channel(pubsub.EntityUser, targetID), pubsub.EventUserFollowed, targetID, pubsub.UserPayload{
		UserID:   userID,
		TargetID: targetID,
	})
	return nil
}

// Unfollow removes the follow edge from userID to targetID.
func (s *reputationService) Unfollow(ctx context.Context, userID, targetID string) error {
	if err := requireUser(ctx, s.deps.Users, userID, targetID); err != nil {
		return err
	}

	if err := s.deps.Follows.Unfollow(ctx, userID, targetID); err != nil {
		if errors.Is(err, repository.ErrFollowNotFound) {
			return ErrNotFollowing
		}
		l := pkglog.Ctx(ctx)
		l.Error().Err(err).
			Str(pkglog.FieldTargetID, targetID).
			Msg("failed to unfollow user")
		return fmt.Errorf("unfollow: %w", err)
	}

	audit.LogWithTarget(ctx, audit.ActionUnfollow, userID, targetID, "user unfollowed")
	s.events.emit(ctx, pubsub.Channel(pubsub.EntityUser, targetID), pubsub.EventUserUnfollowed, targetID, pubsub.UserPayload{
		UserID:   userID,
		TargetID: targetID,
	})
	return nil
}

func (s *reputationService) IsFollowing(ctx context.Context, userID, targetID string) (bool, error) {
	if err := requireUser(ctx, s.deps.Users, userID, targetID); err != nil {
		return false, err
	}
	return s.deps.Follows.IsFollowing(ctx, userID, targetID)
}

func (s *reputationService) Following(ctx context.Context, userID string) ([]string, error) {
	if err := requireUser(ctx, s.deps.Users, userID); err != nil {
		return nil, err
	}
	return s.deps.Follows.Following(ctx, userID)
}

func (s *reputationService) Followers(ctx context.Context, userID string) ([]string, error) {
	if err := requireUser(ctx, s.deps.Users, userID); err != nil {
		return nil, err
	}
	return s.deps.Follows.Followers(ctx, userID)
}

// FollowersCount returns the number of followers for userID. The cached
// counter is read first; on a miss the database count is cached. Every call
// counts as a hot-key access for the reconciler.
func (s *reputationService) FollowersCount(ctx context.Context, userID string) (int64, error) {
	if err := requireUser(ctx, s.deps.Users, userID); err != nil {
		return 0, err
	}

	l := pkglog.Ctx(ctx)
	st := s.deps.FollowStore

	if st != nil {
		if err := st.RecordAccess(ctx, userID); err != nil {
			l.Warn().Err(err).Str(pkglog.FieldUserID, userID).Msg("failed to record hot key access")
		}

		count, found, err := st.GetFollowersCount(ctx, userID)
		if err != nil {
			l.Warn().Err(err).Str(pkglog.FieldUserID, userID).Msg("redis get followers count failed, falling back to db")
		}
		if found {
			return count, nil
		}
	}

	count, err := s.deps.Follows.GetFollowersCount(ctx, userID)
	if err != nil {
		l.Error().Err(err).Str(pkglog.FieldUserID, userID).Msg("failed to get followers count from db")
		return 0, fmt.Errorf("followers count: %w", err)
	}

	if st != nil {
		if err := st.SetFollowersCount(ctx, userID, count); err != nil {
			l.Warn().Err(err).Str(pkglog.FieldUserID, userID).Msg("failed to set followers count in redis")
		}
	}

	return count, nil
}

// Like adds listingID to userID's likes. Liking twice is a no-op.
func (s *reputationService) Like(ctx context.Context, userID string, listingID int64) error {
	if err := s.likeGuard(ctx, userID, listingID); err != nil {
		return err
	}

	created, err := s.deps.Likes.Like(ctx, userID, listingID)
	if err != nil {
		if errors.Is(err, repository.ErrListingNotFound) {
			return ErrListingNotFound
		}
		return fmt.Errorf("like listing: %w", err)
	}
	if created {
		s.events.emit(ctx, pubsub.ListingChannel(listingID), pubsub.EventListingLiked, listingKey(listingID), pubsub.ListingPayload{
			ListingID: listingID,
			UserID:    userID,
		})
	}
	return nil
}

// Unlike removes listingID from userID's likes. Unliking a listing that is
// not liked is a no-op.
func (s *reputationService) Unlike(ctx context.Context, userID string, listingID int64) error {
	if err := s.likeGuard(ctx, userID, listingID); err != nil {
		return err
	}

	removed, err := s.deps.Likes.Unlike(ctx, userID, listingID)
	if err != nil {
		return fmt.Errorf("unlike listing: %w", err)
	}
	if removed {
		s.events.emit(ctx, pubsub.ListingChannel(listingID), pubsub.EventListingUnliked, listingKey(listingID), pubsub.ListingPayload{
			ListingID: listingID,
			UserID:    userID,
		})
	}
	return nil
}

func (s *reputationService) likeGuard(ctx context.Context, userID string, listingID int64) error {
	if err := requireUser(ctx, s.deps.Users, userID); err != nil {
		return err
	}
	return requireListing(ctx, s.deps.Listings, listingID)
}

func (s *reputationService) LikedListings(ctx context.Context, userID string) ([]int64, error) {
	if err := requireUser(ctx, s.deps.Users, userID); err != nil {
		return nil, err
	}
	return s.deps.Likes.LikedListings(ctx, userID)
}

// TogglePremiumRole flips the user between standard and premium and
// returns the new role.
func (s *reputationService) TogglePremiumRole(ctx context.Context, userID string) (domain.Role, error) {
	user, err := s.deps.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return "", ErrUserNotFound
		}
		return "", fmt.Errorf("get user: %w", err)
	}

	role := user.Role.Toggled()
	if err := s.deps.Users.UpdateRole(ctx, userID, role); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return "", ErrUserNotFound
		}
		return "", fmt.Errorf("update role: %w", err)
	}

	audit.LogWithDetail(ctx, audit.ActionTogglePremium, userID, string(role), "role toggled")
	s.events.emit(ctx, pubsub.Channel(pubsub.EntityUser, userID), pubsub.EventUserRoleChanged, userID, pubsub.UserPayload{
		UserID: userID,
		Role:   string(role),
	})
	return role, nil
}

// UserGraph collects the relations of one user.
func (s *reputationService) UserGraph(ctx context.Context, userID string) (*domain.UserGraph, error) {
	user, err := s.deps.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	graph := &domain.UserGraph{UserID: user.ID, Role: user.Role}

	if graph.OwnedListings, err = s.deps.Listings.IDsByOwner(ctx, userID); err != nil {
		return nil, fmt.Errorf("owned listings: %w", err)
	}
	if graph.LikedListings, err = s.deps.Likes.LikedListings(ctx, userID); err != nil {
		return nil, fmt.Errorf("liked listings: %w", err)
	}
	if graph.Following, err = s.deps.Follows.Following(ctx, userID); err != nil {
		return nil, fmt.Errorf("following: %w", err)
	}
	if graph.Followers, err = s.deps.Follows.Followers(ctx, userID); err != nil {
		return nil, fmt.Errorf("followers: %w", err)
	}
	if graph.Purchases, err = s.deps.Transactions.ListByBuyer(ctx, userID); err != nil {
		return nil, fmt.Errorf("purchases: %w", err)
	}
	graph.FollowersCount = int64(len(graph.Followers))

	return graph, nil
}

// HandleEvent updates the follower counters and the rating cache from
// domain events. Other event types are ignored.
func (s *reputationService) HandleEvent(ctx context.Context, event *pubsub.Event) error {
	if event == nil {
		return ErrNilArgument
	}
	l := pkglog.Ctx(ctx)

	switch event.Type {
	case pubsub.EventUserFollowed, pubsub.EventUserUnfollowed:
		if s.deps.FollowStore == nil {
			return nil
		}
		var p pubsub.UserPayload
		if err := event.UnmarshalPayload(&p); err != nil {
			return fmt.Errorf("decode %s payload: %w", event.Type, err)
		}
		if p.TargetID == "" {
			l.Warn().Str(pkglog.FieldEventType, event.Type).Msg("follow event missing target")
			return nil
		}
		if event.Type == pubsub.EventUserFollowed {
			return s.deps.FollowStore.CondIncrFollowersCount(ctx, p.TargetID)
		}
		return s.deps.FollowStore.CondDecrFollowersCount(ctx, p.TargetID)

	case pubsub.EventRatingCreated:
		if s.deps.RatingCache == nil {
			return nil
		}
		var p pubsub.RatingPayload
		if err := event.UnmarshalPayload(&p); err != nil {
			return fmt.Errorf("decode %s payload: %w", event.Type, err)
		}
		return s.deps.RatingCache.Delete(ctx, p.RatedID)
	}

	return nil
}

// Ensure interface is satisfied at compile time.
var _ ReputationService = (*reputationService)(nil)
