package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/weiawesome/wes-market/internal/audit"
	"github.com/weiawesome/wes-market/internal/domain"
	"github.com/weiawesome/wes-market/internal/repository"
	pkglog "github.com/weiawesome/wes-market/pkg/log"
	"github.com/weiawesome/wes-market/pkg/pubsub"
	"github.com/weiawesome/wes-market/pkg/storage"
)

// listingService implements ListingService.
type listingService struct {
	listings repository.ListingRepository
	users    repository.UserRepository
	ids      IDGenerator
	storage  storage.Storage
	images   ImageProcessor
	events   eventEmitter
}

// NewListingService creates a new ListingService. images may be nil when
// uploads are not served.
func NewListingService(
	listings repository.ListingRepository,
	users repository.UserRepository,
	ids IDGenerator,
	store storage.Storage,
	images ImageProcessor,
	pub pubsub.Publisher,
) ListingService {
	return &listingService{
		listings: listings,
		users:    users,
		ids:      ids,
		storage:  store,
		images:   images,
		events:   eventEmitter{pub: pub},
	}
}

// Create persists a new listing in state ON_SALE. Unsaved listings get a
// fresh ID.
func (s *listingService) Create(ctx context.Context, listing *domain.Listing) (*domain.Listing, error) {
	if listing == nil {
		return nil, ErrNilArgument
	}
	if err := validateListing(listing); err != nil {
		return nil, err
	}
	if err := requireUser(ctx, s.users, listing.OwnerID); err != nil {
		return nil, err
	}

	l := pkglog.Ctx(ctx)

	created := *listing
	created.State = domain.ListingStateOnSale
	if !created.IsSaved() {
		id, err := s.ids.Next()
		if err != nil {
			l.Error().Err(err).Msg("failed to generate listing id")
			return nil, fmt.Errorf("generate listing id: %w", err)
		}
		created.ID = id
	}
	if err := s.validateImageKeys(&created); err != nil {
		return nil, err
	}

	if err := s.listings.Create(ctx, &created); err != nil {
		if mapped, ok := mapListingErr(err); ok {
			return nil, mapped
		}
		l.Error().Err(err).Int64(pkglog.FieldListingID, created.ID).Msg("failed to create listing")
		return nil, fmt.Errorf("create listing: %w", err)
	}

	s.events.emit(ctx, pubsub.ListingChannel(created.ID), pubsub.EventListingCreated, listingKey(created.ID), pubsub.ListingPayload{
		ListingID: created.ID,
		OwnerID:   created.OwnerID,
		State:     string(created.State),
		ImageKeys: created.ImageKeys(),
	})

	return &created, nil
}

// Update overwrites the listing's fields and, when Images is non-nil, its
// image set. Objects of dropped images are deleted inside the same
// transaction.
func (s *listingService) Update(ctx context.Context, listing *domain.Listing) (*domain.Listing, error) {
	if listing == nil {
		return nil, ErrNilArgument
	}
	if !listing.IsSaved() {
		return nil, ErrListingNotFound
	}
	if err := validateListing(listing); err != nil {
		return nil, err
	}
	if err := s.validateImageKeys(listing); err != nil {
		return nil, err
	}
	if err := requireUser(ctx, s.users, listing.OwnerID); err != nil {
		return nil, err
	}

	l := pkglog.Ctx(ctx)

	if err := s.listings.Update(ctx, listing, s.purge); err != nil {
		if mapped, ok := mapListingErr(err); ok {
			return nil, mapped
		}
		l.Error().Err(err).Int64(pkglog.FieldListingID, listing.ID).Msg("failed to update listing")
		return nil, fmt.Errorf("update listing: %w", err)
	}

	updated, err := s.Get(ctx, listing.ID)
	if err != nil {
		return nil, err
	}

	s.events.emit(ctx, pubsub.ListingChannel(updated.ID), pubsub.EventListingUpdated, listingKey(updated.ID), pubsub.ListingPayload{
		ListingID: updated.ID,
		OwnerID:   updated.OwnerID,
		State:     string(updated.State),
		ImageKeys: updated.ImageKeys(),
	})

	return updated, nil
}

// Remove deletes the listing, its images and its likes. If any stored image
// cannot be deleted nothing is removed.
func (s *listingService) Remove(ctx context.Context, listingID int64) error {
	l := pkglog.Ctx(ctx)

	removed, err := s.listings.Remove(ctx, listingID, s.purge)
	if err != nil {
		if errors.Is(err, repository.ErrListingNotFound) {
			return ErrListingNotFound
		}
		l.Error().Err(err).Int64(pkglog.FieldListingID, listingID).Msg("failed to remove listing")
		return fmt.Errorf("remove listing: %w", err)
	}

	audit.LogWithTarget(ctx, audit.ActionRemoveListing, removed.OwnerID, listingKey(listingID), "listing removed")

	s.events.emit(ctx, pubsub.ListingChannel(listingID), pubsub.EventListingRemoved, listingKey(listingID), pubsub.ListingPayload{
		ListingID: listingID,
		OwnerID:   removed.OwnerID,
		ImageKeys: removed.ImageKeys(),
	})

	return nil
}

func (s *listingService) SetOnHold(ctx context.Context, listingID int64) error {
	return s.transition(ctx, listingID, domain.ListingStateOnSale, domain.ListingStateOnHold, ErrAlreadyOnHold)
}

func (s *listingService) SetOnSale(ctx context.Context, listingID int64) error {
	return s.transition(ctx, listingID, domain.ListingStateOnHold, domain.ListingStateOnSale, ErrAlreadyOnSale)
}

func (s *listingService) transition(ctx context.Context, listingID int64, from, to domain.ListingState, already error) error {
	if err := s.listings.TransitionState(ctx, listingID, from, to); err != nil {
		switch {
		case errors.Is(err, repository.ErrListingNotFound):
			return ErrListingNotFound
		case errors.Is(err, repository.ErrStateConflict):
			return already
		}
		l := pkglog.Ctx(ctx)
		l.Error().Err(err).Int64(pkglog.FieldListingID, listingID).Str("to", string(to)).Msg("failed to change listing state")
		return fmt.Errorf("change listing state: %w", err)
	}

	s.events.emit(ctx, pubsub.ListingChannel(listingID), pubsub.EventListingStateChanged, listingKey(listingID), pubsub.ListingPayload{
		ListingID: listingID,
		State:     string(to),
	})
	return nil
}

// AreOnHold reports whether the listing is on hold.
func (s *listingService) AreOnHold(ctx context.Context, listingID int64) (bool, error) {
	state, err := s.listings.State(ctx, listingID)
	if err != nil {
		if errors.Is(err, repository.ErrListingNotFound) {
			return false, ErrListingNotFound
		}
		return false, fmt.Errorf("get listing state: %w", err)
	}
	return state == domain.ListingStateOnHold, nil
}

func (s *listingService) Get(ctx context.Context, listingID int64) (*domain.Listing, error) {
	listing, err := s.listings.Get(ctx, listingID)
	if err != nil {
		if errors.Is(err, repository.ErrListingNotFound) {
			return nil, ErrListingNotFound
		}
		return nil, fmt.Errorf("get listing: %w", err)
	}
	return listing, nil
}

func (s *listingService) AddImage(ctx context.Context, listingID int64, key string) (*domain.Image, error) {
	if strings.TrimSpace(key) == "" {
		return nil, fmt.Errorf("%w: empty image key", ErrInvalidListing)
	}
	if scope := s.keyScope(listingID); !domain.KeyInScope(key, scope) {
		return nil, fmt.Errorf("%w: image key %q is outside %s", ErrInvalidListing, key, scope)
	}
	image, err := s.listings.AddImage(ctx, listingID, key)
	if err != nil {
		if mapped, ok := mapListingErr(err); ok {
			return nil, mapped
		}
		return nil, fmt.Errorf("add image: %w", err)
	}
	return image, nil
}

// UploadImage stores a processed copy of the upload and attaches it. The
// stored object is deleted again if it cannot be attached.
func (s *listingService) UploadImage(ctx context.Context, listingID int64, r io.Reader) (*domain.Image, error) {
	if r == nil {
		return nil, ErrNilArgument
	}
	if s.images == nil {
		return nil, errors.New("image uploads are not configured")
	}

	if err := requireListing(ctx, s.listings, listingID); err != nil {
		return nil, err
	}

	l := pkglog.Ctx(ctx)

	key, err := s.images.Process(ctx, listingID, r)
	if err != nil {
		return nil, err
	}

	image, err := s.AddImage(ctx, listingID, key)
	if err != nil {
		if delErr := s.storage.Delete(ctx, key); delErr != nil {
			l.Warn().Err(delErr).Str("key", key).Msg("failed to delete orphaned image")
		}
		return nil, err
	}
	return image, nil
}

// purge deletes image objects; it runs inside the repository transaction.
func (s *listingService) purge(ctx context.Context, keys []string) error {
	return storage.DeleteAll(ctx, s.storage, keys)
}

func (s *listingService) keyScope(listingID int64) string {
	if s.images != nil {
		return s.images.KeyScope(listingID)
	}
	return domain.ImageKeyScope("", listingID)
}

// validateImageKeys keeps a listing to objects stored under its own scope,
// since dropped images are deleted from storage.
func (s *listingService) validateImageKeys(listing *domain.Listing) error {
	scope := s.keyScope(listing.ID)
	for _, key := range listing.ImageKeys() {
		if !domain.KeyInScope(key, scope) {
			return fmt.Errorf("%w: image key %q is outside %s", ErrInvalidListing, key, scope)
		}
	}
	return nil
}

func validateListing(listing *domain.Listing) error {
	if strings.TrimSpace(listing.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidListing)
	}
	if listing.Price.IsNegative() {
		return fmt.Errorf("%w: price must not be negative", ErrInvalidListing)
	}
	return nil
}

// mapListingErr translates repository sentinels; ok is false for
// unexpected errors.
func mapListingErr(err error) (mapped error, ok bool) {
	switch {
	case errors.Is(err, repository.ErrListingNotFound):
		return ErrListingNotFound, true
	case errors.Is(err, repository.ErrListingExists):
		return ErrListingAlreadyExists, true
	case errors.Is(err, repository.ErrImageExists):
		return ErrImageInUse, true
	}
	return err, false
}

func listingKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

// Ensure interface is satisfied at compile time.
var _ ListingService = (*listingService)(nil)
