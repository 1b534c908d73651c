package service

import (
	"context"
	"fmt"

	"github.com/weiawesome/wes-market/internal/repository"
)

// requireUser returns ErrUserNotFound unless every ID names a stored user.
func requireUser(ctx context.Context, users repository.UserRepository, userIDs ...string) error {
	for _, id := range userIDs {
		exists, err := users.Exists(ctx, id)
		if err != nil {
			return fmt.Errorf("check user: %w", err)
		}
		if !exists {
			return ErrUserNotFound
		}
	}
	return nil
}

func requireListing(ctx context.Context, listings repository.ListingRepository, listingID int64) error {
	exists, err := listings.Exists(ctx, listingID)
	if err != nil {
		return fmt.Errorf("check listing: %w", err)
	}
	if !exists {
		return ErrListingNotFound
	}
	return nil
}
