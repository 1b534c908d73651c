package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/weiawesome/wes-market/internal/audit"
	"github.com/weiawesome/wes-market/internal/domain"
	"github.com/weiawesome/wes-market/internal/repository"
	pkglog "github.com/weiawesome/wes-market/pkg/log"
	"github.com/weiawesome/wes-market/pkg/pubsub"
)

// transactionService implements TransactionService.
type transactionService struct {
	transactions repository.TransactionRepository
	listings     repository.ListingRepository
	users        repository.UserRepository
	events       eventEmitter
	now          func() time.Time
}

// NewTransactionService creates a new TransactionService.
func NewTransactionService(
	transactions repository.TransactionRepository,
	listings repository.ListingRepository,
	users repository.UserRepository,
	pub pubsub.Publisher,
) TransactionService {
	return &transactionService{
		transactions: transactions,
		listings:     listings,
		users:        users,
		events:       eventEmitter{pub: pub},
		now:          time.Now,
	}
}

// Create records that buyerID bought listingID. A listing is sold at most
// once; every further attempt fails with ErrTransactionAlreadyExists.
// Hold state and ownership are checked by the caller.
func (s *transactionService) Create(ctx context.Context, buyerID string, listingID int64) (*domain.Transaction, error) {
	if err := s.guard(ctx, buyerID, listingID); err != nil {
		return nil, err
	}

	l := pkglog.Ctx(ctx)

	bought, err := s.transactions.Exists(ctx, buyerID, listingID)
	if err != nil {
		return nil, fmt.Errorf("check transaction: %w", err)
	}
	if bought {
		return nil, ErrTransactionAlreadyExists
	}

	if _, err := s.transactions.GetByListing(ctx, listingID); err == nil {
		return nil, ErrTransactionAlreadyExists
	} else if !errors.Is(err, repository.ErrTransactionNotFound) {
		return nil, fmt.Errorf("check listing transaction: %w", err)
	}

	tx := &domain.Transaction{
		BuyerID:   buyerID,
		ListingID: listingID,
		CreatedAt: s.now().UTC(),
	}
	if err := s.transactions.Create(ctx, tx); err != nil {
		if errors.Is(err, repository.ErrTransactionExists) {
			return nil, ErrTransactionAlreadyExists
		}
		if errors.Is(err, repository.ErrListingNotFound) {
			return nil, ErrListingNotFound
		}
		l.Error().Err(err).
			Str("buyer_id", buyerID).
			Int64(pkglog.FieldListingID, listingID).
			Msg("failed to create transaction")
		return nil, fmt.Errorf("create transaction: %w", err)
	}

	audit.LogWithTarget(ctx, audit.ActionPurchase, buyerID, listingKey(listingID), "listing purchased")

	s.events.emit(ctx, pubsub.Channel(pubsub.EntityTransaction, listingKey(listingID)), pubsub.EventTransactionCreated, listingKey(listingID), pubsub.TransactionPayload{
		BuyerID:   buyerID,
		ListingID: listingID,
	})

	return tx, nil
}

// UserHasBoughtListing reports whether buyerID purchased listingID.
func (s *transactionService) UserHasBoughtListing(ctx context.Context, buyerID string, listingID int64) (bool, error) {
	if err := s.guard(ctx, buyerID, listingID); err != nil {
		return false, err
	}

	bought, err := s.transactions.Exists(ctx, buyerID, listingID)
	if err != nil {
		return false, fmt.Errorf("check transaction: %w", err)
	}
	return bought, nil
}

func (s *transactionService) PurchasesOf(ctx context.Context, buyerID string) ([]domain.Transaction, error) {
	if err := requireUser(ctx, s.users, buyerID); err != nil {
		return nil, err
	}

	txs, err := s.transactions.ListByBuyer(ctx, buyerID)
	if err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}
	return txs, nil
}

func (s *transactionService) guard(ctx context.Context, buyerID string, listingID int64) error {
	if err := requireUser(ctx, s.users, buyerID); err != nil {
		return err
	}

	return requireListing(ctx, s.listings, listingID)
}

// Ensure interface is satisfied at compile time.
var _ TransactionService = (*transactionService)(nil)
