package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/weiawesome/wes-market/internal/domain"
)

// GormTransactionRepository implements TransactionRepository using GORM.
type GormTransactionRepository struct {
	db *gorm.DB
}

// NewGormTransactionRepository creates a new GORM-backed transaction repository.
func NewGormTransactionRepository(db *gorm.DB) *GormTransactionRepository {
	return &GormTransactionRepository{db: db}
}

// Create records the purchase. The unique listing index is the final
// arbiter when two buyers race for the same listing. The listing row is
// share-locked so a concurrent removal cannot slip in between the check
// and the insert.
func (r *GormTransactionRepository) Create(ctx context.Context, t *domain.Transaction) error {
	model := domain.TransactionModel{
		BuyerID:   t.BuyerID,
		ListingID: t.ListingID,
		CreatedAt: t.CreatedAt,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockListing(tx, t.ListingID, "SHARE"); err != nil {
			return err
		}

		var count int64
		if err := tx.Model(&domain.TransactionModel{}).
			Where("listing_id = ?", t.ListingID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrTransactionExists
		}

		if err := tx.Create(&model).Error; err != nil {
			if isUniqueViolation(err) {
				return ErrTransactionExists
			}
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	t.CreatedAt = model.CreatedAt
	return nil
}

// Exists reports whether buyerID purchased listingID.
func (r *GormTransactionRepository) Exists(ctx context.Context, buyerID string, listingID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.TransactionModel{}).
		Where("buyer_id = ? AND listing_id = ?", buyerID, listingID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetByListing returns the transaction recorded for listingID.
func (r *GormTransactionRepository) GetByListing(ctx context.Context, listingID int64) (*domain.Transaction, error) {
	var model domain.TransactionModel
	if err := r.db.WithContext(ctx).First(&model, "listing_id = ?", listingID).Error; err != nil {
		if isNotFound(err) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	t := model.ToDomain()
	return &t, nil
}

// ListByBuyer returns the purchases of buyerID, newest first.
func (r *GormTransactionRepository) ListByBuyer(ctx context.Context, buyerID string) ([]domain.Transaction, error) {
	var models []domain.TransactionModel
	err := r.db.WithContext(ctx).
		Where("buyer_id = ?", buyerID).
		Order("created_at DESC, listing_id DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	out := make([]domain.Transaction, 0, len(models))
	for i := range models {
		out = append(out, models[i].ToDomain())
	}
	return out, nil
}

// Ensure interface is satisfied at compile time.
var _ TransactionRepository = (*GormTransactionRepository)(nil)
