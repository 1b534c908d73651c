package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/weiawesome/wes-market/internal/domain"
)

// GormLikeRepository implements LikeRepository using GORM.
type GormLikeRepository struct {
	db *gorm.DB
}

// NewGormLikeRepository creates a new GORM-backed like repository.
func NewGormLikeRepository(db *gorm.DB) *GormLikeRepository {
	return &GormLikeRepository{db: db}
}

// Like inserts the edge; an existing edge is left as is. The listing
// foreign key rejects edges to listings that do not exist.
func (r *GormLikeRepository) Like(ctx context.Context, userID string, listingID int64) (bool, error) {
	model := domain.LikeModel{UserID: userID, ListingID: listingID}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model)
	if result.Error != nil {
		if isForeignKeyViolation(result.Error) {
			return false, ErrListingNotFound
		}
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// Unlike deletes the edge if present.
func (r *GormLikeRepository) Unlike(ctx context.Context, userID string, listingID int64) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND listing_id = ?", userID, listingID).
		Delete(&domain.LikeModel{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *GormLikeRepository) IsLiked(ctx context.Context, userID string, listingID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.LikeModel{}).
		Where("user_id = ? AND listing_id = ?", userID, listingID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// LikedListings returns the listings liked by userID, oldest like first.
func (r *GormLikeRepository) LikedListings(ctx context.Context, userID string) ([]int64, error) {
	ids := []int64{}
	err := r.db.WithContext(ctx).Model(&domain.LikeModel{}).
		Where("user_id = ?", userID).
		Order("created_at, listing_id").
		Pluck("listing_id", &ids).Error
	return ids, err
}

// LikedBy returns the users that liked listingID, oldest like first.
func (r *GormLikeRepository) LikedBy(ctx context.Context, listingID int64) ([]string, error) {
	ids := []string{}
	err := r.db.WithContext(ctx).Model(&domain.LikeModel{}).
		Where("listing_id = ?", listingID).
		Order("created_at, user_id").
		Pluck("user_id", &ids).Error
	return ids, err
}

var _ LikeRepository = (*GormLikeRepository)(nil)
