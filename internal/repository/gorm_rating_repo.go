package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/weiawesome/wes-market/internal/domain"
)

// GormRatingRepository implements RatingRepository using GORM.
type GormRatingRepository struct {
	db *gorm.DB
}

// NewGormRatingRepository creates a new GORM-backed rating repository.
func NewGormRatingRepository(db *gorm.DB) *GormRatingRepository {
	return &GormRatingRepository{db: db}
}

// Create stores a rating. A pair can be rated once.
func (r *GormRatingRepository) Create(ctx context.Context, rating *domain.Rating) error {
	model := domain.RatingModel{
		RaterID: rating.RaterID,
		RatedID: rating.RatedID,
		Value:   rating.Value,
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrRatingExists
		}
		return err
	}
	rating.CreatedAt = model.CreatedAt
	return nil
}

// Get returns the rating raterID gave ratedID.
func (r *GormRatingRepository) Get(ctx context.Context, raterID, ratedID string) (*domain.Rating, error) {
	var model domain.RatingModel
	err := r.db.WithContext(ctx).
		First(&model, "rater_id = ? AND rated_id = ?", raterID, ratedID).Error
	if err != nil {
		if isNotFound(err) {
			return nil, ErrRatingNotFound
		}
		return nil, err
	}
	rating := model.ToDomain()
	return &rating, nil
}

func (r *GormRatingRepository) Exists(ctx context.Context, raterID, ratedID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.RatingModel{}).
		Where("rater_id = ? AND rated_id = ?", raterID, ratedID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *GormRatingRepository) ExistsFor(ctx context.Context, ratedID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.RatingModel{}).
		Where("rated_id = ?", ratedID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Summary returns the mean and number of ratings received by ratedID.
// The mean is zero when Count is zero.
func (r *GormRatingRepository) Summary(ctx context.Context, ratedID string) (domain.RatingSummary, error) {
	var summary domain.RatingSummary
	err := r.db.WithContext(ctx).Model(&domain.RatingModel{}).
		Select("COALESCE(AVG(value), 0) AS average, COUNT(*) AS count").
		Where("rated_id = ?", ratedID).
		Scan(&summary).Error
	return summary, err
}

// Ensure interface is satisfied at compile time.
var _ RatingRepository = (*GormRatingRepository)(nil)
