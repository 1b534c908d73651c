package repository

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/weiawesome/wes-market/internal/domain"
)

// likeEscape is the ESCAPE character for keyword patterns. It is not a
// backslash so the same clause works on postgres, mysql and sqlite.
const likeEscape = "!"

var likeEscaper = strings.NewReplacer(likeEscape, likeEscape+likeEscape, "%", likeEscape+"%", "_", likeEscape+"_")

// GormListingRepository implements ListingRepository using GORM.
type GormListingRepository struct {
	db *gorm.DB
}

// NewGormListingRepository creates a new GORM-backed listing repository.
func NewGormListingRepository(db *gorm.DB) *GormListingRepository {
	return &GormListingRepository{db: db}
}

// Create inserts the listing and its image references in one transaction.
// The caller assigns the ID.
func (r *GormListingRepository) Create(ctx context.Context, listing *domain.Listing) error {
	model := domain.ListingToModel(listing)

	var images []domain.ImageModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&domain.ListingModel{}).Where("id = ?", listing.ID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrListingExists
		}

		if err := tx.Create(model).Error; err != nil {
			if isUniqueViolation(err) {
				return ErrListingExists
			}
			return err
		}

		var err error
		images, err = insertImages(tx, listing.ID, listing.ImageKeys())
		return err
	})
	if err != nil {
		return err
	}

	listing.CreatedAt = model.CreatedAt
	listing.Images = toImages(images)
	listing.LikedBy = []string{}
	listing.Transaction = nil
	return nil
}

// Get returns the listing with its relations.
func (r *GormListingRepository) Get(ctx context.Context, id int64) (*domain.Listing, error) {
	return getListing(r.db.WithContext(ctx), id)
}

func (r *GormListingRepository) Exists(ctx context.Context, id int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.ListingModel{}).
		Where("id = ?", id).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Update overwrites title, description, city, price and owner. The state is
// left alone.
func (r *GormListingRepository) Update(ctx context.Context, listing *domain.Listing, purge PurgeFunc) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockListing(tx, listing.ID, "UPDATE"); err != nil {
			return err
		}

		err := tx.Model(&domain.ListingModel{}).
			Where("id = ?", listing.ID).
			Updates(map[string]interface{}{
				"title":       listing.Title,
				"description": listing.Description,
				"city":        listing.City,
				"price":       listing.Price,
				"owner_id":    listing.OwnerID,
			}).Error
		if err != nil {
			return err
		}

		if listing.Images == nil {
			return nil
		}

		removed, err := replaceImages(tx, listing.ID, listing.ImageKeys())
		if err != nil {
			return err
		}
		if len(removed) > 0 && purge != nil {
			return purge(ctx, removed)
		}
		return nil
	})
}

// Remove deletes the listing's images, like edges and row, then purges the
// image objects. A purchase transaction is kept as history.
func (r *GormListingRepository) Remove(ctx context.Context, id int64, purge PurgeFunc) (*domain.Listing, error) {
	var removed *domain.Listing
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Children written concurrently either commit before the lock and
		// are read below, or fail their foreign key check after commit.
		if err := lockListing(tx, id, "UPDATE"); err != nil {
			return err
		}

		listing, err := getListing(tx, id)
		if err != nil {
			return err
		}

		if err := tx.Where("listing_id = ?", id).Delete(&domain.ImageModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("listing_id = ?", id).Delete(&domain.LikeModel{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&domain.ListingModel{}, "id = ?", id).Error; err != nil {
			return err
		}

		if keys := listing.ImageKeys(); len(keys) > 0 && purge != nil {
			if err := purge(ctx, keys); err != nil {
				return err
			}
		}

		removed = listing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// TransitionState updates the state only while it still equals from, so
// two concurrent identical transitions cannot both succeed.
func (r *GormListingRepository) TransitionState(ctx context.Context, id int64, from, to domain.ListingState) error {
	result := r.db.WithContext(ctx).Model(&domain.ListingModel{}).
		Where("id = ? AND state = ?", id, string(from)).
		Update("state", string(to))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	exists, err := r.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return ErrListingNotFound
	}
	return ErrStateConflict
}

func (r *GormListingRepository) State(ctx context.Context, id int64) (domain.ListingState, error) {
	var model domain.ListingModel
	if err := r.db.WithContext(ctx).Select("state").First(&model, "id = ?", id).Error; err != nil {
		if isNotFound(err) {
			return "", ErrListingNotFound
		}
		return "", err
	}
	return domain.ListingState(model.State), nil
}

// AddImage attaches a stored object to the listing.
func (r *GormListingRepository) AddImage(ctx context.Context, listingID int64, key string) (*domain.Image, error) {
	var image domain.Image
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockListing(tx, listingID, "SHARE"); err != nil {
			return err
		}

		models, err := insertImages(tx, listingID, []string{key})
		if err != nil {
			return err
		}
		image = models[0].ToDomain()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &image, nil
}

// IDsByOwner returns the IDs of listings owned by ownerID, newest first.
func (r *GormListingRepository) IDsByOwner(ctx context.Context, ownerID string) ([]int64, error) {
	ids := []int64{}
	err := r.db.WithContext(ctx).Model(&domain.ListingModel{}).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC, id DESC").
		Pluck("id", &ids).Error
	return ids, err
}

func (r *GormListingRepository) MaxPrice(ctx context.Context) (decimal.Decimal, error) {
	var highest decimal.NullDecimal
	err := r.db.WithContext(ctx).Model(&domain.ListingModel{}).
		Select("MAX(price)").
		Row().
		Scan(&highest)
	if err != nil {
		return decimal.Zero, err
	}
	if !highest.Valid {
		return decimal.Zero, nil
	}
	return highest.Decimal, nil
}

// Search runs a resolved filter. With a minimum rating the listings are
// joined against the per-owner average of received ratings, which also
// drops owners nobody has rated.
func (r *GormListingRepository) Search(ctx context.Context, f domain.SearchFilter) ([]domain.Listing, error) {
	db := r.db.WithContext(ctx)

	q := db.Model(&domain.ListingModel{}).Select("listings.*")
	if f.City != "" {
		q = q.Where("LOWER(listings.city) = ?", strings.ToLower(f.City))
	}
	if f.Keyword != "" {
		pattern := "%" + likeEscaper.Replace(strings.ToLower(f.Keyword)) + "%"
		q = q.Where("LOWER(listings.description) LIKE ? ESCAPE '"+likeEscape+"'", pattern)
	}
	q = q.Where("listings.price BETWEEN ? AND ?", f.MinPrice, f.MaxPrice).
		Where("listings.created_at BETWEEN ? AND ?", f.From, f.To)

	if f.RatingAware() {
		averages := db.Model(&domain.RatingModel{}).
			Select("rated_id, AVG(value) AS avg_rating").
			Group("rated_id")
		q = q.Joins("JOIN (?) AS owner_ratings ON owner_ratings.rated_id = listings.owner_id", averages).
			Where("owner_ratings.avg_rating >= ?", f.MinRating)
	}

	var models []domain.ListingModel
	if err := q.Order("listings.created_at DESC, listings.id DESC").Find(&models).Error; err != nil {
		return nil, err
	}

	listings := make([]domain.Listing, 0, len(models))
	for i := range models {
		listings = append(listings, *models[i].ToDomain())
	}
	if err := hydrate(db, listings); err != nil {
		return nil, err
	}
	return listings, nil
}

func getListing(db *gorm.DB, id int64) (*domain.Listing, error) {
	var model domain.ListingModel
	if err := db.First(&model, "id = ?", id).Error; err != nil {
		if isNotFound(err) {
			return nil, ErrListingNotFound
		}
		return nil, err
	}

	listings := []domain.Listing{*model.ToDomain()}
	if err := hydrate(db, listings); err != nil {
		return nil, err
	}
	return &listings[0], nil
}

// hydrate loads images, likes and transactions for the listings in three
// queries.
func hydrate(db *gorm.DB, listings []domain.Listing) error {
	if len(listings) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(listings))
	index := make(map[int64]int, len(listings))
	for i := range listings {
		ids = append(ids, listings[i].ID)
		index[listings[i].ID] = i
		listings[i].Images = []domain.Image{}
		listings[i].LikedBy = []string{}
		listings[i].Transaction = nil
	}

	var images []domain.ImageModel
	if err := db.Where("listing_id IN ?", ids).Order("id").Find(&images).Error; err != nil {
		return err
	}
	for i := range images {
		l := &listings[index[images[i].ListingID]]
		l.Images = append(l.Images, images[i].ToDomain())
	}

	var likes []domain.LikeModel
	if err := db.Where("listing_id IN ?", ids).Order("created_at, user_id").Find(&likes).Error; err != nil {
		return err
	}
	for _, like := range likes {
		l := &listings[index[like.ListingID]]
		l.LikedBy = append(l.LikedBy, like.UserID)
	}

	var txs []domain.TransactionModel
	if err := db.Where("listing_id IN ?", ids).Find(&txs).Error; err != nil {
		return err
	}
	for i := range txs {
		t := txs[i].ToDomain()
		listings[index[t.ListingID]].Transaction = &t
	}

	return nil
}

func insertImages(tx *gorm.DB, listingID int64, keys []string) ([]domain.ImageModel, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	models := make([]domain.ImageModel, 0, len(keys))
	for _, key := range keys {
		models = append(models, domain.ImageModel{ListingID: listingID, Key: key})
	}
	if err := tx.Create(&models).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrImageExists
		}
		if isForeignKeyViolation(err) {
			return nil, ErrListingNotFound
		}
		return nil, err
	}
	return models, nil
}

// lockListing takes a row lock on the listing for the rest of tx. Strength
// is UPDATE for writers that delete the row and SHARE for writers that only
// need it to stay. sqlite has no row locks and serializes writers instead.
func lockListing(tx *gorm.DB, id int64, strength string) error {
	var model domain.ListingModel
	err := tx.Clauses(clause.Locking{Strength: strength}).
		Select("id").
		First(&model, "id = ?", id).Error
	if err != nil {
		if isNotFound(err) {
			return ErrListingNotFound
		}
		return err
	}
	return nil
}

// replaceImages makes keys the listing's image set and returns the keys
// that were dropped.
func replaceImages(tx *gorm.DB, listingID int64, keys []string) ([]string, error) {
	var current []domain.ImageModel
	if err := tx.Where("listing_id = ?", listingID).Find(&current).Error; err != nil {
		return nil, err
	}

	want := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		want[k] = struct{}{}
	}
	have := make(map[string]struct{}, len(current))
	var removed []string
	for _, img := range current {
		have[img.Key] = struct{}{}
		if _, ok := want[img.Key]; !ok {
			removed = append(removed, img.Key)
		}
	}

	if len(removed) > 0 {
		if err := tx.Where("listing_id = ? AND object_key IN ?", listingID, removed).
			Delete(&domain.ImageModel{}).Error; err != nil {
			return nil, err
		}
	}

	var added []string
	for _, k := range keys {
		if _, ok := have[k]; ok {
			continue
		}
		have[k] = struct{}{}
		added = append(added, k)
	}
	if _, err := insertImages(tx, listingID, added); err != nil {
		return nil, err
	}

	return removed, nil
}

func toImages(models []domain.ImageModel) []domain.Image {
	images := make([]domain.Image, 0, len(models))
	for i := range models {
		images = append(images, models[i].ToDomain())
	}
	return images
}

// Ensure interface is satisfied at compile time.
var _ ListingRepository = (*GormListingRepository)(nil)
