package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// UserModel is the GORM model for the users table.
type UserModel struct {
	ID           string    `gorm:"type:varchar(36);primaryKey"`
	Email        string    `gorm:"type:varchar(255);uniqueIndex;not null"`
	Username     string    `gorm:"type:varchar(50);uniqueIndex;not null"`
	PasswordHash string    `gorm:"type:varchar(255);not null"`
	Role         string    `gorm:"type:varchar(16);not null;default:standard"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

func (UserModel) TableName() string { return "users" }

// ToDomain converts UserModel to domain User.
func (m *UserModel) ToDomain() *User {
	return &User{
		ID:           m.ID,
		Email:        m.Email,
		Username:     m.Username,
		PasswordHash: m.PasswordHash,
		Role:         Role(m.Role),
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

// UserToModel converts domain User to UserModel.
func UserToModel(u *User) *UserModel {
	role := u.Role
	if role == "" {
		role = RoleStandard
	}
	return &UserModel{
		ID:           u.ID,
		Email:        u.Email,
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		Role:         string(role),
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

// ListingModel is the GORM model for the listings table. Relations are
// loaded by explicit queries, never through associations.
type ListingModel struct {
	ID          int64           `gorm:"primaryKey;autoIncrement:false"`
	Title       string          `gorm:"type:varchar(200);not null"`
	Description string          `gorm:"type:text"`
	City        string          `gorm:"type:varchar(100);index"`
	Price       decimal.Decimal `gorm:"type:decimal(12,2);not null;check:chk_listings_price,price >= 0"`
	OwnerID     string          `gorm:"type:varchar(36);not null;index"`
	State       string          `gorm:"type:varchar(16);not null;index"`
	CreatedAt   time.Time       `gorm:"autoCreateTime;index"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime"`
}

func (ListingModel) TableName() string { return "listings" }

// ToDomain converts the row without relations.
func (m *ListingModel) ToDomain() *Listing {
	return &Listing{
		ID:          m.ID,
		Title:       m.Title,
		Description: m.Description,
		City:        m.City,
		Price:       m.Price,
		OwnerID:     m.OwnerID,
		State:       ListingState(m.State),
		CreatedAt:   m.CreatedAt,
	}
}

// ListingToModel converts domain Listing to ListingModel.
func ListingToModel(l *Listing) *ListingModel {
	return &ListingModel{
		ID:          l.ID,
		Title:       l.Title,
		Description: l.Description,
		City:        l.City,
		Price:       l.Price,
		OwnerID:     l.OwnerID,
		State:       string(l.State),
		CreatedAt:   l.CreatedAt,
	}
}

// ImageModel is the GORM model for the listing_images table. The foreign
// key makes an image insert for a removed listing fail in the store.
type ImageModel struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	ListingID int64     `gorm:"not null;index"`
	Key       string    `gorm:"column:object_key;type:varchar(512);not null;uniqueIndex"`
	CreatedAt time.Time `gorm:"autoCreateTime"`

	Listing *ListingModel `gorm:"foreignKey:ListingID;references:ID;constraint:OnDelete:CASCADE"`
}

func (ImageModel) TableName() string { return "listing_images" }

func (m *ImageModel) ToDomain() Image {
	return Image{ID: m.ID, ListingID: m.ListingID, Key: m.Key, CreatedAt: m.CreatedAt}
}

// LikeModel is one row per (user, listing) like. The primary key serves the
// user's like set and idx_listing_likes_listing serves the listing's likers.
type LikeModel struct {
	UserID    string    `gorm:"type:varchar(36);primaryKey"`
	ListingID int64     `gorm:"primaryKey;autoIncrement:false;index:idx_listing_likes_listing"`
	CreatedAt time.Time `gorm:"autoCreateTime"`

	Listing *ListingModel `gorm:"foreignKey:ListingID;references:ID;constraint:OnDelete:CASCADE"`
}

func (LikeModel) TableName() string { return "listing_likes" }

// FollowModel is the GORM model for the follows table. Following and
// followers are the two index views of the same rows.
type FollowModel struct {
	FollowerID  string    `gorm:"type:varchar(36);primaryKey"`
	FollowingID string    `gorm:"type:varchar(36);primaryKey;index:idx_follows_following"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
}

func (FollowModel) TableName() string { return "follows" }

// TransactionModel is the GORM model for purchase_transactions. The unique
// listing_id index allows one transaction per listing. Rows outlive their
// listing as purchase history, so there is no foreign key; the repository
// checks the listing under a row lock instead.
type TransactionModel struct {
	BuyerID   string    `gorm:"type:varchar(36);primaryKey"`
	ListingID int64     `gorm:"primaryKey;autoIncrement:false;uniqueIndex:idx_purchase_transactions_listing"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (TransactionModel) TableName() string { return "purchase_transactions" }

func (m *TransactionModel) ToDomain() Transaction {
	return Transaction{BuyerID: m.BuyerID, ListingID: m.ListingID, CreatedAt: m.CreatedAt}
}

// RatingModel is the GORM model for the ratings table.
type RatingModel struct {
	RaterID   string    `gorm:"type:varchar(36);primaryKey"`
	RatedID   string    `gorm:"type:varchar(36);primaryKey;index:idx_ratings_rated"`
	Value     int       `gorm:"not null;check:chk_ratings_value,value BETWEEN 1 AND 5"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (RatingModel) TableName() string { return "ratings" }

func (m *RatingModel) ToDomain() Rating {
	return Rating{RaterID: m.RaterID, RatedID: m.RatedID, Value: m.Value, CreatedAt: m.CreatedAt}
}

// Models lists every model for auto-migration.
func Models() []any {
	return []any{
		&UserModel{},
		&ListingModel{},
		&ImageModel{},
		&LikeModel{},
		&FollowModel{},
		&TransactionModel{},
		&RatingModel{},
	}
}
