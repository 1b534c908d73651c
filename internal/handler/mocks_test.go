package handler

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"github.com/weiawesome/wes-market/internal/domain"
	"github.com/weiawesome/wes-market/pkg/pubsub"
)

type mockListingService struct{ mock.Mock }

func (m *mockListingService) Create(ctx context.Context, listing *domain.Listing) (*domain.Listing, error) {
	args := m.Called(ctx, listing)
	l, _ := args.Get(0).(*domain.Listing)
	return l, args.Error(1)
}

func (m *mockListingService) Update(ctx context.Context, listing *domain.Listing) (*domain.Listing, error) {
	args := m.Called(ctx, listing)
	l, _ := args.Get(0).(*domain.Listing)
	return l, args.Error(1)
}

func (m *mockListingService) Remove(ctx context.Context, listingID int64) error {
	return m.Called(ctx, listingID).Error(0)
}

func (m *mockListingService) SetOnHold(ctx context.Context, listingID int64) error {
	return m.Called(ctx, listingID).Error(0)
}

func (m *mockListingService) SetOnSale(ctx context.Context, listingID int64) error {
	return m.Called(ctx, listingID).Error(0)
}

func (m *mockListingService) AreOnHold(ctx context.Context, listingID int64) (bool, error) {
	args := m.Called(ctx, listingID)
	return args.Bool(0), args.Error(1)
}

func (m *mockListingService) Get(ctx context.Context, listingID int64) (*domain.Listing, error) {
	args := m.Called(ctx, listingID)
	l, _ := args.Get(0).(*domain.Listing)
	return l, args.Error(1)
}

func (m *mockListingService) AddImage(ctx context.Context, listingID int64, key string) (*domain.Image, error) {
	args := m.Called(ctx, listingID, key)
	img, _ := args.Get(0).(*domain.Image)
	return img, args.Error(1)
}

func (m *mockListingService) UploadImage(ctx context.Context, listingID int64, r io.Reader) (*domain.Image, error) {
	args := m.Called(ctx, listingID, r)
	img, _ := args.Get(0).(*domain.Image)
	return img, args.Error(1)
}

type mockTransactionService struct{ mock.Mock }

func (m *mockTransactionService) Create(ctx context.Context, buyerID string, listingID int64) (*domain.Transaction, error) {
	args := m.Called(ctx, buyerID, listingID)
	tx, _ := args.Get(0).(*domain.Transaction)
	return tx, args.Error(1)
}

func (m *mockTransactionService) UserHasBoughtListing(ctx context.Context, buyerID string, listingID int64) (bool, error) {
	args := m.Called(ctx, buyerID, listingID)
	return args.Bool(0), args.Error(1)
}

func (m *mockTransactionService) PurchasesOf(ctx context.Context, buyerID string) ([]domain.Transaction, error) {
	args := m.Called(ctx, buyerID)
	txs, _ := args.Get(0).([]domain.Transaction)
	return txs, args.Error(1)
}

type mockReputationService struct{ mock.Mock }

func (m *mockReputationService) Rate(ctx context.Context, raterID, ratedID string, value int) error {
	return m.Called(ctx, raterID, ratedID, value).Error(0)
}

func (m *mockReputationService) AverageRating(ctx context.Context, userID string) (float64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(float64), args.Error(1)
}

func (m *mockReputationService) ExistsRatingFor(ctx context.Context, userID string) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

func (m *mockReputationService) ExistsRatingFromTo(ctx context.Context, raterID, ratedID string) (bool, error) {
	args := m.Called(ctx, raterID, ratedID)
	return args.Bool(0), args.Error(1)
}

func (m *mockReputationService) GivenRating(ctx context.Context, raterID, ratedID string) (int, error) {
	args := m.Called(ctx, raterID, ratedID)
	return args.Int(0), args.Error(1)
}

func (m *mockReputationService) Follow(ctx context.Context, userID, targetID string) error {
	return m.Called(ctx, userID, targetID).Error(0)
}

func (m *mockReputationService) Unfollow(ctx context.Context, userID, targetID string) error {
	return m.Called(ctx, userID, targetID).Error(0)
}

func (m *mockReputationService) IsFollowing(ctx context.Context, userID, targetID string) (bool, error) {
	args := m.Called(ctx, userID, targetID)
	return args.Bool(0), args.Error(1)
}

func (m *mockReputationService) Following(ctx context.Context, userID string) ([]string, error) {
	args := m.Called(ctx, userID)
	ids, _ := args.Get(0).([]string)
	return ids, args.Error(1)
}

func (m *mockReputationService) Followers(ctx context.Context, userID string) ([]string, error) {
	args := m.Called(ctx, userID)
	ids, _ := args.Get(0).([]string)
	return ids, args.Error(1)
}

func (m *mockReputationService) FollowersCount(ctx context.Context, userID string) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockReputationService) Like(ctx context.Context, userID string, listingID int64) error {
	return m.Called(ctx, userID, listingID).Error(0)
}

func (m *mockReputationService) Unlike(ctx context.Context, userID string, listingID int64) error {
	return m.Called(ctx, userID, listingID).Error(0)
}

func (m *mockReputationService) LikedListings(ctx context.Context, userID string) ([]int64, error) {
	args := m.Called(ctx, userID)
	ids, _ := args.Get(0).([]int64)
	return ids, args.Error(1)
}

func (m *mockReputationService) TogglePremiumRole(ctx context.Context, userID string) (domain.Role, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(domain.Role), args.Error(1)
}

func (m *mockReputationService) UserGraph(ctx context.Context, userID string) (*domain.UserGraph, error) {
	args := m.Called(ctx, userID)
	g, _ := args.Get(0).(*domain.UserGraph)
	return g, args.Error(1)
}

func (m *mockReputationService) HandleEvent(ctx context.Context, event *pubsub.Event) error {
	return m.Called(ctx, event).Error(0)
}

type mockSearchService struct{ mock.Mock }

func (m *mockSearchService) Search(ctx context.Context, criteria domain.SearchCriteria) ([]domain.Listing, error) {
	args := m.Called(ctx, criteria)
	out, _ := args.Get(0).([]domain.Listing)
	return out, args.Error(1)
}

type mockAccountService struct{ mock.Mock }

func (m *mockAccountService) Register(ctx context.Context, req *domain.RegisterRequest) (*domain.AuthResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*domain.AuthResponse)
	return resp, args.Error(1)
}

func (m *mockAccountService) Login(ctx context.Context, req *domain.LoginRequest) (*domain.AuthResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*domain.AuthResponse)
	return resp, args.Error(1)
}

func (m *mockAccountService) RefreshToken(ctx context.Context, req *domain.RefreshTokenRequest) (*domain.AuthResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*domain.AuthResponse)
	return resp, args.Error(1)
}

func (m *mockAccountService) Logout(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *mockAccountService) GetUser(ctx context.Context, userID string) (*domain.UserResponse, error) {
	args := m.Called(ctx, userID)
	u, _ := args.Get(0).(*domain.UserResponse)
	return u, args.Error(1)
}
