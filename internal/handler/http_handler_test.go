package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-market/internal/domain"
	"github.com/weiawesome/wes-market/internal/processor"
	"github.com/weiawesome/wes-market/internal/service"
	"github.com/weiawesome/wes-market/pkg/jwt"
	"github.com/weiawesome/wes-market/pkg/middleware"
	"github.com/weiawesome/wes-market/pkg/response"
	"github.com/weiawesome/wes-market/pkg/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router       *gin.Engine
	handler      *Handler
	tokens       *jwt.Manager
	listings     *mockListingService
	transactions *mockTransactionService
	reputation   *mockReputationService
	search       *mockSearchService
	accounts     *mockAccountService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	tokens, err := jwt.NewManager(jwt.Config{AccessDuration: time.Minute, RefreshDuration: time.Hour, Issuer: "test"})
	require.NoError(t, err)
	st, err := storage.NewLocalStorage(storage.LocalConfig{BasePath: t.TempDir(), URLPrefix: "/media"})
	require.NoError(t, err)

	s := &testServer{
		tokens:       tokens,
		listings:     new(mockListingService),
		transactions: new(mockTransactionService),
		reputation:   new(mockReputationService),
		search:       new(mockSearchService),
		accounts:     new(mockAccountService),
	}
	s.handler = NewHandler(Services{
		Listings:     s.listings,
		Transactions: s.transactions,
		Reputation:   s.reputation,
		Search:       s.search,
		Accounts:     s.accounts,
	}, st, middleware.NewAuthMiddleware(tokens), nil, Config{})

	s.router = gin.New()
	s.handler.RegisterRoutes(s.router)
	return s
}

func (s *testServer) do(t *testing.T, method, path, userID string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if userID != "" {
		pair, err := s.tokens.GenerateTokenPair(userID, userID+"@example.com", userID, []string{"standard"})
		require.NoError(t, err)
		req.Header.Set(middleware.AuthHeaderKey, middleware.BearerPrefix+pair.AccessToken)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) doJSON(t *testing.T, method, path, userID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		require.NoError(t, err)
	}
	return s.do(t, method, path, userID, raw, "application/json")
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) *response.ErrorInfo {
	t.Helper()
	var resp response.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	return resp.Error
}

func sampleListing(id int64, owner string, state domain.ListingState) *domain.Listing {
	return &domain.Listing{
		ID:        id,
		Title:     "Bike",
		City:      "Oslo",
		Price:     decimal.NewFromInt(100),
		OwnerID:   owner,
		State:     state,
		CreatedAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		Images:    []domain.Image{{Key: "listings/7/a.jpg"}},
		LikedBy:   []string{"u-9"},
	}
}

func TestBuyListing_Policies(t *testing.T) {
	t.Run("on hold", func(t *testing.T) {
		s := newTestServer(t)
		s.listings.On("Get", mock.Anything, int64(7)).Return(sampleListing(7, "seller", domain.ListingStateOnHold), nil)

		rec := s.doJSON(t, http.MethodPost, "/api/v1/listings/7/buy", "buyer", nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, CodeListingOnHold, decodeError(t, rec).Code)
		s.transactions.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("own listing", func(t *testing.T) {
		s := newTestServer(t)
		s.listings.On("Get", mock.Anything, int64(7)).Return(sampleListing(7, "seller", domain.ListingStateOnSale), nil)

		rec := s.doJSON(t, http.MethodPost, "/api/v1/listings/7/buy", "seller", nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, CodeOwnListing, decodeError(t, rec).Code)
		s.transactions.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("bought", func(t *testing.T) {
		s := newTestServer(t)
		s.listings.On("Get", mock.Anything, int64(7)).Return(sampleListing(7, "seller", domain.ListingStateOnSale), nil)
		s.transactions.On("Create", mock.Anything, "buyer", int64(7)).
			Return(&domain.Transaction{BuyerID: "buyer", ListingID: 7, CreatedAt: time.Now()}, nil)

		rec := s.doJSON(t, http.MethodPost, "/api/v1/listings/7/buy", "buyer", nil)
		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Contains(t, rec.Body.String(), `"listing_id":"7"`)
	})

	t.Run("already sold", func(t *testing.T) {
		s := newTestServer(t)
		s.listings.On("Get", mock.Anything, int64(7)).Return(sampleListing(7, "seller", domain.ListingStateOnSale), nil)
		s.transactions.On("Create", mock.Anything, "late", int64(7)).Return(nil, service.ErrTransactionAlreadyExists)

		rec := s.doJSON(t, http.MethodPost, "/api/v1/listings/7/buy", "late", nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, response.CodeConflict, decodeError(t, rec).Code)
	})

	t.Run("unknown listing", func(t *testing.T) {
		s := newTestServer(t)
		s.listings.On("Get", mock.Anything, int64(8)).Return(nil, service.ErrListingNotFound)

		rec := s.doJSON(t, http.MethodPost, "/api/v1/listings/8/buy", "buyer", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("anonymous", func(t *testing.T) {
		s := newTestServer(t)
		rec := s.doJSON(t, http.MethodPost, "/api/v1/listings/7/buy", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestSearchListings(t *testing.T) {
	s := newTestServer(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.handler.now = func() time.Time { return now }

	fresh := *sampleListing(1, "a", domain.ListingStateOnSale)
	fresh.Transaction = &domain.Transaction{BuyerID: "b", ListingID: 1, CreatedAt: now.Add(-time.Hour)}
	stale := *sampleListing(2, "a", domain.ListingStateOnSale)
	stale.Transaction = &domain.Transaction{BuyerID: "b", ListingID: 2, CreatedAt: now.Add(-25 * time.Hour)}
	unsold := *sampleListing(3, "a", domain.ListingStateOnSale)

	s.search.On("Search", mock.Anything, mock.MatchedBy(func(c domain.SearchCriteria) bool {
		return c.City != nil && *c.City == "Oslo" &&
			c.Keyword == nil &&
			c.MinPrice != nil && c.MinPrice.Equal(decimal.NewFromInt(10)) &&
			c.MaxPrice == nil &&
			c.MinDate != nil && c.MinDate.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)) &&
			c.MinRating != nil && *c.MinRating == 99
	})).Return([]domain.Listing{fresh, stale, unsold}, nil)

	rec := s.do(t, http.MethodGet, "/api/v1/listings?city=Oslo&min_price=10&min_date=2025-01-01&min_rating=99", "", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data []ListingResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 2)
	assert.Equal(t, int64(1), body.Data[0].ID)
	assert.NotNil(t, body.Data[0].SoldAt)
	assert.Equal(t, int64(3), body.Data[1].ID)
	assert.Equal(t, "/media/listings/7/a.jpg", body.Data[1].Images[0].URL)
	assert.Equal(t, 1, body.Data[1].Likes)

	for _, bad := range []string{"min_price=abc", "max_date=yesterday", "min_rating=high"} {
		rec := s.do(t, http.MethodGet, "/api/v1/listings?"+bad, "", nil, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
	}
}

func TestFilterRecentlySold(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	listings := []domain.Listing{
		{ID: 1},
		{ID: 2, Transaction: &domain.Transaction{CreatedAt: now.Add(-23 * time.Hour)}},
		{ID: 3, Transaction: &domain.Transaction{CreatedAt: now.Add(-24*time.Hour - time.Second)}},
	}

	kept := filterRecentlySold(listings, now)
	require.Len(t, kept, 2)
	assert.Equal(t, int64(1), kept[0].ID)
	assert.Equal(t, int64(2), kept[1].ID)
}

func TestOwnershipIsEnforced(t *testing.T) {
	s := newTestServer(t)
	s.listings.On("Get", mock.Anything, int64(5)).Return(sampleListing(5, "owner", domain.ListingStateOnSale), nil)

	body := map[string]interface{}{"title": "Hijacked", "price": "1"}
	cases := []struct {
		method string
		path   string
	}{
		{http.MethodPut, "/api/v1/listings/5"},
		{http.MethodDelete, "/api/v1/listings/5"},
		{http.MethodPost, "/api/v1/listings/5/hold"},
		{http.MethodPost, "/api/v1/listings/5/sale"},
		{http.MethodPost, "/api/v1/listings/5/images"},
	}
	for _, tc := range cases {
		rec := s.doJSON(t, tc.method, tc.path, "intruder", body)
		assert.Equal(t, http.StatusForbidden, rec.Code, tc.method+" "+tc.path)
	}

	s.listings.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	s.listings.AssertNotCalled(t, "Remove", mock.Anything, mock.Anything)
	s.listings.AssertNotCalled(t, "SetOnHold", mock.Anything, mock.Anything)
}

func TestCreateAndUpdateListing(t *testing.T) {
	s := newTestServer(t)

	s.listings.On("Create", mock.Anything, mock.MatchedBy(func(l *domain.Listing) bool {
		return l.OwnerID == "owner" && l.Title == "Bike" && l.Price.Equal(decimal.RequireFromString("99.5")) &&
			len(l.Images) == 1 && l.Images[0].Key == "k1"
	})).Return(sampleListing(9, "owner", domain.ListingStateOnSale), nil)

	rec := s.doJSON(t, http.MethodPost, "/api/v1/listings", "owner", map[string]interface{}{
		"title": "Bike", "price": "99.5", "city": "Oslo", "image_keys": []string{"k1", " "},
	})
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"9"`)

	s.listings.On("Get", mock.Anything, int64(9)).Return(sampleListing(9, "owner", domain.ListingStateOnHold), nil)
	s.listings.On("Update", mock.Anything, mock.MatchedBy(func(l *domain.Listing) bool {
		return l.ID == 9 && l.OwnerID == "owner" && l.Title == "Road bike" && l.Images == nil
	})).Return(sampleListing(9, "owner", domain.ListingStateOnHold), nil)

	rec = s.doJSON(t, http.MethodPut, "/api/v1/listings/9", "owner", map[string]interface{}{
		"title": "Road bike", "price": "80",
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	s.listings.On("Create", mock.Anything, mock.Anything).Return(nil, service.ErrInvalidListing).Once()
	rec = s.doJSON(t, http.MethodPost, "/api/v1/listings", "owner", map[string]interface{}{"title": "x", "price": "-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHoldAndRelease(t *testing.T) {
	s := newTestServer(t)
	s.listings.On("Get", mock.Anything, int64(4)).Return(sampleListing(4, "owner", domain.ListingStateOnSale), nil)
	s.listings.On("SetOnHold", mock.Anything, int64(4)).Return(nil).Once()
	s.listings.On("SetOnHold", mock.Anything, int64(4)).Return(service.ErrAlreadyOnHold).Once()
	s.listings.On("SetOnSale", mock.Anything, int64(4)).Return(nil).Once()

	assert.Equal(t, http.StatusOK, s.doJSON(t, http.MethodPost, "/api/v1/listings/4/hold", "owner", nil).Code)
	assert.Equal(t, http.StatusConflict, s.doJSON(t, http.MethodPost, "/api/v1/listings/4/hold", "owner", nil).Code)
	assert.Equal(t, http.StatusOK, s.doJSON(t, http.MethodPost, "/api/v1/listings/4/sale", "owner", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.doJSON(t, http.MethodPost, "/api/v1/listings/abc/hold", "owner", nil).Code)
}

func TestUploadImage(t *testing.T) {
	s := newTestServer(t)
	s.listings.On("Get", mock.Anything, int64(3)).Return(sampleListing(3, "owner", domain.ListingStateOnSale), nil)
	s.listings.On("UploadImage", mock.Anything, int64(3), mock.Anything).
		Return(&domain.Image{ListingID: 3, Key: "listings/3/x.jpg"}, nil).Once()
	s.listings.On("UploadImage", mock.Anything, int64(3), mock.Anything).
		Return(nil, processor.ErrInvalidImage).Once()

	form := func() ([]byte, string) {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		part, err := w.CreateFormFile("image", "photo.png")
		require.NoError(t, err)
		_, err = part.Write([]byte("fake image bytes"))
		require.NoError(t, err)
		require.NoError(t, w.Close())
		return buf.Bytes(), w.FormDataContentType()
	}

	body, ct := form()
	rec := s.do(t, http.MethodPost, "/api/v1/listings/3/images", "owner", body, ct)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), "/media/listings/3/x.jpg")

	body, ct = form()
	rec = s.do(t, http.MethodPost, "/api/v1/listings/3/images", "owner", body, ct)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.doJSON(t, http.MethodPost, "/api/v1/listings/3/images", "owner", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReputationRoutes(t *testing.T) {
	s := newTestServer(t)

	s.reputation.On("Rate", mock.Anything, "me", "u-2", 5).Return(nil).Once()
	s.reputation.On("Rate", mock.Anything, "me", "u-2", 5).Return(service.ErrAlreadyRated).Once()
	s.reputation.On("Rate", mock.Anything, "me", "u-2", 0).Return(service.ErrRatingTooLow).Once()
	s.reputation.On("AverageRating", mock.Anything, "u-2").Return(4.5, nil)
	s.reputation.On("AverageRating", mock.Anything, "u-3").Return(0.0, service.ErrNoRating)
	s.reputation.On("GivenRating", mock.Anything, "me", "u-2").Return(5, nil)
	s.reputation.On("Follow", mock.Anything, "u-1", "u-1").Return(service.ErrSelfFollow)
	s.reputation.On("Unfollow", mock.Anything, "me", "u-2").Return(service.ErrNotFollowing)
	s.reputation.On("FollowersCount", mock.Anything, "u-2").Return(int64(3), nil)
	s.reputation.On("TogglePremiumRole", mock.Anything, "me").Return(domain.RolePremium, nil)
	s.reputation.On("Like", mock.Anything, "me", int64(7)).Return(nil)
	s.reputation.On("UserGraph", mock.Anything, "ghost").Return(nil, service.ErrUserNotFound)

	assert.Equal(t, http.StatusCreated, s.doJSON(t, http.MethodPost, "/api/v1/users/u-2/ratings", "me", gin.H{"value": 5}).Code)
	assert.Equal(t, http.StatusConflict, s.doJSON(t, http.MethodPost, "/api/v1/users/u-2/ratings", "me", gin.H{"value": 5}).Code)
	assert.Equal(t, http.StatusBadRequest, s.doJSON(t, http.MethodPost, "/api/v1/users/u-2/ratings", "me", gin.H{"value": 0}).Code)

	rec := s.doJSON(t, http.MethodGet, "/api/v1/users/u-2/rating", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"average":4.5`)
	assert.Equal(t, http.StatusNotFound, s.doJSON(t, http.MethodGet, "/api/v1/users/u-3/rating", "", nil).Code)

	assert.Equal(t, http.StatusOK, s.doJSON(t, http.MethodGet, "/api/v1/users/u-2/ratings/given", "me", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.doJSON(t, http.MethodPost, "/api/v1/users/u-1/follow", "u-1", nil).Code)
	assert.Equal(t, http.StatusConflict, s.doJSON(t, http.MethodDelete, "/api/v1/users/u-2/follow", "me", nil).Code)
	assert.Equal(t, http.StatusOK, s.doJSON(t, http.MethodGet, "/api/v1/users/u-2/followers/count", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.doJSON(t, http.MethodGet, "/api/v1/users/ghost/graph", "", nil).Code)
	assert.Equal(t, http.StatusOK, s.doJSON(t, http.MethodPost, "/api/v1/listings/7/like", "me", nil).Code)

	rec = s.doJSON(t, http.MethodPost, "/api/v1/users/me/premium", "me", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"role":"premium"`)
}

func TestAccountRoutes(t *testing.T) {
	s := newTestServer(t)

	s.accounts.On("Register", mock.Anything, mock.Anything).Return(nil, service.ErrEmailExists).Once()
	s.accounts.On("Login", mock.Anything, mock.Anything).Return(nil, service.ErrInvalidCredentials).Once()
	s.accounts.On("GetUser", mock.Anything, "me").Return(&domain.UserResponse{ID: "me", Username: "me"}, nil)
	s.accounts.On("Logout", mock.Anything, "me").Return(nil)

	rec := s.doJSON(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{"email": "a@example.com", "username": "alice", "password": "secret1"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.doJSON(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{"email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.doJSON(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "a@example.com", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.Equal(t, http.StatusOK, s.doJSON(t, http.MethodGet, "/api/v1/users/me", "me", nil).Code)
	assert.Equal(t, http.StatusOK, s.doJSON(t, http.MethodPost, "/api/v1/auth/logout", "me", nil).Code)
}

func TestFail_InternalError(t *testing.T) {
	s := newTestServer(t)
	s.listings.On("Get", mock.Anything, int64(1)).Return(nil, errors.New("db exploded"))

	rec := s.doJSON(t, http.MethodGet, "/api/v1/listings/1", "", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	info := decodeError(t, rec)
	assert.Equal(t, response.CodeInternal, info.Code)
	assert.NotContains(t, info.Message, "exploded")
}
