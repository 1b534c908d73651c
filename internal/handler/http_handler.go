package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-market/internal/processor"
	"github.com/weiawesome/wes-market/internal/service"
	"github.com/weiawesome/wes-market/pkg/log"
	"github.com/weiawesome/wes-market/pkg/middleware"
	"github.com/weiawesome/wes-market/pkg/response"
	"github.com/weiawesome/wes-market/pkg/storage"
)

// Purchase policy codes.
const (
	CodeListingOnHold = "LISTING_ON_HOLD"
	CodeOwnListing    = "OWN_LISTING"
)

// recentlySoldWindow is how long a sold listing stays visible in search.
const recentlySoldWindow = 24 * time.Hour

// Services groups the core services the handler calls.
type Services struct {
	Listings     service.ListingService
	Transactions service.TransactionService
	Reputation   service.ReputationService
	Search       service.SearchService
	Accounts     service.AccountService
}

// Config holds handler settings.
type Config struct {
	ImageURLTTL    time.Duration `mapstructure:"image_url_ttl"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes"`
}

// Handler handles HTTP requests for the marketplace.
type Handler struct {
	svc            Services
	storage        storage.Storage
	authMiddleware *middleware.AuthMiddleware
	limiter        *middleware.RateLimiter
	cfg            Config
	now            func() time.Time
}

// NewHandler creates a new HTTP handler. limiter may be nil.
func NewHandler(svc Services, store storage.Storage, authMiddleware *middleware.AuthMiddleware, limiter *middleware.RateLimiter, cfg Config) *Handler {
	if cfg.ImageURLTTL <= 0 {
		cfg.ImageURLTTL = time.Hour
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 10 << 20
	}
	return &Handler{
		svc:            svc,
		storage:        store,
		authMiddleware: authMiddleware,
		limiter:        limiter,
		cfg:            cfg,
		now:            time.Now,
	}
}

// RegisterRoutes registers all routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	auth := h.authMiddleware.RequireAuth()

	// Mutations are rate limited per caller.
	write := []gin.HandlerFunc{auth}
	if h.limiter != nil {
		write = append(write, h.limiter.Handler())
	}
	guarded := func(fn gin.HandlerFunc) []gin.HandlerFunc {
		return append(append([]gin.HandlerFunc{}, write...), fn)
	}

	accounts := api.Group("/auth")
	{
		accounts.POST("/register", h.Register)
		accounts.POST("/login", h.Login)
		accounts.POST("/refresh", h.RefreshToken)
		accounts.POST("/logout", auth, h.Logout)
	}

	listings := api.Group("/listings")
	{
		listings.GET("", h.SearchListings)
		listings.GET("/:id", h.GetListing)
		listings.POST("", guarded(h.CreateListing)...)
		listings.PUT("/:id", guarded(h.UpdateListing)...)
		listings.DELETE("/:id", guarded(h.RemoveListing)...)
		listings.POST("/:id/hold", guarded(h.HoldListing)...)
		listings.POST("/:id/sale", guarded(h.ReleaseListing)...)
		listings.POST("/:id/images", guarded(h.UploadImage)...)
		listings.POST("/:id/buy", guarded(h.BuyListing)...)
		listings.GET("/:id/bought", auth, h.HasBought)
		listings.POST("/:id/like", guarded(h.LikeListing)...)
		listings.DELETE("/:id/like", guarded(h.UnlikeListing)...)
	}

	users := api.Group("/users")
	{
		users.GET("/me", auth, h.GetMe)
		users.POST("/me/premium", guarded(h.TogglePremium)...)
		users.POST("/:user_id/ratings", guarded(h.RateUser)...)
		users.GET("/:user_id/rating", h.AverageRating)
		users.GET("/:user_id/ratings/given", auth, h.GivenRating)
		users.POST("/:user_id/follow", guarded(h.FollowUser)...)
		users.DELETE("/:user_id/follow", guarded(h.UnfollowUser)...)
		users.GET("/:user_id/followers/count", h.FollowersCount)
		users.GET("/:user_id/graph", h.UserGraph)
	}
}

// fail maps a service error onto the response envelope.
func (h *Handler) fail(c *gin.Context, err error, action string) {
	switch {
	case errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrListingNotFound),
		errors.Is(err, service.ErrTransactionNotFound),
		errors.Is(err, service.ErrRatingNotFound),
		errors.Is(err, service.ErrNoRating):
		response.NotFound(c, err.Error())

	case errors.Is(err, service.ErrListingAlreadyExists),
		errors.Is(err, service.ErrImageInUse),
		errors.Is(err, service.ErrAlreadyOnHold),
		errors.Is(err, service.ErrAlreadyOnSale),
		errors.Is(err, service.ErrTransactionAlreadyExists),
		errors.Is(err, service.ErrAlreadyRated),
		errors.Is(err, service.ErrAlreadyFollowing),
		errors.Is(err, service.ErrNotFollowing),
		errors.Is(err, service.ErrEmailExists),
		errors.Is(err, service.ErrUsernameExists):
		response.Conflict(c, err.Error())

	case errors.Is(err, service.ErrInvalidListing),
		errors.Is(err, service.ErrRatingTooLow),
		errors.Is(err, service.ErrRatingTooHigh),
		errors.Is(err, service.ErrSelfRating),
		errors.Is(err, service.ErrSelfFollow),
		errors.Is(err, service.ErrNilArgument),
		errors.Is(err, processor.ErrInvalidImage):
		response.BadRequest(c, err.Error())

	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrInvalidToken):
		response.Unauthorized(c, err.Error())

	default:
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Str("action", action).Msg("request failed")
		response.InternalError(c, "failed to "+action)
	}
}

func listingID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "invalid listing id")
		return 0, false
	}
	return id, true
}

// HealthCheck reports liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
