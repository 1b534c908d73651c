package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/weiawesome/wes-market/internal/domain"
	"github.com/weiawesome/wes-market/pkg/log"
	"github.com/weiawesome/wes-market/pkg/middleware"
	"github.com/weiawesome/wes-market/pkg/response"
)

// SearchListings runs the search combinator and hides listings sold more
// than a day ago.
func (h *Handler) SearchListings(c *gin.Context) {
	ctx := c.Request.Context()

	criteria, err := parseSearchCriteria(c)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	listings, err := h.svc.Search.Search(ctx, criteria)
	if err != nil {
		h.fail(c, err, "search listings")
		return
	}

	response.Success(c, h.toListingResponses(ctx, filterRecentlySold(listings, h.now())))
}

func parseSearchCriteria(c *gin.Context) (domain.SearchCriteria, error) {
	var criteria domain.SearchCriteria

	if v, ok := c.GetQuery("city"); ok {
		criteria.City = &v
	}
	if v, ok := c.GetQuery("keyword"); ok {
		criteria.Keyword = &v
	}

	for _, p := range []struct {
		name string
		dst  **decimal.Decimal
	}{
		{"min_price", &criteria.MinPrice},
		{"max_price", &criteria.MaxPrice},
	} {
		raw := c.Query(p.name)
		if raw == "" {
			continue
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return criteria, fmt.Errorf("invalid %s", p.name)
		}
		*p.dst = &d
	}

	for _, p := range []struct {
		name string
		dst  **time.Time
	}{
		{"min_date", &criteria.MinDate},
		{"max_date", &criteria.MaxDate},
	} {
		raw := c.Query(p.name)
		if raw == "" {
			continue
		}
		t, err := parseDate(raw)
		if err != nil {
			return criteria, fmt.Errorf("invalid %s", p.name)
		}
		*p.dst = &t
	}

	if raw := c.Query("min_rating"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return criteria, fmt.Errorf("invalid min_rating")
		}
		criteria.MinRating = &v
	}

	return criteria, nil
}

// parseDate accepts a calendar date or an RFC 3339 timestamp.
func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}

// GetListing returns a single listing.
func (h *Handler) GetListing(c *gin.Context) {
	ctx := c.Request.Context()
	id, ok := listingID(c)
	if !ok {
		return
	}

	listing, err := h.svc.Listings.Get(ctx, id)
	if err != nil {
		h.fail(c, err, "get listing")
		return
	}
	response.Success(c, h.toListingResponse(ctx, listing))
}

// CreateListing creates a listing owned by the caller.
func (h *Handler) CreateListing(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req domain.ListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("invalid create listing request")
		response.BadRequest(c, err.Error())
		return
	}

	listing := domain.NewListing(middleware.GetUserID(c), req.Title, req.Description, req.City, req.Price)
	if req.ImageKeys != nil {
		listing.Images = imagesFromKeys(*req.ImageKeys)
	}

	created, err := h.svc.Listings.Create(ctx, listing)
	if err != nil {
		h.fail(c, err, "create listing")
		return
	}
	response.Created(c, h.toListingResponse(ctx, created))
}

// UpdateListing overwrites a listing the caller owns.
func (h *Handler) UpdateListing(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	current, ok := h.ownedListing(c)
	if !ok {
		return
	}

	var req domain.ListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("invalid update listing request")
		response.BadRequest(c, err.Error())
		return
	}

	listing := &domain.Listing{
		ID:          current.ID,
		Title:       req.Title,
		Description: req.Description,
		City:        req.City,
		Price:       req.Price,
		OwnerID:     current.OwnerID,
	}
	if req.ImageKeys != nil {
		listing.Images = imagesFromKeys(*req.ImageKeys)
	}

	updated, err := h.svc.Listings.Update(ctx, listing)
	if err != nil {
		h.fail(c, err, "update listing")
		return
	}
	response.Success(c, h.toListingResponse(ctx, updated))
}

// RemoveListing deletes a listing the caller owns.
func (h *Handler) RemoveListing(c *gin.Context) {
	listing, ok := h.ownedListing(c)
	if !ok {
		return
	}

	if err := h.svc.Listings.Remove(c.Request.Context(), listing.ID); err != nil {
		h.fail(c, err, "remove listing")
		return
	}
	c.Status(http.StatusNoContent)
}

// HoldListing puts a listing the caller owns on hold.
func (h *Handler) HoldListing(c *gin.Context) {
	listing, ok := h.ownedListing(c)
	if !ok {
		return
	}

	if err := h.svc.Listings.SetOnHold(c.Request.Context(), listing.ID); err != nil {
		h.fail(c, err, "hold listing")
		return
	}
	response.Success(c, gin.H{"id": strconv.FormatInt(listing.ID, 10), "state": domain.ListingStateOnHold})
}

// ReleaseListing puts a listing the caller owns back on sale.
func (h *Handler) ReleaseListing(c *gin.Context) {
	listing, ok := h.ownedListing(c)
	if !ok {
		return
	}

	if err := h.svc.Listings.SetOnSale(c.Request.Context(), listing.ID); err != nil {
		h.fail(c, err, "release listing")
		return
	}
	response.Success(c, gin.H{"id": strconv.FormatInt(listing.ID, 10), "state": domain.ListingStateOnSale})
}

// UploadImage attaches the multipart field "image" to a listing the caller
// owns.
func (h *Handler) UploadImage(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	listing, ok := h.ownedListing(c)
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.cfg.MaxUploadBytes)
	fh, err := c.FormFile("image")
	if err != nil {
		l.Warn().Err(err).Msg("invalid image upload")
		response.BadRequest(c, "image file is required")
		return
	}
	f, err := fh.Open()
	if err != nil {
		h.fail(c, err, "read upload")
		return
	}
	defer f.Close()

	image, err := h.svc.Listings.UploadImage(ctx, listing.ID, f)
	if err != nil {
		h.fail(c, err, "upload image")
		return
	}
	response.Created(c, ImageResponse{Key: image.Key, URL: h.imageURL(ctx, image.Key)})
}

// BuyListing records a purchase by the caller. Listings on hold and the
// caller's own listings cannot be bought.
func (h *Handler) BuyListing(c *gin.Context) {
	ctx := c.Request.Context()
	id, ok := listingID(c)
	if !ok {
		return
	}
	buyerID := middleware.GetUserID(c)

	listing, err := h.svc.Listings.Get(ctx, id)
	if err != nil {
		h.fail(c, err, "get listing")
		return
	}
	if listing.OnHold() {
		response.Error(c, http.StatusConflict, CodeListingOnHold, "listing is on hold")
		return
	}
	if listing.OwnerID == buyerID {
		response.Error(c, http.StatusForbidden, CodeOwnListing, "cannot buy your own listing")
		return
	}

	tx, err := h.svc.Transactions.Create(ctx, buyerID, id)
	if err != nil {
		h.fail(c, err, "buy listing")
		return
	}
	response.Created(c, toTransactionResponse(tx))
}

// HasBought reports whether the caller bought the listing.
func (h *Handler) HasBought(c *gin.Context) {
	id, ok := listingID(c)
	if !ok {
		return
	}

	bought, err := h.svc.Transactions.UserHasBoughtListing(c.Request.Context(), middleware.GetUserID(c), id)
	if err != nil {
		h.fail(c, err, "check purchase")
		return
	}
	response.Success(c, gin.H{"bought": bought})
}

// LikeListing adds the listing to the caller's likes.
func (h *Handler) LikeListing(c *gin.Context) {
	id, ok := listingID(c)
	if !ok {
		return
	}

	if err := h.svc.Reputation.Like(c.Request.Context(), middleware.GetUserID(c), id); err != nil {
		h.fail(c, err, "like listing")
		return
	}
	response.Success(c, gin.H{"liked": true})
}

// UnlikeListing removes the listing from the caller's likes.
func (h *Handler) UnlikeListing(c *gin.Context) {
	id, ok := listingID(c)
	if !ok {
		return
	}

	if err := h.svc.Reputation.Unlike(c.Request.Context(), middleware.GetUserID(c), id); err != nil {
		h.fail(c, err, "unlike listing")
		return
	}
	response.Success(c, gin.H{"liked": false})
}

// ownedListing loads the listing named in the path and checks that the
// caller owns it. It writes the error response itself.
func (h *Handler) ownedListing(c *gin.Context) (*domain.Listing, bool) {
	id, ok := listingID(c)
	if !ok {
		return nil, false
	}

	listing, err := h.svc.Listings.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err, "get listing")
		return nil, false
	}
	if listing.OwnerID != middleware.GetUserID(c) {
		response.Forbidden(c, "listing belongs to another user")
		return nil, false
	}
	return listing, true
}

func imagesFromKeys(keys []string) []domain.Image {
	images := make([]domain.Image, 0, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			images = append(images, domain.Image{Key: k})
		}
	}
	return images
}
