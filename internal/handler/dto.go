package handler

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/weiawesome/wes-market/internal/domain"
	"github.com/weiawesome/wes-market/pkg/log"
)

// ListingResponse is the JSON form of a listing.
type ListingResponse struct {
	ID          int64               `json:"id,string"`
	Title       string              `json:"title"`
	Description string              `json:"description"`
	City        string              `json:"city"`
	Price       decimal.Decimal     `json:"price"`
	OwnerID     string              `json:"owner_id"`
	State       domain.ListingState `json:"state"`
	CreatedAt   time.Time           `json:"created_at"`
	Images      []ImageResponse     `json:"images"`
	Likes       int                 `json:"likes"`
	LikedBy     []string            `json:"liked_by"`
	SoldAt      *time.Time          `json:"sold_at,omitempty"`
}

// ImageResponse carries a resolvable URL next to the storage key.
type ImageResponse struct {
	Key string `json:"key"`
	URL string `json:"url,omitempty"`
}

// TransactionResponse is the JSON form of a purchase.
type TransactionResponse struct {
	BuyerID   string    `json:"buyer_id"`
	ListingID int64     `json:"listing_id,string"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *Handler) toListingResponse(ctx context.Context, listing *domain.Listing) ListingResponse {
	resp := ListingResponse{
		ID:          listing.ID,
		Title:       listing.Title,
		Description: listing.Description,
		City:        listing.City,
		Price:       listing.Price,
		OwnerID:     listing.OwnerID,
		State:       listing.State,
		CreatedAt:   listing.CreatedAt,
		Images:      make([]ImageResponse, 0, len(listing.Images)),
		Likes:       len(listing.LikedBy),
		LikedBy:     listing.LikedBy,
	}
	if resp.LikedBy == nil {
		resp.LikedBy = []string{}
	}
	if listing.Transaction != nil {
		soldAt := listing.Transaction.CreatedAt
		resp.SoldAt = &soldAt
	}

	for _, img := range listing.Images {
		resp.Images = append(resp.Images, ImageResponse{Key: img.Key, URL: h.imageURL(ctx, img.Key)})
	}
	return resp
}

func (h *Handler) toListingResponses(ctx context.Context, listings []domain.Listing) []ListingResponse {
	out := make([]ListingResponse, 0, len(listings))
	for i := range listings {
		out = append(out, h.toListingResponse(ctx, &listings[i]))
	}
	return out
}

// imageURL resolves a key; an unresolvable key is rendered without URL.
func (h *Handler) imageURL(ctx context.Context, key string) string {
	if h.storage == nil {
		return ""
	}
	url, err := h.storage.GetURL(ctx, key, h.cfg.ImageURLTTL)
	if err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str("key", key).Msg("failed to resolve image url")
		return ""
	}
	return url
}

func toTransactionResponse(tx *domain.Transaction) TransactionResponse {
	return TransactionResponse{
		BuyerID:   tx.BuyerID,
		ListingID: tx.ListingID,
		CreatedAt: tx.CreatedAt,
	}
}

// filterRecentlySold drops listings whose sale is older than the
// recently-sold window. Unsold listings are kept.
func filterRecentlySold(listings []domain.Listing, now time.Time) []domain.Listing {
	cutoff := now.Add(-recentlySoldWindow)
	kept := listings[:0]
	for _, l := range listings {
		if l.Transaction != nil && l.Transaction.SoldBefore(cutoff) {
			continue
		}
		kept = append(kept, l)
	}
	return kept
}
