package domain

import "time"

// Transaction records that a buyer purchased a listing. Its key is the
// (BuyerID, ListingID) pair and a listing carries at most one.
type Transaction struct {
	BuyerID   string    `json:"buyer_id"`
	ListingID int64     `json:"listing_id"`
	CreatedAt time.Time `json:"created_at"`
}

// SoldBefore reports whether the transaction happened before ts.
func (t *Transaction) SoldBefore(ts time.Time) bool {
	return t.CreatedAt.Before(ts)
}
