package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SearchCriteria holds optional search filters; nil means "not given".
type SearchCriteria struct {
	City      *string
	Keyword   *string
	MinPrice  *decimal.Decimal
	MaxPrice  *decimal.Decimal
	MinDate   *time.Time
	MaxDate   *time.Time
	MinRating *int
}

// SearchFilter is a fully resolved query. Empty City or Keyword disables
// that filter; MinRating 0 selects listings regardless of owner ratings.
type SearchFilter struct {
	City      string
	Keyword   string
	MinPrice  decimal.Decimal
	MaxPrice  decimal.Decimal
	From      time.Time
	To        time.Time
	MinRating int
}

// RatingAware reports whether the filter joins owner ratings.
func (f SearchFilter) RatingAware() bool {
	return f.MinRating > 0
}
