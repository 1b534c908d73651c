package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/weiawesome/wes-market/internal/domain"
	"github.com/weiawesome/wes-market/internal/repository"
	pkglog "github.com/weiawesome/wes-market/pkg/log"
)

const maxPriceKey = "max_price"

var searchEpoch = time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC)

type searchServiceImpl struct {
	listings repository.ListingRepository
	sf       singleflight.Group
	now      func() time.Time
}

// NewSearchService creates a new search service.
func NewSearchService(listings repository.ListingRepository) SearchService {
	return &searchServiceImpl{
		listings: listings,
		now:      time.Now,
	}
}

// Search resolves the optional criteria into a complete filter and runs it.
// Listings are returned newest first.
func (s *searchServiceImpl) Search(ctx context.Context, criteria domain.SearchCriteria) ([]domain.Listing, error) {
	filter, err := s.resolve(ctx, criteria)
	if err != nil {
		return nil, err
	}

	listings, err := s.listings.Search(ctx, filter)
	if err != nil {
		l := pkglog.Ctx(ctx)
		l.Error().Err(err).Msg("listing search failed")
		return nil, fmt.Errorf("search listings: %w", err)
	}
	return listings, nil
}

func (s *searchServiceImpl) resolve(ctx context.Context, c domain.SearchCriteria) (domain.SearchFilter, error) {
	filter := domain.SearchFilter{
		City:     trimmed(c.City),
		Keyword:  trimmed(c.Keyword),
		MinPrice: decimal.Zero,
		From:     startOfDay(searchEpoch),
		To:       endOfDay(s.now()),
	}

	if c.MinPrice != nil {
		filter.MinPrice = *c.MinPrice
	}
	if c.MaxPrice != nil {
		filter.MaxPrice = *c.MaxPrice
	} else {
		highest, err := s.maxPrice(ctx)
		if err != nil {
			return domain.SearchFilter{}, err
		}
		filter.MaxPrice = highest
	}

	if c.MinDate != nil {
		filter.From = startOfDay(*c.MinDate)
	}
	if c.MaxDate != nil {
		filter.To = endOfDay(*c.MaxDate)
	}

	if c.MinRating != nil {
		filter.MinRating = domain.ClampRating(*c.MinRating)
	}

	return filter, nil
}

// maxPrice shares one MAX(price) query between concurrent searches.
func (s *searchServiceImpl) maxPrice(ctx context.Context) (decimal.Decimal, error) {
	v, err, _ := s.sf.Do(maxPriceKey, func() (interface{}, error) {
		return s.listings.MaxPrice(ctx)
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("max price: %w", err)
	}
	return v.(decimal.Decimal), nil
}

func trimmed(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func endOfDay(t time.Time) time.Time {
	return startOfDay(t).Add(24*time.Hour - time.Nanosecond)
}

// Ensure interface is satisfied at compile time.
var _ SearchService = (*searchServiceImpl)(nil)
