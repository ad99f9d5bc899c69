// Package ranking turns a batch of catalog products into discount-ordered deals.
package ranking

import (
	"slices"

	"dealfeed/internal/domain"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Rank computes discount metrics for every discounted product and orders the
// result by discount percentage, highest first. Products with equal discounts
// keep their catalog order. Rank is pure: paginated callers re-run it over the
// whole accumulated batch after each fetch.
func Rank(records []domain.ProductRecord) domain.Ranking {
	deals := make([]domain.Deal, 0, len(records))
	for _, record := range records {
		if deal, ok := NewDeal(record); ok {
			deals = append(deals, deal)
		}
	}

	slices.SortStableFunc(deals, func(a, b domain.Deal) int {
		return b.DiscountPercentage - a.DiscountPercentage
	})

	ranking := domain.Ranking{
		Others: []domain.Deal{},
		All:    deals,
	}
	if len(deals) > 0 {
		top := deals[0]
		ranking.Top = &top
		ranking.Others = deals[1:]
	}
	return ranking
}

// NewDeal annotates record with its discount, or reports false when the
// record is not strictly cheaper than its compare-at price. Negative prices
// and discounts that round down to 0% are not deals either.
func NewDeal(record domain.ProductRecord) (domain.Deal, bool) {
	price := record.PriceAmount()
	compareAt := record.CompareAtAmount()
	if price.IsNegative() || !compareAt.GreaterThan(price) {
		return domain.Deal{}, false
	}

	savings := compareAt.Sub(price)
	// compareAt > price >= 0 here, so the division is safe. Round is half away
	// from zero, which is half-up for these positive values.
	percentage := savings.Div(compareAt).Mul(hundred).Round(0).IntPart()
	if percentage <= 0 {
		return domain.Deal{}, false
	}

	return domain.Deal{
		ProductRecord:      record,
		DiscountPercentage: int(percentage),
		SavingsAmount:      savings,
	}, true
}
