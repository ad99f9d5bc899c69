package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Deal is a product priced strictly below its compare-at price.
type Deal struct {
	ProductRecord
	DiscountPercentage int             `json:"discountPercentage"`
	SavingsAmount      decimal.Decimal `json:"savingsAmount"`
}

// Ranking is the result of one ranking pass. Top is nil when there are no deals.
type Ranking struct {
	Top    *Deal  `json:"top_deal"`
	Others []Deal `json:"other_deals"`
	All    []Deal `json:"all_deals"`
}

// DealSnapshot is a persisted ranking computed for one user.
type DealSnapshot struct {
	ID        uuid.UUID `json:"id"`
	UserID    string    `json:"user_id"`
	Query     string    `json:"query"`
	Filtered  bool      `json:"filtered"`
	TopDeal   *Deal     `json:"top_deal"`
	Deals     []Deal    `json:"deals"`
	CreatedAt time.Time `json:"created_at"`
}
