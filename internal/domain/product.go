package domain

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// Money is an amount in a single currency. Decoding never fails on a bad
// amount: anything that does not parse as a number becomes zero.
type Money struct {
	Amount       decimal.Decimal
	CurrencyCode string
}

type moneyObject struct {
	Amount       json.RawMessage `json:"amount"`
	CurrencyCode string          `json:"currencyCode"`
}

// NewMoney builds a Money from a textual amount, coercing parse failures to zero.
func NewMoney(amount, currency string) Money {
	return Money{Amount: ParseAmount(amount), CurrencyCode: currency}
}

// UnmarshalJSON accepts {"amount": "80.00", "currencyCode": "USD"}, "80.00" or 80.
func (m *Money) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*m = Money{Amount: decimal.Zero}
		return nil
	}

	if data[0] == '{' {
		var obj moneyObject
		if err := json.Unmarshal(data, &obj); err != nil {
			*m = Money{Amount: decimal.Zero}
			return nil
		}
		*m = Money{Amount: parseRawAmount(obj.Amount), CurrencyCode: obj.CurrencyCode}
		return nil
	}

	*m = Money{Amount: parseRawAmount(data)}
	return nil
}

// MarshalJSON always writes the object form.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount       string `json:"amount"`
		CurrencyCode string `json:"currencyCode,omitempty"`
	}{
		Amount:       m.Amount.String(),
		CurrencyCode: m.CurrencyCode,
	})
}

// Amounts are kept within ±10^maxAmountDigits with at most maxAmountDigits
// fraction digits. Anything wider (e.g. "1e40000000") would make every later
// Sub/Div expand the full number.
const maxAmountDigits = 18

// ParseAmount converts a price string to a decimal, returning zero on failure
// or when the amount is out of range.
func ParseAmount(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	exp := int(d.Exponent())
	if exp < -maxAmountDigits || exp > maxAmountDigits || d.NumDigits()+exp > maxAmountDigits {
		return decimal.Zero
	}
	return d
}

func parseRawAmount(raw []byte) decimal.Decimal {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return decimal.Zero
	}
	if raw[0] == '"' {
		s, err := strconv.Unquote(string(raw))
		if err != nil {
			return decimal.Zero
		}
		return ParseAmount(s)
	}
	return ParseAmount(string(raw))
}

// ProductRecord is a catalog item as returned by the catalog source.
type ProductRecord struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Vendor         string `json:"vendor"`
	ProductType    string `json:"product_type,omitempty"`
	ImageURL       string `json:"image_url,omitempty"`
	Price          Money  `json:"price"`
	CompareAtPrice *Money `json:"compareAtPrice,omitempty"`
}

// PriceAmount returns the current price, zero when unset.
func (p ProductRecord) PriceAmount() decimal.Decimal {
	return p.Price.Amount
}

// CompareAtAmount returns the pre-discount price, zero when the record has none.
func (p ProductRecord) CompareAtAmount() decimal.Decimal {
	if p.CompareAtPrice == nil {
		return decimal.Zero
	}
	return p.CompareAtPrice.Amount
}
