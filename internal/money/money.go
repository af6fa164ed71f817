// Package money models currency-tagged monetary amounts.
package money

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is used when a price is created without an explicit currency.
const DefaultCurrency = "USD"

// Scale is the number of decimal places kept for every amount.
const Scale = 2

var (
	// ErrCurrencyMismatch is returned when arithmetic mixes two currencies.
	ErrCurrencyMismatch = errors.New("money: currency mismatch")
	// ErrInvalidCurrency is returned for currency codes that are not three letters.
	ErrInvalidCurrency = errors.New("money: invalid currency code")
)

// Money is an amount tagged with an ISO-4217 currency code.
type Money struct {
	Amount   decimal.Decimal
	Currency string
}

// New builds a Money value, rounding the amount to Scale places.
func New(amount decimal.Decimal, currency string) (Money, error) {
	cur, err := normalizeCurrency(currency)
	if err != nil {
		return Money{}, err
	}
	return Money{Amount: amount.Round(Scale), Currency: cur}, nil
}

// MustParse parses a decimal string and panics on malformed input. Intended for
// constants and tests.
func MustParse(amount, currency string) Money {
	m, err := Parse(amount, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// Parse parses a decimal string into Money.
func Parse(amount, currency string) (Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("money: parse amount %q: %w", amount, err)
	}
	return New(d, currency)
}

// Zero returns a zero amount in the given currency.
func Zero(currency string) Money {
	cur, err := normalizeCurrency(currency)
	if err != nil {
		cur = DefaultCurrency
	}
	return Money{Amount: decimal.Zero, Currency: cur}
}

// Add returns m + other.
func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("%w: %s + %s", ErrCurrencyMismatch, m.Currency, other.Currency)
	}
	return Money{Amount: m.Amount.Add(other.Amount), Currency: m.Currency}, nil
}

// Sub returns m - other.
func (m Money) Sub(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("%w: %s - %s", ErrCurrencyMismatch, m.Currency, other.Currency)
	}
	return Money{Amount: m.Amount.Sub(other.Amount), Currency: m.Currency}, nil
}

// Mul scales the amount by an integer factor, e.g. a line quantity.
func (m Money) Mul(n int) Money {
	return Money{Amount: m.Amount.Mul(decimal.NewFromInt(int64(n))), Currency: m.Currency}
}

func (m Money) IsZero() bool     { return m.Amount.IsZero() }
func (m Money) IsNegative() bool { return m.Amount.IsNegative() }

// Equal reports whether both amount and currency match.
func (m Money) Equal(other Money) bool {
	return m.Currency == other.Currency && m.Amount.Equal(other.Amount)
}

// StringFixed renders the amount with Scale decimal places, without currency.
func (m Money) StringFixed() string {
	return m.Amount.StringFixed(Scale)
}

func (m Money) String() string {
	return m.StringFixed() + " " + m.Currency
}

type jsonMoney struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonMoney{Amount: m.StringFixed(), Currency: m.Currency})
}

func (m *Money) UnmarshalJSON(data []byte) error {
	var raw jsonMoney
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Currency == "" {
		raw.Currency = DefaultCurrency
	}
	parsed, err := Parse(raw.Amount, raw.Currency)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

func normalizeCurrency(code string) (string, error) {
	if code == "" {
		return DefaultCurrency, nil
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 3 {
		return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, code)
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, code)
		}
	}
	return code, nil
}
