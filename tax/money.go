package tax

import (
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// DefaultCurrency is used when a request names none.
const DefaultCurrency = "USD"

// ValidCurrency reports whether code is a known ISO 4217 currency.
func ValidCurrency(code string) bool {
	return money.GetCurrency(strings.ToUpper(code)) != nil
}

// FormatAmount renders an amount for display in its currency, e.g.
// "$107.50". The value is rounded half-to-even to the currency's minor
// unit; no conversion ever takes place.
func FormatAmount(amount decimal.Decimal, currency string) string {
	code := strings.ToUpper(currency)
	if code == "" {
		code = DefaultCurrency
	}
	// money.New never yields a nil currency, unknown codes get a generic one
	cur := *money.New(0, code).Currency()
	minor := amount.RoundBank(int32(cur.Fraction)).Shift(int32(cur.Fraction))
	return cur.Formatter().Format(minor.IntPart())
}
