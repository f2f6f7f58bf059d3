package telecom

import (
	"github.com/shopspring/decimal"

	"github.com/warp/tax-engine/tax"
)

// ServiceLine is one recurring telecom charge on an invoice or quote.
type ServiceLine struct {
	Calculable    tax.CalculableRef
	Customer      tax.CustomerID
	Category      tax.CategoryID
	ServiceType   ServiceType
	MonthlyCharge decimal.Decimal
	AccessLines   int             // seats or handsets; per-line fees multiply this
	Minutes       decimal.Decimal // billed usage minutes, for per-minute rates
	Address       tax.Address
	AsOf          tax.Date
	Currency      string
}

// ToCalculateRequest converts the line to an engine request. The monthly
// charge is taxed once; access lines and minutes only drive per-unit fees.
func (l ServiceLine) ToCalculateRequest() tax.CalculateRequest {
	req := tax.CalculateRequest{
		Calculable:  l.Calculable,
		CustomerID:  l.Customer,
		BaseAmount:  l.MonthlyCharge,
		Quantity:    1,
		Category:    l.Category,
		ServiceType: string(l.ServiceType),
		Address:     l.Address,
		AsOf:        l.AsOf,
		Currency:    l.Currency,
	}
	if l.AccessLines > 0 {
		lines := decimal.NewFromInt(int64(l.AccessLines))
		req.Units.Lines = &lines
	}
	if !l.Minutes.IsZero() {
		minutes := l.Minutes
		req.Units.Minutes = &minutes
	}
	return req
}
