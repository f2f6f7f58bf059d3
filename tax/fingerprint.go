package tax

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/shopspring/decimal"
)

// fingerprintKey is the canonical form of everything that determines a
// result, given fixed reference data. Decimals are rendered with String()
// so 100 and 100.00 hash the same.
type fingerprintKey struct {
	BaseAmount  string        `json:"base"`
	Quantity    int           `json:"qty"`
	Lines       string        `json:"lines,omitempty"`
	Minutes     string        `json:"minutes,omitempty"`
	Units       string        `json:"units,omitempty"`
	Category    CategoryID    `json:"cat"`
	ServiceType string        `json:"svc"`
	Address     Address       `json:"addr"`
	Customer    CustomerID    `json:"cust,omitempty"`
	Exemptions  []ExemptionID `json:"ex"`
	AsOf        string        `json:"asof"`
	Currency    string        `json:"cur"`
}

// Fingerprint hashes the calculation-determining inputs. Exemptions are
// identified by ID and order-insensitive; the street line is ignored since
// it never affects jurisdiction matching.
func Fingerprint(in CalculationInput, exemptionIDs []ExemptionID) string {
	ids := append([]ExemptionID(nil), exemptionIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	addr := in.Address.Normalize()
	addr.Street = ""

	key := fingerprintKey{
		BaseAmount:  in.BaseAmount.String(),
		Quantity:    in.Quantity,
		Lines:       optString(in.Units.Lines),
		Minutes:     optString(in.Units.Minutes),
		Units:       optString(in.Units.Units),
		Category:    in.Category,
		ServiceType: in.ServiceType,
		Address:     addr,
		Customer:    in.CustomerID,
		Exemptions:  ids,
		AsOf:        in.AsOf.String(),
		Currency:    in.Currency,
	}

	// json.Marshal of this struct cannot fail.
	b, _ := json.Marshal(key)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func optString(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.String()
}
