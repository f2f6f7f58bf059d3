package tax

import (
	"encoding/json"
	"fmt"
	"time"
)

// =============================================================================
// DATE - Day-granular calendar date (tax rules change at day boundaries)
// =============================================================================

const dateLayout = "2006-01-02"

type Date struct {
	Time time.Time
}

// Constructors
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Comparison
func (d Date) Before(other Date) bool { return d.Time.Before(other.Time) }
func (d Date) Equal(other Date) bool  { return d.Time.Equal(other.Time) }
func (d Date) After(other Date) bool  { return d.Time.After(other.Time) }
func (d Date) IsZero() bool           { return d.Time.IsZero() }

func (d Date) AddDays(n int) Date { return Date{Time: d.Time.AddDate(0, 0, n)} }

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Time.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// =============================================================================
// WINDOW - Half-open validity interval [Effective, Expiry)
// =============================================================================

// Window bounds the validity of a reference-data fact. A zero Effective means
// "since forever"; a nil Expiry means open-ended.
type Window struct {
	Effective Date  `json:"effective"`
	Expiry    *Date `json:"expiry,omitempty"`
}

// Contains returns true if d falls within [Effective, Expiry).
func (w Window) Contains(d Date) bool {
	if !w.Effective.IsZero() && d.Before(w.Effective) {
		return false
	}
	if w.Expiry != nil && !d.Before(*w.Expiry) {
		return false
	}
	return true
}

// Valid reports whether the window is well-formed (expiry after effective).
func (w Window) Valid() bool {
	return w.Expiry == nil || w.Effective.IsZero() || w.Effective.Before(*w.Expiry)
}

func (w Window) String() string {
	end := "open"
	if w.Expiry != nil {
		end = w.Expiry.String()
	}
	start := w.Effective.String()
	if start == "" {
		start = "-inf"
	}
	return "[" + start + ", " + end + ")"
}
