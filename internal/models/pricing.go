package models

import (
	"strings"
	"time"
)

// Interval bounds a pricing metric: hours for per-hour pricing, days for
// per-day pricing, quantity for per-item and per-square-meter pricing.
// Nil ends are open.
type Interval struct {
	Start *float64 `yaml:"start" json:"start,omitempty"`
	End   *float64 `yaml:"end" json:"end,omitempty"`
}

// Contains reports whether the metric falls inside the interval.
func (i *Interval) Contains(metric float64) bool {
	if i == nil {
		return true
	}
	if i.Start != nil && metric < *i.Start {
		return false
	}
	if i.End != nil && metric > *i.End {
		return false
	}
	return true
}

// HolidayRef scopes a price category to a named public holiday.
type HolidayRef struct {
	CountryCode string `yaml:"country_code" json:"country_code"`
	StateCode   string `yaml:"state_code" json:"state_code"`
	Name        string `yaml:"name" json:"name"`
}

// PriceCategory is one priced rule of a bookable. Selection precedence per
// daily segment: holiday match, then weekday match, then unrestricted.
type PriceCategory struct {
	Name     string    `yaml:"name" json:"name"`
	PriceEur float64   `yaml:"price_eur" json:"price_eur"`
	Interval *Interval `yaml:"interval" json:"interval,omitempty"`

	// Weekdays holds lowercase English weekday names. Empty means any day.
	Weekdays []string     `yaml:"weekdays" json:"weekdays,omitempty"`
	Holidays []HolidayRef `yaml:"holidays" json:"holidays,omitempty"`

	// FixedPrice skips the duration multiplier.
	FixedPrice bool `yaml:"fixed_price" json:"fixed_price"`
}

// MatchesWeekday reports whether the category's weekday set includes day.
// Categories without weekdays match nothing here; the caller treats them as
// unrestricted fallbacks.
func (c *PriceCategory) MatchesWeekday(day time.Weekday) bool {
	name := strings.ToLower(day.String())
	for _, w := range c.Weekdays {
		if strings.ToLower(strings.TrimSpace(w)) == name {
			return true
		}
	}
	return false
}

// MatchesHoliday reports whether any of the category's holiday refs names
// one of the given holidays.
func (c *PriceCategory) MatchesHoliday(holidays []Holiday) bool {
	for _, ref := range c.Holidays {
		for _, h := range holidays {
			if strings.EqualFold(ref.Name, h.Name) {
				return true
			}
		}
	}
	return false
}

// Holiday is one entry of a tenant's public holiday calendar.
type Holiday struct {
	Date time.Time `json:"date"`
	Name string    `json:"name"`
}

// PricePreview is the price DTO returned to callers before checkout.
type PricePreview struct {
	RegularPriceEur      float64 `json:"regular_price_eur"`
	UserPriceEur         float64 `json:"user_price_eur"`
	RegularGrossPriceEur float64 `json:"regular_gross_price_eur"`
	UserGrossPriceEur    float64 `json:"user_gross_price_eur"`
	FreeBookingAllowed   bool    `json:"free_booking_allowed"`
}

// Coupon is a discount code with a usage counter. The counter increments
// exactly once per committed checkout, never on a preview.
type Coupon struct {
	Code       string    `json:"code"`
	TenantID   string    `json:"tenant_id"`
	Type       string    `json:"type"` // percentage, fixed
	Value      float64   `json:"value"`
	UsageCount int64     `json:"usage_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Apply returns the discounted price, clamped at zero.
func (c *Coupon) Apply(price float64) float64 {
	if c == nil {
		return price
	}
	switch c.Type {
	case CouponPercentage:
		price = price * (1 - c.Value/100)
	case CouponFixed:
		price = price - c.Value
	}
	if price < 0 {
		price = 0
	}
	return price
}
