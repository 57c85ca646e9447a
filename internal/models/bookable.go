package models

import (
	"fmt"
	"time"
)

// Bookable is a reservable resource: a room, a piece of equipment, an event
// ticket contingent or a locker bank. Bookables are declared per tenant in
// the catalog config and cached by the store at startup.
type Bookable struct {
	ID       string `yaml:"id" json:"id"`
	TenantID string `yaml:"tenant_id" json:"tenant_id"`
	Title    string `yaml:"title" json:"title"`

	IsBookable bool `yaml:"is_bookable" json:"is_bookable"`

	// Amount is the capacity of the resource. Nil or zero means unlimited.
	Amount *int64 `yaml:"amount" json:"amount,omitempty"`

	IsScheduleRelated            bool `yaml:"is_schedule_related" json:"is_schedule_related"`
	IsTimePeriodRelated          bool `yaml:"is_time_period_related" json:"is_time_period_related"`
	IsOpeningHoursRelated        bool `yaml:"is_opening_hours_related" json:"is_opening_hours_related"`
	IsSpecialOpeningHoursRelated bool `yaml:"is_special_opening_hours_related" json:"is_special_opening_hours_related"`
	IsLongRange                  bool `yaml:"is_long_range" json:"is_long_range"`

	// Booking duration bounds in minutes. Nil means unbounded.
	MinBookingDuration *int64 `yaml:"min_booking_duration" json:"min_booking_duration,omitempty"`
	MaxBookingDuration *int64 `yaml:"max_booking_duration" json:"max_booking_duration,omitempty"`

	PriceType       string          `yaml:"price_type" json:"price_type"`
	PriceCategories []PriceCategory `yaml:"price_categories" json:"price_categories,omitempty"`

	// VATRate is the gross-price percentage applied on top of net prices.
	VATRate float64 `yaml:"vat_rate" json:"vat_rate"`

	// Empty permission lists mean everyone may book.
	PermittedUsers []string `yaml:"permitted_users" json:"permitted_users,omitempty"`
	PermittedRoles []string `yaml:"permitted_roles" json:"permitted_roles,omitempty"`

	// Users and roles that book free of charge.
	FreeBookingUsers []string `yaml:"free_booking_users" json:"free_booking_users,omitempty"`
	FreeBookingRoles []string `yaml:"free_booking_roles" json:"free_booking_roles,omitempty"`

	// RelatedBookableIDs lists direct children. Parents are found by
	// reverse lookup over the catalog.
	RelatedBookableIDs []string `yaml:"related_bookable_ids" json:"related_bookable_ids,omitempty"`

	// EventID binds a ticket-type bookable to an event.
	EventID string `yaml:"event_id" json:"event_id,omitempty"`

	OpeningHours        []OpeningHoursRule        `yaml:"opening_hours" json:"opening_hours,omitempty"`
	SpecialOpeningHours []SpecialOpeningHoursRule `yaml:"special_opening_hours" json:"special_opening_hours,omitempty"`
	TimePeriods         []TimePeriodRule          `yaml:"time_periods" json:"time_periods,omitempty"`

	LockerUnits []LockerUnit `yaml:"locker_units" json:"locker_units,omitempty"`
}

// IsTicket reports whether the bookable sells seats for an event.
func (b *Bookable) IsTicket() bool {
	return b.EventID != ""
}

// IsTimeRelated reports whether bookings against this resource carry a
// meaningful time window.
func (b *Bookable) IsTimeRelated() bool {
	return b.IsScheduleRelated || b.IsTimePeriodRelated || b.IsOpeningHoursRelated
}

// Unconstrained reports whether capacity checks are skipped entirely.
func (b *Bookable) Unconstrained() bool {
	return b.Amount == nil || *b.Amount == 0
}

// Capacity returns the configured capacity, 0 when unconstrained.
func (b *Bookable) Capacity() int64 {
	if b.Amount == nil {
		return 0
	}
	return *b.Amount
}

// HasSchedule reports whether any schedule rule set is configured.
func (b *Bookable) HasSchedule() bool {
	return len(b.OpeningHours) > 0 || len(b.SpecialOpeningHours) > 0 || len(b.TimePeriods) > 0
}

// Validate checks catalog-level invariants.
func (b *Bookable) Validate() error {
	if b.ID == "" {
		return fmt.Errorf("bookable %q has empty id", b.Title)
	}
	if b.Amount != nil && *b.Amount < 0 {
		return fmt.Errorf("bookable %s: amount must be non-negative", b.ID)
	}
	if b.MinBookingDuration != nil && b.MaxBookingDuration != nil &&
		*b.MinBookingDuration > *b.MaxBookingDuration {
		return fmt.Errorf("bookable %s: min booking duration exceeds max", b.ID)
	}
	switch b.PriceType {
	case "", PricePerHour, PricePerDay, PricePerItem, PricePerSquareMeter:
	default:
		return fmt.Errorf("bookable %s: unknown price type %q", b.ID, b.PriceType)
	}
	for i := range b.OpeningHours {
		if err := b.OpeningHours[i].Validate(); err != nil {
			return fmt.Errorf("bookable %s: %w", b.ID, err)
		}
	}
	return nil
}

// MillisToTime converts epoch milliseconds to a time in the given location.
func MillisToTime(ms int64, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.UnixMilli(ms).In(loc)
}

// TimeToMillis converts a time to epoch milliseconds.
func TimeToMillis(t time.Time) int64 {
	return t.UnixMilli()
}
