package models

import "time"

// BookingItem is one line of a booking: a quantity of a bookable at the
// price computed for the booking user.
type BookingItem struct {
	BookableID   string  `json:"bookable_id"`
	Amount       int64   `json:"amount"`
	UserPriceEur float64 `json:"user_price_eur"`
}

// Booking is a reservation of one or more bookables over a window. For
// non-time-related resources TimeBegin and TimeEnd are zero.
type Booking struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id"`

	TimeBegin int64 `json:"time_begin"` // epoch millis
	TimeEnd   int64 `json:"time_end"`

	Items []BookingItem `json:"items"`

	IsCommitted bool `json:"is_committed"`
	IsPayed     bool `json:"is_payed"`
	IsRejected  bool `json:"is_rejected"`

	CouponCode string `json:"coupon_code,omitempty"`

	LockerAssignments []LockerAssignment `json:"locker_assignments,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int64     `json:"version"`
}

// Overlaps reports whether the booking window intersects [begin, end).
func (b *Booking) Overlaps(begin, end int64) bool {
	return b.TimeBegin < end && begin < b.TimeEnd
}

// AmountFor sums the booked quantity of one bookable across items.
func (b *Booking) AmountFor(bookableID string) int64 {
	var total int64
	for _, item := range b.Items {
		if item.BookableID == bookableID {
			total += item.Amount
		}
	}
	return total
}

// CountsAgainstCapacity reports whether the booking still consumes capacity.
// Rejected bookings never do.
func (b *Booking) CountsAgainstCapacity() bool {
	return !b.IsRejected
}
