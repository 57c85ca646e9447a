package models

// CheckType identifies one eligibility check of the checkout validator.
type CheckType string

const (
	CheckPermissions        CheckType = "permissions"
	CheckOpeningHours       CheckType = "opening_hours"
	CheckBookingDuration    CheckType = "booking_duration"
	CheckAvailability       CheckType = "availability"
	CheckParentAvailability CheckType = "parent_availability"
	CheckChildBookings      CheckType = "child_bookings"
	CheckEventDate          CheckType = "event_date"
	CheckEventSeats         CheckType = "event_seats"
	CheckMaxBookingDate     CheckType = "max_booking_date"
)

// Occupancy reports capacity figures for one bookable.
type Occupancy struct {
	BookableID    string `json:"bookable_id"`
	Title         string `json:"title"`
	IsAvailable   bool   `json:"is_available"`
	TotalCapacity *int64 `json:"total_capacity,omitempty"` // nil = unconstrained
	Booked        int64  `json:"booked"`
	Remaining     int64  `json:"remaining"`
}

// ConcurrentBooking pairs a capacity-consuming booking with the quantity it
// consumes at the level where the capacity check ran. For parent-level checks
// the quantity sums the booking's items across the parent and its children,
// so it can differ from any single item's amount.
type ConcurrentBooking struct {
	Booking
	ConsumedAmount int64 `json:"consumed_amount"`
}

// CheckResult is the outcome of one check. Failed capacity checks carry the
// occupancy figures and the concurrent bookings found; hierarchy checks nest
// one sub-result per parent or child resource.
type CheckResult struct {
	Type      CheckType `json:"check_type"`
	Available bool      `json:"available"`
	Message   string    `json:"message,omitempty"`

	Occupancy  *Occupancy          `json:"occupancy,omitempty"`
	Sub        []CheckResult       `json:"sub,omitempty"`
	Concurrent []ConcurrentBooking `json:"concurrent,omitempty"`
}

// CalendarSegment is one contiguous sub-range of a calendar query window.
type CalendarSegment struct {
	TimeBegin int64 `json:"time_begin"` // epoch millis
	TimeEnd   int64 `json:"time_end"`
	Available bool  `json:"available"`
}
