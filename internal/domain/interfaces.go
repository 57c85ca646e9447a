package domain

import (
	"context"

	"github.com/eliesystems/guben-booking-backend-sub000/internal/models"
)

// BookableStore reads the per-tenant resource catalog. Graph traversal over
// related bookables is bounded by the store; the core does not re-validate
// acyclicity.
type BookableStore interface {
	GetBookable(ctx context.Context, tenantID, id string) (*models.Bookable, error)
	// GetParents returns the bookables whose related list references id.
	GetParents(ctx context.Context, tenantID, id string) ([]*models.Bookable, error)
	// GetDescendants returns all transitive children, bounded depth.
	GetDescendants(ctx context.Context, tenantID, id string) ([]*models.Bookable, error)
	// GetTicketsForEvent returns all ticket bookables bound to an event.
	GetTicketsForEvent(ctx context.Context, tenantID, eventID string) ([]*models.Bookable, error)
	ListBookables(ctx context.Context, tenantID string) ([]*models.Bookable, error)
}

// BookingStore reads and persists bookings. The checkout validator only
// reads; the commit flow and the locker coordinator write.
type BookingStore interface {
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	// GetOverlappingBookings returns non-rejected bookings of the bookable
	// whose window intersects [begin, end).
	GetOverlappingBookings(ctx context.Context, tenantID, bookableID string, begin, end int64) ([]*models.Booking, error)
	// GetBookingsForBookable returns all non-rejected bookings of the
	// bookable, regardless of time.
	GetBookingsForBookable(ctx context.Context, tenantID, bookableID string) ([]*models.Booking, error)
	CreateBooking(ctx context.Context, booking *models.Booking) error
	UpdateBooking(ctx context.Context, booking *models.Booking) error
	// CountLockerAssignments counts persisted locker assignments for a unit
	// whose booking window overlaps [begin, end).
	CountLockerAssignments(ctx context.Context, tenantID, bookableID, unitID string, begin, end int64) (int64, error)
	SaveLockerAssignment(ctx context.Context, assignment *models.LockerAssignment) error
	DeleteLockerAssignment(ctx context.Context, bookingID, unitID string) error
}

// EventStore reads ticketed events.
type EventStore interface {
	GetEvent(ctx context.Context, tenantID, id string) (*models.Event, error)
}

// TenantStore reads tenant configuration.
type TenantStore interface {
	GetTenant(ctx context.Context, id string) (*models.Tenant, error)
}

// CouponStore reads coupons and tracks committed usage.
type CouponStore interface {
	GetCoupon(ctx context.Context, tenantID, code string) (*models.Coupon, error)
	IncrementUsage(ctx context.Context, tenantID, code string) error
}

// HolidayProvider resolves the public holiday calendar used by holiday
// scoped price categories.
type HolidayProvider interface {
	GetHolidays(ctx context.Context, year int, countryCode, stateCode string) ([]models.Holiday, error)
}

// LockerBackend drives reservations in an external locker system. Calls are
// best-effort; failures are logged and never abort the booking flow.
type LockerBackend interface {
	StartReservation(ctx context.Context, tenantID, bookingID, unitID, lockerSystem string, begin, end int64) (string, error)
	UpdateReservation(ctx context.Context, tenantID, reservationID string, begin, end int64) error
	CancelReservation(ctx context.Context, tenantID, reservationID string) error
}

// EventPublisher emits domain events to in-process subscribers.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}
