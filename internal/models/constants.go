package models

// Price types supported by the pricing engine.
const (
	PricePerHour        = "per_hour"
	PricePerDay         = "per_day"
	PricePerItem        = "per_item"
	PricePerSquareMeter = "per_square_meter"
)

// Coupon types.
const (
	CouponPercentage = "percentage"
	CouponFixed      = "fixed"
)

const (
	// SoftLockTTLMinutes is how long a locker soft lock counts as occupying
	// capacity before the sweep discards it.
	SoftLockTTLMinutes = 15

	// CalendarSegmentFloorMinutes is the smallest segment the calendar
	// calculator will bisect into before marking it unavailable.
	CalendarSegmentFloorMinutes = 15

	// MinutesPerDay is the per-day pricing divisor.
	MinutesPerDay = 1440

	// WorkerQueueSize is the buffered size of the locker reconcile queue.
	WorkerQueueSize = 1000

	// DefaultMaxAdvanceMonths bounds how far ahead a booking may start when
	// the tenant does not configure a horizon.
	DefaultMaxAdvanceMonths = 12

	// DefaultExportRangeMonthsBefore/After bound the occupancy export window.
	DefaultExportRangeMonthsBefore = 1
	DefaultExportRangeMonthsAfter  = 2
)
