package checkout

import (
	"fmt"

	"github.com/eliesystems/guben-booking-backend-sub000/internal/models"
)

// CheckError is the closed set of checkout failures. Every variant carries
// enough structured data for the caller to render a precise message without
// re-querying, and converts back into a CheckResult for the diagnostic path.
type CheckError interface {
	error
	CheckType() models.CheckType
	Result() models.CheckResult
}

// PermissionDeniedError rejects a user not covered by the bookable's
// permission lists.
type PermissionDeniedError struct {
	BookableID string
	UserID     string
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("user %s is not permitted to book %s", e.UserID, e.BookableID)
}

func (e *PermissionDeniedError) CheckType() models.CheckType { return models.CheckPermissions }

func (e *PermissionDeniedError) Result() models.CheckResult {
	return failed(e.CheckType(), e.Error())
}

// NotBookableError rejects a resource not marked bookable.
type NotBookableError struct {
	BookableID string
}

func (e *NotBookableError) Error() string {
	return fmt.Sprintf("resource %s is not bookable", e.BookableID)
}

func (e *NotBookableError) CheckType() models.CheckType { return models.CheckPermissions }

func (e *NotBookableError) Result() models.CheckResult {
	return failed(e.CheckType(), e.Error())
}

// CapacityScope distinguishes which level of the hierarchy ran out.
type CapacityScope string

const (
	ScopeSelf   CapacityScope = "self"
	ScopeParent CapacityScope = "parent"
	ScopeChild  CapacityScope = "child"
)

// CapacityExceededError rejects a request that would overbook the resource,
// one of its ancestors or one of its descendants.
type CapacityExceededError struct {
	Scope      CapacityScope
	Occupancy  models.Occupancy
	Sub        []models.Occupancy
	Concurrent []models.ConcurrentBooking
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("capacity exceeded for %s (%s): booked %d of %d, %d remaining",
		e.Occupancy.BookableID, e.Scope, e.Occupancy.Booked, derefCap(e.Occupancy.TotalCapacity), e.Occupancy.Remaining)
}

func (e *CapacityExceededError) CheckType() models.CheckType {
	switch e.Scope {
	case ScopeParent:
		return models.CheckParentAvailability
	case ScopeChild:
		return models.CheckChildBookings
	}
	return models.CheckAvailability
}

func (e *CapacityExceededError) Result() models.CheckResult {
	res := failed(e.CheckType(), e.Error())
	occ := e.Occupancy
	res.Occupancy = &occ
	res.Concurrent = e.Concurrent
	for _, sub := range e.Sub {
		s := sub
		res.Sub = append(res.Sub, models.CheckResult{
			Type:      e.CheckType(),
			Available: sub.IsAvailable,
			Occupancy: &s,
		})
	}
	return res
}

// OpeningHoursViolationError rejects a window outside the merged schedule
// rules of the resource and its ancestors.
type OpeningHoursViolationError struct {
	BookableID string
	TimeBegin  int64
	TimeEnd    int64
}

func (e *OpeningHoursViolationError) Error() string {
	return fmt.Sprintf("window [%d,%d) is outside the opening hours of %s", e.TimeBegin, e.TimeEnd, e.BookableID)
}

func (e *OpeningHoursViolationError) CheckType() models.CheckType { return models.CheckOpeningHours }

func (e *OpeningHoursViolationError) Result() models.CheckResult {
	return failed(e.CheckType(), e.Error())
}

// DurationOutOfRangeError rejects a booking duration outside [min, max].
type DurationOutOfRangeError struct {
	BookableID      string
	DurationMinutes int64
	MinMinutes      *int64
	MaxMinutes      *int64
}

func (e *DurationOutOfRangeError) Error() string {
	return fmt.Sprintf("booking duration %d min for %s is outside [%d,%d]",
		e.DurationMinutes, e.BookableID, derefCap(e.MinMinutes), derefCap(e.MaxMinutes))
}

func (e *DurationOutOfRangeError) CheckType() models.CheckType { return models.CheckBookingDuration }

func (e *DurationOutOfRangeError) Result() models.CheckResult {
	return failed(e.CheckType(), e.Error())
}

// EventNotFoundError rejects a ticket whose event does not exist.
type EventNotFoundError struct {
	EventID string
}

func (e *EventNotFoundError) Error() string {
	return fmt.Sprintf("event %s not found", e.EventID)
}

func (e *EventNotFoundError) CheckType() models.CheckType { return models.CheckEventDate }

func (e *EventNotFoundError) Result() models.CheckResult {
	return failed(e.CheckType(), e.Error())
}

// EventExpiredError rejects tickets for an event that already ended.
type EventExpiredError struct {
	EventID string
	TimeEnd int64
}

func (e *EventExpiredError) Error() string {
	return fmt.Sprintf("event %s already ended", e.EventID)
}

func (e *EventExpiredError) CheckType() models.CheckType { return models.CheckEventDate }

func (e *EventExpiredError) Result() models.CheckResult {
	return failed(e.CheckType(), e.Error())
}

// EventCapacityExceededError rejects tickets that would exceed the event's
// attendee limit across all ticket types.
type EventCapacityExceededError struct {
	EventID   string
	Occupancy models.Occupancy
}

func (e *EventCapacityExceededError) Error() string {
	return fmt.Sprintf("event %s is sold out: %d of %d seats taken",
		e.EventID, e.Occupancy.Booked, derefCap(e.Occupancy.TotalCapacity))
}

func (e *EventCapacityExceededError) CheckType() models.CheckType { return models.CheckEventSeats }

func (e *EventCapacityExceededError) Result() models.CheckResult {
	res := failed(e.CheckType(), e.Error())
	occ := e.Occupancy
	res.Occupancy = &occ
	return res
}

// MaxAdvanceExceededError rejects a window starting beyond the tenant's
// advance-booking horizon.
type MaxAdvanceExceededError struct {
	MaxMonths    int
	LatestMillis int64
}

func (e *MaxAdvanceExceededError) Error() string {
	return fmt.Sprintf("booking starts beyond the %d month advance horizon", e.MaxMonths)
}

func (e *MaxAdvanceExceededError) CheckType() models.CheckType { return models.CheckMaxBookingDate }

func (e *MaxAdvanceExceededError) Result() models.CheckResult {
	return failed(e.CheckType(), e.Error())
}

// PriceCategoryNotFoundError means no category matched a daily segment.
type PriceCategoryNotFoundError struct {
	BookableID string
	Date       string
}

func (e *PriceCategoryNotFoundError) Error() string {
	return fmt.Sprintf("no price category of %s matches %s", e.BookableID, e.Date)
}

func failed(checkType models.CheckType, message string) models.CheckResult {
	return models.CheckResult{Type: checkType, Available: false, Message: message}
}

func derefCap(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
