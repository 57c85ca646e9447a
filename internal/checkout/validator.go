package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/eliesystems/guben-booking-backend-sub000/internal/domain"
	"github.com/eliesystems/guben-booking-backend-sub000/internal/logging"
	"github.com/eliesystems/guben-booking-backend-sub000/internal/models"
	"github.com/eliesystems/guben-booking-backend-sub000/internal/schedule"

	"github.com/rs/zerolog"
)

// Request identifies one checkout candidate: a quantity of one bookable
// over a window for a user. TimeBegin and TimeEnd are epoch millis and are
// ignored for non-time-related resources. ExcludeBookingID names a persisted
// booking whose own consumption must not count, so a reschedule does not
// collide with the booking it replaces.
type Request struct {
	TenantID         string `json:"tenant_id"`
	BookableID       string `json:"bookable_id"`
	UserID           string `json:"user_id"`
	TimeBegin        int64  `json:"time_begin"`
	TimeEnd          int64  `json:"time_end"`
	Amount           int64  `json:"amount"`
	ExcludeBookingID string `json:"-"`
}

// DurationMinutes returns the window length in minutes.
func (r Request) DurationMinutes() int64 {
	return (r.TimeEnd - r.TimeBegin) / int64(time.Minute/time.Millisecond)
}

// Validator runs the eligibility checks and the pricing engine for one
// checkout candidate. All reads go through the collaborator stores; the
// validator never persists anything.
type Validator struct {
	bookables domain.BookableStore
	bookings  domain.BookingStore
	events    domain.EventStore
	tenants   domain.TenantStore
	holidays  domain.HolidayProvider
	log       zerolog.Logger
	now       func() time.Time
}

func NewValidator(
	bookables domain.BookableStore,
	bookings domain.BookingStore,
	events domain.EventStore,
	tenants domain.TenantStore,
	holidays domain.HolidayProvider,
	logger *zerolog.Logger,
) *Validator {
	base := logging.Component(logger, "checkout")
	return &Validator{
		bookables: bookables,
		bookings:  bookings,
		events:    events,
		tenants:   tenants,
		holidays:  holidays,
		log:       base,
		now:       time.Now,
	}
}

// SetClock overrides the validator's clock.
func (v *Validator) SetClock(now func() time.Time) {
	if now != nil {
		v.now = now
	}
}

// checkContext carries the resolved catalog entries one check run operates on.
type checkContext struct {
	req      Request
	bookable *models.Bookable
	tenant   *models.Tenant
}

func (v *Validator) resolve(ctx context.Context, req Request) (*checkContext, error) {
	bookable, err := v.bookables.GetBookable(ctx, req.TenantID, req.BookableID)
	if err != nil {
		return nil, fmt.Errorf("resolve bookable %s: %w", req.BookableID, err)
	}
	tenant, err := v.tenants.GetTenant(ctx, req.TenantID)
	if err != nil {
		return nil, fmt.Errorf("resolve tenant %s: %w", req.TenantID, err)
	}
	return &checkContext{req: req, bookable: bookable, tenant: tenant}, nil
}

// CheckPermissions verifies the resource is bookable and the user appears in
// the permission lists (directly or through a tenant role). Empty lists
// permit everyone.
func (v *Validator) CheckPermissions(ctx context.Context, req Request) (models.CheckResult, error) {
	cc, err := v.resolve(ctx, req)
	if err != nil {
		return models.CheckResult{}, err
	}
	return v.checkPermissions(ctx, cc)
}

func (v *Validator) checkPermissions(_ context.Context, cc *checkContext) (models.CheckResult, error) {
	if !cc.bookable.IsBookable {
		return models.CheckResult{}, &NotBookableError{BookableID: cc.bookable.ID}
	}
	if len(cc.bookable.PermittedUsers) == 0 && len(cc.bookable.PermittedRoles) == 0 {
		return passed(models.CheckPermissions), nil
	}
	for _, id := range cc.bookable.PermittedUsers {
		if id == cc.req.UserID {
			return passed(models.CheckPermissions), nil
		}
	}
	userRoles := cc.tenant.RolesOfUser(cc.req.UserID)
	for _, role := range cc.bookable.PermittedRoles {
		for _, have := range userRoles {
			if role == have {
				return passed(models.CheckPermissions), nil
			}
		}
	}
	return models.CheckResult{}, &PermissionDeniedError{BookableID: cc.bookable.ID, UserID: cc.req.UserID}
}

// CheckOpeningHours verifies the window fits within the merged schedule
// rules of the resource and its parents. Long-range resources and resources
// without schedule relation skip this check.
func (v *Validator) CheckOpeningHours(ctx context.Context, req Request) (models.CheckResult, error) {
	cc, err := v.resolve(ctx, req)
	if err != nil {
		return models.CheckResult{}, err
	}
	return v.checkOpeningHours(ctx, cc)
}

func (v *Validator) checkOpeningHours(ctx context.Context, cc *checkContext) (models.CheckResult, error) {
	parents, err := v.bookables.GetParents(ctx, cc.req.TenantID, cc.req.BookableID)
	if err != nil {
		return models.CheckResult{}, fmt.Errorf("resolve parents of %s: %w", cc.req.BookableID, err)
	}

	scheduleRelated := cc.bookable.IsScheduleRelated
	for _, p := range parents {
		scheduleRelated = scheduleRelated || p.IsScheduleRelated
	}
	if !scheduleRelated || cc.bookable.IsLongRange {
		return passed(models.CheckOpeningHours), nil
	}

	rules := schedule.Collect(append([]*models.Bookable{cc.bookable}, parents...)...)
	if rules.Covers(cc.req.TimeBegin, cc.req.TimeEnd, cc.tenant.Location()) {
		return passed(models.CheckOpeningHours), nil
	}
	return models.CheckResult{}, &OpeningHoursViolationError{
		BookableID: cc.bookable.ID,
		TimeBegin:  cc.req.TimeBegin,
		TimeEnd:    cc.req.TimeEnd,
	}
}

// CheckBookingDuration verifies the window length against the resource's
// configured duration bounds. Only schedule-related resources apply.
func (v *Validator) CheckBookingDuration(ctx context.Context, req Request) (models.CheckResult, error) {
	cc, err := v.resolve(ctx, req)
	if err != nil {
		return models.CheckResult{}, err
	}
	return v.checkBookingDuration(ctx, cc)
}

func (v *Validator) checkBookingDuration(_ context.Context, cc *checkContext) (models.CheckResult, error) {
	if !cc.bookable.IsScheduleRelated {
		return passed(models.CheckBookingDuration), nil
	}
	duration := cc.req.DurationMinutes()
	min, max := cc.bookable.MinBookingDuration, cc.bookable.MaxBookingDuration
	if (min != nil && duration < *min) || (max != nil && duration > *max) {
		return models.CheckResult{}, &DurationOutOfRangeError{
			BookableID:      cc.bookable.ID,
			DurationMinutes: duration,
			MinMinutes:      min,
			MaxMinutes:      max,
		}
	}
	return passed(models.CheckBookingDuration), nil
}

// CheckAvailability verifies the requested quantity fits the resource's own
// capacity given all non-rejected bookings overlapping the window.
func (v *Validator) CheckAvailability(ctx context.Context, req Request) (models.CheckResult, error) {
	cc, err := v.resolve(ctx, req)
	if err != nil {
		return models.CheckResult{}, err
	}
	return v.checkAvailability(ctx, cc)
}

func (v *Validator) checkAvailability(ctx context.Context, cc *checkContext) (models.CheckResult, error) {
	occ, concurrent, err := v.occupancyOf(ctx, cc, cc.bookable, cc.req.Amount)
	if err != nil {
		return models.CheckResult{}, err
	}
	if !occ.IsAvailable {
		return models.CheckResult{}, &CapacityExceededError{
			Scope:      ScopeSelf,
			Occupancy:  occ,
			Concurrent: concurrent,
		}
	}
	res := passed(models.CheckAvailability)
	res.Occupancy = &occ
	return res, nil
}

// occupancyOf computes capacity figures for one bookable against the
// request window. extraBooked adds quantities counted from related
// resources (the ticket-sibling aggregation).
func (v *Validator) occupancyOf(ctx context.Context, cc *checkContext, target *models.Bookable, requested int64) (models.Occupancy, []models.ConcurrentBooking, error) {
	occ := models.Occupancy{
		BookableID:  target.ID,
		Title:       target.Title,
		IsAvailable: true,
	}
	if target.Unconstrained() {
		return occ, nil, nil
	}

	bookings, err := v.concurrentBookings(ctx, cc, target.ID)
	if err != nil {
		return occ, nil, err
	}

	var booked int64
	var concurrent []models.ConcurrentBooking
	for _, b := range bookings {
		amount := b.AmountFor(target.ID)
		if amount == 0 {
			continue
		}
		booked += amount
		concurrent = append(concurrent, models.ConcurrentBooking{Booking: *b, ConsumedAmount: amount})
	}

	capacity := target.Capacity()
	occ.TotalCapacity = &capacity
	occ.Booked = booked
	occ.Remaining = capacity - booked
	if occ.Remaining < 0 {
		occ.Remaining = 0
	}
	occ.IsAvailable = booked+requested <= capacity
	return occ, concurrent, nil
}

// concurrentBookings returns the non-rejected bookings that consume the
// target's capacity for the request window. Non-time-related resources
// count every booking.
func (v *Validator) concurrentBookings(ctx context.Context, cc *checkContext, bookableID string) ([]*models.Booking, error) {
	var bookings []*models.Booking
	var err error
	if cc.bookable.IsTimeRelated() {
		bookings, err = v.bookings.GetOverlappingBookings(ctx, cc.req.TenantID, bookableID, cc.req.TimeBegin, cc.req.TimeEnd)
	} else {
		bookings, err = v.bookings.GetBookingsForBookable(ctx, cc.req.TenantID, bookableID)
	}
	if err != nil {
		return nil, fmt.Errorf("load bookings of %s: %w", bookableID, err)
	}
	out := bookings[:0]
	for _, b := range bookings {
		if !b.CountsAgainstCapacity() {
			continue
		}
		if cc.req.ExcludeBookingID != "" && b.ID == cc.req.ExcludeBookingID {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// CheckParentAvailability verifies capacity at every parent level. A
// child's booking consumes its parent's capacity, so each parent's booked
// total sums its own bookings plus those of all of its children; for
// ticket resources this aggregates quantities across sibling tickets.
func (v *Validator) CheckParentAvailability(ctx context.Context, req Request) (models.CheckResult, error) {
	cc, err := v.resolve(ctx, req)
	if err != nil {
		return models.CheckResult{}, err
	}
	return v.checkParentAvailability(ctx, cc)
}

func (v *Validator) checkParentAvailability(ctx context.Context, cc *checkContext) (models.CheckResult, error) {
	parents, err := v.bookables.GetParents(ctx, cc.req.TenantID, cc.req.BookableID)
	if err != nil {
		return models.CheckResult{}, fmt.Errorf("resolve parents of %s: %w", cc.req.BookableID, err)
	}

	res := passed(models.CheckParentAvailability)
	for _, parent := range parents {
		if parent.Unconstrained() {
			continue
		}
		occ, concurrent, err := v.parentOccupancy(ctx, cc, parent)
		if err != nil {
			return models.CheckResult{}, err
		}
		if !occ.IsAvailable {
			return models.CheckResult{}, &CapacityExceededError{
				Scope:      ScopeParent,
				Occupancy:  occ,
				Concurrent: concurrent,
			}
		}
		o := occ
		res.Sub = append(res.Sub, models.CheckResult{
			Type:      models.CheckParentAvailability,
			Available: true,
			Occupancy: &o,
		})
	}
	return res, nil
}

func (v *Validator) parentOccupancy(ctx context.Context, cc *checkContext, parent *models.Bookable) (models.Occupancy, []models.ConcurrentBooking, error) {
	occ := models.Occupancy{BookableID: parent.ID, Title: parent.Title, IsAvailable: true}

	var booked int64
	var concurrent []models.ConcurrentBooking

	count := func(bookableID string) error {
		bookings, err := v.concurrentBookings(ctx, cc, bookableID)
		if err != nil {
			return err
		}
		for _, b := range bookings {
			amount := b.AmountFor(bookableID)
			if amount == 0 {
				continue
			}
			booked += amount
			concurrent = append(concurrent, models.ConcurrentBooking{Booking: *b, ConsumedAmount: amount})
		}
		return nil
	}

	if err := count(parent.ID); err != nil {
		return occ, nil, err
	}
	for _, childID := range parent.RelatedBookableIDs {
		if err := count(childID); err != nil {
			return occ, nil, err
		}
	}

	capacity := parent.Capacity()
	occ.TotalCapacity = &capacity
	occ.Booked = booked
	occ.Remaining = capacity - booked
	if occ.Remaining < 0 {
		occ.Remaining = 0
	}
	occ.IsAvailable = booked+cc.req.Amount <= capacity
	return occ, concurrent, nil
}

// CheckChildBookings verifies capacity at every descendant level: booking a
// parent blocks the resources it contains.
func (v *Validator) CheckChildBookings(ctx context.Context, req Request) (models.CheckResult, error) {
	cc, err := v.resolve(ctx, req)
	if err != nil {
		return models.CheckResult{}, err
	}
	return v.checkChildBookings(ctx, cc)
}

func (v *Validator) checkChildBookings(ctx context.Context, cc *checkContext) (models.CheckResult, error) {
	children, err := v.bookables.GetDescendants(ctx, cc.req.TenantID, cc.req.BookableID)
	if err != nil {
		return models.CheckResult{}, fmt.Errorf("resolve descendants of %s: %w", cc.req.BookableID, err)
	}

	res := passed(models.CheckChildBookings)
	for _, child := range children {
		if child.Unconstrained() {
			continue
		}
		occ, concurrent, err := v.occupancyOf(ctx, cc, child, cc.req.Amount)
		if err != nil {
			return models.CheckResult{}, err
		}
		if !occ.IsAvailable {
			return models.CheckResult{}, &CapacityExceededError{
				Scope:      ScopeChild,
				Occupancy:  occ,
				Concurrent: concurrent,
			}
		}
		o := occ
		res.Sub = append(res.Sub, models.CheckResult{
			Type:      models.CheckChildBookings,
			Available: true,
			Occupancy: &o,
		})
	}
	return res, nil
}

// CheckEventDate verifies the ticket's event exists and has not ended.
func (v *Validator) CheckEventDate(ctx context.Context, req Request) (models.CheckResult, error) {
	cc, err := v.resolve(ctx, req)
	if err != nil {
		return models.CheckResult{}, err
	}
	return v.checkEventDate(ctx, cc)
}

func (v *Validator) checkEventDate(ctx context.Context, cc *checkContext) (models.CheckResult, error) {
	if !cc.bookable.IsTicket() {
		return passed(models.CheckEventDate), nil
	}
	event, err := v.events.GetEvent(ctx, cc.req.TenantID, cc.bookable.EventID)
	if err != nil {
		return models.CheckResult{}, fmt.Errorf("resolve event %s: %w", cc.bookable.EventID, err)
	}
	if event == nil {
		return models.CheckResult{}, &EventNotFoundError{EventID: cc.bookable.EventID}
	}
	if event.Ended(v.now()) {
		return models.CheckResult{}, &EventExpiredError{EventID: event.ID, TimeEnd: event.TimeEnd}
	}
	return passed(models.CheckEventDate), nil
}

// CheckEventSeats verifies seats sold across the whole event, not just this
// ticket type, leave room for the requested quantity.
func (v *Validator) CheckEventSeats(ctx context.Context, req Request) (models.CheckResult, error) {
	cc, err := v.resolve(ctx, req)
	if err != nil {
		return models.CheckResult{}, err
	}
	return v.checkEventSeats(ctx, cc)
}

func (v *Validator) checkEventSeats(ctx context.Context, cc *checkContext) (models.CheckResult, error) {
	if !cc.bookable.IsTicket() {
		return passed(models.CheckEventSeats), nil
	}
	event, err := v.events.GetEvent(ctx, cc.req.TenantID, cc.bookable.EventID)
	if err != nil {
		return models.CheckResult{}, fmt.Errorf("resolve event %s: %w", cc.bookable.EventID, err)
	}
	if event == nil {
		return models.CheckResult{}, &EventNotFoundError{EventID: cc.bookable.EventID}
	}
	if event.MaxAttendees <= 0 {
		return passed(models.CheckEventSeats), nil
	}

	tickets, err := v.bookables.GetTicketsForEvent(ctx, cc.req.TenantID, event.ID)
	if err != nil {
		return models.CheckResult{}, fmt.Errorf("resolve tickets of event %s: %w", event.ID, err)
	}

	var sold int64
	for _, ticket := range tickets {
		bookings, err := v.bookings.GetBookingsForBookable(ctx, cc.req.TenantID, ticket.ID)
		if err != nil {
			return models.CheckResult{}, fmt.Errorf("load bookings of %s: %w", ticket.ID, err)
		}
		for _, b := range bookings {
			if !b.CountsAgainstCapacity() {
				continue
			}
			if cc.req.ExcludeBookingID != "" && b.ID == cc.req.ExcludeBookingID {
				continue
			}
			sold += b.AmountFor(ticket.ID)
		}
	}

	capacity := event.MaxAttendees
	occ := models.Occupancy{
		BookableID:    cc.bookable.ID,
		Title:         event.Title,
		TotalCapacity: &capacity,
		Booked:        sold,
		Remaining:     maxInt64(capacity-sold, 0),
		IsAvailable:   sold+cc.req.Amount <= capacity,
	}
	if !occ.IsAvailable {
		return models.CheckResult{}, &EventCapacityExceededError{EventID: event.ID, Occupancy: occ}
	}
	res := passed(models.CheckEventSeats)
	res.Occupancy = &occ
	return res, nil
}

// CheckMaxBookingDate verifies the window start stays within the tenant's
// advance-booking horizon.
func (v *Validator) CheckMaxBookingDate(ctx context.Context, req Request) (models.CheckResult, error) {
	cc, err := v.resolve(ctx, req)
	if err != nil {
		return models.CheckResult{}, err
	}
	return v.checkMaxBookingDate(ctx, cc)
}

func (v *Validator) checkMaxBookingDate(_ context.Context, cc *checkContext) (models.CheckResult, error) {
	if !cc.bookable.IsTimeRelated() {
		return passed(models.CheckMaxBookingDate), nil
	}
	months := cc.tenant.AdvanceHorizonMonths()
	latest := v.now().AddDate(0, months, 0).UnixMilli()
	if cc.req.TimeBegin > latest {
		return models.CheckResult{}, &MaxAdvanceExceededError{MaxMonths: months, LatestMillis: latest}
	}
	return passed(models.CheckMaxBookingDate), nil
}

func passed(checkType models.CheckType) models.CheckResult {
	return models.CheckResult{Type: checkType, Available: true}
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
