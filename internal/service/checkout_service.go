package service

import (
	"context"
	"fmt"
	"math"

	"github.com/eliesystems/guben-booking-backend-sub000/internal/checkout"
	"github.com/eliesystems/guben-booking-backend-sub000/internal/domain"
	"github.com/eliesystems/guben-booking-backend-sub000/internal/events"
	"github.com/eliesystems/guben-booking-backend-sub000/internal/locker"
	"github.com/eliesystems/guben-booking-backend-sub000/internal/logging"
	"github.com/eliesystems/guben-booking-backend-sub000/internal/models"
	"github.com/eliesystems/guben-booking-backend-sub000/internal/worker"

	"github.com/rs/zerolog"
)

// LockerQueue schedules asynchronous locker work. The in-process worker
// implements it; tests substitute their own.
type LockerQueue interface {
	Enqueue(ctx context.Context, task worker.LockerTask) error
}

// CheckoutRequest is a multi-item checkout: every item shares the user
// and the booking window.
type CheckoutRequest struct {
	TenantID   string         `json:"tenant_id"`
	UserID     string         `json:"user_id"`
	TimeBegin  int64          `json:"time_begin"`
	TimeEnd    int64          `json:"time_end"`
	Items      []CheckoutItem `json:"items"`
	CouponCode string         `json:"coupon_code,omitempty"`
}

type CheckoutItem struct {
	BookableID string `json:"bookable_id"`
	Amount     int64  `json:"amount"`
}

// ItemChecks is the diagnostic validation outcome for one item.
type ItemChecks struct {
	BookableID string               `json:"bookable_id"`
	Available  bool                 `json:"available"`
	Results    []models.CheckResult `json:"results"`
}

// CommitResult is what a successful commit returns.
type CommitResult struct {
	Booking         *models.Booking `json:"booking"`
	RegularPriceEur float64         `json:"regular_price_eur"`
	UserPriceEur    float64         `json:"user_price_eur"`
}

// InvalidCouponError rejects commits naming an unknown coupon code.
type InvalidCouponError struct {
	Code string
}

func (e *InvalidCouponError) Error() string {
	return fmt.Sprintf("coupon %q is not valid", e.Code)
}

// CheckoutService drives the checkout flow: diagnostic validation,
// committing bookings, updating and cancelling them. Locker work runs
// asynchronously through the queue; everything else is synchronous.
type CheckoutService struct {
	validator   *checkout.Validator
	bookables   domain.BookableStore
	bookings    domain.BookingStore
	coupons     domain.CouponStore
	coordinator *locker.Coordinator
	queue       LockerQueue
	bus         domain.EventPublisher
	log         zerolog.Logger
}

func NewCheckoutService(
	validator *checkout.Validator,
	bookables domain.BookableStore,
	bookings domain.BookingStore,
	coupons domain.CouponStore,
	coordinator *locker.Coordinator,
	queue LockerQueue,
	bus domain.EventPublisher,
	logger *zerolog.Logger,
) *CheckoutService {
	log := logging.Component(logger, "checkout_service")
	return &CheckoutService{
		validator:   validator,
		bookables:   bookables,
		bookings:    bookings,
		coupons:     coupons,
		coordinator: coordinator,
		queue:       queue,
		bus:         bus,
		log:         log,
	}
}

// Validate runs the full diagnostic check list for every item and never
// aborts early.
func (s *CheckoutService) Validate(ctx context.Context, req CheckoutRequest) ([]ItemChecks, error) {
	out := make([]ItemChecks, 0, len(req.Items))
	for _, item := range req.Items {
		results, err := s.validator.CheckAll(ctx, s.itemRequest(req, item), false)
		if err != nil {
			return nil, err
		}
		out = append(out, ItemChecks{
			BookableID: item.BookableID,
			Available:  checkout.AllAvailable(results),
			Results:    results,
		})
	}
	return out, nil
}

// Commit validates every item in fail-fast mode, prices the booking,
// persists it and schedules locker assignment. The coupon usage counter
// is incremented exactly once, only on success.
func (s *CheckoutService) Commit(ctx context.Context, req CheckoutRequest) (*CommitResult, error) {
	coupon, err := s.resolveCoupon(ctx, req)
	if err != nil {
		return nil, err
	}

	booking := &models.Booking{
		TenantID:    req.TenantID,
		UserID:      req.UserID,
		TimeBegin:   req.TimeBegin,
		TimeEnd:     req.TimeEnd,
		IsCommitted: true,
		CouponCode:  req.CouponCode,
	}

	var regularTotal, userTotal float64
	for _, item := range req.Items {
		itemReq := s.itemRequest(req, item)

		if _, err := s.validator.CheckAll(ctx, itemReq, true); err != nil {
			return nil, err
		}

		regular, err := s.validator.RegularPrice(ctx, itemReq)
		if err != nil {
			return nil, err
		}
		user, err := s.validator.UserPrice(ctx, itemReq, checkout.PriceOptions{})
		if err != nil {
			return nil, err
		}
		regularTotal += regular
		userTotal += user

		booking.Items = append(booking.Items, models.BookingItem{
			BookableID:   item.BookableID,
			Amount:       item.Amount,
			UserPriceEur: user,
		})
	}
	if coupon != nil {
		userTotal = coupon.Apply(userTotal)
	}

	claims, err := s.claimLockers(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := s.bookings.CreateBooking(ctx, booking); err != nil {
		s.releaseClaims(claims)
		return nil, fmt.Errorf("create booking: %w", err)
	}

	if coupon != nil {
		if err := s.coupons.IncrementUsage(ctx, req.TenantID, coupon.Code); err != nil {
			s.log.Error().Err(err).Str("coupon", coupon.Code).Msg("coupon usage increment failed")
		}
	}

	s.scheduleLockers(ctx, worker.LockerTask{Type: worker.TaskAssign, Booking: booking, Claims: claims})

	s.publish(events.EventCheckoutCommitted, booking, userTotal)

	return &CommitResult{
		Booking:         booking,
		RegularPriceEur: round2(regularTotal),
		UserPriceEur:    round2(userTotal),
	}, nil
}

// PricePreview prices a single item without side effects. The coupon, if
// named, is applied but its usage counter stays untouched.
func (s *CheckoutService) PricePreview(ctx context.Context, req checkout.Request, couponCode string) (models.PricePreview, error) {
	var opts checkout.PriceOptions
	if couponCode != "" {
		coupon, err := s.coupons.GetCoupon(ctx, req.TenantID, couponCode)
		if err != nil {
			return models.PricePreview{}, fmt.Errorf("resolve coupon: %w", err)
		}
		if coupon == nil {
			return models.PricePreview{}, &InvalidCouponError{Code: couponCode}
		}
		opts.Coupon = coupon
	}
	return s.validator.PricePreview(ctx, req, opts)
}

// Reschedule moves a committed booking to a new window after revalidating
// every item against it.
func (s *CheckoutService) Reschedule(ctx context.Context, bookingID string, timeBegin, timeEnd int64) (*models.Booking, error) {
	booking, err := s.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	old := *booking
	old.Items = append([]models.BookingItem(nil), booking.Items...)
	old.LockerAssignments = append([]models.LockerAssignment(nil), booking.LockerAssignments...)

	for _, item := range booking.Items {
		itemReq := checkout.Request{
			TenantID:         booking.TenantID,
			BookableID:       item.BookableID,
			UserID:           booking.UserID,
			TimeBegin:        timeBegin,
			TimeEnd:          timeEnd,
			Amount:           item.Amount,
			ExcludeBookingID: booking.ID,
		}
		if _, err := s.validator.CheckAll(ctx, itemReq, true); err != nil {
			return nil, err
		}
	}

	booking.TimeBegin = timeBegin
	booking.TimeEnd = timeEnd
	if err := s.bookings.UpdateBooking(ctx, booking); err != nil {
		return nil, err
	}

	s.scheduleLockers(ctx, worker.LockerTask{Type: worker.TaskReassign, Booking: booking, OldBooking: &old})

	s.publish(events.EventBookingUpdated, booking, 0)
	return booking, nil
}

// Cancel rejects a booking and releases its locker reservations.
func (s *CheckoutService) Cancel(ctx context.Context, bookingID string) error {
	booking, err := s.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	if booking.IsRejected {
		return nil
	}

	booking.IsRejected = true
	if err := s.bookings.UpdateBooking(ctx, booking); err != nil {
		return err
	}

	s.scheduleLockers(ctx, worker.LockerTask{Type: worker.TaskRelease, Booking: booking})

	s.publish(events.EventBookingCancelled, booking, 0)
	return nil
}

func (s *CheckoutService) itemRequest(req CheckoutRequest, item CheckoutItem) checkout.Request {
	return checkout.Request{
		TenantID:   req.TenantID,
		BookableID: item.BookableID,
		UserID:     req.UserID,
		TimeBegin:  req.TimeBegin,
		TimeEnd:    req.TimeEnd,
		Amount:     item.Amount,
	}
}

func (s *CheckoutService) resolveCoupon(ctx context.Context, req CheckoutRequest) (*models.Coupon, error) {
	if req.CouponCode == "" {
		return nil, nil
	}
	coupon, err := s.coupons.GetCoupon(ctx, req.TenantID, req.CouponCode)
	if err != nil {
		return nil, fmt.Errorf("resolve coupon: %w", err)
	}
	if coupon == nil {
		return nil, &InvalidCouponError{Code: req.CouponCode}
	}
	return coupon, nil
}

// claimLockers soft-locks units for every item whose bookable carries
// locker units. Claims stay held until the worker turns them into backend
// reservations or their TTL expires.
func (s *CheckoutService) claimLockers(ctx context.Context, req CheckoutRequest) ([]models.LockerReservation, error) {
	if s.coordinator == nil {
		return nil, nil
	}
	var claims []models.LockerReservation
	for _, item := range req.Items {
		bookable, err := s.bookables.GetBookable(ctx, req.TenantID, item.BookableID)
		if err != nil {
			s.releaseClaims(claims)
			return nil, err
		}
		if len(bookable.LockerUnits) == 0 {
			continue
		}
		itemClaims, err := s.coordinator.GetAvailableLocker(ctx, bookable, req.TimeBegin, req.TimeEnd, item.Amount)
		if err != nil {
			s.releaseClaims(claims)
			return nil, err
		}
		claims = append(claims, itemClaims...)
	}
	return claims, nil
}

func (s *CheckoutService) releaseClaims(claims []models.LockerReservation) {
	if s.coordinator == nil || len(claims) == 0 {
		return
	}
	s.coordinator.Registry().Release(claimIDs(claims)...)
}

func (s *CheckoutService) scheduleLockers(ctx context.Context, task worker.LockerTask) {
	if !needsLockers(task) {
		return
	}
	if s.queue == nil {
		s.runLockerTask(ctx, task)
		return
	}
	if err := s.queue.Enqueue(ctx, task); err != nil {
		s.log.Warn().Err(err).Str("booking_id", task.Booking.ID).Msg("locker enqueue failed, running inline")
		s.runLockerTask(ctx, task)
	}
}

func needsLockers(task worker.LockerTask) bool {
	switch task.Type {
	case worker.TaskAssign:
		return len(task.Claims) > 0
	case worker.TaskReassign:
		return task.OldBooking != nil && len(task.OldBooking.LockerAssignments) > 0
	case worker.TaskRelease:
		return len(task.Booking.LockerAssignments) > 0
	}
	return false
}

func (s *CheckoutService) runLockerTask(ctx context.Context, task worker.LockerTask) {
	if s.coordinator == nil {
		return
	}
	switch task.Type {
	case worker.TaskAssign:
		s.coordinator.HandleCreate(ctx, task.Booking, task.Claims)
	case worker.TaskReassign:
		s.coordinator.HandleUpdate(ctx, task.OldBooking, task.Booking)
	case worker.TaskRelease:
		s.coordinator.HandleCancel(ctx, task.Booking)
	}
}

func (s *CheckoutService) publish(eventType string, booking *models.Booking, price float64) {
	if s.bus == nil {
		return
	}
	payload := events.BookingEventPayload{
		BookingID:  booking.ID,
		TenantID:   booking.TenantID,
		UserID:     booking.UserID,
		TimeBegin:  booking.TimeBegin,
		TimeEnd:    booking.TimeEnd,
		Items:      booking.Items,
		CouponCode: booking.CouponCode,
		PriceEur:   price,
	}
	if err := s.bus.PublishJSON(eventType, payload); err != nil {
		s.log.Warn().Err(err).Str("event", eventType).Msg("event publish failed")
	}
}

func claimIDs(claims []models.LockerReservation) []string {
	ids := make([]string, 0, len(claims))
	for _, c := range claims {
		ids = append(ids, c.ID)
	}
	return ids
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
