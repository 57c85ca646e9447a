package locker

import (
	"context"
	"fmt"

	"github.com/eliesystems/guben-booking-backend-sub000/internal/domain"
	"github.com/eliesystems/guben-booking-backend-sub000/internal/logging"
	"github.com/eliesystems/guben-booking-backend-sub000/internal/metrics"
	"github.com/eliesystems/guben-booking-backend-sub000/internal/models"

	"github.com/rs/zerolog"
)

// UnavailableError is the one locker failure surfaced to the caller:
// the requested amount exceeds the unit capacity left after persisted
// assignments and unexpired soft locks.
type UnavailableError struct {
	BookableID string
	Requested  int64
	Free       int64
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("locker %s: %d units requested, %d free", e.BookableID, e.Requested, e.Free)
}

// Coordinator prevents double-claiming of locker inventory between
// availability confirmation and booking persistence, and reconciles
// committed bookings against the external locker backend.
type Coordinator struct {
	registry  *Registry
	bookables domain.BookableStore
	bookings  domain.BookingStore
	backend   domain.LockerBackend
	log       zerolog.Logger
}

func NewCoordinator(registry *Registry, bookables domain.BookableStore, bookings domain.BookingStore, backend domain.LockerBackend, logger *zerolog.Logger) *Coordinator {
	base := logging.Component(logger, "locker")
	return &Coordinator{registry: registry, bookables: bookables, bookings: bookings, backend: backend, log: base}
}

// Registry exposes the coordinator's soft-lock table.
func (c *Coordinator) Registry() *Registry {
	return c.registry
}

// GetAvailableLocker soft-locks amount units of the bookable's locker
// inventory for the window and returns the unconfirmed claims. Free units
// per unit bank = capacity - persisted assignments - unexpired soft locks.
func (c *Coordinator) GetAvailableLocker(ctx context.Context, bookable *models.Bookable, begin, end, amount int64) ([]models.LockerReservation, error) {
	if amount <= 0 {
		return nil, nil
	}

	type unitFree struct {
		unit models.LockerUnit
		free int64
	}
	var units []unitFree
	var totalFree int64
	for _, unit := range bookable.LockerUnits {
		persisted, err := c.bookings.CountLockerAssignments(ctx, bookable.TenantID, bookable.ID, unit.UnitID, begin, end)
		if err != nil {
			return nil, fmt.Errorf("count locker assignments for %s/%s: %w", bookable.ID, unit.UnitID, err)
		}
		soft := c.registry.ActiveCount(bookable.TenantID, bookable.ID, unit.UnitID, begin, end)
		free := unit.Capacity - persisted - soft
		if free < 0 {
			free = 0
		}
		units = append(units, unitFree{unit: unit, free: free})
		totalFree += free
	}

	if totalFree < amount {
		return nil, &UnavailableError{BookableID: bookable.ID, Requested: amount, Free: totalFree}
	}

	var claims []models.LockerReservation
	remaining := amount
	for _, u := range units {
		for i := int64(0); i < u.free && remaining > 0; i++ {
			claims = append(claims, c.registry.Claim(models.LockerReservation{
				TenantID:     bookable.TenantID,
				BookableID:   bookable.ID,
				UnitID:       u.unit.UnitID,
				LockerSystem: u.unit.LockerSystem,
				StartTime:    begin,
				EndTime:      end,
			}))
			remaining--
		}
		if remaining == 0 {
			break
		}
	}
	return claims, nil
}

// itemDiff classifies booking items between an old and a new state.
type itemDiff struct {
	added     []models.BookingItem
	removed   []models.BookingItem
	changed   []models.BookingItem
	unchanged []models.BookingItem
}

func diffItems(oldItems, newItems []models.BookingItem) itemDiff {
	oldByID := make(map[string]models.BookingItem, len(oldItems))
	for _, item := range oldItems {
		oldByID[item.BookableID] = item
	}

	var d itemDiff
	seen := make(map[string]bool, len(newItems))
	for _, item := range newItems {
		seen[item.BookableID] = true
		old, ok := oldByID[item.BookableID]
		switch {
		case !ok:
			d.added = append(d.added, item)
		case old.Amount != item.Amount:
			d.changed = append(d.changed, item)
		default:
			d.unchanged = append(d.unchanged, item)
		}
	}
	for _, item := range oldItems {
		if !seen[item.BookableID] {
			d.removed = append(d.removed, item)
		}
	}
	return d
}

// HandleCreate starts an external reservation for every soft-locked claim
// of a freshly committed booking. External failures are logged and do not
// abort the booking flow; successful starts persist the assignment and
// release the soft lock.
func (c *Coordinator) HandleCreate(ctx context.Context, booking *models.Booking, claims []models.LockerReservation) {
	for _, claim := range claims {
		reservationID, err := c.backend.StartReservation(ctx,
			booking.TenantID, booking.ID, claim.UnitID, claim.LockerSystem, claim.StartTime, claim.EndTime)
		if err != nil {
			metrics.IncLockerCall("start", "error")
			c.log.Error().Err(err).
				Str("booking_id", booking.ID).
				Str("unit_id", claim.UnitID).
				Msg("external locker start failed")
			continue
		}
		metrics.IncLockerCall("start", "ok")

		assignment := &models.LockerAssignment{
			BookingID:     booking.ID,
			BookableID:    claim.BookableID,
			UnitID:        claim.UnitID,
			LockerSystem:  claim.LockerSystem,
			ReservationID: reservationID,
		}
		if err := c.bookings.SaveLockerAssignment(ctx, assignment); err != nil {
			c.log.Error().Err(err).Str("booking_id", booking.ID).Msg("persist locker assignment failed")
		}
		booking.LockerAssignments = append(booking.LockerAssignments, *assignment)
		c.registry.Release(claim.ID)
	}
}

// HandleUpdate diffs the old and new booking state and, per physical unit,
// starts, updates or cancels the external reservation. Added items claim
// fresh units on the new window; quantity changes claim or cancel the
// difference.
func (c *Coordinator) HandleUpdate(ctx context.Context, oldBooking, newBooking *models.Booking) {
	d := diffItems(oldBooking.Items, newBooking.Items)

	for _, item := range d.removed {
		c.cancelAssignments(ctx, oldBooking, item.BookableID)
	}
	for _, item := range d.added {
		c.startUnits(ctx, newBooking, item.BookableID, item.Amount)
	}

	surplus := make(map[string]bool)
	for _, item := range d.changed {
		current := assignmentsFor(oldBooking, item.BookableID)
		keep := int(item.Amount)
		if keep < 0 {
			keep = 0
		}
		if keep > len(current) {
			c.startUnits(ctx, newBooking, item.BookableID, int64(keep-len(current)))
			continue
		}
		for _, assignment := range current[keep:] {
			c.cancelOne(ctx, oldBooking, assignment)
			surplus[assignment.ReservationID] = true
		}
	}

	windowMoved := oldBooking.TimeBegin != newBooking.TimeBegin || oldBooking.TimeEnd != newBooking.TimeEnd
	if !windowMoved {
		return
	}
	for _, assignment := range assignmentsExcept(oldBooking, d.removed) {
		if surplus[assignment.ReservationID] {
			continue
		}
		err := c.backend.UpdateReservation(ctx, newBooking.TenantID, assignment.ReservationID, newBooking.TimeBegin, newBooking.TimeEnd)
		if err != nil {
			metrics.IncLockerCall("update", "error")
			c.log.Error().Err(err).
				Str("booking_id", newBooking.ID).
				Str("reservation_id", assignment.ReservationID).
				Msg("external locker update failed")
			continue
		}
		metrics.IncLockerCall("update", "ok")
	}
}

// startUnits soft-locks amount units of one bookable on the booking's
// window and runs the create flow for the claims. Failures are logged,
// matching the best-effort contract of the other handlers.
func (c *Coordinator) startUnits(ctx context.Context, booking *models.Booking, bookableID string, amount int64) {
	bookable, err := c.bookables.GetBookable(ctx, booking.TenantID, bookableID)
	if err != nil {
		c.log.Error().Err(err).
			Str("booking_id", booking.ID).
			Str("bookable_id", bookableID).
			Msg("resolve bookable for locker start failed")
		return
	}
	if bookable == nil || len(bookable.LockerUnits) == 0 {
		return
	}
	claims, err := c.GetAvailableLocker(ctx, bookable, booking.TimeBegin, booking.TimeEnd, amount)
	if err != nil {
		c.log.Error().Err(err).
			Str("booking_id", booking.ID).
			Str("bookable_id", bookableID).
			Msg("claim locker units on update failed")
		return
	}
	c.HandleCreate(ctx, booking, claims)
}

// HandleCancel cancels every external reservation of a rejected or
// cancelled booking.
func (c *Coordinator) HandleCancel(ctx context.Context, booking *models.Booking) {
	for _, assignment := range booking.LockerAssignments {
		c.cancelOne(ctx, booking, assignment)
	}
}

func (c *Coordinator) cancelAssignments(ctx context.Context, booking *models.Booking, bookableID string) {
	for _, assignment := range booking.LockerAssignments {
		if assignment.BookableID == bookableID {
			c.cancelOne(ctx, booking, assignment)
		}
	}
}

func (c *Coordinator) cancelOne(ctx context.Context, booking *models.Booking, assignment models.LockerAssignment) {
	if err := c.backend.CancelReservation(ctx, booking.TenantID, assignment.ReservationID); err != nil {
		metrics.IncLockerCall("cancel", "error")
		c.log.Error().Err(err).
			Str("booking_id", booking.ID).
			Str("reservation_id", assignment.ReservationID).
			Msg("external locker cancel failed")
		return
	}
	metrics.IncLockerCall("cancel", "ok")
	if err := c.bookings.DeleteLockerAssignment(ctx, booking.ID, assignment.UnitID); err != nil {
		c.log.Error().Err(err).Str("booking_id", booking.ID).Msg("delete locker assignment failed")
	}
}

func assignmentsFor(booking *models.Booking, bookableID string) []models.LockerAssignment {
	var out []models.LockerAssignment
	for _, a := range booking.LockerAssignments {
		if a.BookableID == bookableID {
			out = append(out, a)
		}
	}
	return out
}

func assignmentsExcept(booking *models.Booking, removed []models.BookingItem) []models.LockerAssignment {
	removedIDs := make(map[string]bool, len(removed))
	for _, item := range removed {
		removedIDs[item.BookableID] = true
	}
	var out []models.LockerAssignment
	for _, a := range booking.LockerAssignments {
		if !removedIDs[a.BookableID] {
			out = append(out, a)
		}
	}
	return out
}
