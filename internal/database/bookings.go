package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/eliesystems/guben-booking-backend-sub000/internal/models"

	"github.com/google/uuid"
)

const bookingColumns = `id, tenant_id, user_id, time_begin, time_end,
	is_committed, is_payed, is_rejected, coupon_code, created_at, updated_at, version`

// CreateBooking persists a booking with its items and locker assignments
// in one transaction.
func (d *DB) CreateBooking(ctx context.Context, booking *models.Booking) error {
	if booking.ID == "" {
		booking.ID = uuid.NewString()
	}
	now := time.Now()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `INSERT INTO bookings (
			id, tenant_id, user_id, time_begin, time_end,
			is_committed, is_payed, is_rejected, coupon_code,
			created_at, updated_at, version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		booking.ID, booking.TenantID, booking.UserID, booking.TimeBegin, booking.TimeEnd,
		booking.IsCommitted, booking.IsPayed, booking.IsRejected, booking.CouponCode,
		now, now, 1,
	)
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}

	if err := insertItems(ctx, tx, booking); err != nil {
		return err
	}
	if err := insertAssignments(ctx, tx, booking); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit booking: %w", err)
	}
	booking.CreatedAt = now
	booking.UpdatedAt = now
	booking.Version = 1
	return nil
}

// UpdateBooking replaces the booking row, its items and assignments, with
// optimistic locking on the version column.
func (d *DB) UpdateBooking(ctx context.Context, booking *models.Booking) error {
	now := time.Now()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(ctx, `UPDATE bookings SET
			time_begin = ?, time_end = ?, is_committed = ?, is_payed = ?,
			is_rejected = ?, coupon_code = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		booking.TimeBegin, booking.TimeEnd, booking.IsCommitted, booking.IsPayed,
		booking.IsRejected, booking.CouponCode, now, booking.ID, booking.Version,
	)
	if err != nil {
		return fmt.Errorf("update booking: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM booking_items WHERE booking_id = ?`, booking.ID); err != nil {
		return fmt.Errorf("clear booking items: %w", err)
	}
	if err := insertItems(ctx, tx, booking); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM locker_assignments WHERE booking_id = ?`, booking.ID); err != nil {
		return fmt.Errorf("clear locker assignments: %w", err)
	}
	if err := insertAssignments(ctx, tx, booking); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit booking update: %w", err)
	}
	booking.UpdatedAt = now
	booking.Version++
	return nil
}

func insertItems(ctx context.Context, tx *sql.Tx, booking *models.Booking) error {
	for _, item := range booking.Items {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO booking_items (booking_id, bookable_id, amount, user_price_eur) VALUES (?, ?, ?, ?)`,
			booking.ID, item.BookableID, item.Amount, item.UserPriceEur,
		)
		if err != nil {
			return fmt.Errorf("insert booking item: %w", err)
		}
	}
	return nil
}

func insertAssignments(ctx context.Context, tx *sql.Tx, booking *models.Booking) error {
	for _, a := range booking.LockerAssignments {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO locker_assignments (booking_id, bookable_id, unit_id, locker_system, reservation_id) VALUES (?, ?, ?, ?, ?)`,
			booking.ID, a.BookableID, a.UnitID, a.LockerSystem, a.ReservationID,
		)
		if err != nil {
			return fmt.Errorf("insert locker assignment: %w", err)
		}
	}
	return nil
}

// GetBooking loads one booking with its items and assignments.
func (d *DB) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	booking, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("booking %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get booking: %w", err)
	}
	if err := d.loadBookingDetails(ctx, booking); err != nil {
		return nil, err
	}
	return booking, nil
}

// GetOverlappingBookings returns non-rejected bookings of the bookable
// whose window intersects [begin, end).
func (d *DB) GetOverlappingBookings(ctx context.Context, tenantID, bookableID string, begin, end int64) ([]*models.Booking, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT DISTINCT b.`+bookingList()+`
		FROM bookings b JOIN booking_items i ON i.booking_id = b.id
		WHERE b.tenant_id = ? AND i.bookable_id = ? AND b.is_rejected = 0
		  AND b.time_begin < ? AND b.time_end > ?
		ORDER BY b.time_begin ASC`,
		tenantID, bookableID, end, begin)
	if err != nil {
		return nil, fmt.Errorf("query overlapping bookings: %w", err)
	}
	return d.collectBookings(ctx, rows)
}

// GetBookingsForBookable returns all non-rejected bookings of the
// bookable, regardless of time.
func (d *DB) GetBookingsForBookable(ctx context.Context, tenantID, bookableID string) ([]*models.Booking, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT DISTINCT b.`+bookingList()+`
		FROM bookings b JOIN booking_items i ON i.booking_id = b.id
		WHERE b.tenant_id = ? AND i.bookable_id = ? AND b.is_rejected = 0
		ORDER BY b.created_at ASC`,
		tenantID, bookableID)
	if err != nil {
		return nil, fmt.Errorf("query bookings for bookable: %w", err)
	}
	return d.collectBookings(ctx, rows)
}

// GetBookingsByRange returns all non-rejected bookings of a tenant whose
// window intersects [begin, end). Used by the occupancy export.
func (d *DB) GetBookingsByRange(ctx context.Context, tenantID string, begin, end int64) ([]*models.Booking, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT `+bookingColumns+`
		FROM bookings
		WHERE tenant_id = ? AND is_rejected = 0 AND time_begin < ? AND time_end > ?
		ORDER BY time_begin ASC`,
		tenantID, end, begin)
	if err != nil {
		return nil, fmt.Errorf("query bookings by range: %w", err)
	}
	return d.collectBookings(ctx, rows)
}

// CountLockerAssignments counts persisted assignments for a unit whose
// booking window overlaps [begin, end). Rejected bookings do not count.
func (d *DB) CountLockerAssignments(ctx context.Context, tenantID, bookableID, unitID string, begin, end int64) (int64, error) {
	var count int64
	err := d.db.QueryRowContext(ctx, `SELECT COUNT(*)
		FROM locker_assignments a JOIN bookings b ON b.id = a.booking_id
		WHERE b.tenant_id = ? AND a.bookable_id = ? AND a.unit_id = ?
		  AND b.is_rejected = 0 AND b.time_begin < ? AND b.time_end > ?`,
		tenantID, bookableID, unitID, end, begin).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count locker assignments: %w", err)
	}
	return count, nil
}

// SaveLockerAssignment persists one external locker reservation link.
func (d *DB) SaveLockerAssignment(ctx context.Context, a *models.LockerAssignment) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO locker_assignments (booking_id, bookable_id, unit_id, locker_system, reservation_id) VALUES (?, ?, ?, ?, ?)`,
		a.BookingID, a.BookableID, a.UnitID, a.LockerSystem, a.ReservationID,
	)
	if err != nil {
		return fmt.Errorf("save locker assignment: %w", err)
	}
	return nil
}

// DeleteLockerAssignment removes the assignment of one unit on a booking.
func (d *DB) DeleteLockerAssignment(ctx context.Context, bookingID, unitID string) error {
	_, err := d.db.ExecContext(ctx,
		`DELETE FROM locker_assignments WHERE booking_id = ? AND unit_id = ?`, bookingID, unitID)
	if err != nil {
		return fmt.Errorf("delete locker assignment: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func bookingList() string {
	return `id, b.tenant_id, b.user_id, b.time_begin, b.time_end,
		b.is_committed, b.is_payed, b.is_rejected, b.coupon_code, b.created_at, b.updated_at, b.version`
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	b := &models.Booking{}
	var coupon sql.NullString
	err := row.Scan(
		&b.ID, &b.TenantID, &b.UserID, &b.TimeBegin, &b.TimeEnd,
		&b.IsCommitted, &b.IsPayed, &b.IsRejected, &coupon,
		&b.CreatedAt, &b.UpdatedAt, &b.Version,
	)
	if err != nil {
		return nil, err
	}
	b.CouponCode = coupon.String
	return b, nil
}

func (d *DB) collectBookings(ctx context.Context, rows *sql.Rows) ([]*models.Booking, error) {
	defer rows.Close()
	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bookings: %w", err)
	}
	for _, b := range bookings {
		if err := d.loadBookingDetails(ctx, b); err != nil {
			return nil, err
		}
	}
	return bookings, nil
}

func (d *DB) loadBookingDetails(ctx context.Context, b *models.Booking) error {
	itemRows, err := d.db.QueryContext(ctx,
		`SELECT bookable_id, amount, user_price_eur FROM booking_items WHERE booking_id = ?`, b.ID)
	if err != nil {
		return fmt.Errorf("load booking items: %w", err)
	}
	defer itemRows.Close()
	for itemRows.Next() {
		var item models.BookingItem
		if err := itemRows.Scan(&item.BookableID, &item.Amount, &item.UserPriceEur); err != nil {
			return fmt.Errorf("scan booking item: %w", err)
		}
		b.Items = append(b.Items, item)
	}
	if err := itemRows.Err(); err != nil {
		return fmt.Errorf("iterate booking items: %w", err)
	}

	assignRows, err := d.db.QueryContext(ctx,
		`SELECT booking_id, bookable_id, unit_id, locker_system, reservation_id FROM locker_assignments WHERE booking_id = ?`, b.ID)
	if err != nil {
		return fmt.Errorf("load locker assignments: %w", err)
	}
	defer assignRows.Close()
	for assignRows.Next() {
		var a models.LockerAssignment
		if err := assignRows.Scan(&a.BookingID, &a.BookableID, &a.UnitID, &a.LockerSystem, &a.ReservationID); err != nil {
			return fmt.Errorf("scan locker assignment: %w", err)
		}
		b.LockerAssignments = append(b.LockerAssignments, a)
	}
	return assignRows.Err()
}
