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

// GetEvent returns the event or nil when no such event exists.
func (d *DB) GetEvent(ctx context.Context, tenantID, eventID string) (*models.Event, error) {
	e := &models.Event{}
	err := d.db.QueryRowContext(ctx, `SELECT id, tenant_id, title, time_begin, time_end, max_attendees, created_at, updated_at
		FROM events WHERE id = ? AND tenant_id = ?`, eventID, tenantID).
		Scan(&e.ID, &e.TenantID, &e.Title, &e.TimeBegin, &e.TimeEnd, &e.MaxAttendees, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

// CreateEvent inserts a new event.
func (d *DB) CreateEvent(ctx context.Context, e *models.Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := time.Now()
	_, err := d.db.ExecContext(ctx, `INSERT INTO events (id, tenant_id, title, time_begin, time_end, max_attendees, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.TenantID, e.Title, e.TimeBegin, e.TimeEnd, e.MaxAttendees, now, now)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	e.CreatedAt = now
	e.UpdatedAt = now
	return nil
}

// UpdateEvent rewrites an existing event.
func (d *DB) UpdateEvent(ctx context.Context, e *models.Event) error {
	now := time.Now()
	result, err := d.db.ExecContext(ctx, `UPDATE events SET title = ?, time_begin = ?, time_end = ?, max_attendees = ?, updated_at = ?
		WHERE id = ? AND tenant_id = ?`,
		e.Title, e.TimeBegin, e.TimeEnd, e.MaxAttendees, now, e.ID, e.TenantID)
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("event %s: %w", e.ID, ErrNotFound)
	}
	e.UpdatedAt = now
	return nil
}
