package models

import "time"

// Event is a dated happening that ticket-type bookables sell seats for.
// Seats sold across all ticket types of the event count against
// MaxAttendees.
type Event struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenant_id"`
	Title        string    `json:"title"`
	TimeBegin    int64     `json:"time_begin"` // epoch millis
	TimeEnd      int64     `json:"time_end"`
	MaxAttendees int64     `json:"max_attendees"` // 0 = unlimited
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Ended reports whether the event is over at the given instant.
func (e *Event) Ended(now time.Time) bool {
	return e.TimeEnd != 0 && e.TimeEnd <= now.UnixMilli()
}
