package models

import "time"

// LockerUnit is one physical bank of lockers belonging to a bookable.
type LockerUnit struct {
	UnitID       string `yaml:"unit_id" json:"unit_id"`
	LockerSystem string `yaml:"locker_system" json:"locker_system"`
	Capacity     int64  `yaml:"capacity" json:"capacity"`
}

// LockerReservation is a time-boxed in-memory claim on a locker unit held
// between availability confirmation and booking persistence. It is not a
// source of truth; the sweep drops claims older than SoftLockTTLMinutes.
type LockerReservation struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenant_id"`
	BookableID   string    `json:"bookable_id"`
	UnitID       string    `json:"unit_id"`
	LockerSystem string    `json:"locker_system"`
	StartTime    int64     `json:"start_time"` // epoch millis
	EndTime      int64     `json:"end_time"`
	ReserveTime  time.Time `json:"reserve_time"`
}

// Overlaps reports whether the claim window intersects [begin, end).
func (r *LockerReservation) Overlaps(begin, end int64) bool {
	return r.StartTime < end && begin < r.EndTime
}

// LockerAssignment is a persisted link between a committed booking and an
// external locker reservation.
type LockerAssignment struct {
	BookingID     string `json:"booking_id"`
	BookableID    string `json:"bookable_id"`
	UnitID        string `json:"unit_id"`
	LockerSystem  string `json:"locker_system"`
	ReservationID string `json:"reservation_id"`
}
