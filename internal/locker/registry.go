package locker

import (
	"sync"
	"time"

	"github.com/eliesystems/guben-booking-backend-sub000/internal/metrics"
	"github.com/eliesystems/guben-booking-backend-sub000/internal/models"

	"github.com/google/uuid"
)

// Registry is the process-wide soft-lock table. A claim counts against
// locker capacity until it expires, is released on confirm/cancel, or the
// sweep discards it. The registry is not linearizable: a capacity read and
// a subsequent claim are not atomic together, so two near-simultaneous
// checkouts can both observe free capacity and both claim it. That race is
// accepted best-effort behaviour, not a correctness guarantee.
type Registry struct {
	mu    sync.Mutex
	locks []models.LockerReservation
	ttl   time.Duration
	now   func() time.Time
}

// NewRegistry builds a registry with the default 15-minute expiry.
func NewRegistry() *Registry {
	return &Registry{
		ttl: models.SoftLockTTLMinutes * time.Minute,
		now: time.Now,
	}
}

// SetClock overrides the registry clock, for deterministic expiry in tests.
func (r *Registry) SetClock(now func() time.Time) {
	if now == nil {
		return
	}
	r.mu.Lock()
	r.now = now
	r.mu.Unlock()
}

// sweep drops expired claims. Callers hold r.mu.
func (r *Registry) sweep() {
	cutoff := r.now().Add(-r.ttl)
	kept := r.locks[:0]
	for _, l := range r.locks {
		if l.ReserveTime.After(cutoff) {
			kept = append(kept, l)
		}
	}
	r.locks = kept
	metrics.SetSoftLocks(len(r.locks))
}

// Claim registers a soft lock and returns it with a fresh id and reserve
// time.
func (r *Registry) Claim(lock models.LockerReservation) models.LockerReservation {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweep()

	lock.ID = uuid.NewString()
	lock.ReserveTime = r.now()
	r.locks = append(r.locks, lock)
	metrics.SetSoftLocks(len(r.locks))
	return lock
}

// Release removes the claims with the given ids.
func (r *Registry) Release(ids ...string) {
	if len(ids) == 0 {
		return
	}
	idSet := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		idSet[id] = struct{}{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.locks[:0]
	for _, l := range r.locks {
		if _, drop := idSet[l.ID]; !drop {
			kept = append(kept, l)
		}
	}
	r.locks = kept
	metrics.SetSoftLocks(len(r.locks))
}

// ActiveCount returns the unexpired claims on a unit overlapping the
// window.
func (r *Registry) ActiveCount(tenantID, bookableID, unitID string, begin, end int64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweep()

	var count int64
	for i := range r.locks {
		l := &r.locks[i]
		if l.TenantID == tenantID && l.BookableID == bookableID && l.UnitID == unitID && l.Overlaps(begin, end) {
			count++
		}
	}
	return count
}

// Snapshot copies the current unexpired claims.
func (r *Registry) Snapshot() []models.LockerReservation {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweep()
	out := make([]models.LockerReservation, len(r.locks))
	copy(out, r.locks)
	return out
}
