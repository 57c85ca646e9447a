package locker

import (
	"testing"
	"time"

	"github.com/eliesystems/guben-booking-backend-sub000/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func claimFor(unitID string, begin, end int64) models.LockerReservation {
	return models.LockerReservation{
		TenantID:   "t1",
		BookableID: "lockers-1",
		UnitID:     unitID,
		StartTime:  begin,
		EndTime:    end,
	}
}

func TestRegistryClaimAssignsIdentity(t *testing.T) {
	r := NewRegistry()

	a := r.Claim(claimFor("u1", 1000, 2000))
	b := r.Claim(claimFor("u1", 1000, 2000))

	assert.NotEmpty(t, a.ID)
	assert.NotEmpty(t, b.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.False(t, a.ReserveTime.IsZero())
	assert.Equal(t, int64(2), r.ActiveCount("t1", "lockers-1", "u1", 1000, 2000))
}

func TestRegistryActiveCountScoping(t *testing.T) {
	r := NewRegistry()
	r.Claim(claimFor("u1", 1000, 2000))

	assert.Equal(t, int64(1), r.ActiveCount("t1", "lockers-1", "u1", 1500, 2500))
	// Half-open windows: a claim ending at 2000 does not overlap [2000, ...).
	assert.Equal(t, int64(0), r.ActiveCount("t1", "lockers-1", "u1", 2000, 3000))
	assert.Equal(t, int64(0), r.ActiveCount("t1", "lockers-1", "u2", 1000, 2000))
	assert.Equal(t, int64(0), r.ActiveCount("t2", "lockers-1", "u1", 1000, 2000))
}

func TestRegistryRelease(t *testing.T) {
	r := NewRegistry()
	a := r.Claim(claimFor("u1", 1000, 2000))
	b := r.Claim(claimFor("u1", 1000, 2000))

	r.Release(a.ID)
	assert.Equal(t, int64(1), r.ActiveCount("t1", "lockers-1", "u1", 1000, 2000))

	r.Release()
	r.Release("no-such-id")
	assert.Equal(t, int64(1), r.ActiveCount("t1", "lockers-1", "u1", 1000, 2000))

	r.Release(b.ID)
	assert.Empty(t, r.Snapshot())
}

func TestRegistryExpiry(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	r := NewRegistry()
	r.SetClock(func() time.Time { return now })

	r.Claim(claimFor("u1", 1000, 2000))
	require.Equal(t, int64(1), r.ActiveCount("t1", "lockers-1", "u1", 1000, 2000))

	// Still alive just before the TTL.
	r.SetClock(func() time.Time { return now.Add(models.SoftLockTTLMinutes*time.Minute - time.Second) })
	assert.Equal(t, int64(1), r.ActiveCount("t1", "lockers-1", "u1", 1000, 2000))

	r.SetClock(func() time.Time { return now.Add(models.SoftLockTTLMinutes*time.Minute + time.Second) })
	assert.Equal(t, int64(0), r.ActiveCount("t1", "lockers-1", "u1", 1000, 2000))
	assert.Empty(t, r.Snapshot())
}

func TestRegistrySnapshotCopies(t *testing.T) {
	r := NewRegistry()
	r.Claim(claimFor("u1", 1000, 2000))

	snap := r.Snapshot()
	require.Len(t, snap, 1)
	snap[0].UnitID = "mutated"

	again := r.Snapshot()
	assert.Equal(t, "u1", again[0].UnitID)
}
