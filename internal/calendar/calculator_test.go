package calendar

import (
	"context"
	"testing"
	"time"

	"github.com/eliesystems/guben-booking-backend-sub000/internal/checkout"
	"github.com/eliesystems/guben-booking-backend-sub000/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCatalog serves one tenant with a bookable set and optional parent links.
type fakeCatalog struct {
	tenant    *models.Tenant
	bookables map[string]*models.Bookable
	parents   map[string][]*models.Bookable
}

func (f *fakeCatalog) GetBookable(_ context.Context, _, id string) (*models.Bookable, error) {
	return f.bookables[id], nil
}

func (f *fakeCatalog) GetParents(_ context.Context, _, id string) ([]*models.Bookable, error) {
	return f.parents[id], nil
}

func (f *fakeCatalog) GetDescendants(_ context.Context, _, _ string) ([]*models.Bookable, error) {
	return nil, nil
}

func (f *fakeCatalog) GetTicketsForEvent(_ context.Context, _, _ string) ([]*models.Bookable, error) {
	return nil, nil
}

func (f *fakeCatalog) ListBookables(_ context.Context, _ string) ([]*models.Bookable, error) {
	out := make([]*models.Bookable, 0, len(f.bookables))
	for _, b := range f.bookables {
		out = append(out, b)
	}
	return out, nil
}

func (f *fakeCatalog) GetTenant(_ context.Context, _ string) (*models.Tenant, error) {
	return f.tenant, nil
}

// fakeBookings filters a fixed booking slice by window overlap.
type fakeBookings struct {
	bookings []*models.Booking
}

func (f *fakeBookings) GetBooking(_ context.Context, id string) (*models.Booking, error) {
	for _, b := range f.bookings {
		if b.ID == id {
			return b, nil
		}
	}
	return nil, nil
}

func (f *fakeBookings) GetOverlappingBookings(_ context.Context, _, bookableID string, begin, end int64) ([]*models.Booking, error) {
	var out []*models.Booking
	for _, b := range f.bookings {
		if b.AmountFor(bookableID) > 0 && b.Overlaps(begin, end) && !b.IsRejected {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeBookings) GetBookingsForBookable(_ context.Context, _, bookableID string) ([]*models.Booking, error) {
	var out []*models.Booking
	for _, b := range f.bookings {
		if b.AmountFor(bookableID) > 0 && !b.IsRejected {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeBookings) CreateBooking(_ context.Context, _ *models.Booking) error { return nil }
func (f *fakeBookings) UpdateBooking(_ context.Context, _ *models.Booking) error { return nil }

func (f *fakeBookings) CountLockerAssignments(_ context.Context, _, _, _ string, _, _ int64) (int64, error) {
	return 0, nil
}

func (f *fakeBookings) SaveLockerAssignment(_ context.Context, _ *models.LockerAssignment) error {
	return nil
}

func (f *fakeBookings) DeleteLockerAssignment(_ context.Context, _, _ string) error { return nil }

type fakeEvents struct{}

func (fakeEvents) GetEvent(_ context.Context, _, _ string) (*models.Event, error) { return nil, nil }

func int64Ptr(v int64) *int64 { return &v }

// day is 2026-03-02 00:00 UTC, a Monday.
var day = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func hour(h float64) int64 {
	return day.Add(time.Duration(h * float64(time.Hour))).UnixMilli()
}

func newCalculator(bookable *models.Bookable, bookings ...*models.Booking) *Calculator {
	catalog := &fakeCatalog{
		tenant:    &models.Tenant{ID: "t1", Name: "Guben"},
		bookables: map[string]*models.Bookable{bookable.ID: bookable},
	}
	store := &fakeBookings{bookings: bookings}
	validator := checkout.NewValidator(catalog, store, fakeEvents{}, catalog, nil, nil)
	return NewCalculator(validator, catalog, catalog, nil)
}

func calendarRequest(amount int64, beginHour, endHour float64) checkout.Request {
	return checkout.Request{
		TenantID:   "t1",
		BookableID: "room-1",
		UserID:     "bob",
		TimeBegin:  hour(beginHour),
		TimeEnd:    hour(endHour),
		Amount:     amount,
	}
}

func room() *models.Bookable {
	return &models.Bookable{
		ID:                "room-1",
		TenantID:          "t1",
		Title:             "Seminar Room",
		IsBookable:        true,
		Amount:            int64Ptr(2),
		IsScheduleRelated: true,
	}
}

func assertGapFree(t *testing.T, segments []models.CalendarSegment, begin, end int64) {
	t.Helper()
	require.NotEmpty(t, segments)
	assert.Equal(t, begin, segments[0].TimeBegin)
	assert.Equal(t, end, segments[len(segments)-1].TimeEnd)
	for i := 1; i < len(segments); i++ {
		assert.Equal(t, segments[i-1].TimeEnd, segments[i].TimeBegin)
	}
}

func TestAvailabilityNormalizesToDayBounds(t *testing.T) {
	calc := newCalculator(room())

	segments, err := calc.Availability(context.Background(), calendarRequest(1, 10, 14))
	require.NoError(t, err)
	require.Len(t, segments, 1)
	assert.Equal(t, hour(0), segments[0].TimeBegin)
	assert.Equal(t, hour(24), segments[0].TimeEnd)
	assert.True(t, segments[0].Available)
}

func TestAvailabilityZeroAmountUnavailable(t *testing.T) {
	calc := newCalculator(room())

	segments, err := calc.Availability(context.Background(), calendarRequest(0, 0, 24))
	require.NoError(t, err)
	require.Len(t, segments, 1)
	assert.False(t, segments[0].Available)
}

func TestAvailabilityEmptyWindow(t *testing.T) {
	calc := newCalculator(room())

	req := calendarRequest(1, 10, 14)
	req.TimeEnd = req.TimeBegin
	_, err := calc.Availability(context.Background(), req)
	assert.Error(t, err)
}

func TestAvailabilityHonorsOpeningHours(t *testing.T) {
	b := room()
	b.OpeningHours = []models.OpeningHoursRule{
		{Weekday: "monday", StartMinute: 9 * 60, EndMinute: 17 * 60},
	}
	calc := newCalculator(b)

	segments, err := calc.Availability(context.Background(), calendarRequest(1, 0, 24))
	require.NoError(t, err)
	assertGapFree(t, segments, hour(0), hour(24))
	require.Len(t, segments, 3)
	assert.False(t, segments[0].Available)
	assert.True(t, segments[1].Available)
	assert.False(t, segments[2].Available)
	assert.Equal(t, hour(9), segments[1].TimeBegin)
	assert.Equal(t, hour(17), segments[1].TimeEnd)
}

func TestAvailabilitySweepsCapacityConflict(t *testing.T) {
	full := &models.Booking{
		ID: "b1", TenantID: "t1", UserID: "carol",
		TimeBegin: hour(10), TimeEnd: hour(12),
		Items: []models.BookingItem{{BookableID: "room-1", Amount: 2}},
	}
	calc := newCalculator(room(), full)

	segments, err := calc.Availability(context.Background(), calendarRequest(1, 0, 24))
	require.NoError(t, err)
	assertGapFree(t, segments, hour(0), hour(24))
	require.Len(t, segments, 3)
	assert.True(t, segments[0].Available)
	assert.Equal(t, models.CalendarSegment{TimeBegin: hour(10), TimeEnd: hour(12), Available: false}, segments[1])
	assert.True(t, segments[2].Available)
}

func TestAvailabilitySweepsParentConflictAcrossSiblings(t *testing.T) {
	parent := &models.Bookable{
		ID:                 "house-1",
		TenantID:           "t1",
		Title:              "Booking House",
		IsBookable:         true,
		Amount:             int64Ptr(2),
		IsScheduleRelated:  true,
		RelatedBookableIDs: []string{"room-1", "room-2"},
	}
	sibling := &models.Bookable{
		ID: "room-2", TenantID: "t1", Title: "Room B",
		IsBookable: true, Amount: int64Ptr(2), IsScheduleRelated: true,
	}
	queried := room()

	onParent := &models.Booking{
		ID: "b1", TenantID: "t1", UserID: "carol",
		TimeBegin: hour(10), TimeEnd: hour(12),
		Items: []models.BookingItem{{BookableID: "house-1", Amount: 2}},
	}
	onSibling := &models.Booking{
		ID: "b2", TenantID: "t1", UserID: "dave",
		TimeBegin: hour(12), TimeEnd: hour(14),
		Items: []models.BookingItem{{BookableID: "room-2", Amount: 2}},
	}

	catalog := &fakeCatalog{
		tenant: &models.Tenant{ID: "t1", Name: "Guben"},
		bookables: map[string]*models.Bookable{
			parent.ID: parent, sibling.ID: sibling, queried.ID: queried,
		},
		parents: map[string][]*models.Bookable{"room-1": {parent}},
	}
	store := &fakeBookings{bookings: []*models.Booking{onParent, onSibling}}
	validator := checkout.NewValidator(catalog, store, fakeEvents{}, catalog, nil, nil)
	calc := NewCalculator(validator, catalog, catalog, nil)

	// The parent is full 10:00-14:00: first by its own booking, then by the
	// sibling's. Both stretches must come back unavailable for room-1.
	segments, err := calc.Availability(context.Background(), calendarRequest(1, 0, 24))
	require.NoError(t, err)
	assertGapFree(t, segments, hour(0), hour(24))
	require.Len(t, segments, 3)
	assert.True(t, segments[0].Available)
	assert.Equal(t, models.CalendarSegment{TimeBegin: hour(10), TimeEnd: hour(14), Available: false}, segments[1])
	assert.True(t, segments[2].Available)
}

func TestAvailabilityPartialOccupancyStaysAvailable(t *testing.T) {
	partial := &models.Booking{
		ID: "b1", TenantID: "t1", UserID: "carol",
		TimeBegin: hour(10), TimeEnd: hour(12),
		Items: []models.BookingItem{{BookableID: "room-1", Amount: 1}},
	}
	calc := newCalculator(room(), partial)

	segments, err := calc.Availability(context.Background(), calendarRequest(1, 0, 24))
	require.NoError(t, err)
	require.Len(t, segments, 1)
	assert.True(t, segments[0].Available)
}

func TestAvailabilityRequestExceedingCapacity(t *testing.T) {
	calc := newCalculator(room())

	segments, err := calc.Availability(context.Background(), calendarRequest(3, 0, 24))
	require.NoError(t, err)
	require.Len(t, segments, 1)
	assert.False(t, segments[0].Available)
}

func TestAvailabilityMultiDay(t *testing.T) {
	blocked := &models.Booking{
		ID: "b1", TenantID: "t1", UserID: "carol",
		TimeBegin: hour(22), TimeEnd: hour(26),
		Items: []models.BookingItem{{BookableID: "room-1", Amount: 2}},
	}
	calc := newCalculator(room(), blocked)

	segments, err := calc.Availability(context.Background(), calendarRequest(1, 0, 48))
	require.NoError(t, err)
	assertGapFree(t, segments, hour(0), hour(48))
	require.Len(t, segments, 3)
	assert.Equal(t, models.CalendarSegment{TimeBegin: hour(22), TimeEnd: hour(26), Available: false}, segments[1])
}
