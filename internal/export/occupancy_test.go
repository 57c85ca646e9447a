package export

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/eliesystems/guben-booking-backend-sub000/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func int64Ptr(v int64) *int64 { return &v }

// fakeCatalog keeps bookables in declaration order so rows are stable.
type fakeCatalog struct {
	tenant    *models.Tenant
	bookables []*models.Bookable
}

func (f *fakeCatalog) GetBookable(_ context.Context, _, id string) (*models.Bookable, error) {
	for _, b := range f.bookables {
		if b.ID == id {
			return b, nil
		}
	}
	return nil, nil
}

func (f *fakeCatalog) GetParents(_ context.Context, _, _ string) ([]*models.Bookable, error) {
	return nil, nil
}

func (f *fakeCatalog) GetDescendants(_ context.Context, _, _ string) ([]*models.Bookable, error) {
	return nil, nil
}

func (f *fakeCatalog) GetTicketsForEvent(_ context.Context, _, _ string) ([]*models.Bookable, error) {
	return nil, nil
}

func (f *fakeCatalog) ListBookables(_ context.Context, _ string) ([]*models.Bookable, error) {
	return f.bookables, nil
}

func (f *fakeCatalog) GetTenant(_ context.Context, _ string) (*models.Tenant, error) {
	return f.tenant, nil
}

type fakeBookings struct {
	bookings []*models.Booking
}

func (f *fakeBookings) GetBookingsByRange(_ context.Context, tenantID string, begin, end int64) ([]*models.Booking, error) {
	var out []*models.Booking
	for _, b := range f.bookings {
		if b.TenantID == tenantID && b.Overlaps(begin, end) {
			out = append(out, b)
		}
	}
	return out, nil
}

// day is 2026-03-02 00:00 UTC, a Monday.
var day = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func TestOccupancyReport(t *testing.T) {
	catalog := &fakeCatalog{
		tenant: &models.Tenant{ID: "t1", Name: "Guben"},
		bookables: []*models.Bookable{
			{ID: "room-1", TenantID: "t1", Title: "Seminar Room", Amount: int64Ptr(4)},
			{ID: "open-space", TenantID: "t1", Title: "Open Space"},
		},
	}
	bookings := &fakeBookings{bookings: []*models.Booking{
		{
			ID: "bk1", TenantID: "t1", IsCommitted: true,
			TimeBegin: day.Add(10 * time.Hour).UnixMilli(),
			TimeEnd:   day.Add(12 * time.Hour).UnixMilli(),
			Items:     []models.BookingItem{{BookableID: "room-1", Amount: 2}},
		},
		{
			ID: "bk2", TenantID: "t1", IsCommitted: true, IsRejected: true,
			TimeBegin: day.Add(10 * time.Hour).UnixMilli(),
			TimeEnd:   day.Add(12 * time.Hour).UnixMilli(),
			Items:     []models.BookingItem{{BookableID: "room-1", Amount: 2}},
		},
	}}

	dir := t.TempDir()
	exporter := NewExporter(catalog, catalog, bookings, dir, nil)

	filePath, err := exporter.OccupancyReport(context.Background(), "t1", day, day.AddDate(0, 0, 2))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "occupancy_t1_2026-03-02_to_2026-03-04.xlsx"), filePath)

	f, err := excelize.OpenFile(filePath)
	require.NoError(t, err)
	defer f.Close()

	title, err := f.GetCellValue(sheetName, "A1")
	require.NoError(t, err)
	assert.Equal(t, "Occupancy 2026-03-02 to 2026-03-04", title)

	// One column per day.
	for i, want := range []string{"02.03", "03.03", "04.03"} {
		cell, _ := excelize.CoordinatesToCellName(i+2, 2)
		got, err := f.GetCellValue(sheetName, cell)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	// Capacity-bound bookables show booked/capacity; the rejected booking
	// does not count.
	label, _ := f.GetCellValue(sheetName, "A3")
	assert.Equal(t, "Seminar Room (4)", label)
	cell, _ := f.GetCellValue(sheetName, "B3")
	assert.Equal(t, "2/4", cell)
	cell, _ = f.GetCellValue(sheetName, "C3")
	assert.Equal(t, "0/4", cell)

	// Unconstrained bookables show a free/booked label instead.
	label, _ = f.GetCellValue(sheetName, "A4")
	assert.Equal(t, "Open Space", label)
	cell, _ = f.GetCellValue(sheetName, "B4")
	assert.Equal(t, "free", cell)
}

func TestOccupancyReportCreatesDirectory(t *testing.T) {
	catalog := &fakeCatalog{
		tenant:    &models.Tenant{ID: "t1", Name: "Guben"},
		bookables: []*models.Bookable{{ID: "room-1", TenantID: "t1", Title: "Room"}},
	}
	dir := filepath.Join(t.TempDir(), "nested", "exports")
	exporter := NewExporter(catalog, catalog, &fakeBookings{}, dir, nil)

	filePath, err := exporter.OccupancyReport(context.Background(), "t1", day, day)
	require.NoError(t, err)
	assert.FileExists(t, filePath)
}
