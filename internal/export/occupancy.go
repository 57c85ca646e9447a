package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/eliesystems/guben-booking-backend-sub000/internal/domain"
	"github.com/eliesystems/guben-booking-backend-sub000/internal/logging"
	"github.com/eliesystems/guben-booking-backend-sub000/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const sheetName = "Occupancy"

// bookingSource reads all bookings of a tenant touching a window.
type bookingSource interface {
	GetBookingsByRange(ctx context.Context, tenantID string, begin, end int64) ([]*models.Booking, error)
}

// Exporter renders a per-day occupancy grid of a tenant's catalog to an
// xlsx file: one row per bookable, one column per day.
type Exporter struct {
	bookables domain.BookableStore
	tenants   domain.TenantStore
	bookings  bookingSource
	path      string
	log       zerolog.Logger
}

func NewExporter(bookables domain.BookableStore, tenants domain.TenantStore, bookings bookingSource, path string, logger *zerolog.Logger) *Exporter {
	log := logging.Component(logger, "export")
	return &Exporter{
		bookables: bookables,
		tenants:   tenants,
		bookings:  bookings,
		path:      path,
		log:       log,
	}
}

// OccupancyReport writes the grid for [startDate, endDate] and returns the
// file path.
func (e *Exporter) OccupancyReport(ctx context.Context, tenantID string, startDate, endDate time.Time) (string, error) {
	if err := os.MkdirAll(e.path, 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}

	tenant, err := e.tenants.GetTenant(ctx, tenantID)
	if err != nil {
		return "", fmt.Errorf("resolve tenant: %w", err)
	}
	loc := tenant.Location()
	startDate = startDate.In(loc)
	endDate = endDate.In(loc)

	bookables, err := e.bookables.ListBookables(ctx, tenantID)
	if err != nil {
		return "", fmt.Errorf("list bookables: %w", err)
	}

	rangeBegin := models.TimeToMillis(startOfDay(startDate))
	rangeEnd := models.TimeToMillis(startOfDay(endDate).AddDate(0, 0, 1))
	bookings, err := e.bookings.GetBookingsByRange(ctx, tenantID, rangeBegin, rangeEnd)
	if err != nil {
		return "", fmt.Errorf("load bookings: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return "", fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)

	_ = f.SetCellValue(sheetName, "A1", fmt.Sprintf("Occupancy %s to %s",
		startDate.Format("2006-01-02"), endDate.Format("2006-01-02")))

	days := e.writeDateHeaders(f, startDate, endDate)
	e.writeBookableHeaders(f, bookables)
	e.writeCells(f, bookables, bookings, days)

	_ = f.SetColWidth(sheetName, "A", "A", 30)
	lastCol, _ := excelize.ColumnNumberToName(len(days) + 1)
	_ = f.SetColWidth(sheetName, "B", lastCol, 12)
	_ = f.MergeCell(sheetName, "A1", lastCol+"1")

	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(sheetName, "A1", "A1", titleStyle)

	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("occupancy_%s_%s_to_%s.xlsx",
		tenantID, startDate.Format("2006-01-02"), endDate.Format("2006-01-02"))
	filePath := filepath.Join(e.path, fileName)
	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("save file: %w", err)
	}

	e.log.Info().Str("file_path", filePath).Str("tenant_id", tenantID).Msg("occupancy report written")
	return filePath, nil
}

func (e *Exporter) writeDateHeaders(f *excelize.File, startDate, endDate time.Time) []time.Time {
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})

	var days []time.Time
	day := startOfDay(startDate)
	last := startOfDay(endDate)
	col := 2
	for !day.After(last) {
		cell, _ := excelize.CoordinatesToCellName(col, 2)
		_ = f.SetCellValue(sheetName, cell, day.Format("02.01"))
		_ = f.SetCellStyle(sheetName, cell, cell, headerStyle)
		days = append(days, day)
		day = day.AddDate(0, 0, 1)
		col++
	}
	return days
}

func (e *Exporter) writeBookableHeaders(f *excelize.File, bookables []*models.Bookable) {
	style, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E2EFDA"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	for i, b := range bookables {
		cell, _ := excelize.CoordinatesToCellName(1, i+3)
		label := b.Title
		if !b.Unconstrained() {
			label = fmt.Sprintf("%s (%d)", b.Title, b.Capacity())
		}
		_ = f.SetCellValue(sheetName, cell, label)
		_ = f.SetCellStyle(sheetName, cell, cell, style)
	}
}

func (e *Exporter) writeCells(f *excelize.File, bookables []*models.Bookable, bookings []*models.Booking, days []time.Time) {
	for row, b := range bookables {
		for col, day := range days {
			dayBegin := models.TimeToMillis(day)
			dayEnd := models.TimeToMillis(day.AddDate(0, 0, 1))

			var booked int64
			for _, booking := range bookings {
				if !booking.CountsAgainstCapacity() || !booking.Overlaps(dayBegin, dayEnd) {
					continue
				}
				booked += booking.AmountFor(b.ID)
			}

			cell, _ := excelize.CoordinatesToCellName(col+2, row+3)
			_ = f.SetCellValue(sheetName, cell, e.cellText(b, booked))
			if styleID, err := e.cellStyle(f, b, booked); err == nil {
				_ = f.SetCellStyle(sheetName, cell, cell, styleID)
			}
		}
	}
}

func (e *Exporter) cellText(b *models.Bookable, booked int64) string {
	if b.Unconstrained() {
		if booked == 0 {
			return "free"
		}
		return fmt.Sprintf("%d booked", booked)
	}
	return fmt.Sprintf("%d/%d", booked, b.Capacity())
}

func (e *Exporter) cellStyle(f *excelize.File, b *models.Bookable, booked int64) (int, error) {
	fill := "#FFFFFF"
	switch {
	case booked == 0:
	case b.Unconstrained() || booked < b.Capacity():
		fill = "#FFEB9C"
	default:
		fill = "#FFC7CE"
	}
	return f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{fill}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
