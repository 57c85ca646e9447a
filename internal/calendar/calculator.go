// Package calendar answers "when is this available" queries by decomposing
// a time range into fine-grained available/unavailable segments.
package calendar

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/eliesystems/guben-booking-backend-sub000/internal/checkout"
	"github.com/eliesystems/guben-booking-backend-sub000/internal/domain"
	"github.com/eliesystems/guben-booking-backend-sub000/internal/logging"
	"github.com/eliesystems/guben-booking-backend-sub000/internal/metrics"
	"github.com/eliesystems/guben-booking-backend-sub000/internal/models"
	"github.com/eliesystems/guben-booking-backend-sub000/internal/schedule"

	"github.com/rs/zerolog"
)

const segmentFloor = models.CalendarSegmentFloorMinutes * int64(time.Minute/time.Millisecond)

// Calculator produces the availability segmentation of a query window by
// merging schedule rules and probing capacity through the checkout
// validator. It never propagates a validator failure; any failure becomes
// an unavailable segment, so a range query always completes.
type Calculator struct {
	validator *checkout.Validator
	bookables domain.BookableStore
	tenants   domain.TenantStore
	log       zerolog.Logger
}

func NewCalculator(validator *checkout.Validator, bookables domain.BookableStore, tenants domain.TenantStore, logger *zerolog.Logger) *Calculator {
	base := logging.Component(logger, "calendar")
	return &Calculator{validator: validator, bookables: bookables, tenants: tenants, log: base}
}

// Availability returns sorted, gap-free, non-overlapping segments covering
// the whole normalized window exactly.
func (c *Calculator) Availability(ctx context.Context, req checkout.Request) ([]models.CalendarSegment, error) {
	bookable, err := c.bookables.GetBookable(ctx, req.TenantID, req.BookableID)
	if err != nil {
		return nil, fmt.Errorf("resolve bookable %s: %w", req.BookableID, err)
	}
	tenant, err := c.tenants.GetTenant(ctx, req.TenantID)
	if err != nil {
		return nil, fmt.Errorf("resolve tenant %s: %w", req.TenantID, err)
	}
	loc := tenant.Location()

	begin, end := normalizeWindow(req.TimeBegin, req.TimeEnd, loc)
	if begin >= end {
		return nil, fmt.Errorf("empty calendar window [%d,%d)", req.TimeBegin, req.TimeEnd)
	}

	if req.Amount <= 0 {
		return []models.CalendarSegment{{TimeBegin: begin, TimeEnd: end, Available: false}}, nil
	}

	parents, err := c.bookables.GetParents(ctx, req.TenantID, req.BookableID)
	if err != nil {
		return nil, fmt.Errorf("resolve parents of %s: %w", req.BookableID, err)
	}
	rules := schedule.Collect(append([]*models.Bookable{bookable}, parents...)...)

	var atoms []schedule.Span
	for _, span := range rules.Segments(begin, end, loc) {
		if !span.Available {
			atoms = append(atoms, span)
			continue
		}
		probed, err := c.probe(ctx, req, bookable, span)
		if err != nil {
			return nil, err
		}
		atoms = append(atoms, probed...)
	}

	sort.Slice(atoms, func(i, j int) bool { return atoms[i].Begin < atoms[j].Begin })
	atoms = schedule.Coalesce(atoms)

	segments := make([]models.CalendarSegment, 0, len(atoms))
	for _, a := range atoms {
		segments = append(segments, models.CalendarSegment{TimeBegin: a.Begin, TimeEnd: a.End, Available: a.Available})
	}
	return segments, nil
}

// probe resolves actual capacity inside one schedule-available span using
// an explicit work queue: pathological inputs cannot exhaust the stack, and
// the total probe count is bounded by span length over the 15-minute floor.
func (c *Calculator) probe(ctx context.Context, req checkout.Request, bookable *models.Bookable, span schedule.Span) ([]schedule.Span, error) {
	var out []schedule.Span
	queue := []schedule.Span{span}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cur := queue[0]
		queue = queue[1:]

		probeReq := req
		probeReq.TimeBegin = cur.Begin
		probeReq.TimeEnd = cur.End

		results, err := c.validator.CheckAllOpts(ctx, probeReq, checkout.Options{SkipDurationCheck: true})
		if err != nil {
			return nil, err
		}
		if checkout.AllAvailable(results) {
			metrics.IncProbe("available")
			out = append(out, schedule.Span{Begin: cur.Begin, End: cur.End, Available: true})
			continue
		}

		if capFailure, ok := capacityFailure(results); ok {
			metrics.IncProbe("capacity_conflict")
			out = append(out, c.sweepOccupancy(cur, capFailure, req.Amount)...)
			continue
		}

		// Any other failure: bisect until the floor, then give up on the
		// remainder.
		if cur.End-cur.Begin <= segmentFloor {
			metrics.IncProbe("unavailable")
			out = append(out, schedule.Span{Begin: cur.Begin, End: cur.End, Available: false})
			continue
		}
		metrics.IncProbe("bisect")
		mid := cur.Begin + (cur.End-cur.Begin)/2
		queue = append(queue,
			schedule.Span{Begin: cur.Begin, End: mid},
			schedule.Span{Begin: mid, End: cur.End},
		)
	}
	return out, nil
}

// sweepOccupancy splits a capacity-conflicted span by pointwise
// concurrency: sub-intervals where the booked total stays at or under
// capacity minus the requested quantity remain available.
func (c *Calculator) sweepOccupancy(span schedule.Span, failure models.CheckResult, requested int64) []schedule.Span {
	if failure.Occupancy == nil || failure.Occupancy.TotalCapacity == nil {
		return []schedule.Span{{Begin: span.Begin, End: span.End, Available: false}}
	}
	threshold := *failure.Occupancy.TotalCapacity - requested
	if threshold < 0 {
		return []schedule.Span{{Begin: span.Begin, End: span.End, Available: false}}
	}

	type edge struct {
		at    int64
		delta int64
	}
	var edges []edge
	for i := range failure.Concurrent {
		b := &failure.Concurrent[i]
		amount := b.ConsumedAmount
		if amount == 0 {
			continue
		}
		begin, end := b.TimeBegin, b.TimeEnd
		if begin < span.Begin {
			begin = span.Begin
		}
		if end > span.End {
			end = span.End
		}
		if begin >= end {
			continue
		}
		edges = append(edges, edge{at: begin, delta: amount}, edge{at: end, delta: -amount})
	}
	if len(edges) == 0 {
		return []schedule.Span{{Begin: span.Begin, End: span.End, Available: false}}
	}

	sort.Slice(edges, func(i, j int) bool {
		if edges[i].at != edges[j].at {
			return edges[i].at < edges[j].at
		}
		return edges[i].delta < edges[j].delta
	})

	var out []schedule.Span
	var booked int64
	cursor := span.Begin
	for _, e := range edges {
		if e.at > cursor {
			out = append(out, schedule.Span{Begin: cursor, End: e.at, Available: booked <= threshold})
			cursor = e.at
		}
		booked += e.delta
	}
	if cursor < span.End {
		out = append(out, schedule.Span{Begin: cursor, End: span.End, Available: booked <= threshold})
	}
	return schedule.Coalesce(out)
}

// capacityFailure finds the first failed capacity-style outcome.
func capacityFailure(results []models.CheckResult) (models.CheckResult, bool) {
	for _, res := range results {
		if res.Available {
			continue
		}
		switch res.Type {
		case models.CheckAvailability, models.CheckParentAvailability, models.CheckChildBookings:
			return res, true
		}
	}
	return models.CheckResult{}, false
}

// normalizeWindow widens the query to local day boundaries.
func normalizeWindow(begin, end int64, loc *time.Location) (int64, int64) {
	b := models.MillisToTime(begin, loc)
	e := models.MillisToTime(end, loc)
	b = time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, loc)
	if !e.Equal(time.Date(e.Year(), e.Month(), e.Day(), 0, 0, 0, 0, loc)) {
		e = time.Date(e.Year(), e.Month(), e.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)
	}
	return b.UnixMilli(), e.UnixMilli()
}
