package checkout

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/eliesystems/guben-booking-backend-sub000/internal/models"
)

// PriceOptions tunes the pricing computation.
type PriceOptions struct {
	// ForcePrice computes the full price even for free-booking users.
	ForcePrice bool
	// Coupon, if set, discounts the user price. Pricing never touches the
	// coupon's usage counter; the commit flow increments it.
	Coupon *models.Coupon
}

// daySegment is one slice of the booking window between local midnights.
type daySegment struct {
	start time.Time
	end   time.Time
}

func (s daySegment) minutes() float64 {
	return s.end.Sub(s.start).Minutes()
}

// RegularPrice computes the undiscounted net price of the request.
// Repeated calls with unchanged inputs return identical results.
func (v *Validator) RegularPrice(ctx context.Context, req Request) (float64, error) {
	cc, err := v.resolve(ctx, req)
	if err != nil {
		return 0, err
	}
	return v.regularPrice(ctx, cc)
}

func (v *Validator) regularPrice(ctx context.Context, cc *checkContext) (float64, error) {
	b := cc.bookable
	if len(b.PriceCategories) == 0 {
		return 0, nil
	}

	loc := cc.tenant.Location()
	segments := splitDays(models.MillisToTime(cc.req.TimeBegin, loc), models.MillisToTime(cc.req.TimeEnd, loc))
	if len(segments) == 0 {
		// Non-time-related pricing still needs one segment for category
		// selection; it is dated "now".
		now := v.now().In(loc)
		segments = []daySegment{{start: now, end: now}}
	}

	holidaysByDate, err := v.holidayCalendar(ctx, cc, segments)
	if err != nil {
		return 0, err
	}

	metric := v.priceMetric(cc, segments)

	var total float64
	for i, seg := range segments {
		category, ok := selectCategory(b.PriceCategories, seg.start, holidaysByDate[dateKey(seg.start)], metric)
		if !ok {
			return 0, &PriceCategoryNotFoundError{BookableID: b.ID, Date: dateKey(seg.start)}
		}

		segPrice := category.PriceEur
		if !category.FixedPrice {
			switch b.PriceType {
			case models.PricePerHour:
				segPrice *= seg.minutes() / 60
			case models.PricePerDay:
				segPrice *= seg.minutes() / models.MinutesPerDay
			case models.PricePerItem, models.PricePerSquareMeter:
				segPrice *= float64(cc.req.Amount)
			}
		}
		segPrice = round2(segPrice)

		switch b.PriceType {
		case models.PricePerItem, models.PricePerSquareMeter:
			// Flat-fee pricing must not double across midnight.
			if i == 0 || segPrice > total {
				total = segPrice
			}
		default:
			total = round2(total + segPrice)
		}
	}
	return round2(total), nil
}

// UserPrice computes the price the requesting user pays: zero for
// free-booking users unless forced, with the coupon applied afterwards.
func (v *Validator) UserPrice(ctx context.Context, req Request, opts PriceOptions) (float64, error) {
	cc, err := v.resolve(ctx, req)
	if err != nil {
		return 0, err
	}
	return v.userPrice(ctx, cc, opts)
}

func (v *Validator) userPrice(ctx context.Context, cc *checkContext, opts PriceOptions) (float64, error) {
	if v.freeBookingAllowed(cc) && !opts.ForcePrice {
		return 0, nil
	}
	price, err := v.regularPrice(ctx, cc)
	if err != nil {
		return 0, err
	}
	if opts.Coupon != nil {
		price = round2(opts.Coupon.Apply(price))
	}
	return price, nil
}

// PricePreview computes the full price DTO without any side effects.
func (v *Validator) PricePreview(ctx context.Context, req Request, opts PriceOptions) (models.PricePreview, error) {
	cc, err := v.resolve(ctx, req)
	if err != nil {
		return models.PricePreview{}, err
	}

	regular, err := v.regularPrice(ctx, cc)
	if err != nil {
		return models.PricePreview{}, err
	}
	user, err := v.userPrice(ctx, cc, opts)
	if err != nil {
		return models.PricePreview{}, err
	}

	vat := cc.bookable.VATRate
	return models.PricePreview{
		RegularPriceEur:      regular,
		UserPriceEur:         user,
		RegularGrossPriceEur: Gross(regular, vat),
		UserGrossPriceEur:    Gross(user, vat),
		FreeBookingAllowed:   v.freeBookingAllowed(cc),
	}, nil
}

// FreeBookingAllowed reports whether the user books free of charge.
func (v *Validator) FreeBookingAllowed(ctx context.Context, req Request) (bool, error) {
	cc, err := v.resolve(ctx, req)
	if err != nil {
		return false, err
	}
	return v.freeBookingAllowed(cc), nil
}

func (v *Validator) freeBookingAllowed(cc *checkContext) bool {
	for _, id := range cc.bookable.FreeBookingUsers {
		if id == cc.req.UserID {
			return true
		}
	}
	userRoles := cc.tenant.RolesOfUser(cc.req.UserID)
	for _, role := range cc.bookable.FreeBookingRoles {
		for _, have := range userRoles {
			if role == have {
				return true
			}
		}
	}
	return false
}

// Gross applies the VAT rate to a net price.
func Gross(price, vatRate float64) float64 {
	return round2(price * (1 + vatRate/100))
}

// priceMetric returns the value price-category intervals are matched
// against: total hours for per-hour pricing, daily segments touched for
// per-day pricing, the requested quantity otherwise.
func (v *Validator) priceMetric(cc *checkContext, segments []daySegment) float64 {
	switch cc.bookable.PriceType {
	case models.PricePerHour:
		var minutes float64
		for _, seg := range segments {
			minutes += seg.minutes()
		}
		return minutes / 60
	case models.PricePerDay:
		return float64(len(segments))
	default:
		return float64(cc.req.Amount)
	}
}

// holidayCalendar fetches holidays for every year the segments touch, keyed
// by calendar date. Skipped entirely when no category is holiday scoped.
func (v *Validator) holidayCalendar(ctx context.Context, cc *checkContext, segments []daySegment) (map[string][]models.Holiday, error) {
	holidayScoped := false
	for i := range cc.bookable.PriceCategories {
		if len(cc.bookable.PriceCategories[i].Holidays) > 0 {
			holidayScoped = true
			break
		}
	}
	if !holidayScoped || v.holidays == nil {
		return nil, nil
	}

	years := map[int]struct{}{}
	for _, seg := range segments {
		years[seg.start.Year()] = struct{}{}
	}

	byDate := make(map[string][]models.Holiday)
	for year := range years {
		holidays, err := v.holidays.GetHolidays(ctx, year, cc.tenant.CountryCode, cc.tenant.StateCode)
		if err != nil {
			return nil, fmt.Errorf("load holidays for %d: %w", year, err)
		}
		for _, h := range holidays {
			key := h.Date.Format("2006-01-02")
			byDate[key] = append(byDate[key], h)
		}
	}
	return byDate, nil
}

// selectCategory picks the applicable price category for one daily segment:
// holiday-scoped categories first, then weekday-scoped, then unrestricted;
// within the chosen tier the first category whose interval bounds the
// metric wins.
func selectCategory(categories []models.PriceCategory, segDate time.Time, holidays []models.Holiday, metric float64) (*models.PriceCategory, bool) {
	var tier []*models.PriceCategory
	for i := range categories {
		if len(categories[i].Holidays) > 0 && categories[i].MatchesHoliday(holidays) {
			tier = append(tier, &categories[i])
		}
	}
	if len(tier) == 0 {
		for i := range categories {
			if len(categories[i].Weekdays) > 0 && categories[i].MatchesWeekday(segDate.Weekday()) {
				tier = append(tier, &categories[i])
			}
		}
	}
	if len(tier) == 0 {
		for i := range categories {
			if len(categories[i].Weekdays) == 0 && len(categories[i].Holidays) == 0 {
				tier = append(tier, &categories[i])
			}
		}
	}
	for _, c := range tier {
		if c.Interval.Contains(metric) {
			return c, true
		}
	}
	return nil, false
}

// splitDays slices [begin, end) at local midnights.
func splitDays(begin, end time.Time) []daySegment {
	if !begin.Before(end) {
		return nil
	}
	var out []daySegment
	cur := begin
	for cur.Before(end) {
		next := startOfDay(cur).AddDate(0, 0, 1)
		if next.After(end) {
			next = end
		}
		out = append(out, daySegment{start: cur, end: next})
		cur = next
	}
	return out
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func dateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
