// Package schedule evaluates the three schedule-rule sets of a resource
// (opening hours, special opening hours, explicit time periods) into an
// availability-tagged segmentation of a time window.
package schedule

import (
	"sort"
	"time"

	"github.com/eliesystems/guben-booking-backend-sub000/internal/models"
)

// Span is a contiguous half-open range [Begin, End) in epoch millis.
type Span struct {
	Begin     int64
	End       int64
	Available bool
}

// Rules holds the merged rule sets of a resource and its ancestors.
type Rules struct {
	OpeningHours        []models.OpeningHoursRule
	SpecialOpeningHours []models.SpecialOpeningHoursRule
	TimePeriods         []models.TimePeriodRule
}

// Collect unions the rule sets of the given bookables.
func Collect(bookables ...*models.Bookable) Rules {
	var r Rules
	for _, b := range bookables {
		if b == nil {
			continue
		}
		r.OpeningHours = append(r.OpeningHours, b.OpeningHours...)
		r.SpecialOpeningHours = append(r.SpecialOpeningHours, b.SpecialOpeningHours...)
		r.TimePeriods = append(r.TimePeriods, b.TimePeriods...)
	}
	return r
}

// Empty reports whether no rule set is configured. Resources without any
// schedule rules default to always-available.
func (r Rules) Empty() bool {
	return len(r.OpeningHours) == 0 && len(r.SpecialOpeningHours) == 0 && len(r.TimePeriods) == 0
}

// Segments decomposes [begin, end) into sorted, gap-free availability spans.
// Later rule sets overlay earlier ones: where a special rule or time period
// covers a sub-range it replaces the opening-hours tag there; gaps in an
// overlay retain the underlying tag.
func (r Rules) Segments(begin, end int64, loc *time.Location) []Span {
	if begin >= end {
		return nil
	}
	if r.Empty() {
		return []Span{{Begin: begin, End: end, Available: true}}
	}
	if loc == nil {
		loc = time.UTC
	}

	opening := r.openingSpans(begin, end, loc)
	special := r.specialSpans(begin, end, loc)
	periods := r.periodSpans(begin, end)

	boundaries := map[int64]struct{}{begin: {}, end: {}}
	for _, set := range [][]Span{opening, special, periods} {
		for _, s := range set {
			boundaries[s.Begin] = struct{}{}
			boundaries[s.End] = struct{}{}
		}
	}
	cuts := make([]int64, 0, len(boundaries))
	for b := range boundaries {
		if b > begin && b < end {
			cuts = append(cuts, b)
		}
	}
	cuts = append(cuts, begin, end)
	sort.Slice(cuts, func(i, j int) bool { return cuts[i] < cuts[j] })

	var out []Span
	for i := 0; i+1 < len(cuts); i++ {
		lo, hi := cuts[i], cuts[i+1]
		if lo >= hi {
			continue
		}
		mid := lo + (hi-lo)/2
		out = append(out, Span{Begin: lo, End: hi, Available: r.tagAt(mid, opening, special, periods)})
	}
	return Coalesce(out)
}

// Covers reports whether the whole window is tagged available.
func (r Rules) Covers(begin, end int64, loc *time.Location) bool {
	for _, s := range r.Segments(begin, end, loc) {
		if !s.Available {
			return false
		}
	}
	return true
}

// tagAt resolves the availability of a single instant. The latest rule set
// covering the point wins; with no covering rule the point is unavailable.
func (r Rules) tagAt(at int64, opening, special, periods []Span) bool {
	for _, sets := range [][]Span{periods, special, opening} {
		for _, s := range sets {
			if s.Begin <= at && at < s.End {
				return s.Available
			}
		}
	}
	return false
}

func (r Rules) openingSpans(begin, end int64, loc *time.Location) []Span {
	var out []Span
	day := startOfDay(models.MillisToTime(begin, loc))
	endT := models.MillisToTime(end, loc)
	for !day.After(endT) {
		for i := range r.OpeningHours {
			rule := &r.OpeningHours[i]
			weekday, err := rule.Day()
			if err != nil || weekday != day.Weekday() {
				continue
			}
			out = append(out, Span{
				Begin:     day.Add(time.Duration(rule.StartMinute) * time.Minute).UnixMilli(),
				End:       day.Add(time.Duration(rule.EndMinute) * time.Minute).UnixMilli(),
				Available: true,
			})
		}
		day = day.AddDate(0, 0, 1)
	}
	return clip(out, begin, end)
}

func (r Rules) specialSpans(begin, end int64, loc *time.Location) []Span {
	var out []Span
	for i := range r.SpecialOpeningHours {
		rule := &r.SpecialOpeningHours[i]
		date, err := rule.On(loc)
		if err != nil {
			continue
		}
		startMin, endMin := rule.StartMinute, rule.EndMinute
		if rule.Closed && startMin == 0 && endMin == 0 {
			endMin = models.MinutesPerDay
		}
		out = append(out, Span{
			Begin:     date.Add(time.Duration(startMin) * time.Minute).UnixMilli(),
			End:       date.Add(time.Duration(endMin) * time.Minute).UnixMilli(),
			Available: !rule.Closed,
		})
	}
	return clip(out, begin, end)
}

func (r Rules) periodSpans(begin, end int64) []Span {
	var out []Span
	for _, p := range r.TimePeriods {
		out = append(out, Span{Begin: p.TimeBegin, End: p.TimeEnd, Available: true})
	}
	return clip(out, begin, end)
}

// Coalesce merges adjacent spans with equal tags. Input must be sorted and
// non-overlapping.
func Coalesce(spans []Span) []Span {
	if len(spans) == 0 {
		return nil
	}
	out := []Span{spans[0]}
	for _, s := range spans[1:] {
		last := &out[len(out)-1]
		if s.Available == last.Available && s.Begin == last.End {
			last.End = s.End
			continue
		}
		out = append(out, s)
	}
	return out
}

func clip(spans []Span, begin, end int64) []Span {
	var out []Span
	for _, s := range spans {
		if s.Begin < begin {
			s.Begin = begin
		}
		if s.End > end {
			s.End = end
		}
		if s.Begin < s.End {
			out = append(out, s)
		}
	}
	return out
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
