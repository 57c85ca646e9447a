package models

import (
	"fmt"
	"strings"
	"time"
)

// OpeningHoursRule opens a resource on a weekday between two minutes of the
// local day. Rules for the same weekday may overlap; they are merged before
// evaluation.
type OpeningHoursRule struct {
	Weekday     string `yaml:"weekday" json:"weekday"`
	StartMinute int    `yaml:"start_minute" json:"start_minute"`
	EndMinute   int    `yaml:"end_minute" json:"end_minute"`
}

// Day resolves the rule's weekday name.
func (r *OpeningHoursRule) Day() (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(r.Weekday)) {
	case "sunday":
		return time.Sunday, nil
	case "monday":
		return time.Monday, nil
	case "tuesday":
		return time.Tuesday, nil
	case "wednesday":
		return time.Wednesday, nil
	case "thursday":
		return time.Thursday, nil
	case "friday":
		return time.Friday, nil
	case "saturday":
		return time.Saturday, nil
	}
	return time.Sunday, fmt.Errorf("unknown weekday %q", r.Weekday)
}

func (r *OpeningHoursRule) Validate() error {
	if _, err := r.Day(); err != nil {
		return err
	}
	if r.StartMinute < 0 || r.EndMinute > MinutesPerDay || r.StartMinute >= r.EndMinute {
		return fmt.Errorf("opening hours %s: invalid minute range [%d,%d)", r.Weekday, r.StartMinute, r.EndMinute)
	}
	return nil
}

// SpecialOpeningHoursRule overrides opening hours on a single calendar date.
// Closed rules mark the covered range unavailable.
type SpecialOpeningHoursRule struct {
	Date        string `yaml:"date" json:"date"` // 2006-01-02
	StartMinute int    `yaml:"start_minute" json:"start_minute"`
	EndMinute   int    `yaml:"end_minute" json:"end_minute"`
	Closed      bool   `yaml:"closed" json:"closed"`
}

// On parses the rule's date in the given location.
func (r *SpecialOpeningHoursRule) On(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation("2006-01-02", r.Date, loc)
}

// TimePeriodRule opens a resource for one explicit absolute window.
type TimePeriodRule struct {
	TimeBegin int64 `yaml:"time_begin" json:"time_begin"` // epoch millis
	TimeEnd   int64 `yaml:"time_end" json:"time_end"`
}
