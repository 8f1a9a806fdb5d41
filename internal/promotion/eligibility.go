package promotion

import (
	"slices"
	"time"

	"kasirinaja/checkout/internal/domain"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

// Eligible reports whether p is a candidate for a customer of the given type
// at now. Dates and times are read in now's location.
func Eligible(p domain.Promotion, customer domain.CustomerType, now time.Time) bool {
	if !p.Active {
		return false
	}
	if !customerMatches(p.CustomerType, customer) {
		return false
	}
	return scheduleAdmits(p.Schedule, now)
}

func customerMatches(target, customer domain.CustomerType) bool {
	if target == "" || target == domain.CustomerAll {
		return true
	}
	return target == customer
}

func scheduleAdmits(s domain.Schedule, now time.Time) bool {
	today := now.Format(dateLayout)

	switch s.Type {
	case "", domain.ScheduleAlways:
	case domain.ScheduleSpecificDates:
		if !slices.Contains(s.Dates, today) {
			return false
		}
	case domain.ScheduleRecurringDays:
		if !slices.Contains(s.Weekdays, int(now.Weekday())) {
			return false
		}
	case domain.ScheduleDateRange:
		// YYYY-MM-DD orders lexically.
		if s.DateStart != "" && today < s.DateStart {
			return false
		}
		if s.DateEnd != "" && today > s.DateEnd {
			return false
		}
	default:
		return false
	}

	return withinTimeWindow(s.TimeStart, s.TimeEnd, now.Format(timeLayout))
}

// withinTimeWindow compares zero-padded HH:MM strings. Both bounds are
// inclusive. A window whose start is after its end wraps past midnight.
func withinTimeWindow(start, end, clock string) bool {
	switch {
	case start == "" && end == "":
		return true
	case start == "":
		return clock <= end
	case end == "":
		return clock >= start
	case start <= end:
		return clock >= start && clock <= end
	default:
		return clock >= start || clock <= end
	}
}
