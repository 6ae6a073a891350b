package report

import (
	"fmt"
	"time"

	"schoolattend/internal/ledger"
)

// FilterType selects how a report window is resolved.
type FilterType string

const (
	FilterRange FilterType = "range" // explicit [start, end]
	FilterWeek  FilterType = "week"  // current week, Sunday through Saturday
	FilterMonth FilterType = "month" // current calendar month
)

// ResolveWindow computes the inclusive day range for a report. The result
// is deterministic given now and the filter.
func ResolveWindow(now time.Time, loc *time.Location, filter FilterType, start, end *time.Time) (ledger.Window, error) {
	now = now.In(loc)
	switch filter {
	case FilterRange:
		if start == nil || end == nil {
			return ledger.Window{}, fmt.Errorf("%w: range filter requires start and end", ledger.ErrValidation)
		}
		s := ledger.DayOf(*start, loc)
		e := endOfDay(ledger.DayOf(*end, loc))
		if e.Before(s) {
			return ledger.Window{}, fmt.Errorf("%w: end before start", ledger.ErrValidation)
		}
		return ledger.Window{Start: s, End: e}, nil

	case FilterWeek:
		// Sunday 00:00:00 through the following Saturday 23:59:59.
		day := ledger.DayOf(now, loc)
		sunday := day.AddDate(0, 0, -int(day.Weekday()))
		saturday := sunday.AddDate(0, 0, 6)
		return ledger.Window{Start: sunday, End: endOfDay(saturday)}, nil

	case FilterMonth:
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
		last := first.AddDate(0, 1, -1)
		return ledger.Window{Start: first, End: endOfDay(last)}, nil

	default:
		return ledger.Window{}, fmt.Errorf("%w: unknown filter %q", ledger.ErrValidation, filter)
	}
}

func endOfDay(day time.Time) time.Time {
	return day.Add(24*time.Hour - time.Second)
}
