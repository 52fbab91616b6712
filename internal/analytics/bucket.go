package analytics

import (
	"fmt"
	"time"

	"github.com/nikhilbhutani/promptlab/internal/models"
)

// BucketKey labels t for the given period in loc. Month and day are not zero-padded:
// day 2024-3-7, week 2024-3-W2, month 2024-3.
func BucketKey(t time.Time, period models.Period, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	switch period {
	case models.PeriodMonth:
		return fmt.Sprintf("%d-%d", t.Year(), int(t.Month()))
	case models.PeriodWeek:
		return fmt.Sprintf("%d-%d-W%d", t.Year(), int(t.Month()), WeekOfMonth(t))
	default:
		return fmt.Sprintf("%d-%d-%d", t.Year(), int(t.Month()), t.Day())
	}
}

// WeekOfMonth is the month-relative week index ceil((day + weekday of the 1st) / 7), with
// Sunday as weekday 0. Weeks restart every month and week 1 may be partial. This is not an
// ISO week number.
func WeekOfMonth(t time.Time) int {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return (t.Day() + int(first.Weekday()) + 6) / 7
}
