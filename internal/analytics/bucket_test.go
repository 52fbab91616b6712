package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nikhilbhutani/promptlab/internal/models"
)

func day(y int, m time.Month, d, h int) time.Time {
	return time.Date(y, m, d, h, 0, 0, 0, time.UTC)
}

func TestBucketKey(t *testing.T) {
	tests := []struct {
		name   string
		t      time.Time
		period models.Period
		want   string
	}{
		{"day is not zero padded", day(2024, time.March, 7, 10), models.PeriodDay, "2024-3-7"},
		{"month", day(2024, time.November, 30, 23), models.PeriodMonth, "2024-11"},
		{"empty period means day", day(2024, time.January, 1, 0), "", "2024-1-1"},
		// March 2024 starts on a Friday.
		{"week one is partial", day(2024, time.March, 2, 0), models.PeriodWeek, "2024-3-W1"},
		{"week two starts on sunday", day(2024, time.March, 3, 0), models.PeriodWeek, "2024-3-W2"},
		{"last day of month", day(2024, time.March, 31, 0), models.PeriodWeek, "2024-3-W6"},
		// September 2024 starts on a Sunday.
		{"full first week", day(2024, time.September, 7, 0), models.PeriodWeek, "2024-9-W1"},
		{"second week", day(2024, time.September, 8, 0), models.PeriodWeek, "2024-9-W2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BucketKey(tt.t, tt.period, time.UTC))
		})
	}
}

func TestBucketKey_TimeZone(t *testing.T) {
	ts := time.Date(2024, time.March, 1, 2, 0, 0, 0, time.UTC)
	est := time.FixedZone("EST", -5*60*60)

	assert.Equal(t, "2024-3-1", BucketKey(ts, models.PeriodDay, time.UTC))
	assert.Equal(t, "2024-2-29", BucketKey(ts, models.PeriodDay, est))
	assert.Equal(t, "2024-2", BucketKey(ts, models.PeriodMonth, est))
}

func TestWeekOfMonth(t *testing.T) {
	// Matches ceil((day + weekday(first)) / 7) for every day of a few months.
	for _, first := range []time.Time{day(2024, time.March, 1, 0), day(2024, time.September, 1, 0), day(2023, time.February, 1, 0)} {
		offset := int(first.Weekday())
		for d := first; d.Month() == first.Month(); d = d.AddDate(0, 0, 1) {
			sum := d.Day() + offset
			want := sum / 7
			if sum%7 != 0 {
				want++
			}
			assert.Equal(t, want, WeekOfMonth(d), d.Format(time.DateOnly))
		}
	}
}
