// Package calendar splits a season's date range into weeks.
package calendar

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/victornm/riffle/internal/domain"
)

const day = 24 * time.Hour

// GenerateWeeks partitions [start, end] into consecutive Monday-Sunday weeks.
//
// The first week begins on the first Monday on or after start, and the last week
// is clamped to end, so it may be shorter than 7 days. Only the first week is
// marked current. The result is empty when no Monday falls within the range,
// including when start is after end.
func GenerateWeeks(start, end time.Time, seasonID string) []domain.Week {
	cursor, end := Date(start), Date(end)

	if wd := cursor.Weekday(); wd != time.Monday {
		daysUntilMonday := 8 - int(wd)
		if wd == time.Sunday {
			daysUntilMonday = 1
		}
		cursor = cursor.AddDate(0, 0, daysUntilMonday)
	}

	var weeks []domain.Week
	for n := 1; !cursor.After(end); n++ {
		weekEnd := cursor.AddDate(0, 0, 6)
		if weekEnd.After(end) {
			weekEnd = end
		}

		weeks = append(weeks, domain.Week{
			ID:         uuid.NewString(),
			SeasonID:   seasonID,
			WeekNumber: n,
			Title:      fmt.Sprintf("%d주차", n),
			StartDate:  cursor,
			EndDate:    weekEnd,
			IsCurrent:  n == 1,
		})

		cursor = cursor.AddDate(0, 0, 7)
	}

	return weeks
}

// Date drops the time of day, keeping the calendar date as seen in t's location.
// The result is in UTC.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a calendar date in the 2006-01-02 form.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("calendar: parse date %q: %w", s, err)
	}

	return t, nil
}

// Days returns the number of calendar days covered by the week, both ends included.
func Days(w domain.Week) int {
	return int(Date(w.EndDate).Sub(Date(w.StartDate))/day) + 1
}
