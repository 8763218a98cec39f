package hindcast

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"wind-hindcast/internal/model"
)

const (
	DateLayout  = "2006-01-02"
	HoursPerDay = 24
)

var (
	ErrInvalidDateRange = errors.New("end date must not precede start date")
	ErrEmptySiteSet     = errors.New("site set is empty")
)

// Slot is one scheduled hour.
type Slot struct {
	Key  model.RequestKey
	Time time.Time
	TsID int32 // 1-based, dense
}

// ParseDate parses a YYYY-MM-DD date as midnight UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (expected YYYY-MM-DD): %w", s, err)
	}
	return t, nil
}

// BuildSchedule returns one slot per hour from start 00:00 through end 23:00
// UTC, both dates inclusive.
func BuildSchedule(start, end time.Time) ([]Slot, error) {
	start = truncateDay(start)
	end = truncateDay(end)
	if end.Before(start) {
		return nil, fmt.Errorf("%w: %s < %s", ErrInvalidDateRange, end.Format(DateLayout), start.Format(DateLayout))
	}

	days := int(end.Sub(start).Hours()/HoursPerDay) + 1
	slots := make([]Slot, 0, days*HoursPerDay)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		for h := 0; h < HoursPerDay; h++ {
			key := model.RequestKey{Date: d, Hour: h}
			slots = append(slots, Slot{
				Key:  key,
				Time: key.Time(),
				TsID: int32(len(slots) + 1),
			})
		}
	}
	return slots, nil
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
