package entity

import (
	"math"
	"time"
)

// startOfDay truncates t to midnight in its own location
func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DaysUntil returns whole calendar days from now until due; negative when due has passed.
func DaysUntil(due, now time.Time) int {
	due = startOfDay(due.In(now.Location()))
	today := startOfDay(now)
	return int(math.Round(due.Sub(today).Hours() / 24))
}

// IsOverdue reports whether a due date lies before today.
func IsOverdue(due *time.Time, now time.Time) bool {
	if due == nil {
		return false
	}
	return DaysUntil(*due, now) < 0
}

// IsOverdue reports whether an open request has passed its due date
func (s RequestSummary) IsOverdue(now time.Time) bool {
	if s.Status.IsTerminal() {
		return false
	}
	return IsOverdue(s.DueDate, now)
}
