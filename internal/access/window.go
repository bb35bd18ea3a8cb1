// AngelaMos | 2026
// window.go

package access

import (
	"fmt"
	"time"
)

const (
	lifetimeBucket = "lifetime"
	bucketGrace    = 24 * time.Hour
)

// UsageKey builds the counter key for one user, subject, action and bucket.
func UsageKey(userID, subject string, action Action, bucket string) string {
	return fmt.Sprintf("usage:%s:%s:%s:%s", userID, subject, action, bucket)
}

// Bucket derives the time-bucket of t for a window. All buckets are UTC.
// Weekly buckets use ISO week notation, which identifies the Monday the
// week starts on.
func Bucket(t time.Time, window TimeRestriction) string {
	t = t.UTC()
	switch window {
	case WindowDaily:
		return t.Format(time.DateOnly)
	case WindowWeekly:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	case WindowMonthly:
		return t.Format("2006-01")
	}
	return lifetimeBucket
}

func bucketEnd(t time.Time, window TimeRestriction) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	switch window {
	case WindowDaily:
		return day.AddDate(0, 0, 1)
	case WindowWeekly:
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, 7-offset)
	case WindowMonthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	}
	return time.Time{}
}

// WindowReset is when the bucket holding now rolls over. It returns the zero
// time for lifetime counters, which never reset.
func WindowReset(now time.Time, window TimeRestriction) time.Time {
	return bucketEnd(now, window)
}

// bucketTTL is how long a counter for the current bucket must live. Lifetime
// counters never expire.
func bucketTTL(now time.Time, window TimeRestriction) time.Duration {
	end := bucketEnd(now, window)
	if end.IsZero() {
		return 0
	}
	return end.Sub(now) + bucketGrace
}

// withinWindow reports whether ts falls inside the window ending at now.
func withinWindow(ts, now time.Time, window TimeRestriction) bool {
	switch window {
	case WindowDaily:
		return ts.UTC().Format(time.DateOnly) == now.UTC().Format(time.DateOnly)
	case WindowWeekly:
		return !ts.Before(now.AddDate(0, 0, -7))
	case WindowMonthly:
		return !ts.Before(now.AddDate(0, -1, 0))
	}
	return true
}

func windowLabel(window TimeRestriction) string {
	switch window {
	case WindowDaily:
		return "day"
	case WindowWeekly:
		return "week"
	case WindowMonthly:
		return "month"
	}
	return "lifetime"
}
