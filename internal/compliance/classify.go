package compliance

import (
	"fmt"
	"math"
	"strings"
	"time"

	"certline/internal/domain"
)

// DateLayout is the storage layout for certification dates.
const DateLayout = "2006-01-02"

// ExpiringSoonDays is the inclusive upper bound of the expiring_soon window.
const ExpiringSoonDays = 30

const day = 24 * time.Hour

// Classification is the lifecycle status of one certification at a reference date.
type Classification struct {
	Status   domain.LifecycleStatus `json:"status" enum:"valid,expiring_soon,expired"`
	DaysLeft int                    `json:"days_left"`
}

// Classify returns the lifecycle status of a certification expiring at expiry,
// seen from now. DaysLeft is floor((expiry-now)/24h) and goes negative once expired.
func Classify(expiry, now time.Time) Classification {
	daysLeft := DaysBetween(now, expiry)
	switch {
	case daysLeft < 0:
		return Classification{Status: domain.StatusExpired, DaysLeft: daysLeft}
	case daysLeft <= ExpiringSoonDays:
		return Classification{Status: domain.StatusExpiringSoon, DaysLeft: daysLeft}
	default:
		return Classification{Status: domain.StatusValid, DaysLeft: daysLeft}
	}
}

// ClassifyDate parses expiry and classifies it against now.
func ClassifyDate(expiry string, now time.Time) (Classification, error) {
	t, err := ParseDate(expiry, now.Location())
	if err != nil {
		return Classification{}, err
	}
	return Classify(t, now), nil
}

// DaysBetween returns the floored number of whole days from -> to, counted on
// the wall clock of from's location so DST changes do not shorten a day.
func DaysBetween(from, to time.Time) int {
	to = to.In(from.Location())
	return int(math.Floor(float64(wallClock(to).Sub(wallClock(from))) / float64(day)))
}

func wallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// ParseDate accepts a calendar date (YYYY-MM-DD, interpreted in loc) or an
// RFC3339 timestamp.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty date", ErrInvalidDate)
	}
	if loc == nil {
		loc = time.UTC
	}
	if t, err := time.ParseInLocation(DateLayout, s, loc); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// Bucket is one of the renewal windows used for task generation.
type Bucket struct {
	Type       domain.TaskType
	Priority   domain.Priority
	WindowDays int
	Suffix     string
}

var buckets = []Bucket{
	{Type: domain.TaskReminder30, Priority: domain.PriorityHigh, WindowDays: 30, Suffix: "30"},
	{Type: domain.TaskReminder60, Priority: domain.PriorityMedium, WindowDays: 60, Suffix: "60"},
	{Type: domain.TaskReminder90, Priority: domain.PriorityLow, WindowDays: 90, Suffix: "90"},
}

var expiredBucket = Bucket{Type: domain.TaskExpired, Priority: domain.PriorityCritical, Suffix: "expired"}

// BucketFor maps daysLeft to its renewal bucket. Certifications more than 90
// days from expiry have no bucket.
func BucketFor(daysLeft int) (Bucket, bool) {
	if daysLeft < 0 {
		return expiredBucket, true
	}
	for _, b := range buckets {
		if daysLeft <= b.WindowDays {
			return b, true
		}
	}
	return Bucket{}, false
}

// EnteredAt is the moment a certification expiring at expiry entered b.
func (b Bucket) EnteredAt(expiry time.Time) time.Time {
	if b.Type == domain.TaskExpired {
		return expiry.AddDate(0, 0, 1)
	}
	return expiry.AddDate(0, 0, -b.WindowDays)
}
