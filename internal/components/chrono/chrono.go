package chrono

import (
	"context"
	"time"
)

// TimeAPI is the interface that anything depending on the system clock should use.
//
// note: fault injection point
type TimeAPI interface {
	// Now returns the current time in Location().
	Now() time.Time
	// Location is the zone that calendar dates (start/end dates, show dates) are evaluated in.
	Location() *time.Location
}

// SleepAPI is the interface that anything which waits (polling, jitter, backoff) should use.
//
// note: fault injection point
type SleepAPI interface {
	// Sleep blocks for d or until ctx is done, in which case it returns ctx.Err().
	Sleep(ctx context.Context, d time.Duration) error
}

// StandardTime is the standard implementation of TimeAPI and SleepAPI.
type StandardTime struct {
	location *time.Location
}

// NewStandardTime loads the named IANA zone, an empty name means UTC.
func NewStandardTime(zone string) (StandardTime, error) {
	if zone == "" {
		return StandardTime{location: time.UTC}, nil
	}
	location, err := time.LoadLocation(zone)
	if err != nil {
		return StandardTime{}, err
	}
	return StandardTime{location: location}, nil
}

func (s StandardTime) Now() time.Time {
	return time.Now().In(s.location)
}

func (s StandardTime) Location() *time.Location {
	return s.location
}

func (s StandardTime) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Date truncates t to midnight of its calendar day in loc.
func Date(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// Today is Date(time.Now()) for the given api.
func Today(api TimeAPI) time.Time {
	return Date(api.Now(), api.Location())
}
