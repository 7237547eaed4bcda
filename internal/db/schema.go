package db

import (
	_ "embed"
	"time"
)

//go:embed schema.sql
var Schema string

// Status is the lifecycle state of a NotificationRequest, only Active is non-terminal.
type Status string

const (
	StatusActive    Status = "active"
	StatusNotified  Status = "notified"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

func (s Status) Terminal() bool {
	return s != StatusActive
}

// DateLayout is how start_date and end_date are stored.
const DateLayout = "2006-01-02"

func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

func ParseDate(s string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, loc)
}
