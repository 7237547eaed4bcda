package scraper

import (
	"notifyme-backend/internal/components/chrono"
	"sync"
	"time"
)

// PriceUnknown is stored when a showtime carries no price.
const PriceUnknown = "N/A"

// TimeSource records where ShowRecord.ShowTime came from.
type TimeSource int

const (
	TimeParsed TimeSource = iota
	// TimeFromCapture is the FallbackCaptureInstant policy: the site's time string could
	// not be parsed so the capture instant stands in for it.
	TimeFromCapture
)

func (s TimeSource) String() string {
	if s == TimeFromCapture {
		return "capture-fallback"
	}
	return "parsed"
}

// ShowRecord is one observed showing of a movie at a venue. It is ephemeral, each scrape
// produces a fresh batch.
type ShowRecord struct {
	MovieName   string
	TheaterName string
	Location    string
	ShowTime    time.Time
	TimeSource  TimeSource
	PriceRange  string
	BookingURL  string
	Source      string
	Available   bool
	CapturedAt  time.Time
}

// EffectiveDate is the calendar date the showing falls on in loc.
func (r ShowRecord) EffectiveDate(loc *time.Location) time.Time {
	return chrono.Date(r.ShowTime, loc)
}

// FallbackCaptureInstant resolves a showtime that could not be parsed, it is the single
// place that substitutes the capture instant so the policy stays visible.
func FallbackCaptureInstant(captured time.Time) (time.Time, TimeSource) {
	return captured, TimeFromCapture
}

// monotonicTime wraps a clock so that Now never goes backwards, capture timestamps
// within one run are taken from it.
type monotonicTime struct {
	inner chrono.TimeAPI
	mutex sync.Mutex
	last  time.Time
}

func newMonotonicTime(inner chrono.TimeAPI) *monotonicTime {
	return &monotonicTime{inner: inner}
}

func (m *monotonicTime) Now() time.Time {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	now := m.inner.Now()
	if now.Before(m.last) {
		return m.last
	}
	m.last = now
	return now
}

func (m *monotonicTime) Location() *time.Location {
	return m.inner.Location()
}
