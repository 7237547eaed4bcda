package scraper

import (
	"context"
	"math/rand"
	"notifyme-backend/internal/components/chrono"
	"sync"
	"time"
)

// Locators is the declarative table a site is scraped with. Optional entries may be
// left empty.
type Locators struct {
	// listing page
	MovieCard Locator
	CardTitle Locator
	CardImage Locator // optional, its alt text also identifies the movie

	// detail page, or the matched card when BookingWithinCard is set
	BookingControl Locator

	// showtimes page
	ShowtimesReady Locator // optional, waited for before extraction
	Venue          Locator
	VenueName      Locator
	PanelToggle    Locator // optional, opens a collapsed venue
	PanelContent   Locator // optional, showtimes are read from inside it
	Showtime       Locator
	ShowtimeTime   Locator
	ShowtimePrice  Locator // optional
	ShowtimeLink   Locator // optional
}

type Timing struct {
	// StepDelay plus up to StepJitter is paused before network-sensitive steps.
	StepDelay  time.Duration
	StepJitter time.Duration
	// ScrollPause plus up to ScrollJitter is paused between scrolling an element into
	// view and clicking it.
	ScrollPause  time.Duration
	ScrollJitter time.Duration
	// SettleDelay follows every successful page transition.
	SettleDelay time.Duration
	// PanelDelay follows opening a collapsed venue panel.
	PanelDelay time.Duration
	Challenge  ChallengeTiming
}

// Strategy holds the per-site logic that does not fit a locator table.
type Strategy interface {
	ListingURL(location string) string
	// ParseShowTime turns the site's time label into an instant. pageUrl is the showtimes
	// page, captured is when the label was read. ok is false when text is unparsable.
	ParseShowTime(text, pageUrl string, captured time.Time) (t time.Time, ok bool)
}

// SiteProfile configures the shared navigator and extractor for one ticketing site.
type SiteProfile struct {
	// Key is how the site is named in configuration.
	Key string
	// Source is stored on every record scraped from the site.
	Source   string
	Locators Locators
	// Challenge is empty for sites that do not serve interstitials, detection then
	// always reports absent.
	Challenge ChallengeMarkers
	Timing    Timing
	// BookingWithinCard means the booking control lives inside the listing card, there
	// is no separate detail page to open.
	BookingWithinCard bool
	Strategy          Strategy
}

// pacer inserts jittered pauses, its rand source is shared by every step of a pass.
type pacer struct {
	sleep chrono.SleepAPI
	mutex sync.Mutex
	rand  *rand.Rand
}

func newPacer(sleep chrono.SleepAPI, rnd *rand.Rand) *pacer {
	return &pacer{sleep: sleep, rand: rnd}
}

func (p *pacer) jitter(spread time.Duration) time.Duration {
	if spread <= 0 {
		return 0
	}
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return time.Duration(p.rand.Int63n(int64(spread)))
}

// pause sleeps base plus a random duration in [0, spread).
func (p *pacer) pause(ctx context.Context, base, spread time.Duration) error {
	return p.sleep.Sleep(ctx, base+p.jitter(spread))
}
