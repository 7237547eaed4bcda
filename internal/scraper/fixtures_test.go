package scraper

import (
	"context"
	"math/rand"
	"notifyme-backend/internal/browser"
	"notifyme-backend/internal/browser/htmlsession"
	"notifyme-backend/internal/components/chrono/chronotest"
	"notifyme-backend/internal/components/telemetry/telemetrytest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var ist = time.FixedZone("IST", 5*60*60+30*60)

const (
	bmsListingUrl   = "https://in.bookmyshow.com/explore/home/chennai"
	bmsDetailUrl    = "https://in.bookmyshow.com/movies/chennai/dune/ET00001"
	bmsShowtimesUrl = "https://in.bookmyshow.com/buytickets/dune-chennai/ET00001/20260317"

	pvrShowtimesUrl = "https://www.pvrcinemas.com/showtimes/dune"
)

const bmsListing = `<html><body>
<div class="row">
  <a href="/movies/chennai/arrival/ET00002">
    <img alt="Arrival" src="/a.jpg">
    <div class="sc-7o7nez-0 daKrZU">Arrival</div>
  </a>
  <a href="/movies/chennai/dune/ET00001">
    <img alt="Dune: Part Two" src="/d.jpg">
    <div class="sc-7o7nez-0 daKrZU">Dune</div>
  </a>
</div>
</body></html>`

const bmsDetail = `<html><body>
<h1>Dune</h1>
<button data-phase="postRelease" data-href="/buytickets/dune-chennai/ET00001/20260317">Book tickets</button>
</body></html>`

// the second venue has a showtime without a time label, the third has a label that
// does not parse
const bmsShowtimes = `<html><body>
<div class="venue-card">
  <div class="venue-name"> PVR  Grand Mall </div>
  <div class="showtime-pill"><a href="/booking/1"><span class="time">10:30 AM</span><span class="price">₹200</span></a></div>
  <div class="showtime-pill"><span class="time">22:15</span></div>
</div>
<div class="venue-card">
  <div class="venue-name">INOX Marina</div>
  <div class="showtime-pill"><a href="/booking/2"><span class="price">₹150</span></a></div>
  <div class="showtime-pill"><a href="/booking/3"><span class="time">7:00 PM</span></a></div>
</div>
<div class="venue-card">
  <div class="venue-name">AGS Villivakkam</div>
  <div class="showtime-pill"><span class="time">1:15 pm</span><span class="price">₹180</span></div>
  <div class="showtime-pill"><span class="time">Late show</span></div>
</div>
</body></html>`

const pvrHome = `<html><body>
<div class="p-card">
  <div class="p-card-title"><span>Arrival</span></div>
  <button class="book-tickets-btn" data-href="/showtimes/arrival">Book</button>
</div>
<div class="p-card">
  <div class="p-card-title"><span>DUNE</span></div>
  <button class="book-tickets-btn" data-href="/showtimes/dune">Book</button>
</div>
</body></html>`

// the second venue starts collapsed
const pvrShowtimes = `<html><body>
<div class="p-accordion">
  <div class="p-accordion-tab">
    <a class="p-accordion-header-link" data-reveal="#panel-1"><div class="cinema-listed-locat"><h2>PVR Velachery</h2></div></a>
    <div class="p-accordion-content" id="panel-1">
      <div class="box-slot-moviesession"><div class="show-times"><h5>09:45 AM</h5></div></div>
    </div>
  </div>
  <div class="p-accordion-tab">
    <a class="p-accordion-header-link" data-reveal="#panel-2"><div class="cinema-listed-locat"><h2>PVR Ampa</h2></div></a>
    <div class="p-accordion-content" id="panel-2" hidden>
      <div class="box-slot-moviesession"><div class="show-times"><h5>06:30 PM</h5></div></div>
      <div class="box-slot-moviesession"><div class="show-times"><h5>09:50 PM</h5></div></div>
    </div>
  </div>
</div>
</body></html>`

func bmsPages() map[string]string {
	return map[string]string{
		bmsListingUrl:   bmsListing,
		bmsDetailUrl:    bmsDetail,
		bmsShowtimesUrl: bmsShowtimes,
	}
}

func pvrPages() map[string]string {
	return map[string]string{
		pvrBase:         pvrHome,
		pvrShowtimesUrl: pvrShowtimes,
	}
}

func merge(pages ...map[string]string) map[string]string {
	out := map[string]string{}
	for _, p := range pages {
		for k, v := range p {
			out[k] = v
		}
	}
	return out
}

type harness struct {
	clock    *chronotest.Clock
	tel      *telemetrytest.Recorder
	fetcher  *htmlsession.MapFetcher
	session  *htmlsession.Session
	resolver *Resolver
}

func newHarness(t testing.TB, pages map[string]string) *harness {
	t.Helper()
	clock := chronotest.NewClock(time.Date(2026, time.March, 16, 9, 0, 0, 0, ist))
	tel := telemetrytest.NewRecorder()
	fetcher := htmlsession.NewMapFetcher(pages)
	session := htmlsession.New(fetcher)
	return &harness{
		clock:    clock,
		tel:      tel,
		fetcher:  fetcher,
		session:  session,
		resolver: NewResolver(session, clock, clock, tel),
	}
}

func (h *harness) open(t testing.TB, url string) {
	t.Helper()
	require.NoError(t, h.session.Navigate(context.Background(), url))
}

func (h *harness) pacer() *pacer {
	return newPacer(h.clock, rand.New(rand.NewSource(1)))
}

func (h *harness) navigator(session browser.Session, profile SiteProfile) Navigator {
	resolver := NewResolver(session, h.clock, h.clock, h.tel)
	challenge := NewChallengeDetector(
		session, resolver, profile.Challenge, profile.Timing.Challenge, h.clock, h.clock, h.tel,
	)
	return newNavigator(session, resolver, challenge, profile, h.pacer(), 10*time.Second, h.tel)
}

func (h *harness) extractor() Extractor {
	return newExtractor(h.session, h.resolver, h.pacer(), 10*time.Second, h.clock, h.tel)
}

func (h *harness) factory() browser.Factory {
	return func(context.Context) (browser.Session, error) {
		return h.session, nil
	}
}

// stubbornSession misbehaves the way a live browser does. Native clicks inside
// intercept land on an overlay, every click inside fail is lost, and with leaky set
// scoped queries search the whole document as they do for a detached scope element.
type stubbornSession struct {
	*htmlsession.Session
	intercept Locator
	fail      Locator
	leaky     bool
}

func (s *stubbornSession) inside(ctx context.Context, el browser.Element, locator Locator) bool {
	if locator.empty() {
		return false
	}
	roots, err := s.Session.QueryAll(ctx, nil, string(locator))
	if err != nil {
		return false
	}
	for _, root := range roots {
		if root.Key() == el.Key() {
			return true
		}
		if ok, err := s.Session.Contains(ctx, root, el); err == nil && ok {
			return true
		}
	}
	return false
}

func (s *stubbornSession) QueryAll(ctx context.Context, parent browser.Element, selector string) ([]browser.Element, error) {
	if s.leaky {
		parent = nil
	}
	return s.Session.QueryAll(ctx, parent, selector)
}

func (s *stubbornSession) Click(ctx context.Context, el browser.Element) error {
	if s.inside(ctx, el, s.intercept) || s.inside(ctx, el, s.fail) {
		return browser.ErrClickIntercepted
	}
	return s.Session.Click(ctx, el)
}

func (s *stubbornSession) DispatchClick(ctx context.Context, el browser.Element) error {
	if s.inside(ctx, el, s.fail) {
		return browser.ErrClickIntercepted
	}
	return s.Session.DispatchClick(ctx, el)
}
