package scraper

import (
	"context"
	"notifyme-backend/internal/browser"
	"notifyme-backend/internal/components/assert"
	"notifyme-backend/internal/components/telemetry"
	"strings"
	"time"

	"github.com/antzucaro/matchr"
)

const (
	report_navigator_navigate = "navigator.navigate"
	report_navigator_click    = "navigator.click"
	report_navigator_listing  = "navigator.find-listing"
)

type NavState int

const (
	AtListing NavState = iota
	AtDetail
	AtShowtimes
	Done
	Aborted
)

func (s NavState) String() string {
	switch s {
	case AtListing:
		return "at listing"
	case AtDetail:
		return "at detail"
	case AtShowtimes:
		return "at showtimes"
	case Done:
		return "done"
	default:
		return "aborted"
	}
}

const (
	ReasonListingUnreachable = "listing unreachable"
	ReasonMovieNotListed     = "movie not listed"
	ReasonClickFailed        = "navigation click failed"
	ReasonBookingMissing     = "booking control missing"
	ReasonShowtimesMissing   = "showtimes not loaded"
)

// Navigation is the terminal state of one Navigate call. Trail lists every state
// entered in order, the last element is State.
type Navigation struct {
	State  NavState
	Reason string
	Trail  []NavState
}

func (n Navigation) Done() bool {
	return n.State == Done
}

// Navigator drives one session from a site's listing page to the showtimes page of a
// movie. It holds no state between Navigate calls.
type Navigator struct {
	session     browser.Session
	resolver    *Resolver
	challenge   ChallengeDetector
	profile     SiteProfile
	pacer       *pacer
	elementWait time.Duration
	tel         telemetry.API
}

func newNavigator(
	session browser.Session,
	resolver *Resolver,
	challenge ChallengeDetector,
	profile SiteProfile,
	pacer *pacer,
	elementWait time.Duration,
	tel telemetry.API,
) Navigator {
	assert.NotNil(session)
	assert.NotNil(resolver)
	assert.NotNil(pacer)
	assert.NotNil(profile.Strategy)
	assert.NotNil(tel)

	return Navigator{
		session:     session,
		resolver:    resolver,
		challenge:   challenge,
		profile:     profile,
		pacer:       pacer,
		elementWait: elementWait,
		tel:         tel,
	}
}

type navigation struct {
	Navigation
	card browser.Element
}

func (n *navigation) enter(state NavState) {
	n.State = state
	n.Trail = append(n.Trail, state)
}

func (n *navigation) abort(reason string) Navigation {
	n.Reason = reason
	n.enter(Aborted)
	return n.Navigation
}

// Navigate runs the state machine to completion. It always returns, either Done with
// the session on the showtimes page or Aborted with a reason.
func (n Navigator) Navigate(ctx context.Context, movie, location string) Navigation {
	nav := &navigation{}
	nav.enter(AtListing)

	listingUrl := n.profile.Strategy.ListingURL(location)
	err := n.session.Navigate(ctx, listingUrl)
	if err != nil {
		n.tel.ReportWarning(report_navigator_navigate, err, listingUrl)
		return nav.abort(ReasonListingUnreachable)
	}
	n.challenge.AwaitResolution(ctx, n.profile.Timing.Challenge.MaxWait)
	if n.pacer.pause(ctx, n.profile.Timing.StepDelay, n.profile.Timing.StepJitter) != nil {
		return nav.abort(ReasonListingUnreachable)
	}

	card, ok := n.findListing(ctx, movie)
	if !ok {
		return nav.abort(ReasonMovieNotListed)
	}
	nav.card = card

	// AtListing -> AtDetail
	if !n.profile.BookingWithinCard {
		if !n.click(ctx, card, "listing entry") {
			return nav.abort(ReasonClickFailed)
		}
		if n.pacer.pause(ctx, n.profile.Timing.SettleDelay, 0) != nil {
			return nav.abort(ReasonClickFailed)
		}
	}
	nav.enter(AtDetail)

	// AtDetail -> AtShowtimes
	n.challenge.AwaitResolution(ctx, n.profile.Timing.Challenge.MaxWait)
	var booking Lookup
	if n.profile.BookingWithinCard {
		booking = n.resolver.ResolveWithin(ctx, nav.card, n.profile.Locators.BookingControl)
	} else {
		booking = n.resolver.Resolve(ctx, n.profile.Locators.BookingControl, n.elementWait)
	}
	if !booking.Found() {
		n.tel.ReportDebug("booking control not found", movie, string(n.profile.Locators.BookingControl), booking.Status.String())
		return nav.abort(ReasonBookingMissing)
	}
	if !n.click(ctx, booking.Element, "booking control") {
		return nav.abort(ReasonClickFailed)
	}
	if n.pacer.pause(ctx, n.profile.Timing.SettleDelay, 0) != nil {
		return nav.abort(ReasonClickFailed)
	}
	nav.enter(AtShowtimes)

	// AtShowtimes -> Done
	n.challenge.AwaitResolution(ctx, n.profile.Timing.Challenge.MaxWait)
	if n.profile.Locators.ShowtimesReady != "" {
		if !n.resolver.Resolve(ctx, n.profile.Locators.ShowtimesReady, n.elementWait).Found() {
			return nav.abort(ReasonShowtimesMissing)
		}
		if n.pacer.pause(ctx, n.profile.Timing.StepDelay, n.profile.Timing.StepJitter) != nil {
			return nav.abort(ReasonShowtimesMissing)
		}
	}
	nav.enter(Done)
	return nav.Navigation
}

// findListing returns the first card, in document order, whose title or image alt text
// equals movie ignoring case.
func (n Navigator) findListing(ctx context.Context, movie string) (browser.Element, bool) {
	target := strings.TrimSpace(movie)
	cards := n.resolver.ResolveAll(ctx, n.profile.Locators.MovieCard, n.elementWait)

	var (
		closest    string
		similarity float64
	)
	for _, card := range cards {
		labels := []string{}
		if title := n.resolver.ResolveWithin(ctx, card, n.profile.Locators.CardTitle); title.Found() {
			labels = append(labels, n.resolver.Text(ctx, title.Element))
		}
		if img := n.resolver.ResolveWithin(ctx, card, n.profile.Locators.CardImage); img.Found() {
			alt, _ := n.resolver.Attribute(ctx, img.Element, "alt")
			labels = append(labels, strings.TrimSpace(alt))
		}

		for _, label := range labels {
			if label != "" && strings.EqualFold(label, target) {
				return card, true
			}
			sim := matchr.JaroWinkler(strings.ToLower(label), strings.ToLower(target), false)
			if sim > similarity {
				similarity = sim
				closest = label
			}
		}
	}

	n.tel.ReportDebug(
		"movie not found in listing",
		movie,
		len(cards),
		closest,
		similarity,
	)
	if len(cards) == 0 {
		n.tel.ReportWarning(report_navigator_listing, "no listing entries found", string(n.profile.Locators.MovieCard))
	}
	return nil, false
}

// click scrolls el into view and clicks it natively, falling back to a script click.
// It returns false only when both attempts fail.
func (n Navigator) click(ctx context.Context, el browser.Element, what string) bool {
	return twoTierClick(ctx, n.session, n.resolver, n.pacer, n.profile.Timing, n.tel, el, what)
}

func twoTierClick(
	ctx context.Context,
	session browser.Session,
	resolver *Resolver,
	pacer *pacer,
	timing Timing,
	tel telemetry.API,
	el browser.Element,
	what string,
) bool {
	err := session.ScrollIntoView(ctx, el)
	if err == nil {
		_ = pacer.pause(ctx, timing.ScrollPause, timing.ScrollJitter)
		if !resolver.ElementClickable(ctx, el) {
			err = browser.ErrClickIntercepted
		} else {
			err = session.Click(ctx, el)
		}
	}
	if err == nil {
		return true
	}

	tel.ReportDebug("native click failed, dispatching script click", what, err)
	fallbackErr := session.DispatchClick(ctx, el)
	if fallbackErr == nil {
		return true
	}
	tel.ReportWarning(report_navigator_click, what, err, fallbackErr)
	return false
}
