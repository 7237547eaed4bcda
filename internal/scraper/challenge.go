package scraper

import (
	"context"
	"notifyme-backend/internal/browser"
	"notifyme-backend/internal/components/assert"
	"notifyme-backend/internal/components/chrono"
	"notifyme-backend/internal/components/telemetry"
	"strings"
	"time"
)

const (
	report_challenge_detect   = "challenge.detect"
	report_challenge_wait     = "challenge.await-resolution"
	report_challenge_interact = "challenge.interact"
)

// ChallengeMarkers recognize an anti-automation interstitial, any match counts.
type ChallengeMarkers struct {
	Selectors []Locator
	// Substrings are compared case-insensitively against the raw page source.
	Substrings []string
}

type ChallengeTiming struct {
	MaxWait      time.Duration
	PollInterval time.Duration
	// ScrollPause separates the down and up scroll of each liveness nudge.
	ScrollPause time.Duration
	// Settle is waited once the challenge is gone, or once waiting gave up.
	Settle time.Duration
}

var DefaultChallengeTiming = ChallengeTiming{
	MaxWait:      30 * time.Second,
	PollInterval: 2 * time.Second,
	ScrollPause:  500 * time.Millisecond,
	Settle:       3 * time.Second,
}

type ChallengeOutcome int

const (
	// ChallengeAbsent means there was nothing to wait for.
	ChallengeAbsent ChallengeOutcome = iota
	ChallengeCleared
	// ChallengeTimedOut means the caller proceeds on a best-effort basis.
	ChallengeTimedOut
)

func (o ChallengeOutcome) String() string {
	switch o {
	case ChallengeCleared:
		return "cleared"
	case ChallengeTimedOut:
		return "timed out"
	default:
		return "absent"
	}
}

// ChallengeDetector recognizes and waits out interstitials on the current page.
type ChallengeDetector struct {
	session  browser.Session
	resolver *Resolver
	markers  ChallengeMarkers
	timing   ChallengeTiming
	time     chrono.TimeAPI
	sleep    chrono.SleepAPI
	tel      telemetry.API
}

func NewChallengeDetector(
	session browser.Session,
	resolver *Resolver,
	markers ChallengeMarkers,
	timing ChallengeTiming,
	time chrono.TimeAPI,
	sleep chrono.SleepAPI,
	tel telemetry.API,
) ChallengeDetector {
	assert.NotNil(session)
	assert.NotNil(resolver)
	assert.NotNil(time)
	assert.NotNil(sleep)
	assert.NotNil(tel)

	lowered := make([]string, 0, len(markers.Substrings))
	for _, s := range markers.Substrings {
		if s != "" {
			lowered = append(lowered, strings.ToLower(s))
		}
	}
	markers.Substrings = lowered

	return ChallengeDetector{
		session:  session,
		resolver: resolver,
		markers:  markers,
		timing:   timing,
		time:     time,
		sleep:    sleep,
		tel:      tel,
	}
}

// Present reports whether the current page is a challenge. Errors read as "no challenge".
func (d ChallengeDetector) Present(ctx context.Context) bool {
	for _, selector := range d.markers.Selectors {
		if d.resolver.Resolve(ctx, selector, 0).Found() {
			return true
		}
	}
	if len(d.markers.Substrings) == 0 {
		return false
	}
	source, err := d.session.PageSource(ctx)
	if err != nil {
		d.tel.ReportWarning(report_challenge_detect, err)
		return false
	}
	source = strings.ToLower(source)
	for _, marker := range d.markers.Substrings {
		if strings.Contains(source, marker) {
			return true
		}
	}
	return false
}

// nudge scrolls down and back up, some challenges treat this as a liveness signal.
func (d ChallengeDetector) nudge(ctx context.Context) {
	if err := d.session.ScrollBy(ctx, 0, 100); err != nil {
		d.tel.ReportDebug(report_challenge_interact, err)
		return
	}
	_ = d.sleep.Sleep(ctx, d.timing.ScrollPause)
	if err := d.session.ScrollBy(ctx, 0, -100); err != nil {
		d.tel.ReportDebug(report_challenge_interact, err)
	}
}

// AwaitResolution blocks until the challenge is gone or maxWait elapses, it never fails.
// A non-positive maxWait uses the detector's default.
func (d ChallengeDetector) AwaitResolution(ctx context.Context, maxWait time.Duration) ChallengeOutcome {
	if !d.Present(ctx) {
		return ChallengeAbsent
	}
	if maxWait <= 0 {
		maxWait = d.timing.MaxWait
	}

	d.tel.ReportDebug("challenge detected, waiting", maxWait.String())
	deadline := d.time.Now().Add(maxWait)
	outcome := ChallengeTimedOut
	for d.time.Now().Before(deadline) {
		if d.sleep.Sleep(ctx, d.timing.PollInterval) != nil {
			break
		}
		d.nudge(ctx)
		if !d.Present(ctx) {
			outcome = ChallengeCleared
			break
		}
	}

	if outcome == ChallengeTimedOut {
		d.tel.ReportWarning(report_challenge_wait, "challenge not resolved within timeout", maxWait.String())
	}
	_ = d.sleep.Sleep(ctx, d.timing.Settle)
	return outcome
}
