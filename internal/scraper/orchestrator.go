package scraper

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"notifyme-backend/internal/browser"
	"notifyme-backend/internal/components/assert"
	"notifyme-backend/internal/components/chrono"
	"notifyme-backend/internal/components/telemetry"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("notifyme.internal.scraper")

const (
	report_orchestrator_session = "orchestrator.session"
	report_orchestrator_records = "orchestrator.records"
	report_orchestrator_aborted = "orchestrator.aborted"
)

type Options struct {
	Sites []SiteProfile
	// ElementWait bounds every unscoped element lookup.
	ElementWait time.Duration
	// InterPairDelay is slept after every (movie, location) pair of a sweep.
	InterPairDelay time.Duration
	// InterSiteDelay is slept between two sites of the same pair.
	InterSiteDelay time.Duration
	// Seed seeds the jitter source, zero seeds from the clock.
	Seed int64
}

// Orchestrator composes navigation and extraction over every configured site. It owns
// the browser session for the duration of a Run or Sweep.
type Orchestrator struct {
	newSession browser.Factory
	options    Options
	time       chrono.TimeAPI
	sleep      chrono.SleepAPI
	rand       *rand.Rand
	tel        telemetry.API
}

func NewOrchestrator(
	newSession browser.Factory,
	options Options,
	time chrono.TimeAPI,
	sleep chrono.SleepAPI,
	tel telemetry.API,
) Orchestrator {
	assert.NotNil(newSession)
	assert.NotNil(time)
	assert.NotNil(sleep)
	assert.NotNil(tel)

	seed := options.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return Orchestrator{
		newSession: newSession,
		options:    options,
		time:       time,
		sleep:      sleep,
		rand:       rand.New(rand.NewSource(seed)),
		tel:        telemetry.NewScopedAPI("scraper", tel),
	}
}

// pass is everything bound to one open session.
type pass struct {
	session browser.Session
	clock   *monotonicTime
	pacer   *pacer
}

func (o Orchestrator) open(ctx context.Context) (*pass, bool) {
	session, err := o.newSession(ctx)
	if err != nil {
		o.tel.ReportBroken(report_orchestrator_session, err)
		return nil, false
	}
	return &pass{
		session: session,
		clock:   newMonotonicTime(o.time),
		pacer:   newPacer(o.sleep, o.rand),
	}, true
}

func (o Orchestrator) close(p *pass) {
	err := p.session.Close()
	if err != nil {
		o.tel.ReportWarning(report_orchestrator_session, err)
	}
}

// Run scrapes every configured site for one (movie, location) pair. It never fails,
// anything that goes wrong yields fewer (possibly zero) records.
func (o Orchestrator) Run(ctx context.Context, movie, location string) []ShowRecord {
	p, ok := o.open(ctx)
	if !ok {
		return nil
	}
	defer o.close(p)
	return o.run(ctx, p, movie, location)
}

// ErrUnknownSite is returned by RunSite for a site that is not configured.
var ErrUnknownSite = errors.New("site not configured")

// RunSite is Run restricted to the site with the given key.
func (o Orchestrator) RunSite(ctx context.Context, key, movie, location string) ([]ShowRecord, error) {
	for _, site := range o.options.Sites {
		if !strings.EqualFold(site.Key, strings.TrimSpace(key)) {
			continue
		}
		p, ok := o.open(ctx)
		if !ok {
			return nil, nil
		}
		defer o.close(p)
		return o.runSite(ctx, p, site, movie, location), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownSite, key)
}

func (o Orchestrator) run(ctx context.Context, p *pass, movie, location string) []ShowRecord {
	ctx, span := tracer.Start(ctx, "Run", trace.WithAttributes(
		attribute.String("movie", movie),
		attribute.String("location", location),
	))
	defer span.End()

	var records []ShowRecord
	for i, site := range o.options.Sites {
		if i > 0 {
			if err := o.sleep.Sleep(ctx, o.options.InterSiteDelay); err != nil {
				break
			}
		}
		if ctx.Err() != nil {
			break
		}
		records = append(records, o.runSite(ctx, p, site, movie, location)...)
	}

	span.SetAttributes(attribute.Int("records", len(records)))
	return records
}

func (o Orchestrator) runSite(ctx context.Context, p *pass, site SiteProfile, movie, location string) []ShowRecord {
	ctx, span := tracer.Start(ctx, "RunSite", trace.WithAttributes(attribute.String("site", site.Key)))
	defer span.End()

	tel := telemetry.NewScopedAPI(site.Key, o.tel)
	resolver := NewResolver(p.session, o.time, o.sleep, tel)
	challenge := NewChallengeDetector(
		p.session, resolver, site.Challenge, site.Timing.Challenge, o.time, o.sleep, tel,
	)
	navigator := newNavigator(p.session, resolver, challenge, site, p.pacer, o.options.ElementWait, tel)

	nav := navigator.Navigate(ctx, movie, location)
	if !nav.Done() {
		tel.ReportDebug("navigation aborted", movie, location, nav.Reason)
		if nav.Reason != ReasonMovieNotListed {
			tel.ReportWarning(report_orchestrator_aborted, nav.Reason, movie, location)
		}
		span.SetStatus(codes.Error, nav.Reason)
		return nil
	}

	extractor := newExtractor(p.session, resolver, p.pacer, o.options.ElementWait, p.clock, tel)
	extraction := extractor.Extract(ctx, site, movie, location)
	tel.ReportCount(report_orchestrator_records, int64(len(extraction.Records)))
	span.SetAttributes(
		attribute.Int("records", len(extraction.Records)),
		attribute.Int("skipped", len(extraction.Skipped)),
	)
	return extraction.Records
}

// PairHandler receives the records of one (movie, location) pair as soon as it is done.
type PairHandler func(ctx context.Context, movie, location string, records []ShowRecord)

// Sweep runs every (movie, location) pair in order on a single session and sleeps the
// inter-pair delay after each one whatever its outcome. It stops early only when ctx ends.
func (o Orchestrator) Sweep(ctx context.Context, movies, locations []string, handle PairHandler) {
	ctx, span := tracer.Start(ctx, "Sweep", trace.WithAttributes(
		attribute.Int("movies", len(movies)),
		attribute.Int("locations", len(locations)),
	))
	defer span.End()

	if len(movies) == 0 || len(locations) == 0 {
		return
	}
	p, ok := o.open(ctx)
	if !ok {
		span.SetStatus(codes.Error, "could not open session")
		return
	}
	defer o.close(p)

	for _, movie := range movies {
		for _, location := range locations {
			if ctx.Err() != nil {
				return
			}
			records := o.run(ctx, p, movie, location)
			if handle != nil {
				handle(ctx, movie, location, records)
			}
			if o.sleep.Sleep(ctx, o.options.InterPairDelay) != nil {
				return
			}
		}
	}
}
