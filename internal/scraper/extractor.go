package scraper

import (
	"context"
	"notifyme-backend/internal/browser"
	"notifyme-backend/internal/components/assert"
	"notifyme-backend/internal/components/chrono"
	"notifyme-backend/internal/components/telemetry"
	"notifyme-backend/lib/htmlutil"
	"time"
)

const (
	report_extractor_container = "extractor.container"
	report_extractor_entry     = "extractor.entry"
)

const (
	SkipNoVenueName    = "venue name missing"
	SkipPanelClosed    = "venue panel could not be opened"
	SkipNoShowtimeTime = "showtime has no time"
)

// Skip records a container or entry that did not produce a record. Entry is -1 when
// the whole container was skipped.
type Skip struct {
	Container int
	Entry     int
	Reason    string
}

type Extraction struct {
	Records []ShowRecord
	Skipped []Skip
}

// Extractor reads show records off a showtimes page.
type Extractor struct {
	session     browser.Session
	resolver    *Resolver
	pacer       *pacer
	elementWait time.Duration
	time        chrono.TimeAPI
	tel         telemetry.API
}

func newExtractor(
	session browser.Session,
	resolver *Resolver,
	pacer *pacer,
	elementWait time.Duration,
	time chrono.TimeAPI,
	tel telemetry.API,
) Extractor {
	assert.NotNil(session)
	assert.NotNil(resolver)
	assert.NotNil(pacer)
	assert.NotNil(time)
	assert.NotNil(tel)

	return Extractor{
		session: session,
		// the page has rendered by the time anything is extracted, scoped lookups do
		// not need to wait for content to appear
		resolver:    resolver.WithScopedTimeout(0),
		pacer:       pacer,
		elementWait: elementWait,
		time:        time,
		tel:         tel,
	}
}

// Extract walks every venue container on the current page in document order. A bad
// container or entry is skipped and listed in Skipped, it never fails the extraction.
func (e Extractor) Extract(ctx context.Context, profile SiteProfile, movie, location string) Extraction {
	out := Extraction{}

	pageUrl, err := e.session.CurrentURL(ctx)
	if err != nil {
		e.tel.ReportDebug("could not read current url", err)
	}

	containers := e.resolver.ResolveAll(ctx, profile.Locators.Venue, e.elementWait)
	for ci, container := range containers {
		name := ""
		if lookup := e.resolver.ResolveWithin(ctx, container, profile.Locators.VenueName); lookup.Found() {
			name = htmlutil.CleanText(e.resolver.Text(ctx, lookup.Element))
		}
		if name == "" {
			e.tel.ReportWarning(report_extractor_container, SkipNoVenueName, ci)
			out.Skipped = append(out.Skipped, Skip{Container: ci, Entry: -1, Reason: SkipNoVenueName})
			continue
		}

		scope := container
		if profile.Locators.PanelContent != "" {
			panel, ok := e.openPanel(ctx, profile, container)
			if !ok {
				e.tel.ReportWarning(report_extractor_container, SkipPanelClosed, name)
				out.Skipped = append(out.Skipped, Skip{Container: ci, Entry: -1, Reason: SkipPanelClosed})
				continue
			}
			scope = panel
		}

		entries := e.resolver.ResolveAllWithin(ctx, scope, profile.Locators.Showtime)
		for ei, entry := range entries {
			record, ok := e.readEntry(ctx, profile, entry, pageUrl)
			if !ok {
				e.tel.ReportWarning(report_extractor_entry, SkipNoShowtimeTime, name, ei)
				out.Skipped = append(out.Skipped, Skip{Container: ci, Entry: ei, Reason: SkipNoShowtimeTime})
				continue
			}
			record.MovieName = movie
			record.Location = location
			record.TheaterName = name
			record.Source = profile.Source
			out.Records = append(out.Records, record)
		}
		e.tel.ReportDebug("venue extracted", name, len(entries))
	}
	return out
}

// openPanel returns the visible content panel of a container, opening it first when it
// is collapsed.
func (e Extractor) openPanel(ctx context.Context, profile SiteProfile, container browser.Element) (browser.Element, bool) {
	lookup := e.resolver.VisibleWithin(ctx, container, profile.Locators.PanelContent, time.Second)
	if lookup.Found() {
		return lookup.Element, true
	}

	toggle := e.resolver.ResolveWithin(ctx, container, profile.Locators.PanelToggle)
	if !toggle.Found() {
		return nil, false
	}
	if !twoTierClick(ctx, e.session, e.resolver, e.pacer, profile.Timing, e.tel, toggle.Element, "venue panel") {
		return nil, false
	}
	_ = e.pacer.pause(ctx, profile.Timing.PanelDelay, 0)

	lookup = e.resolver.VisibleWithin(ctx, container, profile.Locators.PanelContent, 5*time.Second)
	return lookup.Element, lookup.Found()
}

func (e Extractor) readEntry(ctx context.Context, profile SiteProfile, entry browser.Element, pageUrl string) (ShowRecord, bool) {
	timeLookup := e.resolver.ResolveWithin(ctx, entry, profile.Locators.ShowtimeTime)
	if !timeLookup.Found() {
		return ShowRecord{}, false
	}
	label := htmlutil.CleanText(e.resolver.Text(ctx, timeLookup.Element))
	if label == "" {
		return ShowRecord{}, false
	}

	captured := e.time.Now()
	record := ShowRecord{
		PriceRange: PriceUnknown,
		BookingURL: pageUrl,
		Available:  true,
		CapturedAt: captured,
	}

	showTime, ok := profile.Strategy.ParseShowTime(label, pageUrl, captured)
	if ok {
		record.ShowTime, record.TimeSource = showTime, TimeParsed
	} else {
		record.ShowTime, record.TimeSource = FallbackCaptureInstant(captured)
	}

	if price := e.resolver.ResolveWithin(ctx, entry, profile.Locators.ShowtimePrice); price.Found() {
		if text := htmlutil.CleanText(e.resolver.Text(ctx, price.Element)); text != "" {
			record.PriceRange = text
		}
	}

	if href, ok := e.resolver.Attribute(ctx, entry, "href"); ok && href != "" {
		record.BookingURL = htmlutil.ResolveHref(pageUrl, href)
	} else if link := e.resolver.ResolveWithin(ctx, entry, profile.Locators.ShowtimeLink); link.Found() {
		if href, ok := e.resolver.Attribute(ctx, link.Element, "href"); ok && href != "" {
			record.BookingURL = htmlutil.ResolveHref(pageUrl, href)
		}
	}
	return record, true
}
