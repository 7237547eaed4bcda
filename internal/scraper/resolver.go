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
	report_resolver_query = "resolver.query"
	report_resolver_scope = "resolver.scope"
)

// Locator is a css selector, the empty locator never matches anything.
type Locator string

func (l Locator) empty() bool {
	return strings.TrimSpace(string(l)) == ""
}

type LookupStatus int

const (
	// Absent means the wait elapsed without a match, this is a normal outcome.
	Absent LookupStatus = iota
	Found
	// Failed means the last query attempt errored, the element is treated as absent.
	Failed
)

func (s LookupStatus) String() string {
	switch s {
	case Found:
		return "found"
	case Failed:
		return "failed"
	default:
		return "absent"
	}
}

// Lookup is the result of resolving a single element.
type Lookup struct {
	Element browser.Element
	Status  LookupStatus
	Err     error
}

func (l Lookup) Found() bool {
	return l.Status == Found
}

const (
	DefaultPollInterval  = 250 * time.Millisecond
	DefaultScopedTimeout = 1 * time.Second
)

// Resolver performs bounded-wait element lookups against one session.
type Resolver struct {
	session       browser.Session
	time          chrono.TimeAPI
	sleep         chrono.SleepAPI
	tel           telemetry.API
	pollInterval  time.Duration
	scopedTimeout time.Duration
}

func NewResolver(
	session browser.Session,
	time chrono.TimeAPI,
	sleep chrono.SleepAPI,
	tel telemetry.API,
) *Resolver {
	assert.NotNil(session)
	assert.NotNil(time)
	assert.NotNil(sleep)
	assert.NotNil(tel)

	return &Resolver{
		session:       session,
		time:          time,
		sleep:         sleep,
		tel:           tel,
		pollInterval:  DefaultPollInterval,
		scopedTimeout: DefaultScopedTimeout,
	}
}

// WithScopedTimeout returns a copy of the resolver whose scoped lookups wait up to d.
func (r *Resolver) WithScopedTimeout(d time.Duration) *Resolver {
	copied := *r
	copied.scopedTimeout = d
	return &copied
}

// wait calls attempt until it reports done, the context ends or timeout elapses.
// attempt is always called at least once, even with a zero timeout.
func (r *Resolver) wait(ctx context.Context, timeout time.Duration, attempt func() bool) bool {
	deadline := r.time.Now().Add(timeout)
	for {
		if attempt() {
			return true
		}
		now := r.time.Now()
		if ctx.Err() != nil || !now.Before(deadline) {
			return false
		}
		pause := r.pollInterval
		if remaining := deadline.Sub(now); remaining < pause {
			pause = remaining
		}
		if r.sleep.Sleep(ctx, pause) != nil {
			return false
		}
	}
}

// query runs one scoped or global query, candidates outside parent are dropped.
func (r *Resolver) query(ctx context.Context, parent browser.Element, locator Locator) ([]browser.Element, error) {
	found, err := r.session.QueryAll(ctx, parent, string(locator))
	if err != nil || parent == nil {
		return found, err
	}

	scoped := found[:0:0]
	rejected := 0
	for _, candidate := range found {
		inside, err := r.session.Contains(ctx, parent, candidate)
		if err != nil {
			return nil, err
		}
		if !inside {
			rejected++
			continue
		}
		scoped = append(scoped, candidate)
	}
	if rejected > 0 {
		r.tel.ReportWarning(report_resolver_scope, string(locator), parent.Key(), rejected)
	}
	return scoped, nil
}

func (r *Resolver) first(ctx context.Context, parent browser.Element, locator Locator, timeout time.Duration, accept func(browser.Element) bool) Lookup {
	if locator.empty() {
		return Lookup{Status: Absent}
	}
	var (
		match   browser.Element
		lastErr error
	)
	ok := r.wait(ctx, timeout, func() bool {
		found, err := r.query(ctx, parent, locator)
		lastErr = err
		if err != nil {
			return false
		}
		for _, el := range found {
			if accept == nil || accept(el) {
				match = el
				return true
			}
		}
		return false
	})
	if ok {
		return Lookup{Element: match, Status: Found}
	}
	if lastErr != nil {
		r.tel.ReportDebug(report_resolver_query, string(locator), lastErr)
		return Lookup{Status: Failed, Err: lastErr}
	}
	return Lookup{Status: Absent}
}

func (r *Resolver) all(ctx context.Context, parent browser.Element, locator Locator, timeout time.Duration) []browser.Element {
	if locator.empty() {
		return nil
	}
	var out []browser.Element
	r.wait(ctx, timeout, func() bool {
		found, err := r.query(ctx, parent, locator)
		if err != nil {
			r.tel.ReportDebug(report_resolver_query, string(locator), err)
			return false
		}
		out = found
		return len(found) > 0
	})
	return out
}

// Resolve waits up to timeout for the first element matching locator.
func (r *Resolver) Resolve(ctx context.Context, locator Locator, timeout time.Duration) Lookup {
	return r.first(ctx, nil, locator, timeout, nil)
}

// ResolveWithin looks for the first match strictly inside parent, it never falls back
// to a page-wide search.
func (r *Resolver) ResolveWithin(ctx context.Context, parent browser.Element, locator Locator) Lookup {
	if parent == nil {
		return Lookup{Status: Absent}
	}
	return r.first(ctx, parent, locator, r.scopedTimeout, nil)
}

// ResolveAll waits up to timeout for at least one match and returns every match in
// document order, possibly none.
func (r *Resolver) ResolveAll(ctx context.Context, locator Locator, timeout time.Duration) []browser.Element {
	return r.all(ctx, nil, locator, timeout)
}

func (r *Resolver) ResolveAllWithin(ctx context.Context, parent browser.Element, locator Locator) []browser.Element {
	if parent == nil {
		return nil
	}
	return r.all(ctx, parent, locator, r.scopedTimeout)
}

func (r *Resolver) isVisible(ctx context.Context, el browser.Element) bool {
	visible, err := r.session.Visible(ctx, el)
	return err == nil && visible
}

func (r *Resolver) isClickable(ctx context.Context, el browser.Element) bool {
	if !r.isVisible(ctx, el) {
		return false
	}
	if _, disabled, err := r.session.Attribute(ctx, el, "disabled"); err != nil || disabled {
		return false
	}
	aria, _, err := r.session.Attribute(ctx, el, "aria-disabled")
	return err == nil && aria != "true"
}

// Visible waits for the first match that is rendered.
func (r *Resolver) Visible(ctx context.Context, locator Locator, timeout time.Duration) Lookup {
	return r.first(ctx, nil, locator, timeout, func(el browser.Element) bool {
		return r.isVisible(ctx, el)
	})
}

// VisibleWithin is Visible scoped to parent, waiting up to timeout.
func (r *Resolver) VisibleWithin(ctx context.Context, parent browser.Element, locator Locator, timeout time.Duration) Lookup {
	if parent == nil {
		return Lookup{Status: Absent}
	}
	return r.first(ctx, parent, locator, timeout, func(el browser.Element) bool {
		return r.isVisible(ctx, el)
	})
}

// Clickable waits for the first match that is rendered and not disabled.
func (r *Resolver) Clickable(ctx context.Context, locator Locator, timeout time.Duration) Lookup {
	return r.first(ctx, nil, locator, timeout, func(el browser.Element) bool {
		return r.isClickable(ctx, el)
	})
}

// ElementClickable reports whether an already resolved element is currently clickable.
func (r *Resolver) ElementClickable(ctx context.Context, el browser.Element) bool {
	return r.isClickable(ctx, el)
}

// Text reads the element's text, any failure reads as empty.
func (r *Resolver) Text(ctx context.Context, el browser.Element) string {
	text, err := r.session.Text(ctx, el)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(text)
}

// Attribute reads an attribute, any failure reads as missing.
func (r *Resolver) Attribute(ctx context.Context, el browser.Element, name string) (string, bool) {
	value, ok, err := r.session.Attribute(ctx, el, name)
	if err != nil {
		return "", false
	}
	return value, ok
}
