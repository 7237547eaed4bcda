package service

import (
	"context"
	"fmt"
	"notifyme-backend/internal/components/chrono"
	"notifyme-backend/internal/matching"
	"notifyme-backend/internal/scraper"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TriggerRelease runs one match against a simulated release of movie in location on
// date. A zero date means today.
func (s Service) TriggerRelease(ctx context.Context, movie, location string, date time.Time) ([]matching.Outcome, error) {
	movie = strings.TrimSpace(movie)
	location = strings.TrimSpace(location)
	if movie == "" {
		return nil, invalid("Movie name is required")
	}
	if location == "" {
		return nil, invalid("Location is required")
	}
	if date.IsZero() {
		date = chrono.Today(s.time)
	}

	outcomes := s.engine.TriggerRelease(ctx, movie, location, date)
	s.reportOutcomes(outcomes)
	return outcomes, nil
}

// ScrapeNow runs every configured site for one pair outside the schedule. It only fails
// when another scrape holds the browser session.
func (s Service) ScrapeNow(ctx context.Context, movie, location string) ([]scraper.ShowRecord, error) {
	movie = strings.TrimSpace(movie)
	location = strings.TrimSpace(location)
	if movie == "" || location == "" {
		return nil, invalid("Movie name and location are required")
	}
	if !s.pass.TryLock() {
		return nil, ErrPassInFlight
	}
	defer s.pass.Unlock()

	return s.scraper.Run(ctx, movie, location), nil
}

// ScrapeSite is ScrapeNow for a single site.
func (s Service) ScrapeSite(ctx context.Context, site, movie, location string) ([]scraper.ShowRecord, error) {
	movie = strings.TrimSpace(movie)
	location = strings.TrimSpace(location)
	if movie == "" || location == "" {
		return nil, invalid("Movie name and location are required")
	}
	if !s.pass.TryLock() {
		return nil, ErrPassInFlight
	}
	defer s.pass.Unlock()

	return s.scraper.RunSite(ctx, site, movie, location)
}

// PassSummary counts what one scheduled pass did.
type PassSummary struct {
	RunID    string
	Pairs    int
	Records  int
	Notified int
	Dropped  int
	Failed   int
}

// RunPass scrapes every watched (movie, location) pair and matches each pair's records
// as soon as it is done.
func (s Service) RunPass(ctx context.Context) (PassSummary, error) {
	if !s.pass.TryLock() {
		s.tel.ReportDebug("skipping pass, previous pass still running")
		return PassSummary{}, ErrPassInFlight
	}
	defer s.pass.Unlock()

	runId, err := s.rand.RunID()
	if err != nil {
		s.tel.ReportWarning(report_pass_id, err)
		runId = fmt.Sprint(s.time.Now().Unix())
	}

	ctx, span := tracer.Start(ctx, "RunPass", trace.WithAttributes(
		attribute.String("run_id", runId),
	))
	defer span.End()

	summary := PassSummary{RunID: runId}
	if len(s.watchlist.Movies) == 0 || len(s.watchlist.Locations) == 0 {
		s.tel.ReportDebug("nothing to watch", runId)
		return summary, nil
	}

	s.tel.ReportDebug("starting pass", runId, len(s.watchlist.Movies), len(s.watchlist.Locations))
	s.scraper.Sweep(ctx, s.watchlist.Movies, s.watchlist.Locations, func(ctx context.Context, movie, location string, records []scraper.ShowRecord) {
		summary.Pairs++
		summary.Records += len(records)
		if len(records) == 0 {
			return
		}
		for _, o := range s.engine.Match(ctx, records) {
			switch o.Result {
			case matching.ResultNotified:
				summary.Notified++
			case matching.ResultDropped:
				summary.Dropped++
			case matching.ResultFailed:
				summary.Failed++
			}
		}
	})

	span.SetAttributes(
		attribute.Int("pairs", summary.Pairs),
		attribute.Int("records", summary.Records),
		attribute.Int("notified", summary.Notified),
	)
	if summary.Failed > 0 {
		span.SetStatus(codes.Error, "some alerts failed")
		s.tel.ReportWarning(report_pass, runId, "failed alerts", summary.Failed)
	}
	s.tel.ReportDebug(
		"finished pass",
		runId,
		summary.Pairs,
		summary.Records,
		summary.Notified,
		summary.Dropped,
	)
	return summary, nil
}

func (s Service) reportOutcomes(outcomes []matching.Outcome) {
	for _, o := range outcomes {
		s.tel.ReportDebug("match outcome", o.Request.ID, o.Record.Source, o.Result.String(), o.Err)
	}
	s.tel.ReportCount(report_outcomes, int64(len(outcomes)))
}

// ExpireOverdue expires every Active request whose end date has passed.
func (s Service) ExpireOverdue(ctx context.Context) (int, error) {
	count, err := s.engine.ExpireOverdue(ctx, s.time.Now())
	if err != nil {
		s.tel.ReportBroken(report_expire, err)
		return 0, err
	}
	return count, nil
}

// ResetQuota starts a new hourly delivery window.
func (s Service) ResetQuota() {
	s.tel.ReportDebug("resetting hourly email quota", s.limiter.Count())
	s.limiter.Reset()
}

type Schedule struct {
	Pass   string
	Reset  string
	Expire string
}

var DefaultSchedule = Schedule{
	Pass:   "0 */3 * * * *",
	Reset:  "0 0 * * * *",
	Expire: "0 5 0 * * *",
}

// Register adds the pass, quota reset and expiry jobs to cron. Jobs run with ctx.
func (s Service) Register(ctx context.Context, cron chrono.CronAPI, schedule Schedule) error {
	err := cron.Cron(schedule.Pass, func() {
		_, _ = s.RunPass(ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule pass '%s': %w", schedule.Pass, err)
	}
	err = cron.Cron(schedule.Reset, s.ResetQuota)
	if err != nil {
		return fmt.Errorf("schedule quota reset '%s': %w", schedule.Reset, err)
	}
	err = cron.Cron(schedule.Expire, func() {
		_, _ = s.ExpireOverdue(ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule expiry '%s': %w", schedule.Expire, err)
	}
	return nil
}
