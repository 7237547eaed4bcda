package matching

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"notifyme-backend/internal/components/assert"
	"notifyme-backend/internal/components/chrono"
	"notifyme-backend/internal/components/telemetry"
	"notifyme-backend/internal/db"
	"notifyme-backend/internal/delivery"
	"notifyme-backend/internal/scraper"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("notifyme.internal.matching")

const (
	report_db_query        = "db.query"
	report_engine_template = "engine.template"
	report_engine_notify   = "engine.notify"
	report_engine_commit   = "engine.commit"
	report_engine_expire   = "engine.expire"
)

// SimulatedSource is the record source of manually triggered releases.
const SimulatedSource = "Simulated"

type Result int

const (
	// ResultNotified means the alert was delivered and the request is now Notified.
	ResultNotified Result = iota
	// ResultAlreadyClaimed means another caller transitioned the request first.
	ResultAlreadyClaimed
	// ResultDropped means the hourly quota was used up, the request stays Active.
	ResultDropped
	// ResultFailed means delivery or storage failed, the request stays Active.
	ResultFailed
)

func (r Result) String() string {
	switch r {
	case ResultNotified:
		return "notified"
	case ResultAlreadyClaimed:
		return "already claimed"
	case ResultDropped:
		return "dropped"
	default:
		return "failed"
	}
}

// Outcome is what happened to one (request, record) pair that satisfied the predicate.
type Outcome struct {
	Request db.NotificationRequest
	Record  scraper.ShowRecord
	Result  Result
	Err     error
}

// Sender is satisfied by delivery.Channel.
//
// note: fault injection point
type Sender interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

// Engine turns show records into delivered alerts.
type Engine struct {
	qry    *db.Queries
	makeTx db.MakeTx
	sender Sender
	time   chrono.TimeAPI
	tel    telemetry.API
}

func NewEngine(
	qry *db.Queries,
	makeTx db.MakeTx,
	sender Sender,
	time chrono.TimeAPI,
	tel telemetry.API,
) Engine {
	assert.NotNil(qry)
	assert.NotNil(makeTx)
	assert.NotNil(sender)
	assert.NotNil(time)
	assert.NotNil(tel)

	return Engine{
		qry:    qry,
		makeTx: makeTx,
		sender: sender,
		time:   time,
		tel:    telemetry.NewScopedAPI("matching", tel),
	}
}

// Matches is the matching predicate, status and date range are checked by the store.
func Matches(request db.NotificationRequest, record scraper.ShowRecord) bool {
	return strings.EqualFold(strings.TrimSpace(request.MovieName), strings.TrimSpace(record.MovieName)) &&
		strings.EqualFold(strings.TrimSpace(request.Location), strings.TrimSpace(record.Location))
}

func (e Engine) template(ctx context.Context) delivery.Template {
	row, err := e.qry.GetEmailTemplate(ctx, delivery.AlertTemplateName)
	if errors.Is(err, sql.ErrNoRows) {
		return delivery.DefaultAlertTemplate
	}
	if err != nil {
		e.tel.ReportWarning(report_engine_template, err)
		return delivery.DefaultAlertTemplate
	}
	return delivery.Template{Subject: row.SubjectTemplate, Body: row.BodyTemplate}
}

// Match notifies every Active request satisfied by a record. A request is notified at
// most once no matter how many records satisfy it or how often Match runs.
func (e Engine) Match(ctx context.Context, records []scraper.ShowRecord) []Outcome {
	ctx, span := tracer.Start(ctx, "Match", trace.WithAttributes(
		attribute.Int("records", len(records)),
	))
	defer span.End()

	if len(records) == 0 {
		return nil
	}
	tmpl := e.template(ctx)

	var outcomes []Outcome
	for _, record := range records {
		if ctx.Err() != nil {
			break
		}
		if record.MovieName == "" || record.Location == "" {
			continue
		}

		date := db.FormatDate(record.EffectiveDate(e.time.Location()))
		candidates, err := e.qry.FindActiveInDateRange(ctx, date)
		if err != nil {
			e.tel.ReportBroken(report_db_query, err, "FindActiveInDateRange", date)
			span.RecordError(err)
			continue
		}
		for _, request := range candidates {
			if !Matches(request, record) {
				continue
			}
			outcomes = append(outcomes, e.notify(ctx, tmpl, request, record, date))
		}
	}

	notified := 0
	for _, o := range outcomes {
		if o.Result == ResultNotified {
			notified++
		}
	}
	span.SetAttributes(attribute.Int("matched", len(outcomes)), attribute.Int("notified", notified))
	return outcomes
}

// notify claims the request inside a transaction, delivers, and commits only once
// delivery is confirmed. Until then the transition is invisible to other callers.
func (e Engine) notify(ctx context.Context, tmpl delivery.Template, request db.NotificationRequest, record scraper.ShowRecord, date string) Outcome {
	ctx, span := tracer.Start(ctx, "notify", trace.WithAttributes(
		attribute.Int64("request", request.ID),
	))
	defer span.End()

	outcome := Outcome{Request: request, Record: record}
	fail := func(result Result, err error) Outcome {
		outcome.Result = result
		outcome.Err = err
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, result.String())
		}
		return outcome
	}

	tx, discard, commit, err := e.makeTx(ctx)
	if err != nil {
		e.tel.ReportBroken(report_db_query, fmt.Errorf("make tx: %w", err))
		return fail(ResultFailed, err)
	}
	defer discard()

	rows, err := tx.TransitionStatus(ctx, db.TransitionStatusParams{
		ID:         request.ID,
		FromStatus: db.StatusActive,
		ToStatus:   db.StatusNotified,
		UpdatedAt:  e.time.Now().Unix(),
	})
	if err != nil {
		e.tel.ReportBroken(report_db_query, err, "TransitionStatus", request.ID)
		return fail(ResultFailed, err)
	}
	if rows == 0 {
		return fail(ResultAlreadyClaimed, nil)
	}

	msg := tmpl.Render(request.Email, request.MovieName, request.Location, date)
	err = e.sender.Send(ctx, msg.To, msg.Subject, msg.Body)
	if errors.Is(err, delivery.ErrQuotaExceeded) {
		e.tel.ReportDebug("alert dropped, request stays active", request.ID)
		return fail(ResultDropped, err)
	}
	if err != nil {
		e.tel.ReportWarning(report_engine_notify, err, request.ID)
		return fail(ResultFailed, err)
	}

	err = commit()
	if err != nil {
		// the alert went out but the request is still active, it may be sent again
		e.tel.ReportBroken(report_engine_commit, err, request.ID)
		return fail(ResultFailed, err)
	}

	e.tel.ReportDebug("request notified", request.ID, request.Email, record.Source, record.TheaterName)
	outcome.Request.Status = db.StatusNotified
	outcome.Result = ResultNotified
	return outcome
}

// ExpireOverdue moves every Active request whose end date is before asOf's date to
// Expired and returns how many were moved.
func (e Engine) ExpireOverdue(ctx context.Context, asOf time.Time) (int, error) {
	ctx, span := tracer.Start(ctx, "ExpireOverdue")
	defer span.End()

	date := db.FormatDate(chrono.Date(asOf, e.time.Location()))

	tx, discard, commit, err := e.makeTx(ctx)
	if err != nil {
		e.tel.ReportBroken(report_db_query, fmt.Errorf("make tx: %w", err))
		return 0, err
	}
	defer discard()

	overdue, err := tx.FindExpired(ctx, date)
	if err != nil {
		e.tel.ReportBroken(report_db_query, err, "FindExpired", date)
		return 0, err
	}

	now := e.time.Now().Unix()
	expired := 0
	for _, request := range overdue {
		rows, err := tx.TransitionStatus(ctx, db.TransitionStatusParams{
			ID:         request.ID,
			FromStatus: db.StatusActive,
			ToStatus:   db.StatusExpired,
			UpdatedAt:  now,
		})
		if err != nil {
			e.tel.ReportBroken(report_db_query, err, "TransitionStatus", request.ID)
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to expire request")
			return 0, err
		}
		expired += int(rows)
	}

	err = commit()
	if err != nil {
		e.tel.ReportBroken(report_engine_expire, err)
		return 0, err
	}
	span.SetAttributes(attribute.Int("expired", expired))
	e.tel.ReportDebug("expired overdue requests", date, expired)
	return expired, nil
}

// TriggerRelease matches a synthetic record for movie in location on date's calendar day.
func (e Engine) TriggerRelease(ctx context.Context, movie, location string, date time.Time) []Outcome {
	now := e.time.Now()
	record := scraper.ShowRecord{
		MovieName:  strings.TrimSpace(movie),
		Location:   strings.TrimSpace(location),
		ShowTime:   chrono.Date(date, e.time.Location()),
		TimeSource: scraper.TimeParsed,
		PriceRange: scraper.PriceUnknown,
		Source:     SimulatedSource,
		Available:  true,
		CapturedAt: now,
	}
	return e.Match(ctx, []scraper.ShowRecord{record})
}
