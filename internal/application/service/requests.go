package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"notifyme-backend/internal/components/chrono"
	"notifyme-backend/internal/db"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ValidationError is a rejected input, Message is meant for the end user.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(message string) error {
	return &ValidationError{Message: message}
}

// this removes potential formatting inconsistencies from user input (extra spaces,
// capitalization)
func normalizeEmail(email string) string {
	return strings.Trim(strings.ToLower(email), " \t\n")
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email && strings.Contains(email[strings.LastIndex(email, "@"):], ".")
}

type RegisterParams struct {
	Email     string
	MovieName string
	Location  string
	// StartDate and EndDate are calendar dates, their time of day is ignored.
	StartDate time.Time
	EndDate   time.Time
}

// RegisterRequest validates and stores a new Active request.
func (s Service) RegisterRequest(ctx context.Context, params RegisterParams) (db.NotificationRequest, error) {
	ctx, span := tracer.Start(ctx, "RegisterRequest")
	defer span.End()

	email := normalizeEmail(params.Email)
	movie := strings.TrimSpace(params.MovieName)
	location := strings.TrimSpace(params.Location)

	switch {
	case email == "":
		return db.NotificationRequest{}, invalid("Email is required")
	case !validEmail(email):
		return db.NotificationRequest{}, invalid("Invalid email format")
	case movie == "":
		return db.NotificationRequest{}, invalid("Movie name is required")
	case location == "":
		return db.NotificationRequest{}, invalid("Location is required")
	case params.StartDate.IsZero():
		return db.NotificationRequest{}, invalid("Start date is required")
	case params.EndDate.IsZero():
		return db.NotificationRequest{}, invalid("End date is required")
	}

	loc := s.time.Location()
	start := chrono.Date(params.StartDate, loc)
	end := chrono.Date(params.EndDate, loc)
	if start.After(end) {
		return db.NotificationRequest{}, invalid("Start date must be before or equal to end date")
	}
	if start.Before(chrono.Today(s.time)) {
		return db.NotificationRequest{}, invalid("Start date cannot be in the past")
	}

	now := s.time.Now().Unix()
	req, err := s.qry.CreateRequest(ctx, db.CreateRequestParams{
		Email:     email,
		MovieName: movie,
		Location:  location,
		StartDate: db.FormatDate(start),
		EndDate:   db.FormatDate(end),
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "CreateRequest", email)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create request")
		return db.NotificationRequest{}, err
	}

	span.SetAttributes(attribute.Int64("request", req.ID))
	s.tel.ReportDebug("registered request", req.ID, email, movie, location, req.StartDate, req.EndDate)
	return req, nil
}

// ListRequests returns every request of email, most recent first.
func (s Service) ListRequests(ctx context.Context, email string) ([]db.NotificationRequest, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, invalid("Email is required")
	}
	requests, err := s.qry.FindByEmail(ctx, email)
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "FindByEmail", email)
		return nil, err
	}
	if requests == nil {
		requests = []db.NotificationRequest{}
	}
	return requests, nil
}

// CancelRequest moves an Active request owned by email to Cancelled.
func (s Service) CancelRequest(ctx context.Context, id int64, email string) (db.NotificationRequest, error) {
	ctx, span := tracer.Start(ctx, "CancelRequest", trace.WithAttributes(attribute.Int64("request", id)))
	defer span.End()

	email = normalizeEmail(email)

	tx, discard, commit, err := s.makeTx(ctx)
	if err != nil {
		s.tel.ReportBroken(report_db_query, fmt.Errorf("make tx: %w", err))
		return db.NotificationRequest{}, err
	}
	defer discard()

	req, err := tx.GetRequest(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return db.NotificationRequest{}, ErrNotFound
	}
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "GetRequest", id)
		return db.NotificationRequest{}, err
	}
	// someone else's request reads the same as a missing one
	if req.Email != email {
		return db.NotificationRequest{}, ErrNotFound
	}
	if req.Status.Terminal() {
		return db.NotificationRequest{}, ErrNotCancellable
	}

	now := s.time.Now().Unix()
	rows, err := tx.TransitionStatus(ctx, db.TransitionStatusParams{
		ID:         id,
		FromStatus: db.StatusActive,
		ToStatus:   db.StatusCancelled,
		UpdatedAt:  now,
	})
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "TransitionStatus", id)
		return db.NotificationRequest{}, err
	}
	if rows == 0 {
		return db.NotificationRequest{}, ErrNotCancellable
	}

	err = commit()
	if err != nil {
		s.tel.ReportBroken(report_db_query, fmt.Errorf("commit: %w", err))
		return db.NotificationRequest{}, err
	}

	req.Status = db.StatusCancelled
	req.UpdatedAt = now
	return req, nil
}
