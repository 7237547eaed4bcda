package httpapi

import (
	"context"
	"errors"
	"net/http"
	"notifyme-backend/internal/application/service"
	"notifyme-backend/internal/components/assert"
	"notifyme-backend/internal/components/chrono"
	"notifyme-backend/internal/components/telemetry"
	"notifyme-backend/internal/db"
	"notifyme-backend/internal/matching"
	"notifyme-backend/internal/scraper"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
)

const report_unhandled = "unhandled"

// API is the part of the service exposed over HTTP.
//
// note: fault injection point
type API interface {
	RegisterRequest(ctx context.Context, params service.RegisterParams) (db.NotificationRequest, error)
	ListRequests(ctx context.Context, email string) ([]db.NotificationRequest, error)
	CancelRequest(ctx context.Context, id int64, email string) (db.NotificationRequest, error)
	TriggerRelease(ctx context.Context, movie, location string, date time.Time) ([]matching.Outcome, error)
	ScrapeNow(ctx context.Context, movie, location string) ([]scraper.ShowRecord, error)
	ScrapeSite(ctx context.Context, site, movie, location string) ([]scraper.ShowRecord, error)
}

type Options struct {
	// AccessToken, when set, is required as a bearer token on every route but /healthz.
	AccessToken string
	// ExposeTestEndpoints mounts the simulate-release and scrape routes.
	ExposeTestEndpoints bool
}

type server struct {
	api  API
	time chrono.TimeAPI
	tel  telemetry.API
}

// New builds the echo instance serving api.
func New(api API, time chrono.TimeAPI, tel telemetry.API, options Options) *echo.Echo {
	assert.NotNil(api)
	assert.NotNil(time)
	assert.NotNil(tel)

	s := server{
		api:  api,
		time: time,
		tel:  telemetry.NewScopedAPI("http", tel),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError

	if options.AccessToken != "" {
		e.Use(bearerAuth(options.AccessToken, "/healthz"))
	}

	e.GET("/healthz", health)

	v1 := e.Group("/v1/notifications")
	v1.POST("/register", s.register)
	v1.GET("/:email", s.list)
	v1.DELETE("/:id", s.cancel)

	if options.ExposeTestEndpoints {
		e.POST("/test/simulate-release", s.simulateRelease)
		e.POST("/test/scrape", s.scrape)
		e.GET("/api/scraping/:site", s.scrapeSite)
	}

	return e
}

func health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func (s server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "internal error"

	var validation *service.ValidationError
	var httpErr *echo.HTTPError
	switch {
	case errors.As(err, &validation):
		status = http.StatusBadRequest
		message = validation.Message
	case errors.Is(err, service.ErrNotFound), errors.Is(err, scraper.ErrUnknownSite):
		status = http.StatusNotFound
		message = err.Error()
	case errors.Is(err, service.ErrNotCancellable), errors.Is(err, service.ErrPassInFlight):
		status = http.StatusConflict
		message = err.Error()
	case errors.As(err, &httpErr):
		status = httpErr.Code
		message = http.StatusText(status)
		if m, ok := httpErr.Message.(string); ok {
			message = m
		}
	default:
		s.tel.ReportBroken(report_unhandled, err, c.Request().Method, c.Path())
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, errorJSON{Error: message})
	}
	if err != nil {
		s.tel.ReportWarning(report_unhandled, err)
	}
}

func (s server) parseDate(value, field string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	date, err := db.ParseDate(value, s.time.Location())
	if err != nil {
		return time.Time{}, &service.ValidationError{
			Message: "Invalid " + field + ", expected YYYY-MM-DD",
		}
	}
	return date, nil
}

func (s server) register(c echo.Context) error {
	var body registerBody
	if err := c.Bind(&body); err != nil {
		return &service.ValidationError{Message: "Malformed request body"}
	}

	start, err := s.parseDate(body.StartDate, "start date")
	if err != nil {
		return err
	}
	end, err := s.parseDate(body.EndDate, "end date")
	if err != nil {
		return err
	}

	req, err := s.api.RegisterRequest(c.Request().Context(), service.RegisterParams{
		Email:     body.Email,
		MovieName: body.MovieName,
		Location:  body.Location,
		StartDate: start,
		EndDate:   end,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toNotificationJSON(req, s.time.Location()))
}

func (s server) list(c echo.Context) error {
	requests, err := s.api.ListRequests(c.Request().Context(), c.Param("email"))
	if err != nil {
		return err
	}
	out := make([]notificationJSON, 0, len(requests))
	for _, req := range requests {
		out = append(out, toNotificationJSON(req, s.time.Location()))
	}
	return c.JSON(http.StatusOK, out)
}

func (s server) cancel(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return &service.ValidationError{Message: "Invalid request id"}
	}
	email := c.QueryParam("email")
	if email == "" {
		return &service.ValidationError{Message: "Email is required"}
	}
	req, err := s.api.CancelRequest(c.Request().Context(), id, email)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toNotificationJSON(req, s.time.Location()))
}

func (s server) simulateRelease(c echo.Context) error {
	movie := c.QueryParam("movieName")
	location := c.QueryParam("location")
	date, err := s.parseDate(c.QueryParam("releaseDate"), "release date")
	if err != nil {
		return err
	}
	outcomes, err := s.api.TriggerRelease(c.Request().Context(), movie, location, date)
	if err != nil {
		return err
	}
	if date.IsZero() {
		date = chrono.Today(s.time)
	}
	return c.JSON(http.StatusOK, releaseJSON{
		MovieName:   movie,
		Location:    location,
		ReleaseDate: db.FormatDate(date),
		Outcomes:    toOutcomesJSON(outcomes),
	})
}

func (s server) scrape(c echo.Context) error {
	records, err := s.api.ScrapeNow(
		c.Request().Context(),
		c.QueryParam("movieName"),
		c.QueryParam("location"),
	)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toShowJSON(records))
}

func (s server) scrapeSite(c echo.Context) error {
	records, err := s.api.ScrapeSite(
		c.Request().Context(),
		c.Param("site"),
		c.QueryParam("movieName"),
		c.QueryParam("location"),
	)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toShowJSON(records))
}
