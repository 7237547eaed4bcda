package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"notifyme-backend/internal/application/service"
	"notifyme-backend/internal/components/chrono/chronotest"
	"notifyme-backend/internal/components/telemetry/telemetrytest"
	"notifyme-backend/internal/db"
	"notifyme-backend/internal/matching"
	"notifyme-backend/internal/scraper"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ist = time.FixedZone("IST", 5*60*60+30*60)

type fakeAPI struct {
	registered []service.RegisterParams
	released   []string
	scraped    []string

	registerErr error
	cancelErr   error
	scrapeErr   error
	requests    []db.NotificationRequest
	records     []scraper.ShowRecord
	outcomes    []matching.Outcome
}

func (f *fakeAPI) RegisterRequest(ctx context.Context, params service.RegisterParams) (db.NotificationRequest, error) {
	f.registered = append(f.registered, params)
	if f.registerErr != nil {
		return db.NotificationRequest{}, f.registerErr
	}
	return db.NotificationRequest{
		ID:        7,
		Email:     params.Email,
		MovieName: params.MovieName,
		Location:  params.Location,
		StartDate: db.FormatDate(params.StartDate),
		EndDate:   db.FormatDate(params.EndDate),
		Status:    db.StatusActive,
	}, nil
}

func (f *fakeAPI) ListRequests(ctx context.Context, email string) ([]db.NotificationRequest, error) {
	return f.requests, nil
}

func (f *fakeAPI) CancelRequest(ctx context.Context, id int64, email string) (db.NotificationRequest, error) {
	if f.cancelErr != nil {
		return db.NotificationRequest{}, f.cancelErr
	}
	return db.NotificationRequest{ID: id, Email: email, Status: db.StatusCancelled}, nil
}

func (f *fakeAPI) TriggerRelease(ctx context.Context, movie, location string, date time.Time) ([]matching.Outcome, error) {
	f.released = append(f.released, fmt.Sprintf("%s|%s|%s", movie, location, date.Format(time.DateOnly)))
	return f.outcomes, nil
}

func (f *fakeAPI) ScrapeNow(ctx context.Context, movie, location string) ([]scraper.ShowRecord, error) {
	f.scraped = append(f.scraped, movie+"|"+location)
	return f.records, f.scrapeErr
}

func (f *fakeAPI) ScrapeSite(ctx context.Context, site, movie, location string) ([]scraper.ShowRecord, error) {
	if site != "pvr" {
		return nil, fmt.Errorf("%w: %s", scraper.ErrUnknownSite, site)
	}
	f.scraped = append(f.scraped, site+"|"+movie+"|"+location)
	return f.records, nil
}

func setup(t testing.TB, api *fakeAPI, options Options) (*echo.Echo, *telemetrytest.Recorder) {
	t.Helper()
	clock := chronotest.NewClock(time.Date(2026, 3, 16, 9, 0, 0, 0, ist))
	tel := telemetrytest.NewRecorder()
	return New(api, clock, tel, options), tel
}

func do(e *echo.Echo, method, target, body string, header ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeError(t testing.TB, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestRegister(t *testing.T) {
	api := &fakeAPI{}
	e, _ := setup(t, api, Options{})

	rec := do(e, http.MethodPost, "/v1/notifications/register", `{
		"email": "a@x.com",
		"movieName": "Dune",
		"location": "Chennai",
		"startDate": "2026-03-16",
		"endDate": "2026-03-20"
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	require.Len(t, api.registered, 1)
	params := api.registered[0]
	assert.Equal(t, "a@x.com", params.Email)
	assert.True(t, params.StartDate.Equal(time.Date(2026, 3, 16, 0, 0, 0, 0, ist)))
	assert.True(t, params.EndDate.Equal(time.Date(2026, 3, 20, 0, 0, 0, 0, ist)))

	var out notificationJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, int64(7), out.ID)
	assert.Equal(t, "active", out.Status)
	assert.Equal(t, "2026-03-20", out.EndDate)
}

func TestRegisterRejected(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		err     error
		message string
	}{
		{
			name:    "bad date",
			body:    `{"email":"a@x.com","movieName":"Dune","location":"Chennai","startDate":"16/03/2026","endDate":"2026-03-20"}`,
			message: "Invalid start date, expected YYYY-MM-DD",
		},
		{
			name:    "malformed body",
			body:    `{"email":`,
			message: "Malformed request body",
		},
		{
			name:    "validation",
			body:    `{"email":"nope","movieName":"Dune","location":"Chennai","startDate":"2026-03-16","endDate":"2026-03-20"}`,
			err:     &service.ValidationError{Message: "Invalid email format"},
			message: "Invalid email format",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e, _ := setup(t, &fakeAPI{registerErr: tc.err}, Options{})
			rec := do(e, http.MethodPost, "/v1/notifications/register", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tc.message, decodeError(t, rec))
		})
	}
}

func TestListRequests(t *testing.T) {
	api := &fakeAPI{requests: []db.NotificationRequest{
		{ID: 2, Email: "a@x.com", Status: db.StatusActive, CreatedAt: 200},
		{ID: 1, Email: "a@x.com", Status: db.StatusNotified, CreatedAt: 100},
	}}
	e, _ := setup(t, api, Options{})

	rec := do(e, http.MethodGet, "/v1/notifications/a@x.com", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var out []notificationJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	ids := []int64{}
	for _, n := range out {
		ids = append(ids, n.ID)
	}
	if diff := cmp.Diff([]int64{2, 1}, ids); diff != "" {
		t.Fatal(diff)
	}

	empty, _ := setup(t, &fakeAPI{}, Options{})
	rec = do(empty, http.MethodGet, "/v1/notifications/b@x.com", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestCancel(t *testing.T) {
	cases := []struct {
		name   string
		target string
		err    error
		status int
	}{
		{name: "ok", target: "/v1/notifications/4?email=a@x.com", status: http.StatusOK},
		{name: "missing email", target: "/v1/notifications/4", status: http.StatusBadRequest},
		{name: "bad id", target: "/v1/notifications/four?email=a@x.com", status: http.StatusBadRequest},
		{name: "not found", target: "/v1/notifications/4?email=a@x.com", err: service.ErrNotFound, status: http.StatusNotFound},
		{name: "terminal", target: "/v1/notifications/4?email=a@x.com", err: service.ErrNotCancellable, status: http.StatusConflict},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e, _ := setup(t, &fakeAPI{cancelErr: tc.err}, Options{})
			rec := do(e, http.MethodDelete, tc.target, "")
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
		})
	}
}

func TestTestEndpointsHidden(t *testing.T) {
	e, _ := setup(t, &fakeAPI{}, Options{})
	rec := do(e, http.MethodPost, "/test/simulate-release?movieName=Dune&location=Chennai", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(e, http.MethodGet, "/api/scraping/pvr?movieName=Dune&location=Chennai", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSimulateRelease(t *testing.T) {
	api := &fakeAPI{outcomes: []matching.Outcome{{
		Request: db.NotificationRequest{ID: 3, Email: "a@x.com"},
		Result:  matching.ResultNotified,
	}}}
	e, _ := setup(t, api, Options{ExposeTestEndpoints: true})

	rec := do(e, http.MethodPost, "/test/simulate-release?movieName=Dune&location=Chennai", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out releaseJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "2026-03-16", out.ReleaseDate)
	if diff := cmp.Diff([]outcomeJSON{{RequestID: 3, Email: "a@x.com", Result: "notified"}}, out.Outcomes); diff != "" {
		t.Fatal(diff)
	}

	rec = do(e, http.MethodPost, "/test/simulate-release?movieName=Dune&location=Chennai&releaseDate=2026-03-18", "")
	require.Equal(t, http.StatusOK, rec.Code)
	if diff := cmp.Diff([]string{"Dune|Chennai|0001-01-01", "Dune|Chennai|2026-03-18"}, api.released); diff != "" {
		t.Fatal(diff)
	}
}

func TestScrape(t *testing.T) {
	shown := time.Date(2026, 3, 16, 19, 30, 0, 0, ist)
	api := &fakeAPI{records: []scraper.ShowRecord{{
		MovieName:   "Dune",
		TheaterName: "PVR Grand Galada",
		Location:    "Chennai",
		ShowTime:    shown,
		PriceRange:  scraper.PriceUnknown,
		Source:      "PVR",
		Available:   true,
		CapturedAt:  shown,
	}}}
	e, _ := setup(t, api, Options{ExposeTestEndpoints: true})

	rec := do(e, http.MethodPost, "/test/scrape?movieName=Dune&location=Chennai", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var out []showJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "parsed", out[0].TimeSource)
	assert.True(t, out[0].ShowTime.Equal(shown))

	rec = do(e, http.MethodGet, "/api/scraping/pvr?movieName=Dune&location=Chennai", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = do(e, http.MethodGet, "/api/scraping/inox?movieName=Dune&location=Chennai", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	if diff := cmp.Diff([]string{"Dune|Chennai", "pvr|Dune|Chennai"}, api.scraped); diff != "" {
		t.Fatal(diff)
	}

	busy, _ := setup(t, &fakeAPI{scrapeErr: service.ErrPassInFlight}, Options{ExposeTestEndpoints: true})
	rec = do(busy, http.MethodPost, "/test/scrape?movieName=Dune&location=Chennai", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAccessToken(t *testing.T) {
	e, _ := setup(t, &fakeAPI{}, Options{AccessToken: "secret"})

	rec := do(e, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(e, http.MethodGet, "/v1/notifications/a@x.com", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "missing bearer token", decodeError(t, rec))

	rec = do(e, http.MethodGet, "/v1/notifications/a@x.com", "", "Authorization", "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(e, http.MethodGet, "/v1/notifications/a@x.com", "", "Authorization", "Bearer secret")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUnhandledErrorReported(t *testing.T) {
	e, tel := setup(t, &fakeAPI{registerErr: fmt.Errorf("disk on fire")}, Options{})
	rec := do(e, http.MethodPost, "/v1/notifications/register", `{"email":"a@x.com","movieName":"Dune","location":"Chennai","startDate":"2026-03-16","endDate":"2026-03-20"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal error", decodeError(t, rec))
	assert.Len(t, tel.Find(telemetrytest.Broken, report_unhandled), 1)
}
