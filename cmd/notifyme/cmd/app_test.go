package cmd

import (
	"context"
	"net/http"
	"net/http/httptest"
	"notifyme-backend/internal/application/service"
	"notifyme-backend/internal/components/chrono"
	"notifyme-backend/internal/config"
	"notifyme-backend/internal/db"
	"notifyme-backend/internal/httpapi"
	"notifyme-backend/internal/matching"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func testConfig(t testing.TB) config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "notifyme.json5")
	require.NoError(t, os.WriteFile(path, []byte(`{
		database: { file: ":memory:" },
		browser: { driver: "http" },
		mail: { transport: "log", hourly_limit: 5 },
		scraper: { sites: ["pvr"] },
	}`), 0o600))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func TestNewAppEndToEnd(t *testing.T) {
	a, err := newApp(testConfig(t))
	require.NoError(t, err)
	defer a.Close()

	ctx := context.Background()
	today := chrono.Today(a.clock)
	req, err := a.service.RegisterRequest(ctx, service.RegisterParams{
		Email:     "Fan@Example.com ",
		MovieName: "Dune",
		Location:  "Chennai",
		StartDate: today,
		EndDate:   today,
	})
	require.NoError(t, err)
	require.Equal(t, "fan@example.com", req.Email)

	outcomes, err := a.service.TriggerRelease(ctx, "dune", "chennai", today)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	require.Equal(t, matching.ResultNotified, outcomes[0].Result)

	requests, err := a.service.ListRequests(ctx, "fan@example.com")
	require.NoError(t, err)
	require.Len(t, requests, 1)
	require.Equal(t, db.StatusNotified, requests[0].Status)

	e := httpapi.New(a.service, a.clock, a.tel, httpapi.Options{})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/notifications/fan@example.com", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"notified"`)
}

func TestNewAppRejectsUnknownSite(t *testing.T) {
	cfg := testConfig(t)
	cfg.Scraper.Sites = []string{"inox"}
	_, err := newApp(cfg)
	require.ErrorContains(t, err, "inox")
}
