package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func write(t testing.TB, path, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
}

func TestDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "notifyme.json5"))
	require.NoError(t, err)

	require.Equal(t, "Asia/Kolkata", cfg.Timezone)
	require.Equal(t, "notifyme.db", cfg.Database.File)
	require.Equal(t, DriverChromedp, cfg.Browser.Driver)
	require.True(t, cfg.Browser.Chromedp().Headless)
	require.Equal(t, 10*time.Second, cfg.Browser.ElementWait())
	require.Equal(t, 1920, cfg.Browser.WindowWidth)
	require.Equal(t, []string{"bookmyshow", "pvr"}, cfg.Scraper.Sites)
	require.Equal(t, []string{}, cfg.Scraper.Movies)
	require.Equal(t, 2000, cfg.Scraper.ScrapeDelayMs)
	require.Equal(t, 5000, cfg.Scraper.InterSiteDelayMs)
	require.Equal(t, "0 */3 * * * *", cfg.Scraper.Schedule().Pass)
	require.Equal(t, TransportLog, cfg.Mail.Transport)
	require.Equal(t, 50, cfg.Mail.Limit())
	require.Equal(t, 3, cfg.Mail.Delivery().Attempts)
	require.Equal(t, time.Second, cfg.Mail.Delivery().Backoff)
	require.Equal(t, 30*time.Second, cfg.Mail.Delivery().AttemptTimeout)
	require.Equal(t, 8080, cfg.Http.Port)
	require.False(t, cfg.Http.ExposeTestEndpoints)
}

func TestLoadFileOverridesAndSecrets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notifyme.json5")
	write(t, path, `{
		timezone: "Asia/Kolkata",
		browser: { driver: "http", headless: false },
		scraper: { movies: ["Dune"], locations: ["Chennai", "Mumbai"] },
		mail: {
			smtp: { server: "smtp.example.com", port: 587, email_address: "bot@example.com" },
			hourly_limit: 0,
			retry_backoff_ms: 0,
			send_timeout_ms: 5000,
		},
		http: { port: 9000, expose_test_endpoints: true },
	}`)
	write(t, filepath.Join(dir, "notifyme.local.json5"), `{http: {port: 9100}}`)
	envFile := filepath.Join(dir, ".env")
	write(t, envFile, "SMTP_PASSWORD=hunter2\nACCESS_TOKEN=secret\n")
	// the test environment may carry these already
	t.Setenv(EnvSmtpPassword, "hunter2")
	t.Setenv(EnvAccessToken, "secret")

	cfg, err := Load(path, envFile)
	require.NoError(t, err)

	require.Equal(t, DriverHttp, cfg.Browser.Driver)
	require.False(t, cfg.Browser.Chromedp().Headless)
	require.Equal(t, TransportSmtp, cfg.Mail.Transport)
	require.Equal(t, "hunter2", cfg.Mail.Smtp.Password)
	require.Equal(t, "secret", cfg.Http.AccessToken)
	// explicit zeros are kept
	require.Equal(t, 0, cfg.Mail.Limit())
	require.Equal(t, time.Duration(0), cfg.Mail.Delivery().Backoff)
	require.Equal(t, 5*time.Second, cfg.Mail.Delivery().AttemptTimeout)
	require.Equal(t, 9100, cfg.Http.Port)
	require.True(t, cfg.Http.ExposeTestEndpoints)
	require.Equal(t, []string{"Chennai", "Mumbai"}, cfg.Scraper.Watchlist().Locations)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name     string
		contents string
	}{
		{name: "driver", contents: `{browser: {driver: "firefox"}}`},
		{name: "transport", contents: `{mail: {transport: "pigeon"}}`},
		{name: "smtp without server", contents: `{mail: {transport: "smtp"}}`},
		{name: "relay without url", contents: `{mail: {transport: "http"}}`},
		{name: "negative limit", contents: `{mail: {hourly_limit: -1}}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "notifyme.json5")
			write(t, path, tc.contents)
			_, err := Load(path)
			require.Error(t, err)
		})
	}
}
