// Package config is the notifyme.json5 configuration file together with its secrets.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"notifyme-backend/internal/application/service"
	"notifyme-backend/internal/browser/chromedpsession"
	"notifyme-backend/internal/db"
	"notifyme-backend/internal/delivery"
	"notifyme-backend/lib/configutil"
	"time"
)

const (
	DriverChromedp = "chromedp"
	DriverHttp     = "http"

	TransportSmtp = "smtp"
	TransportHttp = "http"
	TransportLog  = "log"
)

type BrowserConfig struct {
	// Driver is "chromedp" for a real browser or "http" for plain page fetches.
	Driver             string `json:"driver"`
	Headless           *bool  `json:"headless"`
	UserAgent          string `json:"user_agent"`
	WindowWidth        int    `json:"window_width"`
	WindowHeight       int    `json:"window_height"`
	ExecPath           string `json:"exec_path"`
	ElementWaitSeconds int    `json:"element_wait_seconds"`
	// DumpDir, when set, receives every page fetched by the http driver.
	DumpDir string `json:"dump_dir"`
}

func (c BrowserConfig) Chromedp() chromedpsession.Options {
	return chromedpsession.Options{
		Headless:     c.Headless == nil || *c.Headless,
		UserAgent:    c.UserAgent,
		WindowWidth:  c.WindowWidth,
		WindowHeight: c.WindowHeight,
		ExecPath:     c.ExecPath,
	}
}

func (c BrowserConfig) ElementWait() time.Duration {
	return time.Duration(c.ElementWaitSeconds) * time.Second
}

type ScraperConfig struct {
	Sites []string `json:"sites"`
	// Movies and Locations span the scheduled pass, every movie is scraped in every
	// location.
	Movies           []string `json:"movies"`
	Locations        []string `json:"locations"`
	ScrapeDelayMs    int      `json:"scrape_delay_ms"`
	InterSiteDelayMs int      `json:"inter_site_delay_ms"`
	PassCron         string   `json:"pass_cron"`
	ResetCron        string   `json:"reset_cron"`
	ExpireCron       string   `json:"expire_cron"`
}

func (c ScraperConfig) Schedule() service.Schedule {
	return service.Schedule{
		Pass:   c.PassCron,
		Reset:  c.ResetCron,
		Expire: c.ExpireCron,
	}
}

func (c ScraperConfig) Watchlist() service.Watchlist {
	return service.Watchlist{
		Movies:    c.Movies,
		Locations: c.Locations,
	}
}

type MailConfig struct {
	// Transport is one of "smtp", "http" or "log".
	Transport      string `json:"transport"`
	HourlyLimit    *int   `json:"hourly_limit"`
	RetryAttempts  int    `json:"retry_attempts"`
	RetryBackoffMs *int   `json:"retry_backoff_ms"`
	// SendTimeoutMs bounds each delivery attempt, including the smtp conversation.
	SendTimeoutMs int                  `json:"send_timeout_ms"`
	Smtp          delivery.SmtpConfig  `json:"smtp"`
	Relay         delivery.RelayConfig `json:"relay"`
}

func (c MailConfig) Limit() int {
	if c.HourlyLimit == nil {
		return 0
	}
	return *c.HourlyLimit
}

func (c MailConfig) Delivery() delivery.Options {
	backoff := delivery.DefaultOptions.Backoff
	if c.RetryBackoffMs != nil {
		backoff = time.Duration(*c.RetryBackoffMs) * time.Millisecond
	}
	return delivery.Options{
		Attempts:       c.RetryAttempts,
		Backoff:        backoff,
		AttemptTimeout: time.Duration(c.SendTimeoutMs) * time.Millisecond,
	}
}

type HttpConfig struct {
	Port int `json:"port"`
	// an access token that must be provided in the `Authorization` header in the format
	// of `Authorization=Bearer <access token>`
	// if this value not specified, authorization will be skipped
	AccessToken         string `json:"access_token"`
	ExposeTestEndpoints bool   `json:"expose_test_endpoints"`
}

type Config struct {
	Timezone string        `json:"timezone"`
	Database db.Config     `json:"database"`
	Browser  BrowserConfig `json:"browser"`
	Scraper  ScraperConfig `json:"scraper"`
	Mail     MailConfig    `json:"mail"`
	Http     HttpConfig    `json:"http"`
}

func intPtr(v int) *int {
	return &v
}

func (c Config) withDefaults() Config {
	if c.Timezone == "" {
		c.Timezone = "Asia/Kolkata"
	}
	if c.Database.File == "" && c.Database.Url == "" {
		c.Database.File = "notifyme.db"
	}

	if c.Browser.Driver == "" {
		c.Browser.Driver = DriverChromedp
	}
	if c.Browser.UserAgent == "" {
		c.Browser.UserAgent = chromedpsession.DefaultUserAgent
	}
	if c.Browser.WindowWidth <= 0 {
		c.Browser.WindowWidth = chromedpsession.DefaultWindowWidth
	}
	if c.Browser.WindowHeight <= 0 {
		c.Browser.WindowHeight = chromedpsession.DefaultWindowHeight
	}
	if c.Browser.ElementWaitSeconds <= 0 {
		c.Browser.ElementWaitSeconds = 10
	}

	if len(c.Scraper.Sites) == 0 {
		c.Scraper.Sites = []string{"bookmyshow", "pvr"}
	}
	if c.Scraper.Movies == nil {
		c.Scraper.Movies = []string{}
	}
	if c.Scraper.Locations == nil {
		c.Scraper.Locations = []string{}
	}
	if c.Scraper.ScrapeDelayMs <= 0 {
		c.Scraper.ScrapeDelayMs = 2000
	}
	if c.Scraper.InterSiteDelayMs <= 0 {
		c.Scraper.InterSiteDelayMs = 5000
	}
	if c.Scraper.PassCron == "" {
		c.Scraper.PassCron = service.DefaultSchedule.Pass
	}
	if c.Scraper.ResetCron == "" {
		c.Scraper.ResetCron = service.DefaultSchedule.Reset
	}
	if c.Scraper.ExpireCron == "" {
		c.Scraper.ExpireCron = service.DefaultSchedule.Expire
	}

	if c.Mail.Transport == "" {
		switch {
		case c.Mail.Smtp.Server != "":
			c.Mail.Transport = TransportSmtp
		case c.Mail.Relay.Url != "":
			c.Mail.Transport = TransportHttp
		default:
			c.Mail.Transport = TransportLog
		}
	}
	if c.Mail.HourlyLimit == nil {
		c.Mail.HourlyLimit = intPtr(50)
	}
	if c.Mail.RetryAttempts <= 0 {
		c.Mail.RetryAttempts = delivery.DefaultOptions.Attempts
	}
	if c.Mail.RetryBackoffMs == nil {
		c.Mail.RetryBackoffMs = intPtr(int(delivery.DefaultOptions.Backoff / time.Millisecond))
	}
	if c.Mail.SendTimeoutMs <= 0 {
		c.Mail.SendTimeoutMs = int(delivery.DefaultOptions.AttemptTimeout / time.Millisecond)
	}

	if c.Http.Port <= 0 {
		c.Http.Port = 8080
	}
	return c
}

func (c Config) validate() error {
	switch c.Browser.Driver {
	case DriverChromedp, DriverHttp:
	default:
		return fmt.Errorf("browser.driver: unknown driver '%s'", c.Browser.Driver)
	}
	switch c.Mail.Transport {
	case TransportSmtp:
		if c.Mail.Smtp.Server == "" || c.Mail.Smtp.EmailAddress == "" {
			return fmt.Errorf("mail.smtp: server and email_address are required for the smtp transport")
		}
	case TransportHttp:
		if c.Mail.Relay.Url == "" {
			return fmt.Errorf("mail.relay: url is required for the http transport")
		}
	case TransportLog:
	default:
		return fmt.Errorf("mail.transport: unknown transport '%s'", c.Mail.Transport)
	}
	if c.Mail.Limit() < 0 {
		return fmt.Errorf("mail.hourly_limit: must not be negative")
	}
	return nil
}

// secrets that may be kept out of the config file
const (
	EnvSmtpPassword   = "SMTP_PASSWORD"
	EnvAccessToken    = "ACCESS_TOKEN"
	EnvLibsqlToken    = "LIBSQL_AUTH_TOKEN"
	EnvRelayToken     = "MAIL_RELAY_TOKEN"
	DefaultConfigFile = "notifyme.json5"
)

func (c *Config) applySecrets(secrets map[string]string) {
	set := func(target *string, key string) {
		if v := configutil.Secret(secrets, key); v != "" {
			*target = v
		}
	}
	set(&c.Mail.Smtp.Password, EnvSmtpPassword)
	set(&c.Http.AccessToken, EnvAccessToken)
	set(&c.Database.AuthToken, EnvLibsqlToken)
	set(&c.Mail.Relay.Token, EnvRelayToken)
}

// Load reads path (and its .local override) then applies secrets from envFiles and the
// environment. A missing config file is not an error, every option has a default.
func Load(path string, envFiles ...string) (Config, error) {
	cfg, err := configutil.ReadConfig[Config](path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Warn("config file not found, using defaults", "path", path)
		cfg = Config{}
	} else if err != nil {
		return Config{}, fmt.Errorf("read config '%s': %w", path, err)
	}

	secrets, err := configutil.Secrets(envFiles...)
	if err != nil {
		return Config{}, fmt.Errorf("read secrets: %w", err)
	}
	cfg.applySecrets(secrets)

	cfg = cfg.withDefaults()
	err = cfg.validate()
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}
