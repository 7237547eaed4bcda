package cmd

import (
	"database/sql"
	"fmt"
	"log/slog"
	"notifyme-backend/internal/application/service"
	"notifyme-backend/internal/browser"
	"notifyme-backend/internal/browser/chromedpsession"
	"notifyme-backend/internal/browser/htmlsession"
	"notifyme-backend/internal/components/chrono"
	"notifyme-backend/internal/components/telemetry"
	"notifyme-backend/internal/config"
	"notifyme-backend/internal/db"
	"notifyme-backend/internal/delivery"
	"notifyme-backend/internal/matching"
	"notifyme-backend/internal/scraper"
	"notifyme-backend/lib/util/fsdump"
	"time"
)

// app is every component wired together from cfg.
type app struct {
	sqldb   *sql.DB
	clock   chrono.StandardTime
	tel     telemetry.API
	service service.Service
}

func (a app) Close() {
	err := a.sqldb.Close()
	if err != nil {
		slog.Warn("failed to close database", "err", err)
	}
}

func newSessionFactory(cfg config.BrowserConfig, tel telemetry.API) (browser.Factory, error) {
	if cfg.Driver == config.DriverChromedp {
		return chromedpsession.NewFactory(cfg.Chromedp()), nil
	}

	fetcher, err := htmlsession.NewHttpFetcher(cfg.UserAgent, tel)
	if err != nil {
		return nil, err
	}
	if cfg.DumpDir != "" {
		dump, err := fsdump.New(cfg.DumpDir)
		if err != nil {
			return nil, fmt.Errorf("page dump: %w", err)
		}
		slog.Info("dumping fetched pages", "dir", dump.Path())
		fetcher = fetcher.WithDump(dump)
	}
	return htmlsession.NewFactory(fetcher), nil
}

func newTransport(cfg config.MailConfig, tel telemetry.API) delivery.Transport {
	switch cfg.Transport {
	case config.TransportSmtp:
		return delivery.NewSmtpTransport(cfg.Smtp)
	case config.TransportHttp:
		return delivery.NewRelayTransport(cfg.Relay, tel)
	default:
		slog.Warn("mail transport is 'log', alerts will only be logged")
		return delivery.NewLogTransport(tel)
	}
}

func newApp(cfg config.Config) (app, error) {
	clock, err := chrono.NewStandardTime(cfg.Timezone)
	if err != nil {
		return app{}, fmt.Errorf("timezone: %w", err)
	}
	tel := telemetry.NewSlogAPI(nil)

	sites, err := scraper.Profiles(cfg.Scraper.Sites)
	if err != nil {
		return app{}, fmt.Errorf("scraper.sites: %w", err)
	}
	newSession, err := newSessionFactory(cfg.Browser, tel)
	if err != nil {
		return app{}, fmt.Errorf("browser: %w", err)
	}
	orchestrator := scraper.NewOrchestrator(
		newSession,
		scraper.Options{
			Sites:          sites,
			ElementWait:    cfg.Browser.ElementWait(),
			InterPairDelay: time.Duration(cfg.Scraper.ScrapeDelayMs) * time.Millisecond,
			InterSiteDelay: time.Duration(cfg.Scraper.InterSiteDelayMs) * time.Millisecond,
		},
		clock,
		clock,
		tel,
	)

	sqldb, err := db.Open(cfg.Database)
	if err != nil {
		return app{}, err
	}
	qry := db.New(sqldb)
	makeTx := db.NewMakeTx(sqldb)

	limiter := delivery.NewRateLimiter(cfg.Mail.Limit())
	channel := delivery.NewChannel(
		newTransport(cfg.Mail, tel),
		limiter,
		cfg.Mail.Delivery(),
		clock,
		tel,
	)
	engine := matching.NewEngine(qry, makeTx, channel, clock, tel)

	svc := service.NewService(
		qry,
		makeTx,
		orchestrator,
		engine,
		limiter,
		clock,
		tel,
		cfg.Scraper.Watchlist(),
	)

	return app{
		sqldb:   sqldb,
		clock:   clock,
		tel:     tel,
		service: svc,
	}, nil
}
