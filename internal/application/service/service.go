package service

import (
	"context"
	"errors"
	"notifyme-backend/internal/components/assert"
	"notifyme-backend/internal/components/chrono"
	"notifyme-backend/internal/components/telemetry"
	"notifyme-backend/internal/db"
	"notifyme-backend/internal/delivery"
	"notifyme-backend/internal/matching"
	"notifyme-backend/internal/scraper"
	"sync"

	"github.com/mazen160/go-random"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("notifyme.internal.application.service")

var (
	// ErrPassInFlight is returned when a scrape is requested while another one holds the
	// browser session.
	ErrPassInFlight = errors.New("a scrape pass is already running")
	ErrNotFound     = errors.New("notification request not found")
	// ErrNotCancellable is returned when cancelling a request that is no longer Active.
	ErrNotCancellable = errors.New("notification request is no longer active")
)

const (
	report_db_query = "db.query"
	report_pass     = "pass.run"
	report_pass_id  = "rand.run-id"
	report_outcomes = "pass.outcomes"
	report_expire   = "expire.run"
)

// RandomAPI is an abstraction over any code that potentially generates random values.
// This makes mocking/simulation testing much easier.
//
// note: fault injection point
type RandomAPI interface {
	RunID() (string, error)
}

type defaultRandomAPI struct{}

func (defaultRandomAPI) RunID() (string, error) {
	return random.String(8)
}

// Scraper is satisfied by scraper.Orchestrator.
//
// note: fault injection point
type Scraper interface {
	Run(ctx context.Context, movie, location string) []scraper.ShowRecord
	RunSite(ctx context.Context, key, movie, location string) ([]scraper.ShowRecord, error)
	Sweep(ctx context.Context, movies, locations []string, handle scraper.PairHandler)
}

// Watchlist is what a scheduled pass scrapes.
type Watchlist struct {
	Movies    []string
	Locations []string
}

// Service exposes every operation of the system, transports only translate to it.
type Service struct {
	qry       *db.Queries
	makeTx    db.MakeTx
	scraper   Scraper
	engine    matching.Engine
	limiter   *delivery.RateLimiter
	time      chrono.TimeAPI
	rand      RandomAPI
	tel       telemetry.API
	watchlist Watchlist

	// pass guards the browser session, only one scrape runs at a time.
	pass *sync.Mutex
}

type Option func(s *Service)

func WithCustomRandomAPI(rand RandomAPI) Option {
	return func(s *Service) {
		s.rand = rand
	}
}

func NewService(
	qry *db.Queries,
	makeTx db.MakeTx,
	scraper Scraper,
	engine matching.Engine,
	limiter *delivery.RateLimiter,
	time chrono.TimeAPI,
	tel telemetry.API,
	watchlist Watchlist,
	options ...Option,
) Service {
	assert.NotNil(qry)
	assert.NotNil(makeTx)
	assert.NotNil(scraper)
	assert.NotNil(limiter)
	assert.NotNil(time)
	assert.NotNil(tel)

	s := Service{
		qry:       qry,
		makeTx:    makeTx,
		scraper:   scraper,
		engine:    engine,
		limiter:   limiter,
		time:      time,
		rand:      defaultRandomAPI{},
		tel:       telemetry.NewScopedAPI("service", tel),
		watchlist: watchlist,
		pass:      &sync.Mutex{},
	}
	for _, opt := range options {
		opt(&s)
	}
	return s
}
