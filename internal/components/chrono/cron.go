package chrono

import (
	"context"
	"fmt"
	"notifyme-backend/internal/components/telemetry"

	"github.com/robfig/cron/v3"
)

// CronAPI is the interface that anything depending on things to happen on a cron job should use.
type CronAPI interface {
	Cron(spec string, callback func()) error
}

// StandardCron is the standard implementation of CronAPI using `github.com/robfig/cron/v3`
// with a seconds field, so specs look like `0 */3 * * * *`.
type StandardCron struct {
	cron *cron.Cron
}

// NewStandardCron is the constructor of StandardCron, jobs that are still running when
// the next tick arrives are skipped rather than run concurrently.
func NewStandardCron(time TimeAPI, tel telemetry.API) StandardCron {
	logger := cronLogger{tel: telemetry.NewScopedAPI("cron", tel)}
	cronner := cron.New(
		cron.WithSeconds(),
		cron.WithLogger(logger),
		cron.WithLocation(time.Location()),
		cron.WithChain(cron.SkipIfStillRunning(logger)),
	)
	return StandardCron{
		cron: cronner,
	}
}

func (s StandardCron) Cron(spec string, callback func()) error {
	_, err := s.cron.AddFunc(spec, callback)
	return err
}

// Start runs the scheduler until ctx is done, then waits for running jobs to finish.
func (s StandardCron) Start(ctx context.Context) {
	s.cron.Start()
	go func() {
		<-ctx.Done()
		<-s.cron.Stop().Done()
	}()
}

type cronLogger struct {
	tel telemetry.API
}

func (l cronLogger) formatParams(keysAndValues []any) []any {
	params := []any{}
	for i := 0; i < len(keysAndValues)/2; i++ {
		idx := i * 2
		key := keysAndValues[idx]
		value := keysAndValues[idx+1]
		params = append(params, fmt.Sprintf("%v: %v", key, value))
	}
	return params
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.tel.ReportDebug(msg, l.formatParams(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.tel.ReportBroken(
		"job",
		fmt.Errorf("%s: %w", msg, err),
		l.formatParams(keysAndValues),
	)
}
