package cmd

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"notifyme-backend/internal/components/chrono"
	"notifyme-backend/internal/httpapi"
	"notifyme-backend/lib/telemetry"
	"notifyme-backend/lib/util/serviceutil"

	"github.com/spf13/cobra"
)

var initialPass bool

func init() {
	serveCmd.Flags().BoolVar(&initialPass, "scrape", false, "Run a scrape pass immediately instead of waiting for the schedule.")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Runs the scheduled passes and the http api.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := serviceutil.SignalContext()

		otel, err := telemetry.SetupFromEnv(ctx, "notifyme")
		if errors.Is(err, fs.ErrNotExist) {
			slog.Info("telemetry.json5 not found, traces and metrics are disabled")
		} else if err != nil {
			serviceutil.Fatal("setup telemetry", err)
		}
		defer func() {
			err := otel.Shutdown(context.Background())
			if err != nil {
				slog.Warn("telemetry shutdown", "err", err)
			}
		}()
		telemetry.InstrumentPerfStats(ctx)

		a, err := newApp(cfg)
		if err != nil {
			serviceutil.Fatal("init", err)
		}
		defer a.Close()

		expired, err := a.service.ExpireOverdue(ctx)
		if err != nil {
			slog.Warn("startup expiry sweep failed", "err", err)
		} else {
			slog.Info("startup expiry sweep", "expired", expired)
		}

		cron := chrono.NewStandardCron(a.clock, a.tel)
		err = a.service.Register(ctx, cron, cfg.Scraper.Schedule())
		if err != nil {
			serviceutil.Fatal("schedule", err)
		}
		cron.Start(ctx)

		if initialPass {
			go func() {
				_, _ = a.service.RunPass(ctx)
			}()
		}

		e := httpapi.New(a.service, a.clock, a.tel, httpapi.Options{
			AccessToken:         cfg.Http.AccessToken,
			ExposeTestEndpoints: cfg.Http.ExposeTestEndpoints,
		})
		return serviceutil.StartHttpServer(ctx, cfg.Http.Port, e)
	},
}
