package cmd

import (
	"fmt"
	"notifyme-backend/internal/application/service"
	"notifyme-backend/internal/components/chrono"
	"notifyme-backend/internal/db"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

var (
	registerEmail string
	registerStart string
	registerEnd   string
	cancelEmail   string
	releaseDate   string
)

func init() {
	registerCmd.Flags().StringVar(&registerEmail, "email", "", "Address to alert.")
	registerCmd.Flags().StringVar(&registerStart, "start", "", "First date to watch (YYYY-MM-DD), defaults to today.")
	registerCmd.Flags().StringVar(&registerEnd, "end", "", "Last date to watch (YYYY-MM-DD), defaults to the start date.")
	registerCmd.MarkFlagRequired("email")

	cancelCmd.Flags().StringVar(&cancelEmail, "email", "", "Address that owns the request.")
	cancelCmd.MarkFlagRequired("email")

	simulateCmd.Flags().StringVar(&releaseDate, "date", "", "Release date (YYYY-MM-DD), defaults to today.")

	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(expireCmd)
}

func parseDateFlag(value string, fallback time.Time, loc *time.Location) (time.Time, error) {
	if value == "" {
		return fallback, nil
	}
	date, err := db.ParseDate(value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date '%s', expected YYYY-MM-DD", value)
	}
	return date, nil
}

var registerCmd = &cobra.Command{
	Use:   "register <movie> <location>",
	Short: "Registers an alert request.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		loc := a.clock.Location()
		start, err := parseDateFlag(registerStart, chrono.Today(a.clock), loc)
		if err != nil {
			return err
		}
		end, err := parseDateFlag(registerEnd, start, loc)
		if err != nil {
			return err
		}

		req, err := a.service.RegisterRequest(cmd.Context(), service.RegisterParams{
			Email:     registerEmail,
			MovieName: args[0],
			Location:  args[1],
			StartDate: start,
			EndDate:   end,
		})
		if err != nil {
			return err
		}
		renderRequests([]db.NotificationRequest{req}, loc)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list <email>",
	Short: "Lists the requests of an email address, most recent first.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		requests, err := a.service.ListRequests(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		renderRequests(requests, a.clock.Location())
		return nil
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Cancels an active request.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid id '%s'", args[0])
		}

		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		req, err := a.service.CancelRequest(cmd.Context(), id, cancelEmail)
		if err != nil {
			return err
		}
		renderRequests([]db.NotificationRequest{req}, a.clock.Location())
		return nil
	},
}

var simulateCmd = &cobra.Command{
	Use:   "simulate-release <movie> <location>",
	Short: "Matches a made up release against the stored requests, alerting whoever matches.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		date, err := parseDateFlag(releaseDate, time.Time{}, a.clock.Location())
		if err != nil {
			return err
		}
		outcomes, err := a.service.TriggerRelease(cmd.Context(), args[0], args[1], date)
		if err != nil {
			return err
		}
		renderOutcomes(outcomes)
		return nil
	},
}

var expireCmd = &cobra.Command{
	Use:   "expire",
	Short: "Expires every active request whose end date has passed.",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		count, err := a.service.ExpireOverdue(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("expired %d request(s)\n", count)
		return nil
	},
}
