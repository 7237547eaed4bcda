package cmd

import (
	"notifyme-backend/internal/scraper"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var scrapeSite string

func init() {
	scrapeCmd.Flags().StringVar(&scrapeSite, "site", "", "Only scrape this site (bookmyshow, pvr).")
	rootCmd.AddCommand(scrapeCmd)
	rootCmd.AddCommand(passCmd)
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape <movie> <location>",
	Short: "Scrapes the configured sites for one movie and prints what was found.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		var records []scraper.ShowRecord
		if scrapeSite != "" {
			records, err = a.service.ScrapeSite(cmd.Context(), scrapeSite, args[0], args[1])
		} else {
			records, err = a.service.ScrapeNow(cmd.Context(), args[0], args[1])
		}
		if err != nil {
			return err
		}
		renderRecords(records)
		return nil
	},
}

var passCmd = &cobra.Command{
	Use:   "pass",
	Short: "Runs one scheduled pass over the configured watchlist and matches the results.",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		summary, err := a.service.RunPass(cmd.Context())
		if err != nil {
			return err
		}
		t := newTable()
		t.AppendHeader(table.Row{"Run", "Pairs", "Records", "Notified", "Dropped", "Failed"})
		t.AppendRow(table.Row{summary.RunID, summary.Pairs, summary.Records, summary.Notified, summary.Dropped, summary.Failed})
		t.Render()
		return nil
	},
}
