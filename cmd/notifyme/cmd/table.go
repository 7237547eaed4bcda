package cmd

import (
	"notifyme-backend/internal/db"
	"notifyme-backend/internal/matching"
	"notifyme-backend/internal/scraper"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
)

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}

func renderRequests(requests []db.NotificationRequest, loc *time.Location) {
	t := newTable()
	t.AppendHeader(table.Row{"ID", "Email", "Movie", "Location", "From", "To", "Status", "Created"})
	for _, req := range requests {
		t.AppendRow(table.Row{
			req.ID,
			req.Email,
			req.MovieName,
			req.Location,
			req.StartDate,
			req.EndDate,
			req.Status,
			time.Unix(req.CreatedAt, 0).In(loc).Format(time.DateTime),
		})
	}
	t.Render()
}

func renderRecords(records []scraper.ShowRecord) {
	t := newTable()
	t.AppendHeader(table.Row{"Source", "Theater", "Show time", "Price", "Available", "Booking"})
	for _, r := range records {
		showTime := r.ShowTime.Format("Mon 02 Jan 15:04")
		if r.TimeSource == scraper.TimeFromCapture {
			showTime += " (captured)"
		}
		t.AppendRow(table.Row{
			r.Source,
			r.TheaterName,
			showTime,
			r.PriceRange,
			r.Available,
			r.BookingURL,
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "Total", len(records)})
	t.Render()
}

func renderOutcomes(outcomes []matching.Outcome) {
	t := newTable()
	t.AppendHeader(table.Row{"Request", "Email", "Result", "Error"})
	for _, o := range outcomes {
		errText := ""
		if o.Err != nil {
			errText = o.Err.Error()
		}
		t.AppendRow(table.Row{o.Request.ID, o.Request.Email, o.Result.String(), errText})
	}
	t.Render()
}
