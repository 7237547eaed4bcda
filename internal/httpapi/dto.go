package httpapi

import (
	"notifyme-backend/internal/db"
	"notifyme-backend/internal/matching"
	"notifyme-backend/internal/scraper"
	"time"
)

type registerBody struct {
	Email     string `json:"email"`
	MovieName string `json:"movieName"`
	Location  string `json:"location"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

type notificationJSON struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	MovieName string    `json:"movieName"`
	Location  string    `json:"location"`
	StartDate string    `json:"startDate"`
	EndDate   string    `json:"endDate"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toNotificationJSON(req db.NotificationRequest, loc *time.Location) notificationJSON {
	return notificationJSON{
		ID:        req.ID,
		Email:     req.Email,
		MovieName: req.MovieName,
		Location:  req.Location,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		Status:    string(req.Status),
		CreatedAt: time.Unix(req.CreatedAt, 0).In(loc),
		UpdatedAt: time.Unix(req.UpdatedAt, 0).In(loc),
	}
}

type showJSON struct {
	MovieName   string    `json:"movieName"`
	TheaterName string    `json:"theaterName"`
	Location    string    `json:"location"`
	ShowTime    time.Time `json:"showTime"`
	// TimeSource is "capture-fallback" when the site's time label could not be parsed.
	TimeSource string    `json:"timeSource"`
	PriceRange string    `json:"priceRange"`
	BookingUrl string    `json:"bookingUrl"`
	Source     string    `json:"source"`
	Available  bool      `json:"available"`
	CapturedAt time.Time `json:"capturedAt"`
}

func toShowJSON(records []scraper.ShowRecord) []showJSON {
	out := make([]showJSON, 0, len(records))
	for _, r := range records {
		out = append(out, showJSON{
			MovieName:   r.MovieName,
			TheaterName: r.TheaterName,
			Location:    r.Location,
			ShowTime:    r.ShowTime,
			TimeSource:  r.TimeSource.String(),
			PriceRange:  r.PriceRange,
			BookingUrl:  r.BookingURL,
			Source:      r.Source,
			Available:   r.Available,
			CapturedAt:  r.CapturedAt,
		})
	}
	return out
}

type outcomeJSON struct {
	RequestID int64  `json:"requestId"`
	Email     string `json:"email"`
	Result    string `json:"result"`
	Error     string `json:"error,omitempty"`
}

type releaseJSON struct {
	MovieName   string        `json:"movieName"`
	Location    string        `json:"location"`
	ReleaseDate string        `json:"releaseDate"`
	Outcomes    []outcomeJSON `json:"outcomes"`
}

func toOutcomesJSON(outcomes []matching.Outcome) []outcomeJSON {
	out := make([]outcomeJSON, 0, len(outcomes))
	for _, o := range outcomes {
		entry := outcomeJSON{
			RequestID: o.Request.ID,
			Email:     o.Request.Email,
			Result:    o.Result.String(),
		}
		if o.Err != nil {
			entry.Error = o.Err.Error()
		}
		out = append(out, entry)
	}
	return out
}

type errorJSON struct {
	Error string `json:"error"`
}
