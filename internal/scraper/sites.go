package scraper

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// cloudflareMarkers match the interstitial itself. Ordinary pages load cloudflare
// hosted scripts (insights beacon, cdnjs), so the vendor name alone is not a marker.
var cloudflareMarkers = ChallengeMarkers{
	Selectors: []Locator{"#challenge-form, #cf-content, .cf-browser-verification"},
	Substrings: []string{
		"/cdn-cgi/challenge-platform/",
		"cf-browser-verification",
		"<title>Just a moment...</title>",
	},
}

const (
	bookMyShowBase = "https://in.bookmyshow.com"
	pvrBase        = "https://www.pvrcinemas.com/"
)

// BookMyShow lists movies per city, each movie opens a detail page with a booking
// button that leads to the showtimes page.
func BookMyShow() SiteProfile {
	return SiteProfile{
		Key:    "bookmyshow",
		Source: "BookMyShow",
		Locators: Locators{
			MovieCard:      "div a[href*='/movies/']",
			CardTitle:      ".sc-7o7nez-0.daKrZU",
			CardImage:      "img[alt]",
			BookingControl: "button[data-phase='postRelease']",
			Venue:          ".venue-card",
			VenueName:      ".venue-name",
			Showtime:       ".showtime-pill",
			ShowtimeTime:   ".time",
			ShowtimePrice:  ".price",
			ShowtimeLink:   "a",
		},
		Challenge: cloudflareMarkers,
		Timing: Timing{
			StepDelay:    2000 * time.Millisecond,
			StepJitter:   1000 * time.Millisecond,
			ScrollPause:  500 * time.Millisecond,
			ScrollJitter: 500 * time.Millisecond,
			SettleDelay:  5 * time.Second,
			Challenge:    DefaultChallengeTiming,
		},
		Strategy: bookMyShowStrategy{},
	}
}

// PVR lists every movie on its home page, the booking button sits inside the movie card
// and the showtimes page groups venues into collapsible panels. It serves no challenge
// interstitial.
func PVR() SiteProfile {
	return SiteProfile{
		Key:    "pvr",
		Source: "PVR",
		Locators: Locators{
			MovieCard:      ".p-card",
			CardTitle:      ".p-card-title span",
			BookingControl: ".book-tickets-btn",
			ShowtimesReady: ".p-accordion",
			Venue:          ".p-accordion-tab",
			VenueName:      ".cinema-listed-locat h2",
			PanelToggle:    ".p-accordion-header-link",
			PanelContent:   ".p-accordion-content",
			Showtime:       ".box-slot-moviesession",
			ShowtimeTime:   ".show-times h5",
		},
		Timing: Timing{
			StepDelay:   1000 * time.Millisecond,
			ScrollPause: 500 * time.Millisecond,
			SettleDelay: 5 * time.Second,
			PanelDelay:  500 * time.Millisecond,
			Challenge:   DefaultChallengeTiming,
		},
		BookingWithinCard: true,
		Strategy:          pvrStrategy{},
	}
}

var knownSites = map[string]func() SiteProfile{
	"bookmyshow": BookMyShow,
	"pvr":        PVR,
}

// Profiles resolves configured site keys in order.
func Profiles(keys []string) ([]SiteProfile, error) {
	out := make([]SiteProfile, 0, len(keys))
	for _, key := range keys {
		build, ok := knownSites[strings.ToLower(strings.TrimSpace(key))]
		if !ok {
			return nil, fmt.Errorf("unknown site '%s'", key)
		}
		out = append(out, build())
	}
	return out, nil
}

type bookMyShowStrategy struct{}

func (bookMyShowStrategy) ListingURL(location string) string {
	slug := strings.ToLower(strings.TrimSpace(location))
	return fmt.Sprintf("%s/explore/home/%s", bookMyShowBase, url.PathEscape(slug))
}

// showtimes urls end with the date being shown, ex. /buytickets/dune-chennai/ET00001/20260317
var bookMyShowDate = regexp.MustCompile(`/(\d{8})(?:[/?#]|$)`)

func (bookMyShowStrategy) ParseShowTime(text, pageUrl string, captured time.Time) (time.Time, bool) {
	day := captured
	if m := bookMyShowDate.FindStringSubmatch(pageUrl); len(m) == 2 {
		parsed, err := time.ParseInLocation("20060102", m[1], captured.Location())
		if err == nil {
			day = parsed
		}
	}
	return parseClock(text, day)
}

type pvrStrategy struct{}

func (pvrStrategy) ListingURL(string) string {
	return pvrBase
}

func (pvrStrategy) ParseShowTime(text, _ string, captured time.Time) (time.Time, bool) {
	return parseClock(text, captured)
}

var clockLayouts = []string{"3:04PM", "15:04"}

var meridiem = regexp.MustCompile(`(?i)\s*([ap])\.?\s*m\.?$`)

// parseClock reads a wall clock label like "10:30 AM" or "22:15" on day's date.
func parseClock(text string, day time.Time) (time.Time, bool) {
	text = strings.TrimSpace(text)
	text = meridiem.ReplaceAllStringFunc(text, func(m string) string {
		return strings.ToUpper(meridiem.ReplaceAllString(m, "${1}")) + "M"
	})
	for _, layout := range clockLayouts {
		clock, err := time.Parse(layout, text)
		if err != nil {
			continue
		}
		return time.Date(
			day.Year(), day.Month(), day.Day(),
			clock.Hour(), clock.Minute(), 0, 0,
			day.Location(),
		), true
	}
	return time.Time{}, false
}
