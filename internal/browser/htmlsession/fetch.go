package htmlsession

import (
	"context"
	"fmt"
	"net/http/cookiejar"
	"notifyme-backend/internal/components/assert"
	"notifyme-backend/internal/components/telemetry"
	"regexp"
	"strings"
	"sync"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// Fetcher loads a document, finalUrl is the url after redirects.
//
// note: fault injection point
type Fetcher interface {
	Fetch(ctx context.Context, url string) (body string, finalUrl string, err error)
}

// HttpFetcher fetches pages over plain http. It carries browser-like headers and the
// cloudflare bypass transport so that static listings can be read without chrome.
type HttpFetcher struct {
	http *resty.Client
	dump PageDump
}

// PageDump receives every fetched document, it is used to capture pages when a site
// changes its markup.
type PageDump interface {
	Write(id string, contents string)
}

// WithDump returns a copy of f that writes every fetched body to dump.
func (f HttpFetcher) WithDump(dump PageDump) HttpFetcher {
	f.dump = dump
	return f
}

func NewHttpFetcher(userAgent string, tel telemetry.API) (HttpFetcher, error) {
	assert.NotNil(tel)
	assert.NotEmptyStr(userAgent)

	client := resty.New()
	jar, err := cookiejar.New(nil)
	if err != nil {
		return HttpFetcher{}, err
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	client.SetHeader("user-agent", userAgent)
	client.SetHeader("accept-language", "en-US,en;q=0.9")
	client.SetTimeout(time.Second * 30)

	// 1 request per second, a burst of 2 keeps the first two requests of a
	// navigation from queueing behind each other
	limiter := rate.NewLimiter(1, 2)
	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return limiter.Wait(req.Context())
	})

	telemetry.InstrumentResty(client, telemetry.NewScopedAPI("html_fetcher", tel))

	return HttpFetcher{http: client}, nil
}

func (f HttpFetcher) Fetch(ctx context.Context, url string) (string, string, error) {
	res, err := f.http.R().SetContext(ctx).Get(url)
	if err != nil {
		return "", "", err
	}
	if res.IsError() {
		return "", "", fmt.Errorf("fetch %s: %s", url, res.Status())
	}
	finalUrl := url
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		finalUrl = res.RawResponse.Request.URL.String()
	}
	if f.dump != nil {
		f.dump.Write(dumpName(finalUrl, res.ReceivedAt()), res.String())
	}
	return res.String(), finalUrl, nil
}

var unsafeFilename = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

func dumpName(url string, at time.Time) string {
	name := unsafeFilename.ReplaceAllString(strings.TrimPrefix(strings.TrimPrefix(url, "https://"), "http://"), "_")
	if len(name) > 120 {
		name = name[:120]
	}
	return fmt.Sprintf("%d_%s.html", at.UnixMilli(), name)
}

// MapFetcher serves fixed documents keyed by url. When a url maps to several documents
// they are served in order and the last one repeats.
type MapFetcher struct {
	mutex sync.Mutex
	pages map[string][]string
	hits  map[string]int
}

func NewMapFetcher(pages map[string]string) *MapFetcher {
	f := &MapFetcher{
		pages: map[string][]string{},
		hits:  map[string]int{},
	}
	for url, body := range pages {
		f.pages[url] = []string{body}
	}
	return f
}

// Sequence serves bodies for url in order on successive fetches.
func (f *MapFetcher) Sequence(url string, bodies ...string) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.pages[url] = bodies
}

func (f *MapFetcher) Fetch(_ context.Context, url string) (string, string, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	bodies, ok := f.pages[url]
	if !ok || len(bodies) == 0 {
		return "", "", fmt.Errorf("no page registered for %s", url)
	}
	idx := f.hits[url]
	if idx >= len(bodies) {
		idx = len(bodies) - 1
	}
	f.hits[url]++
	return bodies[idx], url, nil
}

// Hits returns how many times url was fetched.
func (f *MapFetcher) Hits(url string) int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.hits[url]
}
