package chromedpsession

import (
	"github.com/chromedp/chromedp"
)

const (
	DefaultWindowWidth  = 1920
	DefaultWindowHeight = 1080
	DefaultUserAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
)

type Options struct {
	Headless     bool   `json:"headless"`
	UserAgent    string `json:"user_agent"`
	WindowWidth  int    `json:"window_width"`
	WindowHeight int    `json:"window_height"`
	// ExecPath overrides chrome discovery, empty uses chromedp's default lookup.
	ExecPath string `json:"exec_path"`
}

func (o Options) withDefaults() Options {
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	if o.WindowWidth <= 0 {
		o.WindowWidth = DefaultWindowWidth
	}
	if o.WindowHeight <= 0 {
		o.WindowHeight = DefaultWindowHeight
	}
	return o
}

func buildAllocatorOptions(opts Options) []chromedp.ExecAllocatorOption {
	opts = opts.withDefaults()

	out := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	out = append(out,
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.WindowSize(opts.WindowWidth, opts.WindowHeight),
		chromedp.UserAgent(opts.UserAgent),

		// stealth
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("exclude-switches", "enable-automation"),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("disable-popup-blocking", true),
		chromedp.Flag("disable-renderer-backgrounding", true),
		chromedp.Flag("disable-backgrounding-occluded-windows", true),
		chromedp.Flag("password-store", "basic"),
		chromedp.Flag("use-mock-keychain", true),
	)

	if opts.Headless {
		out = append(out, chromedp.Flag("headless", "new"))
	} else {
		out = append(out, chromedp.Flag("headless", false))
	}
	if opts.ExecPath != "" {
		out = append(out, chromedp.ExecPath(opts.ExecPath))
	}
	return out
}

// stealthScript runs before any page script on every new document.
const stealthScript = `
Object.defineProperty(navigator, 'webdriver', { get: () => undefined, configurable: true });
Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'], configurable: true });
Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3, 4, 5], configurable: true });
window.chrome = window.chrome || { runtime: {} };
`
