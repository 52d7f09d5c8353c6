package listing

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"dealscout/models"
	"dealscout/utils"
)

const maxPageTimeout = 30 * time.Second

const userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// DetailScraper opens listing pages in headless Chrome to fill fields the
// alert text did not carry (location and photos).
type DetailScraper struct {
	chromeBin   string
	pool        *utils.WorkerPool
	retry       *utils.RetryPolicy
	pageTimeout time.Duration
	logger      *utils.Logger
}

// NewDetailScraper creates a DetailScraper. An empty chromeBin triggers a
// lookup of common install locations. pageTimeout bounds each page visit and
// defaults to 30s.
func NewDetailScraper(chromeBin string, maxConcurrency, rateLimitMs, maxRetries int, pageTimeout time.Duration, logger *utils.Logger) *DetailScraper {
	if chromeBin == "" {
		chromeBin = findChromeBinary()
	}
	if pageTimeout <= 0 || pageTimeout > maxPageTimeout {
		pageTimeout = maxPageTimeout
	}
	return &DetailScraper{
		chromeBin: chromeBin,
		pool:      utils.NewWorkerPool(maxConcurrency, rateLimitMs),
		retry: &utils.RetryPolicy{
			MaxAttempts: maxRetries,
			Backoff:     utils.LinearBackoff(2 * time.Second),
			Logger:      logger,
		},
		pageTimeout: pageTimeout,
		logger:      logger.WithComponent("detail"),
	}
}

type pageDetails struct {
	Location string   `json:"location"`
	Images   []string `json:"images"`
}

// needsDetails reports whether a listing is missing data a detail page can supply.
func needsDetails(l *models.RawListing) bool {
	return l.URL != "" && (l.Location == "" || len(l.ImageURLs) == 0)
}

// Enrich visits the detail page of every listing missing a location or
// photos. Failures are logged and leave the listing untouched.
func (d *DetailScraper) Enrich(ctx context.Context, listings []*models.RawListing) {
	pending := make([]*models.RawListing, 0, len(listings))
	for _, l := range listings {
		if needsDetails(l) {
			pending = append(pending, l)
		}
	}
	if len(pending) == 0 {
		return
	}

	d.logger.Info("[detail] visiting %d listing pages (browser: %s)", len(pending), d.chromeBin)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, d.allocatorOptions()...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	defer cancelBrowser()

	for _, listing := range pending {
		l := listing
		if err := d.pool.SubmitContext(ctx, func() {
			details, err := d.scrape(browserCtx, l.URL)
			if err != nil {
				d.logger.Warn("[detail] %s: %v", l.URL, err)
				return
			}
			mergeDetails(l, details)
		}); err != nil {
			break
		}
	}
	d.pool.Wait()
}

// mergeDetails only fills fields that are still empty.
func mergeDetails(l *models.RawListing, p *pageDetails) {
	if l.Location == "" {
		l.Location = strings.TrimSpace(p.Location)
	}
	if len(l.ImageURLs) == 0 && len(p.Images) > 0 {
		l.ImageURLs = p.Images
	}
}

func (d *DetailScraper) scrape(browserCtx context.Context, pageURL string) (*pageDetails, error) {
	var details pageDetails

	err := d.retry.Do(browserCtx, "detail-page", func(context.Context) error {
		tabCtx, cancel := chromedp.NewContext(browserCtx)
		defer cancel()

		tabCtx, cancelTimeout := context.WithTimeout(tabCtx, d.pageTimeout)
		defer cancelTimeout()

		err := chromedp.Run(tabCtx,
			chromedp.Navigate(pageURL),
			chromedp.Sleep(3*time.Second),
			chromedp.Evaluate(detailScript, &details),
		)
		if err != nil {
			return fmt.Errorf("chromedp detail extract: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &details, nil
}

func (d *DetailScraper) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(userAgent),
	)
	if d.chromeBin != "" {
		opts = append(opts, chromedp.ExecPath(d.chromeBin))
	}
	return opts
}

// detailScript reads the location line and up to six photos. Selectors cover
// Facebook Marketplace, Craigslist and OfferUp listing pages.
const detailScript = `
(function() {
	var result = { location: '', images: [] };

	var locSelectors = [
		'a[href*="/marketplace/"][href*="location"] span',
		'span.postingtitletext small',
		'[data-testid="item-detail-location"]',
		'div.mapaddress'
	];
	for (var i = 0; i < locSelectors.length; i++) {
		var el = document.querySelector(locSelectors[i]);
		if (el && el.innerText.trim()) {
			result.location = el.innerText.replace(/[()]/g, '').trim();
			break;
		}
	}

	var seen = {};
	var imgs = document.querySelectorAll('img');
	for (var j = 0; j < imgs.length && result.images.length < 6; j++) {
		var src = imgs[j].currentSrc || imgs[j].src || '';
		if (!/^https?:/.test(src) || seen[src]) continue;
		if (imgs[j].naturalWidth && imgs[j].naturalWidth < 200) continue;
		seen[src] = true;
		result.images.push(src);
	}
	return result;
})()
`

// findChromeBinary locates a Chrome or Chromium binary.
func findChromeBinary() string {
	for _, name := range []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	for _, p := range []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
	} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
