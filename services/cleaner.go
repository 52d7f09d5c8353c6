package services

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"dealscout/models"
	"dealscout/utils"
)

var (
	// titleRegexp captures the item title after a "listing:" or "alert:" prefix, up to " - $"
	titleRegexp = regexp.MustCompile(`(?i)(?:listing|alert):\s*(.+?)(?:\s*-\s*\$|\n|$)`)
	// priceRegexp captures the first dollar amount
	priceRegexp = regexp.MustCompile(`\$\s*([\d,]+(?:\.\d{2})?)`)
	// urlRegexp captures http(s) links
	urlRegexp = regexp.MustCompile(`https?://[^\s<>"']+`)
	// imageRegexp captures links to common image formats
	imageRegexp = regexp.MustCompile(`(?i)https?://[^\s<>"']+\.(?:jpg|jpeg|png|gif|webp)(?:\?[^\s<>"']*)?`)
	// locationRegexp captures a "location:", "city:" or "area:" value up to the first comma
	locationRegexp = regexp.MustCompile(`(?i)(?:location|city|area):\s*([^,\n]+)`)
)

// platformKeywords is checked in order; the first keyword found in the body wins.
var platformKeywords = []struct {
	keyword  string
	platform string
}{
	{"facebook", "facebook"},
	{"fb.com", "facebook"},
	{"craigslist", "craigslist"},
	{"ebay", "ebay"},
	{"offerup", "offerup"},
}

// Cleaner turns raw deal alerts into RawListings.
type Cleaner struct {
	logger *utils.Logger
}

// NewCleaner creates a Cleaner with the given logger.
func NewCleaner(logger *utils.Logger) *Cleaner {
	return &Cleaner{logger: logger}
}

// Clean parses alerts and returns one RawListing per unique listing URL.
// Alerts without a title or a URL are dropped.
func (c *Cleaner) Clean(alerts []*models.Alert) []*models.RawListing {
	seen := make(map[string]struct{})
	result := make([]*models.RawListing, 0, len(alerts))

	for _, a := range alerts {
		r := c.Parse(a)
		if r.Title == "" {
			c.logger.Warn("[cleaner] Dropping alert %s with no title", a.ID)
			continue
		}
		if r.URL == "" {
			c.logger.Warn("[cleaner] Dropping listing with empty URL: %s", r.Title)
			continue
		}

		if _, dup := seen[r.URL]; dup {
			c.logger.Debug("[cleaner] Duplicate URL skipped: %s", r.URL)
			continue
		}
		seen[r.URL] = struct{}{}

		result = append(result, r)
	}

	c.logger.Info("[cleaner] Cleaned %d → %d listings (dropped %d)",
		len(alerts), len(result), len(alerts)-len(result))
	return result
}

// Parse extracts listing fields from a single alert. Fields that cannot be
// found are left empty.
// Example subject: "New listing: RTX 3080 - $400 - Facebook Marketplace"
func (c *Cleaner) Parse(a *models.Alert) *models.RawListing {
	body := a.Body
	r := &models.RawListing{
		ReceivedAt: a.ReceivedAt,
		Platform:   detectPlatform(body),
	}
	if r.ReceivedAt.IsZero() {
		r.ReceivedAt = time.Now().UTC()
	}

	if m := titleRegexp.FindStringSubmatch(a.Subject + " " + body); len(m) == 2 {
		r.Title = normaliseText(m[1])
	}
	r.AskingPrice = c.parsePrice(body)

	images := imageRegexp.FindAllString(body, -1)
	r.ImageURLs = images
	r.URL = firstListingURL(body, images)

	if m := locationRegexp.FindStringSubmatch(body); len(m) == 2 {
		r.Location = normaliseText(m[1])
	}
	return r
}

// parsePrice returns the first dollar amount in raw, or nil when there is none.
// Examples:
//
//	"asking $1,200.50 obo" → 1200.50
//	"$ 75"                 → 75
func (c *Cleaner) parsePrice(raw string) *float64 {
	m := priceRegexp.FindStringSubmatch(raw)
	if len(m) < 2 {
		return nil
	}
	val, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		c.logger.Debug("[cleaner] Unparseable price %q: %v", m[1], err)
		return nil
	}
	return &val
}

// firstListingURL returns the first link in body that is not an image.
func firstListingURL(body string, images []string) string {
	isImage := make(map[string]struct{}, len(images))
	for _, img := range images {
		isImage[img] = struct{}{}
	}
	for _, u := range urlRegexp.FindAllString(body, -1) {
		if _, img := isImage[u]; !img {
			return u
		}
	}
	return ""
}

func detectPlatform(body string) string {
	lower := strings.ToLower(body)
	for _, pk := range platformKeywords {
		if strings.Contains(lower, pk.keyword) {
			return pk.platform
		}
	}
	return "unknown"
}

// normaliseText strips leading/trailing whitespace and collapses internal whitespace.
func normaliseText(s string) string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r)
	})
	return strings.Join(fields, " ")
}
