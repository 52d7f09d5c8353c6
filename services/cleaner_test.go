package services

import (
	"reflect"
	"testing"
	"time"

	"dealscout/models"
	"dealscout/utils"
)

func newTestLogger() *utils.Logger { return utils.NewNopLogger() }

func TestCleanerParsePrice(t *testing.T) {
	c := NewCleaner(newTestLogger())

	tests := []struct {
		raw  string
		want *float64
	}{
		{"Asking $400 obo", ptr(400)},
		{"$1,200.50 firm", ptr(1200.50)},
		{"price: $ 75", ptr(75)},
		{"", nil},
		{"free to a good home", nil},
	}

	for _, tt := range tests {
		got := c.parsePrice(tt.raw)
		switch {
		case got == nil && tt.want == nil:
		case got == nil || tt.want == nil:
			t.Errorf("parsePrice(%q) = %v; want %v", tt.raw, got, tt.want)
		case *got != *tt.want:
			t.Errorf("parsePrice(%q) = %.2f; want %.2f", tt.raw, *got, *tt.want)
		}
	}
}

func TestCleanerParseAlert(t *testing.T) {
	c := NewCleaner(newTestLogger())
	received := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	a := &models.Alert{
		ID:      "a1",
		Subject: "New listing: RTX 3080 - $400 - Facebook Marketplace",
		Body: "Price: $400\n" +
			"Location: Cookeville, TN\n" +
			"Photo: https://cdn.example.com/p/123.jpg\n" +
			"View: https://www.facebook.com/marketplace/item/987654\n",
		ReceivedAt: received,
	}

	r := c.Parse(a)
	if r.Title != "RTX 3080" {
		t.Errorf("Title: got %q, want %q", r.Title, "RTX 3080")
	}
	if r.AskingPrice == nil || *r.AskingPrice != 400 {
		t.Errorf("AskingPrice: got %v, want 400", r.AskingPrice)
	}
	if r.URL != "https://www.facebook.com/marketplace/item/987654" {
		t.Errorf("URL: got %q", r.URL)
	}
	if !reflect.DeepEqual(r.ImageURLs, []string{"https://cdn.example.com/p/123.jpg"}) {
		t.Errorf("ImageURLs: got %v", r.ImageURLs)
	}
	if r.Platform != "facebook" {
		t.Errorf("Platform: got %q, want facebook", r.Platform)
	}
	if r.Location != "Cookeville" {
		t.Errorf("Location: got %q, want Cookeville", r.Location)
	}
	if !r.ReceivedAt.Equal(received) {
		t.Errorf("ReceivedAt: got %v, want %v", r.ReceivedAt, received)
	}
}

func TestDetectPlatform(t *testing.T) {
	tests := map[string]string{
		"https://nashville.craigslist.org/ele/d/123.html": "craigslist",
		"found on eBay: https://www.ebay.com/itm/1":       "ebay",
		"https://offerup.com/item/detail/42":              "offerup",
		"https://fb.com/marketplace/item/1":               "facebook",
		"https://example.com/listing/1":                   "unknown",
	}
	for body, want := range tests {
		if got := detectPlatform(body); got != want {
			t.Errorf("detectPlatform(%q) = %q; want %q", body, got, want)
		}
	}
}

func TestCleanerDropsEmptyURL(t *testing.T) {
	c := NewCleaner(newTestLogger())
	alerts := []*models.Alert{
		{ID: "1", Subject: "Alert: Dyson V11 - $150", Body: "no link here"},
		{ID: "2", Subject: "Alert: Dyson V15 - $250", Body: "https://offerup.com/item/detail/2"},
	}

	cleaned := c.Clean(alerts)
	if len(cleaned) != 1 {
		t.Errorf("expected 1 listing after dropping empty URL, got %d", len(cleaned))
	}
}

func TestCleanerDropsEmptyTitle(t *testing.T) {
	c := NewCleaner(newTestLogger())
	alerts := []*models.Alert{
		{ID: "1", Subject: "Weekly digest", Body: "https://offerup.com/item/detail/3"},
	}

	if cleaned := c.Clean(alerts); len(cleaned) != 0 {
		t.Errorf("expected alert without title to be dropped, got %d listings", len(cleaned))
	}
}

func TestCleanerDeduplicatesURL(t *testing.T) {
	c := NewCleaner(newTestLogger())
	alerts := []*models.Alert{
		{ID: "1", Subject: "Listing: Switch OLED - $220", Body: "https://offerup.com/item/detail/9"},
		{ID: "2", Subject: "Listing: Switch OLED (price drop) - $200", Body: "https://offerup.com/item/detail/9"},
	}

	cleaned := c.Clean(alerts)
	if len(cleaned) != 1 {
		t.Errorf("expected 1 listing after deduplication, got %d", len(cleaned))
	}
	if cleaned[0].Title != "Switch OLED" {
		t.Errorf("first alert should win, got %q", cleaned[0].Title)
	}
}
