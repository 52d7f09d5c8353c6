package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		val  string
		want time.Duration
	}{
		{"", time.Minute},
		{"90s", 90 * time.Second},
		{"45", 45 * time.Second},
		{"garbage", time.Minute},
	}
	for _, tt := range tests {
		t.Setenv("DS_TEST_DURATION", tt.val)
		if got := getEnvDuration("DS_TEST_DURATION", time.Minute); got != tt.want {
			t.Errorf("getEnvDuration(%q) = %v; want %v", tt.val, got, tt.want)
		}
	}
}

func TestClampTimeout(t *testing.T) {
	tests := []struct {
		in, want time.Duration
	}{
		{time.Second, 10 * time.Second},
		{15 * time.Second, 15 * time.Second},
		{time.Minute, 30 * time.Second},
	}
	for _, tt := range tests {
		if got := clampTimeout(tt.in); got != tt.want {
			t.Errorf("clampTimeout(%v) = %v; want %v", tt.in, got, tt.want)
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PROFIT_THRESHOLD", "")
	t.Setenv("FEE_PERCENT", "12.5")
	t.Setenv("SCRAPE_DETAILS", "true")

	cfg := Load()
	if cfg.ProfitThreshold != 30 {
		t.Errorf("ProfitThreshold: got %v, want 30", cfg.ProfitThreshold)
	}
	if cfg.FeePercent != 12.5 {
		t.Errorf("FeePercent: got %v, want 12.5", cfg.FeePercent)
	}
	if !cfg.ScrapeDetails {
		t.Error("ScrapeDetails should be true")
	}
	if cfg.PriceCacheTTL != 6*time.Hour {
		t.Errorf("PriceCacheTTL: got %v, want 6h", cfg.PriceCacheTTL)
	}
}

func TestLoadRejectsNonPositiveIntervals(t *testing.T) {
	t.Setenv("ENRICH_INTERVAL", "0s")
	t.Setenv("NEEDS_REVIEW_INTERVAL", "-5m")

	cfg := Load()
	if cfg.EnrichInterval != 5*time.Minute {
		t.Errorf("EnrichInterval: got %v, want 5m", cfg.EnrichInterval)
	}
	if cfg.NeedsReviewInterval != 15*time.Minute {
		t.Errorf("NeedsReviewInterval: got %v, want 15m", cfg.NeedsReviewInterval)
	}
}

func TestLoadGazetteerMergesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gazetteer.yaml")
	content := `
home:
  lat: 36.1628
  lng: -85.5016
cities:
  Baxter:
    lat: 36.1537
    lng: -85.6411
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	g, err := LoadGazetteer(path)
	if err != nil {
		t.Fatalf("LoadGazetteer: %v", err)
	}
	if g.Home.Lat != 36.1628 {
		t.Errorf("home lat: got %v, want 36.1628", g.Home.Lat)
	}
	if _, ok := g.Cities["baxter"]; !ok {
		t.Error("city from file should be stored lowercased")
	}
	if _, ok := g.Cities["nashville"]; !ok {
		t.Error("default cities should be kept")
	}
}

func TestLoadGazetteerMissingFile(t *testing.T) {
	if _, err := LoadGazetteer(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
