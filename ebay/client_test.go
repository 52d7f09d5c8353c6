package ebay

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"dealscout/utils"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Options{
		AppID:             "app",
		CertID:            "cert",
		BaseURL:           srv.URL,
		HomeZip:           "38580",
		PickupRadiusMiles: 100,
		RequestsPerSecond: 1000,
	}, utils.NewNopLogger())
}

func TestAccessTokenIsCached(t *testing.T) {
	var calls int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != tokenPath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "app" || pass != "cert" {
			t.Errorf("basic auth: got %q/%q", user, pass)
		}
		_ = r.ParseForm()
		if r.Form.Get("grant_type") != "client_credentials" || r.Form.Get("scope") != apiScope {
			t.Errorf("form: got %v", r.Form)
		}
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{"access_token":"tok-1","expires_in":7200,"token_type":"Application Access Token"}`))
	}))

	for i := 0; i < 3; i++ {
		tok, err := c.AccessToken(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if tok != "tok-1" {
			t.Errorf("token: got %q, want tok-1", tok)
		}
	}
	if calls != 1 {
		t.Errorf("token requests: got %d, want 1", calls)
	}
}

func TestAccessTokenRefreshesBeforeExpiry(t *testing.T) {
	var calls int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{"access_token":"tok","expires_in":600}`))
	}))
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	_, _ = c.AccessToken(context.Background())
	now = now.Add(541 * time.Second)
	_, _ = c.AccessToken(context.Background())

	if calls != 2 {
		t.Errorf("token requests: got %d, want 2", calls)
	}
}

func TestAccessTokenErrors(t *testing.T) {
	c := New(Options{}, utils.NewNopLogger())
	if _, err := c.AccessToken(context.Background()); !errors.Is(err, ErrNoCredentials) {
		t.Errorf("missing credentials: got %v, want ErrNoCredentials", err)
	}

	c = newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_client"}`, http.StatusUnauthorized)
	}))
	_, err := c.AccessToken(context.Background())
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Errorf("expected a 401 error, got %v", err)
	}
}

func TestSearchParsesItems(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != searchPath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization: got %q", got)
		}
		if got := r.Header.Get("X-EBAY-C-MARKETPLACE-ID"); got != "EBAY_US" {
			t.Errorf("marketplace header: got %q", got)
		}
		q := r.URL.Query()
		if q.Get("q") != "Steam Deck OLED" || q.Get("limit") != "20" {
			t.Errorf("query: got %v", q)
		}
		wantFilter := "conditionIds:{USED},buyingOptions:{FIXED_PRICE|AUCTION},priceCurrency:USD"
		if q.Get("filter") != wantFilter {
			t.Errorf("filter: got %q, want %q", q.Get("filter"), wantFilter)
		}
		w.Write([]byte(`{"total":3,"itemSummaries":[
			{"itemId":"v1|1","title":"Steam Deck OLED 512GB","condition":"Used","price":{"value":"449.99","currency":"USD"}},
			{"itemId":"v1|2","title":"Steam Deck OLED 1TB","condition":"Used","price":{"value":"520.00","currency":"USD"}},
			{"itemId":"v1|3","title":"broken price","price":{"value":"n/a","currency":"USD"}}
		]}`))
	}))

	items, err := c.Search(context.Background(), "tok", "Steam Deck OLED", "USED", 20)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("items: got %d, want 2", len(items))
	}
	if items[0].ID != "v1|1" || items[0].Price != 449.99 || items[0].Currency != "USD" || items[0].Condition != "Used" {
		t.Errorf("first item: got %+v", items[0])
	}
}

func TestSearchNoResults(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"total":0}`))
	}))
	items, err := c.Search(context.Background(), "tok", "nothing", "NEW", 20)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 0 {
		t.Errorf("items: got %d, want 0", len(items))
	}
}

func TestSearchServerError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	if _, err := c.Search(context.Background(), "tok", "x", "NEW", 20); err == nil {
		t.Error("expected an error for a 502 response")
	}
}

func TestHasLocalPickup(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == tokenPath {
			w.Write([]byte(`{"access_token":"tok","expires_in":7200}`))
			return
		}
		q := r.URL.Query()
		want := "conditionIds:{USED},pickupCountry:US,pickupPostalCode:38580,pickupRadius:100,pickupRadiusUnit:mi,deliveryOptions:{SELLER_ARRANGED_LOCAL_PICKUP}"
		if q.Get("filter") != want {
			t.Errorf("filter: got %q, want %q", q.Get("filter"), want)
		}
		if q.Get("sort") != "distance" {
			t.Errorf("sort: got %q, want distance", q.Get("sort"))
		}
		if q.Get("q") == "Canon EOS R6" {
			w.Write([]byte(`{"itemSummaries":[{"itemId":"1","price":{"value":"1400.00","currency":"USD"}}]}`))
			return
		}
		w.Write([]byte(`{"itemSummaries":[]}`))
	}))

	found, err := c.HasLocalPickup(context.Background(), "Canon EOS R6", "needs_repair")
	if err != nil || !found {
		t.Errorf("Canon EOS R6: found=%v err=%v, want true", found, err)
	}
	found, err = c.HasLocalPickup(context.Background(), "Rare Widget", "used")
	if err != nil || found {
		t.Errorf("Rare Widget: found=%v err=%v, want false", found, err)
	}
}

func TestFeeForTier(t *testing.T) {
	tests := map[string]float64{
		"":            13.25,
		"NO_STORE":    13.25,
		"starter":     13.25,
		"Basic":       12.90,
		"featured":    12.35,
		"Anchor":      11.50,
		" enterprise": 10.75,
		"no store":    13.25,
		"PLATINUM":    DefaultFeePercent,
	}
	for tier, want := range tests {
		if got := FeeForTier(tier); got != want {
			t.Errorf("FeeForTier(%q) = %.2f; want %.2f", tier, got, want)
		}
	}
}
