package services

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"dealscout/models"
	"dealscout/utils"
)

type searchCall struct {
	Term   string
	Filter string
}

// fakeMarket answers searches through respond, which sees the call and its
// zero-based index.
type fakeMarket struct {
	mu      sync.Mutex
	calls   []searchCall
	respond func(c searchCall, n int) ([]models.MarketItem, error)
}

func (f *fakeMarket) Search(_ context.Context, _, term, filter string, _ int) ([]models.MarketItem, error) {
	f.mu.Lock()
	c := searchCall{Term: term, Filter: filter}
	n := len(f.calls)
	f.calls = append(f.calls, c)
	f.mu.Unlock()
	if f.respond == nil {
		return nil, nil
	}
	return f.respond(c, n)
}

func (f *fakeMarket) Calls() []searchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]searchCall(nil), f.calls...)
}

type fakeTokens struct {
	token string
	err   error
	calls int
}

func (f *fakeTokens) AccessToken(context.Context) (string, error) {
	f.calls++
	return f.token, f.err
}

func usd(prices ...float64) []models.MarketItem {
	items := make([]models.MarketItem, 0, len(prices))
	for i, p := range prices {
		items = append(items, models.MarketItem{ID: string(rune('a' + i)), Price: p, Currency: "USD"})
	}
	return items
}

func newTestEngine(market Marketplace, opts PriceEngineOptions) *PriceEngine {
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 3
	}
	return NewPriceEngine(&fakeTokens{token: "tok"}, market, utils.NewNopLogger(), opts)
}

func TestSearchVariationsOrder(t *testing.T) {
	tests := []struct {
		term string
		want []string
	}{
		{
			"Apple iPhone 14 Pro Max 256GB",
			[]string{"Apple iPhone 14 Pro Max 256GB", "Apple iPhone 14 Pro Max", "Apple iPhone", "Apple iPhone 14"},
		},
		{
			"Sony WH-1000XM5 (Black)",
			[]string{"Sony WH-1000XM5 (Black)", "Sony WH-1000XM5", "Sony WH 1000XM5 Black"},
		},
		{
			`Samsung 65" QLED`,
			[]string{`Samsung 65" QLED`, "Samsung QLED", `Samsung 65"`, "Samsung 65 QLED"},
		},
		{"Nintendo Switch", []string{"Nintendo Switch"}},
		{"   ", nil},
	}
	for _, tt := range tests {
		got := SearchVariations(tt.term)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("SearchVariations(%q) = %q; want %q", tt.term, got, tt.want)
		}
	}
}

func TestBroadTerm(t *testing.T) {
	if got := BroadTerm("Apple iPhone 14 Pro"); got != "Apple iPhone" {
		t.Errorf("BroadTerm: got %q, want %q", got, "Apple iPhone")
	}
	if got := BroadTerm("Steam Deck"); got != "" {
		t.Errorf("BroadTerm of two words: got %q, want empty", got)
	}
}

func TestSummarize(t *testing.T) {
	items := []models.MarketItem{
		{Price: 100, Currency: "USD"},
		{Price: 200, Currency: "USD"},
		{Price: 0, Currency: "USD"},
		{Price: 999, Currency: "EUR"},
		{Price: 150, Currency: "usd"},
	}
	q := Summarize("term", items)
	if q == nil {
		t.Fatal("expected a quote")
	}
	if q.NumListings != 3 {
		t.Errorf("NumListings: got %d, want 3", q.NumListings)
	}
	if q.AvgPrice != 150 || q.LowPrice != 100 || q.HighPrice != 200 {
		t.Errorf("stats: got avg=%.2f low=%.2f high=%.2f", q.AvgPrice, q.LowPrice, q.HighPrice)
	}

	if Summarize("term", []models.MarketItem{{Price: 5, Currency: "GBP"}}) != nil {
		t.Error("no USD items should produce no quote")
	}
}

func TestSummarizeCapsSamples(t *testing.T) {
	prices := make([]float64, 25)
	for i := range prices {
		prices[i] = float64(10 + i)
	}
	q := Summarize("term", usd(prices...))
	if q.NumListings != 25 {
		t.Errorf("NumListings: got %d, want 25", q.NumListings)
	}
	if len(q.Samples) != 10 {
		t.Errorf("Samples: got %d, want 10", len(q.Samples))
	}
}

func TestFindMarketValueFirstVariation(t *testing.T) {
	m := &fakeMarket{respond: func(searchCall, int) ([]models.MarketItem, error) {
		return usd(100, 120, 110), nil
	}}
	e := newTestEngine(m, PriceEngineOptions{})

	q, err := e.FindMarketValue(context.Background(), "Steam Deck OLED", "used", 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.AvgPrice != 110 || q.NumListings != 3 {
		t.Errorf("quote: got avg=%.2f n=%d", q.AvgPrice, q.NumListings)
	}
	if q.SearchTerm != "Steam Deck OLED" || q.MixedCondition || q.BroadMatch {
		t.Errorf("unexpected quote tags: %+v", q)
	}
	calls := m.Calls()
	if len(calls) != 1 || calls[0].Filter != FilterUsed {
		t.Errorf("calls: got %+v", calls)
	}
}

func TestFindMarketValueCachesWithinTTL(t *testing.T) {
	m := &fakeMarket{respond: func(searchCall, int) ([]models.MarketItem, error) {
		return usd(300), nil
	}}
	e := newTestEngine(m, PriceEngineOptions{CacheTTL: 6 * time.Hour})

	for i := 0; i < 2; i++ {
		if _, err := e.FindMarketValue(context.Background(), "PlayStation 5", "new", 20); err != nil {
			t.Fatalf("lookup %d: %v", i, err)
		}
	}
	// normalised key: case and spacing do not matter
	if _, err := e.FindMarketValue(context.Background(), "  playstation   5 ", "NEW", 20); err != nil {
		t.Fatalf("normalised lookup: %v", err)
	}
	if got := len(m.Calls()); got != 1 {
		t.Errorf("network searches: got %d, want 1", got)
	}
}

func TestFindMarketValueCacheExpires(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := &fakeMarket{respond: func(searchCall, int) ([]models.MarketItem, error) {
		return usd(300), nil
	}}
	e := newTestEngine(m, PriceEngineOptions{CacheTTL: 6 * time.Hour, Now: func() time.Time { return now }})

	if _, err := e.FindMarketValue(context.Background(), "PlayStation 5", "new", 20); err != nil {
		t.Fatal(err)
	}
	now = now.Add(7 * time.Hour)
	if _, err := e.FindMarketValue(context.Background(), "PlayStation 5", "new", 20); err != nil {
		t.Fatal(err)
	}
	if got := len(m.Calls()); got != 2 {
		t.Errorf("network searches after expiry: got %d, want 2", got)
	}
}

func TestFindMarketValueRetriesThenSucceeds(t *testing.T) {
	m := &fakeMarket{respond: func(_ searchCall, n int) ([]models.MarketItem, error) {
		if n < 2 {
			return nil, errors.New("502 bad gateway")
		}
		return usd(50), nil
	}}
	e := newTestEngine(m, PriceEngineOptions{})

	q, err := e.FindMarketValue(context.Background(), "DeWalt Drill", "used", 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	calls := m.Calls()
	if len(calls) != 3 {
		t.Fatalf("calls: got %d, want 3", len(calls))
	}
	for _, c := range calls {
		if c.Term != "DeWalt Drill" {
			t.Errorf("retry should stay on the same variation, got %q", c.Term)
		}
	}
	if q.AvgPrice != 50 {
		t.Errorf("AvgPrice: got %.2f, want 50", q.AvgPrice)
	}
}

func TestFindMarketValueMovesToNextVariation(t *testing.T) {
	m := &fakeMarket{respond: func(c searchCall, _ int) ([]models.MarketItem, error) {
		if c.Term == "Apple iPhone 14 Pro Max" {
			return usd(700, 750), nil
		}
		return nil, nil
	}}
	e := newTestEngine(m, PriceEngineOptions{})

	q, err := e.FindMarketValue(context.Background(), "Apple iPhone 14 Pro Max 256GB", "used", 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.SearchTerm != "Apple iPhone 14 Pro Max" {
		t.Errorf("SearchTerm: got %q", q.SearchTerm)
	}
	if got := len(m.Calls()); got != 4 {
		t.Errorf("calls: got %d, want 3 failed attempts + 1 hit", got)
	}
}

func TestFindMarketValueMixedCondition(t *testing.T) {
	m := &fakeMarket{respond: func(c searchCall, _ int) ([]models.MarketItem, error) {
		if c.Filter == FilterAny {
			return usd(80), nil
		}
		return nil, nil
	}}
	e := newTestEngine(m, PriceEngineOptions{})

	q, err := e.FindMarketValue(context.Background(), "Bose QuietComfort Ultra", "new", 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !q.MixedCondition {
		t.Error("quote should be tagged mixed-condition")
	}
	calls := m.Calls()
	last := calls[len(calls)-1]
	if last.Filter != FilterAny || last.Term != "Bose QuietComfort Ultra" {
		t.Errorf("last call: got %+v", last)
	}
	for _, c := range calls[:len(calls)-1] {
		if c.Filter != FilterNew {
			t.Errorf("calls before the mixed stage must use the condition filter, got %+v", c)
		}
	}
}

func TestFindMarketValueBroadMatchIsLastResort(t *testing.T) {
	const term = "Apple iPhone 14 Pro Max 256GB"
	variations := SearchVariations(term)
	// 3 attempts per variation, then 2 mixed-condition calls
	broadCall := len(variations)*3 + mixedVariations

	m := &fakeMarket{respond: func(c searchCall, n int) ([]models.MarketItem, error) {
		if n == broadCall && c.Term == "Apple iPhone" && c.Filter == FilterUsed {
			return usd(400, 420), nil
		}
		return nil, nil
	}}
	e := newTestEngine(m, PriceEngineOptions{})

	q, err := e.FindMarketValue(context.Background(), term, "used", 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !q.BroadMatch {
		t.Error("quote should be tagged broad_match")
	}

	calls := m.Calls()
	if len(calls) != broadCall+1 {
		t.Fatalf("calls: got %d, want %d", len(calls), broadCall+1)
	}
	for i, v := range variations {
		for a := 0; a < 3; a++ {
			c := calls[i*3+a]
			if c.Term != v || c.Filter != FilterUsed {
				t.Errorf("call %d: got %+v, want %q/%s", i*3+a, c, v, FilterUsed)
			}
		}
	}
	for i := 0; i < mixedVariations; i++ {
		c := calls[len(variations)*3+i]
		if c.Term != variations[i] || c.Filter != FilterAny {
			t.Errorf("mixed call %d: got %+v", i, c)
		}
	}
}

func TestFindMarketValueNotFound(t *testing.T) {
	m := &fakeMarket{}
	e := newTestEngine(m, PriceEngineOptions{})

	_, err := e.FindMarketValue(context.Background(), "Obscure Gadget", "used", 20)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	first := len(m.Calls())

	// misses are not cached
	_, _ = e.FindMarketValue(context.Background(), "Obscure Gadget", "used", 20)
	if len(m.Calls()) != 2*first {
		t.Errorf("second lookup should search again: got %d calls, want %d", len(m.Calls()), 2*first)
	}
	if e.CacheSize() != 0 {
		t.Errorf("cache size: got %d, want 0", e.CacheSize())
	}
}

func TestFindMarketValueAuthUnavailable(t *testing.T) {
	m := &fakeMarket{}
	e := NewPriceEngine(&fakeTokens{err: errors.New("401")}, m, utils.NewNopLogger(), PriceEngineOptions{MaxAttempts: 3})

	_, err := e.FindMarketValue(context.Background(), "PlayStation 5", "new", 20)
	if !errors.Is(err, ErrAuthUnavailable) {
		t.Fatalf("expected ErrAuthUnavailable, got %v", err)
	}
	if len(m.Calls()) != 0 {
		t.Error("no search should be issued without a credential")
	}
}

func TestFindMarketValueCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := &fakeMarket{respond: func(searchCall, int) ([]models.MarketItem, error) {
		cancel()
		return nil, context.Canceled
	}}
	e := newTestEngine(m, PriceEngineOptions{})

	_, err := e.FindMarketValue(ctx, "PlayStation 5", "new", 20)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestConditionFilter(t *testing.T) {
	tests := map[string]string{
		"new":          FilterNew,
		"NEW":          FilterNew,
		"used":         FilterUsed,
		"needs_repair": FilterUsed,
	}
	for in, want := range tests {
		if got := ConditionFilter(in); got != want {
			t.Errorf("ConditionFilter(%q) = %q; want %q", in, got, want)
		}
	}
}
