package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"dealscout/metrics"
	"dealscout/models"
	"dealscout/utils"
)

var (
	// ErrAuthUnavailable means no marketplace credential could be obtained.
	ErrAuthUnavailable = errors.New("marketplace auth unavailable")
	// ErrSearchFailed wraps a transport or protocol failure of one search.
	ErrSearchFailed = errors.New("marketplace search failed")
	// ErrNotFound means every search strategy came back empty.
	ErrNotFound = errors.New("no market data")
)

// Condition filters understood by the marketplace search.
const (
	FilterNew  = "NEW"
	FilterUsed = "USED"
	FilterAny  = "NEW|USED"
)

const (
	defaultSearchLimit = 20
	maxSamples         = 10
	mixedVariations    = 2
)

// TokenSource issues marketplace access credentials.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Marketplace searches comparable items.
type Marketplace interface {
	Search(ctx context.Context, token, term, conditionFilter string, limit int) ([]models.MarketItem, error)
}

// PriceEngineOptions tunes retries, timeouts and caching of the engine.
type PriceEngineOptions struct {
	CacheTTL       time.Duration
	AttemptTimeout time.Duration
	MaxAttempts    int
	Backoff        utils.Backoff
	Now            func() time.Time
}

// DefaultPriceEngineOptions: 3 attempts per variation, 0.5s then 1s backoff,
// 15s per request and a 6 hour cache.
func DefaultPriceEngineOptions() PriceEngineOptions {
	return PriceEngineOptions{
		CacheTTL:       6 * time.Hour,
		AttemptTimeout: 15 * time.Second,
		MaxAttempts:    3,
		Backoff:        utils.LinearBackoff(500 * time.Millisecond),
	}
}

// PriceEngine finds market values with caching, retries and progressively
// broader search strategies. It is the only component that talks to the
// marketplace search API.
type PriceEngine struct {
	tokens         TokenSource
	market         Marketplace
	cache          *PriceCache
	retry          *utils.RetryPolicy
	attemptTimeout time.Duration
	logger         *utils.Logger
}

// NewPriceEngine creates an engine over the given credential source and marketplace.
func NewPriceEngine(tokens TokenSource, market Marketplace, logger *utils.Logger, opts PriceEngineOptions) *PriceEngine {
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = 15 * time.Second
	}
	logger = logger.WithComponent("pricing")
	return &PriceEngine{
		tokens: tokens,
		market: market,
		cache:  NewPriceCache(opts.CacheTTL, opts.Now),
		retry: &utils.RetryPolicy{
			MaxAttempts: opts.MaxAttempts,
			Backoff:     opts.Backoff,
			Logger:      logger,
		},
		attemptTimeout: opts.AttemptTimeout,
		logger:         logger,
	}
}

// ConditionFilter maps a listing condition to a search filter. Items that
// need repair are compared against used prices.
func ConditionFilter(condition string) string {
	if strings.EqualFold(condition, models.ConditionNew) {
		return FilterNew
	}
	return FilterUsed
}

// FindMarketValue returns aggregate price statistics for searchTerm in the
// given condition. It returns ErrNotFound when every strategy is exhausted
// and ErrAuthUnavailable when no credential can be obtained.
//
// Strategies, stopping at the first hit:
//  1. every variation under the condition filter, with retries
//  2. the first two variations with no condition filter (mixed condition)
//  3. the forced two-word broad term under the condition filter
func (e *PriceEngine) FindMarketValue(ctx context.Context, searchTerm, condition string, limit int) (*models.PriceQuote, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	searchTerm = collapseSpaces(searchTerm)
	if searchTerm == "" {
		return nil, ErrNotFound
	}

	key := CacheKey(searchTerm, condition)
	if q, ok := e.cache.Get(key); ok {
		metrics.RecordPriceLookup("cache_hit")
		return copyQuote(q), nil
	}

	token, err := e.tokens.AccessToken(ctx)
	if err != nil || token == "" {
		metrics.RecordPriceLookup("auth_error")
		if err == nil {
			err = errors.New("empty token")
		}
		return nil, fmt.Errorf("%w: %v", ErrAuthUnavailable, err)
	}

	filter := ConditionFilter(condition)
	variations := SearchVariations(searchTerm)

	for _, v := range variations {
		q, err := e.searchWithRetry(ctx, token, v, filter, limit)
		if err != nil {
			return nil, err
		}
		if q != nil {
			e.logger.Info("[pricing] Found prices using %q (%d listings)", v, q.NumListings)
			return e.store(key, q, "found"), nil
		}
	}

	e.logger.Debug("[pricing] No %s results for %q, trying any condition", filter, searchTerm)
	for _, v := range variations[:min(mixedVariations, len(variations))] {
		q, err := e.searchOnce(ctx, token, v, FilterAny, limit)
		if err != nil {
			return nil, err
		}
		if q != nil {
			q.MixedCondition = true
			e.logger.Info("[pricing] Found prices using %q (any condition)", v)
			return e.store(key, q, "mixed"), nil
		}
	}

	if broad := BroadTerm(searchTerm); broad != "" {
		q, err := e.searchOnce(ctx, token, broad, filter, limit)
		if err != nil {
			return nil, err
		}
		if q != nil {
			q.BroadMatch = true
			e.logger.Info("[pricing] Found prices using broad search %q", broad)
			return e.store(key, q, "broad"), nil
		}
	}

	metrics.RecordPriceLookup("not_found")
	e.logger.Info("[pricing] No results for %q after all fallback attempts", searchTerm)
	return nil, ErrNotFound
}

// CacheSize reports how many quotes are cached.
func (e *PriceEngine) CacheSize() int {
	return e.cache.Len()
}

func (e *PriceEngine) store(key string, q *models.PriceQuote, result string) *models.PriceQuote {
	e.cache.Set(key, q)
	metrics.RecordPriceLookup(result)
	return copyQuote(q)
}

// searchWithRetry returns (nil, nil) when all attempts came back empty or
// failed; only context cancellation is returned as an error.
func (e *PriceEngine) searchWithRetry(ctx context.Context, token, term, filter string, limit int) (*models.PriceQuote, error) {
	var quote *models.PriceQuote
	err := e.retry.Do(ctx, "search "+term, func(ctx context.Context) error {
		q, err := e.attempt(ctx, token, term, filter, limit)
		if err != nil {
			return err
		}
		quote = q
		return nil
	})
	if err == nil {
		return quote, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	e.logger.Debug("[pricing] %v", err)
	return nil, nil
}

func (e *PriceEngine) searchOnce(ctx context.Context, token, term, filter string, limit int) (*models.PriceQuote, error) {
	q, err := e.attempt(ctx, token, term, filter, limit)
	if err == nil {
		return q, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	e.logger.Debug("[pricing] search %q (%s): %v", term, filter, err)
	return nil, nil
}

// attempt issues one bounded search. Empty results are reported as
// utils.ErrEmptyResult so the retry policy treats them like failures.
func (e *PriceEngine) attempt(ctx context.Context, token, term, filter string, limit int) (*models.PriceQuote, error) {
	ctx, cancel := context.WithTimeout(ctx, e.attemptTimeout)
	defer cancel()

	metrics.RecordSearch()
	items, err := e.market.Search(ctx, token, term, filter, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}
	q := Summarize(term, items)
	if q == nil {
		return nil, utils.ErrEmptyResult
	}
	return q, nil
}

// Summarize aggregates USD-priced items with a positive price. It returns
// nil when no item qualifies.
func Summarize(term string, items []models.MarketItem) *models.PriceQuote {
	var valid []models.MarketItem
	for _, it := range items {
		if strings.EqualFold(it.Currency, "USD") && it.Price > 0 {
			valid = append(valid, it)
		}
	}
	if len(valid) == 0 {
		return nil
	}

	low, high := valid[0].Price, valid[0].Price
	var total float64
	for _, it := range valid {
		total += it.Price
		low = math.Min(low, it.Price)
		high = math.Max(high, it.Price)
	}

	samples := valid
	if len(samples) > maxSamples {
		samples = samples[:maxSamples]
	}

	return &models.PriceQuote{
		AvgPrice:    round2(total / float64(len(valid))),
		LowPrice:    round2(low),
		HighPrice:   round2(high),
		NumListings: len(valid),
		SearchTerm:  term,
		Samples:     append([]models.MarketItem(nil), samples...),
	}
}

func copyQuote(q *models.PriceQuote) *models.PriceQuote {
	c := *q
	c.Samples = append([]models.MarketItem(nil), q.Samples...)
	return &c
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
