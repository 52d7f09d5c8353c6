package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"dealscout/metrics"
	"dealscout/models"
	"dealscout/storage"
	"dealscout/utils"
)

var (
	// ErrSourceUnavailable aborts a tick; the next scheduled tick retries.
	ErrSourceUnavailable = errors.New("listing source unavailable")
	// ErrInvalidCondition rejects a user-supplied condition.
	ErrInvalidCondition = errors.New("condition must be 'new', 'used', or 'needs_repair'")
	// ErrInvalidMarketValue rejects a non-positive manual market value.
	ErrInvalidMarketValue = errors.New("market value must be positive")
	// ErrAlreadyPurchased rejects a second purchase of the same deal.
	ErrAlreadyPurchased = errors.New("deal already purchased")
)

// ListingSource yields recently ingested raw listings.
type ListingSource interface {
	FetchRecentRawListings(ctx context.Context, max int) ([]*models.RawListing, error)
}

// Classifier turns a listing title into a structured classification. A nil
// classification with a nil error means the classifier had nothing to say.
type Classifier interface {
	Classify(ctx context.Context, text string) (*models.Classification, error)
}

// Notifier delivers push notifications to one device token.
type Notifier interface {
	SendDealAlert(ctx context.Context, token string, d *models.EnrichedDeal) error
	SendNeedsReview(ctx context.Context, token string, count int) error
}

// PriceFinder is implemented by PriceEngine.
type PriceFinder interface {
	FindMarketValue(ctx context.Context, searchTerm, condition string, limit int) (*models.PriceQuote, error)
}

// PickupChecker reports whether comparable items can be picked up locally.
type PickupChecker interface {
	HasLocalPickup(ctx context.Context, searchTerm, condition string) (bool, error)
}

// EnricherDeps are the collaborators of the Enricher. Pickup, RawSink and
// Archive are optional.
type EnricherDeps struct {
	Source     ListingSource
	Classifier Classifier
	Prices     PriceFinder
	Notifier   Notifier
	Store      storage.DealStore
	Distance   *DistanceResolver
	Profit     *ProfitCalculator
	Pickup     PickupChecker
	RawSink    storage.RawListingWriter
	Archive    storage.ReportArchiver
}

// EnricherOptions tunes one enrichment tick.
type EnricherOptions struct {
	BatchSize         int
	SearchLimit       int
	PickupRadiusMiles int
	MaxConcurrency    int
	RateLimitMs       int
	// CallTimeout bounds classification, pickup and notification calls.
	CallTimeout time.Duration
}

// Enricher runs the per-listing enrichment pipeline:
// ingested → classified → priced → decided → persisted, with listings of
// unknown condition parked in needs_review after classification.
type Enricher struct {
	deps     EnricherDeps
	opts     EnricherOptions
	insights *InsightService
	logger   *utils.Logger
}

// NewEnricher creates an Enricher. Zero options fall back to a batch of 20,
// 20 comparables per search, a 100 mile pickup radius and 15s call timeouts.
func NewEnricher(deps EnricherDeps, opts EnricherOptions, logger *utils.Logger) *Enricher {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 20
	}
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = defaultSearchLimit
	}
	if opts.PickupRadiusMiles <= 0 {
		opts.PickupRadiusMiles = 100
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 1
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 15 * time.Second
	}
	logger = logger.WithComponent("enricher")
	return &Enricher{
		deps:     deps,
		opts:     opts,
		insights: NewInsightService(logger),
		logger:   logger,
	}
}

// listingResult is the outcome of one listing within a tick.
type listingResult struct {
	deal     *models.EnrichedDeal
	stage    models.Stage
	skipped  bool
	notified bool
	err      error
}

// RunEnrichmentTick fetches a batch of raw listings and enriches every one
// not seen before. A fetch failure aborts the tick with ErrSourceUnavailable;
// any other failure is confined to the listing it happened on. When ctx is
// cancelled, listings already started run to completion and the rest are
// left for the next tick.
func (e *Enricher) RunEnrichmentTick(ctx context.Context) (*models.TickReport, error) {
	report := &models.TickReport{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		ByStatus:  make(map[string]int),
	}
	log := e.logger.WithField("run_id", report.RunID)

	raw, err := e.deps.Source.FetchRecentRawListings(ctx, e.opts.BatchSize)
	if err != nil {
		if !errors.Is(err, ErrSourceUnavailable) {
			err = fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
		}
		log.WithError(err).Error("[enricher] Fetch failed, aborting tick")
		return nil, err
	}
	report.Fetched = len(raw)
	log.Info("[enricher] Fetched %d raw listings", len(raw))

	if e.deps.RawSink != nil && len(raw) > 0 {
		if err := e.deps.RawSink.WriteRaw(raw); err != nil {
			log.WithError(err).Warn("[enricher] Raw listing audit write failed")
		}
	}

	tokens, err := e.listTokens(ctx)
	if err != nil {
		log.WithError(err).Warn("[enricher] Could not load device tokens, notifications disabled for this tick")
		tokens = nil
	}

	var (
		mu        sync.Mutex
		persisted []*models.EnrichedDeal
	)
	record := func(res listingResult) {
		mu.Lock()
		defer mu.Unlock()
		e.tally(report, res)
		if res.deal != nil && res.stage == models.StagePersisted {
			persisted = append(persisted, res.deal)
		}
	}

	seen := utils.NewURLSet()
	pool := utils.NewWorkerPool(e.opts.MaxConcurrency, e.opts.RateLimitMs)
	for _, r := range raw {
		r := r
		if r.URL == "" || !seen.Add(r.URL) {
			record(listingResult{skipped: true})
			continue
		}
		err := pool.SubmitContext(ctx, func() {
			if ctx.Err() != nil {
				return
			}
			// a started listing is finished even during shutdown
			res := e.processListing(context.WithoutCancel(ctx), tokens, r)
			if res.err != nil {
				log.WithField("listing_url", r.URL).WithError(res.err).
					Error("[enricher] Listing failed at stage %s", res.stage)
			}
			record(res)
		})
		if err != nil {
			log.Warn("[enricher] Shutting down, leaving remaining listings for the next tick")
			break
		}
	}
	pool.Wait()

	report.FinishedAt = time.Now().UTC()
	e.insights.Generate(report, persisted)
	e.insights.Log(report)

	if e.deps.Archive != nil {
		actx, cancel := e.bounded(context.WithoutCancel(ctx))
		err := e.deps.Archive.Archive(actx, report)
		cancel()
		if err != nil {
			log.WithError(err).Warn("[enricher] Report archive failed")
		}
	}
	return report, nil
}

func (e *Enricher) tally(r *models.TickReport, res listingResult) {
	switch {
	case res.skipped:
		r.Skipped++
		metrics.RecordDeal("skipped")
		return
	case res.err != nil:
		r.Failed++
		metrics.RecordDeal("failed")
	}
	if res.stage != models.StagePersisted {
		return
	}
	r.Persisted++
	metrics.RecordDeal("persisted")
	if res.notified {
		r.Notified++
	}
	switch d := res.deal; {
	case d.Status == models.StatusNeedsCondition:
		r.NeedsReview++
		metrics.RecordDeal("needs_review")
	case d.PriceStatus == models.PriceNoData:
		r.NoData++
	case d.MarketValue != nil:
		r.Priced++
	}
}

// processListing owns the enrichment of one listing. Panics and errors after
// the dedup check still leave a persisted record with whatever was filled in.
func (e *Enricher) processListing(ctx context.Context, tokens []string, r *models.RawListing) (res listingResult) {
	sctx, cancel := e.bounded(ctx)
	exists, err := e.deps.Store.ExistsByListingURL(sctx, r.URL)
	cancel()
	if err != nil {
		return listingResult{stage: models.StageIngested, err: fmt.Errorf("dedup check: %w", err)}
	}
	if exists {
		return listingResult{skipped: true}
	}

	deal := models.NewDeal(r)
	res = listingResult{deal: deal, stage: models.StageIngested}
	log := e.logger.WithField("listing_url", r.URL)

	notify := func() (ok bool) {
		defer func() {
			if p := recover(); p != nil {
				res.err = fmt.Errorf("panic during %s: %v", res.stage, p)
				ok = false
			}
		}()
		return e.enrich(ctx, deal, &res, log)
	}()

	sctx, cancel = e.bounded(ctx)
	err = e.deps.Store.Insert(sctx, deal)
	cancel()
	if err != nil {
		res.err = errors.Join(res.err, fmt.Errorf("persist: %w", err))
		return res
	}
	if deal.ID == 0 {
		// another writer stored this URL between the dedup check and insert
		return listingResult{skipped: true}
	}
	res.stage = models.StagePersisted

	if notify {
		res.notified = e.notifyDeal(ctx, deal, tokens, log)
	}
	return res
}

// enrich runs classification, pricing and the notification decision on deal.
// It reports whether the deal should be pushed to devices.
func (e *Enricher) enrich(ctx context.Context, deal *models.EnrichedDeal, res *listingResult, log *utils.Logger) bool {
	if deal.Location != "" && e.deps.Distance != nil {
		deal.DistanceMiles = e.deps.Distance.DistanceFromHome(deal.Location)
	}

	cls, err := e.classify(ctx, deal.Title)
	if err != nil {
		log.WithError(err).Warn("[enricher] Classification failed, storing minimal record")
		return false
	}
	if cls == nil {
		log.Warn("[enricher] Classifier returned nothing, storing minimal record")
		return false
	}
	deal.ApplyClassification(cls)
	res.stage = models.StageClassified

	if deal.Condition == models.ConditionUnknown {
		deal.Status = models.StatusNeedsCondition
		res.stage = models.StageNeedsReview
		log.Info("[enricher] Condition unknown, parked for review: %s", deal.Title)
		return false
	}

	e.priceDeal(ctx, deal, log)
	res.stage = models.StagePriced

	if strings.EqualFold(deal.Source, "ebay") && deal.SearchTerm() != "" {
		e.checkLocalPickup(ctx, deal, log)
	}

	res.stage = models.StageDecided
	return deal.NotifiedAt == nil && e.deps.Profit.ClearsThreshold(deal.EstimatedProfit)
}

func (e *Enricher) classify(ctx context.Context, title string) (*models.Classification, error) {
	if e.deps.Classifier == nil {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
	defer cancel()
	return e.deps.Classifier.Classify(ctx, title)
}

// priceDeal looks up the market value of an already classified deal and
// fills the price fields. It never fails: a missing quote is recorded as
// no_data with a note explaining why.
func (e *Enricher) priceDeal(ctx context.Context, deal *models.EnrichedDeal, log *utils.Logger) {
	term := deal.SearchTerm()
	if term == "" {
		deal.PriceStatus = models.PriceNoData
		deal.PriceNote = "Insufficient product info for lookup"
		return
	}

	quote, err := e.deps.Prices.FindMarketValue(ctx, term, deal.Condition, e.opts.SearchLimit)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.WithError(err).Warn("[enricher] Price lookup failed for %q", term)
		}
		deal.MarketValue = nil
		deal.EstimatedProfit = nil
		deal.PriceData = nil
		deal.PriceStatus = models.PriceNoData
		deal.PriceNote = "Could not find market prices"
		return
	}

	avg := quote.AvgPrice
	deal.MarketValue = &avg
	deal.PriceData = quote
	deal.EstimatedProfit = e.deps.Profit.Estimated(deal.AskingPrice, deal.MarketValue)
	deal.PriceStatus, deal.PriceNote = PriceStatusFor(quote)
}

// PriceStatusFor grades a quote by sample count and spread.
//
//	≥5 listings with a range under 30% of the average → accurate
//	≥3 listings                                       → similar_prices
//	otherwise                                         → limited_data
func PriceStatusFor(q *models.PriceQuote) (status, note string) {
	spread := q.HighPrice - q.LowPrice
	switch {
	case q.NumListings >= 5 && spread < q.AvgPrice*0.3:
		return models.PriceAccurate, fmt.Sprintf("Based on %d similar listings", q.NumListings)
	case q.NumListings >= 3:
		return models.PriceSimilarPrices, fmt.Sprintf("Prices vary ($%.0f-$%.0f)", q.LowPrice, q.HighPrice)
	default:
		return models.PriceLimitedData, fmt.Sprintf("Only %d listings found", q.NumListings)
	}
}

// checkLocalPickup marks eBay-sourced deals near home with whether
// comparables can be picked up locally. An unresolved distance is checked too.
func (e *Enricher) checkLocalPickup(ctx context.Context, deal *models.EnrichedDeal, log *utils.Logger) {
	if e.deps.Pickup == nil {
		return
	}
	if deal.DistanceMiles != nil && *deal.DistanceMiles > e.opts.PickupRadiusMiles {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
	defer cancel()

	found, err := e.deps.Pickup.HasLocalPickup(ctx, deal.SearchTerm(), deal.Condition)
	if err != nil {
		log.WithError(err).Warn("[enricher] Local pickup check failed")
		deal.LocalPickupAvailable = nil
		return
	}
	deal.LocalPickupAvailable = &found
}

// notifyDeal fans the alert out to every token concurrently. A failing token
// does not affect the others. NotifiedAt is recorded once at least one
// delivery succeeded.
func (e *Enricher) notifyDeal(ctx context.Context, deal *models.EnrichedDeal, tokens []string, log *utils.Logger) bool {
	if deal.NotifiedAt != nil || len(tokens) == 0 {
		return false
	}

	delivered := e.fanOut(ctx, tokens, "deal", func(ctx context.Context, token string) error {
		return e.deps.Notifier.SendDealAlert(ctx, token, deal)
	}, log)
	if delivered == 0 {
		log.Warn("[enricher] No device accepted the alert for deal %d", deal.ID)
		return false
	}

	now := time.Now().UTC()
	deal.NotifiedAt = &now
	if err := e.saveDeal(ctx, deal); err != nil {
		log.WithError(err).Error("[enricher] Could not record notified_at for deal %d", deal.ID)
	}
	log.Info("[enricher] Notified %d/%d devices: %s (profit $%.2f)",
		delivered, len(tokens), deal.Title, *deal.EstimatedProfit)
	return true
}

// fanOut calls send for every token in parallel and returns how many
// deliveries succeeded.
func (e *Enricher) fanOut(ctx context.Context, tokens []string, kind string, send func(context.Context, string) error, log *utils.Logger) int {
	if e.deps.Notifier == nil {
		return 0
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		delivered int
	)
	for _, token := range tokens {
		wg.Add(1)
		go func(token string) {
			defer wg.Done()
			defer func() {
				if p := recover(); p != nil {
					log.Error("[enricher] %s notification panicked for token %s: %v", kind, redactToken(token), p)
					metrics.RecordNotification(kind, false)
				}
			}()

			tctx, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
			defer cancel()
			err := send(tctx, token)
			metrics.RecordNotification(kind, err == nil)
			if err != nil {
				log.WithError(err).Warn("[enricher] %s notification failed for token %s", kind, redactToken(token))
				return
			}
			mu.Lock()
			delivered++
			mu.Unlock()
		}(token)
	}
	wg.Wait()
	return delivered
}

// RunNeedsReviewSweep counts deals waiting for a condition and, if there are
// any, sends the count to every registered device. It returns the count.
func (e *Enricher) RunNeedsReviewSweep(ctx context.Context) (int, error) {
	sctx, cancel := e.bounded(ctx)
	count, err := e.deps.Store.CountNeedsReview(sctx)
	cancel()
	if err != nil {
		return 0, fmt.Errorf("count needs review: %w", err)
	}
	if count == 0 {
		e.logger.Debug("[enricher] No deals need review")
		return 0, nil
	}

	tokens, err := e.listTokens(ctx)
	if err != nil {
		return count, fmt.Errorf("list device tokens: %w", err)
	}
	delivered := e.fanOut(ctx, tokens, "needs_review", func(ctx context.Context, token string) error {
		return e.deps.Notifier.SendNeedsReview(ctx, token, count)
	}, e.logger)
	e.logger.Info("[enricher] %d deals need review, notified %d/%d devices", count, delivered, len(tokens))
	return count, nil
}

// UpdateCondition applies a user-confirmed condition to a deal and re-prices
// it. A profitable deal that was never notified is notified now.
func (e *Enricher) UpdateCondition(ctx context.Context, id int64, condition string) (*models.EnrichedDeal, error) {
	condition = strings.ToLower(strings.TrimSpace(condition))
	switch condition {
	case models.ConditionNew, models.ConditionUsed, models.ConditionNeedsRepair:
	default:
		return nil, ErrInvalidCondition
	}

	deal, err := e.getDeal(ctx, id)
	if err != nil {
		return nil, err
	}
	log := e.logger.WithField("listing_url", deal.ListingURL)

	deal.Condition = condition
	deal.ConditionConfidence = models.ConfidenceUserConfirmed
	deal.Status = models.StatusNew
	e.priceDeal(ctx, deal, log)

	if err := e.saveDeal(ctx, deal); err != nil {
		return nil, fmt.Errorf("update deal %d: %w", id, err)
	}

	if deal.NotifiedAt == nil && e.deps.Profit.ClearsThreshold(deal.EstimatedProfit) {
		tokens, err := e.listTokens(ctx)
		if err != nil {
			log.WithError(err).Warn("[enricher] Could not load device tokens")
		} else {
			e.notifyDeal(ctx, deal, tokens, log)
		}
	}
	return deal, nil
}

// SetMarketValue records a manually entered market value and recomputes profit.
func (e *Enricher) SetMarketValue(ctx context.Context, id int64, value float64) (*models.EnrichedDeal, error) {
	if value <= 0 {
		return nil, ErrInvalidMarketValue
	}
	deal, err := e.getDeal(ctx, id)
	if err != nil {
		return nil, err
	}

	deal.MarketValue = &value
	deal.EstimatedProfit = e.deps.Profit.Estimated(deal.AskingPrice, deal.MarketValue)
	deal.PriceStatus = models.PriceUserSet
	deal.PriceNote = "Manually entered by user"

	if err := e.saveDeal(ctx, deal); err != nil {
		return nil, fmt.Errorf("update deal %d: %w", id, err)
	}
	return deal, nil
}

// Dismiss marks a deal as not interesting.
func (e *Enricher) Dismiss(ctx context.Context, id int64) (*models.EnrichedDeal, error) {
	deal, err := e.getDeal(ctx, id)
	if err != nil {
		return nil, err
	}
	deal.Status = models.StatusDismissed
	if err := e.saveDeal(ctx, deal); err != nil {
		return nil, fmt.Errorf("update deal %d: %w", id, err)
	}
	return deal, nil
}

// bounded limits one store or archive call to CallTimeout.
func (e *Enricher) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.opts.CallTimeout)
}

func (e *Enricher) listTokens(ctx context.Context) ([]string, error) {
	ctx, cancel := e.bounded(ctx)
	defer cancel()
	return e.deps.Store.ListDeviceTokens(ctx)
}

// MarkPurchased records that the user bought the deal.
func (e *Enricher) MarkPurchased(ctx context.Context, id int64) (*models.EnrichedDeal, error) {
	deal, err := e.getDeal(ctx, id)
	if err != nil {
		return nil, err
	}
	if deal.Status == models.StatusPurchased {
		return nil, ErrAlreadyPurchased
	}
	deal.Status = models.StatusPurchased
	if err := e.saveDeal(ctx, deal); err != nil {
		return nil, fmt.Errorf("update deal %d: %w", id, err)
	}
	return deal, nil
}

func (e *Enricher) getDeal(ctx context.Context, id int64) (*models.EnrichedDeal, error) {
	ctx, cancel := e.bounded(ctx)
	defer cancel()
	return e.deps.Store.Get(ctx, id)
}

func (e *Enricher) saveDeal(ctx context.Context, d *models.EnrichedDeal) error {
	ctx, cancel := e.bounded(ctx)
	defer cancel()
	return e.deps.Store.Update(ctx, d)
}

func redactToken(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "…" + token[len(token)-4:]
}
