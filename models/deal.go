package models

import "time"

// MarketItem is one comparable item returned by a marketplace search.
type MarketItem struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Price     float64 `json:"price"`
	Currency  string  `json:"currency"`
	Condition string  `json:"condition"`
}

// PriceQuote holds aggregate price statistics from one price discovery call.
type PriceQuote struct {
	AvgPrice       float64      `json:"avg_price"`
	LowPrice       float64      `json:"low_price"`
	HighPrice      float64      `json:"high_price"`
	NumListings    int          `json:"num_listings"`
	SearchTerm     string       `json:"search_term_used"`
	MixedCondition bool         `json:"mixed_condition,omitempty"`
	BroadMatch     bool         `json:"broad_match,omitempty"`
	Samples        []MarketItem `json:"samples,omitempty"`
}

// Price status values stored on a deal.
const (
	PriceAccurate      = "accurate"
	PriceSimilarPrices = "similar_prices"
	PriceLimitedData   = "limited_data"
	PriceNoData        = "no_data"
	PriceUserSet       = "user_set"
	PriceMockData      = "mock_data"
)

// Deal status values.
const (
	StatusNew            = "new"
	StatusNeedsCondition = "needs_condition"
	StatusDismissed      = "dismissed"
	StatusPurchased      = "purchased"
)

// Stage is the enrichment state of a listing during one pipeline pass.
type Stage string

const (
	StageIngested    Stage = "ingested"
	StageClassified  Stage = "classified"
	StageNeedsReview Stage = "needs_review"
	StagePriced      Stage = "priced"
	StageDecided     Stage = "decided"
	StagePersisted   Stage = "persisted"
)

// EnrichedDeal is the persisted record for one unique listing URL.
type EnrichedDeal struct {
	ID          int64    `json:"id"`
	Title       string   `json:"title"`
	AskingPrice *float64 `json:"asking_price"`
	Source      string   `json:"source"`
	ListingURL  string   `json:"listing_url"`
	Location    string   `json:"location,omitempty"`
	ImageURLs   []string `json:"image_urls,omitempty"`

	Category            string         `json:"category,omitempty"`
	Subcategory         string         `json:"subcategory,omitempty"`
	Brand               string         `json:"brand,omitempty"`
	Model               string         `json:"model,omitempty"`
	ItemDetails         map[string]any `json:"item_details,omitempty"`
	Condition           string         `json:"condition,omitempty"`
	ConditionConfidence string         `json:"condition_confidence,omitempty"`

	MarketValue     *float64    `json:"market_value"`
	EstimatedProfit *float64    `json:"estimated_profit"`
	PriceStatus     string      `json:"price_status,omitempty"`
	PriceNote       string      `json:"price_note,omitempty"`
	PriceData       *PriceQuote `json:"price_data,omitempty"`

	DistanceMiles        *int  `json:"distance_miles"`
	LocalPickupAvailable *bool `json:"local_pickup_available,omitempty"`

	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	NotifiedAt *time.Time `json:"notified_at"`
}

// NewDeal builds the minimal record for a raw listing. Classification and
// pricing fields stay empty until enrichment fills them.
func NewDeal(r *RawListing) *EnrichedDeal {
	title := r.Title
	if title == "" {
		title = "Unknown"
	}
	return &EnrichedDeal{
		Title:       title,
		AskingPrice: r.AskingPrice,
		Source:      r.Platform,
		ListingURL:  r.URL,
		Location:    r.Location,
		ImageURLs:   r.ImageURLs,
		Status:      StatusNew,
		CreatedAt:   time.Now().UTC(),
	}
}

// ApplyClassification copies classifier output onto the deal.
func (d *EnrichedDeal) ApplyClassification(c *Classification) {
	d.Category = c.Category
	d.Subcategory = c.Subcategory
	d.Brand = c.Brand
	d.Model = c.Model
	d.ItemDetails = c.ItemDetails
	d.Condition = c.Condition
	d.ConditionConfidence = c.ConditionConfidence
}

// SearchTerm is the marketplace query for an already classified deal.
func (d *EnrichedDeal) SearchTerm() string {
	return buildSearchTerm(d.Brand, d.Model, d.Subcategory)
}

// TickReport summarises one enrichment tick.
type TickReport struct {
	RunID       string    `json:"run_id"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Fetched     int       `json:"fetched"`
	Skipped     int       `json:"skipped"`
	Persisted   int       `json:"persisted"`
	NeedsReview int       `json:"needs_review"`
	Priced      int       `json:"priced"`
	NoData      int       `json:"no_data"`
	Notified    int       `json:"notified"`
	Failed      int       `json:"failed"`

	AverageProfit float64        `json:"average_profit"`
	MinProfit     float64        `json:"min_profit"`
	MaxProfit     float64        `json:"max_profit"`
	BestDeal      *EnrichedDeal  `json:"best_deal,omitempty"`
	ByStatus      map[string]int `json:"by_price_status"`
}
