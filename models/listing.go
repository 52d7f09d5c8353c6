package models

import "time"

// Alert is one raw deal alert as delivered by the alert relay, before any
// parsing. Subject and body are free text.
type Alert struct {
	ID         string    `json:"id"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	ReceivedAt time.Time `json:"received_at"`
}

// RawListing is a candidate resale listing produced by ingestion.
// URL is the natural key; the record is not modified after ingestion
// except by detail scraping, which only fills empty fields.
type RawListing struct {
	Title       string
	AskingPrice *float64
	Platform    string
	URL         string
	Location    string
	ImageURLs   []string
	ReceivedAt  time.Time
}

// Condition values produced by classification or set by a user.
const (
	ConditionNew         = "new"
	ConditionUsed        = "used"
	ConditionNeedsRepair = "needs_repair"
	ConditionUnknown     = "unknown"
)

// Condition confidence values.
const (
	ConfidenceExplicit      = "explicit"
	ConfidenceUnclear       = "unclear"
	ConfidenceUserConfirmed = "user_confirmed"
)

// Classification is the structured result of classifying a listing title.
// ItemDetails is an open attribute map; it is only validated where it is
// consumed.
type Classification struct {
	Category            string
	Subcategory         string
	Brand               string
	Model               string
	ItemDetails         map[string]any
	Condition           string
	ConditionConfidence string
}

// SearchTerm builds the marketplace query for the classified item:
// brand + model, falling back to the subcategory when the model is unknown.
func (c *Classification) SearchTerm() string {
	return buildSearchTerm(c.Brand, c.Model, c.Subcategory)
}

func buildSearchTerm(brand, model, subcategory string) string {
	item := model
	if item == "" {
		item = subcategory
	}
	switch {
	case brand == "":
		return item
	case item == "":
		return brand
	default:
		return brand + " " + item
	}
}
