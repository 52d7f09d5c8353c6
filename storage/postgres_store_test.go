package storage

import (
	"reflect"
	"testing"
	"time"

	"dealscout/models"
)

func TestDealRowConversion(t *testing.T) {
	price, value, profit := 50.0, 120.0, 54.4
	miles := 9
	pickup := false
	notified := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	d := &models.EnrichedDeal{
		ID:                   3,
		Title:                "PS5",
		AskingPrice:          &price,
		ListingURL:           "https://x/1",
		ImageURLs:            []string{"https://img/1.jpg"},
		ItemDetails:          map[string]any{"storage": "825GB"},
		Condition:            models.ConditionUsed,
		MarketValue:          &value,
		EstimatedProfit:      &profit,
		PriceData:            &models.PriceQuote{AvgPrice: 120, NumListings: 4, SearchTerm: "Sony PS5"},
		DistanceMiles:        &miles,
		LocalPickupAvailable: &pickup,
		Status:               models.StatusNew,
		NotifiedAt:           &notified,
	}

	row, err := toRow(d)
	if err != nil {
		t.Fatal(err)
	}
	if row.MarketValue.Float64 != 120 || !row.DistanceMiles.Valid {
		t.Errorf("row: got %+v", row)
	}

	back, err := row.toDeal()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(back, d) {
		t.Errorf("conversion mismatch:\n got %+v\nwant %+v", back, d)
	}
}

func TestDealRowNullColumns(t *testing.T) {
	row, err := toRow(&models.EnrichedDeal{Title: "Unknown", ListingURL: "https://x/2"})
	if err != nil {
		t.Fatal(err)
	}
	if row.AskingPrice.Valid || row.ItemDetails.Valid || row.PriceData.Valid || row.NotifiedAt.Valid {
		t.Errorf("expected NULL columns, got %+v", row)
	}
	if row.ImageURLs != "[]" {
		t.Errorf("image_urls: got %q, want []", row.ImageURLs)
	}

	back, err := row.toDeal()
	if err != nil {
		t.Fatal(err)
	}
	if back.AskingPrice != nil || back.PriceData != nil || back.DistanceMiles != nil {
		t.Errorf("expected nil pointers, got %+v", back)
	}
}
