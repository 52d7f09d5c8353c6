// Package listing turns relay alerts into raw listings for the enricher.
package listing

import (
	"context"

	"dealscout/models"
	"dealscout/services"
	"dealscout/utils"
)

// AlertFetcher returns recent raw alerts.
type AlertFetcher interface {
	FetchAlerts(ctx context.Context, max int) ([]*models.Alert, error)
}

// DetailFiller fills missing listing fields from the listing page.
type DetailFiller interface {
	Enrich(ctx context.Context, listings []*models.RawListing)
}

// Source implements services.ListingSource on top of an alert feed.
type Source struct {
	alerts  AlertFetcher
	cleaner *services.Cleaner
	details DetailFiller
	logger  *utils.Logger
}

// NewSource wires a feed and cleaner. details may be nil.
func NewSource(alerts AlertFetcher, cleaner *services.Cleaner, details DetailFiller, logger *utils.Logger) *Source {
	return &Source{
		alerts:  alerts,
		cleaner: cleaner,
		details: details,
		logger:  logger.WithComponent("source"),
	}
}

// FetchRecentRawListings fetches up to max alerts and returns the parsed,
// URL-unique listings among them.
func (s *Source) FetchRecentRawListings(ctx context.Context, max int) ([]*models.RawListing, error) {
	alerts, err := s.alerts.FetchAlerts(ctx, max)
	if err != nil {
		return nil, err
	}

	listings := s.cleaner.Clean(alerts)
	if s.details != nil && len(listings) > 0 {
		s.details.Enrich(ctx, listings)
	}

	s.logger.Info("[source] %d alerts -> %d listings", len(alerts), len(listings))
	return listings, nil
}
