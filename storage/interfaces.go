package storage

import (
	"context"
	"errors"

	"dealscout/models"
)

// ErrNotFound is returned when a deal id does not exist.
var ErrNotFound = errors.New("deal not found")

// DealStore is the interface any deal storage backend must satisfy.
// ListingURL is the unique natural key of a deal.
type DealStore interface {
	ExistsByListingURL(ctx context.Context, url string) (bool, error)
	// Insert stores a new deal and sets its ID. Inserting a URL that already
	// exists is a no-op that leaves d.ID zero.
	Insert(ctx context.Context, d *models.EnrichedDeal) error
	Update(ctx context.Context, d *models.EnrichedDeal) error
	Get(ctx context.Context, id int64) (*models.EnrichedDeal, error)
	CountNeedsReview(ctx context.Context) (int, error)

	ListDeviceTokens(ctx context.Context) ([]string, error)
	RegisterDeviceToken(ctx context.Context, token, platform string) error

	Close() error
}

// RawListingWriter is the interface for keeping an audit copy of ingested data.
type RawListingWriter interface {
	WriteRaw(listings []*models.RawListing) error
	Close() error
}

// ReportArchiver stores the summary of one enrichment tick.
type ReportArchiver interface {
	Archive(ctx context.Context, r *models.TickReport) error
}
