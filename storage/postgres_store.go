package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"dealscout/models"
)

// PostgresStore persists deals and device tokens in PostgreSQL.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore opens a connection to PostgreSQL, runs schema migrations,
// and returns a ready-to-use PostgresStore.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	ps := &PostgresStore{db: db}
	if err := ps.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return ps, nil
}

func (ps *PostgresStore) migrate() error {
	_, err := ps.db.Exec(`
		CREATE TABLE IF NOT EXISTS deals (
			id                     BIGSERIAL PRIMARY KEY,
			title                  TEXT          NOT NULL,
			asking_price           NUMERIC(10,2),
			source                 VARCHAR(50)   NOT NULL DEFAULT '',
			listing_url            TEXT          UNIQUE NOT NULL,
			location               TEXT          NOT NULL DEFAULT '',
			image_urls             JSONB         NOT NULL DEFAULT '[]',
			category               TEXT          NOT NULL DEFAULT '',
			subcategory            TEXT          NOT NULL DEFAULT '',
			brand                  TEXT          NOT NULL DEFAULT '',
			model                  TEXT          NOT NULL DEFAULT '',
			item_details           JSONB,
			condition              VARCHAR(20)   NOT NULL DEFAULT '',
			condition_confidence   VARCHAR(20)   NOT NULL DEFAULT '',
			market_value           NUMERIC(10,2),
			estimated_profit       NUMERIC(10,2),
			price_status           VARCHAR(20)   NOT NULL DEFAULT '',
			price_note             TEXT          NOT NULL DEFAULT '',
			price_data             JSONB,
			distance_miles         INTEGER,
			local_pickup_available BOOLEAN,
			status                 VARCHAR(20)   NOT NULL DEFAULT 'new',
			created_at             TIMESTAMPTZ   NOT NULL DEFAULT NOW(),
			notified_at            TIMESTAMPTZ
		);

		CREATE INDEX IF NOT EXISTS idx_deals_status     ON deals(status);
		CREATE INDEX IF NOT EXISTS idx_deals_created_at ON deals(created_at);

		CREATE TABLE IF NOT EXISTS device_tokens (
			token      TEXT        PRIMARY KEY,
			platform   VARCHAR(20) NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	return err
}

// dealRow is the column layout of the deals table.
type dealRow struct {
	ID                   int64           `db:"id"`
	Title                string          `db:"title"`
	AskingPrice          sql.NullFloat64 `db:"asking_price"`
	Source               string          `db:"source"`
	ListingURL           string          `db:"listing_url"`
	Location             string          `db:"location"`
	ImageURLs            string          `db:"image_urls"`
	Category             string          `db:"category"`
	Subcategory          string          `db:"subcategory"`
	Brand                string          `db:"brand"`
	Model                string          `db:"model"`
	ItemDetails          sql.NullString  `db:"item_details"`
	Condition            string          `db:"condition"`
	ConditionConfidence  string          `db:"condition_confidence"`
	MarketValue          sql.NullFloat64 `db:"market_value"`
	EstimatedProfit      sql.NullFloat64 `db:"estimated_profit"`
	PriceStatus          string          `db:"price_status"`
	PriceNote            string          `db:"price_note"`
	PriceData            sql.NullString  `db:"price_data"`
	DistanceMiles        sql.NullInt64   `db:"distance_miles"`
	LocalPickupAvailable sql.NullBool    `db:"local_pickup_available"`
	Status               string          `db:"status"`
	CreatedAt            time.Time       `db:"created_at"`
	NotifiedAt           sql.NullTime    `db:"notified_at"`
}

func toRow(d *models.EnrichedDeal) (*dealRow, error) {
	r := &dealRow{
		ID:                  d.ID,
		Title:               d.Title,
		AskingPrice:         nullFloat(d.AskingPrice),
		Source:              d.Source,
		ListingURL:          d.ListingURL,
		Location:            d.Location,
		Category:            d.Category,
		Subcategory:         d.Subcategory,
		Brand:               d.Brand,
		Model:               d.Model,
		Condition:           d.Condition,
		ConditionConfidence: d.ConditionConfidence,
		MarketValue:         nullFloat(d.MarketValue),
		EstimatedProfit:     nullFloat(d.EstimatedProfit),
		PriceStatus:         d.PriceStatus,
		PriceNote:           d.PriceNote,
		Status:              d.Status,
		CreatedAt:           d.CreatedAt,
	}
	if d.DistanceMiles != nil {
		r.DistanceMiles = sql.NullInt64{Int64: int64(*d.DistanceMiles), Valid: true}
	}
	if d.LocalPickupAvailable != nil {
		r.LocalPickupAvailable = sql.NullBool{Bool: *d.LocalPickupAvailable, Valid: true}
	}
	if d.NotifiedAt != nil {
		r.NotifiedAt = sql.NullTime{Time: *d.NotifiedAt, Valid: true}
	}

	images := d.ImageURLs
	if images == nil {
		images = []string{}
	}
	b, err := json.Marshal(images)
	if err != nil {
		return nil, fmt.Errorf("postgres: encode image_urls: %w", err)
	}
	r.ImageURLs = string(b)
	if d.ItemDetails != nil {
		if r.ItemDetails, err = jsonColumn(d.ItemDetails); err != nil {
			return nil, fmt.Errorf("postgres: encode item_details: %w", err)
		}
	}
	if d.PriceData != nil {
		if r.PriceData, err = jsonColumn(d.PriceData); err != nil {
			return nil, fmt.Errorf("postgres: encode price_data: %w", err)
		}
	}
	return r, nil
}

func (r *dealRow) toDeal() (*models.EnrichedDeal, error) {
	d := &models.EnrichedDeal{
		ID:                  r.ID,
		Title:               r.Title,
		AskingPrice:         floatPtr(r.AskingPrice),
		Source:              r.Source,
		ListingURL:          r.ListingURL,
		Location:            r.Location,
		Category:            r.Category,
		Subcategory:         r.Subcategory,
		Brand:               r.Brand,
		Model:               r.Model,
		Condition:           r.Condition,
		ConditionConfidence: r.ConditionConfidence,
		MarketValue:         floatPtr(r.MarketValue),
		EstimatedProfit:     floatPtr(r.EstimatedProfit),
		PriceStatus:         r.PriceStatus,
		PriceNote:           r.PriceNote,
		Status:              r.Status,
		CreatedAt:           r.CreatedAt,
	}
	if r.DistanceMiles.Valid {
		miles := int(r.DistanceMiles.Int64)
		d.DistanceMiles = &miles
	}
	if r.LocalPickupAvailable.Valid {
		pickup := r.LocalPickupAvailable.Bool
		d.LocalPickupAvailable = &pickup
	}
	if r.NotifiedAt.Valid {
		at := r.NotifiedAt.Time
		d.NotifiedAt = &at
	}
	if r.ImageURLs != "" {
		if err := json.Unmarshal([]byte(r.ImageURLs), &d.ImageURLs); err != nil {
			return nil, fmt.Errorf("postgres: decode image_urls: %w", err)
		}
	}
	if r.ItemDetails.Valid {
		if err := json.Unmarshal([]byte(r.ItemDetails.String), &d.ItemDetails); err != nil {
			return nil, fmt.Errorf("postgres: decode item_details: %w", err)
		}
	}
	if r.PriceData.Valid {
		d.PriceData = &models.PriceQuote{}
		if err := json.Unmarshal([]byte(r.PriceData.String), d.PriceData); err != nil {
			return nil, fmt.Errorf("postgres: decode price_data: %w", err)
		}
	}
	return d, nil
}

func (ps *PostgresStore) ExistsByListingURL(ctx context.Context, url string) (bool, error) {
	var exists bool
	err := ps.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM deals WHERE listing_url = $1)`, url)
	if err != nil {
		return false, fmt.Errorf("postgres: exists: %w", err)
	}
	return exists, nil
}

// Insert relies on the unique listing_url; a conflicting row returns no id.
func (ps *PostgresStore) Insert(ctx context.Context, d *models.EnrichedDeal) error {
	row, err := toRow(d)
	if err != nil {
		return err
	}

	query, args, err := ps.db.BindNamed(`
		INSERT INTO deals (
			title, asking_price, source, listing_url, location, image_urls,
			category, subcategory, brand, model, item_details, condition, condition_confidence,
			market_value, estimated_profit, price_status, price_note, price_data,
			distance_miles, local_pickup_available, status, created_at, notified_at
		) VALUES (
			:title, :asking_price, :source, :listing_url, :location, :image_urls,
			:category, :subcategory, :brand, :model, :item_details, :condition, :condition_confidence,
			:market_value, :estimated_profit, :price_status, :price_note, :price_data,
			:distance_miles, :local_pickup_available, :status, :created_at, :notified_at
		)
		ON CONFLICT (listing_url) DO NOTHING
		RETURNING id
	`, row)
	if err != nil {
		return fmt.Errorf("postgres: bind insert: %w", err)
	}

	var id int64
	err = ps.db.QueryRowxContext(ctx, query, args...).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil
	case err != nil:
		return fmt.Errorf("postgres: insert: %w", err)
	}
	d.ID = id
	return nil
}

func (ps *PostgresStore) Update(ctx context.Context, d *models.EnrichedDeal) error {
	row, err := toRow(d)
	if err != nil {
		return err
	}

	res, err := ps.db.NamedExecContext(ctx, `
		UPDATE deals SET
			title = :title, asking_price = :asking_price, location = :location, image_urls = :image_urls,
			category = :category, subcategory = :subcategory, brand = :brand, model = :model,
			item_details = :item_details, condition = :condition, condition_confidence = :condition_confidence,
			market_value = :market_value, estimated_profit = :estimated_profit,
			price_status = :price_status, price_note = :price_note, price_data = :price_data,
			distance_miles = :distance_miles, local_pickup_available = :local_pickup_available,
			status = :status, notified_at = :notified_at
		WHERE id = :id
	`, row)
	if err != nil {
		return fmt.Errorf("postgres: update: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (ps *PostgresStore) Get(ctx context.Context, id int64) (*models.EnrichedDeal, error) {
	var row dealRow
	err := ps.db.GetContext(ctx, &row, `SELECT * FROM deals WHERE id = $1`, id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("postgres: get: %w", err)
	}
	return row.toDeal()
}

func (ps *PostgresStore) CountNeedsReview(ctx context.Context) (int, error) {
	var n int
	err := ps.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM deals WHERE status = $1`, models.StatusNeedsCondition)
	if err != nil {
		return 0, fmt.Errorf("postgres: count needs review: %w", err)
	}
	return n, nil
}

func (ps *PostgresStore) ListDeviceTokens(ctx context.Context) ([]string, error) {
	var tokens []string
	if err := ps.db.SelectContext(ctx, &tokens, `SELECT token FROM device_tokens ORDER BY token`); err != nil {
		return nil, fmt.Errorf("postgres: list device tokens: %w", err)
	}
	return tokens, nil
}

func (ps *PostgresStore) RegisterDeviceToken(ctx context.Context, token, platform string) error {
	_, err := ps.db.ExecContext(ctx, `
		INSERT INTO device_tokens (token, platform) VALUES ($1, $2)
		ON CONFLICT (token) DO UPDATE SET platform = EXCLUDED.platform
	`, token, platform)
	if err != nil {
		return fmt.Errorf("postgres: register device token: %w", err)
	}
	return nil
}

func (ps *PostgresStore) Close() error {
	return ps.db.Close()
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func jsonColumn(v any) (sql.NullString, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}
