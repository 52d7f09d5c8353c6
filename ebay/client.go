// Package ebay talks to the eBay Browse API: application tokens, item
// searches for comparable prices and local pickup lookups.
package ebay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"dealscout/models"
	"dealscout/utils"
)

const (
	tokenPath     = "/identity/v1/oauth2/token"
	searchPath    = "/buy/browse/v1/item_summary/search"
	apiScope      = "https://api.ebay.com/oauth/api_scope"
	marketplaceID = "EBAY_US"

	// tokens are refreshed this long before they expire
	tokenSlack = 60 * time.Second
)

// ErrNoCredentials means the app id or cert id is not configured.
var ErrNoCredentials = errors.New("ebay: credentials not configured")

// Options configures a Client.
type Options struct {
	AppID             string
	CertID            string
	BaseURL           string
	HomeZip           string
	PickupRadiusMiles int
	Timeout           time.Duration
	// RequestsPerSecond caps outgoing API calls; <= 0 means 5/s.
	RequestsPerSecond float64
}

// Client is an eBay Browse API client. It is safe for concurrent use.
type Client struct {
	opts    Options
	http    *http.Client
	limiter *rate.Limiter
	logger  *utils.Logger
	now     func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// New creates a Client.
func New(opts Options, logger *utils.Logger) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.ebay.com"
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.PickupRadiusMiles <= 0 {
		opts.PickupRadiusMiles = 100
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 5
	}
	return &Client{
		opts:    opts,
		http:    &http.Client{Timeout: opts.Timeout},
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
		logger:  logger.WithComponent("ebay"),
		now:     time.Now,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// AccessToken returns an application token from the client-credentials
// grant, reusing the cached one until shortly before it expires.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	if c.opts.AppID == "" || c.opts.CertID == "" {
		return "", ErrNoCredentials
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expiresAt) {
		return c.token, nil
	}

	form := url.Values{
		"grant_type": {"client_credentials"},
		"scope":      {apiScope},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+tokenPath, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("ebay: build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.opts.AppID, c.opts.CertID)

	var tr tokenResponse
	if err := c.do(req, &tr); err != nil {
		return "", fmt.Errorf("ebay: token: %w", err)
	}
	if tr.AccessToken == "" {
		return "", errors.New("ebay: token: empty access_token")
	}

	ttl := time.Duration(tr.ExpiresIn) * time.Second
	if ttl <= tokenSlack {
		ttl = 2 * tokenSlack
	}
	c.token = tr.AccessToken
	c.expiresAt = c.now().Add(ttl - tokenSlack)
	c.logger.Debug("[ebay] New access token, valid for %v", ttl)
	return c.token, nil
}

type searchResponse struct {
	Total         int           `json:"total"`
	ItemSummaries []itemSummary `json:"itemSummaries"`
}

type itemSummary struct {
	ItemID    string `json:"itemId"`
	Title     string `json:"title"`
	Condition string `json:"condition"`
	Price     struct {
		Value    string `json:"value"`
		Currency string `json:"currency"`
	} `json:"price"`
}

// Search returns items matching term under the given condition filter
// ("NEW", "USED" or "NEW|USED"), fixed price or auction, priced in USD.
func (c *Client) Search(ctx context.Context, token, term, conditionFilter string, limit int) ([]models.MarketItem, error) {
	filter := fmt.Sprintf("conditionIds:{%s},buyingOptions:{FIXED_PRICE|AUCTION},priceCurrency:USD", conditionFilter)
	return c.search(ctx, token, term, filter, "endingSoonest", limit)
}

// HasLocalPickup reports whether any item matching term can be picked up
// within the configured radius of the home postal code.
func (c *Client) HasLocalPickup(ctx context.Context, term, condition string) (bool, error) {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return false, err
	}

	conditionFilter := "NEW"
	if !strings.EqualFold(condition, models.ConditionNew) {
		conditionFilter = "USED"
	}
	filter := fmt.Sprintf(
		"conditionIds:{%s},pickupCountry:US,pickupPostalCode:%s,pickupRadius:%d,pickupRadiusUnit:mi,deliveryOptions:{SELLER_ARRANGED_LOCAL_PICKUP}",
		conditionFilter, c.opts.HomeZip, c.opts.PickupRadiusMiles,
	)
	items, err := c.search(ctx, token, term, filter, "distance", 5)
	if err != nil {
		return false, err
	}
	for _, it := range items {
		if strings.EqualFold(it.Currency, "USD") {
			return true, nil
		}
	}
	return false, nil
}

func (c *Client) search(ctx context.Context, token, term, filter, sort string, limit int) ([]models.MarketItem, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{
		"q":      {term},
		"filter": {filter},
		"sort":   {sort},
		"limit":  {strconv.Itoa(limit)},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.BaseURL+searchPath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("ebay: build search request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-EBAY-C-MARKETPLACE-ID", marketplaceID)

	var sr searchResponse
	if err := c.do(req, &sr); err != nil {
		return nil, fmt.Errorf("ebay: search %q: %w", term, err)
	}

	items := make([]models.MarketItem, 0, len(sr.ItemSummaries))
	for _, s := range sr.ItemSummaries {
		price, err := strconv.ParseFloat(s.Price.Value, 64)
		if err != nil {
			c.logger.Debug("[ebay] Skipping item %s with price %q", s.ItemID, s.Price.Value)
			continue
		}
		items = append(items, models.MarketItem{
			ID:        s.ItemID,
			Title:     s.Title,
			Price:     price,
			Currency:  s.Price.Currency,
			Condition: s.Condition,
		})
	}
	return items, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return fmt.Errorf("request was cancelled: %w", ctxErr)
		}
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("non-OK status %d: %s", resp.StatusCode, truncateBody(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

func truncateBody(b []byte) string {
	const max = 200
	s := strings.TrimSpace(string(b))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
