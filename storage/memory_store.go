package storage

import (
	"context"
	"sort"
	"sync"

	"dealscout/models"
)

// MemoryStore is a DealStore kept in process memory. It is used when no
// database is configured. It is safe for concurrent use.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	deals  map[int64]*models.EnrichedDeal
	byURL  map[string]int64
	tokens map[string]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		deals:  make(map[int64]*models.EnrichedDeal),
		byURL:  make(map[string]int64),
		tokens: make(map[string]string),
	}
}

func (m *MemoryStore) ExistsByListingURL(_ context.Context, url string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.byURL[url]
	return ok, nil
}

func (m *MemoryStore) Insert(_ context.Context, d *models.EnrichedDeal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, dup := m.byURL[d.ListingURL]; dup {
		return nil
	}
	m.nextID++
	d.ID = m.nextID
	m.deals[d.ID] = cloneDeal(d)
	m.byURL[d.ListingURL] = d.ID
	return nil
}

func (m *MemoryStore) Update(_ context.Context, d *models.EnrichedDeal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.deals[d.ID]; !ok {
		return ErrNotFound
	}
	m.deals[d.ID] = cloneDeal(d)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id int64) (*models.EnrichedDeal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.deals[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneDeal(d), nil
}

func (m *MemoryStore) CountNeedsReview(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, d := range m.deals {
		if d.Status == models.StatusNeedsCondition {
			n++
		}
	}
	return n, nil
}

// All returns every stored deal ordered by id.
func (m *MemoryStore) All() []*models.EnrichedDeal {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.EnrichedDeal, 0, len(m.deals))
	for _, d := range m.deals {
		out = append(out, cloneDeal(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MemoryStore) ListDeviceTokens(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.tokens))
	for t := range m.tokens {
		out = append(out, t)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryStore) RegisterDeviceToken(_ context.Context, token, platform string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[token] = platform
	return nil
}

func (m *MemoryStore) Close() error { return nil }

// cloneDeal copies d so callers never share mutable state with the store.
func cloneDeal(d *models.EnrichedDeal) *models.EnrichedDeal {
	c := *d
	c.ImageURLs = append([]string(nil), d.ImageURLs...)
	if d.PriceData != nil {
		q := *d.PriceData
		q.Samples = append([]models.MarketItem(nil), d.PriceData.Samples...)
		c.PriceData = &q
	}
	if d.ItemDetails != nil {
		c.ItemDetails = make(map[string]any, len(d.ItemDetails))
		for k, v := range d.ItemDetails {
			c.ItemDetails[k] = v
		}
	}
	return &c
}
