package listing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"dealscout/models"
	"dealscout/services"
	"dealscout/utils"
)

// Feed reads recent deal alerts from the alert relay over HTTP.
type Feed struct {
	baseURL string
	http    *http.Client
	retry   *utils.RetryPolicy
	logger  *utils.Logger
}

// NewFeed creates a Feed for the relay at baseURL.
func NewFeed(baseURL string, timeout time.Duration, maxRetries int, logger *utils.Logger) *Feed {
	return &Feed{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		retry: &utils.RetryPolicy{
			MaxAttempts: maxRetries,
			Backoff:     utils.ExponentialBackoff(time.Second),
			Logger:      logger,
		},
		logger: logger.WithComponent("feed"),
	}
}

type feedEnvelope struct {
	Alerts []*models.Alert `json:"alerts"`
}

// FetchAlerts returns at most max alerts, newest first as the relay orders
// them. Any transport or decode failure is reported as
// services.ErrSourceUnavailable.
func (f *Feed) FetchAlerts(ctx context.Context, max int) ([]*models.Alert, error) {
	if f.baseURL == "" {
		return nil, fmt.Errorf("%w: no alert feed configured", services.ErrSourceUnavailable)
	}

	u, err := url.Parse(f.baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", services.ErrSourceUnavailable, err)
	}
	q := u.Query()
	q.Set("limit", strconv.Itoa(max))
	u.RawQuery = q.Encode()

	var body []byte
	err = f.retry.Do(ctx, "fetch-alerts", func(ctx context.Context) error {
		var getErr error
		body, getErr = f.get(ctx, u.String())
		return getErr
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", services.ErrSourceUnavailable, err)
	}

	alerts, err := decodeAlerts(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", services.ErrSourceUnavailable, err)
	}
	if max > 0 && len(alerts) > max {
		alerts = alerts[:max]
	}
	f.logger.Debug("[feed] fetched %d alerts", len(alerts))
	return alerts, nil
}

func (f *Feed) get(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("non-OK status %d", resp.StatusCode)
	}
	return data, nil
}

// decodeAlerts accepts either {"alerts": [...]} or a bare array.
func decodeAlerts(body []byte) ([]*models.Alert, error) {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		var alerts []*models.Alert
		if err := json.Unmarshal(body, &alerts); err != nil {
			return nil, fmt.Errorf("decode alert list: %w", err)
		}
		return alerts, nil
	}
	var env feedEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode alert envelope: %w", err)
	}
	return env.Alerts, nil
}
