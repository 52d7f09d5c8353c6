// Package notify sends push notifications through Firebase Cloud Messaging
// (HTTP v1 API).
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"dealscout/models"
	"dealscout/utils"
)

// ErrDeliveryFailed wraps any failure to deliver to one device token.
var ErrDeliveryFailed = errors.New("notification delivery failed")

// Options configures an FCM client.
type Options struct {
	ProjectID   string
	AccessToken string
	Endpoint    string
	Timeout     time.Duration
}

// FCM delivers messages to single device tokens.
type FCM struct {
	opts   Options
	http   *http.Client
	logger *utils.Logger
}

// NewFCM creates an FCM client. Without a project id or access token every
// send is logged and dropped.
func NewFCM(opts Options, logger *utils.Logger) *FCM {
	if opts.Endpoint == "" {
		opts.Endpoint = "https://fcm.googleapis.com"
	}
	opts.Endpoint = strings.TrimRight(opts.Endpoint, "/")
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	return &FCM{
		opts:   opts,
		http:   &http.Client{Timeout: opts.Timeout},
		logger: logger.WithComponent("notify"),
	}
}

// Enabled reports whether credentials are configured.
func (f *FCM) Enabled() bool {
	return f.opts.ProjectID != "" && f.opts.AccessToken != ""
}

type message struct {
	Token        string            `json:"token"`
	Notification notification      `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
}

type notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// SendDealAlert notifies one device about a profitable deal.
func (f *FCM) SendDealAlert(ctx context.Context, token string, d *models.EnrichedDeal) error {
	var profit float64
	if d.EstimatedProfit != nil {
		profit = *d.EstimatedProfit
	}
	return f.send(ctx, message{
		Token: token,
		Notification: notification{
			Title: "💰 Deal Found!",
			Body:  fmt.Sprintf("%s - Est. profit: $%.2f", d.Title, profit),
		},
		Data: map[string]string{
			"type":    "deal",
			"deal_id": strconv.FormatInt(d.ID, 10),
			"profit":  strconv.FormatFloat(profit, 'f', 2, 64),
		},
	})
}

// SendNeedsReview tells one device how many deals wait for a condition.
func (f *FCM) SendNeedsReview(ctx context.Context, token string, count int) error {
	noun := "items need"
	if count == 1 {
		noun = "item needs"
	}
	return f.send(ctx, message{
		Token: token,
		Notification: notification{
			Title: "📋 Review Needed",
			Body:  fmt.Sprintf("%d %s condition review", count, noun),
		},
		Data: map[string]string{
			"type":  "needs_review",
			"count": strconv.Itoa(count),
		},
	})
}

func (f *FCM) send(ctx context.Context, m message) error {
	if !f.Enabled() {
		f.logger.Debug("[notify] FCM not configured, dropping %q", m.Notification.Title)
		return fmt.Errorf("%w: FCM not configured", ErrDeliveryFailed)
	}

	body, err := json.Marshal(map[string]any{"message": m})
	if err != nil {
		return fmt.Errorf("%w: marshal: %v", ErrDeliveryFailed, err)
	}
	url := fmt.Sprintf("%s/v1/projects/%s/messages:send", f.opts.Endpoint, f.opts.ProjectID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrDeliveryFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+f.opts.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", ErrDeliveryFailed, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
