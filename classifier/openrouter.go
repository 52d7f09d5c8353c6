// Package classifier extracts structured item data from listing titles
// through an OpenRouter chat-completion model.
package classifier

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

// ErrNotConfigured means no API key is set.
var ErrNotConfigured = errors.New("classifier: OpenRouter API key not configured")

const systemPrompt = `You are an expert at identifying items from marketplace listings.
Analyze the listing text and extract structured information.

Your response must be valid JSON with these fields:
- category: broad category (electronics, furniture, clothing, vehicles, tools, sports, toys, etc.)
- subcategory: specific type within category (gpu, couch, jacket, truck, drill, etc.)
- brand: manufacturer/brand name if identifiable
- model: specific model name/number if identifiable
- item_details: object with any relevant specs/attributes extracted
- condition: "new" if explicitly stated (sealed, BNIB, brand new, unopened, NIB, factory sealed),
             "used" if explicitly stated (used, like new, excellent condition, works great, tested, refurbished),
             "needs_repair" if explicitly stated (for parts, broken, not working, cracked screen),
             "unknown" if condition is not explicitly mentioned
- condition_confidence: "explicit" if condition was clearly stated, "unclear" if you had to guess or couldn't determine

CRITICAL: For condition, only mark as "new", "used" or "needs_repair" if it is EXPLICITLY stated in the listing.
If there's any ambiguity or the condition is not mentioned, use "unknown".
Never guess the condition.

Respond with JSON only, no markdown formatting.`

// Options configures a Client.
type Options struct {
	APIKey  string
	Model   string
	URL     string
	Timeout time.Duration
}

// Client classifies listings with an OpenRouter model.
type Client struct {
	opts   Options
	http   *http.Client
	logger *utils.Logger
}

// New creates a Client. Model and URL default to Gemini 2.0 Flash on the
// public OpenRouter endpoint.
func New(opts Options, logger *utils.Logger) *Client {
	if opts.Model == "" {
		opts.Model = "google/gemini-2.0-flash-001"
	}
	if opts.URL == "" {
		opts.URL = "https://openrouter.ai/api/v1/chat/completions"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Client{
		opts:   opts,
		http:   &http.Client{Timeout: opts.Timeout},
		logger: logger.WithComponent("classifier"),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Classify returns the structured classification of listingText.
func (c *Client) Classify(ctx context.Context, listingText string) (*models.Classification, error) {
	if c.opts.APIKey == "" {
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(chatRequest{
		Model: c.opts.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: "Listing to analyze:\n" + listingText},
		},
		Temperature: 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("classifier: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("classifier: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("classifier: execute request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("classifier: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("classifier: non-OK status %d", resp.StatusCode)
	}

	var cr chatResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return nil, fmt.Errorf("classifier: unmarshal response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return nil, errors.New("classifier: response has no choices")
	}

	content := stripCodeFence(cr.Choices[0].Message.Content)
	var fields map[string]any
	if err := json.Unmarshal([]byte(content), &fields); err != nil {
		return nil, fmt.Errorf("classifier: model reply is not JSON: %w", err)
	}

	cls := Parse(fields)
	c.logger.Debug("[classifier] %q → %s/%s %s %s (%s, %s)", listingText,
		cls.Category, cls.Subcategory, cls.Brand, cls.Model, cls.Condition, cls.ConditionConfidence)
	return cls, nil
}

// Parse validates a decoded model reply. Unknown condition values become
// "unknown", an unknown condition is never "explicit", and item details
// keep only scalar values.
func Parse(fields map[string]any) *models.Classification {
	cls := &models.Classification{
		Category:            asString(fields["category"]),
		Subcategory:         asString(fields["subcategory"]),
		Brand:               asString(fields["brand"]),
		Model:               asString(fields["model"]),
		Condition:           strings.ToLower(asString(fields["condition"])),
		ConditionConfidence: strings.ToLower(asString(fields["condition_confidence"])),
	}

	switch cls.Condition {
	case models.ConditionNew, models.ConditionUsed, models.ConditionNeedsRepair:
	default:
		cls.Condition = models.ConditionUnknown
	}
	if cls.ConditionConfidence != models.ConfidenceExplicit || cls.Condition == models.ConditionUnknown {
		cls.ConditionConfidence = models.ConfidenceUnclear
	}

	if details, ok := fields["item_details"].(map[string]any); ok {
		cls.ItemDetails = scalarDetails(details)
	}
	return cls
}

// scalarDetails keeps strings, numbers and booleans; lists of scalars are
// joined with ", " and nested objects are dropped.
func scalarDetails(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		switch val := v.(type) {
		case string, float64, bool:
			out[k] = val
		case []any:
			parts := make([]string, 0, len(val))
			for _, item := range val {
				if s := asString(item); s != "" {
					parts = append(parts, s)
				}
			}
			if len(parts) > 0 {
				out[k] = strings.Join(parts, ", ")
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func asString(v any) string {
	switch val := v.(type) {
	case string:
		s := strings.TrimSpace(val)
		if strings.EqualFold(s, "null") {
			return ""
		}
		return s
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	}
	return ""
}

// stripCodeFence removes a ```json ... ``` wrapper some models add.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
