package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"dealscout/models"
	"dealscout/utils"
)

type sentMessage struct {
	Message struct {
		Token        string            `json:"token"`
		Notification notification      `json:"notification"`
		Data         map[string]string `json:"data"`
	} `json:"message"`
}

func newTestFCM(t *testing.T, status int, got *[]sentMessage) *FCM {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/projects/proj/messages:send" {
			t.Errorf("path: got %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret" {
			t.Errorf("Authorization: got %q", auth)
		}
		var m sentMessage
		if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
			t.Errorf("decode: %v", err)
		}
		*got = append(*got, m)
		w.WriteHeader(status)
		w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)
	return NewFCM(Options{ProjectID: "proj", AccessToken: "secret", Endpoint: srv.URL}, utils.NewNopLogger())
}

func TestSendDealAlert(t *testing.T) {
	var got []sentMessage
	f := newTestFCM(t, http.StatusOK, &got)
	profit := 74.0
	d := &models.EnrichedDeal{ID: 7, Title: "RTX 3080", EstimatedProfit: &profit}

	if err := f.SendDealAlert(context.Background(), "device-1", d); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("messages: got %d, want 1", len(got))
	}
	m := got[0].Message
	if m.Token != "device-1" {
		t.Errorf("token: got %q", m.Token)
	}
	if m.Notification.Body != "RTX 3080 - Est. profit: $74.00" {
		t.Errorf("body: got %q", m.Notification.Body)
	}
	if m.Data["deal_id"] != "7" || m.Data["type"] != "deal" {
		t.Errorf("data: got %v", m.Data)
	}
}

func TestSendNeedsReview(t *testing.T) {
	var got []sentMessage
	f := newTestFCM(t, http.StatusOK, &got)

	if err := f.SendNeedsReview(context.Background(), "device-1", 3); err != nil {
		t.Fatal(err)
	}
	if body := got[0].Message.Notification.Body; body != "3 items need condition review" {
		t.Errorf("body: got %q", body)
	}
	if got[0].Message.Data["count"] != "3" {
		t.Errorf("count: got %q", got[0].Message.Data["count"])
	}
}

func TestSendFailureIsDeliveryFailed(t *testing.T) {
	var got []sentMessage
	f := newTestFCM(t, http.StatusNotFound, &got)

	err := f.SendNeedsReview(context.Background(), "stale-token", 1)
	if !errors.Is(err, ErrDeliveryFailed) {
		t.Errorf("expected ErrDeliveryFailed, got %v", err)
	}
}

func TestSendWithoutCredentials(t *testing.T) {
	f := NewFCM(Options{}, utils.NewNopLogger())
	if f.Enabled() {
		t.Error("FCM without credentials should not be enabled")
	}
	if err := f.SendNeedsReview(context.Background(), "t", 1); !errors.Is(err, ErrDeliveryFailed) {
		t.Errorf("expected ErrDeliveryFailed, got %v", err)
	}
}
