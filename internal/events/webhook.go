package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// WebhookSink delivers query-completed events to a configured endpoint,
// asynchronously so the query path never blocks on delivery.
type WebhookSink struct {
	url        string
	secret     string
	httpClient *http.Client
	deliveries chan QueryEvent
}

func NewWebhookSink(url, secret string) *WebhookSink {
	s := &WebhookSink{
		url:    url,
		secret: secret,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		deliveries: make(chan QueryEvent, 1000),
	}
	go s.processLoop()
	return s
}

func (s *WebhookSink) QueryCompleted(_ context.Context, ev QueryEvent) {
	select {
	case s.deliveries <- ev:
	default:
		slog.Warn("event delivery queue full, dropping", "query", ev.Query)
	}
}

func (s *WebhookSink) processLoop() {
	for ev := range s.deliveries {
		s.deliver(ev)
	}
}

func (s *WebhookSink) deliver(ev QueryEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	payload, err := json.Marshal(ev)
	if err != nil {
		slog.Error("event payload marshal failed", "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.url, bytes.NewReader(payload))
	if err != nil {
		slog.Error("event request creation failed", "error", err)
		return
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", "query.completed")
	req.Header.Set("X-Event-Signature", sign(payload, s.secret))

	resp, err := s.httpClient.Do(req)
	if err != nil {
		slog.Error("event delivery failed", "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		slog.Warn("event receiver returned non-success", "status", resp.StatusCode)
	}
}

func sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return fmt.Sprintf("sha256=%s", hex.EncodeToString(mac.Sum(nil)))
}
