package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"fraudwatch/internal/types"
)

// Compile-time assertion that WebhookSink implements types.Sink.
var _ types.Sink = (*WebhookSink)(nil)

// WebhookSink delivers alert payloads by POSTing them to a consumer-supplied
// URL. The circuit breaker trips after consecutive failures so a dead
// endpoint fails fast instead of holding a broadcast on a full connect
// timeout for every alert; tripped deliveries still count as failed and flow
// into the registry's retry buffer.
type WebhookSink struct {
	url     string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[*http.Response]
}

// NewWebhookSink creates a sink for the given endpoint URL. timeout bounds
// each POST end to end.
func NewWebhookSink(url string, timeout time.Duration) *WebhookSink {
	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "webhook-sink:" + url,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	})

	return &WebhookSink{
		url:     url,
		client:  &http.Client{Timeout: timeout},
		breaker: cb,
	}
}

// Deliver POSTs the payload through the breaker. Any non-2xx status is a
// delivery failure.
func (s *WebhookSink) Deliver(ctx context.Context, payload []byte) error {
	_, err := s.breaker.Execute(func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			return nil, err
		}
		// Drain so the transport can reuse the connection.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("webhook endpoint returned status %d", resp.StatusCode)
		}
		return resp, nil
	})
	return err
}
