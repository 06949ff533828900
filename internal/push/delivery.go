package push

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/smartly/bridge/internal/authgate"
	"github.com/smartly/bridge/internal/metrics"
)

// Deliverer signs and POSTs a batch to the platform webhook, retrying with
// a fixed exponential backoff policy.
type Deliverer struct {
	webhookURL string
	instanceID string
	secret     []byte
	client     *http.Client

	Metrics *metrics.Collector
}

func NewDeliverer(webhookURL, instanceID string, secret []byte) *Deliverer {
	return &Deliverer{
		webhookURL: webhookURL,
		instanceID: instanceID,
		secret:     secret,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

type eventsPayload struct {
	Events []QueuedEvent `json:"events"`
}

// Deliver POSTs events to <webhook_url>/events, making up to maxAttempts
// attempts with exponential backoff between them. It never re-queues the batch on final
// failure — re-queueing would amplify back-pressure onto the next flush.
func (d *Deliverer) Deliver(ctx context.Context, events []QueuedEvent) error {
	body, err := json.Marshal(eventsPayload{Events: events})
	if err != nil {
		return fmt.Errorf("marshal push batch: %w", err)
	}
	if d.Metrics != nil {
		d.Metrics.PushBatchSize.Observe(float64(len(events)))
	}

	start := time.Now()
	var lastErr error
	delay := retryBaseDelay
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		retryAfter, err := d.attempt(ctx, body)
		if err == nil {
			if d.Metrics != nil {
				d.Metrics.PushBatchLatency.Observe(time.Since(start).Seconds())
			}
			return nil
		}
		lastErr = err
		if d.Metrics != nil && attempt < maxAttempts {
			d.Metrics.PushRetries.Inc()
		}

		if attempt == maxAttempts {
			break
		}
		wait := delay
		if retryAfter > 0 {
			wait = retryAfter
			if wait > maxRetryAfter {
				wait = maxRetryAfter
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		delay *= 2
	}
	if d.Metrics != nil {
		d.Metrics.PushDropped.Inc()
	}
	return fmt.Errorf("push delivery failed after %d attempts: %w", maxAttempts, lastErr)
}

// attempt makes one delivery attempt, returning a non-zero retryAfter when
// the upstream responded 429 with a Retry-After header.
func (d *Deliverer) attempt(ctx context.Context, body []byte) (time.Duration, error) {
	nonce, err := randomNonce()
	if err != nil {
		return 0, err
	}
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	path := "/events"
	canonical := authgate.Canonical(http.MethodPost, path, timestamp, nonce, body)
	signature := authgate.Sign(canonical, d.secret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-HA-Instance-Id", d.instanceID)
	req.Header.Set("X-Timestamp", timestamp)
	req.Header.Set("X-Nonce", nonce)
	req.Header.Set("X-Signature", signature)

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return 0, nil
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil {
				return time.Duration(secs) * time.Second, fmt.Errorf("webhook rate limited")
			}
		}
	}
	return 0, fmt.Errorf("webhook responded %d", resp.StatusCode)
}

func randomNonce() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
