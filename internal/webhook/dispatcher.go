// Package webhook delivers event notifications to registered subscribers.
// Delivery is fire-and-forget: a failed or slow subscriber never affects the
// triggering state transition or delivery to other subscribers.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/lfglabs-dev/unbound.md/internal/domain"
)

const userAgent = "unbound-broker-webhook/1.0"

// SubscriberSource resolves the active subscribers of an event.
type SubscriberSource interface {
	ListWebhooksForEvent(ctx context.Context, event string) ([]domain.Webhook, error)
}

// Dispatcher fans events out to subscribers, each delivery on its own
// goroutine with its own bounded timeout.
type Dispatcher struct {
	subs    SubscriberSource
	client  *http.Client
	timeout time.Duration
	now     func() time.Time

	wg sync.WaitGroup
}

// NewDispatcher creates a dispatcher. timeout bounds each individual
// subscriber delivery; zero means 10 seconds.
func NewDispatcher(subs SubscriberSource, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		subs:    subs,
		client:  &http.Client{},
		timeout: timeout,
		now:     time.Now,
	}
}

// Dispatch sends the event to every subscriber. It returns immediately; all
// lookup and delivery work happens on detached goroutines. Failures are logged
// and dropped.
func (d *Dispatcher) Dispatch(event string, data map[string]any) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.fanOut(event, data)
	}()
}

// Wait blocks until all in-flight deliveries finish. Used on shutdown and in
// tests; callers on the hot path never wait.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) fanOut(event string, data map[string]any) {
	lookupCtx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	hooks, err := d.subs.ListWebhooksForEvent(lookupCtx, event)
	if err != nil {
		log.Printf("WARN: webhook subscriber lookup failed for %s: %v", event, err)
		return
	}
	if len(hooks) == 0 {
		return
	}

	timestamp := d.now().UTC().Format(time.RFC3339)
	for _, wh := range hooks {
		d.wg.Add(1)
		go func(wh domain.Webhook) {
			defer d.wg.Done()
			d.deliver(wh, event, timestamp, data)
		}(wh)
	}
}

func (d *Dispatcher) deliver(wh domain.Webhook, event, timestamp string, data map[string]any) {
	body, err := json.Marshal(map[string]any{
		"event":      event,
		"timestamp":  timestamp,
		"data":       data,
		"webhook_id": wh.WebhookID,
	})
	if err != nil {
		log.Printf("WARN: webhook %s payload marshal failed: %v", wh.WebhookID, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wh.URL, bytes.NewReader(body))
	if err != nil {
		log.Printf("WARN: webhook %s -> %s request failed: %v", wh.WebhookID, wh.URL, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Webhook-Event", event)
	req.Header.Set("X-Webhook-Timestamp", timestamp)
	if wh.Secret != "" {
		req.Header.Set("X-Webhook-Signature", "sha256="+Sign(body, wh.Secret))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		log.Printf("WARN: webhook %s -> %s failed: %v", wh.WebhookID, wh.URL, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Printf("WARN: webhook %s -> %s returned %d", wh.WebhookID, wh.URL, resp.StatusCode)
	}
}

// Sign computes the hex HMAC-SHA256 of body under the subscriber secret.
// Receivers recompute it to authenticate deliveries.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
