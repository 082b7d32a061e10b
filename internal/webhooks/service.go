package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SignatureHeader carries the HMAC-SHA256 of the request body.
const SignatureHeader = "X-Debenture-Signature"

// MetricsRecorder is an optional callback for recording delivery outcomes.
type MetricsRecorder func(success bool)

// Dispatcher posts committed payout events to the configured endpoints.
// It satisfies amortization.Notifier.
type Dispatcher struct {
	endpoints  []Endpoint
	secret     string
	log        DeliveryLog
	httpClient *http.Client
	delays     []time.Duration // wait before attempt i+1
	onMetrics  MetricsRecorder
	wg         sync.WaitGroup
	logger     *zap.Logger
}

// NewDispatcher creates a Dispatcher. secret signs every body; an empty
// secret sends unsigned requests.
func NewDispatcher(endpoints []Endpoint, secret string, log DeliveryLog, logger *zap.Logger) *Dispatcher {
	if log == nil {
		log = NewMemoryLog()
	}
	return &Dispatcher{
		endpoints:  endpoints,
		secret:     secret,
		log:        log,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		delays:     []time.Duration{0, 1 * time.Second, 5 * time.Second},
		logger:     logger,
	}
}

// SetMetricsRecorder configures the metrics callback.
func (d *Dispatcher) SetMetricsRecorder(fn MetricsRecorder) {
	d.onMetrics = fn
}

// SetRetryDelays replaces the backoff schedule. The number of delays is the
// number of attempts; the first entry is normally zero.
func (d *Dispatcher) SetRetryDelays(delays []time.Duration) {
	if len(delays) > 0 {
		d.delays = delays
	}
}

// Deliveries returns the delivery log.
func (d *Dispatcher) Deliveries() DeliveryLog { return d.log }

// Dispatch fans out an event to every endpoint subscribed to eventType.
// Delivery is asynchronous and outlives the caller's context.
func (d *Dispatcher) Dispatch(ctx context.Context, eventType string, payload map[string]string) {
	event := WebhookEvent{
		ID:        uuid.New(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
	body, err := json.Marshal(event)
	if err != nil {
		d.logger.Error("webhook: marshal event", zap.Error(err))
		return
	}

	ctx = context.WithoutCancel(ctx)
	for _, ep := range d.endpoints {
		if !ep.accepts(eventType) {
			continue
		}
		d.wg.Add(1)
		go func(url string) {
			defer d.wg.Done()
			d.deliver(ctx, url, event, body)
		}(ep.URL)
	}
}

// Wait blocks until every in-flight delivery finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// deliver sends the event to a single endpoint with retries.
func (d *Dispatcher) deliver(ctx context.Context, url string, event WebhookEvent, body []byte) {
	signature := ""
	if d.secret != "" {
		signature = signPayload(body, d.secret)
	}

	for attempt, delay := range d.delays {
		if delay > 0 {
			time.Sleep(delay)
		}

		success, statusCode, errMsg := d.doDelivery(ctx, url, body, signature)

		delivery := &WebhookDelivery{
			EventID:      event.ID,
			EventType:    event.Type,
			URL:          url,
			StatusCode:   statusCode,
			Attempt:      attempt + 1,
			Success:      success,
			ErrorMessage: errMsg,
		}
		if recordErr := d.log.RecordDelivery(ctx, delivery); recordErr != nil {
			d.logger.Warn("webhook: record delivery", zap.Error(recordErr))
		}

		if d.onMetrics != nil {
			d.onMetrics(success)
		}

		if success {
			return
		}

		d.logger.Warn("webhook: delivery failed",
			zap.String("url", url),
			zap.String("event", event.Type),
			zap.Int("attempt", attempt+1),
			zap.String("error", errMsg),
		)
	}
}

// doDelivery performs a single HTTP POST delivery.
func (d *Dispatcher) doDelivery(ctx context.Context, url string, body []byte, signature string) (bool, int, string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return false, 0, err.Error()
	}
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return false, 0, err.Error()
	}
	defer resp.Body.Close()
	io.ReadAll(io.LimitReader(resp.Body, 1024)) //nolint:errcheck

	success := resp.StatusCode >= 200 && resp.StatusCode < 300
	errMsg := ""
	if !success {
		errMsg = fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	return success, resp.StatusCode, errMsg
}

// signPayload computes an HMAC-SHA256 signature.
func signPayload(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature matches body under secret.
// Receivers use it to authenticate deliveries.
func VerifySignature(body []byte, secret, signature string) bool {
	return hmac.Equal([]byte(signPayload(body, secret)), []byte(signature))
}
