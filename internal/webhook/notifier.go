// Package webhook delivers signed completion/failure callbacks.
// Delivery is fire-and-forget: failures are logged and counted but
// never retried.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/your-org/clipline/internal/observability"
)

const signatureHeader = "x-webhook-signature"

type Notifier struct {
	secret string
	client *http.Client
}

func NewNotifier(secret string) *Notifier {
	return &Notifier{
		secret: secret,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Notify POSTs the payload as JSON to url. When a secret is configured the
// body is signed with HMAC-SHA256 and the hex digest sent in
// x-webhook-signature. Returns whether the response was 2xx.
func (n *Notifier) Notify(ctx context.Context, url string, payload any) bool {
	body, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal webhook payload", "url", url, "error", err)
		observability.WebhookDeliveries.WithLabelValues("error").Inc()
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		slog.Error("build webhook request", "url", url, "error", err)
		observability.WebhookDeliveries.WithLabelValues("error").Inc()
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	if n.secret != "" {
		req.Header.Set(signatureHeader, Signature(n.secret, body))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		slog.Error("deliver webhook", "url", url, "error", err)
		observability.WebhookDeliveries.WithLabelValues("error").Inc()
		return false
	}
	defer resp.Body.Close()

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	if ok {
		observability.WebhookDeliveries.WithLabelValues("ok").Inc()
	} else {
		slog.Warn("webhook rejected", "url", url, "status", resp.StatusCode)
		observability.WebhookDeliveries.WithLabelValues("rejected").Inc()
	}
	return ok
}

// Signature returns the hex HMAC-SHA256 digest of body under secret.
func Signature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
