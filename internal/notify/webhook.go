package notify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/BradenHooton/warden/internal/models"
)

const (
	SignatureHeader = "X-Warden-Signature"
	TimestampHeader = "X-Warden-Timestamp"
)

// WebhookChannel posts the alert as JSON to an arbitrary endpoint.
// When a secret is set the body is signed with HMAC-SHA256 over "<timestamp>.<body>".
type WebhookChannel struct {
	url    string
	secret []byte
	client *http.Client
	now    func() time.Time
}

// NewWebhookChannel creates a new generic webhook channel
func NewWebhookChannel(url, secret string) *WebhookChannel {
	return &WebhookChannel{
		url:    url,
		secret: []byte(secret),
		client: newHTTPClient(),
		now:    time.Now,
	}
}

func (w *WebhookChannel) Name() string {
	return "webhook"
}

func (w *WebhookChannel) Send(ctx context.Context, alert *models.Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	headers := map[string]string{}
	if len(w.secret) > 0 {
		ts := strconv.FormatInt(w.now().Unix(), 10)
		headers[TimestampHeader] = ts
		headers[SignatureHeader] = "sha256=" + Sign(w.secret, ts, body)
	}

	if err := postJSON(ctx, w.client, w.url, body, headers); err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of "<timestamp>.<body>" under secret
func Sign(secret []byte, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
