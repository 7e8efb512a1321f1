package notify

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
	"strings"
	"time"

	"github.com/lumra/lumra-backend/internal/config"
	"github.com/lumra/lumra-backend/internal/events"
	"go.uber.org/zap"
)

const (
	SignatureHeader = "Lumra-Signature"
	EventKeyHeader  = "Lumra-Event-Key"
)

func init() {
	RegisterChannel(config.ChannelWebhook, func(cfg config.NotifyConfig, _ *zap.Logger) (Channel, error) {
		if cfg.WebhookURL == "" || cfg.WebhookSecret == "" {
			return nil, fmt.Errorf("webhook channel needs %s and %s", config.EnvWebhookURL, config.EnvWebhookSecret)
		}
		return NewWebhookChannel(cfg.WebhookURL, cfg.WebhookSecret, nil), nil
	})
}

// WebhookChannel POSTs each notification as JSON to a push gateway.
type WebhookChannel struct {
	url    string
	secret string
	client *http.Client
}

// NewWebhookChannel uses a client with a 10s timeout when client is nil.
func NewWebhookChannel(url, secret string, client *http.Client) *WebhookChannel {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebhookChannel{url: url, secret: secret, client: client}
}

func (c *WebhookChannel) Name() string { return config.ChannelWebhook }

// WebhookPayload is the request body sent to the gateway.
type WebhookPayload struct {
	GuardianID string                 `json:"guardian_id"`
	EventKey   string                 `json:"event_key"`
	Event      events.TransitionEvent `json:"event"`
}

func (c *WebhookChannel) Send(ctx context.Context, guardianID string, ev events.TransitionEvent) error {
	key := ev.Key()
	body, err := json.Marshal(WebhookPayload{GuardianID: guardianID, EventKey: key, Event: ev})
	if err != nil {
		return Permanent(fmt.Errorf("encode payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(EventKeyHeader, key)
	req.Header.Set(SignatureHeader, Sign(body, key, c.secret))

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	default:
		return Permanent(fmt.Errorf("webhook rejected notification: %d", resp.StatusCode))
	}
}

// Sign computes the signature header value over body followed by the event
// key.
func Sign(body []byte, eventKey, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	mac.Write([]byte(eventKey))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature is the receiver-side check of a webhook request.
func VerifySignature(sig, eventKey string, body []byte, secret string) bool {
	if !strings.HasPrefix(sig, "sha256=") {
		return false
	}
	expected := Sign(body, eventKey, secret)
	return hmac.Equal([]byte(sig), []byte(expected))
}
