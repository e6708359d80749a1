package alerts

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
	"time"
)

// DefaultHTTPTimeout bounds a single webhook request.
const DefaultHTTPTimeout = 10 * time.Second

// HTTPPoster posts JSON payloads to webhooks.
type HTTPPoster struct {
	secret string
	client *http.Client
}

var _ WebhookPoster = (*HTTPPoster)(nil)

// NewHTTPPoster creates a webhook poster.
// If secret is non-empty, requests are signed with HMAC-SHA256.
func NewHTTPPoster(secret string, timeout time.Duration) *HTTPPoster {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	return &HTTPPoster{
		secret: secret,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (p *HTTPPoster) PostWebhook(ctx context.Context, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Cloud-Cost-Guardian/1.0")

	if p.secret != "" {
		sig := computeHMAC(body, []byte(p.secret))
		req.Header.Set("X-Signature-256", "sha256="+sig)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func computeHMAC(message, key []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}
