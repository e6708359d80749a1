// Package alerts delivers budget alerts over email, pub/sub and chat webhooks.
package alerts

import "context"

// EmailMessage is a rendered alert email.
type EmailMessage struct {
	From    string
	To      []string
	Subject string
	Text    string
	HTML    string
}

// Mailer sends email. Implementations must be safe for concurrent use.
type Mailer interface {
	SendEmail(ctx context.Context, msg EmailMessage) error
}

// Publisher publishes a message with string attributes to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, msg []byte, attrs map[string]string) error
}

// WebhookPoster posts a JSON payload to a webhook URL.
type WebhookPoster interface {
	PostWebhook(ctx context.Context, url string, payload any) error
}
