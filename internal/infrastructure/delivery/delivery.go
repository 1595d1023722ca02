package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"ContentDigest/internal/domain"
	"ContentDigest/internal/ports"
)

// EmailChannel posts rendered digests to an outbound email gateway endpoint.
type EmailChannel struct {
	endpoint string
	client   *http.Client
}

var _ ports.DeliveryChannel = (*EmailChannel)(nil)

// NewEmailChannel registers the gateway endpoint.
func NewEmailChannel(endpoint string) *EmailChannel {
	return &EmailChannel{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts subject, HTML, and text bodies to the email gateway.
func (c *EmailChannel) Send(ctx context.Context, rec *domain.DigestRecord, recipient string) error {
	if c.endpoint == "" {
		return fmt.Errorf("email channel misconfigured")
	}

	payload := map[string]string{
		"recipient": recipient,
		"subject":   fmt.Sprintf("Digest for %s", rec.GeneratedAt.Format("January 2, 2006")),
		"html":      rec.HTMLBody,
		"text":      rec.Body,
	}
	return postJSON(ctx, c.client, c.endpoint, payload)
}

// MessagingChannel posts digest text to a messaging webhook (WhatsApp-style).
type MessagingChannel struct {
	endpoint string
	client   *http.Client
}

var _ ports.DeliveryChannel = (*MessagingChannel)(nil)

// NewMessagingChannel registers the webhook endpoint.
func NewMessagingChannel(endpoint string) *MessagingChannel {
	return &MessagingChannel{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts the plain-text digest body to the webhook.
func (c *MessagingChannel) Send(ctx context.Context, rec *domain.DigestRecord, recipient string) error {
	if c.endpoint == "" {
		return fmt.Errorf("messaging channel misconfigured")
	}

	payload := map[string]string{
		"recipient": recipient,
		"text":      rec.Body,
	}
	return postJSON(ctx, c.client, c.endpoint, payload)
}

// ViewChannel is the view-only sink: the record stays queryable through the
// API and nothing leaves the process.
type ViewChannel struct{}

var _ ports.DeliveryChannel = ViewChannel{}

// Send is a no-op; view-only digests are consumed through the records API.
func (ViewChannel) Send(context.Context, *domain.DigestRecord, string) error {
	return nil
}

func postJSON(ctx context.Context, client *http.Client, endpoint string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal delivery payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("delivery endpoint error: %s", resp.Status)
	}

	return nil
}

// Channels maps delivery methods to their configured channels.
type Channels map[domain.DeliveryMethod]ports.DeliveryChannel

// Resolve returns the channel for a method or an error for unknown methods.
func (c Channels) Resolve(method domain.DeliveryMethod) (ports.DeliveryChannel, error) {
	if ch, ok := c[method]; ok {
		return ch, nil
	}
	return nil, fmt.Errorf("no delivery channel for method %s", method)
}
