package gateway

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"ContentDigest/internal/domain"
)

var urlExpr = regexp.MustCompile(`https?://[^\s<>"]+`)

// socialHosts route link payloads to the social content type instead of url.
var socialHosts = map[string]struct{}{
	"twitter.com":      {},
	"x.com":            {},
	"linkedin.com":     {},
	"www.twitter.com":  {},
	"www.x.com":        {},
	"www.linkedin.com": {},
}

// Attachment is a decoded inbound file reference.
type Attachment struct {
	MimeType string `json:"mime_type"`
	Content  string `json:"content"` // base64 payload
}

// EmailMessage is a normalized inbound email, as the email gateway or the
// simulation endpoint provides it.
type EmailMessage struct {
	Sender      string       `json:"sender"`
	Subject     string       `json:"subject"`
	PlainText   string       `json:"plain_text"`
	HTMLContent string       `json:"html_content"`
	Attachments []Attachment `json:"attachments"`
}

// WhatsAppMessage is a normalized inbound WhatsApp message.
type WhatsAppMessage struct {
	From      string `json:"from"`
	Text      string `json:"text"`
	MediaURL  string `json:"media_url"`
	MediaType string `json:"media_type"`
}

// FromEmail extracts the processable payload of an email into a pending
// content item. Attachment beats link beats body text; the subject line
// carries the command, if any.
func FromEmail(msg EmailMessage) (*domain.ContentItem, error) {
	item := domain.NewContentItem(domain.ChannelEmail, "")
	item.Sender = msg.Sender
	item.Title = msg.Subject
	item.Command = msg.Subject

	for _, att := range msg.Attachments {
		switch {
		case att.MimeType == "application/pdf":
			item.Payload = dataURL(att.MimeType, att.Content)
			item.Type = domain.TypePDF
			return item, nil
		case strings.HasPrefix(att.MimeType, "audio/"):
			item.Payload = dataURL(att.MimeType, att.Content)
			item.Type = domain.TypeAudio
			return item, nil
		}
	}

	if link := firstURL(msg.PlainText); link != "" {
		item.Payload = link
		item.Type = classifyLink(link)
		return item, nil
	}
	if link := firstURL(msg.HTMLContent); link != "" {
		item.Payload = link
		item.Type = classifyLink(link)
		return item, nil
	}

	body := strings.TrimSpace(msg.PlainText)
	if body == "" {
		body = strings.TrimSpace(msg.HTMLContent)
	}
	if body == "" {
		return nil, fmt.Errorf("no processable content found in email")
	}

	item.Payload = body
	item.Type = domain.TypeText
	return item, nil
}

// FromWhatsApp extracts the processable payload of a WhatsApp message into a
// pending content item. The message text carries the command, if any.
func FromWhatsApp(msg WhatsAppMessage) (*domain.ContentItem, error) {
	item := domain.NewContentItem(domain.ChannelWhatsApp, "")
	item.Sender = msg.From
	item.Command = msg.Text

	if msg.MediaURL != "" {
		item.Payload = msg.MediaURL
		switch {
		case msg.MediaType == "application/pdf":
			item.Type = domain.TypePDF
		case strings.HasPrefix(msg.MediaType, "audio/"):
			item.Type = domain.TypeAudio
		default:
			item.Type = classifyLink(msg.MediaURL)
		}
		return item, nil
	}

	if link := firstURL(msg.Text); link != "" {
		item.Payload = link
		item.Type = classifyLink(link)
		return item, nil
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return nil, fmt.Errorf("no processable content found in whatsapp message")
	}

	item.Payload = text
	item.Type = domain.TypeText
	return item, nil
}

func firstURL(text string) string {
	return strings.TrimRight(urlExpr.FindString(text), ".,;)")
}

func classifyLink(link string) domain.ContentType {
	parsed, err := url.Parse(link)
	if err != nil {
		return domain.TypeURL
	}
	if _, ok := socialHosts[strings.ToLower(parsed.Host)]; ok {
		return domain.TypeSocial
	}
	return domain.TypeURL
}

func dataURL(mimeType, b64 string) string {
	return fmt.Sprintf("data:%s;base64,%s", mimeType, b64)
}
