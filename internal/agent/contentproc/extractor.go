package contentproc

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const maxExtractedChars = 20000

// Extractor fetches a web page and reduces it to title and readable text.
type Extractor struct {
	client *http.Client
}

// NewExtractor wires an HTTP client with a sane default timeout.
func NewExtractor(client *http.Client) *Extractor {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &Extractor{client: client}
}

// Extract downloads the URL and returns its title and concatenated paragraph
// text, capped to keep LLM prompts bounded.
func (e *Extractor) Extract(ctx context.Context, pageURL string) (title, text string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "ContentDigest/1.0")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("source returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("parse document: %w", err)
	}

	title = strings.TrimSpace(doc.Find("title").First().Text())

	doc.Find("script, style, nav, footer").Remove()

	var parts []string
	doc.Find("article p, main p, p").Each(func(_ int, sel *goquery.Selection) {
		if t := strings.TrimSpace(sel.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	if len(parts) == 0 {
		if body := strings.TrimSpace(doc.Find("body").Text()); body != "" {
			parts = append(parts, body)
		}
	}

	text = strings.Join(parts, "\n\n")
	text = strings.Join(strings.Fields(strings.ReplaceAll(text, "\n\n", " ¶ ")), " ")
	text = strings.ReplaceAll(text, " ¶ ", "\n\n")
	if len(text) > maxExtractedChars {
		text = text[:maxExtractedChars]
	}

	return title, text, nil
}
