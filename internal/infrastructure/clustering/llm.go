package clustering

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"ContentDigest/internal/domain"
	"ContentDigest/internal/ports"
)

const themeSystemPrompt = "You identify shared themes across knowledge-base items. " +
	"Respond with one line per theme in the form 'Theme: <label>'."

var themeExpr = regexp.MustCompile(`(?i)(?:theme|topic)\s*\d*\s*:\s*(.+)`)

// LLMClusterer asks a completion provider for theme labels and assigns items
// to the label whose words they mention. It falls back to the overlap
// clusterer when the provider is unavailable or returns nothing usable.
type LLMClusterer struct {
	client   ports.ChatClient
	fallback ports.Clusterer
}

var _ ports.Clusterer = (*LLMClusterer)(nil)

// NewLLMClusterer wraps a chat client with a deterministic fallback.
func NewLLMClusterer(client ports.ChatClient, fallback ports.Clusterer) *LLMClusterer {
	return &LLMClusterer{client: client, fallback: fallback}
}

// Cluster labels themes via the LLM, then assigns each document to the first
// theme sharing a token with it; unmatched documents land in a trailing
// "other" theme so every item stays represented.
func (c *LLMClusterer) Cluster(ctx context.Context, docs []ports.ClusterDoc) ([]domain.Theme, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	if c.client == nil {
		return c.fallback.Cluster(ctx, docs)
	}

	var sb strings.Builder
	for i, doc := range docs {
		if i > 0 {
			sb.WriteString("\n\n---\n\n")
		}
		fmt.Fprintf(&sb, "Title: %s\nTags: %s\nSummary: %s",
			doc.Title, strings.Join(doc.Tags, ", "), doc.Summary)
	}

	raw, err := c.client.Complete(ctx, themeSystemPrompt, sb.String())
	if err != nil {
		return c.fallback.Cluster(ctx, docs)
	}

	labels := parseThemeLabels(raw)
	if len(labels) == 0 {
		return c.fallback.Cluster(ctx, docs)
	}

	themes := make([]domain.Theme, len(labels))
	for i, l := range labels {
		themes[i] = domain.Theme{Label: l}
	}

	var leftovers []string
	for _, doc := range docs {
		tokens := Tokenize(doc)
		assigned := false
		for i, l := range labels {
			if labelMatches(l, tokens) {
				themes[i].ItemIDs = append(themes[i].ItemIDs, doc.ItemID)
				assigned = true
				break
			}
		}
		if !assigned {
			leftovers = append(leftovers, doc.ItemID)
		}
	}

	out := themes[:0]
	for _, theme := range themes {
		if len(theme.ItemIDs) > 0 {
			out = append(out, theme)
		}
	}
	if len(leftovers) > 0 {
		out = append(out, domain.Theme{Label: "other", ItemIDs: leftovers})
	}
	return out, nil
}

func parseThemeLabels(raw string) []string {
	var labels []string
	seen := map[string]struct{}{}
	for _, line := range strings.Split(raw, "\n") {
		match := themeExpr.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		l := strings.TrimSpace(match[1])
		key := strings.ToLower(l)
		if l == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		labels = append(labels, l)
	}
	return labels
}

func labelMatches(label string, tokens map[string]struct{}) bool {
	for _, word := range strings.FieldsFunc(strings.ToLower(label), notLetter) {
		if len(word) <= 3 {
			continue
		}
		if _, ok := tokens[word]; ok {
			return true
		}
	}
	return false
}
