package contentproc

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"ContentDigest/internal/agent"
	"ContentDigest/internal/domain"
	"ContentDigest/internal/ports"
)

const summarySystemPrompt = "You summarize content for a personal knowledge base. " +
	"Write a concise summary of at most five sentences."

const entitySystemPrompt = "You extract named entities from content. Respond with one " +
	"line per entity in the form '<type>: <name>' where type is person, organization, " +
	"location, or topic."

const tagSystemPrompt = "You tag content for a personal knowledge base. Respond with a " +
	"single comma-separated list of three to six short lowercase tags."

// Processor is the content-processor agent: it extracts, summarizes, and
// enriches url/pdf/text/audio/social items.
type Processor struct {
	extractor *Extractor
	chat      ports.ChatClient
	logger    *slog.Logger
}

var _ agent.Agent = (*Processor)(nil)

// New wires the agent; a nil chat client selects deterministic extractive
// fallbacks so the pipeline works without a provider configured.
func New(extractor *Extractor, chat ports.ChatClient, logger *slog.Logger) *Processor {
	if extractor == nil {
		extractor = NewExtractor(nil)
	}
	return &Processor{extractor: extractor, chat: chat, logger: logger}
}

// Name identifies the agent inside the registry.
func (p *Processor) Name() string { return agent.NameContentProcessor }

// Description is used by discovery listings.
func (p *Processor) Description() string {
	return "Extracts, summarizes, and tags url, pdf, text, audio, and social content"
}

// Process turns the item payload into a normalized result envelope.
func (p *Processor) Process(ctx context.Context, req agent.Request) (agent.Response, error) {
	item := req.Item

	resp := agent.Response{
		Status:          "success",
		ContentType:     item.Type,
		OriginalContent: item.Payload,
	}

	var text string
	switch item.Type {
	case domain.TypeURL, domain.TypeSocial:
		title, extracted, err := p.extractor.Extract(ctx, item.Payload)
		if err != nil {
			return agent.Response{}, fmt.Errorf("extract %s: %w", item.Payload, err)
		}
		if title != "" {
			item.Title = title
		}
		text = extracted
	case domain.TypePDF, domain.TypeAudio:
		// Binary payloads stay as stored references; transcription and PDF
		// text extraction are external collaborators.
		resp.Processed = item.Payload
		resp.Summary = fmt.Sprintf("%s content received from %s, stored for processing.",
			strings.ToUpper(string(item.Type)), item.Sender)
		resp.Tags = []string{string(item.Type)}
		resp.Providers = []string{"direct"}
		return resp, nil
	default:
		text = item.Payload
	}

	if strings.TrimSpace(text) == "" {
		return agent.Response{}, fmt.Errorf("no text extracted from %s item", item.Type)
	}
	resp.Processed = text

	summary, provider := p.summarize(ctx, text)
	resp.Summary = summary
	resp.Entities = p.extractEntities(ctx, text)
	resp.Tags = p.tag(ctx, item, text)
	resp.Providers = []string{provider}

	return resp, nil
}

func (p *Processor) summarize(ctx context.Context, text string) (string, string) {
	if p.chat != nil {
		if summary, err := p.chat.Complete(ctx, summarySystemPrompt, text); err == nil && summary != "" {
			return summary, p.chat.Provider()
		} else if err != nil {
			p.debug("llm summary failed, using extractive fallback", "error", err)
		}
	}
	return extractiveSummary(text), "direct"
}

var sentenceEnd = regexp.MustCompile(`[.!?]\s+`)

// extractiveSummary takes the first sentences of the text, bounded in size,
// so summaries stay deterministic without a provider.
func extractiveSummary(text string) string {
	text = strings.TrimSpace(text)
	bounds := sentenceEnd.FindAllStringIndex(text, 3)
	if len(bounds) >= 2 {
		return strings.TrimSpace(text[:bounds[1][0]+1])
	}
	if len(text) > 400 {
		return text[:400]
	}
	return text
}

var entityLineExpr = regexp.MustCompile(`(?m)^\s*(person|organization|location|topic)\s*:\s*(.+)$`)

func (p *Processor) extractEntities(ctx context.Context, text string) []domain.Entity {
	if p.chat == nil {
		return fallbackEntities(text)
	}

	raw, err := p.chat.Complete(ctx, entitySystemPrompt, text)
	if err != nil {
		p.debug("llm entity extraction failed", "error", err)
		return fallbackEntities(text)
	}

	var entities []domain.Entity
	seen := map[string]struct{}{}
	for _, match := range entityLineExpr.FindAllStringSubmatch(strings.ToLower(raw), -1) {
		name := strings.TrimSpace(match[2])
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		entities = append(entities, domain.Entity{Type: match[1], Name: name})
	}
	if len(entities) == 0 {
		return fallbackEntities(text)
	}
	return entities
}

var capitalizedExpr = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)+\b`)

// fallbackEntities picks repeated capitalized phrases as topic entities.
func fallbackEntities(text string) []domain.Entity {
	var entities []domain.Entity
	seen := map[string]struct{}{}
	for _, phrase := range capitalizedExpr.FindAllString(text, 30) {
		key := strings.ToLower(phrase)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		entities = append(entities, domain.Entity{Type: "topic", Name: phrase})
		if len(entities) == 10 {
			break
		}
	}
	return entities
}

func (p *Processor) tag(ctx context.Context, item *domain.ContentItem, text string) []string {
	if p.chat != nil {
		if raw, err := p.chat.Complete(ctx, tagSystemPrompt, text); err == nil {
			var tags []string
			for _, tag := range strings.Split(raw, ",") {
				if tag = strings.ToLower(strings.TrimSpace(tag)); tag != "" {
					tags = append(tags, tag)
				}
			}
			if len(tags) > 0 {
				return tags
			}
		} else {
			p.debug("llm tagging failed", "error", err)
		}
	}
	return []string{string(item.Type)}
}

func (p *Processor) debug(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Debug(msg, args...)
	}
}
