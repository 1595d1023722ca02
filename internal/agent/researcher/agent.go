// Package researcher implements the agent that answers explicit research
// requests by gathering notes and synthesizing them into a findings report.
package researcher

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"ContentDigest/internal/agent"
	"ContentDigest/internal/domain"
	"ContentDigest/internal/ports"
)

const searchSystemPrompt = "You are a research assistant. Produce concise factual notes " +
	"on the topic: key facts, recent developments, and notable sources. " +
	"Write one note per line."

const synthesisSystemPrompt = "You are a research analyst. Given a topic and raw notes, " +
	"write a structured report with a short overview, the main findings, " +
	"and open questions. Be factual and concise."

// Researcher handles query items and research commands.
type Researcher struct {
	chat ports.ChatClient
	log  *slog.Logger
}

func New(chat ports.ChatClient, log *slog.Logger) *Researcher {
	return &Researcher{chat: chat, log: log}
}

func (r *Researcher) Name() string { return agent.NameResearcher }

func (r *Researcher) Description() string {
	return "Investigates topics on request and produces a synthesized findings report"
}

// Process runs the two-step research flow: collect notes for the topic,
// then synthesize them into a report. Without a chat client it degrades to
// a deterministic placeholder so the item still completes.
func (r *Researcher) Process(ctx context.Context, req agent.Request) (agent.Response, error) {
	item := req.Item
	topic := extractTopic(item.Payload)
	if topic == "" {
		// Command-only submissions carry the topic in the command text.
		topic = extractTopic(item.Command)
	}
	if topic == "" {
		return agent.Response{}, fmt.Errorf("research request has no topic")
	}

	resp := agent.Response{
		Status:          "success",
		ContentType:     item.Type,
		OriginalContent: item.Payload,
		Tags:            []string{"research"},
	}

	if r.chat == nil {
		resp.Processed = "Research request recorded: " + topic
		resp.Summary = "Pending research on " + topic
		return resp, nil
	}

	notes, err := r.chat.Complete(ctx, searchSystemPrompt, topic)
	if err != nil {
		return agent.Response{}, fmt.Errorf("research notes for %q: %w", topic, err)
	}
	report, err := r.chat.Complete(ctx, synthesisSystemPrompt,
		fmt.Sprintf("Topic: %s\n\nNotes:\n%s", topic, notes))
	if err != nil {
		return agent.Response{}, fmt.Errorf("research synthesis for %q: %w", topic, err)
	}

	resp.Processed = report
	resp.Summary = firstLine(report)
	resp.Entities = []domain.Entity{{Type: "topic", Name: topic}}
	resp.Providers = []string{r.chat.Provider()}
	r.log.Info("research completed", "item_id", item.ID, "topic", topic)
	return resp, nil
}

// extractTopic strips a leading command verb so "research: quantum radar"
// and a bare query both yield the topic text.
func extractTopic(payload string) string {
	s := strings.TrimSpace(payload)
	lower := strings.ToLower(s)
	for _, verb := range []string{"research", "query", "investigate"} {
		if strings.HasPrefix(lower, verb) {
			rest := strings.TrimSpace(s[len(verb):])
			rest = strings.TrimSpace(strings.TrimPrefix(rest, ":"))
			if rest != "" {
				return rest
			}
			return ""
		}
	}
	return s
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if t := strings.TrimSpace(line); t != "" {
			return t
		}
	}
	return strings.TrimSpace(s)
}
