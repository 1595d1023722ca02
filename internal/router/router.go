package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ContentDigest/internal/agent"
	"ContentDigest/internal/domain"
	"ContentDigest/internal/ports"
)

// ErrUnroutable marks items that carried neither a known command verb nor a
// recognizable content type.
var ErrUnroutable = errors.New("content is unroutable")

// commandAgents maps leading command verbs to target agents. Command matches
// always win over content-type routing.
var commandAgents = map[string]string{
	"research":    agent.NameResearcher,
	"query":       agent.NameResearcher,
	"investigate": agent.NameResearcher,
	"digest":      agent.NameDigest,
	"summarize":   agent.NameContentProcessor,
	"process":     agent.NameContentProcessor,
}

// Router classifies content items and selects exactly one target agent.
type Router struct {
	store  ports.KnowledgeStore
	logger *slog.Logger
}

// New wires a router over the knowledge store used for audit records.
func New(store ports.KnowledgeStore, logger *slog.Logger) *Router {
	return &Router{store: store, logger: logger}
}

// Route selects the target agent for an item and appends one routing-decision
// record regardless of outcome. Precedence: command verb, then content type,
// then the unknown fallback which also marks the item failed.
func (r *Router) Route(ctx context.Context, item *domain.ContentItem) (string, error) {
	decision := domain.RoutingDecision{
		ItemID:    item.ID,
		DecidedAt: time.Now().UTC(),
	}

	if verb, ok := commandVerb(item.Command); ok {
		decision.Agent = commandAgents[verb]
		decision.Rule = domain.RuleCommand
		decision.Reason = fmt.Sprintf("command verb %q", verb)
	} else if target, ok := typeAgent(item.Type); ok {
		decision.Agent = target
		decision.Rule = domain.RuleContentType
		decision.Reason = fmt.Sprintf("content type %s", item.Type)
	} else {
		decision.Agent = agent.NameUnknown
		decision.Rule = domain.RuleFallback
		decision.Reason = "no recognizable command or content type"
	}

	if err := r.store.AppendDecision(ctx, decision); err != nil {
		return "", fmt.Errorf("append routing decision: %w", err)
	}

	r.debug("routed item",
		"item", item.ID, "agent", decision.Agent, "rule", decision.Rule)

	if decision.Agent == agent.NameUnknown {
		item.Status = domain.StatusFailed
		item.FailureReason = decision.Reason
		item.UpdatedAt = time.Now().UTC()
		if err := r.store.UpdateItem(ctx, item); err != nil {
			return "", fmt.Errorf("mark item unroutable: %w", err)
		}
		return agent.NameUnknown, ErrUnroutable
	}

	return decision.Agent, nil
}

// commandVerb extracts a known leading verb from command text. Only the first
// word counts so incidental mentions deeper in a subject line do not reroute.
func commandVerb(command string) (string, bool) {
	command = strings.ToLower(strings.TrimSpace(command))
	if command == "" {
		return "", false
	}

	first := command
	if i := strings.IndexAny(command, " :\t"); i >= 0 {
		first = command[:i]
	}
	first = strings.TrimSuffix(first, ":")

	if _, ok := commandAgents[first]; ok {
		return first, true
	}
	return "", false
}

func typeAgent(t domain.ContentType) (string, bool) {
	switch t {
	case domain.TypeURL, domain.TypePDF, domain.TypeText, domain.TypeAudio, domain.TypeSocial:
		return agent.NameContentProcessor, true
	case domain.TypeQuery:
		return agent.NameResearcher, true
	default:
		return "", false
	}
}

func (r *Router) debug(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Debug(msg, args...)
	}
}
