package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"ContentDigest/internal/agent"
	"ContentDigest/internal/domain"
	"ContentDigest/internal/ports"
)

// ErrInFlight reports a second dispatch attempt for an item that has not yet
// reached a terminal status.
var ErrInFlight = errors.New("item dispatch already in flight")

// Dispatcher invokes agents exactly once per routing decision, serializing
// dispatch per content item.
type Dispatcher struct {
	registry *agent.Registry
	store    ports.KnowledgeStore
	timeout  time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// New builds a dispatcher with a bounded per-invocation timeout.
func New(registry *agent.Registry, store ports.KnowledgeStore, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Dispatcher{
		registry: registry,
		store:    store,
		timeout:  timeout,
		logger:   logger,
		inFlight: map[string]struct{}{},
	}
}

// Dispatch runs the named agent against the item. On success the result is
// persisted before the item status flips to done, so a reader never observes
// done without a result. On failure the item is marked failed with its payload
// untouched. There are no automatic retries.
func (d *Dispatcher) Dispatch(ctx context.Context, agentName string, item *domain.ContentItem) (*domain.AgentResult, error) {
	if err := d.reserve(item); err != nil {
		return nil, err
	}
	defer d.release(item.ID)

	item.Status = domain.StatusProcessing
	item.UpdatedAt = time.Now().UTC()
	if err := d.store.UpdateItem(ctx, item); err != nil {
		item.Status = domain.StatusPending
		return nil, fmt.Errorf("mark item processing: %w", err)
	}

	target, err := d.registry.Resolve(agentName)
	if err != nil {
		d.fail(ctx, item, err.Error())
		return nil, err
	}

	invokeCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	resp, err := target.Process(invokeCtx, agent.Request{Item: item})
	if err != nil {
		reason := err.Error()
		if errors.Is(invokeCtx.Err(), context.DeadlineExceeded) {
			reason = fmt.Sprintf("agent %s timed out after %s", agentName, d.timeout)
		}
		d.fail(ctx, item, reason)
		return nil, fmt.Errorf("agent %s: %w", agentName, err)
	}

	result := &domain.AgentResult{
		ID:          uuid.NewString(),
		ItemID:      item.ID,
		Agent:       agentName,
		Summary:     resp.Summary,
		Processed:   resp.Processed,
		ContentType: resp.ContentType,
		Entities:    resp.Entities,
		Tags:        resp.Tags,
		Providers:   resp.Providers,
		CompletedAt: time.Now().UTC(),
	}

	// Result first, status second: the write-ordering invariant.
	if err := d.store.SaveResult(ctx, result); err != nil {
		d.fail(ctx, item, fmt.Sprintf("persist result: %v", err))
		return nil, fmt.Errorf("persist result for %s: %w", item.ID, err)
	}

	item.Status = domain.StatusDone
	item.FailureReason = ""
	if len(resp.Tags) > 0 {
		item.Tags = mergeTags(item.Tags, resp.Tags)
	}
	item.UpdatedAt = time.Now().UTC()
	if err := d.store.UpdateItem(ctx, item); err != nil {
		// The result is already persisted; marking the item failed keeps it
		// resubmittable, and SaveResult keeps the first result on redispatch.
		d.fail(ctx, item, fmt.Sprintf("mark item done: %v", err))
		return nil, fmt.Errorf("mark item done: %w", err)
	}

	d.debug("dispatched item", "item", item.ID, "agent", agentName)
	return result, nil
}

// reserve enforces at-most-one-in-flight-per-item. Items already processing
// or terminal are rejected until explicitly resubmitted.
func (d *Dispatcher) reserve(item *domain.ContentItem) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, busy := d.inFlight[item.ID]; busy {
		return ErrInFlight
	}
	if item.Status == domain.StatusProcessing {
		return ErrInFlight
	}
	if item.Status.Terminal() {
		return fmt.Errorf("item %s is already %s", item.ID, item.Status)
	}

	d.inFlight[item.ID] = struct{}{}
	return nil
}

func (d *Dispatcher) release(id string) {
	d.mu.Lock()
	delete(d.inFlight, id)
	d.mu.Unlock()
}

// fail marks the item failed, preserving the original payload for manual
// resubmission. The failure itself is never swallowed by this helper.
func (d *Dispatcher) fail(ctx context.Context, item *domain.ContentItem, reason string) {
	item.Status = domain.StatusFailed
	item.FailureReason = reason
	item.UpdatedAt = time.Now().UTC()
	if err := d.store.UpdateItem(ctx, item); err != nil {
		d.debug("record dispatch failure", "item", item.ID, "error", err)
	}
}

func mergeTags(existing, extra []string) []string {
	seen := map[string]struct{}{}
	merged := make([]string, 0, len(existing)+len(extra))
	for _, t := range append(append([]string{}, existing...), extra...) {
		if _, ok := seen[t]; ok || t == "" {
			continue
		}
		seen[t] = struct{}{}
		merged = append(merged, t)
	}
	return merged
}

func (d *Dispatcher) debug(msg string, args ...any) {
	if d.logger != nil {
		d.logger.Debug(msg, args...)
	}
}
