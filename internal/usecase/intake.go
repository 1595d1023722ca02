// Package usecase coordinates the ingestion flow: persist the item, pick an
// agent, and hand the item to dispatch.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ContentDigest/internal/dispatch"
	"ContentDigest/internal/domain"
	"ContentDigest/internal/ports"
	"ContentDigest/internal/router"
)

// Intake is the single entry point for new content regardless of channel.
type Intake struct {
	store      ports.KnowledgeStore
	router     *router.Router
	dispatcher *dispatch.Dispatcher
	log        *slog.Logger
}

func NewIntake(store ports.KnowledgeStore, r *router.Router, d *dispatch.Dispatcher, log *slog.Logger) *Intake {
	return &Intake{store: store, router: r, dispatcher: d, log: log}
}

// Submit persists a pending item, routes it, and dispatches the selected
// agent in the background. The item is always returned with its current
// status: an unroutable item comes back failed with the reason recorded,
// never as an error, so callers can poll it like any other submission.
func (i *Intake) Submit(ctx context.Context, item *domain.ContentItem) (*domain.ContentItem, error) {
	if err := i.store.SaveItem(ctx, item); err != nil {
		return nil, fmt.Errorf("save item: %w", err)
	}

	target, err := i.router.Route(ctx, item)
	if err != nil {
		if errors.Is(err, router.ErrUnroutable) {
			return item, nil
		}
		return nil, err
	}

	i.dispatchAsync(target, item)
	return item, nil
}

// Resubmit requeues a failed item. The preserved payload is dispatched again
// through the normal routing path.
func (i *Intake) Resubmit(ctx context.Context, id string) (*domain.ContentItem, error) {
	item, err := i.store.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.Status != domain.StatusFailed {
		return nil, fmt.Errorf("item %s is %s, only failed items can be resubmitted", id, item.Status)
	}

	item.Status = domain.StatusPending
	item.FailureReason = ""
	item.UpdatedAt = time.Now().UTC()
	if err := i.store.UpdateItem(ctx, item); err != nil {
		return nil, fmt.Errorf("reset item: %w", err)
	}

	target, err := i.router.Route(ctx, item)
	if err != nil {
		if errors.Is(err, router.ErrUnroutable) {
			return item, nil
		}
		return nil, err
	}

	i.dispatchAsync(target, item)
	return item, nil
}

// dispatchAsync runs the agent outside the request lifecycle. The goroutine
// works on its own copy so the caller can keep reading the returned item.
// The dispatcher owns the timeout; failures are recorded on the item.
func (i *Intake) dispatchAsync(target string, item *domain.ContentItem) {
	clone := *item
	clone.Tags = append([]string(nil), item.Tags...)
	go func() {
		if _, err := i.dispatcher.Dispatch(context.Background(), target, &clone); err != nil {
			i.log.Error("dispatch failed", "item_id", clone.ID, "agent", target, "error", err)
		}
	}()
}
