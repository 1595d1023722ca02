// Package digestagent exposes on-demand digest generation through the
// standard agent contract, so "digest" commands flow through the same
// routing and dispatch path as any other content.
package digestagent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ContentDigest/internal/agent"
	"ContentDigest/internal/domain"
)

// Trigger generates a digest over the given window and returns the
// persisted record. The digest service provides the implementation.
type Trigger interface {
	RunOnDemand(ctx context.Context, recipient string, since, until time.Time) (*domain.DigestRecord, error)
}

// DigestAgent turns a "digest" command into an immediate digest run over
// the past day for the requesting recipient.
type DigestAgent struct {
	trigger Trigger
	log     *slog.Logger
}

func New(trigger Trigger, log *slog.Logger) *DigestAgent {
	return &DigestAgent{trigger: trigger, log: log}
}

func (d *DigestAgent) Name() string { return agent.NameDigest }

func (d *DigestAgent) Description() string {
	return "Generates an on-demand digest of recently processed content"
}

func (d *DigestAgent) Process(ctx context.Context, req agent.Request) (agent.Response, error) {
	item := req.Item
	until := time.Now().UTC()
	since := until.Add(-24 * time.Hour)

	rec, err := d.trigger.RunOnDemand(ctx, item.Sender, since, until)
	if err != nil {
		return agent.Response{}, fmt.Errorf("on-demand digest: %w", err)
	}
	d.log.Info("on-demand digest generated",
		"item_id", item.ID, "record_id", rec.ID, "items", len(rec.ItemIDs))

	return agent.Response{
		Status:          "success",
		ContentType:     item.Type,
		OriginalContent: item.Payload,
		Processed:       rec.Body,
		Summary:         fmt.Sprintf("Digest generated with %d items", len(rec.ItemIDs)),
		Tags:            []string{"digest"},
	}, nil
}
