// Package digest turns processed content items into themed digest records
// and pushes them out through the configured delivery channel.
package digest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"ContentDigest/internal/config"
	"ContentDigest/internal/domain"
	"ContentDigest/internal/infrastructure/delivery"
	"ContentDigest/internal/ports"
)

// Aggregator builds digest records from the knowledge store. A record is
// always persisted before delivery is attempted, so a failed send can be
// retried without regenerating content.
type Aggregator struct {
	knowledge ports.KnowledgeStore
	schedules ports.ScheduleStore
	clusterer ports.Clusterer
	channels  delivery.Channels
	cfg       config.DigestConfig
	log       *slog.Logger
}

func NewAggregator(
	knowledge ports.KnowledgeStore,
	schedules ports.ScheduleStore,
	clusterer ports.Clusterer,
	channels delivery.Channels,
	cfg config.DigestConfig,
	log *slog.Logger,
) *Aggregator {
	return &Aggregator{
		knowledge: knowledge,
		schedules: schedules,
		clusterer: clusterer,
		channels:  channels,
		cfg:       cfg,
		log:       log,
	}
}

// Run aggregates the window for a digest request and persists the record.
// The record is saved even when the window is empty.
func (a *Aggregator) Run(ctx context.Context, req *domain.DigestRequest, since, until time.Time) (*domain.DigestRecord, error) {
	rec := domain.NewDigestRecord(req)
	filter := ports.ItemFilter{
		Status: domain.StatusDone,
		Types:  req.Types,
		Tags:   req.Tags,
		Since:  since,
		Until:  until,
		Limit:  a.cfg.MaxItems,
	}
	if err := a.aggregate(ctx, rec, filter); err != nil {
		return nil, err
	}
	if err := a.schedules.SaveRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("save digest record: %w", err)
	}
	a.log.Info("digest aggregated",
		"record_id", rec.ID, "request_id", req.ID, "items", len(rec.ItemIDs))
	return rec, nil
}

// RunOnDemand generates and persists an ad-hoc digest outside any schedule.
// The record is delivery-method "view"; callers read it back via the API.
func (a *Aggregator) RunOnDemand(ctx context.Context, recipient string, since, until time.Time) (*domain.DigestRecord, error) {
	req := &domain.DigestRequest{
		Recipient:      recipient,
		DeliveryMethod: domain.DeliverView,
	}
	rec := domain.NewDigestRecord(req)
	filter := ports.ItemFilter{
		Status: domain.StatusDone,
		Since:  since,
		Until:  until,
		Limit:  a.cfg.MaxItems,
	}
	if err := a.aggregate(ctx, rec, filter); err != nil {
		return nil, err
	}
	if err := a.schedules.SaveRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("save digest record: %w", err)
	}
	return rec, nil
}

// Deliver sends a record through its channel and updates delivery status.
// A send failure marks the record failed and is returned to the caller.
func (a *Aggregator) Deliver(ctx context.Context, rec *domain.DigestRecord) error {
	ch, err := a.channels.Resolve(rec.DeliveryMethod)
	if err != nil {
		return err
	}
	if err := ch.Send(ctx, rec, rec.Recipient); err != nil {
		if uerr := a.schedules.UpdateRecordDelivery(ctx, rec.ID, domain.DeliveryFailed); uerr != nil {
			a.log.Error("record delivery status update failed", "record_id", rec.ID, "error", uerr)
		}
		rec.DeliveryStatus = domain.DeliveryFailed
		return fmt.Errorf("deliver digest %s: %w", rec.ID, err)
	}
	if err := a.schedules.UpdateRecordDelivery(ctx, rec.ID, domain.DeliveryDelivered); err != nil {
		return fmt.Errorf("mark digest %s delivered: %w", rec.ID, err)
	}
	rec.DeliveryStatus = domain.DeliveryDelivered
	return nil
}

// Redeliver retries delivery for an existing record.
func (a *Aggregator) Redeliver(ctx context.Context, recordID string) (*domain.DigestRecord, error) {
	rec, err := a.schedules.GetRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if err := a.Deliver(ctx, rec); err != nil {
		return rec, err
	}
	return rec, nil
}

func (a *Aggregator) aggregate(ctx context.Context, rec *domain.DigestRecord, filter ports.ItemFilter) error {
	items, err := a.knowledge.QueryItems(ctx, filter)
	if err != nil {
		return fmt.Errorf("query digest window: %w", err)
	}

	docs := make([]ports.ClusterDoc, 0, len(items))
	for _, item := range items {
		result, err := a.knowledge.ResultForItem(ctx, item.ID)
		if errors.Is(err, ports.ErrNotFound) {
			// Done items always carry a result, but an item completed by an
			// older build may not. Skip rather than fail the whole digest.
			continue
		}
		if err != nil {
			return fmt.Errorf("result for item %s: %w", item.ID, err)
		}
		title := item.Title
		if title == "" {
			title = trimTitle(result.Summary)
		}
		docs = append(docs, ports.ClusterDoc{
			ItemID:   item.ID,
			Title:    title,
			Summary:  result.Summary,
			Tags:     result.Tags,
			Entities: result.Entities,
		})
	}

	if len(docs) == 0 {
		rec.Body = renderEmptyText(rec.GeneratedAt)
		rec.HTMLBody = renderEmptyHTML(rec.GeneratedAt)
		return nil
	}

	themes, err := a.clusterer.Cluster(ctx, docs)
	if err != nil {
		return fmt.Errorf("cluster digest items: %w", err)
	}

	for _, doc := range docs {
		rec.ItemIDs = append(rec.ItemIDs, doc.ItemID)
	}
	rec.Themes = themes
	rec.Connections = connect(docs, a.cfg.OverlapThreshold)
	rec.Body = renderText(rec, docs)
	rec.HTMLBody = renderHTML(rec, docs)
	return nil
}

// connect links item pairs whose entities and tags overlap above the
// threshold. Pairs come out ordered by window position so reruns over the
// same items produce identical connections.
func connect(docs []ports.ClusterDoc, threshold float64) []domain.Connection {
	if threshold <= 0 {
		threshold = 0.2
	}
	sets := make([]map[string]struct{}, len(docs))
	for i, doc := range docs {
		set := map[string]struct{}{}
		for _, tag := range doc.Tags {
			set[strings.ToLower(tag)] = struct{}{}
		}
		for _, ent := range doc.Entities {
			set[strings.ToLower(ent.Name)] = struct{}{}
		}
		sets[i] = set
	}

	var conns []domain.Connection
	for i := 0; i < len(docs); i++ {
		for j := i + 1; j < len(docs); j++ {
			shared := intersect(sets[i], sets[j])
			if len(shared) == 0 {
				continue
			}
			smaller := len(sets[i])
			if len(sets[j]) < smaller {
				smaller = len(sets[j])
			}
			if smaller == 0 || float64(len(shared))/float64(smaller) < threshold {
				continue
			}
			sort.Strings(shared)
			conns = append(conns, domain.Connection{
				ItemA:  docs[i].ItemID,
				ItemB:  docs[j].ItemID,
				Shared: shared,
			})
		}
	}
	return conns
}

func intersect(a, b map[string]struct{}) []string {
	var out []string
	for k := range a {
		if _, ok := b[k]; ok {
			out = append(out, k)
		}
	}
	return out
}

func trimTitle(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 80 {
		s = s[:80]
	}
	return s
}
