package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"ContentDigest/internal/domain"
	"ContentDigest/internal/ports"
)

func TestQueryItemsOrderAndFilters(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	mk := func(id string, offset time.Duration, status domain.ItemStatus, typ domain.ContentType, tags []string) {
		item := &domain.ContentItem{
			ID:        id,
			Channel:   domain.ChannelUpload,
			Type:      typ,
			Payload:   "p",
			Tags:      tags,
			Status:    status,
			CreatedAt: base.Add(offset),
		}
		if err := store.SaveItem(ctx, item); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}

	mk("c", 2*time.Minute, domain.StatusDone, domain.TypeURL, []string{"tech"})
	mk("a", 0, domain.StatusDone, domain.TypeText, []string{"tech"})
	mk("b", 0, domain.StatusDone, domain.TypeText, nil)
	mk("d", 3*time.Minute, domain.StatusPending, domain.TypeText, []string{"tech"})
	mk("e", -time.Hour, domain.StatusDone, domain.TypeText, []string{"tech"})

	items, err := store.QueryItems(ctx, ports.ItemFilter{
		Status: domain.StatusDone,
		Since:  base,
		Until:  base.Add(10 * time.Minute),
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}

	got := make([]string, 0, len(items))
	for _, item := range items {
		got = append(got, item.ID)
	}
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order mismatch at %d: expected %v, got %v", i, want, got)
		}
	}

	tagged, err := store.QueryItems(ctx, ports.ItemFilter{Status: domain.StatusDone, Tags: []string{"TECH"}})
	if err != nil {
		t.Fatalf("query tags: %v", err)
	}
	for _, item := range tagged {
		if item.ID == "b" {
			t.Fatal("untagged item must be filtered out")
		}
	}

	limited, err := store.QueryItems(ctx, ports.ItemFilter{Status: domain.StatusDone, Limit: 2})
	if err != nil {
		t.Fatalf("query limit: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("expected limit 2, got %d", len(limited))
	}
}

func TestSaveResultKeepsFirstResult(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()

	first := &domain.AgentResult{ID: "r1", ItemID: "item", Summary: "first"}
	second := &domain.AgentResult{ID: "r2", ItemID: "item", Summary: "second"}
	if err := store.SaveResult(ctx, first); err != nil {
		t.Fatalf("save first: %v", err)
	}
	if err := store.SaveResult(ctx, second); err != nil {
		t.Fatalf("save second: %v", err)
	}

	got, err := store.ResultForItem(ctx, "item")
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if got.ID != "r1" {
		t.Fatalf("first result must stay authoritative, got %s", got.ID)
	}
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()

	if _, err := store.GetItem(ctx, "nope"); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := store.ResultForItem(ctx, "nope"); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := store.GetRequest(ctx, "nope"); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := store.UpdateItem(ctx, &domain.ContentItem{ID: "nope"}); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDueRequestsSkipsInactiveAndFuture(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	mk := func(id string, nextRun time.Time, active bool) {
		req := &domain.DigestRequest{
			ID:        id,
			Kind:      domain.KindRecurring,
			Schedule:  domain.ScheduleDaily,
			State:     domain.StateScheduled,
			Active:    active,
			NextRun:   nextRun,
			CreatedAt: now,
		}
		if err := store.SaveRequest(ctx, req); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}

	mk("due", now.Add(-time.Minute), true)
	mk("future", now.Add(time.Hour), true)
	mk("inactive", now.Add(-time.Hour), false)
	mk("unscheduled", time.Time{}, true)

	due, err := store.DueRequests(ctx, now)
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(due) != 1 || due[0].ID != "due" {
		t.Fatalf("expected only the due request, got %v", due)
	}
}

func TestRecordDeliveryLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()

	rec := &domain.DigestRecord{
		ID:             "rec1",
		RequestID:      "req1",
		DeliveryStatus: domain.DeliveryPending,
		GeneratedAt:    time.Now().UTC(),
	}
	if err := store.SaveRecord(ctx, rec); err != nil {
		t.Fatalf("save record: %v", err)
	}
	if err := store.UpdateRecordDelivery(ctx, "rec1", domain.DeliveryDelivered); err != nil {
		t.Fatalf("update delivery: %v", err)
	}

	got, err := store.GetRecord(ctx, "rec1")
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if got.DeliveryStatus != domain.DeliveryDelivered {
		t.Fatalf("expected delivered, got %s", got.DeliveryStatus)
	}

	byRequest, err := store.ListRecords(ctx, "req1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(byRequest) != 1 {
		t.Fatalf("expected one record for request, got %d", len(byRequest))
	}
	none, _ := store.ListRecords(ctx, "other")
	if len(none) != 0 {
		t.Fatalf("expected no records for other request, got %d", len(none))
	}
}

func TestClonesAreIsolated(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()

	item := domain.NewContentItem(domain.ChannelUpload, "payload")
	item.Tags = []string{"one"}
	if err := store.SaveItem(ctx, item); err != nil {
		t.Fatalf("save: %v", err)
	}

	item.Tags[0] = "mutated"
	stored, err := store.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Tags[0] != "one" {
		t.Fatalf("stored item must not alias caller slices, got %v", stored.Tags)
	}
}
