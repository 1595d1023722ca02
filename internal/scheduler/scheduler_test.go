package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"ContentDigest/internal/config"
	"ContentDigest/internal/digest"
	"ContentDigest/internal/domain"
	"ContentDigest/internal/infrastructure/clustering"
	"ContentDigest/internal/infrastructure/delivery"
	"ContentDigest/internal/infrastructure/storage"
)

type failingChannel struct{}

func (failingChannel) Send(context.Context, *domain.DigestRecord, string) error {
	return errors.New("webhook unreachable")
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestScheduler(t *testing.T, channels delivery.Channels) (*Scheduler, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	if channels == nil {
		channels = delivery.Channels{domain.DeliverView: delivery.ViewChannel{}}
	}
	agg := digest.NewAggregator(store, store, clustering.NewOverlapClusterer(0.2), channels,
		config.DigestConfig{MaxItems: 50, OverlapThreshold: 0.2}, testLogger())
	sched := New(store, agg, config.SchedulerConfig{TickSeconds: 1}, testLogger())
	return sched, store
}

func seedDoneItem(t *testing.T, store *storage.MemoryStore, title string) *domain.ContentItem {
	t.Helper()
	ctx := context.Background()
	item := domain.NewContentItem(domain.ChannelUpload, "payload for "+title)
	item.Type = domain.TypeText
	item.Title = title
	item.Status = domain.StatusDone
	if err := store.SaveItem(ctx, item); err != nil {
		t.Fatalf("save item: %v", err)
	}
	result := &domain.AgentResult{
		ID:          item.ID + "-result",
		ItemID:      item.ID,
		Agent:       "content-processor",
		Summary:     "summary of " + title,
		CompletedAt: time.Now().UTC(),
	}
	if err := store.SaveResult(ctx, result); err != nil {
		t.Fatalf("save result: %v", err)
	}
	return item
}

func saveRecurring(t *testing.T, store *storage.MemoryStore, method domain.DeliveryMethod) *domain.DigestRequest {
	t.Helper()
	req := domain.NewDigestRequest(domain.KindRecurring)
	req.Schedule = domain.ScheduleDaily
	req.At = "08:00"
	req.Recipient = "reader@example.com"
	req.DeliveryMethod = method
	req.NextRun = time.Now().UTC().Add(-time.Minute)
	if err := store.SaveRequest(context.Background(), req); err != nil {
		t.Fatalf("save request: %v", err)
	}
	return req
}

func TestFireRecurringReturnsToScheduled(t *testing.T) {
	t.Parallel()

	sched, store := newTestScheduler(t, nil)
	seedDoneItem(t, store, "alpha")
	req := saveRecurring(t, store, domain.DeliverView)

	before := time.Now().UTC()
	if err := sched.FireNow(context.Background(), req.ID); err != nil {
		t.Fatalf("fire: %v", err)
	}

	stored, err := store.GetRequest(context.Background(), req.ID)
	if err != nil {
		t.Fatalf("get request: %v", err)
	}
	if stored.State != domain.StateScheduled {
		t.Fatalf("recurring request must return to scheduled, got %s", stored.State)
	}
	if !stored.Active {
		t.Fatal("recurring request must stay active")
	}
	if !stored.NextRun.After(before) {
		t.Fatalf("next run must advance past now, got %v", stored.NextRun)
	}
	if stored.LastRun.IsZero() {
		t.Fatal("last run must be recorded")
	}

	recs, err := store.ListRecords(context.Background(), req.ID)
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected one record, got %d", len(recs))
	}
	if recs[0].DeliveryStatus != domain.DeliveryDelivered {
		t.Fatalf("expected delivered, got %s", recs[0].DeliveryStatus)
	}
	if len(recs[0].ItemIDs) != 1 {
		t.Fatalf("expected one item in digest, got %v", recs[0].ItemIDs)
	}
}

func TestFailedDeliveryStillAdvancesSchedule(t *testing.T) {
	t.Parallel()

	channels := delivery.Channels{domain.DeliverEmail: failingChannel{}}
	sched, store := newTestScheduler(t, channels)
	seedDoneItem(t, store, "beta")
	req := saveRecurring(t, store, domain.DeliverEmail)

	before := time.Now().UTC()
	if err := sched.FireNow(context.Background(), req.ID); err == nil {
		t.Fatal("expected delivery failure to surface")
	}

	stored, _ := store.GetRequest(context.Background(), req.ID)
	if stored.State != domain.StateScheduled {
		t.Fatalf("failed fire must leave request scheduled, got %s", stored.State)
	}
	if !stored.Active {
		t.Fatal("failed fire must not deactivate a recurring request")
	}
	if !stored.NextRun.After(before) {
		t.Fatalf("failed fire must still advance next run, got %v", stored.NextRun)
	}

	// The record survives the failed send for manual redelivery.
	recs, _ := store.ListRecords(context.Background(), req.ID)
	if len(recs) != 1 || recs[0].DeliveryStatus != domain.DeliveryFailed {
		t.Fatalf("expected one failed record, got %v", recs)
	}
}

func TestOneShotDeactivatesAfterSingleFire(t *testing.T) {
	t.Parallel()

	sched, store := newTestScheduler(t, nil)
	seedDoneItem(t, store, "gamma")

	req := domain.NewDigestRequest(domain.KindOneShot)
	req.WindowStart = time.Now().UTC().Add(-time.Hour)
	req.WindowEnd = time.Now().UTC().Add(time.Hour)
	req.Recipient = "reader@example.com"
	req.DeliveryMethod = domain.DeliverView
	req.NextRun = time.Now().UTC()
	if err := store.SaveRequest(context.Background(), req); err != nil {
		t.Fatalf("save request: %v", err)
	}

	if err := sched.FireNow(context.Background(), req.ID); err != nil {
		t.Fatalf("fire: %v", err)
	}

	stored, _ := store.GetRequest(context.Background(), req.ID)
	if stored.Active {
		t.Fatal("one-shot request must deactivate after firing")
	}
	if stored.State != domain.StateCompleted {
		t.Fatalf("expected completed, got %s", stored.State)
	}

	due, _ := store.DueRequests(context.Background(), time.Now().UTC().Add(time.Hour))
	if len(due) != 0 {
		t.Fatalf("deactivated request must never come due again, got %d", len(due))
	}
}

func TestFireNowRejectsExecutedOneShot(t *testing.T) {
	t.Parallel()

	sched, store := newTestScheduler(t, nil)
	seedDoneItem(t, store, "delta")

	req := domain.NewDigestRequest(domain.KindOneShot)
	req.WindowStart = time.Now().UTC().Add(-time.Hour)
	req.WindowEnd = time.Now().UTC().Add(time.Hour)
	req.Recipient = "reader@example.com"
	req.DeliveryMethod = domain.DeliverView
	req.NextRun = time.Now().UTC()
	if err := store.SaveRequest(context.Background(), req); err != nil {
		t.Fatalf("save request: %v", err)
	}

	if err := sched.FireNow(context.Background(), req.ID); err != nil {
		t.Fatalf("first fire: %v", err)
	}
	if err := sched.FireNow(context.Background(), req.ID); !errors.Is(err, ErrNotActive) {
		t.Fatalf("expected ErrNotActive on refire, got %v", err)
	}

	recs, err := store.ListRecords(context.Background(), req.ID)
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("one-shot must produce exactly one record, got %d", len(recs))
	}
}

func TestSweepCollapsesMissedFires(t *testing.T) {
	t.Parallel()

	sched, store := newTestScheduler(t, nil)
	seedDoneItem(t, store, "epsilon")

	// Three missed daily due times behind the wall clock. The fire time sits
	// hours away from now so the recomputed next run stays out of this test.
	req := saveRecurring(t, store, domain.DeliverView)
	req.At = time.Now().UTC().Add(-2 * time.Hour).Format("15:04")
	req.NextRun = time.Now().UTC().Add(-3 * 24 * time.Hour)
	if err := store.UpdateRequest(context.Background(), req); err != nil {
		t.Fatalf("update request: %v", err)
	}

	before := time.Now().UTC()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sched.Start(ctx)

	deadline := time.Now().Add(3 * time.Second)
	var stored *domain.DigestRequest
	for time.Now().Before(deadline) {
		stored, _ = store.GetRequest(context.Background(), req.ID)
		if stored != nil && stored.NextRun.After(before) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	sched.Stop()

	if stored == nil || !stored.NextRun.After(before) {
		t.Fatal("sweep never fired the overdue request")
	}
	if stored.State != domain.StateScheduled {
		t.Fatalf("catch-up fire must return request to scheduled, got %s", stored.State)
	}

	recs, err := store.ListRecords(context.Background(), req.ID)
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("missed due times must collapse to one catch-up record, got %d", len(recs))
	}
}

func TestFireNowRejectsConcurrentFire(t *testing.T) {
	t.Parallel()

	sched, store := newTestScheduler(t, nil)
	req := saveRecurring(t, store, domain.DeliverView)

	if !sched.claim(req.ID) {
		t.Fatal("claim should succeed")
	}
	defer sched.release(req.ID)

	if err := sched.FireNow(context.Background(), req.ID); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
}
