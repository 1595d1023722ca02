package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"ContentDigest/internal/agent"
	"ContentDigest/internal/domain"
	"ContentDigest/internal/infrastructure/storage"
	"ContentDigest/internal/ports"
)

type stubAgent struct {
	name    string
	process func(ctx context.Context, req agent.Request) (agent.Response, error)
}

func (s *stubAgent) Name() string        { return s.name }
func (s *stubAgent) Description() string { return "stub" }
func (s *stubAgent) Process(ctx context.Context, req agent.Request) (agent.Response, error) {
	return s.process(ctx, req)
}

func newDispatcher(t *testing.T, a agent.Agent, timeout time.Duration) (*Dispatcher, *storage.MemoryStore) {
	t.Helper()
	registry := agent.NewRegistry()
	registry.Register(a)
	store := storage.NewMemoryStore()
	return New(registry, store, timeout, nil), store
}

func pendingItem(t *testing.T, store *storage.MemoryStore) *domain.ContentItem {
	t.Helper()
	item := domain.NewContentItem(domain.ChannelUpload, "original payload")
	item.Type = domain.TypeText
	if err := store.SaveItem(context.Background(), item); err != nil {
		t.Fatalf("save item: %v", err)
	}
	return item
}

func TestDispatchPersistsResultBeforeDone(t *testing.T) {
	t.Parallel()

	a := &stubAgent{name: "worker", process: func(_ context.Context, req agent.Request) (agent.Response, error) {
		return agent.Response{
			Status:    "success",
			Summary:   "short",
			Processed: "long",
			Tags:      []string{"tech"},
		}, nil
	}}
	d, store := newDispatcher(t, a, time.Second)
	item := pendingItem(t, store)

	result, err := d.Dispatch(context.Background(), "worker", item)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if result.ItemID != item.ID {
		t.Fatalf("result bound to wrong item: %s", result.ItemID)
	}

	stored, err := store.GetItem(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if stored.Status != domain.StatusDone {
		t.Fatalf("expected done, got %s", stored.Status)
	}
	if _, err := store.ResultForItem(context.Background(), item.ID); err != nil {
		t.Fatalf("done item must have a result: %v", err)
	}
	if len(stored.Tags) == 0 || stored.Tags[0] != "tech" {
		t.Fatalf("expected merged tags, got %v", stored.Tags)
	}
}

func TestDispatchConcurrentDuplicateYieldsOneResult(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	a := &stubAgent{name: "worker", process: func(_ context.Context, _ agent.Request) (agent.Response, error) {
		<-release
		return agent.Response{Status: "success", Summary: "done"}, nil
	}}
	d, store := newDispatcher(t, a, 5*time.Second)
	item := pendingItem(t, store)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = d.Dispatch(context.Background(), "worker", item)
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	var inFlight, succeeded int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrInFlight):
			inFlight++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 || inFlight != 1 {
		t.Fatalf("expected exactly one success and one in-flight rejection, got %d/%d", succeeded, inFlight)
	}
}

func TestDispatchTimeoutFailsItem(t *testing.T) {
	t.Parallel()

	a := &stubAgent{name: "slow", process: func(ctx context.Context, _ agent.Request) (agent.Response, error) {
		<-ctx.Done()
		return agent.Response{}, ctx.Err()
	}}
	d, store := newDispatcher(t, a, 20*time.Millisecond)
	item := pendingItem(t, store)

	if _, err := d.Dispatch(context.Background(), "slow", item); err == nil {
		t.Fatal("expected timeout error")
	}

	stored, err := store.GetItem(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if stored.Status != domain.StatusFailed {
		t.Fatalf("expected failed, got %s", stored.Status)
	}
	if !strings.Contains(stored.FailureReason, "timed out") {
		t.Fatalf("expected timeout reason, got %q", stored.FailureReason)
	}
	if stored.Payload != "original payload" {
		t.Fatalf("payload must survive failure, got %q", stored.Payload)
	}
}

func TestDispatchFailurePreservesPayload(t *testing.T) {
	t.Parallel()

	a := &stubAgent{name: "broken", process: func(_ context.Context, _ agent.Request) (agent.Response, error) {
		return agent.Response{}, errors.New("upstream exploded")
	}}
	d, store := newDispatcher(t, a, time.Second)
	item := pendingItem(t, store)

	if _, err := d.Dispatch(context.Background(), "broken", item); err == nil {
		t.Fatal("expected agent error")
	}

	stored, _ := store.GetItem(context.Background(), item.ID)
	if stored.Status != domain.StatusFailed {
		t.Fatalf("expected failed, got %s", stored.Status)
	}
	if stored.Payload != "original payload" {
		t.Fatalf("payload must be untouched, got %q", stored.Payload)
	}
	if _, err := store.ResultForItem(context.Background(), item.ID); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("failed item must have no result, got %v", err)
	}
}

// doneUpdateFailStore drops the status write that would mark an item done,
// leaving the earlier writes intact.
type doneUpdateFailStore struct {
	*storage.MemoryStore
}

func (s *doneUpdateFailStore) UpdateItem(ctx context.Context, item *domain.ContentItem) error {
	if item.Status == domain.StatusDone {
		return errors.New("connection reset")
	}
	return s.MemoryStore.UpdateItem(ctx, item)
}

func TestDispatchDoneWriteFailureLeavesItemResubmittable(t *testing.T) {
	t.Parallel()

	a := &stubAgent{name: "worker", process: func(_ context.Context, _ agent.Request) (agent.Response, error) {
		return agent.Response{Status: "success", Summary: "short"}, nil
	}}
	registry := agent.NewRegistry()
	registry.Register(a)
	store := &doneUpdateFailStore{storage.NewMemoryStore()}
	d := New(registry, store, time.Second, nil)

	item := domain.NewContentItem(domain.ChannelUpload, "original payload")
	item.Type = domain.TypeText
	if err := store.SaveItem(context.Background(), item); err != nil {
		t.Fatalf("save item: %v", err)
	}

	if _, err := d.Dispatch(context.Background(), "worker", item); err == nil {
		t.Fatal("expected the done write failure to surface")
	}

	stored, err := store.GetItem(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if stored.Status != domain.StatusFailed {
		t.Fatalf("item must end failed, not stuck processing, got %s", stored.Status)
	}
	if !strings.Contains(stored.FailureReason, "mark item done") {
		t.Fatalf("expected the write failure as reason, got %q", stored.FailureReason)
	}
	// The already-saved result survives; a redispatch keeps the first one.
	if _, err := store.ResultForItem(context.Background(), item.ID); err != nil {
		t.Fatalf("persisted result must survive the failed status write: %v", err)
	}
}

func TestDispatchRejectsTerminalItems(t *testing.T) {
	t.Parallel()

	a := &stubAgent{name: "worker", process: func(_ context.Context, _ agent.Request) (agent.Response, error) {
		return agent.Response{Status: "success"}, nil
	}}
	d, store := newDispatcher(t, a, time.Second)
	item := pendingItem(t, store)
	item.Status = domain.StatusDone

	if _, err := d.Dispatch(context.Background(), "worker", item); err == nil {
		t.Fatal("expected terminal rejection")
	}
}
