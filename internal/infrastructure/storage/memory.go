package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"ContentDigest/internal/domain"
	"ContentDigest/internal/ports"
)

// MemoryStore is a mutex-guarded in-memory implementation of both store
// contracts, used for tests and DSN-less development runs.
type MemoryStore struct {
	mu        sync.RWMutex
	items     map[string]domain.ContentItem
	results   map[string]domain.AgentResult // keyed by item id
	decisions map[string][]domain.RoutingDecision
	requests  map[string]domain.DigestRequest
	records   map[string]domain.DigestRecord
}

var (
	_ ports.KnowledgeStore = (*MemoryStore)(nil)
	_ ports.ScheduleStore  = (*MemoryStore)(nil)
)

// NewMemoryStore builds an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:     map[string]domain.ContentItem{},
		results:   map[string]domain.AgentResult{},
		decisions: map[string][]domain.RoutingDecision{},
		requests:  map[string]domain.DigestRequest{},
		records:   map[string]domain.DigestRecord{},
	}
}

// SaveItem stores a new content item snapshot.
func (s *MemoryStore) SaveItem(_ context.Context, item *domain.ContentItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[item.ID] = cloneItem(item)
	return nil
}

// GetItem looks up a content item by id.
func (s *MemoryStore) GetItem(_ context.Context, id string) (*domain.ContentItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	c := cloneItem(&item)
	return &c, nil
}

// UpdateItem overwrites an existing content item snapshot.
func (s *MemoryStore) UpdateItem(_ context.Context, item *domain.ContentItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[item.ID]; !ok {
		return ports.ErrNotFound
	}
	s.items[item.ID] = cloneItem(item)
	return nil
}

// QueryItems filters items and returns them ordered by CreatedAt then ID so
// repeated aggregation over an unchanged store yields identical output.
func (s *MemoryStore) QueryItems(_ context.Context, filter ports.ItemFilter) ([]domain.ContentItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.ContentItem
	for _, item := range s.items {
		if !matchesFilter(item, filter) {
			continue
		}
		out = append(out, cloneItem(&item))
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// SaveResult appends an agent result; results are never overwritten.
func (s *MemoryStore) SaveResult(_ context.Context, result *domain.AgentResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.results[result.ItemID]; ok {
		// Append-only history keeps the first result authoritative per item.
		return nil
	}
	s.results[result.ItemID] = *result
	return nil
}

// ResultForItem returns the result recorded for the item, if any.
func (s *MemoryStore) ResultForItem(_ context.Context, itemID string) (*domain.AgentResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result, ok := s.results[itemID]
	if !ok {
		return nil, ports.ErrNotFound
	}
	r := result
	return &r, nil
}

// AppendDecision records one routing decision for audit.
func (s *MemoryStore) AppendDecision(_ context.Context, decision domain.RoutingDecision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisions[decision.ItemID] = append(s.decisions[decision.ItemID], decision)
	return nil
}

// DecisionsForItem returns the audit trail for an item in append order.
func (s *MemoryStore) DecisionsForItem(_ context.Context, itemID string) ([]domain.RoutingDecision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.RoutingDecision{}, s.decisions[itemID]...), nil
}

// SaveRequest stores a digest request.
func (s *MemoryStore) SaveRequest(_ context.Context, req *domain.DigestRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[req.ID] = cloneRequest(req)
	return nil
}

// GetRequest looks up a digest request by id.
func (s *MemoryStore) GetRequest(_ context.Context, id string) (*domain.DigestRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requests[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	c := cloneRequest(&req)
	return &c, nil
}

// UpdateRequest overwrites a digest request snapshot.
func (s *MemoryStore) UpdateRequest(_ context.Context, req *domain.DigestRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[req.ID]; !ok {
		return ports.ErrNotFound
	}
	s.requests[req.ID] = cloneRequest(req)
	return nil
}

// ListRequests returns requests ordered by creation time.
func (s *MemoryStore) ListRequests(_ context.Context, activeOnly bool) ([]domain.DigestRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.DigestRequest
	for _, req := range s.requests {
		if activeOnly && !req.Active {
			continue
		}
		out = append(out, cloneRequest(&req))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// DueRequests returns active requests whose NextRun has passed.
func (s *MemoryStore) DueRequests(_ context.Context, now time.Time) ([]domain.DigestRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.DigestRequest
	for _, req := range s.requests {
		if !req.Active || req.NextRun.IsZero() || req.NextRun.After(now) {
			continue
		}
		out = append(out, cloneRequest(&req))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextRun.Before(out[j].NextRun) })
	return out, nil
}

// SaveRecord stores a generated digest record.
func (s *MemoryStore) SaveRecord(_ context.Context, rec *domain.DigestRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = cloneRecord(rec)
	return nil
}

// GetRecord looks up a digest record by id.
func (s *MemoryStore) GetRecord(_ context.Context, id string) (*domain.DigestRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	c := cloneRecord(&rec)
	return &c, nil
}

// UpdateRecordDelivery flips only the delivery status of a record.
func (s *MemoryStore) UpdateRecordDelivery(_ context.Context, id string, status domain.DeliveryStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return ports.ErrNotFound
	}
	rec.DeliveryStatus = status
	s.records[id] = rec
	return nil
}

// ListRecords returns records, optionally filtered by request id, newest first.
func (s *MemoryStore) ListRecords(_ context.Context, requestID string) ([]domain.DigestRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.DigestRecord
	for _, rec := range s.records {
		if requestID != "" && rec.RequestID != requestID {
			continue
		}
		out = append(out, cloneRecord(&rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GeneratedAt.After(out[j].GeneratedAt) })
	return out, nil
}

func matchesFilter(item domain.ContentItem, filter ports.ItemFilter) bool {
	if filter.Status != "" && item.Status != filter.Status {
		return false
	}
	if !filter.Since.IsZero() && item.CreatedAt.Before(filter.Since) {
		return false
	}
	if !filter.Until.IsZero() && !item.CreatedAt.Before(filter.Until) {
		return false
	}
	if len(filter.Types) > 0 && !containsType(filter.Types, item.Type) {
		return false
	}
	if len(filter.Tags) > 0 && !hasAnyTag(item.Tags, filter.Tags) {
		return false
	}
	return true
}

func containsType(types []domain.ContentType, t domain.ContentType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

func hasAnyTag(itemTags, wanted []string) bool {
	for _, tag := range itemTags {
		for _, w := range wanted {
			if strings.EqualFold(tag, w) {
				return true
			}
		}
	}
	return false
}

func cloneItem(item *domain.ContentItem) domain.ContentItem {
	c := *item
	c.Tags = append([]string{}, item.Tags...)
	return c
}

func cloneRequest(req *domain.DigestRequest) domain.DigestRequest {
	c := *req
	c.Types = append([]domain.ContentType{}, req.Types...)
	c.Tags = append([]string{}, req.Tags...)
	return c
}

func cloneRecord(rec *domain.DigestRecord) domain.DigestRecord {
	c := *rec
	c.ItemIDs = append([]string{}, rec.ItemIDs...)
	c.Themes = append([]domain.Theme{}, rec.Themes...)
	c.Connections = append([]domain.Connection{}, rec.Connections...)
	return c
}
