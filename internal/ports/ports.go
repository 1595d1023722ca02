package ports

import (
	"context"
	"errors"
	"time"

	"ContentDigest/internal/domain"
)

// ErrNotFound is returned by stores when the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ItemFilter narrows knowledge-store queries for digest aggregation.
type ItemFilter struct {
	Status domain.ItemStatus
	Types  []domain.ContentType
	Tags   []string
	Since  time.Time
	Until  time.Time
	Limit  int
}

// KnowledgeStore persists content items, agent results, and routing audit.
type KnowledgeStore interface {
	SaveItem(ctx context.Context, item *domain.ContentItem) error
	GetItem(ctx context.Context, id string) (*domain.ContentItem, error)
	UpdateItem(ctx context.Context, item *domain.ContentItem) error
	QueryItems(ctx context.Context, filter ItemFilter) ([]domain.ContentItem, error)
	SaveResult(ctx context.Context, result *domain.AgentResult) error
	ResultForItem(ctx context.Context, itemID string) (*domain.AgentResult, error)
	AppendDecision(ctx context.Context, decision domain.RoutingDecision) error
	DecisionsForItem(ctx context.Context, itemID string) ([]domain.RoutingDecision, error)
}

// ScheduleStore persists digest requests and generated records.
type ScheduleStore interface {
	SaveRequest(ctx context.Context, req *domain.DigestRequest) error
	GetRequest(ctx context.Context, id string) (*domain.DigestRequest, error)
	UpdateRequest(ctx context.Context, req *domain.DigestRequest) error
	ListRequests(ctx context.Context, activeOnly bool) ([]domain.DigestRequest, error)
	DueRequests(ctx context.Context, now time.Time) ([]domain.DigestRequest, error)
	SaveRecord(ctx context.Context, rec *domain.DigestRecord) error
	GetRecord(ctx context.Context, id string) (*domain.DigestRecord, error)
	UpdateRecordDelivery(ctx context.Context, id string, status domain.DeliveryStatus) error
	ListRecords(ctx context.Context, requestID string) ([]domain.DigestRecord, error)
}

// ChatClient is the narrow contract to an LLM completion provider.
type ChatClient interface {
	Complete(ctx context.Context, system, user string) (string, error)
	Provider() string
}

// ClusterDoc is one aggregation candidate handed to the clusterer.
type ClusterDoc struct {
	ItemID   string
	Title    string
	Summary  string
	Tags     []string
	Entities []domain.Entity
}

// Clusterer partitions result texts into labeled theme groups. Implementations
// must be deterministic for unchanged input so aggregation reruns are idempotent.
type Clusterer interface {
	Cluster(ctx context.Context, docs []ClusterDoc) ([]domain.Theme, error)
}

// DeliveryChannel sends a rendered digest to a recipient.
type DeliveryChannel interface {
	Send(ctx context.Context, rec *domain.DigestRecord, recipient string) error
}
