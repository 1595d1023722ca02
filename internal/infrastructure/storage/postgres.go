package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"ContentDigest/internal/domain"
	"ContentDigest/internal/ports"
)

// psql builds Postgres-placeholder queries for every statement in this store.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresStore persists items, results, audit, requests, and records.
type PostgresStore struct {
	db *sql.DB
}

var (
	_ ports.KnowledgeStore = (*PostgresStore)(nil)
	_ ports.ScheduleStore  = (*PostgresStore)(nil)
)

// NewPostgresStore wires a sql.DB implementation.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// SaveItem inserts a content item row.
func (s *PostgresStore) SaveItem(ctx context.Context, item *domain.ContentItem) error {
	query, args, err := psql.Insert("content_items").
		Columns("id", "channel", "content_type", "payload", "title", "sender",
			"command", "tags", "status", "failure_reason", "created_at", "updated_at").
		Values(item.ID, item.Channel, item.Type, item.Payload, item.Title, item.Sender,
			item.Command, pq.StringArray(item.Tags), item.Status, item.FailureReason,
			item.CreatedAt, item.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert item: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

// GetItem loads a content item by id.
func (s *PostgresStore) GetItem(ctx context.Context, id string) (*domain.ContentItem, error) {
	query, args, err := itemSelect().Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select item: %w", err)
	}

	item, err := scanItem(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ports.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select item: %w", err)
	}
	return item, nil
}

// UpdateItem overwrites the mutable columns of an item row.
func (s *PostgresStore) UpdateItem(ctx context.Context, item *domain.ContentItem) error {
	query, args, err := psql.Update("content_items").
		Set("content_type", item.Type).
		Set("title", item.Title).
		Set("command", item.Command).
		Set("tags", pq.StringArray(item.Tags)).
		Set("status", item.Status).
		Set("failure_reason", item.FailureReason).
		Set("updated_at", item.UpdatedAt).
		Where(sq.Eq{"id": item.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update item: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ports.ErrNotFound
	}
	return nil
}

// QueryItems filters items with deterministic created_at, id ordering.
func (s *PostgresStore) QueryItems(ctx context.Context, filter ports.ItemFilter) ([]domain.ContentItem, error) {
	builder := itemSelect().OrderBy("created_at", "id")

	if filter.Status != "" {
		builder = builder.Where(sq.Eq{"status": filter.Status})
	}
	if len(filter.Types) > 0 {
		builder = builder.Where(sq.Eq{"content_type": filter.Types})
	}
	if len(filter.Tags) > 0 {
		builder = builder.Where("tags && ?", pq.StringArray(filter.Tags))
	}
	if !filter.Since.IsZero() {
		builder = builder.Where(sq.GtOrEq{"created_at": filter.Since})
	}
	if !filter.Until.IsZero() {
		builder = builder.Where(sq.Lt{"created_at": filter.Until})
	}
	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query items: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var items []domain.ContentItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}

// SaveResult appends an agent result row; conflicts on item id are ignored so
// the first persisted result stays authoritative.
func (s *PostgresStore) SaveResult(ctx context.Context, result *domain.AgentResult) error {
	entities, err := encodeEntities(result.Entities)
	if err != nil {
		return fmt.Errorf("encode entities: %w", err)
	}

	query, args, err := psql.Insert("agent_results").
		Columns("id", "item_id", "agent", "summary", "processed", "content_type",
			"entities", "tags", "providers", "completed_at").
		Values(result.ID, result.ItemID, result.Agent, result.Summary, result.Processed,
			result.ContentType, entities, pq.StringArray(result.Tags),
			pq.StringArray(result.Providers), result.CompletedAt).
		Suffix("ON CONFLICT (item_id) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert result: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

// ResultForItem loads the agent result recorded for an item.
func (s *PostgresStore) ResultForItem(ctx context.Context, itemID string) (*domain.AgentResult, error) {
	query, args, err := psql.Select("id", "item_id", "agent", "summary", "processed",
		"content_type", "entities", "tags", "providers", "completed_at").
		From("agent_results").
		Where(sq.Eq{"item_id": itemID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select result: %w", err)
	}

	var (
		result   domain.AgentResult
		entities []byte
		tags     pq.StringArray
		provs    pq.StringArray
	)
	err = s.db.QueryRowContext(ctx, query, args...).Scan(
		&result.ID, &result.ItemID, &result.Agent, &result.Summary, &result.Processed,
		&result.ContentType, &entities, &tags, &provs, &result.CompletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ports.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select result: %w", err)
	}

	result.Tags = tags
	result.Providers = provs
	if result.Entities, err = decodeEntities(entities); err != nil {
		return nil, fmt.Errorf("decode entities: %w", err)
	}
	return &result, nil
}

// AppendDecision inserts one routing audit row.
func (s *PostgresStore) AppendDecision(ctx context.Context, decision domain.RoutingDecision) error {
	query, args, err := psql.Insert("routing_decisions").
		Columns("item_id", "agent", "rule", "reason", "decided_at").
		Values(decision.ItemID, decision.Agent, decision.Rule, decision.Reason, decision.DecidedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert decision: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

// DecisionsForItem loads the audit trail for an item in append order.
func (s *PostgresStore) DecisionsForItem(ctx context.Context, itemID string) ([]domain.RoutingDecision, error) {
	query, args, err := psql.Select("item_id", "agent", "rule", "reason", "decided_at").
		From("routing_decisions").
		Where(sq.Eq{"item_id": itemID}).
		OrderBy("decided_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select decisions: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select decisions: %w", err)
	}
	defer rows.Close()

	var decisions []domain.RoutingDecision
	for rows.Next() {
		var d domain.RoutingDecision
		if err := rows.Scan(&d.ItemID, &d.Agent, &d.Rule, &d.Reason, &d.DecidedAt); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		decisions = append(decisions, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate decisions: %w", err)
	}
	return decisions, nil
}

// SaveRequest inserts a digest request row.
func (s *PostgresStore) SaveRequest(ctx context.Context, req *domain.DigestRequest) error {
	query, args, err := psql.Insert("digest_requests").
		Columns("id", "kind", "schedule", "at_time", "window_start", "window_end",
			"content_types", "tags", "recipient", "delivery_method", "state", "active",
			"last_run", "next_run", "created_at", "updated_at").
		Values(req.ID, req.Kind, req.Schedule, req.At, nullTime(req.WindowStart),
			nullTime(req.WindowEnd), pq.StringArray(typesToStrings(req.Types)),
			pq.StringArray(req.Tags), req.Recipient, req.DeliveryMethod, req.State,
			req.Active, nullTime(req.LastRun), nullTime(req.NextRun),
			req.CreatedAt, req.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert request: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert request: %w", err)
	}
	return nil
}

// GetRequest loads a digest request by id.
func (s *PostgresStore) GetRequest(ctx context.Context, id string) (*domain.DigestRequest, error) {
	query, args, err := requestSelect().Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select request: %w", err)
	}

	req, err := scanRequest(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ports.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select request: %w", err)
	}
	return req, nil
}

// UpdateRequest overwrites the mutable columns of a request row.
func (s *PostgresStore) UpdateRequest(ctx context.Context, req *domain.DigestRequest) error {
	query, args, err := psql.Update("digest_requests").
		Set("schedule", req.Schedule).
		Set("at_time", req.At).
		Set("content_types", pq.StringArray(typesToStrings(req.Types))).
		Set("tags", pq.StringArray(req.Tags)).
		Set("recipient", req.Recipient).
		Set("delivery_method", req.DeliveryMethod).
		Set("state", req.State).
		Set("active", req.Active).
		Set("last_run", nullTime(req.LastRun)).
		Set("next_run", nullTime(req.NextRun)).
		Set("updated_at", req.UpdatedAt).
		Where(sq.Eq{"id": req.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update request: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update request: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ports.ErrNotFound
	}
	return nil
}

// ListRequests returns requests ordered by creation time.
func (s *PostgresStore) ListRequests(ctx context.Context, activeOnly bool) ([]domain.DigestRequest, error) {
	builder := requestSelect().OrderBy("created_at")
	if activeOnly {
		builder = builder.Where(sq.Eq{"active": true})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list requests: %w", err)
	}
	return s.collectRequests(ctx, query, args)
}

// DueRequests returns active requests whose next_run has passed.
func (s *PostgresStore) DueRequests(ctx context.Context, now time.Time) ([]domain.DigestRequest, error) {
	query, args, err := requestSelect().
		Where(sq.Eq{"active": true}).
		Where(sq.LtOrEq{"next_run": now}).
		OrderBy("next_run").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build due requests: %w", err)
	}
	return s.collectRequests(ctx, query, args)
}

// SaveRecord inserts a digest record row.
func (s *PostgresStore) SaveRecord(ctx context.Context, rec *domain.DigestRecord) error {
	themes, err := encodeThemes(rec.Themes)
	if err != nil {
		return fmt.Errorf("encode themes: %w", err)
	}
	connections, err := encodeConnections(rec.Connections)
	if err != nil {
		return fmt.Errorf("encode connections: %w", err)
	}

	query, args, err := psql.Insert("digest_records").
		Columns("id", "request_id", "item_ids", "themes", "connections", "body",
			"html_body", "recipient", "delivery_method", "delivery_status", "generated_at").
		Values(rec.ID, rec.RequestID, pq.StringArray(rec.ItemIDs), themes, connections,
			rec.Body, rec.HTMLBody, rec.Recipient, rec.DeliveryMethod,
			rec.DeliveryStatus, rec.GeneratedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert record: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// GetRecord loads a digest record by id.
func (s *PostgresStore) GetRecord(ctx context.Context, id string) (*domain.DigestRecord, error) {
	query, args, err := recordSelect().Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select record: %w", err)
	}

	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ports.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select record: %w", err)
	}
	return rec, nil
}

// UpdateRecordDelivery flips only the delivery status column.
func (s *PostgresStore) UpdateRecordDelivery(ctx context.Context, id string, status domain.DeliveryStatus) error {
	query, args, err := psql.Update("digest_records").
		Set("delivery_status", status).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update record delivery: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update record delivery: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ports.ErrNotFound
	}
	return nil
}

// ListRecords returns records, optionally scoped to a request, newest first.
func (s *PostgresStore) ListRecords(ctx context.Context, requestID string) ([]domain.DigestRecord, error) {
	builder := recordSelect().OrderBy("generated_at DESC")
	if requestID != "" {
		builder = builder.Where(sq.Eq{"request_id": requestID})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list records: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var records []domain.DigestRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

func (s *PostgresStore) collectRequests(ctx context.Context, query string, args []any) ([]domain.DigestRequest, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query requests: %w", err)
	}
	defer rows.Close()

	var requests []domain.DigestRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		requests = append(requests, *req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate requests: %w", err)
	}
	return requests, nil
}

func itemSelect() sq.SelectBuilder {
	return psql.Select("id", "channel", "content_type", "payload", "title", "sender",
		"command", "tags", "status", "failure_reason", "created_at", "updated_at").
		From("content_items")
}

func requestSelect() sq.SelectBuilder {
	return psql.Select("id", "kind", "schedule", "at_time", "window_start", "window_end",
		"content_types", "tags", "recipient", "delivery_method", "state", "active",
		"last_run", "next_run", "created_at", "updated_at").
		From("digest_requests")
}

func recordSelect() sq.SelectBuilder {
	return psql.Select("id", "request_id", "item_ids", "themes", "connections", "body",
		"html_body", "recipient", "delivery_method", "delivery_status", "generated_at").
		From("digest_records")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*domain.ContentItem, error) {
	var (
		item domain.ContentItem
		tags pq.StringArray
	)
	err := row.Scan(&item.ID, &item.Channel, &item.Type, &item.Payload, &item.Title,
		&item.Sender, &item.Command, &tags, &item.Status, &item.FailureReason,
		&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}
	item.Tags = tags
	return &item, nil
}

func scanRequest(row rowScanner) (*domain.DigestRequest, error) {
	var (
		req         domain.DigestRequest
		types       pq.StringArray
		tags        pq.StringArray
		windowStart sql.NullTime
		windowEnd   sql.NullTime
		lastRun     sql.NullTime
		nextRun     sql.NullTime
	)
	err := row.Scan(&req.ID, &req.Kind, &req.Schedule, &req.At, &windowStart, &windowEnd,
		&types, &tags, &req.Recipient, &req.DeliveryMethod, &req.State, &req.Active,
		&lastRun, &nextRun, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return nil, err
	}
	req.Types = stringsToTypes(types)
	req.Tags = tags
	req.WindowStart = windowStart.Time
	req.WindowEnd = windowEnd.Time
	req.LastRun = lastRun.Time
	req.NextRun = nextRun.Time
	return &req, nil
}

func scanRecord(row rowScanner) (*domain.DigestRecord, error) {
	var (
		rec         domain.DigestRecord
		itemIDs     pq.StringArray
		themes      []byte
		connections []byte
	)
	err := row.Scan(&rec.ID, &rec.RequestID, &itemIDs, &themes, &connections, &rec.Body,
		&rec.HTMLBody, &rec.Recipient, &rec.DeliveryMethod, &rec.DeliveryStatus,
		&rec.GeneratedAt)
	if err != nil {
		return nil, err
	}
	rec.ItemIDs = itemIDs
	if rec.Themes, err = decodeThemes(themes); err != nil {
		return nil, err
	}
	if rec.Connections, err = decodeConnections(connections); err != nil {
		return nil, err
	}
	return &rec, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func typesToStrings(types []domain.ContentType) []string {
	out := make([]string, 0, len(types))
	for _, t := range types {
		out = append(out, string(t))
	}
	return out
}

func stringsToTypes(values []string) []domain.ContentType {
	out := make([]domain.ContentType, 0, len(values))
	for _, v := range values {
		out = append(out, domain.ContentType(v))
	}
	return out
}
