package storage

import (
	"context"
	"database/sql"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS content_items (
		id             VARCHAR(36) PRIMARY KEY,
		channel        VARCHAR(20) NOT NULL,
		content_type   VARCHAR(20) NOT NULL,
		payload        TEXT NOT NULL,
		title          VARCHAR(255) NOT NULL DEFAULT '',
		sender         VARCHAR(255) NOT NULL DEFAULT '',
		command        VARCHAR(255) NOT NULL DEFAULT '',
		tags           TEXT[] NOT NULL DEFAULT '{}',
		status         VARCHAR(20) NOT NULL,
		failure_reason TEXT NOT NULL DEFAULT '',
		created_at     TIMESTAMPTZ NOT NULL,
		updated_at     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS agent_results (
		id           VARCHAR(36) PRIMARY KEY,
		item_id      VARCHAR(36) NOT NULL UNIQUE REFERENCES content_items(id),
		agent        VARCHAR(50) NOT NULL,
		summary      TEXT NOT NULL DEFAULT '',
		processed    TEXT NOT NULL DEFAULT '',
		content_type VARCHAR(20) NOT NULL,
		entities     JSONB NOT NULL DEFAULT '[]',
		tags         TEXT[] NOT NULL DEFAULT '{}',
		providers    TEXT[] NOT NULL DEFAULT '{}',
		completed_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS routing_decisions (
		id         BIGSERIAL PRIMARY KEY,
		item_id    VARCHAR(36) NOT NULL,
		agent      VARCHAR(50) NOT NULL,
		rule       VARCHAR(20) NOT NULL,
		reason     TEXT NOT NULL DEFAULT '',
		decided_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS digest_requests (
		id              VARCHAR(36) PRIMARY KEY,
		kind            VARCHAR(20) NOT NULL,
		schedule        VARCHAR(20) NOT NULL DEFAULT '',
		at_time         VARCHAR(5) NOT NULL DEFAULT '',
		window_start    TIMESTAMPTZ,
		window_end      TIMESTAMPTZ,
		content_types   TEXT[] NOT NULL DEFAULT '{}',
		tags            TEXT[] NOT NULL DEFAULT '{}',
		recipient       VARCHAR(255) NOT NULL DEFAULT '',
		delivery_method VARCHAR(20) NOT NULL,
		state           VARCHAR(20) NOT NULL,
		active          BOOLEAN NOT NULL DEFAULT TRUE,
		last_run        TIMESTAMPTZ,
		next_run        TIMESTAMPTZ,
		created_at      TIMESTAMPTZ NOT NULL,
		updated_at      TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS digest_records (
		id              VARCHAR(36) PRIMARY KEY,
		request_id      VARCHAR(36) NOT NULL,
		item_ids        TEXT[] NOT NULL DEFAULT '{}',
		themes          JSONB NOT NULL DEFAULT '[]',
		connections     JSONB NOT NULL DEFAULT '[]',
		body            TEXT NOT NULL DEFAULT '',
		html_body       TEXT NOT NULL DEFAULT '',
		recipient       VARCHAR(255) NOT NULL DEFAULT '',
		delivery_method VARCHAR(20) NOT NULL,
		delivery_status VARCHAR(20) NOT NULL,
		generated_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_content_items_status_created
		ON content_items (status, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_digest_requests_due
		ON digest_requests (next_run) WHERE active`,
}

// EnsureSchema creates the tables this store relies on.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
