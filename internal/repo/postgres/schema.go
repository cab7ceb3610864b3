package postgres

import (
	"context"
	"fmt"
)

// Schema is applied at startup. Every statement is idempotent so repeated
// boots against the same database are safe.
const Schema = `
CREATE TABLE IF NOT EXISTS deployments (
	deployment_id TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	active        BOOLEAN NOT NULL DEFAULT FALSE,
	doc           JSONB NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS deployments_name_idx ON deployments (name);

CREATE TABLE IF NOT EXISTS devices (
	device_id  TEXT PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	status     TEXT NOT NULL,
	doc        JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS modules (
	module_id  TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	doc        JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS modules_name_idx ON modules (name);

CREATE TABLE IF NOT EXISTS node_cards (
	card_id       TEXT PRIMARY KEY,
	node_id       TEXT NOT NULL,
	zone          TEXT NOT NULL,
	doc           JSONB NOT NULL,
	date_received TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS node_cards_node_idx ON node_cards (node_id, date_received DESC);

CREATE TABLE IF NOT EXISTS module_cards (
	card_id       TEXT PRIMARY KEY,
	module_id     TEXT NOT NULL,
	doc           JSONB NOT NULL,
	date_received TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS module_cards_module_idx ON module_cards (module_id, date_received DESC);

CREATE TABLE IF NOT EXISTS datasource_cards (
	card_id       TEXT PRIMARY KEY,
	node_id       TEXT NOT NULL,
	doc           JSONB NOT NULL,
	date_received TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS datasource_cards_node_idx ON datasource_cards (node_id, date_received DESC);

CREATE TABLE IF NOT EXISTS zones (
	zone_id      TEXT PRIMARY KEY,
	zone         TEXT,
	doc_type     TEXT,
	doc          JSONB NOT NULL,
	last_updated TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS zones_zone_idx ON zones (zone) WHERE zone IS NOT NULL;
CREATE UNIQUE INDEX IF NOT EXISTS zones_type_idx ON zones (doc_type) WHERE doc_type IS NOT NULL;

CREATE TABLE IF NOT EXISTS deployment_certificates (
	certificate_id TEXT PRIMARY KEY,
	deployment_id  TEXT NOT NULL,
	valid          BOOLEAN NOT NULL,
	doc            JSONB NOT NULL,
	issued_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS deployment_certificates_deployment_idx
	ON deployment_certificates (deployment_id, issued_at DESC);

CREATE TABLE IF NOT EXISTS supervisor_logs (
	log_id        TEXT PRIMARY KEY,
	device_name   TEXT NOT NULL,
	deployment_id TEXT,
	doc           JSONB NOT NULL,
	date_received TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS supervisor_logs_received_idx ON supervisor_logs (date_received DESC);
`

// EnsureSchema creates all tables and indexes when missing.
func EnsureSchema(ctx context.Context, db DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
