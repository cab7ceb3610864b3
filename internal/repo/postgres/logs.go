package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wasmfleet-labs/wasmfleet-go/internal/domain"
	"github.com/wasmfleet-labs/wasmfleet-go/internal/repo"
)

type LogStore struct {
	db DB
}

func NewLogStore(db DB) *LogStore {
	if db == nil {
		return nil
	}
	return &LogStore{db: db}
}

func (s *LogStore) Append(ctx context.Context, l domain.SupervisorLog) (string, error) {
	if s == nil || s.db == nil {
		return "", fmt.Errorf("log store not initialized")
	}
	if l.ID == "" {
		l.ID = newID()
	}
	l.DateReceived = normalizeTime(l.DateReceived)
	doc, err := encodeDoc(l)
	if err != nil {
		return "", err
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO supervisor_logs (log_id, device_name, deployment_id, doc, date_received)
		 VALUES ($1,$2,$3,$4,$5)`,
		l.ID,
		strings.TrimSpace(l.DeviceName),
		nullIfEmpty(l.DeploymentID),
		doc,
		l.DateReceived,
	)
	if err != nil {
		return "", fmt.Errorf("insert supervisor log: %w", err)
	}
	return l.ID, nil
}

func (s *LogStore) List(ctx context.Context, filter repo.LogFilter) ([]domain.SupervisorLog, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("log store not initialized")
	}
	query := `SELECT doc FROM supervisor_logs`
	clauses := make([]string, 0, 3)
	args := make([]any, 0, 4)
	if filter.DeviceName != "" {
		args = append(args, filter.DeviceName)
		clauses = append(clauses, fmt.Sprintf("device_name = $%d", len(args)))
	}
	if filter.DeploymentID != "" {
		args = append(args, filter.DeploymentID)
		clauses = append(clauses, fmt.Sprintf("deployment_id = $%d", len(args)))
	}
	if filter.After != "" {
		after, err := time.Parse(time.RFC3339, filter.After)
		if err != nil {
			return nil, fmt.Errorf("parse after timestamp: %w", err)
		}
		args = append(args, after.UTC())
		clauses = append(clauses, fmt.Sprintf("date_received > $%d", len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY date_received DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list supervisor logs: %w", err)
	}
	defer rows.Close()
	out := make([]domain.SupervisorLog, 0)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var l domain.SupervisorLog
		if err := decodeDoc(raw, &l); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
