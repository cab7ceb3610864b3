package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wasmfleet-labs/wasmfleet-go/internal/domain"
	"github.com/wasmfleet-labs/wasmfleet-go/internal/repo"
)

// CardStore persists the three policy card collections. Cards are never
// updated in place, validation reads the newest card per subject.
type CardStore struct {
	db DB
}

func NewCardStore(db DB) *CardStore {
	if db == nil {
		return nil
	}
	return &CardStore{db: db}
}

func (s *CardStore) CreateNodeCard(ctx context.Context, c domain.NodeCard) (string, error) {
	if s == nil || s.db == nil {
		return "", fmt.Errorf("card store not initialized")
	}
	if strings.TrimSpace(c.NodeID) == "" {
		return "", fmt.Errorf("node card nodeid is required")
	}
	if c.ID == "" {
		c.ID = newID()
	}
	c.DateReceived = normalizeTime(c.DateReceived)
	doc, err := encodeDoc(c)
	if err != nil {
		return "", err
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO node_cards (card_id, node_id, zone, doc, date_received) VALUES ($1,$2,$3,$4,$5)`,
		c.ID, c.NodeID, c.Zone, doc, c.DateReceived,
	)
	if err != nil {
		return "", fmt.Errorf("insert node card: %w", err)
	}
	return c.ID, nil
}

func (s *CardStore) ListNodeCards(ctx context.Context, filter repo.CardFilter) ([]domain.NodeCard, error) {
	rows, err := s.listDocs(ctx, `node_cards`, filter)
	if err != nil {
		return nil, fmt.Errorf("list node cards: %w", err)
	}
	out := make([]domain.NodeCard, 0, len(rows))
	for _, raw := range rows {
		var c domain.NodeCard
		if err := decodeDoc(raw, &c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *CardStore) CreateModuleCard(ctx context.Context, c domain.ModuleCard) (string, error) {
	if s == nil || s.db == nil {
		return "", fmt.Errorf("card store not initialized")
	}
	if strings.TrimSpace(c.ModuleID) == "" {
		return "", fmt.Errorf("module card moduleid is required")
	}
	if c.ID == "" {
		c.ID = newID()
	}
	c.DateReceived = normalizeTime(c.DateReceived)
	doc, err := encodeDoc(c)
	if err != nil {
		return "", err
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO module_cards (card_id, module_id, doc, date_received) VALUES ($1,$2,$3,$4)`,
		c.ID, c.ModuleID, doc, c.DateReceived,
	)
	if err != nil {
		return "", fmt.Errorf("insert module card: %w", err)
	}
	return c.ID, nil
}

func (s *CardStore) ListModuleCards(ctx context.Context, filter repo.CardFilter) ([]domain.ModuleCard, error) {
	rows, err := s.listDocs(ctx, `module_cards`, filter)
	if err != nil {
		return nil, fmt.Errorf("list module cards: %w", err)
	}
	out := make([]domain.ModuleCard, 0, len(rows))
	for _, raw := range rows {
		var c domain.ModuleCard
		if err := decodeDoc(raw, &c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *CardStore) CreateDatasourceCard(ctx context.Context, c domain.DatasourceCard) (string, error) {
	if s == nil || s.db == nil {
		return "", fmt.Errorf("card store not initialized")
	}
	if strings.TrimSpace(c.NodeID) == "" {
		return "", fmt.Errorf("datasource card nodeid is required")
	}
	if c.ID == "" {
		c.ID = newID()
	}
	c.DateReceived = normalizeTime(c.DateReceived)
	doc, err := encodeDoc(c)
	if err != nil {
		return "", err
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO datasource_cards (card_id, node_id, doc, date_received) VALUES ($1,$2,$3,$4)`,
		c.ID, c.NodeID, doc, c.DateReceived,
	)
	if err != nil {
		return "", fmt.Errorf("insert datasource card: %w", err)
	}
	return c.ID, nil
}

func (s *CardStore) ListDatasourceCards(ctx context.Context, filter repo.CardFilter) ([]domain.DatasourceCard, error) {
	rows, err := s.listDocs(ctx, `datasource_cards`, filter)
	if err != nil {
		return nil, fmt.Errorf("list datasource cards: %w", err)
	}
	out := make([]domain.DatasourceCard, 0, len(rows))
	for _, raw := range rows {
		var c domain.DatasourceCard
		if err := decodeDoc(raw, &c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *CardStore) DeleteNodeCard(ctx context.Context, nodeID string) error {
	return s.deleteWhere(ctx, `DELETE FROM node_cards WHERE node_id = $1`, nodeID)
}

func (s *CardStore) DeleteAllNodeCards(ctx context.Context) (int64, error) {
	return s.deleteAll(ctx, `DELETE FROM node_cards`)
}

func (s *CardStore) DeleteModuleCard(ctx context.Context, moduleID string) error {
	return s.deleteWhere(ctx, `DELETE FROM module_cards WHERE module_id = $1`, moduleID)
}

func (s *CardStore) DeleteAllModuleCards(ctx context.Context) (int64, error) {
	return s.deleteAll(ctx, `DELETE FROM module_cards`)
}

func (s *CardStore) DeleteDatasourceCard(ctx context.Context, nodeID string) error {
	return s.deleteWhere(ctx, `DELETE FROM datasource_cards WHERE node_id = $1`, nodeID)
}

func (s *CardStore) DeleteAllDatasourceCards(ctx context.Context) (int64, error) {
	return s.deleteAll(ctx, `DELETE FROM datasource_cards`)
}

func (s *CardStore) listDocs(ctx context.Context, table string, filter repo.CardFilter) ([][]byte, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("card store not initialized")
	}
	query := `SELECT doc FROM ` + table
	args := make([]any, 0, 1)
	if filter.After != "" {
		after, err := time.Parse(time.RFC3339, filter.After)
		if err != nil {
			return nil, fmt.Errorf("parse after timestamp: %w", err)
		}
		args = append(args, after.UTC())
		query += ` WHERE date_received > $1`
	}
	query += ` ORDER BY date_received DESC`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([][]byte, 0)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, rows.Err()
}

func (s *CardStore) deleteWhere(ctx context.Context, query, arg string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("card store not initialized")
	}
	res, err := s.db.ExecContext(ctx, query, strings.TrimSpace(arg))
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *CardStore) deleteAll(ctx context.Context, query string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("card store not initialized")
	}
	res, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
