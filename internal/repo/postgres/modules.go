package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/wasmfleet-labs/wasmfleet-go/internal/domain"
	"github.com/wasmfleet-labs/wasmfleet-go/internal/repo"
)

type ModuleStore struct {
	db DB
}

func NewModuleStore(db DB) *ModuleStore {
	if db == nil {
		return nil
	}
	return &ModuleStore{db: db}
}

func (s *ModuleStore) Create(ctx context.Context, m domain.Module) (string, error) {
	if s == nil || s.db == nil {
		return "", fmt.Errorf("module store not initialized")
	}
	if strings.TrimSpace(m.Name) == "" {
		return "", fmt.Errorf("module name is required")
	}
	if m.ID == "" {
		m.ID = newID()
	}
	m.CreatedAt = normalizeTime(m.CreatedAt)
	doc, err := encodeDoc(m)
	if err != nil {
		return "", err
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO modules (module_id, name, doc, created_at) VALUES ($1,$2,$3,$4)`,
		m.ID,
		strings.TrimSpace(m.Name),
		doc,
		m.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("insert module: %w", err)
	}
	return m.ID, nil
}

func (s *ModuleStore) Get(ctx context.Context, id string) (domain.Module, error) {
	return s.getWhere(ctx, `module_id = $1`, strings.TrimSpace(id))
}

func (s *ModuleStore) GetByName(ctx context.Context, name string) (domain.Module, error) {
	return s.getWhere(ctx, `name = $1`, strings.TrimSpace(name))
}

func (s *ModuleStore) getWhere(ctx context.Context, where, arg string) (domain.Module, error) {
	if s == nil || s.db == nil {
		return domain.Module{}, fmt.Errorf("module store not initialized")
	}
	if arg == "" {
		return domain.Module{}, fmt.Errorf("module id is required")
	}
	var raw []byte
	row := s.db.QueryRowContext(ctx, `SELECT doc FROM modules WHERE `+where, arg)
	if err := row.Scan(&raw); err != nil {
		return domain.Module{}, handleNotFound(err)
	}
	var m domain.Module
	if err := decodeDoc(raw, &m); err != nil {
		return domain.Module{}, err
	}
	return m, nil
}

func (s *ModuleStore) List(ctx context.Context, filter repo.ModuleFilter) ([]domain.Module, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("module store not initialized")
	}
	query := `SELECT doc FROM modules`
	args := make([]any, 0, 2)
	if filter.Name != "" {
		args = append(args, filter.Name)
		query += fmt.Sprintf(" WHERE name = $%d", len(args))
	}
	query += " ORDER BY created_at"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list modules: %w", err)
	}
	defer rows.Close()
	out := make([]domain.Module, 0)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var m domain.Module
		if err := decodeDoc(raw, &m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *ModuleStore) Update(ctx context.Context, m domain.Module) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("module store not initialized")
	}
	if strings.TrimSpace(m.ID) == "" {
		return fmt.Errorf("module id is required")
	}
	doc, err := encodeDoc(m)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE modules SET name = $2, doc = $3 WHERE module_id = $1`,
		strings.TrimSpace(m.ID),
		strings.TrimSpace(m.Name),
		doc,
	)
	if err != nil {
		return fmt.Errorf("update module: %w", err)
	}
	return requireAffected(res)
}

func (s *ModuleStore) Delete(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("module store not initialized")
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM modules WHERE module_id = $1`, strings.TrimSpace(id))
	if err != nil {
		return fmt.Errorf("delete module: %w", err)
	}
	return requireAffected(res)
}

func (s *ModuleStore) DeleteAll(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("module store not initialized")
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM modules`)
	if err != nil {
		return 0, fmt.Errorf("delete modules: %w", err)
	}
	return res.RowsAffected()
}
