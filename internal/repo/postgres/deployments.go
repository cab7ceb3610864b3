package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/wasmfleet-labs/wasmfleet-go/internal/domain"
)

type DeploymentStore struct {
	db DB
}

func NewDeploymentStore(db DB) *DeploymentStore {
	if db == nil {
		return nil
	}
	return &DeploymentStore{db: db}
}

func (s *DeploymentStore) Create(ctx context.Context, d domain.Deployment) (string, error) {
	if s == nil || s.db == nil {
		return "", fmt.Errorf("deployment store not initialized")
	}
	if strings.TrimSpace(d.Name) == "" {
		return "", fmt.Errorf("deployment name is required")
	}
	if d.ID == "" {
		d.ID = newID()
	}
	doc, err := encodeDoc(d)
	if err != nil {
		return "", err
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO deployments (deployment_id, name, active, doc) VALUES ($1,$2,$3,$4)`,
		d.ID,
		strings.TrimSpace(d.Name),
		d.Active,
		doc,
	)
	if err != nil {
		return "", fmt.Errorf("insert deployment: %w", err)
	}
	return d.ID, nil
}

func (s *DeploymentStore) Get(ctx context.Context, id string) (domain.Deployment, error) {
	return s.getWhere(ctx, `deployment_id = $1`, strings.TrimSpace(id))
}

func (s *DeploymentStore) GetByName(ctx context.Context, name string) (domain.Deployment, error) {
	return s.getWhere(ctx, `name = $1`, strings.TrimSpace(name))
}

func (s *DeploymentStore) getWhere(ctx context.Context, where, arg string) (domain.Deployment, error) {
	if s == nil || s.db == nil {
		return domain.Deployment{}, fmt.Errorf("deployment store not initialized")
	}
	if arg == "" {
		return domain.Deployment{}, fmt.Errorf("deployment id is required")
	}
	var raw []byte
	row := s.db.QueryRowContext(ctx, `SELECT doc FROM deployments WHERE `+where, arg)
	if err := row.Scan(&raw); err != nil {
		return domain.Deployment{}, handleNotFound(err)
	}
	var d domain.Deployment
	if err := decodeDoc(raw, &d); err != nil {
		return domain.Deployment{}, err
	}
	return d, nil
}

func (s *DeploymentStore) List(ctx context.Context) ([]domain.Deployment, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("deployment store not initialized")
	}
	rows, err := s.db.QueryContext(ctx, `SELECT doc FROM deployments ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list deployments: %w", err)
	}
	defer rows.Close()
	out := make([]domain.Deployment, 0)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var d domain.Deployment
		if err := decodeDoc(raw, &d); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *DeploymentStore) Update(ctx context.Context, d domain.Deployment) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("deployment store not initialized")
	}
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("deployment id is required")
	}
	doc, err := encodeDoc(d)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE deployments SET name = $2, active = $3, doc = $4 WHERE deployment_id = $1`,
		strings.TrimSpace(d.ID),
		strings.TrimSpace(d.Name),
		d.Active,
		doc,
	)
	if err != nil {
		return fmt.Errorf("update deployment: %w", err)
	}
	return requireAffected(res)
}

func (s *DeploymentStore) Delete(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("deployment store not initialized")
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM deployments WHERE deployment_id = $1`, strings.TrimSpace(id))
	if err != nil {
		return fmt.Errorf("delete deployment: %w", err)
	}
	return requireAffected(res)
}

func (s *DeploymentStore) DeleteAll(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("deployment store not initialized")
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM deployments`)
	if err != nil {
		return 0, fmt.Errorf("delete deployments: %w", err)
	}
	return res.RowsAffected()
}
