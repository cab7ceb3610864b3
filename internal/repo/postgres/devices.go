package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/wasmfleet-labs/wasmfleet-go/internal/domain"
	"github.com/wasmfleet-labs/wasmfleet-go/internal/repo"
)

type DeviceStore struct {
	db DB
}

func NewDeviceStore(db DB) *DeviceStore {
	if db == nil {
		return nil
	}
	return &DeviceStore{db: db}
}

func (s *DeviceStore) Create(ctx context.Context, d domain.Device) (string, error) {
	if s == nil || s.db == nil {
		return "", fmt.Errorf("device store not initialized")
	}
	if strings.TrimSpace(d.Name) == "" {
		return "", fmt.Errorf("device name is required")
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
		`INSERT INTO devices (device_id, name, status, doc) VALUES ($1,$2,$3,$4)
		 ON CONFLICT (name) DO NOTHING`,
		d.ID,
		strings.TrimSpace(d.Name),
		string(d.Status),
		doc,
	)
	if err != nil {
		return "", fmt.Errorf("insert device: %w", err)
	}
	return d.ID, nil
}

func (s *DeviceStore) Get(ctx context.Context, id string) (domain.Device, error) {
	return s.getWhere(ctx, `device_id = $1`, strings.TrimSpace(id))
}

func (s *DeviceStore) GetByName(ctx context.Context, name string) (domain.Device, error) {
	return s.getWhere(ctx, `name = $1`, strings.TrimSpace(name))
}

func (s *DeviceStore) getWhere(ctx context.Context, where, arg string) (domain.Device, error) {
	if s == nil || s.db == nil {
		return domain.Device{}, fmt.Errorf("device store not initialized")
	}
	if arg == "" {
		return domain.Device{}, fmt.Errorf("device id is required")
	}
	var raw []byte
	row := s.db.QueryRowContext(ctx, `SELECT doc FROM devices WHERE `+where, arg)
	if err := row.Scan(&raw); err != nil {
		return domain.Device{}, handleNotFound(err)
	}
	var d domain.Device
	if err := decodeDoc(raw, &d); err != nil {
		return domain.Device{}, err
	}
	return d, nil
}

func (s *DeviceStore) List(ctx context.Context, filter repo.DeviceFilter) ([]domain.Device, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("device store not initialized")
	}
	query := `SELECT doc FROM devices`
	clauses := make([]string, 0, 2)
	args := make([]any, 0, 2)
	if filter.Name != "" {
		args = append(args, filter.Name)
		clauses = append(clauses, fmt.Sprintf("name = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()
	out := make([]domain.Device, 0)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var d domain.Device
		if err := decodeDoc(raw, &d); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *DeviceStore) UpdateDescription(ctx context.Context, name string, desc domain.DeviceDescription) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("device store not initialized")
	}
	d, err := s.GetByName(ctx, name)
	if err != nil {
		return err
	}
	d.Description = desc
	return s.replace(ctx, d)
}

func (s *DeviceStore) UpdateHealth(ctx context.Context, name string, health *domain.DeviceHealth, status domain.DeviceStatus, okCount, failedCount int, statusLog []domain.StatusLogEntry) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("device store not initialized")
	}
	d, err := s.GetByName(ctx, name)
	if err != nil {
		return err
	}
	d.Health = health
	d.Status = status
	d.OKChecks = okCount
	d.FailedChecks = failedCount
	d.StatusLog = statusLog
	return s.replace(ctx, d)
}

func (s *DeviceStore) replace(ctx context.Context, d domain.Device) error {
	doc, err := encodeDoc(d)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE devices SET status = $2, doc = $3 WHERE name = $1`,
		strings.TrimSpace(d.Name),
		string(d.Status),
		doc,
	)
	if err != nil {
		return fmt.Errorf("update device: %w", err)
	}
	return requireAffected(res)
}

func (s *DeviceStore) Delete(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("device store not initialized")
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM devices WHERE device_id = $1`, strings.TrimSpace(id))
	if err != nil {
		return fmt.Errorf("delete device: %w", err)
	}
	return requireAffected(res)
}

func (s *DeviceStore) DeleteAll(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("device store not initialized")
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM devices`)
	if err != nil {
		return 0, fmt.Errorf("delete devices: %w", err)
	}
	return res.RowsAffected()
}
