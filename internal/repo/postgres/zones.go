package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/wasmfleet-labs/wasmfleet-go/internal/domain"
)

type ZoneStore struct {
	db DB
}

func NewZoneStore(db DB) *ZoneStore {
	if db == nil {
		return nil
	}
	return &ZoneStore{db: db}
}

// Upsert replaces a zone definition by zone name, or the risk level
// document by its type marker.
func (s *ZoneStore) Upsert(ctx context.Context, z domain.Zone) (string, error) {
	if s == nil || s.db == nil {
		return "", fmt.Errorf("zone store not initialized")
	}
	zone := strings.TrimSpace(z.Zone)
	docType := strings.TrimSpace(z.Type)
	if zone == "" && docType == "" {
		return "", fmt.Errorf("zone document needs a zone name or a type")
	}
	if z.ID == "" {
		z.ID = newID()
	}
	z.LastUpdated = normalizeTime(z.LastUpdated)
	doc, err := encodeDoc(z)
	if err != nil {
		return "", err
	}
	var conflict string
	if zone != "" {
		conflict = `ON CONFLICT (zone) WHERE zone IS NOT NULL
			DO UPDATE SET doc = EXCLUDED.doc, doc_type = EXCLUDED.doc_type, last_updated = EXCLUDED.last_updated`
	} else {
		conflict = `ON CONFLICT (doc_type) WHERE doc_type IS NOT NULL
			DO UPDATE SET doc = EXCLUDED.doc, last_updated = EXCLUDED.last_updated`
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO zones (zone_id, zone, doc_type, doc, last_updated) VALUES ($1,$2,$3,$4,$5) `+conflict,
		z.ID,
		nullIfEmpty(zone),
		nullIfEmpty(docType),
		doc,
		z.LastUpdated,
	)
	if err != nil {
		return "", fmt.Errorf("upsert zone: %w", err)
	}
	return z.ID, nil
}

func (s *ZoneStore) List(ctx context.Context) ([]domain.Zone, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("zone store not initialized")
	}
	rows, err := s.db.QueryContext(ctx, `SELECT doc FROM zones ORDER BY last_updated`)
	if err != nil {
		return nil, fmt.Errorf("list zones: %w", err)
	}
	defer rows.Close()
	out := make([]domain.Zone, 0)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var z domain.Zone
		if err := decodeDoc(raw, &z); err != nil {
			return nil, err
		}
		out = append(out, z)
	}
	return out, rows.Err()
}

func (s *ZoneStore) GetByZone(ctx context.Context, zone string) (domain.Zone, error) {
	if s == nil || s.db == nil {
		return domain.Zone{}, fmt.Errorf("zone store not initialized")
	}
	var raw []byte
	row := s.db.QueryRowContext(ctx, `SELECT doc FROM zones WHERE zone = $1`, strings.TrimSpace(zone))
	if err := row.Scan(&raw); err != nil {
		return domain.Zone{}, handleNotFound(err)
	}
	var z domain.Zone
	if err := decodeDoc(raw, &z); err != nil {
		return domain.Zone{}, err
	}
	return z, nil
}

func (s *ZoneStore) RiskLevels(ctx context.Context) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("zone store not initialized")
	}
	var raw []byte
	row := s.db.QueryRowContext(ctx, `SELECT doc FROM zones WHERE doc_type = $1`, domain.ZoneTypeRiskLevels)
	if err := row.Scan(&raw); err != nil {
		return nil, handleNotFound(err)
	}
	var z domain.Zone
	if err := decodeDoc(raw, &z); err != nil {
		return nil, err
	}
	return z.Levels, nil
}

func (s *ZoneStore) SetRiskLevels(ctx context.Context, levels []string) error {
	_, err := s.Upsert(ctx, domain.Zone{
		Type:        domain.ZoneTypeRiskLevels,
		Levels:      levels,
		LastUpdated: time.Now().UTC(),
	})
	return err
}

func (s *ZoneStore) DeleteAll(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("zone store not initialized")
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM zones`)
	if err != nil {
		return 0, fmt.Errorf("delete zones: %w", err)
	}
	return res.RowsAffected()
}

func nullIfEmpty(v string) sql.NullString {
	v = strings.TrimSpace(v)
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}
