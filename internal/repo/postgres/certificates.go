package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/wasmfleet-labs/wasmfleet-go/internal/domain"
)

type CertificateStore struct {
	db DB
}

func NewCertificateStore(db DB) *CertificateStore {
	if db == nil {
		return nil
	}
	return &CertificateStore{db: db}
}

func (s *CertificateStore) Create(ctx context.Context, c domain.DeploymentCertificate) (string, error) {
	if s == nil || s.db == nil {
		return "", fmt.Errorf("certificate store not initialized")
	}
	if strings.TrimSpace(c.DeploymentID) == "" {
		return "", fmt.Errorf("certificate deployment id is required")
	}
	if c.ID == "" {
		c.ID = newID()
	}
	c.Date = normalizeTime(c.Date)
	doc, err := encodeDoc(c)
	if err != nil {
		return "", err
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO deployment_certificates (certificate_id, deployment_id, valid, doc, issued_at)
		 VALUES ($1,$2,$3,$4,$5)`,
		c.ID, c.DeploymentID, c.Valid, doc, c.Date,
	)
	if err != nil {
		return "", fmt.Errorf("insert certificate: %w", err)
	}
	return c.ID, nil
}

func (s *CertificateStore) List(ctx context.Context) ([]domain.DeploymentCertificate, error) {
	return s.listWhere(ctx, ``, nil)
}

func (s *CertificateStore) ListByDeployment(ctx context.Context, deploymentID string) ([]domain.DeploymentCertificate, error) {
	return s.listWhere(ctx, ` WHERE deployment_id = $1`, []any{strings.TrimSpace(deploymentID)})
}

func (s *CertificateStore) listWhere(ctx context.Context, where string, args []any) ([]domain.DeploymentCertificate, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("certificate store not initialized")
	}
	rows, err := s.db.QueryContext(ctx, `SELECT doc FROM deployment_certificates`+where+` ORDER BY issued_at DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}
	defer rows.Close()
	out := make([]domain.DeploymentCertificate, 0)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var c domain.DeploymentCertificate
		if err := decodeDoc(raw, &c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
