package repo

import (
	"context"
	"errors"

	"github.com/wasmfleet-labs/wasmfleet-go/internal/domain"
)

// ErrNotFound is returned when a lookup matches no stored document.
var ErrNotFound = errors.New("not found")

type DeviceFilter struct {
	Name   string
	Status domain.DeviceStatus
	Limit  int
}

type ModuleFilter struct {
	Name  string
	Limit int
}

type LogFilter struct {
	DeviceName   string
	DeploymentID string
	After        string
	Limit        int
}

// CardFilter narrows card listings. After is an RFC3339 timestamp, only
// cards received strictly later are returned.
type CardFilter struct {
	After string
}

// DeploymentRepository manages deployment pipeline documents.
type DeploymentRepository interface {
	Create(ctx context.Context, d domain.Deployment) (string, error)
	Get(ctx context.Context, id string) (domain.Deployment, error)
	GetByName(ctx context.Context, name string) (domain.Deployment, error)
	List(ctx context.Context) ([]domain.Deployment, error)
	Update(ctx context.Context, d domain.Deployment) error
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) (int64, error)
}

// DeviceRepository manages registered supervisor devices.
type DeviceRepository interface {
	Create(ctx context.Context, d domain.Device) (string, error)
	Get(ctx context.Context, id string) (domain.Device, error)
	GetByName(ctx context.Context, name string) (domain.Device, error)
	List(ctx context.Context, filter DeviceFilter) ([]domain.Device, error)
	UpdateDescription(ctx context.Context, name string, desc domain.DeviceDescription) error
	UpdateHealth(ctx context.Context, name string, health *domain.DeviceHealth, status domain.DeviceStatus, okCount, failedCount int, statusLog []domain.StatusLogEntry) error
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) (int64, error)
}

// ModuleRepository manages wasm modules and their extracted interfaces.
type ModuleRepository interface {
	Create(ctx context.Context, m domain.Module) (string, error)
	Get(ctx context.Context, id string) (domain.Module, error)
	GetByName(ctx context.Context, name string) (domain.Module, error)
	List(ctx context.Context, filter ModuleFilter) ([]domain.Module, error)
	Update(ctx context.Context, m domain.Module) error
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) (int64, error)
}

// CardRepository manages the three policy card collections. Cards are
// append-only, the newest card per subject wins during validation.
type CardRepository interface {
	CreateNodeCard(ctx context.Context, c domain.NodeCard) (string, error)
	ListNodeCards(ctx context.Context, filter CardFilter) ([]domain.NodeCard, error)
	DeleteNodeCard(ctx context.Context, nodeID string) error
	DeleteAllNodeCards(ctx context.Context) (int64, error)
	CreateModuleCard(ctx context.Context, c domain.ModuleCard) (string, error)
	ListModuleCards(ctx context.Context, filter CardFilter) ([]domain.ModuleCard, error)
	DeleteModuleCard(ctx context.Context, moduleID string) error
	DeleteAllModuleCards(ctx context.Context) (int64, error)
	CreateDatasourceCard(ctx context.Context, c domain.DatasourceCard) (string, error)
	ListDatasourceCards(ctx context.Context, filter CardFilter) ([]domain.DatasourceCard, error)
	DeleteDatasourceCard(ctx context.Context, nodeID string) error
	DeleteAllDatasourceCards(ctx context.Context) (int64, error)
}

// ZoneRepository manages zone definitions and the risk level list.
type ZoneRepository interface {
	Upsert(ctx context.Context, z domain.Zone) (string, error)
	List(ctx context.Context) ([]domain.Zone, error)
	GetByZone(ctx context.Context, zone string) (domain.Zone, error)
	RiskLevels(ctx context.Context) ([]string, error)
	SetRiskLevels(ctx context.Context, levels []string) error
	DeleteAll(ctx context.Context) (int64, error)
}

// CertificateRepository stores policy validation outcomes.
type CertificateRepository interface {
	Create(ctx context.Context, c domain.DeploymentCertificate) (string, error)
	List(ctx context.Context) ([]domain.DeploymentCertificate, error)
	ListByDeployment(ctx context.Context, deploymentID string) ([]domain.DeploymentCertificate, error)
}

// LogRepository stores supervisor log lines.
type LogRepository interface {
	Append(ctx context.Context, l domain.SupervisorLog) (string, error)
	List(ctx context.Context, filter LogFilter) ([]domain.SupervisorLog, error)
}
