package policy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wasmfleet-labs/wasmfleet-go/internal/deploy"
	"github.com/wasmfleet-labs/wasmfleet-go/internal/domain"
	"github.com/wasmfleet-labs/wasmfleet-go/internal/repo"
)

type fakeDeployments struct {
	deployments map[string]domain.Deployment
}

func (f *fakeDeployments) Create(context.Context, domain.Deployment) (string, error) {
	return "", nil
}

func (f *fakeDeployments) Get(_ context.Context, id string) (domain.Deployment, error) {
	d, ok := f.deployments[id]
	if !ok {
		return domain.Deployment{}, repo.ErrNotFound
	}
	return d, nil
}

func (f *fakeDeployments) GetByName(context.Context, string) (domain.Deployment, error) {
	return domain.Deployment{}, repo.ErrNotFound
}

func (f *fakeDeployments) List(context.Context) ([]domain.Deployment, error) { return nil, nil }
func (f *fakeDeployments) Update(context.Context, domain.Deployment) error   { return nil }
func (f *fakeDeployments) Delete(context.Context, string) error              { return nil }
func (f *fakeDeployments) DeleteAll(context.Context) (int64, error)          { return 0, nil }

type fakeCards struct {
	nodes       []domain.NodeCard
	modules     []domain.ModuleCard
	datasources []domain.DatasourceCard
}

func (f *fakeCards) CreateNodeCard(context.Context, domain.NodeCard) (string, error) {
	return "", nil
}
func (f *fakeCards) ListNodeCards(context.Context, repo.CardFilter) ([]domain.NodeCard, error) {
	return f.nodes, nil
}
func (f *fakeCards) DeleteNodeCard(context.Context, string) error      { return nil }
func (f *fakeCards) DeleteAllNodeCards(context.Context) (int64, error) { return 0, nil }
func (f *fakeCards) CreateModuleCard(context.Context, domain.ModuleCard) (string, error) {
	return "", nil
}
func (f *fakeCards) ListModuleCards(context.Context, repo.CardFilter) ([]domain.ModuleCard, error) {
	return f.modules, nil
}
func (f *fakeCards) DeleteModuleCard(context.Context, string) error      { return nil }
func (f *fakeCards) DeleteAllModuleCards(context.Context) (int64, error) { return 0, nil }
func (f *fakeCards) CreateDatasourceCard(context.Context, domain.DatasourceCard) (string, error) {
	return "", nil
}
func (f *fakeCards) ListDatasourceCards(context.Context, repo.CardFilter) ([]domain.DatasourceCard, error) {
	return f.datasources, nil
}
func (f *fakeCards) DeleteDatasourceCard(context.Context, string) error      { return nil }
func (f *fakeCards) DeleteAllDatasourceCards(context.Context) (int64, error) { return 0, nil }

type fakeZones struct {
	zones []domain.Zone
}

func (f *fakeZones) Upsert(context.Context, domain.Zone) (string, error) { return "", nil }
func (f *fakeZones) List(context.Context) ([]domain.Zone, error)         { return f.zones, nil }
func (f *fakeZones) GetByZone(context.Context, string) (domain.Zone, error) {
	return domain.Zone{}, repo.ErrNotFound
}
func (f *fakeZones) RiskLevels(context.Context) ([]string, error) { return nil, nil }
func (f *fakeZones) SetRiskLevels(context.Context, []string) error {
	return nil
}
func (f *fakeZones) DeleteAll(context.Context) (int64, error) { return 0, nil }

type fakeCertificates struct {
	created []domain.DeploymentCertificate
}

func (f *fakeCertificates) Create(_ context.Context, c domain.DeploymentCertificate) (string, error) {
	f.created = append(f.created, c)
	return "cert-1", nil
}

func (f *fakeCertificates) List(context.Context) ([]domain.DeploymentCertificate, error) {
	return f.created, nil
}

func (f *fakeCertificates) ListByDeployment(context.Context, string) ([]domain.DeploymentCertificate, error) {
	return nil, nil
}

func pipelineFixture() (*fakeDeployments, *fakeCards, *fakeZones) {
	deployments := &fakeDeployments{deployments: map[string]domain.Deployment{
		"dep-1": {
			ID:   "dep-1",
			Name: "pipeline",
			Sequence: []domain.SequenceStep{
				{Device: "dev-a", Module: "mod-cam", Func: "take_image"},
				{Device: "dev-b", Module: "mod-ml", Func: "infer"},
			},
		},
	}}
	now := time.Now().UTC()
	cards := &fakeCards{
		nodes: []domain.NodeCard{
			{NodeID: "dev-a", Zone: "edge", DateReceived: now},
			{NodeID: "dev-b", Zone: "edge", DateReceived: now},
		},
		modules: []domain.ModuleCard{
			{ModuleID: "mod-cam", RiskLevel: "low", InputType: "camera", OutputRisk: "inherit", DateReceived: now},
			{ModuleID: "mod-ml", RiskLevel: "low", InputType: "temp", OutputRisk: "low", DateReceived: now},
		},
		datasources: []domain.DatasourceCard{
			{NodeID: "dev-a", Type: "camera", RiskLevel: "high", DateReceived: now},
		},
	}
	zones := &fakeZones{zones: []domain.Zone{
		{Zone: "edge", AllowedRiskLevels: []string{"none", "low", "high"}},
	}}
	return deployments, cards, zones
}

func TestValidatePassesAndInsertsOneCertificate(t *testing.T) {
	deployments, cards, zones := pipelineFixture()
	certs := &fakeCertificates{}
	v := NewValidator(deployments, cards, zones, certs, nil)

	if err := v.Validate(context.Background(), "dep-1"); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(certs.created) != 1 {
		t.Fatalf("expected exactly one certificate, got %d", len(certs.created))
	}
	cert := certs.created[0]
	if !cert.Valid {
		t.Fatalf("expected valid certificate: %+v", cert.ValidationLogs)
	}
	if cert.DeploymentID != "dep-1" {
		t.Fatalf("certificate references wrong deployment %q", cert.DeploymentID)
	}
	if len(cert.ValidationLogs) != 2 {
		t.Fatalf("expected one log per step, got %d", len(cert.ValidationLogs))
	}
}

func TestInheritedRiskPropagatesThroughTempInput(t *testing.T) {
	deployments, cards, zones := pipelineFixture()
	certs := &fakeCertificates{}
	v := NewValidator(deployments, cards, zones, certs, nil)

	if err := v.Validate(context.Background(), "dep-1"); err != nil {
		t.Fatalf("validate: %v", err)
	}
	logs := certs.created[0].ValidationLogs
	// The camera module inherits its datasource risk "high" and the
	// downstream temp input must carry it forward.
	if logs[0].OutputRisk != "high" {
		t.Fatalf("step 1 output risk = %q, want high", logs[0].OutputRisk)
	}
	if logs[1].InputRisk != "high" {
		t.Fatalf("step 2 input risk = %q, want high", logs[1].InputRisk)
	}
}

func TestMissingNodeCardContinuesToNextStep(t *testing.T) {
	deployments, cards, zones := pipelineFixture()
	cards.nodes = cards.nodes[1:] // drop dev-a's card
	certs := &fakeCertificates{}
	v := NewValidator(deployments, cards, zones, certs, nil)

	err := v.Validate(context.Background(), "dep-1")
	var verdict *deploy.PolicyError
	if !errors.As(err, &verdict) {
		t.Fatalf("expected policy verdict, got %v", err)
	}
	if len(certs.created) != 1 {
		t.Fatalf("failed validation must still insert a certificate, got %d", len(certs.created))
	}
	logs := certs.created[0].ValidationLogs
	if len(logs) != 2 {
		t.Fatalf("validation should continue past the failed step, got %d logs", len(logs))
	}
	if logs[0].Valid {
		t.Fatal("step without node card should be invalid")
	}
	if certs.created[0].Valid {
		t.Fatal("certificate validity is the AND over all steps")
	}
}

func TestDisallowedModuleRiskFailsStep(t *testing.T) {
	deployments, cards, zones := pipelineFixture()
	zones.zones = []domain.Zone{{Zone: "edge", AllowedRiskLevels: []string{"none", "low"}}}
	certs := &fakeCertificates{}
	v := NewValidator(deployments, cards, zones, certs, nil)

	err := v.Validate(context.Background(), "dep-1")
	var verdict *deploy.PolicyError
	if !errors.As(err, &verdict) {
		t.Fatalf("expected policy verdict, got %v", err)
	}
	logs := certs.created[0].ValidationLogs
	// Input risk "high" is no longer allowed in the zone.
	if logs[0].Valid {
		t.Fatalf("step with disallowed input risk should fail: %+v", logs[0])
	}
}

func TestAuditTrailRecordsPositiveReasons(t *testing.T) {
	deployments, cards, zones := pipelineFixture()
	certs := &fakeCertificates{}
	v := NewValidator(deployments, cards, zones, certs, nil)

	if err := v.Validate(context.Background(), "dep-1"); err != nil {
		t.Fatalf("validate: %v", err)
	}
	reasons := certs.created[0].ValidationLogs[0].Reasons
	if len(reasons) < 4 {
		t.Fatalf("expected positive confirmations in the audit trail, got %v", reasons)
	}
}

func TestValidateUnknownDeploymentIsMalfunction(t *testing.T) {
	v := NewValidator(&fakeDeployments{deployments: map[string]domain.Deployment{}}, &fakeCards{}, &fakeZones{}, &fakeCertificates{}, nil)
	err := v.Validate(context.Background(), "ghost")
	var verdict *deploy.PolicyError
	if err == nil || errors.As(err, &verdict) {
		t.Fatalf("missing deployment is a malfunction, not a verdict: %v", err)
	}
}
