// Package policy validates solved deployments against zone and risk-level
// constraints and records the verdict as an audit certificate.
package policy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wasmfleet-labs/wasmfleet-go/internal/deploy"
	"github.com/wasmfleet-labs/wasmfleet-go/internal/domain"
	"github.com/wasmfleet-labs/wasmfleet-go/internal/repo"
)

const riskNone = "none"

// Validator checks every step of a deployment's solved sequence against
// the zone its device belongs to. A certificate is stored for every run,
// pass or fail.
type Validator struct {
	deployments  repo.DeploymentRepository
	cards        repo.CardRepository
	zones        repo.ZoneRepository
	certificates repo.CertificateRepository
	log          *slog.Logger
}

func NewValidator(deployments repo.DeploymentRepository, cards repo.CardRepository, zones repo.ZoneRepository, certificates repo.CertificateRepository, log *slog.Logger) *Validator {
	if log == nil {
		log = slog.Default()
	}
	return &Validator{
		deployments:  deployments,
		cards:        cards,
		zones:        zones,
		certificates: certificates,
		log:          log,
	}
}

// Validate runs the policy check for one persisted deployment. A
// *deploy.PolicyError return is a verdict, any other error is a validator
// malfunction and records no verdict.
func (v *Validator) Validate(ctx context.Context, deploymentID string) error {
	d, err := v.deployments.Get(ctx, deploymentID)
	if err != nil {
		return fmt.Errorf("load deployment %q: %w", deploymentID, err)
	}

	zoneAllowed, err := v.loadZones(ctx)
	if err != nil {
		return err
	}
	nodeCards, err := v.cards.ListNodeCards(ctx, repo.CardFilter{})
	if err != nil {
		return fmt.Errorf("list node cards: %w", err)
	}
	moduleCards, err := v.cards.ListModuleCards(ctx, repo.CardFilter{})
	if err != nil {
		return fmt.Errorf("list module cards: %w", err)
	}
	datasourceCards, err := v.cards.ListDatasourceCards(ctx, repo.CardFilter{})
	if err != nil {
		return fmt.Errorf("list datasource cards: %w", err)
	}

	outputRisk := riskNone
	logs := make([]domain.ValidationLog, 0, len(d.Sequence))

	for _, step := range d.Sequence {
		log := domain.ValidationLog{
			Device:     step.Device,
			Module:     step.Module,
			Func:       step.Func,
			NodeZone:   riskNone,
			ModuleRisk: riskNone,
			InputRisk:  riskNone,
			OutputRisk: riskNone,
			Valid:      true,
			Reasons:    []string{},
		}
		if step.Func == "" {
			return fmt.Errorf("device, module, or function missing in the step")
		}

		nodeCard, ok := newestNodeCard(nodeCards, step.Device)
		if !ok {
			log.Valid = false
			log.Reasons = append(log.Reasons, fmt.Sprintf("Node card not found for device %s", step.Device))
			logs = append(logs, log)
			continue
		}
		log.NodeZone = nodeCard.Zone

		moduleCard, ok := newestModuleCard(moduleCards, step.Module)
		if !ok {
			log.Valid = false
			log.Reasons = append(log.Reasons, fmt.Sprintf("Module card not found for module %s", step.Module))
			logs = append(logs, log)
			continue
		}
		if moduleCard.RiskLevel == "" {
			return fmt.Errorf("module card for %s is missing its risk level", step.Module)
		}
		log.ModuleRisk = moduleCard.RiskLevel

		allowed := zoneAllowed[nodeCard.Zone]
		if !contains(allowed, moduleCard.RiskLevel) {
			log.Valid = false
			log.Reasons = append(log.Reasons, fmt.Sprintf(
				"Module risk level '%s' not allowed in zone '%s'", moduleCard.RiskLevel, nodeCard.Zone))
		} else {
			log.Reasons = append(log.Reasons, fmt.Sprintf(
				"Module risk level '%s' allowed in zone '%s'", moduleCard.RiskLevel, nodeCard.Zone))
		}

		if moduleCard.InputType == "" {
			return fmt.Errorf("module card for %s is missing its input type", step.Module)
		}
		var datasourceRisk string
		if moduleCard.InputType == "temp" {
			// Intermediate data inherits the previous step's output risk.
			log.InputRisk = outputRisk
			log.Reasons = append(log.Reasons, fmt.Sprintf(
				"Input type is temporary, inheriting risk level '%s'", log.InputRisk))
		} else {
			ds, ok := newestDatasourceCard(datasourceCards, moduleCard.InputType, step.Device)
			if ok {
				log.InputRisk = ds.RiskLevel
				datasourceRisk = ds.RiskLevel
				log.Reasons = append(log.Reasons, fmt.Sprintf(
					"Data source risk level '%s' found for input type '%s'", log.InputRisk, moduleCard.InputType))
			} else {
				log.Valid = false
				log.Reasons = append(log.Reasons, fmt.Sprintf(
					"Data source card not found for input type '%s' on device %s", moduleCard.InputType, step.Device))
			}
		}

		if !contains(allowed, log.InputRisk) {
			log.Valid = false
			log.Reasons = append(log.Reasons, fmt.Sprintf(
				"Input risk level '%s' not allowed in zone '%s'", log.InputRisk, nodeCard.Zone))
		} else {
			log.Reasons = append(log.Reasons, fmt.Sprintf(
				"Input risk level '%s' allowed in zone '%s'", log.InputRisk, nodeCard.Zone))
		}

		if moduleCard.OutputRisk == "inherit" {
			if datasourceRisk != "" {
				outputRisk = datasourceRisk
			}
			log.Reasons = append(log.Reasons, fmt.Sprintf(
				"Module output risk level inherited as '%s'", outputRisk))
		} else {
			outputRisk = moduleCard.OutputRisk
			log.Reasons = append(log.Reasons, fmt.Sprintf(
				"Module output risk level set to '%s'", outputRisk))
		}
		log.OutputRisk = outputRisk

		if !contains(allowed, outputRisk) {
			log.Valid = false
			log.Reasons = append(log.Reasons, fmt.Sprintf(
				"Output risk level '%s' not allowed in zone '%s'", outputRisk, nodeCard.Zone))
		} else {
			log.Reasons = append(log.Reasons, fmt.Sprintf(
				"Output risk level '%s' allowed in zone '%s'", outputRisk, nodeCard.Zone))
		}

		if log.Valid {
			log.Reasons = append(log.Reasons, "Step validated successfully.")
		}
		logs = append(logs, log)
	}

	allValid := true
	for _, l := range logs {
		if !l.Valid {
			allValid = false
			break
		}
	}

	cert := domain.DeploymentCertificate{
		Date:           time.Now().UTC(),
		DeploymentID:   deploymentID,
		Valid:          allValid,
		ValidationLogs: logs,
	}
	if _, err := v.certificates.Create(ctx, cert); err != nil {
		return fmt.Errorf("insert certificate: %w", err)
	}
	v.log.Info("deployment validated", "deployment", deploymentID, "valid", allValid, "steps", len(logs))

	if !allValid {
		return &deploy.PolicyError{Summary: "Deployment validation failed."}
	}
	return nil
}

func (v *Validator) loadZones(ctx context.Context) (map[string][]string, error) {
	zones, err := v.zones.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list zones: %w", err)
	}
	out := make(map[string][]string, len(zones))
	for _, z := range zones {
		if z.Zone != "" {
			out[z.Zone] = z.AllowedRiskLevels
		}
	}
	return out, nil
}

// Card lists arrive newest first, the first match is the card in force.

func newestNodeCard(cards []domain.NodeCard, nodeID string) (domain.NodeCard, bool) {
	for _, c := range cards {
		if c.NodeID == nodeID {
			return c, true
		}
	}
	return domain.NodeCard{}, false
}

func newestModuleCard(cards []domain.ModuleCard, moduleID string) (domain.ModuleCard, bool) {
	for _, c := range cards {
		if c.ModuleID == moduleID {
			return c, true
		}
	}
	return domain.ModuleCard{}, false
}

func newestDatasourceCard(cards []domain.DatasourceCard, inputType, nodeID string) (domain.DatasourceCard, bool) {
	for _, c := range cards {
		if c.Type == inputType && c.NodeID == nodeID {
			return c, true
		}
	}
	return domain.DatasourceCard{}, false
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
