package deploy

import (
	"context"
	"errors"
	"log/slog"

	"github.com/wasmfleet-labs/wasmfleet-go/internal/apperr"
	"github.com/wasmfleet-labs/wasmfleet-go/internal/domain"
	"github.com/wasmfleet-labs/wasmfleet-go/internal/repo"
)

// ValidateFunc runs policy validation for a persisted deployment. A nil
// return means the deployment passed, a *PolicyError return carries the
// failure summary to annotate the deployment with.
type ValidateFunc func(ctx context.Context, deploymentID string) error

// PolicyError marks a validation verdict as opposed to a validator
// malfunction. Only verdicts annotate the deployment document.
type PolicyError struct {
	Summary string
}

func (e *PolicyError) Error() string { return e.Summary }

// Solver ties resolution, manifest building and persistence together into
// the deployment solve flow.
type Solver struct {
	resolver    *Resolver
	builder     *Builder
	deployments repo.DeploymentRepository
	validate    ValidateFunc
	log         *slog.Logger
}

func NewSolver(resolver *Resolver, builder *Builder, deployments repo.DeploymentRepository, validate ValidateFunc, log *slog.Logger) *Solver {
	if log == nil {
		log = slog.Default()
	}
	return &Solver{
		resolver:    resolver,
		builder:     builder,
		deployments: deployments,
		validate:    validate,
		log:         log,
	}
}

// Solve resolves and builds the manifest for a deployment. With resolving
// set the deployment already exists and keeps its id, otherwise a bare
// document is inserted first and the manifest written in a second step.
// A failed build leaves that bare document without a manifest.
func (s *Solver) Solve(ctx context.Context, d domain.Deployment, resolving bool) (domain.Deployment, error) {
	if len(d.Sequence) == 0 {
		return domain.Deployment{}, apperr.BadRequestf("deployment sequence is empty")
	}
	hydrated, err := s.resolver.Hydrate(ctx, d.Sequence)
	if err != nil {
		return domain.Deployment{}, err
	}
	assigned, err := s.resolver.Assign(ctx, hydrated)
	if err != nil {
		return domain.Deployment{}, err
	}

	if resolving {
		if d.ID == "" {
			return domain.Deployment{}, apperr.Internalf("re-solve requested without a deployment id")
		}
	} else {
		id, err := s.deployments.Create(ctx, domain.Deployment{Name: d.Name, Sequence: d.Sequence})
		if err != nil {
			return domain.Deployment{}, apperr.Wrap(apperr.KindDB, "insert deployment", err)
		}
		d.ID = id
	}

	solution, err := s.builder.Build(d.ID, assigned)
	if err != nil {
		return domain.Deployment{}, err
	}

	d.Sequence = solution.Sequence
	d.FullManifest = solution.FullManifest
	if err := s.deployments.Update(ctx, d); err != nil {
		return domain.Deployment{}, apperr.Wrap(apperr.KindDB, "store solved deployment", err)
	}

	if s.validate != nil {
		// Validation never blocks or rolls back the solve, its verdict
		// only annotates the stored document.
		bg := context.WithoutCancel(ctx)
		go s.runValidation(bg, d.ID)
	}
	return d, nil
}

func (s *Solver) runValidation(ctx context.Context, deploymentID string) {
	err := s.validate(ctx, deploymentID)
	if err == nil {
		return
	}
	var verdict *PolicyError
	if !errors.As(err, &verdict) {
		s.log.Error("policy validation failed to run", "deployment", deploymentID, "error", err)
		return
	}
	s.log.Warn("deployment failed policy validation", "deployment", deploymentID, "reason", verdict.Summary)
	d, err := s.deployments.Get(ctx, deploymentID)
	if err != nil {
		s.log.Error("load deployment for validation annotation", "deployment", deploymentID, "error", err)
		return
	}
	d.ValidationError = verdict.Summary
	if err := s.deployments.Update(ctx, d); err != nil {
		s.log.Error("store validation annotation", "deployment", deploymentID, "error", err)
	}
}
