package deploy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wasmfleet-labs/wasmfleet-go/internal/apperr"
	"github.com/wasmfleet-labs/wasmfleet-go/internal/domain"
	"github.com/wasmfleet-labs/wasmfleet-go/internal/repo"
)

// OrchestratorDeviceName is excluded from auto-selection, the orchestrator
// registers itself as a device but cannot run wasm modules.
const OrchestratorDeviceName = "orchestrator"

// HydratedStep replaces the refs of a submitted step with full documents.
// Device stays nil when the caller left the choice to the orchestrator.
type HydratedStep struct {
	Device *domain.Device
	Module domain.Module
	Func   string
}

// AssignedStep is a hydrated step with its device decided.
type AssignedStep struct {
	Device domain.Device
	Module domain.Module
	Func   string
}

// Resolver hydrates submitted sequences and assigns devices by capability.
type Resolver struct {
	devices repo.DeviceRepository
	modules repo.ModuleRepository
}

func NewResolver(devices repo.DeviceRepository, modules repo.ModuleRepository) *Resolver {
	return &Resolver{devices: devices, modules: modules}
}

// Hydrate resolves every step's module and, when given, device by id or
// name.
func (r *Resolver) Hydrate(ctx context.Context, sequence []domain.SequenceStep) ([]HydratedStep, error) {
	out := make([]HydratedStep, 0, len(sequence))
	for _, step := range sequence {
		var device *domain.Device
		if strings.TrimSpace(step.Device) != "" {
			d, err := r.findDevice(ctx, step.Device)
			if err != nil {
				return nil, err
			}
			device = &d
		}
		module, err := r.findModule(ctx, step.Module)
		if err != nil {
			return nil, err
		}
		out = append(out, HydratedStep{Device: device, Module: module, Func: step.Func})
	}
	return out, nil
}

// Assign decides a device for every step and verifies exports and
// capabilities. Auto-selection picks the first device, in store order,
// whose supervisor interfaces cover the module's requirements.
func (r *Resolver) Assign(ctx context.Context, hydrated []HydratedStep) ([]AssignedStep, error) {
	available, err := r.devices.List(ctx, repo.DeviceFilter{})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDB, "list devices", err)
	}
	candidates := make([]domain.Device, 0, len(available))
	for _, d := range available {
		if d.Name == OrchestratorDeviceName {
			continue
		}
		candidates = append(candidates, d)
	}

	out := make([]AssignedStep, 0, len(hydrated))
	for _, step := range hydrated {
		if _, ok := step.Module.ExportNamed(step.Func); !ok {
			return nil, apperr.BadRequestf("module %q does not export function %q", step.Module.Name, step.Func)
		}
		if step.Device != nil {
			if !step.Device.Satisfies(&step.Module) {
				return nil, apperr.BadRequestf(
					"device %q does not satisfy the requirements of module %q",
					step.Device.Name, step.Module.Name,
				)
			}
			out = append(out, AssignedStep{Device: *step.Device, Module: step.Module, Func: step.Func})
			continue
		}
		assigned := false
		for _, d := range candidates {
			if d.Satisfies(&step.Module) {
				out = append(out, AssignedStep{Device: d, Module: step.Module, Func: step.Func})
				assigned = true
				break
			}
		}
		if !assigned {
			return nil, apperr.BadRequestf(
				"no device satisfies requirements %s of module %q",
				requirementNames(step.Module.Requirements), step.Module.Name,
			)
		}
	}
	if len(out) == 0 {
		return nil, apperr.Internalf("device assignment produced an empty sequence")
	}
	return out, nil
}

func (r *Resolver) findDevice(ctx context.Context, idOrName string) (domain.Device, error) {
	var (
		d   domain.Device
		err error
	)
	if repo.IsID(idOrName) {
		d, err = r.devices.Get(ctx, idOrName)
	} else {
		d, err = r.devices.GetByName(ctx, idOrName)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Device{}, apperr.NotFoundf("device not found by %q", idOrName)
	}
	if err != nil {
		return domain.Device{}, apperr.Wrap(apperr.KindDB, fmt.Sprintf("find device %q", idOrName), err)
	}
	return d, nil
}

func (r *Resolver) findModule(ctx context.Context, idOrName string) (domain.Module, error) {
	var (
		m   domain.Module
		err error
	)
	if repo.IsID(idOrName) {
		m, err = r.modules.Get(ctx, idOrName)
	} else {
		m, err = r.modules.GetByName(ctx, idOrName)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Module{}, apperr.NotFoundf("module not found by %q", idOrName)
	}
	if err != nil {
		return domain.Module{}, apperr.Wrap(apperr.KindDB, fmt.Sprintf("find module %q", idOrName), err)
	}
	return m, nil
}

func requirementNames(reqs []domain.WasmRequirement) string {
	names := make([]string, 0, len(reqs))
	for _, r := range reqs {
		names = append(names, r.Name)
	}
	return "[" + strings.Join(names, ", ") + "]"
}
