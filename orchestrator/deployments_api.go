package main

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/wasmfleet-labs/wasmfleet-go/internal/domain"
	"github.com/wasmfleet-labs/wasmfleet-go/internal/repo"
)

func (api *orchestratorAPI) registerDeploymentRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /file/manifest", api.handleListDeployments)
	mux.HandleFunc("POST /file/manifest", api.handleCreateDeployment)
	mux.HandleFunc("DELETE /file/manifest", api.handleDeleteDeployments)
	mux.HandleFunc("GET /file/manifest/{deployment}", api.handleGetDeployment)
	mux.HandleFunc("POST /file/manifest/{deployment}", api.handleDeploy)
	mux.HandleFunc("PUT /file/manifest/{deployment}", api.handleUpdateDeployment)
	mux.HandleFunc("DELETE /file/manifest/{deployment}", api.handleDeleteDeployment)
}

type manifestRequest struct {
	Name     string                `json:"name"`
	Sequence []domain.SequenceStep `json:"sequence"`
}

// validateSequence checks the user-submitted pipeline shape. A step may
// leave the device empty to request auto-selection, module and func are
// mandatory.
func validateSequence(m manifestRequest) error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("manifest must have a name")
	}
	if len(m.Sequence) == 0 {
		return fmt.Errorf("manifest must have a sequence of operations")
	}
	for i, step := range m.Sequence {
		if strings.TrimSpace(step.Module) == "" {
			return fmt.Errorf("manifest node #%d must have a module", i)
		}
		if strings.TrimSpace(step.Func) == "" {
			return fmt.Errorf("manifest node #%d must have a function", i)
		}
	}
	return nil
}

func (api *orchestratorAPI) handleListDeployments(w http.ResponseWriter, r *http.Request) {
	deployments, err := api.deployments.List(r.Context())
	if err != nil {
		api.fail(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, deployments)
}

func (api *orchestratorAPI) handleCreateDeployment(w http.ResponseWriter, r *http.Request) {
	var req manifestRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validateSequence(req); err != nil {
		api.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	solved, err := api.solver.Solve(r.Context(), domain.Deployment{Name: req.Name, Sequence: req.Sequence}, false)
	if err != nil {
		api.logger.Error("solving manifest failed", "name", req.Name, "error", err)
		api.fail(w, r, err)
		return
	}
	// The UI expects the bare id as a JSON string.
	api.writeJSON(w, http.StatusCreated, solved.ID)
}

func (api *orchestratorAPI) handleDeleteDeployments(w http.ResponseWriter, r *http.Request) {
	n, err := api.deployments.DeleteAll(r.Context())
	if err != nil {
		api.fail(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"deletedCount": n})
}

func (api *orchestratorAPI) handleGetDeployment(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("deployment")
	if !repo.IsID(id) {
		api.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid deployment id %q", id))
		return
	}
	d, err := api.deployments.Get(r.Context(), id)
	if err != nil {
		api.fail(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, d)
}

func (api *orchestratorAPI) handleDeleteDeployment(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("deployment")
	if !repo.IsID(id) {
		api.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid deployment id %q", id))
		return
	}
	if err := api.deployments.Delete(r.Context(), id); err != nil {
		api.fail(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"deletedCount": 1})
}

// handleDeploy pushes an already solved deployment to its devices and marks
// it active. Failed pushes are not rolled back on devices that already
// accepted theirs.
func (api *orchestratorAPI) handleDeploy(w http.ResponseWriter, r *http.Request) {
	d, err := api.findDeployment(r, r.PathValue("deployment"))
	if err != nil {
		api.fail(w, r, err)
		return
	}

	responses, err := api.pusher.Push(r.Context(), &d)
	if err != nil {
		api.logger.Error("deploying to devices failed", "deployment", d.ID, "error", err)
		api.fail(w, r, err)
		return
	}

	d.Active = true
	if err := api.deployments.Update(r.Context(), d); err != nil {
		api.fail(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"deviceResponses": responses})
}

// handleUpdateDeployment re-solves an existing deployment against a new
// sequence. An active deployment is re-pushed immediately, an inactive one
// just stores the new manifest.
func (api *orchestratorAPI) handleUpdateDeployment(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("deployment")
	if !repo.IsID(id) {
		api.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid deployment id %q", id))
		return
	}
	old, err := api.deployments.Get(r.Context(), id)
	if err != nil {
		api.fail(w, r, err)
		return
	}

	var req manifestRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Name == "" {
		req.Name = old.Name
	}
	if err := validateSequence(req); err != nil {
		api.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	solved, err := api.solver.Solve(r.Context(), domain.Deployment{
		ID:       id,
		Name:     old.Name,
		Sequence: req.Sequence,
		Active:   old.Active,
	}, true)
	if err != nil {
		api.logger.Error("re-solving manifest failed", "deployment", id, "error", err)
		api.fail(w, r, err)
		return
	}

	if !old.Active {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	responses, err := api.pusher.Push(r.Context(), &solved)
	if err != nil {
		api.logger.Error("re-deploying to devices failed", "deployment", id, "error", err)
		api.fail(w, r, err)
		return
	}
	solved.Active = true
	if err := api.deployments.Update(r.Context(), solved); err != nil {
		api.fail(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"deviceResponses": responses})
}

// findDeployment resolves a path segment as an id first and a deployment
// name second.
func (api *orchestratorAPI) findDeployment(r *http.Request, idOrName string) (domain.Deployment, error) {
	if repo.IsID(idOrName) {
		return api.deployments.Get(r.Context(), idOrName)
	}
	return api.deployments.GetByName(r.Context(), idOrName)
}
