package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/wasmfleet-labs/wasmfleet-go/internal/apperr"
	"github.com/wasmfleet-labs/wasmfleet-go/internal/deploy"
	"github.com/wasmfleet-labs/wasmfleet-go/internal/domain"
	"github.com/wasmfleet-labs/wasmfleet-go/internal/execution"
	"github.com/wasmfleet-labs/wasmfleet-go/internal/platform/objectstore"
	"github.com/wasmfleet-labs/wasmfleet-go/internal/repo"
)

type orchestratorAPI struct {
	logger *slog.Logger

	deployments  repo.DeploymentRepository
	devices      repo.DeviceRepository
	modules      repo.ModuleRepository
	cards        repo.CardRepository
	zones        repo.ZoneRepository
	certificates repo.CertificateRepository
	logs         repo.LogRepository

	solver *deploy.Solver
	pusher *deploy.Pusher
	runner *execution.Runner

	store          objectstore.Store
	moduleBucket   string
	publicURL      string
	uploadMaxBytes int64

	// probe enriches a freshly registered device, nil skips probing.
	probe func(ctx context.Context, device *domain.Device)
}

func (api *orchestratorAPI) register(mux *http.ServeMux) {
	api.registerDeploymentRoutes(mux)
	api.registerDeviceRoutes(mux)
	api.registerModuleRoutes(mux)
	api.registerExecutionRoutes(mux)
	api.registerCardRoutes(mux)
	api.registerZoneRoutes(mux)
	api.registerLogRoutes(mux)
}

func (api *orchestratorAPI) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(body)
}

func (api *orchestratorAPI) writeError(w http.ResponseWriter, status int, message string) {
	api.writeJSON(w, status, map[string]any{"message": message})
}

// fail maps an error onto a status via its kind, logging server faults.
func (api *orchestratorAPI) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	if errors.Is(err, repo.ErrNotFound) {
		status = http.StatusNotFound
	}
	if status >= 500 {
		api.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	api.writeError(w, status, err.Error())
}

func decodeJSON(r *http.Request, dst any) error {
	defer func() {
		_, _ = io.Copy(io.Discard, r.Body)
	}()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 10<<20))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

// timestamp formats like the devices and UI expect.
func nowUTC() time.Time { return time.Now().UTC() }
