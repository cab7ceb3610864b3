package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/wasmfleet-labs/wasmfleet-go/internal/domain"
	"github.com/wasmfleet-labs/wasmfleet-go/internal/repo"
)

func (api *orchestratorAPI) registerLogRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /device/logs", api.handleAppendLog)
	mux.HandleFunc("GET /device/logs", api.handleListLogs)
}

// supervisorLogPayload is the JSON a supervisor posts in the logData form
// field. Timestamp stays a string until validated as RFC3339.
type supervisorLogPayload struct {
	DeviceIP     string `json:"deviceIP"`
	DeviceName   string `json:"deviceName"`
	FuncName     string `json:"funcName"`
	LogLevel     string `json:"loglevel"`
	Message      string `json:"message"`
	RequestID    string `json:"request_id"`
	DeploymentID string `json:"deployment_id"`
	ModuleName   string `json:"module_name"`
	Timestamp    string `json:"timestamp"`
}

func (api *orchestratorAPI) handleAppendLog(w http.ResponseWriter, r *http.Request) {
	raw := r.FormValue("logData")
	if raw == "" {
		api.writeError(w, http.StatusBadRequest, "Missing logData field")
		return
	}
	var payload supervisorLogPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		api.writeError(w, http.StatusBadRequest, "Invalid logData JSON")
		return
	}
	if payload.DeviceIP == "" || payload.DeviceName == "" || payload.FuncName == "" ||
		payload.LogLevel == "" || payload.Message == "" {
		api.writeError(w, http.StatusBadRequest, "Invalid logData structure")
		return
	}
	timestamp, err := time.Parse(time.RFC3339, payload.Timestamp)
	if err != nil {
		api.writeError(w, http.StatusBadRequest, "Invalid timestamp format in logData")
		return
	}

	entry := domain.SupervisorLog{
		DeviceIP:     payload.DeviceIP,
		DeviceName:   payload.DeviceName,
		FuncName:     payload.FuncName,
		LogLevel:     payload.LogLevel,
		Message:      payload.Message,
		RequestID:    payload.RequestID,
		DeploymentID: payload.DeploymentID,
		ModuleName:   payload.ModuleName,
		Timestamp:    timestamp.UTC(),
		DateReceived: nowUTC(),
	}
	if _, err := api.logs.Append(r.Context(), entry); err != nil {
		api.fail(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"message": "Log received and saved"})
}

func (api *orchestratorAPI) handleListLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := repo.LogFilter{
		DeviceName:   query.Get("device"),
		DeploymentID: query.Get("deployment"),
	}
	if after := query.Get("after"); after != "" {
		if _, err := time.Parse(time.RFC3339, after); err != nil {
			api.writeError(w, http.StatusBadRequest, "invalid 'after' timestamp: "+err.Error())
			return
		}
		filter.After = after
	}
	logs, err := api.logs.List(r.Context(), filter)
	if err != nil {
		api.fail(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, logs)
}
