package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/wasmfleet-labs/wasmfleet-go/internal/domain"
	"github.com/wasmfleet-labs/wasmfleet-go/internal/repo"
)

const deviceProbeTimeout = 5 * time.Second

func (api *orchestratorAPI) registerDeviceRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /file/device", api.handleListDevices)
	mux.HandleFunc("DELETE /file/device", api.handleDeleteDevices)
	mux.HandleFunc("GET /file/device/{device}", api.handleGetDevice)
	mux.HandleFunc("DELETE /file/device/{device}", api.handleDeleteDevice)
	mux.HandleFunc("POST /file/device/discovery/reset", api.handleResetDevices)
	mux.HandleFunc("POST /file/device/discovery/register", api.handleRegisterDevice)
}

func (api *orchestratorAPI) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := api.devices.List(r.Context(), repo.DeviceFilter{})
	if err != nil {
		api.fail(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, devices)
}

func (api *orchestratorAPI) handleDeleteDevices(w http.ResponseWriter, r *http.Request) {
	n, err := api.devices.DeleteAll(r.Context())
	if err != nil {
		api.fail(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"deleted_count": n})
}

func (api *orchestratorAPI) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	device, err := api.devices.GetByName(r.Context(), r.PathValue("device"))
	if err != nil {
		api.fail(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, device)
}

func (api *orchestratorAPI) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("device")
	device, err := api.devices.GetByName(r.Context(), name)
	if err != nil {
		api.fail(w, r, err)
		return
	}
	if err := api.devices.Delete(r.Context(), device.ID); err != nil {
		api.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleResetDevices clears the device registry so devices re-register from
// a clean slate.
func (api *orchestratorAPI) handleResetDevices(w http.ResponseWriter, r *http.Request) {
	if _, err := api.devices.DeleteAll(r.Context()); err != nil {
		api.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type deviceRegistration struct {
	Name      string   `json:"name"`
	Host      string   `json:"host"`
	Addresses []string `json:"addresses"`
	Port      int      `json:"port"`
}

// handleRegisterDevice adds a device to the registry on its own request.
// The registration is best-effort enriched with the device's description
// and an initial health check, and the device is told where to reach the
// orchestrator.
func (api *orchestratorAPI) handleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	var req deviceRegistration
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = strings.TrimSpace(req.Host)
	}
	if name == "" {
		name = "unknown-device"
	}
	addresses := req.Addresses
	if len(addresses) == 0 && strings.TrimSpace(req.Host) != "" {
		addresses = []string{strings.TrimSpace(req.Host)}
	}
	if len(addresses) == 0 {
		addresses = []string{"127.0.0.1"}
	}
	port := req.Port
	if port == 0 {
		port = 5000
	}

	device := domain.Device{
		Name:          name,
		Communication: domain.DeviceCommunication{Addresses: addresses, Port: port},
		Status:        domain.DeviceActive,
		StatusLog:     []domain.StatusLogEntry{{Status: domain.DeviceActive, Time: nowUTC()}},
	}
	if _, err := api.devices.Create(r.Context(), device); err != nil {
		api.logger.Error("manual device registration failed", "device", name, "error", err)
		api.fail(w, r, err)
		return
	}
	api.logger.Info("manually registered device", "device", name)

	if api.probe != nil {
		api.probe(r.Context(), &device)
	}

	w.WriteHeader(http.StatusNoContent)
}

// probeDevice fetches the device description and an initial health report,
// and hands the device the orchestrator's public URL. All three are
// best-effort, a freshly registered device that is still booting just stays
// unprobed until it talks to us again.
func (api *orchestratorAPI) probeDevice(ctx context.Context, device *domain.Device) {
	var desc domain.DeviceDescription
	if err := api.fetchDeviceJSON(ctx, device, "/.well-known/wasmiot-device-description", &desc); err != nil {
		api.logger.Warn("device description fetch failed", "device", device.Name, "error", err)
	} else if err := api.devices.UpdateDescription(ctx, device.Name, desc); err != nil {
		api.logger.Warn("storing device description failed", "device", device.Name, "error", err)
	}

	var report map[string]any
	if err := api.fetchDeviceJSON(ctx, device, "/health", &report); err != nil {
		api.logger.Warn("initial health check failed", "device", device.Name, "error", err)
	} else {
		health := &domain.DeviceHealth{Report: report, TimeOfTest: nowUTC()}
		statusLog := append(device.StatusLog, domain.StatusLogEntry{Status: domain.DeviceActive, Time: nowUTC()})
		if err := api.devices.UpdateHealth(ctx, device.Name, health, domain.DeviceActive, 1, 0, statusLog); err != nil {
			api.logger.Warn("storing device health failed", "device", device.Name, "error", err)
		}
	}

	if api.publicURL != "" {
		if err := api.pusher.RegisterOrchestrator(ctx, device, api.publicURL); err != nil {
			api.logger.Warn("orchestrator registration on device failed", "device", device.Name, "error", err)
		}
	}
}

func (api *orchestratorAPI) fetchDeviceJSON(ctx context.Context, device *domain.Device, path string, dst any) error {
	addr, ok := device.Address()
	if !ok {
		return fmt.Errorf("device %q has no address", device.Name)
	}
	ctx, cancel := context.WithTimeout(ctx, deviceProbeTimeout)
	defer cancel()
	url := fmt.Sprintf("http://%s:%d%s", addr, device.Communication.Port, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("HTTP %d from %s", resp.StatusCode, url)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}
