package deploy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/wasmfleet-labs/wasmfleet-go/internal/apperr"
	"github.com/wasmfleet-labs/wasmfleet-go/internal/domain"
	"github.com/wasmfleet-labs/wasmfleet-go/internal/repo"
)

const deployTimeout = 20 * time.Second

// Pusher delivers solved deployment nodes to their devices.
type Pusher struct {
	devices repo.DeviceRepository
	client  *http.Client
}

func NewPusher(devices repo.DeviceRepository, client *http.Client) *Pusher {
	if client == nil {
		client = &http.Client{Timeout: deployTimeout}
	}
	return &Pusher{devices: devices, client: client}
}

// Push sends every node of the manifest to its device, one request per
// device in parallel. The first failed device fails the whole push, devices
// that already accepted their node are not rolled back.
func (p *Pusher) Push(ctx context.Context, d *domain.Deployment) (map[string]json.RawMessage, error) {
	if len(d.FullManifest) == 0 {
		return nil, apperr.BadRequestf("deployment %q has no manifest to push", d.ID)
	}

	type target struct {
		deviceID string
		device   domain.Device
		node     domain.DeploymentNode
	}
	targets := make([]target, 0, len(d.FullManifest))
	ids := make([]string, 0, len(d.FullManifest))
	for deviceID := range d.FullManifest {
		ids = append(ids, deviceID)
	}
	sort.Strings(ids)
	for _, deviceID := range ids {
		device, err := p.devices.Get(ctx, deviceID)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindNotFound, fmt.Sprintf("device %q of manifest", deviceID), err)
		}
		targets = append(targets, target{deviceID: deviceID, device: device, node: d.FullManifest[deviceID]})
	}

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		firstErr error
	)
	out := make(map[string]json.RawMessage, len(targets))
	for _, t := range targets {
		wg.Add(1)
		go func(t target) {
			defer wg.Done()
			resp, err := p.pushNode(ctx, &t.device, t.node)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			out[t.deviceID] = resp
		}(t)
	}
	wg.Wait()
	if firstErr != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "deployment push failed", firstErr)
	}
	return out, nil
}

func (p *Pusher) pushNode(ctx context.Context, device *domain.Device, node domain.DeploymentNode) (json.RawMessage, error) {
	addr, ok := device.Address()
	if !ok {
		return nil, fmt.Errorf("device %q has no address", device.Name)
	}
	payload, err := json.Marshal(node)
	if err != nil {
		return nil, fmt.Errorf("serialize node for device %q: %w", device.Name, err)
	}
	url := fmt.Sprintf("http://%s:%d/deploy", addr, device.Communication.Port)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to device %q: %w", device.Name, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response from device %q: %w", device.Name, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("HTTP %d from device %q: %s", resp.StatusCode, device.Name, body)
	}
	if !json.Valid(body) {
		quoted, _ := json.Marshal(string(body))
		return quoted, nil
	}
	return json.RawMessage(body), nil
}

// RegisterOrchestrator tells a device where to reach this orchestrator.
func (p *Pusher) RegisterOrchestrator(ctx context.Context, device *domain.Device, publicURL string) error {
	addr, ok := device.Address()
	if !ok {
		return fmt.Errorf("device %q has no address", device.Name)
	}
	payload, err := json.Marshal(map[string]string{"url": publicURL})
	if err != nil {
		return err
	}
	url := fmt.Sprintf("http://%s:%d/register", addr, device.Communication.Port)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("register request to device %q: %w", device.Name, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("HTTP %d from device %q during registration", resp.StatusCode, device.Name)
	}
	return nil
}
