package domain

import (
	"encoding/json"
	"testing"
)

func TestDeploymentNodeRoundTrip(t *testing.T) {
	node := DeploymentNode{
		DeploymentID: "6a0c5a3e",
		Modules: []DeviceModule{{
			ID:   "m1",
			Name: "camera",
			URLs: DeviceModuleURLs{
				Binary:      "http://orch:3000/file/module/m1/wasm",
				Description: "http://orch:3000/file/module/m1/description",
				Other:       map[string]string{"model.pb": "http://orch:3000/file/module/m1/model.pb"},
			},
		}},
		Endpoints: map[string]map[string]Endpoint{
			"camera": {
				"take_image": {
					URL:    "http://192.168.1.12:5000/modules/camera/take_image",
					Path:   "/modules/camera/take_image",
					Method: "get",
					Response: OperationResponse{MediaType: "image/jpeg"},
				},
			},
		},
		Instructions: Instructions{Modules: map[string]map[string]Instruction{
			"camera": {"take_image": {From: Endpoint{Method: "get"}}},
		}},
		Mounts: map[string]map[string]StageMounts{
			"camera": {"take_image": {
				Output: []MountPathFile{{Path: "image.jpeg", MediaType: "image/jpeg", Stage: StageOutput}},
			}},
		},
	}

	raw, err := json.Marshal(node)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back DeploymentNode
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	raw2, err := json.Marshal(back)
	if err != nil {
		t.Fatalf("re-marshal: %v", err)
	}
	if string(raw) != string(raw2) {
		t.Fatalf("round trip changed payload:\n%s\n%s", raw, raw2)
	}
}

func TestInstructionTerminalStepOmitsTo(t *testing.T) {
	raw, err := json.Marshal(Instruction{From: Endpoint{Method: "get"}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := m["to"]; ok {
		t.Fatalf("terminal instruction should omit to: %s", raw)
	}
}

func TestDeviceSatisfies(t *testing.T) {
	d := &Device{Description: DeviceDescription{SupervisorInterfaces: []string{"camera", "gpio"}}}
	mod := &Module{Requirements: []WasmRequirement{{Module: "sys", Name: "camera", Kind: "function"}}}
	if !d.Satisfies(mod) {
		t.Fatal("device with camera interface should satisfy module requiring camera")
	}
	mod.Requirements = append(mod.Requirements, WasmRequirement{Module: "sys", Name: "ml", Kind: "function"})
	if d.Satisfies(mod) {
		t.Fatal("device without ml interface should not satisfy module requiring ml")
	}
	if !d.Satisfies(&Module{}) {
		t.Fatal("module without requirements runs anywhere")
	}
}

func TestRiskIndex(t *testing.T) {
	levels := []string{"none", "low", "moderate", "high"}
	if got := RiskIndex(levels, "moderate"); got != 2 {
		t.Fatalf("RiskIndex(moderate) = %d, want 2", got)
	}
	if got := RiskIndex(levels, "critical"); got != -1 {
		t.Fatalf("RiskIndex(critical) = %d, want -1", got)
	}
}

func TestCardWireKeys(t *testing.T) {
	raw, err := json.Marshal(ModuleCard{ModuleID: "m1", Name: "cam", RiskLevel: "low", InputType: "image", OutputRisk: "none"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"moduleid", "risk-level", "input-type", "output-risk", "dateReceived"} {
		if _, ok := m[key]; !ok {
			t.Fatalf("module card missing key %q: %s", key, raw)
		}
	}
}
