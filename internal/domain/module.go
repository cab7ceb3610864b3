package domain

import (
	"encoding/json"
	"time"
)

// InitFunctionName is the reserved export a wasm module may declare to run
// once at deployment time. Its mounts are provisioned at the deployment
// stage rather than per call.
const InitFunctionName = "_wasmiot_init"

// WasmExport is a function exported by a wasm binary.
type WasmExport struct {
	Name           string `json:"name"`
	ParameterCount int    `json:"parameterCount"`
}

// WasmRequirement is an import the binary expects the host to satisfy.
type WasmRequirement struct {
	Module string `json:"module"`
	Name   string `json:"name"`
	Kind   string `json:"kind"`
}

// FileInfo records a stored file belonging to a module.
type FileInfo struct {
	OriginalFilename string `json:"originalFilename"`
	FileName         string `json:"fileName"`
	Path             string `json:"path"`
	MediaType        string `json:"mediaType,omitempty"`
}

// ModuleMount is a file a function needs mounted, keyed under
// Module.Mounts by function name then mount path.
type ModuleMount struct {
	MediaType string     `json:"mediaType"`
	Stage     MountStage `json:"stage"`
}

// Module is a stored wasm module: the binary, its extracted interface, any
// data files, and an OpenAPI description of how to call its functions.
type Module struct {
	ID           string                            `json:"id,omitempty"`
	Name         string                            `json:"name"`
	Exports      []WasmExport                      `json:"exports"`
	Requirements []WasmRequirement                 `json:"requirements"`
	Wasm         *FileInfo                         `json:"wasm,omitempty"`
	DataFiles    map[string]FileInfo               `json:"dataFiles"`
	Mounts       map[string]map[string]ModuleMount `json:"mounts"`
	Description  json.RawMessage                   `json:"description,omitempty"`
	CreatedAt    time.Time                         `json:"createdAt,omitempty"`
}

// ExportNamed reports whether the module exports a function with the given
// name.
func (m *Module) ExportNamed(name string) (WasmExport, bool) {
	for _, e := range m.Exports {
		if e.Name == name {
			return e, true
		}
	}
	return WasmExport{}, false
}
