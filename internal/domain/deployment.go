package domain

import (
	"github.com/getkin/kin-openapi/openapi3"
)

// SequenceStep is one user-submitted step of a deployment pipeline. Device
// may be empty to let the orchestrator pick a device by capability.
type SequenceStep struct {
	Device string `json:"device"`
	Module string `json:"module"`
	Func   string `json:"func"`
}

// Deployment is the persisted pipeline document. FullManifest is keyed by
// device id and is only ever written as a whole, after a successful solve.
type Deployment struct {
	ID              string                    `json:"id,omitempty"`
	Name            string                    `json:"name"`
	Sequence        []SequenceStep            `json:"sequence"`
	FullManifest    map[string]DeploymentNode `json:"fullManifest"`
	ValidationError string                    `json:"validationError,omitempty"`
	Active          bool                      `json:"active,omitempty"`
}

// DeploymentNode is the per-device payload pushed to a supervisor: which
// modules to fetch, how each function is called, where to forward results,
// and which files belong to which lifecycle stage.
type DeploymentNode struct {
	DeploymentID string                            `json:"deploymentId"`
	Modules      []DeviceModule                    `json:"modules"`
	Endpoints    map[string]map[string]Endpoint    `json:"endpoints"`
	Instructions Instructions                      `json:"instructions"`
	Mounts       map[string]map[string]StageMounts `json:"mounts"`
}

type DeviceModule struct {
	ID   string           `json:"id"`
	Name string           `json:"name"`
	URLs DeviceModuleURLs `json:"urls"`
}

type DeviceModuleURLs struct {
	Binary      string            `json:"binary"`
	Description string            `json:"description"`
	Other       map[string]string `json:"other"`
}

// Endpoint describes one callable function on one device. Immutable once
// built by the manifest builder.
type Endpoint struct {
	URL      string            `json:"url"`
	Path     string            `json:"path"`
	Method   string            `json:"method"`
	Request  OperationRequest  `json:"request"`
	Response OperationResponse `json:"response"`
}

type OperationRequest struct {
	Parameters  []*openapi3.Parameter `json:"parameters"`
	RequestBody *RequestBody          `json:"request_body,omitempty"`
}

type RequestBody struct {
	MediaType string                        `json:"media_type"`
	Schema    *openapi3.Schema              `json:"schema,omitempty"`
	Encoding  map[string]*openapi3.Encoding `json:"encoding,omitempty"`
}

type OperationResponse struct {
	MediaType string           `json:"media_type"`
	Schema    *openapi3.Schema `json:"schema,omitempty"`
}

// Instruction tells a device where its own endpoint is and where to send the
// result next. A nil To marks the terminal step of the chain.
type Instruction struct {
	From Endpoint  `json:"from"`
	To   *Endpoint `json:"to,omitempty"`
}

type Instructions struct {
	Modules map[string]map[string]Instruction `json:"modules"`
}

// MountStage identifies when a file mount must be present on the device.
type MountStage string

const (
	StageDeployment MountStage = "deployment"
	StageExecution  MountStage = "execution"
	StageOutput     MountStage = "output"
)

type MountPathFile struct {
	Path      string     `json:"path"`
	MediaType string     `json:"media_type"`
	Stage     MountStage `json:"stage,omitempty"`
}

type StageMounts struct {
	Execution  []MountPathFile `json:"execution"`
	Deployment []MountPathFile `json:"deployment"`
	Output     []MountPathFile `json:"output"`
}
