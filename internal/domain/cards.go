package domain

import "time"

// NodeCard assigns a device to a trust zone.
type NodeCard struct {
	ID           string    `json:"id,omitempty"`
	Name         string    `json:"name"`
	NodeID       string    `json:"nodeid"`
	Zone         string    `json:"zone"`
	DateReceived time.Time `json:"dateReceived"`
}

// ModuleCard declares a module's risk profile: how risky the module itself
// is, what kind of input it consumes and the risk of what it emits.
type ModuleCard struct {
	ID           string    `json:"id,omitempty"`
	ModuleID     string    `json:"moduleid"`
	Name         string    `json:"name"`
	RiskLevel    string    `json:"risk-level"`
	InputType    string    `json:"input-type"`
	OutputRisk   string    `json:"output-risk"`
	DateReceived time.Time `json:"dateReceived"`
}

// DatasourceCard declares the risk level of a data source attached to a
// device.
type DatasourceCard struct {
	ID           string    `json:"id,omitempty"`
	Name         string    `json:"name"`
	Type         string    `json:"type"`
	RiskLevel    string    `json:"risk-level"`
	NodeID       string    `json:"nodeid"`
	DateReceived time.Time `json:"dateReceived"`
}
