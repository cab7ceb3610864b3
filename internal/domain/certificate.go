package domain

import "time"

// ValidationLog records a single device/module/function judgement made
// while validating a deployment against zone policy.
type ValidationLog struct {
	Device     string   `json:"device"`
	Module     string   `json:"module"`
	Func       string   `json:"func"`
	NodeZone   string   `json:"node_zone"`
	ModuleRisk string   `json:"module_risk"`
	InputRisk  string   `json:"input_risk"`
	OutputRisk string   `json:"output_risk"`
	Valid      bool     `json:"valid"`
	Reasons    []string `json:"reasons"`
}

// DeploymentCertificate is the stored outcome of a policy validation run.
// One is written for every validated deployment, valid or not.
type DeploymentCertificate struct {
	ID             string          `json:"id,omitempty"`
	Date           time.Time       `json:"date"`
	DeploymentID   string          `json:"deploymentId"`
	Valid          bool            `json:"valid"`
	ValidationLogs []ValidationLog `json:"validationLogs"`
}
