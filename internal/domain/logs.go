package domain

import "time"

// SupervisorLog is a log line forwarded by a device supervisor. Timestamp
// is the device's clock, DateReceived is ours.
type SupervisorLog struct {
	ID           string    `json:"id,omitempty"`
	DeviceIP     string    `json:"deviceIP"`
	DeviceName   string    `json:"deviceName"`
	FuncName     string    `json:"funcName"`
	LogLevel     string    `json:"loglevel"`
	Message      string    `json:"message"`
	RequestID    string    `json:"request_id,omitempty"`
	DeploymentID string    `json:"deployment_id,omitempty"`
	ModuleName   string    `json:"module_name,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	DateReceived time.Time `json:"dateReceived"`
}
