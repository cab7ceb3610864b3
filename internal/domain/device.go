package domain

import "time"

// DeviceStatus tracks whether a device is answering health checks.
type DeviceStatus string

const (
	DeviceActive   DeviceStatus = "active"
	DeviceInactive DeviceStatus = "inactive"
)

type DeviceCommunication struct {
	Addresses []string `json:"addresses"`
	Port      int      `json:"port"`
}

// DeviceDescription is fetched from the device's well-known endpoint after
// registration. SupervisorInterfaces names the host imports the device can
// satisfy for wasm modules.
type DeviceDescription struct {
	Platform             map[string]any `json:"platform"`
	SupervisorInterfaces []string       `json:"supervisorInterfaces"`
}

type DeviceHealth struct {
	Report     map[string]any `json:"report"`
	TimeOfTest time.Time      `json:"timeOfQuery"`
}

type StatusLogEntry struct {
	Status DeviceStatus `json:"status"`
	Time   time.Time    `json:"time"`
}

// Device is a registered supervisor node.
type Device struct {
	ID            string              `json:"id,omitempty"`
	Name          string              `json:"name"`
	Communication DeviceCommunication `json:"communication"`
	Description   DeviceDescription   `json:"description"`
	Status        DeviceStatus        `json:"status"`
	OKChecks      int                 `json:"ok_health_check_count"`
	FailedChecks  int                 `json:"failed_health_check_count"`
	StatusLog     []StatusLogEntry    `json:"status_log,omitempty"`
	Health        *DeviceHealth       `json:"health,omitempty"`
}

// Address returns the device's first reachable address, or false when the
// device registered without one.
func (d *Device) Address() (string, bool) {
	if len(d.Communication.Addresses) == 0 {
		return "", false
	}
	return d.Communication.Addresses[0], true
}

// Satisfies reports whether the device provides every supervisor interface
// the module's imports require.
func (d *Device) Satisfies(m *Module) bool {
	for _, req := range m.Requirements {
		found := false
		for _, iface := range d.Description.SupervisorInterfaces {
			if iface == req.Name {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
