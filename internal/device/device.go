package device

import "time"

// Type identifies what a physical device is capable of.
type Type string

const (
	TypeTerminal      Type = "Terminal"
	TypeFiscalPrinter Type = "FiscalPrinter"
)

// Status is the registry-level view of a device's health.
type Status string

const (
	StatusOffline Status = "Offline"
	StatusReady   Status = "Ready"
	StatusOnline  Status = "Online"
	StatusBusy    Status = "Busy"
	StatusError   Status = "Error"
)

// Info describes one configured physical device. Devices are created at
// agent initialization and never deleted at runtime; a restart re-reads
// the configuration.
type Info struct {
	ID         string            `json:"id"`
	Type       Type              `json:"type"`
	Provider   string            `json:"provider"`
	Model      string            `json:"model"`
	Serial     string            `json:"serial"`
	Connection string            `json:"connection"`
	Status     Status            `json:"status"`
	Enabled    bool              `json:"enabled"`
	Primary    bool              `json:"primary"`
	Settings   map[string]string `json:"settings,omitempty"`
	LastUpdate time.Time         `json:"last_update"`
}

// Definition is the static configuration a device is constructed from.
type Definition struct {
	ID         string
	Type       Type
	Provider   string
	Model      string
	Serial     string
	Connection string
	Enabled    bool
	Settings   map[string]string
}

// StatusChange is emitted on every status transition of a device.
type StatusChange struct {
	DeviceID string
	Previous Status
	Current  Status
	Details  string
	At       time.Time
}
