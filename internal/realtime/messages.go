package realtime

import (
	"encoding/json"
	"time"

	"github.com/VaXeS13/MP-sub002/internal/device"
)

// Frame is the wire envelope: every message on the link is one JSON frame.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Frame types. Inbound: execute_command. Outbound: everything else.
const (
	FrameExecuteCommand  = "execute_command"
	FrameCommandResponse = "command_response"
	FrameDeviceStatus    = "device_status"
	FrameHeartbeat       = "heartbeat"
	FrameRegisterAgent   = "register_agent"
)

// CommandResponse reports a command outcome back to the cloud.
type CommandResponse struct {
	CommandID string          `json:"command_id"`
	Status    string          `json:"status"`
	Response  json.RawMessage `json:"response,omitempty"`
	Error     string          `json:"error,omitempty"`
	At        time.Time       `json:"at"`
}

// DeviceStatusReport is best-effort device telemetry.
type DeviceStatusReport struct {
	DeviceID  string    `json:"device_id"`
	Status    string    `json:"status"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Heartbeat is the periodic liveness signal.
type Heartbeat struct {
	AgentID string    `json:"agent_id"`
	At      time.Time `json:"at"`
}

// RegistrationSnapshot is pushed once per successful connect.
type RegistrationSnapshot struct {
	AgentID     string        `json:"agent_id"`
	TenantID    string        `json:"tenant_id"`
	MachineName string        `json:"machine_name"`
	IPAddress   string        `json:"ip_address"`
	Devices     []device.Info `json:"devices"`
}
