package command

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a command.
type Status string

const (
	StatusQueued     Status = "Queued"
	StatusProcessing Status = "Processing"
	StatusCompleted  Status = "Completed"
	StatusFailed     Status = "Failed"
	StatusTimedOut   Status = "TimedOut"
	StatusCancelled  Status = "Cancelled"
)

// IsTerminal reports whether no further transitions are allowed.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusTimedOut, StatusCancelled:
		return true
	}
	return false
}

// Header carries routing and execution metadata outside the payload, so the
// queue never has to inspect payload internals.
type Header struct {
	TenantID   string        `json:"tenant_id"`
	AgentID    string        `json:"agent_id"`
	Timeout    time.Duration `json:"timeout,omitempty"`
	MaxRetries int           `json:"max_retries,omitempty"`
}

// Envelope is the wire form of one inbound command.
type Envelope struct {
	Header  Header          `json:"header"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Info is one unit of work tracked by the queue. It is mutated only by the
// queue, under its lock.
type Info struct {
	ID                 string          `json:"id"`
	TenantID           string          `json:"tenant_id"`
	AgentID            string          `json:"agent_id"`
	Type               string          `json:"type"`
	Payload            json.RawMessage `json:"payload,omitempty"`
	Response           json.RawMessage `json:"response,omitempty"`
	Status             Status          `json:"status"`
	QueuedAt           time.Time       `json:"queued_at"`
	StartedAt          *time.Time      `json:"started_at,omitempty"`
	CompletedAt        *time.Time      `json:"completed_at,omitempty"`
	ProcessingDuration time.Duration   `json:"processing_duration,omitempty"`
	Timeout            time.Duration   `json:"timeout"`
	MaxRetries         int             `json:"max_retries"`
}

// Notification is emitted on every status transition.
type Notification struct {
	CommandID string
	Previous  Status
	Current   Status
	At        time.Time
}

// Statistics is a point-in-time view of queue health.
type Statistics struct {
	QueuedCommands            int
	ProcessingCommands        int
	CompletedCommands         int
	FailedCommands            int
	TimedOutCommands          int
	CancelledCommands         int
	OldestPendingQueuedAt     *time.Time
	AverageProcessingDuration time.Duration
}
