package device

import "fmt"

// InitError means a device or its driver failed to come up. Fatal to that
// device only, never to the agent.
type InitError struct {
	DeviceID string
	Cause    error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("device %s failed to initialize: %v", e.DeviceID, e.Cause)
}

func (e *InitError) Unwrap() error { return e.Cause }

// TerminalError is raised by payment terminal operations. Declined marks a
// payment refusal, which callers must treat differently from a connectivity
// failure.
type TerminalError struct {
	Op       string
	Declined bool
	Message  string
}

func (e *TerminalError) Error() string {
	if e.Declined {
		return fmt.Sprintf("terminal %s: payment declined: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("terminal %s: %s", e.Op, e.Message)
}

// PrinterError is raised by fiscal printer operations. A fiscal memory
// failure blocks all fiscal output and is compliance-critical.
type PrinterError struct {
	Op           string
	OutOfPaper   bool
	FiscalMemory bool
	Message      string
}

func (e *PrinterError) Error() string {
	switch {
	case e.FiscalMemory:
		return fmt.Sprintf("fiscal printer %s: fiscal memory error: %s", e.Op, e.Message)
	case e.OutOfPaper:
		return fmt.Sprintf("fiscal printer %s: out of paper", e.Op)
	default:
		return fmt.Sprintf("fiscal printer %s: %s", e.Op, e.Message)
	}
}

// ComplianceCritical reports whether the error must halt fiscal operations
// until manually resolved.
func (e *PrinterError) ComplianceCritical() bool { return e.FiscalMemory }
