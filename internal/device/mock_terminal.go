package device

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MockTerminal is the reference Terminal implementation. It simulates
// realistic authorization latency and can be switched into decline or
// offline behavior for testing.
type MockTerminal struct {
	Model   string
	Serial  string
	Latency time.Duration

	mu       sync.Mutex
	declines bool
	offline  bool
	captured map[string]decimal.Decimal
}

func NewMockTerminal(model, serial string) *MockTerminal {
	return &MockTerminal{
		Model:    model,
		Serial:   serial,
		Latency:  150 * time.Millisecond,
		captured: make(map[string]decimal.Decimal),
	}
}

// SetDeclining makes subsequent authorizations fail with a decline.
func (t *MockTerminal) SetDeclining(v bool) {
	t.mu.Lock()
	t.declines = v
	t.mu.Unlock()
}

// SetOffline simulates a connectivity failure.
func (t *MockTerminal) SetOffline(v bool) {
	t.mu.Lock()
	t.offline = v
	t.mu.Unlock()
}

func (t *MockTerminal) wait(ctx context.Context) error {
	select {
	case <-time.After(t.Latency):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *MockTerminal) AuthorizePayment(ctx context.Context, amount decimal.Decimal, currency, description string) (*Authorization, error) {
	if err := t.wait(ctx); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.offline {
		return nil, &TerminalError{Op: "authorize", Message: "terminal not responding"}
	}
	if t.declines {
		return nil, &TerminalError{Op: "authorize", Declined: true, Message: "card declined by issuer"}
	}
	if amount.Sign() <= 0 {
		return nil, &TerminalError{Op: "authorize", Declined: true, Message: "non-positive amount"}
	}
	txID := uuid.NewString()
	t.captured[txID] = decimal.Zero
	return &Authorization{
		TransactionID: txID,
		AuthCode:      fmt.Sprintf("AUTH-%s", txID[:8]),
		Status:        "authorized",
		CardType:      "VISA",
		Last4:         "4242",
	}, nil
}

func (t *MockTerminal) CapturePayment(ctx context.Context, transactionID string, amount decimal.Decimal) error {
	if err := t.wait(ctx); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.offline {
		return &TerminalError{Op: "capture", Message: "terminal not responding"}
	}
	if _, ok := t.captured[transactionID]; !ok {
		return &TerminalError{Op: "capture", Message: "unknown transaction " + transactionID}
	}
	t.captured[transactionID] = amount
	return nil
}

func (t *MockTerminal) RefundPayment(ctx context.Context, transactionID string, amount decimal.Decimal, reason string) error {
	if err := t.wait(ctx); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.offline {
		return &TerminalError{Op: "refund", Message: "terminal not responding"}
	}
	captured, ok := t.captured[transactionID]
	if !ok {
		return &TerminalError{Op: "refund", Message: "unknown transaction " + transactionID}
	}
	if amount.GreaterThan(captured) {
		return &TerminalError{Op: "refund", Declined: true, Message: "refund exceeds captured amount"}
	}
	t.captured[transactionID] = captured.Sub(amount)
	return nil
}

func (t *MockTerminal) CancelPayment(ctx context.Context, transactionID string) error {
	if err := t.wait(ctx); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.captured[transactionID]; !ok {
		return &TerminalError{Op: "cancel", Message: "unknown transaction " + transactionID}
	}
	delete(t.captured, transactionID)
	return nil
}

func (t *MockTerminal) CheckStatus(ctx context.Context) (*TerminalStatus, error) {
	if err := t.wait(ctx); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return &TerminalStatus{
		IsOnline: !t.offline,
		IsReady:  !t.offline,
		Model:    t.Model,
		Serial:   t.Serial,
	}, nil
}
