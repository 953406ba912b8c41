package device

import (
	"context"

	"github.com/shopspring/decimal"
)

// Authorization is the terminal's answer to a payment request.
type Authorization struct {
	TransactionID string `json:"transaction_id"`
	AuthCode      string `json:"auth_code"`
	Status        string `json:"status"`
	CardType      string `json:"card_type"`
	Last4         string `json:"last4"`
}

// TerminalStatus is the result of a terminal health probe.
type TerminalStatus struct {
	IsOnline bool   `json:"is_online"`
	IsReady  bool   `json:"is_ready"`
	Model    string `json:"model"`
	Serial   string `json:"serial"`
}

// Terminal is the capability contract for payment terminals. Concrete
// hardware SDKs implement it; every call observes ctx for cancellation and
// timeout.
type Terminal interface {
	AuthorizePayment(ctx context.Context, amount decimal.Decimal, currency, description string) (*Authorization, error)
	CapturePayment(ctx context.Context, transactionID string, amount decimal.Decimal) error
	RefundPayment(ctx context.Context, transactionID string, amount decimal.Decimal, reason string) error
	CancelPayment(ctx context.Context, transactionID string) error
	CheckStatus(ctx context.Context) (*TerminalStatus, error)
}
