package agent

import (
	"github.com/shopspring/decimal"

	"github.com/VaXeS13/MP-sub002/internal/device"
)

// Command types the agent dispatches. Anything else fails with an
// "unsupported command" response.
const (
	CmdAuthorizePayment  = "authorize_payment"
	CmdCapturePayment    = "capture_payment"
	CmdRefundPayment     = "refund_payment"
	CmdCancelPayment     = "cancel_payment"
	CmdPrintReceipt      = "print_receipt"
	CmdPrintNonFiscal    = "print_nonfiscal"
	CmdCancelReceipt     = "cancel_receipt"
	CmdDailyReport       = "daily_report"
	CmdDeviceStatusCheck = "device_status_check"
	CmdGenerateZReport   = "generate_z_report"
	CmdGetCRKStatus      = "get_crk_status"
	CmdExportLedger      = "export_ledger"
)

type authorizePaymentPayload struct {
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Description string          `json:"description,omitempty"`
}

type capturePaymentPayload struct {
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
}

type refundPaymentPayload struct {
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	TaxAmount     decimal.Decimal `json:"tax_amount"`
	TaxRate       string          `json:"tax_rate"`
	ReceiptNumber string          `json:"receipt_number"`
	PaymentMethod string          `json:"payment_method,omitempty"`
	Reason        string          `json:"reason,omitempty"`
}

type cancelPaymentPayload struct {
	TransactionID string `json:"transaction_id"`
}

type printReceiptPayload struct {
	Items         []device.ReceiptItem `json:"items"`
	Total         decimal.Decimal      `json:"total"`
	TaxRate       string               `json:"tax_rate"`
	PaymentMethod string               `json:"payment_method"`
}

type printNonFiscalPayload struct {
	Lines []string `json:"lines"`
}

type cancelReceiptPayload struct {
	Reason        string `json:"reason"`
	TaxRate       string `json:"tax_rate"`
	PaymentMethod string `json:"payment_method"`
}

type dateOnlyPayload struct {
	Date string `json:"date"` // 2006-01-02
}

type deviceStatusCheckPayload struct {
	DeviceType device.Type `json:"device_type"`
}

type exportLedgerPayload struct {
	From string `json:"from"` // 2006-01-02
	To   string `json:"to"`
}
