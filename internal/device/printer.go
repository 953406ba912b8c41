package device

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ReceiptItem is one line of a fiscal receipt.
type ReceiptItem struct {
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	TaxRate   string          `json:"tax_rate"`
}

// Receipt is the printer's confirmation of a fiscal document: issued by
// PrintReceipt, and echoed back by CancelLastReceipt for the document it
// reversed.
type Receipt struct {
	FiscalNumber  string          `json:"fiscal_number"`
	FiscalDate    string          `json:"fiscal_date"`
	FiscalTime    string          `json:"fiscal_time"`
	Total         decimal.Decimal `json:"total"`
	TotalTax      decimal.Decimal `json:"total_tax"`
	ReceiptNumber string          `json:"receipt_number"`
}

// DailyReport aggregates one calendar day of fiscal output.
type DailyReport struct {
	Date         time.Time       `json:"date"`
	TotalSales   decimal.Decimal `json:"total_sales"`
	TotalTax     decimal.Decimal `json:"total_tax"`
	ReceiptCount int             `json:"receipt_count"`
}

// PrinterStatus is the result of a fiscal printer health probe.
type PrinterStatus struct {
	HasPaper           bool `json:"has_paper"`
	FiscalMemoryOK     bool `json:"fiscal_memory_ok"`
	MemoryUsagePercent int  `json:"memory_usage_percent"`
}

// FiscalPrinter is the capability contract for fiscal printers.
type FiscalPrinter interface {
	PrintReceipt(ctx context.Context, items []ReceiptItem, total decimal.Decimal, paymentMethod string) (*Receipt, error)
	PrintNonFiscalDocument(ctx context.Context, lines []string) error
	GetDailyReport(ctx context.Context, date time.Time) (*DailyReport, error)
	CancelLastReceipt(ctx context.Context, reason string) (*Receipt, error)
	CheckStatus(ctx context.Context) (*PrinterStatus, error)
}
