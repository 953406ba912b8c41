package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// TxType classifies a fiscal transaction.
type TxType string

const (
	TxSale   TxType = "Sale"
	TxRefund TxType = "Refund"
)

// Register is one cumulative revenue register (CRK) per fiscal device.
// Compliance record: never deleted.
type Register struct {
	ID                string          `gorm:"primaryKey;size:64" json:"id"`
	FiscalDeviceID    string          `gorm:"uniqueIndex;size:64" json:"fiscal_device_id"`
	Model             string          `gorm:"size:128" json:"model,omitempty"`
	CumulativeRevenue decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"cumulative_revenue"`
	CumulativeTax     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"cumulative_tax"`
	CumulativeRefunds decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"cumulative_refunds"`
	TotalReceiptCount int64           `json:"total_receipt_count"`
	LastReceiptNumber string          `gorm:"size:64" json:"last_receipt_number,omitempty"`
	LastReceiptAt     *time.Time      `json:"last_receipt_at,omitempty"`
	ZReportCounter    int             `json:"z_report_counter"`
	LastZReportAt     *time.Time      `json:"last_z_report_at,omitempty"`
	PeriodStartAt     time.Time       `json:"period_start_at"`
	IntegrityHash     string          `gorm:"size:64" json:"integrity_hash"`
	IsInFiscalMode    bool            `json:"is_in_fiscal_mode"`

	// Running breakdowns, keyed by tax rate letter and payment method.
	TaxTotals     map[string]decimal.Decimal `gorm:"serializer:json" json:"tax_totals,omitempty"`
	PaymentTotals map[string]decimal.Decimal `gorm:"serializer:json" json:"payment_totals,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Transaction is one fiscal event appended to a register. Append-only:
// never mutated or removed once stored.
type Transaction struct {
	ID                 string          `gorm:"primaryKey;size:64" json:"id"`
	RegisterID         string          `gorm:"index:idx_tx_reg_seq,priority:1;size:64" json:"register_id"`
	Sequence           int64           `gorm:"index:idx_tx_reg_seq,priority:2" json:"sequence"`
	ReceiptNumber      string          `gorm:"size:64" json:"receipt_number"`
	Type               TxType          `gorm:"size:16" json:"type"`
	Amount             decimal.Decimal `gorm:"type:decimal(20,4)" json:"amount"`
	TaxAmount          decimal.Decimal `gorm:"type:decimal(20,4)" json:"tax_amount"`
	TaxRate            string          `gorm:"size:8" json:"tax_rate"`
	PaymentMethod      string          `gorm:"size:32" json:"payment_method"`
	Notes              string          `gorm:"size:512" json:"notes,omitempty"`
	CumulativeSnapshot decimal.Decimal `gorm:"type:decimal(20,4)" json:"cumulative_snapshot"`
	CreatedAt          time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// DailySummary is one Z-report: the closing snapshot of a register for a
// calendar day.
type DailySummary struct {
	ID             string          `gorm:"primaryKey;size:64" json:"id"`
	RegisterID     string          `gorm:"index:idx_zs_reg_date,priority:1;size:64" json:"register_id"`
	Date           time.Time       `gorm:"index:idx_zs_reg_date,priority:2" json:"date"`
	ZReportNumber  int             `json:"z_report_number"`
	OpeningBalance decimal.Decimal `gorm:"type:decimal(20,4)" json:"opening_balance"`
	ClosingBalance decimal.Decimal `gorm:"type:decimal(20,4)" json:"closing_balance"`
	DailySales     decimal.Decimal `gorm:"type:decimal(20,4)" json:"daily_sales"`
	DailyTax       decimal.Decimal `gorm:"type:decimal(20,4)" json:"daily_tax"`
	DailyRefunds   decimal.Decimal `gorm:"type:decimal(20,4)" json:"daily_refunds"`
	ReceiptCount   int             `json:"receipt_count"`

	TaxBreakdown     map[string]decimal.Decimal `gorm:"serializer:json" json:"tax_breakdown,omitempty"`
	PaymentBreakdown map[string]decimal.Decimal `gorm:"serializer:json" json:"payment_breakdown,omitempty"`

	GeneratedAt   time.Time `json:"generated_at"`
	IntegrityHash string    `gorm:"size:64" json:"integrity_hash"`
}

// ComplianceStatus is the derived compliance view of a register.
type ComplianceStatus struct {
	LedgerID         string   `json:"ledger_id"`
	DaysSinceZReport float64  `json:"days_since_z_report"`
	ZReportDue       bool     `json:"z_report_due"`
	IntegrityOK      bool     `json:"integrity_ok"`
	Warnings         []string `json:"warnings"`
	IsCompliant      bool     `json:"is_compliant"`
}

// Export is the read-only audit bundle for a date range.
type Export struct {
	Register       *Register      `json:"register"`
	Transactions   []Transaction  `json:"transactions"`
	DailySummaries []DailySummary `json:"daily_summaries"`
}
