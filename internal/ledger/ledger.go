package ledger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/VaXeS13/MP-sub002/internal/logger"
)

var (
	// ErrDuplicateZReport rejects a second Z-report for the same day.
	ErrDuplicateZReport = errors.New("ledger: Z-report already generated for this date")
	// ErrIntegrity marks a digest mismatch. Never auto-corrected.
	ErrIntegrity = errors.New("ledger: integrity hash mismatch")
)

// zReportInterval is the compliance window after which a Z-report is due.
const zReportInterval = 24 * time.Hour

// Ledger is the CRK service: per-fiscal-device cumulative revenue registers
// with hash-chained integrity and daily closing reports. All mutations of a
// register go through a per-ledger mutex; the cumulative totals and the
// hash are not safely updatable by concurrent writers.
type Ledger struct {
	store Store

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	log zerolog.Logger
}

func New(store Store) *Ledger {
	return &Ledger{
		store: store,
		locks: make(map[string]*sync.Mutex),
		log:   logger.With("crk-ledger"),
	}
}

func (l *Ledger) lockFor(ledgerID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[ledgerID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[ledgerID] = m
	}
	return m
}

// Initialize creates the register for a fiscal device, or returns the
// existing one: a register is created once per device and never deleted.
func (l *Ledger) Initialize(fiscalDeviceID, model string) (*Register, error) {
	if existing, err := l.store.RegisterForDevice(fiscalDeviceID); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	now := time.Now()
	reg := &Register{
		ID:                uuid.NewString(),
		FiscalDeviceID:    fiscalDeviceID,
		Model:             model,
		CumulativeRevenue: decimal.Zero,
		CumulativeTax:     decimal.Zero,
		CumulativeRefunds: decimal.Zero,
		PeriodStartAt:     now,
		IsInFiscalMode:    true,
		TaxTotals:         map[string]decimal.Decimal{},
		PaymentTotals:     map[string]decimal.Decimal{},
	}
	reg.IntegrityHash = registerHash(reg)
	if err := l.store.SaveRegister(reg); err != nil {
		return nil, fmt.Errorf("save register: %w", err)
	}
	l.log.Info().Str("ledger", reg.ID).Str("device", fiscalDeviceID).Msg("CRK register initialized")
	return reg, nil
}

// RecordTransaction appends one fiscal event, advances the cumulative
// totals and running breakdowns, stamps the post-transaction snapshot and
// recomputes the integrity hash. Atomic per ledger id.
func (l *Ledger) RecordTransaction(ledgerID, receiptNumber string, typ TxType, amount, taxAmount decimal.Decimal, taxRate, paymentMethod, notes string) (*Transaction, error) {
	lock := l.lockFor(ledgerID)
	lock.Lock()
	defer lock.Unlock()

	reg, err := l.store.Register(ledgerID)
	if err != nil {
		return nil, err
	}
	if registerHash(reg) != reg.IntegrityHash {
		return nil, ErrIntegrity
	}

	signedAmount := amount
	signedTax := taxAmount
	switch typ {
	case TxSale:
	case TxRefund:
		signedAmount = amount.Neg()
		signedTax = taxAmount.Neg()
		reg.CumulativeRefunds = reg.CumulativeRefunds.Add(amount)
	default:
		return nil, fmt.Errorf("unknown transaction type %q", typ)
	}

	reg.CumulativeRevenue = reg.CumulativeRevenue.Add(signedAmount)
	reg.CumulativeTax = reg.CumulativeTax.Add(signedTax)
	reg.TotalReceiptCount++
	reg.LastReceiptNumber = receiptNumber
	now := time.Now()
	reg.LastReceiptAt = &now

	if reg.TaxTotals == nil {
		reg.TaxTotals = map[string]decimal.Decimal{}
	}
	if reg.PaymentTotals == nil {
		reg.PaymentTotals = map[string]decimal.Decimal{}
	}
	reg.TaxTotals[taxRate] = reg.TaxTotals[taxRate].Add(signedTax)
	reg.PaymentTotals[paymentMethod] = reg.PaymentTotals[paymentMethod].Add(signedAmount)

	tx := &Transaction{
		ID:                 uuid.NewString(),
		RegisterID:         ledgerID,
		Sequence:           reg.TotalReceiptCount,
		ReceiptNumber:      receiptNumber,
		Type:               typ,
		Amount:             amount,
		TaxAmount:          taxAmount,
		TaxRate:            taxRate,
		PaymentMethod:      paymentMethod,
		Notes:              notes,
		CumulativeSnapshot: reg.CumulativeRevenue,
		CreatedAt:          now,
	}
	if err := l.store.AppendTransaction(tx); err != nil {
		return nil, fmt.Errorf("append transaction: %w", err)
	}

	reg.IntegrityHash = registerHash(reg)
	if err := l.store.SaveRegister(reg); err != nil {
		return nil, fmt.Errorf("save register: %w", err)
	}
	return tx, nil
}

// IsZReportRequired reports whether more than 24 hours have passed since
// the register's period start (no report yet) or its last Z-report.
func (l *Ledger) IsZReportRequired(ledgerID string) (bool, error) {
	reg, err := l.store.Register(ledgerID)
	if err != nil {
		return false, err
	}
	return zReportOverdue(reg, time.Now()), nil
}

func zReportOverdue(reg *Register, now time.Time) bool {
	since := reg.PeriodStartAt
	if reg.LastZReportAt != nil {
		since = *reg.LastZReportAt
	}
	return now.Sub(since) > zReportInterval
}

// Status derives the compliance view for a register. IsCompliant is true
// iff no warnings were produced.
func (l *Ledger) Status(ledgerID string) (*ComplianceStatus, error) {
	reg, err := l.store.Register(ledgerID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	since := reg.PeriodStartAt
	if reg.LastZReportAt != nil {
		since = *reg.LastZReportAt
	}

	st := &ComplianceStatus{
		LedgerID:         ledgerID,
		DaysSinceZReport: now.Sub(since).Hours() / 24,
		ZReportDue:       zReportOverdue(reg, now),
		IntegrityOK:      registerHash(reg) == reg.IntegrityHash,
	}
	if st.ZReportDue {
		st.Warnings = append(st.Warnings, fmt.Sprintf("Z-report overdue: %.1f days since last closing", st.DaysSinceZReport))
	}
	if reg.CumulativeTax.Sign() < 0 {
		st.Warnings = append(st.Warnings, "cumulative tax is negative")
	}
	if !st.IntegrityOK {
		st.Warnings = append(st.Warnings, "integrity hash mismatch: possible tampering")
	}
	if !reg.IsInFiscalMode {
		st.Warnings = append(st.Warnings, "register is not in fiscal mode")
	}
	st.IsCompliant = len(st.Warnings) == 0
	return st, nil
}

// VerifyIntegrity recomputes the digest over current state and compares it
// to the stored hash. A mismatch is surfaced, never corrected.
func (l *Ledger) VerifyIntegrity(ledgerID string) (bool, error) {
	reg, err := l.store.Register(ledgerID)
	if err != nil {
		return false, err
	}
	if registerHash(reg) != reg.IntegrityHash {
		l.log.Error().Str("ledger", ledgerID).Msg("CRK integrity verification FAILED")
		return false, nil
	}
	return true, nil
}

// GenerateZReport closes a calendar day: aggregates its transactions into a
// DailySummary with the next Z-report number. A second report for the same
// (ledger, date) is rejected, and a register whose integrity hash does not
// verify cannot be closed.
func (l *Ledger) GenerateZReport(ledgerID string, date time.Time) (*DailySummary, error) {
	lock := l.lockFor(ledgerID)
	lock.Lock()
	defer lock.Unlock()

	reg, err := l.store.Register(ledgerID)
	if err != nil {
		return nil, err
	}
	if registerHash(reg) != reg.IntegrityHash {
		return nil, ErrIntegrity
	}
	if _, err := l.store.SummaryByDate(ledgerID, date); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateZReport, date.Format("2006-01-02"))
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	txs, err := l.store.TransactionsByDate(ledgerID, date)
	if err != nil {
		return nil, err
	}

	sales := decimal.Zero
	refunds := decimal.Zero
	tax := decimal.Zero
	taxBreakdown := map[string]decimal.Decimal{}
	payBreakdown := map[string]decimal.Decimal{}
	for _, tx := range txs {
		switch tx.Type {
		case TxSale:
			sales = sales.Add(tx.Amount)
			tax = tax.Add(tx.TaxAmount)
			taxBreakdown[tx.TaxRate] = taxBreakdown[tx.TaxRate].Add(tx.TaxAmount)
			payBreakdown[tx.PaymentMethod] = payBreakdown[tx.PaymentMethod].Add(tx.Amount)
		case TxRefund:
			refunds = refunds.Add(tx.Amount)
			tax = tax.Sub(tx.TaxAmount)
			taxBreakdown[tx.TaxRate] = taxBreakdown[tx.TaxRate].Sub(tx.TaxAmount)
			payBreakdown[tx.PaymentMethod] = payBreakdown[tx.PaymentMethod].Sub(tx.Amount)
		}
	}

	closing := reg.CumulativeRevenue
	opening := closing.Sub(sales.Sub(refunds))
	day, _ := dayBounds(date)
	now := time.Now()
	sum := &DailySummary{
		ID:               uuid.NewString(),
		RegisterID:       ledgerID,
		Date:             day,
		ZReportNumber:    reg.ZReportCounter + 1,
		OpeningBalance:   opening,
		ClosingBalance:   closing,
		DailySales:       sales,
		DailyTax:         tax,
		DailyRefunds:     refunds,
		ReceiptCount:     len(txs),
		TaxBreakdown:     taxBreakdown,
		PaymentBreakdown: payBreakdown,
		GeneratedAt:      now,
	}
	sum.IntegrityHash = summaryHash(sum)
	if err := l.store.SaveSummary(sum); err != nil {
		return nil, fmt.Errorf("save summary: %w", err)
	}

	reg.ZReportCounter = sum.ZReportNumber
	reg.LastZReportAt = &now
	reg.IntegrityHash = registerHash(reg)
	if err := l.store.SaveRegister(reg); err != nil {
		return nil, fmt.Errorf("save register: %w", err)
	}
	l.log.Info().Str("ledger", ledgerID).Int("z_number", sum.ZReportNumber).Msg("Z-report generated")
	return sum, nil
}

// Export bundles the register with its transactions and Z-reports for a
// date range. Read-only.
func (l *Ledger) Export(ledgerID string, from, to time.Time) (*Export, error) {
	reg, err := l.store.Register(ledgerID)
	if err != nil {
		return nil, err
	}
	txs, err := l.store.TransactionsRange(ledgerID, from, to)
	if err != nil {
		return nil, err
	}
	sums, err := l.store.SummariesRange(ledgerID, from, to)
	if err != nil {
		return nil, err
	}
	return &Export{Register: reg, Transactions: txs, DailySummaries: sums}, nil
}
