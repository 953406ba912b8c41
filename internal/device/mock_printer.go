package device

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// taxRates maps Polish fiscal tax rate letters to their percentage.
var taxRates = map[string]decimal.Decimal{
	"A": decimal.NewFromInt(23),
	"B": decimal.NewFromInt(8),
	"C": decimal.NewFromInt(5),
	"D": decimal.NewFromInt(0),
}

type printedReceipt struct {
	number string
	fiscal string
	total  decimal.Decimal
	tax    decimal.Decimal
	at     time.Time
}

// MockFiscalPrinter is the reference FiscalPrinter implementation:
// deterministic receipt numbering, simulated paper and fiscal memory
// faults, daily aggregation over everything it printed.
type MockFiscalPrinter struct {
	Latency time.Duration

	mu          sync.Mutex
	counter     int
	paperOut    bool
	memoryFault bool
	memoryUsage int
	printed     []printedReceipt
}

func NewMockFiscalPrinter() *MockFiscalPrinter {
	return &MockFiscalPrinter{Latency: 200 * time.Millisecond, memoryUsage: 12}
}

// SetPaperOut simulates a paper-out condition.
func (p *MockFiscalPrinter) SetPaperOut(v bool) {
	p.mu.Lock()
	p.paperOut = v
	p.mu.Unlock()
}

// SetFiscalMemoryFault simulates a fiscal memory failure. This condition is
// compliance-critical and blocks all fiscal output.
func (p *MockFiscalPrinter) SetFiscalMemoryFault(v bool) {
	p.mu.Lock()
	p.memoryFault = v
	p.mu.Unlock()
}

func (p *MockFiscalPrinter) wait(ctx context.Context) error {
	select {
	case <-time.After(p.Latency):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *MockFiscalPrinter) PrintReceipt(ctx context.Context, items []ReceiptItem, total decimal.Decimal, paymentMethod string) (*Receipt, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.memoryFault {
		return nil, &PrinterError{Op: "print_receipt", FiscalMemory: true, Message: "fiscal memory write failed"}
	}
	if p.paperOut {
		return nil, &PrinterError{Op: "print_receipt", OutOfPaper: true}
	}
	if len(items) == 0 {
		return nil, &PrinterError{Op: "print_receipt", Message: "no items"}
	}

	tax := decimal.Zero
	for _, it := range items {
		rate, ok := taxRates[it.TaxRate]
		if !ok {
			return nil, &PrinterError{Op: "print_receipt", Message: "unknown tax rate " + it.TaxRate}
		}
		line := it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
		// gross pricing: tax = gross * rate / (100 + rate)
		tax = tax.Add(line.Mul(rate).Div(decimal.NewFromInt(100).Add(rate)))
	}
	tax = tax.Round(2)

	p.counter++
	now := time.Now()
	number := fmt.Sprintf("R-%04d", p.counter)
	fiscal := fmt.Sprintf("F/%d/%s", p.counter, now.Format("2006"))
	p.printed = append(p.printed, printedReceipt{number: number, fiscal: fiscal, total: total, tax: tax, at: now})
	return &Receipt{
		FiscalNumber:  fiscal,
		FiscalDate:    now.Format("2006-01-02"),
		FiscalTime:    now.Format("15:04:05"),
		Total:         total,
		TotalTax:      tax,
		ReceiptNumber: number,
	}, nil
}

func (p *MockFiscalPrinter) PrintNonFiscalDocument(ctx context.Context, lines []string) error {
	if err := p.wait(ctx); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paperOut {
		return &PrinterError{Op: "print_nonfiscal", OutOfPaper: true}
	}
	if len(lines) == 0 {
		return &PrinterError{Op: "print_nonfiscal", Message: "no lines"}
	}
	return nil
}

func (p *MockFiscalPrinter) GetDailyReport(ctx context.Context, date time.Time) (*DailyReport, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	rep := &DailyReport{Date: date, TotalSales: decimal.Zero, TotalTax: decimal.Zero}
	y, m, d := date.Date()
	for _, r := range p.printed {
		ry, rm, rd := r.at.Date()
		if ry == y && rm == m && rd == d {
			rep.TotalSales = rep.TotalSales.Add(r.total)
			rep.TotalTax = rep.TotalTax.Add(r.tax)
			rep.ReceiptCount++
		}
	}
	return rep, nil
}

// CancelLastReceipt reverses the most recent fiscal print and returns the
// cancelled document so the caller can record the reversal.
func (p *MockFiscalPrinter) CancelLastReceipt(ctx context.Context, reason string) (*Receipt, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.memoryFault {
		return nil, &PrinterError{Op: "cancel_receipt", FiscalMemory: true, Message: "fiscal memory write failed"}
	}
	if len(p.printed) == 0 {
		return nil, &PrinterError{Op: "cancel_receipt", Message: "nothing to cancel"}
	}
	last := p.printed[len(p.printed)-1]
	p.printed = p.printed[:len(p.printed)-1]
	return &Receipt{
		FiscalNumber:  last.fiscal,
		FiscalDate:    last.at.Format("2006-01-02"),
		FiscalTime:    last.at.Format("15:04:05"),
		Total:         last.total,
		TotalTax:      last.tax,
		ReceiptNumber: last.number,
	}, nil
}

func (p *MockFiscalPrinter) CheckStatus(ctx context.Context) (*PrinterStatus, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return &PrinterStatus{
		HasPaper:           !p.paperOut,
		FiscalMemoryOK:     !p.memoryFault,
		MemoryUsagePercent: p.memoryUsage,
	}, nil
}
