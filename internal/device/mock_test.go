package device

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastTerminal() *MockTerminal {
	t := NewMockTerminal("PAX A920", "SN1")
	t.Latency = time.Millisecond
	return t
}

func fastPrinter() *MockFiscalPrinter {
	p := NewMockFiscalPrinter()
	p.Latency = time.Millisecond
	return p
}

func TestTerminalAuthorizeCaptureRefund(t *testing.T) {
	term := fastTerminal()
	ctx := context.Background()

	auth, err := term.AuthorizePayment(ctx, decimal.RequireFromString("100.00"), "PLN", "rental")
	require.NoError(t, err)
	assert.NotEmpty(t, auth.TransactionID)
	assert.Equal(t, "authorized", auth.Status)

	require.NoError(t, term.CapturePayment(ctx, auth.TransactionID, decimal.RequireFromString("100.00")))
	require.NoError(t, term.RefundPayment(ctx, auth.TransactionID, decimal.RequireFromString("40.00"), "partial return"))

	// refund above the captured remainder is a decline, not a comms error
	err = term.RefundPayment(ctx, auth.TransactionID, decimal.RequireFromString("70.00"), "too much")
	var terr *TerminalError
	require.ErrorAs(t, err, &terr)
	assert.True(t, terr.Declined)
}

func TestTerminalDeclineVsOffline(t *testing.T) {
	term := fastTerminal()
	ctx := context.Background()

	term.SetDeclining(true)
	_, err := term.AuthorizePayment(ctx, decimal.RequireFromString("10.00"), "PLN", "")
	var terr *TerminalError
	require.ErrorAs(t, err, &terr)
	assert.True(t, terr.Declined)

	term.SetDeclining(false)
	term.SetOffline(true)
	_, err = term.AuthorizePayment(ctx, decimal.RequireFromString("10.00"), "PLN", "")
	require.ErrorAs(t, err, &terr)
	assert.False(t, terr.Declined)

	st, err := term.CheckStatus(ctx)
	require.NoError(t, err)
	assert.False(t, st.IsOnline)
}

func TestTerminalHonorsCancellation(t *testing.T) {
	term := NewMockTerminal("PAX A920", "SN1")
	term.Latency = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	go cancel()
	_, err := term.AuthorizePayment(ctx, decimal.RequireFromString("10.00"), "PLN", "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPrinterReceiptTax(t *testing.T) {
	p := fastPrinter()
	items := []ReceiptItem{
		{Name: "Deposit", Quantity: 1, UnitPrice: decimal.RequireFromString("123.00"), TaxRate: "A"},
	}
	r, err := p.PrintReceipt(context.Background(), items, decimal.RequireFromString("123.00"), "Card")
	require.NoError(t, err)

	// gross 123.00 at 23% VAT carries exactly 23.00 of tax
	assert.True(t, r.TotalTax.Equal(decimal.RequireFromString("23.00")), "got %s", r.TotalTax)
	assert.Equal(t, "R-0001", r.ReceiptNumber)

	r2, err := p.PrintReceipt(context.Background(), items, decimal.RequireFromString("123.00"), "Card")
	require.NoError(t, err)
	assert.Equal(t, "R-0002", r2.ReceiptNumber)
}

func TestPrinterPaperOutAndFiscalMemory(t *testing.T) {
	p := fastPrinter()
	items := []ReceiptItem{{Name: "X", Quantity: 1, UnitPrice: decimal.RequireFromString("10.00"), TaxRate: "B"}}

	p.SetPaperOut(true)
	_, err := p.PrintReceipt(context.Background(), items, decimal.RequireFromString("10.00"), "Cash")
	var perr *PrinterError
	require.ErrorAs(t, err, &perr)
	assert.True(t, perr.OutOfPaper)
	assert.False(t, perr.ComplianceCritical())

	p.SetPaperOut(false)
	p.SetFiscalMemoryFault(true)
	_, err = p.PrintReceipt(context.Background(), items, decimal.RequireFromString("10.00"), "Cash")
	require.ErrorAs(t, err, &perr)
	assert.True(t, perr.ComplianceCritical())

	st, err := p.CheckStatus(context.Background())
	require.NoError(t, err)
	assert.False(t, st.FiscalMemoryOK)
}

func TestPrinterDailyReportAndCancel(t *testing.T) {
	p := fastPrinter()
	ctx := context.Background()
	items := []ReceiptItem{{Name: "X", Quantity: 1, UnitPrice: decimal.RequireFromString("50.00"), TaxRate: "B"}}

	_, err := p.PrintReceipt(ctx, items, decimal.RequireFromString("50.00"), "Cash")
	require.NoError(t, err)
	_, err = p.PrintReceipt(ctx, items, decimal.RequireFromString("50.00"), "Cash")
	require.NoError(t, err)

	cancelled, err := p.CancelLastReceipt(ctx, "operator error")
	require.NoError(t, err)
	assert.Equal(t, "R-0002", cancelled.ReceiptNumber)
	assert.True(t, cancelled.Total.Equal(decimal.RequireFromString("50.00")))

	rep, err := p.GetDailyReport(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.ReceiptCount)
	assert.True(t, rep.TotalSales.Equal(decimal.RequireFromString("50.00")))

	unknownDay, err := p.GetDailyReport(ctx, time.Now().AddDate(0, 0, -7))
	require.NoError(t, err)
	assert.Equal(t, 0, unknownDay.ReceiptCount)

	_, err = p.CancelLastReceipt(ctx, "")
	require.NoError(t, err)
	_, err = p.CancelLastReceipt(ctx, "")
	assert.Error(t, err)
	assert.False(t, errors.Is(err, context.Canceled))
}
