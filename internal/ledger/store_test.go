package ledger

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreContract asserts the Store semantics every implementation must
// share.
func runStoreContract(t *testing.T, s Store) {
	t.Helper()

	_, err := s.Register("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.RegisterForDevice("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	reg := &Register{
		ID:                uuid.NewString(),
		FiscalDeviceID:    "prn-contract",
		CumulativeRevenue: decimal.RequireFromString("10.00"),
		CumulativeTax:     decimal.Zero,
		CumulativeRefunds: decimal.Zero,
		PeriodStartAt:     time.Now(),
		IsInFiscalMode:    true,
		TaxTotals:         map[string]decimal.Decimal{"A": decimal.RequireFromString("1.87")},
		PaymentTotals:     map[string]decimal.Decimal{"Cash": decimal.RequireFromString("10.00")},
	}
	reg.IntegrityHash = registerHash(reg)
	require.NoError(t, s.SaveRegister(reg))

	got, err := s.Register(reg.ID)
	require.NoError(t, err)
	assert.True(t, got.CumulativeRevenue.Equal(reg.CumulativeRevenue))
	assert.True(t, got.TaxTotals["A"].Equal(decimal.RequireFromString("1.87")))
	assert.Equal(t, reg.IntegrityHash, got.IntegrityHash)

	byDev, err := s.RegisterForDevice("prn-contract")
	require.NoError(t, err)
	assert.Equal(t, reg.ID, byDev.ID)

	// update round-trips
	got.CumulativeRevenue = decimal.RequireFromString("20.00")
	got.IntegrityHash = registerHash(got)
	require.NoError(t, s.SaveRegister(got))
	got2, err := s.Register(reg.ID)
	require.NoError(t, err)
	assert.True(t, got2.CumulativeRevenue.Equal(decimal.RequireFromString("20.00")))

	today := time.Now()
	yesterday := today.AddDate(0, 0, -1)
	for i, day := range []time.Time{yesterday, today, today} {
		tx := &Transaction{
			ID:            uuid.NewString(),
			RegisterID:    reg.ID,
			Sequence:      int64(i + 1),
			ReceiptNumber: "R-000" + string(rune('1'+i)),
			Type:          TxSale,
			Amount:        decimal.RequireFromString("10.00"),
			TaxAmount:     decimal.RequireFromString("1.87"),
			TaxRate:       "B",
			PaymentMethod: "Cash",
			CreatedAt:     day,
		}
		require.NoError(t, s.AppendTransaction(tx))
	}

	todays, err := s.TransactionsByDate(reg.ID, today)
	require.NoError(t, err)
	assert.Len(t, todays, 2)
	for i := 1; i < len(todays); i++ {
		assert.Greater(t, todays[i].Sequence, todays[i-1].Sequence)
	}

	all, err := s.TransactionsRange(reg.ID, yesterday.Add(-time.Hour), today.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = s.SummaryByDate(reg.ID, today)
	assert.ErrorIs(t, err, ErrNotFound)

	day, _ := dayBounds(today)
	sum := &DailySummary{
		ID:             uuid.NewString(),
		RegisterID:     reg.ID,
		Date:           day,
		ZReportNumber:  1,
		OpeningBalance: decimal.Zero,
		ClosingBalance: decimal.RequireFromString("20.00"),
		DailySales:     decimal.RequireFromString("20.00"),
		DailyTax:       decimal.RequireFromString("3.74"),
		DailyRefunds:   decimal.Zero,
		ReceiptCount:   2,
		GeneratedAt:    time.Now(),
	}
	sum.IntegrityHash = summaryHash(sum)
	require.NoError(t, s.SaveSummary(sum))

	gotSum, err := s.SummaryByDate(reg.ID, today)
	require.NoError(t, err)
	assert.Equal(t, 1, gotSum.ZReportNumber)
	assert.True(t, gotSum.ClosingBalance.Equal(decimal.RequireFromString("20.00")))

	sums, err := s.SummariesRange(reg.ID, day.Add(-48*time.Hour), day.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Len(t, sums, 1)
}

func TestMemoryStoreContract(t *testing.T) {
	runStoreContract(t, NewMemoryStore())
}

func TestSQLStoreContract(t *testing.T) {
	store, err := OpenSQLStore(filepath.Join(t.TempDir(), "crk.db"))
	require.NoError(t, err)
	runStoreContract(t, store)
}

func TestSQLStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crk.db")

	store, err := OpenSQLStore(path)
	require.NoError(t, err)
	l := New(store)
	reg, err := l.Initialize("prn-1", "Posnet Thermal")
	require.NoError(t, err)
	_, err = l.RecordTransaction(reg.ID, "R-0001", TxSale, decimal.RequireFromString("100.00"), decimal.RequireFromString("23.00"), "A", "Cash", "")
	require.NoError(t, err)

	// a fresh process sees intact fiscal history
	reopened, err := OpenSQLStore(path)
	require.NoError(t, err)
	l2 := New(reopened)
	again, err := l2.Initialize("prn-1", "Posnet Thermal")
	require.NoError(t, err)
	assert.Equal(t, reg.ID, again.ID)
	assert.True(t, again.CumulativeRevenue.Equal(decimal.RequireFromString("100.00")))

	ok, err := l2.VerifyIntegrity(reg.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}
