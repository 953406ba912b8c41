package ledger

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a register, transaction or summary does not
// exist in the store.
var ErrNotFound = errors.New("ledger: not found")

// Store is the persistence boundary for CRK data. Implementations must be
// append-only for transactions and summaries; registers are upserted.
type Store interface {
	SaveRegister(r *Register) error
	Register(id string) (*Register, error)
	RegisterForDevice(fiscalDeviceID string) (*Register, error)
	AppendTransaction(tx *Transaction) error
	TransactionsByDate(registerID string, date time.Time) ([]Transaction, error)
	TransactionsRange(registerID string, from, to time.Time) ([]Transaction, error)
	SaveSummary(s *DailySummary) error
	SummaryByDate(registerID string, date time.Time) (*DailySummary, error)
	SummariesRange(registerID string, from, to time.Time) ([]DailySummary, error)
}

func dayBounds(date time.Time) (time.Time, time.Time) {
	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	return start, start.Add(24 * time.Hour)
}

// MemoryStore keeps all CRK data in process memory. Used by tests and as a
// fallback when no database path is configured.
type MemoryStore struct {
	mu        sync.RWMutex
	registers map[string]*Register
	byDevice  map[string]string
	txs       map[string][]Transaction
	summaries map[string][]DailySummary
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		registers: make(map[string]*Register),
		byDevice:  make(map[string]string),
		txs:       make(map[string][]Transaction),
		summaries: make(map[string][]DailySummary),
	}
}

func cloneRegister(r *Register) *Register {
	cp := *r
	cp.TaxTotals = make(map[string]decimal.Decimal, len(r.TaxTotals))
	for k, v := range r.TaxTotals {
		cp.TaxTotals[k] = v
	}
	cp.PaymentTotals = make(map[string]decimal.Decimal, len(r.PaymentTotals))
	for k, v := range r.PaymentTotals {
		cp.PaymentTotals[k] = v
	}
	return &cp
}

func (s *MemoryStore) SaveRegister(r *Register) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registers[r.ID] = cloneRegister(r)
	s.byDevice[r.FiscalDeviceID] = r.ID
	return nil
}

func (s *MemoryStore) Register(id string) (*Register, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.registers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRegister(r), nil
}

func (s *MemoryStore) RegisterForDevice(fiscalDeviceID string) (*Register, error) {
	s.mu.RLock()
	id, ok := s.byDevice[fiscalDeviceID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return s.Register(id)
}

func (s *MemoryStore) AppendTransaction(tx *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}
	s.txs[tx.RegisterID] = append(s.txs[tx.RegisterID], *tx)
	return nil
}

func (s *MemoryStore) TransactionsByDate(registerID string, date time.Time) ([]Transaction, error) {
	from, to := dayBounds(date)
	return s.TransactionsRange(registerID, from, to)
}

func (s *MemoryStore) TransactionsRange(registerID string, from, to time.Time) ([]Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Transaction
	for _, tx := range s.txs[registerID] {
		if !tx.CreatedAt.Before(from) && tx.CreatedAt.Before(to) {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

func (s *MemoryStore) SaveSummary(sum *DailySummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries[sum.RegisterID] = append(s.summaries[sum.RegisterID], *sum)
	return nil
}

func (s *MemoryStore) SummaryByDate(registerID string, date time.Time) (*DailySummary, error) {
	from, to := dayBounds(date)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sum := range s.summaries[registerID] {
		if !sum.Date.Before(from) && sum.Date.Before(to) {
			cp := sum
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) SummariesRange(registerID string, from, to time.Time) ([]DailySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []DailySummary
	for _, sum := range s.summaries[registerID] {
		if !sum.Date.Before(from) && sum.Date.Before(to) {
			out = append(out, sum)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ZReportNumber < out[j].ZReportNumber })
	return out, nil
}
