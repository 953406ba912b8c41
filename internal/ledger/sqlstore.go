package ledger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// SQLStore is the durable Store implementation: sqlite via gorm, so a power
// loss does not erase fiscal history.
type SQLStore struct {
	db *gorm.DB
}

func OpenSQLStore(path string) (*SQLStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger db dir: %w", err)
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}
	if err := db.AutoMigrate(&Register{}, &Transaction{}, &DailySummary{}); err != nil {
		return nil, fmt.Errorf("migrate ledger db: %w", err)
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) SaveRegister(r *Register) error {
	return s.db.Save(r).Error
}

func (s *SQLStore) Register(id string) (*Register, error) {
	var r Register
	if err := s.db.First(&r, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

func (s *SQLStore) RegisterForDevice(fiscalDeviceID string) (*Register, error) {
	var r Register
	if err := s.db.First(&r, "fiscal_device_id = ?", fiscalDeviceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

func (s *SQLStore) AppendTransaction(tx *Transaction) error {
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}
	return s.db.Create(tx).Error
}

func (s *SQLStore) TransactionsByDate(registerID string, date time.Time) ([]Transaction, error) {
	from, to := dayBounds(date)
	return s.TransactionsRange(registerID, from, to)
}

func (s *SQLStore) TransactionsRange(registerID string, from, to time.Time) ([]Transaction, error) {
	var out []Transaction
	err := s.db.
		Where("register_id = ? AND created_at >= ? AND created_at < ?", registerID, from, to).
		Order("sequence ASC").
		Find(&out).Error
	return out, err
}

func (s *SQLStore) SaveSummary(sum *DailySummary) error {
	return s.db.Create(sum).Error
}

func (s *SQLStore) SummaryByDate(registerID string, date time.Time) (*DailySummary, error) {
	from, to := dayBounds(date)
	var sum DailySummary
	err := s.db.
		Where("register_id = ? AND date >= ? AND date < ?", registerID, from, to).
		First(&sum).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &sum, nil
}

func (s *SQLStore) SummariesRange(registerID string, from, to time.Time) ([]DailySummary, error) {
	var out []DailySummary
	err := s.db.
		Where("register_id = ? AND date >= ? AND date < ?", registerID, from, to).
		Order("z_report_number ASC").
		Find(&out).Error
	return out, err
}
