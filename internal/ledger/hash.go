package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// hashVersion prefixes every digest input. The hashed field set is part of
// the compliance audit format; changing it requires a new version.
const hashVersion = "v1"

// registerHash digests the register's canonical state: a fixed, ordered
// concatenation of identity and cumulative fields, decimals at two places.
func registerHash(r *Register) string {
	parts := []string{
		hashVersion,
		r.ID,
		r.FiscalDeviceID,
		r.CumulativeRevenue.StringFixed(2),
		r.CumulativeTax.StringFixed(2),
		strconv.FormatInt(r.TotalReceiptCount, 10),
		r.LastReceiptNumber,
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// summaryHash digests a Z-report's own canonical state.
func summaryHash(s *DailySummary) string {
	parts := []string{
		hashVersion,
		s.ID,
		s.RegisterID,
		s.Date.Format("2006-01-02"),
		strconv.Itoa(s.ZReportNumber),
		s.OpeningBalance.StringFixed(2),
		s.ClosingBalance.StringFixed(2),
		s.DailySales.StringFixed(2),
		s.DailyTax.StringFixed(2),
		s.DailyRefunds.StringFixed(2),
		strconv.Itoa(s.ReceiptCount),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
