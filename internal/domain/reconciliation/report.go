package reconciliation

import (
	"time"

	"github.com/shopspring/decimal"
)

// CheckName identifies one reconciliation comparison
type CheckName string

const (
	CheckWalletBalance   CheckName = "WALLET_BALANCE"
	CheckDepositLinkage  CheckName = "DEPOSIT_LINKAGE"
	CheckGlobalZeroSum   CheckName = "GLOBAL_ZERO_SUM"
	CheckNodeBalance     CheckName = "NODE_BALANCE"
	CheckAddressReceived CheckName = "ADDRESS_RECEIVED"
)

// AllChecks lists every check, in the order they run
var AllChecks = []CheckName{
	CheckWalletBalance,
	CheckDepositLinkage,
	CheckGlobalZeroSum,
	CheckNodeBalance,
	CheckAddressReceived,
}

// Discrepancy is one nonzero difference between an expected and an actual
// aggregate. Amounts are stored as strings so the document store keeps all
// eight fraction digits.
type Discrepancy struct {
	Check     CheckName `json:"check" bson:"check"`
	WalletID  string    `json:"wallet_id,omitempty" bson:"wallet_id,omitempty"`
	Address   string    `json:"address,omitempty" bson:"address,omitempty"`
	Expected  string    `json:"expected" bson:"expected"`
	Actual    string    `json:"actual" bson:"actual"`
	Corrected bool      `json:"corrected" bson:"corrected"`
}

// NewDiscrepancy records expected vs actual for a check
func NewDiscrepancy(check CheckName, expected, actual decimal.Decimal) Discrepancy {
	return Discrepancy{Check: check, Expected: expected.String(), Actual: actual.String()}
}

// Difference returns actual - expected
func (d Discrepancy) Difference() decimal.Decimal {
	expected, _ := decimal.NewFromString(d.Expected)
	actual, _ := decimal.NewFromString(d.Actual)
	return actual.Sub(expected)
}

// Report is the outcome of one reconciliation run
type Report struct {
	ID              string        `json:"id" bson:"_id"`
	StartedAt       time.Time     `json:"started_at" bson:"started_at"`
	FinishedAt      time.Time     `json:"finished_at" bson:"finished_at"`
	WalletsChecked  int           `json:"wallets_checked" bson:"wallets_checked"`
	CachesCorrected int           `json:"caches_corrected" bson:"caches_corrected"`
	Discrepancies   []Discrepancy `json:"discrepancies" bson:"discrepancies"`
	SkippedChecks   []CheckName   `json:"skipped_checks,omitempty" bson:"skipped_checks,omitempty"`
}

// Clean reports whether the run found no discrepancy
func (r *Report) Clean() bool {
	return len(r.Discrepancies) == 0
}

// Count returns the number of discrepancies found by check
func (r *Report) Count(check CheckName) int {
	n := 0
	for _, d := range r.Discrepancies {
		if d.Check == check {
			n++
		}
	}
	return n
}
