package models

import (
	"time"

	"github.com/shopspring/decimal"
)

/************************************************
/**** MARK: LEDGER ENTRY TYPE ****/
/************************************************/
const LEDGER_TYPE_DEPOSIT = "deposit"
const LEDGER_TYPE_WITHDRAW = "withdraw"

// LedgerEntry is one oil-report line. Rows are append-only: a mistake is
// corrected with a compensating withdraw entry, never an update. The monthly
// balance is always recomputed from the matching rows, never stored.
type LedgerEntry struct {
	ID          int64           `gorm:"primary_key;AUTO_INCREMENT" json:"id"`
	Timestamp   *time.Time      `gorm:"index" json:"timestamp"`
	Branch      string          `gorm:"not null;index" json:"branch"`
	Amount      decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	Type        string          `gorm:"not null;default:'deposit'" json:"type"`
	ImageURL    string          `gorm:"default:''" json:"image_url"`
	StaffUserID string          `gorm:"not null;index" json:"staff_user_id"`
	MonthKey    string          `gorm:"not null;index" json:"month_key"` // yyyy-MM
	CreatedAt   *time.Time      `json:"created_at"`
}
