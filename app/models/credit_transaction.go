package models

import "time"

// Transaction kinds. Purchases and bonuses are positive, usage is negative,
// refunds reverse a specific usage entry.
const (
	TransactionKindPurchase = "purchase"
	TransactionKindUsage    = "usage"
	TransactionKindBonus    = "bonus"
	TransactionKindRefund   = "refund"
)

// CreditTransaction is an immutable ledger entry. Rows are never updated or
// deleted; corrections are issued as new offsetting entries (a refund never
// edits the usage row it reverses).
type CreditTransaction struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	AccountID          uint      `gorm:"not null;index" json:"account_id"`
	Kind               string    `gorm:"type:varchar(20);not null;index" json:"kind"`
	Amount             int64     `gorm:"not null" json:"amount"`
	ExternalPaymentRef string    `gorm:"type:varchar(191);default:'';index" json:"external_payment_ref,omitempty"`
	GenerationID       string    `gorm:"type:varchar(64);default:'';index" json:"generation_id,omitempty"`
	PackageID          string    `gorm:"type:varchar(50);default:''" json:"package_id,omitempty"`
	CreatedAt          time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// IsDebit reports whether the entry removed credits from the account.
func (t *CreditTransaction) IsDebit() bool {
	return t.Amount < 0
}
