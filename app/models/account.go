package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	ACCOUNT_STATUS_ACTIVE  = "active"
	ACCOUNT_STATUS_DELETED = "deleted"
)

// Account is one paying end-user of the generation API. The balance column
// is only ever touched through repository.AccountRepository.AdjustBalance,
// which pairs the atomic SQL update with a CreditTransaction insert.
type Account struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	IdentityID string    `gorm:"uniqueIndex;type:varchar(191);not null" json:"identity_id" validate:"required"`
	Email      string    `gorm:"type:varchar(200);not null" json:"email" validate:"required,email,min=5,max=200"`
	Name       string    `gorm:"type:varchar(150);default:''" json:"name" validate:"max=150"`
	AvatarURL  string    `gorm:"type:varchar(255);default:''" json:"avatar_url" validate:"max=255"`
	Balance    int64     `gorm:"not null;default:0;check:balance >= 0" json:"balance"`
	APIKeyHash string    `gorm:"type:varchar(64);index" json:"-"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (a *Account) Validate() error {
	v := validator.New()

	return v.Struct(a)
}

// HashAPIKey returns the hex-encoded SHA-256 digest used to look up
// accounts by API key without storing the key itself.
func HashAPIKey(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:])
}
