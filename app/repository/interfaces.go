package repository

import (
	"time"

	"github.com/NovaForgeApp/NovaForge/app/models"
)

// IdentityFields is a partial profile patch applied on identity update
// events. Nil members are left untouched.
type IdentityFields struct {
	Email     *string
	Name      *string
	AvatarURL *string
}

// AccountRepository defines account persistence. AdjustBalance is the sole
// balance mutation path: it applies the delta as a single conditional SQL
// update and records the attached ledger entry in the same unit, so
// concurrent adjustments to one account serialize at the row instead of
// racing through read-then-write.
type AccountRepository interface {
	Create(account *models.Account) error
	GetByID(id uint) (*models.Account, error)
	GetByIdentityID(identityID string) (*models.Account, error)
	GetByAPIKeyHash(hash string) (*models.Account, error)
	UpdateIdentity(identityID string, fields IdentityFields) (*models.Account, error)
	DeleteByIdentityID(identityID string) error
	AdjustBalance(accountID uint, delta int64, txn *models.CreditTransaction) (*models.Account, error)
}

// TransactionRepository defines read access to the append-only ledger.
// There is deliberately no update or delete operation.
type TransactionRepository interface {
	FindByExternalPaymentRef(ref string) (*models.CreditTransaction, error)
	FindRefundForGeneration(generationID string) (*models.CreditTransaction, error)
	ListByAccount(accountID uint, offset, limit int) ([]models.CreditTransaction, error)
	CountByAccount(accountID uint) (int64, error)
	SumByAccount(accountID uint) (int64, error)
	FindUnrefundedUsages(olderThan time.Time) ([]models.CreditTransaction, error)
}

// WebhookEventRepository defines the dedup store for externally delivered
// events. TryClaim must be a single insert-if-absent statement.
type WebhookEventRepository interface {
	TryClaim(event *models.WebhookEvent) (bool, *models.WebhookEvent, error)
	MarkProcessed(id uint, processingError string) error
	PruneOlderThan(cutoff time.Time) (int64, error)
}

// GenerationRepository records generation outcomes for the reconcile sweep.
type GenerationRepository interface {
	Create(generation *models.Generation) error
	GetByGenerationID(generationID string) (*models.Generation, error)
}
