package repository

import (
	"errors"
	"fmt"

	"github.com/NovaForgeApp/NovaForge/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrInsufficientBalance is returned when a usage debit would drive the
// balance below zero. Credits (purchase, bonus, refund) are never rejected
// on balance grounds.
var ErrInsufficientBalance = errors.New("insufficient balance")

// ErrAlreadyRefunded is returned when a refund adjustment finds that its
// generation id already carries a refund entry. The check runs inside the
// adjustment transaction, so concurrent refunds for one generation id
// resolve to exactly one inserted entry.
var ErrAlreadyRefunded = errors.New("generation already refunded")

type accountRepository struct {
	db *gorm.DB
}

// NewAccountRepository creates an account repository backed by GORM.
func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{db: db}
}

func (r *accountRepository) Create(account *models.Account) error {
	return r.db.Create(account).Error
}

func (r *accountRepository) GetByID(id uint) (*models.Account, error) {
	var account models.Account
	if err := r.db.First(&account, id).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) GetByIdentityID(identityID string) (*models.Account, error) {
	var account models.Account
	if err := r.db.Where("identity_id = ?", identityID).First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) GetByAPIKeyHash(hash string) (*models.Account, error) {
	var account models.Account
	if err := r.db.Where("api_key_hash = ? AND api_key_hash != ''", hash).First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) UpdateIdentity(identityID string, fields IdentityFields) (*models.Account, error) {
	updates := map[string]interface{}{}
	if fields.Email != nil {
		updates["email"] = *fields.Email
	}
	if fields.Name != nil {
		updates["name"] = *fields.Name
	}
	if fields.AvatarURL != nil {
		updates["avatar_url"] = *fields.AvatarURL
	}

	if len(updates) > 0 {
		tx := r.db.Model(&models.Account{}).Where("identity_id = ?", identityID).Updates(updates)
		if tx.Error != nil {
			return nil, tx.Error
		}
		if tx.RowsAffected == 0 {
			return nil, gorm.ErrRecordNotFound
		}
	}
	return r.GetByIdentityID(identityID)
}

func (r *accountRepository) DeleteByIdentityID(identityID string) error {
	tx := r.db.Where("identity_id = ?", identityID).Delete(&models.Account{})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// AdjustBalance applies delta and records txn as a single unit. The balance
// update is one conditional UPDATE so two concurrent generations, or a
// refund racing a new reservation, cannot lose an update. Usage debits carry
// the non-negative guard in the WHERE clause; zero rows affected then means
// either a missing account or an insufficient balance, disambiguated by a
// follow-up lookup.
func (r *accountRepository) AdjustBalance(accountID uint, delta int64, txn *models.CreditTransaction) (*models.Account, error) {
	if txn == nil {
		return nil, errors.New("balance adjustment requires a ledger entry")
	}
	if txn.Amount != delta {
		return nil, fmt.Errorf("ledger entry amount %d does not match delta %d", txn.Amount, delta)
	}
	txn.AccountID = accountID

	var account models.Account
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if txn.Kind == models.TransactionKindRefund && txn.GenerationID != "" {
			if err := claimRefund(tx, txn.GenerationID); err != nil {
				return err
			}
		}

		query := tx.Model(&models.Account{}).Where("id = ?", accountID)
		if txn.Kind == models.TransactionKindUsage {
			query = query.Where("balance + ? >= 0", delta)
		}
		res := query.Update("balance", gorm.Expr("balance + ?", delta))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var exists int64
			if err := tx.Model(&models.Account{}).Where("id = ?", accountID).Count(&exists).Error; err != nil {
				return err
			}
			if exists == 0 {
				return gorm.ErrRecordNotFound
			}
			return ErrInsufficientBalance
		}
		if err := tx.Create(txn).Error; err != nil {
			return err
		}
		return tx.First(&account, accountID).Error
	})
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// claimRefund serializes concurrent refunds for one generation id. Locking
// the usage row makes competing transactions queue here; whichever commits
// first leaves a refund entry the loser then sees and aborts on.
func claimRefund(tx *gorm.DB, generationID string) error {
	var usage models.CreditTransaction
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("kind = ? AND generation_id = ?", models.TransactionKindUsage, generationID).
		First(&usage).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	var refunds int64
	if err := tx.Model(&models.CreditTransaction{}).
		Where("kind = ? AND generation_id = ?", models.TransactionKindRefund, generationID).
		Count(&refunds).Error; err != nil {
		return err
	}
	if refunds > 0 {
		return ErrAlreadyRefunded
	}
	return nil
}
