package repository

import (
	"time"

	"github.com/NovaForgeApp/NovaForge/app/models"
	"gorm.io/gorm"
)

type transactionRepository struct {
	db *gorm.DB
}

// NewTransactionRepository creates a ledger read repository backed by GORM.
func NewTransactionRepository(db *gorm.DB) TransactionRepository {
	return &transactionRepository{db: db}
}

func (r *transactionRepository) FindByExternalPaymentRef(ref string) (*models.CreditTransaction, error) {
	var txn models.CreditTransaction
	err := r.db.Where("external_payment_ref = ? AND external_payment_ref != ''", ref).First(&txn).Error
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *transactionRepository) FindRefundForGeneration(generationID string) (*models.CreditTransaction, error) {
	var txn models.CreditTransaction
	err := r.db.
		Where("kind = ? AND generation_id = ?", models.TransactionKindRefund, generationID).
		First(&txn).Error
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *transactionRepository) ListByAccount(accountID uint, offset, limit int) ([]models.CreditTransaction, error) {
	var txns []models.CreditTransaction
	err := r.db.
		Where("account_id = ?", accountID).
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&txns).Error
	return txns, err
}

func (r *transactionRepository) CountByAccount(accountID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.CreditTransaction{}).Where("account_id = ?", accountID).Count(&count).Error
	return count, err
}

// SumByAccount returns the signed sum of all entries for an account. Used by
// conservation checks: the sum must equal the stored balance at all times.
func (r *transactionRepository) SumByAccount(accountID uint) (int64, error) {
	var sum int64
	err := r.db.Model(&models.CreditTransaction{}).
		Where("account_id = ?", accountID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&sum).Error
	return sum, err
}

// FindUnrefundedUsages returns usage entries older than the cutoff that have
// neither a matching refund entry nor a recorded generation outcome. These
// are reservations abandoned by a crash between debit and compensation.
func (r *transactionRepository) FindUnrefundedUsages(olderThan time.Time) ([]models.CreditTransaction, error) {
	var txns []models.CreditTransaction
	refunds := r.db.Model(&models.CreditTransaction{}).
		Select("generation_id").
		Where("kind = ?", models.TransactionKindRefund)
	outcomes := r.db.Model(&models.Generation{}).Select("generation_id")

	err := r.db.
		Where("kind = ? AND created_at < ?", models.TransactionKindUsage, olderThan).
		Where("generation_id != ''").
		Where("generation_id NOT IN (?)", refunds).
		Where("generation_id NOT IN (?)", outcomes).
		Find(&txns).Error
	return txns, err
}
