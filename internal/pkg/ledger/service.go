package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/NovaForgeApp/NovaForge/app/models"
	"github.com/NovaForgeApp/NovaForge/app/repository"
	"gorm.io/gorm"
)

// Service is the single write path to account balances. Every mutation goes
// through AdjustBalance with an attached ledger entry, so the invariant
// "balance == sum of committed transaction amounts" holds at all times.
type Service struct {
	accounts     repository.AccountRepository
	transactions repository.TransactionRepository
}

// NewService wires a ledger service from injected repositories.
func NewService(accounts repository.AccountRepository, transactions repository.TransactionRepository) *Service {
	return &Service{accounts: accounts, transactions: transactions}
}

// NewServiceFromRepositories creates a ledger service from a repository bundle.
func NewServiceFromRepositories(repos *repository.Repositories) *Service {
	return NewService(repos.Account, repos.Transaction)
}

// Credit adds credits for a purchase or bonus. Purchases carry the external
// payment reference; a second credit for the same reference is rejected with
// ErrDuplicatePurchase as a secondary guard behind the webhook dedup claim.
func (s *Service) Credit(ctx context.Context, accountID uint, amount int64, kind, externalPaymentRef, packageID string) (*models.Account, error) {
	_ = ctx
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if kind != models.TransactionKindPurchase && kind != models.TransactionKindBonus {
		return nil, fmt.Errorf("credit kind must be purchase or bonus, got %q", kind)
	}

	if kind == models.TransactionKindPurchase && externalPaymentRef != "" {
		if _, err := s.transactions.FindByExternalPaymentRef(externalPaymentRef); err == nil {
			return nil, ErrDuplicatePurchase
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	account, err := s.accounts.AdjustBalance(accountID, amount, &models.CreditTransaction{
		Kind:               kind,
		Amount:             amount,
		ExternalPaymentRef: externalPaymentRef,
		PackageID:          packageID,
	})
	if err != nil {
		return nil, mapStoreError(err)
	}
	return account, nil
}

// Debit reserves credits for a generation. The conditional update in the
// store rejects any debit that would drive the balance negative, so
// concurrent reservations on one account cannot overdraw it.
func (s *Service) Debit(ctx context.Context, accountID uint, amount int64, generationID string) (*models.Account, error) {
	_ = ctx
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	account, err := s.accounts.AdjustBalance(accountID, -amount, &models.CreditTransaction{
		Kind:         models.TransactionKindUsage,
		Amount:       -amount,
		GenerationID: generationID,
	})
	if err != nil {
		return nil, mapStoreError(err)
	}
	return account, nil
}

// Refund compensates a failed generation at most once per generation id.
// The authoritative guard lives inside the balance adjustment transaction;
// the lookup here only short-circuits the common retry without opening one.
func (s *Service) Refund(ctx context.Context, accountID uint, amount int64, generationID string) (*models.Account, error) {
	_ = ctx
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	if _, err := s.transactions.FindRefundForGeneration(generationID); err == nil {
		// Already refunded: a no-op, not an error.
		return s.getAccount(accountID)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	account, err := s.accounts.AdjustBalance(accountID, amount, &models.CreditTransaction{
		Kind:         models.TransactionKindRefund,
		Amount:       amount,
		GenerationID: generationID,
	})
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyRefunded) {
			// Lost the race to a concurrent compensation; same no-op.
			return s.getAccount(accountID)
		}
		return nil, mapStoreError(err)
	}
	return account, nil
}

// Balance returns the current credit balance for an account.
func (s *Service) Balance(ctx context.Context, accountID uint) (int64, error) {
	_ = ctx
	account, err := s.getAccount(accountID)
	if err != nil {
		return 0, err
	}
	return account.Balance, nil
}

// History returns a page of ledger entries, newest first.
func (s *Service) History(ctx context.Context, accountID uint, offset, limit int) ([]models.CreditTransaction, int64, error) {
	_ = ctx
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	txns, err := s.transactions.ListByAccount(accountID, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.transactions.CountByAccount(accountID)
	if err != nil {
		return nil, 0, err
	}
	return txns, total, nil
}

func (s *Service) getAccount(accountID uint) (*models.Account, error) {
	account, err := s.accounts.GetByID(accountID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return account, nil
}

func mapStoreError(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrAccountNotFound
	case errors.Is(err, repository.ErrInsufficientBalance):
		return ErrInsufficientCredits
	default:
		return err
	}
}
