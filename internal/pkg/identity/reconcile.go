package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/NovaForgeApp/NovaForge/app/models"
	"github.com/NovaForgeApp/NovaForge/app/repository"
	"gorm.io/gorm"
)

// ErrAccountNotFound is returned when no local account matches the identity
// reference. Callers surface it as a retryable condition: the user.created
// webhook is expected to arrive, and the payment event will be redelivered.
var ErrAccountNotFound = errors.New("no account for identity reference")

// UserFetcher is the provider lookup used by the development lazy-create
// path. Satisfied by *Client.
type UserFetcher interface {
	GetUser(ctx context.Context, userID string) (*User, error)
}

// Reconciler resolves a payment event's subject identity to a local account.
//
// In production the identity-lifecycle webhook is the single source of truth
// for account creation, so resolution is a pure lookup. In development the
// reconciler may additionally ask the identity provider directly and lazily
// create the account, covering the window where a payment event beats the
// user.created webhook.
type Reconciler struct {
	accounts       repository.AccountRepository
	fetcher        UserFetcher
	starterBalance int64
	lazyCreate     bool
}

// NewReconciler wires a reconciler. fetcher may be nil when lazyCreate is
// false.
func NewReconciler(accounts repository.AccountRepository, fetcher UserFetcher, starterBalance int64, lazyCreate bool) *Reconciler {
	return &Reconciler{
		accounts:       accounts,
		fetcher:        fetcher,
		starterBalance: starterBalance,
		lazyCreate:     lazyCreate,
	}
}

// ResolveAccountForPayment maps an external identity reference to a local
// account, or reports ErrAccountNotFound so the upstream sender retries.
func (r *Reconciler) ResolveAccountForPayment(ctx context.Context, identityRef string) (*models.Account, error) {
	account, err := r.accounts.GetByIdentityID(identityRef)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if !r.lazyCreate || r.fetcher == nil {
		return nil, ErrAccountNotFound
	}

	user, err := r.fetcher.GetUser(ctx, identityRef)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("identity lookup failed: %w", err)
	}

	account = &models.Account{
		IdentityID: user.ID,
		Email:      user.Email,
		Name:       user.Name,
		AvatarURL:  user.AvatarURL,
	}
	if err := r.accounts.Create(account); err != nil {
		// Lost a race against the user.created webhook: fall back to lookup.
		if existing, lookupErr := r.accounts.GetByIdentityID(identityRef); lookupErr == nil {
			return existing, nil
		}
		return nil, err
	}

	if r.starterBalance > 0 {
		adjusted, err := r.accounts.AdjustBalance(account.ID, r.starterBalance, &models.CreditTransaction{
			Kind:   models.TransactionKindBonus,
			Amount: r.starterBalance,
		})
		if err != nil {
			return nil, err
		}
		account = adjusted
	}
	return account, nil
}
