package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/NovaForgeApp/NovaForge/app/models"
	"github.com/NovaForgeApp/NovaForge/app/repository"
	"github.com/NovaForgeApp/NovaForge/internal/pkg/identity"
	"github.com/NovaForgeApp/NovaForge/internal/pkg/ledger"
	"gorm.io/gorm"
)

// IdentityService consumes identity provider lifecycle webhooks and keeps
// the account store's identity mapping current.
type IdentityService struct {
	repos          *repository.Repositories
	secret         string
	starterBalance int64
}

// NewIdentityService wires an identity webhook service.
func NewIdentityService(repos *repository.Repositories, secret string, starterBalance int64) *IdentityService {
	return &IdentityService{
		repos:          repos,
		secret:         secret,
		starterBalance: starterBalance,
	}
}

// HandleEvent runs the identity webhook state machine for one delivery.
// Error returns map to the taxonomy: ErrInvalidSignature (401),
// identity.ErrMalformedEvent (400), identity.ErrAccountNotFound (404,
// upstream retries, surfaced for update/delete ordering anomalies).
func (s *IdentityService) HandleEvent(ctx context.Context, payload []byte, eventID, timestamp, signatureHeader string) (Outcome, error) {
	if !identity.VerifySignature(payload, eventID, timestamp, signatureHeader, s.secret) {
		return OutcomeIgnored, ErrInvalidSignature
	}

	event, err := identity.ParseEvent(payload)
	if err != nil {
		if errors.Is(err, identity.ErrMalformedEvent) || errors.Is(err, identity.ErrUnknownEventType) {
			return OutcomeIgnored, fmt.Errorf("%w: %v", identity.ErrMalformedEvent, err)
		}
		return OutcomeIgnored, err
	}

	outcome := OutcomeProcessed
	err = s.repos.WithTx(func(tx *repository.Repositories) error {
		claimed, stored, err := tx.WebhookEvent.TryClaim(&models.WebhookEvent{
			Source:         models.WebhookSourceIdentity,
			EventID:        eventID,
			EventType:      event.EventType(),
			PayloadJSON:    string(payload),
			SignatureValid: true,
		})
		if err != nil {
			return err
		}
		if !claimed {
			outcome = OutcomeDuplicate
			return nil
		}

		switch e := event.(type) {
		case *identity.UserCreatedEvent:
			outcome, err = s.applyCreate(ctx, tx, e)
		case *identity.UserUpdatedEvent:
			err = s.applyUpdate(tx, e)
		case *identity.UserDeletedEvent:
			err = s.applyDelete(tx, e)
		default:
			err = fmt.Errorf("%w: %T", identity.ErrUnknownEventType, event)
		}
		if err != nil {
			// Roll back the claim: NotFound deliveries must stay retryable.
			return err
		}
		return tx.WebhookEvent.MarkProcessed(stored.ID, "")
	})
	if err != nil {
		return OutcomeIgnored, err
	}
	return outcome, nil
}

// applyCreate provisions the account with the configured starter balance,
// granted as a bonus ledger entry. An already-existing identity id is a
// redelivery or ordering skew and succeeds as a no-op.
func (s *IdentityService) applyCreate(ctx context.Context, tx *repository.Repositories, event *identity.UserCreatedEvent) (Outcome, error) {
	if _, err := tx.Account.GetByIdentityID(event.ID); err == nil {
		return OutcomeIgnored, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return OutcomeIgnored, err
	}

	account := &models.Account{
		IdentityID: event.ID,
		Email:      event.Email,
		Name:       event.Name,
		AvatarURL:  event.AvatarURL,
	}
	if err := account.Validate(); err != nil {
		return OutcomeIgnored, fmt.Errorf("%w: %v", identity.ErrMalformedEvent, err)
	}
	if err := tx.Account.Create(account); err != nil {
		return OutcomeIgnored, err
	}

	if s.starterBalance > 0 {
		ledgerSvc := ledger.NewServiceFromRepositories(tx)
		if _, err := ledgerSvc.Credit(ctx, account.ID, s.starterBalance, models.TransactionKindBonus, "", ""); err != nil {
			return OutcomeIgnored, err
		}
	}
	return OutcomeProcessed, nil
}

func (s *IdentityService) applyUpdate(tx *repository.Repositories, event *identity.UserUpdatedEvent) error {
	_, err := tx.Account.UpdateIdentity(event.ID, repository.IdentityFields{
		Email:     event.Email,
		Name:      event.Name,
		AvatarURL: event.AvatarURL,
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return identity.ErrAccountNotFound
	}
	return err
}

func (s *IdentityService) applyDelete(tx *repository.Repositories, event *identity.UserDeletedEvent) error {
	err := tx.Account.DeleteByIdentityID(event.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Surfaced, not swallowed, so operators can see ordering anomalies.
		return identity.ErrAccountNotFound
	}
	return err
}
