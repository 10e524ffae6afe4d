package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/NovaForgeApp/NovaForge/app/models"
	"github.com/NovaForgeApp/NovaForge/app/repository"
	"github.com/NovaForgeApp/NovaForge/internal/pkg/identity"
	"github.com/NovaForgeApp/NovaForge/internal/pkg/ledger"
	"github.com/NovaForgeApp/NovaForge/internal/pkg/payments"
)

// PaymentService consumes payment processor webhooks and credits purchases.
//
// The dedup claim and the balance credit run in one database transaction.
// When the subject account cannot be resolved yet the whole unit rolls back,
// so the upstream redelivery finds an unclaimed event and can succeed once
// the user.created webhook has landed.
type PaymentService struct {
	repos          *repository.Repositories
	fetcher        identity.UserFetcher
	secret         string
	starterBalance int64
	lazyCreate     bool
}

// NewPaymentService wires a payment webhook service. fetcher may be nil
// unless lazyCreate (development mode) is set.
func NewPaymentService(repos *repository.Repositories, fetcher identity.UserFetcher, secret string, starterBalance int64, lazyCreate bool) *PaymentService {
	return &PaymentService{
		repos:          repos,
		fetcher:        fetcher,
		secret:         secret,
		starterBalance: starterBalance,
		lazyCreate:     lazyCreate,
	}
}

// HandleEvent runs the payment webhook state machine for one delivery.
// Error returns map to the taxonomy: ErrInvalidSignature (401),
// payments.ErrMalformedEvent (400), identity.ErrAccountNotFound (404,
// upstream retries). Anything else is internal (500).
func (s *PaymentService) HandleEvent(ctx context.Context, payload []byte, signatureHeader string) (Outcome, error) {
	if !payments.VerifySignature(payload, signatureHeader, s.secret) {
		return OutcomeIgnored, ErrInvalidSignature
	}

	event, err := payments.ParseEvent(payload)
	if err != nil {
		if errors.Is(err, payments.ErrMalformedEvent) || errors.Is(err, payments.ErrUnknownEventType) {
			s.recordRejected(payload, err)
			return OutcomeIgnored, fmt.Errorf("%w: %v", payments.ErrMalformedEvent, err)
		}
		return OutcomeIgnored, err
	}

	checkout, ok := event.(*payments.CheckoutCompletedEvent)
	if !ok || !checkout.Paid() {
		return s.acknowledge(payload, event)
	}

	pkg, err := payments.LookupPackage(checkout.PackageID)
	if err != nil {
		s.recordRejected(payload, err)
		return OutcomeIgnored, fmt.Errorf("%w: %v", payments.ErrMalformedEvent, err)
	}

	outcome := OutcomeProcessed
	err = s.repos.WithTx(func(tx *repository.Repositories) error {
		claimed, stored, err := tx.WebhookEvent.TryClaim(&models.WebhookEvent{
			Source:         models.WebhookSourcePayment,
			EventID:        checkout.EventID(),
			EventType:      checkout.EventType(),
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

		reconciler := identity.NewReconciler(tx.Account, s.fetcher, s.starterBalance, s.lazyCreate)
		account, err := reconciler.ResolveAccountForPayment(ctx, checkout.IdentityRef)
		if err != nil {
			// Rolls back the claim so the redelivered event gets a clean try.
			return err
		}

		ledgerSvc := ledger.NewServiceFromRepositories(tx)
		if _, err := ledgerSvc.Credit(ctx, account.ID, pkg.Credits, models.TransactionKindPurchase, checkout.EventID(), pkg.ID); err != nil {
			if errors.Is(err, ledger.ErrDuplicatePurchase) {
				// Claim survived an earlier crash after the credit landed.
				outcome = OutcomeDuplicate
				return tx.WebhookEvent.MarkProcessed(stored.ID, "")
			}
			return err
		}
		return tx.WebhookEvent.MarkProcessed(stored.ID, "")
	})
	if err != nil {
		return OutcomeIgnored, err
	}
	return outcome, nil
}

// acknowledge claims and marks a recognized-but-actionless event so
// redeliveries short-circuit.
func (s *PaymentService) acknowledge(payload []byte, event payments.Event) (Outcome, error) {
	claimed, stored, err := s.repos.WebhookEvent.TryClaim(&models.WebhookEvent{
		Source:         models.WebhookSourcePayment,
		EventID:        event.EventID(),
		EventType:      event.EventType(),
		PayloadJSON:    string(payload),
		SignatureValid: true,
	})
	if err != nil {
		return OutcomeIgnored, err
	}
	if !claimed {
		return OutcomeDuplicate, nil
	}
	if err := s.repos.WebhookEvent.MarkProcessed(stored.ID, ""); err != nil {
		return OutcomeIgnored, err
	}
	return OutcomeIgnored, nil
}

// recordRejected stores permanently rejected payloads for operator
// visibility. Best effort; the 400 response stands either way.
func (s *PaymentService) recordRejected(payload []byte, cause error) {
	_, stored, err := s.repos.WebhookEvent.TryClaim(&models.WebhookEvent{
		Source:         models.WebhookSourcePayment,
		EventID:        payloadHash(payload),
		EventType:      "rejected",
		PayloadJSON:    string(payload),
		SignatureValid: true,
	})
	if err != nil || stored == nil {
		return
	}
	_ = s.repos.WebhookEvent.MarkProcessed(stored.ID, cause.Error())
}

// payloadHash derives a stable event id for payloads that arrived without a
// usable one.
func payloadHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return "hash:" + hex.EncodeToString(sum[:])
}
