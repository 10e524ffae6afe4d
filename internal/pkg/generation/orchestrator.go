package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/NovaForgeApp/NovaForge/app/models"
	"github.com/NovaForgeApp/NovaForge/app/repository"
	"github.com/NovaForgeApp/NovaForge/internal/pkg/ledger"
	"github.com/NovaForgeApp/NovaForge/internal/pkg/ratelimit"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
)

var (
	// ErrRateLimited is returned before any balance or ledger effect.
	ErrRateLimited = errors.New("generation rate limit exceeded")

	// ErrMalformedRequest marks requests that fail validation.
	ErrMalformedRequest = errors.New("malformed generation request")

	// ErrProviderFailure is surfaced only after compensation has been
	// issued, so the caller never observes a failed generation that also
	// kept their credits.
	ErrProviderFailure = errors.New("generation provider failure")
)

// RateLimiter gates how many generations an account may start per window.
type RateLimiter interface {
	Check(ctx context.Context, accountID uint, tier string) (ratelimit.Result, error)
}

// Result is a finished generation returned to the caller.
type Result struct {
	GenerationID string          `json:"generation_id"`
	Outputs      []Output        `json:"outputs"`
	CreditsSpent int64           `json:"credits_spent"`
	Account      *models.Account `json:"-"`
}

// Orchestrator runs the synchronous reservation path: debit first, call the
// provider, refund on any non-success. Reserve-then-compensate keeps the
// ledger at a conservative balance while the provider call is in flight, so
// a slow call cannot be used to overdraw with concurrent requests.
type Orchestrator struct {
	ledger          *ledger.Service
	generations     repository.GenerationRepository
	limiter         RateLimiter
	provider        Provider
	providerTimeout time.Duration
}

// NewOrchestrator wires the reservation orchestrator.
func NewOrchestrator(ledgerSvc *ledger.Service, generations repository.GenerationRepository, limiter RateLimiter, provider Provider, providerTimeout time.Duration) *Orchestrator {
	if providerTimeout <= 0 {
		providerTimeout = 60 * time.Second
	}
	return &Orchestrator{
		ledger:          ledgerSvc,
		generations:     generations,
		limiter:         limiter,
		provider:        provider,
		providerTimeout: providerTimeout,
	}
}

// Generate executes one generation request for the given account.
func (o *Orchestrator) Generate(ctx context.Context, account *models.Account, req Request) (*Result, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("%w: prompt is required", ErrMalformedRequest)
	}
	cost, err := CostForTier(req.Tier)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}

	limit, err := o.limiter.Check(ctx, account.ID, req.Tier)
	if err != nil {
		return nil, err
	}
	if !limit.Allowed {
		return nil, fmt.Errorf("%w: retry after %s", ErrRateLimited, time.Until(limit.ResetAt).Round(time.Second))
	}

	// Cheap precheck; the authoritative guard is the conditional debit.
	balance, err := o.ledger.Balance(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	if balance < cost {
		return nil, ledger.ErrInsufficientCredits
	}

	generationID := uuid.NewString()
	debited, err := o.ledger.Debit(ctx, account.ID, cost, generationID)
	if err != nil {
		return nil, err
	}

	providerCtx, cancel := context.WithTimeout(ctx, o.providerTimeout)
	defer cancel()

	outputs, providerErr := o.provider.Generate(providerCtx, generationID, req)
	if providerErr == nil && len(outputs) > 0 {
		if err := o.generations.Create(&models.Generation{
			GenerationID: generationID,
			AccountID:    account.ID,
			Tier:         req.Tier,
			Status:       models.GenerationStatusSucceeded,
			OutputCount:  len(outputs),
		}); err != nil {
			log.Errorf("failed to record generation outcome %s: %v", generationID, err)
		}
		return &Result{
			GenerationID: generationID,
			Outputs:      outputs,
			CreditsSpent: cost,
			Account:      debited,
		}, nil
	}

	// Provider failure, timeout, or zero usable outputs: compensate before
	// surfacing anything to the caller.
	if _, refundErr := o.ledger.Refund(ctx, account.ID, cost, generationID); refundErr != nil {
		// The reconcile sweep picks this reservation up after the SLA window.
		log.Errorf("refund for generation %s failed: %v (provider error: %v)", generationID, refundErr, providerErr)
		return nil, fmt.Errorf("%w: compensation pending", ErrProviderFailure)
	}

	if err := o.generations.Create(&models.Generation{
		GenerationID: generationID,
		AccountID:    account.ID,
		Tier:         req.Tier,
		Status:       models.GenerationStatusFailed,
	}); err != nil {
		log.Errorf("failed to record generation outcome %s: %v", generationID, err)
	}

	if providerErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderFailure, providerErr)
	}
	return nil, fmt.Errorf("%w: provider returned no usable outputs", ErrProviderFailure)
}
