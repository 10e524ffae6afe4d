package controllers

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/NovaForgeApp/NovaForge/app/repository"
	"github.com/NovaForgeApp/NovaForge/internal/pkg/generation"
	"github.com/NovaForgeApp/NovaForge/internal/pkg/ledger"
	"github.com/NovaForgeApp/NovaForge/internal/pkg/middleware"
	"github.com/NovaForgeApp/NovaForge/internal/pkg/ratelimit"
)

// HandleGenerate runs one generation request on the synchronous reservation
// path. Credits are debited before the provider call and refunded on any
// non-success, so the caller never sees a failure that also kept credits.
func HandleGenerate(c *fiber.Ctx) error {
	account := middleware.AccountFromContext(c)
	if account == nil {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Missing account context")
	}

	var req generation.Request
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "Request body must be JSON with prompt and tier")
	}
	if err := validator.New().Struct(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", err.Error())
	}

	repos := repository.GetGlobalRepositories()
	orchestrator := generation.NewOrchestrator(
		ledger.NewServiceFromRepositories(repos),
		repos.Generation,
		ratelimit.NewLimiterFromEnv(),
		generation.NewClientFromEnv(),
		generation.ProviderTimeoutFromEnv(),
	)

	// Generous outer bound; the provider call carries its own timeout.
	ctx, cancel := context.WithTimeout(context.Background(), generation.ProviderTimeoutFromEnv()+30*time.Second)
	defer cancel()

	result, err := orchestrator.Generate(ctx, account, req)
	if err != nil {
		switch {
		case errors.Is(err, generation.ErrMalformedRequest):
			return jsonError(c, fiber.StatusBadRequest, "invalid_request", err.Error())
		case errors.Is(err, generation.ErrRateLimited):
			return jsonError(c, fiber.StatusTooManyRequests, "rate_limited", err.Error())
		case errors.Is(err, ledger.ErrInsufficientCredits):
			return jsonError(c, fiber.StatusPaymentRequired, "insufficient_credits", "Not enough credits for this tier")
		case errors.Is(err, generation.ErrProviderFailure):
			return jsonError(c, fiber.StatusBadGateway, "provider_failure", "Generation failed; reserved credits were refunded")
		default:
			log.Printf("generation failed for account %d: %v", account.ID, err)
			return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Internal error")
		}
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"generation_id": result.GenerationID,
		"outputs":       result.Outputs,
		"credits_spent": result.CreditsSpent,
		"balance":       result.Account.Balance,
	})
}
