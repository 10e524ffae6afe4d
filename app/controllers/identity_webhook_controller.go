package controllers

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/NovaForgeApp/NovaForge/app/repository"
	"github.com/NovaForgeApp/NovaForge/internal/pkg/billing"
	"github.com/NovaForgeApp/NovaForge/internal/pkg/constants"
	"github.com/NovaForgeApp/NovaForge/internal/pkg/env"
	"github.com/NovaForgeApp/NovaForge/internal/pkg/identity"
)

// HandleIdentityWebhook receives signed identity provider lifecycle events
// (user.created, user.updated, user.deleted). NotFound responses on update
// and delete signal ordering anomalies the upstream sender should redeliver.
func HandleIdentityWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	eventID := strings.TrimSpace(c.Get(constants.HeaderIdentityEventID))
	timestamp := strings.TrimSpace(c.Get(constants.HeaderIdentityTimestamp))
	signature := strings.TrimSpace(c.Get(constants.HeaderIdentitySignature))
	secret := env.GetEnv("IDENTITY_WEBHOOK_SECRET", "")

	svc := billing.NewIdentityService(
		repository.GetGlobalRepositories(),
		secret,
		starterBalanceFromEnv(),
	)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	outcome, err := svc.HandleEvent(ctx, rawBody, eventID, timestamp, signature)
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrInvalidSignature):
			log.Printf("identity webhook signature rejected from %s", c.IP())
			return jsonError(c, fiber.StatusUnauthorized, "invalid_signature", "Webhook signature verification failed")
		case errors.Is(err, identity.ErrMalformedEvent):
			return jsonError(c, fiber.StatusBadRequest, "invalid_payload", err.Error())
		case errors.Is(err, identity.ErrAccountNotFound):
			return jsonError(c, fiber.StatusNotFound, "account_not_found", "No account for this identity yet")
		default:
			log.Printf("identity webhook processing failed: %v", err)
			return jsonError(c, fiber.StatusInternalServerError, "webhook_processing_failed", "Internal error")
		}
	}

	switch outcome {
	case billing.OutcomeDuplicate:
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	case billing.OutcomeIgnored:
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
	default:
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
	}
}
