package controllers

import (
	"context"
	"errors"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/NovaForgeApp/NovaForge/app/repository"
	"github.com/NovaForgeApp/NovaForge/internal/pkg/billing"
	"github.com/NovaForgeApp/NovaForge/internal/pkg/constants"
	"github.com/NovaForgeApp/NovaForge/internal/pkg/env"
	"github.com/NovaForgeApp/NovaForge/internal/pkg/identity"
	"github.com/NovaForgeApp/NovaForge/internal/pkg/payments"
)

// HandlePaymentWebhook receives signed payment processor events. The
// response status drives the upstream retry behavior: 200 means processed or
// already processed, 400 means never retry, 404 means retry later (account
// not provisioned yet), 401 means the signature failed.
func HandlePaymentWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get(constants.HeaderPaymentSignature))
	secret := env.GetEnv("PAYMENT_WEBHOOK_SECRET", "")

	svc := billing.NewPaymentService(
		repository.GetGlobalRepositories(),
		identity.NewClientFromEnv(),
		secret,
		starterBalanceFromEnv(),
		env.IsDev(),
	)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	outcome, err := svc.HandleEvent(ctx, rawBody, signature)
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrInvalidSignature):
			log.Printf("payment webhook signature rejected from %s", c.IP())
			return jsonError(c, fiber.StatusUnauthorized, "invalid_signature", "Webhook signature verification failed")
		case errors.Is(err, payments.ErrMalformedEvent):
			return jsonError(c, fiber.StatusBadRequest, "invalid_payload", err.Error())
		case errors.Is(err, identity.ErrAccountNotFound):
			// Deliberate: the purchase is worth retrying until the
			// user.created webhook has provisioned the account.
			return jsonError(c, fiber.StatusNotFound, "account_not_found", "Subject account not provisioned yet")
		default:
			log.Printf("payment webhook processing failed: %v", err)
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

func starterBalanceFromEnv() int64 {
	starter, err := strconv.ParseInt(env.GetEnv("STARTER_BALANCE", "5"), 10, 64)
	if err != nil || starter < 0 {
		return 5
	}
	return starter
}
