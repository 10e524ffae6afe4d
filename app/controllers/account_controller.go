package controllers

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/NovaForgeApp/NovaForge/app/repository"
	"github.com/NovaForgeApp/NovaForge/internal/pkg/ledger"
	"github.com/NovaForgeApp/NovaForge/internal/pkg/middleware"
)

// HandleGetAccount returns the authenticated account's balance and identity
// snapshot.
func HandleGetAccount(c *fiber.Ctx) error {
	account := middleware.AccountFromContext(c)
	if account == nil {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Missing account context")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"id":          account.ID,
		"identity_id": account.IdentityID,
		"email":       account.Email,
		"name":        account.Name,
		"balance":     account.Balance,
		"created_at":  formatTimePtr(&account.CreatedAt),
		"updated_at":  formatTimePtr(&account.UpdatedAt),
	})
}

// HandleListTransactions returns a page of the account's ledger history,
// newest first.
func HandleListTransactions(c *fiber.Ctx) error {
	account := middleware.AccountFromContext(c)
	if account == nil {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Missing account context")
	}

	offset, _ := strconv.Atoi(c.Query("offset", "0"))
	limit, _ := strconv.Atoi(c.Query("limit", "50"))

	repos := repository.GetGlobalRepositories()
	svc := ledger.NewServiceFromRepositories(repos)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	txns, total, err := svc.History(ctx, account.ID, offset, limit)
	if err != nil {
		log.Printf("transaction history failed for account %d: %v", account.ID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Internal error")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"transactions": txns,
		"total":        total,
		"offset":       offset,
		"limit":        limit,
	})
}
