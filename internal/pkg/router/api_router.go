package router

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	redisstorage "github.com/gofiber/storage/redis"

	"github.com/NovaForgeApp/NovaForge/app/controllers"
	"github.com/NovaForgeApp/NovaForge/internal/pkg/constants"
	"github.com/NovaForgeApp/NovaForge/internal/pkg/env"
	"github.com/NovaForgeApp/NovaForge/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	// Coarse IP-scoped limiter over the whole API surface. The per-account
	// generation limiter in internal/pkg/ratelimit is enforced separately.
	api := app.Group(constants.APIRoot, limiter.New(limiter.Config{
		Max:        300,
		Expiration: time.Minute,
		Storage:    newLimiterStorage(),
	}))

	// Webhook endpoints authenticate by signature, not API key.
	api.Post(constants.PaymentWebhookPath, controllers.HandlePaymentWebhook)
	api.Post(constants.IdentityWebhookPath, controllers.HandleIdentityWebhook)

	authed := api.Use(middleware.APIKeyAuthMiddleware())
	authed.Post(constants.GenerationsPath, controllers.HandleGenerate)
	authed.Get(constants.AccountPath, controllers.HandleGetAccount)
	authed.Get(constants.AccountTransactionsPath, controllers.HandleListTransactions)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}

func newLimiterStorage() *redisstorage.Storage {
	port, err := strconv.Atoi(env.GetEnv("CACHE_PORT", "6379"))
	if err != nil {
		port = 6379
	}
	return redisstorage.New(redisstorage.Config{
		Host: env.GetEnv("CACHE_HOST", "localhost"),
		Port: port,
	})
}
