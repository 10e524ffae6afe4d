package constants

// API route paths.
const (
	APIRoot = "/api"

	PaymentWebhookPath  = "/webhooks/payment"
	IdentityWebhookPath = "/webhooks/identity"

	GenerationsPath         = "/v1/generations"
	AccountPath             = "/v1/account"
	AccountTransactionsPath = "/v1/account/transactions"
)

// Webhook headers.
const (
	HeaderPaymentSignature  = "Forge-Payment-Signature"
	HeaderIdentityEventID   = "Webhook-Id"
	HeaderIdentityTimestamp = "Webhook-Timestamp"
	HeaderIdentitySignature = "Webhook-Signature"
	HeaderAPIKey            = "X-API-Key"
)
