package payments

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Payment statuses accepted for crediting.
const (
	PaymentStatusPaid              = "paid"
	PaymentStatusNoPaymentRequired = "no_payment_required"
)

var (
	// ErrMalformedEvent marks payloads that can never be processed
	// (missing identity reference or package id). Acknowledged, not retried.
	ErrMalformedEvent = errors.New("malformed payment event")

	// ErrUnknownEventType marks event kinds this consumer does not know at
	// all, as opposed to known kinds it deliberately ignores.
	ErrUnknownEventType = errors.New("unknown payment event type")
)

// Event is the tagged union of payment webhook payloads the ledger consumes.
// Exactly one of the kind predicates is true per parsed event.
type Event interface {
	EventID() string
	EventType() string
}

// CheckoutCompletedEvent is a finished checkout session. Only paid (or
// no-payment-required) sessions are credited.
type CheckoutCompletedEvent struct {
	ID            string
	IdentityRef   string
	PackageID     string
	PaymentStatus string
}

func (e *CheckoutCompletedEvent) EventID() string   { return e.ID }
func (e *CheckoutCompletedEvent) EventType() string { return "checkout.session.completed" }

// Paid reports whether the session settled and should be credited.
func (e *CheckoutCompletedEvent) Paid() bool {
	switch e.PaymentStatus {
	case PaymentStatusPaid, PaymentStatusNoPaymentRequired:
		return true
	default:
		return false
	}
}

// IgnoredEvent is a recognized event kind the ledger acknowledges without
// acting on (e.g. checkout.session.expired, payment_intent.* noise).
type IgnoredEvent struct {
	ID   string
	Type string
}

func (e *IgnoredEvent) EventID() string   { return e.ID }
func (e *IgnoredEvent) EventType() string { return e.Type }

// acknowledgedEventTypes are kinds the processor sends that carry no ledger
// meaning. Anything outside this set and checkout.session.completed is
// rejected as unknown rather than silently dropped.
var acknowledgedEventTypes = map[string]struct{}{
	"checkout.session.expired":      {},
	"payment_intent.created":        {},
	"payment_intent.succeeded":      {},
	"payment_intent.payment_failed": {},
	"charge.succeeded":              {},
	"charge.refunded":               {},
	"customer.created":              {},
	"customer.subscription.updated": {},
}

// ParseEvent decodes a payment webhook envelope into the event union.
func ParseEvent(payload []byte) (Event, error) {
	var raw struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Data struct {
			Object struct {
				PaymentStatus string `json:"payment_status"`
				Metadata      struct {
					IdentityRef string `json:"identity_ref"`
					PackageID   string `json:"package_id"`
				} `json:"metadata"`
			} `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	eventType := strings.TrimSpace(raw.Type)
	if strings.TrimSpace(raw.ID) == "" || eventType == "" {
		return nil, fmt.Errorf("%w: missing event id or type", ErrMalformedEvent)
	}

	if eventType == "checkout.session.completed" {
		event := &CheckoutCompletedEvent{
			ID:            strings.TrimSpace(raw.ID),
			IdentityRef:   strings.TrimSpace(raw.Data.Object.Metadata.IdentityRef),
			PackageID:     strings.TrimSpace(raw.Data.Object.Metadata.PackageID),
			PaymentStatus: strings.ToLower(strings.TrimSpace(raw.Data.Object.PaymentStatus)),
		}
		if event.IdentityRef == "" {
			return nil, fmt.Errorf("%w: checkout session missing identity_ref metadata", ErrMalformedEvent)
		}
		if event.PackageID == "" {
			return nil, fmt.Errorf("%w: checkout session missing package_id metadata", ErrMalformedEvent)
		}
		return event, nil
	}

	if _, ok := acknowledgedEventTypes[eventType]; ok {
		return &IgnoredEvent{ID: strings.TrimSpace(raw.ID), Type: eventType}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, eventType)
}
