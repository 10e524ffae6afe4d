package billing

import "errors"

// Outcome classifies a successfully handled webhook delivery.
type Outcome int

const (
	// OutcomeProcessed means the event changed ledger state.
	OutcomeProcessed Outcome = iota
	// OutcomeDuplicate means the (source, event id) pair was already
	// claimed; the delivery is acknowledged without reprocessing.
	OutcomeDuplicate
	// OutcomeIgnored means a recognized event kind that carries no ledger
	// action (wrong type, unpaid session, already-existing account).
	OutcomeIgnored
)

// ErrInvalidSignature marks deliveries whose signature check failed. Never
// retried; logged as a security event at the edge.
var ErrInvalidSignature = errors.New("invalid webhook signature")
