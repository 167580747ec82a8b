// Package payment describes external payment verification as seen by the
// order engine.
package payment

import "context"

// Status is the outcome of an external payment.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusPending   Status = "pending"
)

// Verifier checks the state of an external payment by its opaque reference.
// Transport failures are returned as errors; an unknown reference is
// reported as StatusFailed.
type Verifier interface {
	Verify(ctx context.Context, reference string) (Status, error)
}

// Event is an asynchronous notification from the payment provider.
type Event struct {
	ID        string
	Reference string
	Status    Status
}

// Intent is a payment opened at the provider that the shopper completes
// before a prepaid checkout. ID becomes the order's payment reference.
type Intent struct {
	ID           string
	ClientSecret string
}

// IntentCreator opens a payment for amount whole currency units.
type IntentCreator interface {
	CreateIntent(ctx context.Context, amount int64) (Intent, error)
}
