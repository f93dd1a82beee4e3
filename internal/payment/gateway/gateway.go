// Package gateway wraps the external payment processor: payment intents for
// subscriptions/tips and payouts for creator withdrawals.
package gateway

import (
	"context"
	"errors"
	"fmt"
)

// Client is the outbound payment processor surface the engine depends on.
type Client interface {
	// CreateIntent registers a pending charge and returns the client secret
	// the end user needs to complete payment.
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)

	// CreatePayout executes a withdrawal to the creator's payout destination.
	CreatePayout(ctx context.Context, req PayoutRequest) (*Payout, error)
}

type IntentRequest struct {
	Amount      float64
	Currency    string
	Description string
}

type Intent struct {
	ID           string
	ClientSecret string
}

type PayoutRequest struct {
	Amount      float64
	Currency    string
	Destination string
}

type Payout struct {
	ID string
}

// ErrorClass separates failures whose outcome is unknown (timeouts, 5xx;
// never safe to assume, never auto-retried for payouts) from definitive
// rejections.
type ErrorClass string

const (
	ClassTransient ErrorClass = "transient"
	ClassPermanent ErrorClass = "permanent"
)

type Error struct {
	Operation string
	Class     ErrorClass
	Status    int
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("gateway %s failed (%s): %v", e.Operation, e.Class, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsTransient reports whether err is a gateway failure with unknown outcome.
func IsTransient(err error) bool {
	var gwErr *Error
	return errors.As(err, &gwErr) && gwErr.Class == ClassTransient
}

// IsPermanent reports whether err is a definitive gateway rejection.
func IsPermanent(err error) bool {
	var gwErr *Error
	return errors.As(err, &gwErr) && gwErr.Class == ClassPermanent
}
