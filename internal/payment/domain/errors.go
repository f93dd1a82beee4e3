package domain

import "errors"

var (
	ErrInvalidProvider       = errors.New("invalid_provider")
	ErrProviderNotFound      = errors.New("provider_not_found")
	ErrInvalidSignature      = errors.New("invalid_signature")
	ErrInvalidPayload        = errors.New("invalid_payload")
	ErrInvalidEvent          = errors.New("invalid_event")
	ErrInvalidAmount         = errors.New("invalid_amount")
	ErrInvalidCurrency       = errors.New("invalid_currency")
	ErrEventIgnored          = errors.New("event_ignored")
	ErrEventAlreadyProcessed = errors.New("event_already_processed")

	// ErrEventInFlight means another applier currently holds the claim on
	// this event. Retriable: the caller should redeliver later.
	ErrEventInFlight = errors.New("event_in_flight")

	// ErrTerminalConflict marks an event that would flip an already-terminal
	// record to a different terminal state. Never overwritten, always rejected.
	ErrTerminalConflict = errors.New("terminal_state_conflict")
)
