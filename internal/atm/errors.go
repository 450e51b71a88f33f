package atm

import (
	"errors"
	"fmt"

	"atm-client/internal/domain"
)

// Local validation failures. They are found before any request is sent and
// the customer can always fix them by changing the input.
var (
	ErrInvalidAmount       = errors.New("please enter a valid amount")
	ErrInsufficientFunds   = errors.New("insufficient balance")
	ErrDailyLimitExceeded  = errors.New("exceeds daily withdrawal limit")
	ErrInvalidDenomination = errors.New("amount must be a multiple of the note denomination")
	ErrBelowMinimum        = errors.New("amount is below the minimum")
	ErrAboveMaximum        = errors.New("amount is above the single transaction maximum")

	ErrMalformedAccountNumber = errors.New("account number must be 10 to 16 digits")
	ErrMalformedPIN           = errors.New("PIN must be 4 to 6 digits")
	ErrSamePIN                = errors.New("new PIN must differ from the current PIN")
	ErrMalformedName          = errors.New("name must be 2 to 100 characters")
	ErrMalformedEmail         = errors.New("email address is not valid")
	ErrMalformedPhone         = errors.New("phone must be 10 digits")
)

var (
	ErrNoAccount     = errors.New("no account loaded, log in first")
	ErrLoginRejected = errors.New("login rejected")
)

// ValidationError carries the rule that failed and, where it helps the
// customer, the bound that was crossed.
type ValidationError struct {
	Reason error
	Limit  domain.Money
}

func (e *ValidationError) Error() string {
	switch e.Reason {
	case ErrDailyLimitExceeded:
		return fmt.Sprintf("%v, remaining today: %s", e.Reason, e.Limit)
	case ErrInvalidDenomination:
		return fmt.Sprintf("amount must be in multiples of %s", e.Limit)
	case ErrBelowMinimum, ErrAboveMaximum:
		return fmt.Sprintf("%v (%s)", e.Reason, e.Limit)
	}
	return e.Reason.Error()
}

func (e *ValidationError) Unwrap() error { return e.Reason }

func invalid(reason error, limit domain.Money) *ValidationError {
	return &ValidationError{Reason: reason, Limit: limit}
}
