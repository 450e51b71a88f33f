package atm

import (
	"errors"

	"atm-client/internal/domain"
)

// Policy holds the client-side amount rules. The backend enforces its own
// limits as well.
type Policy struct {
	Denomination  domain.Money
	Minimum       domain.Money
	MaxWithdrawal domain.Money
	MaxDeposit    domain.Money
}

var DefaultPolicy = Policy{
	Denomination:  100,
	Minimum:       100,
	MaxWithdrawal: 25000,
	MaxDeposit:    200000,
}

// Validate checks amount against the policy. Balance and daily limit are
// reported before denomination and bounds.
func Validate(kind domain.Kind, amount domain.Money, account domain.Account) error {
	return DefaultPolicy.Validate(kind, amount, account)
}

func (p Policy) Validate(kind domain.Kind, amount domain.Money, account domain.Account) error {
	if amount <= 0 {
		return invalid(ErrInvalidAmount, 0)
	}
	if kind == domain.Withdrawal {
		if amount > account.Balance {
			return invalid(ErrInsufficientFunds, account.Balance)
		}
		if remaining := account.DailyLimit - account.DailyWithdrawn; amount > remaining {
			return invalid(ErrDailyLimitExceeded, account.RemainingLimit())
		}
	}
	if p.Denomination > 0 && amount%p.Denomination != 0 {
		return invalid(ErrInvalidDenomination, p.Denomination)
	}
	if amount < p.Minimum {
		return invalid(ErrBelowMinimum, p.Minimum)
	}
	if limit := p.maximum(kind); limit > 0 && amount > limit {
		return invalid(ErrAboveMaximum, limit)
	}
	return nil
}

// ParseAmount reads an amount typed by the customer. Nothing is rounded:
// a fraction fails the denomination rule and anything else unreadable is
// an invalid amount.
func (p Policy) ParseAmount(kind domain.Kind, input string) (domain.Money, error) {
	m, err := domain.ParseMoney(input)
	switch {
	case err == nil:
		return m, nil
	case errors.Is(err, domain.ErrFractionalMoney):
		return 0, invalid(ErrInvalidDenomination, p.Denomination)
	case errors.Is(err, domain.ErrMoneyOverflow):
		return 0, invalid(ErrAboveMaximum, p.maximum(kind))
	}
	return 0, invalid(ErrInvalidAmount, 0)
}

// ValidateInput parses input and validates the result against account.
func (p Policy) ValidateInput(kind domain.Kind, input string, account domain.Account) (domain.Money, error) {
	m, err := p.ParseAmount(kind, input)
	if err != nil {
		return 0, err
	}
	if err := p.Validate(kind, m, account); err != nil {
		return 0, err
	}
	return m, nil
}

func (p Policy) maximum(kind domain.Kind) domain.Money {
	if kind == domain.Withdrawal {
		return p.MaxWithdrawal
	}
	return p.MaxDeposit
}

// QuickAmount is one of the preset withdrawal buttons.
type QuickAmount struct {
	Amount  domain.Money
	Enabled bool
}

var quickAmounts = []domain.Money{500, 1000, 2000, 5000, 10000}

// QuickAmounts lists the withdrawal presets, enabled only when they would
// pass validation for the account.
func (p Policy) QuickAmounts(account domain.Account) []QuickAmount {
	out := make([]QuickAmount, 0, len(quickAmounts))
	for _, a := range quickAmounts {
		out = append(out, QuickAmount{Amount: a, Enabled: p.Validate(domain.Withdrawal, a, account) == nil})
	}
	return out
}
