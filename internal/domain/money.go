package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

// Money is a whole amount in the backend's currency unit. It is never a float.
type Money int64

var (
	ErrNegativeMoney   = errors.New("amount cannot be negative")
	ErrFractionalMoney = errors.New("amount must be a whole number")
	ErrMoneyOverflow   = errors.New("amount is too large")
)

var maxMoney = decimal.NewFromInt(math.MaxInt64)

// ParseMoney reads an amount typed by a customer or set in configuration.
// It is exact: a fraction or an out-of-range value is an error, never
// rounded into some other amount.
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("failed to parse amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("%w: %s", ErrNegativeMoney, s)
	}
	if !d.Equal(d.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s", ErrFractionalMoney, s)
	}
	return fromDecimal(d)
}

// FloorMoney converts a backend amount, dropping any fraction so that a
// balance or limit is never overstated.
func FloorMoney(d decimal.Decimal) (Money, error) {
	if d.IsNegative() {
		return 0, fmt.Errorf("%w: %s", ErrNegativeMoney, d)
	}
	return fromDecimal(d.Floor())
}

// CeilMoney converts a backend amount, rounding any fraction up. Used for
// amounts already spent, so what remains is never overstated.
func CeilMoney(d decimal.Decimal) (Money, error) {
	if d.IsNegative() {
		return 0, fmt.Errorf("%w: %s", ErrNegativeMoney, d)
	}
	return fromDecimal(d.Ceil())
}

func fromDecimal(d decimal.Decimal) (Money, error) {
	if d.GreaterThan(maxMoney) {
		return 0, fmt.Errorf("%w: %s", ErrMoneyOverflow, d)
	}
	return Money(d.IntPart()), nil
}

func (m Money) Int64() int64 { return int64(m) }

// String renders with thousand separators, e.g. "25,000".
func (m Money) String() string {
	return humanize.Comma(int64(m))
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatInt(int64(m), 10)), nil
}

// UnmarshalJSON accepts numbers, quoted numbers and null. Fractions are
// floored.
func (m *Money) UnmarshalJSON(data []byte) error {
	parsed, err := decodeMoney(data, FloorMoney)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

func decodeMoney(data []byte, convert func(decimal.Decimal) (Money, error)) (Money, error) {
	s := string(bytes.TrimSpace(data))
	if s == "" || s == "null" {
		return 0, nil
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("failed to parse amount %q: %w", s, err)
	}
	return convert(d)
}

// Funds is the money side of an account as the backend reports it. The
// backend keeps two decimal places; the balance and limit are floored and
// the amount withdrawn today is rounded up.
type Funds struct {
	Balance        Money `json:"balance"`
	DailyLimit     Money `json:"daily_limit"`
	DailyWithdrawn Money `json:"daily_withdrawn"`
}

type rawFunds struct {
	Balance        json.RawMessage `json:"balance"`
	DailyLimit     json.RawMessage `json:"daily_limit"`
	DailyWithdrawn json.RawMessage `json:"daily_withdrawn"`
}

func (r rawFunds) funds() (Funds, error) {
	var f Funds
	var err error
	if f.Balance, err = decodeMoney(r.Balance, FloorMoney); err != nil {
		return Funds{}, fmt.Errorf("balance: %w", err)
	}
	if f.DailyLimit, err = decodeMoney(r.DailyLimit, FloorMoney); err != nil {
		return Funds{}, fmt.Errorf("daily_limit: %w", err)
	}
	if f.DailyWithdrawn, err = decodeMoney(r.DailyWithdrawn, CeilMoney); err != nil {
		return Funds{}, fmt.Errorf("daily_withdrawn: %w", err)
	}
	return f, nil
}

func (f *Funds) UnmarshalJSON(data []byte) error {
	var raw rawFunds
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	decoded, err := raw.funds()
	if err != nil {
		return err
	}
	*f = decoded
	return nil
}
