package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind is the canonical transaction type. The backend spells it several ways
// ("withdraw", "withdrawal", "WITHDRAWAL"); everything is folded into one of these.
type Kind int

const (
	Withdrawal Kind = iota + 1
	Deposit
)

func (k Kind) String() string {
	switch k {
	case Withdrawal:
		return "withdrawal"
	case Deposit:
		return "deposit"
	default:
		return "unknown"
	}
}

// ParseKind normalizes a backend transaction type.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "withdraw", "withdrawal":
		return Withdrawal, nil
	case "deposit":
		return Deposit, nil
	default:
		return 0, fmt.Errorf("unknown transaction type %q", s)
	}
}

func (k Kind) MarshalJSON() ([]byte, error) {
	if k != Withdrawal && k != Deposit {
		return nil, fmt.Errorf("cannot marshal transaction kind %d", int(k))
	}
	return json.Marshal(k.String())
}

func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("transaction type must be a string: %w", err)
	}
	parsed, err := ParseKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

type Transaction struct {
	ID           int64     `json:"id"`
	AccountID    int64     `json:"account_id"`
	Kind         Kind      `json:"type"`
	Amount       Money     `json:"amount"`
	BalanceAfter Money     `json:"balance_after"`
	Description  string    `json:"description"`
	CreatedAt    Timestamp `json:"created_at"`
}

// Receipt references a settled transaction. Content is whatever text the
// backend attached; the printable document is fetched separately.
type Receipt struct {
	ID            int64     `json:"id"`
	TransactionID int64     `json:"transaction_id"`
	ReceiptNumber string    `json:"receipt_number"`
	Content       string    `json:"content"`
	CreatedAt     Timestamp `json:"created_at"`
}

// TransactionResult is the one response shape accepted for withdraw and deposit.
type TransactionResult struct {
	NewBalance  Money
	Transaction *Transaction
	Receipt     *Receipt
	Message     string
}
