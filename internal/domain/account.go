package domain

import "encoding/json"

const RoleAdmin = "admin"

type User struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Role      string    `json:"role,omitempty"`
	CreatedAt Timestamp `json:"created_at"`
}

func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

// Account mirrors the backend account row for the signed-in user.
type Account struct {
	ID             int64     `json:"id"`
	UserID         int64     `json:"user_id"`
	AccountNumber  string    `json:"account_number"`
	Balance        Money     `json:"balance"`
	DailyLimit     Money     `json:"daily_limit"`
	DailyWithdrawn Money     `json:"daily_withdrawn"`
	CreatedAt      Timestamp `json:"created_at"`
}

// RemainingLimit is what can still be withdrawn today, never below zero.
func (a Account) RemainingLimit() Money {
	if a.DailyWithdrawn >= a.DailyLimit {
		return 0
	}
	return a.DailyLimit - a.DailyWithdrawn
}

func (a *Account) UnmarshalJSON(data []byte) error {
	type plain Account
	var w struct {
		plain
		Balance        json.RawMessage `json:"balance"`
		DailyLimit     json.RawMessage `json:"daily_limit"`
		DailyWithdrawn json.RawMessage `json:"daily_withdrawn"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	funds, err := rawFunds{Balance: w.Balance, DailyLimit: w.DailyLimit, DailyWithdrawn: w.DailyWithdrawn}.funds()
	if err != nil {
		return err
	}
	*a = Account(w.plain)
	a.Balance = funds.Balance
	a.DailyLimit = funds.DailyLimit
	a.DailyWithdrawn = funds.DailyWithdrawn
	return nil
}
