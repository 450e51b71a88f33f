package atm

import (
	"sync"

	"atm-client/internal/domain"
)

// AccountState mirrors the signed-in account. It only ever changes from a
// response the backend has confirmed.
type AccountState struct {
	mu      sync.RWMutex
	user    *domain.User
	account *domain.Account
}

func NewAccountState() *AccountState {
	return &AccountState{}
}

// Current returns a copy of the account, or false when nobody is signed in.
func (s *AccountState) Current() (domain.Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.account == nil {
		return domain.Account{}, false
	}
	return *s.account, true
}

func (s *AccountState) User() (domain.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return domain.User{}, false
	}
	return *s.user, true
}

// Set loads the user and account from a login or validate response.
func (s *AccountState) Set(user domain.User, account domain.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = &user
	s.account = &account
}

// ApplyResult records a confirmed transaction. Withdrawals also count
// against today's limit; deposits only move the balance.
func (s *AccountState) ApplyResult(kind domain.Kind, amount, newBalance domain.Money) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.account == nil {
		return ErrNoAccount
	}
	s.account.Balance = newBalance
	if kind == domain.Withdrawal {
		s.account.DailyWithdrawn += amount
	}
	return nil
}

// Sync overwrites the money fields with a fresh server reading.
func (s *AccountState) Sync(balance, dailyLimit, dailyWithdrawn domain.Money) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.account == nil {
		return ErrNoAccount
	}
	s.account.Balance = balance
	s.account.DailyLimit = dailyLimit
	s.account.DailyWithdrawn = dailyWithdrawn
	return nil
}

func (s *AccountState) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = nil
	s.account = nil
}
