package atm

import (
	"encoding/json"
	"errors"
	"testing"

	"atm-client/internal/domain"
)

func acct(balance, limit, withdrawn domain.Money) domain.Account {
	return domain.Account{AccountNumber: "1234567890", Balance: balance, DailyLimit: limit, DailyWithdrawn: withdrawn}
}

func TestValidateScenarios(t *testing.T) {
	cases := []struct {
		name    string
		kind    domain.Kind
		amount  domain.Money
		account domain.Account
		want    error
	}{
		{"daily limit remaining 100", domain.Withdrawal, 200, acct(1000, 5000, 4900), ErrDailyLimitExceeded},
		{"insufficient funds", domain.Withdrawal, 600, acct(500, 5000, 0), ErrInsufficientFunds},
		{"deposit odd denomination", domain.Deposit, 150, acct(0, 5000, 0), ErrInvalidDenomination},
		{"withdraw ok", domain.Withdrawal, 100, acct(1000, 5000, 0), nil},
		{"zero", domain.Deposit, 0, acct(1000, 5000, 0), ErrInvalidAmount},
		{"negative", domain.Withdrawal, -100, acct(1000, 5000, 0), ErrInvalidAmount},
		{"withdraw above max", domain.Withdrawal, 25100, acct(100000, 100000, 0), ErrAboveMaximum},
		{"deposit above max", domain.Deposit, 200100, acct(0, 0, 0), ErrAboveMaximum},
		{"deposit at max", domain.Deposit, 200000, acct(0, 0, 0), nil},
		{"withdraw odd denomination", domain.Withdrawal, 150, acct(1000, 5000, 0), ErrInvalidDenomination},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.kind, tc.amount, tc.account)
			if tc.want == nil {
				if err != nil {
					t.Fatalf("want nil, got %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("want %v, got %v", tc.want, err)
			}
		})
	}
}

func TestDailyLimitReportsRemaining(t *testing.T) {
	err := Validate(domain.Withdrawal, 200, acct(1000, 5000, 4900))
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("want *ValidationError, got %T", err)
	}
	if ve.Limit != 100 {
		t.Fatalf("remaining=%d want=100", ve.Limit)
	}
}

func TestInsufficientFundsRegardlessOfLimit(t *testing.T) {
	limits := []struct{ limit, withdrawn domain.Money }{{0, 0}, {5000, 0}, {5000, 4900}, {5000, 5000}, {100, 200}}
	for _, a := range []domain.Money{600, 700, 1000, 25000} {
		for _, l := range limits {
			err := Validate(domain.Withdrawal, a, acct(500, l.limit, l.withdrawn))
			if !errors.Is(err, ErrInsufficientFunds) {
				t.Fatalf("amount=%d limit=%+v: want insufficient funds, got %v", a, l, err)
			}
		}
	}
}

func TestValidateIsPure(t *testing.T) {
	a := acct(1000, 5000, 4900)
	first := Validate(domain.Withdrawal, 200, a)
	second := Validate(domain.Withdrawal, 200, a)
	if first.Error() != second.Error() {
		t.Fatalf("results differ: %v vs %v", first, second)
	}
	if a != acct(1000, 5000, 4900) {
		t.Fatalf("account mutated: %+v", a)
	}
}

func TestCustomPolicy(t *testing.T) {
	p := Policy{Denomination: 50, Minimum: 50, MaxWithdrawal: 1000, MaxDeposit: 1000}
	if err := p.Validate(domain.Deposit, 150, acct(0, 0, 0)); err != nil {
		t.Fatalf("150 should pass with 50 notes: %v", err)
	}
	if err := p.Validate(domain.Deposit, 1050, acct(0, 0, 0)); !errors.Is(err, ErrAboveMaximum) {
		t.Fatalf("want above maximum, got %v", err)
	}
}

func TestQuickAmounts(t *testing.T) {
	got := DefaultPolicy.QuickAmounts(acct(2500, 5000, 0))
	want := map[domain.Money]bool{500: true, 1000: true, 2000: true, 5000: false, 10000: false}
	if len(got) != len(want) {
		t.Fatalf("len=%d want=%d", len(got), len(want))
	}
	for _, q := range got {
		if q.Enabled != want[q.Amount] {
			t.Errorf("amount %d enabled=%v want=%v", q.Amount, q.Enabled, want[q.Amount])
		}
	}
}

func TestCredentialChecks(t *testing.T) {
	if err := ValidateLogin("12345", "1234"); !errors.Is(err, ErrMalformedAccountNumber) {
		t.Errorf("short account number: %v", err)
	}
	if err := ValidateLogin("1234567890", "12a4"); !errors.Is(err, ErrMalformedPIN) {
		t.Errorf("letters in PIN: %v", err)
	}
	if err := ValidateLogin("1234567890", "1234"); err != nil {
		t.Errorf("valid login: %v", err)
	}
	if err := ValidatePINChange("1234", "1234"); !errors.Is(err, ErrSamePIN) {
		t.Errorf("same PIN: %v", err)
	}
	if err := ValidatePINChange("1234", "123"); !errors.Is(err, ErrMalformedPIN) {
		t.Errorf("short new PIN: %v", err)
	}
	if err := ValidateRegistration("A", "a@b.co", "0123456789", "1234567890", "1234"); !errors.Is(err, ErrMalformedName) {
		t.Errorf("short name: %v", err)
	}
	if err := ValidateRegistration("Ann Lee", "not-an-email", "0123456789", "1234567890", "1234"); !errors.Is(err, ErrMalformedEmail) {
		t.Errorf("bad email: %v", err)
	}
	if err := ValidateRegistration("Ann Lee", "ann@example.com", "12345", "1234567890", "1234"); !errors.Is(err, ErrMalformedPhone) {
		t.Errorf("bad phone: %v", err)
	}
	if err := ValidateRegistration("Ann Lee", "ann@example.com", "0123456789", "1234567890123", "123456"); err != nil {
		t.Errorf("valid registration: %v", err)
	}
}

func TestValidateInputNeverRewritesAmount(t *testing.T) {
	a := acct(100000, 50000, 0)
	cases := []struct {
		input string
		kind  domain.Kind
		want  error
	}{
		{"199.5", domain.Withdrawal, ErrInvalidDenomination},
		{"0.4", domain.Deposit, ErrInvalidDenomination},
		{"18446744073709551716", domain.Withdrawal, ErrAboveMaximum},
		{"-200", domain.Withdrawal, ErrInvalidAmount},
		{"two hundred", domain.Deposit, ErrInvalidAmount},
		{"0", domain.Deposit, ErrInvalidAmount},
	}
	for _, tc := range cases {
		m, err := DefaultPolicy.ValidateInput(tc.kind, tc.input, a)
		if !errors.Is(err, tc.want) {
			t.Errorf("input %q: got %d, %v; want %v", tc.input, m, err, tc.want)
		}
		if m != 0 {
			t.Errorf("input %q: amount %d returned with an error", tc.input, m)
		}
	}

	m, err := DefaultPolicy.ValidateInput(domain.Withdrawal, "200", a)
	if err != nil || m != 200 {
		t.Fatalf("200: got %d, %v", m, err)
	}
}

func TestFractionalBalanceStillInsufficient(t *testing.T) {
	var a domain.Account
	raw := `{"balance":999.5,"daily_limit":5000.0,"daily_withdrawn":0.0}`
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		t.Fatal(err)
	}
	if err := Validate(domain.Withdrawal, 1000, a); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("withdraw 1000 from 999.5: want insufficient funds, got %v", err)
	}
}
