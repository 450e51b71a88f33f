package atm

import (
	"context"
	"errors"
	"io"
	"net/http"
	"slices"
	"testing"
	"time"

	"atm-client/internal/banktest"
	"atm-client/internal/client"
	"atm-client/internal/domain"
	"atm-client/internal/session"

	"github.com/charmbracelet/log"
)

type stubSubmitter struct {
	calls int
	keys  []string
	res   *domain.TransactionResult
	err   error
}

func (s *stubSubmitter) SubmitTransaction(_ context.Context, _ domain.Kind, _ domain.Money, key string) (*domain.TransactionResult, error) {
	s.calls++
	s.keys = append(s.keys, key)
	return s.res, s.err
}

type sinkFunc func(domain.Transaction, domain.Receipt)

func (f sinkFunc) Remember(tx domain.Transaction, r domain.Receipt) { f(tx, r) }

func newStateWith(a domain.Account) *AccountState {
	s := NewAccountState()
	s.Set(domain.User{Name: "Asha"}, a)
	return s
}

func quiet() OrchestratorOption { return WithOrchestratorLogger(log.New(io.Discard)) }

func TestRejectedAttemptMakesNoCall(t *testing.T) {
	sub := &stubSubmitter{}
	o := NewOrchestrator(sub, newStateWith(acct(1000, 5000, 4900)), quiet())

	a, err := o.Withdraw(context.Background(), 200)
	if !errors.Is(err, ErrDailyLimitExceeded) {
		t.Fatalf("want daily limit, got %v", err)
	}
	if a.Phase != Rejected || sub.calls != 0 {
		t.Fatalf("phase=%v calls=%d", a.Phase, sub.calls)
	}
	if !slices.Equal(a.Trail, []Phase{Idle, Validating, Rejected}) {
		t.Fatalf("trail=%v", a.Trail)
	}
}

func TestNoAccountIsRejected(t *testing.T) {
	sub := &stubSubmitter{}
	o := NewOrchestrator(sub, NewAccountState(), quiet())
	a, err := o.Deposit(context.Background(), 100)
	if !errors.Is(err, ErrNoAccount) || a.Phase != Rejected || sub.calls != 0 {
		t.Fatalf("err=%v phase=%v calls=%d", err, a.Phase, sub.calls)
	}
}

func TestFailedAttemptLeavesStateUntouched(t *testing.T) {
	failures := []error{
		&client.APIError{Status: http.StatusForbidden, Message: "Daily limit exceeded"},
		&client.NetworkError{Op: "POST", URL: "http://bank", Err: context.DeadlineExceeded},
		&client.AuthError{Reason: "credential refresh failed"},
	}
	for _, failure := range failures {
		state := newStateWith(acct(1000, 5000, 0))
		sub := &stubSubmitter{err: failure}
		o := NewOrchestrator(sub, state, quiet())

		a, err := o.Withdraw(context.Background(), 100)
		if !errors.Is(err, failure) || a.Phase != Failed {
			t.Fatalf("err=%v phase=%v", err, a.Phase)
		}
		if got, _ := state.Current(); got != acct(1000, 5000, 0) {
			t.Fatalf("state changed after failure: %+v", got)
		}
		if sub.calls != 1 {
			t.Fatalf("calls=%d, failed attempts are not retried", sub.calls)
		}
	}
}

func TestSettledAttemptAppliesThenExposes(t *testing.T) {
	state := newStateWith(acct(1000, 5000, 0))
	tx := &domain.Transaction{ID: 7, Kind: domain.Withdrawal, Amount: 100, BalanceAfter: 900}
	rcpt := &domain.Receipt{ID: 3, TransactionID: 7, ReceiptNumber: "RCP1"}
	sub := &stubSubmitter{res: &domain.TransactionResult{NewBalance: 900, Transaction: tx, Receipt: rcpt}}
	o := NewOrchestrator(sub, state, quiet())

	var remembered string
	o.Sink = sinkFunc(func(_ domain.Transaction, r domain.Receipt) { remembered = r.ReceiptNumber })
	var seen []Phase
	o.OnPhase = func(a *Attempt) {
		seen = append(seen, a.Phase)
		if a.Phase == Applying {
			if cur, _ := state.Current(); cur.Balance != 1000 {
				t.Errorf("state written before Applying: %+v", cur)
			}
		}
	}

	a, err := o.Withdraw(context.Background(), 100)
	if err != nil {
		t.Fatal(err)
	}
	if !a.Settled() || a.Receipt.ReceiptNumber != "RCP1" || a.Transaction.ID != 7 {
		t.Fatalf("attempt=%+v", a)
	}
	if !slices.Equal(seen, []Phase{Validating, Submitting, Applying, Settled}) {
		t.Fatalf("phases=%v", seen)
	}
	cur, _ := state.Current()
	if cur.Balance != 900 || cur.DailyWithdrawn != 100 {
		t.Fatalf("state=%+v", cur)
	}
	if remembered != "RCP1" {
		t.Fatalf("sink got %q", remembered)
	}
	if sub.keys[0] != a.ID {
		t.Fatalf("idempotency key %q, attempt id %q", sub.keys[0], a.ID)
	}
}

func TestEachAttemptHasItsOwnKey(t *testing.T) {
	sub := &stubSubmitter{res: &domain.TransactionResult{NewBalance: 1100}}
	o := NewOrchestrator(sub, newStateWith(acct(1000, 5000, 0)), quiet())
	a1, _ := o.Deposit(context.Background(), 100)
	a2, _ := o.Deposit(context.Background(), 100)
	if a1.ID == a2.ID || sub.keys[0] == sub.keys[1] {
		t.Fatalf("keys reused: %v", sub.keys)
	}
}

func TestPhaseString(t *testing.T) {
	if Settled.String() != "settled" || Phase(42).String() != "phase(42)" {
		t.Fatalf("got %q %q", Settled, Phase(42))
	}
	if !Failed.Terminal() || Submitting.Terminal() {
		t.Fatal("terminal phases wrong")
	}
}

func newSession(t *testing.T) (*Session, *session.Store, *banktest.Server) {
	t.Helper()
	srv := banktest.NewServer()
	t.Cleanup(srv.Close)
	store := session.NewMemory()
	api, err := client.NewClient(srv.BaseURL(), store, client.WithLogger(log.New(io.Discard)), client.WithTimeout(5*time.Second))
	if err != nil {
		t.Fatal(err)
	}
	return NewSession(api, nil, log.New(io.Discard)), store, srv
}

func TestWithdrawEndToEnd(t *testing.T) {
	sess, _, srv := newSession(t)
	ctx := context.Background()
	if err := sess.Login(ctx, "1234567890", "1234"); err != nil {
		t.Fatal(err)
	}

	srv.ExpireAccess()
	a, err := sess.Orchestrator(quiet()).Withdraw(ctx, 100)
	if err != nil {
		t.Fatal(err)
	}
	if a.NewBalance != 900 || a.Receipt == nil || a.Transaction.Kind != domain.Withdrawal {
		t.Fatalf("attempt=%+v", a)
	}
	cur, _ := sess.State().Current()
	if cur.Balance != 900 || cur.DailyWithdrawn != 100 {
		t.Fatalf("state=%+v", cur)
	}
	if bal, wd := srv.Account("1234567890"); bal != 900 || wd != 100 {
		t.Fatalf("server balance=%d withdrawn=%d", bal, wd)
	}
	keys := srv.IdempotencyKeys()
	if len(keys) != 2 || keys[0] != a.ID || keys[1] != a.ID {
		t.Fatalf("keys=%v want the attempt id twice", keys)
	}
}

func TestBackendRejectionFailsAttempt(t *testing.T) {
	sess, _, srv := newSession(t)
	ctx := context.Background()
	if err := sess.Login(ctx, "1234567890", "1234"); err != nil {
		t.Fatal(err)
	}
	srv.FailNext("withdraw", http.StatusBadRequest, `{"success":false,"message":"Insufficient balance"}`)

	a, err := sess.Orchestrator(quiet()).Withdraw(ctx, 500)
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "Insufficient balance" || a.Phase != Failed {
		t.Fatalf("err=%v phase=%v", err, a.Phase)
	}
	if cur, _ := sess.State().Current(); cur.Balance != 1000 || cur.DailyWithdrawn != 0 {
		t.Fatalf("state=%+v", cur)
	}
}
