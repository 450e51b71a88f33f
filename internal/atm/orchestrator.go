package atm

import (
	"context"
	"fmt"
	"os"

	"atm-client/internal/domain"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

type Phase int

const (
	Idle Phase = iota
	Validating
	Submitting
	Applying
	Settled
	Rejected
	Failed
)

var phaseNames = [...]string{"idle", "validating", "submitting", "applying", "settled", "rejected", "failed"}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

// Terminal reports whether no further transition can follow.
func (p Phase) Terminal() bool {
	return p == Settled || p == Rejected || p == Failed
}

// Submitter sends a confirmed transaction to the backend.
type Submitter interface {
	SubmitTransaction(ctx context.Context, kind domain.Kind, amount domain.Money, idempotencyKey string) (*domain.TransactionResult, error)
}

// ReceiptSink is told about every settled transaction that produced a receipt.
type ReceiptSink interface {
	Remember(tx domain.Transaction, r domain.Receipt)
}

// Attempt is one withdrawal or deposit from the customer's point of view.
type Attempt struct {
	ID     string
	Kind   domain.Kind
	Amount domain.Money
	Phase  Phase
	Trail  []Phase

	Transaction *domain.Transaction
	Receipt     *domain.Receipt
	NewBalance  domain.Money
	Message     string
	Err         error
}

func (a *Attempt) Settled() bool { return a.Phase == Settled }

type Orchestrator struct {
	submitter Submitter
	state     *AccountState
	policy    Policy
	log       *log.Logger

	// OnPhase, when set, sees the attempt after every transition.
	OnPhase func(*Attempt)
	Sink    ReceiptSink
}

type OrchestratorOption func(*Orchestrator)

func WithPolicy(p Policy) OrchestratorOption {
	return func(o *Orchestrator) { o.policy = p }
}

func WithOrchestratorLogger(l *log.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.log = l }
}

func NewOrchestrator(s Submitter, state *AccountState, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		submitter: s,
		state:     state,
		policy:    DefaultPolicy,
		log:       log.NewWithOptions(os.Stderr, log.Options{Prefix: "atm"}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) Policy() Policy { return o.policy }

func (o *Orchestrator) Withdraw(ctx context.Context, amount domain.Money) (*Attempt, error) {
	return o.Submit(ctx, domain.Withdrawal, amount)
}

func (o *Orchestrator) Deposit(ctx context.Context, amount domain.Money) (*Attempt, error) {
	return o.Submit(ctx, domain.Deposit, amount)
}

// Submit runs one attempt to a terminal phase. The returned error is the
// attempt's Err; the attempt itself is always returned.
// Account state is written only after the backend confirms, and a failed
// attempt is never retried here.
func (o *Orchestrator) Submit(ctx context.Context, kind domain.Kind, amount domain.Money) (*Attempt, error) {
	a := &Attempt{ID: uuid.NewString(), Kind: kind, Amount: amount, Phase: Idle, Trail: []Phase{Idle}}

	o.move(a, Validating)
	account, ok := o.state.Current()
	if !ok {
		return o.reject(a, ErrNoAccount)
	}
	if err := o.policy.Validate(kind, amount, account); err != nil {
		return o.reject(a, err)
	}

	o.move(a, Submitting)
	res, err := o.submitter.SubmitTransaction(ctx, kind, amount, a.ID)
	if err != nil {
		a.Err = err
		o.move(a, Failed)
		o.log.Warn("transaction failed", "kind", kind, "amount", amount, "attempt", a.ID, "err", err)
		return a, err
	}

	o.move(a, Applying)
	if err := o.state.ApplyResult(kind, amount, res.NewBalance); err != nil {
		// The backend settled but the local mirror is gone, typically a
		// logout that raced the call.
		o.log.Error("settled transaction could not be applied", "attempt", a.ID, "err", err)
	}
	a.NewBalance = res.NewBalance
	a.Transaction = res.Transaction
	a.Receipt = res.Receipt
	a.Message = res.Message
	if o.Sink != nil && res.Transaction != nil && res.Receipt != nil {
		o.Sink.Remember(*res.Transaction, *res.Receipt)
	}

	o.move(a, Settled)
	o.log.Info("transaction settled", "kind", kind, "amount", amount, "new_balance", res.NewBalance, "attempt", a.ID)
	return a, nil
}

func (o *Orchestrator) reject(a *Attempt, err error) (*Attempt, error) {
	a.Err = err
	o.move(a, Rejected)
	o.log.Debug("transaction rejected", "kind", a.Kind, "amount", a.Amount, "reason", err)
	return a, err
}

func (o *Orchestrator) move(a *Attempt, p Phase) {
	a.Phase = p
	a.Trail = append(a.Trail, p)
	if o.OnPhase != nil {
		o.OnPhase(a)
	}
}
