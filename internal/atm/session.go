package atm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"atm-client/internal/client"
	"atm-client/internal/domain"

	"github.com/charmbracelet/log"
)

// Session is the signed-in customer: credentials, the gateway that uses
// them and the account mirror they unlock.
type Session struct {
	api   *client.Client
	state *AccountState
	log   *log.Logger
}

func NewSession(api *client.Client, state *AccountState, logger *log.Logger) *Session {
	if state == nil {
		state = NewAccountState()
	}
	if logger == nil {
		logger = log.NewWithOptions(os.Stderr, log.Options{Prefix: "session"})
	}
	return &Session{api: api, state: state, log: logger}
}

func (s *Session) State() *AccountState { return s.state }

func (s *Session) Client() *client.Client { return s.api }

// Orchestrator returns a transaction orchestrator bound to this session.
func (s *Session) Orchestrator(opts ...OrchestratorOption) *Orchestrator {
	return NewOrchestrator(s.api, s.state, opts...)
}

// Resume restores a persisted session. Any failure to validate it clears
// the stored credentials.
func (s *Session) Resume(ctx context.Context) (bool, error) {
	if !s.api.Session().Valid() {
		return false, nil
	}
	res, err := s.api.Validate(ctx)
	if err == nil && (res.User == nil || res.Account == nil) {
		err = fmt.Errorf("%w: validate response lacks user or account", client.ErrMalformedResponse)
	}
	if err != nil {
		s.log.Info("stored session discarded", "err", err)
		s.end()
		return false, err
	}
	s.state.Set(*res.User, *res.Account)
	return true, nil
}

func (s *Session) Login(ctx context.Context, accountNumber, pin string) error {
	if err := ValidateLogin(accountNumber, pin); err != nil {
		return err
	}
	res, err := s.api.Login(ctx, accountNumber, pin)
	if err != nil {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) && refusesLogin(apiErr.Status) {
			return fmt.Errorf("%w: %s", ErrLoginRejected, apiErr.Message)
		}
		return err
	}
	if !res.Success || res.Token == "" || res.User == nil || res.Account == nil {
		msg := res.Message
		if msg == "" {
			msg = "incomplete login response"
		}
		return fmt.Errorf("%w: %s", ErrLoginRejected, msg)
	}
	if err := s.api.Session().SetCredentials(res.Token, res.RefreshToken); err != nil {
		s.log.Warn("session will not survive a restart", "err", err)
	}
	s.state.Set(*res.User, *res.Account)
	return nil
}

// refusesLogin reports whether status means the backend turned the
// credentials down, as opposed to failing to answer. A 2xx status here comes
// from a "success": false body.
func refusesLogin(status int) bool {
	switch status {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return true
	}
	return status >= 200 && status < 300
}

// Logout is best effort remotely and unconditional locally.
func (s *Session) Logout(ctx context.Context) error {
	err := s.api.Logout(ctx)
	s.state.Clear()
	if err != nil {
		s.log.Warn("backend logout failed", "err", err)
	}
	return err
}

func (s *Session) ChangePIN(ctx context.Context, current, next string) (string, error) {
	if err := ValidatePINChange(current, next); err != nil {
		return "", err
	}
	msg, err := s.api.ChangePIN(ctx, current, next)
	return msg, s.Observe(err)
}

// SyncBalance refreshes the money fields of the account from the backend.
func (s *Session) SyncBalance(ctx context.Context) (domain.Account, error) {
	b, err := s.api.Balance(ctx)
	if err != nil {
		return domain.Account{}, s.Observe(err)
	}
	if err := s.state.Sync(b.Balance, b.DailyLimit, b.DailyWithdrawn); err != nil {
		return domain.Account{}, err
	}
	account, _ := s.state.Current()
	return account, nil
}

func (s *Session) Authenticated() bool {
	_, ok := s.state.Current()
	return ok && s.api.Session().Valid()
}

func (s *Session) IsAdmin() bool {
	u, ok := s.state.User()
	return ok && u.IsAdmin()
}

// Observe passes err through, dropping the account mirror when it means
// the session is gone.
func (s *Session) Observe(err error) error {
	if errors.Is(err, client.ErrUnauthenticated) {
		s.state.Clear()
	}
	return err
}

func (s *Session) end() {
	if err := s.api.Session().Clear(); err != nil {
		s.log.Warn("failed to clear session", "err", err)
	}
	s.state.Clear()
}
