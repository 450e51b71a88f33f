package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"atm-client/internal/domain"
)

// AuthResponse is returned by login, validate and register.
type AuthResponse struct {
	Success      bool            `json:"success"`
	Token        string          `json:"token"`
	RefreshToken string          `json:"refresh_token"`
	User         *domain.User    `json:"user"`
	Account      *domain.Account `json:"account"`
	Message      string          `json:"message"`
}

// Balance is the account summary served by /account/balance.
type Balance = domain.Funds

// Registration is the payload for creating a customer and account.
type Registration struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	AccountNumber string `json:"account_number"`
	PIN           string `json:"pin"`
}

// Page selects a window of an admin listing.
type Page struct {
	Limit  int
	Offset int
}

const (
	defaultPageLimit    = 20
	defaultHistoryLimit = 10
)

func (p Page) query() string {
	if p.Limit <= 0 {
		p.Limit = defaultPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	v := url.Values{}
	v.Set("limit", strconv.Itoa(p.Limit))
	v.Set("offset", strconv.Itoa(p.Offset))
	return v.Encode()
}

// Login is sent without any stored credential, so a rejected PIN is an
// APIError and never triggers a refresh.
func (c *Client) Login(ctx context.Context, accountNumber, pin string) (*AuthResponse, error) {
	r, err := newRequest(http.MethodPost, "/auth/login", map[string]string{
		"account_number": accountNumber,
		"pin":            pin,
	})
	if err != nil {
		return nil, err
	}
	r.anonymous = true

	var out AuthResponse
	if err := c.callJSON(ctx, r, &out); err != nil {
		return nil, fmt.Errorf("failed to log in: %w", err)
	}
	c.log.Info("logged in", "account", maskAccount(accountNumber))
	return &out, nil
}

// Validate checks the stored access credential and returns the user and
// account it belongs to.
func (c *Client) Validate(ctx context.Context) (*AuthResponse, error) {
	var out AuthResponse
	if err := c.Call(ctx, http.MethodGet, "/auth/validate", nil, &out); err != nil {
		return nil, fmt.Errorf("failed to validate session: %w", err)
	}
	return &out, nil
}

// Logout asks the backend to revoke the refresh credential and then clears
// the local session whatever the outcome.
func (c *Client) Logout(ctx context.Context) error {
	creds := c.session.Credentials()
	defer c.expire()

	token := creds.Refresh
	if token == "" {
		token = creds.Access
	}
	if token == "" {
		return nil
	}

	r := &request{method: http.MethodPost, endpoint: "/auth/logout", accept: "application/json", header: http.Header{}}
	resp, err := c.do(ctx, r, token)
	if err != nil {
		return fmt.Errorf("failed to log out: %w", err)
	}
	if err := statusError(resp); err != nil {
		return fmt.Errorf("failed to log out: %w", err)
	}
	c.log.Info("logged out")
	return nil
}

func (c *Client) ChangePIN(ctx context.Context, currentPIN, newPIN string) (string, error) {
	var out struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	r, err := newRequest(http.MethodPost, "/auth/change-pin", map[string]string{
		"current_pin": currentPIN,
		"new_pin":     newPIN,
	})
	if err != nil {
		return "", err
	}
	r.refusesWith401 = true
	if err := c.callJSON(ctx, r, &out); err != nil {
		return "", fmt.Errorf("failed to change PIN: %w", err)
	}
	if out.Message == "" {
		out.Message = "PIN changed"
	}
	return out.Message, nil
}

func (c *Client) RegisterUser(ctx context.Context, reg Registration) (*AuthResponse, error) {
	var out AuthResponse
	if err := c.Call(ctx, http.MethodPost, "/users/register", reg, &out); err != nil {
		return nil, fmt.Errorf("failed to register user: %w", err)
	}
	c.log.Info("user registered", "account", maskAccount(reg.AccountNumber))
	return &out, nil
}

type transactionResponse struct {
	Success     bool                `json:"success"`
	NewBalance  *domain.Money       `json:"new_balance"`
	Transaction *domain.Transaction `json:"transaction"`
	Receipt     *domain.Receipt     `json:"receipt"`
	Message     string              `json:"message"`
}

// SubmitTransaction posts a withdrawal or deposit. idempotencyKey is sent as
// the Idempotency-Key header and is identical on the refresh retry.
func (c *Client) SubmitTransaction(ctx context.Context, kind domain.Kind, amount domain.Money, idempotencyKey string) (*domain.TransactionResult, error) {
	var endpoint string
	switch kind {
	case domain.Withdrawal:
		endpoint = "/transactions/withdraw"
	case domain.Deposit:
		endpoint = "/transactions/deposit"
	default:
		return nil, fmt.Errorf("unsupported transaction kind %v", kind)
	}

	r, err := newRequest(http.MethodPost, endpoint, map[string]domain.Money{"amount": amount})
	if err != nil {
		return nil, err
	}
	if idempotencyKey != "" {
		r.header.Set("Idempotency-Key", idempotencyKey)
	}

	var out transactionResponse
	if err := c.callJSON(ctx, r, &out); err != nil {
		return nil, fmt.Errorf("failed to submit %s: %w", kind, err)
	}
	return normalizeResult(kind, &out)
}

func normalizeResult(kind domain.Kind, out *transactionResponse) (*domain.TransactionResult, error) {
	res := &domain.TransactionResult{
		Transaction: out.Transaction,
		Receipt:     out.Receipt,
		Message:     out.Message,
	}
	switch {
	case out.NewBalance != nil:
		res.NewBalance = *out.NewBalance
	case out.Transaction != nil:
		res.NewBalance = out.Transaction.BalanceAfter
	default:
		return nil, fmt.Errorf("%w: %s response has neither new_balance nor transaction", ErrMalformedResponse, kind)
	}
	if out.Transaction != nil && out.Transaction.Kind != kind {
		return nil, fmt.Errorf("%w: submitted %s, backend recorded %s", ErrMalformedResponse, kind, out.Transaction.Kind)
	}
	return res, nil
}

func (c *Client) Withdraw(ctx context.Context, amount domain.Money, idempotencyKey string) (*domain.TransactionResult, error) {
	return c.SubmitTransaction(ctx, domain.Withdrawal, amount, idempotencyKey)
}

func (c *Client) Deposit(ctx context.Context, amount domain.Money, idempotencyKey string) (*domain.TransactionResult, error) {
	return c.SubmitTransaction(ctx, domain.Deposit, amount, idempotencyKey)
}

// History returns the most recent transactions, newest first.
func (c *Client) History(ctx context.Context, limit int) ([]domain.Transaction, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	var out []domain.Transaction
	endpoint := "/transactions/history?limit=" + strconv.Itoa(limit)
	if err := c.Call(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, fmt.Errorf("failed to fetch history: %w", err)
	}
	return out, nil
}

func (c *Client) Balance(ctx context.Context) (*Balance, error) {
	var out Balance
	if err := c.Call(ctx, http.MethodGet, "/account/balance", nil, &out); err != nil {
		return nil, fmt.Errorf("failed to fetch balance: %w", err)
	}
	return &out, nil
}

// ReceiptPDF downloads the rendered receipt document.
func (c *Client) ReceiptPDF(ctx context.Context, receiptID int64) ([]byte, error) {
	return c.download(ctx, fmt.Sprintf("/receipts/%d/pdf", receiptID))
}

func (c *Client) LatestReceiptPDF(ctx context.Context) ([]byte, error) {
	return c.download(ctx, "/receipts/latest/pdf")
}

func (c *Client) download(ctx context.Context, endpoint string) ([]byte, error) {
	r := &request{method: http.MethodGet, endpoint: endpoint, accept: "application/pdf", header: http.Header{}}
	resp, err := c.send(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", endpoint, err)
	}
	return resp.body, nil
}

func (c *Client) ListUsers(ctx context.Context, p Page) ([]domain.User, error) {
	var out []domain.User
	if err := c.Call(ctx, http.MethodGet, "/admin/users?"+p.query(), nil, &out); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return out, nil
}

func (c *Client) ListAccounts(ctx context.Context, p Page) ([]domain.Account, error) {
	var out []domain.Account
	if err := c.Call(ctx, http.MethodGet, "/admin/accounts?"+p.query(), nil, &out); err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return out, nil
}

func (c *Client) ListTransactions(ctx context.Context, p Page) ([]domain.Transaction, error) {
	var out []domain.Transaction
	if err := c.Call(ctx, http.MethodGet, "/admin/transactions?"+p.query(), nil, &out); err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return out, nil
}

func (c *Client) ListReceipts(ctx context.Context, p Page) ([]domain.Receipt, error) {
	var out []domain.Receipt
	if err := c.Call(ctx, http.MethodGet, "/admin/receipts?"+p.query(), nil, &out); err != nil {
		return nil, fmt.Errorf("failed to list receipts: %w", err)
	}
	return out, nil
}

// maskAccount keeps only the last four digits for logs.
func maskAccount(n string) string {
	if len(n) <= 4 {
		return n
	}
	return "****" + n[len(n)-4:]
}
