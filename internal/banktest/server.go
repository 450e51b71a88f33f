// Package banktest runs an in-process imitation of the ATM banking API for
// tests. It speaks the same JSON shapes as the real backend (float amounts,
// Python-style timestamps) and lets tests expire tokens, fail refreshes and
// count calls per route.
package banktest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

const timeLayout = "2006-01-02 15:04:05.000000"

// Fixture seeds one customer and their account.
type Fixture struct {
	Name           string
	AccountNumber  string
	PIN            string
	Role           string
	Balance        int64
	DailyLimit     int64
	DailyWithdrawn int64
}

type account struct {
	id             int64
	userID         int64
	name           string
	number         string
	pin            string
	role           string
	balance        int64
	dailyLimit     int64
	dailyWithdrawn int64
	created        time.Time
}

type txRecord struct {
	id           int64
	accountID    int64
	kind         string
	amount       int64
	balanceAfter int64
	created      time.Time
}

type receiptRecord struct {
	id      int64
	txID    int64
	number  string
	created time.Time
}

type Server struct {
	*httptest.Server

	mu       sync.Mutex
	accounts map[string]*account
	byID     map[int64]*account
	access   map[string]int64
	refresh  map[string]int64
	txs      []txRecord
	receipts []receiptRecord
	hits     map[string]int
	keys     []string
	failNext map[string]failure
	nextID   int64

	withdrawSpelling string
	failRefresh      bool
	refreshGate      chan struct{}
}

type failure struct {
	status int
	body   string
}

// NewServer starts a backend seeded with one customer (1234567890 / 1234,
// balance 1000, daily limit 5000) and one admin (9999999999 / 0000).
func NewServer() *Server {
	s := &Server{
		accounts:         make(map[string]*account),
		byID:             make(map[int64]*account),
		access:           make(map[string]int64),
		refresh:          make(map[string]int64),
		hits:             make(map[string]int),
		failNext:         make(map[string]failure),
		withdrawSpelling: "withdrawal",
	}
	s.AddAccount(Fixture{Name: "Asha Rao", AccountNumber: "1234567890", PIN: "1234", Balance: 1000, DailyLimit: 5000})
	s.AddAccount(Fixture{Name: "Admin", AccountNumber: "9999999999", PIN: "0000", Role: "admin", Balance: 0, DailyLimit: 25000})

	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.countHits)
	api.HandleFunc("/auth/login", s.login).Methods(http.MethodPost).Name("login")
	api.HandleFunc("/auth/refresh", s.refreshToken).Methods(http.MethodPost).Name("refresh")
	api.HandleFunc("/auth/logout", s.logout).Methods(http.MethodPost).Name("logout")
	api.HandleFunc("/auth/validate", s.authed(s.validate)).Methods(http.MethodGet).Name("validate")
	api.HandleFunc("/auth/change-pin", s.authed(s.changePIN)).Methods(http.MethodPost).Name("change-pin")
	api.HandleFunc("/users/register", s.register).Methods(http.MethodPost).Name("register")
	api.HandleFunc("/account/balance", s.authed(s.balance)).Methods(http.MethodGet).Name("balance")
	api.HandleFunc("/transactions/withdraw", s.authed(s.withdraw)).Methods(http.MethodPost).Name("withdraw")
	api.HandleFunc("/transactions/deposit", s.authed(s.deposit)).Methods(http.MethodPost).Name("deposit")
	api.HandleFunc("/transactions/history", s.authed(s.history)).Methods(http.MethodGet).Name("history")
	api.HandleFunc("/receipts/latest/pdf", s.authed(s.latestReceipt)).Methods(http.MethodGet).Name("latest-receipt")
	api.HandleFunc("/receipts/{id:[0-9]+}/pdf", s.authed(s.receiptPDF)).Methods(http.MethodGet).Name("receipt")
	api.HandleFunc("/admin/{kind:users|accounts|transactions|receipts}", s.authed(s.admin)).Methods(http.MethodGet).Name("admin")

	s.Server = httptest.NewServer(r)
	return s
}

// BaseURL is the URL to hand to client.NewClient.
func (s *Server) BaseURL() string { return s.URL + "/api" }

func (s *Server) AddAccount(f Fixture) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	a := &account{
		id: s.nextID, userID: s.nextID, name: f.Name, number: f.AccountNumber, pin: f.PIN, role: f.Role,
		balance: f.Balance, dailyLimit: f.DailyLimit, dailyWithdrawn: f.DailyWithdrawn, created: time.Now().UTC(),
	}
	if a.role == "" {
		a.role = "customer"
	}
	s.accounts[a.number] = a
	s.byID[a.id] = a
}

// Issue mints a credential pair for an account without going through login.
func (s *Server) Issue(accountNumber string) (access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.accounts[accountNumber]
	access, refresh = "acc-"+uuid.NewString(), "ref-"+uuid.NewString()
	s.access[access] = a.id
	s.refresh[refresh] = a.id
	return access, refresh
}

// ExpireAccess invalidates every access credential; refresh credentials
// stay valid.
func (s *Server) ExpireAccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = make(map[string]int64)
}

// SetWithdrawSpelling changes the "type" written for withdrawals. The real
// backend has used both "withdrawal" and "withdraw".
func (s *Server) SetWithdrawSpelling(kind string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.withdrawSpelling = kind
}

// SetFailRefresh makes /auth/refresh answer 401.
func (s *Server) SetFailRefresh(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failRefresh = fail
}

// HoldRefresh blocks every refresh until the returned func is called.
func (s *Server) HoldRefresh() (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.refreshGate = gate
	s.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// FailNext makes the next call to the named route answer with status and body.
func (s *Server) FailNext(route string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext[route] = failure{status: status, body: body}
}

// Hits reports how many requests reached the named route.
func (s *Server) Hits(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[route]
}

// IdempotencyKeys lists the Idempotency-Key headers seen on transaction
// submissions, in arrival order.
func (s *Server) IdempotencyKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.keys...)
}

// Account returns the server-side balance and daily withdrawn total.
func (s *Server) Account(number string) (balance, withdrawn int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.accounts[number]
	return a.balance, a.dailyWithdrawn
}

func (s *Server) countHits(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := ""
		if route := mux.CurrentRoute(r); route != nil {
			name = route.GetName()
		}
		s.mu.Lock()
		s.hits[name]++
		if strings.HasPrefix(name, "withdraw") || strings.HasPrefix(name, "deposit") {
			s.keys = append(s.keys, r.Header.Get("Idempotency-Key"))
		}
		f, fail := s.failNext[name]
		delete(s.failNext, name)
		s.mu.Unlock()

		if fail {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(f.status)
			fmt.Fprint(w, f.body)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authed(h func(http.ResponseWriter, *http.Request, *account)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		s.mu.Lock()
		id, ok := s.access[token]
		a := s.byID[id]
		s.mu.Unlock()
		if !ok || a == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Invalid token"})
			return
		}
		h(w, r, a)
	}
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AccountNumber string `json:"account_number"`
		PIN           string `json:"pin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Validation error"})
		return
	}
	s.mu.Lock()
	a, ok := s.accounts[body.AccountNumber]
	pinOK := ok && a.pin == body.PIN
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Account not found"})
		return
	}
	if !pinOK {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Invalid PIN"})
		return
	}
	access, refresh := s.Issue(a.number)
	s.mu.Lock()
	resp := map[string]any{
		"success": true, "token": access, "refresh_token": refresh,
		"user": userJSON(a), "account": accountJSON(a),
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) refreshToken(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	gate := s.refreshGate
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

	s.mu.Lock()
	id, ok := s.refresh[token]
	if s.failRefresh || !ok {
		s.mu.Unlock()
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Token revoked"})
		return
	}
	// Refresh credentials rotate: the old one is spent.
	delete(s.refresh, token)
	access, refresh := "acc-"+uuid.NewString(), "ref-"+uuid.NewString()
	s.access[access] = id
	s.refresh[refresh] = id
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "token": access, "refresh_token": refresh})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	s.mu.Lock()
	delete(s.refresh, token)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) validate(w http.ResponseWriter, _ *http.Request, a *account) {
	s.mu.Lock()
	resp := map[string]any{"success": true, "user": userJSON(a), "account": accountJSON(a)}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) changePIN(w http.ResponseWriter, r *http.Request, a *account) {
	var body struct {
		Current string `json:"current_pin"`
		New     string `json:"new_pin"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.pin != body.Current {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Current PIN incorrect"})
		return
	}
	a.pin = body.New
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "PIN changed successfully"})
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name          string `json:"name"`
		Email         string `json:"email"`
		Phone         string `json:"phone"`
		AccountNumber string `json:"account_number"`
		PIN           string `json:"pin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Validation error"})
		return
	}
	s.mu.Lock()
	_, exists := s.accounts[body.AccountNumber]
	s.mu.Unlock()
	if exists {
		writeJSON(w, http.StatusConflict, map[string]any{"success": false, "message": "Account number already exists"})
		return
	}
	s.AddAccount(Fixture{Name: body.Name, AccountNumber: body.AccountNumber, PIN: body.PIN, DailyLimit: 25000})
	s.mu.Lock()
	a := s.accounts[body.AccountNumber]
	resp := map[string]any{"success": true, "user": userJSON(a), "account": accountJSON(a)}
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) balance(w http.ResponseWriter, _ *http.Request, a *account) {
	s.mu.Lock()
	resp := map[string]any{
		"balance": float64(a.balance), "daily_limit": float64(a.dailyLimit), "daily_withdrawn": float64(a.dailyWithdrawn),
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, resp)
}

func decodeAmount(r *http.Request) (int64, bool) {
	var body struct {
		Amount float64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Amount < 0.01 {
		return 0, false
	}
	return int64(body.Amount), true
}

func (s *Server) withdraw(w http.ResponseWriter, r *http.Request, a *account) {
	amount, ok := decodeAmount(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Validation error"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.dailyWithdrawn+amount > a.dailyLimit {
		writeJSON(w, http.StatusForbidden, map[string]any{"success": false, "message": "Daily limit exceeded"})
		return
	}
	if a.balance < amount {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Insufficient balance"})
		return
	}
	a.balance -= amount
	a.dailyWithdrawn += amount
	s.settleLocked(w, a, s.withdrawSpelling, amount)
}

func (s *Server) deposit(w http.ResponseWriter, r *http.Request, a *account) {
	amount, ok := decodeAmount(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Validation error"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a.balance += amount
	s.settleLocked(w, a, "deposit", amount)
}

func (s *Server) settleLocked(w http.ResponseWriter, a *account, kind string, amount int64) {
	now := time.Now().UTC()
	tx := txRecord{id: int64(len(s.txs) + 1), accountID: a.id, kind: kind, amount: amount, balanceAfter: a.balance, created: now}
	s.txs = append(s.txs, tx)
	rec := receiptRecord{
		id: int64(len(s.receipts) + 1), txID: tx.id, created: now,
		number: fmt.Sprintf("RCP%s%d", now.Format("20060102150405"), tx.id),
	}
	s.receipts = append(s.receipts, rec)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"transaction": txJSON(tx),
		"receipt":     receiptJSON(rec),
		"new_balance": float64(a.balance),
	})
}

func (s *Server) history(w http.ResponseWriter, r *http.Request, a *account) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 10
	}
	s.mu.Lock()
	out := []map[string]any{}
	for i := len(s.txs) - 1; i >= 0 && len(out) < limit; i-- {
		if s.txs[i].accountID == a.id {
			out = append(out, txJSON(s.txs[i]))
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) receiptPDF(w http.ResponseWriter, r *http.Request, _ *account) {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.receipts {
		if rec.id == id {
			writePDF(w, rec)
			return
		}
	}
	http.Error(w, "Not Found", http.StatusNotFound)
}

func (s *Server) latestReceipt(w http.ResponseWriter, _ *http.Request, a *account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.receipts) - 1; i >= 0; i-- {
		rec := s.receipts[i]
		if s.txs[rec.txID-1].accountID == a.id {
			writePDF(w, rec)
			return
		}
	}
	http.Error(w, "Not Found", http.StatusNotFound)
}

func (s *Server) admin(w http.ResponseWriter, r *http.Request, a *account) {
	if a.role != "admin" {
		writeJSON(w, http.StatusForbidden, map[string]any{"success": false, "message": "Forbidden"})
		return
	}
	q := r.URL.Query()
	limit, err := strconv.Atoi(q.Get("limit"))
	if err != nil || limit <= 0 {
		limit = 20
	}
	offset, _ := strconv.Atoi(q.Get("offset"))

	s.mu.Lock()
	var rows []map[string]any
	switch mux.Vars(r)["kind"] {
	case "users":
		for id := int64(1); id <= s.nextID; id++ {
			rows = append(rows, userJSON(s.byID[id]))
		}
	case "accounts":
		for id := int64(1); id <= s.nextID; id++ {
			rows = append(rows, accountJSON(s.byID[id]))
		}
	case "transactions":
		for _, tx := range s.txs {
			rows = append(rows, txJSON(tx))
		}
	case "receipts":
		for _, rec := range s.receipts {
			rows = append(rows, receiptJSON(rec))
		}
	}
	s.mu.Unlock()

	out := []map[string]any{}
	for i := offset; i < len(rows) && len(out) < limit; i++ {
		out = append(out, rows[i])
	}
	writeJSON(w, http.StatusOK, out)
}

func writePDF(w http.ResponseWriter, rec receiptRecord) {
	w.Header().Set("Content-Type", "application/pdf")
	fmt.Fprintf(w, "%%PDF-1.4\n%% receipt %s\n%%%%EOF\n", rec.number)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func userJSON(a *account) map[string]any {
	return map[string]any{
		"id": a.userID, "name": a.name, "email": strings.ToLower(strings.ReplaceAll(a.name, " ", ".")) + "@example.com",
		"phone": "9000000000", "role": a.role, "created_at": a.created.Format(timeLayout),
	}
}

func accountJSON(a *account) map[string]any {
	return map[string]any{
		"id": a.id, "user_id": a.userID, "account_number": a.number,
		"balance": float64(a.balance), "daily_limit": float64(a.dailyLimit),
		"daily_withdrawn": float64(a.dailyWithdrawn), "created_at": a.created.Format(timeLayout),
	}
}

func txJSON(tx txRecord) map[string]any {
	desc := "ATM Deposit"
	if tx.kind != "deposit" {
		desc = "ATM Withdrawal"
	}
	return map[string]any{
		"id": tx.id, "account_id": tx.accountID, "type": tx.kind, "amount": float64(tx.amount),
		"balance_after": float64(tx.balanceAfter), "description": desc, "created_at": tx.created.Format(timeLayout),
	}
}

func receiptJSON(rec receiptRecord) map[string]any {
	return map[string]any{
		"id": rec.id, "transaction_id": rec.txID, "receipt_number": rec.number,
		"content": "", "created_at": rec.created.Format(timeLayout),
	}
}
