package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/R3E-Network/bankline/internal/domain"
)

// FakeBank is an in-process bank API used by client and repository tests.
type FakeBank struct {
	mu           sync.Mutex
	accounts     map[string]domain.Account
	transactions map[string][]domain.Transaction
	history      []domain.TransferHistory
	payees       map[string]domain.FrequentAccount
	statements   map[string][]byte
	nextID       int
	token        string
	failures     []int
	hits         map[string]int
	now          func() time.Time

	router *mux.Router
	server *httptest.Server
}

// NewFakeBank starts a fake bank API server, closed when t finishes.
func NewFakeBank(t testing.TB) *FakeBank {
	t.Helper()
	b := &FakeBank{
		accounts:     make(map[string]domain.Account),
		transactions: make(map[string][]domain.Transaction),
		payees:       make(map[string]domain.FrequentAccount),
		statements:   make(map[string][]byte),
		nextID:       1,
		hits:         make(map[string]int),
		now:          func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) },
	}

	r := mux.NewRouter()
	r.Use(b.injectFailures, b.requireToken)
	r.HandleFunc("/accounts", b.handleListAccounts).Methods(http.MethodGet).Name("list_accounts")
	r.HandleFunc("/accounts/{id}", b.handleGetAccount).Methods(http.MethodGet).Name("get_account")
	r.HandleFunc("/accounts/{id}", b.handleUpdateAccount).Methods(http.MethodPut).Name("update_account")
	r.HandleFunc("/accounts/{id}", b.handleDeleteAccount).Methods(http.MethodDelete).Name("delete_account")
	r.HandleFunc("/accounts/{id}/transactions", b.handleListTransactions).Methods(http.MethodGet).Name("list_transactions")
	r.HandleFunc("/accounts/{id}/statements", b.handleUploadStatement).Methods(http.MethodPost).Name("upload_statement")
	r.HandleFunc("/transfers", b.handleCreateTransfer).Methods(http.MethodPost).Name("create_transfer")
	r.HandleFunc("/transfers/history", b.handleTransferHistory).Methods(http.MethodGet).Name("transfer_history")
	r.HandleFunc("/payees", b.handleListPayees).Methods(http.MethodGet).Name("list_payees")
	r.HandleFunc("/payees", b.handleCreatePayee).Methods(http.MethodPost).Name("create_payee")
	r.HandleFunc("/payees/{id}", b.handleUpdatePayee).Methods(http.MethodPut).Name("update_payee")
	r.HandleFunc("/payees/{id}", b.handleDeletePayee).Methods(http.MethodDelete).Name("delete_payee")
	b.router = r

	b.server = httptest.NewServer(r)
	t.Cleanup(b.server.Close)
	return b
}

// URL returns the server base URL.
func (b *FakeBank) URL() string { return b.server.URL }

// RequireToken makes every route demand "Authorization: Bearer <token>".
func (b *FakeBank) RequireToken(token string) {
	b.mu.Lock()
	b.token = token
	b.mu.Unlock()
}

// FailNext answers the next len(statuses) requests with those statuses.
func (b *FakeBank) FailNext(statuses ...int) {
	b.mu.Lock()
	b.failures = append(b.failures, statuses...)
	b.mu.Unlock()
}

// SetNextID sets the number used for the next server-assigned id.
func (b *FakeBank) SetNextID(n int) {
	b.mu.Lock()
	b.nextID = n
	b.mu.Unlock()
}

// Hits returns how many requests reached the named route.
func (b *FakeBank) Hits(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits[route]
}

// AddAccount seeds an account with its transactions.
func (b *FakeBank) AddAccount(acct domain.Account) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range acct.Transactions {
		acct.Transactions[i].AccountID = acct.ID
	}
	b.transactions[acct.ID] = append(b.transactions[acct.ID], acct.Transactions...)
	acct.Transactions = nil
	b.accounts[acct.ID] = acct
}

// Account returns the server-side account.
func (b *FakeBank) Account(id string) (domain.Account, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	acct, ok := b.accounts[id]
	return acct, ok
}

// AddPayee seeds a payee.
func (b *FakeBank) AddPayee(p domain.FrequentAccount) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.payees[p.ID] = p
}

// Payees returns the server-side payees ordered by id.
func (b *FakeBank) Payees() []domain.FrequentAccount {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.FrequentAccount, 0, len(b.payees))
	for _, p := range b.payees {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Statement returns an uploaded statement body.
func (b *FakeBank) Statement(accountID string) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.statements[accountID]
}

func (b *FakeBank) nextIDLocked(prefix string) string {
	id := fmt.Sprintf("%s-%d", prefix, b.nextID)
	b.nextID++
	return id
}

func (b *FakeBank) injectFailures(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		if route := mux.CurrentRoute(r); route != nil {
			b.hits[route.GetName()]++
		}
		var status int
		if len(b.failures) > 0 {
			status = b.failures[0]
			b.failures = b.failures[1:]
		}
		b.mu.Unlock()

		if status != 0 {
			writeJSON(w, status, map[string]string{"message": http.StatusText(status)})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *FakeBank) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		token := b.token
		b.mu.Unlock()

		if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *FakeBank) handleListAccounts(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]domain.Account, 0, len(b.accounts))
	for _, acct := range b.accounts {
		out = append(out, acct)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	writeJSON(w, http.StatusOK, out)
}

func (b *FakeBank) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	acct, ok := b.accounts[mux.Vars(r)["id"]]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "account not found"})
		return
	}
	acct.Transactions = append([]domain.Transaction(nil), b.transactions[acct.ID]...)
	writeJSON(w, http.StatusOK, acct)
}

func (b *FakeBank) handleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	var upd domain.AccountUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid body"})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	id := mux.Vars(r)["id"]
	acct, ok := b.accounts[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "account not found"})
		return
	}
	acct.Name = upd.Name
	acct.IsActive = upd.IsActive
	acct.UpdatedAt = b.now()
	b.accounts[id] = acct
	writeJSON(w, http.StatusOK, acct)
}

func (b *FakeBank) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := mux.Vars(r)["id"]
	delete(b.accounts, id)
	delete(b.transactions, id)
	w.WriteHeader(http.StatusNoContent)
}

func (b *FakeBank) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	b.mu.Lock()
	defer b.mu.Unlock()

	id := mux.Vars(r)["id"]
	if _, ok := b.accounts[id]; !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "account not found"})
		return
	}
	acct := domain.Account{Transactions: b.transactions[id]}
	sorted := acct.SortedTransactions()
	if offset > len(sorted) {
		offset = len(sorted)
	}
	end := len(sorted)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	writeJSON(w, http.StatusOK, sorted[offset:end])
}

func (b *FakeBank) handleUploadStatement(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil || len(data) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "empty statement"})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	id := mux.Vars(r)["id"]
	b.statements[id] = data
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":          b.nextIDLocked("st"),
		"account_id":  id,
		"status":      "received",
		"received_at": b.now(),
	})
}

func (b *FakeBank) handleCreateTransfer(w http.ResponseWriter, r *http.Request) {
	var req domain.TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid body"})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	acct, ok := b.accounts[req.FromAccountID]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "account not found"})
		return
	}
	if !req.Amount.IsPositive() {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "amount must be positive"})
		return
	}
	if acct.Balance.LessThan(req.Amount) {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": "insufficient funds"})
		return
	}

	id := b.nextIDLocked("tr")
	now := b.now()
	result := domain.TransferResult{
		ID:              id,
		Status:          domain.TransferCompleted,
		FromAccountID:   req.FromAccountID,
		ToAccountNumber: req.ToAccountNumber,
		Amount:          req.Amount,
		Reference:       strings.ToUpper(id),
		CreatedAt:       now,
	}
	acct.Balance = acct.Balance.Sub(req.Amount)
	acct.UpdatedAt = now
	b.accounts[acct.ID] = acct
	b.transactions[acct.ID] = append(b.transactions[acct.ID], domain.Transaction{
		ID:          id,
		Amount:      req.Amount,
		Type:        domain.TransactionTransfer,
		IsOutgoing:  true,
		Category:    "transfer",
		Description: req.Description,
		Date:        now,
		AccountID:   acct.ID,
	})
	b.history = append(b.history, domain.HistoryFromResult(result))
	writeJSON(w, http.StatusCreated, result)
}

func (b *FakeBank) handleTransferHistory(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	writeJSON(w, http.StatusOK, append([]domain.TransferHistory{}, b.history...))
}

func (b *FakeBank) handleListPayees(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	out := make([]domain.FrequentAccount, 0, len(b.payees))
	for _, p := range b.payees {
		out = append(out, p)
	}
	b.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	writeJSON(w, http.StatusOK, out)
}

func (b *FakeBank) handleCreatePayee(w http.ResponseWriter, r *http.Request) {
	var p domain.FrequentAccount
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil || p.AccountNumber == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "account number required"})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	p.ID = b.nextIDLocked("srv")
	p.SyncState = ""
	b.payees[p.ID] = p
	writeJSON(w, http.StatusCreated, p)
}

func (b *FakeBank) handleUpdatePayee(w http.ResponseWriter, r *http.Request) {
	var p domain.FrequentAccount
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid body"})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	id := mux.Vars(r)["id"]
	if _, ok := b.payees[id]; !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "payee not found"})
		return
	}
	p.ID = id
	b.payees[id] = p
	writeJSON(w, http.StatusOK, p)
}

func (b *FakeBank) handleDeletePayee(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.payees, mux.Vars(r)["id"])
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Money parses a decimal literal, panicking on malformed input.
func Money(s string) domain.Money {
	return domain.NewMoney(decimal.RequireFromString(s))
}
