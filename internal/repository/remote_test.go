package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/R3E-Network/bankline/internal/domain"
	apperrors "github.com/R3E-Network/bankline/internal/errors"
)

// fakeRemote is an in-process Remote. When err is set every call fails with it.
type fakeRemote struct {
	mu       sync.Mutex
	err      error
	accounts map[string]domain.Account
	txs      map[string][]domain.Transaction
	payees   map[string]domain.FrequentAccount
	history  []domain.TransferHistory
	nextID   int
	calls    map[string]int

	// beforeUpdate runs once, outside the lock, at the start of the next
	// UpdateAccount call.
	beforeUpdate func()
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		accounts: make(map[string]domain.Account),
		txs:      make(map[string][]domain.Transaction),
		payees:   make(map[string]domain.FrequentAccount),
		nextID:   99,
		calls:    make(map[string]int),
	}
}

func (f *fakeRemote) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeRemote) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeRemote) enter(name string) error {
	f.calls[name]++
	return f.err
}

func (f *fakeRemote) Accounts(_ context.Context) ([]domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("accounts"); err != nil {
		return nil, err
	}
	out := make([]domain.Account, 0, len(f.accounts))
	for _, a := range f.accounts {
		out = append(out, a)
	}
	return out, nil
}

func (f *fakeRemote) Account(_ context.Context, id string) (domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("account"); err != nil {
		return domain.Account{}, err
	}
	a, ok := f.accounts[id]
	if !ok {
		return domain.Account{}, apperrors.HTTPError(404, []byte(`{"message":"account not found"}`))
	}
	return a, nil
}

func (f *fakeRemote) UpdateAccount(_ context.Context, id string, upd domain.AccountUpdate) (domain.Account, error) {
	f.mu.Lock()
	hook := f.beforeUpdate
	f.beforeUpdate = nil
	f.mu.Unlock()
	if hook != nil {
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("update_account"); err != nil {
		return domain.Account{}, err
	}
	a, ok := f.accounts[id]
	if !ok {
		return domain.Account{}, apperrors.HTTPError(404, nil)
	}
	a.Name = upd.Name
	a.IsActive = upd.IsActive
	f.accounts[id] = a
	return a, nil
}

func (f *fakeRemote) DeleteAccount(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("delete_account"); err != nil {
		return err
	}
	delete(f.accounts, id)
	return nil
}

func (f *fakeRemote) Transactions(_ context.Context, accountID string, _, _ int) ([]domain.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("transactions"); err != nil {
		return nil, err
	}
	return append([]domain.Transaction{}, f.txs[accountID]...), nil
}

func (f *fakeRemote) CreateTransfer(_ context.Context, req domain.TransferRequest) (domain.TransferResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("create_transfer"); err != nil {
		return domain.TransferResult{}, err
	}
	id := f.newID("tr")
	res := domain.TransferResult{
		ID:              id,
		Status:          domain.TransferCompleted,
		FromAccountID:   req.FromAccountID,
		ToAccountNumber: req.ToAccountNumber,
		Amount:          req.Amount,
	}
	f.history = append(f.history, domain.HistoryFromResult(res))
	return res, nil
}

func (f *fakeRemote) TransferHistory(_ context.Context) ([]domain.TransferHistory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("transfer_history"); err != nil {
		return nil, err
	}
	return append([]domain.TransferHistory{}, f.history...), nil
}

func (f *fakeRemote) Payees(_ context.Context) ([]domain.FrequentAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("payees"); err != nil {
		return nil, err
	}
	out := make([]domain.FrequentAccount, 0, len(f.payees))
	for _, p := range f.payees {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeRemote) CreatePayee(_ context.Context, p domain.FrequentAccount) (domain.FrequentAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("create_payee"); err != nil {
		return domain.FrequentAccount{}, err
	}
	p.ID = f.newID("srv")
	p.SyncState = ""
	f.payees[p.ID] = p
	return p, nil
}

func (f *fakeRemote) UpdatePayee(_ context.Context, p domain.FrequentAccount) (domain.FrequentAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("update_payee"); err != nil {
		return domain.FrequentAccount{}, err
	}
	if _, ok := f.payees[p.ID]; !ok {
		return domain.FrequentAccount{}, apperrors.HTTPError(404, nil)
	}
	f.payees[p.ID] = p
	return p, nil
}

func (f *fakeRemote) DeletePayee(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("delete_payee"); err != nil {
		return err
	}
	delete(f.payees, id)
	return nil
}

func (f *fakeRemote) newID(prefix string) string {
	id := fmt.Sprintf("%s-%d", prefix, f.nextID)
	f.nextID++
	return id
}
