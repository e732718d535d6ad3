package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/bankline/internal/domain"
	apperrors "github.com/R3E-Network/bankline/internal/errors"
	"github.com/R3E-Network/bankline/internal/storage"
	"github.com/R3E-Network/bankline/internal/storage/memory"
	"github.com/R3E-Network/bankline/pkg/logger"
	"github.com/R3E-Network/bankline/pkg/testutil"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

var errOffline = apperrors.NoInternetConnection(errors.New("dial tcp: network is unreachable"))

type harness struct {
	r      *Reconciler
	store  *memory.Store
	remote *fakeRemote
}

func newHarness(t *testing.T, opts ...func(*Config)) *harness {
	t.Helper()
	store := memory.New()
	remote := newFakeRemote()
	cfg := Config{
		Cache:  store,
		Remote: remote,
		Log:    logger.NewNop(),
		Clock:  testutil.FixedClock(testNow),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	r, err := New(cfg)
	require.NoError(t, err)
	return &harness{r: r, store: store, remote: remote}
}

func checking(id, balance string) domain.Account {
	return domain.Account{
		ID:       id,
		Name:     "Everyday",
		Type:     domain.AccountChecking,
		Balance:  testutil.Money(balance),
		Number:   "001-" + id,
		IsActive: true,
	}
}

func TestNew_RequiresCache(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestMergeAccount_Idempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	server := checking("A1", "1000")
	server.Transactions = []domain.Transaction{
		{ID: "t1", Amount: testutil.Money("20"), Type: domain.TransactionFee, Date: testNow},
	}

	require.NoError(t, h.r.MergeAccount(ctx, server))
	first, err := h.r.cachedAccount(ctx, "A1")
	require.NoError(t, err)

	require.NoError(t, h.r.MergeAccount(ctx, server))
	second, err := h.r.cachedAccount(ctx, "A1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, second.Transactions, 1)
	assert.Equal(t, "A1", second.Transactions[0].AccountID)
}

func TestMergeAccount_OverwritesServerFields(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.r.MergeAccount(ctx, checking("A1", "1000")))

	updated := checking("A1", "750.25")
	updated.Name = "Bills"
	updated.IsActive = false
	updated.UpdatedAt = testNow.Add(time.Hour)
	require.NoError(t, h.r.MergeAccount(ctx, updated))

	acct, err := h.r.cachedAccount(ctx, "A1")
	require.NoError(t, err)
	assert.Equal(t, "Bills", acct.Name)
	assert.False(t, acct.IsActive)
	assert.Equal(t, "750.25", acct.Balance.String())
	assert.Equal(t, testNow.Add(time.Hour), acct.UpdatedAt)
}

func TestMergeTransactions_LeavesBalance(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.r.MergeAccount(ctx, checking("A1", "1000")))

	txs := []domain.Transaction{
		{ID: "t1", Amount: testutil.Money("300"), Type: domain.TransactionDeposit, Date: testNow},
		{ID: "t2", Amount: testutil.Money("50"), Type: domain.TransactionWithdrawal, Date: testNow},
	}
	require.NoError(t, h.r.MergeTransactions(ctx, "A1", txs))
	require.NoError(t, h.r.MergeTransactions(ctx, "A1", txs))

	acct, err := h.r.cachedAccount(ctx, "A1")
	require.NoError(t, err)
	assert.Equal(t, "1000", acct.Balance.String())
	assert.Len(t, acct.Transactions, 2)
}

func TestAddTransaction_AppliesDeltaOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.r.MergeAccount(ctx, checking("A1", "1000")))

	deposit := domain.Transaction{ID: "d1", Amount: testutil.Money("200"), Type: domain.TransactionDeposit, Date: testNow}
	withdrawal := domain.Transaction{ID: "w1", Amount: testutil.Money("50.50"), Type: domain.TransactionWithdrawal, Date: testNow}

	_, err := h.r.AddTransaction(ctx, deposit, "A1")
	require.NoError(t, err)
	acct, err := h.r.AddTransaction(ctx, withdrawal, "A1")
	require.NoError(t, err)
	assert.Equal(t, "1149.5", acct.Balance.String())

	acct, err = h.r.AddTransaction(ctx, deposit, "A1")
	require.NoError(t, err)
	assert.Equal(t, "1149.5", acct.Balance.String())
	assert.Len(t, acct.Transactions, 2)
	assert.Equal(t, "A1", acct.Transactions[0].AccountID)
}

func TestAddTransaction_Errors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.r.AddTransaction(ctx, domain.Transaction{ID: "d1", Amount: testutil.Money("1"), Type: domain.TransactionDeposit}, "missing")
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))

	_, err = h.r.AddTransaction(ctx, domain.Transaction{ID: "bad", Amount: testutil.Money("-1"), Type: domain.TransactionDeposit}, "missing")
	require.Error(t, err)
	assert.NotEqual(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestAccount_OfflineFallsBackToCache(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.r.MergeAccount(ctx, checking("A1", "1000")))

	h.remote.setErr(errOffline)
	acct, err := h.r.Account(ctx, "A1")
	require.NoError(t, err)
	assert.Equal(t, "A1", acct.ID)
	assert.Equal(t, "1000", acct.Balance.String())

	accounts, err := h.r.Accounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
}

func TestAccount_OfflineAndUncached(t *testing.T) {
	h := newHarness(t)
	h.remote.setErr(apperrors.Offline())

	_, err := h.r.Account(context.Background(), "A1")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestAccount_NonConnectivityErrorPropagates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.r.MergeAccount(ctx, checking("A1", "1000")))

	for _, err := range []error{
		apperrors.HTTPError(500, nil),
		apperrors.Unauthorized(nil),
		apperrors.Timeout(errors.New("deadline")),
		apperrors.Connection(errors.New("reset")),
	} {
		h.remote.setErr(err)
		_, got := h.r.Account(ctx, "A1")
		require.Error(t, got)
		assert.Equal(t, apperrors.KindOf(err), apperrors.KindOf(got))
	}
}

func TestAccounts_OnlineMergesIntoCache(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.remote.accounts["A1"] = checking("A1", "10")
	h.remote.accounts["A2"] = checking("A2", "20")

	accounts, err := h.r.Accounts(ctx)
	require.NoError(t, err)
	assert.Len(t, accounts, 2)
	assert.Equal(t, 2, h.store.Len(storage.KindAccount))
}

func TestFetch_StateSequence(t *testing.T) {
	var mu sync.Mutex
	var states []string
	h := newHarness(t, func(c *Config) {
		c.Observer = func(op string, s State) {
			mu.Lock()
			defer mu.Unlock()
			states = append(states, op+":"+s.String())
		}
	})
	ctx := context.Background()
	h.remote.accounts["A1"] = checking("A1", "10")

	_, err := h.r.Account(ctx, "A1")
	require.NoError(t, err)
	assert.Equal(t, []string{"account:fetching", "account:merging_local", "account:done"}, states)

	states = nil
	h.remote.setErr(errOffline)
	_, err = h.r.Account(ctx, "A1")
	require.NoError(t, err)
	assert.Equal(t, []string{"account:fetching", "account:merging_local", "account:done"}, states)

	states = nil
	h.remote.setErr(apperrors.HTTPError(500, nil))
	_, err = h.r.Account(ctx, "A1")
	require.Error(t, err)
	assert.Equal(t, []string{"account:fetching", "account:done"}, states)
}

func TestTransactions_PagesCacheOffline(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	acct := checking("A1", "1000")
	for i, day := range []int{1, 3, 2} {
		acct.Transactions = append(acct.Transactions, domain.Transaction{
			ID:     string(rune('a' + i)),
			Amount: testutil.Money("1"),
			Type:   domain.TransactionFee,
			Date:   time.Date(2024, 5, day, 0, 0, 0, 0, time.UTC),
		})
	}
	require.NoError(t, h.r.MergeAccount(ctx, acct))

	h.remote.setErr(errOffline)
	txs, err := h.r.Transactions(ctx, "A1", 2, 0)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "b", txs[0].ID)
	assert.Equal(t, "c", txs[1].ID)

	txs, err = h.r.Transactions(ctx, "A1", 2, 2)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "a", txs[0].ID)

	txs, err = h.r.Transactions(ctx, "A1", 2, 10)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestTransactions_OnlineMergesIntoAccount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.r.MergeAccount(ctx, checking("A1", "1000")))
	h.remote.txs["A1"] = []domain.Transaction{{ID: "t9", Amount: testutil.Money("5"), Type: domain.TransactionFee, Date: testNow}}

	txs, err := h.r.Transactions(ctx, "A1", 0, 0)
	require.NoError(t, err)
	require.Len(t, txs, 1)

	acct, err := h.r.cachedAccount(ctx, "A1")
	require.NoError(t, err)
	assert.True(t, acct.HasTransaction("t9"))
	assert.Equal(t, "1000", acct.Balance.String())

	_, err = h.r.Transactions(ctx, "uncached", 0, 0)
	require.NoError(t, err)
}

func TestUpdateAccount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.remote.accounts["A1"] = checking("A1", "1000")
	require.NoError(t, h.r.MergeAccount(ctx, checking("A1", "1000")))

	acct, err := h.r.UpdateAccount(ctx, "A1", domain.AccountUpdate{Name: "Renamed", IsActive: true})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", acct.Name)
	assert.Equal(t, "Renamed", h.remote.accounts["A1"].Name)

	h.remote.setErr(errOffline)
	acct, err = h.r.UpdateAccount(ctx, "A1", domain.AccountUpdate{Name: "Offline 1", IsActive: true})
	require.NoError(t, err)
	assert.Equal(t, "Offline 1", acct.Name)
	_, err = h.r.UpdateAccount(ctx, "A1", domain.AccountUpdate{Name: "Offline 2", IsActive: false})
	require.NoError(t, err)

	ops, err := h.r.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, domain.OpUpdateAccount, ops[0].Op)

	h.remote.setErr(nil)
	report, err := h.r.SyncPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, SyncReport{Synced: 1}, report)
	assert.Equal(t, "Offline 2", h.remote.accounts["A1"].Name)
	assert.False(t, h.remote.accounts["A1"].IsActive)
}

func TestUpdateAccount_ServerRejection(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.r.MergeAccount(ctx, checking("A1", "1000")))
	h.remote.setErr(apperrors.HTTPError(422, []byte(`{"message":"bad name"}`)))

	_, err := h.r.UpdateAccount(ctx, "A1", domain.AccountUpdate{Name: ""})
	require.Error(t, err)
	require.NotNil(t, apperrors.Get(err))
	assert.Equal(t, "bad name", apperrors.Get(err).ServerMessage())

	ops, err := h.r.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, ops)
}

func TestDeleteAccount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.r.MergeAccount(ctx, checking("A1", "1")))
	require.NoError(t, h.r.MergeAccount(ctx, checking("A2", "2")))
	h.remote.accounts["A1"] = checking("A1", "1")

	require.NoError(t, h.r.DeleteAccount(ctx, "A1"))
	assert.Equal(t, 1, h.remote.count("delete_account"))
	_, ok := h.remote.accounts["A1"]
	assert.False(t, ok)

	h.remote.setErr(errOffline)
	require.NoError(t, h.r.DeleteAccount(ctx, "A2"))
	assert.Equal(t, 0, h.store.Len(storage.KindAccount))

	ops, err := h.r.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, domain.OpDeleteAccount, ops[0].Op)
	assert.Equal(t, "A2", ops[0].EntityID)

	h.remote.setErr(apperrors.HTTPError(500, nil))
	err = h.r.DeleteAccount(ctx, "A3")
	require.Error(t, err)
}

func TestDeleteAccount_OfflineAfterOfflineUpdate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.remote.accounts["A1"] = checking("A1", "1000")
	require.NoError(t, h.r.MergeAccount(ctx, checking("A1", "1000")))

	h.remote.setErr(errOffline)
	_, err := h.r.UpdateAccount(ctx, "A1", domain.AccountUpdate{Name: "Renamed", IsActive: true})
	require.NoError(t, err)
	require.NoError(t, h.r.DeleteAccount(ctx, "A1"))

	ops, err := h.r.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, domain.OpDeleteAccount, ops[0].Op)

	h.remote.setErr(nil)
	report, err := h.r.SyncPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, SyncReport{Synced: 1}, report)
	assert.Equal(t, 0, h.store.Len(storage.KindAccount))
	assert.Zero(t, h.remote.count("update_account"))
	_, ok := h.remote.accounts["A1"]
	assert.False(t, ok)
}

func TestSyncPending_UpdateReplayDoesNotRestoreDeletedAccount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.remote.accounts["A1"] = checking("A1", "1000")
	require.NoError(t, h.r.MergeAccount(ctx, checking("A1", "1000")))

	h.remote.setErr(errOffline)
	_, err := h.r.UpdateAccount(ctx, "A1", domain.AccountUpdate{Name: "Renamed", IsActive: true})
	require.NoError(t, err)

	h.remote.setErr(nil)
	h.remote.beforeUpdate = func() {
		unlock := h.r.locks.Lock(entityKey(storage.KindAccount, "A1"))
		defer unlock()
		require.NoError(t, h.r.accounts.Delete(ctx, "A1"))
	}
	report, err := h.r.SyncPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, SyncReport{Synced: 1}, report)
	assert.Equal(t, 0, h.store.Len(storage.KindAccount))
}

func TestRemapPayee(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	local := domain.FrequentAccount{ID: "local-1", Name: "Bob", AccountNumber: "555", SyncState: domain.SyncLocal}
	require.NoError(t, h.r.putPayee(ctx, local))

	server := local
	server.ID = "srv-99"
	require.NoError(t, h.r.RemapPayee(ctx, "local-1", server))

	_, err := h.r.Payee(ctx, "local-1")
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))

	got, err := h.r.Payee(ctx, "srv-99")
	require.NoError(t, err)
	assert.Equal(t, "Bob", got.Name)
	assert.Equal(t, domain.SyncSynced, got.SyncState)
	assert.Equal(t, 1, h.store.Len(storage.KindPayee))
	assert.Zero(t, h.r.locks.size())

	require.Error(t, h.r.RemapPayee(ctx, "local-2", domain.FrequentAccount{}))
}

func TestSavePayee_Online(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	saved, err := h.r.SavePayee(ctx, domain.FrequentAccount{Name: "Bob", AccountNumber: "555"})
	require.NoError(t, err)
	assert.Equal(t, "srv-99", saved.ID)
	assert.Equal(t, domain.SyncSynced, saved.SyncState)

	payees, err := h.r.Payees(ctx)
	require.NoError(t, err)
	require.Len(t, payees, 1)
	assert.Equal(t, "srv-99", payees[0].ID)
	assert.Equal(t, 1, h.store.Len(storage.KindPayee))

	saved.Nickname = "Bobby"
	updated, err := h.r.SavePayee(ctx, saved)
	require.NoError(t, err)
	assert.Equal(t, "Bobby", updated.Nickname)
	assert.Equal(t, 1, h.remote.count("update_payee"))

	_, err = h.r.SavePayee(ctx, domain.FrequentAccount{Name: "No number"})
	require.Error(t, err)
}

func TestSavePayee_OfflineThenSync(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.remote.setErr(errOffline)

	saved, err := h.r.SavePayee(ctx, domain.FrequentAccount{Name: "Bob", AccountNumber: "555"})
	require.NoError(t, err)
	assert.True(t, domain.IsLocalID(saved.ID))
	assert.Equal(t, domain.SyncLocal, saved.SyncState)

	saved.Nickname = "Bobby"
	_, err = h.r.SavePayee(ctx, saved)
	require.NoError(t, err)

	ops, err := h.r.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, domain.OpCreatePayee, ops[0].Op)

	report, err := h.r.SyncPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, SyncReport{Remaining: 1}, report)

	h.remote.setErr(nil)
	report, err = h.r.SyncPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, SyncReport{Synced: 1}, report)

	_, err = h.r.Payee(ctx, saved.ID)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
	got, err := h.r.Payee(ctx, "srv-99")
	require.NoError(t, err)
	assert.Equal(t, "Bobby", got.Nickname)
	assert.Equal(t, domain.SyncSynced, got.SyncState)
}

func TestDeletePayee(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.remote.setErr(errOffline)
	local, err := h.r.SavePayee(ctx, domain.FrequentAccount{Name: "Bob", AccountNumber: "555"})
	require.NoError(t, err)
	require.NoError(t, h.r.DeletePayee(ctx, local.ID))

	ops, err := h.r.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, ops)
	assert.Zero(t, h.remote.count("delete_payee"))

	h.remote.setErr(nil)
	synced, err := h.r.SavePayee(ctx, domain.FrequentAccount{Name: "Ann", AccountNumber: "777"})
	require.NoError(t, err)
	require.NoError(t, h.r.DeletePayee(ctx, synced.ID))
	assert.Equal(t, 1, h.remote.count("delete_payee"))
	assert.Empty(t, h.remote.payees)
}

func TestCreateTransfer_Online(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.r.MergeAccount(ctx, checking("A1", "1000")))

	res, err := h.r.CreateTransfer(ctx, domain.TransferRequest{
		FromAccountID:   "A1",
		ToAccountNumber: "999",
		Amount:          testutil.Money("250"),
	})
	require.NoError(t, err)
	assert.Equal(t, "tr-99", res.ID)
	assert.Equal(t, domain.SyncSynced, res.SyncState)

	acct, err := h.r.cachedAccount(ctx, "A1")
	require.NoError(t, err)
	assert.Equal(t, "750", acct.Balance.String())
	assert.True(t, acct.HasTransaction("tr-99"))

	h.remote.setErr(errOffline)
	history, err := h.r.TransferHistory(ctx)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "tr-99", history[0].ID)

	_, err = h.r.CreateTransfer(ctx, domain.TransferRequest{FromAccountID: "A1", ToAccountNumber: "999"})
	require.Error(t, err)
}

func TestCreateTransfer_OfflineThenSync(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.r.MergeAccount(ctx, checking("A1", "1000")))
	h.remote.setErr(errOffline)

	req := domain.TransferRequest{FromAccountID: "A1", ToAccountNumber: "999", Amount: testutil.Money("100")}
	res, err := h.r.CreateTransfer(ctx, req)
	require.NoError(t, err)
	assert.True(t, domain.IsLocalID(res.ID))
	assert.Equal(t, domain.TransferPending, res.Status)

	acct, err := h.r.cachedAccount(ctx, "A1")
	require.NoError(t, err)
	assert.Equal(t, "900", acct.Balance.String())

	_, err = h.r.CreateTransfer(ctx, domain.TransferRequest{FromAccountID: "nope", ToAccountNumber: "999", Amount: testutil.Money("1")})
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))

	h.remote.setErr(nil)
	report, err := h.r.SyncPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, SyncReport{Synced: 1}, report)

	acct, err = h.r.cachedAccount(ctx, "A1")
	require.NoError(t, err)
	assert.Equal(t, "900", acct.Balance.String())
	assert.True(t, acct.HasTransaction("tr-99"))
	assert.False(t, acct.HasTransaction(res.ID))

	entries, err := h.r.history.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "tr-99", entries[0].ID)
	assert.Equal(t, domain.SyncSynced, entries[0].SyncState)
}

func TestSyncPending_DropsRejectedTransfer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.r.MergeAccount(ctx, checking("A1", "1000")))
	h.remote.setErr(errOffline)

	res, err := h.r.CreateTransfer(ctx, domain.TransferRequest{FromAccountID: "A1", ToAccountNumber: "999", Amount: testutil.Money("5000")})
	require.NoError(t, err)

	h.remote.setErr(apperrors.ServerError(200, []byte(`{"success":false,"message":"insufficient funds"}`)))
	report, err := h.r.SyncPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, SyncReport{Dropped: 1}, report)

	entry, ok, err := h.r.history.Get(ctx, res.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.TransferFailed, entry.Status)
}

func TestSyncPending_TransientFailuresBounded(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.MaxAttempts = 2 })
	ctx := context.Background()
	require.NoError(t, h.r.MergeAccount(ctx, checking("A1", "1")))
	h.remote.setErr(errOffline)
	require.NoError(t, h.r.DeleteAccount(ctx, "A1"))

	h.remote.setErr(apperrors.HTTPError(503, nil))
	report, err := h.r.SyncPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, SyncReport{Remaining: 1}, report)

	ops, err := h.r.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, 1, ops[0].Attempts)

	report, err = h.r.SyncPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, SyncReport{Dropped: 1}, report)

	ops, err = h.r.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, ops)
}

func TestSyncPending_KeepsPayloadReplacedDuringReplay(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.remote.accounts["A1"] = checking("A1", "1000")
	require.NoError(t, h.r.MergeAccount(ctx, checking("A1", "1000")))

	h.remote.setErr(errOffline)
	_, err := h.r.UpdateAccount(ctx, "A1", domain.AccountUpdate{Name: "First", IsActive: true})
	require.NoError(t, err)

	h.remote.setErr(nil)
	h.remote.beforeUpdate = func() {
		require.NoError(t, h.r.enqueue(ctx, domain.OpUpdateAccount, "A1", domain.AccountUpdate{Name: "Second", IsActive: true}))
	}
	report, err := h.r.SyncPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, SyncReport{Synced: 1, Remaining: 1}, report)
	assert.Equal(t, "First", h.remote.accounts["A1"].Name)

	ops, err := h.r.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.JSONEq(t, `{"name":"Second","is_active":true}`, string(ops[0].Payload))

	report, err = h.r.SyncPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, SyncReport{Synced: 1}, report)
	assert.Equal(t, "Second", h.remote.accounts["A1"].Name)
}

func TestSyncPending_AttemptKeepsPayloadReplacedDuringReplay(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.MaxAttempts = 3 })
	ctx := context.Background()
	h.remote.accounts["A1"] = checking("A1", "1000")
	require.NoError(t, h.r.MergeAccount(ctx, checking("A1", "1000")))

	h.remote.setErr(errOffline)
	_, err := h.r.UpdateAccount(ctx, "A1", domain.AccountUpdate{Name: "First", IsActive: true})
	require.NoError(t, err)

	h.remote.setErr(apperrors.HTTPError(503, nil))
	h.remote.beforeUpdate = func() {
		require.NoError(t, h.r.enqueue(ctx, domain.OpUpdateAccount, "A1", domain.AccountUpdate{Name: "Second", IsActive: true}))
	}
	report, err := h.r.SyncPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, SyncReport{Remaining: 1}, report)

	ops, err := h.r.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, 1, ops[0].Attempts)
	assert.JSONEq(t, `{"name":"Second","is_active":true}`, string(ops[0].Payload))
}

func TestSyncPending_PreservesOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.r.MergeAccount(ctx, checking("A1", "1")))
	require.NoError(t, h.r.MergeAccount(ctx, checking("A2", "2")))
	h.remote.setErr(errOffline)

	require.NoError(t, h.r.DeleteAccount(ctx, "A2"))
	require.NoError(t, h.r.DeleteAccount(ctx, "A1"))

	ops, err := h.r.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, "A2", ops[0].EntityID)
	assert.Equal(t, "A1", ops[1].EntityID)
	assert.Less(t, ops[0].Seq, ops[1].Seq)
}

func TestSyncPending_Guards(t *testing.T) {
	h := newHarness(t)
	h.r.syncMu.Lock()
	_, err := h.r.SyncPending(context.Background())
	h.r.syncMu.Unlock()
	assert.ErrorIs(t, err, ErrSyncInProgress)

	cacheOnly, err := New(Config{Cache: memory.New(), Log: logger.NewNop()})
	require.NoError(t, err)
	_, err = cacheOnly.SyncPending(context.Background())
	assert.ErrorIs(t, err, ErrNoRemote)
}

func TestCacheOnly_KeepsWritesLocal(t *testing.T) {
	store := memory.New()
	r, err := New(Config{Cache: store, Log: logger.NewNop(), Clock: testutil.FixedClock(testNow)})
	require.NoError(t, err)
	ctx := context.Background()
	assert.False(t, r.Online())

	require.NoError(t, r.MergeAccount(ctx, checking("A1", "1000")))
	acct, err := r.UpdateAccount(ctx, "A1", domain.AccountUpdate{Name: "Local", IsActive: true})
	require.NoError(t, err)
	assert.Equal(t, "Local", acct.Name)

	p, err := r.SavePayee(ctx, domain.FrequentAccount{Name: "Bob", AccountNumber: "555"})
	require.NoError(t, err)
	assert.True(t, domain.IsLocalID(p.ID))

	accounts, err := r.Accounts(ctx)
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
	assert.Zero(t, store.Len(storage.KindPending))
}

func TestKeyedMutex_ReleasesEntries(t *testing.T) {
	k := newKeyedMutex()
	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("accounts/A1")
			counter++
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
	assert.Zero(t, k.size())
}

func TestAddTransaction_Concurrent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.r.MergeAccount(ctx, checking("A1", "0")))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.r.AddTransaction(ctx, domain.Transaction{
				ID:     domain.NewLocalID(),
				Amount: testutil.Money("1"),
				Type:   domain.TransactionDeposit,
				Date:   testNow,
			}, "A1")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	acct, err := h.r.cachedAccount(ctx, "A1")
	require.NoError(t, err)
	assert.Equal(t, "20", acct.Balance.String())
	assert.Len(t, acct.Transactions, 20)
	assert.Zero(t, h.r.locks.size())
}
