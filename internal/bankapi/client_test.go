package bankapi

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/bankline/internal/domain"
	apperrors "github.com/R3E-Network/bankline/internal/errors"
	"github.com/R3E-Network/bankline/internal/httputil"
	"github.com/R3E-Network/bankline/internal/middleware"
	"github.com/R3E-Network/bankline/internal/pipeline"
	"github.com/R3E-Network/bankline/pkg/logger"
	"github.com/R3E-Network/bankline/pkg/testutil"
)

func newTestClient(t *testing.T, bank *testutil.FakeBank, tokens middleware.TokenProvider) *Client {
	t.Helper()
	ex, err := pipeline.New(pipeline.Config{
		BaseURL:   bank.URL(),
		Transport: httputil.NewHTTPTransport(httputil.HTTPTransportConfig{}),
		Chain: middleware.DefaultChain(middleware.Options{
			Log:    logger.NewNop(),
			Tokens: tokens,
			Retry:  middleware.RetryPolicy{MaxRetries: 1, BaseDelay: time.Millisecond, Multiplier: 2},
		}),
		Log: logger.NewNop(),
	})
	require.NoError(t, err)
	return NewClient(ex)
}

func seedAccount(bank *testutil.FakeBank) {
	bank.AddAccount(domain.Account{
		ID:       "A1",
		Name:     "Everyday",
		Type:     domain.AccountChecking,
		Balance:  testutil.Money("1000"),
		Number:   "001-234",
		IsActive: true,
		Transactions: []domain.Transaction{
			{ID: "t1", Amount: testutil.Money("20"), Type: domain.TransactionFee, Date: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)},
			{ID: "t2", Amount: testutil.Money("500"), Type: domain.TransactionDeposit, Date: time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC)},
			{ID: "t3", Amount: testutil.Money("75.10"), Type: domain.TransactionPayment, Date: time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)},
		},
	})
}

func TestListTransactionsDescriptor(t *testing.T) {
	d := ListTransactions("A 1", 0, -3)
	req, err := d.Build("https://bank.example.com")
	require.NoError(t, err)
	assert.Equal(t, "https://bank.example.com/accounts/A%201/transactions?limit=50&offset=0", req.URL.String())
}

func TestPayeeBodyDropsLocalFields(t *testing.T) {
	body := payeeBody(domain.FrequentAccount{ID: "local-1", Name: "Bob", SyncState: domain.SyncLocal})
	assert.Empty(t, body.ID)
	assert.Empty(t, body.SyncState)

	body = payeeBody(domain.FrequentAccount{ID: "srv-1"})
	assert.Equal(t, "srv-1", body.ID)
}

func TestClient_Accounts(t *testing.T) {
	bank := testutil.NewFakeBank(t)
	bank.RequireToken("secret")
	seedAccount(bank)
	client := newTestClient(t, bank, testutil.NewStaticTokens("secret"))
	ctx := context.Background()

	accounts, err := client.Accounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "1000", accounts[0].Balance.String())

	acct, err := client.Account(ctx, "A1")
	require.NoError(t, err)
	assert.Len(t, acct.Transactions, 3)

	_, err = client.Account(ctx, "nope")
	e := apperrors.Get(err)
	require.NotNil(t, e)
	assert.Equal(t, http.StatusNotFound, e.StatusCode)

	updated, err := client.UpdateAccount(ctx, "A1", domain.AccountUpdate{Name: "Bills", IsActive: true})
	require.NoError(t, err)
	assert.Equal(t, "Bills", updated.Name)

	require.NoError(t, client.DeleteAccount(ctx, "A1"))
	_, ok := bank.Account("A1")
	assert.False(t, ok)
}

func TestClient_Unauthorized(t *testing.T) {
	bank := testutil.NewFakeBank(t)
	bank.RequireToken("secret")
	client := newTestClient(t, bank, testutil.NewStaticTokens("wrong"))

	_, err := client.Accounts(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestClient_TransactionsPaging(t *testing.T) {
	bank := testutil.NewFakeBank(t)
	seedAccount(bank)
	client := newTestClient(t, bank, nil)

	page, err := client.Transactions(context.Background(), "A1", 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "t2", page[0].ID)
	assert.Equal(t, "t3", page[1].ID)

	page, err = client.Transactions(context.Background(), "A1", 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "t1", page[0].ID)
}

func TestClient_Transfers(t *testing.T) {
	bank := testutil.NewFakeBank(t)
	seedAccount(bank)
	client := newTestClient(t, bank, nil)
	ctx := context.Background()

	res, err := client.CreateTransfer(ctx, domain.TransferRequest{
		FromAccountID:   "A1",
		ToAccountNumber: "999-111",
		Amount:          testutil.Money("250.25"),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TransferCompleted, res.Status)
	assert.Equal(t, "250.25", res.Amount.String())

	history, err := client.TransferHistory(ctx)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, res.ID, history[0].ID)

	_, err = client.CreateTransfer(ctx, domain.TransferRequest{
		FromAccountID:   "A1",
		ToAccountNumber: "999-111",
		Amount:          testutil.Money("100000"),
	})
	e := apperrors.Get(err)
	require.NotNil(t, e)
	assert.Equal(t, apperrors.KindServer, e.Kind)
	assert.Equal(t, "insufficient funds", e.ServerMessage())
}

func TestClient_Payees(t *testing.T) {
	bank := testutil.NewFakeBank(t)
	bank.SetNextID(99)
	client := newTestClient(t, bank, nil)
	ctx := context.Background()

	created, err := client.CreatePayee(ctx, domain.FrequentAccount{ID: "local-1", Name: "Rent", AccountNumber: "555"})
	require.NoError(t, err)
	assert.Equal(t, "srv-99", created.ID)

	created.Nickname = "landlord"
	updated, err := client.UpdatePayee(ctx, created)
	require.NoError(t, err)
	assert.Equal(t, "landlord", updated.Nickname)

	payees, err := client.Payees(ctx)
	require.NoError(t, err)
	require.Len(t, payees, 1)

	require.NoError(t, client.DeletePayee(ctx, created.ID))
	assert.Empty(t, bank.Payees())
}

func TestClient_UploadStatement(t *testing.T) {
	bank := testutil.NewFakeBank(t)
	seedAccount(bank)
	client := newTestClient(t, bank, nil)

	receipt, err := client.UploadStatement(context.Background(), "A1", []byte("date,amount\n"), "text/csv")
	require.NoError(t, err)
	assert.Equal(t, "A1", receipt.AccountID)
	assert.Equal(t, "received", receipt.Status)
	assert.Equal(t, "date,amount\n", string(bank.Statement("A1")))
}

func TestClient_RetriesServerErrors(t *testing.T) {
	bank := testutil.NewFakeBank(t)
	seedAccount(bank)
	bank.FailNext(http.StatusBadGateway)
	client := newTestClient(t, bank, nil)

	accounts, err := client.Accounts(context.Background())
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
	assert.Equal(t, 2, bank.Hits("list_accounts"))
}
