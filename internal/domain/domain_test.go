package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactionDelta(t *testing.T) {
	amt := NewMoney(decimal.RequireFromString("25.50"))
	cases := []struct {
		typ      TransactionType
		outgoing bool
		want     string
	}{
		{TransactionDeposit, false, "25.5"},
		{TransactionWithdrawal, false, "-25.5"},
		{TransactionPayment, false, "-25.5"},
		{TransactionFee, false, "-25.5"},
		{TransactionTransfer, true, "-25.5"},
		{TransactionTransfer, false, "25.5"},
		{TransactionType("bogus"), false, "0"},
	}
	for _, tc := range cases {
		tx := Transaction{ID: "t", Amount: amt, Type: tc.typ, IsOutgoing: tc.outgoing}
		assert.Equal(t, tc.want, tx.Delta().String(), "type %s outgoing %v", tc.typ, tc.outgoing)
	}
}

func TestTransactionValidate(t *testing.T) {
	assert.NoError(t, Transaction{ID: "t1", Type: TransactionFee, Amount: NewMoney(decimal.NewFromInt(1))}.Validate())
	assert.Error(t, Transaction{Type: TransactionFee}.Validate())
	assert.Error(t, Transaction{ID: "t1", Type: TransactionFee, Amount: NewMoney(decimal.NewFromInt(-1))}.Validate())
	assert.Error(t, Transaction{ID: "t1", Type: "refund"}.Validate())
}

func TestAccountJSON(t *testing.T) {
	raw := `{"id":"A1","name":"Main","type":"checking","balance":1000.25,"number":"12-34","is_active":true,
		"updated_at":"2024-03-01T10:00:00Z",
		"transactions":[{"id":"t1","amount":5,"type":"fee","is_outgoing":true,"category":"bank","date":"2024-02-28T00:00:00Z","account_id":"A1"}]}`

	var acct Account
	require.NoError(t, json.Unmarshal([]byte(raw), &acct))
	assert.Equal(t, "1000.25", acct.Balance.String())
	assert.Equal(t, AccountChecking, acct.Type)
	assert.True(t, acct.Type.Valid())
	assert.True(t, acct.HasTransaction("t1"))
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), acct.UpdatedAt)

	out, err := json.Marshal(acct)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"balance":1000.25`)
}

func TestMoneyJSON(t *testing.T) {
	var m Money
	require.NoError(t, json.Unmarshal([]byte(`"25.50"`), &m))
	assert.Equal(t, "25.5", m.String())
	require.NoError(t, json.Unmarshal([]byte(`12.75`), &m))

	out, err := json.Marshal(struct {
		Amount Money `json:"amount"`
	}{m})
	require.NoError(t, err)
	assert.Equal(t, `{"amount":12.75}`, string(out))

	assert.False(t, decimal.MarshalJSONWithoutQuotes)
	plain, err := json.Marshal(m.Decimal)
	require.NoError(t, err)
	assert.Equal(t, `"12.75"`, string(plain))

	_, err = ParseMoney("twelve")
	require.Error(t, err)
	a, err := ParseMoney("10")
	require.NoError(t, err)
	assert.True(t, a.Add(m).Equal(NewMoney(decimal.RequireFromString("22.75"))))
	assert.True(t, a.LessThan(m))
	assert.Equal(t, "-2.75", a.Sub(m).String())
}

func TestSortedTransactions(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }
	acct := Account{Transactions: []Transaction{
		{ID: "b", Date: day(1)},
		{ID: "c", Date: day(3)},
		{ID: "a", Date: day(1)},
	}}

	sorted := acct.SortedTransactions()
	ids := []string{sorted[0].ID, sorted[1].ID, sorted[2].ID}
	assert.Equal(t, []string{"c", "a", "b"}, ids)
	assert.Equal(t, "b", acct.Transactions[0].ID, "original order untouched")
}

func TestLocalIDs(t *testing.T) {
	id := NewLocalID()
	assert.True(t, IsLocalID(id))
	assert.False(t, IsLocalID("srv-99"))
	assert.NotEqual(t, id, NewLocalID())
}
