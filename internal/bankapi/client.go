package bankapi

import (
	"context"
	"time"

	"github.com/R3E-Network/bankline/internal/domain"
	"github.com/R3E-Network/bankline/internal/pipeline"
)

// StatementReceipt acknowledges an uploaded statement.
type StatementReceipt struct {
	ID         string    `json:"id"`
	AccountID  string    `json:"account_id"`
	Status     string    `json:"status"`
	ReceivedAt time.Time `json:"received_at"`
}

// Client is the typed bank API client.
type Client struct {
	doer pipeline.Doer
}

// NewClient creates a client executing through doer.
func NewClient(doer pipeline.Doer) *Client {
	return &Client{doer: doer}
}

func (c *Client) Accounts(ctx context.Context) ([]domain.Account, error) {
	return pipeline.Fetch[[]domain.Account](ctx, c.doer, ListAccounts())
}

func (c *Client) Account(ctx context.Context, id string) (domain.Account, error) {
	return pipeline.Fetch[domain.Account](ctx, c.doer, GetAccount(id))
}

func (c *Client) UpdateAccount(ctx context.Context, id string, upd domain.AccountUpdate) (domain.Account, error) {
	return pipeline.Fetch[domain.Account](ctx, c.doer, UpdateAccount(id, upd))
}

func (c *Client) DeleteAccount(ctx context.Context, id string) error {
	return c.doer.Execute(ctx, DeleteAccount(id), nil)
}

func (c *Client) Transactions(ctx context.Context, accountID string, limit, offset int) ([]domain.Transaction, error) {
	return pipeline.Fetch[[]domain.Transaction](ctx, c.doer, ListTransactions(accountID, limit, offset))
}

// UploadStatement sends a statement document for an account.
func (c *Client) UploadStatement(ctx context.Context, accountID string, data []byte, contentType string) (StatementReceipt, error) {
	var out StatementReceipt
	err := c.doer.Upload(ctx, UploadStatement(accountID), data, contentType, &out)
	return out, err
}

func (c *Client) CreateTransfer(ctx context.Context, req domain.TransferRequest) (domain.TransferResult, error) {
	return pipeline.Fetch[domain.TransferResult](ctx, c.doer, CreateTransfer(req))
}

func (c *Client) TransferHistory(ctx context.Context) ([]domain.TransferHistory, error) {
	return pipeline.Fetch[[]domain.TransferHistory](ctx, c.doer, TransferHistory())
}

func (c *Client) Payees(ctx context.Context) ([]domain.FrequentAccount, error) {
	return pipeline.Fetch[[]domain.FrequentAccount](ctx, c.doer, ListPayees())
}

func (c *Client) CreatePayee(ctx context.Context, p domain.FrequentAccount) (domain.FrequentAccount, error) {
	return pipeline.Fetch[domain.FrequentAccount](ctx, c.doer, CreatePayee(p))
}

func (c *Client) UpdatePayee(ctx context.Context, p domain.FrequentAccount) (domain.FrequentAccount, error) {
	return pipeline.Fetch[domain.FrequentAccount](ctx, c.doer, UpdatePayee(p))
}

func (c *Client) DeletePayee(ctx context.Context, id string) error {
	return c.doer.Execute(ctx, DeletePayee(id), nil)
}
