// Package bankapi catalogues the bank API endpoints as request descriptors and
// exposes a typed client over the pipeline executor.
package bankapi

import (
	"net/url"
	"strconv"

	"github.com/R3E-Network/bankline/internal/domain"
	"github.com/R3E-Network/bankline/internal/request"
)

// DefaultPageSize is used when a transactions page size is not positive.
const DefaultPageSize = 50

func accountPath(id string) string {
	return "/accounts/" + url.PathEscape(id)
}

func payeePath(id string) string {
	return "/payees/" + url.PathEscape(id)
}

// ListAccounts: GET /accounts -> []domain.Account.
func ListAccounts() request.Descriptor {
	return request.Get("/accounts")
}

// GetAccount: GET /accounts/{id} -> domain.Account.
func GetAccount(id string) request.Descriptor {
	return request.Get(accountPath(id))
}

// UpdateAccount: PUT /accounts/{id} -> domain.Account.
func UpdateAccount(id string, upd domain.AccountUpdate) request.Descriptor {
	return request.Put(accountPath(id)).WithBody(request.JSON(upd))
}

// DeleteAccount: DELETE /accounts/{id} -> no body.
func DeleteAccount(id string) request.Descriptor {
	return request.Delete(accountPath(id))
}

// ListTransactions: GET /accounts/{id}/transactions?limit&offset -> []domain.Transaction.
func ListTransactions(accountID string, limit, offset int) request.Descriptor {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return request.Get(accountPath(accountID)+"/transactions").
		WithQuery("limit", strconv.Itoa(limit)).
		WithQuery("offset", strconv.Itoa(offset))
}

// UploadStatement: POST /accounts/{id}/statements with a raw document -> StatementReceipt.
func UploadStatement(accountID string) request.Descriptor {
	return request.Post(accountPath(accountID) + "/statements")
}

// CreateTransfer: POST /transfers -> domain.TransferResult.
func CreateTransfer(req domain.TransferRequest) request.Descriptor {
	return request.Post("/transfers").WithBody(request.JSON(req))
}

// TransferHistory: GET /transfers/history -> []domain.TransferHistory.
func TransferHistory() request.Descriptor {
	return request.Get("/transfers/history")
}

// ListPayees: GET /payees -> []domain.FrequentAccount.
func ListPayees() request.Descriptor {
	return request.Get("/payees")
}

// CreatePayee: POST /payees -> domain.FrequentAccount with the server id.
func CreatePayee(p domain.FrequentAccount) request.Descriptor {
	return request.Post("/payees").WithBody(request.JSON(payeeBody(p)))
}

// UpdatePayee: PUT /payees/{id} -> domain.FrequentAccount.
func UpdatePayee(p domain.FrequentAccount) request.Descriptor {
	return request.Put(payeePath(p.ID)).WithBody(request.JSON(payeeBody(p)))
}

// DeletePayee: DELETE /payees/{id} -> no body.
func DeletePayee(id string) request.Descriptor {
	return request.Delete(payeePath(id))
}

// payeeBody strips client-only fields before sending.
func payeeBody(p domain.FrequentAccount) domain.FrequentAccount {
	if domain.IsLocalID(p.ID) {
		p.ID = ""
	}
	p.SyncState = ""
	return p
}
