// Package domain holds the banking records cached and exchanged with the bank API.
package domain

import (
	"sort"
	"time"
)

// AccountType classifies an account.
type AccountType string

const (
	AccountChecking   AccountType = "checking"
	AccountSavings    AccountType = "savings"
	AccountInvestment AccountType = "investment"
	AccountLoan       AccountType = "loan"
)

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	switch t {
	case AccountChecking, AccountSavings, AccountInvestment, AccountLoan:
		return true
	}
	return false
}

// Account is a bank account. Transactions is nil when the server omitted them.
type Account struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Type         AccountType     `json:"type"`
	Balance      Money           `json:"balance"`
	Number       string          `json:"number"`
	IsActive     bool            `json:"is_active"`
	UpdatedAt    time.Time       `json:"updated_at"`
	Transactions []Transaction   `json:"transactions,omitempty"`
}

// FindTransaction returns the index of the transaction with id, or -1.
func (a *Account) FindTransaction(id string) int {
	for i := range a.Transactions {
		if a.Transactions[i].ID == id {
			return i
		}
	}
	return -1
}

// HasTransaction reports whether a transaction with id is attached.
func (a *Account) HasTransaction(id string) bool {
	return a.FindTransaction(id) >= 0
}

// SortedTransactions returns a copy of the transactions, newest first. Ties
// are broken by id so pages are stable.
func (a *Account) SortedTransactions() []Transaction {
	out := make([]Transaction, len(a.Transactions))
	copy(out, a.Transactions)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			return out[i].ID < out[j].ID
		}
		return out[i].Date.After(out[j].Date)
	})
	return out
}

// AccountUpdate carries the editable fields of an account.
type AccountUpdate struct {
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}
