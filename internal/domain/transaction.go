package domain

import (
	"fmt"
	"time"
)

// TransactionType classifies a transaction and decides its balance effect.
type TransactionType string

const (
	TransactionDeposit    TransactionType = "deposit"
	TransactionWithdrawal TransactionType = "withdrawal"
	TransactionTransfer   TransactionType = "transfer"
	TransactionPayment    TransactionType = "payment"
	TransactionFee        TransactionType = "fee"
)

// Transaction is a posted movement on one account. Amount is a non-negative
// magnitude; the sign comes from Type and IsOutgoing.
type Transaction struct {
	ID          string          `json:"id"`
	Amount      Money           `json:"amount"`
	Type        TransactionType `json:"type"`
	IsOutgoing  bool            `json:"is_outgoing"`
	Category    string          `json:"category"`
	Description string          `json:"description,omitempty"`
	Date        time.Time       `json:"date"`
	// AccountID is a weak back-reference, reassigned whenever the transaction
	// is merged into an account.
	AccountID string `json:"account_id"`
}

// Delta returns the signed balance change this transaction applies.
func (t Transaction) Delta() Money {
	amount := NewMoney(t.Amount.Abs())
	switch t.Type {
	case TransactionDeposit:
		return amount
	case TransactionWithdrawal, TransactionPayment, TransactionFee:
		return NewMoney(amount.Neg())
	case TransactionTransfer:
		if t.IsOutgoing {
			return NewMoney(amount.Neg())
		}
		return amount
	default:
		return Money{}
	}
}

// Validate checks the fields a transaction needs before it can be applied.
func (t Transaction) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("transaction id is required")
	}
	if t.Amount.IsNegative() {
		return fmt.Errorf("transaction %s: amount must not be negative", t.ID)
	}
	switch t.Type {
	case TransactionDeposit, TransactionWithdrawal, TransactionTransfer, TransactionPayment, TransactionFee:
		return nil
	default:
		return fmt.Errorf("transaction %s: unknown type %q", t.ID, t.Type)
	}
}

// TransactionPage is one page of an account's transactions.
type TransactionPage struct {
	Items  []Transaction `json:"items"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
	Total  int           `json:"total"`
}
