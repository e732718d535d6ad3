package domain

import (
	"encoding/json"
	"time"
)

// FrequentAccount is a saved payee.
type FrequentAccount struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	AccountNumber string    `json:"account_number"`
	BankName      string    `json:"bank_name,omitempty"`
	Nickname      string    `json:"nickname,omitempty"`
	LastUsedAt    time.Time `json:"last_used_at,omitempty"`
	SyncState     SyncState `json:"sync_state,omitempty"`
}

// OperationType names a deferred network write.
type OperationType string

const (
	OpCreatePayee    OperationType = "create_payee"
	OpUpdatePayee    OperationType = "update_payee"
	OpDeletePayee    OperationType = "delete_payee"
	OpUpdateAccount  OperationType = "update_account"
	OpDeleteAccount  OperationType = "delete_account"
	OpCreateTransfer OperationType = "create_transfer"
)

// PendingOperation is a network write recorded while offline and replayed
// once connectivity returns, in Seq order.
type PendingOperation struct {
	ID        string          `json:"id"`
	Seq       int64           `json:"seq"`
	Op        OperationType   `json:"op"`
	EntityID  string          `json:"entity_id"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	Attempts  int             `json:"attempts"`
	// Revision counts in-place payload replacements.
	Revision int `json:"revision,omitempty"`
}
