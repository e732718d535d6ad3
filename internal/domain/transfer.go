package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// SyncState tells whether an entity exists only on this device or has been
// confirmed by the server.
type SyncState string

const (
	SyncLocal  SyncState = "local"
	SyncSynced SyncState = "synced"
)

// LocalIDPrefix marks client-generated ids.
const LocalIDPrefix = "local-"

// NewLocalID returns a fresh client-side id.
func NewLocalID() string {
	return LocalIDPrefix + uuid.NewString()
}

// IsLocalID reports whether id was generated on the client.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, LocalIDPrefix)
}

// TransferStatus is the server-side state of a transfer.
type TransferStatus string

const (
	TransferPending   TransferStatus = "pending"
	TransferCompleted TransferStatus = "completed"
	TransferFailed    TransferStatus = "failed"
)

// TransferRequest asks the bank to move money out of one of the user's accounts.
type TransferRequest struct {
	FromAccountID   string          `json:"from_account_id"`
	ToAccountNumber string          `json:"to_account_number"`
	Amount          Money           `json:"amount"`
	Description     string          `json:"description,omitempty"`
}

// TransferResult is the server's answer to a TransferRequest.
type TransferResult struct {
	ID              string          `json:"id"`
	Status          TransferStatus  `json:"status"`
	FromAccountID   string          `json:"from_account_id"`
	ToAccountNumber string          `json:"to_account_number"`
	Amount          Money           `json:"amount"`
	Reference       string          `json:"reference,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	SyncState       SyncState       `json:"sync_state,omitempty"`
}

// TransferHistory is one entry of the transfer history list.
type TransferHistory struct {
	ID              string          `json:"id"`
	FromAccountID   string          `json:"from_account_id"`
	ToAccountNumber string          `json:"to_account_number"`
	ToName          string          `json:"to_name,omitempty"`
	Amount          Money           `json:"amount"`
	Status          TransferStatus  `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	SyncState       SyncState       `json:"sync_state,omitempty"`
}

// HistoryFromResult builds the history entry recorded for a transfer.
func HistoryFromResult(r TransferResult) TransferHistory {
	return TransferHistory{
		ID:              r.ID,
		FromAccountID:   r.FromAccountID,
		ToAccountNumber: r.ToAccountNumber,
		Amount:          r.Amount,
		Status:          r.Status,
		CreatedAt:       r.CreatedAt,
		SyncState:       r.SyncState,
	}
}
