package entity

import (
	"time"
)

// Transaction represents a ledger-committed Stellar transaction fetched for an account
type Transaction struct {
	ID             string    `json:"id"`
	Hash           string    `json:"hash"`
	Ledger         int32     `json:"ledger"`
	SourceAccount  string    `json:"source_account"`
	OperationCount int32     `json:"operation_count"`
	Successful     bool      `json:"successful"`
	CreatedAt      time.Time `json:"created_at"`
}

// Identifier returns the transaction id, falling back to the hash
func (t *Transaction) Identifier() string {
	if t.ID != "" {
		return t.ID
	}
	return t.Hash
}

// RecordKind returns KindTransaction
func (*Transaction) RecordKind() Kind {
	return KindTransaction
}

// AccountUpdate is a batch of freshly fetched records for one account
type AccountUpdate struct {
	Account      string         `json:"account"`
	Effects      []*Effect      `json:"effects"`
	Operations   []*Operation   `json:"operations"`
	Transactions []*Transaction `json:"transactions"`
}

// IsEmpty reports whether the update carries no records
func (u *AccountUpdate) IsEmpty() bool {
	return len(u.Effects) == 0 && len(u.Operations) == 0 && len(u.Transactions) == 0
}
