package entity

import (
	"time"
)

// Operation represents a single action (payment, trade, ...) inside a transaction
type Operation struct {
	ID              string    `json:"id"`
	PagingToken     string    `json:"paging_token"`
	TransactionHash string    `json:"transaction_hash"`
	Type            string    `json:"type"`
	SourceAccount   string    `json:"source_account"`
	CreatedAt       time.Time `json:"created_at"`
}

// Identifier returns the operation id
func (o *Operation) Identifier() string {
	return o.ID
}

// RecordKind returns KindOperation
func (*Operation) RecordKind() Kind {
	return KindOperation
}
