package entity

import (
	"strings"
	"time"
)

// pagingTokenSeparator splits an effect paging token into operation id and effect index
const pagingTokenSeparator = "-"

// Effect represents a side effect of a ledger operation (e.g. account credited)
type Effect struct {
	ID          string    `json:"id"`
	PagingToken string    `json:"paging_token"`
	Type        string    `json:"type"`
	Account     string    `json:"account"`
	Amount      string    `json:"amount,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Identifier returns the effect id
func (e *Effect) Identifier() string {
	return e.ID
}

// RecordKind returns KindEffect
func (*Effect) RecordKind() Kind {
	return KindEffect
}

// OperationID returns the id of the operation that produced this effect.
// It is the numeric prefix of the paging token ("12884905985-1" -> "12884905985").
// Without a paging token the effect id is used; Horizon zero-pads it
// ("0000000012884905985-0000000001"), so the padding is stripped.
func (e *Effect) OperationID() string {
	if e.PagingToken != "" {
		prefix, _, _ := strings.Cut(e.PagingToken, pagingTokenSeparator)
		return prefix
	}

	prefix, _, _ := strings.Cut(e.ID, pagingTokenSeparator)
	trimmed := strings.TrimLeft(prefix, "0")
	if trimmed == "" && prefix != "" {
		return "0"
	}
	return trimmed
}
