package entity

import (
	"fmt"
	"strings"
)

// Kind identifies the record kind wrapped by a graph node
type Kind string

const (
	KindEffect      Kind = "EFFECT"
	KindOperation   Kind = "OPERATION"
	KindTransaction Kind = "TRANSACTION"
)

// Kinds lists every record kind in a fixed order
var Kinds = []Kind{KindEffect, KindOperation, KindTransaction}

// ParseKind parses a kind name case-insensitively
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToUpper(strings.TrimSpace(s))) {
	case KindEffect:
		return KindEffect, nil
	case KindOperation:
		return KindOperation, nil
	case KindTransaction:
		return KindTransaction, nil
	default:
		return "", fmt.Errorf("unknown record kind %q", s)
	}
}

// Label returns the Neo4J label used for nodes of this kind
func (k Kind) Label() string {
	switch k {
	case KindEffect:
		return "Effect"
	case KindOperation:
		return "Operation"
	case KindTransaction:
		return "Transaction"
	default:
		return "Unknown"
	}
}

// Record is implemented by *Effect, *Operation and *Transaction.
// RecordKind must not dereference the receiver so that it can be called on a nil pointer.
type Record interface {
	Identifier() string
	RecordKind() Kind
}

// KindOf returns the kind of the record type R without needing a value.
// It returns "" when R is an interface type.
func KindOf[R Record]() Kind {
	var zero R
	if any(zero) == nil {
		return ""
	}
	return zero.RecordKind()
}

// IsNilRecord reports whether r is nil or wraps a nil record pointer
func IsNilRecord(r Record) bool {
	switch v := r.(type) {
	case nil:
		return true
	case *Effect:
		return v == nil
	case *Operation:
		return v == nil
	case *Transaction:
		return v == nil
	}
	return false
}

// NodeKey is the identity of a node: two nodes are the same iff their keys are equal
type NodeKey struct {
	Kind Kind   `json:"kind"`
	ID   string `json:"id"`
}

func (k NodeKey) String() string {
	return string(k.Kind) + ":" + k.ID
}

// Less orders keys by kind then identifier
func (k NodeKey) Less(other NodeKey) bool {
	if k.Kind != other.Kind {
		return k.Kind < other.Kind
	}
	return k.ID < other.ID
}

// DataNode is a typed, immutable wrapper around one record
type DataNode[R Record] struct {
	object R
	kind   Kind
}

// NewDataNode wraps a record in a typed node
func NewDataNode[R Record](object R) DataNode[R] {
	return DataNode[R]{object: object, kind: object.RecordKind()}
}

// Object returns the wrapped record
func (n DataNode[R]) Object() R {
	return n.object
}

// Kind returns the kind tag of the node
func (n DataNode[R]) Kind() Kind {
	return n.kind
}

// Erase hides the record type so heterogeneous nodes can share a collection
func (n DataNode[R]) Erase() AnyNode {
	return AnyNode{
		key:    NodeKey{Kind: n.kind, ID: n.object.Identifier()},
		object: n.object,
	}
}

// AnyNode is a type-erased node. Equality is defined by Key only, never by record contents.
type AnyNode struct {
	key    NodeKey
	object Record
}

// Erase wraps any record directly into an erased node
func Erase(object Record) AnyNode {
	return NewDataNode(object).Erase()
}

// Key returns the node identity
func (n AnyNode) Key() NodeKey {
	return n.key
}

// Kind returns the kind tag of the node
func (n AnyNode) Kind() Kind {
	return n.key.Kind
}

// ObjectIdentifier returns the identifier of the wrapped record
func (n AnyNode) ObjectIdentifier() string {
	return n.key.ID
}

// Object returns the wrapped record as an opaque value
func (n AnyNode) Object() Record {
	return n.object
}

// Equal reports whether both nodes have the same identity
func (n AnyNode) Equal(other AnyNode) bool {
	return n.key == other.key
}

// IsZero reports whether the node wraps nothing
func (n AnyNode) IsZero() bool {
	return n.object == nil
}

// Unwrap recovers the typed record from an erased node
func Unwrap[R Record](n AnyNode) (R, bool) {
	r, ok := n.object.(R)
	return r, ok
}
