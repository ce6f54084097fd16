package entity

// EdgeKey is the identity of a directed edge
type EdgeKey struct {
	From NodeKey
	To   NodeKey
}

// Edge is a directed relation "First relates to Second".
// Relationships are stored as a forward and a reverse edge.
type Edge struct {
	First  AnyNode
	Second AnyNode
}

// NewEdge creates a directed edge from a to b
func NewEdge(a, b AnyNode) Edge {
	return Edge{First: a, Second: b}
}

// Key returns the edge identity
func (e Edge) Key() EdgeKey {
	return EdgeKey{From: e.First.Key(), To: e.Second.Key()}
}

// Reverse returns the edge pointing the other way
func (e Edge) Reverse() Edge {
	return Edge{First: e.Second, Second: e.First}
}
