// Package graph holds the per-account node registry and edge set that the
// indexing service correlates effects, operations and transactions in.
//
// DataGraph is not safe for concurrent use; the owning service serializes access.
package graph

import (
	"sort"

	"account-graph-indexer/internal/domain/entity"
)

// Snapshot is an immutable copy of the graph's nodes grouped by kind,
// ordered by identifier
type Snapshot struct {
	Effects      []entity.DataNode[*entity.Effect]
	Operations   []entity.DataNode[*entity.Operation]
	Transactions []entity.DataNode[*entity.Transaction]
}

// Fingerprint summarizes graph content. Records are never removed individually,
// so the counts change whenever new records are absorbed.
type Fingerprint struct {
	Effects      int `json:"effects"`
	Operations   int `json:"operations"`
	Transactions int `json:"transactions"`
}

// Stats describes the graph size
type Stats struct {
	Fingerprint
	Edges int `json:"edges"`
}

// DataGraph owns the nodes and edges of one account
type DataGraph struct {
	nodes        map[entity.NodeKey]entity.AnyNode
	effects      []entity.DataNode[*entity.Effect]
	operations   []entity.DataNode[*entity.Operation]
	transactions []entity.DataNode[*entity.Transaction]
	edges        *EdgeSet
}

// New creates an empty graph
func New() *DataGraph {
	return &DataGraph{
		nodes: make(map[entity.NodeKey]entity.AnyNode),
		edges: NewEdgeSet(),
	}
}

// AddEffects absorbs effects and returns how many were new
func (g *DataGraph) AddEffects(effects []*entity.Effect) int {
	added := 0
	for _, e := range effects {
		if e == nil {
			continue
		}
		node := entity.NewDataNode(e)
		if g.register(node.Erase()) {
			g.effects = append(g.effects, node)
			added++
		}
	}
	return added
}

// AddOperations absorbs operations and returns how many were new
func (g *DataGraph) AddOperations(operations []*entity.Operation) int {
	added := 0
	for _, o := range operations {
		if o == nil {
			continue
		}
		node := entity.NewDataNode(o)
		if g.register(node.Erase()) {
			g.operations = append(g.operations, node)
			added++
		}
	}
	return added
}

// AddTransactions absorbs transactions and returns how many were new
func (g *DataGraph) AddTransactions(transactions []*entity.Transaction) int {
	added := 0
	for _, t := range transactions {
		if t == nil {
			continue
		}
		node := entity.NewDataNode(t)
		if g.register(node.Erase()) {
			g.transactions = append(g.transactions, node)
			added++
		}
	}
	return added
}

// register inserts the node unless its key is already known (first write wins)
func (g *DataGraph) register(node entity.AnyNode) bool {
	if _, exists := g.nodes[node.Key()]; exists {
		return false
	}
	g.nodes[node.Key()] = node
	return true
}

// Node looks up a node by identity
func (g *DataGraph) Node(key entity.NodeKey) (entity.AnyNode, bool) {
	n, ok := g.nodes[key]
	return n, ok
}

// Edges returns the authoritative edge set
func (g *DataGraph) Edges() *EdgeSet {
	return g.edges
}

// IncidentEdges returns the edges of in whose first endpoint is node
func (g *DataGraph) IncidentEdges(node entity.AnyNode, in *EdgeSet) []entity.Edge {
	if in == nil {
		in = g.edges
	}
	return in.Outgoing(node.Key())
}

// Merge incorporates edges computed by an indexing pass
func (g *DataGraph) Merge(edges *EdgeSet) int {
	return g.edges.Merge(edges)
}

// ClearEdges removes every edge but keeps the nodes
func (g *DataGraph) ClearEdges() {
	g.edges.Clear()
}

// Clear removes every node and edge
func (g *DataGraph) Clear() {
	g.nodes = make(map[entity.NodeKey]entity.AnyNode)
	g.effects = nil
	g.operations = nil
	g.transactions = nil
	g.edges.Clear()
}

// Snapshot copies the node collections for an indexing pass
func (g *DataGraph) Snapshot() Snapshot {
	s := Snapshot{
		Effects:      append([]entity.DataNode[*entity.Effect](nil), g.effects...),
		Operations:   append([]entity.DataNode[*entity.Operation](nil), g.operations...),
		Transactions: append([]entity.DataNode[*entity.Transaction](nil), g.transactions...),
	}
	sortNodes(s.Effects)
	sortNodes(s.Operations)
	sortNodes(s.Transactions)
	return s
}

// Fingerprint returns the node counts per kind
func (g *DataGraph) Fingerprint() Fingerprint {
	return Fingerprint{
		Effects:      len(g.effects),
		Operations:   len(g.operations),
		Transactions: len(g.transactions),
	}
}

// Stats returns node and edge counts
func (g *DataGraph) Stats() Stats {
	return Stats{Fingerprint: g.Fingerprint(), Edges: g.edges.Len()}
}

// NodeCount returns the number of distinct nodes
func (g *DataGraph) NodeCount() int {
	return len(g.nodes)
}

func sortNodes[R entity.Record](nodes []entity.DataNode[R]) {
	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].Object().Identifier() < nodes[j].Object().Identifier()
	})
}
