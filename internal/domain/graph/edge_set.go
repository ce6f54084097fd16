package graph

import (
	"sort"

	"account-graph-indexer/internal/domain/entity"
)

// EdgeSet is a deduplicated set of directed edges indexed by source node
type EdgeSet struct {
	edges    map[entity.EdgeKey]entity.Edge
	outgoing map[entity.NodeKey][]entity.Edge
}

// NewEdgeSet creates an empty edge set
func NewEdgeSet() *EdgeSet {
	return &EdgeSet{
		edges:    make(map[entity.EdgeKey]entity.Edge),
		outgoing: make(map[entity.NodeKey][]entity.Edge),
	}
}

// Insert adds an edge and reports whether it was new
func (s *EdgeSet) Insert(e entity.Edge) bool {
	key := e.Key()
	if _, exists := s.edges[key]; exists {
		return false
	}
	s.edges[key] = e
	s.outgoing[key.From] = append(s.outgoing[key.From], e)
	return true
}

// InsertPair adds both directions of the relationship between a and b
func (s *EdgeSet) InsertPair(a, b entity.AnyNode) int {
	added := 0
	if s.Insert(entity.NewEdge(a, b)) {
		added++
	}
	if s.Insert(entity.NewEdge(b, a)) {
		added++
	}
	return added
}

// Contains reports whether the edge is in the set
func (s *EdgeSet) Contains(key entity.EdgeKey) bool {
	_, ok := s.edges[key]
	return ok
}

// Outgoing returns the edges whose first endpoint is the given node
func (s *EdgeSet) Outgoing(from entity.NodeKey) []entity.Edge {
	return s.outgoing[from]
}

// Len returns the number of directed edges
func (s *EdgeSet) Len() int {
	return len(s.edges)
}

// Edges returns all edges ordered by (from, to)
func (s *EdgeSet) Edges() []entity.Edge {
	out := make([]entity.Edge, 0, len(s.edges))
	for _, e := range s.edges {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Key(), out[j].Key()
		if a.From != b.From {
			return a.From.Less(b.From)
		}
		return a.To.Less(b.To)
	})
	return out
}

// Merge inserts every edge of other and returns how many were new
func (s *EdgeSet) Merge(other *EdgeSet) int {
	if other == nil {
		return 0
	}
	added := 0
	for _, e := range other.edges {
		if s.Insert(e) {
			added++
		}
	}
	return added
}

// Clear removes every edge
func (s *EdgeSet) Clear() {
	s.edges = make(map[entity.EdgeKey]entity.Edge)
	s.outgoing = make(map[entity.NodeKey][]entity.Edge)
}
