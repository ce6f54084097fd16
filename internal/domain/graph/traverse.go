package graph

import (
	"fmt"
	"sort"

	"account-graph-indexer/internal/domain/entity"
)

// TraversalMode selects how RelatedNode walks the edge set
type TraversalMode string

const (
	// TraversalTargeted returns the first reachable node of the wanted kind,
	// backtracking over sibling edges until every branch is exhausted.
	TraversalTargeted TraversalMode = "targeted"
	// TraversalFirstDeadEnd follows the first explored path to a dead end and
	// only then compares kinds. A reachable node of the wanted kind on another
	// branch is never found.
	TraversalFirstDeadEnd TraversalMode = "first_dead_end"
)

// ParseTraversalMode validates a configured traversal mode
func ParseTraversalMode(s string) (TraversalMode, error) {
	switch TraversalMode(s) {
	case TraversalTargeted, "":
		return TraversalTargeted, nil
	case TraversalFirstDeadEnd:
		return TraversalFirstDeadEnd, nil
	default:
		return "", fmt.Errorf("unknown traversal mode %q", s)
	}
}

// edgeView is an edge set narrowed by visited sources and visited kinds.
// Narrowing never mutates the underlying set.
type edgeView struct {
	set             *EdgeSet
	excludedSources map[entity.NodeKey]struct{}
	excludedKinds   map[entity.Kind]struct{}
}

func newEdgeView(set *EdgeSet) edgeView {
	return edgeView{
		set:             set,
		excludedSources: map[entity.NodeKey]struct{}{},
		excludedKinds:   map[entity.Kind]struct{}{},
	}
}

func (v edgeView) allows(e entity.Edge) bool {
	if _, ok := v.excludedSources[e.First.Key()]; ok {
		return false
	}
	if _, ok := v.excludedKinds[e.First.Kind()]; ok {
		return false
	}
	if _, ok := v.excludedKinds[e.Second.Kind()]; ok {
		return false
	}
	return true
}

// outgoing returns the allowed edges leaving node, sorted by destination
func (v edgeView) outgoing(node entity.AnyNode) []entity.Edge {
	var out []entity.Edge
	for _, e := range v.set.Outgoing(node.Key()) {
		if v.allows(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Second.Key().Less(out[j].Second.Key())
	})
	return out
}

// narrow drops edges leaving node and edges touching node's kind
func (v edgeView) narrow(node entity.AnyNode) edgeView {
	next := edgeView{
		set:             v.set,
		excludedSources: make(map[entity.NodeKey]struct{}, len(v.excludedSources)+1),
		excludedKinds:   make(map[entity.Kind]struct{}, len(v.excludedKinds)+1),
	}
	for k := range v.excludedSources {
		next.excludedSources[k] = struct{}{}
	}
	for k := range v.excludedKinds {
		next.excludedKinds[k] = struct{}{}
	}
	next.excludedSources[node.Key()] = struct{}{}
	next.excludedKinds[node.Kind()] = struct{}{}
	return next
}

// RelatedNode searches edges for a node of kind want reachable from start.
// Same-kind queries always miss.
func RelatedNode(edges *EdgeSet, start entity.AnyNode, want entity.Kind, mode TraversalMode) (entity.AnyNode, bool) {
	if edges == nil || start.Kind() == want {
		return entity.AnyNode{}, false
	}

	view := newEdgeView(edges)
	switch mode {
	case TraversalFirstDeadEnd:
		end, ok := firstDeadEnd(start, view)
		if !ok || end.Kind() != want {
			return entity.AnyNode{}, false
		}
		return end, true
	default:
		return findKind(start, want, view, true)
	}
}

func firstDeadEnd(node entity.AnyNode, view edgeView) (entity.AnyNode, bool) {
	edges := view.outgoing(node)
	if len(edges) == 0 {
		return node, true
	}
	next := view.narrow(node)
	for _, e := range edges {
		if end, ok := firstDeadEnd(e.Second, next); ok {
			return end, true
		}
	}
	return entity.AnyNode{}, false
}

func findKind(node entity.AnyNode, want entity.Kind, view edgeView, isStart bool) (entity.AnyNode, bool) {
	if !isStart && node.Kind() == want {
		return node, true
	}
	next := view.narrow(node)
	for _, e := range view.outgoing(node) {
		if found, ok := findKind(e.Second, want, next, false); ok {
			return found, true
		}
	}
	return entity.AnyNode{}, false
}
