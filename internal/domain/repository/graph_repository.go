package repository

import (
	"context"

	"account-graph-indexer/internal/domain/entity"
)

// GraphRepository mirrors the indexed account graph into external storage
type GraphRepository interface {
	// SaveNodes upserts record nodes for an account
	SaveNodes(ctx context.Context, account string, nodes []entity.AnyNode) error

	// SaveEdges upserts directed edges between previously saved nodes
	SaveEdges(ctx context.Context, account string, edges []entity.Edge) error
}
