package database

import (
	"context"
	"fmt"

	"account-graph-indexer/internal/domain/entity"
	"account-graph-indexer/internal/domain/repository"
	"account-graph-indexer/internal/infrastructure/logger"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

// Neo4JGraphRepository implements GraphRepository interface
type Neo4JGraphRepository struct {
	client *Neo4JClient
	logger *logger.Logger
}

// NewNeo4JGraphRepository creates a new Neo4J graph repository
func NewNeo4JGraphRepository(client *Neo4JClient, logger *logger.Logger) repository.GraphRepository {
	return &Neo4JGraphRepository{
		client: client,
		logger: logger.WithComponent("neo4j-graph-repo"),
	}
}

// SaveNodes upserts record nodes, one batch per kind
func (r *Neo4JGraphRepository) SaveNodes(ctx context.Context, account string, nodes []entity.AnyNode) error {
	byKind := make(map[entity.Kind][]map[string]any)
	for _, node := range nodes {
		byKind[node.Kind()] = append(byKind[node.Kind()], nodeProperties(node))
	}

	session, err := r.client.NewSession(ctx, neo4j.AccessModeWrite)
	if err != nil {
		return err
	}
	defer session.Close(ctx)

	for _, kind := range entity.Kinds {
		rows := byKind[kind]
		if len(rows) == 0 {
			continue
		}

		query := fmt.Sprintf(`
			UNWIND $rows AS row
			MERGE (n:%s {id: row.id})
			ON CREATE SET n += row, n.account = $account
		`, kind.Label())

		params := map[string]any{"rows": rows, "account": account}
		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			return runAndConsume(ctx, tx, query, params)
		})
		if err != nil {
			return fmt.Errorf("failed to save %s nodes: %w", kind.Label(), err)
		}
	}

	r.logger.Debug("Saved graph nodes", zap.String("account", account), zap.Int("count", len(nodes)))
	return nil
}

// SaveEdges upserts directed relationships, one batch per (source kind, target kind)
func (r *Neo4JGraphRepository) SaveEdges(ctx context.Context, account string, edges []entity.Edge) error {
	type pair struct{ from, to entity.Kind }
	byPair := make(map[pair][]map[string]any)
	var order []pair
	for _, e := range edges {
		p := pair{from: e.First.Kind(), to: e.Second.Kind()}
		if _, seen := byPair[p]; !seen {
			order = append(order, p)
		}
		byPair[p] = append(byPair[p], map[string]any{
			"from": e.First.ObjectIdentifier(),
			"to":   e.Second.ObjectIdentifier(),
		})
	}

	session, err := r.client.NewSession(ctx, neo4j.AccessModeWrite)
	if err != nil {
		return err
	}
	defer session.Close(ctx)

	for _, p := range order {
		relType, err := relationshipType(p.from, p.to)
		if err != nil {
			return err
		}

		query := fmt.Sprintf(`
			UNWIND $rows AS row
			MATCH (a:%s {id: row.from})
			MATCH (b:%s {id: row.to})
			MERGE (a)-[r:%s]->(b)
			ON CREATE SET r.account = $account
		`, p.from.Label(), p.to.Label(), relType)

		params := map[string]any{"rows": byPair[p], "account": account}
		_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			return runAndConsume(ctx, tx, query, params)
		})
		if err != nil {
			return fmt.Errorf("failed to save %s relationships: %w", relType, err)
		}
	}

	r.logger.Debug("Saved graph edges", zap.String("account", account), zap.Int("count", len(edges)))
	return nil
}

// relationshipType names the Neo4J relationship for a directed edge
func relationshipType(from, to entity.Kind) (string, error) {
	switch {
	case from == entity.KindEffect && to == entity.KindOperation:
		return "PRODUCED_BY", nil
	case from == entity.KindOperation && to == entity.KindEffect:
		return "PRODUCED", nil
	case from == entity.KindOperation && to == entity.KindTransaction:
		return "PART_OF", nil
	case from == entity.KindTransaction && to == entity.KindOperation:
		return "CONTAINS", nil
	default:
		return "", fmt.Errorf("no relationship between %s and %s", from, to)
	}
}

// nodeProperties flattens a record into Neo4J properties
func nodeProperties(node entity.AnyNode) map[string]any {
	props := map[string]any{"id": node.ObjectIdentifier()}

	switch record := node.Object().(type) {
	case *entity.Effect:
		props["paging_token"] = record.PagingToken
		props["type"] = record.Type
		props["operation_id"] = record.OperationID()
		props["amount"] = record.Amount
		props["created_at"] = record.CreatedAt
	case *entity.Operation:
		props["paging_token"] = record.PagingToken
		props["type"] = record.Type
		props["transaction_hash"] = record.TransactionHash
		props["source_account"] = record.SourceAccount
		props["created_at"] = record.CreatedAt
	case *entity.Transaction:
		props["hash"] = record.Hash
		props["ledger"] = int64(record.Ledger)
		props["source_account"] = record.SourceAccount
		props["operation_count"] = int64(record.OperationCount)
		props["successful"] = record.Successful
		props["created_at"] = record.CreatedAt
	}
	return props
}
