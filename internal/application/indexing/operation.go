// Package indexing computes the edges between effects, operations and
// transactions of one account snapshot.
package indexing

import (
	"context"
	"time"

	"account-graph-indexer/internal/domain/entity"
	"account-graph-indexer/internal/domain/graph"
	domain_service "account-graph-indexer/internal/domain/service"
	"account-graph-indexer/internal/infrastructure/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Phase weights in the progress tree. Edge emission dominates the cost.
const (
	mapPhaseWeight  int64 = 1
	edgePhaseWeight int64 = 3
	totalWeight           = 4*mapPhaseWeight + 2*edgePhaseWeight
)

// ProgressFunc receives the fraction of the pass completed so far
type ProgressFunc func(fractionCompleted float64)

// Operation is one cancellable indexing pass over a fixed snapshot.
// An Operation is single-use: Run must be called at most once.
type Operation struct {
	id         string
	snapshot   graph.Snapshot
	edges      *graph.EdgeSet
	progress   *Progress
	onProgress ProgressFunc
	err        error
	startedAt  time.Time
	finishedAt time.Time
	logger     *logger.Logger
}

// NewOperation creates an indexing pass over snapshot
func NewOperation(snapshot graph.Snapshot, log *logger.Logger) *Operation {
	id := uuid.NewString()
	return &Operation{
		id:       id,
		snapshot: snapshot,
		edges:    graph.NewEdgeSet(),
		progress: NewProgress(totalWeight),
		err:      domain_service.ErrNotStarted,
		logger:   log.WithFields(map[string]interface{}{"operation_id": id}),
	}
}

// OnProgress sets the progress callback. It must be set before Run.
func (o *Operation) OnProgress(fn ProgressFunc) {
	o.onProgress = fn
}

// ID returns the operation id
func (o *Operation) ID() string {
	return o.id
}

// Edges returns the edges computed so far, including partial results of a cancelled pass
func (o *Operation) Edges() *graph.EdgeSet {
	return o.edges
}

// Nodes returns every node of the snapshot the pass runs over
func (o *Operation) Nodes() []entity.AnyNode {
	nodes := make([]entity.AnyNode, 0,
		len(o.snapshot.Effects)+len(o.snapshot.Operations)+len(o.snapshot.Transactions))
	for _, n := range o.snapshot.Effects {
		nodes = append(nodes, n.Erase())
	}
	for _, n := range o.snapshot.Operations {
		nodes = append(nodes, n.Erase())
	}
	for _, n := range o.snapshot.Transactions {
		nodes = append(nodes, n.Erase())
	}
	return nodes
}

// Err returns the terminal result: nil on success, ErrNotStarted before Run
func (o *Operation) Err() error {
	return o.err
}

// Progress returns the root of the progress tree
func (o *Operation) Progress() *Progress {
	return o.progress
}

// Duration returns how long Run took
func (o *Operation) Duration() time.Duration {
	return o.finishedAt.Sub(o.startedAt)
}

// Run computes every edge implied by the effect-operation and
// operation-transaction joins
func (o *Operation) Run(ctx context.Context) error {
	o.startedAt = time.Now()
	o.err = o.index(ctx)
	o.finishedAt = time.Now()
	if o.err == nil {
		o.progress.Finish()
		o.report()
	}

	o.logger.Debug("Indexing pass finished",
		zap.Int("edges", o.edges.Len()),
		zap.Duration("duration", o.Duration()),
		zap.Error(o.err))
	return o.err
}

func (o *Operation) index(ctx context.Context) error {
	if err := checkCancelled(ctx); err != nil {
		return err
	}

	switch {
	case len(o.snapshot.Effects) == 0:
		return domain_service.ErrMissingEffects
	case len(o.snapshot.Operations) == 0:
		return domain_service.ErrMissingOperations
	case len(o.snapshot.Transactions) == 0:
		return domain_service.ErrMissingTransactions
	}

	o.logger.Debug("Starting indexing pass",
		zap.Int("effects", len(o.snapshot.Effects)),
		zap.Int("operations", len(o.snapshot.Operations)),
		zap.Int("transactions", len(o.snapshot.Transactions)))

	// Phase 1: effects by operation id
	phase := o.startPhase(len(o.snapshot.Effects), mapPhaseWeight)
	effectsByOperationID := make(map[string]entity.AnyNode, len(o.snapshot.Effects))
	for _, node := range o.snapshot.Effects {
		effectsByOperationID[node.Object().OperationID()] = node.Erase()
		o.step(phase)
	}

	if err := checkCancelled(ctx); err != nil {
		return err
	}

	// Phase 2: operations by id
	phase = o.startPhase(len(o.snapshot.Operations), mapPhaseWeight)
	operationsByID := make(map[string][]entity.AnyNode, len(o.snapshot.Operations))
	for _, node := range o.snapshot.Operations {
		id := node.Object().ID
		operationsByID[id] = append(operationsByID[id], node.Erase())
		o.step(phase)
	}

	if err := checkCancelled(ctx); err != nil {
		return err
	}

	// Phase 3: operations by transaction hash
	phase = o.startPhase(len(o.snapshot.Operations), mapPhaseWeight)
	operationsByTransactionHash := make(map[string][]entity.AnyNode, len(o.snapshot.Operations))
	for _, node := range o.snapshot.Operations {
		hash := node.Object().TransactionHash
		operationsByTransactionHash[hash] = append(operationsByTransactionHash[hash], node.Erase())
		o.step(phase)
	}

	if err := checkCancelled(ctx); err != nil {
		return err
	}

	// Phase 4: transactions by hash
	phase = o.startPhase(len(o.snapshot.Transactions), mapPhaseWeight)
	transactionsByHash := make(map[string]entity.AnyNode, len(o.snapshot.Transactions))
	for _, node := range o.snapshot.Transactions {
		transactionsByHash[node.Object().Hash] = node.Erase()
		o.step(phase)
	}

	if err := checkCancelled(ctx); err != nil {
		return err
	}

	// Phase 5: effect <-> operation
	phase = o.startPhase(len(effectsByOperationID), edgePhaseWeight)
	for operationID, effect := range effectsByOperationID {
		if err := checkCancelled(ctx); err != nil {
			return err
		}
		for _, operation := range operationsByID[operationID] {
			o.edges.InsertPair(effect, operation)
		}
		o.step(phase)
	}

	if err := checkCancelled(ctx); err != nil {
		return err
	}

	// Phase 6: transaction <-> operation
	phase = o.startPhase(len(transactionsByHash), edgePhaseWeight)
	for hash, transaction := range transactionsByHash {
		if err := checkCancelled(ctx); err != nil {
			return err
		}
		for _, operation := range operationsByTransactionHash[hash] {
			o.edges.InsertPair(transaction, operation)
		}
		o.step(phase)
	}

	return nil
}

func (o *Operation) startPhase(units int, weight int64) *Progress {
	child := NewProgress(int64(units))
	o.progress.AddChild(child, weight)
	if units == 0 {
		child.Finish()
		o.report()
	}
	return child
}

func (o *Operation) step(phase *Progress) {
	phase.Increment()
	o.report()
}

func (o *Operation) report() {
	if o.onProgress != nil {
		o.onProgress(o.progress.FractionCompleted())
	}
}

func checkCancelled(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return domain_service.ErrCancelled
	default:
		return nil
	}
}
