package service

import (
	"errors"

	"account-graph-indexer/internal/domain/entity"
	"account-graph-indexer/internal/domain/graph"
)

// Indexing outcomes that are reported to observers. None of them is fatal:
// the next account update retries automatically.
var (
	ErrNotStarted          = errors.New("indexing has not started")
	ErrMissingEffects      = errors.New("missing effects")
	ErrMissingOperations   = errors.New("missing operations")
	ErrMissingTransactions = errors.New("missing transactions")
	ErrCancelled           = errors.New("indexing cancelled")
)

// IsPreconditionError reports whether err means not enough data was fetched yet
func IsPreconditionError(err error) bool {
	return errors.Is(err, ErrMissingEffects) ||
		errors.Is(err, ErrMissingOperations) ||
		errors.Is(err, ErrMissingTransactions)
}

// IndexingState is the lifecycle state of the indexing service
type IndexingState string

const (
	StateIdle     IndexingState = "IDLE"
	StateIndexing IndexingState = "INDEXING"
)

// IndexingStatus describes the service at a point in time
type IndexingStatus struct {
	State     IndexingState       `json:"state"`
	Account   string              `json:"account"`
	Progress  float64             `json:"progress"`
	Graph     graph.Stats         `json:"graph"`
	LastError string              `json:"last_error,omitempty"`
	Mode      graph.TraversalMode `json:"traversal_mode"`
}

// IndexingObserver receives indexing progress. Callbacks are delivered in
// order on a single goroutine that is not the indexing worker.
type IndexingObserver interface {
	UpdatedProgress(fractionCompleted float64)
	FinishedIndexing()
	ErrorIndexing(err error)
}

// IndexingService defines the interface for account graph indexing
type IndexingService interface {
	// Ingest absorbs an account update and triggers indexing
	Ingest(update *entity.AccountUpdate)

	// UpdateIndex starts an indexing pass unless one is already in flight
	UpdateIndex()

	// RebuildIndex clears all edges and indexes every known node again
	RebuildIndex()

	// HaltIndexing cancels the in-flight indexing pass
	HaltIndexing()

	// Reset halts indexing and clears the whole graph
	Reset()

	// RelatedNode finds a node of kind want related to the node identified by start
	RelatedNode(start entity.NodeKey, want entity.Kind) (entity.AnyNode, bool)

	// Subscribe registers an observer and returns its registration id
	Subscribe(observer IndexingObserver) string

	// Unsubscribe removes a registered observer
	Unsubscribe(id string)

	// Status reports the current state of the service
	Status() IndexingStatus

	// Start launches the indexing worker and the observer dispatcher
	Start() error

	// Stop halts indexing and waits for the worker to exit
	Stop()
}

