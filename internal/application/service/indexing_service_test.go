package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"account-graph-indexer/internal/domain/entity"
	"account-graph-indexer/internal/domain/graph"
	"account-graph-indexer/internal/domain/service"
	"account-graph-indexer/internal/infrastructure/config"
	"account-graph-indexer/internal/infrastructure/logger"
)

type recordingObserver struct {
	mu        sync.Mutex
	fractions []float64
	done      chan error
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{done: make(chan error, 16)}
}

func (o *recordingObserver) UpdatedProgress(fraction float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fractions = append(o.fractions, fraction)
}

func (o *recordingObserver) FinishedIndexing() { o.done <- nil }

func (o *recordingObserver) ErrorIndexing(err error) { o.done <- err }

func (o *recordingObserver) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-o.done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for indexing to complete")
		return nil
	}
}

func (o *recordingObserver) assertQuiet(t *testing.T) {
	t.Helper()
	select {
	case err := <-o.done:
		t.Fatalf("unexpected completion: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
}

type fakeGraphRepository struct {
	mu      sync.Mutex
	account string
	nodes   []entity.AnyNode
	edges   []entity.Edge
}

func (r *fakeGraphRepository) SaveNodes(_ context.Context, account string, nodes []entity.AnyNode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.account = account
	r.nodes = append(r.nodes, nodes...)
	return nil
}

func (r *fakeGraphRepository) SaveEdges(_ context.Context, _ string, edges []entity.Edge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.edges = append(r.edges, edges...)
	return nil
}

var (
	txT1  = &entity.Transaction{Hash: "T1"}
	opO1  = &entity.Operation{ID: "O1", TransactionHash: "T1"}
	opO2  = &entity.Operation{ID: "O2", TransactionHash: "T1"}
	effE1 = &entity.Effect{ID: "O1-1", PagingToken: "O1-1"}
)

func accountUpdate(account string) *entity.AccountUpdate {
	return &entity.AccountUpdate{
		Account:      account,
		Effects:      []*entity.Effect{effE1},
		Operations:   []*entity.Operation{opO1, opO2},
		Transactions: []*entity.Transaction{txT1},
	}
}

func newTestService(t *testing.T, mode string) *IndexingApplicationService {
	t.Helper()
	svc, err := NewIndexingApplicationService(&config.IndexConfig{TraversalMode: mode}, nil, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(svc.Stop)
	return svc
}

func startedService(t *testing.T) (*IndexingApplicationService, *recordingObserver) {
	t.Helper()
	svc := newTestService(t, "targeted")
	obs := newRecordingObserver()
	svc.Subscribe(obs)
	require.NoError(t, svc.Start())
	return svc, obs
}

func TestNewIndexingApplicationService_RejectsUnknownMode(t *testing.T) {
	_, err := NewIndexingApplicationService(&config.IndexConfig{TraversalMode: "bfs"}, nil, logger.NewNop())
	assert.Error(t, err)
}

func TestIndexingService_JoinCorrectness(t *testing.T) {
	svc, obs := startedService(t)

	svc.Ingest(accountUpdate("GABC"))
	require.NoError(t, obs.wait(t))

	op, ok := RelatedObject[*entity.Effect, *entity.Operation](svc, effE1)
	require.True(t, ok)
	assert.Equal(t, "O1", op.ID)

	tx, ok := RelatedObject[*entity.Effect, *entity.Transaction](svc, effE1)
	require.True(t, ok)
	assert.Equal(t, "T1", tx.Hash)

	_, ok = RelatedObject[*entity.Operation, *entity.Effect](svc, opO2)
	assert.False(t, ok)

	status := svc.Status()
	assert.Equal(t, service.StateIdle, status.State)
	assert.Equal(t, "GABC", status.Account)
	assert.Equal(t, 1.0, status.Progress)
	assert.Equal(t, 6, status.Graph.Edges)
}

func TestIndexingService_SameKindQueryMisses(t *testing.T) {
	svc, obs := startedService(t)

	svc.Ingest(accountUpdate("GABC"))
	require.NoError(t, obs.wait(t))

	_, ok := RelatedObject[*entity.Effect, *entity.Effect](svc, effE1)
	assert.False(t, ok)
}

func TestIndexingService_MissingTransactions(t *testing.T) {
	svc, obs := startedService(t)

	svc.Ingest(&entity.AccountUpdate{
		Account:    "GABC",
		Effects:    []*entity.Effect{effE1},
		Operations: []*entity.Operation{opO1},
	})

	err := obs.wait(t)
	assert.ErrorIs(t, err, service.ErrMissingTransactions)
	assert.Equal(t, 0, svc.Status().Graph.Edges)
	assert.Equal(t, "missing transactions", svc.Status().LastError)

	// The next update retries.
	svc.Ingest(&entity.AccountUpdate{Account: "GABC", Transactions: []*entity.Transaction{txT1}})
	require.NoError(t, obs.wait(t))
	assert.Equal(t, 4, svc.Status().Graph.Edges)
}

func TestIndexingService_PreconditionFailureKeepsExistingEdges(t *testing.T) {
	svc, obs := startedService(t)

	svc.Ingest(accountUpdate("GABC"))
	require.NoError(t, obs.wait(t))
	require.Equal(t, 6, svc.Status().Graph.Edges)

	// Same effects, operations and edges, but no transactions left to join.
	svc.mu.Lock()
	g := graph.New()
	g.AddEffects([]*entity.Effect{effE1})
	g.AddOperations([]*entity.Operation{opO1, opO2})
	g.Merge(svc.graph.Edges())
	svc.graph = g
	svc.mu.Unlock()

	svc.UpdateIndex()
	assert.ErrorIs(t, obs.wait(t), service.ErrMissingTransactions)
	assert.Equal(t, 6, svc.Status().Graph.Edges)

	op, ok := RelatedObject[*entity.Effect, *entity.Operation](svc, effE1)
	require.True(t, ok)
	assert.Equal(t, "O1", op.ID)
}

func TestIndexingService_UnchangedGraphIsNotReindexed(t *testing.T) {
	svc, obs := startedService(t)

	svc.Ingest(accountUpdate("GABC"))
	require.NoError(t, obs.wait(t))

	svc.Ingest(accountUpdate("GABC"))
	svc.UpdateIndex()
	assert.Equal(t, service.StateIdle, svc.Status().State)
	obs.assertQuiet(t)
}

func TestIndexingService_ResetClearsEverything(t *testing.T) {
	svc, obs := startedService(t)

	svc.Ingest(accountUpdate("GABC"))
	require.NoError(t, obs.wait(t))

	svc.Reset()
	_, ok := RelatedObject[*entity.Effect, *entity.Operation](svc, effE1)
	assert.False(t, ok)
	assert.Equal(t, 0, svc.Status().Graph.Operations)
	assert.Empty(t, svc.Status().Account)

	svc.Ingest(accountUpdate("GABC"))
	require.NoError(t, obs.wait(t))

	op, ok := RelatedObject[*entity.Effect, *entity.Operation](svc, effE1)
	require.True(t, ok)
	assert.Equal(t, "O1", op.ID)
}

func TestIndexingService_AccountSwitchResetsGraph(t *testing.T) {
	svc, obs := startedService(t)

	svc.Ingest(accountUpdate("GAAA"))
	require.NoError(t, obs.wait(t))

	svc.Ingest(&entity.AccountUpdate{
		Account:      "GBBB",
		Effects:      []*entity.Effect{{ID: "O7-1", PagingToken: "O7-1"}},
		Operations:   []*entity.Operation{{ID: "O7", TransactionHash: "T7"}},
		Transactions: []*entity.Transaction{{Hash: "T7"}},
	})
	require.NoError(t, obs.wait(t))

	status := svc.Status()
	assert.Equal(t, "GBBB", status.Account)
	assert.Equal(t, 1, status.Graph.Operations)
	_, ok := RelatedObject[*entity.Effect, *entity.Operation](svc, effE1)
	assert.False(t, ok)
}

func TestIndexingService_HaltCompletesOnceAsCancelled(t *testing.T) {
	svc := newTestService(t, "targeted")
	obs := newRecordingObserver()
	svc.Subscribe(obs)

	// The pass is enqueued but cannot run before the worker starts.
	svc.Ingest(accountUpdate("GABC"))
	assert.Equal(t, service.StateIndexing, svc.Status().State)
	svc.HaltIndexing()
	require.NoError(t, svc.Start())

	assert.ErrorIs(t, obs.wait(t), service.ErrCancelled)
	obs.assertQuiet(t)
	assert.Equal(t, service.StateIdle, svc.Status().State)
}

func TestIndexingService_HaltMidRunMergesPartialEdges(t *testing.T) {
	svc := newTestService(t, "targeted")
	obs := newRecordingObserver()
	svc.Subscribe(obs)

	svc.Ingest(&entity.AccountUpdate{
		Account: "GABC",
		Effects: []*entity.Effect{
			{ID: "O1-1", PagingToken: "O1-1"},
			{ID: "O2-1", PagingToken: "O2-1"},
		},
		Operations:   []*entity.Operation{opO1, opO2},
		Transactions: []*entity.Transaction{txT1},
	})

	// Halt as soon as the first edge pair exists.
	job := <-svc.jobs
	job.op.OnProgress(func(fraction float64) {
		svc.publishProgress(job, fraction)
		if job.op.Edges().Len() > 0 {
			svc.HaltIndexing()
		}
	})
	svc.jobs <- job
	require.NoError(t, svc.Start())

	assert.ErrorIs(t, obs.wait(t), service.ErrCancelled)
	obs.assertQuiet(t)

	status := svc.Status()
	assert.Equal(t, service.StateIdle, status.State)
	assert.Equal(t, 2, status.Graph.Edges)
	assert.Equal(t, "indexing cancelled", status.LastError)

	// Only the effect joined before the halt is related to its operation.
	related := 0
	for _, id := range []string{"O1-1", "O2-1"} {
		if _, ok := RelatedObject[*entity.Effect, *entity.Operation](svc, &entity.Effect{ID: id}); ok {
			related++
		}
	}
	assert.Equal(t, 1, related)
}

func TestIndexingService_PassFinishedBeforeRebuildReportsCancelled(t *testing.T) {
	svc := newTestService(t, "targeted")
	obs := newRecordingObserver()
	svc.Subscribe(obs)

	svc.Ingest(accountUpdate("GABC"))

	// The pass completes, but a rebuild supersedes it before its result is merged.
	job := <-svc.jobs
	err := job.op.Run(job.ctx)
	require.NoError(t, err)
	svc.RebuildIndex()
	require.NoError(t, svc.Start())
	svc.complete(job, err)

	assert.ErrorIs(t, obs.wait(t), service.ErrCancelled)
	assert.Empty(t, svc.Status().LastError)

	// The rebuild pass is the only one that reports success.
	require.NoError(t, obs.wait(t))
	obs.assertQuiet(t)

	op, ok := RelatedObject[*entity.Effect, *entity.Operation](svc, effE1)
	require.True(t, ok)
	assert.Equal(t, "O1", op.ID)
	assert.Equal(t, 1.0, svc.Status().Progress)
}

func TestRelatedObject_NilAndInterfaceTypes(t *testing.T) {
	svc, obs := startedService(t)

	svc.Ingest(accountUpdate("GABC"))
	require.NoError(t, obs.wait(t))

	_, ok := RelatedObject[*entity.Effect, *entity.Operation](svc, nil)
	assert.False(t, ok)
	_, ok = RelatedObject[entity.Record, *entity.Operation](svc, nil)
	assert.False(t, ok)
	_, ok = RelatedObject[*entity.Effect, entity.Record](svc, effE1)
	assert.False(t, ok)

	op, ok := RelatedObject[entity.Record, *entity.Operation](svc, effE1)
	require.True(t, ok)
	assert.Equal(t, "O1", op.ID)
}

func TestIndexingService_RebuildDiscardsSupersededPass(t *testing.T) {
	svc := newTestService(t, "targeted")
	obs := newRecordingObserver()
	svc.Subscribe(obs)

	svc.Ingest(accountUpdate("GABC"))
	svc.RebuildIndex()
	require.NoError(t, svc.Start())

	assert.ErrorIs(t, obs.wait(t), service.ErrCancelled)
	require.NoError(t, obs.wait(t))

	op, ok := RelatedObject[*entity.Effect, *entity.Operation](svc, effE1)
	require.True(t, ok)
	assert.Equal(t, "O1", op.ID)

	// Rebuilding an indexed graph produces the same edges again.
	svc.RebuildIndex()
	require.NoError(t, obs.wait(t))
	assert.Equal(t, 6, svc.Status().Graph.Edges)
}

func TestIndexingService_FirstDeadEndMode(t *testing.T) {
	svc := newTestService(t, "first_dead_end")
	obs := newRecordingObserver()
	svc.Subscribe(obs)
	require.NoError(t, svc.Start())

	svc.Ingest(accountUpdate("GABC"))
	require.NoError(t, obs.wait(t))

	_, ok := RelatedObject[*entity.Effect, *entity.Operation](svc, effE1)
	assert.False(t, ok)

	tx, ok := RelatedObject[*entity.Effect, *entity.Transaction](svc, effE1)
	require.True(t, ok)
	assert.Equal(t, "T1", tx.Hash)
}

func TestIndexingService_ProgressReachesOne(t *testing.T) {
	svc, obs := startedService(t)

	svc.Ingest(accountUpdate("GABC"))
	require.NoError(t, obs.wait(t))

	obs.mu.Lock()
	defer obs.mu.Unlock()
	require.NotEmpty(t, obs.fractions)
	assert.InDelta(t, 1.0, obs.fractions[len(obs.fractions)-1], 1e-9)
}

func TestIndexingService_Unsubscribe(t *testing.T) {
	svc, obs := startedService(t)
	other := newRecordingObserver()
	id := svc.Subscribe(other)
	svc.Unsubscribe(id)

	svc.Ingest(accountUpdate("GABC"))
	require.NoError(t, obs.wait(t))
	other.assertQuiet(t)
}

func TestIndexingService_PersistsSuccessfulPass(t *testing.T) {
	repo := &fakeGraphRepository{}
	svc, err := NewIndexingApplicationService(&config.IndexConfig{}, repo, logger.NewNop())
	require.NoError(t, err)
	obs := newRecordingObserver()
	svc.Subscribe(obs)
	require.NoError(t, svc.Start())

	svc.Ingest(accountUpdate("GABC"))
	require.NoError(t, obs.wait(t))
	svc.Stop()

	repo.mu.Lock()
	defer repo.mu.Unlock()
	assert.Equal(t, "GABC", repo.account)
	assert.Len(t, repo.nodes, 4)
	assert.Len(t, repo.edges, 6)
}
