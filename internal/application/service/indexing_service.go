package service

import (
	"context"
	"errors"
	"sync"

	"account-graph-indexer/internal/application/indexing"
	"account-graph-indexer/internal/domain/entity"
	"account-graph-indexer/internal/domain/graph"
	"account-graph-indexer/internal/domain/repository"
	"account-graph-indexer/internal/domain/service"
	"account-graph-indexer/internal/infrastructure/config"
	"account-graph-indexer/internal/infrastructure/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// indexingJob is one enqueued indexing pass. A job started before the last
// Reset or RebuildIndex carries an older generation and its edges are discarded.
type indexingJob struct {
	op          *indexing.Operation
	ctx         context.Context
	cancel      context.CancelFunc
	generation  uint64
	fingerprint graph.Fingerprint
	account     string
}

// IndexingApplicationService implements IndexingService interface.
//
// A single worker goroutine runs indexing passes, so at most one pass is active.
// The mutex guards the graph and every field below it; the worker only touches
// the graph after a pass has finished.
type IndexingApplicationService struct {
	repo       repository.GraphRepository
	mode       graph.TraversalMode
	cfg        *config.IndexConfig
	logger     *logger.Logger
	jobs       chan *indexingJob
	dispatcher *dispatcher
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup

	mu              sync.Mutex
	graph           *graph.DataGraph
	account         string
	current         *indexingJob
	generation      uint64
	rerun           bool
	lastFingerprint *graph.Fingerprint
	lastErr         error
	progress        float64
	observers       map[string]service.IndexingObserver
	started         bool
	stopped         bool
}

// NewIndexingApplicationService creates a new indexing application service.
// repo may be nil, in which case the graph is kept in memory only.
func NewIndexingApplicationService(
	cfg *config.IndexConfig,
	repo repository.GraphRepository,
	logger *logger.Logger,
) (*IndexingApplicationService, error) {
	mode, err := graph.ParseTraversalMode(cfg.TraversalMode)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &IndexingApplicationService{
		repo:       repo,
		mode:       mode,
		cfg:        cfg,
		logger:     logger.WithComponent("indexing-service"),
		jobs:       make(chan *indexingJob, 1),
		dispatcher: newDispatcher(),
		ctx:        ctx,
		cancel:     cancel,
		graph:      graph.New(),
		account:    cfg.Account,
		observers:  make(map[string]service.IndexingObserver),
	}, nil
}

// Start launches the indexing worker and the observer dispatcher
func (s *IndexingApplicationService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return errors.New("indexing service already stopped")
	}
	if s.started {
		return nil
	}
	s.started = true

	s.wg.Add(1)
	go s.runWorker()
	go s.dispatcher.Run()

	s.logger.Info("Indexing service started", zap.String("traversal_mode", string(s.mode)))
	return nil
}

// Stop halts indexing, completes pending passes as cancelled and waits for
// every observer callback to be delivered
func (s *IndexingApplicationService) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	started := s.started
	if s.current != nil {
		s.current.cancel()
	}
	s.mu.Unlock()

	s.cancel()
	if started {
		s.wg.Wait()
		s.dispatcher.Close()
		s.dispatcher.Wait()
	} else {
		s.dispatcher.Close()
	}
	s.logger.Info("Indexing service stopped")
}

// Ingest absorbs an account update and triggers indexing.
// An update for a different account resets the graph first.
func (s *IndexingApplicationService) Ingest(update *entity.AccountUpdate) {
	if update == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if update.Account != "" && update.Account != s.account {
		if s.account != "" {
			s.logger.WithAccount(s.account).Info("Switching account",
				zap.String("new_account", update.Account))
			s.resetLocked()
		}
		s.account = update.Account
	}

	effects := s.graph.AddEffects(update.Effects)
	operations := s.graph.AddOperations(update.Operations)
	transactions := s.graph.AddTransactions(update.Transactions)

	s.logger.Debug("Absorbed account update",
		zap.String("account", s.account),
		zap.Int("new_effects", effects),
		zap.Int("new_operations", operations),
		zap.Int("new_transactions", transactions))

	s.updateIndexLocked()
}

// UpdateIndex starts an indexing pass unless one is already in flight or the
// graph has not changed since the last successful pass
func (s *IndexingApplicationService) UpdateIndex() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateIndexLocked()
}

func (s *IndexingApplicationService) updateIndexLocked() {
	if s.stopped {
		return
	}
	if s.current != nil {
		// A superseded pass is still draining; index again once it is gone.
		if s.current.generation != s.generation {
			s.rerun = true
		}
		return
	}

	fingerprint := s.graph.Fingerprint()
	if s.lastFingerprint != nil && *s.lastFingerprint == fingerprint {
		s.logger.Debug("Graph unchanged since last pass, skipping indexing")
		return
	}

	op := indexing.NewOperation(s.graph.Snapshot(), s.logger)
	ctx, cancel := context.WithCancel(s.ctx)
	job := &indexingJob{
		op:          op,
		ctx:         ctx,
		cancel:      cancel,
		generation:  s.generation,
		fingerprint: fingerprint,
		account:     s.account,
	}
	op.OnProgress(func(fraction float64) {
		s.publishProgress(job, fraction)
	})

	s.current = job
	s.progress = 0
	// Only one job is ever outstanding, so the buffered send never blocks.
	s.jobs <- job

	s.logger.Info("Indexing pass enqueued",
		zap.String("operation_id", op.ID()),
		zap.Int("effects", fingerprint.Effects),
		zap.Int("operations", fingerprint.Operations),
		zap.Int("transactions", fingerprint.Transactions))
}

// RebuildIndex clears all edges and indexes every known node again.
// Edges of a pass in flight are discarded.
func (s *IndexingApplicationService) RebuildIndex() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info("Rebuilding index")
	s.supersedeLocked()
	s.graph.ClearEdges()
	s.updateIndexLocked()
}

// HaltIndexing cancels the in-flight pass. Edges it computed before noticing
// the cancellation are still merged.
func (s *IndexingApplicationService) HaltIndexing() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		s.logger.Info("Halting indexing", zap.String("operation_id", s.current.op.ID()))
		s.current.cancel()
	}
}

// Reset halts indexing and clears every node and edge
func (s *IndexingApplicationService) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info("Resetting index")
	s.resetLocked()
	s.account = ""
}

func (s *IndexingApplicationService) resetLocked() {
	s.supersedeLocked()
	s.rerun = false
	s.graph.Clear()
	s.progress = 0
	s.lastErr = nil
}

// supersedeLocked cancels the in-flight pass and makes sure its edges are never merged
func (s *IndexingApplicationService) supersedeLocked() {
	s.generation++
	s.lastFingerprint = nil
	if s.current != nil {
		s.current.cancel()
	}
}

// RelatedNode finds a node of kind want related to the node identified by start
func (s *IndexingApplicationService) RelatedNode(start entity.NodeKey, want entity.Kind) (entity.AnyNode, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.graph.Node(start)
	if !ok {
		return entity.AnyNode{}, false
	}
	return graph.RelatedNode(s.graph.Edges(), node, want, s.mode)
}

// Subscribe registers an observer and returns its registration id
func (s *IndexingApplicationService) Subscribe(observer service.IndexingObserver) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	s.observers[id] = observer
	return id
}

// Unsubscribe removes a registered observer. Callbacks already queued are still delivered.
func (s *IndexingApplicationService) Unsubscribe(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.observers, id)
}

// Status reports the current state of the service
func (s *IndexingApplicationService) Status() service.IndexingStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := service.IndexingStatus{
		State:    service.StateIdle,
		Account:  s.account,
		Progress: s.progress,
		Graph:    s.graph.Stats(),
		Mode:     s.mode,
	}
	if s.current != nil {
		status.State = service.StateIndexing
	}
	if s.lastErr != nil {
		status.LastError = s.lastErr.Error()
	}
	return status
}

func (s *IndexingApplicationService) runWorker() {
	defer s.wg.Done()
	for {
		select {
		case job := <-s.jobs:
			s.run(job)
		case <-s.ctx.Done():
			// Pending jobs still complete, reporting cancellation.
			for {
				select {
				case job := <-s.jobs:
					s.run(job)
				default:
					return
				}
			}
		}
	}
}

func (s *IndexingApplicationService) run(job *indexingJob) {
	err := job.op.Run(job.ctx)
	job.cancel()
	s.complete(job, err)
}

// complete merges the pass result into the graph and notifies observers.
// It runs exactly once per job.
func (s *IndexingApplicationService) complete(job *indexingJob, err error) {
	s.mu.Lock()

	current := job.generation == s.generation
	merged := 0
	if current {
		merged = s.graph.Merge(job.op.Edges())
		if err == nil {
			fingerprint := job.fingerprint
			s.lastFingerprint = &fingerprint
		}
		s.lastErr = err
		if err == nil {
			s.progress = 1
		}
	} else {
		// Superseded by Reset or RebuildIndex, possibly after the pass finished
		err = service.ErrCancelled
	}
	if s.current == job {
		s.current = nil
	}

	log := s.logger.With(
		zap.String("operation_id", job.op.ID()),
		zap.Int("merged_edges", merged),
		zap.Bool("discarded", !current),
		zap.Duration("duration", job.op.Duration()))
	switch {
	case err == nil:
		log.Info("Indexing pass finished")
	case errors.Is(err, service.ErrCancelled):
		log.Info("Indexing pass cancelled")
	default:
		log.Warn("Indexing pass failed", zap.Error(err))
	}

	observers := s.observerList()
	s.dispatcher.Enqueue(func() {
		for _, o := range observers {
			if err == nil {
				o.FinishedIndexing()
			} else {
				o.ErrorIndexing(err)
			}
		}
	})

	persist := current && err == nil && s.repo != nil
	if s.rerun && s.current == nil {
		s.rerun = false
		s.updateIndexLocked()
	}
	s.mu.Unlock()

	if persist {
		s.persist(job)
	}
}

// persist mirrors the pass result into the graph repository. Failures are
// logged and never affect the in-memory index.
func (s *IndexingApplicationService) persist(job *indexingJob) {
	ctx := s.ctx
	if s.cfg.SaveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.SaveTimeout)
		defer cancel()
	}

	if err := s.repo.SaveNodes(ctx, job.account, job.op.Nodes()); err != nil {
		s.logger.Error("Failed to save graph nodes", zap.String("operation_id", job.op.ID()), zap.Error(err))
		return
	}
	if err := s.repo.SaveEdges(ctx, job.account, job.op.Edges().Edges()); err != nil {
		s.logger.Error("Failed to save graph edges", zap.String("operation_id", job.op.ID()), zap.Error(err))
	}
}

func (s *IndexingApplicationService) publishProgress(job *indexingJob, fraction float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != job || job.generation != s.generation {
		return
	}
	s.progress = fraction
	observers := s.observerList()
	s.dispatcher.Enqueue(func() {
		for _, o := range observers {
			o.UpdatedProgress(fraction)
		}
	})
}

func (s *IndexingApplicationService) observerList() []service.IndexingObserver {
	out := make([]service.IndexingObserver, 0, len(s.observers))
	for _, o := range s.observers {
		out = append(out, o)
	}
	return out
}

// RelatedObject finds the record of type Out related to in. It returns false when
// in is nil, In and Out are the same kind, Out is not a concrete record type,
// or no related record is indexed.
func RelatedObject[In, Out entity.Record](s service.IndexingService, in In) (Out, bool) {
	var zero Out
	if entity.IsNilRecord(in) {
		return zero, false
	}
	want := entity.KindOf[Out]()
	if want == "" || in.RecordKind() == want {
		return zero, false
	}

	node, ok := s.RelatedNode(entity.Erase(in).Key(), want)
	if !ok {
		return zero, false
	}
	return entity.Unwrap[Out](node)
}
