package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	app_service "account-graph-indexer/internal/application/service"
	"account-graph-indexer/internal/domain/entity"
	"account-graph-indexer/internal/infrastructure/api"
	"account-graph-indexer/internal/infrastructure/config"
	"account-graph-indexer/internal/infrastructure/logger"

	"github.com/spf13/cobra"
)

type queryOptions struct {
	dump    string
	kind    string
	id      string
	want    string
	mode    string
	timeout time.Duration
}

// doneObserver signals the end of an indexing pass
type doneObserver chan error

func (d doneObserver) UpdatedProgress(float64) {}
func (d doneObserver) FinishedIndexing()       { d <- nil }
func (d doneObserver) ErrorIndexing(err error) { d <- err }

func newQueryCmd() *cobra.Command {
	opts := &queryOptions{}
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Index an account dump offline and print the record related to a node",
		Example: `  indexer query --dump account.json --kind effect --id 0001-1 --want transaction`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.dump, "dump", "", "JSON file holding an account update")
	cmd.Flags().StringVar(&opts.kind, "kind", "", "kind of the start node (effect, operation, transaction)")
	cmd.Flags().StringVar(&opts.id, "id", "", "identifier of the start node")
	cmd.Flags().StringVar(&opts.want, "want", "", "kind of the related node to find")
	cmd.Flags().StringVar(&opts.mode, "mode", "", "traversal mode override (targeted, first_dead_end)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "maximum time to wait for indexing")
	for _, name := range []string{"dump", "kind", "id", "want"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func runQuery(cmd *cobra.Command, opts *queryOptions) error {
	from, err := entity.ParseKind(opts.kind)
	if err != nil {
		return err
	}
	want, err := entity.ParseKind(opts.want)
	if err != nil {
		return err
	}

	raw, err := os.ReadFile(opts.dump)
	if err != nil {
		return fmt.Errorf("failed to read dump: %w", err)
	}
	var update entity.AccountUpdate
	if err := json.Unmarshal(raw, &update); err != nil {
		return fmt.Errorf("failed to decode dump: %w", err)
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if opts.mode != "" {
		cfg.Index.TraversalMode = opts.mode
	}

	log, err := logger.NewLogger(cfg.App.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync()

	svc, err := app_service.NewIndexingApplicationService(&cfg.Index, nil, log)
	if err != nil {
		return err
	}
	done := make(doneObserver, 1)
	svc.Subscribe(done)
	if err := svc.Start(); err != nil {
		return err
	}
	defer svc.Stop()

	svc.Ingest(&update)
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("indexing failed: %w", err)
		}
	case <-time.After(opts.timeout):
		svc.HaltIndexing()
		return fmt.Errorf("indexing did not finish within %s", opts.timeout)
	}

	start := entity.NodeKey{Kind: from, ID: opts.id}
	node, ok := svc.RelatedNode(start, want)
	if !ok {
		return fmt.Errorf("no %s related to %s", want, start)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(api.RelatedResponse{From: start, Node: node.Key(), Record: node.Object()})
}
