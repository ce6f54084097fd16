package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	app_service "account-graph-indexer/internal/application/service"
	"account-graph-indexer/internal/domain/repository"
	domain_service "account-graph-indexer/internal/domain/service"
	"account-graph-indexer/internal/infrastructure/api"
	"account-graph-indexer/internal/infrastructure/config"
	"account-graph-indexer/internal/infrastructure/database"
	"account-graph-indexer/internal/infrastructure/logger"
	"account-graph-indexer/internal/infrastructure/messaging"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Consume account updates from NATS and serve the index over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
}

func serve() error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.NewLogger(cfg.App.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync()

	app := fx.New(
		// Provide dependencies
		fx.Supply(cfg),
		fx.Supply(log),
		fx.Supply(&cfg.App),
		fx.Supply(&cfg.Index),
		fx.Supply(&cfg.NATS),
		fx.Supply(&cfg.Neo4J),

		// Infrastructure providers
		fx.Provide(
			database.NewNeo4JClient,
			func(cfg *config.Config, client *database.Neo4JClient, log *logger.Logger) repository.GraphRepository {
				if !cfg.Neo4J.Enabled {
					return nil
				}
				return database.NewNeo4JGraphRepository(client, log)
			},
			messaging.NewNATSConsumer,
			messaging.NewNATSProgressPublisher,
		),

		// Application providers
		fx.Provide(
			fx.Annotate(
				app_service.NewIndexingApplicationService,
				fx.As(new(domain_service.IndexingService)),
			),
			api.NewServer,
		),

		// Lifecycle hooks
		fx.Invoke(startIndexer),
		fx.Invoke(startHTTPServer),

		fx.WithLogger(func() fxevent.Logger {
			return fxevent.NopLogger
		}),
	)

	ctx := context.Background()
	if err := app.Start(ctx); err != nil {
		log.Error("Failed to start application", zap.Error(err))
		return err
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down application...")

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.Stop(stopCtx); err != nil {
		log.Error("Failed to stop application gracefully", zap.Error(err))
		return err
	}

	log.Info("Application stopped successfully")
	return nil
}

// startIndexer wires storage, messaging and observers around the indexing service
func startIndexer(
	lifecycle fx.Lifecycle,
	consumer *messaging.NATSConsumer,
	publisher *messaging.NATSProgressPublisher,
	indexingService domain_service.IndexingService,
	neo4jClient *database.Neo4JClient,
	log *logger.Logger,
	cfg *config.Config,
) {
	lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("Starting indexing service...")

			if err := neo4jClient.Connect(ctx); err != nil {
				return fmt.Errorf("failed to connect to Neo4J: %w", err)
			}

			indexingService.Subscribe(app_service.NewLogObserver(log))
			if cfg.NATS.PublishProgress {
				indexingService.Subscribe(publisher)
			}
			if err := indexingService.Start(); err != nil {
				return err
			}

			log.Info("NATS Configuration",
				zap.String("url", cfg.NATS.URL),
				zap.String("subject_prefix", cfg.NATS.SubjectPrefix),
				zap.Bool("enabled", cfg.NATS.Enabled),
			)
			if err := consumer.Connect(ctx); err != nil {
				return fmt.Errorf("failed to connect to NATS: %w", err)
			}

			go processUpdates(consumer, indexingService)

			log.Info("Indexing service started successfully")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("Stopping indexing service...")
			// Closes the update channel, which ends processUpdates
			if err := consumer.Disconnect(); err != nil {
				log.Error("Failed to disconnect from NATS", zap.Error(err))
			}
			indexingService.Stop()
			return neo4jClient.Close(ctx)
		},
	})
}

// startHTTPServer starts the health, command and query server
func startHTTPServer(lifecycle fx.Lifecycle, server *api.Server) {
	lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			server.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return server.Shutdown(ctx)
		},
	})
}

// processUpdates bridges account updates into the indexing service
func processUpdates(consumer *messaging.NATSConsumer, indexingService domain_service.IndexingService) {
	for update := range consumer.GetMessageChannel() {
		indexingService.Ingest(update)
	}
}
