package main

import (
	"encoding/json"
	"os"

	"account-graph-indexer/internal/domain/entity"
	"account-graph-indexer/internal/infrastructure/config"
	"account-graph-indexer/internal/infrastructure/logger"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Publishes an account update dump to the indexer's updates subject.
// Usage: go run ./scripts <dump.json> [config.yaml]
func main() {
	// Setup logger
	log, err := logger.NewLogger("info")
	if err != nil {
		panic(err)
	}
	log = log.WithComponent("publish-script")

	if len(os.Args) < 2 {
		log.Fatal("Usage: publish_update <dump.json> [config.yaml]")
	}
	configFile := ""
	if len(os.Args) > 2 {
		configFile = os.Args[2]
	}

	// Load config
	cfg, err := config.Load(configFile)
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}

	raw, err := os.ReadFile(os.Args[1])
	if err != nil {
		log.Fatal("Failed to read dump", zap.Error(err))
	}

	// Validate before publishing
	var update entity.AccountUpdate
	if err := json.Unmarshal(raw, &update); err != nil {
		log.Fatal("Failed to decode dump", zap.Error(err))
	}

	conn, err := nats.Connect(cfg.NATS.URL, nats.Name("account-graph-publisher"), nats.Timeout(cfg.NATS.ConnectTimeout))
	if err != nil {
		log.Fatal("Failed to connect to NATS", zap.Error(err))
	}
	defer conn.Close()

	subject := cfg.NATS.SubjectPrefix + ".updates"
	if err := conn.Publish(subject, raw); err != nil {
		log.Fatal("Failed to publish update", zap.Error(err))
	}
	if err := conn.Flush(); err != nil {
		log.Fatal("Failed to flush NATS connection", zap.Error(err))
	}

	log.Info("Published account update",
		zap.String("subject", subject),
		zap.String("account", update.Account),
		zap.Int("effects", len(update.Effects)),
		zap.Int("operations", len(update.Operations)),
		zap.Int("transactions", len(update.Transactions)),
	)
}
