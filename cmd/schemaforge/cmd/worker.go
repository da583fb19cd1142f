package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/schemaforge/schemaforge/internal/analyze"
	"github.com/schemaforge/schemaforge/internal/classify"
	"github.com/schemaforge/schemaforge/internal/core/config"
	"github.com/schemaforge/schemaforge/internal/core/db"
	"github.com/schemaforge/schemaforge/internal/eventlog"
	"github.com/schemaforge/schemaforge/internal/generate"
	"github.com/schemaforge/schemaforge/internal/queue"
	"github.com/schemaforge/schemaforge/internal/store"
	"github.com/schemaforge/schemaforge/internal/truncate"
	"github.com/schemaforge/schemaforge/internal/worker"
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "run the Job Queue worker pool against a data directory",
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
	workerCmd.Flags().Int("concurrency", 0, "worker pool size (0 uses the configured default)")
}

func runWorker(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if dbURL != "" {
		cfg.DBURL = dbURL
	}

	concurrency, _ := cmd.Flags().GetInt("concurrency")
	if concurrency == 0 {
		concurrency = cfg.QueueConcurrency
	}

	st, err := store.New(cfg.DataDir, cfg.MaxRawSamples)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	stopWatch, err := st.Watch()
	if err != nil {
		return fmt.Errorf("failed to start store watcher: %w", err)
	}
	defer stopWatch()

	database, err := db.Open(cfg.DBURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	if err := db.MigrateUp(database); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	queries, err := db.LoadQueries(database)
	if err != nil {
		return fmt.Errorf("failed to load queries: %w", err)
	}
	eventLog := eventlog.New(queries)

	q, err := queue.New(queue.Config{
		Dir:                cfg.DataDir + "/queue",
		DefaultMaxAttempts: cfg.QueueMaxAttempts,
		BackoffBaseMs:      int(cfg.QueueBackoffDelay.Milliseconds()),
	})
	if err != nil {
		return fmt.Errorf("failed to open job queue: %w", err)
	}

	truncateCfg := truncate.DefaultConfig()
	truncateCfg.MaxLength = cfg.TruncateMaxLength
	if len(cfg.TruncateFields) > 0 {
		truncateCfg.FieldNames = cfg.TruncateFields
	}

	w := worker.New(
		truncate.New(truncateCfg),
		classify.NewDefault(),
		analyze.New(),
		generate.New(),
		st,
		eventLog,
	)

	pool := worker.NewPool(w, q, concurrency, log.Default())

	log.Printf("starting schemaforge worker pool: concurrency=%d data_dir=%s", concurrency, cfg.DataDir)
	go pool.Run(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("shutting down gracefully...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), worker.DefaultShutdownTimeout)
	defer shutdownCancel()
	return pool.Shutdown(shutdownCtx)
}
