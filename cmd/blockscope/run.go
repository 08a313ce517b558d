package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/tracekit/blockscope/internal/analyze"
	"github.com/tracekit/blockscope/internal/duckdb"
	"github.com/tracekit/blockscope/internal/httpserver"
	"github.com/tracekit/blockscope/internal/model"
	"github.com/tracekit/blockscope/internal/snapshot"
	"golang.org/x/sync/errgroup"
)

// runAnalysis loads a connection snapshot, transforms it into analysis rows,
// persists them, and (when enabled) serves the query API until interrupted.
func runAnalysis(cfg appConfig, snapshotPath string) error {
	cleanupLogger := configureRuntimeLogger()
	defer cleanupLogger()

	conns, err := loadSnapshot(snapshotPath)
	if err != nil {
		return err
	}

	store, err := duckdb.NewStore(cfg.DBPath, cfg.QueryTimeout)
	if err != nil {
		return fmt.Errorf("failed to initialize DuckDB: %w", err)
	}
	defer store.Close()

	retentionCleaner := duckdb.NewRetentionCleaner(store, duckdb.RetentionConfig{
		RetentionDays: cfg.RowRetention,
	})
	if retentionCleaner != nil {
		defer retentionCleaner.Stop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rows, err := transformSnapshot(ctx, conns, cfg.Workers)
	if err != nil {
		return err
	}

	insertBuffer := duckdb.NewInsertBuffer(store, duckdb.InsertBufferConfig{
		BatchSize:      cfg.InsertBatchSize,
		FlushInterval:  cfg.InsertFlushInterval,
		FlushQueueSize: cfg.InsertFlushQueue,
	})

	queued := make([]*model.AnalysisRow, 0, len(rows))
	for i := range rows {
		queued = append(queued, &rows[i])
	}
	insertBuffer.AddAll(queued)
	insertBuffer.Stop() // drains everything before we query or serve

	log.Printf("analysis: %d connections expanded into %d rows", len(conns), len(rows))
	printSummary(store)

	if !cfg.APIEnabled {
		return nil
	}

	apiServer := httpserver.NewServer(cfg.APIAddr, store)
	if err := apiServer.Start(); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}
	defer apiServer.Stop()

	fmt.Printf("Serving analysis API on http://%s\n", cfg.APIAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		<-sigCh
		fmt.Println("\nShutting down gracefully... (press Ctrl+C again to force)")
		cancel()

		// Shutdown deadline starts now — not at boot.
		deadline := time.NewTimer(10 * time.Second)
		defer deadline.Stop()

		select {
		case <-sigCh:
			fmt.Println("\nForce shutdown.")
		case <-deadline.C:
			fmt.Println("Shutdown timed out, forcing exit.")
		}
		os.Exit(1)
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	if err := g.Wait(); err != nil {
		log.Printf("server: errgroup exited with error: %v", err)
	}
	return nil
}

// loadSnapshot reads connections from the given file, or from stdin when no
// path is given and input is piped.
func loadSnapshot(path string) ([]model.Connection, error) {
	if path != "" {
		return snapshot.DecodeFile(path)
	}

	stat, err := os.Stdin.Stat()
	if err != nil || (stat.Mode()&os.ModeCharDevice) != 0 {
		return nil, fmt.Errorf("no snapshot: pass a snapshot file or pipe one to stdin")
	}
	conns, err := snapshot.Decode(os.Stdin)
	if err != nil {
		return nil, fmt.Errorf("decoding snapshot from stdin: %w", err)
	}
	return conns, nil
}

func transformSnapshot(ctx context.Context, conns []model.Connection, workers int) ([]model.AnalysisRow, error) {
	if workers > 1 {
		return analyze.TransformParallel(ctx, conns, workers)
	}
	return analyze.Transform(conns)
}

func printSummary(store *duckdb.Store) {
	stats, err := store.ReasonBreakdown(duckdb.QueryOpts{})
	if err != nil {
		log.Printf("summary: reason breakdown failed: %v", err)
		return
	}
	if len(stats) == 0 {
		fmt.Println("No send-blocking intervals recorded.")
		return
	}

	fmt.Println("Blocked time by reason:")
	for _, stat := range stats {
		fmt.Printf("  %-24s %12s  (%d events)\n",
			stat.Reason, time.Duration(stat.TotalDuration), stat.Count)
	}
}

func configureRuntimeLogger() func() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	home, err := os.UserHomeDir()
	if err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}

	logDir := filepath.Join(home, ".local", "state", "blockscope")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}

	logPath := filepath.Join(logDir, "blockscope.log")
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}

	log.SetOutput(f)
	return func() { f.Close() }
}
