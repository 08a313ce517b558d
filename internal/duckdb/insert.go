package duckdb

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tracekit/blockscope/internal/model"
)

// DefaultFlushQueueSize is the number of batches that can be queued for async flushing.
const DefaultFlushQueueSize = 64

// InsertBuffer batches analysis rows and flushes them to DuckDB asynchronously.
// Add() never blocks on DuckDB writes - rows are sent to a flush goroutine.
type InsertBuffer struct {
	writer        model.RowWriter
	mu            sync.Mutex
	pending       []*AnalysisRow
	flushChan     chan []*AnalysisRow // async flush queue
	maxBatch      int
	flushInterval time.Duration
	done          chan struct{}
	wg            sync.WaitGroup
	tickWg        sync.WaitGroup // separate WaitGroup for tickLoop

	// backpressureCount tracks inline flushes for throttled logging.
	backpressureCount atomic.Int64
	lastBPLog         atomic.Int64 // unix timestamp of last backpressure log
}

// InsertBufferConfig holds tunable parameters for the insert buffer.
type InsertBufferConfig struct {
	BatchSize      int
	FlushInterval  time.Duration
	FlushQueueSize int
}

// NewInsertBuffer creates a new insert buffer that flushes to the store.
// The flush goroutine processes batches asynchronously so Add() never blocks on IO.
func NewInsertBuffer(writer model.RowWriter, conf ...InsertBufferConfig) *InsertBuffer {
	batchSize := 2000
	flushInterval := 100 * time.Millisecond
	flushQueueSize := DefaultFlushQueueSize
	if len(conf) > 0 {
		if conf[0].BatchSize > 0 {
			batchSize = conf[0].BatchSize
		}
		if conf[0].FlushInterval > 0 {
			flushInterval = conf[0].FlushInterval
		}
		if conf[0].FlushQueueSize > 0 {
			flushQueueSize = conf[0].FlushQueueSize
		}
	}

	b := &InsertBuffer{
		writer:        writer,
		pending:       make([]*AnalysisRow, 0, batchSize),
		flushChan:     make(chan []*AnalysisRow, flushQueueSize),
		maxBatch:      batchSize,
		flushInterval: flushInterval,
		done:          make(chan struct{}),
	}

	b.wg.Add(1)
	go b.flushWorker()

	b.wg.Add(1)
	b.tickWg.Add(1)
	go b.tickLoop()

	return b
}

// tickLoop periodically drains the pending buffer.
func (b *InsertBuffer) tickLoop() {
	defer b.wg.Done()
	defer b.tickWg.Done()
	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.drainPending()
		case <-b.done:
			b.drainPending() // final drain
			return
		}
	}
}

// logBackpressure emits a throttled warning (at most once per 10 seconds) when
// the flush channel is full and an inline flush is triggered.
func (b *InsertBuffer) logBackpressure() {
	count := b.backpressureCount.Add(1)
	now := time.Now().Unix()
	last := b.lastBPLog.Load()
	if now-last >= 10 && b.lastBPLog.CompareAndSwap(last, now) {
		log.Printf("duckdb: backpressure — %d inline flushes (flush channel full, DuckDB falling behind)", count)
	}
}

// drainPending moves pending rows to the flush channel without blocking on DuckDB.
func (b *InsertBuffer) drainPending() {
	b.mu.Lock()
	if len(b.pending) == 0 {
		b.mu.Unlock()
		return
	}
	batch := b.pending
	b.pending = make([]*AnalysisRow, 0, b.maxBatch)
	b.mu.Unlock()

	// Non-blocking send to flush channel. If channel is full, flush synchronously
	// as a safety valve (this means DuckDB is falling behind).
	select {
	case b.flushChan <- batch:
	default:
		b.logBackpressure()
		if err := b.writer.InsertRowBatch(batch); err != nil {
			log.Printf("duckdb flush error (inline): %v", err)
		}
	}
}

// flushWorker processes batches from the flush channel.
func (b *InsertBuffer) flushWorker() {
	defer b.wg.Done()
	for batch := range b.flushChan {
		if err := b.writer.InsertRowBatch(batch); err != nil {
			log.Printf("duckdb flush error: %v", err)
		}
	}
}

// Add queues a row for batch insertion. This never blocks on DuckDB IO.
func (b *InsertBuffer) Add(row *AnalysisRow) {
	b.mu.Lock()
	b.pending = append(b.pending, row)
	shouldFlush := len(b.pending) >= b.maxBatch
	var batch []*AnalysisRow
	if shouldFlush {
		batch = b.pending
		b.pending = make([]*AnalysisRow, 0, b.maxBatch)
	}
	b.mu.Unlock()

	if shouldFlush {
		select {
		case b.flushChan <- batch:
		default:
			// Backpressure safety valve: flush inline instead of spawning
			// unbounded goroutines under sustained overload.
			b.logBackpressure()
			if err := b.writer.InsertRowBatch(batch); err != nil {
				log.Printf("duckdb flush error (overflow-inline): %v", err)
			}
		}
	}
}

// AddAll queues a full row sequence, preserving order.
func (b *InsertBuffer) AddAll(rows []*AnalysisRow) {
	for _, row := range rows {
		b.Add(row)
	}
}

// Stop flushes remaining rows and waits for all writes to complete.
func (b *InsertBuffer) Stop() {
	close(b.done)
	// Wait for tickLoop to finish its final drain before closing flushChan,
	// ensuring all pending rows are sent to the flush channel.
	b.tickWg.Wait()
	close(b.flushChan)
	b.wg.Wait()
}

// InsertRowBatch appends a batch of analysis rows into DuckDB in a single
// transaction. If any individual row fails to insert, the entire batch is
// rolled back and retried row-by-row to salvage as many rows as possible.
func (s *Store) InsertRowBatch(rows []*AnalysisRow) error {
	if len(rows) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.QueryTimeout)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.insertBatchTx(ctx, rows)
	if err == nil {
		return nil
	}

	// Batch failed — retry row-by-row to salvage what we can.
	var failed int
	for _, r := range rows {
		if rerr := s.insertBatchTx(ctx, []*AnalysisRow{r}); rerr != nil {
			failed++
			log.Printf("duckdb: dropping row (conn=%d reason=%s): %v", r.ConnectionID, r.Reason, rerr)
		}
	}
	if failed > 0 {
		log.Printf("duckdb: batch partially failed — %d/%d rows dropped", failed, len(rows))
	}
	return nil
}

// insertBatchTx inserts rows in a single transaction.
func (s *Store) insertBatchTx(ctx context.Context, rows []*AnalysisRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	rowStmt, err := tx.PrepareContext(ctx, `INSERT INTO block_rows (connection_id, process_id, reason, timestamp, duration_ns, percent, count) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer rowStmt.Close()

	for _, r := range rows {
		count := r.Count
		if count == 0 {
			count = 1
		}
		if _, err := rowStmt.ExecContext(
			ctx,
			r.ConnectionID, r.ProcessID, string(r.Reason),
			r.Timestamp, int64(r.Duration), r.Percent, count,
		); err != nil {
			return fmt.Errorf("row insert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}
