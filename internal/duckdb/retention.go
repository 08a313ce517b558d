package duckdb

import (
	"log"
	"sync"
	"time"
)

const sweepInterval = time.Hour

// RetentionConfig bounds how long analysis rows are kept.
type RetentionConfig struct {
	RetentionDays int
}

// RetentionCleaner prunes rows whose created_at falls outside the retention
// window. One sweep runs at startup to catch up after downtime, then hourly
// until Stop.
type RetentionCleaner struct {
	store  *Store
	maxAge time.Duration

	done     chan struct{}
	finished sync.WaitGroup
	stopOnce sync.Once
}

// NewRetentionCleaner starts a cleaner, or returns nil when retention is
// disabled (zero or negative days).
func NewRetentionCleaner(store *Store, conf ...RetentionConfig) *RetentionCleaner {
	days := 30
	if len(conf) > 0 {
		days = conf[0].RetentionDays
	}
	if days <= 0 {
		return nil
	}

	rc := &RetentionCleaner{
		store:  store,
		maxAge: time.Duration(days) * 24 * time.Hour,
		done:   make(chan struct{}),
	}

	rc.sweep()

	rc.finished.Add(1)
	go rc.loop()
	return rc
}

func (rc *RetentionCleaner) loop() {
	defer rc.finished.Done()
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rc.sweep()
		case <-rc.done:
			return
		}
	}
}

func (rc *RetentionCleaner) sweep() {
	deleted, err := rc.store.DeleteBefore(time.Now().Add(-rc.maxAge))
	if err != nil {
		log.Printf("duckdb: retention sweep failed: %v", err)
		return
	}
	if deleted > 0 {
		log.Printf("duckdb: retention sweep removed %d rows older than %s", deleted, rc.maxAge)
	}
}

// Stop halts the sweep loop and waits for it to exit. Safe to call more
// than once.
func (rc *RetentionCleaner) Stop() {
	rc.stopOnce.Do(func() {
		close(rc.done)
		rc.finished.Wait()
	})
}
