// Package ledger is the embedded relational store for position history.
// Raw classified instructions go in, reconstructed transactions with
// balances, impermanent loss and P&L come out of the v_transactions view.
package ledger

import (
	"database/sql"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	_ "github.com/duckdb/duckdb-go/v2"
	"go.uber.org/zap"

	"dlmm-ledger/internal/ledger/blob"
)

// Store wraps a single-connection DuckDB database. Writes are funneled
// through a FIFO queue drained by one goroutine; every drain cycle ends with
// a snapshot save unless delaySave is set.
type Store struct {
	db     *sql.DB
	path   string
	blob   blob.Store
	logger *zap.Logger

	delaySave atomic.Bool

	mu       sync.Mutex
	queue    []dbJob
	draining bool
	drained  sync.WaitGroup
}

type dbJob struct {
	fn  func() error
	err chan error
}

// Open opens or creates the database at path. An empty path opens an
// in-memory database. When bs holds a snapshot and the path file does not
// exist yet, the snapshot is materialized first.
func Open(path string, bs blob.Store, logger *zap.Logger) (*Store, error) {
	if bs != nil && path != "" {
		data, err := bs.Load()
		if err != nil {
			return nil, fmt.Errorf("load snapshot: %w", err)
		}
		if len(data) > 0 {
			if _, err := os.Stat(path); os.IsNotExist(err) {
				if err := os.WriteFile(path, data, 0o644); err != nil {
					return nil, fmt.Errorf("materialize snapshot: %w", err)
				}
			}
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// DuckDB allows one writer; a single pooled connection serializes all
	// statements and keeps temp view state coherent.
	db.SetMaxOpenConns(1)

	for _, stmt := range []struct {
		name string
		sql  string
	}{
		{"tables", createTables},
		{"seeds", seedData},
		{"transactions view", createTransactionsView},
		{"helper views", createHelperViews},
	} {
		if _, err := db.Exec(stmt.sql); err != nil {
			db.Close()
			return nil, fmt.Errorf("create %s: %w", stmt.name, err)
		}
	}

	return &Store{
		db:     db,
		path:   path,
		blob:   bs,
		logger: logger,
	}, nil
}

// SetDelaySave suspends the per-drain snapshot save. Bulk loaders set it for
// the duration of a download and call Save once at the end.
func (s *Store) SetDelaySave(delay bool) {
	s.delaySave.Store(delay)
}

// enqueue appends a write job and blocks until the drain goroutine has run
// it, preserving submission order across callers.
func (s *Store) enqueue(fn func() error) error {
	job := dbJob{fn: fn, err: make(chan error, 1)}
	s.mu.Lock()
	s.queue = append(s.queue, job)
	start := !s.draining
	if start {
		s.draining = true
		s.drained.Add(1)
	}
	s.mu.Unlock()
	if start {
		go s.drain()
	}
	return <-job.err
}

func (s *Store) drain() {
	defer s.drained.Done()
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.draining = false
			s.mu.Unlock()
			break
		}
		job := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()
		job.err <- job.fn()
	}
	if !s.delaySave.Load() {
		if err := s.Save(); err != nil {
			s.logger.Error("snapshot save failed", zap.Error(err))
		}
	}
}

// Save checkpoints the database and writes its bytes to the blob store.
// No-op for in-memory databases or when no blob store is configured.
func (s *Store) Save() error {
	if s.blob == nil || s.path == "" {
		return nil
	}
	if _, err := s.db.Exec("CHECKPOINT"); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read database file: %w", err)
	}
	if err := s.blob.Save(data); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Close waits for in-flight writes, saves a final snapshot and closes the
// database.
func (s *Store) Close() error {
	s.drained.Wait()
	if err := s.Save(); err != nil {
		s.logger.Error("final snapshot save failed", zap.Error(err))
	}
	return s.db.Close()
}
