// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package joinstore persists join-dimension accumulators in a local DuckDB
// database so they never grow in process memory.
//
// Recovery discipline: rows are keyed by (chunk_seq, key) and written with
// INSERT OR REPLACE. A replayed chunk recomputes its full delta from its raw
// records and overwrites its own prior rows, so a crash between commits can
// never double-count. Uncommitted upserts may be lost on crash; that is the
// contract.
package joinstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	duckdb "github.com/marcboeker/go-duckdb/v2"

	"github.com/cardinalhq/qaqcrunner/internal/aggregate"
	"github.com/cardinalhq/qaqcrunner/internal/logctx"
)

// CommitError wraps a commit failure that survived all retry attempts.
// It is run-fatal.
type CommitError struct {
	Attempts int
	Err      error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("join store commit failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *CommitError) Unwrap() error { return e.Err }

// Entry is one durable row: a chunk's delta for one key.
type Entry struct {
	ChunkSeq  int64
	KeyString string
	Sum       float64
	Count     int64
	Min       float64
	Max       float64
}

type pendingRow struct {
	chunkSeq int64
	key      string
	sum      float64
	count    int64
	min      float64
	max      float64
}

// Store is the on-disk join-dimension store. Upserts accumulate in a pending
// window and become durable in one transaction per commit interval. Chunk
// workers call UpsertChunk concurrently, so mu serializes the pending window
// and the interval commit it triggers.
type Store struct {
	db     *sql.DB
	dbPath string

	commitEvery   int
	maxAttempts   int
	retryInterval time.Duration

	mu            sync.Mutex
	pending       []pendingRow
	pendingChunks int
}

// Option configures a Store.
type Option func(*Store)

// WithCommitEvery sets how many chunks accumulate per commit. Defaults to 8.
func WithCommitEvery(n int) Option {
	return func(s *Store) {
		if n >= 1 {
			s.commitEvery = n
		}
	}
}

// WithCommitRetries sets the bounded retry budget for a failed commit.
func WithCommitRetries(attempts int, interval time.Duration) Option {
	return func(s *Store) {
		if attempts >= 1 {
			s.maxAttempts = attempts
		}
		if interval > 0 {
			s.retryInterval = interval
		}
	}
}

// Open opens (or creates) the store at dbPath.
func Open(ctx context.Context, dbPath string, opts ...Option) (*Store, error) {
	threads := runtime.GOMAXPROCS(0)
	if threads > 4 {
		threads = 4
	}

	connector, err := duckdb.NewConnector(dbPath, func(execer driver.ExecerContext) error {
		initCtx := context.Background()
		_, _ = execer.ExecContext(initCtx, "SET autoinstall_known_extensions = false;", nil)
		_, _ = execer.ExecContext(initCtx, "SET autoload_known_extensions = false;", nil)
		_, _ = execer.ExecContext(initCtx, fmt.Sprintf("PRAGMA threads=%d;", threads), nil)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create duckdb connector: %w", err)
	}

	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{
		db:            db,
		dbPath:        dbPath,
		commitEvery:   8,
		maxAttempts:   5,
		retryInterval: 250 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS join_entries (
			chunk_seq BIGINT NOT NULL,
			key VARCHAR NOT NULL,
			sum DOUBLE NOT NULL,
			count BIGINT NOT NULL,
			min DOUBLE NOT NULL,
			max DOUBLE NOT NULL,
			PRIMARY KEY (chunk_seq, key)
		);`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create join_entries table: %w", err)
	}

	slog.Info("joinstore: opened",
		slog.String("dbPath", dbPath),
		slog.Int("commitEvery", s.commitEvery))
	return s, nil
}

// UpsertChunk stages one chunk's full join delta. The write becomes durable
// at the next commit boundary. Safe for concurrent use by chunk workers.
func (s *Store) UpsertChunk(ctx context.Context, partial *aggregate.Partial) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, acc := range partial.Accs {
		s.pending = append(s.pending, pendingRow{
			chunkSeq: partial.ChunkSeq,
			key:      key.String(),
			sum:      acc.Sum(),
			count:    acc.Count,
			min:      acc.Min,
			max:      acc.Max,
		})
	}
	s.pendingChunks++

	if s.pendingChunks >= s.commitEvery {
		return s.commitLocked(ctx)
	}
	return nil
}

// Commit makes all staged rows durable in one transaction, retrying with
// exponential backoff. After exhaustion the error is run-fatal.
func (s *Store) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitLocked(ctx)
}

func (s *Store) commitLocked(ctx context.Context) error {
	if len(s.pending) == 0 {
		s.pendingChunks = 0
		return nil
	}
	ll := logctx.FromContext(ctx)

	rows := s.pending
	attempts := 0

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = s.retryInterval

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		if err := s.flushOnce(ctx, rows); err != nil {
			ll.Warn("joinstore: commit attempt failed",
				slog.Int("attempt", attempts),
				slog.Any("error", err))
			return struct{}{}, err
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(expo), backoff.WithMaxTries(uint(s.maxAttempts)))
	if err != nil {
		return &CommitError{Attempts: attempts, Err: err}
	}

	s.pending = s.pending[:0]
	s.pendingChunks = 0
	return nil
}

// flushOnce writes one commit window. INSERT OR REPLACE keyed by
// (chunk_seq, key) keeps replays idempotent.
func (s *Store) flushOnce(ctx context.Context, rows []pendingRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO join_entries (chunk_seq, key, sum, count, min, max) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare: %w", err)
	}

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row.chunkSeq, row.key, row.sum, row.count, row.min, row.max); err != nil {
			_ = stmt.Close()
			_ = tx.Rollback()
			return fmt.Errorf("upsert chunk %d: %w", row.chunkSeq, err)
		}
	}

	if err := stmt.Close(); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("close statement: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Iterator walks join entries lazily. Restartable: call ReadAll again for a
// fresh pass.
type Iterator struct {
	rows *sql.Rows
}

// Next returns the next entry. ok is false when the sequence is exhausted.
func (it *Iterator) Next() (entry Entry, ok bool, err error) {
	if !it.rows.Next() {
		if err := it.rows.Err(); err != nil {
			return Entry{}, false, err
		}
		return Entry{}, false, nil
	}
	if err := it.rows.Scan(&entry.ChunkSeq, &entry.KeyString, &entry.Sum, &entry.Count, &entry.Min, &entry.Max); err != nil {
		return Entry{}, false, err
	}
	return entry, true, nil
}

// Close releases the iterator.
func (it *Iterator) Close() error {
	return it.rows.Close()
}

// ReadAll returns a lazy iteration over every committed entry, ordered by
// key then chunk for a deterministic walk.
func (s *Store) ReadAll(ctx context.Context) (*Iterator, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chunk_seq, key, sum, count, min, max FROM join_entries ORDER BY key, chunk_seq`)
	if err != nil {
		return nil, fmt.Errorf("read join entries: %w", err)
	}
	return &Iterator{rows: rows}, nil
}

// Reset drops all durable state. Used when a run starts over from scratch
// rather than replaying.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = s.pending[:0]
	s.pendingChunks = 0
	_, err := s.db.ExecContext(ctx, `DELETE FROM join_entries`)
	return err
}

// Close flushes nothing: uncommitted state is discarded by contract.
func (s *Store) Close() error {
	return s.db.Close()
}
