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

// Package engine orchestrates a full run: read the extract in chunks, fan
// the chunks out to a bounded worker pool for validation and partial
// aggregation, persist per-chunk deltas to the join store, then merge and
// report.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cardinalhq/qaqcrunner/config"
	"github.com/cardinalhq/qaqcrunner/internal/aggregate"
	"github.com/cardinalhq/qaqcrunner/internal/filereader"
	"github.com/cardinalhq/qaqcrunner/internal/idgen"
	"github.com/cardinalhq/qaqcrunner/internal/joinstore"
	"github.com/cardinalhq/qaqcrunner/internal/logctx"
	"github.com/cardinalhq/qaqcrunner/internal/mergecoord"
	"github.com/cardinalhq/qaqcrunner/internal/pipeline"
	"github.com/cardinalhq/qaqcrunner/internal/qaqcreport"
	"github.com/cardinalhq/qaqcrunner/internal/rowvalidate"
	"github.com/cardinalhq/qaqcrunner/internal/runobserver"
)

// Stage names used when recording counters.
const (
	StageExtract  = "extract"
	StageBaseline = "baseline"
)

// Skip reasons recorded at the engine level, on top of the per-row reasons
// the validator produces.
const (
	// SkipReasonMalformedChunk marks rows discarded because their whole
	// chunk was structurally broken.
	SkipReasonMalformedChunk = "malformed_chunk"

	// SkipReasonUnparsableRow marks lines the reader could not parse into a
	// row at all. They never reach the validator.
	SkipReasonUnparsableRow = "unparsable_row"
)

// Engine runs the aggregation pipeline for one extract.
type Engine struct {
	cfg   *config.Config
	rules *config.Rules
	idg   idgen.IDGenerator
}

// New builds an engine from configuration and rules.
func New(cfg *config.Config, rules *config.Rules) *Engine {
	return &Engine{
		cfg:   cfg,
		rules: rules,
		idg:   idgen.NewULIDGenerator(),
	}
}

// RunResult carries everything a run produced.
type RunResult struct {
	RunID    string
	Final    *mergecoord.Final
	Baseline *mergecoord.Final
	Report   *qaqcreport.Report
	Counters runobserver.Summary
}

// Run executes a full run. The latest extract flows through the worker pool
// and the join store; the baseline snapshot, when configured, is aggregated
// in memory. Cancelling ctx stops chunk dispatch and fails the run.
func (e *Engine) Run(ctx context.Context) (*RunResult, error) {
	runID := e.idg.Make(time.Now())
	ll := logctx.FromContext(ctx).With("runID", runID)
	ctx = logctx.WithLogger(ctx, ll)
	observer := runobserver.New(runID)

	store, err := joinstore.Open(ctx, e.cfg.JoinStore.Path,
		joinstore.WithCommitEvery(e.cfg.JoinStore.CommitEvery),
		joinstore.WithCommitRetries(e.cfg.JoinStore.CommitRetries, e.cfg.JoinStore.CommitRetryInterval))
	if err != nil {
		return nil, fmt.Errorf("open join store: %w", err)
	}
	defer func() { _ = store.Close() }()

	// A fresh run starts from an empty store so replayed chunk ordinals
	// cannot collide with a previous input's deltas.
	if err := store.Reset(ctx); err != nil {
		return nil, fmt.Errorf("reset join store: %w", err)
	}

	ll.Info("aggregating extract",
		"input", e.cfg.Paths.Input,
		"chunkSize", e.cfg.ChunkSize,
		"workers", e.workers())
	final, err := e.aggregate(ctx, e.cfg.Paths.Input, StageExtract, store, observer)
	if err != nil {
		return nil, err
	}

	var baseline *mergecoord.Final
	if e.cfg.Paths.Snapshot != "" {
		ll.Info("aggregating baseline snapshot", "snapshot", e.cfg.Paths.Snapshot)
		baseline, err = e.aggregate(ctx, e.cfg.Paths.Snapshot, StageBaseline, nil, observer)
		if err != nil {
			return nil, fmt.Errorf("aggregate baseline: %w", err)
		}
	}

	report := qaqcreport.Generate(final, baseline, e.rules)
	summary := observer.Summary()
	totals := summary.Totals()
	ll.Info("run complete",
		"overall", string(report.Overall),
		"keys", final.Len(),
		"rowsRead", totals.RowsRead,
		"rowsKept", totals.RowsKept,
		"rowsSkipped", totals.SkippedTotal())

	return &RunResult{
		RunID:    runID,
		Final:    final,
		Baseline: baseline,
		Report:   report,
		Counters: summary,
	}, nil
}

func (e *Engine) workers() int {
	if e.cfg.Workers > 0 {
		return e.cfg.Workers
	}
	return runtime.NumCPU()
}

type chunk struct {
	seq   int64
	batch *pipeline.Batch
}

// aggregate streams one source through validation and partial aggregation.
// With a store, per-chunk deltas are persisted and the final aggregate is
// rebuilt from the committed store, so a resumed run sees exactly what a
// fresh one would. Without a store, partials merge in memory.
func (e *Engine) aggregate(ctx context.Context, path, stage string, store *joinstore.Store, observer *runobserver.Observer) (*mergecoord.Final, error) {
	reader, err := filereader.OpenExtract(path, e.rules.RequiredColumns, e.cfg.ChunkSize)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = reader.Close() }()

	validator := rowvalidate.New(e.rules.RequiredColumns, e.rules.Metrics, e.rules.AttributeColumns)
	coord := mergecoord.New()
	var coordMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	chunks := make(chan chunk)

	for i := 0; i < e.workers(); i++ {
		g.Go(func() error {
			for c := range chunks {
				if err := e.processChunk(gctx, c, validator, store, coord, &coordMu, observer, stage); err != nil {
					return err
				}
			}
			return nil
		})
	}

	g.Go(func() error {
		defer close(chunks)
		var seq int64
		for {
			batch, err := reader.Next(gctx)
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			select {
			case chunks <- chunk{seq: seq, batch: batch}:
				seq++
			case <-gctx.Done():
				pipeline.ReturnBatch(batch)
				return gctx.Err()
			}
		}
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Lines the reader dropped never reached the validator, so account for
	// them here to keep read, kept, and skipped totals reconcilable.
	if dropped := reader.DroppedRows(); dropped > 0 {
		observer.Record(ctx, stage, runobserver.StageCounters{
			RowsRead:    dropped,
			RowsSkipped: map[string]int64{SkipReasonUnparsableRow: dropped},
		})
	}

	if store != nil {
		if err := store.Commit(ctx); err != nil {
			return nil, fmt.Errorf("commit join store: %w", err)
		}
		it, err := store.ReadAll(ctx)
		if err != nil {
			return nil, fmt.Errorf("read join store: %w", err)
		}
		defer func() { _ = it.Close() }()
		if err := coord.AddStore(it); err != nil {
			return nil, err
		}
	}
	return coord.Finalize(), nil
}

func (e *Engine) processChunk(ctx context.Context, c chunk, validator *rowvalidate.Validator, store *joinstore.Store, coord *mergecoord.Coordinator, coordMu *sync.Mutex, observer *runobserver.Observer, stage string) error {
	defer pipeline.ReturnBatch(c.batch)

	result, err := validator.ValidateBatch(c.batch, c.seq)
	if err != nil {
		var structural *rowvalidate.StructuralChunkError
		if errors.As(err, &structural) {
			// The chunk is rejected as a unit; the run continues.
			logctx.FromContext(ctx).Warn("rejecting malformed chunk",
				"chunkSeq", c.seq, "rows", structural.Rows)
			observer.Record(ctx, stage, runobserver.StageCounters{
				RowsRead:    int64(structural.Rows),
				RowsSkipped: map[string]int64{SkipReasonMalformedChunk: int64(structural.Rows)},
			})
			return nil
		}
		return fmt.Errorf("validate chunk %d: %w", c.seq, err)
	}
	observer.Record(ctx, stage, result.Delta)

	partial := aggregate.FromRecords(c.seq, result.Kept)
	if store != nil {
		if err := store.UpsertChunk(ctx, partial); err != nil {
			return fmt.Errorf("upsert chunk %d: %w", c.seq, err)
		}
		return nil
	}
	coordMu.Lock()
	coord.AddPartial(partial)
	coordMu.Unlock()
	return nil
}
