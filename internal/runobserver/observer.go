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

// Package runobserver accumulates per-stage counters for one run. Counters
// are monotonic within a run; a new Observer is created at run start.
// Persisting the summary anywhere durable is the caller's job.
package runobserver

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

var (
	rowsReadCounter    otelmetric.Int64Counter
	rowsKeptCounter    otelmetric.Int64Counter
	rowsSkippedCounter otelmetric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/qaqcrunner/internal/runobserver")

	var err error
	rowsReadCounter, err = meter.Int64Counter(
		"qaqcrunner.run.rows.read",
		otelmetric.WithDescription("Rows read per stage"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create rows.read counter: %w", err))
	}

	rowsKeptCounter, err = meter.Int64Counter(
		"qaqcrunner.run.rows.kept",
		otelmetric.WithDescription("Rows kept per stage"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create rows.kept counter: %w", err))
	}

	rowsSkippedCounter, err = meter.Int64Counter(
		"qaqcrunner.run.rows.skipped",
		otelmetric.WithDescription("Rows skipped per stage, tagged by reason"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create rows.skipped counter: %w", err))
	}
}

// StageCounters is one stage's contribution to a run.
type StageCounters struct {
	RowsRead    int64
	RowsKept    int64
	RowsSkipped map[string]int64 // reason -> count
}

// Add folds another delta into c.
func (c *StageCounters) Add(delta StageCounters) {
	c.RowsRead += delta.RowsRead
	c.RowsKept += delta.RowsKept
	for reason, n := range delta.RowsSkipped {
		if c.RowsSkipped == nil {
			c.RowsSkipped = make(map[string]int64)
		}
		c.RowsSkipped[reason] += n
	}
}

// SkippedTotal returns the total skipped rows across all reasons.
func (c StageCounters) SkippedTotal() int64 {
	var total int64
	for _, n := range c.RowsSkipped {
		total += n
	}
	return total
}

// Summary is the run-end counters view.
type Summary struct {
	RunID  string
	Stages map[string]StageCounters
}

// Totals sums all stages.
func (s Summary) Totals() StageCounters {
	var total StageCounters
	names := make([]string, 0, len(s.Stages))
	for name := range s.Stages {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		total.Add(s.Stages[name])
	}
	return total
}

// Observer accumulates stage counter deltas. Safe for concurrent use by
// workers reporting chunk results.
type Observer struct {
	runID string

	mu     sync.Mutex
	stages map[string]*StageCounters
}

// New creates an Observer for one run. All counters start at zero.
func New(runID string) *Observer {
	return &Observer{
		runID:  runID,
		stages: make(map[string]*StageCounters),
	}
}

// Record folds a stage delta into the run totals and mirrors it to the otel
// counters.
func (o *Observer) Record(ctx context.Context, stage string, delta StageCounters) {
	o.mu.Lock()
	sc, ok := o.stages[stage]
	if !ok {
		sc = &StageCounters{}
		o.stages[stage] = sc
	}
	sc.Add(delta)
	o.mu.Unlock()

	attrs := otelmetric.WithAttributes(attribute.String("stage", stage))
	if delta.RowsRead > 0 {
		rowsReadCounter.Add(ctx, delta.RowsRead, attrs)
	}
	if delta.RowsKept > 0 {
		rowsKeptCounter.Add(ctx, delta.RowsKept, attrs)
	}
	for reason, n := range delta.RowsSkipped {
		rowsSkippedCounter.Add(ctx, n, otelmetric.WithAttributes(
			attribute.String("stage", stage),
			attribute.String("reason", reason),
		))
	}
}

// Summary returns a copy of the accumulated counters.
func (o *Observer) Summary() Summary {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := Summary{RunID: o.runID, Stages: make(map[string]StageCounters, len(o.stages))}
	for name, sc := range o.stages {
		cp := StageCounters{RowsRead: sc.RowsRead, RowsKept: sc.RowsKept}
		if sc.RowsSkipped != nil {
			cp.RowsSkipped = make(map[string]int64, len(sc.RowsSkipped))
			maps.Copy(cp.RowsSkipped, sc.RowsSkipped)
		}
		out.Stages[name] = cp
	}
	return out
}
