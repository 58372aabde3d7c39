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

package filereader

import (
	"context"
	"io"

	"github.com/parquet-go/parquet-go"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/qaqcrunner/internal/pipeline"
	"github.com/cardinalhq/qaqcrunner/internal/pipeline/wkk"
)

// ParquetReader reads a parquet-encoded extract with the same contract as
// CSVReader. Historical snapshots are commonly stored columnar, so the
// diff-month path uses this reader.
type ParquetReader struct {
	pf        *parquet.File
	pfr       *parquet.GenericReader[map[string]any]
	source    string
	closed    bool
	exhausted bool
	totalRows int64
	chunkSize int
	readBuf   []map[string]any
}

var _ Reader = (*ParquetReader)(nil)

// NewParquetReader creates a ParquetReader for the given io.ReaderAt.
// The schema is validated against the required-columns manifest before any
// batch is produced; a missing column is a fatal SourceReadError.
func NewParquetReader(reader io.ReaderAt, size int64, source string, required []string, chunkSize int) (*ParquetReader, error) {
	pf, err := parquet.OpenFile(reader, size)
	if err != nil {
		return nil, &SourceReadError{Source: source, Err: err}
	}

	var headers []string
	for _, field := range pf.Schema().Fields() {
		headers = append(headers, field.Name())
	}
	if missing := missingColumns(headers, required); len(missing) > 0 {
		return nil, &SourceReadError{Source: source, Missing: missing}
	}

	if chunkSize <= 0 {
		chunkSize = 1000
	}

	readBuf := make([]map[string]any, chunkSize)
	for i := range readBuf {
		readBuf[i] = make(map[string]any)
	}

	return &ParquetReader{
		pf:        pf,
		pfr:       parquet.NewGenericReader[map[string]any](pf, pf.Schema()),
		source:    source,
		chunkSize: chunkSize,
		readBuf:   readBuf,
	}, nil
}

// Next returns the next chunk of rows, or io.EOF when the input is exhausted.
func (r *ParquetReader) Next(ctx context.Context) (*Batch, error) {
	if r.closed || r.exhausted {
		return nil, io.EOF
	}

	for i := range r.readBuf {
		for k := range r.readBuf[i] {
			delete(r.readBuf[i], k)
		}
	}

	n, err := r.pfr.Read(r.readBuf)
	if err != nil && err != io.EOF {
		return nil, &SourceReadError{Source: r.source, Err: err}
	}
	if n == 0 {
		r.exhausted = true
		return nil, io.EOF
	}

	rowsInCounter.Add(ctx, int64(n), otelmetric.WithAttributes(
		attribute.String("reader", "ParquetReader"),
	))

	batch := pipeline.GetBatch()
	for i := range n {
		batchRow := batch.AddRow()
		for k, v := range r.readBuf[i] {
			batchRow[wkk.NewRowKey(k)] = normalizeParquetValue(v)
		}
	}

	r.totalRows += int64(n)
	rowsOutCounter.Add(ctx, int64(n), otelmetric.WithAttributes(
		attribute.String("reader", "ParquetReader"),
	))
	return batch, nil
}

// normalizeParquetValue maps parquet scalar types onto the value domain the
// CSV path produces, so downstream validation sees one type vocabulary.
func normalizeParquetValue(v any) any {
	switch t := v.(type) {
	case int32:
		return int64(t)
	case int:
		return int64(t)
	case float32:
		return float64(t)
	case []byte:
		return string(t)
	default:
		return v
	}
}

// Close releases the parquet reader.
func (r *ParquetReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if r.pfr != nil {
		err := r.pfr.Close()
		r.pfr = nil
		return err
	}
	return nil
}

// TotalRowsReturned returns how many rows have been handed downstream so far.
func (r *ParquetReader) TotalRowsReturned() int64 {
	return r.totalRows
}

// DroppedRows is always zero for parquet: a row that fails to decode fails
// the stream instead of being skipped.
func (r *ParquetReader) DroppedRows() int64 {
	return 0
}
