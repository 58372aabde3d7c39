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

// Package filereader streams the canonical normalized extract in bounded-size
// batches. Readers hold at most one chunk's worth of rows, so input size does
// not affect memory use. Header problems fail before the first batch; data
// content problems never fail a reader mid-stream.
package filereader

import (
	"context"

	"github.com/cardinalhq/qaqcrunner/internal/pipeline"
)

// Batch is the unit of hand-off between the reader and the validator.
type Batch = pipeline.Batch

// Row is a single extract row keyed by interned column names.
type Row = pipeline.Row

// Reader is the core interface for reading chunk batches from any file format.
type Reader interface {
	// Next returns the next batch of rows.
	// Returns io.EOF when there are no more rows.
	// The returned batch is valid only until the next call to Next.
	Next(ctx context.Context) (*Batch, error)

	// Close releases any resources held by the reader.
	Close() error

	// DroppedRows reports how many rows were skipped as unparsable so far.
	// Callers fold this into run accounting after draining the reader.
	DroppedRows() int64
}
